package json

import (
	"encoding/json"
	"net/http"

	"github.com/dgellow/throwapin-auth/internal/log"
)

// ErrorResponse is the body of every error reply, e.g. {"error":"Unauthorized"}
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse is the body of informational replies
type MessageResponse struct {
	Message string `json:"message"`
}

// StatusResponse is the body of the liveness endpoint
type StatusResponse struct {
	Status string `json:"status"`
}

// WriteResponse writes a JSON response with the given status code
func WriteResponse(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.LogError("Failed to encode JSON response: %v", err)
		return err
	}
	return nil
}

// Write writes a JSON response with 200 OK status
func Write(w http.ResponseWriter, data any) error {
	return WriteResponse(w, http.StatusOK, data)
}

// WriteMessage writes {"message": message} with 200 OK status
func WriteMessage(w http.ResponseWriter, message string) {
	_ = Write(w, MessageResponse{Message: message})
}

// WriteError writes a JSON error response
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	_ = WriteResponse(w, statusCode, ErrorResponse{Error: message})
}

func WriteUnauthorized(w http.ResponseWriter) {
	WriteError(w, http.StatusUnauthorized, "Unauthorized")
}

func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message)
}

func WriteInternalServerError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message)
}

func WriteNotFound(w http.ResponseWriter) {
	WriteError(w, http.StatusNotFound, "Not Found")
}

func WriteMethodNotAllowed(w http.ResponseWriter) {
	WriteError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
}
