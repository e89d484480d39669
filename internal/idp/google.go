package idp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dgellow/throwapin-auth/internal/log"
	"golang.org/x/oauth2"
)

// ErrUserInfoFetchFailed is returned when the userinfo endpoint does not yield a usable profile
var ErrUserInfoFetchFailed = errors.New("failed to get user info")

// maxLoggedBody bounds how much of an error response ends up in the logs
const maxLoggedBody = 1 << 10

// googleUserInfoResponse is the subset of Google's OpenID userinfo document we read
type googleUserInfoResponse struct {
	Sub       string `json:"sub"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	GivenName string `json:"given_name"`
}

// UserInfoClient fetches the signed-in user's profile from Google
type UserInfoClient struct {
	userInfoURL string
	httpClient  *http.Client
}

// NewUserInfoClient creates a client for the given userinfo endpoint.
// A nil httpClient falls back to http.DefaultClient.
func NewUserInfoClient(userInfoURL string, httpClient *http.Client) *UserInfoClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &UserInfoClient{
		userInfoURL: userInfoURL,
		httpClient:  httpClient,
	}
}

// FetchProfile calls the userinfo endpoint with the token as bearer credential.
// Any non-200 answer is logged with its status and body and reported as
// ErrUserInfoFetchFailed.
func (c *UserInfoClient) FetchProfile(ctx context.Context, token *oauth2.Token) (Profile, error) {
	if token == nil || token.AccessToken == "" {
		return Profile{}, fmt.Errorf("%w: missing access token", ErrUserInfoFetchFailed)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userInfoURL, nil)
	if err != nil {
		return Profile{}, fmt.Errorf("building userinfo request: %w", err)
	}
	token.SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("requesting user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxLoggedBody))
		log.LogErrorWithFields("idp", "Failed to fetch user info", map[string]any{
			"status": resp.StatusCode,
			"body":   string(body),
		})
		return Profile{}, fmt.Errorf("%w: status %d", ErrUserInfoFetchFailed, resp.StatusCode)
	}

	var googleUser googleUserInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&googleUser); err != nil {
		log.LogErrorWithFields("idp", "Failed to decode user info", map[string]any{
			"error": err.Error(),
		})
		return Profile{}, fmt.Errorf("%w: %v", ErrUserInfoFetchFailed, err)
	}

	email := strings.TrimSpace(googleUser.Email)
	if email == "" {
		log.LogErrorWithFields("idp", "User info has no email", map[string]any{
			"sub": googleUser.Sub,
		})
		return Profile{}, fmt.Errorf("%w: no email in response", ErrUserInfoFetchFailed)
	}

	name := googleUser.Name
	if name == "" {
		name = googleUser.GivenName
	}

	return Profile{
		Email:    email,
		Name:     name,
		AuthType: AuthTypeGoogle,
	}, nil
}
