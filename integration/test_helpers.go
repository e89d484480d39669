package integration

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	binaryPath       = "../cmd/throwapin-auth/throwapin-auth"
	appPort          = "15001"
	appURL           = "http://localhost:" + appPort
	frontendURL      = "http://localhost:15173"
	fakeGooglePort   = "9090"
	fakeGoogleURL    = "http://localhost:" + fakeGooglePort
	testMongoURI     = "mongodb://localhost:27018"
	testClientID     = "test-client-id"
	testClientSecret = "test-client-secret"
	testSecretKey    = "integration-secret-key-0123456789"
)

// execDockerCompose executes docker compose with the given arguments
func execDockerCompose(args ...string) *exec.Cmd {
	if err := exec.Command("docker", "compose", "version").Run(); err == nil {
		return exec.Command("docker", append([]string{"compose"}, args...)...)
	}
	return exec.Command("docker-compose", args...)
}

func waitForMongo() error {
	client, err := mongo.Connect(options.Client().ApplyURI(testMongoURI))
	if err != nil {
		return fmt.Errorf("failed to create MongoDB client: %w", err)
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	for range 30 {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err = client.Ping(ctx, nil)
		cancel()
		if err == nil {
			return nil
		}
		time.Sleep(1 * time.Second)
	}
	return fmt.Errorf("database failed to become ready after 30 seconds: %w", err)
}

// testEnv returns the environment of a server backed by the test database
func testEnv(database string) []string {
	return []string{
		"APP_ENV=development",
		"PORT=" + appPort,
		"FRONTEND_URL=" + frontendURL,
		"FLASK_SECRET_KEY=" + testSecretKey,
		"GOOGLE_CLIENT_ID=" + testClientID,
		"GOOGLE_CLIENT_SECRET=" + testClientSecret,
		"GOOGLE_AUTH_URL=" + fakeGoogleURL + "/auth",
		"GOOGLE_TOKEN_URL=" + fakeGoogleURL + "/token",
		"GOOGLE_USERINFO_URL=" + fakeGoogleURL + "/userinfo",
		"STORAGE_BACKEND=mongodb",
		"MONGODB_URI=" + testMongoURI,
		"MONGODB_DB_NAME=" + database,
		"LOG_LEVEL=debug",
	}
}

// testDatabase returns a database name unique to the test and drops it afterwards
func testDatabase(t *testing.T) string {
	t.Helper()
	name := fmt.Sprintf("throwapin_it_%d", time.Now().UnixNano())
	t.Cleanup(func() {
		client, err := mongo.Connect(options.Client().ApplyURI(testMongoURI))
		if err != nil {
			return
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		_ = client.Database(name).Drop(context.Background())
	})
	return name
}

// findUsers returns every user document with the given email
func findUsers(t *testing.T, database, email string) []bson.M {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(testMongoURI))
	require.NoError(t, err)
	defer func() { _ = client.Disconnect(context.Background()) }()

	cursor, err := client.Database(database).Collection("users").Find(ctx, bson.D{{Key: "email", Value: email}})
	require.NoError(t, err)

	var users []bson.M
	require.NoError(t, cursor.All(ctx, &users))
	return users
}

// trace logs a message if TRACE environment variable is set
func trace(t *testing.T, format string, args ...any) {
	if os.Getenv("TRACE") == "1" {
		t.Logf("TRACE: "+format, args...)
	}
}

// startServer starts throwapin-auth with env and waits until it is healthy
func startServer(t *testing.T, env []string) *exec.Cmd {
	t.Helper()
	cmd := exec.Command(binaryPath)
	cmd.Env = append([]string{"PATH=" + os.Getenv("PATH")}, env...)

	if logFile := os.Getenv("THROWAPIN_LOG_FILE"); logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			cmd.Stderr = f
			cmd.Stdout = f
			t.Cleanup(func() { f.Close() })
		}
	}

	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start throwapin-auth: %v", err)
	}
	t.Cleanup(func() { stopServer(cmd) })

	waitForServer(t)
	return cmd
}

// stopServer sends SIGINT and force kills after 5 seconds
func stopServer(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil || cmd.ProcessState != nil {
		return
	}

	if err := cmd.Process.Signal(syscall.SIGINT); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}
}

func waitForServer(t *testing.T) {
	t.Helper()
	for range 20 {
		resp, err := http.Get(appURL + "/")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatal("throwapin-auth failed to become ready after 10 seconds")
}

// newBrowser returns a client that keeps cookies and follows redirects
// until it reaches the frontend
func newBrowser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &http.Client{
		Jar:     jar,
		Timeout: 10 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			trace(t, "redirect to %s", req.URL)
			if strings.HasPrefix(req.URL.String(), frontendURL) {
				return http.ErrUseLastResponse
			}
			if len(via) >= 10 {
				return fmt.Errorf("stopped after 10 redirects")
			}
			return nil
		},
	}
}
