package integration

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"testing"
)

// TestMain provides package-level setup and teardown for all integration tests
func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		fmt.Println("Skipping integration tests in short mode")
		os.Exit(0)
	}

	fmt.Println("Building throwapin-auth binary...")
	buildCmd := exec.Command("go", "build", "-o", binaryPath, "../cmd/throwapin-auth")
	buildCmd.Stdout = os.Stdout
	buildCmd.Stderr = os.Stderr
	if err := buildCmd.Run(); err != nil {
		fmt.Printf("Failed to build throwapin-auth: %v\n", err)
		os.Exit(1)
	}

	logFile := "throwapin-auth-test.log"
	os.Setenv("THROWAPIN_LOG_FILE", logFile)

	fmt.Println("Starting test database...")
	if err := execDockerCompose("up", "-d", "--wait").Run(); err != nil {
		fmt.Printf("Failed to start test database: %v\n", err)
		os.Exit(1)
	}

	var exitCode int

	defer func() {
		fmt.Println("Cleaning up test database...")
		if err := execDockerCompose("down", "-v").Run(); err != nil {
			fmt.Printf("Warning: cleanup failed: %v\n", err)
		}

		if exitCode != 0 {
			showTestFailureDiagnostics(logFile)
		}

		os.Exit(exitCode)
	}()

	fakeGoogle := NewFakeGoogleServer(fakeGooglePort)
	if err := fakeGoogle.Start(); err != nil {
		fmt.Printf("Failed to start fake Google server: %v\n", err)
		exitCode = 1
		return
	}
	defer func() {
		_ = fakeGoogle.Stop()
	}()

	fmt.Println("Waiting for database to be ready...")
	if err := waitForMongo(); err != nil {
		fmt.Println(err)
		exitCode = 1
		return
	}

	exitCode = m.Run()
}

// showTestFailureDiagnostics displays logs when tests fail
func showTestFailureDiagnostics(logFile string) {
	fmt.Println("\n========== TEST FAILURE DIAGNOSTICS ==========")

	fmt.Println("\nDocker logs:")
	fmt.Println("----------------------------------------------")
	logsCmd := execDockerCompose("logs", "--tail=50")
	logsCmd.Stdout = os.Stdout
	logsCmd.Stderr = os.Stderr
	_ = logsCmd.Run()

	if _, err := os.Stat(logFile); err == nil {
		fmt.Println("\nthrowapin-auth logs (last 50 lines):")
		fmt.Println("----------------------------------------------")
		tailCmd := exec.Command("tail", "-50", logFile)
		tailCmd.Stdout = os.Stdout
		tailCmd.Stderr = os.Stderr
		_ = tailCmd.Run()
	}

	fmt.Println("\n==============================================")
}
