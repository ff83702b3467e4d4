//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// TestConfig holds configuration for integration tests. The IAM_* variables
// are also read by the binary itself through viper.
type TestConfig struct {
	BaseURL      string
	APIKeyID     string
	APIKeySecret string
	IAMPath      string
	Verbose      bool
}

// LoadTestConfig loads configuration from environment variables.
func LoadTestConfig() *TestConfig {
	return &TestConfig{
		BaseURL:      os.Getenv("IAM_BASE_URL"),
		APIKeyID:     os.Getenv("IAM_API_KEY_ID"),
		APIKeySecret: os.Getenv("IAM_API_KEY_SECRET"),
		IAMPath:      getIAMPath(),
		Verbose:      os.Getenv("IAM_VERBOSE") == "true",
	}
}

func getIAMPath() string {
	if path := os.Getenv("IAM_BINARY_PATH"); path != "" {
		return path
	}

	for _, candidate := range []string{"../../iam", "./iam", "../iam"} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return "iam"
}

// SkipIfMissingConfig skips the test unless a tenant and a binary are available.
func (config *TestConfig) SkipIfMissingConfig(t *testing.T) {
	t.Helper()

	if config.APIKeyID == "" || config.APIKeySecret == "" {
		t.Skip("IAM_API_KEY_ID / IAM_API_KEY_SECRET not set, skipping integration test")
	}

	if _, err := exec.LookPath(config.IAMPath); err != nil {
		t.Skipf("iam binary not found at %s, skipping integration test", config.IAMPath)
	}
}

// CommandRunner runs the iam binary against an isolated config file.
type CommandRunner struct {
	config     *TestConfig
	configFile string
	t          *testing.T
}

// NewCommandRunner creates a runner whose config lives in a temp directory.
func NewCommandRunner(config *TestConfig, t *testing.T) *CommandRunner {
	t.Helper()

	return &CommandRunner{
		config:     config,
		configFile: filepath.Join(t.TempDir(), "config.yml"),
		t:          t,
	}
}

// Run executes an iam command and returns its output.
func (runner *CommandRunner) Run(args ...string) (stdout, stderr string, err error) {
	args = append([]string{"--config", runner.configFile}, args...)
	cmd := exec.Command(runner.config.IAMPath, args...)

	var stdoutBuf, stderrBuf bytes.Buffer

	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	if runner.config.Verbose {
		runner.t.Logf("Running: %s %s", runner.config.IAMPath, strings.Join(args, " "))
	}

	err = cmd.Run()
	stdout = stdoutBuf.String()
	stderr = stderrBuf.String()

	if runner.config.Verbose && err != nil {
		runner.t.Logf("Command failed: %v\nStdout: %s\nStderr: %s", err, stdout, stderr)
	}

	return stdout, stderr, err
}

// Login stores the API key in the runner's config file.
func (runner *CommandRunner) Login() error {
	args := []string{"login", "--id", runner.config.APIKeyID, "--secret", runner.config.APIKeySecret}
	if runner.config.BaseURL != "" {
		args = append(args, "--base-url", runner.config.BaseURL)
	}

	_, stderr, err := runner.Run(args...)
	if err != nil {
		runner.t.Logf("login failed: %s", stderr)
	}

	return err
}

// DecodeJSON unmarshals command output, failing the test when it is not JSON.
func DecodeJSON[T any](t *testing.T, output string) T {
	t.Helper()

	var value T
	if err := json.Unmarshal([]byte(strings.TrimSpace(output)), &value); err != nil {
		t.Fatalf("Output is not JSON: %v\n%s", err, output)
	}

	return value
}
