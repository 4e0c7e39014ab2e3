package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	return path
}

func TestLoadEnvFile(t *testing.T) {
	path := writeEnvFile(t, `
# comment
PAGERAMP_TEST_PORT=2600
PAGERAMP_TEST_ALIAS="Pocket Amp"
`)
	t.Setenv("PAGERAMP_TEST_PORT", "")
	t.Setenv("PAGERAMP_TEST_ALIAS", "")
	os.Unsetenv("PAGERAMP_TEST_PORT")
	os.Unsetenv("PAGERAMP_TEST_ALIAS")

	if err := loadEnvFile(path); err != nil {
		t.Fatalf("loadEnvFile: %v", err)
	}
	if got := os.Getenv("PAGERAMP_TEST_PORT"); got != "2600" {
		t.Errorf("PAGERAMP_TEST_PORT = %q", got)
	}
	if got := os.Getenv("PAGERAMP_TEST_ALIAS"); got != "Pocket Amp" {
		t.Errorf("PAGERAMP_TEST_ALIAS = %q, quotes should be stripped", got)
	}
}

func TestLoadEnvFileDoesNotOverride(t *testing.T) {
	path := writeEnvFile(t, "PAGERAMP_TEST_KEEP=file\n")
	t.Setenv("PAGERAMP_TEST_KEEP", "env")

	if err := loadEnvFile(path); err != nil {
		t.Fatalf("loadEnvFile: %v", err)
	}
	if got := os.Getenv("PAGERAMP_TEST_KEEP"); got != "env" {
		t.Errorf("existing variable overridden: %q", got)
	}
}

func TestLoadEnvFileInvalidLine(t *testing.T) {
	path := writeEnvFile(t, "NOT A PAIR\n")
	if err := loadEnvFile(path); err == nil {
		t.Error("expected error for malformed line")
	}
}
