package common

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadEnvFileMissingIsNoop(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing env file should be ignored: %v", err)
	}
}

func TestLoadEnvFilePreservesExistingEnv(t *testing.T) {
	t.Setenv("AUTH_BASE_URL", "https://auth.live.example")
	file := filepath.Join(t.TempDir(), "local.env")
	content := strings.Join([]string{
		"# local overrides",
		"AUTH_BASE_URL=https://auth.file.example",
		"AUTH_API_KEY=anon-key-1",
		"STORAGE_PREFIX=\"backoffice\"",
		"NOT A PAIR",
		"",
	}, "\n")
	if err := os.WriteFile(file, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	if err := LoadEnvFile(file); err != nil {
		t.Fatalf("load env file: %v", err)
	}
	if got := os.Getenv("AUTH_BASE_URL"); got != "https://auth.live.example" {
		t.Fatalf("expected process env to win, got %q", got)
	}
	if got := os.Getenv("AUTH_API_KEY"); got != "anon-key-1" {
		t.Fatalf("unexpected AUTH_API_KEY=%q", got)
	}
	if got := os.Getenv("STORAGE_PREFIX"); got != "backoffice" {
		t.Fatalf("expected quotes stripped, got %q", got)
	}
}

func TestLoadEnvFileDirectoryIsError(t *testing.T) {
	if err := LoadEnvFile(t.TempDir()); err == nil {
		t.Fatal("expected error when path is a directory")
	}
}

func FuzzLoadEnvFileNeverPanics(f *testing.F) {
	f.Add([]byte("KEY=value\n"))
	f.Add([]byte("# only a comment\nBROKEN\n = \n"))
	f.Add([]byte("QUOTED=\"a b c\"\nUNICODE_KEY=éè\n"))

	f.Fuzz(func(t *testing.T, content []byte) {
		if len(content) > 1<<16 {
			content = content[:1<<16]
		}
		file := filepath.Join(t.TempDir(), "fuzz.env")
		if err := os.WriteFile(file, content, 0o600); err != nil {
			t.Fatalf("write env file: %v", err)
		}
		if err := LoadEnvFile(file); err != nil {
			msg := err.Error()
			if !strings.Contains(msg, "open env file:") && !strings.Contains(msg, "read env file:") {
				t.Fatalf("unexpected error class: %v", err)
			}
		}
	})
}
