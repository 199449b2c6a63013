package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadPrefersFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("  from-file\n"), 0o600); err != nil {
		t.Fatalf("write token file: %v", err)
	}

	got, err := Load(Source{Name: "github token", Value: "inline", File: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "from-file" {
		t.Fatalf("expected file value, got %q", got)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	empty := filepath.Join(t.TempDir(), "empty")
	if err := os.WriteFile(empty, []byte("\n"), 0o600); err != nil {
		t.Fatalf("write empty file: %v", err)
	}

	tests := []struct {
		name   string
		src    Source
		expect string
	}{
		{name: "nothing configured", src: Source{Name: "gemini api key"}, expect: "gemini api key is not configured"},
		{name: "empty file", src: Source{File: empty}, expect: "is empty"},
		{name: "missing file", src: Source{File: filepath.Join(t.TempDir(), "missing")}, expect: "reading secret from file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(tt.src)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.expect) {
				t.Fatalf("expected error to contain %q, got %q", tt.expect, err)
			}
		})
	}
}

func TestLoadOptional(t *testing.T) {
	t.Parallel()

	got, err := LoadOptional(Source{Name: "github token"})
	if err != nil || got != "" {
		t.Fatalf("expected empty secret without error, got %q, %v", got, err)
	}

	got, err = LoadOptional(Source{Name: "github token", Value: " abc "})
	if err != nil || got != "abc" {
		t.Fatalf("expected inline secret, got %q, %v", got, err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("REPO_MATCHER_TEST_TOKEN", " from-env ")

	got, err := Load(Source{Name: "github token", Env: "REPO_MATCHER_TEST_TOKEN"})
	if err != nil || got != "from-env" {
		t.Fatalf("expected env secret, got %q, %v", got, err)
	}

	got, err = Load(Source{Name: "github token", Value: "inline", Env: "REPO_MATCHER_TEST_TOKEN"})
	if err != nil || got != "inline" {
		t.Fatalf("expected inline value to win over env, got %q, %v", got, err)
	}

	got, err = LoadOptional(Source{Name: "github token", Env: "REPO_MATCHER_TEST_UNSET"})
	if err != nil || got != "" {
		t.Fatalf("expected absent secret, got %q, %v", got, err)
	}
}
