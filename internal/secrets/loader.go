// Package secrets resolves credentials from files, inline values or the
// environment.
package secrets

import (
	"fmt"
	"os"
	"strings"
)

// Source describes where a secret may come from. File beats Value, Value
// beats Env.
type Source struct {
	// Name is used in error messages.
	Name string
	// Value is an inline secret from configuration or flags.
	Value string
	// File points to a file holding the secret, e.g. a mounted Kubernetes
	// secret.
	File string
	// Env names an environment variable holding the secret itself.
	Env string
}

func (s Source) name() string {
	if name := strings.TrimSpace(s.Name); name != "" {
		return name
	}
	return "secret"
}

// configured reports whether any location is set, without reading it.
func (s Source) configured() bool {
	return strings.TrimSpace(s.File) != "" ||
		strings.TrimSpace(s.Value) != "" ||
		(s.Env != "" && strings.TrimSpace(os.Getenv(s.Env)) != "")
}

// Load returns the trimmed secret. It fails when the secret is missing, when
// the file cannot be read or when the file is blank.
func Load(src Source) (string, error) {
	if file := strings.TrimSpace(src.File); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading %s from file %q: %w", src.name(), file, err)
		}
		secret := strings.TrimSpace(string(data))
		if secret == "" {
			return "", fmt.Errorf("%s file %q is empty", src.name(), file)
		}
		return secret, nil
	}

	if secret := strings.TrimSpace(src.Value); secret != "" {
		return secret, nil
	}

	if src.Env != "" {
		if secret := strings.TrimSpace(os.Getenv(src.Env)); secret != "" {
			return secret, nil
		}
		return "", fmt.Errorf("%s is not configured (%s is empty)", src.name(), src.Env)
	}

	return "", fmt.Errorf("%s is not configured", src.name())
}

// LoadOptional is Load for secrets that may be absent: a source with nothing
// configured yields an empty secret and no error.
func LoadOptional(src Source) (string, error) {
	if !src.configured() {
		return "", nil
	}
	return Load(src)
}
