// Package ai declares the text generation collaborator used to draft search
// queries. Concrete providers live in the gemini and openai subpackages.
package ai

import (
	"context"
	"time"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	DefaultTimeout = 8 * time.Second
)

// Generator produces one completion for a system instruction and a user
// message. Implementations must honour ctx.
type Generator interface {
	GenerateContent(ctx context.Context, system, message string) (string, error)
	Model() string
}

// Config selects and tunes the generator. An empty Provider disables the
// assisted query strategy.
type Config struct {
	Provider string        `mapstructure:"provider"`
	Model    string        `mapstructure:"model"`
	BaseURL  string        `mapstructure:"base-url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	APIKey   string        `mapstructure:"api-key"`
}

func (c Config) Enabled() bool {
	return c.Provider != ""
}
