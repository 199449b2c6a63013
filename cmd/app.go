package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/repo-matcher/internal/ai"
	"github.com/spigell/repo-matcher/internal/ai/gemini"
	"github.com/spigell/repo-matcher/internal/ai/openai"
	"github.com/spigell/repo-matcher/internal/analytics"
	"github.com/spigell/repo-matcher/internal/github"
	"github.com/spigell/repo-matcher/internal/logger"
	"github.com/spigell/repo-matcher/internal/matching"
	"github.com/spigell/repo-matcher/internal/query"
	"github.com/spigell/repo-matcher/internal/retriever"
	"github.com/spigell/repo-matcher/internal/retry"
	"github.com/spigell/repo-matcher/internal/secrets"
	"github.com/spigell/repo-matcher/internal/skills"
	"github.com/spigell/repo-matcher/internal/taxonomy"
	"github.com/spigell/repo-matcher/internal/users"
)

const (
	sinkLog   = "log"
	sinkRedis = "redis"
	sinkNone  = "none"
)

// newLogger builds the logger from the persistent flags.
func newLogger(component string) (*zap.Logger, error) {
	return logger.New(logger.Options{
		JSON:      viper.GetBool("json"),
		Debug:     viper.GetBool("debug"),
		Output:    viper.GetString("log-output"),
		Component: component,
	})
}

// newService wires the pipeline shared by every command.
func newService(ctx context.Context, config *Config, directory users.Directory, dispatcher matching.Dispatcher, logger *zap.Logger) (*matching.Service, error) {
	token, err := secrets.LoadOptional(secrets.Source{
		Name:  "github token",
		File:  config.GitHub.TokenFile,
		Value: config.GitHub.Token,
		Env:   "GITHUB_TOKEN",
	})
	if err != nil {
		return nil, fmt.Errorf("loading github token: %w", err)
	}
	if token == "" {
		logger.Warn("github token is not configured, requests are unauthenticated",
			zap.String("hint", "set GITHUB_TOKEN_FILE or GITHUB_TOKEN environment variable or the 'github.token-file' key in the configuration file"),
		)
	}

	gh := github.New(logger, token)
	if config.GitHub.APIURL != "" {
		gh.APIURL = strings.TrimRight(config.GitHub.APIURL, "/")
	}
	if config.GitHub.UserAgent != "" {
		gh.UserAgent = config.GitHub.UserAgent
	}

	tax, err := taxonomy.Load(config.TaxonomyFile)
	if err != nil {
		return nil, fmt.Errorf("loading taxonomy: %w", err)
	}
	logger.Debug("taxonomy loaded", zap.Int("entries", tax.Len()), zap.String("file", config.TaxonomyFile))

	generator, err := newGenerator(ctx, config.AI, logger)
	if err != nil {
		// The deterministic query is always available.
		logger.Warn("assisted query disabled", zap.Error(err))
		generator = nil
	}

	policy := retry.DefaultPolicy(github.Classify, logger)

	return matching.NewService(matching.Deps{
		Directory:  directory,
		Extractor:  skills.NewExtractor(gh, tax, policy, config.GitHub.Config, logger),
		Composer:   query.NewComposer(tax, generator, config.Query, logger),
		Retriever:  retriever.New(gh, policy, config.Search, logger),
		Taxonomy:   tax,
		Dispatcher: dispatcher,
	}, config.Matching, logger), nil
}

// newGenerator returns a nil generator when no provider is configured.
func newGenerator(ctx context.Context, config *AIConfig, logger *zap.Logger) (ai.Generator, error) {
	if config == nil || !config.Enabled() {
		return nil, nil
	}

	switch provider := strings.TrimSpace(strings.ToLower(config.Provider)); provider {
	case ai.ProviderGemini:
		apiKey, err := secrets.Load(secrets.Source{
			Name:  "gemini api key",
			File:  config.GeminiAPIKeyFile,
			Value: config.APIKey,
			Env:   "GEMINI_API_KEY",
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set ai.gemini-api-key-file or GEMINI_API_KEY_FILE)", err)
		}
		return gemini.NewGenerator(ctx, apiKey, config.Model, logger)
	case ai.ProviderOpenAI:
		apiKey, err := secrets.Load(secrets.Source{
			Name:  "openai api key",
			File:  config.OpenAIAPIKeyFile,
			Value: config.APIKey,
			Env:   "OPENAI_API_KEY",
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set ai.openai-api-key-file or OPENAI_API_KEY_FILE)", err)
		}
		return openai.NewGenerator(apiKey, config.BaseURL, config.Model, logger)
	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", config.Provider)
	}
}

// newSink returns the analytics sink and a function releasing it.
func newSink(ctx context.Context, config *AnalyticsConfig, logger *zap.Logger) (analytics.Sink, func() error, error) {
	noop := func() error { return nil }

	switch strings.TrimSpace(strings.ToLower(config.Sink)) {
	case "", sinkLog:
		return analytics.LogSink{Logger: logger}, noop, nil
	case sinkNone:
		return nil, noop, nil
	case sinkRedis:
		stream, err := analytics.NewRedisStream(ctx, config.Redis)
		if err != nil {
			return nil, noop, fmt.Errorf("connecting analytics stream: %w", err)
		}
		logger.Info("analytics stream connected", zap.String("stream", config.Redis.Stream))
		return stream, stream.Close, nil
	default:
		return nil, noop, fmt.Errorf("unsupported analytics sink: %s", config.Sink)
	}
}

// newDirectory returns the Postgres directory when a DSN is configured,
// otherwise ids are treated as logins.
func newDirectory(ctx context.Context, config users.Config, logger *zap.Logger) (users.Directory, func(), error) {
	if strings.TrimSpace(config.DSN) == "" {
		logger.Warn("users.dsn is not configured, user ids are treated as logins")
		return users.Passthrough{}, func() {}, nil
	}

	directory, err := users.NewPostgres(ctx, config)
	if err != nil {
		return nil, func() {}, fmt.Errorf("connecting user directory: %w", err)
	}
	logger.Info("user directory connected")
	return directory, directory.Close, nil
}

// exitReason renders a pipeline failure for CLI output.
func exitReason(err error) string {
	var matchErr *matching.Error
	if errors.As(err, &matchErr) {
		return fmt.Sprintf("%s (%s)", matchErr.Kind, matchErr.Stage)
	}
	return string(matching.KindOf(err))
}
