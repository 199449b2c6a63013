package cmd

import (
	"errors"
	"log"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/repo-matcher/internal/ai"
	"github.com/spigell/repo-matcher/internal/analytics"
	"github.com/spigell/repo-matcher/internal/matching"
	"github.com/spigell/repo-matcher/internal/query"
	"github.com/spigell/repo-matcher/internal/retriever"
	"github.com/spigell/repo-matcher/internal/server"
	"github.com/spigell/repo-matcher/internal/skills"
	"github.com/spigell/repo-matcher/internal/telemetry"
	"github.com/spigell/repo-matcher/internal/users"
)

const (
	app = "repo-matcher"
)

type Config struct {
	GitHub       *GitHubConfig    `mapstructure:"github"`
	Search       retriever.Config `mapstructure:"search"`
	Query        query.Config     `mapstructure:"query"`
	AI           *AIConfig        `mapstructure:"ai"`
	Matching     matching.Config  `mapstructure:"matching"`
	Server       server.Config    `mapstructure:"server"`
	Users        users.Config     `mapstructure:"users"`
	Analytics    *AnalyticsConfig `mapstructure:"analytics"`
	Telemetry    telemetry.Config `mapstructure:"telemetry"`
	TaxonomyFile string           `mapstructure:"taxonomy-file"`
}

type GitHubConfig struct {
	TokenFile string `mapstructure:"token-file"`
	Token     string `mapstructure:"token"`
	APIURL    string `mapstructure:"api-url"`
	UserAgent string `mapstructure:"user-agent"`

	skills.Config `mapstructure:",squash"`
}

type AIConfig struct {
	ai.Config `mapstructure:",squash"`

	GeminiAPIKeyFile string `mapstructure:"gemini-api-key-file"`
	OpenAIAPIKeyFile string `mapstructure:"openai-api-key-file"`
}

type AnalyticsConfig struct {
	// Sink is "log", "redis" or "none".
	Sink    string                `mapstructure:"sink"`
	Timeout time.Duration         `mapstructure:"timeout"`
	Redis   analytics.RedisConfig `mapstructure:"redis"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "repo-matcher suggests public repositories that match a developer's skills",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	envs := map[string]string{
		"github.token-file":      "GITHUB_TOKEN_FILE",
		"ai.gemini-api-key-file": "GEMINI_API_KEY_FILE",
		"ai.openai-api-key-file": "OPENAI_API_KEY_FILE",
		"users.dsn":              "DATABASE_URL",
		"analytics.redis.url":    "REDIS_URL",
	}
	for key, env := range envs {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	setDefaults()

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is repo-matcher.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().String("log-output", "", "log destination: stdout, stderr or a file path (default is stdout)")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("log-output", rootCmd.PersistentFlags().Lookup("log-output"))
}

func setDefaults() {
	viper.SetDefault("github.max-repos", skills.DefaultMaxRepositories)
	viper.SetDefault("github.manifest-concurrency", skills.DefaultConcurrency)
	viper.SetDefault("search.max-count", retriever.DefaultMaxCount)
	viper.SetDefault("search.per-page", retriever.DefaultPerPage)
	viper.SetDefault("search.sort", "stars")
	viper.SetDefault("search.order", "desc")
	viper.SetDefault("ai.timeout", ai.DefaultTimeout)
	viper.SetDefault("matching.timeout", matching.DefaultTimeout)
	viper.SetDefault("matching.default-count", matching.DefaultCount)
	viper.SetDefault("server.addr", server.DefaultAddr)
	viper.SetDefault("server.user-header", server.DefaultUserHeader)
	viper.SetDefault("analytics.sink", sinkLog)
	viper.SetDefault("analytics.timeout", analytics.DefaultTimeout)
	viper.SetDefault("telemetry.service-name", app)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// The config file is optional unless given explicitly; defaults and
	// environment are enough for the CLI.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	if config.GitHub == nil {
		config.GitHub = &GitHubConfig{}
	}
	if config.AI == nil {
		config.AI = &AIConfig{}
	}
	if config.Analytics == nil {
		config.Analytics = &AnalyticsConfig{}
	}
	// The composer owns the generator deadline.
	if config.Query.Timeout <= 0 {
		config.Query.Timeout = config.AI.Timeout
	}

	return config, nil
}
