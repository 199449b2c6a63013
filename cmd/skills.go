package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/repo-matcher/internal/manifest"
	"github.com/spigell/repo-matcher/internal/skills"
	"github.com/spigell/repo-matcher/internal/users"
)

var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "Show the skills extracted from a GitHub user's repositories",
	Run: func(cmd *cobra.Command, _ []string) {
		login, _ := cmd.Flags().GetString("login")
		showSkills(login)
	},
}

func init() {
	rootCmd.AddCommand(skillsCmd)

	skillsCmd.Flags().StringP("login", "l", "", "GitHub login")
	skillsCmd.MarkFlagRequired("login")
}

func showSkills(login string) {
	ctx := context.Background()

	logger, err := newLogger("cli")
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	// The CLI records nothing.
	service, err := newService(ctx, config, users.Passthrough{}, nil, logger)
	if err != nil {
		logger.Fatal("preparing matching service", zap.Error(err))
	}

	result, err := service.Skills(ctx, login)
	if err != nil {
		logger.Fatal("extracting skills failed", zap.String("reason", exitReason(err)), zap.Error(err))
	}

	for _, repo := range result.Profile.Repositories {
		fields := []zap.Field{
			zap.String("language", repo.Language),
			zap.Strings("dependencies", repo.Dependencies),
		}
		if repo.Degraded {
			fields = append(fields, zap.Bool("degraded", true))
		}
		logger.Debug(repo.FullName, fields...)
	}

	logger.Info("skills extracted",
		zap.String("login", result.Login),
		zap.Int("repositories", len(result.Profile.Repositories)),
		zap.Strings("skills", result.Skills),
		zap.Strings("languages", result.Languages),
		zap.Strings("unmatched candidates", unmatched(result.Profile)),
		zap.Strings("manifests read", manifest.Supported()),
	)
}

func unmatched(profile *skills.Profile) []string {
	names := []string{}
	for _, name := range profile.Candidates.Names() {
		if !profile.Matched.Contains(name) {
			names = append(names, name)
		}
	}
	return names
}
