package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/repo-matcher/internal/analytics"
	"github.com/spigell/repo-matcher/internal/github"
	"github.com/spigell/repo-matcher/internal/matching"
	"github.com/spigell/repo-matcher/internal/ranking"
	"github.com/spigell/repo-matcher/internal/users"
)

const (
	PromptReportByLanguage = "Report by language"
	PromptReposToFile      = "Dump repositories to file"
	PromptExit             = "Exit"
)

var errExit = errors.New("exit requested")

var prompt = promptui.Select{
	Label: "What next?",
	Items: []string{PromptReportByLanguage, PromptReposToFile, PromptExit},
}

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Find repositories matching a GitHub user's skills",
	Run: func(cmd *cobra.Command, _ []string) {
		match(cmd)
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().StringP("login", "l", "", "GitHub login to match repositories for")
	matchCmd.Flags().StringSliceP("skills", "s", nil, "explicit skills, extracted from the user's repositories when empty")
	matchCmd.Flags().IntP("count", "c", 0, "number of repositories to return (default is matching.default-count)")
	matchCmd.Flags().BoolP("interactive", "i", false, "offer a menu to inspect the result")

	matchCmd.MarkFlagRequired("login")
}

func match(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := newLogger("cli")
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the repo-matcher", zap.String("version", version))

	login, _ := cmd.Flags().GetString("login")
	skillNames, _ := cmd.Flags().GetStringSlice("skills")
	count, _ := cmd.Flags().GetInt("count")

	sink, closeSink, err := newSink(ctx, config.Analytics, logger)
	if err != nil {
		logger.Fatal("preparing analytics", zap.Error(err))
	}
	dispatcher := analytics.NewDispatcher(sink, config.Analytics.Timeout, logger)
	defer func() {
		dispatcher.Close()
		_ = closeSink()
	}()

	service, err := newService(ctx, config, users.Passthrough{}, dispatcher, logger)
	if err != nil {
		logger.Fatal("preparing matching service", zap.Error(err))
	}

	result, err := service.Match(ctx, matching.Request{UserID: login, Skills: skillNames, Count: count})
	if err != nil {
		logger.Fatal("matching failed", zap.String("reason", exitReason(err)), zap.Error(err))
	}

	logger.Info("skills used",
		zap.Strings("skills", result.Skills),
		zap.Strings("languages", result.Languages),
		zap.String("query", result.Query.Text),
		zap.String("strategy", string(result.Query.Strategy)),
	)
	for i, m := range result.Matches {
		logger.Info(fmt.Sprintf("%d. %s", i+1, m.Repository.FullName),
			zap.Int("stars", m.Repository.Stars),
			zap.String("language", m.Repository.Language),
			zap.Strings("matched", m.Matched),
			zap.String("url", m.Repository.HTMLURL),
		)
	}

	if len(result.Matches) == 0 {
		logger.Info("exiting", zap.String("reason", "no repositories found"))
		return
	}

	interactive, _ := cmd.Flags().GetBool("interactive")
	if !interactive {
		return
	}

	repos := ranking.Repositories(result.Matches)
	for {
		_, action, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		if err := handleAction(action, logger, repos); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}
	}
}

func handleAction(action string, logger *zap.Logger, repos *github.Repositories) error {
	switch action {
	case PromptExit:
		logger.Info("exiting", zap.String("reason", "got exit from prompt"))
		return errExit
	case PromptReportByLanguage:
		pretty, err := json.MarshalIndent(repos.ReportByLanguage(), "", "  ")
		if err != nil {
			return fmt.Errorf("render language report: %w", err)
		}
		logger.Info(string(pretty), zap.Int("repositories count", repos.Len()))
		return nil
	case PromptReposToFile:
		filename, err := repos.DumpToTmpFile()
		if err != nil {
			return fmt.Errorf("dump results to file: %w", err)
		}
		logger.Info("dumping result to file", zap.String("filename", filename))
		return nil
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}
