// Package retriever runs a repository search and collects up to the
// requested number of candidates.
package retriever

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/repo-matcher/internal/github"
	"github.com/spigell/repo-matcher/internal/logger"
	"github.com/spigell/repo-matcher/internal/retry"
)

const (
	DefaultMaxCount = 30
	DefaultPerPage  = 30
	maxPerPage      = 100
)

// ErrEmptyQuery is returned for a blank query.
var ErrEmptyQuery = errors.New("query is empty")

// Searcher runs one page of a repository search.
type Searcher interface {
	SearchRepositories(ctx context.Context, params *github.SearchParams) (*github.SearchPage, error)
}

type Config struct {
	MaxCount int    `mapstructure:"max-count"`
	PerPage  int    `mapstructure:"per-page"`
	Sort     string `mapstructure:"sort"`
	Order    string `mapstructure:"order"`
}

type Retriever struct {
	searcher Searcher
	policy   retry.Policy
	config   Config
	logger   *zap.Logger
}

func New(searcher Searcher, policy retry.Policy, cfg Config, log *zap.Logger) *Retriever {
	if cfg.MaxCount <= 0 {
		cfg.MaxCount = DefaultMaxCount
	}
	if cfg.PerPage <= 0 || cfg.PerPage > maxPerPage {
		cfg.PerPage = DefaultPerPage
	}
	if cfg.Sort == "" {
		cfg.Sort = "stars"
	}
	if cfg.Order == "" {
		cfg.Order = "desc"
	}

	return &Retriever{
		searcher: searcher,
		policy:   policy,
		config:   cfg,
		logger:   logger.WithFields(log),
	}
}

// ClampCount bounds count to [1, MaxCount].
func (r *Retriever) ClampCount(count int) int {
	return min(max(count, 1), r.config.MaxCount)
}

// Retrieve collects up to count repositories for query in upstream order.
// Any failure, including cancellation, discards what was collected.
func (r *Retriever) Retrieve(ctx context.Context, query string, count int) (*github.Repositories, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}

	count = r.ClampCount(count)
	perPage := min(r.config.PerPage, count)
	repos := &github.Repositories{}

	for page := 1; repos.Len() < count; page++ {
		params := &github.SearchParams{
			Query:   query,
			Sort:    r.config.Sort,
			Order:   r.config.Order,
			PerPage: perPage,
			Page:    page,
		}

		var result *github.SearchPage
		err := r.policy.Do(ctx, "search repositories", func(ctx context.Context) error {
			var err error
			result, err = r.searcher.SearchRepositories(ctx, params)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("search page %d: %w", page, err)
		}

		for _, repo := range result.Items {
			repos.Items = append(repos.Items, repo)
			if repos.Len() == count {
				break
			}
		}

		if len(result.Items) < perPage || page*perPage >= result.TotalCount {
			break
		}

		r.logger.Debug("additional search page needed",
			zap.Int("page", page+1),
			zap.Int("collected", repos.Len()),
			zap.Int("total", result.TotalCount),
		)
	}

	r.logger.Debug("candidates retrieved",
		zap.String("query", query),
		zap.Int("count", count),
		zap.Int("retrieved", repos.Len()),
		zap.Strings("repositories", repos.FullNames()),
	)

	return repos, nil
}
