package github

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// ListUserRepositories returns up to limit repositories owned by login, most
// recently pushed first. Forks are skipped since they say little about the
// owner's own work.
func (c *Client) ListUserRepositories(ctx context.Context, login string, limit int) (*Repositories, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return nil, fmt.Errorf("login is required")
	}
	if limit <= 0 {
		return &Repositories{}, nil
	}

	perPage := min(limit, maxPerPage)
	q := url.Values{}
	q.Set("type", "owner")
	q.Set("sort", "pushed")
	q.Set("direction", "desc")

	path := fmt.Sprintf("/users/%s/repos", url.PathEscape(login))
	repos := &Repositories{}

	for page := 1; repos.Len() < limit; page++ {
		var batch []*Repository
		if err := c.getJSON(ctx, path, pageValues(q, page, perPage), &batch); err != nil {
			return nil, fmt.Errorf("list repositories of %s: %w", login, err)
		}

		for _, repo := range batch {
			if repo.Fork {
				continue
			}
			repos.Items = append(repos.Items, repo)
			if repos.Len() == limit {
				break
			}
		}

		if len(batch) < perPage {
			break
		}

		c.logger.Debug("additional request needed",
			zap.String("login", login),
			zap.Int("page", page+1),
			zap.Int("collected", repos.Len()),
		)
	}

	return repos, nil
}
