// Package github is a small read-only client for the GitHub REST API,
// covering the calls the matcher needs: listing a user's repositories,
// reading root manifests and searching repositories.
package github

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	apiURL     = "https://api.github.com"
	userAgent  = "spigell/repo-matcher"
	apiVersion = "2022-11-28"
	// Max value for per_page accepted by the API.
	maxPerPage = 100
)

type Client struct {
	token      string
	logger     *zap.Logger
	HTTPClient *http.Client
	UserAgent  string
	APIURL     string
}

// New returns a client. An empty token makes unauthenticated requests,
// which upstream limits much more aggressively.
func New(logger *zap.Logger, token string) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		token:  token,
		APIURL: apiURL,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:    logger,
		UserAgent: userAgent,
	}
}
