package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/spigell/repo-matcher/internal/logger"
	"github.com/spigell/repo-matcher/internal/matching"
	"github.com/spigell/repo-matcher/internal/ranking"
)

type matchRequest struct {
	Skills []string `json:"skills"`
}

type repoResponse struct {
	ID          int64    `json:"id"`
	FullName    string   `json:"fullName"`
	Owner       string   `json:"owner"`
	Language    string   `json:"language"`
	Stars       int      `json:"stars"`
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Matched     []string `json:"matched"`
}

type matchResponse struct {
	Skills       []string       `json:"skills"`
	Languages    []string       `json:"languages"`
	Query        string         `json:"query"`
	MatchedRepos []repoResponse `json:"matchedRepos"`
}

type skillsResponse struct {
	Skills    []string `json:"skills"`
	Languages []string `json:"languages"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (s *Server) match(c *gin.Context) {
	userID := c.GetString(userIDKey)

	count := 0
	if raw := c.Query("count"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "count must be an integer", Kind: string(matching.KindInvalidInput)})
			return
		}
		count = parsed
	}

	// The body is optional: no body means the skills are extracted.
	var req matchRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body", Kind: string(matching.KindInvalidInput)})
		return
	}

	result, err := s.matcher.Match(c.Request.Context(), matching.Request{
		UserID: userID,
		Skills: req.Skills,
		Count:  count,
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, matchResponse{
		Skills:       nonNil(result.Skills),
		Languages:    nonNil(result.Languages),
		Query:        result.Query.Text,
		MatchedRepos: toRepoResponses(result.Matches),
	})
}

func (s *Server) skills(c *gin.Context) {
	result, err := s.matcher.Skills(c.Request.Context(), c.GetString(userIDKey))
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, skillsResponse{
		Skills:    nonNil(result.Skills),
		Languages: nonNil(result.Languages),
	})
}

func (s *Server) fail(c *gin.Context, err error) {
	kind := matching.KindOf(err)
	status := StatusFor(kind)

	_ = c.Error(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String(logger.FieldActor, c.GetString(userIDKey)),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}

	c.JSON(status, errorResponse{Error: publicMessage(kind), Kind: string(kind)})
}

// StatusFor maps a failure kind to an HTTP status.
func StatusFor(kind matching.Kind) int {
	switch kind {
	case matching.KindInvalidInput:
		return http.StatusBadRequest
	case matching.KindIdentity:
		return http.StatusNotFound
	case matching.KindRateLimited:
		return http.StatusTooManyRequests
	case matching.KindUnavailable:
		return http.StatusServiceUnavailable
	case matching.KindTimeout:
		return http.StatusGatewayTimeout
	case matching.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func publicMessage(kind matching.Kind) string {
	switch kind {
	case matching.KindInvalidInput:
		return "invalid input"
	case matching.KindIdentity:
		return "user not found"
	case matching.KindRateLimited:
		return "upstream rate limit exceeded, try again later"
	case matching.KindUnavailable:
		return "upstream unavailable"
	case matching.KindTimeout:
		return "request timed out"
	case matching.KindUpstream:
		return "upstream request failed"
	default:
		return "internal server error"
	}
}

func toRepoResponses(matches []ranking.Match) []repoResponse {
	out := make([]repoResponse, 0, len(matches))
	for _, match := range matches {
		repo := match.Repository
		out = append(out, repoResponse{
			ID:          repo.ID,
			FullName:    repo.FullName,
			Owner:       repo.Owner.Login,
			Language:    repo.Language,
			Stars:       repo.Stars,
			Description: repo.Description,
			URL:         repo.HTMLURL,
			Matched:     nonNil(match.Matched),
		})
	}
	return out
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
