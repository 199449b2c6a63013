package github

import (
	"context"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

const (
	SearchPath = "/search/repositories"
)

type SearchParams struct {
	// ghparam is custom tag for reflect. Please see buildParams.
	Query   string `ghparam:"q"`
	Sort    string `ghparam:"sort" mapstructure:"sort"`
	Order   string `ghparam:"order" mapstructure:"order"`
	PerPage int    `ghparam:"per_page" mapstructure:"per-page"`
	Page    int    `ghparam:"page"`
}

// SearchPage is a single page of repository search results.
type SearchPage struct {
	TotalCount        int
	IncompleteResults bool
	Items             []*Repository
}

type searchResponse struct {
	TotalCount        int    `json:"total_count"`
	IncompleteResults bool   `json:"incomplete_results"`
	Items             []Item `json:"items"`
}

type Item interface{}

// SearchRepositories fetches one page of repository search results.
func (c *Client) SearchRepositories(ctx context.Context, params *SearchParams) (*SearchPage, error) {
	if params == nil || strings.TrimSpace(params.Query) == "" {
		return nil, fmt.Errorf("search query is required")
	}

	if params.PerPage <= 0 || params.PerPage > maxPerPage {
		params.PerPage = maxPerPage
	}
	if params.Page <= 0 {
		params.Page = 1
	}

	var response searchResponse
	if err := c.getJSON(ctx, SearchPath, buildParams(params), &response); err != nil {
		return nil, fmt.Errorf("search repositories: %w", err)
	}

	var repos []*Repository
	cfg := &mapstructure.DecoderConfig{
		Metadata: nil,
		Result:   &repos,
		TagName:  "json",
	}
	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(response.Items); err != nil {
		return nil, fmt.Errorf("decode search items: %w", err)
	}

	return &SearchPage{
		TotalCount:        response.TotalCount,
		IncompleteResults: response.IncompleteResults,
		Items:             repos,
	}, nil
}

func buildParams(params *SearchParams) url.Values {
	q := url.Values{}
	value := reflect.ValueOf(params).Elem()
	for _, field := range reflect.VisibleFields(value.Type()) {
		key := field.Tag.Get("ghparam")
		if key == "" {
			continue
		}

		switch v := value.FieldByIndex(field.Index).Interface().(type) {
		case int:
			if v != 0 {
				q.Set(key, strconv.Itoa(v))
			}
		case string:
			if v != "" {
				q.Set(key, v)
			}
		}
	}

	return q
}
