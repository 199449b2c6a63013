package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

// ContentEntry is one item of a directory listing.
type ContentEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"`
	Size int    `json:"size"`
}

type fileContent struct {
	Type     string `json:"type"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
}

// ListRootFiles returns the files (not directories) at the root of the
// repository's default branch.
func (c *Client) ListRootFiles(ctx context.Context, fullName string) ([]ContentEntry, error) {
	path, err := contentsPath(fullName, "")
	if err != nil {
		return nil, err
	}

	var entries []ContentEntry
	if err := c.getJSON(ctx, path, nil, &entries); err != nil {
		return nil, fmt.Errorf("list root of %s: %w", fullName, err)
	}

	files := entries[:0]
	for _, entry := range entries {
		if entry.Type == "file" {
			files = append(files, entry)
		}
	}
	return files, nil
}

// GetFile returns the decoded content of a file in the repository.
func (c *Client) GetFile(ctx context.Context, fullName, filePath string) ([]byte, error) {
	path, err := contentsPath(fullName, filePath)
	if err != nil {
		return nil, err
	}

	var content fileContent
	if err := c.getJSON(ctx, path, nil, &content); err != nil {
		return nil, fmt.Errorf("get %s from %s: %w", filePath, fullName, err)
	}

	if content.Type != "file" {
		return nil, fmt.Errorf("%s in %s is a %s, not a file", filePath, fullName, content.Type)
	}
	if content.Encoding != "base64" {
		return nil, fmt.Errorf("unsupported content encoding %q for %s", content.Encoding, filePath)
	}

	// The API wraps base64 content at 60 columns.
	data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(content.Content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("decode %s from %s: %w", filePath, fullName, err)
	}
	return data, nil
}

func contentsPath(fullName, filePath string) (string, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(fullName), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", fmt.Errorf("invalid repository name %q", fullName)
	}

	path := fmt.Sprintf("/repos/%s/%s/contents/", url.PathEscape(owner), url.PathEscape(name))
	if filePath != "" {
		segments := strings.Split(strings.Trim(filePath, "/"), "/")
		for i, segment := range segments {
			segments[i] = url.PathEscape(segment)
		}
		path += strings.Join(segments, "/")
	}
	return path, nil
}
