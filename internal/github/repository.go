package github

import (
	"encoding/json"
	"os"
	"sort"
	"strings"
)

// Repository is the subset of repository metadata used by the matcher.
type Repository struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	FullName    string   `json:"full_name"`
	Description string   `json:"description"`
	Language    string   `json:"language"`
	Stars       int      `json:"stargazers_count"`
	HTMLURL     string   `json:"html_url"`
	Topics      []string `json:"topics"`
	Fork        bool     `json:"fork"`
	Archived    bool     `json:"archived"`
	Owner       struct {
		Login string `json:"login"`
	} `json:"owner"`
}

type Repositories struct {
	Items []*Repository
}

func (r *Repositories) Len() int {
	return len(r.Items)
}

// FullNames returns the full names in list order.
func (r *Repositories) FullNames() []string {
	names := make([]string, 0, len(r.Items))
	for _, repo := range r.Items {
		names = append(names, repo.FullName)
	}
	return names
}

// ReportByLanguage groups repositories by primary language. Repositories
// without a language are reported under "unknown".
func (r *Repositories) ReportByLanguage() map[string][]string {
	report := make(map[string][]string)
	for _, repo := range r.Items {
		key := strings.ToLower(strings.TrimSpace(repo.Language))
		if key == "" {
			key = "unknown"
		}
		report[key] = append(report[key], repo.FullName+" - "+repo.HTMLURL)
	}
	for key := range report {
		sort.Strings(report[key])
	}
	return report
}

// DumpToTmpFile writes the repositories as indented JSON to a temporary file
// and returns its name.
func (r *Repositories) DumpToTmpFile() (string, error) {
	file, err := os.CreateTemp("", "matches_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	return file.Name(), nil
}
