package runner

import (
	"context"
	"encoding/json"
	"fmt"
)

// Archive is one entry from "borg list --json", trimmed to the fields
// callers need.
type Archive struct {
	Name string `json:"name"`
	Time string `json:"time"`
	ID   string `json:"id"`
}

type archiveListResponse struct {
	Archives []struct {
		Name string `json:"name"`
		Time string `json:"time"`
		ID   string `json:"id"`
	} `json:"archives"`
}

// ListArchives lists every archive in the repository.
func (r *Runner) ListArchives(ctx context.Context) ([]Archive, error) {
	out, err := r.Client.Run(ctx, "list", "--json", r.Client.Repo)
	if err != nil {
		return nil, fmt.Errorf("borg list: %w", err)
	}
	var resp archiveListResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, fmt.Errorf("parse borg list output: %w", err)
	}
	archives := make([]Archive, 0, len(resp.Archives))
	for _, a := range resp.Archives {
		id := a.ID
		if len(id) > 12 {
			id = id[:12]
		}
		archives = append(archives, Archive{Name: a.Name, Time: a.Time, ID: id})
	}
	return archives, nil
}
