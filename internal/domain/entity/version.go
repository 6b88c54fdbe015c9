package entity

import "time"

// ProcessVersion is an immutable snapshot of a process at a version number
type ProcessVersion struct {
	ID            int64      `json:"id"`
	ProcessID     int64      `json:"process_id"`
	VersionNumber string     `json:"version_number"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Content       string     `json:"content"`
	ChangeLog     string     `json:"change_log"`
	CreatedBy     string     `json:"created_by"`
	CreatedAt     time.Time  `json:"created_at"`
	IsCurrent     bool       `json:"is_current"`
	IsPublished   bool       `json:"is_published"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
	PublishedBy   string     `json:"published_by,omitempty"`
}

// VersionSnapshot is the JSON document stored in ProcessVersion.Content
type VersionSnapshot struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Category    string        `json:"category"`
	OwnerID     string        `json:"owner_id,omitempty"`
	Steps       []ProcessStep `json:"steps"`
	Tags        []string      `json:"tags"`
}
