package entity

import (
	"fmt"
	"hash/fnv"
	"time"
)

// Process is the aggregate root: a titled, versioned document made of ordered steps
type Process struct {
	ID             int64         `json:"id"`
	Title          string        `json:"title"`
	Description    string        `json:"description"`
	Category       string        `json:"category"`
	Status         ProcessStatus `json:"status"`
	IsActive       bool          `json:"is_active"`
	IsDeleted      bool          `json:"is_deleted"`
	DeletedAt      *time.Time    `json:"deleted_at,omitempty"`
	DeletedBy      string        `json:"deleted_by,omitempty"`
	DeletionReason string        `json:"deletion_reason,omitempty"`
	CreatedBy      string        `json:"created_by"`
	OwnerID        string        `json:"owner_id,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	ViewCount      int64         `json:"view_count"`
	LastAccessedAt *time.Time    `json:"last_accessed_at,omitempty"`
	Steps          []ProcessStep `json:"steps"`
	Tags           []ProcessTag  `json:"tags"`
}

// IsCreatorOrOwner reports whether userID created or owns the process
func (p *Process) IsCreatorOrOwner(userID string) bool {
	if userID == "" {
		return false
	}
	return p.CreatedBy == userID || (p.OwnerID != "" && p.OwnerID == userID)
}

// TagNames returns the tag names in stored order
func (p *Process) TagNames() []string {
	names := make([]string, 0, len(p.Tags))
	for _, t := range p.Tags {
		names = append(names, t.Name)
	}
	return names
}

// ProcessStep is one step of a process. Sub-steps reference their parent by
// index into the same ordered slice.
type ProcessStep struct {
	ID                       int64    `json:"id,omitempty"`
	ProcessID                int64    `json:"process_id,omitempty"`
	Title                    string   `json:"title"`
	Description              string   `json:"description"`
	DetailedInstructions     string   `json:"detailed_instructions,omitempty"`
	OrderIndex               int      `json:"order_index"`
	StepType                 StepType `json:"step_type"`
	ResponsibleRole          string   `json:"responsible_role,omitempty"`
	EstimatedDurationMinutes *int     `json:"estimated_duration_minutes,omitempty"`
	IsOptional               bool     `json:"is_optional"`
	ParentIndex              *int     `json:"parent_index,omitempty"`
}

// ProcessTag labels a process
type ProcessTag struct {
	ID        int64  `json:"id,omitempty"`
	ProcessID int64  `json:"process_id,omitempty"`
	Name      string `json:"name"`
	Color     string `json:"color"`
}

var tagPalette = []string{"#007bff", "#28a745", "#dc3545", "#ffc107", "#17a2b8", "#6f42c1"}

// TagColor derives a stable palette color from a tag name
func TagColor(name string) string {
	h := fnv.New32a()
	h.Write([]byte(name))
	return tagPalette[h.Sum32()%uint32(len(tagPalette))]
}

// NewTags builds tag rows from names, skipping blanks and duplicates
func NewTags(names []string) []ProcessTag {
	seen := make(map[string]bool, len(names))
	tags := make([]ProcessTag, 0, len(names))
	for _, name := range names {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		tags = append(tags, ProcessTag{Name: name, Color: TagColor(name)})
	}
	return tags
}

// ValidateSteps checks step types and the parent-index arena
func ValidateSteps(steps []ProcessStep) error {
	for i, s := range steps {
		if s.Title == "" {
			return fmt.Errorf("step %d: title is required", i)
		}
		if s.StepType != "" && !s.StepType.IsValid() {
			return fmt.Errorf("step %d: invalid step type %q", i, s.StepType)
		}
		if s.ParentIndex != nil {
			p := *s.ParentIndex
			if p < 0 || p >= len(steps) {
				return fmt.Errorf("step %d: parent index %d out of range", i, p)
			}
			if p == i {
				return fmt.Errorf("step %d: step cannot be its own parent", i)
			}
		}
	}
	return nil
}

// NormalizeSteps returns a copy with defaulted step types and order indexes matching slice position
func NormalizeSteps(steps []ProcessStep) []ProcessStep {
	out := make([]ProcessStep, len(steps))
	for i, s := range steps {
		s.ID = 0
		s.ProcessID = 0
		s.OrderIndex = i
		if s.StepType == "" {
			s.StepType = StepAction
		}
		out[i] = s
	}
	return out
}
