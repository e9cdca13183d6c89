// ABOUTME: Store interface and data types for ticketd persistence
// ABOUTME: Defines Ticket, ActivityEntry, Snapshot and the Store interface

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateTicket is returned when trying to create a ticket whose id is taken
var ErrDuplicateTicket = errors.New("ticket already exists")

// Defaults applied to absent fields on ticket creation.
const (
	DefaultType     = "feature"
	DefaultPriority = "medium"
	DefaultStatus   = "open"
)

// ActivityRetention is the maximum number of activity entries kept by the
// SQLite backend. Appends trim older rows beyond this bound.
const ActivityRetention = 100

// Known settings keys.
const (
	SettingTheme        = "theme"
	SettingAnthropicKey = "anthropic_api_key"
	SettingOpenAIKey    = "openai_api_key"
)

// Ticket represents a work item. IDs are caller-supplied and unique.
type Ticket struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Type        string    `json:"type"`
	Priority    string    `json:"priority"`
	Status      string    `json:"status"`
	Area        string    `json:"area"`
	Subarea     string    `json:"subarea"`
	Assignee    string    `json:"assignee"`
	Files       string    `json:"files"` // opaque caller-defined encoding
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TicketPatch carries a partial ticket update. Nil fields are left untouched.
type TicketPatch struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Type        *string `json:"type"`
	Priority    *string `json:"priority"`
	Status      *string `json:"status"`
	Area        *string `json:"area"`
	Subarea     *string `json:"subarea"`
	Assignee    *string `json:"assignee"`
	Files       *string `json:"files"`
}

// ActivityEntry is an append-only log record describing a ticket mutation.
// Seq is the internal insertion-order key and is not exposed over the API.
type ActivityEntry struct {
	Seq      int64     `json:"-"`
	Action   string    `json:"action"`
	TicketID *string   `json:"ticketId"`
	Title    string    `json:"title"`
	Time     time.Time `json:"time"`
}

// Snapshot is a caller-supplied whole-state replacement for full sync.
type Snapshot struct {
	Tickets  []*Ticket
	Activity []*ActivityEntry
}

// Data is the assembled state returned by GET /api/data.
// The SQLite backend always reports empty KBNotes; the file backend
// round-trips whatever document the caller last wrote.
type Data struct {
	Tickets  []*Ticket        `json:"tickets"`
	Activity []*ActivityEntry `json:"activity"`
	KBNotes  json.RawMessage  `json:"kbNotes"`
}

// Store defines persistence operations for tickets, activity and settings.
// Implemented by SQLiteStore (relational) and FileStore (flat JSON files).
type Store interface {
	// Tickets
	ListTickets(ctx context.Context) ([]*Ticket, error)
	GetTicket(ctx context.Context, id string) (*Ticket, error)
	InsertTicket(ctx context.Context, t *Ticket) error
	UpdateTicket(ctx context.Context, id string, patch TicketPatch) (*Ticket, error)
	DeleteTicket(ctx context.Context, id string) error

	// Activity log
	ListActivity(ctx context.Context) ([]*ActivityEntry, error)
	AppendActivity(ctx context.Context, e *ActivityEntry) error

	// Whole-state operations
	GetData(ctx context.Context) (*Data, error)
	ReplaceAll(ctx context.Context, snap *Snapshot) error
	DeleteAllTickets(ctx context.Context) error
	DeleteAllActivity(ctx context.Context) error

	// Settings
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
	ListSettings(ctx context.Context) (map[string]string, error)

	// Close releases any resources held by the store
	Close() error
}

// ApplyDefaults fills absent ticket fields with the documented creation
// defaults and stamps CreatedAt/UpdatedAt to the same instant when unset.
func (t *Ticket) ApplyDefaults(now time.Time) {
	if t.Type == "" {
		t.Type = DefaultType
	}
	if t.Priority == "" {
		t.Priority = DefaultPriority
	}
	if t.Status == "" {
		t.Status = DefaultStatus
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
}

// Apply merges non-nil patch fields over the ticket.
func (p TicketPatch) Apply(t *Ticket) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Area != nil {
		t.Area = *p.Area
	}
	if p.Subarea != nil {
		t.Subarea = *p.Subarea
	}
	if p.Assignee != nil {
		t.Assignee = *p.Assignee
	}
	if p.Files != nil {
		t.Files = *p.Files
	}
}
