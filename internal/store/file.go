// ABOUTME: Flat-file implementation of the Store interface over two JSON documents
// ABOUTME: data.json holds tickets/activity/kbNotes, settings.json holds settings

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Fixed filenames inside the data directory.
const (
	DataFileName     = "data.json"
	SettingsFileName = "settings.json"
)

// FileStore implements the Store interface over two flat JSON documents,
// each read and rewritten wholesale. It is the fallback backend for when
// SQLite is unavailable or unwanted.
//
// Known gaps, inherited from the original flat-file design and kept on
// purpose: writes overwrite the file directly with no write-then-rename
// crash protection, the activity log is never trimmed, and concurrent
// writers are last-write-wins. The mutex below only serializes writers
// within this process; it does not change the last-write-wins outcome.
type FileStore struct {
	mu           sync.Mutex
	dataPath     string
	settingsPath string
	logger       *slog.Logger
}

// dataDocument is the on-disk shape of data.json.
type dataDocument struct {
	Tickets  []*Ticket        `json:"tickets"`
	Activity []*ActivityEntry `json:"activity"`
	KBNotes  json.RawMessage  `json:"kbNotes"`
}

// NewFileStore creates a file store rooted at the given directory.
// The directory is created if needed; the documents themselves are
// created lazily on first write.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	logger := slog.Default().With("component", "filestore")
	logger.Info("file store initialized", "dir", dir)

	return &FileStore{
		dataPath:     filepath.Join(dir, DataFileName),
		settingsPath: filepath.Join(dir, SettingsFileName),
		logger:       logger,
	}, nil
}

// Close is a no-op; the file store holds no open resources.
func (s *FileStore) Close() error {
	return nil
}

// readData loads data.json, returning the default empty shape if the
// file does not exist.
func (s *FileStore) readData() (*dataDocument, error) {
	raw, err := os.ReadFile(s.dataPath)
	if os.IsNotExist(err) {
		return &dataDocument{
			Tickets:  []*Ticket{},
			Activity: []*ActivityEntry{},
			KBNotes:  []byte("{}"),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading data file: %w", err)
	}

	var doc dataDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing data file: %w", err)
	}
	if doc.Tickets == nil {
		doc.Tickets = []*Ticket{}
	}
	if doc.Activity == nil {
		doc.Activity = []*ActivityEntry{}
	}
	if len(doc.KBNotes) == 0 {
		doc.KBNotes = []byte("{}")
	}
	return &doc, nil
}

// writeData rewrites data.json wholesale. Direct overwrite, no rename.
func (s *FileStore) writeData(doc *dataDocument) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding data file: %w", err)
	}
	if err := os.WriteFile(s.dataPath, raw, 0644); err != nil {
		return fmt.Errorf("writing data file: %w", err)
	}
	return nil
}

// readSettings loads settings.json, returning an empty map if absent.
func (s *FileStore) readSettings() (map[string]string, error) {
	raw, err := os.ReadFile(s.settingsPath)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading settings file: %w", err)
	}

	var settings map[string]string
	if err := json.Unmarshal(raw, &settings); err != nil {
		return nil, fmt.Errorf("parsing settings file: %w", err)
	}
	if settings == nil {
		settings = map[string]string{}
	}
	return settings, nil
}

// writeSettings rewrites settings.json wholesale.
func (s *FileStore) writeSettings(settings map[string]string) error {
	raw, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding settings file: %w", err)
	}
	if err := os.WriteFile(s.settingsPath, raw, 0644); err != nil {
		return fmt.Errorf("writing settings file: %w", err)
	}
	return nil
}

// ListTickets returns all tickets ordered by creation time, newest first.
func (s *FileStore) ListTickets(ctx context.Context) ([]*Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readData()
	if err != nil {
		return nil, err
	}

	tickets := make([]*Ticket, len(doc.Tickets))
	copy(tickets, doc.Tickets)
	sort.SliceStable(tickets, func(i, j int) bool {
		return tickets[i].CreatedAt.After(tickets[j].CreatedAt)
	})
	return tickets, nil
}

// GetTicket retrieves a ticket by ID.
// Returns ErrNotFound if the ticket doesn't exist.
func (s *FileStore) GetTicket(ctx context.Context, id string) (*Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readData()
	if err != nil {
		return nil, err
	}
	for _, t := range doc.Tickets {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, ErrNotFound
}

// InsertTicket appends a new ticket to the document, applying creation
// defaults. Returns ErrDuplicateTicket if the id is already in use.
func (s *FileStore) InsertTicket(ctx context.Context, t *Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readData()
	if err != nil {
		return err
	}
	for _, existing := range doc.Tickets {
		if existing.ID == t.ID {
			return ErrDuplicateTicket
		}
	}

	t.ApplyDefaults(time.Now().UTC())
	doc.Tickets = append(doc.Tickets, t)

	if err := s.writeData(doc); err != nil {
		return err
	}
	s.logger.Debug("created ticket", "id", t.ID, "title", t.Title)
	return nil
}

// UpdateTicket merges the patch over the stored ticket and refreshes
// updatedAt. Returns ErrNotFound if the ticket doesn't exist.
func (s *FileStore) UpdateTicket(ctx context.Context, id string, patch TicketPatch) (*Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readData()
	if err != nil {
		return nil, err
	}

	for _, t := range doc.Tickets {
		if t.ID != id {
			continue
		}
		patch.Apply(t)
		t.UpdatedAt = time.Now().UTC()
		if err := s.writeData(doc); err != nil {
			return nil, err
		}
		s.logger.Debug("updated ticket", "id", id)
		return t, nil
	}
	return nil, ErrNotFound
}

// DeleteTicket removes a ticket by ID.
// Returns ErrNotFound if the ticket doesn't exist.
func (s *FileStore) DeleteTicket(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readData()
	if err != nil {
		return err
	}

	for i, t := range doc.Tickets {
		if t.ID == id {
			doc.Tickets = append(doc.Tickets[:i], doc.Tickets[i+1:]...)
			if err := s.writeData(doc); err != nil {
				return err
			}
			s.logger.Debug("deleted ticket", "id", id)
			return nil
		}
	}
	return ErrNotFound
}

// ListActivity returns the stored activity entries, newest first.
// Unlike the SQLite backend, the file backend returns whatever the
// caller last wrote, with no retention cap.
func (s *FileStore) ListActivity(ctx context.Context) ([]*ActivityEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readData()
	if err != nil {
		return nil, err
	}

	entries := make([]*ActivityEntry, len(doc.Activity))
	for i, e := range doc.Activity {
		entries[len(doc.Activity)-1-i] = e
	}
	return entries, nil
}

// AppendActivity appends an entry to the document. No trimming.
func (s *FileStore) AppendActivity(ctx context.Context, e *ActivityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readData()
	if err != nil {
		return err
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	doc.Activity = append(doc.Activity, e)
	return s.writeData(doc)
}

// GetData returns the whole data document as last written.
func (s *FileStore) GetData(ctx context.Context) (*Data, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readData()
	if err != nil {
		return nil, err
	}
	return &Data{
		Tickets:  doc.Tickets,
		Activity: doc.Activity,
		KBNotes:  doc.KBNotes,
	}, nil
}

// ReplaceAll overwrites the ticket and activity collections wholesale,
// preserving kbNotes. No atomicity beyond the single file write.
func (s *FileStore) ReplaceAll(ctx context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readData()
	if err != nil {
		return err
	}

	if snap.Tickets != nil {
		doc.Tickets = snap.Tickets
	}
	if snap.Activity != nil {
		doc.Activity = snap.Activity
	}
	return s.writeData(doc)
}

// DeleteAllTickets clears the tickets collection.
func (s *FileStore) DeleteAllTickets(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readData()
	if err != nil {
		return err
	}
	doc.Tickets = []*Ticket{}
	return s.writeData(doc)
}

// DeleteAllActivity clears the activity collection.
func (s *FileStore) DeleteAllActivity(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readData()
	if err != nil {
		return err
	}
	doc.Activity = []*ActivityEntry{}
	return s.writeData(doc)
}

// GetSetting retrieves a setting value by key.
// Returns ErrNotFound if the key is not set.
func (s *FileStore) GetSetting(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.readSettings()
	if err != nil {
		return "", err
	}
	value, ok := settings[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

// SetSetting inserts or overwrites a setting.
func (s *FileStore) SetSetting(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.readSettings()
	if err != nil {
		return err
	}
	settings[key] = value
	return s.writeSettings(settings)
}

// DeleteSetting removes a setting by key. Deleting an absent key is a no-op.
func (s *FileStore) DeleteSetting(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.readSettings()
	if err != nil {
		return err
	}
	delete(settings, key)
	return s.writeSettings(settings)
}

// ListSettings returns all settings as a key/value map.
func (s *FileStore) ListSettings(ctx context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.readSettings()
}

// Ensure FileStore implements Store interface
var _ Store = (*FileStore)(nil)
