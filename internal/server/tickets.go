// ABOUTME: HTTP handlers for tickets, activity log and full-sync data
// ABOUTME: Translates JSON bodies into store operations and back

package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/trelliswork/ticketd/internal/store"
)

// ActivityRequest is the optional _activity side-effect object accepted
// by the ticket mutation endpoints.
type ActivityRequest struct {
	Action   string  `json:"action"`
	TicketID *string `json:"ticketId"`
	Title    string  `json:"title"`
}

// CreateTicketRequest is the JSON request body for POST /api/tickets.
type CreateTicketRequest struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Type        string           `json:"type"`
	Priority    string           `json:"priority"`
	Status      string           `json:"status"`
	Area        string           `json:"area"`
	Subarea     string           `json:"subarea"`
	Assignee    string           `json:"assignee"`
	Files       string           `json:"files"`
	Activity    *ActivityRequest `json:"_activity"`
}

// UpdateTicketRequest is the JSON request body for PUT /api/tickets/:id.
// Nil fields are left untouched on the stored ticket.
type UpdateTicketRequest struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Type        *string          `json:"type"`
	Priority    *string          `json:"priority"`
	Status      *string          `json:"status"`
	Area        *string          `json:"area"`
	Subarea     *string          `json:"subarea"`
	Assignee    *string          `json:"assignee"`
	Files       *string          `json:"files"`
	Activity    *ActivityRequest `json:"_activity"`
}

// DeleteTicketRequest is the JSON request body for DELETE /api/tickets/:id.
type DeleteTicketRequest struct {
	Activity *ActivityRequest `json:"_activity"`
}

// DataResponse is the JSON response for GET /api/data.
type DataResponse struct {
	Tickets  []*store.Ticket        `json:"tickets"`
	Activity []*store.ActivityEntry `json:"activity"`
	KBNotes  json.RawMessage        `json:"kbNotes"`
}

// PutDataRequest is the JSON request body for PUT /api/data. Absent
// collections are left as they are.
type PutDataRequest struct {
	Tickets  []*store.Ticket        `json:"tickets"`
	Activity []*store.ActivityEntry `json:"activity"`
}

// DeleteTicketResponse is the JSON response for DELETE /api/tickets/:id.
type DeleteTicketResponse struct {
	OK      bool   `json:"ok"`
	Deleted string `json:"deleted"`
}

// decodeBody decodes a JSON request body into v. An empty body is
// treated as an empty object. Malformed JSON returns an error.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// appendActivity records a client-supplied activity entry as a side
// effect of a ticket mutation. Failures are logged, not surfaced; the
// primary mutation has already landed.
func (s *Server) appendActivity(r *http.Request, req *ActivityRequest) {
	if req == nil {
		return
	}
	entry := &store.ActivityEntry{
		Action:   req.Action,
		TicketID: req.TicketID,
		Title:    req.Title,
		Time:     time.Now().UTC(),
	}
	if err := s.store.AppendActivity(r.Context(), entry); err != nil {
		s.logger.Error("failed to append activity entry", "action", req.Action, "error", err)
	}
}

// handleGetData handles GET /api/data requests.
func (s *Server) handleGetData(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	data, err := s.store.GetData(r.Context())
	if err != nil {
		s.logger.Error("failed to load data", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := DataResponse{
		Tickets:  data.Tickets,
		Activity: data.Activity,
		KBNotes:  data.KBNotes,
	}
	if resp.Tickets == nil {
		resp.Tickets = []*store.Ticket{}
	}
	if resp.Activity == nil {
		resp.Activity = []*store.ActivityEntry{}
	}
	if len(resp.KBNotes) == 0 {
		resp.KBNotes = json.RawMessage("{}")
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// handlePutData handles PUT /api/data requests. The replacement is
// atomic on the SQLite backend: a concurrent reader sees either the old
// state or the new one, never a mix.
func (s *Server) handlePutData(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req PutDataRequest
	if err := decodeBody(r, &req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	snap := &store.Snapshot{Tickets: req.Tickets, Activity: req.Activity}
	if err := s.store.ReplaceAll(r.Context(), snap); err != nil {
		s.logger.Error("full sync failed", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleListTickets handles GET /api/tickets requests.
func (s *Server) handleListTickets(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	tickets, err := s.store.ListTickets(r.Context())
	if err != nil {
		s.logger.Error("failed to list tickets", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if tickets == nil {
		tickets = []*store.Ticket{}
	}
	s.sendJSON(w, http.StatusOK, tickets)
}

// handleCreateTicket handles POST /api/tickets requests.
func (s *Server) handleCreateTicket(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req CreateTicketRequest
	if err := decodeBody(r, &req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.ID == "" {
		s.sendJSONError(w, http.StatusBadRequest, "id is required")
		return
	}
	if req.Title == "" {
		s.sendJSONError(w, http.StatusBadRequest, "title is required")
		return
	}

	ticket := &store.Ticket{
		ID:          req.ID,
		Title:       req.Title,
		Description: req.Description,
		Type:        req.Type,
		Priority:    req.Priority,
		Status:      req.Status,
		Area:        req.Area,
		Subarea:     req.Subarea,
		Assignee:    req.Assignee,
		Files:       req.Files,
	}
	ticket.ApplyDefaults(time.Now().UTC())

	if err := s.store.InsertTicket(r.Context(), ticket); err != nil {
		if errors.Is(err, store.ErrDuplicateTicket) {
			s.sendJSONError(w, http.StatusConflict, "ticket already exists: "+req.ID)
			return
		}
		s.logger.Error("failed to insert ticket", "id", req.ID, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.appendActivity(r, req.Activity)
	s.sendJSON(w, http.StatusCreated, ticket)
}

// handleUpdateTicket handles PUT /api/tickets/:id requests. Only the
// supplied fields change; everything else keeps its stored value.
func (s *Server) handleUpdateTicket(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var req UpdateTicketRequest
	if err := decodeBody(r, &req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	patch := store.TicketPatch{
		Title:       req.Title,
		Description: req.Description,
		Type:        req.Type,
		Priority:    req.Priority,
		Status:      req.Status,
		Area:        req.Area,
		Subarea:     req.Subarea,
		Assignee:    req.Assignee,
		Files:       req.Files,
	}

	ticket, err := s.store.UpdateTicket(r.Context(), params["id"], patch)
	if errors.Is(err, store.ErrNotFound) {
		s.sendJSONError(w, http.StatusNotFound, "Ticket not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to update ticket", "id", params["id"], "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.appendActivity(r, req.Activity)
	s.sendJSON(w, http.StatusOK, ticket)
}

// handleDeleteTicket handles DELETE /api/tickets/:id requests.
func (s *Server) handleDeleteTicket(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var req DeleteTicketRequest
	if err := decodeBody(r, &req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	err := s.store.DeleteTicket(r.Context(), params["id"])
	if errors.Is(err, store.ErrNotFound) {
		s.sendJSONError(w, http.StatusNotFound, "Ticket not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to delete ticket", "id", params["id"], "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.appendActivity(r, req.Activity)
	s.sendJSON(w, http.StatusOK, DeleteTicketResponse{OK: true, Deleted: params["id"]})
}

// handleListActivity handles GET /api/activity requests. Entries come
// back newest-first, at most the retention window on the SQLite backend.
func (s *Server) handleListActivity(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	entries, err := s.store.ListActivity(r.Context())
	if err != nil {
		s.logger.Error("failed to list activity", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []*store.ActivityEntry{}
	}
	s.sendJSON(w, http.StatusOK, entries)
}
