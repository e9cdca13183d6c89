// ABOUTME: HTTP handlers for the key/value settings store
// ABOUTME: Masks secret API keys on read, deletes keys set to empty

package server

import (
	"net/http"
	"strings"

	"github.com/trelliswork/ticketd/internal/store"
)

// secretSettings are returned masked from GET /api/settings.
var secretSettings = map[string]bool{
	store.SettingAnthropicKey: true,
	store.SettingOpenAIKey:    true,
}

// maskSecret reduces a secret to a prefix-and-last-four hint, e.g.
// "sk-ant-•••abcd". Values too short to show anything safely collapse
// to the mask alone.
func maskSecret(v string) string {
	if len(v) <= 11 {
		return "••••"
	}
	return v[:7] + "•••" + v[len(v)-4:]
}

// handleGetSettings handles GET /api/settings requests. Secret values
// never leave the server whole.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	settings, err := s.store.ListSettings(r.Context())
	if err != nil {
		s.logger.Error("failed to list settings", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := make(map[string]string, len(settings))
	for key, value := range settings {
		if secretSettings[key] {
			resp[key] = maskSecret(value)
			continue
		}
		resp[key] = value
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// handlePutSettings handles PUT /api/settings requests. Each supplied
// key is upserted; an empty string value deletes the key, which is how
// clients clear a stored API key.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req map[string]string
	if err := decodeBody(r, &req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	for key, value := range req {
		if strings.TrimSpace(value) == "" {
			if err := s.store.DeleteSetting(r.Context(), key); err != nil {
				s.logger.Error("failed to delete setting", "key", key, "error", err)
				s.sendJSONError(w, http.StatusInternalServerError, err.Error())
				return
			}
			continue
		}
		if err := s.store.SetSetting(r.Context(), key, value); err != nil {
			s.logger.Error("failed to set setting", "key", key, "error", err)
			s.sendJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	s.sendJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
