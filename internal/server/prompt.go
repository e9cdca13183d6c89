// ABOUTME: HTTP handler proxying prompt requests to AI chat-completion APIs
// ABOUTME: Resolves API keys from the request body or stored settings

package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/trelliswork/ticketd/internal/llm"
	"github.com/trelliswork/ticketd/internal/store"
)

// PromptRequest is the JSON request body for POST /api/ai/prompt.
type PromptRequest struct {
	Provider string        `json:"provider"`
	Model    string        `json:"model"`
	System   string        `json:"system"`
	Messages []llm.Message `json:"messages"`
	APIKey   string        `json:"apiKey"`
}

// PromptResponse is the JSON response for POST /api/ai/prompt.
type PromptResponse struct {
	OK      bool            `json:"ok"`
	Content string          `json:"content"`
	Usage   json.RawMessage `json:"usage,omitempty"`
}

// resolveAPIKey finds the key for the chosen provider. OpenAI keys come
// exclusively from settings; Anthropic accepts a request-supplied key
// first, then falls back to settings.
func (s *Server) resolveAPIKey(r *http.Request, req *PromptRequest) (string, string, error) {
	if req.Provider == llm.ProviderOpenAI {
		key, err := s.store.GetSetting(r.Context(), store.SettingOpenAIKey)
		if errors.Is(err, store.ErrNotFound) {
			return "", "No OpenAI API key configured. Set openai_api_key in settings.", nil
		}
		if err != nil {
			return "", "", err
		}
		return key, "", nil
	}

	if req.APIKey != "" {
		return req.APIKey, "", nil
	}
	key, err := s.store.GetSetting(r.Context(), store.SettingAnthropicKey)
	if errors.Is(err, store.ErrNotFound) {
		return "", "No Anthropic API key configured. Supply apiKey in the request or set anthropic_api_key in settings.", nil
	}
	if err != nil {
		return "", "", err
	}
	return key, "", nil
}

// handlePrompt handles POST /api/ai/prompt requests. Exactly one
// upstream call per request; the three outcomes are missing-key (400),
// upstream error (mirrored status, 500 on transport failure) and
// success.
func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req PromptRequest
	if err := decodeBody(r, &req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if len(req.Messages) == 0 {
		s.sendJSONError(w, http.StatusBadRequest, "messages is required")
		return
	}

	key, missingMsg, err := s.resolveAPIKey(r, &req)
	if err != nil {
		s.logger.Error("failed to resolve API key", "provider", req.Provider, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if missingMsg != "" {
		s.sendJSONError(w, http.StatusBadRequest, missingMsg)
		return
	}

	result, err := s.llm.Complete(r.Context(), llm.Request{
		Provider: req.Provider,
		Model:    req.Model,
		System:   req.System,
		Messages: req.Messages,
		APIKey:   key,
	})
	if err != nil {
		var upstreamErr *llm.UpstreamError
		if errors.As(err, &upstreamErr) {
			s.sendJSONError(w, upstreamErr.StatusCode, upstreamErr.Message)
			return
		}
		s.logger.Error("prompt request failed", "provider", req.Provider, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.sendJSON(w, http.StatusOK, PromptResponse{
		OK:      true,
		Content: result.Content,
		Usage:   result.Usage,
	})
}
