// Package llm issues chat-completion requests to Anthropic and OpenAI.
//
// # Overview
//
// The package is a thin outbound HTTP client. It never resolves API
// keys itself; callers pass an already-resolved key with each request.
// Exactly one upstream POST happens per Complete call. There are no
// retries and no streaming.
//
// # Providers
//
// Anthropic (default): POST to /v1/messages with the x-api-key header
// and a fixed anthropic-version. The system prompt is a top-level
// field.
//
// OpenAI: POST to /v1/chat/completions with a Bearer token. The system
// prompt becomes a leading message with role "system".
//
// # Errors
//
// Non-2xx upstream statuses surface as *UpstreamError carrying the
// provider's status code and error message, so handlers can mirror the
// status to their own caller. Transport failures surface as ordinary
// wrapped errors.
//
// # Testing
//
// AnthropicURL and OpenAIURL are exported fields so tests can point the
// client at an httptest server.
package llm
