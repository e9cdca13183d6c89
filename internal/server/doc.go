// Package server exposes the ticketd HTTP API.
//
// # Overview
//
// A single Server value owns the route table, the storage backend and
// the optional AI prompt client. Routing is a pure match over method
// and path; patterns use :name segments for path parameters. CORS
// headers go on every response and OPTIONS preflights answer 204
// before routing happens.
//
// # Endpoints
//
//	GET    /                   index.html from the web directory
//	GET    /api/data           full {tickets, activity, kbNotes} document
//	PUT    /api/data           wholesale replacement (full sync)
//	GET    /api/tickets        all tickets, newest first
//	POST   /api/tickets        create, caller supplies the id
//	PUT    /api/tickets/:id    partial update
//	DELETE /api/tickets/:id    delete
//	GET    /api/activity       recent activity, newest first
//	GET    /api/settings       settings with secrets masked
//	PUT    /api/settings       upsert, empty value deletes the key
//	POST   /api/ai/prompt      chat-completion proxy (sqlite driver only)
//	GET    /health             status snapshot
//
// Unmatched requests get a JSON 404.
//
// # Serving Modes
//
// Run listens on plain TCP, or joins a tailnet via tsnet when the
// tailscale config block is enabled. Shutdown is graceful with a five
// second deadline.
package server
