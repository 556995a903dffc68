// Package http exposes the meeting coordinator over JSON HTTP.
//
// The router serves the following endpoints:
//   - POST /meetings: creates a meeting owned by the bearer token's user. Body:
//     {"title","description","timeSlots","deadline"}. Response: {"success","meetingId","message"}.
//   - GET /meetings/{id}: returns {"success","meeting","participants"}. No authentication.
//   - PUT /meetings/{id}: host only. Any subset of {"title","description","deadline","status"};
//     "status":"confirmed" also takes "confirmedDateTime" and an optional "confirmedReason".
//   - POST /meetings/{id}/availability: {"userName","schedule"}. A bearer token is optional; without a
//     valid one the participant is keyed by name.
//   - POST /meetings/{id}/suggest: host only. {"hostInstructions"} is optional. Confirms the meeting
//     with the suggested slot and spends one suggestion.
//   - GET /meetings/{id}/events: websocket feed of meeting events as JSON text frames.
//   - GET /meetings/{id}/calendar.ics: iCalendar export of a confirmed meeting.
//   - POST /calendar/busy-times, POST /calendar/auth-url, POST /calendar/token: calendar import.
//   - GET /metrics: Prometheus exposition.
//
// OPTIONS on any route answers 200 without a body. Errors are {"error","code"}; see responder.go for
// the mapping from application errors.
package http
