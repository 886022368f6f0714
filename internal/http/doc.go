// Package http provides HTTP handlers and middleware for the booking API.
//
// The router exposes the following endpoints:
//   - POST /bookings: runs a booking request through qualification, host
//     attribution and the slot claim. Responds 201 with the pending booking
//     and its confirmation URL, or 200 with {"qualified":false} when the
//     lead is disqualified.
//   - GET /confirm?token=...: confirms a pending booking. Responds 410 when
//     the confirmation window has lapsed and 404 for unknown tokens.
//   - POST /bookings/{id}/cancel: cancels a booking. Idempotent; responds
//     204 No Content.
//   - POST /bookings/{id}/reschedule: moves a confirmed booking to a new
//     instant, returning a fresh confirmation URL.
//   - POST /jobs/reap-expired, POST /jobs/dispatch-notifications: idempotent
//     batch triggers invoked by an external scheduler.
//
// Request/response DTOs live alongside their respective handlers so tests and
// documentation share the same ground truth.
package http
