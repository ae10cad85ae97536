// Package api implements the HTTP REST API and WebSocket server for HydroCore.
//
// This package provides:
//   - Direct control endpoints (pumps, relay, tank procedures) that reject
//     with 409 while another operation holds the gate
//   - Job endpoints for submitting, polling and cancelling long procedures
//   - WebSocket hub broadcasting job lifecycle events
//   - Optional HS256 bearer authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS)
//
// # Architecture
//
// The server is a thin translation layer. Direct calls go through the
// controller package and run to completion inside the request; the request
// context is handed down, so a client that disconnects cancels the procedure
// and its actuators are switched off. Long procedures should be submitted as
// jobs instead.
//
// # Security
//
// When security.jwt.secret is empty every route is open. When it is set, the
// /api/v1 routes other than /health require "Authorization: Bearer <token>"
// and the WebSocket endpoint requires a single-use ticket from
// POST /api/v1/auth/ws-ticket.
package api
