// Package http exposes the room scheduler over a JSON API routed by chi.
//
// Endpoints:
//   - GET /health: liveness probe.
//   - POST /api/auth/register: creates an account from {"name","email","password"}.
//   - POST /api/auth/login: accepts {"email","password"} as JSON or username and
//     password as a form and answers {"access_token","token_type","expires_at"}.
//     The token is also set as the session_token cookie.
//   - POST /api/auth/refresh: rotates the presented token.
//   - POST /api/auth/logout, GET /api/auth/me: revoke the token, describe the caller.
//   - /api/rooms and /api/rooms/{roomID}: room registry CRUD plus /activate,
//     /deactivate, /availability?start=&end= and /busy?from=&to=.
//   - /api/reservations and /api/reservations/{reservationID}: booking CRUD and a
//     listing filtered by room_id, responsible, from and to.
//
// Every /api route other than register, login and refresh sits behind
// RequireSession. The resolved principal is forwarded to the services for
// audit logging; it never changes what an operation is allowed to do.
//
// Timestamps are RFC 3339 with an explicit offset on input and UTC on output.
// Request and response DTOs live next to their handlers.
package http
