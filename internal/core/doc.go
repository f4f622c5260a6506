// Package core is the application layer between transports and the data
// engine.
//
// It holds no data logic of its own. [Service] owns the session registry
// and gives each request exclusive access to its session, so the web
// handlers and any other caller never touch a session concurrently.
//
// # Uploads
//
// [Service.Upload] spools the request body to a temporary file under the
// upload directory, enforcing the size limit as it copies, and opens a
// session on it. Parsing is throttled by [UploadLimiter]; when every slot
// is busy for too long the upload fails with [ErrTooManyUploads].
//
// # Audit
//
// Every committed change (apply, merge, undo, redo, reset) plus session
// creation, export and close is written to the audit recorder together
// with the client IP, User-Agent and request id carried on the context
// (see [ContextWithIPAddress]).
//
// # Error Handling
//
// Engine errors are mapped to user-facing messages and HTTP statuses by
// [MapError] and [HTTPStatus]. Codes are grouped by category:
//
//   - FILE001-FILE005: upload and parsing
//   - OP001-OP004: operation requests
//   - HIST001-HIST002: undo and redo
//   - CLU001: clustering
//   - SES001-SES002: session lifecycle
//   - UPL001-UPL003: throttling and cancellation
package core
