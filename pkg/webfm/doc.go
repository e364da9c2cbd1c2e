// Package webfm exposes a client for the web file-management service found on
// portable players and similar devices. The service speaks a small form-based
// HTTP API (list, create, move, delete, upload, download) over a flat path
// namespace and offers no batch or transactional primitives; callers that need
// ordering guarantees compose this client with pkg/ensure and pkg/reload.
package webfm
