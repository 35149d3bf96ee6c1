package api

import "time"

// HeaderClientID carries the stream client id of the requester so its own
// changes are not echoed back to it.
const HeaderClientID = "X-Client-ID"

const requestMaxSize = 64 * 1024 // 64 KiB

const (
	DefaultStreamWriteTimeout = 5 * time.Second
	DefaultStreamKeepAlive    = 25 * time.Second
)

// StreamConfig tunes the event stream endpoint.
type StreamConfig struct {
	// Buffer is the per-client frame queue size.
	Buffer int
	// WriteTimeout bounds a single frame write; zero disables the deadline.
	WriteTimeout time.Duration
	// KeepAlive is the interval between comment frames; zero disables them.
	KeepAlive time.Duration
}

// /POST /tasks request body
type createTaskRequest struct {
	Content string `json:"content"`
}

// error response body for every non-2xx answer
type errorResponse struct {
	Message string `json:"message"`
}

// /GET /healthz response body
type healthResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
}
