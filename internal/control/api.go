// Package control exposes the running daemon over a small JSON HTTP API and
// provides the client the CLI uses to reach it.
package control

import (
	"time"

	"github.com/Iron-Ham/autoproducer/internal/pipeline"
	"github.com/Iron-Ham/autoproducer/internal/resource"
)

// DefaultAddr is where the daemon listens unless configured otherwise.
const DefaultAddr = "127.0.0.1:8765"

// ActionRequest is the body of the POST endpoints. Channel selects a
// production preset and is only read by POST /trigger.
type ActionRequest struct {
	Reason  string `json:"reason,omitempty"`
	Channel string `json:"channel,omitempty"`
}

// ActionResponse acknowledges a POST.
type ActionResponse struct {
	Accepted bool   `json:"accepted"`
	RunID    string `json:"run_id,omitempty"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Pipeline       pipeline.Snapshot `json:"pipeline"`
	NextFire       *time.Time        `json:"next_fire,omitempty"`
	ResourcePaused bool              `json:"resource_paused"`
	Resources      []resource.Sample `json:"resources,omitempty"`
}
