package resource

import "time"

// Action is what the monitor did in response to a sample.
type Action string

const (
	ActionNone   Action = "none"
	ActionPause  Action = "pause"
	ActionResume Action = "resume"
)

// String returns the string representation of the action.
func (a Action) String() string {
	return string(a)
}

// Sample is one host reading and the action taken for it.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	CPUPct    float64   `json:"cpu_pct"`
	RAMPct    float64   `json:"ram_pct"`
	Action    Action    `json:"action"`
}

// Decision is the result of evaluating the policy against one reading.
type Decision struct {
	Action Action

	// Reason is a human-readable explanation, empty for ActionNone.
	Reason string
}
