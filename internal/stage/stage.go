// Package stage defines the static description of a pipeline stage and the
// uniform result every stage invocation produces.
package stage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Criticality decides whether a failing stage abandons the attempt.
type Criticality string

const (
	// Required stages abandon the attempt on Error or Timeout.
	Required Criticality = "required"
	// Optional stages are logged and skipped with a neutral payload.
	Optional Criticality = "optional"
)

// ParseCriticality parses a case-insensitive criticality name.
func ParseCriticality(s string) (Criticality, error) {
	switch Criticality(strings.ToLower(strings.TrimSpace(s))) {
	case Required:
		return Required, nil
	case Optional:
		return Optional, nil
	}
	return "", fmt.Errorf("unknown criticality %q", s)
}

// Descriptor describes one stage. Descriptors are built once per pipeline
// configuration and never mutated.
type Descriptor struct {
	Name        string
	Ordinal     int
	Timeout     time.Duration
	Criticality Criticality
}

// IsRequired reports whether the stage is Required.
func (d Descriptor) IsRequired() bool { return d.Criticality == Required }

// Status is the outcome of one stage invocation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusTimeout Status = "timeout"
	StatusError   Status = "error"
	StatusStubbed Status = "stubbed"
)

// Failed reports whether the status counts as a stage failure.
func (s Status) Failed() bool {
	return s == StatusTimeout || s == StatusError
}

// Result is the immutable record of one stage invocation.
type Result struct {
	StageName   string        `json:"stage" yaml:"stage"`
	Ordinal     int           `json:"ordinal" yaml:"ordinal"`
	Attempt     int           `json:"attempt" yaml:"attempt"`
	Status      Status        `json:"status" yaml:"status"`
	Payload     any           `json:"-" yaml:"-"`
	Err         error         `json:"-" yaml:"-"`
	ErrorDetail string        `json:"error,omitempty" yaml:"error,omitempty"`
	Elapsed     time.Duration `json:"elapsed" yaml:"elapsed"`
}

// Func is the uniform contract every stage collaborator is adapted to: one
// input, one output or an error. Implementations should honor ctx.
type Func func(ctx context.Context, input any) (any, error)

// Validate checks a stage list: names must be unique and non-empty, ordinals
// unique and timeouts positive.
func Validate(descs []Descriptor) error {
	names := make(map[string]bool, len(descs))
	ordinals := make(map[int]bool, len(descs))
	for _, d := range descs {
		if d.Name == "" {
			return fmt.Errorf("stage at ordinal %d has no name", d.Ordinal)
		}
		if names[d.Name] {
			return fmt.Errorf("duplicate stage name %q", d.Name)
		}
		if ordinals[d.Ordinal] {
			return fmt.Errorf("duplicate ordinal %d (stage %q)", d.Ordinal, d.Name)
		}
		if d.Timeout <= 0 {
			return fmt.Errorf("stage %q: timeout must be positive", d.Name)
		}
		if d.Criticality != Required && d.Criticality != Optional {
			return fmt.Errorf("stage %q: unknown criticality %q", d.Name, d.Criticality)
		}
		names[d.Name] = true
		ordinals[d.Ordinal] = true
	}
	return nil
}

// Sorted returns a copy of descs ordered by ordinal.
func Sorted(descs []Descriptor) []Descriptor {
	out := make([]Descriptor, len(descs))
	copy(out, descs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out
}
