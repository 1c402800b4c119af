package config

import (
	"fmt"
	"maps"
	"net"
	"regexp"
	"slices"
	"strings"

	"github.com/Iron-Ham/autoproducer/internal/production"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "pipeline.max_attempts")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// dailyAtRegex matches a 24-hour HH:MM time
var dailyAtRegex = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidResumePolicies returns the list of valid pipeline resume policies
func ValidResumePolicies() []string {
	return []string{"restart", "continue"}
}

// ValidCollaboratorKinds returns the list of valid collaborator kinds
func ValidCollaboratorKinds() []string {
	return []string{"ollama", "command"}
}

// ValidReportFormats returns the list of valid run summary formats
func ValidReportFormats() []string {
	return []string{"json", "yaml", "yml"}
}

// ollamaStages are the stages the Ollama collaborator implements
var ollamaStages = []string{production.StageIdeas, production.StageScript}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validatePipeline()...)
	errors = append(errors, c.validateStages()...)
	errors = append(errors, c.validateCollaborators()...)
	errors = append(errors, c.validateResources()...)
	errors = append(errors, c.validateWatcher()...)
	errors = append(errors, c.validateScheduler()...)
	errors = append(errors, c.validateReport()...)
	errors = append(errors, c.validateControl()...)

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be non-negative (0 disables rotation)",
		})
	}

	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validatePipeline validates the PipelineConfig apart from its stage list
func (c *Config) validatePipeline() []ValidationError {
	var errors []ValidationError
	p := c.Pipeline

	if p.MaxAttempts < 1 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.max_attempts",
			Value:   p.MaxAttempts,
			Message: "must be at least 1",
		})
	}
	const maxAttemptsLimit = 20
	if p.MaxAttempts > maxAttemptsLimit {
		errors = append(errors, ValidationError{
			Field:   "pipeline.max_attempts",
			Value:   p.MaxAttempts,
			Message: fmt.Sprintf("exceeds maximum of %d", maxAttemptsLimit),
		})
	}
	if p.BackoffSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.backoff_seconds",
			Value:   p.BackoffSeconds,
			Message: "must be non-negative",
		})
	}
	if p.RestartGraceSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.restart_grace_seconds",
			Value:   p.RestartGraceSeconds,
			Message: "must be non-negative",
		})
	}
	if p.ResumePolicy != "" && !slices.Contains(ValidResumePolicies(), p.ResumePolicy) {
		errors = append(errors, ValidationError{
			Field:   "pipeline.resume_policy",
			Value:   p.ResumePolicy,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidResumePolicies(), ", ")),
		})
	}
	if p.HistoryLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.history_limit",
			Value:   p.HistoryLimit,
			Message: "must be non-negative",
		})
	}
	if p.Brief.IdeaCount < 0 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.brief.idea_count",
			Value:   p.Brief.IdeaCount,
			Message: "must be non-negative",
		})
	}
	for _, name := range slices.Sorted(maps.Keys(p.Channels)) {
		ch := p.Channels[name]
		prefix := "pipeline.channels." + name
		if strings.TrimSpace(ch.Topic) == "" {
			errors = append(errors, ValidationError{
				Field:   prefix + ".topic",
				Value:   ch.Topic,
				Message: "must not be empty",
			})
		}
		if ch.IdeaCount < 0 {
			errors = append(errors, ValidationError{
				Field:   prefix + ".idea_count",
				Value:   ch.IdeaCount,
				Message: "must be non-negative",
			})
		}
	}

	return errors
}

// validateStages validates a custom stage list
func (c *Config) validateStages() []ValidationError {
	var errors []ValidationError
	known := production.StageNames()
	names := make(map[string]bool)
	ordinals := make(map[int]bool)

	for i, s := range c.Pipeline.Stages {
		prefix := fmt.Sprintf("pipeline.stages[%d]", i)

		if !slices.Contains(known, s.Name) {
			errors = append(errors, ValidationError{
				Field:   prefix + ".name",
				Value:   s.Name,
				Message: fmt.Sprintf("must be one of: %s", strings.Join(known, ", ")),
			})
		} else if names[s.Name] {
			errors = append(errors, ValidationError{
				Field:   prefix + ".name",
				Value:   s.Name,
				Message: "duplicate stage",
			})
		}
		names[s.Name] = true

		if s.Ordinal < 1 {
			errors = append(errors, ValidationError{
				Field:   prefix + ".ordinal",
				Value:   s.Ordinal,
				Message: "must be at least 1",
			})
		} else if ordinals[s.Ordinal] {
			errors = append(errors, ValidationError{
				Field:   prefix + ".ordinal",
				Value:   s.Ordinal,
				Message: "duplicate ordinal",
			})
		}
		ordinals[s.Ordinal] = true

		if s.TimeoutSeconds <= 0 {
			errors = append(errors, ValidationError{
				Field:   prefix + ".timeout_seconds",
				Value:   s.TimeoutSeconds,
				Message: "must be positive",
			})
		}
		if s.Criticality != "required" && s.Criticality != "optional" {
			errors = append(errors, ValidationError{
				Field:   prefix + ".criticality",
				Value:   s.Criticality,
				Message: "must be one of: required, optional",
			})
		}
	}

	return errors
}

// validateCollaborators validates the per-stage collaborator selection
func (c *Config) validateCollaborators() []ValidationError {
	var errors []ValidationError
	known := production.StageNames()

	stages := make([]string, 0, len(c.Collaborators))
	for name := range c.Collaborators {
		stages = append(stages, name)
	}
	slices.Sort(stages)

	for _, name := range stages {
		collab := c.Collaborators[name]
		field := "collaborators." + name

		if !slices.Contains(known, name) {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   name,
				Message: fmt.Sprintf("unknown stage, must be one of: %s", strings.Join(known, ", ")),
			})
			continue
		}
		switch collab.Kind {
		case "ollama":
			if !slices.Contains(ollamaStages, name) {
				errors = append(errors, ValidationError{
					Field:   field + ".kind",
					Value:   collab.Kind,
					Message: fmt.Sprintf("ollama only serves: %s", strings.Join(ollamaStages, ", ")),
				})
			}
		case "command":
			if strings.TrimSpace(collab.Program) == "" {
				errors = append(errors, ValidationError{
					Field:   field + ".program",
					Value:   collab.Program,
					Message: "is required for command collaborators",
				})
			}
		default:
			errors = append(errors, ValidationError{
				Field:   field + ".kind",
				Value:   collab.Kind,
				Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidCollaboratorKinds(), ", ")),
			})
		}
	}

	return errors
}

// validateResources validates the ResourceConfig
func (c *Config) validateResources() []ValidationError {
	var errors []ValidationError
	r := c.Resources

	for _, th := range []struct {
		field string
		value float64
	}{
		{"resources.cpu_threshold", r.CPUThreshold},
		{"resources.ram_threshold", r.RAMThreshold},
	} {
		if th.value <= 0 || th.value > 100 {
			errors = append(errors, ValidationError{
				Field:   th.field,
				Value:   th.value,
				Message: "must be in (0, 100]",
			})
		}
	}

	if r.Enabled && r.SampleIntervalSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "resources.sample_interval_seconds",
			Value:   r.SampleIntervalSeconds,
			Message: "must be positive",
		})
	}
	if r.CooldownSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "resources.cooldown_seconds",
			Value:   r.CooldownSeconds,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateWatcher validates the WatcherConfig
func (c *Config) validateWatcher() []ValidationError {
	var errors []ValidationError
	w := c.Watcher

	if w.Enabled && len(w.Roots) == 0 {
		errors = append(errors, ValidationError{
			Field:   "watcher.roots",
			Value:   w.Roots,
			Message: "at least one root is required when the watcher is enabled",
		})
	}
	for i, p := range w.Patterns {
		if strings.TrimSpace(p) == "" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("watcher.patterns[%d]", i),
				Value:   p,
				Message: "cannot be empty",
			})
		}
	}
	if w.DebounceMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "watcher.debounce_ms",
			Value:   w.DebounceMs,
			Message: "must be non-negative",
		})
	}
	if w.RestartEverySeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "watcher.restart_every_seconds",
			Value:   w.RestartEverySeconds,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateScheduler validates the SchedulerConfig
func (c *Config) validateScheduler() []ValidationError {
	var errors []ValidationError

	if c.Scheduler.DailyAt != "" && !dailyAtRegex.MatchString(c.Scheduler.DailyAt) {
		errors = append(errors, ValidationError{
			Field:   "scheduler.daily_at",
			Value:   c.Scheduler.DailyAt,
			Message: "must be a 24-hour time as HH:MM",
		})
	}
	if c.Scheduler.CheckIntervalSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scheduler.check_interval_seconds",
			Value:   c.Scheduler.CheckIntervalSeconds,
			Message: "must be positive",
		})
	}

	return errors
}

// validateReport validates the ReportConfig
func (c *Config) validateReport() []ValidationError {
	var errors []ValidationError
	r := c.Report

	if r.Format != "" && !slices.Contains(ValidReportFormats(), r.Format) {
		errors = append(errors, ValidationError{
			Field:   "report.format",
			Value:   r.Format,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidReportFormats(), ", ")),
		})
	}
	if r.Object.Enabled {
		if r.Object.Endpoint == "" {
			errors = append(errors, ValidationError{
				Field:   "report.object.endpoint",
				Value:   r.Object.Endpoint,
				Message: "is required when object upload is enabled",
			})
		}
		if r.Object.Bucket == "" {
			errors = append(errors, ValidationError{
				Field:   "report.object.bucket",
				Value:   r.Object.Bucket,
				Message: "is required when object upload is enabled",
			})
		}
	}

	return errors
}

// validateControl validates the ControlConfig
func (c *Config) validateControl() []ValidationError {
	var errors []ValidationError

	if _, _, err := net.SplitHostPort(c.Control.Addr); err != nil {
		errors = append(errors, ValidationError{
			Field:   "control.addr",
			Value:   c.Control.Addr,
			Message: "must be host:port",
		})
	}

	return errors
}
