package config

import (
	"strings"
	"testing"
)

func hasFieldError(errs []ValidationError, field string) bool {
	for _, err := range errs {
		if err.Field == field {
			return true
		}
	}
	return false
}

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "pipeline.max_attempts",
		Value:   0,
		Message: "must be at least 1",
	}

	expected := "pipeline.max_attempts: must be at least 1 (got: 0)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty errors", func(t *testing.T) {
		var errs ValidationErrors
		if errs.Error() != "" {
			t.Errorf("Error() = %q, want empty string", errs.Error())
		}
	})

	t.Run("single error", func(t *testing.T) {
		errs := ValidationErrors{{Field: "field1", Value: "bad", Message: "is invalid"}}
		if errs.Error() != "field1: is invalid (got: bad)" {
			t.Errorf("Error() = %q", errs.Error())
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "field1", Value: "bad1", Message: "error1"},
			{Field: "field2", Value: "bad2", Message: "error2"},
		}
		result := errs.Error()
		if !strings.Contains(result, "2 validation errors") {
			t.Errorf("Error() should mention count, got %q", result)
		}
		if !strings.Contains(result, "1. field1") || !strings.Contains(result, "2. field2") {
			t.Errorf("Error() should number each error, got %q", result)
		}
	})
}

func TestConfig_Validate_DefaultConfig(t *testing.T) {
	cfg := Default()
	if errs := cfg.Validate(); len(errs) > 0 {
		t.Errorf("Default config should be valid, got errors: %v", errs)
	}
}

func TestConfig_Validate_Logging(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		field   string
		wantErr bool
	}{
		{"valid level", func(c *Config) { c.Logging.Level = "debug" }, "logging.level", false},
		{"empty level", func(c *Config) { c.Logging.Level = "" }, "logging.level", false},
		{"unknown level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level", true},
		{"uppercase level", func(c *Config) { c.Logging.Level = "INFO" }, "logging.level", true},
		{"rotation disabled", func(c *Config) { c.Logging.MaxSizeMB = 0 }, "logging.max_size_mb", false},
		{"oversized", func(c *Config) { c.Logging.MaxSizeMB = 2000 }, "logging.max_size_mb", true},
		{"negative backups", func(c *Config) { c.Logging.MaxBackups = -1 }, "logging.max_backups", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			if got := hasFieldError(cfg.Validate(), tt.field); got != tt.wantErr {
				t.Errorf("error on %s = %v, want %v", tt.field, got, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_Pipeline(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		field   string
		wantErr bool
	}{
		{"single attempt", func(c *Config) { c.Pipeline.MaxAttempts = 1 }, "pipeline.max_attempts", false},
		{"zero attempts", func(c *Config) { c.Pipeline.MaxAttempts = 0 }, "pipeline.max_attempts", true},
		{"too many attempts", func(c *Config) { c.Pipeline.MaxAttempts = 50 }, "pipeline.max_attempts", true},
		{"no backoff", func(c *Config) { c.Pipeline.BackoffSeconds = 0 }, "pipeline.backoff_seconds", false},
		{"negative backoff", func(c *Config) { c.Pipeline.BackoffSeconds = -1 }, "pipeline.backoff_seconds", true},
		{"negative grace", func(c *Config) { c.Pipeline.RestartGraceSeconds = -5 }, "pipeline.restart_grace_seconds", true},
		{"continue policy", func(c *Config) { c.Pipeline.ResumePolicy = "continue" }, "pipeline.resume_policy", false},
		{"unknown policy", func(c *Config) { c.Pipeline.ResumePolicy = "skip" }, "pipeline.resume_policy", true},
		{"negative history", func(c *Config) { c.Pipeline.HistoryLimit = -1 }, "pipeline.history_limit", true},
		{"negative idea count", func(c *Config) { c.Pipeline.Brief.IdeaCount = -2 }, "pipeline.brief.idea_count", true},
		{"preset without topic", func(c *Config) { c.Pipeline.Channels["gaming"] = BriefConfig{Description: "games"} }, "pipeline.channels.gaming.topic", true},
		{"preset negative count", func(c *Config) { c.Pipeline.Channels["drama"] = BriefConfig{Topic: "Drama", IdeaCount: -1} }, "pipeline.channels.drama.idea_count", true},
		{"custom preset", func(c *Config) { c.Pipeline.Channels["space"] = BriefConfig{Topic: "Space"} }, "pipeline.channels.space.topic", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			if got := hasFieldError(cfg.Validate(), tt.field); got != tt.wantErr {
				t.Errorf("error on %s = %v, want %v", tt.field, got, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_Stages(t *testing.T) {
	t.Run("valid custom list", func(t *testing.T) {
		cfg := Default()
		cfg.Pipeline.Stages = []StageConfig{
			{Name: "ideas", Ordinal: 1, TimeoutSeconds: 30, Criticality: "required"},
			{Name: "script", Ordinal: 2, TimeoutSeconds: 30, Criticality: "optional"},
		}
		if errs := cfg.Validate(); len(errs) > 0 {
			t.Errorf("unexpected errors: %v", errs)
		}
	})

	t.Run("invalid entries", func(t *testing.T) {
		cfg := Default()
		cfg.Pipeline.Stages = []StageConfig{
			{Name: "ideas", Ordinal: 1, TimeoutSeconds: 30, Criticality: "required"},
			{Name: "ideas", Ordinal: 1, TimeoutSeconds: 0, Criticality: "sometimes"},
			{Name: "thumbnails", Ordinal: 0, TimeoutSeconds: 10, Criticality: "optional"},
		}
		errs := cfg.Validate()
		for _, field := range []string{
			"pipeline.stages[1].name",
			"pipeline.stages[1].ordinal",
			"pipeline.stages[1].timeout_seconds",
			"pipeline.stages[1].criticality",
			"pipeline.stages[2].name",
			"pipeline.stages[2].ordinal",
		} {
			if !hasFieldError(errs, field) {
				t.Errorf("expected error on %s, got %v", field, errs)
			}
		}
		if hasFieldError(errs, "pipeline.stages[0].name") {
			t.Error("first stage should be valid")
		}
	})
}

func TestConfig_Validate_Collaborators(t *testing.T) {
	tests := []struct {
		name    string
		collabs map[string]CollaboratorConfig
		field   string
		wantErr bool
	}{
		{"command with program", map[string]CollaboratorConfig{"music": {Kind: "command", Program: "compose"}}, "collaborators.music.program", false},
		{"command without program", map[string]CollaboratorConfig{"music": {Kind: "command"}}, "collaborators.music.program", true},
		{"ollama for ideas", map[string]CollaboratorConfig{"ideas": {Kind: "ollama"}}, "collaborators.ideas.kind", false},
		{"ollama for visuals", map[string]CollaboratorConfig{"visuals": {Kind: "ollama"}}, "collaborators.visuals.kind", true},
		{"unknown kind", map[string]CollaboratorConfig{"ideas": {Kind: "grpc"}}, "collaborators.ideas.kind", true},
		{"unknown stage", map[string]CollaboratorConfig{"thumbnails": {Kind: "command", Program: "x"}}, "collaborators.thumbnails", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Collaborators = tt.collabs
			if got := hasFieldError(cfg.Validate(), tt.field); got != tt.wantErr {
				t.Errorf("error on %s = %v, want %v", tt.field, got, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_Resources(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		field   string
		wantErr bool
	}{
		{"full threshold", func(c *Config) { c.Resources.CPUThreshold = 100 }, "resources.cpu_threshold", false},
		{"zero threshold", func(c *Config) { c.Resources.CPUThreshold = 0 }, "resources.cpu_threshold", true},
		{"over 100", func(c *Config) { c.Resources.RAMThreshold = 120 }, "resources.ram_threshold", true},
		{"zero interval", func(c *Config) { c.Resources.SampleIntervalSeconds = 0 }, "resources.sample_interval_seconds", true},
		{"zero interval when disabled", func(c *Config) {
			c.Resources.Enabled = false
			c.Resources.SampleIntervalSeconds = 0
		}, "resources.sample_interval_seconds", false},
		{"negative cooldown", func(c *Config) { c.Resources.CooldownSeconds = -1 }, "resources.cooldown_seconds", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			if got := hasFieldError(cfg.Validate(), tt.field); got != tt.wantErr {
				t.Errorf("error on %s = %v, want %v", tt.field, got, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_Watcher(t *testing.T) {
	cfg := Default()
	cfg.Watcher.Enabled = true
	cfg.Watcher.Roots = nil
	cfg.Watcher.Patterns = []string{"**.go", " "}
	cfg.Watcher.DebounceMs = -1

	errs := cfg.Validate()
	for _, field := range []string{"watcher.roots", "watcher.patterns[1]", "watcher.debounce_ms"} {
		if !hasFieldError(errs, field) {
			t.Errorf("expected error on %s, got %v", field, errs)
		}
	}
}

func TestConfig_Validate_Scheduler(t *testing.T) {
	tests := []struct {
		dailyAt string
		wantErr bool
	}{
		{"00:00", false},
		{"23:59", false},
		{"6:30", true},
		{"24:00", true},
		{"12:60", true},
		{"noon", true},
	}
	for _, tt := range tests {
		t.Run(tt.dailyAt, func(t *testing.T) {
			cfg := Default()
			cfg.Scheduler.DailyAt = tt.dailyAt
			if got := hasFieldError(cfg.Validate(), "scheduler.daily_at"); got != tt.wantErr {
				t.Errorf("daily_at %q error = %v, want %v", tt.dailyAt, got, tt.wantErr)
			}
		})
	}

	cfg := Default()
	cfg.Scheduler.CheckIntervalSeconds = 0
	if !hasFieldError(cfg.Validate(), "scheduler.check_interval_seconds") {
		t.Error("expected error for zero check interval")
	}
}

func TestConfig_Validate_Report(t *testing.T) {
	cfg := Default()
	cfg.Report.Format = "xml"
	cfg.Report.Object.Enabled = true

	errs := cfg.Validate()
	for _, field := range []string{"report.format", "report.object.endpoint", "report.object.bucket"} {
		if !hasFieldError(errs, field) {
			t.Errorf("expected error on %s, got %v", field, errs)
		}
	}

	cfg = Default()
	cfg.Report.Format = "yml"
	cfg.Report.Object = ObjectStoreConfig{Enabled: true, Endpoint: "minio:9000", Bucket: "runs"}
	if errs := cfg.Validate(); len(errs) > 0 {
		t.Errorf("unexpected errors: %v", errs)
	}
}

func TestConfig_Validate_Control(t *testing.T) {
	cfg := Default()
	cfg.Control.Addr = "localhost"
	if !hasFieldError(cfg.Validate(), "control.addr") {
		t.Error("expected error for address without port")
	}
}

func TestConfig_Validate_MultipleErrors(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "loud"
	cfg.Pipeline.MaxAttempts = 0
	cfg.Report.Format = "csv"

	if errs := cfg.Validate(); len(errs) != 3 {
		t.Errorf("got %d errors, want 3: %v", len(errs), errs)
	}
}
