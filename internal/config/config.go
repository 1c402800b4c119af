package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete autoproducer configuration
type Config struct {
	Logging       LoggingConfig                 `mapstructure:"logging" yaml:"logging"`
	Pipeline      PipelineConfig                `mapstructure:"pipeline" yaml:"pipeline"`
	Collaborators map[string]CollaboratorConfig `mapstructure:"collaborators" yaml:"collaborators"`
	Ollama        OllamaConfig                  `mapstructure:"ollama" yaml:"ollama"`
	Resources     ResourceConfig                `mapstructure:"resources" yaml:"resources"`
	Watcher       WatcherConfig                 `mapstructure:"watcher" yaml:"watcher"`
	Scheduler     SchedulerConfig               `mapstructure:"scheduler" yaml:"scheduler"`
	Report        ReportConfig                  `mapstructure:"report" yaml:"report"`
	Observability ObservabilityConfig           `mapstructure:"observability" yaml:"observability"`
	Control       ControlConfig                 `mapstructure:"control" yaml:"control"`
}

// LoggingConfig controls the structured log file
type LoggingConfig struct {
	// Dir is the log directory. Empty logs to stderr.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
	// Compress gzips rotated log files
	Compress bool `mapstructure:"compress" yaml:"compress"`
}

// PipelineConfig controls the run state machine
type PipelineConfig struct {
	// MaxAttempts is the whole-run retry budget (default: 3)
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`
	// BackoffSeconds is the fixed delay between attempts (default: 30)
	BackoffSeconds int `mapstructure:"backoff_seconds" yaml:"backoff_seconds"`
	// RestartGraceSeconds is the pause between an aborted run and its restart (default: 5)
	RestartGraceSeconds int `mapstructure:"restart_grace_seconds" yaml:"restart_grace_seconds"`
	// ResumePolicy is what a resume does to a paused run: "restart" or "continue" (default: "restart")
	ResumePolicy string `mapstructure:"resume_policy" yaml:"resume_policy"`
	// HistoryLimit is how many finished runs are kept in memory (default: 50)
	HistoryLimit int `mapstructure:"history_limit" yaml:"history_limit"`
	// Preflight pings the Ollama server before each run and warns if it is down (default: true)
	Preflight bool `mapstructure:"preflight" yaml:"preflight"`
	// Brief is the input handed to the idea stage
	Brief BriefConfig `mapstructure:"brief" yaml:"brief"`
	// Channels are named presets selected with trigger --channel. The map key is the channel name.
	Channels map[string]BriefConfig `mapstructure:"channels" yaml:"channels,omitempty"`
	// Stages overrides the standard stage list. Empty uses the standard list.
	Stages []StageConfig `mapstructure:"stages" yaml:"stages,omitempty"`
}

// BriefConfig is the topic of each daily run
type BriefConfig struct {
	Topic       string `mapstructure:"topic" yaml:"topic"`
	Channel     string `mapstructure:"channel" yaml:"channel,omitempty"`
	Description string `mapstructure:"description" yaml:"description,omitempty"`
	// IdeaCount is how many ideas the idea stage should produce (default: 3)
	IdeaCount int `mapstructure:"idea_count" yaml:"idea_count"`
}

// StageConfig describes one stage of a custom stage list
type StageConfig struct {
	Name           string `mapstructure:"name" yaml:"name"`
	Ordinal        int    `mapstructure:"ordinal" yaml:"ordinal"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	// Criticality is "required" or "optional"
	Criticality string `mapstructure:"criticality" yaml:"criticality"`
}

// CollaboratorConfig selects the live implementation of one stage
type CollaboratorConfig struct {
	// Kind is "ollama" or "command"
	Kind string `mapstructure:"kind" yaml:"kind"`
	// Program and Args start an external collaborator when Kind is "command"
	Program string   `mapstructure:"program" yaml:"program,omitempty"`
	Args    []string `mapstructure:"args" yaml:"args,omitempty"`
	// Dir is the working directory of the program
	Dir string `mapstructure:"dir" yaml:"dir,omitempty"`
}

// OllamaConfig points at the local language model server
type OllamaConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	Model   string `mapstructure:"model" yaml:"model"`
	// PingTimeoutSeconds bounds the preflight health check (default: 5)
	PingTimeoutSeconds int `mapstructure:"ping_timeout_seconds" yaml:"ping_timeout_seconds"`
}

// ResourceConfig controls host load monitoring
type ResourceConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// CPUThreshold pauses the pipeline above this CPU percentage (default: 90)
	CPUThreshold float64 `mapstructure:"cpu_threshold" yaml:"cpu_threshold"`
	// RAMThreshold pauses the pipeline above this memory percentage (default: 80)
	RAMThreshold float64 `mapstructure:"ram_threshold" yaml:"ram_threshold"`
	// SampleIntervalSeconds is how often the host is sampled (default: 10)
	SampleIntervalSeconds int `mapstructure:"sample_interval_seconds" yaml:"sample_interval_seconds"`
	// CooldownSeconds is how long the pipeline stays paused after a breach (default: 30)
	CooldownSeconds int `mapstructure:"cooldown_seconds" yaml:"cooldown_seconds"`
}

// WatcherConfig controls the source change watcher
type WatcherConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Roots are the directories watched recursively
	Roots []string `mapstructure:"roots" yaml:"roots"`
	// Patterns are glob patterns of files whose change requests a restart
	Patterns []string `mapstructure:"patterns" yaml:"patterns"`
	// Ignore lists directory names or paths that are never watched
	Ignore []string `mapstructure:"ignore" yaml:"ignore"`
	// DebounceMs coalesces bursts of changes (default: 500)
	DebounceMs int `mapstructure:"debounce_ms" yaml:"debounce_ms"`
	// RestartEverySeconds is the minimum spacing of change restarts (default: 10)
	RestartEverySeconds int `mapstructure:"restart_every_seconds" yaml:"restart_every_seconds"`
}

// SchedulerConfig controls the daily trigger
type SchedulerConfig struct {
	// DailyAt is the local trigger time as HH:MM (default: "00:00")
	DailyAt string `mapstructure:"daily_at" yaml:"daily_at"`
	// CheckIntervalSeconds is how often the clock is checked (default: 60)
	CheckIntervalSeconds int `mapstructure:"check_interval_seconds" yaml:"check_interval_seconds"`
	// Debug fires a run immediately when the scheduler starts
	Debug bool `mapstructure:"debug" yaml:"debug"`
}

// ReportConfig controls where run summaries are written
type ReportConfig struct {
	// Dir is where summaries are written. Empty disables file summaries.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// Format is "json" or "yaml" (default: "json")
	Format string `mapstructure:"format" yaml:"format"`
	// Object uploads summaries to an S3-compatible bucket
	Object ObjectStoreConfig `mapstructure:"object" yaml:"object"`
}

// ObjectStoreConfig points at an S3-compatible bucket
type ObjectStoreConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"-"`
	Region    string `mapstructure:"region" yaml:"region"`
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	Prefix    string `mapstructure:"prefix" yaml:"prefix"`
	UseSSL    bool   `mapstructure:"use_ssl" yaml:"use_ssl"`
}

// ObservabilityConfig controls metrics and tracing
type ObservabilityConfig struct {
	// Metrics serves Prometheus metrics on the control API (default: true)
	Metrics bool `mapstructure:"metrics" yaml:"metrics"`
	// OTLPEndpoint is the OTLP/gRPC trace collector. Empty disables tracing.
	OTLPEndpoint string `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
	// ServiceName labels exported traces (default: "autoproducer")
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
}

// ControlConfig controls the daemon's HTTP control API
type ControlConfig struct {
	// Addr is the listen address of the daemon and the address the CLI dials
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Dir:        "", // stderr
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Pipeline: PipelineConfig{
			MaxAttempts:         3,
			BackoffSeconds:      30,
			RestartGraceSeconds: 5,
			ResumePolicy:        "restart",
			HistoryLimit:        50,
			Preflight:           true,
			Brief: BriefConfig{
				Topic:     "History",
				IdeaCount: 3,
			},
			Channels: map[string]BriefConfig{
				"drama":     {Topic: "Drama", Description: "Drama content with emotional storytelling"},
				"gaming":    {Topic: "Gaming", Description: "Gaming content with gameplay and commentary"},
				"cooking":   {Topic: "Cooking", Description: "Cooking tutorials and recipe videos"},
				"education": {Topic: "Education", Description: "Educational content and tutorials"},
				"tech":      {Topic: "Technology", Description: "Technology reviews and tutorials"},
				"travel":    {Topic: "Travel", Description: "Travel vlogs and destination guides"},
			},
		},
		Collaborators: map[string]CollaboratorConfig{
			"ideas":  {Kind: "ollama"},
			"script": {Kind: "ollama"},
		},
		Ollama: OllamaConfig{
			BaseURL:            "http://127.0.0.1:11434",
			Model:              "llama3",
			PingTimeoutSeconds: 5,
		},
		Resources: ResourceConfig{
			Enabled:               true,
			CPUThreshold:          90,
			RAMThreshold:          80,
			SampleIntervalSeconds: 10,
			CooldownSeconds:       30,
		},
		Watcher: WatcherConfig{
			Enabled:             false,
			Roots:               []string{"."},
			Patterns:            []string{"**.go", "**.yaml"},
			Ignore:              []string{".git", "node_modules", "vendor"},
			DebounceMs:          500,
			RestartEverySeconds: 10,
		},
		Scheduler: SchedulerConfig{
			DailyAt:              "00:00",
			CheckIntervalSeconds: 60,
		},
		Report: ReportConfig{
			Dir:    filepath.Join(DataDir(), "runs"),
			Format: "json",
			Object: ObjectStoreConfig{
				Prefix: "autoproducer",
				UseSSL: true,
			},
		},
		Observability: ObservabilityConfig{
			Metrics:     true,
			ServiceName: "autoproducer",
		},
		Control: ControlConfig{
			Addr: "127.0.0.1:8765",
		},
	}
}

// Backoff returns the delay between attempts
func (c *PipelineConfig) Backoff() time.Duration {
	return time.Duration(c.BackoffSeconds) * time.Second
}

// RestartGrace returns the pause before a restart run
func (c *PipelineConfig) RestartGrace() time.Duration {
	return time.Duration(c.RestartGraceSeconds) * time.Second
}

// Timeout returns the stage deadline
func (c *StageConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PingTimeout returns the preflight timeout
func (c *OllamaConfig) PingTimeout() time.Duration {
	return time.Duration(c.PingTimeoutSeconds) * time.Second
}

// SampleInterval returns the host sampling period
func (c *ResourceConfig) SampleInterval() time.Duration {
	return time.Duration(c.SampleIntervalSeconds) * time.Second
}

// Cooldown returns how long a resource pause lasts
func (c *ResourceConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

// Debounce returns the change debounce window
func (c *WatcherConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// RestartEvery returns the minimum spacing of change restarts
func (c *WatcherConfig) RestartEvery() time.Duration {
	return time.Duration(c.RestartEverySeconds) * time.Second
}

// CheckInterval returns the scheduler clock check period
func (c *SchedulerConfig) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalSeconds) * time.Second
}

// ResolveDir expands a leading ~ and makes dir absolute relative to the
// working directory. Empty stays empty.
func ResolveDir(dir string) string {
	if dir == "" {
		return ""
	}
	path := dir
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			path = home
		}
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return path
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Logging defaults
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)

	// Pipeline defaults
	viper.SetDefault("pipeline.max_attempts", defaults.Pipeline.MaxAttempts)
	viper.SetDefault("pipeline.backoff_seconds", defaults.Pipeline.BackoffSeconds)
	viper.SetDefault("pipeline.restart_grace_seconds", defaults.Pipeline.RestartGraceSeconds)
	viper.SetDefault("pipeline.resume_policy", defaults.Pipeline.ResumePolicy)
	viper.SetDefault("pipeline.history_limit", defaults.Pipeline.HistoryLimit)
	viper.SetDefault("pipeline.preflight", defaults.Pipeline.Preflight)
	viper.SetDefault("pipeline.brief.topic", defaults.Pipeline.Brief.Topic)
	viper.SetDefault("pipeline.brief.channel", defaults.Pipeline.Brief.Channel)
	viper.SetDefault("pipeline.brief.description", defaults.Pipeline.Brief.Description)
	viper.SetDefault("pipeline.brief.idea_count", defaults.Pipeline.Brief.IdeaCount)
	channels := make(map[string]any, len(defaults.Pipeline.Channels))
	for name, ch := range defaults.Pipeline.Channels {
		channels[name] = map[string]any{"topic": ch.Topic, "description": ch.Description}
	}
	viper.SetDefault("pipeline.channels", channels)

	// Collaborator defaults
	collaborators := make(map[string]any, len(defaults.Collaborators))
	for name, c := range defaults.Collaborators {
		collaborators[name] = map[string]any{"kind": c.Kind}
	}
	viper.SetDefault("collaborators", collaborators)

	// Ollama defaults
	viper.SetDefault("ollama.base_url", defaults.Ollama.BaseURL)
	viper.SetDefault("ollama.model", defaults.Ollama.Model)
	viper.SetDefault("ollama.ping_timeout_seconds", defaults.Ollama.PingTimeoutSeconds)

	// Resource defaults
	viper.SetDefault("resources.enabled", defaults.Resources.Enabled)
	viper.SetDefault("resources.cpu_threshold", defaults.Resources.CPUThreshold)
	viper.SetDefault("resources.ram_threshold", defaults.Resources.RAMThreshold)
	viper.SetDefault("resources.sample_interval_seconds", defaults.Resources.SampleIntervalSeconds)
	viper.SetDefault("resources.cooldown_seconds", defaults.Resources.CooldownSeconds)

	// Watcher defaults
	viper.SetDefault("watcher.enabled", defaults.Watcher.Enabled)
	viper.SetDefault("watcher.roots", defaults.Watcher.Roots)
	viper.SetDefault("watcher.patterns", defaults.Watcher.Patterns)
	viper.SetDefault("watcher.ignore", defaults.Watcher.Ignore)
	viper.SetDefault("watcher.debounce_ms", defaults.Watcher.DebounceMs)
	viper.SetDefault("watcher.restart_every_seconds", defaults.Watcher.RestartEverySeconds)

	// Scheduler defaults
	viper.SetDefault("scheduler.daily_at", defaults.Scheduler.DailyAt)
	viper.SetDefault("scheduler.check_interval_seconds", defaults.Scheduler.CheckIntervalSeconds)
	viper.SetDefault("scheduler.debug", defaults.Scheduler.Debug)

	// Report defaults
	viper.SetDefault("report.dir", defaults.Report.Dir)
	viper.SetDefault("report.format", defaults.Report.Format)
	viper.SetDefault("report.object.enabled", defaults.Report.Object.Enabled)
	viper.SetDefault("report.object.endpoint", defaults.Report.Object.Endpoint)
	viper.SetDefault("report.object.access_key", defaults.Report.Object.AccessKey)
	viper.SetDefault("report.object.secret_key", defaults.Report.Object.SecretKey)
	viper.SetDefault("report.object.region", defaults.Report.Object.Region)
	viper.SetDefault("report.object.bucket", defaults.Report.Object.Bucket)
	viper.SetDefault("report.object.prefix", defaults.Report.Object.Prefix)
	viper.SetDefault("report.object.use_ssl", defaults.Report.Object.UseSSL)

	// Observability defaults
	viper.SetDefault("observability.metrics", defaults.Observability.Metrics)
	viper.SetDefault("observability.otlp_endpoint", defaults.Observability.OTLPEndpoint)
	viper.SetDefault("observability.service_name", defaults.Observability.ServiceName)

	// Control defaults
	viper.SetDefault("control.addr", defaults.Control.Addr)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "autoproducer")
	}
	// Fall back to ~/.config/autoproducer
	home, err := os.UserHomeDir()
	if err != nil {
		return ".autoproducer"
	}
	return filepath.Join(home, ".config", "autoproducer")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DataDir returns where run summaries and logs live by default
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "autoproducer")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".autoproducer"
	}
	return filepath.Join(home, ".local", "share", "autoproducer")
}
