package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/Iron-Ham/autoproducer/internal/collaborator"
	"github.com/Iron-Ham/autoproducer/internal/collaborator/command"
	"github.com/Iron-Ham/autoproducer/internal/collaborator/ollama"
	"github.com/Iron-Ham/autoproducer/internal/config"
	"github.com/Iron-Ham/autoproducer/internal/event"
	"github.com/Iron-Ham/autoproducer/internal/logging"
	"github.com/Iron-Ham/autoproducer/internal/pipeline"
	"github.com/Iron-Ham/autoproducer/internal/production"
	"github.com/Iron-Ham/autoproducer/internal/report"
	"github.com/Iron-Ham/autoproducer/internal/stage"
)

// createLogger builds the process logger from config. Failure to open the
// log file falls back to a NopLogger with a warning on stderr.
func createLogger(cfg *config.Config) *logging.Logger {
	logger, err := logging.NewLogger(logging.Options{
		Dir:   config.ResolveDir(cfg.Logging.Dir),
		Level: cfg.Logging.Level,
		Rotation: logging.RotationConfig{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			Compress:   cfg.Logging.Compress,
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to create logger: %v\n", err)
		return logging.NopLogger()
	}
	return logger
}

// stageDescriptors returns the configured stage list, or the standard one.
func stageDescriptors(cfg *config.Config) ([]stage.Descriptor, error) {
	if len(cfg.Pipeline.Stages) == 0 {
		return production.DefaultStages(), nil
	}
	descs := make([]stage.Descriptor, 0, len(cfg.Pipeline.Stages))
	for _, s := range cfg.Pipeline.Stages {
		crit, err := stage.ParseCriticality(s.Criticality)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", s.Name, err)
		}
		descs = append(descs, stage.Descriptor{
			Name:        s.Name,
			Ordinal:     s.Ordinal,
			Timeout:     s.Timeout(),
			Criticality: crit,
		})
	}
	return descs, nil
}

// buildRegistry registers a factory for every configured collaborator.
// Stages without an entry run with their stub.
func buildRegistry(cfg *config.Config, client *ollama.Client) *collaborator.Registry {
	reg := collaborator.NewRegistry()

	names := make([]string, 0, len(cfg.Collaborators))
	for name := range cfg.Collaborators {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		c := cfg.Collaborators[name]
		switch c.Kind {
		case "ollama":
			timeout := cfg.Ollama.PingTimeout()
			reg.Register(name, "ollama", func(ctx context.Context) (any, error) {
				// An unreachable server leaves the stage to its stub.
				if _, err := client.Ping(ctx, timeout); err != nil {
					return nil, err
				}
				return client, nil
			})
		case "command":
			reg.Register(name, "command:"+c.Program, func(context.Context) (any, error) {
				r, err := command.New(c.Program, c.Args...)
				if err != nil {
					return nil, err
				}
				r.Dir = c.Dir
				return r, nil
			})
		}
	}
	return reg
}

// usesOllama reports whether any configured stage is served by Ollama.
func usesOllama(cfg *config.Config) bool {
	for _, c := range cfg.Collaborators {
		if c.Kind == "ollama" {
			return true
		}
	}
	return false
}

// buildSink combines the configured run summary destinations. It returns
// nil when none is configured.
func buildSink(cfg *config.Config) (pipeline.Sink, error) {
	format := report.FormatJSON
	if cfg.Report.Format != "" {
		f, err := report.ParseFormat(cfg.Report.Format)
		if err != nil {
			return nil, err
		}
		format = f
	}

	var sinks report.Multi
	if dir := config.ResolveDir(cfg.Report.Dir); dir != "" {
		fs, err := report.NewFileSink(dir, format)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, fs)
	}
	if o := cfg.Report.Object; o.Enabled {
		objSink, err := report.NewObjectSink(report.ObjectConfig{
			Endpoint:  o.Endpoint,
			AccessKey: o.AccessKey,
			SecretKey: o.SecretKey,
			Region:    o.Region,
			Bucket:    o.Bucket,
			Prefix:    o.Prefix,
			UseSSL:    o.UseSSL,
		}, format)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, objSink)
	}

	switch len(sinks) {
	case 0:
		return nil, nil
	case 1:
		return sinks[0], nil
	default:
		return sinks, nil
	}
}

// newPipeline wires an orchestrator from config.
func newPipeline(cfg *config.Config, bus *event.Bus, logger *logging.Logger) (*pipeline.Orchestrator, error) {
	stages, err := stageDescriptors(cfg)
	if err != nil {
		return nil, err
	}

	client := ollama.NewClient(cfg.Ollama.BaseURL, cfg.Ollama.Model)
	resolver := collaborator.NewResolver(
		buildRegistry(cfg, client),
		collaborator.WithLogger(logger),
		collaborator.WithBus(bus),
	)

	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithHistoryLimit(cfg.Pipeline.HistoryLimit),
		pipeline.WithResumePolicy(pipeline.ResumePolicy(cfg.Pipeline.ResumePolicy)),
	}
	sink, err := buildSink(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to set up run reports: %w", err)
	}
	if sink != nil {
		opts = append(opts, pipeline.WithSink(sink))
	}
	if cfg.Pipeline.Preflight && usesOllama(cfg) {
		timeout := cfg.Ollama.PingTimeout()
		opts = append(opts, pipeline.WithPreflight(func(ctx context.Context) error {
			version, err := client.Ping(ctx, timeout)
			if err != nil {
				return err
			}
			logger.Debug("ollama reachable", "version", version)
			return nil
		}))
	}

	return pipeline.NewOrchestrator(pipeline.Config{
		Bus:      bus,
		Resolver: resolver,
		Stages:   stages,
		Retry: pipeline.RetryPolicy{
			MaxAttempts:  cfg.Pipeline.MaxAttempts,
			BackoffDelay: cfg.Pipeline.Backoff(),
		},
		Brief:        briefFrom(cfg.Pipeline.Brief, cfg.Pipeline.Brief.IdeaCount),
		RestartGrace: cfg.Pipeline.RestartGrace(),
	}, opts...)
}

func briefFrom(b config.BriefConfig, count int) production.Brief {
	if b.IdeaCount > 0 {
		count = b.IdeaCount
	}
	return production.Brief{
		Topic:       b.Topic,
		Channel:     b.Channel,
		Description: b.Description,
		Count:       count,
	}
}

// channelBriefs turns the configured presets into briefs. A preset without an
// idea count inherits the default brief's.
func channelBriefs(cfg *config.Config) map[string]production.Brief {
	briefs := make(map[string]production.Brief, len(cfg.Pipeline.Channels))
	for name, ch := range cfg.Pipeline.Channels {
		b := briefFrom(ch, cfg.Pipeline.Brief.IdeaCount)
		b.Channel = name
		briefs[name] = b
	}
	return briefs
}
