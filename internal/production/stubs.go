package production

import (
	"context"

	"github.com/Iron-Ham/autoproducer/internal/logging"
)

// Compile-time checks that every stub satisfies its capability.
var (
	_ IdeaGenerator    = (*StubIdeaGenerator)(nil)
	_ ScriptWriter     = (*StubScriptWriter)(nil)
	_ Narrator         = (*StubNarrator)(nil)
	_ VisualGenerator  = (*StubVisualGenerator)(nil)
	_ MusicComposer    = (*StubMusicComposer)(nil)
	_ VideoEditor      = (*StubVideoEditor)(nil)
	_ AudienceAnalyzer = (*StubAudienceAnalyzer)(nil)
	_ Integrator       = (*StubIntegrator)(nil)
	_ UploadPreparer   = (*StubUploadPreparer)(nil)
)

// stub is embedded by every no-op collaborator. Its methods never fail.
type stub struct {
	stage  string
	logger *logging.Logger
}

func newStub(stage string, l *logging.Logger) stub {
	if l == nil {
		l = logging.NopLogger()
	}
	return stub{stage: stage, logger: l}
}

// noop marks stub collaborators.
type noop interface{ isStub() }

func (stub) isStub() {}

func (s stub) warn(method string) {
	s.logger.Warn("stub collaborator invoked, returning empty result",
		"stage", s.stage, "method", method)
}

// StubIdeaGenerator is the no-op IdeaGenerator.
type StubIdeaGenerator struct{ stub }

// GenerateIdeas logs a warning and returns no ideas.
func (s *StubIdeaGenerator) GenerateIdeas(context.Context, Brief) ([]Idea, error) {
	s.warn("GenerateIdeas")
	return nil, nil
}

// StubScriptWriter is the no-op ScriptWriter.
type StubScriptWriter struct{ stub }

// WriteScripts logs a warning and returns no scripts.
func (s *StubScriptWriter) WriteScripts(context.Context, []Idea) ([]Script, error) {
	s.warn("WriteScripts")
	return nil, nil
}

// StubNarrator is the no-op Narrator.
type StubNarrator struct{ stub }

// Narrate logs a warning and returns no narrations.
func (s *StubNarrator) Narrate(context.Context, []Script) ([]Narration, error) {
	s.warn("Narrate")
	return nil, nil
}

// StubVisualGenerator is the no-op VisualGenerator.
type StubVisualGenerator struct{ stub }

// GenerateVisuals logs a warning and returns no visuals.
func (s *StubVisualGenerator) GenerateVisuals(context.Context, []Script) ([]Visual, error) {
	s.warn("GenerateVisuals")
	return nil, nil
}

// StubMusicComposer is the no-op MusicComposer.
type StubMusicComposer struct{ stub }

// ComposeMusic logs a warning and returns no tracks.
func (s *StubMusicComposer) ComposeMusic(context.Context, []Script) ([]Track, error) {
	s.warn("ComposeMusic")
	return nil, nil
}

// StubVideoEditor is the no-op VideoEditor.
type StubVideoEditor struct{ stub }

// Assemble logs a warning and returns no videos.
func (s *StubVideoEditor) Assemble(context.Context, AssemblyInput) ([]Video, error) {
	s.warn("Assemble")
	return nil, nil
}

// StubAudienceAnalyzer is the no-op AudienceAnalyzer.
type StubAudienceAnalyzer struct{ stub }

// Analyze logs a warning and returns no analyses.
func (s *StubAudienceAnalyzer) Analyze(context.Context, []Video) ([]Analysis, error) {
	s.warn("Analyze")
	return nil, nil
}

// StubIntegrator is the no-op Integrator.
type StubIntegrator struct{ stub }

// Integrate logs a warning and returns an empty report.
func (s *StubIntegrator) Integrate(context.Context, Bundle) (IntegrationReport, error) {
	s.warn("Integrate")
	return IntegrationReport{}, nil
}

// StubUploadPreparer is the no-op UploadPreparer.
type StubUploadPreparer struct{ stub }

// PrepareUploads logs a warning and returns no upload packages.
func (s *StubUploadPreparer) PrepareUploads(context.Context, UploadInput) ([]UploadPackage, error) {
	s.warn("PrepareUploads")
	return nil, nil
}
