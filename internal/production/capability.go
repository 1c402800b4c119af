package production

import "context"

// IdeaGenerator proposes video ideas for a brief.
type IdeaGenerator interface {
	GenerateIdeas(ctx context.Context, brief Brief) ([]Idea, error)
}

// ScriptWriter turns ideas into narration scripts.
type ScriptWriter interface {
	WriteScripts(ctx context.Context, ideas []Idea) ([]Script, error)
}

// Narrator renders voice-overs for scripts.
type Narrator interface {
	Narrate(ctx context.Context, scripts []Script) ([]Narration, error)
}

// VisualGenerator produces imagery for scripts.
type VisualGenerator interface {
	GenerateVisuals(ctx context.Context, scripts []Script) ([]Visual, error)
}

// MusicComposer produces background tracks for scripts.
type MusicComposer interface {
	ComposeMusic(ctx context.Context, scripts []Script) ([]Track, error)
}

// VideoEditor assembles narration, visuals and music into videos.
type VideoEditor interface {
	Assemble(ctx context.Context, in AssemblyInput) ([]Video, error)
}

// AudienceAnalyzer scores videos for the target audience.
type AudienceAnalyzer interface {
	Analyze(ctx context.Context, videos []Video) ([]Analysis, error)
}

// Integrator rolls the day's outputs into one report.
type Integrator interface {
	Integrate(ctx context.Context, b Bundle) (IntegrationReport, error)
}

// UploadPreparer packages videos for distribution.
type UploadPreparer interface {
	PrepareUploads(ctx context.Context, in UploadInput) ([]UploadPackage, error)
}
