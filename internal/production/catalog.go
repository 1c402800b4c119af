package production

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Iron-Ham/autoproducer/internal/logging"
	"github.com/Iron-Ham/autoproducer/internal/stage"
)

// Capability binds a stage name to its capability interface: how to
// recognize an implementation, how to build its stub, how to call it with
// the attempt's bundle and where its output lands in the bundle.
type Capability struct {
	stage   string
	accepts func(impl any) bool
	stub    func(l *logging.Logger) any
	bind    func(impl any) stage.Func
	apply   func(b *Bundle, payload any)
}

// Stage returns the stage name.
func (c Capability) Stage() string { return c.stage }

// Accepts reports whether impl implements the capability interface.
func (c Capability) Accepts(impl any) bool { return impl != nil && c.accepts(impl) }

// Stub returns the capability's no-op implementation.
func (c Capability) Stub(l *logging.Logger) any { return c.stub(l) }

// Bind adapts impl to the uniform stage contract. The returned function
// expects a Bundle as input; for a stub any other input is read as an
// empty Bundle, so stubs never fail.
func (c Capability) Bind(impl any) (stage.Func, error) {
	if !c.Accepts(impl) {
		return nil, fmt.Errorf("%T does not implement the %s capability", impl, c.stage)
	}
	return c.bind(impl), nil
}

// Apply stores a stage payload in b. A nil or mistyped payload leaves the
// neutral (empty) value in place.
func (c Capability) Apply(b *Bundle, payload any) { c.apply(b, payload) }

// capability builds a Capability for interface I producing O.
func capability[I, O any](name string, wrap func(stub) I, call func(ctx context.Context, impl I, b Bundle) (O, error), apply func(b *Bundle, out O)) Capability {
	return Capability{
		stage: name,
		accepts: func(impl any) bool {
			_, ok := impl.(I)
			return ok
		},
		stub: func(l *logging.Logger) any { return wrap(newStub(name, l)) },
		bind: func(impl any) stage.Func {
			typed := impl.(I)
			_, tolerant := impl.(noop)
			return func(ctx context.Context, input any) (any, error) {
				b, err := bundleFrom(input)
				if err != nil {
					if !tolerant {
						return nil, err
					}
					b = Bundle{}
				}
				return call(ctx, typed, b)
			}
		},
		apply: func(b *Bundle, payload any) {
			if out, ok := payload.(O); ok {
				apply(b, out)
			}
		},
	}
}

func bundleFrom(input any) (Bundle, error) {
	switch v := input.(type) {
	case Bundle:
		return v, nil
	case *Bundle:
		if v != nil {
			return *v, nil
		}
	}
	return Bundle{}, fmt.Errorf("stage input is %T, want production.Bundle", input)
}

var catalog = map[string]Capability{
	StageIdeas: capability(StageIdeas,
		func(s stub) IdeaGenerator { return &StubIdeaGenerator{s} },
		func(ctx context.Context, g IdeaGenerator, b Bundle) ([]Idea, error) { return g.GenerateIdeas(ctx, b.Brief) },
		func(b *Bundle, out []Idea) { b.Ideas = out }),
	StageScript: capability(StageScript,
		func(s stub) ScriptWriter { return &StubScriptWriter{s} },
		func(ctx context.Context, w ScriptWriter, b Bundle) ([]Script, error) { return w.WriteScripts(ctx, b.Ideas) },
		func(b *Bundle, out []Script) { b.Scripts = out }),
	StageNarration: capability(StageNarration,
		func(s stub) Narrator { return &StubNarrator{s} },
		func(ctx context.Context, n Narrator, b Bundle) ([]Narration, error) { return n.Narrate(ctx, b.Scripts) },
		func(b *Bundle, out []Narration) { b.Narrations = out }),
	StageVisuals: capability(StageVisuals,
		func(s stub) VisualGenerator { return &StubVisualGenerator{s} },
		func(ctx context.Context, g VisualGenerator, b Bundle) ([]Visual, error) {
			return g.GenerateVisuals(ctx, b.Scripts)
		},
		func(b *Bundle, out []Visual) { b.Visuals = out }),
	StageMusic: capability(StageMusic,
		func(s stub) MusicComposer { return &StubMusicComposer{s} },
		func(ctx context.Context, m MusicComposer, b Bundle) ([]Track, error) { return m.ComposeMusic(ctx, b.Scripts) },
		func(b *Bundle, out []Track) { b.Tracks = out }),
	StageAssembly: capability(StageAssembly,
		func(s stub) VideoEditor { return &StubVideoEditor{s} },
		func(ctx context.Context, e VideoEditor, b Bundle) ([]Video, error) {
			return e.Assemble(ctx, AssemblyInput{
				Scripts:    b.Scripts,
				Narrations: b.Narrations,
				Visuals:    b.Visuals,
				Tracks:     b.Tracks,
			})
		},
		func(b *Bundle, out []Video) { b.Videos = out }),
	StageAnalysis: capability(StageAnalysis,
		func(s stub) AudienceAnalyzer { return &StubAudienceAnalyzer{s} },
		func(ctx context.Context, a AudienceAnalyzer, b Bundle) ([]Analysis, error) { return a.Analyze(ctx, b.Videos) },
		func(b *Bundle, out []Analysis) { b.Analyses = out }),
	StageIntegration: capability(StageIntegration,
		func(s stub) Integrator { return &StubIntegrator{s} },
		func(ctx context.Context, i Integrator, b Bundle) (IntegrationReport, error) { return i.Integrate(ctx, b) },
		func(b *Bundle, out IntegrationReport) { b.Integration = out }),
	StageUpload: capability(StageUpload,
		func(s stub) UploadPreparer { return &StubUploadPreparer{s} },
		func(ctx context.Context, u UploadPreparer, b Bundle) ([]UploadPackage, error) {
			return u.PrepareUploads(ctx, UploadInput{Videos: b.Videos, Analyses: b.Analyses})
		},
		func(b *Bundle, out []UploadPackage) { b.Uploads = out }),
}

// Lookup returns the capability for a stage name.
func Lookup(name string) (Capability, bool) {
	c, ok := catalog[name]
	return c, ok
}

// StageNames returns every known stage name, sorted.
func StageNames() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultStages returns the standard daily pipeline.
func DefaultStages() []stage.Descriptor {
	return []stage.Descriptor{
		{Name: StageIdeas, Ordinal: 1, Timeout: 30 * time.Second, Criticality: stage.Required},
		{Name: StageScript, Ordinal: 2, Timeout: 30 * time.Second, Criticality: stage.Required},
		{Name: StageNarration, Ordinal: 3, Timeout: 5 * time.Minute, Criticality: stage.Optional},
		{Name: StageVisuals, Ordinal: 4, Timeout: 10 * time.Minute, Criticality: stage.Optional},
		{Name: StageMusic, Ordinal: 5, Timeout: 5 * time.Minute, Criticality: stage.Optional},
		{Name: StageAssembly, Ordinal: 6, Timeout: 20 * time.Minute, Criticality: stage.Required},
		{Name: StageAnalysis, Ordinal: 7, Timeout: 2 * time.Minute, Criticality: stage.Optional},
		{Name: StageIntegration, Ordinal: 8, Timeout: 2 * time.Minute, Criticality: stage.Optional},
		{Name: StageUpload, Ordinal: 9, Timeout: 2 * time.Minute, Criticality: stage.Optional},
	}
}
