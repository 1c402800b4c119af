// Package production holds the content domain of the pipeline: the payloads
// each stage produces, one capability interface per stage category, the
// no-op stub for each capability, and the catalog binding capabilities to
// stage names.
package production

import "time"

// Stage names in default pipeline order.
const (
	StageIdeas       = "ideas"
	StageScript      = "script"
	StageNarration   = "narration"
	StageVisuals     = "visuals"
	StageMusic       = "music"
	StageAssembly    = "assembly"
	StageAnalysis    = "analysis"
	StageIntegration = "integration"
	StageUpload      = "upload"
)

// DefaultTopic is the idea topic used when none is configured.
const DefaultTopic = "History"

// Brief is the input of a run. Description tells idea generators what the
// channel is about.
type Brief struct {
	Topic       string `json:"topic" yaml:"topic"`
	Channel     string `json:"channel,omitempty" yaml:"channel,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Count       int    `json:"count" yaml:"count"`
}

// Idea is a candidate video concept.
type Idea struct {
	Title   string   `json:"title" yaml:"title"`
	Summary string   `json:"summary,omitempty" yaml:"summary,omitempty"`
	Tags    []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Script is the narration text for one idea.
type Script struct {
	Title string `json:"title" yaml:"title"`
	Body  string `json:"body" yaml:"body"`
}

// Narration is a rendered voice-over.
type Narration struct {
	Title     string        `json:"title" yaml:"title"`
	AudioPath string        `json:"audio_path" yaml:"audio_path"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}

// Visual is the imagery generated for one script.
type Visual struct {
	Title      string   `json:"title" yaml:"title"`
	ImagePaths []string `json:"image_paths" yaml:"image_paths"`
}

// Track is a background music track.
type Track struct {
	Title string `json:"title" yaml:"title"`
	Path  string `json:"path" yaml:"path"`
}

// AssemblyInput is everything the video editor consumes.
type AssemblyInput struct {
	Scripts    []Script    `json:"scripts"`
	Narrations []Narration `json:"narrations"`
	Visuals    []Visual    `json:"visuals"`
	Tracks     []Track     `json:"tracks"`
}

// Video is an assembled video file.
type Video struct {
	Title string `json:"title" yaml:"title"`
	Path  string `json:"path" yaml:"path"`
}

// Analysis is the audience analysis of one video.
type Analysis struct {
	Title string   `json:"title" yaml:"title"`
	Score float64  `json:"score" yaml:"score"`
	Notes []string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// IntegrationReport is the daily roll-up across all stage outputs.
type IntegrationReport struct {
	Summary string   `json:"summary" yaml:"summary"`
	Videos  []string `json:"videos,omitempty" yaml:"videos,omitempty"`
}

// UploadPackage is a video ready for distribution.
type UploadPackage struct {
	VideoPath   string   `json:"video_path" yaml:"video_path"`
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description" yaml:"description"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// UploadInput is what the upload preparer consumes.
type UploadInput struct {
	Videos   []Video    `json:"videos"`
	Analyses []Analysis `json:"analyses"`
}

// Bundle accumulates stage outputs within one attempt. Stages receive it by
// value and must treat it as read-only.
type Bundle struct {
	Brief       Brief             `json:"brief" yaml:"brief"`
	Ideas       []Idea            `json:"ideas,omitempty" yaml:"ideas,omitempty"`
	Scripts     []Script          `json:"scripts,omitempty" yaml:"scripts,omitempty"`
	Narrations  []Narration       `json:"narrations,omitempty" yaml:"narrations,omitempty"`
	Visuals     []Visual          `json:"visuals,omitempty" yaml:"visuals,omitempty"`
	Tracks      []Track           `json:"tracks,omitempty" yaml:"tracks,omitempty"`
	Videos      []Video           `json:"videos,omitempty" yaml:"videos,omitempty"`
	Analyses    []Analysis        `json:"analyses,omitempty" yaml:"analyses,omitempty"`
	Integration IntegrationReport `json:"integration" yaml:"integration"`
	Uploads     []UploadPackage   `json:"uploads,omitempty" yaml:"uploads,omitempty"`
}

// NewBundle starts an attempt from a brief.
func NewBundle(brief Brief) *Bundle {
	if brief.Topic == "" {
		brief.Topic = DefaultTopic
	}
	if brief.Count <= 0 {
		brief.Count = 1
	}
	return &Bundle{Brief: brief}
}
