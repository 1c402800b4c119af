// Package command adapts an external program into a stage collaborator.
//
// The program is started once per invocation. It receives a JSON request on
// stdin of the form {"method": "...", "input": ...} and must print the JSON
// encoding of the method's result on stdout. A non-zero exit is a stage
// failure; stderr is included in the error.
package command

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/Iron-Ham/autoproducer/internal/errors"
	"github.com/Iron-Ham/autoproducer/internal/production"
)

var (
	_ production.IdeaGenerator    = (*Runner)(nil)
	_ production.ScriptWriter     = (*Runner)(nil)
	_ production.Narrator         = (*Runner)(nil)
	_ production.VisualGenerator  = (*Runner)(nil)
	_ production.MusicComposer    = (*Runner)(nil)
	_ production.VideoEditor      = (*Runner)(nil)
	_ production.AudienceAnalyzer = (*Runner)(nil)
	_ production.Integrator       = (*Runner)(nil)
	_ production.UploadPreparer   = (*Runner)(nil)
)

// waitDelay bounds how long a cancelled program may keep its pipes open.
const waitDelay = 5 * time.Second

// Request is the envelope written to the program's stdin.
type Request struct {
	Method string `json:"method"`
	Input  any    `json:"input"`
}

// ExitError reports a program that exited unsuccessfully.
type ExitError struct {
	Program string
	Code    int
	Stderr  string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Program, e.Code)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// Runner invokes one external program for every capability method.
type Runner struct {
	Path string
	Args []string
	Dir  string
	Env  []string
}

// New resolves program on PATH and returns a Runner for it.
func New(program string, args ...string) (*Runner, error) {
	path, err := exec.LookPath(program)
	if err != nil {
		return nil, fmt.Errorf("collaborator program %q: %w", program, err)
	}
	return &Runner{Path: path, Args: args}, nil
}

// Call runs the program for method, decoding its stdout into out.
func (r *Runner) Call(ctx context.Context, method string, in, out any) error {
	payload, err := json.Marshal(Request{Method: method, Input: in})
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	cmd := exec.CommandContext(ctx, r.Path, r.Args...)
	cmd.Dir = r.Dir
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}
	cmd.Stdin = bytes.NewReader(payload)
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", method, context.Cause(ctx))
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExitError{
				Program: r.Path,
				Code:    exitErr.ExitCode(),
				Stderr:  strings.TrimSpace(stderr.String()),
			}
		}
		return fmt.Errorf("failed to run %s: %w", r.Path, err)
	}

	if out == nil || stdout.Len() == 0 {
		return nil
	}
	if err := json.Unmarshal(stdout.Bytes(), out); err != nil {
		return fmt.Errorf("failed to decode %s output: %w", method, err)
	}
	return nil
}

func (r *Runner) GenerateIdeas(ctx context.Context, brief production.Brief) ([]production.Idea, error) {
	var out []production.Idea
	err := r.Call(ctx, "GenerateIdeas", brief, &out)
	return out, err
}

func (r *Runner) WriteScripts(ctx context.Context, ideas []production.Idea) ([]production.Script, error) {
	var out []production.Script
	err := r.Call(ctx, "WriteScripts", ideas, &out)
	return out, err
}

func (r *Runner) Narrate(ctx context.Context, scripts []production.Script) ([]production.Narration, error) {
	var out []production.Narration
	err := r.Call(ctx, "Narrate", scripts, &out)
	return out, err
}

func (r *Runner) GenerateVisuals(ctx context.Context, scripts []production.Script) ([]production.Visual, error) {
	var out []production.Visual
	err := r.Call(ctx, "GenerateVisuals", scripts, &out)
	return out, err
}

func (r *Runner) ComposeMusic(ctx context.Context, scripts []production.Script) ([]production.Track, error) {
	var out []production.Track
	err := r.Call(ctx, "ComposeMusic", scripts, &out)
	return out, err
}

func (r *Runner) Assemble(ctx context.Context, in production.AssemblyInput) ([]production.Video, error) {
	var out []production.Video
	err := r.Call(ctx, "Assemble", in, &out)
	return out, err
}

func (r *Runner) Analyze(ctx context.Context, videos []production.Video) ([]production.Analysis, error) {
	var out []production.Analysis
	err := r.Call(ctx, "Analyze", videos, &out)
	return out, err
}

func (r *Runner) Integrate(ctx context.Context, b production.Bundle) (production.IntegrationReport, error) {
	var out production.IntegrationReport
	err := r.Call(ctx, "Integrate", b, &out)
	return out, err
}

func (r *Runner) PrepareUploads(ctx context.Context, in production.UploadInput) ([]production.UploadPackage, error) {
	var out []production.UploadPackage
	err := r.Call(ctx, "PrepareUploads", in, &out)
	return out, err
}
