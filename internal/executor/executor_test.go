package executor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Iron-Ham/autoproducer/internal/errors"
	"github.com/Iron-Ham/autoproducer/internal/stage"
)

func desc(timeout time.Duration) stage.Descriptor {
	return stage.Descriptor{Name: "script", Ordinal: 2, Timeout: timeout, Criticality: stage.Required}
}

func drain(t *testing.T, e *Executor) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
}

func TestExecute_Success(t *testing.T) {
	e := New()
	res := e.Execute(context.Background(), desc(time.Second), func(_ context.Context, in any) (any, error) {
		return in.(string) + "!", nil
	}, "hi")

	if res.Status != stage.StatusSuccess {
		t.Fatalf("Status = %s, want success (err %v)", res.Status, res.Err)
	}
	if res.Payload != "hi!" {
		t.Errorf("Payload = %v, want hi!", res.Payload)
	}
	if res.StageName != "script" || res.Ordinal != 2 {
		t.Errorf("descriptor not copied: %+v", res)
	}
	if res.Elapsed <= 0 || res.Elapsed > time.Second {
		t.Errorf("Elapsed = %v", res.Elapsed)
	}
}

func TestExecute_Error(t *testing.T) {
	e := New()
	boom := fmt.Errorf("boom")
	res := e.Execute(context.Background(), desc(time.Second), func(context.Context, any) (any, error) {
		return nil, boom
	}, nil)

	if res.Status != stage.StatusError {
		t.Fatalf("Status = %s, want error", res.Status)
	}
	if !errors.Is(res.Err, errors.ErrStageException) || !errors.Is(res.Err, boom) {
		t.Errorf("Err = %v, want stage exception wrapping boom", res.Err)
	}
	if res.ErrorDetail != "stage script failed" {
		t.Errorf("ErrorDetail = %q", res.ErrorDetail)
	}
}

func TestExecute_PanicBecomesError(t *testing.T) {
	e := New()
	res := e.Execute(context.Background(), desc(time.Second), func(context.Context, any) (any, error) {
		panic("collaborator exploded")
	}, nil)

	if res.Status != stage.StatusError {
		t.Fatalf("Status = %s, want error", res.Status)
	}
	if !errors.Is(res.Err, errors.ErrStageException) {
		t.Errorf("Err = %v", res.Err)
	}
}

func TestExecute_TimeoutElapsedIsBound(t *testing.T) {
	e := New()
	const bound = 50 * time.Millisecond
	release := make(chan struct{})
	defer close(release)

	res := e.Execute(context.Background(), desc(bound), func(context.Context, any) (any, error) {
		select {
		case <-release:
		case <-time.After(bound + 200*time.Millisecond):
		}
		return "late", nil
	}, nil)

	if res.Status != stage.StatusTimeout {
		t.Fatalf("Status = %s, want timeout", res.Status)
	}
	if res.Elapsed < bound || res.Elapsed > bound+100*time.Millisecond {
		t.Errorf("Elapsed = %v, want about %v", res.Elapsed, bound)
	}
	if res.Payload != nil {
		t.Errorf("timed-out result must discard payload, got %v", res.Payload)
	}
	if !errors.Is(res.Err, errors.ErrStageTimeout) {
		t.Errorf("Err = %v, want stage timeout", res.Err)
	}
	if e.Abandoned() != 1 {
		t.Errorf("Abandoned() = %d, want 1", e.Abandoned())
	}
}

func TestExecute_TimeoutCancelsStageContext(t *testing.T) {
	e := New()
	causes := make(chan error, 1)

	res := e.Execute(context.Background(), desc(20*time.Millisecond), func(ctx context.Context, _ any) (any, error) {
		<-ctx.Done()
		causes <- context.Cause(ctx)
		return nil, ctx.Err()
	}, nil)

	if res.Status != stage.StatusTimeout {
		t.Fatalf("Status = %s, want timeout", res.Status)
	}
	select {
	case cause := <-causes:
		if !errors.Is(cause, errors.ErrStageTimeout) {
			t.Errorf("stage ctx cause = %v, want stage timeout", cause)
		}
	case <-time.After(time.Second):
		t.Fatal("stage context was not cancelled")
	}
	drain(t, e)
	if e.Abandoned() != 0 {
		t.Errorf("Abandoned() = %d after drain", e.Abandoned())
	}
}

func TestExecute_AbandonedCap(t *testing.T) {
	e := New(WithMaxAbandoned(1))
	release := make(chan struct{})

	hang := func(context.Context, any) (any, error) {
		<-release
		return nil, nil
	}

	first := e.Execute(context.Background(), desc(10*time.Millisecond), hang, nil)
	if first.Status != stage.StatusTimeout {
		t.Fatalf("first Status = %s, want timeout", first.Status)
	}

	called := false
	second := e.Execute(context.Background(), desc(time.Second), func(context.Context, any) (any, error) {
		called = true
		return nil, nil
	}, nil)
	if second.Status != stage.StatusError || !errors.Is(second.Err, ErrTooManyAbandoned) {
		t.Fatalf("second = %s / %v, want refusal", second.Status, second.Err)
	}
	if called {
		t.Error("refused stage must not be invoked")
	}

	close(release)
	drain(t, e)

	third := e.Execute(context.Background(), desc(time.Second), func(context.Context, any) (any, error) {
		return 1, nil
	}, nil)
	if third.Status != stage.StatusSuccess {
		t.Errorf("third Status = %s after drain, want success", third.Status)
	}
}

func TestExecute_ParentCancelReturnsPromptly(t *testing.T) {
	e := New()
	ctx, cancel := context.WithCancelCause(context.Background())
	restart := fmt.Errorf("restart")

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel(restart)
	}()

	start := time.Now()
	res := e.Execute(ctx, desc(5*time.Second), func(c context.Context, _ any) (any, error) {
		<-c.Done()
		return nil, c.Err()
	}, nil)

	if time.Since(start) > time.Second {
		t.Fatal("Execute did not return promptly on parent cancel")
	}
	if res.Status != stage.StatusError {
		t.Fatalf("Status = %s, want error", res.Status)
	}
	if !errors.Is(res.Err, errors.ErrCanceled) || !errors.Is(res.Err, restart) {
		t.Errorf("Err = %v, want canceled wrapping restart cause", res.Err)
	}
	drain(t, e)
}
