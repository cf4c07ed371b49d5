package resilience

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/danielpatrickdp/tradeflow/go-controller/internal/pipeline"
)

// #endregion

// #region stage
// Stage is a stage function bound to its execution policy. A Stage holds no
// per-request state and may be run concurrently for independent requests.
type Stage struct {
	cfg     StageConfig
	field   pipeline.Field
	timeout time.Duration
	fn      StageFunc
	monitor *Monitor
}

// NewStage validates cfg and binds fn to it. Configuration errors surface
// here, at pipeline construction, never during a run.
func NewStage(cfg StageConfig, fn StageFunc, monitor *Monitor) (*Stage, error) {
	if fn == nil {
		return nil, fmt.Errorf("stage %q: nil stage function", cfg.Name)
	}
	if cfg.Name == "" {
		cfg.Name = string(cfg.Role)
	}
	field, ok := pipeline.OutputField(cfg.Role)
	if !ok {
		return nil, fmt.Errorf("stage %q: role %q: %w", cfg.Name, cfg.Role, ErrUnmappedRole)
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("stage %q: max retries must be >= 0, got %d", cfg.Name, cfg.MaxRetries)
	}
	if cfg.RetryDelay < 0 {
		return nil, fmt.Errorf("stage %q: retry delay must be >= 0", cfg.Name)
	}
	if cfg.Fallback != nil {
		if err := pipeline.ValidateUpdate(cfg.Fallback); err != nil {
			return nil, fmt.Errorf("stage %q: fallback: %w", cfg.Name, err)
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = pipeline.DefaultTimeout(cfg.Role)
	}

	return &Stage{
		cfg:     cfg,
		field:   field,
		timeout: timeout,
		fn:      fn,
		monitor: monitor,
	}, nil
}

// Name returns the stage name used in execution records.
func (s *Stage) Name() string { return s.cfg.Name }

// Role returns the role the stage writes for.
func (s *Stage) Role() pipeline.Role { return s.cfg.Role }

// Field returns the output field the stage owns.
func (s *Stage) Field() pipeline.Field { return s.field }

// Timeout returns the effective per-attempt timeout.
func (s *Stage) Timeout() time.Duration { return s.timeout }

// #endregion stage

// #region run
// Run executes the stage with timeout and bounded retries. It never fails:
// on terminal failure the result carries the fallback update and State is
// StateDegraded. If ctx is cancelled no further attempts are made.
func (s *Stage) Run(ctx context.Context, sc *pipeline.SharedContext) Result {
	var (
		lastErr     error
		lastOutcome Outcome
		attempt     int
	)

	for attempt = 1; ; attempt++ {
		start := time.Now()
		update, outcome, err := s.attempt(ctx, sc)
		elapsed := time.Since(start)

		rec := StageExecutionRecord{
			Stage:      s.cfg.Name,
			Attempt:    attempt,
			DurationMs: elapsed.Milliseconds(),
			Outcome:    outcome,
			At:         start.UTC(),
		}
		if err != nil {
			rec.ErrorMessage = err.Error()
		}
		s.monitor.Record(rec)

		if outcome == OutcomeSuccess {
			return Result{
				Update:   update,
				State:    StateSucceeded,
				Attempts: attempt,
				Outcome:  outcome,
			}
		}

		lastErr, lastOutcome = err, outcome
		if ctx.Err() != nil || attempt > s.cfg.MaxRetries {
			break
		}

		log.Printf("[STAGE] %s attempt %d %s: %v; retrying in %s",
			s.cfg.Name, attempt, outcome, err, s.cfg.RetryDelay)
		if !sleepCtx(ctx, s.cfg.RetryDelay) {
			break
		}
	}

	log.Printf("[STAGE] %s degraded after %d attempt(s): %v", s.cfg.Name, attempt, lastErr)
	return Result{
		Update:   s.fallback(lastErr),
		State:    StateDegraded,
		Attempts: attempt,
		Outcome:  lastOutcome,
		Err:      lastErr,
	}
}

// #endregion run

// #region attempt
type attemptResult struct {
	update pipeline.Update
	err    error
}

// attempt runs fn once under the stage timeout. The call runs on its own
// goroutine; on timeout it is abandoned and its late result is dropped into
// a buffered channel nobody reads.
func (s *Stage) attempt(ctx context.Context, sc *pipeline.SharedContext) (pipeline.Update, Outcome, error) {
	actx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ch := make(chan attemptResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- attemptResult{err: fmt.Errorf("stage panicked: %v", r)}
			}
		}()
		u, err := s.fn(actx, sc)
		ch <- attemptResult{update: u, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			if errors.Is(r.err, context.DeadlineExceeded) && errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, OutcomeTimeout, fmt.Errorf("%w after %s", ErrStageTimeout, s.timeout)
			}
			return nil, OutcomeError, r.err
		}
		if err := pipeline.ValidateUpdate(r.update); err != nil {
			return nil, OutcomeError, fmt.Errorf("invalid update: %w", err)
		}
		if r.update == nil {
			r.update = pipeline.Update{}
		}
		return r.update, OutcomeSuccess, nil

	case <-actx.Done():
		if err := ctx.Err(); err != nil {
			return nil, OutcomeError, fmt.Errorf("request cancelled: %w", err)
		}
		return nil, OutcomeTimeout, fmt.Errorf("%w after %s", ErrStageTimeout, s.timeout)
	}
}

// #endregion attempt

// #region fallback
func (s *Stage) fallback(cause error) pipeline.Update {
	if s.cfg.Fallback != nil {
		return pipeline.Update{}.Merge(s.cfg.Fallback)
	}
	msg := "stage failed"
	if cause != nil {
		msg = cause.Error()
	}
	return pipeline.Update{s.field: pipeline.DegradedMarker(s.cfg.Role, msg)}
}

// sleepCtx waits d or until ctx is done. Returns false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// #endregion fallback
