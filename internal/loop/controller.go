// Package loop orchestrates the repair cycle:
//
//	Configuring → Building → (Success | Diagnosing) → Repairing → Building …
//
// terminating in Succeeded, ExhaustedAttempts, or FatalError. The controller
// is the only component holding cross-iteration state: the attempt history,
// the retry counter, and the hashes used for the non-convergence guard.
package loop

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"mend/internal/diagnostic"
	"mend/internal/llm"
	"mend/internal/logging"
	"mend/internal/repair"
	"mend/internal/store"
	"mend/internal/toolchain"
)

// Outcome is a terminal state of one controller run.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeExhausted Outcome = "exhausted"
	OutcomeFatal     Outcome = "fatal"
)

// Attempt is one loop iteration's outcome. Immutable once the iteration
// ends; retained for reporting only, never re-applied.
type Attempt struct {
	// Index is the 1-based sequence number.
	Index int

	// BuildSucceeded is true when this iteration's build exited zero.
	BuildSucceeded bool

	// DiagnosticsConsidered preserves the parsed sequence for audit.
	DiagnosticsConsidered []diagnostic.Diagnostic

	// Selected is the diagnostic acted on, when any.
	Selected *diagnostic.Diagnostic

	// PatchedFile is the path patched this attempt, empty when no patch
	// was applied (e.g. an unrecognized error).
	PatchedFile string

	// Failure records a repair-stage failure attributed to this attempt.
	Failure string
}

// Result is the terminal report of a run.
type Result struct {
	RunID    string
	Outcome  Outcome
	Attempts []Attempt

	// Err carries the fatal cause when Outcome is OutcomeFatal.
	Err error
}

// BuildRunner abstracts the external toolchain.
type BuildRunner interface {
	Configure(ctx context.Context) (*toolchain.Result, error)
	Build(ctx context.Context) (*toolchain.Result, error)
}

// ContextBuilder abstracts repair-context assembly.
type ContextBuilder interface {
	Build(d diagnostic.Diagnostic) (*repair.Context, error)
}

// Requester abstracts the reasoning-service round trip.
type Requester interface {
	Request(ctx context.Context, rc *repair.Context) (string, error)
}

// Applier abstracts patch application.
type Applier interface {
	Apply(path, content string, attempt int) error
}

// Invalidator is the hook the controller uses to discard the symbol cache
// after a patch lands.
type Invalidator interface {
	Invalidate()
}

// Controller sequences the repair loop.
type Controller struct {
	runner    BuildRunner
	builder   ContextBuilder
	requester Requester
	applier   Applier
	index     Invalidator
	history   *store.HistoryStore // optional

	maxAttempts int
	projectRoot string

	// appliedHashes guards against oscillation: per-file SHA-256 of every
	// applied replacement. Re-proposing previously applied content means
	// the service is cycling, not converging.
	appliedHashes map[string]map[string]bool

	// lastUnrecognized is the raw text of the previous attempt's
	// unrecognized diagnostic; an identical repeat ends the run early.
	lastUnrecognized string
}

// New assembles a controller.
func New(runner BuildRunner, builder ContextBuilder, requester Requester,
	applier Applier, index Invalidator, history *store.HistoryStore,
	projectRoot string, maxAttempts int) *Controller {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Controller{
		runner:        runner,
		builder:       builder,
		requester:     requester,
		applier:       applier,
		index:         index,
		history:       history,
		maxAttempts:   maxAttempts,
		projectRoot:   projectRoot,
		appliedHashes: make(map[string]map[string]bool),
	}
}

// Run executes the state machine until a terminal outcome. Cancellation is
// checked at each state transition; on cancel the run terminates immediately
// with the attempt history preserved. Already-applied patches stay on disk —
// the applier's backups allow manual recovery.
func (c *Controller) Run(ctx context.Context) *Result {
	result := &Result{RunID: uuid.NewString()}
	c.history.BeginRun(result.RunID, c.projectRoot)
	defer func() {
		c.history.FinishRun(result.RunID, string(result.Outcome), len(result.Attempts))
	}()

	// Configuring. A failure here is fatal with no retry: source patching
	// cannot fix a broken project setup.
	if err := ctx.Err(); err != nil {
		return c.fatal(result, err)
	}
	logging.Loop("run %s: configuring", result.RunID)
	confRes, err := c.runner.Configure(ctx)
	if err != nil {
		return c.fatal(result, fmt.Errorf("configure step: %w", err))
	}
	if !confRes.Succeeded() {
		return c.fatal(result, fmt.Errorf("configure failed with exit code %d:\n%s",
			confRes.ExitCode, confRes.Output))
	}

	// The budget caps Repairing transitions. One extra iteration is allowed
	// so the final applied patch still gets its verification build.
	repairs := 0
	for attemptIdx := 1; attemptIdx <= c.maxAttempts+1; attemptIdx++ {
		if err := ctx.Err(); err != nil {
			return c.fatal(result, err)
		}

		attempt := Attempt{Index: attemptIdx}
		logging.Loop("run %s: building (attempt %d, %d/%d repairs used)",
			result.RunID, attemptIdx, repairs, c.maxAttempts)

		// Building.
		buildRes, err := c.runner.Build(ctx)
		if err != nil {
			attempt.Failure = err.Error()
			c.record(result, attempt)
			return c.fatal(result, fmt.Errorf("build step: %w", err))
		}
		if buildRes.Succeeded() {
			attempt.BuildSucceeded = true
			c.record(result, attempt)
			result.Outcome = OutcomeSucceeded
			logging.Loop("run %s: build succeeded on attempt %d", result.RunID, attemptIdx)
			return result
		}

		// Diagnosing.
		if err := ctx.Err(); err != nil {
			c.record(result, attempt)
			return c.fatal(result, err)
		}
		diags := diagnostic.Parse(buildRes.Output, buildRes.ExitCode)
		attempt.DiagnosticsConsidered = diags

		selected, ok := diagnostic.Select(diags)
		if !ok {
			// Errors drove the non-zero exit but none were
			// structurally recognizable (e.g. warnings only in the
			// parse); fall back to the raw output.
			selected = diagnostic.Diagnostic{
				Severity: diagnostic.SeverityError,
				Message:  buildRes.Output,
				Kind:     diagnostic.KindUnrecognized,
			}
		}
		attempt.Selected = &selected

		if selected.Kind == diagnostic.KindUnrecognized {
			if c.lastUnrecognized == selected.Message {
				// Repeating an unfixable, unparseable failure is
				// not productive.
				c.record(result, attempt)
				result.Outcome = OutcomeExhausted
				logging.Loop("run %s: identical unrecognized failure twice, giving up", result.RunID)
				return result
			}
			c.lastUnrecognized = selected.Message
			c.record(result, attempt)
			continue
		}
		c.lastUnrecognized = ""

		if repairs >= c.maxAttempts {
			c.record(result, attempt)
			result.Outcome = OutcomeExhausted
			logging.Loop("run %s: repair budget (%d) exhausted", result.RunID, c.maxAttempts)
			return result
		}

		// Repairing.
		if err := ctx.Err(); err != nil {
			c.record(result, attempt)
			return c.fatal(result, err)
		}
		repairs++
		done := c.repairOne(ctx, result, &attempt, selected)
		c.record(result, attempt)
		if done {
			return result
		}
	}

	result.Outcome = OutcomeExhausted
	logging.Loop("run %s: iteration budget exhausted without a recognized fix", result.RunID)
	return result
}

// repairOne runs ContextBuilder → Requester → Applier for one diagnostic.
// Returns true when the run reached a terminal outcome (set on result).
func (c *Controller) repairOne(ctx context.Context, result *Result, attempt *Attempt, d diagnostic.Diagnostic) bool {
	rc, err := c.builder.Build(d)
	if err != nil {
		// An unreadable target is an environment problem, same class
		// as a write failure.
		attempt.Failure = err.Error()
		c.fatal(result, fmt.Errorf("context building: %w", err))
		return true
	}

	candidate, err := c.requester.Request(ctx, rc)
	if err != nil {
		switch {
		case errors.Is(err, repair.ErrMalformedResponse), errors.Is(err, llm.ErrTimeout):
			// Consumed against the attempt budget; the build failure
			// is unchanged, so the service is asked again next cycle.
			attempt.Failure = err.Error()
			logging.Loop("attempt %d: retryable service failure: %v", attempt.Index, err)
			return false
		default:
			attempt.Failure = err.Error()
			c.fatal(result, fmt.Errorf("repair request: %w", err))
			return true
		}
	}

	if c.seenBefore(rc.TargetFile, candidate) {
		attempt.Failure = "service re-proposed previously applied content"
		result.Outcome = OutcomeExhausted
		logging.Loop("attempt %d: non-convergent proposal for %s, giving up", attempt.Index, rc.TargetFile)
		return true
	}

	if err := c.applier.Apply(rc.TargetFile, candidate, attempt.Index); err != nil {
		attempt.Failure = err.Error()
		c.fatal(result, fmt.Errorf("patch apply: %w", err))
		return true
	}
	attempt.PatchedFile = rc.TargetFile
	c.markApplied(rc.TargetFile, candidate)

	// The write changed source content and therefore symbol locations;
	// the cached project snapshot is stale.
	c.index.Invalidate()
	return false
}

func (c *Controller) seenBefore(path, content string) bool {
	return c.appliedHashes[path][hashContent(content)]
}

func (c *Controller) markApplied(path, content string) {
	if c.appliedHashes[path] == nil {
		c.appliedHashes[path] = make(map[string]bool)
	}
	c.appliedHashes[path][hashContent(content)] = true
}

func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func (c *Controller) record(result *Result, attempt Attempt) {
	result.Attempts = append(result.Attempts, attempt)

	rec := store.AttemptRecord{
		Index:          attempt.Index,
		BuildSucceeded: attempt.BuildSucceeded,
		PatchedFile:    attempt.PatchedFile,
		Failure:        attempt.Failure,
	}
	if attempt.Selected != nil {
		rec.Kind = string(attempt.Selected.Kind)
		rec.Diagnostic = attempt.Selected.String()
	}
	c.history.RecordAttempt(result.RunID, rec)
}

func (c *Controller) fatal(result *Result, err error) *Result {
	result.Outcome = OutcomeFatal
	result.Err = err
	logging.Loop("run %s: fatal: %v", result.RunID, err)
	return result
}
