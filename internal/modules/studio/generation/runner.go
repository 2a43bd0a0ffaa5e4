// Package generation drives draft and illustration versions from admission to a terminal status.
package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	domainagg "github.com/yungbote/memoir-studio-backend/internal/domain/aggregates"
	"github.com/yungbote/memoir-studio-backend/internal/domain/studio"
	"github.com/yungbote/memoir-studio-backend/internal/modules/studio/ratelimit"
	"github.com/yungbote/memoir-studio-backend/internal/observability"
	"github.com/yungbote/memoir-studio-backend/internal/platform/dbctx"
	"github.com/yungbote/memoir-studio-backend/internal/platform/logger"
)

const (
	WarningGenerationFailed = "GENERATION_FAILED"
	WarningTimedOut         = "GENERATION_TIMEOUT"

	defaultTimeout  = 5 * time.Minute
	finalizeTimeout = 15 * time.Second
)

// SlotSource resolves the template slots of a chapter.
type SlotSource interface {
	SlotsForChapter(dbc dbctx.Context, chapterID uuid.UUID) (string, []studio.TemplateSlot, error)
}

// Finished describes a version that reached a terminal status.
type Finished struct {
	Kind              studio.VersionKind `json:"kind"`
	ChapterInstanceID uuid.UUID          `json:"chapter_instance_id"`
	VersionID         uuid.UUID          `json:"version_id"`
	Version           int                `json:"version"`
	Status            string             `json:"status"`
	Warnings          []studio.Warning   `json:"warnings"`
}

type Deps struct {
	Log     *logger.Logger
	Metrics *observability.Metrics

	Versions domainagg.GenerationVersionAggregate
	Limiter  ratelimit.Limiter
	Slots    SlotSource
	Writer   DraftWriter
	Images   ImageSearcher
	Media    MediaStore

	LeaseTTL time.Duration
	Timeout  time.Duration
	// CandidatesPerSlot bounds image searches. Defaults to 5.
	CandidatesPerSlot int

	OnFinished func(ctx context.Context, f Finished)
}

// Started is returned once a version row has been admitted as generating.
type Started struct {
	Kind               studio.VersionKind `json:"kind"`
	ChapterInstanceID  uuid.UUID          `json:"chapter_instance_id"`
	VersionID          uuid.UUID          `json:"version_id"`
	Version            int                `json:"version"`
	Fingerprint        string             `json:"fingerprint"`
	LeaseExpiresAt     time.Time          `json:"lease_expires_at"`
	ReclaimedVersionID *uuid.UUID         `json:"reclaimed_version_id,omitempty"`
}

type Runner struct {
	deps Deps
	log  *logger.Logger
	wg   sync.WaitGroup
}

func NewRunner(deps Deps) *Runner {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if deps.Timeout <= 0 {
		deps.Timeout = defaultTimeout
	}
	if deps.CandidatesPerSlot <= 0 {
		deps.CandidatesPerSlot = 5
	}
	return &Runner{deps: deps, log: deps.Log.With("module", "generation")}
}

// Wait blocks until every spawned generation has finalized its version row.
func (r *Runner) Wait() { r.wg.Wait() }

type work func(ctx context.Context) (json.RawMessage, []studio.Warning, error)

// admit applies the per-subject rate limit.
func (r *Runner) admit(ctx context.Context, kind studio.VersionKind, subject string) error {
	if r.deps.Limiter == nil {
		return nil
	}
	d, err := r.deps.Limiter.Allow(ctx, subject)
	if err != nil {
		// A broken counter store must not block generation.
		r.log.Warn("rate limiter unavailable", "kind", kind, "error", err)
		return nil
	}
	if d.Allowed {
		return nil
	}
	r.deps.Metrics.IncRateLimited(string(kind))
	r.deps.Metrics.IncGenerationStarted(string(kind), "rate_limited")
	secs := int(d.RetryAfter.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return studio.Errorf(studio.CodeRateLimited, "generation limit of %d per window reached; retry in %ds", d.Limit, secs)
}

func (r *Runner) begin(ctx context.Context, kind studio.VersionKind, chapterID uuid.UUID, fp string) (Started, error) {
	res, err := r.deps.Versions.Begin(ctx, domainagg.BeginVersionInput{
		ChapterInstanceID: chapterID,
		Kind:              kind,
		Fingerprint:       fp,
		LeaseTTL:          r.deps.LeaseTTL,
	})
	if err != nil {
		outcome := "error"
		if code := studio.CodeOf(err); code != "" {
			outcome = strings.ToLower(string(code))
		}
		r.deps.Metrics.IncGenerationStarted(string(kind), outcome)
		return Started{}, err
	}
	r.deps.Metrics.IncGenerationStarted(string(kind), "admitted")
	if res.ReclaimedVersionID != nil {
		r.log.Warn("reclaimed abandoned generation", "kind", kind, "chapter_instance_id", chapterID, "version_id", *res.ReclaimedVersionID)
	}
	return Started{
		Kind:               kind,
		ChapterInstanceID:  chapterID,
		VersionID:          res.VersionID,
		Version:            res.Version,
		Fingerprint:        fp,
		LeaseExpiresAt:     res.LeaseExpiresAt,
		ReclaimedVersionID: res.ReclaimedVersionID,
	}, nil
}

// spawn runs fn in the background and always leaves the version row terminal.
func (r *Runner) spawn(ctx context.Context, s Started, fn work) {
	base := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		start := time.Now()
		runCtx, span := observability.StartSpan(base, "studio.generate",
			attribute.String("kind", string(s.Kind)),
			attribute.String("chapter_instance_id", s.ChapterInstanceID.String()),
			attribute.Int("version", s.Version),
		)
		runCtx, cancel := context.WithTimeout(runCtx, r.deps.Timeout)
		payload, warnings, err := r.safeRun(runCtx, fn)
		if err == nil && runCtx.Err() != nil {
			err = runCtx.Err()
		}
		timedOut := errors.Is(runCtx.Err(), context.DeadlineExceeded)
		cancel()
		observability.EndSpan(span, err)

		finCtx, finCancel := context.WithTimeout(base, finalizeTimeout)
		defer finCancel()
		status := studio.VersionStatusReady
		if err != nil {
			status = studio.VersionStatusError
			w := studio.Warning{Code: WarningGenerationFailed, Message: err.Error()}
			if timedOut {
				w = studio.Warning{Code: WarningTimedOut, Message: fmt.Sprintf("generation exceeded %s", r.deps.Timeout)}
			}
			warnings = append(warnings, w)
			_, ferr := r.deps.Versions.SetError(finCtx, domainagg.SetVersionErrorInput{
				Kind:      s.Kind,
				VersionID: s.VersionID,
				Warnings:  warnings,
			})
			if ferr != nil {
				r.log.Error("failed to record generation error", "kind", s.Kind, "version_id", s.VersionID, "error", ferr)
			}
			r.log.Warn("generation failed", "kind", s.Kind, "chapter_instance_id", s.ChapterInstanceID, "version", s.Version, "error", err)
		} else {
			_, ferr := r.deps.Versions.SetReady(finCtx, domainagg.SetVersionReadyInput{
				Kind:      s.Kind,
				VersionID: s.VersionID,
				Payload:   payload,
				Warnings:  warnings,
			})
			if ferr != nil {
				status = studio.VersionStatusError
				r.log.Error("failed to record generation result", "kind", s.Kind, "version_id", s.VersionID, "error", ferr)
			} else {
				r.log.Info("generation ready", "kind", s.Kind, "chapter_instance_id", s.ChapterInstanceID, "version", s.Version, "duration_ms", time.Since(start).Milliseconds())
			}
		}
		r.deps.Metrics.IncGenerationFinished(string(s.Kind), status)
		if r.deps.OnFinished != nil {
			r.deps.OnFinished(finCtx, Finished{
				Kind:              s.Kind,
				ChapterInstanceID: s.ChapterInstanceID,
				VersionID:         s.VersionID,
				Version:           s.Version,
				Status:            status,
				Warnings:          warnings,
			})
		}
	}()
}

type outcome struct {
	payload  json.RawMessage
	warnings []studio.Warning
	err      error
}

// safeRun converts panics into errors and stops waiting once ctx is done, even if fn
// ignores cancellation.
func (r *Runner) safeRun(ctx context.Context, fn work) (json.RawMessage, []studio.Warning, error) {
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.log.Error("generation panicked", "panic", rec, "stack", string(debug.Stack()))
				ch <- outcome{err: fmt.Errorf("generation panicked: %v", rec)}
			}
		}()
		p, w, err := fn(ctx)
		ch <- outcome{payload: p, warnings: w, err: err}
	}()
	select {
	case o := <-ch:
		return o.payload, o.warnings, o.err
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}
