package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/memoir-studio-backend/internal/domain/studio"
	"github.com/yungbote/memoir-studio-backend/internal/modules/studio/fingerprint"
	"github.com/yungbote/memoir-studio-backend/internal/modules/studio/mediacache"
	"github.com/yungbote/memoir-studio-backend/internal/modules/studio/templates"
	"github.com/yungbote/memoir-studio-backend/internal/platform/dbctx"
	"github.com/yungbote/memoir-studio-backend/internal/platform/unsplash"
)

const (
	WarningSlotFailed = "ILLUSTRATION_SLOT_FAILED"

	searchConcurrency = 4
)

// Candidate is one image a slot could use. Fetch is only called on a media cache miss.
type Candidate struct {
	Provider    string
	SourceID    string
	Description string
	Attribution studio.Attribution
	Fetch       mediacache.FetchFunc
}

type ImageSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]Candidate, error)
}

// MediaStore is satisfied by *mediacache.Cache.
type MediaStore interface {
	CreateOrGetBySource(ctx context.Context, provider, sourceID string, fetch mediacache.FetchFunc) (mediacache.Result, error)
}

type StartIllustrationsInput struct {
	ChapterInstanceID uuid.UUID
	// Targets overrides the template's image slots when set.
	Targets []fingerprint.SlotTarget
	Subject string
}

// StartIllustrations searches candidates for every image slot, admits an illustration
// version and stores one picture per slot in the background.
func (r *Runner) StartIllustrations(ctx context.Context, in StartIllustrationsInput) (Started, error) {
	if in.ChapterInstanceID == uuid.Nil {
		return Started{}, studio.Errorf(studio.CodeInvalidInput, "missing chapter_instance_id")
	}
	if r.deps.Images == nil || r.deps.Media == nil || r.deps.Versions == nil || r.deps.Slots == nil {
		return Started{}, studio.Errorf(studio.CodeInternal, "illustration generation not configured")
	}
	targets := in.Targets
	if len(targets) == 0 {
		_, slots, err := r.deps.Slots.SlotsForChapter(dbctx.Context{Ctx: ctx}, in.ChapterInstanceID)
		if err != nil {
			return Started{}, err
		}
		for _, s := range templates.IllustrationTargets(slots) {
			targets = append(targets, fingerprint.SlotTarget{SlotID: s.IllustrationSlotID, Query: s.Query})
		}
	}
	for i := range targets {
		targets[i].SlotID = strings.TrimSpace(targets[i].SlotID)
		targets[i].Query = strings.TrimSpace(targets[i].Query)
		if targets[i].SlotID == "" || targets[i].Query == "" {
			return Started{}, studio.Errorf(studio.CodeInvalidInput, "illustration target %d needs slot_id and query", i)
		}
	}
	if len(targets) == 0 {
		return Started{}, studio.Errorf(studio.CodeNoCandidates, "chapter has no image slots to illustrate")
	}
	if err := r.admit(ctx, studio.VersionKindIllustration, in.Subject); err != nil {
		return Started{}, err
	}

	candidates, err := r.search(ctx, targets)
	if err != nil {
		return Started{}, err
	}

	fp := fingerprint.Illustrations(targets)
	s, err := r.begin(ctx, studio.VersionKindIllustration, in.ChapterInstanceID, fp)
	if err != nil {
		return Started{}, err
	}
	r.spawn(ctx, s, func(ctx context.Context) (json.RawMessage, []studio.Warning, error) {
		payload, warnings, err := r.store(ctx, targets, candidates)
		if err != nil {
			return nil, warnings, err
		}
		raw, err := json.Marshal(payload)
		return raw, warnings, err
	})
	return s, nil
}

func (r *Runner) search(ctx context.Context, targets []fingerprint.SlotTarget) ([][]Candidate, error) {
	out := make([][]Candidate, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(searchConcurrency)
	for i, t := range targets {
		i, t := i, t
		g.Go(func() error {
			found, err := r.deps.Images.Search(gctx, t.Query, r.deps.CandidatesPerSlot)
			if err != nil {
				return fmt.Errorf("search slot %s: %w", t.SlotID, err)
			}
			out[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, t := range targets {
		if len(out[i]) == 0 {
			return nil, studio.Errorf(studio.CodeNoCandidates, "no image candidates for slot %s (%q)", t.SlotID, t.Query)
		}
	}
	return out, nil
}

// store picks the first candidate per slot that the media cache accepts.
func (r *Runner) store(ctx context.Context, targets []fingerprint.SlotTarget, candidates [][]Candidate) (studio.IllustrationPayload, []studio.Warning, error) {
	var (
		payload  studio.IllustrationPayload
		warnings []studio.Warning
		lastErr  error
	)
	for i, t := range targets {
		var picked *studio.IllustrationSlot
		for _, c := range candidates[i] {
			if err := ctx.Err(); err != nil {
				return payload, warnings, err
			}
			res, err := r.deps.Media.CreateOrGetBySource(ctx, c.Provider, c.SourceID, c.Fetch)
			if err != nil {
				lastErr = err
				r.log.Warn("illustration candidate rejected", "slot_id", t.SlotID, "provider", c.Provider, "source_id", c.SourceID, "error", err)
				continue
			}
			picked = &studio.IllustrationSlot{
				SlotID:       t.SlotID,
				MediaAssetID: res.Asset.ID,
				Attribution:  res.Asset.Attribution(),
			}
			break
		}
		if picked == nil {
			warnings = append(warnings, studio.Warning{
				Code:    WarningSlotFailed,
				Message: fmt.Sprintf("no usable image for slot %s", t.SlotID),
			})
			continue
		}
		payload.Slots = append(payload.Slots, *picked)
	}
	if len(payload.Slots) == 0 {
		if lastErr == nil {
			lastErr = fmt.Errorf("no usable images")
		}
		return payload, warnings, fmt.Errorf("no slot could be illustrated: %w", lastErr)
	}
	return payload, warnings, nil
}

// UnsplashSearcher adapts the Unsplash client to ImageSearcher.
type UnsplashSearcher struct {
	Client unsplash.Client
}

func (s UnsplashSearcher) Search(ctx context.Context, query string, limit int) ([]Candidate, error) {
	photos, err := s.Client.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(photos))
	for _, p := range photos {
		p := p
		out = append(out, Candidate{
			Provider:    unsplash.Provider,
			SourceID:    p.ID,
			Description: p.Description,
			Attribution: studio.Attribution{AuthorName: p.AuthorName, LicenseURL: unsplash.LicenseURL},
			Fetch: func(ctx context.Context) (*mediacache.Fetched, error) {
				return s.download(ctx, p)
			},
		})
	}
	return out, nil
}

// FetchSource downloads a known photo by id.
func (s UnsplashSearcher) FetchSource(ctx context.Context, sourceID string) (*mediacache.Fetched, error) {
	p, err := s.Client.Photo(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	return s.download(ctx, p)
}

func (s UnsplashSearcher) download(ctx context.Context, p unsplash.Photo) (*mediacache.Fetched, error) {
	body, mime, err := s.Client.Download(ctx, p)
	if err != nil {
		return nil, err
	}
	return &mediacache.Fetched{
		Body:        body,
		MimeType:    mime,
		Attribution: studio.Attribution{AuthorName: p.AuthorName, LicenseURL: unsplash.LicenseURL},
	}, nil
}
