package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/memoir-studio-backend/internal/domain/studio"
	"github.com/yungbote/memoir-studio-backend/internal/modules/studio/generation"
	"github.com/yungbote/memoir-studio-backend/internal/platform/logger"
	"github.com/yungbote/memoir-studio-backend/internal/realtime/bus"
)

const (
	DefaultStatusChannel     = "studio:status"
	DefaultGenerationChannel = "studio:generation"
)

// StudioNotifier publishes studio badges and generation completions for the UI.
type StudioNotifier interface {
	StatusChanged(ctx context.Context, chapterID uuid.UUID, status string, at time.Time)
	GenerationFinished(ctx context.Context, f generation.Finished)
}

type studioNotifier struct {
	log               *logger.Logger
	bus               bus.Bus
	statusChannel     string
	generationChannel string
}

func NewStudioNotifier(log *logger.Logger, b bus.Bus, statusChannel, generationChannel string) StudioNotifier {
	if statusChannel == "" {
		statusChannel = DefaultStatusChannel
	}
	if generationChannel == "" {
		generationChannel = DefaultGenerationChannel
	}
	return &studioNotifier{
		log:               log.With("service", "StudioNotifier"),
		bus:               b,
		statusChannel:     statusChannel,
		generationChannel: generationChannel,
	}
}

func (n *studioNotifier) StatusChanged(ctx context.Context, chapterID uuid.UUID, status string, at time.Time) {
	if n.bus == nil {
		return
	}
	ev := studio.StudioStatusEvent{ChapterInstanceID: chapterID, Status: status, UpdatedAt: at.UTC()}
	if err := n.bus.Publish(ctx, n.statusChannel, ev); err != nil {
		n.log.Warn("publish studio status failed", "chapter_instance_id", chapterID, "status", status, "error", err)
	}
}

func (n *studioNotifier) GenerationFinished(ctx context.Context, f generation.Finished) {
	if n.bus == nil {
		return
	}
	if err := n.bus.Publish(ctx, n.generationChannel, f); err != nil {
		n.log.Warn("publish generation finished failed", "chapter_instance_id", f.ChapterInstanceID, "kind", f.Kind, "error", err)
	}
}
