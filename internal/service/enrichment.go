package service

import (
	"context"
	"errors"
	"fmt"

	"scan-service/internal/domain/scan"
	"scan-service/internal/repository"
	"scan-service/internal/utils"
)

// Enricher resolves a decoded payload to participant details. A payload that
// matches nothing yields nil info and a nil error.
type Enricher interface {
	Enrich(ctx context.Context, payload string) (*scan.EnrichedInfo, error)
}

// StaticEnricher serves lookups from a fixed participant list.
type StaticEnricher struct {
	byCode map[string]scan.EnrichedInfo
}

func NewStaticEnricher(participants []scan.EnrichedInfo) *StaticEnricher {
	byCode := make(map[string]scan.EnrichedInfo, len(participants))
	for _, p := range participants {
		code := utils.NormalizePayload(p.Code)
		if code == "" {
			continue
		}
		p.Code = code
		byCode[code] = p
	}
	return &StaticEnricher{byCode: byCode}
}

func (e *StaticEnricher) Enrich(ctx context.Context, payload string) (*scan.EnrichedInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEnrichmentFailed, err)
	}
	info, ok := e.byCode[utils.NormalizePayload(payload)]
	if !ok {
		return nil, nil
	}
	return &info, nil
}

type ParticipantFinder interface {
	FindByCode(ctx context.Context, code string) (*repository.Participant, error)
}

// ParticipantEnricher looks payloads up in the participants table.
type ParticipantEnricher struct {
	finder ParticipantFinder
}

func NewParticipantEnricher(finder ParticipantFinder) *ParticipantEnricher {
	return &ParticipantEnricher{finder: finder}
}

func (e *ParticipantEnricher) Enrich(ctx context.Context, payload string) (*scan.EnrichedInfo, error) {
	code := utils.NormalizePayload(payload)
	if code == "" {
		return nil, nil
	}

	p, err := e.finder.FindByCode(ctx, code)
	if errors.Is(err, repository.ErrParticipantNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEnrichmentFailed, err)
	}

	info := &scan.EnrichedInfo{
		Code:       p.Code,
		Name:       p.Name,
		Status:     p.Status,
		Attributes: p.Attributes,
	}
	if p.EventName != nil {
		info.EventName = *p.EventName
	}
	if p.TicketType != nil {
		info.TicketType = *p.TicketType
	}
	return info, nil
}

type ParticipantWriter interface {
	Upsert(ctx context.Context, p *repository.Participant) error
}

// SeedParticipants writes participants keyed by normalized code, skipping
// blank codes.
func SeedParticipants(ctx context.Context, w ParticipantWriter, participants []scan.EnrichedInfo) error {
	for _, info := range participants {
		code := utils.NormalizePayload(info.Code)
		if code == "" {
			continue
		}

		p := &repository.Participant{
			Code:       code,
			Name:       info.Name,
			Status:     info.Status,
			Attributes: info.Attributes,
		}
		if p.Status == "" {
			p.Status = "registered"
		}
		if info.EventName != "" {
			p.EventName = &info.EventName
		}
		if info.TicketType != "" {
			p.TicketType = &info.TicketType
		}

		if err := w.Upsert(ctx, p); err != nil {
			return fmt.Errorf("failed to seed participant %s: %w", code, err)
		}
	}
	return nil
}
