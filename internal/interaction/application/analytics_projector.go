package application

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	logDomain "github.com/davicafu/hexapost/internal/eventlog/domain"
	"github.com/davicafu/hexapost/internal/interaction/domain"
	"github.com/davicafu/hexapost/internal/shared/events"
)

// AnalyticsGroup es el consumer group de la proyección analítica.
const AnalyticsGroup = "interaction-analytics"

// AnalyticsProjector vuelca cada interacción al repositorio analítico.
// Corre en su propio grupo: un ClickHouse lento no frena los contadores.
type AnalyticsProjector struct {
	repo domain.AnalyticsRepository
	log  *zap.Logger
}

var _ logDomain.Handler = (*AnalyticsProjector)(nil)

func NewAnalyticsProjector(repo domain.AnalyticsRepository, log *zap.Logger) *AnalyticsProjector {
	return &AnalyticsProjector{repo: repo, log: log}
}

func (p *AnalyticsProjector) Register(sub logDomain.Subscriber) error {
	for _, t := range events.Types() {
		if err := sub.Subscribe(AnalyticsGroup, t, p); err != nil {
			return fmt.Errorf("subscribe %s/%s: %w", AnalyticsGroup, t, err)
		}
	}
	return nil
}

func (p *AnalyticsProjector) Handle(ctx context.Context, env *events.Envelope) error {
	rec, err := ToInteractionRecord(env)
	if err != nil {
		return err
	}
	if err := p.repo.LogBatch(ctx, []domain.InteractionRecord{rec}); err != nil {
		return fmt.Errorf("analytics log %s: %w", env.ID, err)
	}
	return nil
}

// ToInteractionRecord aplana el payload tipado. Un payload ilegible es permanente.
func ToInteractionRecord(env *events.Envelope) (domain.InteractionRecord, error) {
	rec := domain.InteractionRecord{
		EventID:    env.ID,
		EventType:  env.Type.String(),
		OccurredAt: env.CreatedAt,
	}

	payload, err := env.DecodePayload()
	if err != nil {
		return rec, err
	}

	switch p := payload.(type) {
	case *events.PostCreatedPayload:
		rec.PostID, rec.UserID = p.PostID, p.UserID
	case *events.LikeAddedPayload:
		rec.PostID, rec.UserID = p.PostID, p.UserID
	case *events.CommentAddedPayload:
		rec.PostID, rec.UserID = p.PostID, p.UserID
	case *events.UserFollowedPayload:
		rec.UserID, rec.TargetUser = p.FollowerID, p.FollowedUserID
	}
	return rec, nil
}
