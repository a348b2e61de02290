package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"soapbox/pkg/logger"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
// It is append-only; there are no Update/Delete methods.
type Repository interface {
	Append(ctx context.Context, e Event) error
	ListByObject(ctx context.Context, kind, id string) ([]Event, error)
}

// Service records internal audit information.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" || e.ObjectID == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	auditEventsTotal.WithLabelValues(string(e.Type)).Inc()
	return s.repo.Append(ctx, e)
}

// Log appends e and only logs a failure. Use it after the audited change has committed.
func (s *Service) Log(ctx context.Context, e Event) {
	if s == nil {
		return
	}
	if err := s.Append(ctx, e); err != nil {
		logger.From(ctx).Warn("audit append failed", "type", e.Type, "object_id", e.ObjectID, "err", err)
	}
}

// Meta encodes v as event metadata. Encoding failures yield an empty string.
func Meta(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func (s *Service) History(ctx context.Context, kind, id string) ([]Event, error) {
	if id == "" {
		return nil, ErrInvalidEvent
	}
	return s.repo.ListByObject(ctx, kind, id)
}
