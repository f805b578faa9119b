package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/equilix-backend/internal/flow"
	"github.com/yungbote/equilix-backend/internal/platform/logger"
)

const maxListLimit = 500

type InvocationRepo interface {
	Record(ctx context.Context, rec *InvocationRecord) error
	ListRecent(ctx context.Context, flowName string, limit int) ([]*InvocationRecord, error)
	Stats(ctx context.Context, since time.Time) ([]FlowStat, error)
}

// FlowStat aggregates invocations per flow and status.
type FlowStat struct {
	Flow          string  `json:"flow"`
	Status        string  `json:"status"`
	Count         int64   `json:"count"`
	Fallbacks     int64   `json:"fallbacks"`
	AvgDurationMS float64 `json:"avgDurationMs"`
}

type invocationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewInvocationRepo(db *gorm.DB, baseLog *logger.Logger) InvocationRepo {
	return &invocationRepo{db: db, log: baseLog.With("repo", "InvocationRepo")}
}

func (r *invocationRepo) Record(ctx context.Context, rec *InvocationRecord) error {
	if rec == nil {
		return nil
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(rec).Error
}

// ListRecent returns the newest records first. An empty flowName lists all flows.
func (r *invocationRepo) ListRecent(ctx context.Context, flowName string, limit int) ([]*InvocationRecord, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = 50
	}
	q := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if flowName != "" {
		q = q.Where("flow = ?", flowName)
	}
	var results []*InvocationRecord
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *invocationRepo) Stats(ctx context.Context, since time.Time) ([]FlowStat, error) {
	var out []FlowStat
	err := r.db.WithContext(ctx).
		Model(&InvocationRecord{}).
		Select("flow, status, COUNT(*) AS count, " +
			"SUM(CASE WHEN fallback THEN 1 ELSE 0 END) AS fallbacks, " +
			"AVG(duration_ms) AS avg_duration_ms").
		Where("created_at >= ?", since.UTC()).
		Group("flow, status").
		Order("flow, status").
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RecordFromEvent maps invocation metadata onto a record.
func RecordFromEvent(ev flow.Event) *InvocationRecord {
	return &InvocationRecord{
		ID:         ev.ID,
		Flow:       ev.Flow,
		Model:      ev.Model,
		Mode:       string(ev.Mode),
		Status:     ev.Status,
		ErrorKind:  ev.ErrorKind,
		Fallback:   ev.Fallback,
		DurationMS: ev.Duration.Milliseconds(),
		RequestID:  ev.RequestID,
		CreatedAt:  ev.Started.UTC(),
	}
}

// Observer writes one record per invocation. Write failures are logged and
// never change the invocation outcome.
type Observer struct {
	repo InvocationRepo
	log  *logger.Logger
}

func NewObserver(repo InvocationRepo, log *logger.Logger) *Observer {
	return &Observer{repo: repo, log: log}
}

func (o *Observer) ObserveInvocation(ctx context.Context, ev flow.Event) {
	if err := o.repo.Record(context.WithoutCancel(ctx), RecordFromEvent(ev)); err != nil {
		o.log.Warn("record invocation failed", "flow", ev.Flow, "id", ev.ID.String(), "error", err)
	}
}
