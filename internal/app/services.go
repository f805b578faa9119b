package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/equilix-backend/internal/flow"
	"github.com/yungbote/equilix-backend/internal/flows/wellness"
	"github.com/yungbote/equilix-backend/internal/observability"
	"github.com/yungbote/equilix-backend/internal/platform/logger"
	"github.com/yungbote/equilix-backend/internal/router"
	"github.com/yungbote/equilix-backend/internal/store"
)

const batchConcurrency = 4

type Repos struct {
	// Invocations is nil when the store is disabled.
	Invocations store.InvocationRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	if db == nil {
		return Repos{}
	}
	log.Info("Wiring repos...")
	return Repos{Invocations: store.NewInvocationRepo(db, log)}
}

func wireRegistry(rt *router.Router, log *logger.Logger, m *observability.Metrics, repos Repos) (*flow.Registry, error) {
	log.Info("Wiring flows...")
	opts := []flow.Option{
		flow.WithLogger(log),
		flow.WithBatchConcurrency(batchConcurrency),
	}
	if m != nil {
		opts = append(opts, flow.WithObserver(metricsObserver(m)))
	}
	if repos.Invocations != nil {
		opts = append(opts, flow.WithObserver(store.NewObserver(repos.Invocations, log)))
	}
	reg := flow.NewRegistry(rt, opts...)
	if err := wellness.Register(reg); err != nil {
		return nil, fmt.Errorf("register wellness flows: %w", err)
	}
	return reg, nil
}

func metricsObserver(m *observability.Metrics) flow.Observer {
	return flow.ObserverFunc(func(_ context.Context, ev flow.Event) {
		m.ObserveFlow(ev.Flow, string(ev.Mode), ev.Status, ev.ErrorKind, ev.Fallback, ev.Duration)
	})
}
