package cache

import (
	"context"

	"caixaforte/backend/internal/domain"
)

// KPICache keeps dashboard aggregates hot. Misses are never an error: the
// caller just recomputes from the store.
type KPICache interface {
	Get(ctx context.Context, key string) (*domain.DashboardKPI, bool)
	Set(ctx context.Context, key string, kpi domain.DashboardKPI)
}

// NoopKPICache is used when no Redis address is configured.
type NoopKPICache struct{}

func (NoopKPICache) Get(context.Context, string) (*domain.DashboardKPI, bool) { return nil, false }

func (NoopKPICache) Set(context.Context, string, domain.DashboardKPI) {}
