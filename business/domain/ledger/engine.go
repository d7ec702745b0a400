// Package ledger derives the queryable paymaster entity graph from the
// ordered stream of decoded contract events. Processing is strictly
// sequential: one event is fully applied before the next one starts, which is
// what keeps the additive counters and the cross-event correlation safe
// without locking.
package ledger

import (
	"go.uber.org/zap"

	"github.com/prepaid-gas/paymaster-indexer/entities"
	"github.com/prepaid-gas/paymaster-indexer/metrics"
	"github.com/prepaid-gas/paymaster-indexer/network"
)

// EntityStore is the persistence layer for the derived entities. Writes are
// immediately visible to subsequent reads.
type EntityStore interface {
	Get(kind, id string, out any) error
	Put(kind, id string, v any) error
	SetLastProcessedBlock(network string, block uint64) error
	GetLastProcessedBlock(network string) (uint64, error)
}

type Engine struct {
	store   EntityStore
	config  *network.Config
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
	pending *pendingDeposits

	// Journal entries written since the last TakeActivities call.
	written []entities.Activity
}

func NewEngine(store EntityStore, config *network.Config, m *metrics.Metrics, logger *zap.SugaredLogger) *Engine {
	return &Engine{
		store:   store,
		config:  config,
		logger:  logger,
		metrics: m,
		pending: newPendingDeposits(pendingDepositCapacity),
	}
}
