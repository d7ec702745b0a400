package ledger

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/prepaid-gas/paymaster-indexer/entities"
	"github.com/prepaid-gas/paymaster-indexer/metrics"
)

type EventSource interface {
	PollEvents(ctx context.Context) ([]*entities.Event, error)
	Commit(ctx context.Context) error
	AllowRebalance()
}

// ActivitySink receives the journal entries written while processing a
// batch. Export is best effort; sink failures never block accounting.
type ActivitySink interface {
	PublishActivities(ctx context.Context, activities []entities.Activity) error
}

type Processor struct {
	engine         *Engine
	source         EventSource
	sink           ActivitySink
	processMetrics *metrics.Metrics
	logger         *zap.SugaredLogger
}

func NewProcessor(engine *Engine, source EventSource, sink ActivitySink, m *metrics.Metrics, logger *zap.SugaredLogger) *Processor {
	return &Processor{
		engine:         engine,
		source:         source,
		sink:           sink,
		processMetrics: m,
		logger:         logger,
	}
}

// Consume runs the processing loop until polling or the store fails in a way
// that needs outside intervention.
func (p *Processor) Consume(ctx context.Context) error {
	for {
		count, err := p.consumeBatch(ctx)
		if err != nil {
			return errors.Wrap(err, "consuming batch")
		}
		if count > 0 {
			p.logger.Infow("processed events", "count", count)
		}
		p.processMetrics.IncProcessedBatches()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// consumeBatch applies one polled batch. Events are applied one at a time, in
// delivery order; the offset is committed only after the whole batch is in
// the store, so a crash replays events instead of losing them.
func (p *Processor) consumeBatch(ctx context.Context) (int, error) {
	defer p.source.AllowRebalance()
	events, err := p.source.PollEvents(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "polling events")
	}

	for _, ev := range events {
		if err := p.engine.Process(ev); err != nil {
			return 0, errors.Wrapf(err, "processing event [%s] in tx [%s]", ev.Kind, ev.TxHash.Hex())
		}
	}

	if p.sink != nil {
		activities := p.engine.TakeActivities()
		if len(activities) > 0 {
			if err := p.sink.PublishActivities(ctx, activities); err != nil {
				p.logger.Warnw("exporting activities failed", "count", len(activities), "error", err)
			}
		}
	}

	if err := p.source.Commit(ctx); err != nil {
		return 0, errors.Wrap(err, "committing batch")
	}
	return len(events), nil
}
