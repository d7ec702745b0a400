package ledger

import (
	"github.com/pkg/errors"

	"github.com/prepaid-gas/paymaster-indexer/entities"
)

// Process applies one decoded event to the entity graph. Callers must invoke
// it strictly sequentially, in block order with canonical intra-block log
// order; the engine performs no reordering or buffering. A handler error is
// scoped to this event: the caller logs it and continues with the next one.
func (e *Engine) Process(ev *entities.Event) error {
	cfg := e.config.Contract(ev.Address)

	paymaster, err := e.getOrCreatePaymaster(cfg, ev)
	if err != nil {
		return errors.Wrap(err, "resolving paymaster")
	}

	if err := e.dispatch(paymaster, ev); err != nil {
		return errors.Wrapf(err, "handling [%s]", ev.Kind)
	}

	info, err := e.getOrCreateNetworkInfo(paymaster.Network, ev)
	if err != nil {
		return err
	}
	e.touchNetworkActivity(info, ev)
	if err := e.saveNetworkInfo(info); err != nil {
		return err
	}

	e.metrics.IncProcessedEvents(string(ev.Kind))
	e.metrics.SetProcessedBlock(paymaster.Network, ev.BlockNumber)
	if err := e.store.SetLastProcessedBlock(paymaster.Network, ev.BlockNumber); err != nil {
		return errors.Wrap(err, "saving last processed block")
	}
	return nil
}

func (e *Engine) dispatch(paymaster *entities.PaymasterContract, ev *entities.Event) error {
	switch ev.Kind {
	case entities.EventDeposited:
		return e.handleDeposited(paymaster, ev)
	case entities.EventLeafInserted:
		return e.handleLeafInserted(paymaster, ev)
	case entities.EventOwnershipTransferred:
		return e.handleOwnershipTransferred(paymaster, ev)
	case entities.EventPoolDied:
		return e.handlePoolDied(paymaster, ev)
	case entities.EventRevenueWithdrawn:
		return e.handleRevenueWithdrawn(paymaster, ev)
	}

	if paymaster.ContractType.PoolScoped() {
		switch ev.Kind {
		case entities.EventPoolCreated:
			return e.handlePoolCreated(paymaster, ev)
		case entities.EventMemberAdded:
			return e.handleMemberAdded(paymaster, ev)
		case entities.EventMembersAdded:
			return e.handleMembersAdded(paymaster, ev)
		case entities.EventUserOpSponsored:
			return e.handlePoolUserOpSponsored(paymaster, ev)
		}
	} else {
		switch ev.Kind {
		case entities.EventUserOpSponsored:
			return e.handleCacheUserOpSponsored(paymaster, ev)
		case entities.EventNullifierConsumed:
			return e.handleNullifierConsumed(paymaster, ev)
		}
	}

	e.logger.Warnw("unhandled event kind for variant, skipping",
		"variant", paymaster.ContractType, "kind", ev.Kind, "tx", ev.TxHash.Hex())
	return nil
}
