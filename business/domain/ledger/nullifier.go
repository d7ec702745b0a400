package ledger

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/prepaid-gas/paymaster-indexer/entities"
)

// applyNullifierUsage creates or updates the registry entry for a nullifier
// referenced by a sponsorship. The returned flag reports a repeated use under
// the single-use policy: the caller must then skip the fund debit so the pool
// is not drained twice for one membership.
func (e *Engine) applyNullifierUsage(
	paymaster *entities.PaymasterContract,
	pool *entities.Pool,
	policy NullifierPolicy,
	nullifier, gasCost *big.Int,
	ev *entities.Event,
) (reused bool, err error) {
	id := entities.EntityID(paymaster.Network, nullifier.String())

	var usage entities.NullifierUsage
	err = e.store.Get(entities.KindNullifierUsage, id, &usage)
	if err != nil && !errors.Is(err, entities.ErrStoreEntityNotFound) {
		return false, errors.Wrap(err, "loading nullifier usage")
	}

	if errors.Is(err, entities.ErrStoreEntityNotFound) {
		usage = entities.NullifierUsage{
			ID:                     id,
			Nullifier:              nullifier,
			Paymaster:              paymaster.ID,
			Network:                paymaster.Network,
			ChainID:                paymaster.ChainID,
			GasUsed:                new(big.Int),
			FirstUsedAtBlock:       ev.BlockNumber,
			FirstUsedAtTransaction: ev.TxHash,
			FirstUsedAtTimestamp:   ev.Timestamp,
		}
		if pool != nil {
			usage.Pool = pool.ID
		}
	} else if policy == NullifierSingleUse && usage.IsUsed {
		// The contract should never let this happen. Flag it, keep the
		// registry entry as is, and tell the caller not to debit again.
		e.logger.Errorw("nullifier reused under single-use policy",
			"nullifier", nullifier.String(), "paymaster", paymaster.ID, "tx", ev.TxHash.Hex())
		e.metrics.IncNullifierReuses()
		reused = true
	}

	switch policy {
	case NullifierSingleUse:
		usage.IsUsed = true
	case NullifierReusable:
		usage.GasUsed.Add(usage.GasUsed, gasCost)
	}
	usage.LastUpdatedBlock = ev.BlockNumber
	usage.LastUpdatedTimestamp = ev.Timestamp

	if err := e.store.Put(entities.KindNullifierUsage, id, &usage); err != nil {
		return reused, errors.Wrap(err, "saving nullifier usage")
	}
	return reused, nil
}
