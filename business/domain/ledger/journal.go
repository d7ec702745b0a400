package ledger

import (
	"strconv"

	"github.com/pkg/errors"

	"github.com/prepaid-gas/paymaster-indexer/entities"
)

// pendingDepositCapacity bounds the correlation table. A deposit and its leaf
// insertion land in the same transaction, so entries are short lived; the
// bound only guards against orphaned deposits piling up forever.
const pendingDepositCapacity = 1024

// pendingDeposits correlates a DEPOSIT activity with the leaf insertion of
// the same transaction. Keyed by (network, txHash), values are stored
// activity ids. FIFO eviction beyond capacity.
type pendingDeposits struct {
	capacity int
	order    []string
	byTx     map[string]string
}

func newPendingDeposits(capacity int) *pendingDeposits {
	return &pendingDeposits{
		capacity: capacity,
		byTx:     make(map[string]string),
	}
}

func (p *pendingDeposits) put(txKey, activityID string) {
	if _, exists := p.byTx[txKey]; !exists {
		p.order = append(p.order, txKey)
	}
	p.byTx[txKey] = activityID
	for len(p.order) > p.capacity {
		evicted := p.order[0]
		p.order = p.order[1:]
		delete(p.byTx, evicted)
	}
}

// take returns and removes the pending activity id for the transaction.
func (p *pendingDeposits) take(txKey string) (string, bool) {
	id, ok := p.byTx[txKey]
	if !ok {
		return "", false
	}
	delete(p.byTx, txKey)
	for i, key := range p.order {
		if key == txKey {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return id, true
}

func (p *pendingDeposits) len() int {
	return len(p.byTx)
}

// newActivity fills the common journal fields. The log index disambiguates
// multiple activities inside one transaction.
func (e *Engine) newActivity(paymaster *entities.PaymasterContract, typ entities.ActivityType, ev *entities.Event) *entities.Activity {
	return &entities.Activity{
		ID:          entities.EntityID(paymaster.Network, ev.TxHash.Hex(), strconv.Itoa(int(ev.LogIndex))),
		Type:        typ,
		Paymaster:   paymaster.ID,
		Network:     paymaster.Network,
		ChainID:     paymaster.ChainID,
		Block:       ev.BlockNumber,
		Transaction: ev.TxHash,
		Timestamp:   ev.Timestamp,
	}
}

func (e *Engine) saveActivity(a *entities.Activity) error {
	if err := e.store.Put(entities.KindActivity, a.ID, a); err != nil {
		return errors.Wrap(err, "saving activity")
	}
	e.written = append(e.written, *a)
	return nil
}

// TakeActivities returns the journal entries written since the last call and
// resets the buffer. Used by the export path after a batch is applied.
func (e *Engine) TakeActivities() []entities.Activity {
	out := e.written
	e.written = nil
	return out
}

// recordDepositActivity journals a deposit and registers it for patching by
// the leaf insertion of the same transaction.
func (e *Engine) recordDepositActivity(paymaster *entities.PaymasterContract, params *entities.DepositedParams, ev *entities.Event) error {
	activity := e.newActivity(paymaster, entities.ActivityDeposit, ev)
	activity.Depositor = params.Depositor
	activity.Commitment = params.Commitment
	if err := e.saveActivity(activity); err != nil {
		return err
	}
	e.pending.put(entities.EntityID(paymaster.Network, ev.TxHash.Hex()), activity.ID)
	return nil
}

// patchDepositActivity completes the two-phase deposit journal entry with the
// member index and new root from the leaf insertion. A miss is non-fatal: the
// extra fields are dropped and a warning is logged.
func (e *Engine) patchDepositActivity(paymaster *entities.PaymasterContract, params *entities.LeafInsertedParams, ev *entities.Event) error {
	txKey := entities.EntityID(paymaster.Network, ev.TxHash.Hex())
	activityID, ok := e.pending.take(txKey)
	if !ok {
		e.logger.Warnw("no deposit activity to patch for leaf insertion",
			"variant", paymaster.ContractType, "tx", ev.TxHash.Hex(), "index", params.Index)
		e.metrics.IncUnmatchedCorrelations()
		return nil
	}

	var activity entities.Activity
	if err := e.store.Get(entities.KindActivity, activityID, &activity); err != nil {
		if errors.Is(err, entities.ErrStoreEntityNotFound) {
			e.logger.Warnw("pending deposit activity vanished", "activity", activityID)
			e.metrics.IncUnmatchedCorrelations()
			return nil
		}
		return errors.Wrap(err, "loading deposit activity")
	}

	activity.MemberIndex = params.Index
	activity.NewRoot = params.Root
	return e.saveActivity(&activity)
}
