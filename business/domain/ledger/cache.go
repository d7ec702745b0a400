package ledger

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/prepaid-gas/paymaster-indexer/entities"
)

// Cache enabled family handlers. Accounting is contract-level; the nullifier
// arrives in a separate NullifierConsumed event after the sponsorship.

func (e *Engine) handleCacheUserOpSponsored(paymaster *entities.PaymasterContract, ev *entities.Event) error {
	var params entities.UserOpSponsoredParams
	if err := ev.DecodeParams(&params); err != nil {
		return err
	}

	e.logger.Infow("user op sponsored",
		"variant", paymaster.ContractType, "network", paymaster.Network,
		"sender", params.Sender.Hex(), "userOpHash", params.UserOpHash.Hex(),
		"actualGasCost", params.ActualGasCost.String())

	activity := e.newActivity(paymaster, entities.ActivityUserOpSponsored, ev)
	activity.Sender = params.Sender
	activity.UserOpHash = params.UserOpHash
	activity.ActualGasCost = params.ActualGasCost
	if err := e.saveActivity(activity); err != nil {
		return err
	}

	// Keyed by the operation hash so NullifierConsumed can find it. The
	// nullifier stays zero until then.
	opID := entities.EntityID(paymaster.Network, params.UserOpHash.Hex())
	if err := e.createUserOperation(opID, paymaster, nil, &params, new(big.Int), ev); err != nil {
		return err
	}

	paymaster.TotalUsersDeposit.Sub(paymaster.TotalUsersDeposit, params.ActualGasCost)
	e.touchPaymaster(paymaster, ev)
	if err := e.savePaymaster(paymaster); err != nil {
		return err
	}

	return e.addGlobalStats(paymaster.Network, ev.Timestamp,
		StatsDelta{Transactions: big.NewInt(1), GasSpent: params.ActualGasCost})
}

func (e *Engine) handleNullifierConsumed(paymaster *entities.PaymasterContract, ev *entities.Event) error {
	var params entities.NullifierConsumedParams
	if err := ev.DecodeParams(&params); err != nil {
		return err
	}

	e.logger.Infow("nullifier consumed",
		"variant", paymaster.ContractType, "network", paymaster.Network,
		"userOpHash", params.UserOpHash.Hex(), "nullifier", params.Nullifier.String(),
		"gasUsed", params.GasUsed.String())

	// Second phase of the sponsorship write: fill in the nullifier on the
	// provisional operation record. A miss means the consumption arrived
	// without its sponsorship; it is logged and dropped, no record created.
	opID := entities.EntityID(paymaster.Network, params.UserOpHash.Hex())
	var op entities.UserOperation
	err := e.store.Get(entities.KindUserOperation, opID, &op)
	switch {
	case errors.Is(err, entities.ErrStoreEntityNotFound):
		e.logger.Warnw("no user operation for nullifier consumption",
			"variant", paymaster.ContractType, "userOpHash", params.UserOpHash.Hex())
		e.metrics.IncUnmatchedCorrelations()
	case err != nil:
		return errors.Wrap(err, "loading user operation")
	default:
		op.Nullifier = params.Nullifier
		if err := e.store.Put(entities.KindUserOperation, opID, &op); err != nil {
			return errors.Wrap(err, "saving user operation")
		}
	}

	if _, err := e.applyNullifierUsage(paymaster, nil, NullifierReusable, params.Nullifier, params.GasUsed, ev); err != nil {
		return err
	}

	e.touchPaymaster(paymaster, ev)
	return e.savePaymaster(paymaster)
}
