package ledger

import (
	"math/big"
	"strconv"

	"github.com/pkg/errors"

	"github.com/prepaid-gas/paymaster-indexer/entities"
)

// createUserOperation records one sponsored operation and bumps the network
// counters. The id must let later correlation events find the record: the
// cache enabled family keys by user operation hash, pool-scoped variants by
// transaction hash.
func (e *Engine) createUserOperation(
	id string,
	paymaster *entities.PaymasterContract,
	pool *entities.Pool,
	params *entities.UserOpSponsoredParams,
	nullifier *big.Int,
	ev *entities.Event,
) error {
	op := entities.UserOperation{
		ID:                    id,
		Paymaster:             paymaster.ID,
		Network:               paymaster.Network,
		ChainID:               paymaster.ChainID,
		UserOpHash:            params.UserOpHash,
		Sender:                params.Sender,
		ActualGasCost:         params.ActualGasCost,
		GasPrice:              new(big.Int),
		TotalGasUsed:          params.ActualGasCost,
		Nullifier:             nullifier,
		ExecutedAtBlock:       ev.BlockNumber,
		ExecutedAtTransaction: ev.TxHash,
		ExecutedAtTimestamp:   ev.Timestamp,
	}
	if pool != nil {
		op.Pool = pool.ID
	}
	if err := e.store.Put(entities.KindUserOperation, id, &op); err != nil {
		return errors.Wrap(err, "saving user operation")
	}

	info, err := e.getOrCreateNetworkInfo(paymaster.Network, ev)
	if err != nil {
		return err
	}
	info.TotalTransactions.Add(info.TotalTransactions, big.NewInt(1))
	info.TotalGasSpent.Add(info.TotalGasSpent, params.ActualGasCost)
	e.touchNetworkActivity(info, ev)
	return e.saveNetworkInfo(info)
}

func (e *Engine) createRevenueWithdrawal(paymaster *entities.PaymasterContract, params *entities.RevenueWithdrawnParams, ev *entities.Event) error {
	withdrawal := entities.RevenueWithdrawal{
		ID:                     entities.EntityID(paymaster.Network, ev.TxHash.Hex(), strconv.FormatUint(ev.BlockNumber, 10)),
		Paymaster:              paymaster.ID,
		Network:                paymaster.Network,
		ChainID:                paymaster.ChainID,
		Recipient:              params.Recipient,
		Amount:                 params.Amount,
		WithdrawnAtBlock:       ev.BlockNumber,
		WithdrawnAtTransaction: ev.TxHash,
		WithdrawnAtTimestamp:   ev.Timestamp,
	}
	if err := e.store.Put(entities.KindRevenueWithdrawal, withdrawal.ID, &withdrawal); err != nil {
		return errors.Wrap(err, "saving revenue withdrawal")
	}

	info, err := e.getOrCreateNetworkInfo(paymaster.Network, ev)
	if err != nil {
		return err
	}
	info.TotalRevenue.Add(info.TotalRevenue, params.Amount)
	e.touchNetworkActivity(info, ev)
	return e.saveNetworkInfo(info)
}
