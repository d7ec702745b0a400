package ledger

import (
	"math/big"

	"github.com/prepaid-gas/paymaster-indexer/entities"
)

// Shared handlers. These events carry the same semantics for every variant,
// so one handler per kind serves all families.

func (e *Engine) handleDeposited(paymaster *entities.PaymasterContract, ev *entities.Event) error {
	var params entities.DepositedParams
	if err := ev.DecodeParams(&params); err != nil {
		return err
	}

	e.logger.Infow("deposit",
		"variant", paymaster.ContractType, "network", paymaster.Network,
		"depositor", params.Depositor.Hex(), "commitment", params.Commitment.String())

	if err := e.recordDepositActivity(paymaster, &params, ev); err != nil {
		return err
	}

	// Joining credits both the lifetime users deposit and the funds currently
	// held by the contract.
	paymaster.TotalUsersDeposit.Add(paymaster.TotalUsersDeposit, paymaster.JoiningAmount)
	paymaster.CurrentDeposit.Add(paymaster.CurrentDeposit, paymaster.JoiningAmount)
	e.touchPaymaster(paymaster, ev)
	return e.savePaymaster(paymaster)
}

func (e *Engine) handleLeafInserted(paymaster *entities.PaymasterContract, ev *entities.Event) error {
	var params entities.LeafInsertedParams
	if err := ev.DecodeParams(&params); err != nil {
		return err
	}

	e.logger.Infow("leaf inserted",
		"variant", paymaster.ContractType, "network", paymaster.Network,
		"index", params.Index.String(), "root", params.Root.String())

	// Replace the tree pointer wholesale. Insertions arrive in the tree's
	// true insertion order, so last writer wins is correct.
	rootIndex := new(big.Int).Mod(params.Index, big.NewInt(rootHistoryCapacity))
	paymaster.CurrentRoot = params.Root
	paymaster.CurrentRootIndex = int(rootIndex.Int64())
	paymaster.TreeSize = new(big.Int).Add(params.Index, big.NewInt(1))
	e.touchPaymaster(paymaster, ev)
	if err := e.savePaymaster(paymaster); err != nil {
		return err
	}

	if err := e.patchDepositActivity(paymaster, &params, ev); err != nil {
		return err
	}

	info, err := e.getOrCreateNetworkInfo(paymaster.Network, ev)
	if err != nil {
		return err
	}
	info.TotalMembers.Add(info.TotalMembers, big.NewInt(1))
	e.touchNetworkActivity(info, ev)
	if err := e.saveNetworkInfo(info); err != nil {
		return err
	}

	return e.addGlobalStats(paymaster.Network, ev.Timestamp, StatsDelta{NewMembers: big.NewInt(1)})
}

func (e *Engine) handleOwnershipTransferred(paymaster *entities.PaymasterContract, ev *entities.Event) error {
	var params entities.OwnershipTransferredParams
	if err := ev.DecodeParams(&params); err != nil {
		return err
	}

	e.logger.Infow("ownership transferred",
		"variant", paymaster.ContractType, "network", paymaster.Network,
		"from", params.PreviousOwner.Hex(), "to", params.NewOwner.Hex())

	e.touchPaymaster(paymaster, ev)
	return e.savePaymaster(paymaster)
}

func (e *Engine) handlePoolDied(paymaster *entities.PaymasterContract, ev *entities.Event) error {
	e.logger.Infow("pool died", "variant", paymaster.ContractType, "network", paymaster.Network)

	// Terminal soft delete. Accounting keeps applying to dead pools, only the
	// flag changes.
	paymaster.IsDead = true
	e.touchPaymaster(paymaster, ev)
	return e.savePaymaster(paymaster)
}

func (e *Engine) handleRevenueWithdrawn(paymaster *entities.PaymasterContract, ev *entities.Event) error {
	var params entities.RevenueWithdrawnParams
	if err := ev.DecodeParams(&params); err != nil {
		return err
	}

	e.logger.Infow("revenue withdrawn",
		"variant", paymaster.ContractType, "network", paymaster.Network,
		"recipient", params.Recipient.Hex(), "amount", params.Amount.String())

	activity := e.newActivity(paymaster, entities.ActivityRevenueWithdrawn, ev)
	activity.WithdrawAddress = params.Recipient
	activity.Amount = params.Amount
	if err := e.saveActivity(activity); err != nil {
		return err
	}

	if err := e.createRevenueWithdrawal(paymaster, &params, ev); err != nil {
		return err
	}

	paymaster.CurrentDeposit.Sub(paymaster.CurrentDeposit, params.Amount)
	if paymaster.ContractType.PoolScoped() {
		recomputeRevenue(paymaster)
	} else {
		paymaster.Revenue.Add(paymaster.Revenue, params.Amount)
	}
	e.touchPaymaster(paymaster, ev)
	if err := e.savePaymaster(paymaster); err != nil {
		return err
	}

	return e.addGlobalStats(paymaster.Network, ev.Timestamp, StatsDelta{RevenueGenerated: params.Amount})
}

func (e *Engine) touchPaymaster(p *entities.PaymasterContract, ev *entities.Event) {
	p.LastUpdatedBlock = ev.BlockNumber
	p.LastUpdatedTimestamp = ev.Timestamp
}

// recomputeRevenue restores the pool-family invariant
// revenue == currentDeposit - totalUsersDeposit.
func recomputeRevenue(p *entities.PaymasterContract) {
	p.Revenue = new(big.Int).Sub(p.CurrentDeposit, p.TotalUsersDeposit)
}
