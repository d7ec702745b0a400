package ledger

import (
	"math/big"

	"github.com/prepaid-gas/paymaster-indexer/entities"
)

// Pool-scoped handlers, used by the GasLimited and OneTimeUse families.

func (e *Engine) handlePoolCreated(paymaster *entities.PaymasterContract, ev *entities.Event) error {
	var params entities.PoolCreatedParams
	if err := ev.DecodeParams(&params); err != nil {
		return err
	}

	e.logger.Infow("pool created",
		"variant", paymaster.ContractType, "network", paymaster.Network,
		"poolId", params.PoolID.String(), "joiningFee", params.JoiningFee.String())

	if _, err := e.getOrCreatePool(paymaster, params.PoolID, params.JoiningFee, ev); err != nil {
		return err
	}

	// The pool-scoped families have no static joining fee configuration; the
	// first pool creation supplies the account-level amount.
	if paymaster.JoiningAmount.Sign() == 0 {
		paymaster.JoiningAmount = new(big.Int).Set(params.JoiningFee)
	}
	e.touchPaymaster(paymaster, ev)
	if err := e.savePaymaster(paymaster); err != nil {
		return err
	}

	return e.addGlobalStats(paymaster.Network, ev.Timestamp, StatsDelta{NewPools: big.NewInt(1)})
}

func (e *Engine) handleMemberAdded(paymaster *entities.PaymasterContract, ev *entities.Event) error {
	var params entities.MemberAddedParams
	if err := ev.DecodeParams(&params); err != nil {
		return err
	}

	pool, err := e.loadPool(paymaster, params.PoolID)
	if err != nil {
		return err
	}
	if pool == nil {
		e.logger.Errorw("member added to unknown pool, dropping event",
			"variant", paymaster.ContractType, "poolId", params.PoolID.String(), "tx", ev.TxHash.Hex())
		return nil
	}

	rootIndex := int(params.MerkleRootIndex.Int64())
	return e.addMembers(paymaster, pool, []memberInsertion{{
		index:      params.MemberIndex,
		commitment: params.IdentityCommitment,
	}}, params.MerkleTreeRoot, rootIndex, ev)
}

func (e *Engine) handleMembersAdded(paymaster *entities.PaymasterContract, ev *entities.Event) error {
	var params entities.MembersAddedParams
	if err := ev.DecodeParams(&params); err != nil {
		return err
	}

	pool, err := e.loadPool(paymaster, params.PoolID)
	if err != nil {
		return err
	}
	if pool == nil {
		e.logger.Errorw("members added to unknown pool, dropping event",
			"variant", paymaster.ContractType, "poolId", params.PoolID.String(), "tx", ev.TxHash.Hex())
		return nil
	}

	insertions := make([]memberInsertion, 0, len(params.IdentityCommitments))
	for i, commitment := range params.IdentityCommitments {
		insertions = append(insertions, memberInsertion{
			index:      new(big.Int).Add(params.StartIndex, big.NewInt(int64(i))),
			commitment: commitment,
		})
	}
	rootIndex := int(params.MerkleRootIndex.Int64())
	return e.addMembers(paymaster, pool, insertions, params.MerkleTreeRoot, rootIndex, ev)
}

type memberInsertion struct {
	index      *big.Int
	commitment *big.Int
}

// addMembers applies one or more joins sharing a merkle root update: member
// records, the root history entry, the pool and account credits, and the
// daily buckets.
func (e *Engine) addMembers(
	paymaster *entities.PaymasterContract,
	pool *entities.Pool,
	insertions []memberInsertion,
	merkleRoot *big.Int,
	rootIndex int,
	ev *entities.Event,
) error {
	e.logger.Infow("members added",
		"variant", paymaster.ContractType, "network", paymaster.Network,
		"poolId", pool.PoolID.String(), "count", len(insertions), "root", merkleRoot.String())

	for _, ins := range insertions {
		if _, err := e.createPoolMember(pool, paymaster, ins.index, ins.commitment, merkleRoot, rootIndex, ev); err != nil {
			return err
		}
	}
	if err := e.createMerkleRoot(pool, merkleRoot, rootIndex, ev); err != nil {
		return err
	}

	count := big.NewInt(int64(len(insertions)))
	credit := new(big.Int).Mul(pool.JoiningFee, count)

	pool.MemberCount.Add(pool.MemberCount, count)
	pool.TotalDeposits.Add(pool.TotalDeposits, credit)
	pool.CurrentMerkleRoot = merkleRoot
	pool.CurrentRootIndex = rootIndex
	pool.RootHistoryCount++
	pool.LastUpdatedBlock = ev.BlockNumber
	pool.LastUpdatedTimestamp = ev.Timestamp
	if err := e.savePool(pool); err != nil {
		return err
	}

	paymaster.TotalUsersDeposit.Add(paymaster.TotalUsersDeposit, credit)
	paymaster.CurrentDeposit.Add(paymaster.CurrentDeposit, credit)
	recomputeRevenue(paymaster)
	e.touchPaymaster(paymaster, ev)
	if err := e.savePaymaster(paymaster); err != nil {
		return err
	}

	if err := e.addPoolStats(pool, ev.Timestamp, StatsDelta{NewMembers: count}); err != nil {
		return err
	}
	return e.addGlobalStats(pool.Network, ev.Timestamp, StatsDelta{NewMembers: count})
}

// handlePoolUserOpSponsored applies a sponsorship for the pool-scoped
// families: the journal entry, the operation record, the nullifier registry
// update, and the policy-dependent fund debit.
func (e *Engine) handlePoolUserOpSponsored(paymaster *entities.PaymasterContract, ev *entities.Event) error {
	var params entities.UserOpSponsoredParams
	if err := ev.DecodeParams(&params); err != nil {
		return err
	}

	pool, err := e.loadPool(paymaster, params.PoolID)
	if err != nil {
		return err
	}
	if pool == nil {
		e.logger.Errorw("sponsorship for unknown pool, dropping event",
			"variant", paymaster.ContractType, "poolId", params.PoolID.String(), "tx", ev.TxHash.Hex())
		return nil
	}

	e.logger.Infow("user op sponsored",
		"variant", paymaster.ContractType, "network", paymaster.Network,
		"poolId", pool.PoolID.String(), "sender", params.Sender.Hex(),
		"actualGasCost", params.ActualGasCost.String())

	activity := e.newActivity(paymaster, entities.ActivityUserOpSponsored, ev)
	activity.Sender = params.Sender
	activity.UserOpHash = params.UserOpHash
	activity.ActualGasCost = params.ActualGasCost
	if err := e.saveActivity(activity); err != nil {
		return err
	}

	nullifier := params.Nullifier
	if nullifier == nil {
		nullifier = new(big.Int)
	}
	opID := entities.EntityID(paymaster.Network, ev.TxHash.Hex())
	if err := e.createUserOperation(opID, paymaster, pool, &params, nullifier, ev); err != nil {
		return err
	}

	fundPolicy, nullifierPolicy := policiesFor(paymaster.ContractType)

	reused := false
	if nullifier.Sign() != 0 {
		reused, err = e.applyNullifierUsage(paymaster, pool, nullifierPolicy, nullifier, params.ActualGasCost, ev)
		if err != nil {
			return err
		}
	}

	if !reused {
		debit := debitAmount(fundPolicy, params.ActualGasCost, pool.JoiningFee)
		pool.TotalDeposits.Sub(pool.TotalDeposits, debit)
		paymaster.TotalUsersDeposit.Sub(paymaster.TotalUsersDeposit, debit)
		recomputeRevenue(paymaster)
	}

	pool.LastUpdatedBlock = ev.BlockNumber
	pool.LastUpdatedTimestamp = ev.Timestamp
	if err := e.savePool(pool); err != nil {
		return err
	}
	e.touchPaymaster(paymaster, ev)
	if err := e.savePaymaster(paymaster); err != nil {
		return err
	}

	delta := StatsDelta{Transactions: big.NewInt(1), GasSpent: params.ActualGasCost}
	if err := e.addPoolStats(pool, ev.Timestamp, delta); err != nil {
		return err
	}
	return e.addGlobalStats(paymaster.Network, ev.Timestamp, delta)
}
