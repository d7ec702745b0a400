package ledger

import (
	"math/big"
	"strconv"

	"github.com/pkg/errors"

	"github.com/prepaid-gas/paymaster-indexer/entities"
	"github.com/prepaid-gas/paymaster-indexer/network"
)

// rootHistoryCapacity is the number of recent merkle roots the contracts keep
// valid for proofs. Root indexes wrap at this boundary.
const rootHistoryCapacity = 64

func (e *Engine) getOrCreateNetworkInfo(networkName string, ev *entities.Event) (*entities.NetworkInfo, error) {
	var info entities.NetworkInfo
	err := e.store.Get(entities.KindNetworkInfo, networkName, &info)
	if err == nil {
		return &info, nil
	}
	if !errors.Is(err, entities.ErrStoreEntityNotFound) {
		return nil, errors.Wrap(err, "loading network info")
	}

	cfg := e.config.Network(networkName)
	info = entities.NetworkInfo{
		ID:                       networkName,
		Name:                     cfg.Name,
		ChainID:                  cfg.ChainID,
		TotalPaymasters:          new(big.Int),
		TotalPools:               new(big.Int),
		TotalMembers:             new(big.Int),
		TotalTransactions:        new(big.Int),
		TotalGasSpent:            new(big.Int),
		TotalRevenue:             new(big.Int),
		FirstDeploymentBlock:     ev.BlockNumber,
		FirstDeploymentTimestamp: ev.Timestamp,
		LastActivityBlock:        ev.BlockNumber,
		LastActivityTimestamp:    ev.Timestamp,
	}
	if err := e.saveNetworkInfo(&info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (e *Engine) saveNetworkInfo(info *entities.NetworkInfo) error {
	return errors.Wrap(e.store.Put(entities.KindNetworkInfo, info.ID, info), "saving network info")
}

func (e *Engine) touchNetworkActivity(info *entities.NetworkInfo, ev *entities.Event) {
	info.LastActivityBlock = ev.BlockNumber
	info.LastActivityTimestamp = ev.Timestamp
}

// getOrCreatePaymaster materializes the ledger account for a deployment on
// its first observed event. Creation is idempotent: the composite id resolves
// to the same entity for every later event.
func (e *Engine) getOrCreatePaymaster(cfg network.ContractConfig, ev *entities.Event) (*entities.PaymasterContract, error) {
	id := entities.EntityID(cfg.Network, ev.Address.Hex())

	var paymaster entities.PaymasterContract
	err := e.store.Get(entities.KindPaymaster, id, &paymaster)
	if err == nil {
		return &paymaster, nil
	}
	if !errors.Is(err, entities.ErrStoreEntityNotFound) {
		return nil, errors.Wrap(err, "loading paymaster")
	}

	netCfg := e.config.Network(cfg.Network)
	paymaster = entities.PaymasterContract{
		ID:                    id,
		ContractType:          cfg.Variant,
		Address:               ev.Address,
		Network:               cfg.Network,
		ChainID:               netCfg.ChainID,
		JoiningAmount:         new(big.Int).Set(cfg.JoiningAmount),
		Scope:                 cfg.Scope,
		Verifier:              cfg.Verifier,
		TotalUsersDeposit:     new(big.Int),
		CurrentDeposit:        new(big.Int),
		Revenue:               new(big.Int),
		CurrentRoot:           new(big.Int),
		TreeSize:              new(big.Int),
		DeployedAtBlock:       ev.BlockNumber,
		DeployedAtTransaction: ev.TxHash,
		DeployedAtTimestamp:   ev.Timestamp,
		LastUpdatedBlock:      ev.BlockNumber,
		LastUpdatedTimestamp:  ev.Timestamp,
	}
	if err := e.savePaymaster(&paymaster); err != nil {
		return nil, err
	}

	info, err := e.getOrCreateNetworkInfo(cfg.Network, ev)
	if err != nil {
		return nil, err
	}
	info.TotalPaymasters.Add(info.TotalPaymasters, big.NewInt(1))
	e.touchNetworkActivity(info, ev)
	if err := e.saveNetworkInfo(info); err != nil {
		return nil, err
	}

	return &paymaster, nil
}

func (e *Engine) savePaymaster(p *entities.PaymasterContract) error {
	return errors.Wrap(e.store.Put(entities.KindPaymaster, p.ID, p), "saving paymaster")
}

func (e *Engine) getOrCreatePool(paymaster *entities.PaymasterContract, poolID, joiningFee *big.Int, ev *entities.Event) (*entities.Pool, error) {
	id := entities.EntityID(paymaster.Network, paymaster.Address.Hex(), poolID.String())

	var pool entities.Pool
	err := e.store.Get(entities.KindPool, id, &pool)
	if err == nil {
		return &pool, nil
	}
	if !errors.Is(err, entities.ErrStoreEntityNotFound) {
		return nil, errors.Wrap(err, "loading pool")
	}

	pool = entities.Pool{
		ID:                   id,
		PoolID:               poolID,
		Paymaster:            paymaster.ID,
		Network:              paymaster.Network,
		ChainID:              paymaster.ChainID,
		JoiningFee:           joiningFee,
		TotalDeposits:        new(big.Int),
		MemberCount:          new(big.Int),
		CurrentMerkleRoot:    new(big.Int),
		CreatedAtBlock:       ev.BlockNumber,
		CreatedAtTransaction: ev.TxHash,
		CreatedAtTimestamp:   ev.Timestamp,
		LastUpdatedBlock:     ev.BlockNumber,
		LastUpdatedTimestamp: ev.Timestamp,
	}
	if err := e.savePool(&pool); err != nil {
		return nil, err
	}

	info, err := e.getOrCreateNetworkInfo(paymaster.Network, ev)
	if err != nil {
		return nil, err
	}
	info.TotalPools.Add(info.TotalPools, big.NewInt(1))
	e.touchNetworkActivity(info, ev)
	if err := e.saveNetworkInfo(info); err != nil {
		return nil, err
	}

	return &pool, nil
}

// loadPool returns the pool if it exists, nil if it was never created.
func (e *Engine) loadPool(paymaster *entities.PaymasterContract, poolID *big.Int) (*entities.Pool, error) {
	id := entities.EntityID(paymaster.Network, paymaster.Address.Hex(), poolID.String())
	var pool entities.Pool
	err := e.store.Get(entities.KindPool, id, &pool)
	if errors.Is(err, entities.ErrStoreEntityNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "loading pool")
	}
	return &pool, nil
}

func (e *Engine) savePool(p *entities.Pool) error {
	return errors.Wrap(e.store.Put(entities.KindPool, p.ID, p), "saving pool")
}

func (e *Engine) createPoolMember(
	pool *entities.Pool,
	paymaster *entities.PaymasterContract,
	memberIndex, identityCommitment, merkleRoot *big.Int,
	rootIndex int,
	ev *entities.Event,
) (*entities.PoolMember, error) {
	member := entities.PoolMember{
		ID:                  entities.EntityID(pool.Network, pool.ID, memberIndex.String()),
		Pool:                pool.ID,
		Paymaster:           paymaster.ID,
		Network:             pool.Network,
		ChainID:             pool.ChainID,
		MemberIndex:         memberIndex,
		IdentityCommitment:  identityCommitment,
		MerkleRootWhenAdded: merkleRoot,
		RootIndexWhenAdded:  rootIndex,
		GasUsed:             new(big.Int),
		Nullifier:           new(big.Int),
		AddedAtBlock:        ev.BlockNumber,
		AddedAtTransaction:  ev.TxHash,
		AddedAtTimestamp:    ev.Timestamp,
	}
	if err := e.store.Put(entities.KindPoolMember, member.ID, &member); err != nil {
		return nil, errors.Wrap(err, "saving pool member")
	}

	info, err := e.getOrCreateNetworkInfo(pool.Network, ev)
	if err != nil {
		return nil, err
	}
	info.TotalMembers.Add(info.TotalMembers, big.NewInt(1))
	e.touchNetworkActivity(info, ev)
	if err := e.saveNetworkInfo(info); err != nil {
		return nil, err
	}

	return &member, nil
}

func (e *Engine) createMerkleRoot(pool *entities.Pool, root *big.Int, rootIndex int, ev *entities.Event) error {
	record := entities.MerkleRoot{
		ID:                   entities.EntityID(pool.Network, pool.ID, strconv.Itoa(rootIndex)),
		Pool:                 pool.ID,
		Paymaster:            pool.Paymaster,
		Network:              pool.Network,
		ChainID:              pool.ChainID,
		Root:                 root,
		RootIndex:            rootIndex,
		CreatedAtBlock:       ev.BlockNumber,
		CreatedAtTransaction: ev.TxHash,
		CreatedAtTimestamp:   ev.Timestamp,
	}
	return errors.Wrap(e.store.Put(entities.KindMerkleRoot, record.ID, &record), "saving merkle root")
}
