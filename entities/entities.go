package entities

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Variant identifies the paymaster contract family a deployment belongs to.
// The variant decides the fund consumption and nullifier policies applied by
// the ledger engine.
type Variant string

const (
	VariantGasLimited             Variant = "GasLimited"
	VariantOneTimeUse             Variant = "OneTimeUse"
	VariantCacheEnabledGasLimited Variant = "CacheEnabledGasLimited"
)

// PoolScoped reports whether the variant keeps per-pool ledgers. The cache
// enabled family accounts at the contract level only.
func (v Variant) PoolScoped() bool {
	return v == VariantGasLimited || v == VariantOneTimeUse
}

// PaymasterContract is the per-deployment ledger account, one per
// (network, address). Id: EntityID(network, address).
type PaymasterContract struct {
	ID           string         `json:"id"`
	ContractType Variant        `json:"contractType"`
	Address      common.Address `json:"address"`
	Network      string         `json:"network"`
	ChainID      *big.Int       `json:"chainId"`

	JoiningAmount *big.Int       `json:"joiningAmount"`
	Scope         *big.Int       `json:"scope,omitempty"`
	Verifier      common.Address `json:"verifier,omitempty"`

	TotalUsersDeposit *big.Int `json:"totalUsersDeposit"`
	CurrentDeposit    *big.Int `json:"currentDeposit"`
	Revenue           *big.Int `json:"revenue"`

	CurrentRoot      *big.Int `json:"currentRoot"`
	CurrentRootIndex int      `json:"currentRootIndex"`
	TreeSize         *big.Int `json:"treeSize"`
	TreeDepth        int      `json:"treeDepth"`

	IsDead bool `json:"isDead"`

	DeployedAtBlock       uint64      `json:"deployedAtBlock"`
	DeployedAtTransaction common.Hash `json:"deployedAtTransaction"`
	DeployedAtTimestamp   uint64      `json:"deployedAtTimestamp"`
	LastUpdatedBlock      uint64      `json:"lastUpdatedBlock"`
	LastUpdatedTimestamp  uint64      `json:"lastUpdatedTimestamp"`
}

// Pool is a per-pool ledger nested under a pool-scoped paymaster.
// Id: EntityID(network, address, poolId).
type Pool struct {
	ID        string   `json:"id"`
	PoolID    *big.Int `json:"poolId"`
	Paymaster string   `json:"paymaster"`
	Network   string   `json:"network"`
	ChainID   *big.Int `json:"chainId"`

	JoiningFee    *big.Int `json:"joiningFee"`
	TotalDeposits *big.Int `json:"totalDeposits"`
	MemberCount   *big.Int `json:"memberCount"`

	CurrentMerkleRoot *big.Int `json:"currentMerkleRoot"`
	CurrentRootIndex  int      `json:"currentRootIndex"`
	RootHistoryCount  int      `json:"rootHistoryCount"`

	CreatedAtBlock       uint64      `json:"createdAtBlock"`
	CreatedAtTransaction common.Hash `json:"createdAtTransaction"`
	CreatedAtTimestamp   uint64      `json:"createdAtTimestamp"`
	LastUpdatedBlock     uint64      `json:"lastUpdatedBlock"`
	LastUpdatedTimestamp uint64      `json:"lastUpdatedTimestamp"`
}

// PoolMember is an append-only membership record.
// Id: EntityID(network, poolEntityId, memberIndex).
type PoolMember struct {
	ID        string   `json:"id"`
	Pool      string   `json:"pool"`
	Paymaster string   `json:"paymaster"`
	Network   string   `json:"network"`
	ChainID   *big.Int `json:"chainId"`

	MemberIndex        *big.Int `json:"memberIndex"`
	IdentityCommitment *big.Int `json:"identityCommitment"`

	// Snapshot taken at insertion time, never rewritten.
	MerkleRootWhenAdded *big.Int `json:"merkleRootWhenAdded"`
	RootIndexWhenAdded  int      `json:"rootIndexWhenAdded"`

	GasUsed       *big.Int `json:"gasUsed"`
	NullifierUsed bool     `json:"nullifierUsed"`
	Nullifier     *big.Int `json:"nullifier"`

	AddedAtBlock       uint64      `json:"addedAtBlock"`
	AddedAtTransaction common.Hash `json:"addedAtTransaction"`
	AddedAtTimestamp   uint64      `json:"addedAtTimestamp"`
}

// MerkleRoot is one entry of the append-only root history.
// Id: EntityID(network, poolEntityId, rootIndex).
type MerkleRoot struct {
	ID        string   `json:"id"`
	Pool      string   `json:"pool"`
	Paymaster string   `json:"paymaster"`
	Network   string   `json:"network"`
	ChainID   *big.Int `json:"chainId"`

	Root      *big.Int `json:"root"`
	RootIndex int      `json:"rootIndex"`

	CreatedAtBlock       uint64      `json:"createdAtBlock"`
	CreatedAtTransaction common.Hash `json:"createdAtTransaction"`
	CreatedAtTimestamp   uint64      `json:"createdAtTimestamp"`
}

// NullifierUsage tracks the consumption state of one nullifier value.
// Id: EntityID(network, nullifier).
type NullifierUsage struct {
	ID        string   `json:"id"`
	Nullifier *big.Int `json:"nullifier"`
	Paymaster string   `json:"paymaster"`
	Pool      string   `json:"pool,omitempty"`
	Network   string   `json:"network"`
	ChainID   *big.Int `json:"chainId"`

	// IsUsed is meaningful for single-use variants, GasUsed for metered ones.
	IsUsed  bool     `json:"isUsed"`
	GasUsed *big.Int `json:"gasUsed"`

	FirstUsedAtBlock       uint64      `json:"firstUsedAtBlock"`
	FirstUsedAtTransaction common.Hash `json:"firstUsedAtTransaction"`
	FirstUsedAtTimestamp   uint64      `json:"firstUsedAtTimestamp"`
	LastUpdatedBlock       uint64      `json:"lastUpdatedBlock"`
	LastUpdatedTimestamp   uint64      `json:"lastUpdatedTimestamp"`
}

// ActivityType discriminates journal entries.
type ActivityType string

const (
	ActivityDeposit          ActivityType = "DEPOSIT"
	ActivityRevenueWithdrawn ActivityType = "REVENUE_WITHDRAWN"
	ActivityUserOpSponsored  ActivityType = "USER_OP_SPONSORED"
)

// Activity is one journal entry, correlated by transaction.
// Id: EntityID(network, txHash, logIndex).
type Activity struct {
	ID        string       `json:"id"`
	Type      ActivityType `json:"type"`
	Paymaster string       `json:"paymaster"`
	Network   string       `json:"network"`
	ChainID   *big.Int     `json:"chainId"`

	Block       uint64      `json:"block"`
	Transaction common.Hash `json:"transaction"`
	Timestamp   uint64      `json:"timestamp"`

	// DEPOSIT fields. MemberIndex and NewRoot are patched in by the leaf
	// insertion observed in the same transaction.
	Depositor   common.Address `json:"depositor,omitempty"`
	Commitment  *big.Int       `json:"commitment,omitempty"`
	MemberIndex *big.Int       `json:"memberIndex,omitempty"`
	NewRoot     *big.Int       `json:"newRoot,omitempty"`

	// REVENUE_WITHDRAWN fields.
	WithdrawAddress common.Address `json:"withdrawAddress,omitempty"`
	Amount          *big.Int       `json:"amount,omitempty"`

	// USER_OP_SPONSORED fields.
	Sender        common.Address `json:"sender,omitempty"`
	UserOpHash    common.Hash    `json:"userOpHash,omitempty"`
	ActualGasCost *big.Int       `json:"actualGasCost,omitempty"`
}

// UserOperation is one sponsored operation.
// Id: EntityID(network, userOpHash) for the cache enabled family so the later
// NullifierConsumed event can find it, EntityID(network, txHash) otherwise.
type UserOperation struct {
	ID        string   `json:"id"`
	Paymaster string   `json:"paymaster"`
	Pool      string   `json:"pool,omitempty"`
	Network   string   `json:"network"`
	ChainID   *big.Int `json:"chainId"`

	UserOpHash    common.Hash    `json:"userOpHash"`
	Sender        common.Address `json:"sender"`
	ActualGasCost *big.Int       `json:"actualGasCost"`
	GasPrice      *big.Int       `json:"gasPrice"`
	TotalGasUsed  *big.Int       `json:"totalGasUsed"`

	// Zero until the nullifier consumption event fills it in, for variants
	// that emit the nullifier separately.
	Nullifier *big.Int `json:"nullifier"`

	ExecutedAtBlock       uint64      `json:"executedAtBlock"`
	ExecutedAtTransaction common.Hash `json:"executedAtTransaction"`
	ExecutedAtTimestamp   uint64      `json:"executedAtTimestamp"`
}

// RevenueWithdrawal records one withdrawal of accumulated revenue.
// Id: EntityID(network, txHash, blockNumber).
type RevenueWithdrawal struct {
	ID        string   `json:"id"`
	Paymaster string   `json:"paymaster"`
	Network   string   `json:"network"`
	ChainID   *big.Int `json:"chainId"`

	Recipient common.Address `json:"recipient"`
	Amount    *big.Int       `json:"amount"`

	WithdrawnAtBlock       uint64      `json:"withdrawnAtBlock"`
	WithdrawnAtTransaction common.Hash `json:"withdrawnAtTransaction"`
	WithdrawnAtTimestamp   uint64      `json:"withdrawnAtTimestamp"`
}

// DailyPoolStats is the per-pool daily rollup bucket.
// Id: EntityID(network, date, poolEntityId).
type DailyPoolStats struct {
	ID      string   `json:"id"`
	Date    string   `json:"date"`
	Pool    string   `json:"pool"`
	Network string   `json:"network"`
	ChainID *big.Int `json:"chainId"`

	// Additive counters, one delta per source event.
	NewMembers       *big.Int `json:"newMembers"`
	Transactions     *big.Int `json:"transactions"`
	GasSpent         *big.Int `json:"gasSpent"`
	RevenueGenerated *big.Int `json:"revenueGenerated"`

	// Snapshots of the current ledger values, overwritten on every update.
	TotalMembers  *big.Int `json:"totalMembers"`
	TotalDeposits *big.Int `json:"totalDeposits"`
}

// DailyGlobalStats is the network-wide daily rollup bucket.
// Id: EntityID(network, date).
type DailyGlobalStats struct {
	ID      string   `json:"id"`
	Date    string   `json:"date"`
	Network string   `json:"network"`
	ChainID *big.Int `json:"chainId"`

	NewPools              *big.Int `json:"newPools"`
	TotalNewMembers       *big.Int `json:"totalNewMembers"`
	TotalTransactions     *big.Int `json:"totalTransactions"`
	TotalGasSpent         *big.Int `json:"totalGasSpent"`
	TotalRevenueGenerated *big.Int `json:"totalRevenueGenerated"`

	TotalActivePools *big.Int `json:"totalActivePools"`
	TotalMembers     *big.Int `json:"totalMembers"`
}

// NetworkInfo keeps global monotone counters per network. Id: network name.
type NetworkInfo struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	ChainID *big.Int `json:"chainId"`

	TotalPaymasters   *big.Int `json:"totalPaymasters"`
	TotalPools        *big.Int `json:"totalPools"`
	TotalMembers      *big.Int `json:"totalMembers"`
	TotalTransactions *big.Int `json:"totalTransactions"`
	TotalGasSpent     *big.Int `json:"totalGasSpent"`
	TotalRevenue      *big.Int `json:"totalRevenue"`

	FirstDeploymentBlock     uint64 `json:"firstDeploymentBlock"`
	FirstDeploymentTimestamp uint64 `json:"firstDeploymentTimestamp"`
	LastActivityBlock        uint64 `json:"lastActivityBlock"`
	LastActivityTimestamp    uint64 `json:"lastActivityTimestamp"`
}
