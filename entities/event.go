package entities

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind names a decoded contract log type.
type EventKind string

const (
	EventDeposited            EventKind = "Deposited"
	EventLeafInserted         EventKind = "LeafInserted"
	EventOwnershipTransferred EventKind = "OwnershipTransferred"
	EventPoolDied             EventKind = "PoolDied"
	EventRevenueWithdrawn     EventKind = "RevenueWithdrawn"
	EventPoolCreated          EventKind = "PoolCreated"
	EventMemberAdded          EventKind = "MemberAdded"
	EventMembersAdded         EventKind = "MembersAdded"
	EventUserOpSponsored      EventKind = "UserOpSponsored"
	EventNullifierConsumed    EventKind = "NullifierConsumed"
)

// Event is one decoded contract log as delivered by the event source.
// Events arrive in strictly non-decreasing block order per contract, with the
// chain's canonical log order inside a block; the engine relies on that and
// never reorders.
type Event struct {
	Address     common.Address  `json:"address"`
	Kind        EventKind       `json:"kind"`
	BlockNumber uint64          `json:"blockNumber"`
	Timestamp   uint64          `json:"timestamp"`
	TxHash      common.Hash     `json:"txHash"`
	LogIndex    uint            `json:"logIndex"`
	Params      json.RawMessage `json:"params"`
}

// DecodeParams unmarshals the kind-specific parameters into out.
func (e *Event) DecodeParams(out any) error {
	return json.Unmarshal(e.Params, out)
}

type DepositedParams struct {
	Depositor  common.Address `json:"depositor"`
	Commitment *big.Int       `json:"commitment"`
}

type LeafInsertedParams struct {
	Index *big.Int `json:"index"`
	Leaf  *big.Int `json:"leaf"`
	Root  *big.Int `json:"root"`
}

type OwnershipTransferredParams struct {
	PreviousOwner common.Address `json:"previousOwner"`
	NewOwner      common.Address `json:"newOwner"`
}

type RevenueWithdrawnParams struct {
	Recipient common.Address `json:"recipient"`
	Amount    *big.Int       `json:"amount"`
}

type PoolCreatedParams struct {
	PoolID     *big.Int `json:"poolId"`
	JoiningFee *big.Int `json:"joiningFee"`
}

type MemberAddedParams struct {
	PoolID             *big.Int `json:"poolId"`
	MemberIndex        *big.Int `json:"memberIndex"`
	IdentityCommitment *big.Int `json:"identityCommitment"`
	MerkleTreeRoot     *big.Int `json:"merkleTreeRoot"`
	MerkleRootIndex    *big.Int `json:"merkleRootIndex"`
}

type MembersAddedParams struct {
	PoolID              *big.Int   `json:"poolId"`
	StartIndex          *big.Int   `json:"startIndex"`
	IdentityCommitments []*big.Int `json:"identityCommitments"`
	MerkleTreeRoot      *big.Int   `json:"merkleTreeRoot"`
	MerkleRootIndex     *big.Int   `json:"merkleRootIndex"`
}

// UserOpSponsoredParams covers all sponsorship shapes. PoolID and Nullifier
// are set for the pool-scoped variants; the cache enabled family emits the
// nullifier in a separate NullifierConsumed event.
type UserOpSponsoredParams struct {
	UserOpHash    common.Hash    `json:"userOpHash"`
	Sender        common.Address `json:"sender"`
	ActualGasCost *big.Int       `json:"actualGasCost"`
	PoolID        *big.Int       `json:"poolId,omitempty"`
	Nullifier     *big.Int       `json:"nullifier,omitempty"`
}

type NullifierConsumedParams struct {
	UserOpHash common.Hash `json:"userOpHash"`
	Nullifier  *big.Int    `json:"nullifier"`
	GasUsed    *big.Int    `json:"gasUsed"`
	Index      *big.Int    `json:"index"`
}
