package ledger

import (
	"math/big"

	"github.com/prepaid-gas/paymaster-indexer/entities"
)

// FundPolicy decides how much a sponsorship draws from the pooled deposits.
type FundPolicy int

const (
	// FundMetered debits the actual gas cost, leaving residual balance for
	// further operations by the same member.
	FundMetered FundPolicy = iota
	// FundFixedFee debits the full joining fee regardless of the metered
	// cost. A sponsorship exhausts the membership's economic backing.
	FundFixedFee
)

// NullifierPolicy decides the nullifier lifecycle shape.
type NullifierPolicy int

const (
	// NullifierReusable accumulates gas usage across sponsorships.
	NullifierReusable NullifierPolicy = iota
	// NullifierSingleUse marks the nullifier consumed on first use.
	NullifierSingleUse
)

func policiesFor(variant entities.Variant) (FundPolicy, NullifierPolicy) {
	if variant == entities.VariantOneTimeUse {
		return FundFixedFee, NullifierSingleUse
	}
	return FundMetered, NullifierReusable
}

// debitAmount returns the amount a sponsorship removes from the deposits:
// the metered cost or the fixed joining fee, depending on the policy.
func debitAmount(policy FundPolicy, actualGasCost, joiningFee *big.Int) *big.Int {
	if policy == FundFixedFee {
		return joiningFee
	}
	return actualGasCost
}
