package entities

import "strings"

// Entity kinds, used as key prefixes in the store.
const (
	KindPaymaster         = "paymaster"
	KindPool              = "pool"
	KindPoolMember        = "pool-member"
	KindMerkleRoot        = "merkle-root"
	KindNullifierUsage    = "nullifier-usage"
	KindActivity          = "activity"
	KindUserOperation     = "user-operation"
	KindRevenueWithdrawal = "revenue-withdrawal"
	KindDailyPoolStats    = "daily-pool-stats"
	KindDailyGlobalStats  = "daily-global-stats"
	KindNetworkInfo       = "network-info"
)

// EntityID builds a cross-network unique id by joining the network name and
// one or more discriminator parts with "-". Callers must supply enough parts
// to avoid collisions between unrelated entities of the same kind.
func EntityID(network string, parts ...string) string {
	return network + "-" + strings.Join(parts, "-")
}
