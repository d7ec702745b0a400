package ledger

import (
	"math/big"
	"time"

	"github.com/pkg/errors"

	"github.com/prepaid-gas/paymaster-indexer/entities"
)

// StatsDelta carries the per-event contribution to a daily bucket. Nil fields
// count as zero. Callers contribute exactly once per source event; buckets
// are additive, so a second call with the same delta would double count.
type StatsDelta struct {
	NewPools         *big.Int
	NewMembers       *big.Int
	Transactions     *big.Int
	GasSpent         *big.Int
	RevenueGenerated *big.Int
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// bucketDate truncates a block timestamp to its UTC calendar day. The
// resulting string is part of the stats composite keys.
func bucketDate(timestamp uint64) string {
	return time.Unix(int64(timestamp), 0).UTC().Format(time.DateOnly)
}

func (e *Engine) addPoolStats(pool *entities.Pool, timestamp uint64, delta StatsDelta) error {
	date := bucketDate(timestamp)
	id := entities.EntityID(pool.Network, date, pool.ID)

	var stats entities.DailyPoolStats
	err := e.store.Get(entities.KindDailyPoolStats, id, &stats)
	if err != nil && !errors.Is(err, entities.ErrStoreEntityNotFound) {
		return errors.Wrap(err, "loading daily pool stats")
	}
	if errors.Is(err, entities.ErrStoreEntityNotFound) {
		stats = entities.DailyPoolStats{
			ID:               id,
			Date:             date,
			Pool:             pool.ID,
			Network:          pool.Network,
			ChainID:          pool.ChainID,
			NewMembers:       new(big.Int),
			Transactions:     new(big.Int),
			GasSpent:         new(big.Int),
			RevenueGenerated: new(big.Int),
		}
	}

	stats.NewMembers.Add(stats.NewMembers, orZero(delta.NewMembers))
	stats.Transactions.Add(stats.Transactions, orZero(delta.Transactions))
	stats.GasSpent.Add(stats.GasSpent, orZero(delta.GasSpent))
	stats.RevenueGenerated.Add(stats.RevenueGenerated, orZero(delta.RevenueGenerated))

	// Snapshots always reflect the ledger value at call time.
	stats.TotalMembers = pool.MemberCount
	stats.TotalDeposits = pool.TotalDeposits

	return errors.Wrap(e.store.Put(entities.KindDailyPoolStats, id, &stats), "saving daily pool stats")
}

func (e *Engine) addGlobalStats(networkName string, timestamp uint64, delta StatsDelta) error {
	date := bucketDate(timestamp)
	id := entities.EntityID(networkName, date)

	var stats entities.DailyGlobalStats
	err := e.store.Get(entities.KindDailyGlobalStats, id, &stats)
	if err != nil && !errors.Is(err, entities.ErrStoreEntityNotFound) {
		return errors.Wrap(err, "loading daily global stats")
	}
	if errors.Is(err, entities.ErrStoreEntityNotFound) {
		cfg := e.config.Network(networkName)
		stats = entities.DailyGlobalStats{
			ID:                    id,
			Date:                  date,
			Network:               networkName,
			ChainID:               cfg.ChainID,
			NewPools:              new(big.Int),
			TotalNewMembers:       new(big.Int),
			TotalTransactions:     new(big.Int),
			TotalGasSpent:         new(big.Int),
			TotalRevenueGenerated: new(big.Int),
			TotalActivePools:      new(big.Int),
			TotalMembers:          new(big.Int),
		}
	}

	stats.NewPools.Add(stats.NewPools, orZero(delta.NewPools))
	stats.TotalNewMembers.Add(stats.TotalNewMembers, orZero(delta.NewMembers))
	stats.TotalTransactions.Add(stats.TotalTransactions, orZero(delta.Transactions))
	stats.TotalGasSpent.Add(stats.TotalGasSpent, orZero(delta.GasSpent))
	stats.TotalRevenueGenerated.Add(stats.TotalRevenueGenerated, orZero(delta.RevenueGenerated))

	// Snapshot the network-wide totals at call time.
	var info entities.NetworkInfo
	if err := e.store.Get(entities.KindNetworkInfo, networkName, &info); err == nil {
		stats.TotalActivePools = info.TotalPools
		stats.TotalMembers = info.TotalMembers
	}

	return errors.Wrap(e.store.Put(entities.KindDailyGlobalStats, id, &stats), "saving daily global stats")
}
