package ledger

import (
	"encoding/json"
	"math/big"
	"os"
	"strconv"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prepaid-gas/paymaster-indexer/entities"
	"github.com/prepaid-gas/paymaster-indexer/infrastructure/store/pebbledb"
	"github.com/prepaid-gas/paymaster-indexer/metrics"
	"github.com/prepaid-gas/paymaster-indexer/network"
)

var testMetrics = metrics.NewMetrics("ledger_test")

const testNetwork = "base-sepolia"

// 2023-11-14 UTC
const day1 = uint64(1_700_000_000)
const day2 = day1 + 86_400

var (
	gasLimitedAddr = common.HexToAddress("0x3BEeC075aC5A77fFE0F9ee4bbb3DCBd07fA93fbf")
	oneTimeAddr    = common.HexToAddress("0x243A735115F34BD5c0F23a33a444a8d26e31E2E7")
	cacheAddr      = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
)

func newTestEngine(t *testing.T) (*Engine, *pebbledb.Store) {
	tempDir, err := os.MkdirTemp("", "ledger_engine_test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store, err := pebbledb.NewEntityStore(tempDir)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := zap.NewNop().Sugar()
	cfg := network.NewConfig(
		map[string]network.NetworkConfig{
			testNetwork: {Name: "Base Sepolia", ChainID: big.NewInt(84532)},
		},
		map[string]network.ContractConfig{
			gasLimitedAddr.Hex(): {Variant: entities.VariantGasLimited, Network: testNetwork},
			oneTimeAddr.Hex():    {Variant: entities.VariantOneTimeUse, Network: testNetwork},
			cacheAddr.Hex(): {
				Variant:       entities.VariantCacheEnabledGasLimited,
				Network:       testNetwork,
				JoiningAmount: big.NewInt(1_000_000),
			},
		},
		logger,
	)
	return NewEngine(store, cfg, testMetrics, logger), store
}

func makeEvent(t *testing.T, addr common.Address, kind entities.EventKind, params any, block, ts uint64, tx common.Hash, logIndex uint) *entities.Event {
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	return &entities.Event{
		Address:     addr,
		Kind:        kind,
		BlockNumber: block,
		Timestamp:   ts,
		TxHash:      tx,
		LogIndex:    logIndex,
		Params:      raw,
	}
}

func txHash(n int64) common.Hash {
	return common.BigToHash(big.NewInt(n))
}

func loadPaymaster(t *testing.T, store *pebbledb.Store, addr common.Address) *entities.PaymasterContract {
	var p entities.PaymasterContract
	require.NoError(t, store.Get(entities.KindPaymaster, entities.EntityID(testNetwork, addr.Hex()), &p))
	return &p
}

func loadPool(t *testing.T, store *pebbledb.Store, addr common.Address, poolID int64) *entities.Pool {
	var p entities.Pool
	id := entities.EntityID(testNetwork, addr.Hex(), strconv.FormatInt(poolID, 10))
	require.NoError(t, store.Get(entities.KindPool, id, &p))
	return &p
}

// seedPoolWithMember processes a pool creation and one member join with the
// given joining fee.
func seedPoolWithMember(t *testing.T, engine *Engine, addr common.Address, fee int64) {
	ev := makeEvent(t, addr, entities.EventPoolCreated,
		entities.PoolCreatedParams{PoolID: big.NewInt(1), JoiningFee: big.NewInt(fee)},
		10, day1, txHash(1), 0)
	require.NoError(t, engine.Process(ev))

	ev = makeEvent(t, addr, entities.EventMemberAdded,
		entities.MemberAddedParams{
			PoolID:             big.NewInt(1),
			MemberIndex:        big.NewInt(0),
			IdentityCommitment: big.NewInt(42),
			MerkleTreeRoot:     big.NewInt(777),
			MerkleRootIndex:    big.NewInt(0),
		},
		11, day1, txHash(2), 0)
	require.NoError(t, engine.Process(ev))
}

func TestEngine_Process_paymasterCreatedOnce(t *testing.T) {
	engine, store := newTestEngine(t)

	ev := makeEvent(t, gasLimitedAddr, entities.EventPoolCreated,
		entities.PoolCreatedParams{PoolID: big.NewInt(1), JoiningFee: big.NewInt(1000)},
		10, day1, txHash(1), 0)
	require.NoError(t, engine.Process(ev))

	ev = makeEvent(t, gasLimitedAddr, entities.EventPoolCreated,
		entities.PoolCreatedParams{PoolID: big.NewInt(2), JoiningFee: big.NewInt(2000)},
		11, day1, txHash(2), 0)
	require.NoError(t, engine.Process(ev))

	paymaster := loadPaymaster(t, store, gasLimitedAddr)
	assert.Equal(t, uint64(10), paymaster.DeployedAtBlock)
	assert.Equal(t, uint64(11), paymaster.LastUpdatedBlock)

	var info entities.NetworkInfo
	require.NoError(t, store.Get(entities.KindNetworkInfo, testNetwork, &info))
	assert.Equal(t, 0, big.NewInt(1).Cmp(info.TotalPaymasters))
	assert.Equal(t, 0, big.NewInt(2).Cmp(info.TotalPools))
}

func TestEngine_meteredDebit_gasLimitedPool(t *testing.T) {
	engine, store := newTestEngine(t)
	seedPoolWithMember(t, engine, gasLimitedAddr, 1000)

	costs := []int64{150, 250}
	for i, cost := range costs {
		ev := makeEvent(t, gasLimitedAddr, entities.EventUserOpSponsored,
			entities.UserOpSponsoredParams{
				UserOpHash:    txHash(100 + int64(i)),
				Sender:        common.HexToAddress("0x01"),
				ActualGasCost: big.NewInt(cost),
				PoolID:        big.NewInt(1),
				Nullifier:     big.NewInt(9999),
			},
			uint64(20+i), day1, txHash(10+int64(i)), 0)
		require.NoError(t, engine.Process(ev))
	}

	pool := loadPool(t, store, gasLimitedAddr, 1)
	assert.Equal(t, 0, big.NewInt(600).Cmp(pool.TotalDeposits), "fee minus sum of metered costs")

	paymaster := loadPaymaster(t, store, gasLimitedAddr)
	assert.Equal(t, 0, big.NewInt(600).Cmp(paymaster.TotalUsersDeposit))
	assert.Equal(t, 0, big.NewInt(400).Cmp(paymaster.Revenue))

	expected := new(big.Int).Sub(paymaster.CurrentDeposit, paymaster.TotalUsersDeposit)
	assert.Equal(t, 0, expected.Cmp(paymaster.Revenue), "revenue invariant")

	var usage entities.NullifierUsage
	require.NoError(t, store.Get(entities.KindNullifierUsage, entities.EntityID(testNetwork, "9999"), &usage))
	assert.Equal(t, 0, big.NewInt(400).Cmp(usage.GasUsed), "metered usage accumulates")
	assert.False(t, usage.IsUsed)
}

func TestEngine_oneShotDebit_oneTimeUsePool(t *testing.T) {
	engine, store := newTestEngine(t)
	seedPoolWithMember(t, engine, oneTimeAddr, 1000)

	ev := makeEvent(t, oneTimeAddr, entities.EventUserOpSponsored,
		entities.UserOpSponsoredParams{
			UserOpHash:    txHash(100),
			Sender:        common.HexToAddress("0x01"),
			ActualGasCost: big.NewInt(100),
			PoolID:        big.NewInt(1),
			Nullifier:     big.NewInt(5555),
		},
		20, day1, txHash(10), 0)
	require.NoError(t, engine.Process(ev))

	// The whole joining fee is consumed, not the metered cost.
	paymaster := loadPaymaster(t, store, oneTimeAddr)
	assert.Equal(t, 0, paymaster.TotalUsersDeposit.Sign())

	pool := loadPool(t, store, oneTimeAddr, 1)
	assert.Equal(t, 0, pool.TotalDeposits.Sign())

	var usage entities.NullifierUsage
	require.NoError(t, store.Get(entities.KindNullifierUsage, entities.EntityID(testNetwork, "5555"), &usage))
	assert.True(t, usage.IsUsed)
}

func TestEngine_nullifierReuse_flaggedWithoutSecondDebit(t *testing.T) {
	engine, store := newTestEngine(t)
	seedPoolWithMember(t, engine, oneTimeAddr, 1000)

	for i := int64(0); i < 2; i++ {
		ev := makeEvent(t, oneTimeAddr, entities.EventUserOpSponsored,
			entities.UserOpSponsoredParams{
				UserOpHash:    txHash(100 + i),
				Sender:        common.HexToAddress("0x01"),
				ActualGasCost: big.NewInt(100),
				PoolID:        big.NewInt(1),
				Nullifier:     big.NewInt(5555),
			},
			uint64(20+i), day1, txHash(10+i), 0)
		require.NoError(t, engine.Process(ev))
	}

	// One debit only: the second use of the nullifier must not drain the
	// pool again.
	paymaster := loadPaymaster(t, store, oneTimeAddr)
	assert.Equal(t, 0, paymaster.TotalUsersDeposit.Sign())

	// The operation itself is still recorded.
	var op entities.UserOperation
	require.NoError(t, store.Get(entities.KindUserOperation, entities.EntityID(testNetwork, txHash(11).Hex()), &op))

	var stats entities.DailyPoolStats
	poolID := entities.EntityID(testNetwork, oneTimeAddr.Hex(), "1")
	statsID := entities.EntityID(testNetwork, "2023-11-14", poolID)
	require.NoError(t, store.Get(entities.KindDailyPoolStats, statsID, &stats))
	assert.Equal(t, 0, big.NewInt(2).Cmp(stats.Transactions))
}

func TestEngine_depositCorrelation_sameTransaction(t *testing.T) {
	engine, store := newTestEngine(t)

	tx := txHash(77)
	ev := makeEvent(t, cacheAddr, entities.EventDeposited,
		entities.DepositedParams{Depositor: common.HexToAddress("0x02"), Commitment: big.NewInt(42)},
		10, day1, tx, 0)
	require.NoError(t, engine.Process(ev))

	ev = makeEvent(t, cacheAddr, entities.EventLeafInserted,
		entities.LeafInsertedParams{Index: big.NewInt(0), Leaf: big.NewInt(42), Root: big.NewInt(777)},
		10, day1, tx, 1)
	require.NoError(t, engine.Process(ev))

	var activity entities.Activity
	activityID := entities.EntityID(testNetwork, tx.Hex(), "0")
	require.NoError(t, store.Get(entities.KindActivity, activityID, &activity))
	assert.Equal(t, entities.ActivityDeposit, activity.Type)
	require.NotNil(t, activity.MemberIndex)
	assert.Equal(t, 0, big.NewInt(0).Cmp(activity.MemberIndex))
	require.NotNil(t, activity.NewRoot)
	assert.Equal(t, 0, big.NewInt(777).Cmp(activity.NewRoot))

	paymaster := loadPaymaster(t, store, cacheAddr)
	assert.Equal(t, 0, big.NewInt(1_000_000).Cmp(paymaster.TotalUsersDeposit))
	assert.Equal(t, 0, big.NewInt(777).Cmp(paymaster.CurrentRoot))
	assert.Equal(t, 0, big.NewInt(1).Cmp(paymaster.TreeSize))
}

func TestEngine_depositCorrelation_differentTransaction(t *testing.T) {
	engine, store := newTestEngine(t)

	ev := makeEvent(t, cacheAddr, entities.EventDeposited,
		entities.DepositedParams{Depositor: common.HexToAddress("0x02"), Commitment: big.NewInt(42)},
		10, day1, txHash(1), 0)
	require.NoError(t, engine.Process(ev))

	ev = makeEvent(t, cacheAddr, entities.EventLeafInserted,
		entities.LeafInsertedParams{Index: big.NewInt(0), Leaf: big.NewInt(42), Root: big.NewInt(777)},
		11, day1, txHash(2), 0)
	require.NoError(t, engine.Process(ev))

	// The deposit keeps its placeholder state.
	var activity entities.Activity
	activityID := entities.EntityID(testNetwork, txHash(1).Hex(), "0")
	require.NoError(t, store.Get(entities.KindActivity, activityID, &activity))
	assert.Nil(t, activity.MemberIndex)
	assert.Nil(t, activity.NewRoot)

	// The tree pointer still advances.
	paymaster := loadPaymaster(t, store, cacheAddr)
	assert.Equal(t, 0, big.NewInt(777).Cmp(paymaster.CurrentRoot))
}

func TestEngine_rootHistoryWrapsAt64(t *testing.T) {
	engine, store := newTestEngine(t)

	// Inserting the 65th leaf (index 64) wraps the root history.
	ev := makeEvent(t, cacheAddr, entities.EventLeafInserted,
		entities.LeafInsertedParams{Index: big.NewInt(64), Leaf: big.NewInt(1), Root: big.NewInt(888)},
		10, day1, txHash(1), 0)
	require.NoError(t, engine.Process(ev))

	paymaster := loadPaymaster(t, store, cacheAddr)
	assert.Equal(t, 0, paymaster.CurrentRootIndex)
	assert.Equal(t, 0, big.NewInt(65).Cmp(paymaster.TreeSize))
}

func TestEngine_statsAdditivityAcrossDates(t *testing.T) {
	engine, store := newTestEngine(t)
	seedPoolWithMember(t, engine, gasLimitedAddr, 100_000)

	sponsor := func(block uint64, ts uint64, tx int64, cost int64) {
		ev := makeEvent(t, gasLimitedAddr, entities.EventUserOpSponsored,
			entities.UserOpSponsoredParams{
				UserOpHash:    txHash(100 + tx),
				Sender:        common.HexToAddress("0x01"),
				ActualGasCost: big.NewInt(cost),
				PoolID:        big.NewInt(1),
				Nullifier:     big.NewInt(tx),
			},
			block, ts, txHash(tx), 0)
		require.NoError(t, engine.Process(ev))
	}

	sponsor(20, day1, 10, 150)
	sponsor(21, day1, 11, 250)
	sponsor(22, day2, 12, 50)

	poolID := entities.EntityID(testNetwork, gasLimitedAddr.Hex(), "1")

	var bucket1 entities.DailyPoolStats
	require.NoError(t, store.Get(entities.KindDailyPoolStats, entities.EntityID(testNetwork, "2023-11-14", poolID), &bucket1))
	assert.Equal(t, 0, big.NewInt(2).Cmp(bucket1.Transactions))
	assert.Equal(t, 0, big.NewInt(400).Cmp(bucket1.GasSpent))
	assert.Equal(t, 0, big.NewInt(1).Cmp(bucket1.TotalMembers), "snapshot of member count")

	var bucket2 entities.DailyPoolStats
	require.NoError(t, store.Get(entities.KindDailyPoolStats, entities.EntityID(testNetwork, "2023-11-15", poolID), &bucket2))
	assert.Equal(t, 0, big.NewInt(1).Cmp(bucket2.Transactions))
	assert.Equal(t, 0, big.NewInt(50).Cmp(bucket2.GasSpent))
}

func TestEngine_deadPoolKeepsAccounting(t *testing.T) {
	engine, store := newTestEngine(t)

	ev := makeEvent(t, cacheAddr, entities.EventDeposited,
		entities.DepositedParams{Depositor: common.HexToAddress("0x02"), Commitment: big.NewInt(42)},
		10, day1, txHash(1), 0)
	require.NoError(t, engine.Process(ev))

	ev = makeEvent(t, cacheAddr, entities.EventPoolDied, struct{}{}, 11, day1, txHash(2), 0)
	require.NoError(t, engine.Process(ev))

	ev = makeEvent(t, cacheAddr, entities.EventRevenueWithdrawn,
		entities.RevenueWithdrawnParams{Recipient: common.HexToAddress("0x03"), Amount: big.NewInt(400)},
		12, day1, txHash(3), 0)
	require.NoError(t, engine.Process(ev))

	// Death marks the account but never freezes accounting.
	paymaster := loadPaymaster(t, store, cacheAddr)
	assert.True(t, paymaster.IsDead)
	assert.Equal(t, 0, big.NewInt(999_600).Cmp(paymaster.CurrentDeposit))
	assert.Equal(t, 0, big.NewInt(400).Cmp(paymaster.Revenue))
}

func TestEngine_sponsorshipForUnknownPool_dropped(t *testing.T) {
	engine, store := newTestEngine(t)

	ev := makeEvent(t, gasLimitedAddr, entities.EventUserOpSponsored,
		entities.UserOpSponsoredParams{
			UserOpHash:    txHash(100),
			Sender:        common.HexToAddress("0x01"),
			ActualGasCost: big.NewInt(100),
			PoolID:        big.NewInt(99),
			Nullifier:     big.NewInt(1),
		},
		20, day1, txHash(10), 0)
	require.NoError(t, engine.Process(ev))

	// The event is abandoned without partial writes.
	var op entities.UserOperation
	err := store.Get(entities.KindUserOperation, entities.EntityID(testNetwork, txHash(10).Hex()), &op)
	assert.ErrorIs(t, err, entities.ErrStoreEntityNotFound)

	var stats entities.DailyGlobalStats
	err = store.Get(entities.KindDailyGlobalStats, entities.EntityID(testNetwork, "2023-11-14"), &stats)
	assert.ErrorIs(t, err, entities.ErrStoreEntityNotFound)
}

func TestEngine_cacheNullifierConsumed_patchesUserOperation(t *testing.T) {
	engine, store := newTestEngine(t)

	opHash := txHash(500)
	ev := makeEvent(t, cacheAddr, entities.EventUserOpSponsored,
		entities.UserOpSponsoredParams{
			UserOpHash:    opHash,
			Sender:        common.HexToAddress("0x01"),
			ActualGasCost: big.NewInt(100),
		},
		20, day1, txHash(10), 0)
	require.NoError(t, engine.Process(ev))

	var op entities.UserOperation
	opID := entities.EntityID(testNetwork, opHash.Hex())
	require.NoError(t, store.Get(entities.KindUserOperation, opID, &op))
	assert.Equal(t, 0, op.Nullifier.Sign(), "placeholder until consumption")

	ev = makeEvent(t, cacheAddr, entities.EventNullifierConsumed,
		entities.NullifierConsumedParams{
			UserOpHash: opHash,
			Nullifier:  big.NewInt(4242),
			GasUsed:    big.NewInt(100),
			Index:      big.NewInt(0),
		},
		21, day1, txHash(11), 0)
	require.NoError(t, engine.Process(ev))

	require.NoError(t, store.Get(entities.KindUserOperation, opID, &op))
	assert.Equal(t, 0, big.NewInt(4242).Cmp(op.Nullifier))

	var usage entities.NullifierUsage
	require.NoError(t, store.Get(entities.KindNullifierUsage, entities.EntityID(testNetwork, "4242"), &usage))
	assert.Equal(t, 0, big.NewInt(100).Cmp(usage.GasUsed))
}

func TestEngine_cacheNullifierConsumed_unknownOperationDropped(t *testing.T) {
	engine, store := newTestEngine(t)

	ev := makeEvent(t, cacheAddr, entities.EventNullifierConsumed,
		entities.NullifierConsumedParams{
			UserOpHash: txHash(404),
			Nullifier:  big.NewInt(4242),
			GasUsed:    big.NewInt(100),
			Index:      big.NewInt(0),
		},
		21, day1, txHash(11), 0)
	require.NoError(t, engine.Process(ev))

	var op entities.UserOperation
	err := store.Get(entities.KindUserOperation, entities.EntityID(testNetwork, txHash(404).Hex()), &op)
	assert.ErrorIs(t, err, entities.ErrStoreEntityNotFound)
}

func TestEngine_membersAddedBatch(t *testing.T) {
	engine, store := newTestEngine(t)

	ev := makeEvent(t, gasLimitedAddr, entities.EventPoolCreated,
		entities.PoolCreatedParams{PoolID: big.NewInt(1), JoiningFee: big.NewInt(100)},
		10, day1, txHash(1), 0)
	require.NoError(t, engine.Process(ev))

	ev = makeEvent(t, gasLimitedAddr, entities.EventMembersAdded,
		entities.MembersAddedParams{
			PoolID:              big.NewInt(1),
			StartIndex:          big.NewInt(0),
			IdentityCommitments: []*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3)},
			MerkleTreeRoot:      big.NewInt(777),
			MerkleRootIndex:     big.NewInt(1),
		},
		11, day1, txHash(2), 0)
	require.NoError(t, engine.Process(ev))

	pool := loadPool(t, store, gasLimitedAddr, 1)
	assert.Equal(t, 0, big.NewInt(3).Cmp(pool.MemberCount))
	assert.Equal(t, 0, big.NewInt(300).Cmp(pool.TotalDeposits))
	assert.Equal(t, 1, pool.CurrentRootIndex)

	for i := range 3 {
		var member entities.PoolMember
		memberID := entities.EntityID(testNetwork, pool.ID, strconv.Itoa(i))
		require.NoError(t, store.Get(entities.KindPoolMember, memberID, &member))
		assert.Equal(t, 0, big.NewInt(777).Cmp(member.MerkleRootWhenAdded))
	}

	var root entities.MerkleRoot
	require.NoError(t, store.Get(entities.KindMerkleRoot, entities.EntityID(testNetwork, pool.ID, "1"), &root))
	assert.Equal(t, 0, big.NewInt(777).Cmp(root.Root))
}
