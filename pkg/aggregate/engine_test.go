package aggregate

import (
	"context"
	"testing"
	"time"

	"github.com/restakelabs/restakex/pkg/snapshot"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	opA  = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	opB  = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	opC  = "0xcccccccccccccccccccccccccccccccccccccccc"
	avs1 = "0x1111111111111111111111111111111111111111"
	avs2 = "0x2222222222222222222222222222222222222222"
	avs3 = "0x3333333333333333333333333333333333333333"
)

// fakeResolver serves canned facts; "at" filtering happens by timestamp the
// same way the store does it.
type fakeResolver struct {
	facts      map[snapshot.EntityKind][]snapshot.SnapshotFact
	edges      []snapshot.RegistrationEdge
	strategies map[string]snapshot.Strategy
}

func (f *fakeResolver) ResolveAll(_ context.Context, kind snapshot.EntityKind, at time.Time) ([]snapshot.SnapshotFact, error) {
	var out []snapshot.SnapshotFact
	for _, fact := range f.facts[kind] {
		if !fact.Timestamp.After(at) {
			out = append(out, fact)
		}
	}
	return out, nil
}

func (f *fakeResolver) ActiveRegistrations(_ context.Context, at time.Time) ([]snapshot.RegistrationEdge, error) {
	var out []snapshot.RegistrationEdge
	for _, edge := range f.edges {
		if edge.Active && !edge.RegisteredAt.After(at) {
			out = append(out, edge)
		}
	}
	return out, nil
}

func (f *fakeResolver) Strategies(context.Context) (map[string]snapshot.Strategy, error) {
	return f.strategies, nil
}

func operatorFact(entity string, ts time.Time, usd int64, stakers int64) snapshot.SnapshotFact {
	return snapshot.SnapshotFact{
		EntityID:   entity,
		EntityKind: snapshot.KindOperator,
		Timestamp:  ts,
		Attributes: map[string]decimal.Decimal{
			snapshot.AttrNumStakers:  decimal.NewFromInt(stakers),
			snapshot.AttrETHTVL:      decimal.NewFromInt(usd / 3200),
			snapshot.AttrTotalTVLUSD: decimal.NewFromInt(usd),
		},
	}
}

func newEngine(store Resolver) *Engine {
	return New(zap.NewNop(), store)
}

func TestSystemTotals(t *testing.T) {
	ctx := context.Background()
	at := time.Unix(100, 0).UTC()

	store := &fakeResolver{facts: map[snapshot.EntityKind][]snapshot.SnapshotFact{
		snapshot.KindOperator: {
			operatorFact(opA, at, 1_000_000, 50),
			operatorFact(opB, at, 3_000_000, 150),
		},
	}}

	totals, err := newEngine(store).SystemTotalsAt(ctx, at)
	require.NoError(t, err)
	assert.True(t, totals.TotalUSD.Equal(decimal.NewFromInt(4_000_000)))
	assert.Equal(t, int64(200), totals.TotalStakers)
	assert.Equal(t, 2, totals.OperatorCount)
	assert.True(t, totals.AvgUSDPerOperator.Equal(decimal.NewFromInt(2_000_000)))
}

func TestSystemTotalsEmpty(t *testing.T) {
	ctx := context.Background()
	store := &fakeResolver{facts: map[snapshot.EntityKind][]snapshot.SnapshotFact{}}

	totals, err := newEngine(store).SystemTotalsAt(ctx, time.Unix(100, 0))
	require.NoError(t, err)
	assert.Equal(t, 0, totals.OperatorCount)
	assert.True(t, totals.TotalUSD.IsZero())
	assert.True(t, totals.AvgUSDPerOperator.IsZero())
}

func TestRankByDescendingWithLimit(t *testing.T) {
	ctx := context.Background()
	at := time.Unix(100, 0).UTC()

	store := &fakeResolver{facts: map[snapshot.EntityKind][]snapshot.SnapshotFact{
		snapshot.KindOperator: {
			operatorFact(opA, at, 1_000_000, 50),
			operatorFact(opB, at, 3_000_000, 150),
			operatorFact(opC, at, 2_000_000, 10),
		},
	}}

	ranked, err := newEngine(store).RankBy(ctx, snapshot.KindOperator, snapshot.AttrTotalTVLUSD, at, 1)
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, opB, ranked[0].EntityID)
	assert.True(t, ranked[0].Value.Equal(decimal.NewFromInt(3_000_000)))
}

func TestRankByTieBreaksDeterministically(t *testing.T) {
	ctx := context.Background()
	at := time.Unix(100, 0).UTC()

	store := &fakeResolver{facts: map[snapshot.EntityKind][]snapshot.SnapshotFact{
		snapshot.KindOperator: {
			operatorFact(opC, at, 500, 1),
			operatorFact(opA, at, 500, 1),
			operatorFact(opB, at, 500, 1),
		},
	}}

	ranked, err := newEngine(store).RankBy(ctx, snapshot.KindOperator, snapshot.AttrTotalTVLUSD, at, 0)
	require.NoError(t, err)
	require.Len(t, ranked, 3)
	assert.Equal(t, opA, ranked[0].EntityID)
	assert.Equal(t, opB, ranked[1].EntityID)
	assert.Equal(t, opC, ranked[2].EntityID)
}

func TestRankByExcludesFutureFacts(t *testing.T) {
	ctx := context.Background()

	store := &fakeResolver{facts: map[snapshot.EntityKind][]snapshot.SnapshotFact{
		snapshot.KindOperator: {
			operatorFact(opA, time.Unix(100, 0), 1_000, 1),
			operatorFact(opB, time.Unix(200, 0), 9_000, 1),
		},
	}}

	ranked, err := newEngine(store).RankBy(ctx, snapshot.KindOperator, snapshot.AttrTotalTVLUSD, time.Unix(150, 0), 0)
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, opA, ranked[0].EntityID)
}

func TestConcentration(t *testing.T) {
	ctx := context.Background()
	at := time.Unix(100, 0).UTC()

	// Shares 0.25 and 0.75: HHI = (0.0625 + 0.5625) * 10000 = 6250
	store := &fakeResolver{facts: map[snapshot.EntityKind][]snapshot.SnapshotFact{
		snapshot.KindOperator: {
			operatorFact(opA, at, 1_000_000, 50),
			operatorFact(opB, at, 3_000_000, 150),
		},
	}}

	conc, err := newEngine(store).ConcentrationAt(ctx, at, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, conc.TopK)
	assert.True(t, conc.TopKShare.Equal(decimal.RequireFromString("0.75")), "got %s", conc.TopKShare)
	assert.True(t, conc.HHI.Equal(decimal.NewFromInt(6250)), "got %s", conc.HHI)
}

func TestConcentrationSingleOperatorIsMaximal(t *testing.T) {
	ctx := context.Background()
	at := time.Unix(100, 0).UTC()

	store := &fakeResolver{facts: map[snapshot.EntityKind][]snapshot.SnapshotFact{
		snapshot.KindOperator: {operatorFact(opA, at, 42, 1)},
	}}

	conc, err := newEngine(store).ConcentrationAt(ctx, at, 5)
	require.NoError(t, err)
	assert.True(t, conc.TopKShare.Equal(decimal.NewFromInt(1)))
	assert.True(t, conc.HHI.Equal(decimal.NewFromInt(10000)))
}

func TestConcentrationZeroTotal(t *testing.T) {
	ctx := context.Background()
	at := time.Unix(100, 0).UTC()

	store := &fakeResolver{facts: map[snapshot.EntityKind][]snapshot.SnapshotFact{
		snapshot.KindOperator: {operatorFact(opA, at, 0, 0)},
	}}

	_, err := newEngine(store).ConcentrationAt(ctx, at, 5)
	require.Error(t, err)
	assert.True(t, IsDataInsufficient(err))

	// Empty set behaves the same way
	empty := &fakeResolver{facts: map[snapshot.EntityKind][]snapshot.SnapshotFact{}}
	_, err = newEngine(empty).ConcentrationAt(ctx, at, 5)
	require.Error(t, err)
	assert.True(t, IsDataInsufficient(err))
}

func strategyFact(entity, strat string, ts time.Time, tokens, usd int64) snapshot.SnapshotFact {
	return snapshot.SnapshotFact{
		EntityID:   entity,
		EntityKind: snapshot.KindOperatorStrategy,
		StrategyID: strat,
		Timestamp:  ts,
		Attributes: map[string]decimal.Decimal{
			snapshot.AttrShares:   decimal.NewFromInt(tokens),
			snapshot.AttrTokens:   decimal.NewFromInt(tokens),
			snapshot.AttrUSDValue: decimal.NewFromInt(usd),
		},
	}
}

func TestStrategyDistribution(t *testing.T) {
	ctx := context.Background()
	at := time.Unix(100, 0).UTC()
	stETH := "0x93c4b944d05dfe6df7645a86cd2206016c51564d"
	rETH := "0x1bee69b7dfffa4e2d53c2a2df135c388ad25dcd2"

	store := &fakeResolver{
		facts: map[snapshot.EntityKind][]snapshot.SnapshotFact{
			snapshot.KindOperatorStrategy: {
				strategyFact(opA, stETH, at, 100, 320_000),
				strategyFact(opB, stETH, at, 50, 160_000),
				strategyFact(opA, rETH, at, 10, 35_000),
			},
		},
		strategies: map[string]snapshot.Strategy{
			stETH: {Address: stETH, Symbol: "stETH", Name: "Lido Staked ETH"},
			rETH:  {Address: rETH, Symbol: "rETH", Name: "Rocket Pool ETH"},
		},
	}

	stats, err := newEngine(store).StrategyDistributionAt(ctx, at)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	// Sorted by total usd descending: stETH first
	assert.Equal(t, "stETH", stats[0].Symbol)
	assert.Equal(t, 2, stats[0].OperatorCount)
	assert.True(t, stats[0].TotalUSD.Equal(decimal.NewFromInt(480_000)))
	assert.True(t, stats[0].AvgUSDPerOperator.Equal(decimal.NewFromInt(240_000)))

	assert.Equal(t, "rETH", stats[1].Symbol)
	assert.Equal(t, 1, stats[1].OperatorCount)
}

func TestStrategyDistributionUnknownStrategyKeepsID(t *testing.T) {
	ctx := context.Background()
	at := time.Unix(100, 0).UTC()
	unknown := "0x9999999999999999999999999999999999999999"

	store := &fakeResolver{
		facts: map[snapshot.EntityKind][]snapshot.SnapshotFact{
			snapshot.KindOperatorStrategy: {strategyFact(opA, unknown, at, 1, 100)},
		},
		strategies: map[string]snapshot.Strategy{},
	}

	stats, err := newEngine(store).StrategyDistributionAt(ctx, at)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, unknown, stats[0].StrategyID)
	assert.Empty(t, stats[0].Symbol)
}

func TestNetworkOverlap(t *testing.T) {
	ctx := context.Background()
	at := time.Unix(100, 0).UTC()
	reg := func(op, svc string, active bool) snapshot.RegistrationEdge {
		return snapshot.RegistrationEdge{OperatorID: op, ServiceID: svc, RegisteredAt: time.Unix(50, 0), Active: active}
	}

	store := &fakeResolver{edges: []snapshot.RegistrationEdge{
		reg(opA, avs1, true),
		reg(opB, avs1, true),
		reg(opA, avs2, true),
		reg(opB, avs2, true),
		reg(opA, avs3, true),
		reg(opC, avs3, false), // inactive edges do not count
	}}

	pairs, err := newEngine(store).NetworkOverlapAt(ctx, at)
	require.NoError(t, err)
	require.Len(t, pairs, 3)

	// avs1/avs2 share two operators and rank first
	assert.Equal(t, avs1, pairs[0].ServiceA)
	assert.Equal(t, avs2, pairs[0].ServiceB)
	assert.Equal(t, 2, pairs[0].SharedOperators)

	// the avs3 pairs share only opA
	assert.Equal(t, 1, pairs[1].SharedOperators)
	assert.Equal(t, 1, pairs[2].SharedOperators)
}

func TestNetworkOverlapSkipsDisjointPairs(t *testing.T) {
	ctx := context.Background()
	at := time.Unix(100, 0).UTC()

	store := &fakeResolver{edges: []snapshot.RegistrationEdge{
		{OperatorID: opA, ServiceID: avs1, RegisteredAt: time.Unix(50, 0), Active: true},
		{OperatorID: opB, ServiceID: avs2, RegisteredAt: time.Unix(50, 0), Active: true},
	}}

	pairs, err := newEngine(store).NetworkOverlapAt(ctx, at)
	require.NoError(t, err)
	assert.Empty(t, pairs)
}
