// Package aggregate derives cross-entity views (rankings, concentration,
// distributions, system totals) from the snapshot store's as-of resolution.
// Every operation is a pure read over resolved facts; the engine holds no
// mutable state and never touches the cache layer.
package aggregate

import (
	"context"
	"sort"
	"time"

	"github.com/restakelabs/restakex/pkg/snapshot"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Resolver is the slice of the snapshot store the engine reads from.
type Resolver interface {
	ResolveAll(ctx context.Context, kind snapshot.EntityKind, at time.Time) ([]snapshot.SnapshotFact, error)
	ActiveRegistrations(ctx context.Context, at time.Time) ([]snapshot.RegistrationEdge, error)
	Strategies(ctx context.Context) (map[string]snapshot.Strategy, error)
}

// Engine computes aggregates at a reference time.
type Engine struct {
	store  Resolver
	logger *zap.Logger
}

// New returns an Engine reading from store.
func New(logger *zap.Logger, store Resolver) *Engine {
	return &Engine{
		store:  store,
		logger: logger.With(zap.String("component", "aggregate_engine")),
	}
}

// RankedEntity is one row of a ranking.
type RankedEntity struct {
	EntityID   string          `json:"entity_id"`
	StrategyID string          `json:"strategy_id,omitempty"`
	Value      decimal.Decimal `json:"value"`
	Timestamp  time.Time       `json:"timestamp"`
}

// RankBy resolves all entities of kind at the reference time and orders them
// descending by the attribute. Ties break by entity id ascending so the
// ordering is deterministic. The result is truncated to limit.
func (e *Engine) RankBy(ctx context.Context, kind snapshot.EntityKind, attribute string, at time.Time, limit int) ([]RankedEntity, error) {
	facts, err := e.store.ResolveAll(ctx, kind, at)
	if err != nil {
		return nil, err
	}

	ranked := make([]RankedEntity, 0, len(facts))
	for i := range facts {
		fact := &facts[i]
		ranked = append(ranked, RankedEntity{
			EntityID:   fact.EntityID,
			StrategyID: fact.StrategyID,
			Value:      fact.Attr(attribute),
			Timestamp:  fact.Timestamp,
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if cmp := ranked[i].Value.Cmp(ranked[j].Value); cmp != 0 {
			return cmp > 0
		}
		if ranked[i].EntityID != ranked[j].EntityID {
			return ranked[i].EntityID < ranked[j].EntityID
		}
		return ranked[i].StrategyID < ranked[j].StrategyID
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// SystemTotals is the system-wide operator aggregate at a reference time.
type SystemTotals struct {
	TotalUSD          decimal.Decimal `json:"total_usd"`
	TotalETHTVL       decimal.Decimal `json:"total_eth_tvl"`
	TotalEigenTVL     decimal.Decimal `json:"total_eigen_tvl"`
	TotalStakers      int64           `json:"total_stakers"`
	OperatorCount     int             `json:"operator_count"`
	AvgUSDPerOperator decimal.Decimal `json:"avg_usd_per_operator"`
}

// SystemTotalsAt sums operator valuations over the resolved set. An operator
// missing a single attribute contributes zero to that sum; only an operator
// entirely absent from the resolved set is excluded from the average's
// denominator.
func (e *Engine) SystemTotalsAt(ctx context.Context, at time.Time) (*SystemTotals, error) {
	facts, err := e.store.ResolveAll(ctx, snapshot.KindOperator, at)
	if err != nil {
		return nil, err
	}

	totals := &SystemTotals{OperatorCount: len(facts)}
	for i := range facts {
		fact := &facts[i]
		totals.TotalUSD = totals.TotalUSD.Add(fact.Attr(snapshot.AttrTotalTVLUSD))
		totals.TotalETHTVL = totals.TotalETHTVL.Add(fact.Attr(snapshot.AttrETHTVL))
		totals.TotalEigenTVL = totals.TotalEigenTVL.Add(fact.Attr(snapshot.AttrEigenTVL))
		totals.TotalStakers += fact.AttrInt(snapshot.AttrNumStakers)
	}
	if totals.OperatorCount > 0 {
		totals.AvgUSDPerOperator = totals.TotalUSD.Div(decimal.NewFromInt(int64(totals.OperatorCount)))
	}
	return totals, nil
}

// Concentration reports how concentrated operator TVL is at a reference time.
type Concentration struct {
	TopK      int             `json:"top_k"`
	TopKShare decimal.Decimal `json:"top_k_share"`
	HHI       decimal.Decimal `json:"hhi"`
}

var hhiScale = decimal.NewFromInt(10000)

// ConcentrationAt computes the top-k share of total USD TVL and the
// Herfindahl-Hirschman index: sum of squared shares scaled to [0, 10000].
// A zero system total makes the shares undefined and yields a
// DataInsufficientError rather than a division by zero.
func (e *Engine) ConcentrationAt(ctx context.Context, at time.Time, topK int) (*Concentration, error) {
	if topK <= 0 {
		topK = 5
	}

	facts, err := e.store.ResolveAll(ctx, snapshot.KindOperator, at)
	if err != nil {
		return nil, err
	}

	values := make([]decimal.Decimal, 0, len(facts))
	total := decimal.Decimal{}
	for i := range facts {
		v := facts[i].Attr(snapshot.AttrTotalTVLUSD)
		values = append(values, v)
		total = total.Add(v)
	}
	if total.IsZero() {
		return nil, &DataInsufficientError{Reason: "total usd tvl is zero at reference time"}
	}

	sort.Slice(values, func(i, j int) bool { return values[i].Cmp(values[j]) > 0 })

	result := &Concentration{TopK: topK}
	topSum := decimal.Decimal{}
	for i, v := range values {
		share := v.Div(total)
		result.HHI = result.HHI.Add(share.Mul(share))
		if i < topK {
			topSum = topSum.Add(v)
		}
	}
	result.HHI = result.HHI.Mul(hhiScale)
	result.TopKShare = topSum.Div(total)
	return result, nil
}

// StrategyStat is the per-strategy slice of operator allocations.
type StrategyStat struct {
	StrategyID        string          `json:"strategy_id"`
	Symbol            string          `json:"symbol,omitempty"`
	Name              string          `json:"name,omitempty"`
	OperatorCount     int             `json:"operator_count"`
	TotalTokens       decimal.Decimal `json:"total_tokens"`
	TotalUSD          decimal.Decimal `json:"total_usd"`
	AvgUSDPerOperator decimal.Decimal `json:"avg_usd_per_operator"`
}

// StrategyDistributionAt joins resolved operator-strategy facts by strategy
// identity. The per-operator average is zero when a strategy has no
// operators, never a division by zero.
func (e *Engine) StrategyDistributionAt(ctx context.Context, at time.Time) ([]StrategyStat, error) {
	facts, err := e.store.ResolveAll(ctx, snapshot.KindOperatorStrategy, at)
	if err != nil {
		return nil, err
	}
	strategies, err := e.store.Strategies(ctx)
	if err != nil {
		return nil, err
	}

	byStrategy := make(map[string]*StrategyStat)
	for i := range facts {
		fact := &facts[i]
		stat, ok := byStrategy[fact.StrategyID]
		if !ok {
			stat = &StrategyStat{StrategyID: fact.StrategyID}
			if meta, known := strategies[fact.StrategyID]; known {
				stat.Symbol = meta.Symbol
				stat.Name = meta.Name
			}
			byStrategy[fact.StrategyID] = stat
		}
		stat.OperatorCount++
		stat.TotalTokens = stat.TotalTokens.Add(fact.Attr(snapshot.AttrTokens))
		stat.TotalUSD = stat.TotalUSD.Add(fact.Attr(snapshot.AttrUSDValue))
	}

	out := make([]StrategyStat, 0, len(byStrategy))
	for _, stat := range byStrategy {
		if stat.OperatorCount > 0 {
			stat.AvgUSDPerOperator = stat.TotalUSD.Div(decimal.NewFromInt(int64(stat.OperatorCount)))
		}
		out = append(out, *stat)
	}
	sort.Slice(out, func(i, j int) bool {
		if cmp := out[i].TotalUSD.Cmp(out[j].TotalUSD); cmp != 0 {
			return cmp > 0
		}
		return out[i].StrategyID < out[j].StrategyID
	})
	return out, nil
}

// OverlapPair counts the operators registered to both services.
type OverlapPair struct {
	ServiceA        string `json:"service_a"`
	ServiceB        string `json:"service_b"`
	SharedOperators int    `json:"shared_operators"`
}

// NetworkOverlapAt counts shared operators for each pair of services over
// active registrations in the reference-time window.
func (e *Engine) NetworkOverlapAt(ctx context.Context, at time.Time) ([]OverlapPair, error) {
	edges, err := e.store.ActiveRegistrations(ctx, at)
	if err != nil {
		return nil, err
	}

	operatorsByService := make(map[string]map[string]bool)
	for _, edge := range edges {
		set, ok := operatorsByService[edge.ServiceID]
		if !ok {
			set = make(map[string]bool)
			operatorsByService[edge.ServiceID] = set
		}
		set[edge.OperatorID] = true
	}

	services := make([]string, 0, len(operatorsByService))
	for id := range operatorsByService {
		services = append(services, id)
	}
	sort.Strings(services)

	var pairs []OverlapPair
	for i := 0; i < len(services); i++ {
		for j := i + 1; j < len(services); j++ {
			a, b := services[i], services[j]
			shared := 0
			for op := range operatorsByService[a] {
				if operatorsByService[b][op] {
					shared++
				}
			}
			if shared > 0 {
				pairs = append(pairs, OverlapPair{ServiceA: a, ServiceB: b, SharedOperators: shared})
			}
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].SharedOperators != pairs[j].SharedOperators {
			return pairs[i].SharedOperators > pairs[j].SharedOperators
		}
		if pairs[i].ServiceA != pairs[j].ServiceA {
			return pairs[i].ServiceA < pairs[j].ServiceA
		}
		return pairs[i].ServiceB < pairs[j].ServiceB
	})
	return pairs, nil
}
