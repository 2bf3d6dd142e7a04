package snapshot

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntityKind tags which table of facts a snapshot belongs to.
type EntityKind string

const (
	KindOperator         EntityKind = "operator"
	KindAVS              EntityKind = "avs"
	KindOperatorStrategy EntityKind = "operator_strategy"
	KindAVSStrategy      EntityKind = "avs_strategy"
)

// Valid reports whether the kind is one of the known fact kinds.
func (k EntityKind) Valid() bool {
	switch k {
	case KindOperator, KindAVS, KindOperatorStrategy, KindAVSStrategy:
		return true
	}
	return false
}

// strategyScoped reports whether facts of this kind carry a strategy identity.
func (k EntityKind) strategyScoped() bool {
	return k == KindOperatorStrategy || k == KindAVSStrategy
}

// Attribute names. Stake/share counts and USD valuations are arbitrary-precision
// decimals; staker/operator counts are integral.
const (
	AttrNumStakers    = "num_stakers"
	AttrETHTVL        = "eth_tvl"
	AttrEigenTVL      = "eigen_tvl"
	AttrTotalTVLUSD   = "total_tvl_usd"
	AttrOperatorCount = "operator_count"
	AttrStakerCount   = "staker_count"
	AttrShares        = "shares"
	AttrTokens        = "tokens"
	AttrUSDValue      = "usd_value"
)

// requiredAttributes lists the attributes a fact of each kind must carry.
// A fact missing any of these is rejected whole.
var requiredAttributes = map[EntityKind][]string{
	KindOperator:         {AttrNumStakers, AttrETHTVL, AttrTotalTVLUSD},
	KindAVS:              {AttrOperatorCount, AttrStakerCount, AttrETHTVL, AttrTotalTVLUSD},
	KindOperatorStrategy: {AttrShares, AttrTokens, AttrUSDValue},
	KindAVSStrategy:      {AttrShares},
}

// SnapshotFact is one immutable point-in-time observation of an entity.
// (entity_id, entity_kind, strategy_id, timestamp) is unique; re-ingesting the
// same key overwrites in place.
type SnapshotFact struct {
	EntityID   string                     `json:"entity_id"`
	EntityKind EntityKind                 `json:"entity_kind"`
	StrategyID string                     `json:"strategy_id,omitempty"`
	Timestamp  time.Time                  `json:"timestamp"`
	Attributes map[string]decimal.Decimal `json:"attributes"`
}

// Attr returns the named attribute, or zero when absent. Absent attributes
// contribute zero to aggregate sums.
func (f *SnapshotFact) Attr(name string) decimal.Decimal {
	if v, ok := f.Attributes[name]; ok {
		return v
	}
	return decimal.Decimal{}
}

// AttrInt returns an integral attribute as int64 (staker counts, operator counts).
func (f *SnapshotFact) AttrInt(name string) int64 {
	return f.Attr(name).IntPart()
}

// RegistrationEdge links an operator to a service (AVS). The active flag is
// toggled without deleting history.
type RegistrationEdge struct {
	OperatorID   string    `json:"operator_id"`
	ServiceID    string    `json:"service_id"`
	RegisteredAt time.Time `json:"registered_at"`
	Active       bool      `json:"active"`
}

// Strategy is token metadata for a restaking strategy: underlying token,
// decimals, and the price-lookup key used against the price API.
type Strategy struct {
	Address         string `json:"address"`
	Symbol          string `json:"symbol"`
	Name            string `json:"name"`
	UnderlyingToken string `json:"underlying_token"`
	CoingeckoID     string `json:"coingecko_id"`
	Decimals        int    `json:"decimals"`
}

// EntityInfo is descriptive metadata for an operator or AVS identity.
type EntityInfo struct {
	Address     string    `json:"address"`
	Name        string    `json:"name,omitempty"`
	Website     string    `json:"website,omitempty"`
	Description string    `json:"description,omitempty"`
	Twitter     string    `json:"twitter,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}
