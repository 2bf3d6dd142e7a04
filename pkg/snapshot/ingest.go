package snapshot

import (
	"context"
	"encoding/json"
	"time"

	"github.com/restakelabs/restakex/pkg/utils"
	"github.com/shopspring/decimal"
)

// integralAttributes must carry whole numbers: they are entity counts, not
// token amounts.
var integralAttributes = map[string]bool{
	AttrNumStakers:    true,
	AttrOperatorCount: true,
	AttrStakerCount:   true,
}

// validateFact checks a fact against the per-kind attribute contract. The
// whole fact is rejected on the first violation; nothing is partially applied.
func validateFact(fact *SnapshotFact) error {
	if !fact.EntityKind.Valid() {
		return &ValidationError{Field: "entity_kind", Reason: "unknown kind " + string(fact.EntityKind)}
	}
	normalized, err := utils.NormalizeAddress(fact.EntityID)
	if err != nil {
		return &ValidationError{Field: "entity_id", Reason: err.Error()}
	}
	fact.EntityID = normalized

	if fact.EntityKind.strategyScoped() {
		strategyID, err := utils.NormalizeAddress(fact.StrategyID)
		if err != nil {
			return &ValidationError{Field: "strategy_id", Reason: err.Error()}
		}
		fact.StrategyID = strategyID
	} else if fact.StrategyID != "" {
		return &ValidationError{Field: "strategy_id", Reason: "not allowed for kind " + string(fact.EntityKind)}
	}

	if fact.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Reason: "missing"}
	}

	for _, name := range requiredAttributes[fact.EntityKind] {
		v, ok := fact.Attributes[name]
		if !ok {
			return &ValidationError{Field: "attributes." + name, Reason: "required attribute missing"}
		}
		if integralAttributes[name] && !v.Equal(v.Truncate(0)) {
			return &ValidationError{Field: "attributes." + name, Reason: "must be an integer count"}
		}
	}
	return nil
}

// Ingest upserts a fact by (entity_id, entity_kind, strategy_id, timestamp).
// The identity row and the fact are written in one transaction so a resolve
// never observes an entity without its fact or vice versa.
func (s *Store) Ingest(ctx context.Context, fact SnapshotFact) error {
	if err := validateFact(&fact); err != nil {
		return err
	}

	attrs, err := encodeAttributes(fact.Attributes)
	if err != nil {
		return &ValidationError{Field: "attributes", Reason: err.Error()}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StorageError{Op: "ingest begin", Err: err}
	}

	now := time.Now().UTC().Unix()
	switch fact.EntityKind {
	case KindOperator, KindOperatorStrategy:
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO operators (address, updated_at) VALUES (?, ?) ON CONFLICT (address) DO NOTHING`,
			fact.EntityID, now); err != nil {
			_ = tx.Rollback()
			return &StorageError{Op: "ingest identity", Err: err}
		}
	case KindAVS, KindAVSStrategy:
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO avs (address, updated_at) VALUES (?, ?) ON CONFLICT (address) DO NOTHING`,
			fact.EntityID, now); err != nil {
			_ = tx.Rollback()
			return &StorageError{Op: "ingest identity", Err: err}
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO snapshot_facts (entity_id, entity_kind, strategy_id, ts, attributes)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (entity_id, entity_kind, strategy_id, ts)
		DO UPDATE SET attributes = excluded.attributes`,
		fact.EntityID, string(fact.EntityKind), fact.StrategyID, fact.Timestamp.UTC().Unix(), attrs,
	); err != nil {
		_ = tx.Rollback()
		return &StorageError{Op: "ingest fact", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "ingest commit", Err: err}
	}
	return nil
}

// UpsertStrategy writes or refreshes one strategy reference row.
func (s *Store) UpsertStrategy(ctx context.Context, strategy Strategy) error {
	addr, err := utils.NormalizeAddress(strategy.Address)
	if err != nil {
		return &ValidationError{Field: "address", Reason: err.Error()}
	}
	if strategy.Symbol == "" {
		return &ValidationError{Field: "symbol", Reason: "missing"}
	}
	if strategy.Decimals <= 0 {
		strategy.Decimals = 18
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO strategies (address, symbol, name, underlying_token, coingecko_id, decimals)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (address) DO UPDATE SET
			symbol = excluded.symbol,
			name = excluded.name,
			underlying_token = excluded.underlying_token,
			coingecko_id = excluded.coingecko_id,
			decimals = excluded.decimals`,
		addr, strategy.Symbol, strategy.Name,
		strategy.UnderlyingToken, strategy.CoingeckoID, strategy.Decimals,
	); err != nil {
		return &StorageError{Op: "upsert strategy", Err: err}
	}
	return nil
}

// UpsertRegistration writes an operator-to-service edge. Re-upserting toggles
// the active flag in place; the original registration time is kept.
func (s *Store) UpsertRegistration(ctx context.Context, edge RegistrationEdge) error {
	operatorID, err := utils.NormalizeAddress(edge.OperatorID)
	if err != nil {
		return &ValidationError{Field: "operator_id", Reason: err.Error()}
	}
	serviceID, err := utils.NormalizeAddress(edge.ServiceID)
	if err != nil {
		return &ValidationError{Field: "service_id", Reason: err.Error()}
	}
	if edge.RegisteredAt.IsZero() {
		return &ValidationError{Field: "registered_at", Reason: "missing"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO registrations (operator_id, service_id, registered_at, active)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (operator_id, service_id) DO UPDATE SET active = excluded.active`,
		operatorID, serviceID, edge.RegisteredAt.UTC().Unix(), boolToInt(edge.Active),
	); err != nil {
		return &StorageError{Op: "upsert registration", Err: err}
	}
	return nil
}

// UpsertEntityInfo writes descriptive metadata for an operator or AVS.
func (s *Store) UpsertEntityInfo(ctx context.Context, kind EntityKind, info EntityInfo) error {
	var table string
	switch kind {
	case KindOperator:
		table = "operators"
	case KindAVS:
		table = "avs"
	default:
		return &ValidationError{Field: "entity_kind", Reason: "metadata only applies to operator and avs"}
	}
	addr, err := utils.NormalizeAddress(info.Address)
	if err != nil {
		return &ValidationError{Field: "address", Reason: err.Error()}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO `+table+` (address, name, website, description, twitter, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (address) DO UPDATE SET
			name = excluded.name,
			website = excluded.website,
			description = excluded.description,
			twitter = excluded.twitter,
			updated_at = excluded.updated_at`,
		addr, info.Name, info.Website, info.Description, info.Twitter, time.Now().UTC().Unix(),
	); err != nil {
		return &StorageError{Op: "upsert " + table + " info", Err: err}
	}
	return nil
}

func encodeAttributes(attrs map[string]decimal.Decimal) (string, error) {
	flat := make(map[string]string, len(attrs))
	for name, v := range attrs {
		flat[name] = v.String()
	}
	raw, err := json.Marshal(flat)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeAttributes(raw string) (map[string]decimal.Decimal, error) {
	var flat map[string]string
	if err := json.Unmarshal([]byte(raw), &flat); err != nil {
		return nil, err
	}
	attrs := make(map[string]decimal.Decimal, len(flat))
	for name, v := range flat {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, err
		}
		attrs[name] = d
	}
	return attrs, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
