package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/restakelabs/restakex/pkg/utils"
)

// Resolve returns the fact for one entity with the maximum timestamp at or
// before at. Returns nil when the entity has no fact in that window.
// Strategy-scoped kinds resolve per (entity, strategy); use ResolveAll for
// those joins.
func (s *Store) Resolve(ctx context.Context, entityID string, kind EntityKind, at time.Time) (*SnapshotFact, error) {
	if !kind.Valid() {
		return nil, &ValidationError{Field: "entity_kind", Reason: "unknown kind " + string(kind)}
	}
	if kind.strategyScoped() {
		return nil, &ValidationError{Field: "entity_kind", Reason: "strategy-scoped kinds resolve via ResolveAll"}
	}
	entityID, err := utils.NormalizeAddress(entityID)
	if err != nil {
		return nil, &ValidationError{Field: "entity_id", Reason: err.Error()}
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT entity_id, strategy_id, ts, attributes
		FROM snapshot_facts
		WHERE entity_id = ? AND entity_kind = ? AND ts <= ?
		ORDER BY ts DESC
		LIMIT 1`,
		entityID, string(kind), at.UTC().Unix())

	fact, err := scanFact(row, kind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "resolve", Err: err}
	}
	return fact, nil
}

// ResolveAll applies per-entity as-of resolution across every known entity of
// the kind: the latest fact per (entity, strategy) at or before the reference
// time. Entities with no fact in that window are excluded; an empty store
// yields an empty set, not an error.
func (s *Store) ResolveAll(ctx context.Context, kind EntityKind, at time.Time) ([]SnapshotFact, error) {
	if !kind.Valid() {
		return nil, &ValidationError{Field: "entity_kind", Reason: "unknown kind " + string(kind)}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT f.entity_id, f.strategy_id, f.ts, f.attributes
		FROM snapshot_facts f
		JOIN (
			SELECT entity_id, strategy_id, MAX(ts) AS max_ts
			FROM snapshot_facts
			WHERE entity_kind = ? AND ts <= ?
			GROUP BY entity_id, strategy_id
		) m ON f.entity_id = m.entity_id AND f.strategy_id = m.strategy_id AND f.ts = m.max_ts
		WHERE f.entity_kind = ?
		ORDER BY f.entity_id, f.strategy_id`,
		string(kind), at.UTC().Unix(), string(kind))
	if err != nil {
		return nil, &StorageError{Op: "resolve all", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var facts []SnapshotFact
	for rows.Next() {
		fact, err := scanFact(rows, kind)
		if err != nil {
			return nil, &StorageError{Op: "resolve all scan", Err: err}
		}
		facts = append(facts, *fact)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "resolve all rows", Err: err}
	}
	return facts, nil
}

// ActiveRegistrations returns the active operator-to-service edges registered
// at or before at.
func (s *Store) ActiveRegistrations(ctx context.Context, at time.Time) ([]RegistrationEdge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT operator_id, service_id, registered_at, active
		FROM registrations
		WHERE active = 1 AND registered_at <= ?
		ORDER BY operator_id, service_id`,
		at.UTC().Unix())
	if err != nil {
		return nil, &StorageError{Op: "active registrations", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var edges []RegistrationEdge
	for rows.Next() {
		var edge RegistrationEdge
		var registeredAt int64
		var active int
		if err := rows.Scan(&edge.OperatorID, &edge.ServiceID, &registeredAt, &active); err != nil {
			return nil, &StorageError{Op: "active registrations scan", Err: err}
		}
		edge.RegisteredAt = time.Unix(registeredAt, 0).UTC()
		edge.Active = active != 0
		edges = append(edges, edge)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "active registrations rows", Err: err}
	}
	return edges, nil
}

// Strategies returns the strategy reference set keyed by address.
func (s *Store) Strategies(ctx context.Context) (map[string]Strategy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT address, symbol, name, underlying_token, coingecko_id, decimals
		FROM strategies ORDER BY symbol`)
	if err != nil {
		return nil, &StorageError{Op: "strategies", Err: err}
	}
	defer func() { _ = rows.Close() }()

	strategies := make(map[string]Strategy)
	for rows.Next() {
		var st Strategy
		if err := rows.Scan(&st.Address, &st.Symbol, &st.Name, &st.UnderlyingToken, &st.CoingeckoID, &st.Decimals); err != nil {
			return nil, &StorageError{Op: "strategies scan", Err: err}
		}
		strategies[st.Address] = st
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "strategies rows", Err: err}
	}
	return strategies, nil
}

// EntityInfo returns descriptive metadata for one operator or AVS, or nil
// when the identity is unknown.
func (s *Store) EntityInfo(ctx context.Context, kind EntityKind, address string) (*EntityInfo, error) {
	table, err := infoTable(kind)
	if err != nil {
		return nil, err
	}
	address, addrErr := utils.NormalizeAddress(address)
	if addrErr != nil {
		return nil, &ValidationError{Field: "address", Reason: addrErr.Error()}
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT address, name, website, description, twitter, updated_at
		FROM `+table+` WHERE address = ?`, address)

	info, scanErr := scanInfo(row)
	if errors.Is(scanErr, sql.ErrNoRows) {
		return nil, nil
	}
	if scanErr != nil {
		return nil, &StorageError{Op: "entity info", Err: scanErr}
	}
	return info, nil
}

// SearchEntities matches operators or AVS by name or description, case
// insensitively.
func (s *Store) SearchEntities(ctx context.Context, kind EntityKind, query string, limit int) ([]EntityInfo, error) {
	table, err := infoTable(kind)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	pattern := "%" + query + "%"

	rows, queryErr := s.db.QueryContext(ctx, `
		SELECT address, name, website, description, twitter, updated_at
		FROM `+table+`
		WHERE name LIKE ? COLLATE NOCASE OR description LIKE ? COLLATE NOCASE
		ORDER BY name, address
		LIMIT ?`, pattern, pattern, limit)
	if queryErr != nil {
		return nil, &StorageError{Op: "search " + table, Err: queryErr}
	}
	defer func() { _ = rows.Close() }()

	var out []EntityInfo
	for rows.Next() {
		info, scanErr := scanInfo(rows)
		if scanErr != nil {
			return nil, &StorageError{Op: "search scan", Err: scanErr}
		}
		out = append(out, *info)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "search rows", Err: err}
	}
	return out, nil
}

func infoTable(kind EntityKind) (string, error) {
	switch kind {
	case KindOperator:
		return "operators", nil
	case KindAVS:
		return "avs", nil
	}
	return "", &ValidationError{Field: "entity_kind", Reason: "metadata only applies to operator and avs"}
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanFact(sc scanner, kind EntityKind) (*SnapshotFact, error) {
	var fact SnapshotFact
	var ts int64
	var raw string
	if err := sc.Scan(&fact.EntityID, &fact.StrategyID, &ts, &raw); err != nil {
		return nil, err
	}
	attrs, err := decodeAttributes(raw)
	if err != nil {
		return nil, err
	}
	fact.EntityKind = kind
	fact.Timestamp = time.Unix(ts, 0).UTC()
	fact.Attributes = attrs
	return &fact, nil
}

func scanInfo(sc scanner) (*EntityInfo, error) {
	var info EntityInfo
	var updatedAt int64
	if err := sc.Scan(&info.Address, &info.Name, &info.Website, &info.Description, &info.Twitter, &updatedAt); err != nil {
		return nil, err
	}
	info.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &info, nil
}
