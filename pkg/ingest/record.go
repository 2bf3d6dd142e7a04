// Package ingest turns raw import records into snapshot facts. Per-record
// validation failures skip that record and are collected into a report; only
// a storage failure aborts a batch.
package ingest

import (
	"fmt"
	"time"

	"github.com/restakelabs/restakex/pkg/snapshot"
	"github.com/restakelabs/restakex/pkg/utils"
	"github.com/shopspring/decimal"
)

// Record is one raw ingestion input as produced by the import collaborator:
// a hex address, an entity kind tag, an ISO-8601 timestamp, and attribute
// values as decimal strings.
type Record struct {
	Address    string            `json:"address"`
	Kind       string            `json:"kind"`
	Strategy   string            `json:"strategy,omitempty"`
	Timestamp  string            `json:"timestamp"`
	Attributes map[string]string `json:"attributes"`
}

// ToFact validates and converts the record. The address format is checked
// here, before the store is ever touched.
func (r Record) ToFact() (snapshot.SnapshotFact, error) {
	var fact snapshot.SnapshotFact

	address, err := utils.NormalizeAddress(r.Address)
	if err != nil {
		return fact, &snapshot.ValidationError{Field: "address", Reason: err.Error()}
	}

	kind := snapshot.EntityKind(r.Kind)
	if !kind.Valid() {
		return fact, &snapshot.ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown kind %q", r.Kind)}
	}

	ts, err := parseTimestamp(r.Timestamp)
	if err != nil {
		return fact, &snapshot.ValidationError{Field: "timestamp", Reason: err.Error()}
	}

	attrs := make(map[string]decimal.Decimal, len(r.Attributes))
	for name, raw := range r.Attributes {
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return fact, &snapshot.ValidationError{
				Field:  "attributes." + name,
				Reason: fmt.Sprintf("not a decimal: %q", raw),
			}
		}
		attrs[name] = v
	}

	fact = snapshot.SnapshotFact{
		EntityID:   address,
		EntityKind: kind,
		StrategyID: r.Strategy,
		Timestamp:  ts,
		Attributes: attrs,
	}
	return fact, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("timestamp missing")
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("timestamp %q is not ISO-8601", s)
}
