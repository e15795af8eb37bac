// Package provider defines the data provider tiers used by the ingest
// pipeline and the helpers adapters share to turn provider payloads into
// artifact tables.
package provider

import (
	"context"

	"github.com/sells-group/ticker-ingest/internal/model"
)

// Primary is the acquisition-stage provider.
type Primary interface {
	Name() string
	Profile(ctx context.Context, entity string) (model.Table, error)
	PriceHistory(ctx context.Context, entity, period string) (model.Table, error)
	Statement(ctx context.Context, entity string, kind model.StatementKind, period model.Period) (model.Table, error)
	// Label is the provenance source recorded for artifact.
	Label(artifact model.ArtifactName) string
	// ReferenceURL is the human-facing page recorded in the ledger.
	ReferenceURL(entity string, artifact model.ArtifactName) string
}

// Secondary is the first repair-stage provider.
type Secondary interface {
	Name() string
	// Info returns the profile record of entity. An unknown entity yields an
	// empty Info and no error.
	Info(ctx context.Context, entity string) (Info, error)
	History(ctx context.Context, entity, period string) (model.Table, error)
	// Download is the bulk-download variant of History.
	Download(ctx context.Context, entity, period string) (model.Table, error)
	// StatementAttr fetches a statement by its attribute name, e.g.
	// "quarterly_balance_sheet".
	StatementAttr(ctx context.Context, entity, attr string) (model.Table, error)
	ReferenceURL(entity string, artifact model.ArtifactName) string
}

// Tertiary is the last per-artifact repair provider.
type Tertiary interface {
	Name() string
	Profile(ctx context.Context, entity string) (model.Table, error)
	PriceHistory(ctx context.Context, entity string) (model.Table, error)
	Statement(ctx context.Context, entity, endpoint string, period model.Period) (model.Table, error)
	ReferenceURL(entity string, artifact model.ArtifactName) string
}

// LastResort refetches everything for an entity in one call.
type LastResort interface {
	Name() string
	// FullFetch writes whatever artifacts it can obtain into dir. It fails
	// only when dir itself cannot be written.
	FullFetch(ctx context.Context, entity, dir string) error
}

// Info is a flat profile record keyed by provider field name.
type Info map[string]string

// Empty reports whether the record carries no company data.
func (i Info) Empty() bool {
	return len(i) == 0
}

// ProfileFromInfo maps a profile record onto the profile.csv schema. Fields
// the record does not carry are left blank.
func ProfileFromInfo(entity string, info Info) model.Table {
	price := info["currentPrice"]
	if price == "" {
		price = info["regularMarketPrice"]
	}
	values := map[string]string{
		"symbol":   model.NormalizeEntity(entity),
		"industry": info["industry"],
		"website":  info["website"],
		"sector":   info["sector"],
		"mktCap":   info["marketCap"],
		"price":    price,
		"beta":     info["beta"],
		"volAvg":   info["averageVolume"],
		"lastDiv":  info["dividendRate"],
	}
	row := make([]string, len(model.ProfileColumns))
	for i, c := range model.ProfileColumns {
		row[i] = values[c]
	}
	return model.Table{
		Columns: append([]string(nil), model.ProfileColumns...),
		Rows:    [][]string{row},
	}
}
