package waterfall

import (
	"context"
	"time"

	"github.com/sells-group/ticker-ingest/internal/model"
)

// Tier orders provider escalation. Lower tiers are tried first.
type Tier int

const (
	TierPrimary    Tier = 1
	TierSecondary  Tier = 2
	TierTertiary   Tier = 3
	TierLastResort Tier = 4
)

func (t Tier) String() string {
	switch t {
	case TierPrimary:
		return "primary"
	case TierSecondary:
		return "secondary"
	case TierTertiary:
		return "tertiary"
	case TierLastResort:
		return "last-resort"
	default:
		return "unknown"
	}
}

// FetchFunc produces one artifact table.
type FetchFunc func(ctx context.Context) (model.Table, error)

// Source is one step of an escalation chain.
type Source struct {
	// Label is the provenance source string recorded when this step wins.
	Label string
	// URL is the reference URL recorded with the result.
	URL   string
	Tier  Tier
	Fetch FetchFunc
}

// Attempt is the outcome of calling one source.
type Attempt struct {
	Label    string
	Tier     Tier
	Rows     int
	Err      error
	Duration time.Duration
}

// Empty reports whether the source answered without rows.
func (a Attempt) Empty() bool {
	return a.Err == nil && a.Rows == 0
}

// Resolution is the outcome of walking a chain for one artifact.
type Resolution struct {
	Artifact model.ArtifactName
	// Winner is the first attempt that produced rows, nil when none did.
	Winner   *Attempt
	Table    model.Table
	URL      string
	Attempts []Attempt
}

// Resolved reports whether any source produced rows.
func (r Resolution) Resolved() bool {
	return r.Winner != nil
}

// LastError returns the error of the most recent failed attempt.
func (r Resolution) LastError() error {
	for i := len(r.Attempts) - 1; i >= 0; i-- {
		if r.Attempts[i].Err != nil {
			return r.Attempts[i].Err
		}
	}
	return nil
}
