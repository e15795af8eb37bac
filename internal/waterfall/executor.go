// Package waterfall walks an ordered chain of provider sources for one
// artifact and stops at the first one that returns data.
package waterfall

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/ticker-ingest/internal/model"
)

// Executor runs escalation chains.
type Executor struct {
	now func() time.Time // injectable for testing
}

// NewExecutor creates an executor.
func NewExecutor() *Executor {
	return &Executor{now: time.Now}
}

// WithClock sets the clock used to time attempts.
func (e *Executor) WithClock(now func() time.Time) *Executor {
	e.now = now
	return e
}

// Run calls sources in tier order (stable within a tier) until one returns
// a non-empty table. Errors and empty answers are recorded and the walk
// continues; later sources are never called once one wins. A cancelled
// context stops the walk.
func (e *Executor) Run(ctx context.Context, entity string, artifact model.ArtifactName, sources []Source) Resolution {
	ordered := make([]Source, len(sources))
	copy(ordered, sources)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Tier < ordered[j].Tier })

	res := Resolution{Artifact: artifact}
	log := zap.L().With(zap.String("ticker", entity), zap.String("artifact", string(artifact)))

	for _, src := range ordered {
		if ctx.Err() != nil {
			res.Attempts = append(res.Attempts, Attempt{Label: src.Label, Tier: src.Tier, Err: ctx.Err()})
			break
		}

		start := e.now()
		tbl, err := src.Fetch(ctx)
		att := Attempt{
			Label:    src.Label,
			Tier:     src.Tier,
			Rows:     tbl.Len(),
			Err:      err,
			Duration: e.now().Sub(start),
		}
		if err != nil {
			att.Rows = 0
		}
		res.Attempts = append(res.Attempts, att)

		switch {
		case err != nil:
			log.Warn("waterfall: source failed",
				zap.String("source", src.Label),
				zap.Stringer("tier", src.Tier),
				zap.Error(err),
			)
		case att.Empty():
			log.Info("waterfall: source returned no data",
				zap.String("source", src.Label),
				zap.Stringer("tier", src.Tier),
			)
		default:
			winner := res.Attempts[len(res.Attempts)-1]
			res.Winner = &winner
			res.Table = tbl
			res.URL = src.URL
			log.Info("waterfall: source resolved artifact",
				zap.String("source", src.Label),
				zap.Int("rows", att.Rows),
			)
			return res
		}
	}
	return res
}
