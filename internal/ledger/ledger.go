package ledger

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ticker-ingest/internal/model"
)

// Ledger maps artifact names to provenance records for one entity.
type Ledger struct {
	Ticker      string
	GeneratedOn time.Time
	Files       map[model.ArtifactName]Record

	rawGeneratedOn string
}

// New creates an empty ledger for entity.
func New(entity string, at time.Time) *Ledger {
	return &Ledger{
		Ticker:      model.NormalizeEntity(entity),
		GeneratedOn: at.UTC(),
		Files:       make(map[model.ArtifactName]Record),
	}
}

// Set stores the record for name, replacing any previous one.
func (l *Ledger) Set(name model.ArtifactName, r Record) {
	if l.Files == nil {
		l.Files = make(map[model.ArtifactName]Record)
	}
	l.Files[name] = r
}

// Get returns the record for name.
func (l *Ledger) Get(name model.ArtifactName) (Record, bool) {
	r, ok := l.Files[name]
	return r, ok
}

// Names returns every artifact name in the ledger, sorted.
func (l *Ledger) Names() []model.ArtifactName {
	names := make([]model.ArtifactName, 0, len(l.Files))
	for n := range l.Files {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// ArtifactNames returns the names that belong to the repairable artifact set.
func (l *Ledger) ArtifactNames() []model.ArtifactName {
	var out []model.ArtifactName
	for _, n := range l.Names() {
		if model.Repairable(n) {
			out = append(out, n)
		}
	}
	return out
}

// Unresolved returns the sorted names of failed or confirmed-empty records.
func (l *Ledger) Unresolved() []model.ArtifactName {
	var out []model.ArtifactName
	for _, n := range l.Names() {
		if l.Files[n].Unresolved() {
			out = append(out, n)
		}
	}
	return out
}

// HasUnresolved reports whether any record still lacks provider data.
func (l *Ledger) HasUnresolved() bool {
	for _, r := range l.Files {
		if r.Unresolved() {
			return true
		}
	}
	return false
}

// Merge copies every record of other into l; records from other win.
func (l *Ledger) Merge(other *Ledger) {
	if other == nil {
		return
	}
	for n, r := range other.Files {
		l.Set(n, r)
	}
}

// Clone returns a deep copy of l.
func (l *Ledger) Clone() *Ledger {
	c := *l
	c.Files = make(map[model.ArtifactName]Record, len(l.Files))
	for n, r := range l.Files {
		c.Files[n] = r
	}
	return &c
}

// Equal reports whether two ledgers hold the same records.
func (l *Ledger) Equal(other *Ledger) bool {
	if other == nil || l.Ticker != other.Ticker || len(l.Files) != len(other.Files) {
		return false
	}
	for n, r := range l.Files {
		o, ok := other.Files[n]
		if !ok || !recordsEqual(r, o) {
			return false
		}
	}
	return true
}

func recordsEqual(a, b Record) bool {
	return a.Source == b.Source &&
		a.SourceURL == b.SourceURL &&
		a.Status == b.Status &&
		a.FetchedAtText() == b.FetchedAtText()
}

type recordJSON struct {
	Source    string `json:"source"`
	SourceURL string `json:"source_url"`
	FetchedAt string `json:"fetched_at"`
	Status    string `json:"status,omitempty"`
}

// legacyRecordJSON accepts the created_at key older report entries used.
type legacyRecordJSON struct {
	recordJSON
	CreatedAt string `json:"created_at"`
}

type ledgerJSON struct {
	Ticker      string                     `json:"ticker"`
	GeneratedOn string                     `json:"generated_on"`
	Files       map[string]json.RawMessage `json:"files"`
}

// MarshalJSON writes the ledger in the metadata.json shape.
func (l *Ledger) MarshalJSON() ([]byte, error) {
	files := make(map[string]recordJSON, len(l.Files))
	for n, r := range l.Files {
		files[string(n)] = recordJSON{
			Source:    r.Source,
			SourceURL: r.SourceURL,
			FetchedAt: r.FetchedAtText(),
			Status:    r.Status.String(),
		}
	}
	generated := l.rawGeneratedOn
	if generated == "" {
		generated = Timestamp(l.GeneratedOn)
	}
	return json.Marshal(struct {
		Ticker      string                `json:"ticker"`
		GeneratedOn string                `json:"generated_on"`
		Files       map[string]recordJSON `json:"files"`
	}{l.Ticker, generated, files})
}

// UnmarshalJSON reads a metadata.json document, classifying records written
// without a status field from their source text.
func (l *Ledger) UnmarshalJSON(data []byte) error {
	var doc ledgerJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return eris.Wrap(err, "ledger: decode")
	}
	l.Ticker = doc.Ticker
	l.rawGeneratedOn = doc.GeneratedOn
	l.GeneratedOn = parseTimestamp(doc.GeneratedOn)
	l.Files = make(map[model.ArtifactName]Record, len(doc.Files))

	for name, raw := range doc.Files {
		var rj legacyRecordJSON
		if err := json.Unmarshal(raw, &rj); err != nil {
			return eris.Wrapf(err, "ledger: decode record %s", name)
		}
		ts := rj.FetchedAt
		if ts == "" {
			ts = rj.CreatedAt
		}
		r := Record{
			Source:       rj.Source,
			SourceURL:    rj.SourceURL,
			FetchedAt:    parseTimestamp(ts),
			rawFetchedAt: ts,
		}
		legacy, reason := classifyLegacy(rj.Source)
		if st, ok := parseStatus(rj.Status); ok {
			r.Status = st
		} else {
			r.Status = legacy
		}
		if r.Status == StatusFailed {
			r.Reason = reason
		}
		l.Files[model.ArtifactName(name)] = r
	}
	return nil
}
