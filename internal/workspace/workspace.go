// Package workspace lays out the output root: one directory per entity
// holding its artifact files and provenance ledger.
package workspace

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ticker-ingest/internal/ledger"
	"github.com/sells-group/ticker-ingest/internal/model"
)

// Workspace is an output root directory.
type Workspace struct {
	root      string
	writeJSON bool
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithJSONSidecars also writes a records-oriented JSON file next to each CSV.
func WithJSONSidecars(enabled bool) Option {
	return func(w *Workspace) {
		w.writeJSON = enabled
	}
}

// New returns a workspace rooted at root. The directory is created lazily.
func New(root string, opts ...Option) *Workspace {
	w := &Workspace{root: root}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WithJSON returns a copy of w that also writes JSON sidecars when enabled.
func (w *Workspace) WithJSON(enabled bool) *Workspace {
	c := *w
	c.writeJSON = c.writeJSON || enabled
	return &c
}

// Root returns the output root directory.
func (w *Workspace) Root() string {
	return w.root
}

// Dir returns the directory of entity without creating or validating it.
func (w *Workspace) Dir(entity string) string {
	return filepath.Join(w.root, model.NormalizeEntity(entity))
}

// checkedDir returns the directory of entity, rejecting keys that would
// resolve outside the root.
func (w *Workspace) checkedDir(entity string) (string, error) {
	key, err := model.ValidateEntity(entity)
	if err != nil {
		return "", eris.Wrap(err, "workspace")
	}
	return filepath.Join(w.root, key), nil
}

// EntityDir returns the directory of entity, creating it if needed.
func (w *Workspace) EntityDir(entity string) (string, error) {
	dir, err := w.checkedDir(entity)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "workspace: create %s", dir)
	}
	return dir, nil
}

// Path returns the file path of an artifact.
func (w *Workspace) Path(entity string, name model.ArtifactName) string {
	return filepath.Join(w.Dir(entity), string(name))
}

// Entities lists the entities under the root that have a ledger, sorted.
// Directories whose name is not a canonical entity key are ignored.
func (w *Workspace) Entities() ([]string, error) {
	entries, err := os.ReadDir(w.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "workspace: list %s", w.root)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if key, err := model.ValidateEntity(e.Name()); err != nil || key != e.Name() {
			continue
		}
		if ledger.Exists(filepath.Join(w.root, e.Name())) {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// LoadLedger reads the ledger of entity.
func (w *Workspace) LoadLedger(entity string) (*ledger.Ledger, error) {
	dir, err := w.checkedDir(entity)
	if err != nil {
		return nil, err
	}
	return ledger.Load(dir)
}

// SaveLedger writes the ledger of entity.
func (w *Workspace) SaveLedger(entity string, l *ledger.Ledger) error {
	dir, err := w.EntityDir(entity)
	if err != nil {
		return err
	}
	return ledger.Save(dir, l)
}

// WriteTable writes t as CSV to the artifact file, overwriting it.
func (w *Workspace) WriteTable(entity string, name model.ArtifactName, t model.Table) error {
	if _, err := w.EntityDir(entity); err != nil {
		return err
	}
	path := w.Path(entity, name)
	if err := WriteCSV(path, t); err != nil {
		return err
	}
	if w.writeJSON {
		return writeJSONRecords(path, t)
	}
	return nil
}

// WritePlaceholder writes the empty-schema table for an artifact so readers
// never find the file missing.
func (w *Workspace) WritePlaceholder(entity string, name model.ArtifactName) error {
	return w.WriteTable(entity, name, model.PlaceholderSchema(name))
}

// ReadTable reads an artifact CSV.
func (w *Workspace) ReadTable(entity string, name model.ArtifactName) (model.Table, error) {
	dir, err := w.checkedDir(entity)
	if err != nil {
		return model.Table{}, err
	}
	return ReadCSV(filepath.Join(dir, string(name)))
}

// WriteFile writes raw bytes to an artifact file.
func (w *Workspace) WriteFile(entity string, name model.ArtifactName, data []byte) error {
	if _, err := w.EntityDir(entity); err != nil {
		return err
	}
	if err := os.WriteFile(w.Path(entity, name), data, 0o644); err != nil {
		return eris.Wrapf(err, "workspace: write %s", name)
	}
	return nil
}

// WriteCSV writes t to path. A table without columns produces an empty file.
func WriteCSV(path string, t model.Table) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "workspace: create %s", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = eris.Wrapf(cerr, "workspace: close %s", path)
		}
	}()

	cw := csv.NewWriter(f)
	if len(t.Columns) > 0 {
		if err := cw.Write(t.Columns); err != nil {
			return eris.Wrap(err, "workspace: write header")
		}
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return eris.Wrapf(err, "workspace: write rows %s", path)
	}
	return nil
}

// ReadCSV reads a CSV file whose first row is the header.
func ReadCSV(path string) (model.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Table{}, eris.Wrapf(err, "workspace: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return model.Table{}, eris.Wrapf(err, "workspace: parse %s", path)
	}
	if len(records) == 0 {
		return model.Table{}, nil
	}
	return model.Table{Columns: records[0], Rows: records[1:]}, nil
}

func writeJSONRecords(csvPath string, t model.Table) error {
	records := make([]map[string]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(map[string]string, len(t.Columns))
		for i, c := range t.Columns {
			if i < len(row) {
				rec[c] = row[i]
			}
		}
		records = append(records, rec)
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return eris.Wrap(err, "workspace: encode json sidecar")
	}
	jsonPath := csvPath[:len(csvPath)-len(filepath.Ext(csvPath))] + ".json"
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return eris.Wrapf(err, "workspace: write %s", jsonPath)
	}
	return nil
}
