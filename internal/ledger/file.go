package ledger

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ticker-ingest/internal/model"
)

// ErrNotFound is returned by Load when an entity directory has no ledger.
var ErrNotFound = eris.New("ledger: not found")

// Path returns the ledger file path inside an entity directory.
func Path(dir string) string {
	return filepath.Join(dir, model.LedgerFile)
}

// Exists reports whether dir holds a ledger file.
func Exists(dir string) bool {
	info, err := os.Stat(Path(dir))
	return err == nil && !info.IsDir()
}

// Load reads the ledger stored in dir.
func Load(dir string) (*Ledger, error) {
	data, err := os.ReadFile(Path(dir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, eris.Wrapf(ErrNotFound, "ledger: load %s", dir)
		}
		return nil, eris.Wrapf(err, "ledger: read %s", dir)
	}
	var l Ledger
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, eris.Wrapf(err, "ledger: parse %s", Path(dir))
	}
	return &l, nil
}

// Save writes l to dir, replacing the previous file atomically.
func Save(dir string, l *Ledger) error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return eris.Wrap(err, "ledger: encode")
	}
	tmp, err := os.CreateTemp(dir, ".metadata-*.json")
	if err != nil {
		return eris.Wrapf(err, "ledger: create temp in %s", dir)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()        //nolint:errcheck
		os.Remove(tmpName) //nolint:errcheck
		return eris.Wrap(err, "ledger: write temp")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck
		return eris.Wrap(err, "ledger: close temp")
	}
	if err := os.Rename(tmpName, Path(dir)); err != nil {
		os.Remove(tmpName) //nolint:errcheck
		return eris.Wrapf(err, "ledger: replace %s", Path(dir))
	}
	return nil
}
