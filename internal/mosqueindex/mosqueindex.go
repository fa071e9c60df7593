// Package mosqueindex builds the consolidated mosque index from a directory of
// per-mosque timing records.
package mosqueindex

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/lutonsalah/jummah/internal/mosques"
	"github.com/lutonsalah/jummah/schema"
	"github.com/natefinch/atomic"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// ErrStorage is returned when the record collection cannot be enumerated.
var ErrStorage = errors.New("mosque records unavailable")

// RecordExt is the file extension of stored mosque records.
const RecordExt = ".json"

// Source is a decoded mosque record.
type Source struct {
	Slug     string
	DataFile string
	Record   *schema.MosqueRecord
}

// Skipped is a record which could not be read or decoded.
type Skipped struct {
	Slug string
	File string
	Err  error
}

func (s Skipped) Error() string {
	return fmt.Sprintf("read %s: %v", s.File, s.Err)
}

func (s Skipped) Unwrap() error {
	return s.Err
}

// Collect reads the mosque records at the root of fsys. Records which cannot
// be read or decoded are returned separately. The data file of each source is
// prefix joined with its file name. Files named in exclude are not records.
//
// An error is only returned if the root cannot be listed.
func Collect(fsys fs.FS, prefix string, exclude ...string) ([]Source, []Skipped, error) {
	ds, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	var (
		sources []Source
		skipped []Skipped
	)
	for _, d := range ds {
		name := d.Name()
		if d.IsDir() || !strings.HasSuffix(name, RecordExt) || slices.Contains(exclude, name) {
			continue
		}
		var (
			slug = strings.TrimSuffix(name, RecordExt)
			file = path.Join(prefix, name)
		)
		buf, err := fs.ReadFile(fsys, name)
		if err != nil {
			skipped = append(skipped, Skipped{slug, file, err})
			continue
		}
		rec, err := schema.DecodeRecord(buf)
		if err != nil {
			skipped = append(skipped, Skipped{slug, file, err})
			continue
		}
		sources = append(sources, Source{
			Slug:     slug,
			DataFile: file,
			Record:   rec,
		})
	}
	return sources, skipped, nil
}

// Build creates an index from the sources, sorted by name.
//
// Names are compared using English collation. Equal names are ordered by slug.
func Build(sources []Source, now time.Time) *schema.MosqueIndex {
	idx := &schema.MosqueIndex{
		Mosques:     make([]schema.MosqueIndexEntry, 0, len(sources)),
		LastUpdated: schema.FormatTimestamp(now),
	}
	for _, src := range sources {
		idx.Mosques = append(idx.Mosques, schema.MosqueIndexEntry{
			Name:           src.Record.MosqueName,
			Slug:           src.Slug,
			DataFile:       src.DataFile,
			HasData:        len(src.Record.Timings) > 0,
			JummahSchedule: schema.JummahSchedule(src.Record.Timings),
		})
	}
	col := collate.New(language.English)
	slices.SortStableFunc(idx.Mosques, func(a, b schema.MosqueIndexEntry) int {
		return cmp.Or(
			col.CompareString(a.Name, b.Name),
			strings.Compare(a.Slug, b.Slug),
		)
	})
	return idx
}

// Write replaces the index at name.
func Write(name string, idx *schema.MosqueIndex) error {
	buf, err := schema.EncodeIndex(idx)
	if err != nil {
		return fmt.Errorf("encode mosque index: %w", err)
	}
	// the temp file must be created beside the index, not in the default temp dir
	if abs, err := filepath.Abs(name); err == nil {
		name = abs
	}
	if err := atomic.WriteFile(name, bytes.NewReader(buf)); err != nil {
		return fmt.Errorf("write mosque index: %w", err)
	}
	return nil
}

// Report describes a generated index.
type Report struct {
	// Path is the path the index was written to.
	Path string

	// Mosques is the number of mosques in the index.
	Mosques int

	// Skipped contains the records which could not be read.
	Skipped []Skipped

	// Missing contains configured mosques with no record.
	Missing []string
}

// Generator generates the mosque index for a data directory.
type Generator struct {
	// Dir is the directory containing the mosque records.
	Dir string

	// Index is the path to write the index to.
	Index string

	// Mosques, if set, is used to cross-reference records against the
	// configured mosques. It does not affect the generated index.
	Mosques mosques.List

	// Logger defaults to [slog.Default].
	Logger *slog.Logger

	// Now defaults to [time.Now].
	Now func() time.Time
}

// Generate builds and writes the index. If the data directory cannot be
// listed, the returned error wraps [ErrStorage]. Unreadable records are
// logged, left out of the index, and included in the report.
func (g *Generator) Generate() (*Report, error) {
	logger := cmp.Or(g.Logger, slog.Default())

	if g.Dir == "" {
		return nil, fmt.Errorf("%w: no data directory specified", ErrStorage)
	}
	if g.Index == "" {
		return nil, fmt.Errorf("no index path specified")
	}

	var exclude []string
	if dir, err := filepath.Abs(g.Dir); err == nil {
		if index, err := filepath.Abs(g.Index); err == nil && filepath.Dir(index) == dir {
			exclude = append(exclude, filepath.Base(index))
		}
	}

	sources, skipped, err := Collect(os.DirFS(g.Dir), filepath.Base(filepath.Clean(g.Dir)), exclude...)
	if err != nil {
		logger.Error("error generating mosque index", "dir", g.Dir, "error", err)
		return nil, err
	}
	for _, s := range skipped {
		logger.Error("error reading mosque record", "slug", s.Slug, "file", s.File, "error", s.Err)
	}

	report := &Report{
		Path:    g.Index,
		Skipped: skipped,
		Missing: g.crossReference(logger, sources, skipped),
	}

	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	idx := Build(sources, now())
	report.Mosques = len(idx.Mosques)

	if err := Write(g.Index, idx); err != nil {
		return report, err
	}
	logger.Info("generated mosque index", "path", g.Index, "mosques", report.Mosques, "skipped", len(report.Skipped))
	return report, nil
}

// crossReference checks the records against the configured mosques, returning
// the configured slugs without any record.
func (g *Generator) crossReference(logger *slog.Logger, sources []Source, skipped []Skipped) []string {
	if g.Mosques == nil {
		return nil
	}
	seen := make(map[string]bool, len(sources)+len(skipped))
	for _, s := range skipped {
		seen[s.Slug] = true
	}
	for _, src := range sources {
		seen[src.Slug] = true
		m, ok := g.Mosques.Lookup(src.Slug)
		if !ok {
			logger.Debug("mosque record not in mosque list", "slug", src.Slug)
			continue
		}
		if m.Name != "" && m.Name != src.Record.MosqueName {
			logger.Warn("mosque name differs from mosque list", "slug", src.Slug, "name", src.Record.MosqueName, "configured", m.Name)
		}
	}
	var missing []string
	for _, slug := range g.Mosques.Slugs() {
		if !seen[slug] {
			missing = append(missing, slug)
		}
	}
	if len(missing) != 0 {
		logger.Warn("configured mosques without records", "count", len(missing), "slugs", missing)
	}
	return missing
}
