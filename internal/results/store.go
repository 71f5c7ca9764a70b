// Package results persists sweep tables as CSV result files.
//
// A result file has one header line (axis columns, "mean", one offNN column
// per confidence level) followed by one data line per parameter point.
// Incomplete points carry NA in every statistics column. Appends rewrite the
// whole file through a temporary file and a rename while holding an exclusive
// lock, so the destination is always parseable and concurrent writers never
// interleave.
package results

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"github.com/banshee-data/throughput.report/internal/fsutil"
	"github.com/banshee-data/throughput.report/internal/monitoring"
	"github.com/banshee-data/throughput.report/internal/sweep"
)

var logf = monitoring.Component("results")

// DuplicatePolicy decides what Append does with a point already present.
type DuplicatePolicy int

const (
	// Replace overwrites the stored row in place (default).
	Replace DuplicatePolicy = iota
	// Reject fails the whole append; nothing is written.
	Reject
	// Keep appends rows verbatim, keeping every measurement of a point.
	Keep
)

func (p DuplicatePolicy) String() string {
	switch p {
	case Replace:
		return "replace"
	case Reject:
		return "reject"
	case Keep:
		return "keep"
	}
	return fmt.Sprintf("DuplicatePolicy(%d)", int(p))
}

// ParseDuplicatePolicy parses "replace", "reject" or "keep".
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "replace":
		return Replace, nil
	case "reject":
		return Reject, nil
	case "keep":
		return Keep, nil
	}
	return Replace, fmt.Errorf("unknown duplicate policy %q (valid: replace, reject, keep)", s)
}

const filePerm = 0o644

// Store reads and writes one result file.
type Store struct {
	path   string
	fs     fsutil.FileSystem
	policy DuplicatePolicy
	schema *sweep.Table

	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithFileSystem replaces the OS filesystem.
func WithFileSystem(fsys fsutil.FileSystem) Option {
	return func(s *Store) { s.fs = fsys }
}

// WithDuplicatePolicy sets the duplicate policy used by Append.
func WithDuplicatePolicy(p DuplicatePolicy) Option {
	return func(s *Store) { s.policy = p }
}

// WithSchema makes Load fail with ErrSchemaMismatch unless the file header
// matches axes and levels.
func WithSchema(axes []string, levels []float64) Option {
	return func(s *Store) { s.schema = sweep.NewTable(axes, levels) }
}

// NewStore returns a store for path.
func NewStore(path string, opts ...Option) *Store {
	s := &Store{path: filepath.Clean(path), fs: fsutil.OSFileSystem{}}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Path returns the destination file.
func (s *Store) Path() string { return s.path }

// Policy returns the duplicate policy.
func (s *Store) Policy() DuplicatePolicy { return s.policy }

// LoadResult is a parsed result file plus the rows that were skipped.
type LoadResult struct {
	Table    *sweep.Table
	Warnings []error
}

// AppendResult summarises one append.
type AppendResult struct {
	Path     string
	Created  bool // the header was written by this append
	Added    int
	Replaced int
	Rows     int // data rows in the file afterwards
	Warnings []error
}

// Load reads and parses the result file.
func (s *Store) Load() (*LoadResult, error) {
	data, err := s.fs.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading results: %w", err)
	}
	doc, err := decode(s.path, data, s.schema)
	if err != nil {
		return nil, err
	}
	if doc.table == nil {
		if s.schema != nil {
			return &LoadResult{Table: s.schema.Clone()}, nil
		}
		return nil, fmt.Errorf("%s: empty result file", s.path)
	}
	for _, w := range doc.warnings {
		logf("skipping: %v", w)
	}
	return &LoadResult{Table: doc.table, Warnings: doc.warnings}, nil
}

// Append adds the rows of t to the result file under the store's duplicate
// policy. The header is written only when the file is missing or empty. The
// file is either fully updated or left untouched.
func (s *Store) Append(t *sweep.Table) (AppendResult, error) {
	res := AppendResult{Path: s.path}
	if t == nil || len(t.Axes) == 0 {
		return res, errors.New("append: table has no schema")
	}
	for _, l := range t.Levels {
		if err := sweep.ValidateLevel(l); err != nil {
			return res, fmt.Errorf("append: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return res, fmt.Errorf("creating result directory: %w", err)
	}
	lock, err := s.fs.Lock(s.path)
	if err != nil {
		return res, fmt.Errorf("locking %s: %w", s.path, err)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logf("unlock %s: %v", s.path, err)
		}
	}()

	doc, err := s.readForUpdate(t)
	if err != nil {
		return res, err
	}
	res.Created = doc.table == nil
	if res.Created {
		doc.table = sweep.NewTable(t.Axes, t.Levels)
	}
	res.Warnings = doc.warnings

	if err := s.merge(doc, t, &res); err != nil {
		return res, err
	}

	data, err := encode(doc.table.Columns(), doc.records)
	if err != nil {
		return res, fmt.Errorf("encoding results: %w", err)
	}
	if err := s.fs.WriteFileAtomic(s.path, data, filePerm); err != nil {
		return res, fmt.Errorf("writing results: %w", err)
	}
	res.Rows = len(doc.records)
	logf("appended %d rows (%d replaced) to %s, %d rows total", res.Added, res.Replaced, s.path, res.Rows)
	return res, nil
}

// readForUpdate parses the existing destination, requiring its schema to
// match t. A missing or empty file yields a document with a nil table.
func (s *Store) readForUpdate(t *sweep.Table) (*document, error) {
	data, err := s.fs.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &document{path: s.path}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading results: %w", err)
	}
	doc, err := decode(s.path, data, t)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// merge applies the duplicate policy and updates doc in memory.
func (s *Store) merge(doc *document, t *sweep.Table, res *AppendResult) error {
	index := make(map[string]int, len(doc.table.Rows)) // point key -> records index
	for i, r := range doc.table.Rows {
		index[r.Point.Key()] = doc.rowRec[i]
	}

	if s.policy == Reject {
		var dups []string
		seen := make(map[string]bool, len(t.Rows))
		for _, r := range t.Rows {
			key := r.Point.Key()
			if _, ok := index[key]; ok || seen[key] {
				dups = append(dups, r.Point.String())
			}
			seen[key] = true
		}
		if len(dups) > 0 {
			return &DuplicatePointError{Path: s.path, Points: dups}
		}
	}

	for _, r := range t.Rows {
		rec := encodeRow(doc.table, r)
		key := r.Point.Key()
		if at, ok := index[key]; ok && s.policy == Replace {
			doc.records[at] = rec
			res.Replaced++
			continue
		}
		doc.records = append(doc.records, rec)
		index[key] = len(doc.records) - 1
		res.Added++
	}
	return nil
}

// Load parses the result file at path.
func Load(path string, opts ...Option) (*LoadResult, error) {
	return NewStore(path, opts...).Load()
}

// Append appends t to the result file at path.
func Append(path string, t *sweep.Table, opts ...Option) (AppendResult, error) {
	return NewStore(path, opts...).Append(t)
}
