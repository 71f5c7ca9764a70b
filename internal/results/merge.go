package results

import (
	"errors"
	"fmt"

	"github.com/banshee-data/throughput.report/internal/sweep"
)

// MergeResult summarises a merge of partial result files.
type MergeResult struct {
	AppendResult
	Sources int
}

// Merge folds per-shard partial result files into dest. All sources must
// share one schema; their rows are appended in source order under the
// store's duplicate policy, so with Replace a later source wins. Under Reject
// an overlap between shards fails the merge and dest is left untouched.
func Merge(dest string, sources []string, opts ...Option) (MergeResult, error) {
	res := MergeResult{AppendResult: AppendResult{Path: dest}}
	if len(sources) == 0 {
		return res, errors.New("merge: no source files")
	}

	var combined *sweep.Table
	var warnings []error
	for _, src := range sources {
		lr, err := Load(src, opts...)
		if err != nil {
			return res, fmt.Errorf("merge: %w", err)
		}
		warnings = append(warnings, lr.Warnings...)
		if combined == nil {
			combined = sweep.NewTable(lr.Table.Axes, lr.Table.Levels)
		} else if !combined.SameSchema(lr.Table) {
			return res, &SchemaMismatchError{Path: src, Line: 1, Want: combined.Columns(), Got: lr.Table.Columns()}
		}
		combined.Rows = append(combined.Rows, lr.Table.Rows...)
		res.Sources++
	}

	ar, err := NewStore(dest, opts...).Append(combined)
	ar.Warnings = append(warnings, ar.Warnings...)
	res.AppendResult = ar
	if err != nil {
		return res, err
	}
	logf("merged %d files into %s", res.Sources, dest)
	return res, nil
}
