package results

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSchemaMismatch means a file's header does not match the table being
	// written or the schema the caller expects.
	ErrSchemaMismatch = errors.New("result schema mismatch")

	// ErrMalformedRow marks a data row that could not be parsed. Load skips
	// such rows and reports them as warnings.
	ErrMalformedRow = errors.New("malformed result row")

	// ErrDuplicatePoint means an append would store a parameter point twice
	// under the Reject policy.
	ErrDuplicatePoint = errors.New("duplicate parameter point")
)

// SchemaMismatchError describes incompatible headers.
type SchemaMismatchError struct {
	Path string
	Line int
	Want []string
	Got  []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("%s:%d: header [%s] does not match expected [%s]",
		e.Path, e.Line, strings.Join(e.Got, ","), strings.Join(e.Want, ","))
}

func (e *SchemaMismatchError) Unwrap() error { return ErrSchemaMismatch }

// MalformedRowError describes one skipped data row.
type MalformedRowError struct {
	Path   string
	Line   int
	Reason string
}

func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Reason)
}

func (e *MalformedRowError) Unwrap() error { return ErrMalformedRow }

// DuplicatePointError lists the points that would have been duplicated.
type DuplicatePointError struct {
	Path   string
	Points []string
}

func (e *DuplicatePointError) Error() string {
	const show = 3
	pts := e.Points
	more := ""
	if len(pts) > show {
		more = fmt.Sprintf(" and %d more", len(pts)-show)
		pts = pts[:show]
	}
	return fmt.Sprintf("%s: %d duplicate point(s): %s%s", e.Path, len(e.Points), strings.Join(pts, "; "), more)
}

func (e *DuplicatePointError) Unwrap() error { return ErrDuplicatePoint }
