package sweep

import (
	"fmt"
	"strconv"
	"strings"
)

// Shard selects a disjoint subset of points for one worker process: the
// point with global index i belongs to the shard with Index == i mod Count.
// The zero value selects every point.
type Shard struct {
	Index int
	Count int
}

// ParseShard parses "i/n".
func ParseShard(s string) (Shard, error) {
	if strings.TrimSpace(s) == "" {
		return Shard{}, nil
	}
	a, b, ok := strings.Cut(s, "/")
	if !ok {
		return Shard{}, fmt.Errorf("invalid shard %q: expected index/count", s)
	}
	idx, err := strconv.Atoi(strings.TrimSpace(a))
	if err != nil {
		return Shard{}, fmt.Errorf("invalid shard index %q: %w", a, err)
	}
	cnt, err := strconv.Atoi(strings.TrimSpace(b))
	if err != nil {
		return Shard{}, fmt.Errorf("invalid shard count %q: %w", b, err)
	}
	sh := Shard{Index: idx, Count: cnt}
	return sh, sh.Validate()
}

// Validate checks 0 <= Index < Count for a non-zero shard.
func (s Shard) Validate() error {
	if s.Count == 0 && s.Index == 0 {
		return nil
	}
	if s.Count < 1 || s.Index < 0 || s.Index >= s.Count {
		return fmt.Errorf("invalid shard %d/%d", s.Index, s.Count)
	}
	return nil
}

// Contains reports whether global point index i belongs to the shard.
func (s Shard) Contains(i int) bool {
	if s.Count <= 1 {
		return true
	}
	return i%s.Count == s.Index
}

func (s Shard) String() string {
	if s.Count <= 1 {
		return "all"
	}
	return fmt.Sprintf("%d/%d", s.Index, s.Count)
}
