package results

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/throughput.report/internal/fsutil"
	"github.com/banshee-data/throughput.report/internal/sweep"
)

func writeShard(t *testing.T, mem *fsutil.MemoryFileSystem, path string, rows ...sweep.Row) {
	t.Helper()
	tbl := sweep.NewTable([]string{"tcp", "ber"}, nil)
	tbl.Rows = rows
	_, err := Append(path, tbl, WithFileSystem(mem))
	require.NoError(t, err)
}

func TestMerge(t *testing.T) {
	mem := fsutil.NewMemoryFileSystem()
	writeShard(t, mem, "/parts/0.csv",
		row(1, 0.2, 0.1, "tcp", "Vegas", "ber", "1e-6"),
		row(2, 0.2, 0.1, "tcp", "Vegas", "ber", "1e-4"))
	writeShard(t, mem, "/parts/1.csv",
		row(3, 0.2, 0.1, "tcp", "Vegas", "ber", "1e-5"),
		sweep.IncompleteRow(point("tcp", "Veno", "ber", "1e-3"), 0, 10))

	res, err := Merge("/out/all.csv", []string{"/parts/0.csv", "/parts/1.csv"}, WithFileSystem(mem))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sources)
	assert.Equal(t, 4, res.Added)
	assert.True(t, res.Created)

	lr, err := Load("/out/all.csv", WithFileSystem(mem))
	require.NoError(t, err)
	require.Len(t, lr.Table.Rows, 4)
	assert.True(t, lr.Table.Rows[3].Incomplete)
}

func TestMerge_OverlapPolicies(t *testing.T) {
	setup := func() *fsutil.MemoryFileSystem {
		mem := fsutil.NewMemoryFileSystem()
		writeShard(t, mem, "/p/a.csv", row(1, 0, 0, "tcp", "Vegas", "ber", "1e-6"))
		writeShard(t, mem, "/p/b.csv", row(9, 0, 0, "tcp", "Vegas", "ber", "0.000001"))
		return mem
	}

	mem := setup()
	_, err := Merge("/p/all.csv", []string{"/p/a.csv", "/p/b.csv"}, WithFileSystem(mem), WithDuplicatePolicy(Reject))
	require.ErrorIs(t, err, ErrDuplicatePoint)
	assert.False(t, mem.Exists("/p/all.csv"))

	mem = setup()
	res, err := Merge("/p/all.csv", []string{"/p/a.csv", "/p/b.csv"}, WithFileSystem(mem))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rows)
	lr, err := Load("/p/all.csv", WithFileSystem(mem))
	require.NoError(t, err)
	assert.Equal(t, 9.0, lr.Table.Rows[0].Mean)
}

func TestMerge_Errors(t *testing.T) {
	mem := fsutil.NewMemoryFileSystem()
	_, err := Merge("/out.csv", nil, WithFileSystem(mem))
	assert.Error(t, err)

	_, err = Merge("/out.csv", []string{"/nope.csv"}, WithFileSystem(mem))
	assert.Error(t, err)

	writeShard(t, mem, "/p/a.csv", row(1, 0, 0, "tcp", "Vegas", "ber", "1e-6"))
	other := sweep.NewTable([]string{"tcp", "delay"}, nil)
	other.Rows = []sweep.Row{row(1, 0, 0, "tcp", "Vegas", "delay", "10")}
	_, err = Append("/p/b.csv", other, WithFileSystem(mem))
	require.NoError(t, err)

	_, err = Merge("/out.csv", []string{"/p/a.csv", "/p/b.csv"}, WithFileSystem(mem))
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}
