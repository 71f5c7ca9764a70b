package testutil

import (
	"fmt"
	"net/http"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/throughput.report/internal/fsutil"
	"github.com/banshee-data/throughput.report/internal/results"
)

func TestResultsCSVParses(t *testing.T) {
	mem := fsutil.NewMemoryFileSystem()
	WriteResults(t, mem, "/data/results.csv", ResultsCSV)

	lr, err := results.Load("/data/results.csv", results.WithFileSystem(mem))
	require.NoError(t, err)
	assert.Empty(t, lr.Warnings)
	assert.Equal(t, []string{"tcp", "ber", "delay"}, lr.Table.Axes)
	require.Len(t, lr.Table.Rows, 12)

	i := lr.Table.Find(Point("tcp", "Vegas", "ber", "1e-4", "delay", "10"))
	require.GreaterOrEqual(t, i, 0)
	assert.True(t, lr.Table.Rows[i].Incomplete)
}

func TestPoint(t *testing.T) {
	p := Point("tcp", "Veno", "delay", "10")
	require.Len(t, p, 2)
	assert.Equal(t, "tcp=Veno delay=10", p.String())
	assert.Panics(t, func() { Point("tcp") })
}

// recordingTB captures failures instead of failing the running test.
type recordingTB struct {
	testing.TB
	errors []string
}

func (r *recordingTB) Helper() {}

func (r *recordingTB) Errorf(format string, args ...interface{}) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func TestAssertStatusCode(t *testing.T) {
	tests := []struct {
		name      string
		got, want int
		errors    []string
	}{
		{"match", http.StatusOK, http.StatusOK, nil},
		{"mismatch", http.StatusOK, http.StatusBadRequest, []string{"status code = 200, want 400"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingTB{}
			AssertStatusCode(rec, tt.got, tt.want)
			assert.Equal(t, tt.errors, rec.errors)
		})
	}
}

func TestDoAndDecodeJSON(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"method":"` + r.Method + `","path":"` + r.URL.Path + `"}`))
	})
	rec := Do(h, http.MethodPost, "/api/test")
	AssertStatusCode(t, rec.Code, http.StatusOK)

	var got map[string]string
	DecodeJSON(t, rec, &got)
	assert.Equal(t, map[string]string{"method": "POST", "path": "/api/test"}, got)
}

func TestTempFile(t *testing.T) {
	path := TempFile(t, "r.csv", "a,mean\n")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a,mean\n", string(data))
}
