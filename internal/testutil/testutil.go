// Package testutil provides shared test fixtures: a small result file,
// point builders and HTTP assertions.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/banshee-data/throughput.report/internal/fsutil"
	"github.com/banshee-data/throughput.report/internal/sweep"
)

// ResultsCSV is a result file sweeping tcp x ber at two delays, with one
// incomplete row (Vegas at ber 1e-4, delay 10).
var ResultsCSV = strings.Join([]string{
	"tcp,ber,delay,mean,off99,off95",
	"NewReno,1e-06,10,4980,35,26",
	"NewReno,1e-05,10,1990,80,60",
	"NewReno,0.0001,10,805,40,30",
	"Vegas,1e-06,10,4600,50,37",
	"Vegas,1e-05,10,1700,90,66",
	"Vegas,0.0001,10,NA,NA,NA",
	"NewReno,1e-06,50,2100,20,15",
	"NewReno,1e-05,50,950,45,33",
	"NewReno,0.0001,50,300,30,22",
	"Vegas,1e-06,50,1900,25,18",
	"Vegas,1e-05,50,800,50,37",
	"Vegas,0.0001,50,210,15,11",
}, "\n") + "\n"

// WriteResults stores content at path on fsys, creating parent directories.
func WriteResults(t testing.TB, fsys fsutil.FileSystem, path, content string) {
	t.Helper()
	if i := strings.LastIndex(path, "/"); i > 0 {
		if err := fsys.MkdirAll(path[:i], 0o755); err != nil {
			t.Fatalf("mkdir for %s: %v", path, err)
		}
	}
	if err := fsys.WriteFileAtomic(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

// Point builds a point from alternating axis names and raw values.
func Point(kv ...string) sweep.Point {
	if len(kv)%2 != 0 {
		panic("testutil.Point: odd number of arguments")
	}
	p := make(sweep.Point, 0, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		p = append(p, sweep.Coord{Axis: kv[i], Value: sweep.ParseValue(kv[i+1])})
	}
	return p
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// Do serves a request for target on h and returns the recorded response.
func Do(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

// DecodeJSON decodes the recorded body into v, failing the test on error.
func DecodeJSON(t testing.TB, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
}

// TempFile writes content to a new file under t.TempDir and returns its path.
func TempFile(t testing.TB, name, content string) string {
	t.Helper()
	path := t.TempDir() + string(os.PathSeparator) + name
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}
