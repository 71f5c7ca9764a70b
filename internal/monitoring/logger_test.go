package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) { called = true })
	Logf("test message")
	if !called {
		t.Error("custom logger was not called")
	}

	called = false
	SetLogger(nil)
	Logf("test")
	if called {
		t.Error("no-op logger should not have triggered callback")
	}
}

func TestComponent_PrefixesAndFollowsLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	logf := Component("sweep")

	var got string
	SetLogger(func(format string, v ...interface{}) { got = fmt.Sprintf(format, v...) })
	logf("point %d/%d", 3, 24)

	if got != "[sweep] point 3/24" {
		t.Errorf("expected %q, got %q", "[sweep] point 3/24", got)
	}
}

func TestPrinter(t *testing.T) {
	testCases := []struct {
		name    string
		format  string
		args    []interface{}
		wantMsg string
		wantKV  []interface{}
	}{
		{"tagged", "[results] appended %d rows\n", []interface{}{6}, "appended 6 rows", []interface{}{"component", "results"}},
		{"untagged", "plain %s", []interface{}{"text"}, "plain text", nil},
		{"empty_tag", "[] odd", nil, "[] odd", nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg interface{}
			var kv []interface{}
			p := Printer(func(m interface{}, keyvals ...interface{}) {
				msg = m
				kv = keyvals
			})
			p(tc.format, tc.args...)
			if msg != tc.wantMsg {
				t.Errorf("expected msg %q, got %q", tc.wantMsg, msg)
			}
			if fmt.Sprint(kv) != fmt.Sprint(tc.wantKV) {
				t.Errorf("expected keyvals %v, got %v", tc.wantKV, kv)
			}
		})
	}
}
