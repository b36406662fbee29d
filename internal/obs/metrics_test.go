package obs

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCanonicalPath(t *testing.T) {
	RegisterRoutes("/metrics", "/api/playerData", "/api/staffData")
	cases := map[string]string{
		"":                           "/",
		"/":                          "/",
		"/metrics":                   "/metrics",
		"/api/playerData":            "/api/playerData",
		"/api/playerData?key=abc":    "/api/playerData",
		"/api/nope":                  "other",
		"/assets/index-abc123.js":    "/static",
		"/favicon.ico":               "/static",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestInstrumentPassesThroughFlusher(t *testing.T) {
	Init()
	Init()
	var flushed bool
	h := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("wrapped writer lost http.Flusher")
		}
		w.WriteHeader(http.StatusAccepted)
		f.Flush()
		flushed = true
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/playerData", nil))
	if rr.Code != http.StatusAccepted || !flushed {
		t.Fatalf("code=%d flushed=%v", rr.Code, flushed)
	}
}

func TestLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutput(&buf)
	defer restore()

	Logger().Info().Str("stream", "world").Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	for _, key := range []string{"ts", "level", "msg", "stream"} {
		if _, ok := entry[key]; !ok {
			t.Fatalf("missing %q in %v", key, entry)
		}
	}
	if err := SetLevel("loud"); err == nil {
		t.Fatal("expected invalid level error")
	}
	if err := SetLevel(""); err != nil {
		t.Fatal(err)
	}
}
