package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/spm1001/skill-chrome-log/internal/logstore"
	"github.com/spm1001/skill-chrome-log/internal/types"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestFormatSummary(t *testing.T) {
	long := "https://api.example/" + strings.Repeat("x", 100)
	tests := []struct {
		name string
		rec  types.Record
		want string
	}{
		{
			name: "complete",
			rec:  types.Record{ID: "1234.56789", Method: "GET", Status: intPtr(200), URL: "https://api.example/users"},
			want: "1234.567 GET     200 https://api.example/users",
		},
		{
			name: "no response",
			rec:  types.Record{ID: "9.1", Method: "OPTIONS", URL: "https://api.example/"},
			want: "9.1      OPTIONS --- https://api.example/",
		},
		{
			name: "long url",
			rec:  types.Record{ID: "1", Method: "POST", Status: intPtr(500), URL: long},
			want: "1        POST    500 " + long[:77] + "...",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatSummary(&tt.rec); got != tt.want {
				t.Fatalf("formatSummary() = %q; want %q", got, tt.want)
			}
		})
	}
}

func TestFormatSize(t *testing.T) {
	tests := map[int64]string{
		0:                "0.0 B",
		512:              "512.0 B",
		2048:             "2.0 KB",
		50 * 1024 * 1024: "50.0 MB",
	}
	for in, want := range tests {
		if got := formatSize(in); got != want {
			t.Fatalf("formatSize(%d) = %q; want %q", in, got, want)
		}
	}
}

func TestFormatCount(t *testing.T) {
	tests := map[int]string{0: "0", 999: "999", 1000: "1,000", 1234567: "1,234,567", -4200: "-4,200"}
	for in, want := range tests {
		if got := formatCount(in); got != want {
			t.Fatalf("formatCount(%d) = %q; want %q", in, got, want)
		}
	}
}

func TestFormatDetail(t *testing.T) {
	size := int64(2048)
	rec := &types.Record{
		ID:              "42.1",
		Timestamp:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Tab:             types.TabRef{ID: "T1", URL: "https://app.example/"},
		Method:          "POST",
		URL:             "https://api.example/login",
		RequestHeaders:  map[string]string{"b": "2", "a": "1"},
		RequestBody:     strPtr("user=x"),
		Status:          intPtr(401),
		Mime:            strPtr("application/json"),
		ResponseHeaders: map[string]string{"Content-Type": "application/json"},
		Size:            &size,
		ResponseBody:    strPtr(`{"error":"denied"}`),
	}

	plain := formatDetail(rec, false, false)
	for _, want := range []string{"ID: 42.1", "Tab: https://app.example/", "POST https://api.example/login", "Status: 401 (application/json)", "Size: 2.0 KB"} {
		if !strings.Contains(plain, want) {
			t.Fatalf("formatDetail() missing %q in:\n%s", want, plain)
		}
	}
	if strings.Contains(plain, "Headers") || strings.Contains(plain, "Body") {
		t.Fatalf("formatDetail() without flags shows sections:\n%s", plain)
	}

	full := formatDetail(rec, true, true)
	if !strings.Contains(full, "=== Request Headers ===\n  a: 1\n  b: 2") {
		t.Fatalf("headers not sorted:\n%s", full)
	}
	if !strings.Contains(full, "=== Request Body ===\nuser=x") {
		t.Fatalf("request body missing:\n%s", full)
	}
	if !strings.Contains(full, "{\n  \"error\": \"denied\"\n}") {
		t.Fatalf("response body not indented:\n%s", full)
	}

	failed := formatDetail(&types.Record{ID: "1", Method: "GET", URL: "u", Error: strPtr("net::ERR_FAILED")}, false, false)
	if !strings.Contains(failed, "Status: unknown (unknown)") || !strings.Contains(failed, "Error: net::ERR_FAILED") {
		t.Fatalf("failed detail = %q", failed)
	}
}

func TestWriteList(t *testing.T) {
	var buf bytes.Buffer
	if err := writeList(&buf, nil, false, "No requests captured yet"); err != nil {
		t.Fatalf("writeList() error = %v", err)
	}
	if buf.String() != "No requests captured yet\n" {
		t.Fatalf("empty output = %q", buf.String())
	}

	buf.Reset()
	recs := []types.Record{{ID: "2", Method: "GET", URL: "b"}, {ID: "1", Method: "GET", URL: "a"}}
	if err := writeList(&buf, recs, true, ""); err != nil {
		t.Fatalf("writeList() error = %v", err)
	}
	var got []types.Record
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("json output: %v", err)
	}
	if len(got) != 2 || got[0].ID != "2" {
		t.Fatalf("json output = %+v", got)
	}

	buf.Reset()
	if err := writeList(&buf, recs, false, ""); err != nil {
		t.Fatalf("writeList() error = %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(buf.String()), "\n"); len(lines) != 2 {
		t.Fatalf("lines = %q", lines)
	}
}

func TestWriteStatus(t *testing.T) {
	oldest := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	writeStatus(&buf, statusReport{
		CDPURL:    "http://127.0.0.1:9222",
		ChromeUp:  false,
		DaemonPID: 77,
		DaemonUp:  true,
		Stats:     logstore.Stats{Count: 1500, Size: 2048, Rotated: 2, Oldest: &oldest, Paused: true},
		LogDir:    "/tmp/logs",
	})
	out := buf.String()
	for _, want := range []string{
		"Chrome Debug:  Not running (http://127.0.0.1:9222)",
		"Daemon:        Running (PID 77)",
		"Capture:       Paused",
		"Requests:      1,500",
		"Log Size:      2.0 KB",
		"Rotated Files: 2",
		"Oldest:        2026-03-01T12:00:00Z",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("status missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Newest:") {
		t.Fatalf("status shows Newest without a value:\n%s", out)
	}
}
