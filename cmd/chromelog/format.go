package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spm1001/skill-chrome-log/internal/logstore"
	"github.com/spm1001/skill-chrome-log/internal/types"
)

const summaryURLMax = 80

type statusReport struct {
	CDPURL    string
	ChromeUp  bool
	DaemonPID int
	DaemonUp  bool
	Stats     logstore.Stats
	LogDir    string
}

func writeStatus(w io.Writer, r statusReport) {
	var b strings.Builder
	b.WriteString("Chrome Log Status\n")
	b.WriteString(strings.Repeat("=", 40) + "\n")
	if r.ChromeUp {
		fmt.Fprintf(&b, "Chrome Debug:  Running (%s)\n", r.CDPURL)
	} else {
		fmt.Fprintf(&b, "Chrome Debug:  Not running (%s)\n", r.CDPURL)
	}
	if r.DaemonUp {
		fmt.Fprintf(&b, "Daemon:        Running (PID %d)\n", r.DaemonPID)
	} else {
		b.WriteString("Daemon:        Not running\n")
	}
	if r.Stats.Paused {
		b.WriteString("Capture:       Paused\n")
	} else {
		b.WriteString("Capture:       Active\n")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Log Dir:       %s\n", r.LogDir)
	fmt.Fprintf(&b, "Requests:      %s\n", formatCount(r.Stats.Count))
	fmt.Fprintf(&b, "Log Size:      %s\n", formatSize(r.Stats.Size))
	if r.Stats.Rotated > 0 {
		fmt.Fprintf(&b, "Rotated Files: %d\n", r.Stats.Rotated)
	}
	if r.Stats.Oldest != nil {
		fmt.Fprintf(&b, "Oldest:        %s\n", r.Stats.Oldest.Format(time.RFC3339))
	}
	if r.Stats.Newest != nil {
		fmt.Fprintf(&b, "Newest:        %s\n", r.Stats.Newest.Format(time.RFC3339))
	}
	_, _ = io.WriteString(w, b.String())
}

// formatSummary renders one list line: short id, method, status, url.
func formatSummary(rec *types.Record) string {
	status := "---"
	if rec.Status != nil {
		status = strconv.Itoa(*rec.Status)
	}
	url := rec.URL
	if len(url) > summaryURLMax {
		url = url[:summaryURLMax-3] + "..."
	}
	id := rec.ID
	if len(id) > 8 {
		id = id[:8]
	}
	method := rec.Method
	if len(method) > 7 {
		method = method[:7]
	}
	return fmt.Sprintf("%-8s %-7s %-3s %s", id, method, status, url)
}

func formatDetail(rec *types.Record, headers, body bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ID: %s\n", rec.ID)
	fmt.Fprintf(&b, "Time: %s\n", rec.Timestamp.Format(time.RFC3339Nano))
	fmt.Fprintf(&b, "Tab: %s\n\n", rec.Tab.URL)
	fmt.Fprintf(&b, "%s %s\n", rec.Method, rec.URL)

	status := "unknown"
	if rec.Status != nil {
		status = strconv.Itoa(*rec.Status)
	}
	mime := rec.MimeType()
	if mime == "" {
		mime = "unknown"
	}
	fmt.Fprintf(&b, "Status: %s (%s)\n", status, mime)
	var size int64
	if rec.Size != nil {
		size = *rec.Size
	}
	fmt.Fprintf(&b, "Size: %s", formatSize(size))
	if rec.Error != nil {
		fmt.Fprintf(&b, "\nError: %s", *rec.Error)
	}

	if headers {
		b.WriteString("\n\n=== Request Headers ===")
		writeHeaders(&b, rec.RequestHeaders)
		b.WriteString("\n\n=== Response Headers ===")
		writeHeaders(&b, rec.ResponseHeaders)
	}
	if body {
		if rec.RequestBody != nil && *rec.RequestBody != "" {
			b.WriteString("\n\n=== Request Body ===\n")
			b.WriteString(*rec.RequestBody)
		}
		if rec.ResponseBody != nil && *rec.ResponseBody != "" {
			b.WriteString("\n\n=== Response Body ===\n")
			b.WriteString(prettyJSON(*rec.ResponseBody))
		}
	}
	return b.String()
}

func writeHeaders(b *strings.Builder, h map[string]string) {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "\n  %s: %s", k, h[k])
	}
}

// prettyJSON indents s when it is JSON and returns it unchanged otherwise.
func prettyJSON(s string) string {
	var out bytes.Buffer
	if err := json.Indent(&out, []byte(s), "", "  "); err != nil {
		return s
	}
	return out.String()
}

func formatSize(size int64) string {
	f := float64(size)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if f < 1024 {
			return fmt.Sprintf("%.1f %s", f, unit)
		}
		f /= 1024
	}
	return fmt.Sprintf("%.1f TB", f)
}

// formatCount groups thousands with commas.
func formatCount(n int) string {
	if n < 0 {
		return "-" + formatCount(-n)
	}
	s := strconv.Itoa(n)
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	return s
}
