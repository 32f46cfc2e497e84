// Package logstore is the read side of the request log: stats, filtered
// listings and lookups over requests.jsonl. It never writes the log.
package logstore

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spm1001/skill-chrome-log/internal/storage"
	"github.com/spm1001/skill-chrome-log/internal/types"
	"github.com/tidwall/gjson"
)

// ErrNotFound is returned by Get when no record matches.
var ErrNotFound = errors.New("logstore: request not found")

// ErrBadStatus is returned for a status filter that is neither a code nor
// a class such as "4xx".
var ErrBadStatus = errors.New("logstore: bad status filter")

const (
	maxLineBytes   = 16 * 1024 * 1024
	maxGenerations = 9
)

// Store reads the log in one directory.
type Store struct {
	dir string
}

func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the log directory.
func (s *Store) Dir() string { return s.dir }

// Stats summarises the active log file.
type Stats struct {
	Size    int64      `json:"size"`
	Count   int        `json:"count"`
	Rotated int        `json:"rotatedFiles"`
	Oldest  *time.Time `json:"oldest,omitempty"`
	Newest  *time.Time `json:"newest,omitempty"`
	Paused  bool       `json:"paused"`
}

// Query filters List. Empty fields match everything; URL, Tab and Method
// compare case-insensitively. Limit <= 0 means no limit.
type Query struct {
	URL    string
	Method string
	Status string
	Tab    string
	Limit  int
	Offset int
}

func (s *Store) Stats() (Stats, error) {
	st := Stats{Paused: storage.IsPaused(s.dir)}
	for i := 1; i <= maxGenerations; i++ {
		if _, err := os.Stat(storage.GenerationPath(s.dir, i)); err != nil {
			break
		}
		st.Rotated++
	}

	info, err := os.Stat(s.path())
	if errors.Is(err, os.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return st, err
	}
	st.Size = info.Size()

	err = s.scan(func(line []byte) bool {
		if !gjson.ValidBytes(line) {
			return true
		}
		st.Count++
		ts, err := time.Parse(time.RFC3339Nano, gjson.GetBytes(line, "ts").String())
		if err != nil {
			return true
		}
		if st.Oldest == nil || ts.Before(*st.Oldest) {
			t := ts
			st.Oldest = &t
		}
		if st.Newest == nil || ts.After(*st.Newest) {
			t := ts
			st.Newest = &t
		}
		return true
	})
	return st, err
}

// List returns matching records, newest first.
func (s *Store) List(q Query) ([]types.Record, error) {
	matchStatus, err := statusMatcher(q.Status)
	if err != nil {
		return nil, err
	}

	var all []types.Record
	err = s.scan(func(line []byte) bool {
		var rec types.Record
		if json.Unmarshal(line, &rec) != nil {
			return true
		}
		if !matches(&rec, q, matchStatus) {
			return true
		}
		all = append(all, rec)
		return true
	})
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}

	if q.Offset > 0 {
		if q.Offset >= len(all) {
			return []types.Record{}, nil
		}
		all = all[q.Offset:]
	}
	if q.Limit > 0 && len(all) > q.Limit {
		all = all[:q.Limit]
	}
	if all == nil {
		all = []types.Record{}
	}
	return all, nil
}

// Get returns the oldest record whose id starts with prefix.
func (s *Store) Get(prefix string) (*types.Record, error) {
	if prefix == "" {
		return nil, ErrNotFound
	}
	var found *types.Record
	err := s.scan(func(line []byte) bool {
		if !strings.HasPrefix(gjson.GetBytes(line, "id").String(), prefix) {
			return true
		}
		var rec types.Record
		if json.Unmarshal(line, &rec) != nil {
			return true
		}
		found = &rec
		return false
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, prefix)
	}
	return found, nil
}

// Tabs lists each distinct tab URL with the first tab id seen for it.
func (s *Store) Tabs() ([]types.TabRef, error) {
	seen := map[string]bool{}
	tabs := []types.TabRef{}
	err := s.scan(func(line []byte) bool {
		tab := gjson.GetBytes(line, "tab")
		url := tab.Get("url").String()
		if url == "" || seen[url] {
			return true
		}
		seen[url] = true
		tabs = append(tabs, types.TabRef{ID: tab.Get("id").String(), URL: url})
		return true
	})
	return tabs, err
}

func (s *Store) path() string {
	return filepath.Join(s.dir, storage.LogFileName)
}

// scan feeds each non-empty line of the active file to fn until fn returns
// false. A missing file is an empty log.
func (s *Store) scan(fn func(line []byte) bool) error {
	f, err := os.Open(s.path())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		if !fn(line) {
			return nil
		}
	}
	return sc.Err()
}

func matches(rec *types.Record, q Query, matchStatus func(int) bool) bool {
	if q.URL != "" && !containsFold(rec.URL, q.URL) {
		return false
	}
	if q.Method != "" && !strings.EqualFold(rec.Method, q.Method) {
		return false
	}
	if q.Tab != "" && !containsFold(rec.Tab.URL, q.Tab) {
		return false
	}
	if matchStatus != nil && !matchStatus(rec.StatusCode()) {
		return false
	}
	return true
}

// statusMatcher accepts an exact code ("404") or a class ("4xx").
func statusMatcher(pattern string) (func(int) bool, error) {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if pattern == "" {
		return nil, nil
	}
	if len(pattern) == 3 && strings.HasSuffix(pattern, "xx") && pattern[0] >= '1' && pattern[0] <= '9' {
		class := int(pattern[0] - '0')
		return func(code int) bool { return code/100 == class }, nil
	}
	code, err := strconv.Atoi(pattern)
	if err != nil || code < 100 || code > 999 {
		return nil, fmt.Errorf("%w: %q", ErrBadStatus, pattern)
	}
	return func(got int) bool { return got == code }, nil
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
