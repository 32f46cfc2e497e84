package types

import "time"

// TabRef identifies the tab that issued a request, as seen when it started.
type TabRef struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Record is one completed request/response exchange as persisted to
// requests.jsonl. Optional fields are pointers so that "not observed" and
// "zero" stay distinguishable on disk.
type Record struct {
	ID              string            `json:"id"`
	Timestamp       time.Time         `json:"ts"`
	Tab             TabRef            `json:"tab"`
	Method          string            `json:"method"`
	URL             string            `json:"url"`
	RequestHeaders  map[string]string `json:"requestHeaders"`
	RequestBody     *string           `json:"requestBody,omitempty"`
	Status          *int              `json:"status,omitempty"`
	Mime            *string           `json:"mime,omitempty"`
	ResponseHeaders map[string]string `json:"responseHeaders,omitempty"`
	Size            *int64            `json:"size,omitempty"`
	ResponseBody    *string           `json:"responseBody,omitempty"`
	Error           *string           `json:"error,omitempty"`
}

// StatusCode returns the response status or 0 when no response was seen.
func (r *Record) StatusCode() int {
	if r.Status == nil {
		return 0
	}
	return *r.Status
}

// MimeType returns the response MIME type or "" when no response was seen.
func (r *Record) MimeType() string {
	if r.Mime == nil {
		return ""
	}
	return *r.Mime
}
