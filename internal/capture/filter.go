package capture

import "strings"

// Default noise and binary lists. Matching is case-insensitive.
var (
	DefaultSkipURLPatterns = []string{
		"google-analytics.com",
		"doubleclick.net",
		"googlesyndication.com",
		"googleadservices.com",
		"play.google.com/log",
		"fonts.googleapis.com",
		"fonts.gstatic.com",
	}

	DefaultSkipMimePrefixes = []string{
		"image/",
		"font/",
		"audio/",
		"video/",
		"application/octet-stream",
		"application/pdf",
		"application/zip",
	}
)

// Filter decides which requests are never recorded.
type Filter struct {
	urlPatterns  []string
	mimePrefixes []string
}

// NewFilter builds a Filter from URL substrings and MIME prefixes.
func NewFilter(urlPatterns, mimePrefixes []string) *Filter {
	return &Filter{
		urlPatterns:  lowerAll(urlPatterns),
		mimePrefixes: lowerAll(mimePrefixes),
	}
}

// DefaultFilter skips tracking noise and binary payloads.
func DefaultFilter() *Filter {
	return NewFilter(DefaultSkipURLPatterns, DefaultSkipMimePrefixes)
}

// SkipURL reports whether url contains a noise pattern.
func (f *Filter) SkipURL(url string) bool {
	u := strings.ToLower(url)
	for _, p := range f.urlPatterns {
		if strings.Contains(u, p) {
			return true
		}
	}
	return false
}

// SkipMime reports whether mime is a binary type. An empty MIME type is
// never skipped.
func (f *Filter) SkipMime(mime string) bool {
	if mime == "" {
		return false
	}
	m := strings.ToLower(strings.TrimSpace(mime))
	for _, p := range f.mimePrefixes {
		if strings.HasPrefix(m, p) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
