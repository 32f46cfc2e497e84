package types

// TabInfo holds metadata about an attached page session. It is used by the
// request ledger to snapshot the owning tab when a request starts.
type TabInfo struct {
	SessionID string
	TargetID  string
	URL       string
	Title     string
}

// TabInfoProvider is an interface for looking up tab information by session.
// This breaks the import cycle between capture and cdp packages.
type TabInfoProvider interface {
	BySession(sessionID string) (TabInfo, bool)
}
