package cdp

import (
	"sync"

	"github.com/chromedp/cdproto/target"
	"github.com/spm1001/skill-chrome-log/internal/types"
)

// SessionRegistry maps attached session IDs to the page target they drive.
// Only page targets are tracked; workers and service workers are ignored.
type SessionRegistry struct {
	sessions map[target.SessionID]*types.TabInfo
	mu       sync.RWMutex
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[target.SessionID]*types.TabInfo)}
}

// Attach registers sessionID for info. It reports true only when the
// session is new; a repeat attach refreshes metadata and reports false.
// Non-page targets and nil infos are rejected.
func (r *SessionRegistry) Attach(sessionID target.SessionID, info *target.Info) bool {
	if sessionID == "" || info == nil || info.Type != "page" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if tab, ok := r.sessions[sessionID]; ok {
		tab.TargetID = string(info.TargetID)
		tab.URL = info.URL
		tab.Title = info.Title
		return false
	}
	r.sessions[sessionID] = &types.TabInfo{
		SessionID: string(sessionID),
		TargetID:  string(info.TargetID),
		URL:       info.URL,
		Title:     info.Title,
	}
	return true
}

// Detach removes sessionID and returns what it pointed at.
func (r *SessionRegistry) Detach(sessionID target.SessionID) (types.TabInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tab, ok := r.sessions[sessionID]
	if !ok {
		return types.TabInfo{}, false
	}
	delete(r.sessions, sessionID)
	return *tab, true
}

// UpdateTarget replaces the metadata of the first session bound to
// info.TargetID. Tab counts are small, so a linear scan is fine.
func (r *SessionRegistry) UpdateTarget(info *target.Info) (types.TabInfo, bool) {
	if info == nil {
		return types.TabInfo{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tab := range r.sessions {
		if tab.TargetID != string(info.TargetID) {
			continue
		}
		tab.URL = info.URL
		tab.Title = info.Title
		return *tab, true
	}
	return types.TabInfo{}, false
}

// HasTarget reports whether any session is bound to targetID.
func (r *SessionRegistry) HasTarget(targetID target.ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, tab := range r.sessions {
		if tab.TargetID == string(targetID) {
			return true
		}
	}
	return false
}

// BySession returns a copy of the tab bound to sessionID.
func (r *SessionRegistry) BySession(sessionID string) (types.TabInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tab, ok := r.sessions[target.SessionID(sessionID)]
	if !ok {
		return types.TabInfo{}, false
	}
	return *tab, true
}

// List returns a snapshot of all attached tabs.
func (r *SessionRegistry) List() []types.TabInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.TabInfo, 0, len(r.sessions))
	for _, tab := range r.sessions {
		out = append(out, *tab)
	}
	return out
}

func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Reset drops every session. Sessions do not survive a reconnect.
func (r *SessionRegistry) Reset() {
	r.mu.Lock()
	r.sessions = make(map[target.SessionID]*types.TabInfo)
	r.mu.Unlock()
}
