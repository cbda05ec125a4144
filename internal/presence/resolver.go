// Package presence derives which organizations are online from a snapshot of
// expiring session records. Resolution is level-triggered: every call
// recomputes the online set from scratch and nothing is remembered between calls.
package presence

import (
	"strings"
	"time"

	"github.com/identmakers/roots-dashboard/internal/models"
	"github.com/identmakers/roots-dashboard/internal/orgkey"
)

// Entry is one presence-store entry with all of its sessions, in store order.
type Entry struct {
	Key      string                 `json:"key"`
	Sessions []models.SessionRecord `json:"sessions"`
}

// Result is the online set produced by Resolve.
// Online holds one display name per normalized key, in entry order.
type Result struct {
	Online []string `json:"online"`
	Count  int      `json:"count"`
	keys   map[string]struct{}
}

// IsOnline reports whether the organization is in the online set.
func (r Result) IsOnline(name string) bool {
	return r.IsOnlineKey(orgkey.Normalize(name))
}

// IsOnlineKey is IsOnline for an already normalized key.
func (r Result) IsOnlineKey(key string) bool {
	_, ok := r.keys[key]
	return ok
}

// Resolve picks, for every entry, the online session that expires last among
// those still unexpired at now, and returns the deduplicated set of their
// organizations. When two entries resolve to the same organization the first
// entry's display name is kept.
func Resolve(now time.Time, entries []Entry) Result {
	nowMillis := now.UnixMilli()
	res := Result{Online: []string{}, keys: make(map[string]struct{})}

	for _, e := range entries {
		name, ok := winner(nowMillis, e.Sessions)
		if !ok {
			continue
		}
		key := orgkey.Normalize(name)
		if _, seen := res.keys[key]; seen {
			continue
		}
		res.keys[key] = struct{}{}
		res.Online = append(res.Online, name)
	}
	res.Count = len(res.Online)
	return res
}

// winner returns the name of the live online session with the latest expiry.
// Ties keep the first session encountered.
func winner(nowMillis int64, sessions []models.SessionRecord) (string, bool) {
	var (
		chosen string
		best   int64
		found  bool
	)
	for _, s := range sessions {
		name := strings.TrimSpace(s.Organization)
		if name == "" || s.Status != models.StatusOnline || s.ExpiresAt <= nowMillis {
			continue
		}
		if !found || s.ExpiresAt > best {
			chosen, best, found = name, s.ExpiresAt, true
		}
	}
	return chosen, found
}
