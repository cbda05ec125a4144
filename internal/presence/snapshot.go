package presence

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/identmakers/roots-dashboard/internal/models"
)

// ErrInvalidSnapshot is returned when the snapshot is not a JSON object.
var ErrInvalidSnapshot = errors.New("invalid presence snapshot")

// DecodeSnapshot reads a presence-store dump shaped as
//
//	{ entryKey: { sessionKey: { "name"|"schoolName", "status", "expiresAt" } } }
//
// keeping document order for both entries and sessions. Entries may also be
// arrays of sessions; any other entry value, and any session that is not an
// object, is skipped. expiresAt may be a number or a numeric string; anything
// else reads as 0 and therefore as expired. An empty body or JSON null is an
// empty snapshot.
func DecodeSnapshot(raw []byte) ([]Entry, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return []Entry{}, nil
	}
	if !gjson.Valid(trimmed) {
		return nil, ErrInvalidSnapshot
	}
	root := gjson.Parse(trimmed)
	if !root.IsObject() {
		return nil, ErrInvalidSnapshot
	}

	entries := []Entry{}
	root.ForEach(func(key, value gjson.Result) bool {
		if !value.IsObject() && !value.IsArray() {
			return true
		}
		e := Entry{Key: key.String()}
		value.ForEach(func(_, session gjson.Result) bool {
			if !session.IsObject() {
				return true
			}
			e.Sessions = append(e.Sessions, decodeSession(session))
			return true
		})
		entries = append(entries, e)
		return true
	})
	return entries, nil
}

func decodeSession(v gjson.Result) models.SessionRecord {
	name := v.Get("name").String()
	if name == "" {
		name = v.Get("schoolName").String()
	}
	var status models.SessionStatus
	if st := v.Get("status"); st.Type == gjson.String {
		status = models.SessionStatus(st.Str)
	}
	return models.SessionRecord{
		Organization: name,
		Status:       status,
		ExpiresAt:    v.Get("expiresAt").Int(),
	}
}
