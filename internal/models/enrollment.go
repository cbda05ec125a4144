package models

import "time"

// RecordKind identifies which record collection an event came from.
type RecordKind string

const (
	KindStudent RecordKind = "student"
	KindStaff   RecordKind = "staff"
)

// Valid reports whether k is one of the known record kinds.
func (k RecordKind) Valid() bool {
	return k == KindStudent || k == KindStaff
}

// ChangeEvent is one record-added (+1) or record-removed (-1) notification.
type ChangeEvent struct {
	Organization string     `json:"organization"`
	Kind         RecordKind `json:"kind"`
	Delta        int        `json:"delta"`
	EnrollmentID string     `json:"enrollment_id,omitempty"`
}

// EnrollmentRecord is a row of the external record store (students and staff).
type EnrollmentRecord struct {
	ID           int64      `json:"id"`
	Organization string     `json:"organization"`
	OrgCode      string     `json:"org_code"`
	Kind         RecordKind `json:"kind"`
	EnrollmentID string     `json:"enrollment_id"`
	CreatedAt    time.Time  `json:"created_at"`
}

// AddedEvent returns the +1 event a freshly observed record produces.
func (r EnrollmentRecord) AddedEvent() ChangeEvent {
	return ChangeEvent{Organization: r.Organization, Kind: r.Kind, Delta: 1, EnrollmentID: r.EnrollmentID}
}
