package models

// OrganizationAggregate holds the live running counts for one organization.
// Total is derived on every read and never stored.
type OrganizationAggregate struct {
	Name          string `json:"name"`
	NormalizedKey string `json:"normalized"`
	Students      int    `json:"students"`
	Staff         int    `json:"staff"`
}

// Total returns Students + Staff.
func (a OrganizationAggregate) Total() int {
	return a.Students + a.Staff
}

// DateOrganizationCount is one organization's counts inside a DateBucket.
type DateOrganizationCount struct {
	Name          string `json:"name"`
	NormalizedKey string `json:"normalized"`
	Students      int    `json:"students"`
	Staff         int    `json:"staff"`
}

// Total returns Students + Staff.
func (c DateOrganizationCount) Total() int {
	return c.Students + c.Staff
}

// DateBucket holds the counts of records created on one calendar day (ISO date key).
type DateBucket struct {
	Date          string                  `json:"date"`
	Students      int                     `json:"students"`
	Staff         int                     `json:"staff"`
	Organizations []DateOrganizationCount `json:"organizations"`
}

// Total returns Students + Staff.
func (b DateBucket) Total() int {
	return b.Students + b.Staff
}
