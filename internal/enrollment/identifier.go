// Package enrollment decodes and builds enrollment identifiers.
//
// An identifier is the organization code, a two-digit day, a three-letter month,
// a four-digit year and a four-digit serial, e.g. SCHOOL105SEP20241234. The date
// occupies a fixed 9-character window starting at offset 7.
package enrollment

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const (
	// MinLength is the shortest identifier ExtractDate will look at.
	MinLength = 18
	// OrgCodeLength is the width of the organization code prefix.
	OrgCodeLength = 7

	dateOffset = OrgCodeLength
	dateWidth  = 9

	serialMin = 1000
	serialMax = 9999
)

var monthTokens = [12]string{"JAN", "FEB", "MAR", "APR", "MAY", "JUN", "JUL", "AUG", "SEP", "OCT", "NOV", "DEC"}

var monthByToken = func() map[string]time.Month {
	m := make(map[string]time.Month, len(monthTokens))
	for i, tok := range monthTokens {
		m[tok] = time.Month(i + 1)
	}
	return m
}()

// Date is a calendar day with no time zone attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the UTC calendar day of t.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses an ISO YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// String returns the ISO form, used as the date bucket key.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Time returns midnight UTC of d.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Before reports whether d is an earlier day than o.
func (d Date) Before(o Date) bool {
	return d.Time().Before(o.Time())
}

// ExtractDate returns the creation date embedded in id. It never fails loudly:
// identifiers outside the expected shape yield ok == false.
func ExtractDate(id string) (Date, bool) {
	if len(id) < MinLength {
		return Date{}, false
	}
	window := id[dateOffset : dateOffset+dateWidth]
	day, err := strconv.Atoi(window[0:2])
	if err != nil {
		return Date{}, false
	}
	month, ok := monthByToken[strings.ToUpper(window[2:5])]
	if !ok {
		return Date{}, false
	}
	year, err := strconv.Atoi(window[5:9])
	if err != nil {
		return Date{}, false
	}
	// time.Date normalises out-of-range days (31 FEB -> 3 MAR) like a UTC calendar.
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC)), true
}

// OrgCode returns the organization code prefix of id, or "" when id is too
// short to carry a date.
func OrgCode(id string) string {
	if len(id) < MinLength {
		return ""
	}
	return id[:OrgCodeLength]
}

// NewIdentifier composes an identifier for a record created at the given time.
// The organization code must be exactly OrgCodeLength characters so the date
// lands where ExtractDate reads it.
func NewIdentifier(orgCode string, at time.Time, serial int) (string, error) {
	if len(orgCode) != OrgCodeLength {
		return "", fmt.Errorf("organization code %q must be %d characters", orgCode, OrgCodeLength)
	}
	if serial < serialMin || serial > serialMax {
		return "", fmt.Errorf("serial %d out of range %d-%d", serial, serialMin, serialMax)
	}
	return fmt.Sprintf("%s%02d%s%04d%04d", orgCode, at.Day(), monthTokens[at.Month()-1], at.Year(), serial), nil
}

// RandomSerial returns a serial in the 1000-9999 range.
func RandomSerial() (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(serialMax-serialMin+1))
	if err != nil {
		return 0, fmt.Errorf("random serial: %w", err)
	}
	return serialMin + int(n.Int64()), nil
}
