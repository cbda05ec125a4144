// Package orgkey canonicalises organization display names into join keys.
package orgkey

import "strings"

// Normalize trims name, collapses internal whitespace runs to a single space and
// lowercases it. Two names with the same key are the same organization.
func Normalize(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
