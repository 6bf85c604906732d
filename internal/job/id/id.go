// Package id generates job identifiers.
package id

import "github.com/google/uuid"

// Generate returns a new job ID of the form dl-<uuid v4>.
func Generate() string {
	return "dl-" + uuid.NewString()
}

// Valid reports whether s looks like an ID produced by Generate.
func Valid(s string) bool {
	if len(s) < 3 || s[:3] != "dl-" {
		return false
	}
	_, err := uuid.Parse(s[3:])
	return err == nil
}
