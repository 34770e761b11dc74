// Package entity recovers structured referral fields from free text by
// applying an ordered table of labeled pattern groups. Within a group the
// first matching pattern wins; groups are independent; unmatched fields
// stay unset. Extraction is deterministic for identical input.
package entity

import (
	"regexp"
	"strconv"
	"strings"
)

// Record holds the fields recovered from one referral's combined text.
// All fields are optional; priority is resolved downstream and is not
// part of extraction.
type Record struct {
	PatientID     *string
	PatientName   *string
	Age           *int
	Diagnosis     *string
	Specialty     *string
	UrgencyPhrase *string
}

// Field labels for rule groups.
const (
	FieldPatientID   = "patient_id"
	FieldPatientName = "patient_name"
	FieldAge         = "age"
	FieldDiagnosis   = "diagnosis"
	FieldSpecialty   = "specialty"
	FieldUrgency     = "urgency"
)

// Group is one labeled set of candidate patterns for a single field,
// tried in declaration order. Each pattern must expose the field value
// as its first capture group. Normalize may reject a raw match by
// returning ok=false, in which case later patterns are still tried.
type Group struct {
	Field     string
	Patterns  []*regexp.Regexp
	Normalize func(raw string) (string, bool)
}

// Extractor applies an ordered rule table over referral text.
type Extractor struct {
	groups []Group
}

// NewExtractor creates an extractor with the default bilingual rule set.
func NewExtractor() *Extractor {
	return &Extractor{groups: DefaultRules()}
}

// NewExtractorWithRules creates an extractor with a custom rule table.
// Tests use this to add or replace rules without touching control flow.
func NewExtractorWithRules(groups []Group) *Extractor {
	return &Extractor{groups: groups}
}

// Extract runs every rule group over the text and returns the partial
// record. The input is matched as-is; patterns carry their own
// case-insensitivity.
func (e *Extractor) Extract(text string) Record {
	var rec Record

	for _, group := range e.groups {
		value, ok := matchGroup(group, text)
		if !ok {
			continue
		}

		switch group.Field {
		case FieldPatientID:
			rec.PatientID = &value
		case FieldPatientName:
			rec.PatientName = &value
		case FieldAge:
			if age, err := strconv.Atoi(value); err == nil {
				rec.Age = &age
			}
		case FieldDiagnosis:
			rec.Diagnosis = &value
		case FieldSpecialty:
			rec.Specialty = &value
		case FieldUrgency:
			rec.UrgencyPhrase = &value
		}
	}

	return rec
}

// matchGroup tries each pattern of a group in order and returns the
// normalized value of the first acceptable match.
func matchGroup(group Group, text string) (string, bool) {
	for _, pattern := range group.Patterns {
		m := pattern.FindStringSubmatch(text)
		if len(m) < 2 {
			continue
		}
		value := collapseSpaces(strings.TrimSpace(m[1]))
		if value == "" {
			continue
		}
		if group.Normalize != nil {
			normalized, ok := group.Normalize(value)
			if !ok {
				continue
			}
			value = normalized
		}
		return value, true
	}
	return "", false
}

var spacesRe = regexp.MustCompile(`\s+`)

func collapseSpaces(s string) string {
	return spacesRe.ReplaceAllString(s, " ")
}
