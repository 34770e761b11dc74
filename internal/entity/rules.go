package entity

import (
	"regexp"
	"strconv"
	"strings"
)

// Specialties is the closed vocabulary for the specialty field. Matches
// are canonicalized to these exact values.
var Specialties = []string{
	"cardiologia",
	"neurologia",
	"oncologia",
	"traumatologia",
	"pediatria",
	"dermatologia",
	"oftalmologia",
	"ginecologia",
	"urologia",
	"psiquiatria",
	"endocrinologia",
	"neumologia",
	"digestivo",
	"medicina interna",
}

// specialtyAliases maps accepted spellings (accented, English) onto the
// canonical vocabulary entry.
var specialtyAliases = map[string]string{
	"cardiología":       "cardiologia",
	"cardiology":        "cardiologia",
	"neurología":        "neurologia",
	"neurology":         "neurologia",
	"oncología":         "oncologia",
	"oncology":          "oncologia",
	"traumatología":     "traumatologia",
	"traumatology":      "traumatologia",
	"pediatría":         "pediatria",
	"pediatrics":        "pediatria",
	"dermatología":      "dermatologia",
	"dermatology":       "dermatologia",
	"oftalmología":      "oftalmologia",
	"ophthalmology":     "oftalmologia",
	"ginecología":       "ginecologia",
	"gynecology":        "ginecologia",
	"urología":          "urologia",
	"urology":           "urologia",
	"psiquiatría":       "psiquiatria",
	"psychiatry":        "psiquiatria",
	"endocrinología":    "endocrinologia",
	"endocrinology":     "endocrinologia",
	"neumología":        "neumologia",
	"pulmonology":       "neumologia",
	"gastroenterología": "digestivo",
	"gastroenterology":  "digestivo",
	"internal medicine": "medicina interna",
}

// specialtyPattern is built from the vocabulary plus aliases so a bare
// mention anywhere in the text still resolves the field.
var specialtyPattern = buildSpecialtyPattern()

func buildSpecialtyPattern() *regexp.Regexp {
	terms := make([]string, 0, len(Specialties)+len(specialtyAliases))
	for _, s := range Specialties {
		terms = append(terms, regexp.QuoteMeta(s))
	}
	for alias := range specialtyAliases {
		terms = append(terms, regexp.QuoteMeta(alias))
	}
	// Longest-first so "medicina interna" beats a shorter overlap.
	sortByLengthDesc(terms)
	return regexp.MustCompile(`(?i)\b(` + strings.Join(terms, "|") + `)\b`)
}

func sortByLengthDesc(terms []string) {
	for i := 1; i < len(terms); i++ {
		for j := i; j > 0 && len(terms[j]) > len(terms[j-1]); j-- {
			terms[j], terms[j-1] = terms[j-1], terms[j]
		}
	}
}

// CanonicalSpecialty maps a raw specialty mention onto the closed
// vocabulary. Unknown values are rejected.
func CanonicalSpecialty(raw string) (string, bool) {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	if alias, ok := specialtyAliases[lowered]; ok {
		return alias, true
	}
	for _, s := range Specialties {
		if lowered == s {
			return s, true
		}
	}
	return "", false
}

// validAge keeps ages inside the documented 0-150 bound.
func validAge(raw string) (string, bool) {
	age, err := strconv.Atoi(raw)
	if err != nil || age < 0 || age > 150 {
		return "", false
	}
	return strconv.Itoa(age), true
}

// DefaultRules returns the bilingual (Spanish + English) rule table used
// for clinical referral emails. Group order fixes the field resolution
// order; pattern order within a group fixes the tie-break.
func DefaultRules() []Group {
	return []Group{
		{
			Field: FieldPatientID,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)(?:n[º°o]?\s*(?:de\s+)?historia(?:\s+cl[ií]nica)?|nhc)\s*[:#]?\s*([A-Z]{0,3}\d{4,12})`),
				regexp.MustCompile(`(?i)(?:id\.?\s*(?:de\s+)?paciente|patient\s+id)\s*[:#]?\s*([A-Z0-9][A-Z0-9-]{3,19})`),
				regexp.MustCompile(`(?i)\bdni\s*[:#]?\s*(\d{7,8}-?[A-Z]?)`),
			},
		},
		{
			Field: FieldPatientName,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)(?:nombre\s+del\s+paciente|patient\s+name)\s*:\s*([\p{Lu}][\p{L}.'-]+(?:\s+[\p{Lu}][\p{L}.'-]+){1,3})`),
				regexp.MustCompile(`(?i)paciente\s*:?\s+([\p{Lu}][\p{L}.'-]+(?:\s+[\p{Lu}][\p{L}.'-]+){1,3})`),
				regexp.MustCompile(`(?i)(?:nombre|name)\s*:\s*([\p{Lu}][\p{L}.'-]+(?:\s+[\p{Lu}][\p{L}.'-]+){1,3})`),
			},
		},
		{
			Field: FieldAge,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)(?:edad|age)\s*:?\s*(\d{1,3})\b`),
				regexp.MustCompile(`(?i)\b(\d{1,3})\s*a[ñn]os\b`),
				regexp.MustCompile(`(?i)\b(\d{1,3})\s*years?\s+old\b`),
			},
			Normalize: validAge,
		},
		{
			Field: FieldDiagnosis,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)(?:diagn[óo]stico(?:\s+principal)?|impresi[óo]n\s+diagn[óo]stica)\s*:\s*([^\n\r]{3,200})`),
				regexp.MustCompile(`(?i)(?:diagnosis)\s*:\s*([^\n\r]{3,200})`),
				regexp.MustCompile(`(?i)\bdx\.?\s*:\s*([^\n\r]{3,200})`),
			},
		},
		{
			Field: FieldSpecialty,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)(?:especialidad|specialty)\s*:\s*([^\n\r]{3,60})`),
				regexp.MustCompile(`(?i)(?:derivaci[óo]n|derivar|referir|referral)\s+a(?:l\s+servicio\s+de)?\s+([\p{L} ]{3,40})`),
				specialtyPattern,
			},
			Normalize: CanonicalSpecialty,
		},
		{
			Field: FieldUrgency,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)(?:urgencia|prioridad|urgency|priority)\s*:\s*([^\n\r]{2,80})`),
				regexp.MustCompile(`(?i)\b(muy\s+urgente|urgente|emergencia|cr[ií]tico|preferente|rutinario|rutina)\b`),
			},
		},
	}
}
