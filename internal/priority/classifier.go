// Package priority maps urgency signals in referral text onto one of
// three tiers: alta, media, baja.
package priority

import (
	"strings"

	"referral-triage-go/internal/model"
)

// tier couples a priority value with its keyword set. Tiers are checked
// in declaration order, highest urgency first, so text matching both an
// alta and a baja keyword is never downgraded.
type tier struct {
	priority string
	keywords []string
}

// Classifier scans combined referral text for tier keywords.
type Classifier struct {
	tiers []tier
}

// NewClassifier creates a classifier with the default bilingual keyword
// sets.
func NewClassifier() *Classifier {
	return &Classifier{
		tiers: []tier{
			{
				priority: model.PriorityAlta,
				keywords: []string{
					"urgente", "urgent", "emergencia", "emergency",
					"crítico", "critico", "critical", "inmediato",
					"immediate", "grave", "severe", "prioritario",
				},
			},
			{
				priority: model.PriorityMedia,
				keywords: []string{
					"preferente", "pronto", "soon", "moderado",
					"moderate", "prioridad media",
				},
			},
			{
				priority: model.PriorityBaja,
				keywords: []string{
					"rutina", "rutinario", "routine", "control",
					"seguimiento", "follow-up", "revisión", "revision",
					"no urgente", "normal",
				},
			},
		},
	}
}

// Classify returns the priority tier for the given full text and
// extracted urgency phrase. Matching is case-insensitive; the first tier
// with at least one keyword occurrence wins; no match defaults to media.
func (c *Classifier) Classify(fullText, urgencyPhrase string) string {
	haystack := strings.ToLower(fullText + " " + urgencyPhrase)

	for _, t := range c.tiers {
		for _, kw := range t.keywords {
			if strings.Contains(haystack, kw) {
				return t.priority
			}
		}
	}

	return model.PriorityMedia
}
