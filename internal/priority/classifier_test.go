package priority

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"referral-triage-go/internal/model"
)

func TestClassifyAlta(t *testing.T) {
	c := NewClassifier()

	assert.Equal(t, model.PriorityAlta, c.Classify("Derivación URGENTE a cardiología", ""))
	assert.Equal(t, model.PriorityAlta, c.Classify("patient in critical condition", ""))
	assert.Equal(t, model.PriorityAlta, c.Classify("", "emergencia"))
}

func TestClassifyMedia(t *testing.T) {
	c := NewClassifier()

	assert.Equal(t, model.PriorityMedia, c.Classify("Cita preferente para el paciente", ""))
	assert.Equal(t, model.PriorityMedia, c.Classify("please schedule soon", ""))
}

func TestClassifyBaja(t *testing.T) {
	c := NewClassifier()

	assert.Equal(t, model.PriorityBaja, c.Classify("Control de rutina anual", ""))
	assert.Equal(t, model.PriorityBaja, c.Classify("routine follow-up visit", ""))
}

func TestHigherTierWins(t *testing.T) {
	c := NewClassifier()

	// Text carrying both an alta and a baja keyword is never downgraded.
	assert.Equal(t, model.PriorityAlta, c.Classify("seguimiento urgente tras el alta", ""))
	assert.Equal(t, model.PriorityAlta, c.Classify("revisión de control", "crítico"))
}

func TestDefaultIsMedia(t *testing.T) {
	c := NewClassifier()

	// No urgency signal at all defaults toward caution, not baja.
	assert.Equal(t, model.PriorityMedia, c.Classify("Adjunto informe del paciente", ""))
	assert.Equal(t, model.PriorityMedia, c.Classify("", ""))
}

func TestClassifyCaseInsensitive(t *testing.T) {
	c := NewClassifier()

	assert.Equal(t, model.PriorityAlta, c.Classify("URGENTE", ""))
	assert.Equal(t, model.PriorityBaja, c.Classify("RUTINA", ""))
}
