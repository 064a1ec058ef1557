package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPayeePatternConfidence(t *testing.T) {
	p := PayeePattern{CanonicalName: "Starbucks"}
	assert.InDelta(t, 0.0, p.Confidence(), 1e-9)

	p.UseCount = 1
	assert.InDelta(t, 1.0/3.0, p.Confidence(), 1e-9)

	p.UseCount = 2
	assert.InDelta(t, 0.5, p.Confidence(), 1e-9)

	// Approaches but never reaches 1.0.
	p.UseCount = 1000
	assert.Less(t, p.Confidence(), 1.0)
	assert.Greater(t, p.Confidence(), 0.99)
}

func TestPayeePatternVariants(t *testing.T) {
	p := PayeePattern{CanonicalName: "Starbucks"}

	p.AddVariant("STARBUCKS #123")
	p.AddVariant("  Starbucks #123 ") // duplicate after normalization
	p.AddVariant("sbux seattle")

	assert.Equal(t, []string{"starbucks #123", "sbux seattle"}, p.Variants)
	assert.True(t, p.HasVariant("Starbucks #123"))
	assert.False(t, p.HasVariant("starbucks #999"))

	assert.True(t, p.RemoveVariant("SBUX SEATTLE"))
	assert.False(t, p.RemoveVariant("sbux seattle"))
	assert.Equal(t, []string{"starbucks #123"}, p.Variants)
}
