package model

import (
	"strings"
	"time"
)

// PayeePattern maps raw payee variants to one canonical payee name.
// A variant belongs to at most one canonical name at a time; the pattern
// store enforces this when recording.
type PayeePattern struct {
	LastUsedAt    time.Time
	CanonicalName string
	Variants      []string // lowercase, unique within the pattern
	UseCount      int
}

// Confidence grows monotonically toward 1.0 with use and is never
// explicitly decayed.
func (p *PayeePattern) Confidence() float64 {
	return float64(p.UseCount) / float64(p.UseCount+2)
}

// HasVariant reports whether the pattern already owns the variant.
func (p *PayeePattern) HasVariant(variant string) bool {
	variant = strings.ToLower(strings.TrimSpace(variant))
	for _, v := range p.Variants {
		if v == variant {
			return true
		}
	}
	return false
}

// AddVariant records a new lowercase variant; duplicates are ignored.
func (p *PayeePattern) AddVariant(variant string) {
	variant = strings.ToLower(strings.TrimSpace(variant))
	if variant == "" || p.HasVariant(variant) {
		return
	}
	p.Variants = append(p.Variants, variant)
}

// RemoveVariant drops a variant, returning true if it was present.
func (p *PayeePattern) RemoveVariant(variant string) bool {
	variant = strings.ToLower(strings.TrimSpace(variant))
	for i, v := range p.Variants {
		if v == variant {
			p.Variants = append(p.Variants[:i], p.Variants[i+1:]...)
			return true
		}
	}
	return false
}
