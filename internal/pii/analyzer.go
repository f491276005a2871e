package pii

import (
	"strings"

	"go.uber.org/zap"

	"github.com/0x-b4r47h/project-guardian/internal/logger"
)

// combinatorialThreshold is the number of distinct combinatorial
// categories that must co-occur in one record before they become PII.
const combinatorialThreshold = 2

// Analyzer applies the field classifier across a whole record,
// accumulates per-category evidence, applies the combinatorial
// disclosure rule, and produces a redacted copy. It holds no mutable
// state and is safe for concurrent use.
type Analyzer struct {
	classifier *Classifier
	logger     *logger.Logger
}

// NewAnalyzer builds an analyzer with the given enabled detectors.
func NewAnalyzer(detectors []string, log *logger.Logger) (*Analyzer, error) {
	classifier, err := NewClassifier(detectors, log)
	if err != nil {
		return nil, err
	}
	return &Analyzer{classifier: classifier, logger: log}, nil
}

// Classifier exposes the underlying field classifier.
func (a *Analyzer) Classifier() *Classifier {
	return a.classifier
}

// pendingField is a field bucketed under one or more combinatorial
// categories, awaiting the post-pass co-occurrence decision.
type pendingField struct {
	key        string
	value      string
	detections []Detection // combinatorial detections, precedence order
	masked     bool        // already redacted by a standalone match
}

// Analyze classifies every field of the record and returns the verdict
// plus a redacted copy. The redacted record has exactly the input's key
// set and order; a field is only ever replaced when it contributed to
// the verdict.
func (a *Analyzer) Analyze(rec Record) Verdict {
	redacted := rec.Clone()
	hasNameKey := rec.Has("name")

	hasPII := false
	var findings []Finding
	var pending []pendingField
	buckets := make(map[Category][]string)

	for _, key := range rec.Keys() {
		v, _ := rec.Get(key)
		if v.Null || strings.TrimSpace(v.Str) == "" {
			continue // empty and null fields pass through unchanged
		}
		value := strings.TrimSpace(v.Str)

		detections := a.classifier.Classify(key, value, hasNameKey)
		if len(detections) == 0 {
			continue
		}

		var combinatorial []Detection
		maskedStandalone := false
		for _, det := range detections {
			if det.Category.Class() == ClassStandalone {
				// First standalone match wins the mask; the record is PII
				// regardless of anything else.
				if !maskedStandalone {
					hasPII = true
					redacted.Set(key, Mask(value, det.Category))
					findings = append(findings, Finding{Field: key, Category: det.Category, FromKey: det.FromKey})
					maskedStandalone = true
				}
				continue
			}
			combinatorial = append(combinatorial, det)
			buckets[det.Category] = append(buckets[det.Category], key)
		}

		if len(combinatorial) > 0 {
			pending = append(pending, pendingField{
				key:        key,
				value:      value,
				detections: combinatorial,
				masked:     maskedStandalone,
			})
		}
	}

	// Combinatorial disclosure: two or more distinct categories across
	// the record make every bucketed field PII.
	if len(buckets) >= combinatorialThreshold {
		hasPII = true
		for _, pf := range pending {
			for _, det := range pf.detections {
				findings = append(findings, Finding{Field: pf.key, Category: det.Category, FromKey: det.FromKey})
			}
			if !pf.masked {
				redacted.Set(pf.key, Mask(pf.value, pf.detections[0].Category))
			}
		}
	}

	verdict := Verdict{
		HasPII:     hasPII,
		Redacted:   redacted,
		Findings:   findings,
		Categories: distinctCategories(findings),
	}

	if hasPII {
		a.logger.Debug("Record flagged as PII",
			zap.Int("findings", len(findings)),
			zap.Int("combinatorial_buckets", len(buckets)),
		)
	}

	return verdict
}

// distinctCategories collapses findings to their categories, keeping
// detection precedence order.
func distinctCategories(findings []Finding) []Category {
	seen := make(map[Category]bool, len(findings))
	for _, f := range findings {
		seen[f.Category] = true
	}
	var out []Category
	for _, c := range AllCategories {
		if seen[c] {
			out = append(out, c)
		}
	}
	return out
}
