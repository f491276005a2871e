package pii

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/0x-b4r47h/project-guardian/internal/logger"
)

// Classifier decides which categories a single field belongs to. It is
// pure: the result depends only on the field key, the field value, and
// the record-level fact of whether a sibling "name" key exists.
type Classifier struct {
	rules   []DetectionRule
	enabled map[Category]bool
	logger  *logger.Logger
}

// NewClassifier builds a classifier with the default rules and the given
// set of enabled detectors ("all" enables everything).
func NewClassifier(detectors []string, log *logger.Logger) (*Classifier, error) {
	c := &Classifier{
		rules:   DefaultRules(),
		enabled: make(map[Category]bool),
		logger:  log,
	}

	if err := c.configureDetectors(detectors); err != nil {
		return nil, fmt.Errorf("failed to configure detectors: %w", err)
	}

	log.Info("Field classifier initialized",
		zap.Int("total_rules", len(c.rules)),
		zap.Int("enabled_rules", c.countEnabled()),
	)

	return c, nil
}

// configureDetectors enables detectors by category name.
func (c *Classifier) configureDetectors(detectors []string) error {
	for _, rule := range c.rules {
		c.enabled[rule.Category] = false
	}

	for _, name := range detectors {
		if name == "all" {
			for _, rule := range c.rules {
				c.enabled[rule.Category] = true
			}
			continue
		}

		found := false
		for _, rule := range c.rules {
			if string(rule.Category) == name {
				c.enabled[rule.Category] = true
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("unknown detector: %s", name)
		}
	}

	return nil
}

// Classify returns every detection for a single field, in rule precedence
// order. A value may legitimately match more than one category; all
// matches are returned and the analyzer resolves precedence. hasNameKey
// tells the first_name/last_name structural trigger whether the record
// carries a sibling "name" field.
func (c *Classifier) Classify(key, value string, hasNameKey bool) []Detection {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	keyLower := strings.ToLower(key)
	var detections []Detection

	for _, rule := range c.rules {
		if !c.enabled[rule.Category] {
			continue
		}

		if c.keyTriggered(rule, keyLower, hasNameKey) {
			detections = append(detections, Detection{Category: rule.Category, FromKey: true})
			continue
		}

		if rule.Find != nil {
			if span := rule.Find(value); span != "" {
				detections = append(detections, Detection{Category: rule.Category, Span: span})
			}
		}
	}

	return detections
}

// keyTriggered evaluates the key-name predicate for a rule.
func (c *Classifier) keyTriggered(rule DetectionRule, keyLower string, hasNameKey bool) bool {
	if rule.Category == CategoryName {
		// Structural trigger: split name fields count even without
		// name-shaped text, unless the record has a "name" field.
		return (keyLower == "first_name" || keyLower == "last_name") && !hasNameKey
	}
	for _, k := range rule.Keys {
		if keyLower == k {
			return true
		}
	}
	return false
}

// EnabledCategories returns the enabled category names.
func (c *Classifier) EnabledCategories() []string {
	var out []string
	for _, rule := range c.rules {
		if c.enabled[rule.Category] {
			out = append(out, string(rule.Category))
		}
	}
	return out
}

func (c *Classifier) countEnabled() int {
	n := 0
	for _, on := range c.enabled {
		if on {
			n++
		}
	}
	return n
}
