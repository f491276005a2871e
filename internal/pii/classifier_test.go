package pii

import (
	"testing"

	"github.com/0x-b4r47h/project-guardian/internal/logger"
)

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	c, err := NewClassifier([]string{"all"}, logger.Nop())
	if err != nil {
		t.Fatalf("NewClassifier() error = %v", err)
	}
	return c
}

func categories(detections []Detection) map[Category]bool {
	out := make(map[Category]bool, len(detections))
	for _, d := range detections {
		out[d.Category] = true
	}
	return out
}

func TestClassifyValuePatterns(t *testing.T) {
	c := newTestClassifier(t)

	tests := []struct {
		name  string
		key   string
		value string
		want  []Category
	}{
		{"bare 10-digit phone", "field", "9876543210", []Category{CategoryPhone}},
		{"phone with +91 prefix", "field", "+919876543210", []Category{CategoryPhone, CategoryNationalID}},
		{"phone with +91 and space", "field", "+91 9876543210", []Category{CategoryPhone}},
		{"phone with 91 prefix", "field", "919876543210", []Category{CategoryPhone, CategoryNationalID}},
		{"phone with separators", "field", "98765-43210", []Category{CategoryPhone}},
		{"phone in parentheses grouping", "field", "(98765) 43210", []Category{CategoryPhone}},
		{"ten digits starting with 1 needs stripping", "field", "12345 67890", []Category{CategoryPhone}},
		{"nine digits is not a phone", "field", "987654321", nil},
		{"eleven digits is not a phone", "field", "98765432101", nil},

		{"contiguous aadhar", "field", "234567890123", []Category{CategoryNationalID}},
		{"grouped aadhar", "field", "2345 6789 0123", []Category{CategoryNationalID}},
		{"aadhar starting with 1 rejected", "field", "134567890123", nil},
		{"aadhar starting with 0 rejected", "field", "034567890123", nil},

		{"passport uppercase", "field", "A1234567", []Category{CategoryPassport}},
		{"passport lowercase", "field", "p9876543", []Category{CategoryPassport}},
		{"passport with too many digits", "field", "A12345678", nil},

		{"upi handle", "field", "rahul.sharma@okaxis", []Category{CategoryPaymentHandle}},
		{"numeric upi handle", "field", "9876543210@ybl", []Category{CategoryPhone, CategoryPaymentHandle}},
		{"email with short domain label", "field", "rahul@x.com", []Category{CategoryEmail}},
		{"email with long domain matches both", "field", "john@example.com", []Category{CategoryPaymentHandle, CategoryEmail}},

		{"capitalized name", "field", "Rahul Sharma", []Category{CategoryName}},
		{"stoplisted span is not a name", "field", "New York", nil},
		{"mixed span keeps name", "field", "York Sharma", []Category{CategoryName}},
		{"lowercase words are not a name", "field", "rahul sharma", nil},

		{"plain text", "field", "hello world", nil},
		{"empty value", "field", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := categories(c.Classify(tt.key, tt.value, false))
			if len(got) != len(tt.want) {
				t.Fatalf("Classify(%q, %q) categories = %v, want %v", tt.key, tt.value, got, tt.want)
			}
			for _, cat := range tt.want {
				if !got[cat] {
					t.Errorf("Classify(%q, %q) missing category %s", tt.key, tt.value, cat)
				}
			}
		})
	}
}

func TestClassifyKeyTriggers(t *testing.T) {
	c := newTestClassifier(t)

	tests := []struct {
		name string
		key  string
		want Category
	}{
		{"phone key", "phone", CategoryPhone},
		{"contact key", "contact", CategoryPhone},
		{"aadhar key", "aadhar", CategoryNationalID},
		{"passport key", "passport", CategoryPassport},
		{"upi_id key", "upi_id", CategoryPaymentHandle},
		{"email key", "email", CategoryEmail},
		{"address key", "address", CategoryAddress},
		{"city key", "city", CategoryAddress},
		{"pin_code key", "pin_code", CategoryAddress},
		{"state key", "state", CategoryAddress},
		{"device_id key", "device_id", CategoryDeviceID},
		{"ip_address key", "ip_address", CategoryIPAddress},
		{"uppercase key matches too", "PHONE", CategoryPhone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			detections := c.Classify(tt.key, "free form text", false)
			found := false
			for _, d := range detections {
				if d.Category == tt.want {
					if !d.FromKey {
						t.Errorf("detection for key %q should be key-triggered", tt.key)
					}
					found = true
				}
			}
			if !found {
				t.Errorf("Classify(%q) = %v, want category %s", tt.key, detections, tt.want)
			}
		})
	}
}

func TestClassifySplitNameKeys(t *testing.T) {
	c := newTestClassifier(t)

	t.Run("first_name counts without sibling name key", func(t *testing.T) {
		detections := c.Classify("first_name", "raj", false)
		if !categories(detections)[CategoryName] {
			t.Fatalf("first_name without sibling name should trigger, got %v", detections)
		}
	})

	t.Run("last_name counts without sibling name key", func(t *testing.T) {
		detections := c.Classify("last_name", "kumar", false)
		if !categories(detections)[CategoryName] {
			t.Fatalf("last_name without sibling name should trigger, got %v", detections)
		}
	})

	t.Run("first_name suppressed by sibling name key", func(t *testing.T) {
		detections := c.Classify("first_name", "raj", true)
		if categories(detections)[CategoryName] {
			t.Fatalf("first_name with sibling name should not trigger, got %v", detections)
		}
	})

	t.Run("name key needs name-shaped value", func(t *testing.T) {
		if got := c.Classify("name", "raj", false); categories(got)[CategoryName] {
			t.Fatalf("single lowercase word should not be a name, got %v", got)
		}
		if got := c.Classify("name", "Raj Kumar", false); !categories(got)[CategoryName] {
			t.Fatalf("two capitalized words should be a name, got %v", got)
		}
	})
}

func TestConfigureDetectors(t *testing.T) {
	t.Run("unknown detector is rejected", func(t *testing.T) {
		if _, err := NewClassifier([]string{"sonar"}, logger.Nop()); err == nil {
			t.Fatal("expected error for unknown detector")
		}
	})

	t.Run("subset of detectors", func(t *testing.T) {
		c, err := NewClassifier([]string{"phone", "email"}, logger.Nop())
		if err != nil {
			t.Fatalf("NewClassifier() error = %v", err)
		}

		if got := c.Classify("field", "234567890123", false); len(got) != 0 {
			t.Errorf("disabled aadhar detector still fired: %v", got)
		}
		if got := c.Classify("field", "9876543210", false); !categories(got)[CategoryPhone] {
			t.Errorf("enabled phone detector did not fire: %v", got)
		}

		enabled := c.EnabledCategories()
		if len(enabled) != 2 {
			t.Errorf("EnabledCategories() = %v, want 2 entries", enabled)
		}
	})
}
