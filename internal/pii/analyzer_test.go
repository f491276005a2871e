package pii

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/0x-b4r47h/project-guardian/internal/logger"
)

func newTestAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer([]string{"all"}, logger.Nop())
	if err != nil {
		t.Fatalf("NewAnalyzer() error = %v", err)
	}
	return a
}

func recordFromJSON(t *testing.T, data string) Record {
	t.Helper()
	var rec Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		t.Fatalf("failed to parse record %s: %v", data, err)
	}
	return rec
}

func fieldValue(t *testing.T, rec Record, key string) string {
	t.Helper()
	v, ok := rec.Get(key)
	if !ok {
		t.Fatalf("field %q missing from record", key)
	}
	return v.Str
}

func TestAnalyzeStandalone(t *testing.T) {
	a := newTestAnalyzer(t)

	tests := []struct {
		name    string
		input   string
		field   string
		masked  string
		flagged bool
	}{
		{"bare phone", `{"phone":"9876543210"}`, "phone", "98XXXXXX10", true},
		{"phone by value in unrelated key", `{"note":"9876543210"}`, "note", "98XXXXXX10", true},
		{"contiguous aadhar", `{"aadhar":"234567890123"}`, "aadhar", "XXXXXXXX0123", true},
		{"grouped aadhar keeps grouping", `{"id":"2345 6789 0123"}`, "id", "XXXX XXXX 0123", true},
		{"passport", `{"passport":"A1234567"}`, "passport", "[REDACTED_PASSPORT]", true},
		{"upi handle", `{"upi_id":"john.doe@okaxis"}`, "upi_id", "johXXX@okaxis", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := a.Analyze(recordFromJSON(t, tt.input))
			if verdict.HasPII != tt.flagged {
				t.Errorf("HasPII = %v, want %v", verdict.HasPII, tt.flagged)
			}
			if got := fieldValue(t, verdict.Redacted, tt.field); got != tt.masked {
				t.Errorf("redacted %s = %q, want %q", tt.field, got, tt.masked)
			}
		})
	}
}

func TestAnalyzeCombinatorial(t *testing.T) {
	a := newTestAnalyzer(t)

	t.Run("name plus email is PII", func(t *testing.T) {
		verdict := a.Analyze(recordFromJSON(t, `{"name":"Rahul Sharma","email":"rahul@x.com"}`))
		if !verdict.HasPII {
			t.Fatal("expected record to be flagged")
		}
		if got := fieldValue(t, verdict.Redacted, "name"); got != "RXXX SXXX" {
			t.Errorf("redacted name = %q, want %q", got, "RXXX SXXX")
		}
		if got := fieldValue(t, verdict.Redacted, "email"); got != "rahXXX@x.com" {
			t.Errorf("redacted email = %q, want %q", got, "rahXXX@x.com")
		}
	})

	t.Run("email alone is not PII", func(t *testing.T) {
		verdict := a.Analyze(recordFromJSON(t, `{"email":"rahul@x.com"}`))
		if verdict.HasPII {
			t.Fatal("single combinatorial category should not be flagged")
		}
		if got := fieldValue(t, verdict.Redacted, "email"); got != "rahul@x.com" {
			t.Errorf("unflagged field was modified: %q", got)
		}
	})

	t.Run("city alone is not PII", func(t *testing.T) {
		verdict := a.Analyze(recordFromJSON(t, `{"city":"Mumbai"}`))
		if verdict.HasPII {
			t.Fatal("single combinatorial category should not be flagged")
		}
		if got := fieldValue(t, verdict.Redacted, "city"); got != "Mumbai" {
			t.Errorf("unflagged field was modified: %q", got)
		}
	})

	t.Run("split name fields fill one bucket only", func(t *testing.T) {
		verdict := a.Analyze(recordFromJSON(t, `{"first_name":"Raj","last_name":"Kumar"}`))
		if verdict.HasPII {
			t.Fatal("two fields in one category should not be flagged")
		}
	})

	t.Run("split name plus city is PII", func(t *testing.T) {
		verdict := a.Analyze(recordFromJSON(t, `{"first_name":"Raj","city":"Mumbai"}`))
		if !verdict.HasPII {
			t.Fatal("name and address categories together should be flagged")
		}
		// Key-only trigger with no name-shaped text gets the placeholder.
		if got := fieldValue(t, verdict.Redacted, "first_name"); got != "XXXX" {
			t.Errorf("redacted first_name = %q, want %q", got, "XXXX")
		}
		if got := fieldValue(t, verdict.Redacted, "city"); got != "[REDACTED_ADDRESS]" {
			t.Errorf("redacted city = %q, want %q", got, "[REDACTED_ADDRESS]")
		}
	})

	t.Run("device and ip get sentinel masks", func(t *testing.T) {
		verdict := a.Analyze(recordFromJSON(t, `{"device_id":"ABC-123","ip_address":"10.0.0.1"}`))
		if !verdict.HasPII {
			t.Fatal("two combinatorial categories should be flagged")
		}
		if got := fieldValue(t, verdict.Redacted, "device_id"); got != "[REDACTED_DEVICE_ID]" {
			t.Errorf("redacted device_id = %q", got)
		}
		if got := fieldValue(t, verdict.Redacted, "ip_address"); got != "[REDACTED_IP_ADDRESS]" {
			t.Errorf("redacted ip_address = %q", got)
		}
	})

	t.Run("sibling name key suppresses split fields", func(t *testing.T) {
		verdict := a.Analyze(recordFromJSON(t, `{"name":"Rahul Sharma","first_name":"Rahul","city":"Mumbai"}`))
		if !verdict.HasPII {
			t.Fatal("name and address categories together should be flagged")
		}
		// first_name does not count with a sibling "name" key and stays
		// untouched (its value has no name-shaped text either).
		if got := fieldValue(t, verdict.Redacted, "first_name"); got != "Rahul" {
			t.Errorf("first_name = %q, want untouched original", got)
		}
	})
}

func TestAnalyzeStandaloneWithCombinatorialCredit(t *testing.T) {
	a := newTestAnalyzer(t)

	// An ambiguous @-string is a standalone payment handle and still
	// credits the email bucket for co-occurrence counting. The standalone
	// mask wins the field.
	verdict := a.Analyze(recordFromJSON(t, `{"email":"john@example.com"}`))
	if !verdict.HasPII {
		t.Fatal("payment-handle-shaped value should be flagged standalone")
	}
	if got := fieldValue(t, verdict.Redacted, "email"); got != "johXXX@example.com" {
		t.Errorf("redacted email = %q, want %q", got, "johXXX@example.com")
	}

	found := map[Category]bool{}
	for _, f := range verdict.Findings {
		found[f.Category] = true
	}
	if !found[CategoryPaymentHandle] {
		t.Error("expected a payment_handle finding")
	}
}

func TestAnalyzePassthrough(t *testing.T) {
	a := newTestAnalyzer(t)

	t.Run("clean record is untouched", func(t *testing.T) {
		verdict := a.Analyze(recordFromJSON(t, `{"product":"laptop","qty":"2"}`))
		if verdict.HasPII {
			t.Fatal("clean record should not be flagged")
		}
		if got := fieldValue(t, verdict.Redacted, "product"); got != "laptop" {
			t.Errorf("product = %q, want untouched", got)
		}
	})

	t.Run("empty and null fields pass through", func(t *testing.T) {
		rec := NewRecord()
		rec.Set("phone", "")
		rec.SetNull("aadhar")
		rec.Set("note", "   ")

		verdict := a.Analyze(rec)
		if verdict.HasPII {
			t.Fatal("empty fields should never be flagged")
		}
		if v, _ := verdict.Redacted.Get("aadhar"); !v.Null {
			t.Error("null field should stay null")
		}
		if v, _ := verdict.Redacted.Get("note"); v.Str != "   " {
			t.Errorf("whitespace field = %q, want unchanged", v.Str)
		}
	})

	t.Run("key set and order preserved", func(t *testing.T) {
		rec := recordFromJSON(t, `{"z":"1","phone":"9876543210","a":"2"}`)
		verdict := a.Analyze(rec)
		if !reflect.DeepEqual(verdict.Redacted.Keys(), []string{"z", "phone", "a"}) {
			t.Errorf("redacted keys = %v, want input order", verdict.Redacted.Keys())
		}
	})

	t.Run("input record is not mutated", func(t *testing.T) {
		rec := recordFromJSON(t, `{"phone":"9876543210"}`)
		a.Analyze(rec)
		if got := fieldValue(t, rec, "phone"); got != "9876543210" {
			t.Errorf("input mutated to %q", got)
		}
	})
}

func TestAnalyzePhoneLengthPreserved(t *testing.T) {
	a := newTestAnalyzer(t)

	for _, value := range []string{"9876543210", "+919876543210", "98765 43210", "98765-43210"} {
		rec := NewRecord()
		rec.Set("phone", value)
		verdict := a.Analyze(rec)
		got := fieldValue(t, verdict.Redacted, "phone")
		if len(got) != len(value) {
			t.Errorf("mask of %q changed length: %q", value, got)
		}
	}
}

func TestVerdictCategories(t *testing.T) {
	a := newTestAnalyzer(t)

	verdict := a.Analyze(recordFromJSON(t, `{"name":"Rahul Sharma","email":"rahul@x.com","phone":"9876543210"}`))
	want := []Category{CategoryPhone, CategoryEmail, CategoryName}
	if !reflect.DeepEqual(verdict.Categories, want) {
		t.Errorf("Categories = %v, want %v", verdict.Categories, want)
	}
}
