package pii

// Category identifies a kind of personally identifiable information.
type Category string

const (
	CategoryPhone         Category = "phone"
	CategoryNationalID    Category = "national_id"
	CategoryPassport      Category = "passport"
	CategoryPaymentHandle Category = "payment_handle"
	CategoryEmail         Category = "email"
	CategoryName          Category = "name"
	CategoryAddress       Category = "address"
	CategoryDeviceID      Category = "device_id"
	CategoryIPAddress     Category = "ip_address"
)

// Class says whether a category is PII on its own or only in combination
// with other combinatorial categories in the same record.
type Class int

const (
	ClassStandalone Class = iota
	ClassCombinatorial
)

// AllCategories lists every category in detection precedence order.
// Standalone categories come first; within each class the order is the
// tie-break used when a value matches more than one pattern.
var AllCategories = []Category{
	CategoryPhone,
	CategoryNationalID,
	CategoryPassport,
	CategoryPaymentHandle,
	CategoryEmail,
	CategoryName,
	CategoryAddress,
	CategoryDeviceID,
	CategoryIPAddress,
}

// Class returns the category's disclosure class.
func (c Category) Class() Class {
	switch c {
	case CategoryPhone, CategoryNationalID, CategoryPassport, CategoryPaymentHandle:
		return ClassStandalone
	default:
		return ClassCombinatorial
	}
}

// Detection is the result of classifying a single field.
type Detection struct {
	Category Category `json:"category"`
	Span     string   `json:"span,omitempty"` // matched text, empty for key-only triggers
	FromKey  bool     `json:"from_key"`       // triggered by the field key, not the value shape
}

// Finding records one field's contribution to a verdict.
type Finding struct {
	Field    string   `json:"field"`
	Category Category `json:"category"`
	FromKey  bool     `json:"from_key"`
}

// Verdict is the outcome of analyzing one record.
type Verdict struct {
	HasPII     bool       `json:"is_pii"`
	Redacted   Record     `json:"redacted"`
	Findings   []Finding  `json:"findings,omitempty"`
	Categories []Category `json:"categories,omitempty"`
}
