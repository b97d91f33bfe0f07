package quality

import (
	"strings"
	"testing"
)

var allRules = ValidationConfig{
	RequireValidPhone: true,
	RequireValidDOB:   true,
	RequireName:       true,
}

func TestValidatePatientRow(t *testing.T) {
	tests := []struct {
		name string
		data map[string]interface{}
		cfg  ValidationConfig
		want string
	}{
		{
			name: "complete row passes",
			data: map[string]interface{}{
				"firstName": "John",
				"lastName":  "Smith",
				"dob":       "1946-03-15",
				"phone":     "(555) 123-4567",
			},
			cfg:  allRules,
			want: "",
		},
		{
			name: "short phone rejected",
			data: map[string]interface{}{
				"firstName": "John",
				"lastName":  "Smith",
				"dob":       "1946-03-15",
				"phone":     "123",
			},
			cfg:  allRules,
			want: "phone number has fewer than 5 digits",
		},
		{
			name: "no phone but named row passes",
			data: map[string]interface{}{
				"firstName": "John",
				"lastName":  "Smith",
				"dob":       "1946-03-15",
			},
			cfg:  allRules,
			want: "",
		},
		{
			name: "missing dob allowed with usable phone",
			data: map[string]interface{}{
				"firstName": "John",
				"phone":     "5551234567",
			},
			cfg:  allRules,
			want: "",
		},
		{
			name: "missing dob without other identifiers",
			data: map[string]interface{}{
				"firstName": "John",
			},
			cfg:  ValidationConfig{RequireValidDOB: true},
			want: "missing date of birth and no other identifier present",
		},
		{
			name: "numeric dob accepted as serial date",
			data: map[string]interface{}{
				"firstName": "John",
				"dob":       float64(33055),
				"phone":     "5551234567",
			},
			cfg:  allRules,
			want: "",
		},
		{
			name: "nameless row with phone passes name rule",
			data: map[string]interface{}{
				"phone": "5551234567",
				"dob":   "1990-01-01",
			},
			cfg:  allRules,
			want: "",
		},
		{
			name: "disabled rules never fire",
			data: map[string]interface{}{},
			cfg:  ValidationConfig{},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidatePatientRow(tt.data, tt.cfg)
			if got != tt.want {
				t.Errorf("ValidatePatientRow() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidatePatientRowNoIdentifiers(t *testing.T) {
	got := ValidatePatientRow(map[string]interface{}{"dob": "1990-01-01"}, allRules)

	if !strings.Contains(got, "name field") {
		t.Errorf("ValidatePatientRow() = %q, want a message mentioning the name field", got)
	}
	if !strings.Contains(got, "no valid phone number found") {
		t.Errorf("ValidatePatientRow() = %q, want the phone failure included", got)
	}
	if !strings.Contains(got, "; ") {
		t.Errorf("ValidatePatientRow() = %q, want failures joined with semicolons", got)
	}
}

func TestValidatePatientRowMultiplePhoneColumns(t *testing.T) {
	// Достаточно одного пригодного телефона среди нескольких колонок
	data := map[string]interface{}{
		"phone":     "123",
		"cellPhone": "5551234567",
		"firstName": "John",
		"dob":       "1990-01-01",
	}

	if got := ValidatePatientRow(data, allRules); got != "" {
		t.Errorf("ValidatePatientRow() = %q, want empty", got)
	}
}
