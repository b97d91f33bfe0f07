package importer

import (
	"testing"

	"ingestserver/normalization"
)

func TestExtract(t *testing.T) {
	headers := []string{"First Name", "Last Name", "DOB", "Phone"}
	row := map[string]interface{}{
		"First Name": "John",
		"Last Name":  "Smith",
		"DOB":        "03/15/1946",
		"Phone":      "5551234567",
	}

	result := Extract(row, headers, DefaultPatientFields(), true, true)

	if len(result.MissingRequired) != 0 {
		t.Fatalf("MissingRequired = %v, want empty", result.MissingRequired)
	}
	if result.Data["firstName"] != "John" {
		t.Errorf("firstName = %v, want John", result.Data["firstName"])
	}
	if result.Data["dob"] != "1946-03-15" {
		t.Errorf("dob = %v, want 1946-03-15", result.Data["dob"])
	}
	if result.Data["phone"] != "(555) 123-4567" {
		t.Errorf("phone = %v, want (555) 123-4567", result.Data["phone"])
	}
	if result.ColumnMappings["dob"] != "DOB" {
		t.Errorf("ColumnMappings[dob] = %q, want DOB", result.ColumnMappings["dob"])
	}
}

func TestExtractMissingRequired(t *testing.T) {
	headers := []string{"First Name", "Last Name"}
	row := map[string]interface{}{
		"First Name": "John",
		"Last Name":  "Smith",
	}

	result := Extract(row, headers, DefaultPatientFields(), true, true)

	found := false
	for _, label := range result.MissingRequired {
		if label == "Phone Number" {
			found = true
		}
	}
	if !found {
		t.Errorf("MissingRequired = %v, want Phone Number listed", result.MissingRequired)
	}
}

func TestExtractMissingRequiredNotEnforced(t *testing.T) {
	headers := []string{"First Name"}
	row := map[string]interface{}{"First Name": "John"}

	result := Extract(row, headers, DefaultPatientFields(), false, true)

	if len(result.MissingRequired) != 0 {
		t.Errorf("MissingRequired = %v, want empty when not enforced", result.MissingRequired)
	}
}

// Конфигурация с именами колонок, далекими от реального файла:
// обычные ярусы почти ничего не находят, основные поля личности
// добираются по ключевым словам заголовков.
func TestExtractKeywordFallback(t *testing.T) {
	headers := []string{"Pt First", "Pt Last", "Cell"}
	row := map[string]interface{}{
		"Pt First": "Jane",
		"Pt Last":  "Doe",
		"Cell":     "5559876543",
	}

	fields := []FieldDefinition{
		{Key: "firstName", Label: "First Name", PossibleColumns: []string{"member given name"}, Transform: normalization.TransformText, Required: true},
		{Key: "lastName", Label: "Last Name", PossibleColumns: []string{"member family name"}, Transform: normalization.TransformText, Required: true},
		{Key: "phone", Label: "Phone Number", PossibleColumns: []string{"member telephone"}, Transform: normalization.TransformPhone, Required: true},
	}

	result := Extract(row, headers, fields, true, true)

	if result.Data["firstName"] != "Jane" {
		t.Errorf("firstName = %v, want Jane from keyword fallback", result.Data["firstName"])
	}
	if result.Data["lastName"] != "Doe" {
		t.Errorf("lastName = %v, want Doe from keyword fallback", result.Data["lastName"])
	}
	if result.Data["phone"] != "(555) 987-6543" {
		t.Errorf("phone = %v, want formatted fallback phone", result.Data["phone"])
	}

	// Поля, восстановленные по ключевым словам, больше не числятся отсутствующими
	if len(result.MissingRequired) != 0 {
		t.Errorf("MissingRequired = %v, want empty after fallback", result.MissingRequired)
	}
}

func TestExtractFallbackSkippedWhenEnoughMatches(t *testing.T) {
	headers := []string{"First Name", "Last Name", "Random First Thing"}
	row := map[string]interface{}{
		"First Name":         "John",
		"Last Name":          "Smith",
		"Random First Thing": "noise",
	}

	result := Extract(row, headers, DefaultPatientFields()[:2], true, true)

	// Два поля уже извлечены штатно, фолбэк не должен ничего трогать
	if result.Data["firstName"] != "John" {
		t.Errorf("firstName = %v, want John", result.Data["firstName"])
	}
	if result.ColumnMappings["firstName"] != "First Name" {
		t.Errorf("firstName mapped to %q, want First Name", result.ColumnMappings["firstName"])
	}
}

func TestExtractCampaignFieldsNoIdentityFallback(t *testing.T) {
	headers := []string{"Pt First", "Pt Last", "Cell"}
	row := map[string]interface{}{
		"Pt First": "Jane",
		"Pt Last":  "Doe",
		"Cell":     "5559876543",
	}

	fields := []FieldDefinition{
		{Key: "source", Label: "Source", PossibleColumns: []string{"lead source"}, Transform: normalization.TransformText},
	}

	result := Extract(row, headers, fields, false, false)

	// Извлечение полей кампании не добирает поля личности по заголовкам
	for _, key := range []string{"firstName", "lastName", "phone"} {
		if _, ok := result.Data[key]; ok {
			t.Errorf("Data[%q] = %v, want absent for campaign extraction", key, result.Data[key])
		}
		if col, ok := result.ColumnMappings[key]; ok {
			t.Errorf("ColumnMappings[%q] = %q, want absent for campaign extraction", key, col)
		}
	}
	if _, ok := result.Data["source"]; ok {
		t.Errorf("Data[source] = %v, want absent when no column matches", result.Data["source"])
	}
}
