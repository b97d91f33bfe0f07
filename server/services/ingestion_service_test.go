package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/mock"

	"ingestserver/identity"
	"ingestserver/importer"
	"ingestserver/quality"
	apperrors "ingestserver/server/errors"
	"ingestserver/server/types"
)

// MockPatientDirectory is a mock for the identity.Directory
type MockPatientDirectory struct {
	mock.Mock
}

func (m *MockPatientDirectory) FindOrCreatePatient(ctx context.Context, record identity.PatientRecord) (int64, bool, error) {
	args := m.Called(ctx, record)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func timeYear(year int) time.Time {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
}

var strictValidation = quality.ValidationConfig{
	RequireValidPhone: true,
	RequireValidDOB:   true,
	RequireName:       true,
}

func TestIngestCSV(t *testing.T) {
	dir := new(MockPatientDirectory)
	dir.On("FindOrCreatePatient", mock.Anything, mock.Anything).Return(int64(42), true, nil).Once()

	service := NewIngestionService(dir, IngestionOptions{})

	// Вторая строка — та же личность в другом форматировании,
	// третья — без единого идентификатора
	content := []byte("First Name,Last Name,DOB,Phone\n" +
		"John,Smith,03/15/1946,5551234567\n" +
		"JOHN,smith,3/15/46,(555) 123-4567\n" +
		",,junk,\n")

	cfg := importer.IngestionConfig{PatientValidation: strictValidation}

	result, err := service.Ingest(context.Background(), content, "roster.csv", cfg, "org-1")
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if result.Stats.TotalRows != 3 {
		t.Errorf("TotalRows = %d, want 3", result.Stats.TotalRows)
	}
	if result.Stats.ValidRows != 2 || result.Stats.InvalidRows != 1 {
		t.Errorf("valid/invalid = %d/%d, want 2/1", result.Stats.ValidRows, result.Stats.InvalidRows)
	}
	if result.Stats.UniquePatients != 1 || result.Stats.DuplicatePatients != 1 {
		t.Errorf("unique/duplicate = %d/%d, want 1/1", result.Stats.UniquePatients, result.Stats.DuplicatePatients)
	}
	if result.Stats.NewPatients != 1 {
		t.Errorf("NewPatients = %d, want 1", result.Stats.NewPatients)
	}

	if len(result.ValidRows) != 2 {
		t.Fatalf("ValidRows = %d, want 2", len(result.ValidRows))
	}

	first, second := result.ValidRows[0], result.ValidRows[1]
	if first.PatientHash == "" || first.PatientHash != second.PatientHash {
		t.Error("both rows of the same identity should share the patient hash")
	}
	if first.PatientID == nil || second.PatientID == nil || *first.PatientID != 42 || *second.PatientID != 42 {
		t.Error("both rows of the same identity should share patient id 42")
	}
	if !first.IsNewPatient {
		t.Error("first occurrence should be flagged as a new patient")
	}
	if second.IsNewPatient {
		t.Error("the in-file duplicate must not be flagged as a new patient")
	}

	if result.RunID == "" {
		t.Error("RunID should be assigned")
	}
	if result.OrgID != "org-1" {
		t.Errorf("OrgID = %q, want org-1", result.OrgID)
	}

	// Справочник вызывается один раз на личность
	dir.AssertNumberOfCalls(t, "FindOrCreatePatient", 1)
}

func TestPreviewDoesNotTouchDirectory(t *testing.T) {
	dir := new(MockPatientDirectory)
	service := NewIngestionService(dir, IngestionOptions{})

	content := []byte("First Name,Last Name,DOB,Phone\nJohn,Smith,03/15/1946,5551234567\n")

	result, err := service.Preview(context.Background(), content, "roster.csv", importer.IngestionConfig{PatientValidation: strictValidation}, "org-1")
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}

	if result.Stats.ValidRows != 1 || result.Stats.UniquePatients != 1 {
		t.Errorf("stats = %+v, want one valid unique row", result.Stats)
	}
	if result.ValidRows[0].PatientHash == "" {
		t.Error("preview should still hash patient identities")
	}
	if result.ValidRows[0].PatientID != nil {
		t.Error("preview must not assign patient ids")
	}

	dir.AssertNotCalled(t, "FindOrCreatePatient", mock.Anything, mock.Anything)
}

func TestIngestNoValidRows(t *testing.T) {
	dir := new(MockPatientDirectory)
	service := NewIngestionService(dir, IngestionOptions{})

	content := []byte("Foo,Bar\nx,y\n")

	result, err := service.Ingest(context.Background(), content, "roster.csv", importer.IngestionConfig{PatientValidation: strictValidation}, "org-1")
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if result.Stats.ValidRows != 0 || result.Stats.InvalidRows != 1 {
		t.Errorf("stats = %+v, want a single invalid row", result.Stats)
	}

	found := false
	for _, msg := range result.Errors {
		if msg == "no valid rows could be processed" {
			found = true
		}
	}
	if !found {
		t.Errorf("Errors = %v, want the no-valid-rows error", result.Errors)
	}
}

func TestIngestFatalErrors(t *testing.T) {
	dir := new(MockPatientDirectory)
	service := NewIngestionService(dir, IngestionOptions{})

	_, err := service.Ingest(context.Background(), []byte(" "), "roster.csv", importer.IngestionConfig{}, "org-1")
	if !apperrors.IsKind(err, apperrors.KindParse) {
		t.Errorf("empty file error = %v, want parse kind", err)
	}

	badCfg := importer.IngestionConfig{
		PatientFields: []importer.FieldDefinition{{Key: "phone"}, {Key: "phone"}},
	}
	_, err = service.Ingest(context.Background(), []byte("Phone\n555\n"), "roster.csv", badCfg, "org-1")
	if !apperrors.IsKind(err, apperrors.KindConfig) {
		t.Errorf("duplicate key error = %v, want config kind", err)
	}
}

// Сгенерированный реестр: инварианты статистики должны сходиться на
// произвольных данных независимо от порядка работы воркеров
func TestIngestGeneratedRoster(t *testing.T) {
	faker := gofakeit.New(7)

	var sb strings.Builder
	sb.WriteString("First Name,Last Name,DOB,Phone\n")
	const rows = 12
	for i := 0; i < rows; i++ {
		// Телефон с номером строки гарантирует уникальность личности
		fmt.Fprintf(&sb, "%s,%s,%s,555%07d\n",
			faker.FirstName(), faker.LastName(),
			faker.DateRange(timeYear(1940), timeYear(2000)).Format("01/02/2006"), i)
	}

	dir := new(MockPatientDirectory)
	dir.On("FindOrCreatePatient", mock.Anything, mock.Anything).Return(int64(1), true, nil)

	service := NewIngestionService(dir, IngestionOptions{MaxWorkers: 3})

	result, err := service.Ingest(context.Background(), []byte(sb.String()), "roster.csv", importer.IngestionConfig{PatientValidation: strictValidation}, "org-1")
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	stats := result.Stats
	if stats.TotalRows != rows {
		t.Errorf("TotalRows = %d, want %d", stats.TotalRows, rows)
	}
	if stats.ValidRows+stats.InvalidRows != stats.TotalRows {
		t.Errorf("valid %d + invalid %d != total %d", stats.ValidRows, stats.InvalidRows, stats.TotalRows)
	}

	hashed := 0
	for _, row := range append(append([]types.ProcessedRow{}, result.ValidRows...), result.InvalidRows...) {
		if row.PatientHash != "" {
			hashed++
		}
	}
	if stats.UniquePatients+stats.DuplicatePatients != hashed {
		t.Errorf("unique %d + duplicate %d != hashed rows %d", stats.UniquePatients, stats.DuplicatePatients, hashed)
	}

	// Предпросмотр ограничен лимитом
	if len(result.SampleRows.Valid) > 5 {
		t.Errorf("SampleRows.Valid = %d, want at most 5", len(result.SampleRows.Valid))
	}

	// Строки идут в исходном порядке файла
	for i := 1; i < len(result.ValidRows); i++ {
		if result.ValidRows[i].RowIndex <= result.ValidRows[i-1].RowIndex {
			t.Fatal("valid rows should preserve file order")
		}
	}
}

func TestIngestColumnDiagnostics(t *testing.T) {
	dir := new(MockPatientDirectory)
	dir.On("FindOrCreatePatient", mock.Anything, mock.Anything).Return(int64(1), true, nil)

	service := NewIngestionService(dir, IngestionOptions{})

	content := []byte("First Name,Last Name,Phone,Birth Day,Zodiac\n" +
		"John,Smith,5551234567,03/15/1946,aries\n")

	cfg := importer.IngestionConfig{
		PatientFields: importer.DefaultPatientFields(),
		CampaignFields: []importer.FieldDefinition{
			{Key: "source", Label: "Source", PossibleColumns: []string{"lead source"}, DefaultValue: "import"},
		},
		PatientValidation: strictValidation,
	}

	result, err := service.Ingest(context.Background(), content, "roster.csv", cfg, "org-1")
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	// "Birth Day" не сопоставился, но похож на кандидата поля даты
	// рождения; "Zodiac" — посторонняя колонка без предупреждения
	if len(result.UnmatchedColumns) != 2 {
		t.Fatalf("UnmatchedColumns = %v, want Birth Day and Zodiac", result.UnmatchedColumns)
	}

	warned := map[string]bool{}
	for _, event := range result.Events {
		if event.Level == "WARN" {
			warned[event.Column] = true
		}
	}
	if !warned["Birth Day"] {
		t.Error("expected a WARN event for the Birth Day column")
	}
	if warned["Zodiac"] {
		t.Error("unrelated columns must not produce warnings")
	}

	// Значение по умолчанию несопоставленного поля кампании
	if result.ValidRows[0].Variables["source"] != "import" {
		t.Errorf("Variables[source] = %v, want the default value", result.ValidRows[0].Variables["source"])
	}
}
