package types

import "time"

// ProcessedRow классифицированная строка загруженного файла.
// После классификации не изменяется.
type ProcessedRow struct {
	RowIndex         int                    `json:"rowIndex"` // 1-based со сдвигом на строку заголовка
	IsValid          bool                   `json:"isValid"`
	PatientHash      string                 `json:"patientHash,omitempty"`
	PatientID        *int64                 `json:"patientId,omitempty"` // заполняется только после сверки со справочником
	IsNewPatient     bool                   `json:"isNewPatient,omitempty"`
	Variables        map[string]interface{} `json:"variables"` // объединенные значения полей пациента и кампании
	ValidationErrors []string               `json:"validationErrors,omitempty"`
}

// IngestionStats шестисторонние счетчики загрузки.
// Инварианты: ValidRows + InvalidRows == TotalRows;
// UniquePatients + DuplicatePatients == число строк с непустым хэшем.
type IngestionStats struct {
	TotalRows         int `json:"totalRows"`
	ValidRows         int `json:"validRows"`
	InvalidRows       int `json:"invalidRows"`
	UniquePatients    int `json:"uniquePatients"`
	DuplicatePatients int `json:"duplicatePatients"`
	NewPatients       int `json:"newPatients"`
	ExistingPatients  int `json:"existingPatients"`
}

// SampleRows ограниченный предпросмотр строк для интерфейса
type SampleRows struct {
	Valid   []ProcessedRow `json:"valid"`
	Invalid []ProcessedRow `json:"invalid"`
}

// DiagnosticEvent структурированное диагностическое событие загрузки.
// События собираются рядом с результатом, а не перемешиваются с ним,
// поэтому конвейер остается чистой функцией своих входов.
type DiagnosticEvent struct {
	Level     string    `json:"level"` // INFO, WARN, ERROR
	Message   string    `json:"message"`
	RowIndex  int       `json:"rowIndex,omitempty"`
	Column    string    `json:"column,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// IngestionResult итог одной загрузки. Создается один раз на вызов и
// возвращается вызывающей стороне; ядро его не сохраняет.
type IngestionResult struct {
	RunID            string            `json:"runId"`
	OrgID            string            `json:"orgId"`
	FileName         string            `json:"fileName"`
	ValidRows        []ProcessedRow    `json:"validRows"`
	InvalidRows      []ProcessedRow    `json:"invalidRows"`
	Stats            IngestionStats    `json:"stats"`
	ColumnMappings   map[string]string `json:"columnMappings"` // объединение по всем строкам
	MatchedColumns   []string          `json:"matchedColumns"`
	UnmatchedColumns []string          `json:"unmatchedColumns"`
	SampleRows       SampleRows        `json:"sampleRows"`
	Errors           []string          `json:"errors,omitempty"` // проблемы уровня файла или конфигурации
	Events           []DiagnosticEvent `json:"events,omitempty"`
	Truncated        bool              `json:"truncated,omitempty"`
	Duration         time.Duration     `json:"duration"`
}
