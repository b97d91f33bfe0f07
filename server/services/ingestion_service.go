package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ingestserver/identity"
	"ingestserver/importer"
	"ingestserver/normalization"
	"ingestserver/quality"
	"ingestserver/server/types"
)

// IngestionOptions настройки конвейера загрузки
type IngestionOptions struct {
	MaxWorkers          int // ограниченный пул воркеров, не безграничный фан-аут
	SampleRowsLimit     int // предел строк предпросмотра на категорию
	DirectoryRatePerSec int // лимит обращений к справочнику пациентов
}

// IngestionService конвейер загрузки реестра: разбор файла,
// извлечение и преобразование полей, валидация строк и сверка
// личностей со справочником пациентов
type IngestionService struct {
	directory identity.Directory
	opts      IngestionOptions
}

// NewIngestionService создает сервис загрузки
func NewIngestionService(directory identity.Directory, opts IngestionOptions) *IngestionService {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 4
	}
	if opts.SampleRowsLimit <= 0 {
		opts.SampleRowsLimit = 5
	}
	return &IngestionService{directory: directory, opts: opts}
}

// Ingest выполняет полную загрузку файла для организации.
// Ошибка возвращается только для двух фатальных категорий (разбор
// файла, конфигурация); все строчные ошибки накапливаются в результате.
func (s *IngestionService) Ingest(ctx context.Context, content []byte, fileName string, cfg importer.IngestionConfig, orgID string) (*types.IngestionResult, error) {
	return s.run(ctx, content, fileName, cfg, orgID, true)
}

// Preview выполняет загрузку без сверки со справочником: строки
// классифицируются и хэшируются, записи пациентов не создаются
func (s *IngestionService) Preview(ctx context.Context, content []byte, fileName string, cfg importer.IngestionConfig, orgID string) (*types.IngestionResult, error) {
	return s.run(ctx, content, fileName, cfg, orgID, false)
}

// rowOutcome итог обработки одной строки воркером, до сверки личности
type rowOutcome struct {
	row         types.ProcessedRow
	patientData map[string]interface{}
	mappings    map[string]string
}

func (s *IngestionService) run(ctx context.Context, content []byte, fileName string, cfg importer.IngestionConfig, orgID string, resolve bool) (*types.IngestionResult, error) {
	started := time.Now()

	table, err := importer.Parse(content, fileName)
	if err != nil {
		return nil, err
	}

	cfg, err = importer.SafeConfig(cfg)
	if err != nil {
		return nil, err
	}

	// Пустая конфигурация: авто-сопоставление стандартных полей
	// пациента, незанятые заголовки становятся полями кампании
	if len(cfg.PatientFields) == 0 && len(cfg.CampaignFields) == 0 {
		cfg = importer.AutoMapConfig(table.Headers, cfg.PatientValidation)
	}

	result := &types.IngestionResult{
		RunID:          uuid.New().String(),
		OrgID:          orgID,
		FileName:       fileName,
		ColumnMappings: make(map[string]string),
	}

	outcomes := s.processRows(ctx, table, cfg)
	s.aggregate(ctx, result, table, cfg, outcomes, orgID, resolve)

	if result.Stats.TotalRows > 0 && result.Stats.ValidRows == 0 {
		result.Errors = append(result.Errors, "no valid rows could be processed")
	}

	result.Duration = time.Since(started)
	return result, nil
}

// processRows прогоняет строки через ограниченный пул воркеров.
// Воркеры выполняют только чистую работу (извлечение, преобразование,
// валидацию, подготовку данных личности); общие аккумуляторы и сверка
// со справочником остаются у единственного владельца в aggregate.
// Отмена контекста прекращает выдачу новых строк воркерам.
func (s *IngestionService) processRows(ctx context.Context, table *importer.ParsedTable, cfg importer.IngestionConfig) []*rowOutcome {
	outcomes := make([]*rowOutcome, len(table.Rows))

	jobs := make(chan int)
	go func() {
		defer close(jobs)
		for i := range table.Rows {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	workers := s.opts.MaxWorkers
	if workers > len(table.Rows) {
		workers = len(table.Rows)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				outcomes[i] = s.processRow(i, table.Rows[i], table.Headers, cfg)
			}
		}()
	}
	wg.Wait()

	return outcomes
}

// processRow обрабатывает одну строку до терминального состояния.
// Любой сбой переводит строку в invalid с сохранением сообщения и
// частичным повторным извлечением данных для диагностики; паника
// никогда не покидает границу строки.
func (s *IngestionService) processRow(index int, raw map[string]interface{}, headers []string, cfg importer.IngestionConfig) (outcome *rowOutcome) {
	// 1-based, со сдвигом на строку заголовка
	rowIndex := index + 2

	defer func() {
		if r := recover(); r != nil {
			partial := importer.Extract(raw, headers, cfg.PatientFields, false, true)
			campaignPartial := importer.Extract(raw, headers, cfg.CampaignFields, false, false)
			variables := mergeVariables(partial.Data, campaignPartial.Data, cfg.CampaignFields)

			outcome = &rowOutcome{
				patientData: partial.Data,
				mappings:    mergeMappings(partial.ColumnMappings, campaignPartial.ColumnMappings),
				row: types.ProcessedRow{
					RowIndex:         rowIndex,
					IsValid:          false,
					Variables:        variables,
					ValidationErrors: []string{fmt.Sprintf("row processing failed: %v", r)},
				},
			}
		}
	}()

	var validationErrors []string

	patientRes := importer.Extract(raw, headers, cfg.PatientFields, true, true)
	if len(patientRes.MissingRequired) > 0 {
		validationErrors = append(validationErrors,
			"missing required patient field(s): "+strings.Join(patientRes.MissingRequired, ", "))
	}

	if msg := quality.ValidatePatientRow(patientRes.Data, cfg.PatientValidation); msg != "" {
		validationErrors = append(validationErrors, msg)
	}

	campaignRes := importer.Extract(raw, headers, cfg.CampaignFields, true, false)
	if len(campaignRes.MissingRequired) > 0 {
		validationErrors = append(validationErrors,
			"missing required campaign field(s): "+strings.Join(campaignRes.MissingRequired, ", "))
	}

	variables := mergeVariables(patientRes.Data, campaignRes.Data, cfg.CampaignFields)

	return &rowOutcome{
		patientData: patientRes.Data,
		mappings:    mergeMappings(patientRes.ColumnMappings, campaignRes.ColumnMappings),
		row: types.ProcessedRow{
			RowIndex:         rowIndex,
			IsValid:          len(validationErrors) == 0,
			Variables:        variables,
			ValidationErrors: validationErrors,
		},
	}
}

// seenPatient первое вхождение хэша личности в файле
type seenPatient struct {
	patientID *int64
}

// aggregate сводит итоги строк в порядке файла: сверка личностей,
// счетчики, предпросмотр и диагностика по колонкам. Единственный
// владелец всего разделяемого состояния загрузки; строки с одинаковым
// хэшем сверяются в исходном порядке, поэтому выбор первого вхождения
// детерминирован и воспроизводим.
func (s *IngestionService) aggregate(ctx context.Context, result *types.IngestionResult, table *importer.ParsedTable, cfg importer.IngestionConfig, outcomes []*rowOutcome, orgID string, resolve bool) {
	resolver := identity.NewResolver(s.directory, s.opts.DirectoryRatePerSec)
	seen := make(map[string]seenPatient)

	for _, outcome := range outcomes {
		if outcome == nil {
			// Строка не была запланирована из-за отмены загрузки
			result.Truncated = true
			continue
		}

		row := outcome.row

		for key, header := range outcome.mappings {
			result.ColumnMappings[key] = header
		}

		first, last, dob, phone := patientIdentity(outcome.patientData)
		hash := identity.HashPatientData(first, last, dob, phone)
		if hash != "" {
			row.PatientHash = hash

			if prior, ok := seen[hash]; ok {
				// Дубль в файле: строка остается валидной и делит
				// patientId с первым вхождением, дублирование
				// учитывается только в статистике
				result.Stats.DuplicatePatients++
				row.PatientID = prior.patientID

				// Первое вхождение было забраковано и не сверялось
				if prior.patientID == nil && resolve && row.IsValid {
					resolution, err := resolver.Resolve(ctx, identity.PatientRecord{
						FirstName: first,
						LastName:  last,
						DOB:       dob,
						Phone:     phone,
						OrgID:     orgID,
					})
					if err != nil {
						row.IsValid = false
						row.ValidationErrors = append(row.ValidationErrors, err.Error())
					} else if resolution != nil {
						id := resolution.PatientID
						row.PatientID = &id
						row.IsNewPatient = resolution.IsNewPatient
						if resolution.IsNewPatient {
							result.Stats.NewPatients++
						} else {
							result.Stats.ExistingPatients++
						}
						seen[hash] = seenPatient{patientID: &id}
					}
				}
			} else {
				result.Stats.UniquePatients++
				entry := seenPatient{}

				if resolve && row.IsValid {
					resolution, err := resolver.Resolve(ctx, identity.PatientRecord{
						FirstName: first,
						LastName:  last,
						DOB:       dob,
						Phone:     phone,
						OrgID:     orgID,
					})
					if err != nil {
						row.IsValid = false
						row.ValidationErrors = append(row.ValidationErrors, err.Error())
					} else if resolution != nil {
						id := resolution.PatientID
						entry.patientID = &id
						row.PatientID = &id
						row.IsNewPatient = resolution.IsNewPatient
						if resolution.IsNewPatient {
							result.Stats.NewPatients++
						} else {
							result.Stats.ExistingPatients++
						}
					}
				}

				seen[hash] = entry
			}
		}

		result.Stats.TotalRows++
		if row.IsValid {
			result.Stats.ValidRows++
			result.ValidRows = append(result.ValidRows, row)
			if len(result.SampleRows.Valid) < s.opts.SampleRowsLimit {
				result.SampleRows.Valid = append(result.SampleRows.Valid, row)
			}
		} else {
			result.Stats.InvalidRows++
			result.InvalidRows = append(result.InvalidRows, row)
			if len(result.SampleRows.Invalid) < s.opts.SampleRowsLimit {
				result.SampleRows.Invalid = append(result.SampleRows.Invalid, row)
			}
		}
	}

	if result.Truncated {
		result.Errors = append(result.Errors, "ingestion run was truncated before all rows were processed")
	}

	s.reportColumns(result, table.Headers, cfg)
}

// reportColumns собирает списки сопоставленных и несопоставленных
// колонок и предупреждения по ним. Предупреждение выдается только для
// несопоставленной колонки, правдоподобно похожей на одного из
// сконфигурированных кандидатов: посторонние колонки файла не шумят.
func (s *IngestionService) reportColumns(result *types.IngestionResult, headers []string, cfg importer.IngestionConfig) {
	matched := make(map[string]bool, len(result.ColumnMappings))
	for _, header := range result.ColumnMappings {
		matched[header] = true
	}

	universe := importer.CandidateUniverse(cfg)

	// Порядок колонок файла сохраняется для стабильной диагностики
	for _, header := range headers {
		if matched[header] {
			result.MatchedColumns = append(result.MatchedColumns, header)
			continue
		}
		result.UnmatchedColumns = append(result.UnmatchedColumns, header)

		if normalization.KeywordOverlap(header, universe) {
			result.Events = append(result.Events, types.DiagnosticEvent{
				Level:     "WARN",
				Message:   fmt.Sprintf("column %q was not mapped but resembles a configured field", header),
				Column:    header,
				Timestamp: time.Now(),
			})
		}
	}

	result.Events = append(result.Events, types.DiagnosticEvent{
		Level:     "INFO",
		Message:   fmt.Sprintf("processed %d rows: %d valid, %d invalid", result.Stats.TotalRows, result.Stats.ValidRows, result.Stats.InvalidRows),
		Timestamp: time.Now(),
	})
}

// mergeVariables объединяет значения полей пациента и кампании;
// значения по умолчанию полей кампании заполняют оставшиеся пустыми
// ключи
func mergeVariables(patient, campaign map[string]interface{}, campaignFields []importer.FieldDefinition) map[string]interface{} {
	variables := make(map[string]interface{}, len(patient)+len(campaign))
	for key, value := range patient {
		variables[key] = value
	}
	for key, value := range campaign {
		variables[key] = value
	}
	for _, field := range campaignFields {
		if field.DefaultValue == nil {
			continue
		}
		if value, ok := variables[field.Key]; !ok || value == nil {
			variables[field.Key] = field.DefaultValue
		}
	}
	return variables
}

func mergeMappings(a, b map[string]string) map[string]string {
	merged := make(map[string]string, len(a)+len(b))
	for key, header := range a {
		merged[key] = header
	}
	for key, header := range b {
		merged[key] = header
	}
	return merged
}

// patientIdentity достает идентифицирующие атрибуты из извлеченных
// данных пациента по семантике ключей
func patientIdentity(data map[string]interface{}) (first, last, dob, phone string) {
	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pick := func(parts ...string) string {
		for _, key := range keys {
			lower := strings.ToLower(key)
			for _, part := range parts {
				if strings.Contains(lower, part) {
					if s := valueText(data[key]); s != "" {
						return s
					}
				}
			}
		}
		return ""
	}

	first = pick("first", "fname")
	last = pick("last", "lname")
	dob = pick("dob", "birth")
	phone = pick("phone", "mobile", "cell")
	return
}

func valueText(value interface{}) string {
	if value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(value))
}
