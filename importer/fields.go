package importer

import (
	"regexp"
	"strings"

	"ingestserver/normalization"
	"ingestserver/quality"
	apperrors "ingestserver/server/errors"
)

// FieldDefinition описание семантического поля кампании или пациента
type FieldDefinition struct {
	Key             string                      `json:"key"`
	Label           string                      `json:"label"`
	PossibleColumns []string                    `json:"possibleColumns"`
	Transform       normalization.TransformKind `json:"transform"`
	Required        bool                        `json:"required"`
	DefaultValue    interface{}                 `json:"defaultValue,omitempty"`
	Description     string                      `json:"description,omitempty"`
}

// IngestionConfig конфигурация загрузки: поля пациента, поля кампании
// и правила валидации пациента
type IngestionConfig struct {
	PatientFields     []FieldDefinition        `json:"patientFields"`
	CampaignFields    []FieldDefinition        `json:"campaignFields"`
	PatientValidation quality.ValidationConfig `json:"patientValidation"`
}

var nonKeyChars = regexp.MustCompile(`[^a-z0-9_]+`)

// SafeField достраивает определение поля до пригодного вида.
// Конфигурация приходит от внешнего редактора произвольной формы,
// поэтому каждому подполю даются безопасные значения по умолчанию
// вместо доверия входной структуре.
func SafeField(f FieldDefinition) FieldDefinition {
	f.Key = strings.TrimSpace(f.Key)
	f.Label = strings.TrimSpace(f.Label)

	if f.Key == "" && f.Label != "" {
		f.Key = nonKeyChars.ReplaceAllString(strings.ToLower(f.Label), "_")
		f.Key = strings.Trim(f.Key, "_")
	}
	if f.Label == "" {
		f.Label = f.Key
	}

	var columns []string
	for _, c := range f.PossibleColumns {
		if c = strings.TrimSpace(c); c != "" {
			columns = append(columns, c)
		}
	}
	if len(columns) == 0 {
		if f.Label != "" {
			columns = append(columns, f.Label)
		}
		if f.Key != "" && f.Key != f.Label {
			columns = append(columns, f.Key)
		}
	}
	f.PossibleColumns = columns

	if !normalization.ValidTransformKind(f.Transform) {
		f.Transform = normalization.TransformText
	}

	return f
}

// SafeConfig применяет SafeField ко всем полям, отбрасывает поля без
// ключа и проверяет уникальность ключей внутри каждого списка
func SafeConfig(cfg IngestionConfig) (IngestionConfig, error) {
	var err error
	if cfg.PatientFields, err = safeFieldList(cfg.PatientFields); err != nil {
		return cfg, err
	}
	if cfg.CampaignFields, err = safeFieldList(cfg.CampaignFields); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func safeFieldList(fields []FieldDefinition) ([]FieldDefinition, error) {
	seen := make(map[string]bool, len(fields))
	out := fields[:0]
	for _, f := range fields {
		f = SafeField(f)
		if f.Key == "" {
			continue
		}
		if seen[f.Key] {
			return nil, apperrors.NewConfigError("duplicate field key: "+f.Key, nil)
		}
		seen[f.Key] = true
		out = append(out, f)
	}
	return out, nil
}

// DefaultPatientFields поля пациента для авто-сопоставления, когда
// конфигурация не задает ни одного списка полей
func DefaultPatientFields() []FieldDefinition {
	return []FieldDefinition{
		{
			Key:             "firstName",
			Label:           "First Name",
			PossibleColumns: []string{"first name", "firstname", "fname", "first", "patient first name", "given name"},
			Transform:       normalization.TransformText,
			Required:        true,
		},
		{
			Key:             "lastName",
			Label:           "Last Name",
			PossibleColumns: []string{"last name", "lastname", "lname", "last", "patient last name", "surname", "family name"},
			Transform:       normalization.TransformText,
			Required:        true,
		},
		{
			Key:             "dob",
			Label:           "Date of Birth",
			PossibleColumns: []string{"dob", "date of birth", "birth date", "birthdate", "patient dob", "patient_dob"},
			Transform:       normalization.TransformShortDate,
			Required:        false,
		},
		{
			Key:             "phone",
			Label:           "Phone Number",
			PossibleColumns: []string{"phone", "phone number", "mobile", "cell", "cell phone", "primary phone", "contact number"},
			Transform:       normalization.TransformPhone,
			Required:        true,
		},
	}
}

// AutoMapConfig строит конфигурацию по умолчанию из заголовков файла:
// стандартные поля пациента плюс свободное текстовое поле кампании для
// каждого заголовка, не занятого полями пациента
func AutoMapConfig(headers []string, validation quality.ValidationConfig) IngestionConfig {
	patientFields := DefaultPatientFields()

	used := make(map[string]bool)
	for _, f := range patientFields {
		if header := FindColumn(headers, f.PossibleColumns); header != "" {
			used[header] = true
		}
	}

	var campaignFields []FieldDefinition
	for _, header := range headers {
		if used[header] {
			continue
		}
		campaignFields = append(campaignFields, SafeField(FieldDefinition{
			Label:           header,
			PossibleColumns: []string{header},
			Transform:       normalization.TransformText,
		}))
	}

	return IngestionConfig{
		PatientFields:     patientFields,
		CampaignFields:    campaignFields,
		PatientValidation: validation,
	}
}

// CandidateUniverse все имена-кандидаты колонок из конфигурации,
// используется для решения о предупреждениях по несопоставленным колонкам
func CandidateUniverse(cfg IngestionConfig) []string {
	var universe []string
	for _, f := range cfg.PatientFields {
		universe = append(universe, f.PossibleColumns...)
	}
	for _, f := range cfg.CampaignFields {
		universe = append(universe, f.PossibleColumns...)
	}
	return universe
}
