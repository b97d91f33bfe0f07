package importer

import (
	"strings"

	"ingestserver/normalization"
)

// ExtractResult результат извлечения полей одной строки
type ExtractResult struct {
	Data            map[string]interface{}
	ColumnMappings  map[string]string
	MissingRequired []string
}

// fallbackHint подсказка для поиска основных полей личности по
// ключевым словам заголовков (четвертый ярус сопоставления)
type fallbackHint struct {
	key       string
	transform normalization.TransformKind
	keywords  []string
}

var fallbackHints = []fallbackHint{
	{key: "firstName", transform: normalization.TransformText, keywords: []string{"first", "fname"}},
	{key: "lastName", transform: normalization.TransformText, keywords: []string{"last", "lname"}},
	{key: "phone", transform: normalization.TransformPhone, keywords: []string{"phone", "mobile", "cell"}},
	{key: "dob", transform: normalization.TransformShortDate, keywords: []string{"dob", "birth"}},
}

// Extract применяет сопоставление колонок и преобразование значений ко
// всем определениям полей для одной строки. enforceRequired=false
// используется при повторном извлечении данных уже забракованной
// строки: частичные данные прикладываются к ней для диагностики, без
// новых претензий к обязательным полям. identityFallback разрешает
// добор основных полей личности по ключевым словам заголовков и
// включается только для списка полей пациента: извлечение полей
// кампании не должно получать чужие поля личности.
func Extract(row map[string]interface{}, headers []string, fields []FieldDefinition, enforceRequired, identityFallback bool) ExtractResult {
	result := ExtractResult{
		Data:           make(map[string]interface{}, len(fields)),
		ColumnMappings: make(map[string]string, len(fields)),
	}

	for _, field := range fields {
		header := FindColumn(headers, field.PossibleColumns)
		if header == "" {
			if field.Required && enforceRequired {
				result.MissingRequired = append(result.MissingRequired, field.Label)
			}
			continue
		}

		result.ColumnMappings[field.Key] = header
		result.Data[field.Key] = normalization.Transform(row[header], field.Transform)
	}

	// Совпадений почти нет: признак плохо подобранной конфигурации.
	// Добираем основные поля личности по ключевым словам заголовков.
	if identityFallback && extractedCount(result.Data) < 2 {
		applyKeywordFallback(row, headers, fields, &result)
	}

	return result
}

// applyKeywordFallback заполняет еще не извлеченные основные поля
// личности по подсказкам четвертого яруса. Поля, восстановленные этим
// путем, убираются из списка отсутствующих обязательных.
func applyKeywordFallback(row map[string]interface{}, headers []string, fields []FieldDefinition, result *ExtractResult) {
	for _, hint := range fallbackHints {
		key, transform, label := hint.key, hint.transform, ""

		// Конфигурация может называть то же поле своим ключом
		for _, field := range fields {
			if strings.EqualFold(field.Key, hint.key) {
				key, transform, label = field.Key, field.Transform, field.Label
				break
			}
		}

		if existing, ok := result.Data[key]; ok && existing != nil {
			continue
		}

		header := FindColumnByKeywords(headers, hint.keywords)
		if header == "" {
			continue
		}

		value := normalization.Transform(row[header], transform)
		if value == nil {
			continue
		}

		result.Data[key] = value
		result.ColumnMappings[key] = header
		if label != "" {
			result.MissingRequired = removeLabel(result.MissingRequired, label)
		}
	}
}

// extractedCount количество полей с непустыми значениями
func extractedCount(data map[string]interface{}) int {
	count := 0
	for _, value := range data {
		if value != nil && value != "" {
			count++
		}
	}
	return count
}

func removeLabel(labels []string, label string) []string {
	out := labels[:0]
	for _, l := range labels {
		if l != label {
			out = append(out, l)
		}
	}
	return out
}
