package quality

import (
	"fmt"
	"strings"

	"ingestserver/normalization"
)

// ValidationConfig независимые переключатели правил валидации строки
type ValidationConfig struct {
	RequireValidPhone bool `json:"requireValidPhone"`
	RequireValidDOB   bool `json:"requireValidDOB"`
	RequireName       bool `json:"requireName"`
}

// minPhoneDigits минимум цифр, при котором телефон считается пригодным
// для дозвона (мягкий порог: короткие внутренние номера отбрасываются,
// частично заполненные принимаются)
const minPhoneDigits = 5

// ValidatePatientRow применяет включенные правила к извлеченным данным
// пациента. Возвращает пустую строку для валидной строки, иначе все
// сработавшие нарушения одним сообщением через точку с запятой.
// Правила намеренно мягкие: отсутствие одного идентификатора не
// отклоняет строку, если присутствует другой.
func ValidatePatientRow(data map[string]interface{}, cfg ValidationConfig) string {
	var failures []string

	if cfg.RequireValidPhone {
		if msg := checkPhone(data); msg != "" {
			failures = append(failures, msg)
		}
	}
	if cfg.RequireValidDOB {
		if msg := checkDOB(data); msg != "" {
			failures = append(failures, msg)
		}
	}
	if cfg.RequireName {
		if msg := checkName(data); msg != "" {
			failures = append(failures, msg)
		}
	}

	return strings.Join(failures, "; ")
}

// checkPhone проверяет наличие телефоноподобного поля с достаточным
// количеством цифр. Строка без телефона, но с именем принимается как
// запись пониженной достоверности.
func checkPhone(data map[string]interface{}) string {
	found := false
	for _, key := range phoneKeys(data) {
		digits := normalization.PhoneDigits(valueString(data[key]))
		if digits == "" {
			continue
		}
		found = true
		if len(digits) >= minPhoneDigits {
			return ""
		}
	}

	if !found && hasAnyName(data) {
		return ""
	}
	if found {
		return "phone number has fewer than 5 digits"
	}
	return "no valid phone number found"
}

// checkDOB проверяет дату рождения. Отсутствующая дата допустима при
// наличии другого идентификатора (телефона или полного имени).
// Присутствующая дата отклоняется только для короткого свободного
// текста, который нельзя трактовать ни как одну из форм даты.
func checkDOB(data map[string]interface{}) string {
	raw, ok := dobValue(data)
	if !ok {
		if hasUsablePhone(data) || hasFullName(data) {
			return ""
		}
		return "missing date of birth and no other identifier present"
	}

	switch v := raw.(type) {
	case float64, int:
		return ""
	case string:
		s := strings.TrimSpace(v)
		if len(s) >= 4 {
			return ""
		}
		if normalization.IsPlausibleDate(s) {
			return ""
		}
		return "date of birth could not be interpreted as a date"
	default:
		return ""
	}
}

// checkName требует хотя бы одно из имени/фамилии, но при наличии
// телефона строка принимается и без имен
func checkName(data map[string]interface{}) string {
	if hasAnyName(data) {
		return ""
	}
	if hasUsablePhone(data) {
		return ""
	}
	return "no name field found (first or last name required)"
}

// phoneKeys возвращает ключи извлеченных данных, похожие на телефон
func phoneKeys(data map[string]interface{}) []string {
	var keys []string
	for key := range data {
		lower := strings.ToLower(key)
		if strings.Contains(lower, "phone") || strings.Contains(lower, "mobile") || strings.Contains(lower, "cell") {
			keys = append(keys, key)
		}
	}
	return keys
}

// dobValue ищет значение даты рождения по ключам с dob/birth
func dobValue(data map[string]interface{}) (interface{}, bool) {
	for key, value := range data {
		lower := strings.ToLower(key)
		if strings.Contains(lower, "dob") || strings.Contains(lower, "birth") {
			if value != nil && valueString(value) != "" {
				return value, true
			}
		}
	}
	return nil, false
}

// hasUsablePhone отвечает, есть ли телефон с минимумом цифр
func hasUsablePhone(data map[string]interface{}) bool {
	for _, key := range phoneKeys(data) {
		if len(normalization.PhoneDigits(valueString(data[key]))) >= minPhoneDigits {
			return true
		}
	}
	return false
}

// hasAnyName отвечает, заполнено ли имя или фамилия
func hasAnyName(data map[string]interface{}) bool {
	return nameValue(data, "first") != "" || nameValue(data, "last") != ""
}

// hasFullName отвечает, заполнены ли и имя, и фамилия
func hasFullName(data map[string]interface{}) bool {
	return nameValue(data, "first") != "" && nameValue(data, "last") != ""
}

func nameValue(data map[string]interface{}, part string) string {
	for key, value := range data {
		if strings.Contains(strings.ToLower(key), part) {
			return valueString(value)
		}
	}
	return ""
}

func valueString(value interface{}) string {
	if value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(value))
}
