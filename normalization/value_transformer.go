package normalization

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// TransformKind определяет семантический тип значения поля
type TransformKind string

const (
	TransformText      TransformKind = "text"
	TransformShortDate TransformKind = "short_date"
	TransformLongDate  TransformKind = "long_date"
	TransformTime      TransformKind = "time"
	TransformPhone     TransformKind = "phone"
	TransformProvider  TransformKind = "provider"
	TransformNumber    TransformKind = "number"
	TransformBoolean   TransformKind = "boolean"
)

// ValidTransformKind проверяет, что kind входит в список известных типов
func ValidTransformKind(kind TransformKind) bool {
	switch kind {
	case TransformText, TransformShortDate, TransformLongDate, TransformTime,
		TransformPhone, TransformProvider, TransformNumber, TransformBoolean:
		return true
	}
	return false
}

// Transform преобразует сырое значение ячейки в семантический тип.
// Никогда не паникует и не возвращает ошибку: при невозможности
// преобразования возвращает исходную строку, пустой ввод дает nil.
// Строгая проверка значений выполняется валидатором, не здесь.
func Transform(raw interface{}, kind TransformKind) interface{} {
	return transformAt(raw, kind, time.Now())
}

// transformAt выделен отдельно, чтобы эвристика двузначного года
// была проверяема с фиксированным "сейчас"
func transformAt(raw interface{}, kind TransformKind, now time.Time) interface{} {
	if isEmptyValue(raw) {
		return nil
	}

	switch kind {
	case TransformShortDate:
		return transformShortDate(raw, now)
	case TransformLongDate:
		return transformLongDate(raw, now)
	case TransformTime:
		return transformTime(raw)
	case TransformPhone:
		return FormatPhone(rawString(raw))
	case TransformProvider:
		return FormatProviderName(rawString(raw))
	case TransformNumber:
		return transformNumber(raw)
	case TransformBoolean:
		return transformBoolean(raw)
	default:
		return rawString(raw)
	}
}

// isEmptyValue определяет "пустой" ввод: nil, пустая строка или одни пробелы
func isEmptyValue(raw interface{}) bool {
	if raw == nil {
		return true
	}
	if s, ok := raw.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// rawString приводит значение ячейки к строке без потери числовых данных
func rawString(raw interface{}) string {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// rawFloat пытается получить числовое значение ячейки
func rawFloat(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// transformShortDate преобразует значение в дату формата YYYY-MM-DD
func transformShortDate(raw interface{}, now time.Time) interface{} {
	if t, ok := resolveDate(raw, now); ok {
		return t.Format("2006-01-02")
	}
	return rawString(raw)
}

// transformLongDate преобразует значение в полную дату с днем недели
func transformLongDate(raw interface{}, now time.Time) interface{} {
	if t, ok := resolveDate(raw, now); ok {
		return t.Format("Monday, January 2, 2006")
	}
	return rawString(raw)
}

// transformTime нормализует время к 24-часовому формату HH:MM.
// Числа в [0, 1) трактуются как доля суток (формат электронных таблиц).
func transformTime(raw interface{}) interface{} {
	if f, ok := rawFloat(raw); ok && f >= 0 && f < 1 {
		total := int(math.Round(f * 24 * 60))
		return formatClock(total / 60 % 24, total % 60)
	}

	s := rawString(raw)
	m := timePattern.FindStringSubmatch(s)
	if m == nil {
		return s
	}

	hour, err := strconv.Atoi(m[1])
	if err != nil || hour > 23 {
		return s
	}
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
		if minute > 59 {
			return s
		}
	}

	switch strings.ToLower(strings.ReplaceAll(m[4], ".", "")) {
	case "pm":
		if hour > 12 {
			return s
		}
		hour = hour%12 + 12
	case "am":
		if hour > 12 {
			return s
		}
		hour = hour % 12
	}

	return formatClock(hour, minute)
}

func formatClock(hour, minute int) string {
	return strconv.Itoa(hour/10) + strconv.Itoa(hour%10) + ":" +
		strconv.Itoa(minute/10) + strconv.Itoa(minute%10)
}

// FormatProviderName приводит имя врача к Title Case.
// Слова целиком в верхнем регистре длиной до 3 символов считаются
// аббревиатурами (MD, DO, NP) и сохраняются как есть.
func FormatProviderName(name string) string {
	words := strings.Fields(name)
	if len(words) == 0 {
		return name
	}

	caser := cases.Title(language.English)
	for i, word := range words {
		if len(word) <= 3 && word == strings.ToUpper(word) && hasLetter(word) {
			continue
		}
		words[i] = caser.String(strings.ToLower(word))
	}
	return strings.Join(words, " ")
}

func hasLetter(s string) bool {
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return true
		}
	}
	return false
}

// transformNumber выполняет числовое приведение со строковым фолбэком
func transformNumber(raw interface{}) interface{} {
	if f, ok := rawFloat(raw); ok {
		return f
	}
	return rawString(raw)
}

// transformBoolean распознает общепринятые булевы токены
func transformBoolean(raw interface{}) interface{} {
	if b, ok := raw.(bool); ok {
		return b
	}

	s := strings.ToLower(rawString(raw))
	switch s {
	case "true", "yes", "y", "1":
		return true
	case "false", "no", "n", "0":
		return false
	}

	if f, ok := rawFloat(raw); ok {
		return f != 0
	}

	// Непустая строка считается истиной
	return s != ""
}
