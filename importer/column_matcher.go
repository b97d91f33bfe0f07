package importer

import "strings"

// FindColumn находит лучший заголовок файла для списка имен-кандидатов
// поля. Детерминирован, не зависит от регистра и не имеет побочных
// эффектов. Сопоставление идет четырьмя строго упорядоченными ярусами;
// первый ярус, давший совпадение, побеждает, дальнейшие не проверяются:
//
//  1. точное совпадение (после нормализации или без учета регистра);
//  2. совпадение по всем словам кандидата длиннее 2 символов;
//  3. вхождение одной нормализованной строки в другую, короткая длиннее
//     3 символов;
//
// Четвертый ярус (одно ключевое слово) вынесен в FindColumnByKeywords и
// применяется только при недозаполненной конфигурации, чтобы не ловить
// ложные совпадения в обычном режиме.
//
// Возвращает пустую строку, если совпадений нет. Богатые выгрузки из
// разных источников называют одно и то же поле как угодно ("DOB",
// "Birth Date", "patient_dob"); ярусы обменивают полноту на точность
// по мере ослабления правил.
func FindColumn(headers []string, possibleColumns []string) string {
	// Ярус 1: точное совпадение, первый подходящий заголовок по порядку файла
	for _, header := range headers {
		normHeader := normalizeColumnName(header)
		for _, candidate := range possibleColumns {
			if normHeader == normalizeColumnName(candidate) || strings.EqualFold(header, candidate) {
				return header
			}
		}
	}

	// Ярус 2: заголовок содержит каждое значимое слово кандидата
	for _, header := range headers {
		normHeader := normalizeColumnName(header)
		for _, candidate := range possibleColumns {
			if matchesAllWords(normHeader, candidate) {
				return header
			}
		}
	}

	// Ярус 3: взаимное вхождение с защитой от тривиальных подстрок
	for _, header := range headers {
		normHeader := normalizeColumnName(header)
		for _, candidate := range possibleColumns {
			normCandidate := normalizeColumnName(candidate)
			shorter := len(normHeader)
			if len(normCandidate) < shorter {
				shorter = len(normCandidate)
			}
			if shorter <= 3 {
				continue
			}
			if strings.Contains(normHeader, normCandidate) || strings.Contains(normCandidate, normHeader) {
				return header
			}
		}
	}

	return ""
}

// FindColumnByKeywords четвертый ярус сопоставления: заголовок
// подходит, если содержит любое отдельное ключевое слово длиной от 3
// символов
func FindColumnByKeywords(headers []string, keywords []string) string {
	for _, header := range headers {
		normHeader := normalizeColumnName(header)
		for _, keyword := range keywords {
			keyword = normalizeColumnName(keyword)
			if len(keyword) < 3 {
				continue
			}
			if strings.Contains(normHeader, keyword) {
				return header
			}
		}
	}
	return ""
}

// matchesAllWords проверяет, содержит ли нормализованный заголовок все
// слова кандидата длиннее 2 символов
func matchesAllWords(normHeader, candidate string) bool {
	matched := false
	for _, word := range strings.Fields(candidate) {
		if len(word) <= 2 {
			continue
		}
		if !strings.Contains(normHeader, normalizeColumnName(word)) {
			return false
		}
		matched = true
	}
	return matched
}

// normalizeColumnName приводит имя колонки к нижнему регистру и
// отбрасывает все не-буквенно-цифровые символы
func normalizeColumnName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
