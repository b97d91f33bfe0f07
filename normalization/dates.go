package normalization

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	twoDigitDatePattern  = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2})$`)
	fourDigitDatePattern = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
	timePattern          = regexp.MustCompile(`(?i)^\s*(\d{1,2})(?::(\d{2}))?(?::(\d{2}))?\s*(a\.?m\.?|p\.?m\.?)?\s*$`)
)

// genericDateLayouts форматы для общего разбора дат (попытка (e))
var genericDateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01-02-2006",
	"1-2-2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"02.01.2006",
	time.RFC3339,
}

// resolveDate пытается получить дату из значения ячейки.
// Порядок попыток: числовой серийный номер таблицы, MM/DD/YY,
// DD/MM/YY, MM/DD/YYYY, затем общий разбор. Для двузначных годов
// применяется эвристика даты рождения (см. resolveTwoDigitYear).
func resolveDate(raw interface{}, now time.Time) (time.Time, bool) {
	// Серийный номер: количество дней с эпохи таблицы
	if f, ok := rawFloat(raw); ok {
		if f > 1000 {
			return excelSerialToDate(f), true
		}
		return time.Time{}, false
	}

	s := rawString(raw)

	// MM/DD/YY
	if m := twoDigitDatePattern.FindStringSubmatch(s); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		yy, _ := strconv.Atoi(m[3])
		if t, ok := resolveTwoDigitYear(month, day, yy, now); ok {
			return t, true
		}
		// DD/MM/YY с той же эвристикой
		if t, ok := resolveTwoDigitYear(day, month, yy, now); ok {
			return t, true
		}
		return time.Time{}, false
	}

	// MM/DD/YYYY
	if m := fourDigitDatePattern.FindStringSubmatch(s); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if t, ok := makeDate(year, month, day); ok {
			return t, true
		}
		return time.Time{}, false
	}

	// Общий разбор с коррекцией будущих дат
	for _, layout := range genericDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.After(now) {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}

	return time.Time{}, false
}

// excelSerialToDate конвертирует серийный номер таблицы в дату.
// Эпоха 1899-12-31 воспроизводит традиционное смещение на один день.
func excelSerialToDate(serial float64) time.Time {
	epoch := time.Date(1899, time.December, 31, 0, 0, 0, 0, time.UTC)
	return epoch.AddDate(0, 0, int(serial))
}

// resolveTwoDigitYear применяет эвристику двузначного года для дат рождения:
//   - год больше текущего двузначного года означает прошлый век;
//   - иначе берется текущий век, но если подразумеваемый возраст
//     превышает 80 лет, год сдвигается в прошлый век;
//   - если дата все еще в будущем, вычитается ровно 100 лет.
func resolveTwoDigitYear(month, day, yy int, now time.Time) (time.Time, bool) {
	currentYY := now.Year() % 100

	var year int
	if yy > currentYY {
		year = 1900 + yy
	} else {
		year = 2000 + yy
		if now.Year()-year > 80 {
			year = 1900 + yy
		}
	}

	t, ok := makeDate(year, month, day)
	if !ok {
		return time.Time{}, false
	}
	if t.After(now) {
		t = t.AddDate(-100, 0, 0)
	}
	return t, true
}

// makeDate строит дату и отклоняет несуществующие комбинации
// (time.Date молча нормализует переполнение месяца и дня)
func makeDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if int(t.Month()) != month || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

// IsPlausibleDate отвечает, можно ли трактовать значение как дату
// в какой-либо распознаваемой форме. Используется валидатором строк.
func IsPlausibleDate(raw interface{}) bool {
	if isEmptyValue(raw) {
		return false
	}
	if f, ok := rawFloat(raw); ok {
		return f > 1000
	}
	if s := strings.TrimSpace(rawString(raw)); len(s) >= 4 {
		_, ok := resolveDate(s, time.Now())
		return ok
	}
	return false
}
