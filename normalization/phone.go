package normalization

import "strings"

// PhoneDigits извлекает из значения только цифры
func PhoneDigits(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FormatPhone нормализует телефон к каноническому формату (XXX) XXX-XXXX.
// Работает по принципу "лучшее из возможного": 11-значный номер с ведущей
// единицей приводится к 10 цифрам, нестандартная длина возвращается цифрами
// как есть, значение без цифр возвращается без изменений.
func FormatPhone(raw string) string {
	digits := PhoneDigits(raw)
	if digits == "" {
		return strings.TrimSpace(raw)
	}

	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}

	if len(digits) != 10 {
		return digits
	}

	return "(" + digits[0:3] + ") " + digits[3:6] + "-" + digits[6:10]
}
