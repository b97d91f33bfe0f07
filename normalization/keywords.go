package normalization

import (
	"strings"

	"github.com/kljensen/snowball"
)

// StemKeyword возвращает английскую основу слова по алгоритму Snowball.
// При ошибке стемминга возвращает слово без изменений.
func StemKeyword(word string) string {
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		return ""
	}
	stemmed, err := snowball.Stem(word, "english", true)
	if err != nil {
		return word
	}
	return stemmed
}

// KeywordOverlap проверяет, пересекается ли заголовок колонки хотя бы одним
// значимым словом (длиной от 3 символов, после стемминга) с одним из
// сконфигурированных кандидатов. Применяется при решении, стоит ли
// предупреждать о несопоставленной колонке: колонки, не похожие ни на один
// кандидат, считаются посторонними и не попадают в предупреждения.
func KeywordOverlap(header string, candidates []string) bool {
	headerStems := significantStems(header)
	if len(headerStems) == 0 {
		return false
	}

	for _, candidate := range candidates {
		for stem := range significantStems(candidate) {
			if headerStems[stem] {
				return true
			}
		}
	}
	return false
}

func significantStems(s string) map[string]bool {
	stems := make(map[string]bool)
	for _, word := range strings.FieldsFunc(strings.ToLower(s), isWordSeparator) {
		if len(word) < 3 {
			continue
		}
		stems[StemKeyword(word)] = true
	}
	return stems
}

func isWordSeparator(r rune) bool {
	return !(r >= 'a' && r <= 'z') && !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9')
}
