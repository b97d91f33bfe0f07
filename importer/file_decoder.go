package importer

import (
	"bytes"
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	apperrors "ingestserver/server/errors"
)

// ParsedTable плоское представление загруженного файла: упорядоченные
// заголовки (порядок колонок файла) и строки как отображения
// заголовок -> сырое значение ячейки. После создания не изменяется.
type ParsedTable struct {
	Headers []string
	Rows    []map[string]interface{}
}

// Parse разбирает содержимое загруженного файла в плоскую таблицу.
// Содержимое может быть сырыми байтами, текстом или data-URI строкой
// с base64. Вид файла выбирается по расширению: .csv/.tsv/.txt идут
// через разбор текста с разделителями, все остальное считается книгой
// электронной таблицы (только первый лист).
func Parse(content []byte, fileName string) (*ParsedTable, error) {
	data, err := decodeContent(content)
	if err != nil {
		return nil, apperrors.NewParseError("file content could not be decoded", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, apperrors.NewParseError("file is empty", nil)
	}

	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv", ".txt":
		return parseDelimited(data, ',')
	case ".tsv":
		return parseDelimited(data, '\t')
	default:
		return parseWorkbook(data)
	}
}

// decodeContent снимает data-URI обертку и декодирует base64 при ее наличии
func decodeContent(content []byte) ([]byte, error) {
	if !bytes.HasPrefix(content, []byte("data:")) {
		return content, nil
	}

	idx := bytes.Index(content, []byte(";base64,"))
	if idx < 0 {
		return nil, fmt.Errorf("data URI without base64 payload")
	}

	payload := content[idx+len(";base64,"):]
	decoded, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(payload)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 payload: %w", err)
	}
	return decoded, nil
}

// parseDelimited разбирает текст с разделителями. Первая строка
// обязана быть заголовком; заголовки и строковые значения обрезаются,
// ведущий BOM удаляется, устаревшие кодировки перекодируются в UTF-8.
func parseDelimited(data []byte, delimiter rune) (*ParsedTable, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	// Файлы из старых выгрузок приходят не в UTF-8
	if !utf8.Valid(data) {
		decoded, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
		if err == nil && utf8.Valid(decoded) {
			data = decoded
		}
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rawHeaders, err := reader.Read()
	if err != nil {
		return nil, apperrors.NewParseError("failed to read header row", err)
	}

	headers := normalizeHeaders(rawHeaders)

	table := &ParsedTable{Headers: headers}
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperrors.NewParseError(fmt.Sprintf("malformed row at line %d", line), err)
		}

		row := make(map[string]interface{}, len(headers))
		empty := true
		for i, header := range headers {
			if i >= len(record) {
				break
			}
			value := strings.TrimSpace(record[i])
			row[header] = value
			if value != "" {
				empty = false
			}
		}
		if !empty {
			table.Rows = append(table.Rows, row)
		}
	}

	if len(table.Rows) == 0 {
		return nil, apperrors.NewParseError("file contains no data rows", nil)
	}

	return table, nil
}

// parseWorkbook разбирает первый лист книги электронной таблицы.
// Заголовки читаются из буквальной первой строки и далее явно
// используются как ключи, поэтому пустые и повторяющиеся ячейки
// заголовка не сдвигают колонки. Числовые ячейки сохраняются как
// числа: это нужно для серийных дат и долей суток ниже по конвейеру.
func parseWorkbook(data []byte) (*ParsedTable, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.NewParseError("failed to open workbook", err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, apperrors.NewParseError("workbook contains no worksheet", nil)
	}

	rows, err := f.GetRows(sheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, apperrors.NewParseError("failed to read worksheet rows", err)
	}
	if len(rows) < 2 {
		return nil, apperrors.NewParseError("worksheet has no data rows below the header", nil)
	}

	headers := normalizeHeaders(rows[0])

	table := &ParsedTable{Headers: headers}
	for _, record := range rows[1:] {
		row := make(map[string]interface{}, len(headers))
		empty := true
		for i, header := range headers {
			if i >= len(record) {
				break
			}
			value := cellValue(record[i])
			row[header] = value
			if value != nil && value != "" {
				empty = false
			}
		}
		if !empty {
			table.Rows = append(table.Rows, row)
		}
	}

	if len(table.Rows) == 0 {
		return nil, apperrors.NewParseError("worksheet contains no data rows", nil)
	}

	return table, nil
}

// normalizeHeaders обрезает заголовки и дает устойчивые имена пустым
// и повторяющимся ячейкам заголовка
func normalizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	seen := make(map[string]int, len(raw))

	for i, header := range raw {
		name := strings.TrimSpace(header)
		if name == "" {
			name = fmt.Sprintf("Column %d", i+1)
		}
		if n, ok := seen[name]; ok {
			seen[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n+1)
		}
		seen[name] = 1
		headers[i] = name
	}
	return headers
}

// cellValue сохраняет числовые значения ячеек как float64
func cellValue(raw string) interface{} {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return f
	}
	return trimmed
}
