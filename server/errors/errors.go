package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind категория ошибки по таксономии конвейера загрузки
type Kind string

const (
	KindParse              Kind = "parse"               // файл нечитаем, пуст или без листа
	KindConfig             Kind = "config"              // конфигурация полей непригодна
	KindRowExtraction      Kind = "row_extraction"      // отсутствуют обязательные поля строки
	KindRowValidation      Kind = "row_validation"      // нарушены правила телефона/даты/имени
	KindIdentityResolution Kind = "identity_resolution" // сбой обращения к справочнику пациентов
	KindInternal           Kind = "internal"
)

// AppError представляет ошибку приложения с HTTP статусом и категорией
type AppError struct {
	Code    int    `json:"status_code"` // HTTP статус код
	Kind    Kind   `json:"kind"`        // Категория из таксономии
	Message string `json:"message"`     // Сообщение для пользователя
	Err     error  `json:"-"`           // Внутренняя ошибка для логов, не сериализуется
	Context string `json:"-"`           // Дополнительный контекст (функция, параметры)
}

// Error реализует интерфейс error
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap возвращает вложенную ошибку для errors.Is и errors.As
func (e *AppError) Unwrap() error {
	return e.Err
}

// StatusCode возвращает HTTP статус код ошибки
func (e *AppError) StatusCode() int {
	return e.Code
}

// UserMessage возвращает сообщение для пользователя
func (e *AppError) UserMessage() string {
	return e.Message
}

// WithContext добавляет контекст к ошибке
func (e *AppError) WithContext(context string) *AppError {
	e.Context = context
	return e
}

// NewParseError создает фатальную ошибку разбора файла.
// Прерывает всю загрузку до обработки строк.
func NewParseError(message string, err error) *AppError {
	return &AppError{
		Code:    http.StatusBadRequest,
		Kind:    KindParse,
		Message: message,
		Err:     err,
	}
}

// NewConfigError создает фатальную ошибку конфигурации полей
func NewConfigError(message string, err error) *AppError {
	return &AppError{
		Code:    http.StatusBadRequest,
		Kind:    KindConfig,
		Message: message,
		Err:     err,
	}
}

// NewValidationError создает ошибку 400 Bad Request
func NewValidationError(message string, err error) *AppError {
	return &AppError{
		Code:    http.StatusBadRequest,
		Kind:    KindRowValidation,
		Message: message,
		Err:     err,
	}
}

// NewIdentityResolutionError создает строчную ошибку справочника пациентов.
// Не фатальна: строка помечается невалидной, загрузка продолжается.
func NewIdentityResolutionError(message string, err error) *AppError {
	return &AppError{
		Code:    http.StatusBadGateway,
		Kind:    KindIdentityResolution,
		Message: message,
		Err:     err,
	}
}

// NewInternalError создает ошибку 500 Internal Server Error.
// Для пользователя возвращается общее сообщение, детали только в логах.
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Code:    http.StatusInternalServerError,
		Kind:    KindInternal,
		Message: "internal server error",
		Err:     errors.Join(errors.New(message), err),
	}
}

// IsKind проверяет, относится ли ошибка к указанной категории
func IsKind(err error, kind Kind) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// IsFatal отвечает, прерывает ли ошибка загрузку целиком.
// Фатальны только ошибки разбора файла и конфигурации.
func IsFatal(err error) bool {
	return IsKind(err, KindParse) || IsKind(err, KindConfig)
}

// WrapError оборачивает существующую ошибку с контекстом.
// Если ошибка уже AppError, сохраняет статус и категорию
func WrapError(err error, message string) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Code:    appErr.Code,
			Kind:    appErr.Kind,
			Message: fmt.Sprintf("%s: %s", message, appErr.Message),
			Err:     appErr.Err,
			Context: appErr.Context,
		}
	}

	return NewInternalError(message, err)
}
