package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"ingestserver/normalization"
	apperrors "ingestserver/server/errors"
)

// PatientRecord нормализованные данные пациента для справочника
type PatientRecord struct {
	FirstName     string
	LastName      string
	DOB           string
	Phone         string
	ExternalID    string
	OrgID         string
	IdentityHash  string
	SecondaryHash string
}

// Directory внешний справочник пациентов. Должен быть идемпотентен по
// нормализованной личности и допускать конкурентные вызовы.
type Directory interface {
	FindOrCreatePatient(ctx context.Context, record PatientRecord) (id int64, isNew bool, err error)
}

// Hash вычисляет первичный хэш личности пациента. Телефон и дата
// рождения сводятся к цифрам, имена к нижнему регистру без пробелов,
// поэтому две записи одной личности дают один хэш независимо от
// исходного форматирования (дефисы в телефоне, регистр имени).
func Hash(firstName, lastName, dob, phone string) string {
	return digest(
		normalizeName(firstName),
		normalizeName(lastName),
		digitsOnly(dob),
		normalization.PhoneDigits(phone),
	)
}

// SecondaryHash запасной хэш для записей без имени: ловит вероятные
// дубли по фамилии, дате рождения и телефону
func SecondaryHash(lastName, dob, phone string) string {
	return digest(
		"partial",
		normalizeName(lastName),
		digitsOnly(dob),
		normalization.PhoneDigits(phone),
	)
}

func digest(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func digitsOnly(s string) string {
	return normalization.PhoneDigits(s)
}

// HashPatientData вычисляет хэш личности по извлеченным данным строки.
// Возвращает пустой хэш, когда данных недостаточно: нет ни телефона,
// ни комбинации имени с датой рождения. Такая строка исключается из
// учета уникальности, но может остаться валидной.
func HashPatientData(firstName, lastName, dob, phone string) string {
	hasPhone := normalization.PhoneDigits(phone) != ""
	hasName := normalizeName(firstName) != "" || normalizeName(lastName) != ""
	hasDOB := digitsOnly(dob) != ""

	if !hasPhone && !(hasName && hasDOB) {
		return ""
	}

	// Без имени, но с фамилией, датой и телефоном — запасной хэш
	if normalizeName(firstName) == "" && normalizeName(lastName) != "" && hasDOB && hasPhone {
		return SecondaryHash(lastName, dob, phone)
	}

	return Hash(firstName, lastName, dob, phone)
}

// Resolution результат сверки строки со справочником пациентов
type Resolution struct {
	PatientID       int64
	IsNewPatient    bool
	Hash            string
	DuplicateInFile bool
}

// Resolver сверяет личности пациентов со справочником и отслеживает
// дубли внутри одного файла. Кэш по хэшу делает повторную сверку той
// же личности в рамках загрузки идемпотентной: справочник вызывается
// один раз на личность.
type Resolver struct {
	directory Directory
	limiter   *rate.Limiter

	mu   sync.Mutex
	seen map[string]Resolution
}

// NewResolver создает резолвер для одной загрузки. ratePerSec
// ограничивает частоту обращений к справочнику (<=0 отключает лимит).
func NewResolver(directory Directory, ratePerSec int) *Resolver {
	limit := rate.Inf
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
	}
	return &Resolver{
		directory: directory,
		limiter:   rate.NewLimiter(limit, 1),
		seen:      make(map[string]Resolution),
	}
}

// Resolve находит или создает запись пациента по данным строки.
// Возвращает nil без ошибки, когда данных для хэша недостаточно.
// Для повторного хэша в том же файле справочник не вызывается:
// возвращается результат первого вхождения с пометкой дубля.
func (r *Resolver) Resolve(ctx context.Context, record PatientRecord) (*Resolution, error) {
	hash := HashPatientData(record.FirstName, record.LastName, record.DOB, record.Phone)
	if hash == "" {
		return nil, nil
	}

	r.mu.Lock()
	if prior, ok := r.seen[hash]; ok {
		r.mu.Unlock()
		dup := prior
		dup.DuplicateInFile = true
		dup.IsNewPatient = false
		return &dup, nil
	}
	r.mu.Unlock()

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, apperrors.NewIdentityResolutionError("patient directory lookup cancelled", err)
	}

	record.IdentityHash = hash
	record.SecondaryHash = SecondaryHash(record.LastName, record.DOB, record.Phone)

	id, isNew, err := r.directory.FindOrCreatePatient(ctx, record)
	if err != nil {
		return nil, apperrors.NewIdentityResolutionError("patient directory lookup failed", err)
	}

	resolution := Resolution{PatientID: id, IsNewPatient: isNew, Hash: hash}
	r.mu.Lock()
	r.seen[hash] = resolution
	r.mu.Unlock()

	return &resolution, nil
}
