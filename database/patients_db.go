package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"ingestserver/identity"
)

// DBConfig конфигурация подключения к БД
type DBConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// PatientDB справочник пациентов на sqlite. Реализует
// identity.Directory: поиск-или-создание записи по хэшу личности,
// идемпотентно и безопасно для конкурентных вызовов.
type PatientDB struct {
	conn *sql.DB
}

// NewPatientDB открывает справочник пациентов и применяет миграции
func NewPatientDB(dbPath string, cfg DBConfig) (*PatientDB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open patients database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		conn.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	db := &PatientDB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate patients database: %w", err)
	}

	return db, nil
}

// migrate создает схему справочника пациентов
func (db *PatientDB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS patients (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		org_id TEXT NOT NULL,
		identity_hash TEXT NOT NULL,
		secondary_hash TEXT,
		first_name TEXT,
		last_name TEXT,
		dob TEXT,
		phone TEXT,
		external_id TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(org_id, identity_hash)
	);
	CREATE INDEX IF NOT EXISTS idx_patients_secondary_hash
		ON patients(org_id, secondary_hash);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// FindOrCreatePatient находит или создает запись пациента по хэшу
// личности. Идемпотентен: повторный вызов с той же нормализованной
// личностью не создает вторую запись (уникальный индекс + ON CONFLICT).
func (db *PatientDB) FindOrCreatePatient(ctx context.Context, record identity.PatientRecord) (int64, bool, error) {
	if record.IdentityHash == "" {
		return 0, false, fmt.Errorf("identity hash is required")
	}
	if record.OrgID == "" {
		return 0, false, fmt.Errorf("org id is required")
	}

	result, err := db.conn.ExecContext(ctx, `
		INSERT INTO patients (org_id, identity_hash, secondary_hash, first_name, last_name, dob, phone, external_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(org_id, identity_hash) DO NOTHING`,
		record.OrgID, record.IdentityHash, record.SecondaryHash,
		record.FirstName, record.LastName, record.DOB, record.Phone, record.ExternalID,
	)
	if err != nil {
		return 0, false, fmt.Errorf("failed to insert patient: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("failed to check insert result: %w", err)
	}

	var id int64
	err = db.conn.QueryRowContext(ctx,
		`SELECT id FROM patients WHERE org_id = ? AND identity_hash = ?`,
		record.OrgID, record.IdentityHash,
	).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("failed to load patient id: %w", err)
	}

	return id, inserted > 0, nil
}

// CountPatients возвращает число пациентов организации
func (db *PatientDB) CountPatients(orgID string) (int, error) {
	var count int
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM patients WHERE org_id = ?`, orgID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count patients: %w", err)
	}
	return count, nil
}

// CountAllPatients возвращает общее число пациентов в справочнике
func (db *PatientDB) CountAllPatients() (int, error) {
	var count int
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM patients`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count patients: %w", err)
	}
	return count, nil
}

// Ping проверяет доступность справочника
func (db *PatientDB) Ping() error {
	return db.conn.Ping()
}

// Close закрывает подключение к справочнику
func (db *PatientDB) Close() error {
	return db.conn.Close()
}
