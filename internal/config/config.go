package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config конфигурация сервера загрузки реестров
type Config struct {
	// Сервер
	Port            string        `json:"port"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`

	// Справочник пациентов
	DirectoryDatabasePath string        `json:"directory_database_path"`
	MaxOpenConns          int           `json:"max_open_conns"`
	MaxIdleConns          int           `json:"max_idle_conns"`
	ConnMaxLifetime       time.Duration `json:"conn_max_lifetime"`
	DirectoryRatePerSec   int           `json:"directory_rate_per_sec"`

	// Конвейер загрузки
	MaxWorkers      int `json:"max_workers"`
	SampleRowsLimit int `json:"sample_rows_limit"`
	MaxUploadBytes  int `json:"max_upload_bytes"`
}

// LoadConfig загружает конфигурацию из переменных окружения
func LoadConfig() (*Config, error) {
	config := &Config{
		// Сервер
		Port:            getEnv("SERVER_PORT", "9990"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		// Справочник пациентов
		DirectoryDatabasePath: getEnv("DIRECTORY_DATABASE_PATH", "patients.db"),
		MaxOpenConns:          getEnvInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:          getEnvInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime:       getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		DirectoryRatePerSec:   getEnvInt("DIRECTORY_RATE_LIMIT_PER_SEC", 50),

		// Конвейер загрузки
		MaxWorkers:      getEnvInt("INGEST_MAX_WORKERS", 4),
		SampleRowsLimit: getEnvInt("SAMPLE_ROWS_LIMIT", 5),
		MaxUploadBytes:  getEnvInt("MAX_UPLOAD_BYTES", 32<<20),
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// Validate проверяет согласованность конфигурации
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.DirectoryDatabasePath == "" {
		return fmt.Errorf("directory database path is required")
	}
	if c.MaxWorkers <= 0 {
		return fmt.Errorf("ingest max workers must be positive, got %d", c.MaxWorkers)
	}
	if c.SampleRowsLimit <= 0 {
		return fmt.Errorf("sample rows limit must be positive, got %d", c.SampleRowsLimit)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive, got %d", c.MaxUploadBytes)
	}
	return nil
}

// getEnv получает переменную окружения или возвращает значение по умолчанию
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt получает переменную окружения как int или возвращает значение по умолчанию
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration получает переменную окружения как Duration или возвращает значение по умолчанию
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
