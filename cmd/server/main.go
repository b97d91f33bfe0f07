// @title Patient Ingestion Server API
// @version 1.0
// @description API для загрузки реестров пациентов и записей. Разбор файлов, нормализация значений, валидация строк и сверка пациентов со справочником.

// @host localhost:9990
// @BasePath /api
// @schemes http https

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"ingestserver/database"
	"ingestserver/internal/config"
	"ingestserver/server"
)

func main() {
	log.Println("═══════════════════════════════════════════════════════")
	log.Println("🚀 Запуск Patient Ingestion Server...")

	// Загружаем конфигурацию из env
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("✗ Ошибка загрузки конфигурации: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("✗ Некорректная конфигурация: %v", err)
	}

	dbConfig := database.DBConfig{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}

	// Открываем справочник пациентов
	db, err := database.NewPatientDB(cfg.DirectoryDatabasePath, dbConfig)
	if err != nil {
		log.Fatalf("✗ Ошибка открытия справочника пациентов: %v", err)
	}
	defer db.Close()
	log.Printf("✓ Справочник пациентов: %s", cfg.DirectoryDatabasePath)

	srv := server.NewServer(db, cfg)

	// Запускаем сервер в отдельной горутине
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Fatalf("✗ КРИТИЧЕСКАЯ ОШИБКА: Паника при запуске сервера: %v", r)
			}
		}()
		if err := srv.Start(); err != nil {
			log.Fatalf("✗ КРИТИЧЕСКАЯ ОШИБКА: Ошибка запуска сервера: %v", err)
		}
	}()

	// Обработка сигналов для graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	log.Printf("Получен сигнал %v, останавливаем сервер...", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠ Ошибка graceful shutdown: %v", err)
	}

	log.Println("✓ Сервер остановлен")
}
