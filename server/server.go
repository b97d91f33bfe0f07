package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"ingestserver/database"
	"ingestserver/internal/config"
	"ingestserver/server/handlers"
	"ingestserver/server/middleware"
	"ingestserver/server/services"
)

// Server HTTP сервер для приема реестров пациентов
type Server struct {
	db         *database.PatientDB
	config     *config.Config
	httpServer *http.Server
	ingestion  *services.IngestionService
	startTime  time.Time
}

// NewServer создает сервер с подключенным справочником пациентов
func NewServer(db *database.PatientDB, cfg *config.Config) *Server {
	opts := services.IngestionOptions{
		MaxWorkers:          cfg.MaxWorkers,
		SampleRowsLimit:     cfg.SampleRowsLimit,
		DirectoryRatePerSec: cfg.DirectoryRatePerSec,
	}

	return &Server{
		db:        db,
		config:    cfg,
		ingestion: services.NewIngestionService(db, opts),
		startTime: time.Now(),
	}
}

func (s *Server) buildHTTPHandler() http.Handler {
	// Режим Gin можно переопределить через переменную окружения GIN_MODE
	if ginMode := os.Getenv("GIN_MODE"); ginMode == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.GinRequestIDMiddleware())
	router.Use(middleware.GinCORSMiddleware())
	router.Use(middleware.GinRecoveryMiddleware())

	ingestionHandler := handlers.NewIngestionHandler(s.ingestion, int64(s.config.MaxUploadBytes))

	api := router.Group("/api")
	{
		api.POST("/ingest", ingestionHandler.HandleIngest)
		api.POST("/ingest/preview", ingestionHandler.HandlePreview)
		api.GET("/health", s.handleHealth)
	}

	return router
}

// handleHealth обработчик проверки состояния сервера
// @Summary Проверка состояния сервера
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{} "Сервер работает"
// @Failure 503 {object} map[string]interface{} "Справочник пациентов недоступен"
// @Router /api/health [get]
func (s *Server) handleHealth(c *gin.Context) {
	status := "ok"
	code := http.StatusOK
	if err := s.db.Ping(); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	patients, _ := s.db.CountAllPatients()

	c.JSON(code, gin.H{
		"status":         status,
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
		"patients":       patients,
	})
}

// Start запускает HTTP сервер и блокируется до его остановки
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%s", s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.buildHTTPHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // Загрузка больших реестров может обрабатываться долго
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("Сервер запускается на порту %s", s.config.Port)
	log.Printf("API доступно по адресу: http://localhost%s", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ошибка запуска HTTP сервера: %w", err)
	}

	return nil
}

// ServeHTTP реализует http.Handler для тестов
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.buildHTTPHandler().ServeHTTP(w, r)
}

// Shutdown останавливает HTTP сервер gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	log.Println("Initiating graceful shutdown...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка остановки сервера: %w", err)
	}

	log.Println("Graceful shutdown completed")
	return nil
}
