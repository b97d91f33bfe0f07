package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"ingestserver/importer"
	apperrors "ingestserver/server/errors"
	"ingestserver/server/types"
)

// IngestionRunner контракт сервиса загрузки для HTTP слоя
type IngestionRunner interface {
	Ingest(ctx context.Context, content []byte, fileName string, cfg importer.IngestionConfig, orgID string) (*types.IngestionResult, error)
	Preview(ctx context.Context, content []byte, fileName string, cfg importer.IngestionConfig, orgID string) (*types.IngestionResult, error)
}

// IngestionHandler HTTP обработчик загрузки реестров
type IngestionHandler struct {
	service        IngestionRunner
	maxUploadBytes int64
}

// NewIngestionHandler создает обработчик загрузки
func NewIngestionHandler(service IngestionRunner, maxUploadBytes int64) *IngestionHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 32 << 20
	}
	return &IngestionHandler{service: service, maxUploadBytes: maxUploadBytes}
}

// ErrorResponse структура ответа с ошибкой
type ErrorResponse struct {
	Error string `json:"error"`
}

// HandleIngest обработчик полной загрузки файла
// @Summary Загрузить файл реестра пациентов
// @Description Разбирает файл, валидирует строки и сверяет пациентов со справочником организации
// @Tags ingestion
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Файл реестра (csv, tsv, xlsx)"
// @Param org_id formData string true "Идентификатор организации"
// @Param config formData string false "Конфигурация полей (JSON IngestionConfig)"
// @Success 200 {object} types.IngestionResult "Результат загрузки"
// @Failure 400 {object} ErrorResponse "Файл нечитаем или конфигурация непригодна"
// @Failure 500 {object} ErrorResponse "Внутренняя ошибка сервера"
// @Router /api/ingest [post]
func (h *IngestionHandler) HandleIngest(c *gin.Context) {
	h.runIngestion(c, false)
}

// HandlePreview обработчик предпросмотра загрузки: строки
// классифицируются, записи в справочнике не создаются
// @Summary Предпросмотр загрузки файла
// @Tags ingestion
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Файл реестра (csv, tsv, xlsx)"
// @Param org_id formData string true "Идентификатор организации"
// @Param config formData string false "Конфигурация полей (JSON IngestionConfig)"
// @Success 200 {object} types.IngestionResult "Результат предпросмотра"
// @Failure 400 {object} ErrorResponse "Файл нечитаем или конфигурация непригодна"
// @Router /api/ingest/preview [post]
func (h *IngestionHandler) HandlePreview(c *gin.Context) {
	h.runIngestion(c, true)
}

func (h *IngestionHandler) runIngestion(c *gin.Context, preview bool) {
	orgID := c.PostForm("org_id")
	if orgID == "" {
		SendJSONError(c, http.StatusBadRequest, "org_id is required")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		SendJSONError(c, http.StatusBadRequest, "file is required")
		return
	}
	if fileHeader.Size > h.maxUploadBytes {
		SendJSONError(c, http.StatusRequestEntityTooLarge, "file is too large")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		SendJSONError(c, http.StatusBadRequest, "failed to open uploaded file")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		SendJSONError(c, http.StatusBadRequest, "failed to read uploaded file")
		return
	}

	var cfg importer.IngestionConfig
	if raw := c.PostForm("config"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			SendJSONError(c, http.StatusBadRequest, "config is not valid JSON: "+err.Error())
			return
		}
	}

	run := h.service.Ingest
	if preview {
		run = h.service.Preview
	}

	result, err := run(c.Request.Context(), content, fileHeader.Filename, cfg, orgID)
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			SendJSONError(c, appErr.StatusCode(), appErr.UserMessage())
			return
		}
		SendJSONError(c, http.StatusInternalServerError, "ingestion failed")
		return
	}

	SendJSONResponse(c, http.StatusOK, result)
}

// SendJSONResponse отправляет успешный JSON ответ
func SendJSONResponse(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// SendJSONError отправляет JSON ответ с ошибкой
func SendJSONError(c *gin.Context, status int, message string) {
	c.JSON(status, ErrorResponse{Error: message})
}
