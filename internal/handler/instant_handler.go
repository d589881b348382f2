package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/caihaoran-00/xiaojilu/internal/imagestore"
	"github.com/caihaoran-00/xiaojilu/internal/middleware"
	"github.com/caihaoran-00/xiaojilu/internal/model"
	"github.com/caihaoran-00/xiaojilu/pkg/logger"
	"github.com/caihaoran-00/xiaojilu/prometheus"
)

// InstantHandler manages point-in-time records.
type InstantHandler struct {
	db    *gorm.DB
	store *imagestore.Store
	now   Clock
}

func NewInstantHandler(db *gorm.DB, store *imagestore.Store, now Clock) *InstantHandler {
	return &InstantHandler{db: db, store: store, now: now}
}

// Create handles POST /api/instant
func (h *InstantHandler) Create(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordOperation("instant", "create")

	family, ok := middleware.FamilyFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "密码错误"})
	}

	var req struct {
		EventType  string     `json:"event_type"`
		EventLabel string     `json:"event_label"`
		RecordedBy string     `json:"recorded_by"`
		RecordedAt *time.Time `json:"recorded_at"`
		Note       string     `json:"note"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse instant record request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.EventType == "" || req.EventLabel == "" || req.RecordedBy == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "event_type, event_label and recorded_by are required"})
	}

	recordedAt := h.now()
	if req.RecordedAt != nil {
		recordedAt = *req.RecordedAt
	}

	record := model.InstantRecord{
		FamilyID:   family.ID,
		EventType:  req.EventType,
		EventLabel: req.EventLabel,
		RecordedBy: req.RecordedBy,
		RecordedAt: recordedAt,
		Note:       req.Note,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := h.db.Create(&record).Error; err != nil {
		log.Error("Failed to create instant record", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to save record"})
	}

	log.Info("Instant record created",
		zap.Uint("id", record.ID),
		zap.Uint("family_id", family.ID),
		zap.String("event_type", record.EventType))

	return c.JSON(http.StatusOK, echo.Map{"success": true, "id": record.ID})
}

// List handles GET /api/instant
func (h *InstantHandler) List(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordOperation("instant", "list")

	family, ok := middleware.FamilyFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "密码错误"})
	}

	limit := parseLimit(c.QueryParam("limit"))

	query := h.db.Where("family_id = ?", family.ID)
	if eventType := c.QueryParam("event_type"); eventType != "" {
		query = query.Where("event_type = ?", eventType)
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	records := []model.InstantRecord{}
	if err := query.Order("recorded_at DESC").Limit(limit).Find(&records).Error; err != nil {
		log.Error("Failed to list instant records", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to query records"})
	}

	return c.JSON(http.StatusOK, records)
}

// Delete handles DELETE /api/instant/:id
func (h *InstantHandler) Delete(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordOperation("instant", "delete")

	family, ok := middleware.FamilyFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "密码错误"})
	}

	id, ok := parseID(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid record id"})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	result := h.db.Where("id = ? AND family_id = ?", id, family.ID).Delete(&model.InstantRecord{})
	if result.Error != nil {
		log.Error("Failed to delete instant record", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete record"})
	}
	if result.RowsAffected == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "记录不存在"})
	}

	if err := removeRecordImages(log, h.db, h.store, family.ID, model.RecordTypeInstant, id); err != nil {
		log.Error("Failed to delete record attachments", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete attachments"})
	}

	log.Info("Instant record deleted", zap.Uint("id", id), zap.Uint("family_id", family.ID))

	return c.JSON(http.StatusOK, echo.Map{"success": true})
}
