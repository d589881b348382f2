package handler

import (
	"math"
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

// DurationHandler manages start/end bracketed records. A record is open
// until someone ends it; ending is the only transition and it is terminal.
type DurationHandler struct {
	db    *gorm.DB
	store *imagestore.Store
	now   Clock
}

func NewDurationHandler(db *gorm.DB, store *imagestore.Store, now Clock) *DurationHandler {
	return &DurationHandler{db: db, store: store, now: now}
}

// Start handles POST /api/duration/start
func (h *DurationHandler) Start(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordOperation("duration", "start")

	family, ok := middleware.FamilyFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "密码错误"})
	}

	var req struct {
		EventType  string     `json:"event_type"`
		EventLabel string     `json:"event_label"`
		StartedBy  string     `json:"started_by"`
		StartedAt  *time.Time `json:"started_at"`
		Note       string     `json:"note"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse duration start request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.EventType == "" || req.EventLabel == "" || req.StartedBy == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "event_type, event_label and started_by are required"})
	}

	startedAt := h.now()
	if req.StartedAt != nil {
		startedAt = *req.StartedAt
	}

	record := model.DurationRecord{
		FamilyID:   family.ID,
		EventType:  req.EventType,
		EventLabel: req.EventLabel,
		StartedBy:  req.StartedBy,
		StartedAt:  startedAt,
		Note:       req.Note,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := h.db.Create(&record).Error; err != nil {
		log.Error("Failed to create duration record", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to save record"})
	}

	prometheus.ActiveEventsGauge.Inc()

	log.Info("Duration event started",
		zap.Uint("id", record.ID),
		zap.Uint("family_id", family.ID),
		zap.String("event_type", record.EventType))

	return c.JSON(http.StatusOK, echo.Map{"success": true, "id": record.ID})
}

// End handles POST /api/duration/end/:id. Any member of the family may end
// an event started by a different member. Racing callers are serialized by a
// conditional update on the open state: exactly one wins, the rest observe
// the already-ended conflict.
func (h *DurationHandler) End(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordOperation("duration", "end")

	family, ok := middleware.FamilyFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "密码错误"})
	}

	id, ok := parseID(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid record id"})
	}

	var req struct {
		EndedBy string     `json:"ended_by"`
		EndedAt *time.Time `json:"ended_at"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse duration end request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.EndedBy == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ended_by is required"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	var record model.DurationRecord
	if result := h.db.Where("id = ? AND family_id = ?", id, family.ID).First(&record); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "记录不存在"})
	}

	if record.EndedAt != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "该事件已经结束"})
	}

	endedAt := h.now()
	if req.EndedAt != nil {
		endedAt = *req.EndedAt
	}

	// A caller-supplied ended_at before started_at yields a negative value
	// and is stored as-is.
	minutes := roundMinutes(endedAt.Sub(record.StartedAt))

	result := h.db.Model(&model.DurationRecord{}).
		Where("id = ? AND family_id = ? AND ended_at IS NULL", id, family.ID).
		Updates(map[string]interface{}{
			"ended_by":         req.EndedBy,
			"ended_at":         endedAt,
			"duration_minutes": minutes,
		})
	if result.Error != nil {
		log.Error("Failed to end duration record", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update record"})
	}
	if result.RowsAffected == 0 {
		// Lost the race to a concurrent end call.
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "该事件已经结束"})
	}

	prometheus.ActiveEventsGauge.Dec()

	log.Info("Duration event ended",
		zap.Uint("id", id),
		zap.Uint("family_id", family.ID),
		zap.Float64("duration_minutes", minutes))

	return c.JSON(http.StatusOK, echo.Map{"success": true, "duration_minutes": minutes})
}

// Update handles PUT /api/duration/:id. Only event_type, event_label and
// note are editable here; who did what when is a historical fact once set.
func (h *DurationHandler) Update(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordOperation("duration", "update")

	family, ok := middleware.FamilyFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "密码错误"})
	}

	id, ok := parseID(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid record id"})
	}

	var req struct {
		EventType  *string `json:"event_type"`
		EventLabel *string `json:"event_label"`
		Note       *string `json:"note"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse duration update request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	updates := map[string]interface{}{}
	if req.EventType != nil {
		updates["event_type"] = *req.EventType
	}
	if req.EventLabel != nil {
		updates["event_label"] = *req.EventLabel
	}
	if req.Note != nil {
		updates["note"] = *req.Note
	}
	if len(updates) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "没有要修改的内容"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	result := h.db.Model(&model.DurationRecord{}).
		Where("id = ? AND family_id = ?", id, family.ID).
		Updates(updates)
	if result.Error != nil {
		log.Error("Failed to update duration record", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update record"})
	}
	if result.RowsAffected == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "记录不存在"})
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// List handles GET /api/duration
func (h *DurationHandler) List(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordOperation("duration", "list")

	family, ok := middleware.FamilyFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "密码错误"})
	}

	limit := parseLimit(c.QueryParam("limit"))

	query := h.db.Where("family_id = ?", family.ID)
	if eventType := c.QueryParam("event_type"); eventType != "" {
		query = query.Where("event_type = ?", eventType)
	}
	if c.QueryParam("active_only") == "true" {
		query = query.Where("ended_at IS NULL")
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	records := []model.DurationRecord{}
	if err := query.Order("started_at DESC").Limit(limit).Find(&records).Error; err != nil {
		log.Error("Failed to list duration records", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to query records"})
	}

	return c.JSON(http.StatusOK, records)
}

// Active handles GET /api/active
func (h *DurationHandler) Active(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordOperation("duration", "active")

	family, ok := middleware.FamilyFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "密码错误"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	records := []model.DurationRecord{}
	if err := h.db.Where("family_id = ? AND ended_at IS NULL", family.ID).
		Order("started_at DESC").Find(&records).Error; err != nil {
		log.Error("Failed to list active records", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to query records"})
	}

	return c.JSON(http.StatusOK, records)
}

// Delete handles DELETE /api/duration/:id
func (h *DurationHandler) Delete(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordOperation("duration", "delete")

	family, ok := middleware.FamilyFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "密码错误"})
	}

	id, ok := parseID(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid record id"})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	result := h.db.Where("id = ? AND family_id = ?", id, family.ID).Delete(&model.DurationRecord{})
	if result.Error != nil {
		log.Error("Failed to delete duration record", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete record"})
	}
	if result.RowsAffected == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "记录不存在"})
	}

	if err := removeRecordImages(log, h.db, h.store, family.ID, model.RecordTypeDuration, id); err != nil {
		log.Error("Failed to delete record attachments", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete attachments"})
	}

	log.Info("Duration record deleted", zap.Uint("id", id), zap.Uint("family_id", family.ID))

	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// roundMinutes converts a duration to minutes rounded to one decimal place.
func roundMinutes(d time.Duration) float64 {
	return math.Round(d.Minutes()*10) / 10
}
