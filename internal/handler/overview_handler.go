package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/caihaoran-00/xiaojilu/internal/middleware"
	"github.com/caihaoran-00/xiaojilu/internal/model"
	"github.com/caihaoran-00/xiaojilu/pkg/logger"
	"github.com/caihaoran-00/xiaojilu/prometheus"
)

// OverviewHandler serves the combined instant+duration views the home screen
// renders: today's activity and a recent-days window.
type OverviewHandler struct {
	db  *gorm.DB
	now Clock
}

func NewOverviewHandler(db *gorm.DB, now Clock) *OverviewHandler {
	return &OverviewHandler{db: db, now: now}
}

// Today handles GET /api/today, a legacy alias for a one-day window.
func (h *OverviewHandler) Today(c echo.Context) error {
	since := startOfDay(h.now())
	return h.window(c, since)
}

// Recent handles GET /api/recent?days=N with N clamped to [1, 30].
func (h *OverviewHandler) Recent(c echo.Context) error {
	days := minRecentDays
	if raw := c.QueryParam("days"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			days = n
		}
	}
	if days < minRecentDays {
		days = minRecentDays
	}
	if days > maxRecentDays {
		days = maxRecentDays
	}

	since := startOfDay(h.now()).AddDate(0, 0, -(days - 1))
	return h.window(c, since)
}

func (h *OverviewHandler) window(c echo.Context, since time.Time) error {
	log := logger.FromContext(c)

	family, ok := middleware.FamilyFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "密码错误"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	instants := []model.InstantRecord{}
	if err := h.db.Where("family_id = ? AND recorded_at >= ?", family.ID, since).
		Order("recorded_at DESC").Find(&instants).Error; err != nil {
		log.Error("Failed to query instant records", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to query records"})
	}

	durations := []model.DurationRecord{}
	if err := h.db.Where("family_id = ? AND started_at >= ?", family.ID, since).
		Order("started_at DESC").Find(&durations).Error; err != nil {
		log.Error("Failed to query duration records", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to query records"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"instants":  instants,
		"durations": durations,
	})
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
