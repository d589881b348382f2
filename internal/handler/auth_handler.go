package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/caihaoran-00/xiaojilu/internal/model"
	"github.com/caihaoran-00/xiaojilu/pkg/logger"
	"github.com/caihaoran-00/xiaojilu/prometheus"
)

// AuthHandler verifies family and admin passwords. The family password
// doubles as the API token: clients echo it back in X-Auth-Token on every
// request, so there is no session state to manage.
type AuthHandler struct {
	db            *gorm.DB
	adminPassword string
}

func NewAuthHandler(db *gorm.DB, adminPassword string) *AuthHandler {
	return &AuthHandler{db: db, adminPassword: adminPassword}
}

// Login handles POST /api/auth
func (h *AuthHandler) Login(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.LoginCounter.Inc()

	var req struct {
		Password string `json:"password"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse login request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var family model.Family
	if result := h.db.Where("password = ?", req.Password).First(&family); result.Error != nil {
		log.Warn("Family login failed")
		prometheus.RecordAuthError("invalid_password")
		return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": "密码错误"})
	}

	log.Info("Family logged in", zap.Uint("family_id", family.ID))

	return c.JSON(http.StatusOK, echo.Map{
		"success":  true,
		"token":    family.Password,
		"tenantId": family.ID,
		"babyName": family.BabyName,
	})
}

// AdminLogin handles POST /api/admin/auth
func (h *AuthHandler) AdminLogin(c echo.Context) error {
	log := logger.FromContext(c)

	var req struct {
		Password string `json:"password"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse admin login request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.Password == "" || req.Password != h.adminPassword {
		log.Warn("Admin login failed")
		prometheus.RecordAuthError("invalid_admin_password")
		return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": "管理密码错误"})
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true})
}
