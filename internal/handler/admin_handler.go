package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/caihaoran-00/xiaojilu/internal/imagestore"
	"github.com/caihaoran-00/xiaojilu/internal/model"
	"github.com/caihaoran-00/xiaojilu/pkg/logger"
	"github.com/caihaoran-00/xiaojilu/prometheus"
)

// AdminHandler manages families across the whole system. All routes sit
// behind the admin token; family deletion is the only destructive cascade
// the service has.
type AdminHandler struct {
	db    *gorm.DB
	store *imagestore.Store
}

func NewAdminHandler(db *gorm.DB, store *imagestore.Store) *AdminHandler {
	return &AdminHandler{db: db, store: store}
}

// ListFamilies handles GET /api/admin/families
func (h *AdminHandler) ListFamilies(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordFamilyOperation("list")

	defer prometheus.TrackDBOperation("query")(time.Now())
	var families []model.Family
	if err := h.db.Order("id ASC").Find(&families).Error; err != nil {
		log.Error("Failed to list families", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to query families"})
	}

	type familyResponse struct {
		model.Family
		InstantCount  int64 `json:"instant_count"`
		DurationCount int64 `json:"duration_count"`
		ImageCount    int64 `json:"image_count"`
	}

	response := []familyResponse{}
	for _, family := range families {
		entry := familyResponse{Family: family}
		h.db.Model(&model.InstantRecord{}).Where("family_id = ?", family.ID).Count(&entry.InstantCount)
		h.db.Model(&model.DurationRecord{}).Where("family_id = ?", family.ID).Count(&entry.DurationCount)
		h.db.Model(&model.RecordImage{}).Where("family_id = ?", family.ID).Count(&entry.ImageCount)
		response = append(response, entry)
	}

	return c.JSON(http.StatusOK, response)
}

// CreateFamily handles POST /api/admin/families
func (h *AdminHandler) CreateFamily(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordFamilyOperation("create")

	var req struct {
		Password string `json:"password"`
		BabyName string `json:"baby_name"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse family creation request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	password := strings.TrimSpace(req.Password)
	if password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password is required"})
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	var count int64
	h.db.Model(&model.Family{}).Where("password = ?", password).Count(&count)
	if count > 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "该密码已被使用"})
	}

	family := model.Family{
		Password: password,
		BabyName: req.BabyName,
	}

	if err := h.db.Create(&family).Error; err != nil {
		log.Error("Failed to create family", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create family"})
	}

	log.Info("Family created", zap.Uint("id", family.ID), zap.String("baby_name", family.BabyName))

	return c.JSON(http.StatusCreated, family)
}

// UpdateFamily handles PUT /api/admin/families/:id
func (h *AdminHandler) UpdateFamily(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordFamilyOperation("update")

	id, ok := parseID(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid family id"})
	}

	var req struct {
		Password *string `json:"password"`
		BabyName *string `json:"baby_name"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse family update request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	updates := map[string]interface{}{}
	if req.Password != nil {
		password := strings.TrimSpace(*req.Password)
		if password == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "password must not be empty"})
		}
		var count int64
		h.db.Model(&model.Family{}).Where("password = ? AND id != ?", password, id).Count(&count)
		if count > 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "该密码已被使用"})
		}
		updates["password"] = password
	}
	if req.BabyName != nil {
		updates["baby_name"] = *req.BabyName
	}
	if len(updates) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "没有要修改的内容"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	result := h.db.Model(&model.Family{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		log.Error("Failed to update family", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update family"})
	}
	if result.RowsAffected == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "家庭不存在"})
	}

	log.Info("Family updated", zap.Uint("id", id))

	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// DeleteFamily handles DELETE /api/admin/families/:id. Image files are
// removed first (best-effort), then every owned row, then the family itself.
func (h *AdminHandler) DeleteFamily(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordFamilyOperation("delete")

	id, ok := parseID(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid family id"})
	}

	var family model.Family
	if result := h.db.First(&family, id); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "家庭不存在"})
	}

	// Files before rows: an orphaned file is recoverable noise, an orphaned
	// row pointing at a live file is not.
	var images []model.RecordImage
	if err := h.db.Where("family_id = ?", id).Find(&images).Error; err != nil {
		log.Error("Failed to load family images", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete family"})
	}
	for _, img := range images {
		if err := h.store.Remove(img.Filename); err != nil {
			log.Warn("Failed to remove image file", zap.String("filename", img.Filename), zap.Error(err))
		}
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("family_id = ?", id).Delete(&model.RecordImage{}).Error; err != nil {
			return err
		}
		if err := tx.Where("family_id = ?", id).Delete(&model.InstantRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("family_id = ?", id).Delete(&model.DurationRecord{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Family{}, id).Error
	})
	if err != nil {
		log.Error("Failed to delete family", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete family"})
	}

	log.Info("Family deleted", zap.Uint("id", id), zap.String("baby_name", family.BabyName))

	return c.JSON(http.StatusOK, echo.Map{"success": true})
}
