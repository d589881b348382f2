package handler

import (
	"errors"
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

// ImageHandler attaches uploaded photos to records. record_id is not
// checked against an existing record; callers are trusted, and the cascade
// on record deletion keeps the table consistent.
type ImageHandler struct {
	db    *gorm.DB
	store *imagestore.Store
	now   Clock
}

func NewImageHandler(db *gorm.DB, store *imagestore.Store, now Clock) *ImageHandler {
	return &ImageHandler{db: db, store: store, now: now}
}

// Upload handles POST /api/upload (multipart: image, record_type, record_id)
func (h *ImageHandler) Upload(c echo.Context) error {
	log := logger.FromContext(c)

	family, ok := middleware.FamilyFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "密码错误"})
	}

	recordType := c.FormValue("record_type")
	if !model.ValidRecordType(recordType) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "record_type must be instant or duration"})
	}

	recordID, ok := parseID(c.FormValue("record_id"))
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid record_id"})
	}

	fh, err := c.FormFile("image")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "image file is required"})
	}

	filename, err := h.store.Save(fh, h.now())
	if err != nil {
		switch {
		case errors.Is(err, imagestore.ErrUnsupportedType):
			prometheus.RecordUpload("unsupported_type")
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "只支持图片文件"})
		case errors.Is(err, imagestore.ErrTooLarge):
			prometheus.RecordUpload("too_large")
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "图片太大"})
		default:
			log.Error("Failed to store uploaded image", zap.Error(err))
			prometheus.RecordUpload("failed")
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to store image"})
		}
	}

	image := model.RecordImage{
		FamilyID:   family.ID,
		RecordType: recordType,
		RecordID:   recordID,
		Filename:   filename,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := h.db.Create(&image).Error; err != nil {
		log.Error("Failed to save image row", zap.Error(err))
		// The row failed; do not leave the file behind.
		if rerr := h.store.Remove(filename); rerr != nil {
			log.Warn("Failed to remove stored file after rollback", zap.Error(rerr))
		}
		prometheus.RecordUpload("failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to save image"})
	}

	prometheus.RecordUpload("accepted")

	log.Info("Image attached",
		zap.Uint("id", image.ID),
		zap.Uint("family_id", family.ID),
		zap.String("record_type", recordType),
		zap.Uint("record_id", recordID))

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"id":      image.ID,
		"url":     image.URL(),
	})
}

// List handles GET /api/images/:record_type/:record_id
func (h *ImageHandler) List(c echo.Context) error {
	log := logger.FromContext(c)

	family, ok := middleware.FamilyFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "密码错误"})
	}

	recordType := c.Param("record_type")
	if !model.ValidRecordType(recordType) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "record_type must be instant or duration"})
	}

	recordID, ok := parseID(c.Param("record_id"))
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid record_id"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var images []model.RecordImage
	if err := h.db.Where("family_id = ? AND record_type = ? AND record_id = ?", family.ID, recordType, recordID).
		Order("created_at ASC").Find(&images).Error; err != nil {
		log.Error("Failed to list images", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to query images"})
	}

	type imageResponse struct {
		ID        uint      `json:"id"`
		URL       string    `json:"url"`
		CreatedAt time.Time `json:"created_at"`
	}

	response := []imageResponse{}
	for i := range images {
		response = append(response, imageResponse{
			ID:        images[i].ID,
			URL:       images[i].URL(),
			CreatedAt: images[i].CreatedAt,
		})
	}

	return c.JSON(http.StatusOK, response)
}

// Delete handles DELETE /api/images/:id
func (h *ImageHandler) Delete(c echo.Context) error {
	log := logger.FromContext(c)

	family, ok := middleware.FamilyFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "密码错误"})
	}

	id, ok := parseID(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid image id"})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	var image model.RecordImage
	if result := h.db.Where("id = ? AND family_id = ?", id, family.ID).First(&image); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "图片不存在"})
	}

	// File first; a missing file is tolerated.
	if err := h.store.Remove(image.Filename); err != nil {
		log.Warn("Failed to remove image file", zap.String("filename", image.Filename), zap.Error(err))
	}

	if err := h.db.Delete(&image).Error; err != nil {
		log.Error("Failed to delete image row", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete image"})
	}

	log.Info("Image detached", zap.Uint("id", id), zap.Uint("family_id", family.ID))

	return c.JSON(http.StatusOK, echo.Map{"success": true})
}
