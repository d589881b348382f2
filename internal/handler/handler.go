package handler

import (
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/caihaoran-00/xiaojilu/internal/imagestore"
	"github.com/caihaoran-00/xiaojilu/internal/model"
)

// Clock supplies "now" for defaulted timestamps. Production wiring passes
// time.Now; tests pass a fixed instant.
type Clock func() time.Time

const (
	defaultListLimit = 50
	maxListLimit     = 200

	minRecentDays = 1
	maxRecentDays = 30
)

// parseLimit reads a ?limit= value and clamps it to a sane range.
func parseLimit(raw string) int {
	limit := defaultListLimit
	if raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit
}

// parseID reads a numeric path parameter.
func parseID(raw string) (uint, bool) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// removeRecordImages deletes every attachment keyed to one record: files
// first, rows after. File removal failures are logged and swallowed so that
// filesystem inconsistency never blocks row cleanup.
func removeRecordImages(log *zap.Logger, db *gorm.DB, store *imagestore.Store, familyID uint, recordType string, recordID uint) error {
	var images []model.RecordImage
	if err := db.Where("family_id = ? AND record_type = ? AND record_id = ?", familyID, recordType, recordID).
		Find(&images).Error; err != nil {
		return err
	}

	for _, img := range images {
		if err := store.Remove(img.Filename); err != nil {
			log.Warn("Failed to remove image file",
				zap.String("filename", img.Filename),
				zap.Error(err))
		}
	}

	return db.Where("family_id = ? AND record_type = ? AND record_id = ?", familyID, recordType, recordID).
		Delete(&model.RecordImage{}).Error
}
