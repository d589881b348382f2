package handler_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caihaoran-00/xiaojilu/internal/model"
)

func TestAdminRoutesRequireAdminToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doAdmin(t, http.MethodGet, "/api/admin/families", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.doAdmin(t, http.MethodGet, "/api/admin/families", "wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// The family secret is no substitute for the admin secret
	env.createFamily(t, "pw-one", "宝宝")
	rec = env.doAdmin(t, http.MethodGet, "/api/admin/families", "pw-one", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminListFamiliesWithCounts(t *testing.T) {
	env := newTestEnv(t)
	env.createFamily(t, "pw-one", "宝宝一")
	env.createFamily(t, "pw-two", "宝宝二")

	rec := env.doJSON(t, http.MethodPost, "/api/instant", "pw-one", map[string]interface{}{
		"event_type": "diaper", "event_label": "换尿裤", "recorded_by": "爸爸",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.doJSON(t, http.MethodPost, "/api/duration/start", "pw-one", map[string]interface{}{
		"event_type": "sunbath", "event_label": "晒太阳", "started_by": "爸爸",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.doAdmin(t, http.MethodGet, "/api/admin/families", testAdminPassword, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	families := decodeList(t, rec)
	require.Len(t, families, 2)

	assert.Equal(t, "宝宝一", families[0]["baby_name"])
	assert.Equal(t, float64(1), families[0]["instant_count"])
	assert.Equal(t, float64(1), families[0]["duration_count"])
	assert.Equal(t, float64(0), families[1]["instant_count"])
	assert.Equal(t, float64(0), families[1]["duration_count"])
}

func TestAdminCreateFamily(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doAdmin(t, http.MethodPost, "/api/admin/families", testAdminPassword, map[string]string{
		"password": "new-family", "baby_name": "小小",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// The new secret works immediately
	rec = env.doJSON(t, http.MethodPost, "/api/auth", "", map[string]string{"password": "new-family"})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Duplicate secret
	rec = env.doAdmin(t, http.MethodPost, "/api/admin/families", testAdminPassword, map[string]string{
		"password": "new-family", "baby_name": "重复",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Whitespace-only secret
	rec = env.doAdmin(t, http.MethodPost, "/api/admin/families", testAdminPassword, map[string]string{
		"password": "   ", "baby_name": "空",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminUpdateFamily(t *testing.T) {
	env := newTestEnv(t)
	env.createFamily(t, "pw-one", "宝宝一")
	env.createFamily(t, "pw-two", "宝宝二")

	rec := env.doAdmin(t, http.MethodPut, "/api/admin/families/1", testAdminPassword, map[string]string{
		"password": "pw-renamed",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// Old secret is dead, new one lives
	rec = env.doJSON(t, http.MethodPost, "/api/auth", "", map[string]string{"password": "pw-one"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = env.doJSON(t, http.MethodPost, "/api/auth", "", map[string]string{"password": "pw-renamed"})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Cannot steal another family's secret
	rec = env.doAdmin(t, http.MethodPut, "/api/admin/families/1", testAdminPassword, map[string]string{
		"password": "pw-two",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Nothing to change
	rec = env.doAdmin(t, http.MethodPut, "/api/admin/families/1", testAdminPassword, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown family
	rec = env.doAdmin(t, http.MethodPut, "/api/admin/families/42", testAdminPassword, map[string]string{
		"baby_name": "无",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminDeleteFamilyCascades(t *testing.T) {
	env := newTestEnv(t)
	env.createFamily(t, "pw-one", "宝宝一")
	env.createFamily(t, "pw-two", "宝宝二")

	rec := env.doJSON(t, http.MethodPost, "/api/instant", "pw-one", map[string]interface{}{
		"event_type": "diaper", "event_label": "换尿裤", "recorded_by": "爸爸",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.doJSON(t, http.MethodPost, "/api/duration/start", "pw-one", map[string]interface{}{
		"event_type": "sunbath", "event_label": "晒太阳", "started_by": "爸爸",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.doUpload(t, "pw-one", "instant", "1", "photo.png", "image/png", []byte("png-bytes"))
	require.Equal(t, http.StatusOK, rec.Code)

	// The other family keeps its own data
	rec = env.doJSON(t, http.MethodPost, "/api/instant", "pw-two", map[string]interface{}{
		"event_type": "feed", "event_label": "喂奶", "recorded_by": "妈妈",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.doAdmin(t, http.MethodDelete, "/api/admin/families/1", testAdminPassword, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Former secret no longer authenticates
	rec = env.doJSON(t, http.MethodPost, "/api/auth", "", map[string]string{"password": "pw-one"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Every owned row and file is gone
	var count int64
	env.db.Model(&model.InstantRecord{}).Where("family_id = ?", 1).Count(&count)
	assert.Equal(t, int64(0), count)
	env.db.Model(&model.DurationRecord{}).Where("family_id = ?", 1).Count(&count)
	assert.Equal(t, int64(0), count)
	env.db.Model(&model.RecordImage{}).Where("family_id = ?", 1).Count(&count)
	assert.Equal(t, int64(0), count)
	assert.Equal(t, 0, env.storedFileCount(t))

	// The surviving family is untouched
	rec = env.doJSON(t, http.MethodGet, "/api/instant", "pw-two", nil)
	assert.Len(t, decodeList(t, rec), 1)

	// Deleting again reports not found
	rec = env.doAdmin(t, http.MethodDelete, "/api/admin/families/1", testAdminPassword, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
