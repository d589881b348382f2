package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/caihaoran-00/xiaojilu/internal/model"
	"github.com/caihaoran-00/xiaojilu/pkg/logger"
	"github.com/caihaoran-00/xiaojilu/prometheus"
)

const (
	// FamilyContextKey is where the resolved family is stored on the echo context.
	FamilyContextKey = "family"

	familyTokenHeader = "X-Auth-Token"
	adminTokenHeader  = "X-Admin-Token"
)

// FamilyAuth resolves the family owning the shared secret in X-Auth-Token.
// Every family-scoped route goes through this; handlers read the family back
// with FamilyFromContext and scope all queries by its ID.
func FamilyAuth(db *gorm.DB) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromContext(c)

			token := c.Request().Header.Get(familyTokenHeader)
			if token == "" {
				prometheus.RecordAuthError("missing_token")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "密码错误"})
			}

			var family model.Family
			if result := db.Where("password = ?", token).First(&family); result.Error != nil {
				log.Warn("Rejected request with unknown family token")
				prometheus.RecordAuthError("invalid_token")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "密码错误"})
			}

			c.Set(FamilyContextKey, family)
			return next(c)
		}
	}
}

// AdminAuth checks X-Admin-Token against the administrative secret. Admin
// routes bypass family auth entirely and act across all families.
func AdminAuth(adminPassword string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromContext(c)

			token := c.Request().Header.Get(adminTokenHeader)
			if token == "" || token != adminPassword {
				log.Warn("Rejected admin request", zap.String("path", c.Request().URL.Path))
				prometheus.RecordAuthError("invalid_admin_token")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "管理密码错误"})
			}

			return next(c)
		}
	}
}

// FamilyFromContext returns the family set by FamilyAuth.
func FamilyFromContext(c echo.Context) (model.Family, bool) {
	family, ok := c.Get(FamilyContextKey).(model.Family)
	return family, ok
}
