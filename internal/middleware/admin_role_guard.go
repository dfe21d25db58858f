package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// 注文を操作できる運営側のロール
const RoleAdmin = "ADMIN"

// AdminRoleGuardは/admin配下をADMINだけに通す。
// 操作は監査ログに操作者IDで残るので、IDの無いcontextも通さない。
func AdminRoleGuard() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, _ := c.Get(CtxUserRoleKey).(string)
			if role == "" {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}
			if role != RoleAdmin {
				return c.JSON(http.StatusForbidden, errorJSON("admin only"))
			}

			if actorID, ok := c.Get(CtxUserIDKey).(int64); !ok || actorID <= 0 {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}
			return next(c)
		}
	}
}
