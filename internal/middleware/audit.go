package middleware

import (
	"strconv"
	"strings"

	"github.com/Nk110820004/freddie-backend-sub000/internal/services"
	"github.com/gin-gonic/gin"
)

// AuditLog records operator write operations (POST/PUT) to system_logs.
func AuditLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		if method != "POST" && method != "PUT" {
			c.Next()
			return
		}

		c.Next()

		status := c.Writer.Status()
		module, action := parseRouteInfo(c.FullPath(), method)

		var ref services.LogRef
		if module == "reviews" {
			if id, err := strconv.ParseUint(c.Param("id"), 10, 32); err == nil {
				ref.ReviewID = uint(id)
			}
		}

		extra := map[string]interface{}{
			"method": method,
			"path":   c.Request.URL.Path,
			"status": status,
			"ip":     c.ClientIP(),
			"audit":  true,
		}
		message := formatAuditMessage(method, c.Request.URL.Path, status)
		if status >= 400 {
			services.LogWarning(module, action, message, ref, extra)
			return
		}
		services.LogInfo(module, action, message, ref, extra)
	}
}

// parseRouteInfo extracts module and action from a Gin route pattern.
// e.g. "/api/reviews/:id/human-reply" + "POST" gives ("reviews", "human-reply")
// and "/api/batch-runs" + "POST" gives ("batch-runs", "create").
func parseRouteInfo(fullPath, method string) (module, action string) {
	path := strings.TrimPrefix(fullPath, "/api/")
	parts := strings.Split(path, "/")
	module = parts[0]
	if module == "" {
		module = "unknown"
	}

	last := parts[len(parts)-1]
	if len(parts) > 1 && !strings.HasPrefix(last, ":") {
		return module, last
	}

	switch method {
	case "POST":
		action = "create"
	case "PUT":
		action = "update"
	default:
		action = strings.ToLower(method)
	}
	return module, action
}

func formatAuditMessage(method, path string, status int) string {
	var b strings.Builder
	b.WriteString("[Audit] ")
	b.WriteString(method)
	b.WriteString(" ")
	b.WriteString(path)
	b.WriteString(" → ")
	if status >= 200 && status < 300 {
		b.WriteString("OK")
	} else {
		b.WriteString("Failed (")
		b.WriteString(strconv.Itoa(status))
		b.WriteString(")")
	}
	return b.String()
}
