package middleware

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

const auditResourceIDKey = "audit_resource_id"

// AuditWriter persists audit records.
type AuditWriter interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// SetAuditResourceID names the record a write produced when the route has no id parameter.
func SetAuditResourceID(c *gin.Context, id string) {
	c.Set(auditResourceIDKey, id)
}

// Audit creates a middleware that records audit logs after successful requests.
// Catalog routes are recorded as "<resource>/<kind>".
func Audit(repo AuditWriter, action, resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if repo == nil || c.Writer.Status() >= 400 {
			return
		}

		log := &models.AuditLog{
			Action:     action,
			Resource:   resource,
			ResourceID: c.Param("id"),
		}
		if kind := c.Param("kind"); kind != "" {
			log.Resource = resource + "/" + kind
		}
		if log.ResourceID == "" {
			log.ResourceID = c.GetString(auditResourceIDKey)
		}
		if value, ok := c.Get(ContextUserKey); ok {
			if claims, ok := value.(*models.JWTClaims); ok {
				log.UserID = claims.UserID
				log.SchoolID = claims.SchoolID
			}
		}

		body, _ := json.Marshal(map[string]interface{}{
			"path":    c.FullPath(),
			"method":  c.Request.Method,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Milliseconds(),
		})
		log.Payload = string(body)

		_ = repo.Create(context.WithoutCancel(c.Request.Context()), log)
	}
}
