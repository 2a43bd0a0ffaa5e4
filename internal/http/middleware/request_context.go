package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/memoir-studio-backend/internal/platform/ctxutil"
)

// headerOwnerID is set by the upstream gateway to the authenticated chapter owner.
const headerOwnerID = "X-Owner-Id"

// AttachRequestContext records the rate-limit subject: the owner when the gateway
// provides one, else the client address.
func AttachRequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := strings.TrimSpace(c.GetHeader(headerOwnerID))
		if subject == "" {
			subject = "ip:" + c.ClientIP()
		} else {
			subject = "owner:" + subject
		}
		c.Request = c.Request.WithContext(ctxutil.WithRateSubject(c.Request.Context(), subject))
		c.Next()
	}
}
