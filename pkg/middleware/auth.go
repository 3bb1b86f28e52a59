package middleware

import (
	"net/http"

	"github.com/eventlane/ticketing/pkg/response"
	"github.com/gin-gonic/gin"
)

const (
	// UserIDHeader carries the authenticated user identity, set by the
	// API gateway in front of this service
	UserIDHeader = "X-User-ID"
	// ContextKeyUserID is the gin context key for the user id
	ContextKeyUserID = "user_id"
)

// UserExtraction reads the user identity from the gateway header and
// stores it in the request context. Requests without the header are
// rejected when required is true, otherwise passed through anonymous.
func UserExtraction(required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(UserIDHeader)
		if userID == "" && required {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorBody("UNAUTHORIZED", "X-User-ID header is required"))
			return
		}
		if userID != "" {
			c.Set(ContextKeyUserID, userID)
		}
		c.Next()
	}
}

// GetUserID extracts the user id from gin context
func GetUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get(ContextKeyUserID)
	if !exists {
		return "", false
	}
	id, ok := userID.(string)
	return id, ok && id != ""
}
