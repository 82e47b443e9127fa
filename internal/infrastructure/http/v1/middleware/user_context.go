package middleware

import (
	"github.com/gin-gonic/gin"

	appctx "godown/internal/core/context"
)

const (
	HeaderUserID  = "X-User-ID"
	HeaderStoreID = "X-Store-ID"
)

// UserContext propagates the acting operator into the request context.
//
// Authentication is handled upstream (gateway / reverse proxy); this service
// only needs to know who to attribute edits and movements to. The user is
// carried in trusted headers set by that upstream.
func UserContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(HeaderUserID)
		if userID != "" {
			ctx := appctx.WithUser(c.Request.Context(), &appctx.UserContext{
				UserID:  userID,
				StoreID: c.GetHeader(HeaderStoreID),
			})
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}
