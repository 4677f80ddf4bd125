package httpapi

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"salon-chat/auth"
)

// NewRouter wires the REST surface. Everything under /api requires a valid
// bearer token; /debug/stats stays open for local inspection.
func NewRouter(h *Handler, tokens auth.TokenManager) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// Identity travels in the Authorization header, not in cookies, so the
	// wildcard origin works without credentialed CORS.
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
	}))

	r.GET("/debug/stats", h.debugStats)

	api := r.Group("/api")
	api.Use(Identity(tokens))
	{
		api.POST("/chats/:chatID/messages", h.sendMessage)
		api.GET("/chats/:chatID/messages", h.listMessages)
		api.GET("/chats/:chatID/unseen-count", h.unseenCount)
		api.GET("/chats/:chatID/latest-message", h.latestMessage)
		api.GET("/messages/search", h.searchMessages)
		api.PATCH("/messages/:messageID", h.editMessage)
		api.DELETE("/messages/:messageID", h.deleteMessage)
		api.POST("/messages/:messageID/read", h.markRead)
		api.POST("/messages/:messageID/pin", h.togglePin)
	}
	return r
}
