package http

import "github.com/gin-gonic/gin"

func RegisterPostRoutes(r *gin.Engine, handler *PostHandler) {
	posts := r.Group("/posts")
	{
		posts.POST("", handler.CreatePost)
		posts.GET("/:id", handler.GetPost)
		posts.POST("/:id/likes", handler.AddLike)
		posts.POST("/:id/comments", handler.AddComment)
	}
	r.POST("/users/:id/followers", handler.FollowUser)
}

func RegisterAdminRoutes(r *gin.Engine, handler *AdminHandler) {
	if handler.deadLetters != nil {
		r.GET("/admin/dead-letters", handler.ListDeadLetters)
	}
	if handler.analytics != nil {
		r.GET("/analytics/trend", handler.GetTrend)
	}
}
