package router

import (
	"discord-rag-backend/controller"
	"discord-rag-backend/middleware"

	"github.com/gin-gonic/gin"
)

func Register() *gin.Engine {
	r := gin.Default()
	r.Use(middleware.CORSMiddleware())

	api := r.Group("/api")
	{
		public := api.Group("/user")
		{
			public.POST("/register", controller.UserRegister)
			public.POST("/login", controller.UserLogin)
		}

		protected := api.Group("")
		protected.Use(middleware.AuthMiddleware())
		{
			protected.POST("/kb/documents", controller.UploadDocument)
			protected.GET("/kb/documents", controller.GetDocuments)
			protected.GET("/kb/document-status", controller.GetDocumentStatus)
			protected.DELETE("/kb/documents/:id", controller.DeactivateDocument)
			protected.GET("/kb/documents/:id/log", controller.GetProcessingLog)
			protected.GET("/kb/stats", controller.GetKnowledgeBaseStats)

			protected.POST("/kb/cache/sweep", controller.SweepCache)
			protected.GET("/ratelimit", controller.RateLimitStatus)

			// 问答接口单独限流
			chat := protected.Group("")
			chat.Use(middleware.RateLimitMiddleware())
			{
				chat.POST("/chat", controller.Chat)
			}
		}
	}

	return r
}
