package routes

import (
	"github.com/gin-gonic/gin"

	"groupdrive/controllers"
)

func RegisterFileRoutes(rg *gin.RouterGroup, container *ServiceContainer) {
	fileController := controllers.NewFileController(container.NodeService, container.MaxFileSize)
	shareController := controllers.NewShareController(container.ShareService)

	files := rg.Group("/files")
	{
		files.POST("", fileController.UploadFile)               // POST /files (multipart)
		files.GET("/:id/download", fileController.DownloadFile) // GET /files/:id/download (signed URL)
		files.GET("/:id/content", fileController.StreamFile)    // GET /files/:id/content (proxied bytes)
		files.POST("/:id/share", shareController.ShareFile)     // POST /files/:id/share
		files.DELETE("/:id/share", shareController.UnshareFile) // DELETE /files/:id/share
	}
}
