package routes

import (
	"github.com/gin-gonic/gin"

	"groupdrive/controllers"
)

func RegisterFolderRoutes(rg *gin.RouterGroup, container *ServiceContainer) {
	folderController := controllers.NewFolderController(container.NodeService)
	shareController := controllers.NewShareController(container.ShareService)

	rg.GET("/nodes", folderController.ListNodes) // GET /nodes?directory=/docs/

	folders := rg.Group("/folders")
	{
		folders.POST("", folderController.CreateFolder)             // POST /folders
		folders.POST("/:id/share", shareController.ShareFolder)     // POST /folders/:id/share
		folders.DELETE("/:id/share", shareController.UnshareFolder) // DELETE /folders/:id/share
	}
}
