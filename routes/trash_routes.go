package routes

import (
	"github.com/gin-gonic/gin"

	"groupdrive/controllers"
	"groupdrive/middleware"
)

func RegisterTrashRoutes(rg *gin.RouterGroup, container *ServiceContainer) {
	trashController := controllers.NewTrashController(container.TrashService, container.Propagator)

	rg.DELETE("/nodes/:id", trashController.MoveToTrash) // DELETE /nodes/:id (soft delete)

	trash := rg.Group("/trash")
	{
		trash.GET("", trashController.GetTrashItems)            // GET /trash
		trash.DELETE("", trashController.EmptyTrash)            // DELETE /trash
		trash.POST("/:id/restore", trashController.RestoreItem) // POST /trash/:id/restore
		trash.DELETE("/:id", trashController.PermanentlyDelete) // DELETE /trash/:id (permanent delete)
	}
}

func RegisterAdminRoutes(rg *gin.RouterGroup, container *ServiceContainer) {
	trashController := controllers.NewTrashController(container.TrashService, container.Propagator)

	admin := rg.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	{
		admin.POST("/trash/purge-expired", trashController.PurgeExpired)
		admin.POST("/propagations/resume", trashController.ResumePropagations)
	}
}
