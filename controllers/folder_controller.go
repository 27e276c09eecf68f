package controllers

import (
	"github.com/gin-gonic/gin"

	"groupdrive/middleware"
	"groupdrive/services"
	"groupdrive/utils"
)

type FolderController struct {
	nodeService *services.NodeService
}

type CreateFolderRequest struct {
	Name      string `json:"name" binding:"required"`
	Directory string `json:"directory"`
}

func NewFolderController(nodeService *services.NodeService) *FolderController {
	return &FolderController{nodeService: nodeService}
}

// ListNodes returns the folders and files the caller can see in one directory.
func (fc *FolderController) ListNodes(c *gin.Context) {
	directory := c.DefaultQuery("directory", utils.RootDirectory)

	listing, err := fc.nodeService.ListVisible(c.Request.Context(), middleware.GetIdentity(c), directory)
	if err != nil {
		respondError(c, "Failed to list directory", err)
		return
	}

	utils.SuccessResponse(c, "Directory retrieved", listing)
}

func (fc *FolderController) CreateFolder(c *gin.Context) {
	var req CreateFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}
	if req.Directory == "" {
		req.Directory = utils.RootDirectory
	}

	folder, err := fc.nodeService.CreateFolder(c.Request.Context(), middleware.GetIdentity(c), req.Name, req.Directory)
	if err != nil {
		respondError(c, "Failed to create folder", err)
		return
	}

	utils.CreatedResponse(c, "Folder created successfully", folder)
}
