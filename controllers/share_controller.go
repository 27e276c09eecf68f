package controllers

import (
	"github.com/gin-gonic/gin"

	"groupdrive/middleware"
	"groupdrive/models"
	"groupdrive/services"
	"groupdrive/utils"
)

type ShareController struct {
	shareService *services.ShareService
}

func NewShareController(shareService *services.ShareService) *ShareController {
	return &ShareController{shareService: shareService}
}

func (sc *ShareController) ShareFolder(c *gin.Context) {
	folderID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req models.ShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	result, err := sc.shareService.ShareFolder(c.Request.Context(), middleware.GetIdentity(c), folderID, req.GroupID)
	if err != nil {
		respondError(c, "Failed to share folder", err)
		return
	}

	utils.SuccessResponse(c, shareMessage("Folder shared successfully", result), result)
}

func (sc *ShareController) UnshareFolder(c *gin.Context) {
	folderID, ok := parseID(c, "id")
	if !ok {
		return
	}

	result, err := sc.shareService.UnshareFolder(c.Request.Context(), middleware.GetIdentity(c), folderID)
	if err != nil {
		respondError(c, "Failed to unshare folder", err)
		return
	}

	utils.SuccessResponse(c, shareMessage("Folder is now private", result), result)
}

func (sc *ShareController) ShareFile(c *gin.Context) {
	fileID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req models.ShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	result, err := sc.shareService.ShareFile(c.Request.Context(), middleware.GetIdentity(c), fileID, req.GroupID)
	if err != nil {
		respondError(c, "Failed to share file", err)
		return
	}

	utils.SuccessResponse(c, shareMessage("File shared successfully", result), result)
}

func (sc *ShareController) UnshareFile(c *gin.Context) {
	fileID, ok := parseID(c, "id")
	if !ok {
		return
	}

	result, err := sc.shareService.UnshareFile(c.Request.Context(), middleware.GetIdentity(c), fileID)
	if err != nil {
		respondError(c, "Failed to unshare file", err)
		return
	}

	utils.SuccessResponse(c, shareMessage("File is now private", result), result)
}

func shareMessage(done string, result *models.ShareResult) string {
	if result.NoOp {
		return "Sharing unchanged"
	}
	return done
}
