package controllers

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"groupdrive/middleware"
	"groupdrive/models"
	"groupdrive/services"
	"groupdrive/utils"
)

type TrashController struct {
	trashService *services.TrashService
	propagator   *services.Propagator
}

func NewTrashController(trashService *services.TrashService, propagator *services.Propagator) *TrashController {
	return &TrashController{trashService: trashService, propagator: propagator}
}

// MoveToTrash soft-deletes a folder or file.
func (tc *TrashController) MoveToTrash(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	node, err := tc.trashService.SoftDelete(c.Request.Context(), middleware.GetIdentity(c), id)
	if err != nil {
		respondError(c, "Failed to move item to trash", err)
		return
	}

	utils.SuccessResponse(c, "Item moved to trash", node)
}

func (tc *TrashController) RestoreItem(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	node, err := tc.trashService.Restore(c.Request.Context(), middleware.GetIdentity(c), id)
	if err != nil {
		respondError(c, "Failed to restore item", err)
		return
	}

	utils.SuccessResponse(c, "Item restored successfully", node)
}

func (tc *TrashController) PermanentlyDelete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	purged, err := tc.trashService.Purge(c.Request.Context(), middleware.GetIdentity(c), id)
	if err != nil {
		respondError(c, "Failed to permanently delete item", err)
		return
	}

	utils.SuccessResponse(c, "Item permanently deleted", gin.H{"purged": purged})
}

// GetTrashItems lists the caller's trash. Optional query parameters: type
// (file or folder), page and limit.
func (tc *TrashController) GetTrashItems(c *gin.Context) {
	items, err := tc.trashService.ListTrash(c.Request.Context(), middleware.GetIdentity(c))
	if err != nil {
		respondError(c, "Failed to get trash items", err)
		return
	}

	if itemType := c.Query("type"); itemType != "" {
		filtered := items[:0]
		for _, item := range items {
			if string(item.ItemType) == itemType {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 {
		limit = 50
	}

	total := len(items)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	utils.PaginatedSuccessResponse(c, "Trash items retrieved", items[start:end], &utils.Pagination{
		Page:       page,
		Limit:      limit,
		Total:      int64(total),
		TotalPages: (total + limit - 1) / limit,
	})
}

func (tc *TrashController) EmptyTrash(c *gin.Context) {
	result, err := tc.trashService.EmptyTrash(c.Request.Context(), middleware.GetIdentity(c))
	if err != nil {
		respondError(c, "Failed to empty trash", err)
		return
	}

	message := "Trash emptied successfully"
	if len(result.Failures) > 0 {
		message = "Trash partially emptied"
	}
	utils.SuccessResponse(c, message, result)
}

// PurgeExpired runs the retention sweep on demand. Admin only.
func (tc *TrashController) PurgeExpired(c *gin.Context) {
	cutoff := tc.trashService.ExpiryCutoff()
	if raw := c.Query("before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			utils.BadRequestResponse(c, "before must be an RFC 3339 timestamp", nil)
			return
		}
		cutoff = parsed
	}

	result, err := tc.trashService.PurgeExpired(c.Request.Context(), cutoff)
	if err != nil {
		respondError(c, "Failed to purge expired items", err)
		return
	}

	utils.SuccessResponse(c, "Expired items purged", gin.H{
		"cutoff":   cutoff,
		"purged":   result.Purged,
		"failures": nonNilFailures(result.Failures),
	})
}

// ResumePropagations re-drives unfinished subtree updates. Admin only.
func (tc *TrashController) ResumePropagations(c *gin.Context) {
	resumed, failed, err := tc.propagator.Resume(c.Request.Context())
	if err != nil {
		respondError(c, "Failed to resume propagations", err)
		return
	}

	utils.SuccessResponse(c, "Pending propagations resumed", gin.H{
		"resumed": resumed,
		"failed":  failed,
	})
}

func nonNilFailures(f []models.PurgeFailure) []models.PurgeFailure {
	if f == nil {
		return []models.PurgeFailure{}
	}
	return f
}
