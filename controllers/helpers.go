package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"groupdrive/services"
	"groupdrive/utils"
)

// parseID reads a hex object id from the named path parameter and writes a
// 400 when it is malformed.
func parseID(c *gin.Context, param string) (primitive.ObjectID, bool) {
	raw := c.Param(param)
	if raw == "" {
		utils.BadRequestResponse(c, "ID is required", nil)
		return primitive.NilObjectID, false
	}
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid ID format", nil)
		return primitive.NilObjectID, false
	}
	return id, true
}

// respondError maps a service error onto the response envelope. Internal
// failures are logged and not echoed back.
func respondError(c *gin.Context, message string, err error) {
	var partial *services.PartialPropagationError
	if errors.As(err, &partial) {
		utils.LogError(message, err, zap.String("request_id", c.GetString("requestId")))
		utils.ErrorResponse(c, services.StatusCode(err), message, gin.H{
			"reason":     "propagation stopped before reaching every descendant; retry to finish",
			"updated":    partial.Updated,
			"discovered": partial.Discovered,
			"journal_id": partial.JournalID,
		})
		return
	}

	switch status := services.StatusCode(err); status {
	case http.StatusBadRequest:
		utils.BadRequestResponse(c, message, err.Error())
	case http.StatusUnauthorized:
		utils.UnauthorizedResponse(c, message)
	case http.StatusForbidden:
		utils.ForbiddenResponse(c, message, err.Error())
	case http.StatusNotFound:
		utils.NotFoundResponse(c, message, err.Error())
	case http.StatusConflict:
		utils.ConflictResponse(c, message, err.Error())
	case http.StatusBadGateway:
		utils.LogError(message, err, zap.String("request_id", c.GetString("requestId")))
		utils.BadGatewayResponse(c, message)
	default:
		utils.LogError(message, err, zap.String("request_id", c.GetString("requestId")))
		utils.InternalServerErrorResponse(c, message)
	}
}
