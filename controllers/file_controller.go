package controllers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"groupdrive/middleware"
	"groupdrive/services"
	"groupdrive/utils"
)

type FileController struct {
	nodeService *services.NodeService
	maxFileSize int64
}

func NewFileController(nodeService *services.NodeService, maxFileSize int64) *FileController {
	return &FileController{nodeService: nodeService, maxFileSize: maxFileSize}
}

// UploadFile takes a multipart form with a "file" part, a "directory" field
// and an optional "name" overriding the uploaded filename.
func (fc *FileController) UploadFile(c *gin.Context) {
	if fc.maxFileSize > 0 {
		// Allow some headroom for the multipart envelope.
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, fc.maxFileSize+1<<20)
	}

	header, err := c.FormFile("file")
	if err != nil {
		utils.BadRequestResponse(c, "No file provided", nil)
		return
	}
	if fc.maxFileSize > 0 && header.Size > fc.maxFileSize {
		utils.PayloadTooLargeResponse(c, "File exceeds the upload size limit: "+header.Filename)
		return
	}

	directory := c.DefaultPostForm("directory", utils.RootDirectory)
	name := c.PostForm("name")
	if name == "" {
		name = header.Filename
	}

	src, err := header.Open()
	if err != nil {
		utils.BadRequestResponse(c, "Failed to read uploaded file", nil)
		return
	}
	defer src.Close()

	file, err := fc.nodeService.CreateFile(c.Request.Context(), middleware.GetIdentity(c), name, directory, header.Size, src)
	if err != nil {
		respondError(c, "Failed to upload file", err)
		return
	}

	utils.CreatedResponse(c, "File uploaded successfully", file)
}

func (fc *FileController) DownloadFile(c *gin.Context) {
	fileID, ok := parseID(c, "id")
	if !ok {
		return
	}

	downloadURL, err := fc.nodeService.DownloadURL(c.Request.Context(), middleware.GetIdentity(c), fileID)
	if err != nil {
		respondError(c, "Failed to generate download URL", err)
		return
	}

	utils.SuccessResponse(c, "Download URL generated", map[string]string{
		"downloadUrl": downloadURL,
	})
}

// StreamFile proxies the file's bytes instead of handing out a URL.
func (fc *FileController) StreamFile(c *gin.Context) {
	fileID, ok := parseID(c, "id")
	if !ok {
		return
	}

	file, rc, err := fc.nodeService.OpenContent(c.Request.Context(), middleware.GetIdentity(c), fileID)
	if err != nil {
		respondError(c, "Failed to open file", err)
		return
	}
	defer rc.Close()

	c.Header("Content-Disposition", "attachment; filename=\""+file.Name+"\"")
	c.Header("Content-Length", strconv.FormatInt(file.Size, 10))
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		utils.LogError("failed to stream file", err, zap.String("file_id", fileID.Hex()))
	}
}
