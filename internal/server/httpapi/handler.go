// Package httpapi exposes the upload API over HTTP: app settings with the
// upload policy, and the create/confirm/delete upload flow.
package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/altchat/composer/internal/common"
	"github.com/altchat/composer/internal/logging"
	"github.com/altchat/composer/internal/policy"
	"github.com/altchat/composer/internal/server/models"
)

// UploadManager is the service surface the handlers call.
type UploadManager interface {
	CreateUpload(ctx context.Context, userID, name, contentType string, size int64, kind string) (*models.Upload, string, error)
	ConfirmUpload(ctx context.Context, userID, id string) (*models.Upload, error)
	DeleteUpload(ctx context.Context, userID, assetURL string) error
	PublicURL(upload *models.Upload) string
}

type Handler struct {
	service UploadManager
	policy  policy.UploadPolicy
	log     logging.Logger
}

func NewHandler(service UploadManager, uploadPolicy policy.UploadPolicy, log logging.Logger) *Handler {
	return &Handler{service: service, policy: uploadPolicy, log: log.With("component", "httpapi")}
}

// Register wires the API routes onto the router group.
func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/app/settings", h.appSettings)
	r.POST("/uploads", h.createUpload)
	r.POST("/uploads/:id/confirm", h.confirmUpload)
	r.DELETE("/uploads", h.deleteUpload)
}

func (h *Handler) appSettings(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"app": h.policy})
}

type createUploadRequest struct {
	Name        string `json:"name" binding:"required"`
	ContentType string `json:"content_type" binding:"required"`
	Size        int64  `json:"size"`
	Kind        string `json:"kind"`
}

type createUploadResponse struct {
	ID        string `json:"id"`
	UploadURL string `json:"upload_url"`
	FileURL   string `json:"file_url"`
}

func (h *Handler) createUpload(ctx *gin.Context) {
	var req createUploadRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	upload, putURL, err := h.service.CreateUpload(ctx.Request.Context(), userID(ctx), req.Name, req.ContentType, req.Size, req.Kind)
	if err != nil {
		h.fail(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, createUploadResponse{
		ID:        upload.ID,
		UploadURL: putURL,
		FileURL:   h.service.PublicURL(upload),
	})
}

func (h *Handler) confirmUpload(ctx *gin.Context) {
	upload, err := h.service.ConfirmUpload(ctx.Request.Context(), userID(ctx), ctx.Param("id"))
	if err != nil {
		h.fail(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"url": h.service.PublicURL(upload)})
}

func (h *Handler) deleteUpload(ctx *gin.Context) {
	assetURL := ctx.Query("url")
	if assetURL == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "url query parameter required"})
		return
	}

	if err := h.service.DeleteUpload(ctx.Request.Context(), userID(ctx), assetURL); err != nil {
		h.fail(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func userID(ctx *gin.Context) string {
	return ctx.GetString(ContextUserIDKey)
}

// fail maps service errors onto HTTP statuses.
func (h *Handler) fail(ctx *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, common.ErrorNotFound):
		status = http.StatusNotFound
	case errors.Is(err, common.ErrorUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, common.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		h.log.Error(ctx.Request.Context(), "request failed", "path", ctx.Request.URL.Path, "error", err)
	}
	ctx.JSON(status, gin.H{"error": err.Error()})
}
