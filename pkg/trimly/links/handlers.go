package links

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/trimly/trimly/pkg/trimly/auth"
	"github.com/trimly/trimly/pkg/trimly/models"
)

// Handler handles link-related requests
type Handler struct {
	svc     *Service
	baseURL string
}

// NewHandler creates a new links handler. baseURL is the public address
// links are served from, used to build the short_url in responses.
func NewHandler(svc *Service, baseURL string) *Handler {
	return &Handler{svc: svc, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// ShortenRequest represents the request to create a link
type ShortenRequest struct {
	OriginalURL string     `json:"original_url" binding:"required"`
	CustomAlias string     `json:"custom_alias" binding:"omitempty,min=1,max=50"`
	ExpiresAt   *time.Time `json:"expires_at"`
	Project     string     `json:"project"`
}

// UpdateRequest represents the request to update a link's destination
type UpdateRequest struct {
	OriginalURL string `json:"original_url" binding:"required"`
}

// LinkResponse represents a link in API responses
type LinkResponse struct {
	ShortCode   string     `json:"short_code"`
	ShortURL    string     `json:"short_url"`
	OriginalURL string     `json:"original_url"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	ClickCount  uint64     `json:"click_count"`
	OwnerID     *uint      `json:"owner_id,omitempty"`
	Project     string     `json:"project,omitempty"`
}

func (h *Handler) linkToResponse(link *models.Link) LinkResponse {
	return LinkResponse{
		ShortCode:   link.ShortCode,
		ShortURL:    h.baseURL + "/links/" + link.ShortCode,
		OriginalURL: link.OriginalURL,
		CreatedAt:   link.CreatedAt,
		UpdatedAt:   link.UpdatedAt,
		ExpiresAt:   link.ExpiresAt,
		LastUsedAt:  link.LastUsedAt,
		ClickCount:  link.ClickCount,
		OwnerID:     link.OwnerID,
		Project:     link.Project,
	}
}

// Shorten creates a new short link. Anonymous callers are allowed; a valid
// bearer token makes the caller the link's owner.
func (h *Handler) Shorten(c *gin.Context) {
	var req ShortenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var ownerID *uint
	if userID, ok := auth.GetUserID(c); ok {
		ownerID = &userID
	}

	link, err := h.svc.Create(c.Request.Context(), CreateParams{
		OriginalURL: req.OriginalURL,
		CustomAlias: req.CustomAlias,
		ExpiresAt:   req.ExpiresAt,
		OwnerID:     ownerID,
		Project:     req.Project,
	})
	switch {
	case errors.Is(err, ErrInvalidURL):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	case errors.Is(err, ErrAliasTaken), errors.Is(err, ErrInvalidAlias):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create link"})
		return
	}

	c.JSON(http.StatusOK, h.linkToResponse(link))
}

// Stats returns the link record, click count included.
func (h *Handler) Stats(c *gin.Context) {
	link, err := h.svc.Get(c.Request.Context(), c.Param("code"))
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch link"})
		return
	}

	c.JSON(http.StatusOK, h.linkToResponse(link))
}

// Update changes a link's destination URL. Owner only.
func (h *Handler) Update(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	link, err := h.svc.Update(c.Request.Context(), c.Param("code"), req.OriginalURL, userID)
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
		return
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Not the link owner"})
		return
	case errors.Is(err, ErrInvalidURL):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update link"})
		return
	}

	c.JSON(http.StatusOK, h.linkToResponse(link))
}

// Delete removes a link. Owner only.
func (h *Handler) Delete(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	err := h.svc.Delete(c.Request.Context(), c.Param("code"), userID)
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
		return
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Not the link owner"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete link"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Link deleted"})
}

// Search returns links whose original URL contains the query substring.
func (h *Handler) Search(c *gin.Context) {
	found, err := h.svc.Search(c.Request.Context(), c.Query("original_url"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search links"})
		return
	}

	responses := make([]LinkResponse, len(found))
	for i := range found {
		responses[i] = h.linkToResponse(&found[i])
	}

	c.JSON(http.StatusOK, responses)
}

// Cleanup sweeps all currently-expired links and reports how many were
// removed. Safe to call repeatedly.
func (h *Handler) Cleanup(c *gin.Context) {
	count, err := h.svc.CleanupExpired(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clean up links"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"removed": count})
}

// RegisterRoutes registers link routes. The bare GET /links/:code redirect
// is owned by the redirect package and registered separately.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/shorten", auth.OptionalAuthMiddleware(), h.Shorten)
	rg.GET("/search", h.Search)
	rg.DELETE("/cleanup", auth.AuthMiddleware(), h.Cleanup)
	rg.GET("/:code/stats", h.Stats)
	rg.PUT("/:code", auth.AuthMiddleware(), h.Update)
	rg.DELETE("/:code", auth.AuthMiddleware(), h.Delete)
}
