package redirect

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/trimly/trimly/pkg/trimly/links"
)

// Handler handles redirect requests
type Handler struct {
	svc *links.Service
}

// NewHandler creates a new redirect handler
func NewHandler(svc *links.Service) *Handler {
	return &Handler{svc: svc}
}

// Redirect handles short URL redirects. This is the hot path: the response
// is gated only on the resolve itself, never on stats persistence.
func (h *Handler) Redirect(c *gin.Context) {
	code := c.Param("code")

	dest, err := h.svc.Resolve(c.Request.Context(), code)
	switch {
	case errors.Is(err, links.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
		return
	case errors.Is(err, links.ErrExpired):
		c.JSON(http.StatusGone, gin.H{"error": "Link has expired"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve link"})
		return
	}

	c.Redirect(http.StatusFound, dest)
}

// RegisterRoutes registers the redirect route on the links group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/:code", h.Redirect)
}
