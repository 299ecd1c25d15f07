package lifecycle

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"library-backend/internal/circulation"
	"library-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

// RegisterRoutes mounts the lifecycle mutations; the caller wraps them with
// RequireRole(LIBRARIAN, ADMIN). The acting staff member comes from the
// verified token, never from the request body.
func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	// POST /circulation/checkouts
	r.POST("/circulation/checkouts", h.Checkout)
	// POST /circulation/returns
	r.POST("/circulation/returns", h.Return)
	// POST /circulation/records/:key/lost
	r.POST("/circulation/records/:key/lost", h.MarkLost)
	// POST /circulation/sweep-overdue
	r.POST("/circulation/sweep-overdue", h.SweepOverdue)
}

func (h *Handler) Checkout(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, circulation.ErrorBody(circulation.ErrInvalid("invalid json or missing required fields")))
		return
	}

	res, err := h.svc.Checkout(c.Request.Context(), req, auth.ActorID(c))
	if err != nil {
		c.JSON(circulation.ToHTTPStatus(err), circulation.ErrorBody(err))
		return
	}

	c.Header("Location", "/circulation/records/"+res.RecordULID)
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) Return(c *gin.Context) {
	var req ReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, circulation.ErrorBody(circulation.ErrInvalid("invalid json")))
		return
	}

	res, err := h.svc.Return(c.Request.Context(), req, auth.ActorID(c))
	if err != nil {
		c.JSON(circulation.ToHTTPStatus(err), circulation.ErrorBody(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) MarkLost(c *gin.Context) {
	res, err := h.svc.MarkLost(c.Request.Context(), c.Param("key"), auth.ActorID(c))
	if err != nil {
		c.JSON(circulation.ToHTTPStatus(err), circulation.ErrorBody(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) SweepOverdue(c *gin.Context) {
	// 本文なしでも実行できる（全てデフォルト値）
	var req SweepRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, circulation.ErrorBody(circulation.ErrInvalid("invalid json")))
			return
		}
	}

	res, err := h.svc.SweepOverdue(c.Request.Context(), req)
	if err != nil {
		c.JSON(circulation.ToHTTPStatus(err), circulation.ErrorBody(err))
		return
	}
	c.JSON(http.StatusOK, res)
}
