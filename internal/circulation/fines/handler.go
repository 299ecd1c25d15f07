package fines

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"library-backend/internal/circulation"
	"library-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

// RegisterRoutes mounts the read endpoints.
func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.GET("/fines", h.List)
	r.GET("/fines/:key", h.Get)
	r.GET("/fines/users/:user_id/unpaid-total", h.UnpaidTotal)
}

// RegisterStaffRoutes mounts the mutating endpoints; the caller wraps them
// with RequireRole(LIBRARIAN, ADMIN).
func RegisterStaffRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.POST("/fines", h.Issue)
	r.POST("/fines/:key/pay", h.Pay)
	r.POST("/fines/:key/waive", h.Waive)
	r.POST("/fines/:key/cancel", h.Cancel)
}

func (h *Handler) Issue(c *gin.Context) {
	var req IssueFineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, circulation.ErrorBody(circulation.ErrInvalid("invalid json or missing required fields")))
		return
	}

	res, err := h.svc.Issue(c.Request.Context(), req, auth.ActorID(c))
	if err != nil {
		c.JSON(circulation.ToHTTPStatus(err), circulation.ErrorBody(err))
		return
	}

	c.Header("Location", "/fines/"+res.FineULID)
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) Pay(c *gin.Context) {
	var req PayFineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, circulation.ErrorBody(circulation.ErrInvalid("invalid json")))
		return
	}

	res, err := h.svc.Pay(c.Request.Context(), c.Param("key"), req, auth.ActorID(c))
	if err != nil {
		c.JSON(circulation.ToHTTPStatus(err), circulation.ErrorBody(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Waive(c *gin.Context) {
	res, err := h.svc.Waive(c.Request.Context(), c.Param("key"), auth.ActorID(c))
	if err != nil {
		c.JSON(circulation.ToHTTPStatus(err), circulation.ErrorBody(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Cancel(c *gin.Context) {
	res, err := h.svc.Cancel(c.Request.Context(), c.Param("key"), auth.ActorID(c))
	if err != nil {
		c.JSON(circulation.ToHTTPStatus(err), circulation.ErrorBody(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Get(c *gin.Context) {
	res, err := h.svc.GetByKey(c.Request.Context(), c.Param("key"))
	if err != nil {
		c.JSON(circulation.ToHTTPStatus(err), circulation.ErrorBody(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) List(c *gin.Context) {
	f := FineFilter{}
	if v := c.Query("user_id"); v != "" {
		f.UserID = &v
	}
	if v := c.Query("borrow_record_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.BorrowRecordID = &id
		}
	}
	if v := c.Query("status"); v != "" {
		f.Status = &v
	}
	if v := c.Query("type"); v != "" {
		f.Type = &v
	}
	if v := c.Query("overdue"); v == "true" || v == "1" {
		f.OverdueOnly = true
	}
	p := circulation.Page{
		Limit:  parseIntDefault(c.Query("limit"), 50),
		Offset: parseIntDefault(c.Query("offset"), 0),
		Order:  c.DefaultQuery("order", "desc"),
	}

	res, err := h.svc.List(c.Request.Context(), f, p)
	if err != nil {
		c.JSON(circulation.ToHTTPStatus(err), circulation.ErrorBody(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) UnpaidTotal(c *gin.Context) {
	res, err := h.svc.TotalUnpaidByUser(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		c.JSON(circulation.ToHTTPStatus(err), circulation.ErrorBody(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func parseIntDefault(s string, d int) int {
	if s == "" {
		return d
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}
