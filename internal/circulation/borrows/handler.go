package borrows

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"library-backend/internal/circulation"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	// GET /circulation/records (一覧・検索)
	r.GET("/circulation/records", h.List)
	// GET /circulation/records/:key (ID or ULID)
	r.GET("/circulation/records/:key", h.Get)
	// GET /circulation/users/:user_id/active-count
	r.GET("/circulation/users/:user_id/active-count", h.ActiveCount)
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
	f := RecordFilter{}
	if v := c.Query("user_id"); v != "" {
		f.UserID = &v
	}
	if v := c.Query("book_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.BookID = &id
		}
	}
	if v := c.Query("status"); v != "" {
		f.Status = &v
	}
	if v := c.Query("overdue"); v == "true" || v == "1" {
		f.OverdueOnly = true
	}
	if v := c.Query("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.From = &t
		}
	}
	if v := c.Query("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.To = &t
		}
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

func (h *Handler) ActiveCount(c *gin.Context) {
	res, err := h.svc.ActiveCount(c.Request.Context(), c.Param("user_id"))
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
