package books

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"library-backend/internal/circulation"
)

type Handler struct{ svc *Service }

// RegisterRoutes mounts the read endpoints; any authenticated user may
// browse the catalog.
func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.GET("/books", h.List)
	r.GET("/books/:key", h.Get)
}

// RegisterStaffRoutes mounts the mutating endpoints; the caller wraps them
// with RequireRole(LIBRARIAN, ADMIN).
func RegisterStaffRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.POST("/books", h.Create)
	r.PATCH("/books/:key/status", h.SetStatus)
}

func (h *Handler) Create(c *gin.Context) {
	var req CreateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, circulation.ErrorBody(circulation.ErrInvalid("invalid json or missing required fields")))
		return
	}

	res, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		c.JSON(circulation.ToHTTPStatus(err), circulation.ErrorBody(err))
		return
	}

	c.Header("Location", "/books/"+res.BookULID)
	c.JSON(http.StatusCreated, res)
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
	f := BookFilter{}
	if v := c.Query("status"); v != "" {
		f.Status = &v
	}
	if v := c.Query("title"); v != "" {
		f.Title = &v
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

func (h *Handler) SetStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, circulation.ErrorBody(circulation.ErrInvalid("invalid json")))
		return
	}

	res, err := h.svc.SetStatus(c.Request.Context(), c.Param("key"), req.Status)
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
