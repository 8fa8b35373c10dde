package checkout

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	builder *Builder
}

func NewHandler(builder *Builder) *Handler {
	return &Handler{builder: builder}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/checkout", h.Checkout)
}

func (h *Handler) Checkout(c echo.Context) error {
	var req Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.SessionID == "" {
		req.SessionID = c.Request().Header.Get("Idempotency-Key")
	}
	res, err := h.builder.Build(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, res)
}
