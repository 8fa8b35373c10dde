package workflow

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/telehealth/pkg/pagination"
)

type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/orders", h.ListOrders)
	api.GET("/orders/:id", h.GetOrder)
	api.GET("/orders/:id/history", h.GetStatusHistory)
	api.POST("/orders/:id/advance", h.AdvanceOrder)
	api.POST("/orders/:id/status", h.SetOrderStatus)
}

func (h *Handler) ListOrders(c echo.Context) error {
	patientID := c.QueryParam("patient_id")
	if patientID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
	}
	pg := pagination.FromContext(c)
	orders, total, err := h.engine.ListOrdersByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return HTTPError(err)
	}
	resp := pagination.NewResponse(orders, total, pg.Limit, pg.Offset).
		WithLinks(c.Request().URL.Path, map[string][]string{"patient_id": {patientID}})
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetOrder(c echo.Context) error {
	view, err := h.engine.GetOrderWithProgress(c.Request().Context(), c.Param("id"))
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) GetStatusHistory(c echo.Context) error {
	o, err := h.engine.GetOrder(c.Request().Context(), c.Param("id"))
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, o.StatusHistory)
}

type advanceRequest struct {
	By    string `json:"by"`
	Notes string `json:"notes"`
}

func (h *Handler) AdvanceOrder(c echo.Context) error {
	var req advanceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.By == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "by is required")
	}
	t, err := h.engine.AdvanceStatus(c.Request().Context(), c.Param("id"), Trigger{By: req.By, Notes: req.Notes})
	return respondTransition(c, t, err)
}

type setStatusRequest struct {
	Status Status `json:"status"`
	By     string `json:"by"`
	Notes  string `json:"notes"`
}

func (h *Handler) SetOrderStatus(c echo.Context) error {
	var req setStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Status == "" || req.By == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "status and by are required")
	}
	t, err := h.engine.SetStatus(c.Request().Context(), c.Param("id"), req.Status, Trigger{By: req.By, Notes: req.Notes})
	return respondTransition(c, t, err)
}

// respondTransition reports a committed transition even when a side effect
// failed afterwards, so the caller can see the state change.
func respondTransition(c echo.Context, t *Transition, err error) error {
	if err != nil && t == nil {
		return HTTPError(err)
	}
	if err != nil {
		return c.JSON(HTTPStatus(err), map[string]any{
			"transition": t,
			"error":      err.Error(),
			"code":       ErrorCode(err),
		})
	}
	return c.JSON(http.StatusOK, t)
}
