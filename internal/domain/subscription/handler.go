package subscription

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/plans", h.ListPlans)
	api.GET("/subscriptions", h.ListSubscriptions)
	api.POST("/subscriptions", h.CreateSubscription)
	api.GET("/subscriptions/:id", h.GetSubscription)
	api.POST("/subscriptions/:id/proration", h.PreviewProration)
	api.POST("/subscriptions/:id/modifications", h.ModifySubscription)
}

func (h *Handler) ListPlans(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Catalog().List())
}

func (h *Handler) ListSubscriptions(c echo.Context) error {
	customerID := c.QueryParam("customer_id")
	if customerID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "customer_id is required")
	}
	subs, err := h.svc.ListByCustomer(c.Request().Context(), customerID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, subs)
}

type createRequest struct {
	CustomerID string `json:"customer_id"`
	PlanID     string `json:"plan_id"`
}

func (h *Handler) CreateSubscription(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sub, err := h.svc.Create(c.Request().Context(), req.CustomerID, req.PlanID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, sub)
}

func (h *Handler) GetSubscription(c echo.Context) error {
	sub, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sub)
}

type prorationRequest struct {
	NewPlanID     string    `json:"new_plan_id"`
	EffectiveDate time.Time `json:"effective_date"`
}

func (h *Handler) PreviewProration(c echo.Context) error {
	var req prorationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.NewPlanID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "new_plan_id is required")
	}
	p, err := h.svc.PreviewProration(c.Request().Context(), c.Param("id"), req.NewPlanID, req.EffectiveDate)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ModifySubscription(c echo.Context) error {
	var req ModifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sub, err := h.svc.Modify(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sub)
}
