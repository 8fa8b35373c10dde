package workflow

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) (*Handler, *testEnv, *echo.Echo) {
	env := newTestEnv(t)
	return NewHandler(env.engine), env, echo.New()
}

func doJSON(e *echo.Echo, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_AdvanceOrder(t *testing.T) {
	h, env, e := newTestHandler(t)
	o := env.newOrder(t, true)

	c, rec := doJSON(e, http.MethodPost, "/", `{"by":"provider-7","notes":"intake reviewed"}`)
	c.SetParamNames("id")
	c.SetParamValues(o.ID)

	require.NoError(t, h.AdvanceOrder(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var tr Transition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tr))
	assert.Equal(t, StatusIntakeCompleted, tr.Next)
}

func TestHandler_AdvanceOrder_MissingBy(t *testing.T) {
	h, env, e := newTestHandler(t)
	o := env.newOrder(t, true)

	c, _ := doJSON(e, http.MethodPost, "/", `{}`)
	c.SetParamNames("id")
	c.SetParamValues(o.ID)

	err := h.AdvanceOrder(c)
	require.Error(t, err)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Code)
}

func TestHandler_AdvanceOrder_NotFound(t *testing.T) {
	h, _, e := newTestHandler(t)

	c, _ := doJSON(e, http.MethodPost, "/", `{"by":"x"}`)
	c.SetParamNames("id")
	c.SetParamValues("missing")

	err := h.AdvanceOrder(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, he.Code)
}

func TestHandler_SetOrderStatus_Invalid(t *testing.T) {
	h, env, e := newTestHandler(t)
	o := env.newOrder(t, true)

	c, _ := doJSON(e, http.MethodPost, "/", `{"status":"completed","by":"ops"}`)
	c.SetParamNames("id")
	c.SetParamValues(o.ID)

	err := h.SetOrderStatus(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnprocessableEntity, he.Code)
}

func TestHandler_SetOrderStatus_CancelThenAdvanceIsTerminal(t *testing.T) {
	h, env, e := newTestHandler(t)
	o := env.newOrder(t, false)

	c, rec := doJSON(e, http.MethodPost, "/", `{"status":"cancelled","by":"patient"}`)
	c.SetParamNames("id")
	c.SetParamValues(o.ID)
	require.NoError(t, h.SetOrderStatus(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	c, rec = doJSON(e, http.MethodPost, "/", `{"by":"ops"}`)
	c.SetParamNames("id")
	c.SetParamValues(o.ID)
	require.NoError(t, h.AdvanceOrder(c))

	var tr Transition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tr))
	assert.True(t, tr.AlreadyTerminal)
}

func TestHandler_AdvanceOrder_SideEffectFailureStillReportsTransition(t *testing.T) {
	h, env, e := newTestHandler(t)
	o := env.newOrder(t, true)
	env.advanceTo(t, o.ID, StatusProviderReview)
	env.issuer.err = assert.AnError

	c, rec := doJSON(e, http.MethodPost, "/", `{"by":"provider-7"}`)
	c.SetParamNames("id")
	c.SetParamValues(o.ID)
	require.NoError(t, h.AdvanceOrder(c))
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var body struct {
		Transition Transition `json:"transition"`
		Code       string     `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, StatusProviderApproved, body.Transition.Next)
	assert.Equal(t, ErrCodeCollaboratorUnavailable, body.Code)
}

func TestHandler_GetOrder(t *testing.T) {
	h, env, e := newTestHandler(t)
	o := env.newOrder(t, false)

	c, rec := doJSON(e, http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues(o.ID)
	require.NoError(t, h.GetOrder(c))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, o.ID, body["id"])
	progress, ok := body["progress"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "pending", progress["status_category"])
}

func TestHandler_ListOrders(t *testing.T) {
	h, env, e := newTestHandler(t)
	for i := 0; i < 3; i++ {
		env.newOrder(t, false)
	}

	c, rec := doJSON(e, http.MethodGet, "/api/v1/orders?patient_id=patient-1&limit=2", "")
	require.NoError(t, h.ListOrders(c))

	var body struct {
		Data    []Order `json:"data"`
		Total   int     `json:"total"`
		HasMore bool    `json:"has_more"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Data, 2)
	assert.Equal(t, 3, body.Total)
	assert.True(t, body.HasMore)
}

func TestHandler_ListOrders_RequiresPatient(t *testing.T) {
	h, _, e := newTestHandler(t)
	c, _ := doJSON(e, http.MethodGet, "/api/v1/orders", "")
	assert.Error(t, h.ListOrders(c))
}
