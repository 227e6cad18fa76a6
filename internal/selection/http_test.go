package selection

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/abduss/studiovault/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSelectionRouter(g *Governor, customerID uuid.UUID) *gin.Engine {
	return newSelectionRouterAs(g, customerID, auth.RoleCustomer)
}

func newSelectionRouterAs(g *Governor, customerID uuid.UUID, role auth.Role) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	tenantID := uuid.New()
	scoped := r.Group("/customers/:customerID", func(c *gin.Context) {
		principal := auth.Principal{Subject: "sub", TenantID: tenantID, Role: role}
		if role == auth.RoleCustomer {
			principal.CustomerID = customerID
		}
		auth.SetPrincipal(c, principal)
		auth.SetCustomerScope(c, auth.CustomerScope{TenantID: tenantID, CustomerID: customerID})
		c.Next()
	})
	RegisterRoutes(scoped, g)
	return r
}

func postJSON(r http.Handler, path string, body any) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestHTTPSubmitReportsInvalidCategories(t *testing.T) {
	g, _, limits := newTestGovernor(Limits{Album: 2, Cover: 1, Poster: 1}, "a", "b", "c")
	r := newSelectionRouter(g, limits.customerID)
	base := "/customers/" + limits.customerID.String() + "/selection"

	for _, tc := range []struct{ ref, cat string }{{"a", "album"}, {"b", "album"}, {"c", "cover"}} {
		rr := postJSON(r, base+"/toggle", map[string]string{"asset_ref": tc.ref, "category": tc.cat})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	}

	rr := postJSON(r, base+"/submit", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	var body struct {
		Accepted          bool     `json:"accepted"`
		InvalidCategories []string `json:"invalid_categories"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.False(t, body.Accepted)
	assert.Equal(t, []string{"poster"}, body.InvalidCategories)
}

func TestHTTPToggleLimitReachedIsNotAFailure(t *testing.T) {
	g, _, limits := newTestGovernor(Limits{Album: 1}, "a", "b")
	r := newSelectionRouter(g, limits.customerID)
	base := "/customers/" + limits.customerID.String() + "/selection"

	postJSON(r, base+"/toggle", map[string]string{"asset_ref": "a", "category": "album"})
	rr := postJSON(r, base+"/toggle", map[string]string{"asset_ref": "b", "category": "album"})
	require.Equal(t, http.StatusOK, rr.Code)

	var res ToggleResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.False(t, res.Accepted)
	assert.Equal(t, ReasonLimitReached, res.Reason)

	rr = postJSON(r, base+"/toggle", map[string]string{"asset_ref": "b", "category": "banner"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHTTPStudioCannotChangeSelection(t *testing.T) {
	g, _, limits := newTestGovernor(Limits{Album: 1}, "a")
	r := newSelectionRouterAs(g, limits.customerID, auth.RoleStudio)
	base := "/customers/" + limits.customerID.String() + "/selection"

	rr := postJSON(r, base+"/toggle", map[string]string{"asset_ref": "a", "category": "album"})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = postJSON(r, base+"/submit", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	summary, err := g.Get(context.Background(), limits.customerID)
	require.NoError(t, err)
	assert.Empty(t, summary.Selection.Entries)
	assert.NotEqual(t, StateSubmitted, summary.State)

	req := httptest.NewRequest(http.MethodGet, base, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
