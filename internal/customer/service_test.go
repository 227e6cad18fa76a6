package customer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/abduss/studiovault/internal/auth"
	"github.com/abduss/studiovault/internal/selection"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func TestCreateAndListCustomers(t *testing.T) {
	repo := newFakeRepo()
	service := NewService(repo)

	tenantID := uuid.New()
	created, err := service.Create(context.Background(), tenantID, "Anna & Max", selection.Limits{Album: 20, Cover: 1, Poster: 2})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if created.Limits.Album != 20 {
		t.Fatalf("expected album limit 20, got %d", created.Limits.Album)
	}

	customers, err := service.List(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(customers) != 1 {
		t.Fatalf("expected 1 customer, got %d", len(customers))
	}
}

func TestCreateRejectsNegativeLimits(t *testing.T) {
	service := NewService(newFakeRepo())

	_, err := service.Create(context.Background(), uuid.New(), "Anna", selection.Limits{Album: -1})
	if err == nil {
		t.Fatalf("expected error for negative limit")
	}
}

func TestGetHidesOtherTenantsCustomers(t *testing.T) {
	repo := newFakeRepo()
	service := NewService(repo)

	created, err := service.Create(context.Background(), uuid.New(), "Anna", selection.Limits{})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if _, err := service.Get(context.Background(), uuid.New(), created.ID); err != ErrCustomerNotFound {
		t.Fatalf("expected ErrCustomerNotFound, got %v", err)
	}
}

func TestSetLimitsUpdatesRecord(t *testing.T) {
	repo := newFakeRepo()
	service := NewService(repo)
	tenantID := uuid.New()

	created, _ := service.Create(context.Background(), tenantID, "Anna", selection.Limits{Album: 1})
	if err := service.SetLimits(context.Background(), tenantID, created.ID, selection.Limits{Album: 3, Cover: 1}); err != nil {
		t.Fatalf("SetLimits returned error: %v", err)
	}

	got, _ := repo.Get(context.Background(), created.ID)
	if got.Limits.Album != 3 || got.Limits.Cover != 1 {
		t.Fatalf("limits not updated: %+v", got.Limits)
	}
}

func TestResolveEnforcesCustomerScope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := newFakeRepo()
	service := NewService(repo)
	tenantID := uuid.New()

	mine, _ := service.Create(context.Background(), tenantID, "Mine", selection.Limits{})
	other, _ := service.Create(context.Background(), tenantID, "Other", selection.Limits{})

	principal := auth.Principal{TenantID: tenantID, Role: auth.RoleCustomer, CustomerID: mine.ID}

	r := gin.New()
	r.Use(func(c *gin.Context) { auth.SetPrincipal(c, principal); c.Next() })
	r.GET("/customers/:customerID", Resolve(service), func(c *gin.Context) {
		cust, _ := FromContext(c)
		c.String(http.StatusOK, cust.DisplayName)
	})

	cases := []struct {
		path string
		want int
	}{
		{"/customers/" + mine.ID.String(), http.StatusOK},
		{"/customers/" + other.ID.String(), http.StatusForbidden},
		{"/customers/" + uuid.NewString(), http.StatusNotFound},
		{"/customers/not-a-uuid", http.StatusBadRequest},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if rr.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.path, tc.want, rr.Code)
		}
	}
}

// --- fakes ----

type fakeRepo struct {
	customers map[uuid.UUID]Customer
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{customers: make(map[uuid.UUID]Customer)}
}

func (f *fakeRepo) Create(ctx context.Context, tenantID uuid.UUID, displayName string, limits selection.Limits) (Customer, error) {
	c := Customer{ID: uuid.New(), TenantID: tenantID, DisplayName: displayName, Limits: limits}
	f.customers[c.ID] = c
	return c, nil
}

func (f *fakeRepo) List(ctx context.Context, tenantID uuid.UUID) ([]Customer, error) {
	var out []Customer
	for _, c := range f.customers {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeRepo) Get(ctx context.Context, customerID uuid.UUID) (Customer, error) {
	c, ok := f.customers[customerID]
	if !ok {
		return Customer{}, ErrCustomerNotFound
	}
	return c, nil
}

func (f *fakeRepo) UpdateLimits(ctx context.Context, tenantID, customerID uuid.UUID, limits selection.Limits) error {
	c, ok := f.customers[customerID]
	if !ok || c.TenantID != tenantID {
		return ErrCustomerNotFound
	}
	c.Limits = limits
	f.customers[customerID] = c
	return nil
}
