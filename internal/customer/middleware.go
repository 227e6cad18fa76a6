package customer

import (
	"errors"
	"net/http"

	"github.com/abduss/studiovault/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const customerContextKey = "studiovaultCustomer"

// Resolve loads the :customerID path parameter and checks the principal may
// act on it. A customer of another tenant is reported as not found.
func Resolve(service *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := auth.CurrentPrincipal(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		customerID, err := uuid.Parse(c.Param("customerID"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid customer id"})
			return
		}

		cust, err := service.Get(c.Request.Context(), principal.TenantID, customerID)
		if err != nil {
			if errors.Is(err, ErrCustomerNotFound) {
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "customer not found"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to load customer"})
			return
		}

		if !principal.CanAccessCustomer(cust.TenantID, cust.ID) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		c.Set(customerContextKey, cust)
		auth.SetCustomerScope(c, auth.CustomerScope{TenantID: cust.TenantID, CustomerID: cust.ID})
		c.Next()
	}
}

// FromContext returns the customer resolved by Resolve.
func FromContext(c *gin.Context) (Customer, bool) {
	value, exists := c.Get(customerContextKey)
	if !exists {
		return Customer{}, false
	}
	cust, ok := value.(Customer)
	return cust, ok
}
