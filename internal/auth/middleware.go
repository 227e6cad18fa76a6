package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type contextKey string

const principalContextKey contextKey = "studiovaultPrincipal"

// AuthMiddleware validates bearer tokens and injects the principal.
func AuthMiddleware(service *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := extractBearerToken(authHeader)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		principal, err := service.ValidateAccessToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		SetPrincipal(c, principal)
		c.Next()
	}
}

// RequireStudio rejects requests not made by a studio operator.
func RequireStudio() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := CurrentPrincipal(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if !principal.IsStudio() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "studio access required"})
			return
		}
		c.Next()
	}
}

// RequireCustomer rejects requests not made by the customer itself. Studio
// operators may read a customer's data but not act on its behalf.
func RequireCustomer() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := CurrentPrincipal(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if principal.Role != RoleCustomer {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "customer access required"})
			return
		}
		c.Next()
	}
}

// SetPrincipal stores the principal on the context.
func SetPrincipal(c *gin.Context, principal Principal) {
	c.Set(string(principalContextKey), principal)
}

// CurrentPrincipal extracts the authenticated principal from the context.
func CurrentPrincipal(c *gin.Context) (Principal, bool) {
	value, exists := c.Get(string(principalContextKey))
	if !exists {
		return Principal{}, false
	}
	principal, ok := value.(Principal)
	return principal, ok
}

func extractBearerToken(header string) string {
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

const scopeContextKey contextKey = "studiovaultCustomerScope"

// CustomerScope identifies the customer a request acts on, after ownership
// has been verified.
type CustomerScope struct {
	TenantID   uuid.UUID
	CustomerID uuid.UUID
}

// SetCustomerScope stores the verified customer scope on the context.
func SetCustomerScope(c *gin.Context, scope CustomerScope) {
	c.Set(string(scopeContextKey), scope)
}

// CurrentCustomerScope returns the scope stored by SetCustomerScope.
func CurrentCustomerScope(c *gin.Context) (CustomerScope, bool) {
	value, exists := c.Get(string(scopeContextKey))
	if !exists {
		return CustomerScope{}, false
	}
	scope, ok := value.(CustomerScope)
	return scope, ok
}
