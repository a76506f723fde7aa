package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/booking-api/internal/model"
	apperrors "github.com/jwalitptl/booking-api/pkg/errors"
	"github.com/jwalitptl/booking-api/pkg/httputil"
)

const ContextIdentity = "identity"

// IdentityResolver turns a bearer access token into the caller's identity.
type IdentityResolver interface {
	Resolve(ctx context.Context, accessToken string) (*model.Identity, error)
}

type AuthMiddleware struct {
	resolver IdentityResolver
}

func NewAuthMiddleware(resolver IdentityResolver) *AuthMiddleware {
	return &AuthMiddleware{resolver: resolver}
}

// Authenticate resolves the bearer token and stores the identity in the
// request context. Requests without a valid token are rejected with 401.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			httputil.RespondWithError(c, apperrors.Unauthorized("missing authorization header", nil))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			httputil.RespondWithError(c, apperrors.Unauthorized("invalid authorization format", nil))
			return
		}

		identity, err := m.resolver.Resolve(c.Request.Context(), strings.TrimSpace(parts[1]))
		if err != nil {
			httputil.RespondWithError(c, err)
			return
		}

		c.Set(ContextIdentity, identity)
		c.Next()
	}
}

// GetIdentity returns the caller resolved by Authenticate, or nil.
func GetIdentity(c *gin.Context) *model.Identity {
	if v, ok := c.Get(ContextIdentity); ok {
		if id, ok := v.(*model.Identity); ok {
			return id
		}
	}
	return nil
}
