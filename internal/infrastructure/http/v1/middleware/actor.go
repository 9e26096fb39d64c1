package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"mercatus/internal/core/apperror"
	appctx "mercatus/internal/core/context"
)

// ActorClaims is the token payload the pricing API cares about. Tokens are
// issued elsewhere; this service only verifies and extracts identity for
// audit fields.
type ActorClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// Actor middleware extracts the authenticated actor from a Bearer token
// and stores it in the request context. Requests without a token pass
// through anonymous; use RequireActor on routes that must be attributed.
func Actor(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}

		raw, found := strings.CutPrefix(header, "Bearer ")
		if !found {
			_ = c.Error(apperror.NewUnauthorized("malformed authorization header"))
			c.Abort()
			return
		}

		claims := &ActorClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return secret, nil
		})
		if err != nil || !token.Valid {
			_ = c.Error(apperror.NewUnauthorized("invalid token"))
			c.Abort()
			return
		}

		actor := &appctx.ActorContext{
			ActorID: claims.Subject,
			Email:   claims.Email,
			Name:    claims.Name,
		}
		ctx := appctx.WithActor(c.Request.Context(), actor)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireActor rejects requests that did not present a valid token.
func RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if appctx.GetActor(c.Request.Context()) == nil {
			_ = c.Error(apperror.NewUnauthorized("authentication required"))
			c.Abort()
			return
		}
		c.Next()
	}
}
