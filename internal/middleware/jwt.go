package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mooc-session-miner/internal/models"
	appErrors "github.com/noah-isme/mooc-session-miner/pkg/errors"
	"github.com/noah-isme/mooc-session-miner/pkg/response"
)

// ContextOperatorKey is the gin context key storing operator claims.
const ContextOperatorKey = "currentOperator"

type tokenValidator interface {
	Validate(token string) (*models.OperatorClaims, error)
}

// JWT protects routes by requiring a valid operator bearer token.
func JWT(tokens tokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := tokens.Validate(parts[1])
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextOperatorKey, claims)
		c.Next()
	}
}

// Operator returns the authenticated operator, if any.
func Operator(c *gin.Context) (*models.OperatorClaims, bool) {
	value, ok := c.Get(ContextOperatorKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*models.OperatorClaims)
	return claims, ok
}
