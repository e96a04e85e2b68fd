package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/incidence-service/internal/domain"
	apperrors "github.com/spec-kit/incidence-service/pkg/util/errorutil"
)

// RequireRole ensures the principal's directory role satisfies required.
func RequireRole(required domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !principal.User.Role.Satisfies(required) {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}
