package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/walimu/core"
	"github.com/trezcool/walimu/services/ratelimit"
)

func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin && contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// staffMiddleware allows reviewers and admins through.
func staffMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin || claims.IsReviewer {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// rateLimitMiddleware counts hits per (route, client IP). The limiter fails
// open so an unavailable redis never takes the endpoint down with it.
func rateLimitMiddleware(limiter ratelimit.Limiter, logger core.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			key := ctx.Path() + ":" + ctx.RealIP()
			allowed, err := limiter.Allow(ctx.Request().Context(), key)
			if err != nil {
				logger.Warn("rate limit check failed", err)
				return next(ctx)
			}
			if !allowed {
				return errTooManyRequests
			}
			return next(ctx)
		}
	}
}
