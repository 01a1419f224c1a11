package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/tierpeak/apollo-middleman/internal/enrich"
)

// Marker stamps the middleman header on every response, including router 404/405s.
// Register with e.Pre so it runs before routing.
func Marker() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Response().Header().Set(enrich.MarkerHeader, enrich.MarkerValue)
			return next(c)
		}
	}
}
