package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tierpeak/apollo-middleman/internal/enrich"
	"github.com/tierpeak/apollo-middleman/internal/service/enrichment"
	"go.uber.org/zap"
)

func peopleMatchHandler(svc *enrichment.Service, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()

		body, err := io.ReadAll(req.Body)
		if err != nil {
			log.Warn("read inbound body", zap.Error(err))
			return writeResult(c, enrich.Failure(http.StatusBadRequest, "bad request", ""))
		}

		res, err := svc.Match(req.Context(), req.Method, body)
		if err != nil && !errors.Is(err, enrichment.ErrUpstreamUnavailable) {
			return err
		}

		return writeResult(c, res)
	}
}

// writeResult copies the proxy result onto the echo response.
// net/http always sends the canonical reason phrase for the status code.
func writeResult(c echo.Context, r enrich.Result) error {
	h := c.Response().Header()
	for k, vs := range r.Header {
		h[k] = append([]string(nil), vs...)
	}

	c.Response().WriteHeader(r.StatusCode)
	_, err := c.Response().Write(r.Body)
	return err
}
