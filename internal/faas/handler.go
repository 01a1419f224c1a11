// Package faas runs the people-match proxy as an AWS Lambda behind an API
// Gateway v2 (HTTP API) integration. The request is read from
// events.APIGatewayV2HTTPRequest and the reply is returned as an
// events.APIGatewayProxyResponse carrying the same status, filtered headers
// and body the HTTP server would send.
package faas

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"unicode/utf8"

	"github.com/aws/aws-lambda-go/events"
	pkgerrors "github.com/pkg/errors"
	"github.com/tierpeak/apollo-middleman/internal/enrich"
	"github.com/tierpeak/apollo-middleman/internal/service/enrichment"
	"go.uber.org/zap"
)

// Matcher is satisfied by *enrichment.Service.
type Matcher interface {
	Match(ctx context.Context, method string, body []byte) (enrich.Result, error)
}

type Handler struct {
	svc Matcher
	log *zap.Logger
}

func NewHandler(svc Matcher, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, log: log}
}

// Handle is the lambda entry point.
func (h *Handler) Handle(ctx context.Context, request events.APIGatewayV2HTTPRequest) (events.APIGatewayProxyResponse, error) {
	method := request.RequestContext.HTTP.Method
	if method != http.MethodPost && method != http.MethodGet {
		return toProxyResponse(enrich.Failure(http.StatusMethodNotAllowed, "method not allowed", "")), nil
	}

	body, err := Body(request)
	if err != nil {
		h.log.Warn("decode lambda body", zap.Error(err))
		return toProxyResponse(enrich.Failure(http.StatusBadRequest, "bad request", "")), nil
	}

	res, err := h.svc.Match(ctx, method, body)
	if err != nil && !errors.Is(err, enrichment.ErrUpstreamUnavailable) {
		return events.APIGatewayProxyResponse{}, pkgerrors.Wrap(err, "people match")
	}

	return toProxyResponse(res), nil
}

// Body returns the raw request body, decoding base64 when API Gateway flagged it.
func Body(request events.APIGatewayV2HTTPRequest) ([]byte, error) {
	if !request.IsBase64Encoded {
		return []byte(request.Body), nil
	}

	b, err := base64.StdEncoding.DecodeString(request.Body)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "unable to decode request body for %s %s", request.RequestContext.HTTP.Method, request.RawPath)
	}
	return b, nil
}

func toProxyResponse(r enrich.Result) events.APIGatewayProxyResponse {
	headers := make(map[string]string, len(r.Header))
	multi := make(map[string][]string, len(r.Header))
	for k, vs := range r.Header {
		if len(vs) == 0 {
			continue
		}
		headers[k] = vs[0]
		multi[k] = append([]string(nil), vs...)
	}

	resp := events.APIGatewayProxyResponse{
		StatusCode:        r.StatusCode,
		Headers:           headers,
		MultiValueHeaders: multi,
	}
	if utf8.Valid(r.Body) {
		resp.Body = string(r.Body)
	} else {
		resp.Body = base64.StdEncoding.EncodeToString(r.Body)
		resp.IsBase64Encoded = true
	}
	return resp
}
