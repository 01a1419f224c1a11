package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tierpeak/apollo-middleman/internal/enrich"
	"github.com/tierpeak/apollo-middleman/internal/service/enrichment"
	"github.com/tierpeak/apollo-middleman/internal/upstream"
	"go.uber.org/zap"
)

type stubForwarder struct {
	res  *upstream.Response
	err  error
	body []byte
}

func (s *stubForwarder) Forward(_ context.Context, body []byte) (*upstream.Response, error) {
	s.body = body
	return s.res, s.err
}

func newTestServer(t *testing.T, fwd upstream.Forwarder, opts enrich.Options) *Server {
	t.Helper()
	tr, err := enrich.NewTransformer(opts, zap.NewNop())
	require.NoError(t, err)
	svc := enrichment.New(fwd, tr, nil, zap.NewNop())
	return NewServer(Options{Path: "/v1/people/match"}, svc, zap.NewNop())
}

func serve(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestPeopleMatch_Augmented(t *testing.T) {
	fwd := &stubForwarder{res: &upstream.Response{
		StatusCode: http.StatusOK,
		StatusText: "OK",
		Header: http.Header{
			"Content-Type":              {"application/json; charset=utf-8"},
			"X-Hourly-Requests":         {"12"},
			"Strict-Transport-Security": {"max-age=1"},
		},
		Body: []byte(`{"person":{"phone_numbers":[{"sanitized_number":"+15551234567"}]}}`),
	}}
	s := newTestServer(t, fwd, enrich.Options{PhoneField: enrich.PhoneFieldPhoneNumber, NormalizePhone: true})

	rec := serve(s, http.MethodPost, "/v1/people/match", `{"first_name":"Ada"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"first_name":"Ada"}`, string(fwd.body))
	assert.Equal(t, "1", rec.Header().Get(enrich.MarkerHeader))
	assert.Equal(t, "12", rec.Header().Get("X-Hourly-Requests"))
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
	assert.Contains(t, rec.Body.String(), `"phoneNumber":"5551234567"`)
}

func TestPeopleMatch_GETAccepted(t *testing.T) {
	fwd := &stubForwarder{res: &upstream.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: []byte(`{}`)}}
	s := newTestServer(t, fwd, enrich.Options{})

	rec := serve(s, http.MethodGet, "/v1/people/match", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"extra":{"phone":"","response":"{}"}}`, rec.Body.String())
}

func TestPeopleMatch_UpstreamErrorPassthrough(t *testing.T) {
	fwd := &stubForwarder{res: &upstream.Response{
		StatusCode: http.StatusUnprocessableEntity,
		StatusText: "Unprocessable Entity",
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       []byte(`{"error":"bad request"}`),
	}}
	s := newTestServer(t, fwd, enrich.Options{})

	rec := serve(s, http.MethodPost, "/v1/people/match", `{}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, `{"error":"bad request"}`, rec.Body.String())
	assert.Equal(t, "1", rec.Header().Get(enrich.MarkerHeader))
}

func TestPeopleMatch_Unreachable(t *testing.T) {
	fwd := &stubForwarder{err: &upstream.TransportError{URL: "https://upstream", Err: errors.New("dial tcp: refused")}}
	s := newTestServer(t, fwd, enrich.Options{})

	rec := serve(s, http.MethodPost, "/v1/people/match", `{}`)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error":"upstream unavailable"}`, rec.Body.String())
	assert.Equal(t, "1", rec.Header().Get(enrich.MarkerHeader))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("client went away") }

func TestPeopleMatch_BodyReadError(t *testing.T) {
	fwd := &stubForwarder{}
	s := newTestServer(t, fwd, enrich.Options{})

	req := httptest.NewRequest(http.MethodPost, "/v1/people/match", io.NopCloser(failingReader{}))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "1", rec.Header().Get(enrich.MarkerHeader))
	assert.Nil(t, fwd.body)
}

func TestMarkerOnEveryResponse(t *testing.T) {
	s := newTestServer(t, &stubForwarder{}, enrich.Options{})

	for _, tc := range []struct {
		method, path string
		code         int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/nope", http.StatusNotFound},
		{http.MethodDelete, "/v1/people/match", http.StatusMethodNotAllowed},
		{http.MethodGet, "/metrics", http.StatusOK},
	} {
		rec := serve(s, tc.method, tc.path, "")
		assert.Equal(t, tc.code, rec.Code, tc.path)
		assert.Equal(t, "1", rec.Header().Get(enrich.MarkerHeader), tc.path)
	}
}
