package client

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	partyModels "github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/party/models"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain"
	dErrors "github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain-errors"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/platform/circuit"
)

type ClientSuite struct {
	suite.Suite
	auth Auth
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	s.auth = Auth{Token: partyModels.MustAccessToken("their-token"), Base64: true}
}

func (s *ClientSuite) newClient(opts ...Option) *Client {
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithRetries(2, time.Millisecond),
		WithRateLimit(1000),
		WithTimeout(time.Second),
	}
	return New(append(base, opts...)...)
}

func ok(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data":        data,
		"status_code": 1000,
		"timestamp":   "2024-01-01T00:00:00.000Z",
	})
}

func (s *ClientSuite) TestVersionsSendsHeaders() {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		ok(w, []map[string]string{
			{"version": "2.1.1", "url": "https://example.com/ocpi/2.1.1"},
			{"version": "2.2.1", "url": "https://example.com/ocpi/2.2.1"},
		})
	}))
	defer srv.Close()

	versions, err := s.newClient().Versions(s.T().Context(), srv.URL, s.auth)
	s.Require().NoError(err)
	s.Require().Len(versions, 2)
	s.Equal(domain.Version221, versions[1].Version)
	s.Equal("Token dGhlaXItdG9rZW4=", got.Get("Authorization"))
	s.NotEmpty(got.Get(HeaderRequestID))
	s.NotEmpty(got.Get(HeaderCorrelationID))
}

func (s *ClientSuite) TestGetRetriesServerErrors() {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		ok(w, map[string]any{"version": "2.2.1", "endpoints": []any{}})
	}))
	defer srv.Close()

	details, err := s.newClient().Details(s.T().Context(), srv.URL, s.auth)
	s.Require().NoError(err)
	s.Equal(domain.Version221, details.Version)
	s.Equal(int32(3), calls.Load())
}

func (s *ClientSuite) TestGetDoesNotRetryClientErrors() {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{"status_code": 2000, "status_message": "unknown token"})
	}))
	defer srv.Close()

	_, err := s.newClient().Versions(s.T().Context(), srv.URL, s.auth)
	s.Require().Error(err)
	s.True(errors.Is(err, ErrRejected))
	s.True(dErrors.HasCode(err, dErrors.CodeUpstream))
	s.Equal(int32(1), calls.Load())

	var se *StatusError
	s.Require().True(errors.As(err, &se))
	s.Equal(http.StatusUnauthorized, se.HTTPStatus)
	s.Equal(2000, se.StatusCode)
}

func (s *ClientSuite) TestOCPIErrorInSuccessfulHTTPIsRejected() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status_code": 3001, "status_message": "cannot reach you"})
	}))
	defer srv.Close()

	_, err := s.newClient().PostCredentials(s.T().Context(), srv.URL, s.auth, map[string]string{"token": "x"})
	s.True(errors.Is(err, ErrRejected))
	s.True(Delivered(err))
	s.False(Unusable(err))
}

func (s *ClientSuite) TestPostIsNotRetriedOnceDelivered() {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := s.newClient().PostCredentials(s.T().Context(), srv.URL, s.auth, map[string]string{"token": "x"})
	s.Require().Error(err)
	s.Equal(int32(1), calls.Load())
	s.True(Delivered(err))
}

func (s *ClientSuite) TestPostGarbageIsUnusable() {
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte("<html>gateway</html>"))
	}))
	defer srv.Close()

	_, err := s.newClient().PutCredentials(s.T().Context(), srv.URL, s.auth, map[string]string{"token": "ours"})
	s.Require().Error(err)
	s.True(Unusable(err))
	s.Equal("ours", body["token"])
}

func (s *ClientSuite) TestUnreachableIsNotDelivered() {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	s.Require().NoError(err)
	addr := ln.Addr().String()
	s.Require().NoError(ln.Close())

	_, err = s.newClient().PostCredentials(s.T().Context(), "http://"+addr+"/credentials", s.auth, map[string]string{})
	s.Require().Error(err)
	s.False(Delivered(err))
}

func (s *ClientSuite) TestBreakerOpensPerHost() {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := s.newClient(
		WithRetries(0, time.Millisecond),
		WithBreakerOptions(circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour)),
	)
	for range 2 {
		_, err := c.Versions(s.T().Context(), srv.URL, s.auth)
		s.Require().Error(err)
	}
	_, err := c.Versions(s.T().Context(), srv.URL, s.auth)
	s.Require().Error(err)
	s.False(Delivered(err))
	s.Equal(int32(2), calls.Load())
}

func (s *ClientSuite) TestInvalidURL() {
	_, err := s.newClient().Versions(s.T().Context(), "not a url", s.auth)
	s.True(dErrors.HasCode(err, dErrors.CodeUpstream))
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(ErrNotDelivered, false))
	assert.False(t, retryable(ErrNoResponse, false))
	assert.True(t, retryable(ErrNoResponse, true))
	assert.True(t, retryable(&StatusError{HTTPStatus: 503}, true))
	assert.False(t, retryable(&StatusError{HTTPStatus: 503}, false))
	assert.False(t, retryable(&StatusError{HTTPStatus: 404}, true))
}

func TestStatusErrorMessage(t *testing.T) {
	err := &StatusError{HTTPStatus: 400, StatusCode: 2001, Message: "bad"}
	require.Equal(t, "http 400, ocpi 2001: bad", err.Error())
}
