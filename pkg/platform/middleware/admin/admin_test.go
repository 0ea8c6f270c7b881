package admin

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/secrets"
)

func TestRequireAdminToken(t *testing.T) {
	hash, err := secrets.Hash("s3cret")
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	reject := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusUnauthorized) }

	for _, expected := range []string{"s3cret", hash} {
		h := RequireAdminToken(expected, logger, reject)(ok)

		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set(HeaderAdminToken, "s3cret")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusNoContent, rr.Code)

		req = httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set(HeaderAdminToken, "wrong")
		rr = httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	}

	disabled := RequireAdminToken("", logger, reject)(ok)
	rr := httptest.NewRecorder()
	disabled.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
