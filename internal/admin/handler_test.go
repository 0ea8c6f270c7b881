package admin

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/admin/mocks"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/party/service"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/party/store"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/platform/logger"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/registration/models"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain"
	dErrors "github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain-errors"
	adminmw "github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/platform/middleware/admin"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/requestcontext"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/service-mocks.go -package=mocks PartyService,RegistrationService

const adminToken = "secret-token"

type AdminHandlerSuite struct {
	suite.Suite
	now          time.Time
	registration *mocks.MockRegistrationService
	router       http.Handler
}

func TestAdminHandlerSuite(t *testing.T) {
	suite.Run(t, new(AdminHandlerSuite))
}

func (s *AdminHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.T().Cleanup(ctrl.Finish)
	s.registration = mocks.NewMockRegistrationService(ctrl)
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	parties := service.New(store.NewInMemory(), service.WithLogger(logger.Discard()))
	h := New(parties, s.registration, logger.Discard(), adminToken)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestcontext.WithTime(r.Context(), s.now)))
		})
	})
	h.Register(r)
	s.router = r
}

func (s *AdminHandlerSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(adminmw.HeaderAdminToken, adminToken)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *AdminHandlerSuite) createParty() {
	rec := s.do(http.MethodPost, "/admin/parties", map[string]any{
		"country_code": "nl",
		"party_id":     "exa",
		"role":         "CPO",
		"name":         "Example CPO",
		"bootstrap": map[string]any{
			"token":        "their-bootstrap",
			"versions_url": "https://cpo.example.com/ocpi/versions",
		},
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
}

func (s *AdminHandlerSuite) TestAdminTokenRequired() {
	req := httptest.NewRequest(http.MethodGet, "/admin/parties", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	testutil.AssertStatusAndError(s.T(), rec, http.StatusUnauthorized, "unauthorized")
}

func (s *AdminHandlerSuite) TestCreateAndGetParty() {
	s.createParty()

	rec := s.do(http.MethodGet, "/admin/parties/NL/EXA/CPO/", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var resp PartyResponse
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
	s.Equal("NL*EXA*CPO", resp.Key)
	s.False(resp.Registered)
	s.Require().Len(resp.RemoteAccess, 1)
	s.Equal("https://cpo.example.com/ocpi/versions", resp.RemoteAccess[0].VersionsURL)
	s.NotContains(rec.Body.String(), "their-bootstrap")

	rec = s.do(http.MethodGet, "/admin/parties", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var list PartiesListResponse
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&list))
	s.Equal(1, list.Total)
}

func (s *AdminHandlerSuite) TestCreatePartyErrors() {
	s.Run("duplicate party conflicts", func() {
		s.createParty()
		rec := s.do(http.MethodPost, "/admin/parties", map[string]any{
			"country_code": "NL", "party_id": "EXA", "role": "CPO",
		})
		s.Equal(http.StatusConflict, rec.Code)
	})

	s.Run("invalid identifiers are rejected", func() {
		rec := s.do(http.MethodPost, "/admin/parties", map[string]any{
			"country_code": "NLD", "party_id": "EXA", "role": "CPO",
		})
		testutil.AssertStatusAndError(s.T(), rec, http.StatusBadRequest, "validation_error")
	})

	s.Run("malformed json", func() {
		req := httptest.NewRequest(http.MethodPost, "/admin/parties", strings.NewReader("{"))
		req.Header.Set(adminmw.HeaderAdminToken, adminToken)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *AdminHandlerSuite) TestIssueToken() {
	s.createParty()

	s.Run("returns the secret once", func() {
		rec := s.do(http.MethodPost, "/admin/parties/NL/EXA/CPO/tokens", map[string]any{
			"token": "handed-over", "base64": true,
		})
		s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
		var resp TokenResponse
		s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
		s.Equal("handed-over", resp.Token)
		s.Equal("PENDING", string(resp.Status))
		s.NotEmpty(resp.Fingerprint)

		rec = s.do(http.MethodGet, "/admin/parties/NL/EXA/CPO/", nil)
		s.NotContains(rec.Body.String(), "handed-over")
	})

	s.Run("empty validity window is rejected", func() {
		rec := s.do(http.MethodPost, "/admin/parties/NL/EXA/CPO/tokens", map[string]any{
			"not_before": s.now.Add(time.Hour),
			"not_after":  s.now,
		})
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("unknown party", func() {
		rec := s.do(http.MethodPost, "/admin/parties/DE/XYZ/CPO/tokens", map[string]any{})
		s.Equal(http.StatusNotFound, rec.Code)
	})
}

func (s *AdminHandlerSuite) TestBlock() {
	s.createParty()

	rec := s.do(http.MethodPost, "/admin/parties/NL/EXA/CPO/block", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var resp PartyResponse
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
	s.Equal("BLOCKED", string(resp.Status))
}

func (s *AdminHandlerSuite) TestStartRegistration() {
	key, err := domain.NewPartyKey("NL", "EXA", "CPO")
	s.Require().NoError(err)

	s.Run("answers 202 with the initial outcome", func() {
		s.registration.EXPECT().StartRegister(gomock.Any(), key).Return(models.Outcome{
			Party: key, Direction: models.DirectionRegister, State: models.StateDiscovering,
		}, nil)

		rec := s.do(http.MethodPost, "/admin/parties/NL/EXA/CPO/registration", nil)
		s.Equal(http.StatusAccepted, rec.Code)
		s.Contains(rec.Body.String(), `"state":"DISCOVERING"`)
	})

	s.Run("renewal of an unregistered party", func() {
		s.registration.EXPECT().StartRenew(gomock.Any(), key).
			Return(models.Outcome{}, dErrors.New(dErrors.CodeInvariantViolation, "party is not registered"))

		rec := s.do(http.MethodPost, "/admin/parties/NL/EXA/CPO/registration/renew", nil)
		s.Equal(http.StatusConflict, rec.Code)
	})

	s.Run("invalid key", func() {
		rec := s.do(http.MethodPost, "/admin/parties/NL/EXA/NOPE/registration", nil)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *AdminHandlerSuite) TestRegistrationStatus() {
	key, err := domain.NewPartyKey("NL", "EXA", "CPO")
	s.Require().NoError(err)

	s.registration.EXPECT().Status(key).Return(models.Outcome{
		Party: key, State: models.StateFailed, Reason: "no mutual version",
	}, true)
	rec := s.do(http.MethodGet, "/admin/parties/NL/EXA/CPO/registration", nil)
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "no mutual version")

	s.registration.EXPECT().Status(key).Return(models.Outcome{}, false)
	rec = s.do(http.MethodGet, "/admin/parties/NL/EXA/CPO/registration", nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *AdminHandlerSuite) TestDeregister() {
	key, err := domain.NewPartyKey("NL", "EXA", "CPO")
	s.Require().NoError(err)
	s.registration.EXPECT().Deregister(gomock.Any(), key).Return(nil)

	rec := s.do(http.MethodDelete, "/admin/parties/NL/EXA/CPO/registration", nil)
	s.Equal(http.StatusNoContent, rec.Code)
}

func (s *AdminHandlerSuite) TestPrune() {
	rec := s.do(http.MethodPost, "/admin/prune", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"removed":0}`, rec.Body.String())
}
