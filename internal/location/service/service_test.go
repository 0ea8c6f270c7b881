package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/location/models"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/location/store"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain"
	dErrors "github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain-errors"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/requestcontext"
)

type ConnectorServiceSuite struct {
	suite.Suite
	service *Service
	store   *store.InMemory
	ctx     context.Context
	now     time.Time
	key     models.Key
}

func TestConnectorServiceSuite(t *testing.T) {
	suite.Run(t, new(ConnectorServiceSuite))
}

func (s *ConnectorServiceSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.service = New(s.store)
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)

	var err error
	s.key, err = models.ParseKey("NL", "EXA", "LOC1", "EVSE1", "1")
	s.Require().NoError(err)
}

func (s *ConnectorServiceSuite) connector() models.Connector {
	ts, err := domain.ParseTimestamp("2020-09-21T00:00:00.000Z")
	s.Require().NoError(err)
	return models.Connector{
		ID:          s.key.ConnectorID,
		Standard:    models.StandardIEC62196T2,
		Format:      models.FormatSocket,
		PowerType:   models.PowerAC3Phase,
		MaxVoltage:  400,
		MaxAmperage: 32,
		TariffIDs:   []string{"T1"},
		LastUpdated: ts,
	}
}

func (s *ConnectorServiceSuite) seed() *models.Record {
	rec, created, err := s.service.Put(s.ctx, s.key, s.connector(), "")
	s.Require().NoError(err)
	s.Require().True(created)
	return rec
}

func (s *ConnectorServiceSuite) TestPut() {
	s.Run("stores and computes etag", func() {
		rec := s.seed()
		s.NotEmpty(rec.ETag)

		got, err := s.service.Get(s.ctx, s.key)
		s.Require().NoError(err)
		s.Equal(rec.ETag, got.ETag)
	})

	s.Run("id mismatch", func() {
		c := s.connector()
		c.ID = domain.MustParse[domain.ConnectorIDKind]("2")
		_, _, err := s.service.Put(s.ctx, s.key, c, "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("invalid connector", func() {
		c := s.connector()
		c.MaxAmperage = -5
		_, _, err := s.service.Put(s.ctx, s.key, c, "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Contains(err.Error(), "max amperage")
	})

	s.Run("stale if-match", func() {
		_, _, err := s.service.Put(s.ctx, s.key, s.connector(), `"stale"`)
		s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed))
	})
}

func (s *ConnectorServiceSuite) TestPatch() {
	original := s.seed()

	s.Run("immutable id", func() {
		_, err := s.service.Patch(s.ctx, s.key, []byte(`{"id": "2", "last_updated": "2020-10-15T00:00:00Z"}`), "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Equal("Patching the 'identification' of a connector is not allowed!", err.Error())

		got, err := s.service.Get(s.ctx, s.key)
		s.Require().NoError(err)
		s.Equal(original.ETag, got.ETag)
	})

	s.Run("stale etag", func() {
		_, err := s.service.Patch(s.ctx, s.key, []byte(`{"max_amperage": 16}`), `"nope"`)
		s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed))
	})

	s.Run("applied with matching etag", func() {
		rec, err := s.service.Patch(s.ctx, s.key, []byte(`{"standard": "TESLA_S"}`), `"`+original.ETag+`"`)
		s.Require().NoError(err)
		s.Equal(models.StandardTeslaS, rec.Connector.Standard)
		s.Equal(domain.NewTimestamp(s.now), rec.Connector.LastUpdated)
		s.NotEqual(original.ETag, rec.ETag)
	})

	s.Run("invalid value leaves stored connector", func() {
		before, err := s.service.Get(s.ctx, s.key)
		s.Require().NoError(err)

		_, err = s.service.Patch(s.ctx, s.key, []byte(`{"max_amperage": "I-N-V-A-L-I-D!"}`), "")
		s.Require().Error(err)
		s.Contains(err.Error(), "max amperage")

		after, err := s.service.Get(s.ctx, s.key)
		s.Require().NoError(err)
		s.Equal(before.ETag, after.ETag)
		s.Equal(before.Connector.LastUpdated, after.Connector.LastUpdated)
	})

	s.Run("unknown connector", func() {
		other, err := models.ParseKey("NL", "EXA", "LOC9", "EVSE1", "1")
		s.Require().NoError(err)
		_, err = s.service.Patch(s.ctx, other, []byte(`{}`), "")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ConnectorServiceSuite) TestList() {
	s.seed()
	owner := s.key.Owner

	recs, total, err := s.service.List(s.ctx, store.Query{Owner: owner, Limit: 10})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Len(recs, 1)
}

func TestMatchesETag(t *testing.T) {
	rec := &models.Record{ETag: "abc"}
	cases := []struct {
		ifMatch string
		want    bool
	}{
		{`"abc"`, true},
		{`W/"abc"`, true},
		{`"x", "abc"`, true},
		{`*`, true},
		{`"abd"`, false},
	}
	for _, tc := range cases {
		if got := matchesETag(rec, tc.ifMatch); got != tc.want {
			t.Errorf("matchesETag(%q) = %v, want %v", tc.ifMatch, got, tc.want)
		}
	}
	if matchesETag(nil, "*") {
		t.Error("missing record must not match")
	}
}
