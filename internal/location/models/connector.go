package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/patch"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain"
)

// Connector is one plug or socket of an EVSE, as pushed to us by a CPO.
type Connector struct {
	ID                 domain.ConnectorID `json:"id"`
	Standard           Standard           `json:"standard" validate:"required"`
	Format             Format             `json:"format" validate:"required"`
	PowerType          PowerType          `json:"power_type" validate:"required"`
	MaxVoltage         int                `json:"max_voltage" validate:"gte=0"`
	MaxAmperage        int                `json:"max_amperage" validate:"gte=0"`
	MaxElectricPower   *int               `json:"max_electric_power,omitempty" validate:"omitempty,gte=0"`
	TariffIDs          []string           `json:"tariff_ids,omitempty" validate:"omitempty,dive,min=1,max=36"`
	TermsAndConditions string             `json:"terms_and_conditions,omitempty" validate:"omitempty,url"`
	LastUpdated        domain.Timestamp   `json:"last_updated"`
}

// Schema drives PATCH handling for connectors.
var Schema = patch.Schema{
	Entity:    "connector",
	Immutable: map[string]string{"id": "identification"},
	Mandatory: []string{"standard", "format", "power_type", "max_voltage", "max_amperage", "last_updated"},
	Labels: map[string]string{
		"power_type":           "power type",
		"max_voltage":          "max voltage",
		"max_amperage":         "max amperage",
		"max_electric_power":   "max electric power",
		"tariff_ids":           "tariff ids",
		"terms_and_conditions": "terms and conditions",
		"last_updated":         "last updated",
	},
	Timestamp: "last_updated",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks a complete connector. Messages name the offending field
// the same way PATCH failures do.
func Validate(c Connector) error {
	if c.ID.IsZero() {
		return fmt.Errorf("The '%s' of a %s is missing!", Schema.Label("id"), Schema.Entity)
	}
	if c.LastUpdated.IsZero() {
		return fmt.Errorf("The '%s' of a %s is missing!", Schema.Label("last_updated"), Schema.Entity)
	}
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			field := verrs[0].Field()
			if verrs[0].Tag() == "required" {
				return fmt.Errorf("The '%s' of a %s is missing!", Schema.Label(field), Schema.Entity)
			}
			return fmt.Errorf("Invalid value for the '%s' of a %s!", Schema.Label(field), Schema.Entity)
		}
		return err
	}
	return nil
}

// Key addresses a connector: the owning CPO, then the location, EVSE and
// connector ids as they appear in the URL.
type Key struct {
	Owner       domain.PartyIdentity
	LocationID  domain.LocationID
	EVSEUID     domain.EVSEUID
	ConnectorID domain.ConnectorID
}

// ParseKey validates the five URL segments of a connector.
func ParseKey(countryCode, partyID, locationID, evseUID, connectorID string) (Key, error) {
	owner, err := domain.NewPartyIdentity(countryCode, partyID)
	if err != nil {
		return Key{}, err
	}
	loc, err := domain.ParseLocationID(locationID)
	if err != nil {
		return Key{}, err
	}
	evse, err := domain.ParseEVSEUID(evseUID)
	if err != nil {
		return Key{}, err
	}
	conn, err := domain.ParseConnectorID(connectorID)
	if err != nil {
		return Key{}, err
	}
	return Key{Owner: owner, LocationID: loc, EVSEUID: evse, ConnectorID: conn}, nil
}

func (k Key) String() string {
	return k.Owner.String() + "/" + k.LocationID.String() + "/" + k.EVSEUID.String() + "/" + k.ConnectorID.String()
}

// Record is a stored connector with its current entity tag.
type Record struct {
	Key       Key
	Connector Connector
	ETag      string
}

// NewRecord computes the entity tag for c.
func NewRecord(key Key, c Connector) (Record, error) {
	etag, err := patch.ETag(c)
	if err != nil {
		return Record{}, fmt.Errorf("compute etag: %w", err)
	}
	return Record{Key: key, Connector: c, ETag: etag}, nil
}
