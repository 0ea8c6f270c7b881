package models

import "fmt"

// Standard is the plug or socket standard of a connector.
type Standard string

const (
	StandardCHAdeMO            Standard = "CHADEMO"
	StandardChaoJi             Standard = "CHAOJI"
	StandardDomesticA          Standard = "DOMESTIC_A"
	StandardDomesticB          Standard = "DOMESTIC_B"
	StandardDomesticC          Standard = "DOMESTIC_C"
	StandardDomesticD          Standard = "DOMESTIC_D"
	StandardDomesticE          Standard = "DOMESTIC_E"
	StandardDomesticF          Standard = "DOMESTIC_F"
	StandardDomesticG          Standard = "DOMESTIC_G"
	StandardDomesticH          Standard = "DOMESTIC_H"
	StandardDomesticI          Standard = "DOMESTIC_I"
	StandardDomesticJ          Standard = "DOMESTIC_J"
	StandardDomesticK          Standard = "DOMESTIC_K"
	StandardDomesticL          Standard = "DOMESTIC_L"
	StandardDomesticM          Standard = "DOMESTIC_M"
	StandardDomesticN          Standard = "DOMESTIC_N"
	StandardDomesticO          Standard = "DOMESTIC_O"
	StandardGBTAC              Standard = "GBT_AC"
	StandardGBTDC              Standard = "GBT_DC"
	StandardIEC603092Single16  Standard = "IEC_60309_2_single_16"
	StandardIEC603092Three16   Standard = "IEC_60309_2_three_16"
	StandardIEC603092Three32   Standard = "IEC_60309_2_three_32"
	StandardIEC603092Three64   Standard = "IEC_60309_2_three_64"
	StandardIEC62196T1         Standard = "IEC_62196_T1"
	StandardIEC62196T1Combo    Standard = "IEC_62196_T1_COMBO"
	StandardIEC62196T2         Standard = "IEC_62196_T2"
	StandardIEC62196T2Combo    Standard = "IEC_62196_T2_COMBO"
	StandardIEC62196T3A        Standard = "IEC_62196_T3A"
	StandardIEC62196T3C        Standard = "IEC_62196_T3C"
	StandardNEMA520            Standard = "NEMA_5_20"
	StandardNEMA630            Standard = "NEMA_6_30"
	StandardNEMA650            Standard = "NEMA_6_50"
	StandardNEMA1030           Standard = "NEMA_10_30"
	StandardNEMA1050           Standard = "NEMA_10_50"
	StandardNEMA1430           Standard = "NEMA_14_30"
	StandardNEMA1450           Standard = "NEMA_14_50"
	StandardPantographBottomUp Standard = "PANTOGRAPH_BOTTOM_UP"
	StandardPantographTopDown  Standard = "PANTOGRAPH_TOP_DOWN"
	StandardTeslaR             Standard = "TESLA_R"
	StandardTeslaS             Standard = "TESLA_S"
)

// Format tells whether the connector is a socket or a tethered cable.
type Format string

const (
	FormatSocket Format = "SOCKET"
	FormatCable  Format = "CABLE"
)

// PowerType is the kind of current delivered.
type PowerType string

const (
	PowerAC1Phase      PowerType = "AC_1_PHASE"
	PowerAC2Phase      PowerType = "AC_2_PHASE"
	PowerAC2PhaseSplit PowerType = "AC_2_PHASE_SPLIT"
	PowerAC3Phase      PowerType = "AC_3_PHASE"
	PowerDC            PowerType = "DC"
)

var (
	standards = set(
		StandardCHAdeMO, StandardChaoJi,
		StandardDomesticA, StandardDomesticB, StandardDomesticC, StandardDomesticD, StandardDomesticE,
		StandardDomesticF, StandardDomesticG, StandardDomesticH, StandardDomesticI, StandardDomesticJ,
		StandardDomesticK, StandardDomesticL, StandardDomesticM, StandardDomesticN, StandardDomesticO,
		StandardGBTAC, StandardGBTDC,
		StandardIEC603092Single16, StandardIEC603092Three16, StandardIEC603092Three32, StandardIEC603092Three64,
		StandardIEC62196T1, StandardIEC62196T1Combo, StandardIEC62196T2, StandardIEC62196T2Combo,
		StandardIEC62196T3A, StandardIEC62196T3C,
		StandardNEMA520, StandardNEMA630, StandardNEMA650, StandardNEMA1030, StandardNEMA1050,
		StandardNEMA1430, StandardNEMA1450,
		StandardPantographBottomUp, StandardPantographTopDown,
		StandardTeslaR, StandardTeslaS,
	)
	formats    = set(FormatSocket, FormatCable)
	powerTypes = set(PowerAC1Phase, PowerAC2Phase, PowerAC2PhaseSplit, PowerAC3Phase, PowerDC)
)

func set[E ~string](values ...E) map[E]struct{} {
	m := make(map[E]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return m
}

func parseEnum[E ~string](known map[E]struct{}, name string, b []byte) (E, error) {
	v := E(b)
	if _, ok := known[v]; !ok {
		return "", fmt.Errorf("unknown %s %q", name, string(b))
	}
	return v, nil
}

func (s Standard) IsValid() bool  { _, ok := standards[s]; return ok }
func (f Format) IsValid() bool    { _, ok := formats[f]; return ok }
func (p PowerType) IsValid() bool { _, ok := powerTypes[p]; return ok }

func (s *Standard) UnmarshalText(b []byte) error {
	v, err := parseEnum(standards, "connector standard", b)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (f *Format) UnmarshalText(b []byte) error {
	v, err := parseEnum(formats, "connector format", b)
	if err != nil {
		return err
	}
	*f = v
	return nil
}

func (p *PowerType) UnmarshalText(b []byte) error {
	v, err := parseEnum(powerTypes, "power type", b)
	if err != nil {
		return err
	}
	*p = v
	return nil
}
