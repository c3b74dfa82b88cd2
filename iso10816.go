package vigil

import (
	"math"
)

// MachineClass is an ISO 10816-3 machine class.
type MachineClass int

const (
	// ClassI covers small machines up to 15 kW.
	ClassI MachineClass = iota + 1
	// ClassII covers medium machines, 15-75 kW or rigidly mounted up
	// to 300 kW.
	ClassII
	// ClassIII covers large machines on rigid foundations.
	ClassIII
	// ClassIV covers large machines on soft foundations.
	ClassIV
)

// String returns the class name.
func (c MachineClass) String() string {
	switch c {
	case ClassI:
		return "class1"
	case ClassII:
		return "class2"
	case ClassIII:
		return "class3"
	case ClassIV:
		return "class4"
	default:
		return "unknown"
	}
}

// ParseMachineClass maps a config string to a machine class.
func ParseMachineClass(name string) (MachineClass, error) {
	switch name {
	case "class1", "classI", "I":
		return ClassI, nil
	case "class2", "classII", "II":
		return ClassII, nil
	case "class3", "classIII", "III":
		return ClassIII, nil
	case "class4", "classIV", "IV":
		return ClassIV, nil
	default:
		return 0, newConfigError("iso10816Class", "unknown machine class "+name)
	}
}

// VibrationUnit identifies the physical unit of the raw vibration signal.
type VibrationUnit int

const (
	// UnitMMPerSec is velocity in mm/s, used directly.
	UnitMMPerSec VibrationUnit = iota
	// UnitMPerSec is velocity in m/s.
	UnitMPerSec
	// UnitG is acceleration in g.
	UnitG
	// UnitMPerSec2 is acceleration in m/s^2.
	UnitMPerSec2
	// UnitRaw is dimensionless; no severity classification applies.
	UnitRaw
)

// String returns the unit's config name.
func (u VibrationUnit) String() string {
	switch u {
	case UnitMPerSec:
		return "m_s"
	case UnitG:
		return "g"
	case UnitMPerSec2:
		return "m_s2"
	case UnitRaw:
		return "raw"
	default:
		return "mm_s"
	}
}

// ParseVibrationUnit maps a config string to a unit.
func ParseVibrationUnit(name string) (VibrationUnit, error) {
	switch name {
	case "", "mm_s", "mm/s":
		return UnitMMPerSec, nil
	case "m_s", "m/s":
		return UnitMPerSec, nil
	case "g":
		return UnitG, nil
	case "m_s2", "m/s2", "m/s^2":
		return UnitMPerSec2, nil
	case "raw":
		return UnitRaw, nil
	default:
		return 0, newConfigError("vibInputUnit", "unknown vibration unit "+name)
	}
}

// VibrationZone is an ISO 10816-3 evaluation zone.
type VibrationZone string

const (
	// ZoneA is newly commissioned condition.
	ZoneA VibrationZone = "A"
	// ZoneB is acceptable for unrestricted long-term operation.
	ZoneB VibrationZone = "B"
	// ZoneC is unsatisfactory for long-term operation.
	ZoneC VibrationZone = "C"
	// ZoneD is severe enough to cause damage.
	ZoneD VibrationZone = "D"
	// ZoneNA marks input that cannot be classified.
	ZoneNA VibrationZone = "not applicable"
)

// isoBreakpoints holds the A/B, B/C, and C/D boundaries in mm/s RMS
// velocity per machine class.
var isoBreakpoints = map[MachineClass][3]float64{
	ClassI:   {0.71, 1.8, 4.5},
	ClassII:  {1.12, 2.8, 7.1},
	ClassIII: {1.8, 4.5, 11.2},
	ClassIV:  {2.8, 7.1, 18.0},
}

// ISOConfig configures the ISO 10816-3 classifier.
type ISOConfig struct {
	// Class is the machine class.
	Class MachineClass

	// Unit is the physical unit of the input RMS.
	Unit VibrationUnit

	// FundamentalHz is the shaft fundamental used to convert
	// acceleration units to velocity. Zero assumes the industrial
	// 50 Hz.
	FundamentalHz float64
}

// DefaultISOConfig returns class II with mm/s input.
func DefaultISOConfig() ISOConfig {
	return ISOConfig{Class: ClassII, Unit: UnitMMPerSec}
}

// ISOAssessment is one severity classification.
type ISOAssessment struct {
	Class MachineClass  `json:"class"`
	Zone  VibrationZone `json:"zone"`

	// VelocityRMS is the converted value in mm/s.
	VelocityRMS float64 `json:"velocity_rms"`

	// ZoneProgress is the position within the zone in percent.
	ZoneProgress float64 `json:"zone_progress"`

	Severity    Severity `json:"severity"`
	IsAlarm     bool     `json:"is_alarm"`
	Description string   `json:"description"`
}

// ISOClassifier maps RMS vibration readings to ISO 10816-3 zones.
type ISOClassifier struct {
	config ISOConfig
}

// NewISOClassifier creates a classifier, clamping invalid config.
func NewISOClassifier(config ISOConfig) *ISOClassifier {
	if _, ok := isoBreakpoints[config.Class]; !ok {
		config.Class = ClassII
	}
	if config.FundamentalHz <= 0 {
		config.FundamentalHz = 50
	}
	return &ISOClassifier{config: config}
}

// Classify assesses one RMS reading in the configured unit.
func (c *ISOClassifier) Classify(rms float64) (*ISOAssessment, error) {
	if math.IsNaN(rms) || math.IsInf(rms, 0) || rms < 0 {
		return nil, newValidationError("iso10816", "RMS must be finite and non-negative", rms)
	}

	if c.config.Unit == UnitRaw {
		return &ISOAssessment{
			Class:       c.config.Class,
			Zone:        ZoneNA,
			Severity:    SeverityNormal,
			Description: "raw input has no physical unit; severity not applicable",
		}, nil
	}

	mmps := c.toVelocity(rms)
	bp := isoBreakpoints[c.config.Class]

	a := &ISOAssessment{Class: c.config.Class, VelocityRMS: mmps}
	switch {
	case mmps <= bp[0]:
		a.Zone = ZoneA
		a.Severity = SeverityNormal
		a.ZoneProgress = zoneProgress(mmps, 0, bp[0])
		a.Description = "good: vibration of newly commissioned machinery"
	case mmps <= bp[1]:
		a.Zone = ZoneB
		a.Severity = SeverityNormal
		a.ZoneProgress = zoneProgress(mmps, bp[0], bp[1])
		a.Description = "acceptable: unrestricted long-term operation"
	case mmps <= bp[2]:
		a.Zone = ZoneC
		a.Severity = SeverityWarning
		a.ZoneProgress = zoneProgress(mmps, bp[1], bp[2])
		a.Description = "unsatisfactory: restricted operation, plan maintenance"
	default:
		a.Zone = ZoneD
		a.Severity = SeverityCritical
		a.IsAlarm = true
		a.ZoneProgress = 100
		a.Description = "unacceptable: vibration severe enough to cause damage"
	}
	return a, nil
}

// toVelocity converts the input reading to mm/s RMS velocity. Sinusoidal
// motion at the fundamental is assumed for acceleration units:
// v = a / (2*pi*f).
func (c *ISOClassifier) toVelocity(rms float64) float64 {
	omega := 2 * math.Pi * c.config.FundamentalHz
	switch c.config.Unit {
	case UnitMPerSec:
		return rms * 1000
	case UnitG:
		return 9810 * rms / omega
	case UnitMPerSec2:
		return 1000 * rms / omega
	default:
		return rms
	}
}

func zoneProgress(v, lo, hi float64) float64 {
	if hi <= lo {
		return 0
	}
	p := 100 * (v - lo) / (hi - lo)
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
