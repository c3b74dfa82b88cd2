package vigil

import (
	"math"
	"math/rand"
	"testing"
)

func TestComputeVibrationFeatures_Sine(t *testing.T) {
	signal := make([]float64, 200)
	for i := range signal {
		signal[i] = 2 * math.Sin(2*math.Pi*float64(i)/20)
	}
	f := ComputeVibrationFeatures(signal)

	// A sine of amplitude A has RMS A/sqrt(2) and crest sqrt(2).
	if math.Abs(f.RMS-2/math.Sqrt2) > 0.05 {
		t.Errorf("RMS = %g, want ~%g", f.RMS, 2/math.Sqrt2)
	}
	if math.Abs(f.CrestFactor-math.Sqrt2) > 0.05 {
		t.Errorf("crest = %g, want ~%g", f.CrestFactor, math.Sqrt2)
	}
	if math.Abs(f.PeakToPeak-4) > 0.05 {
		t.Errorf("peak-to-peak = %g, want ~4", f.PeakToPeak)
	}
	// Sine kurtosis is -1.5 excess, skewness 0.
	if math.Abs(f.Kurtosis+1.5) > 0.1 {
		t.Errorf("kurtosis = %g, want ~-1.5", f.Kurtosis)
	}
	if math.Abs(f.Skewness) > 0.05 {
		t.Errorf("skewness = %g, want ~0", f.Skewness)
	}
	if f.HealthScore != 100 {
		t.Errorf("health score = %g, want 100 for a clean sine", f.HealthScore)
	}
}

func TestComputeVibrationFeatures_ImpulsiveSignal(t *testing.T) {
	signal := make([]float64, 100)
	for i := range signal {
		signal[i] = 0.1
	}
	signal[50] = 10 // single sharp impact

	f := ComputeVibrationFeatures(signal)
	if f.CrestFactor <= 5 {
		t.Errorf("crest = %g, want > 5 for an impulsive signal", f.CrestFactor)
	}
	if f.Kurtosis <= 3 {
		t.Errorf("kurtosis = %g, want > 3 for an impulsive signal", f.Kurtosis)
	}
	if f.HealthScore > 60 {
		t.Errorf("health score = %g, want deductions for crest and kurtosis", f.HealthScore)
	}
}

func TestVibrationAnalyzer_WarmupAndFlow(t *testing.T) {
	a := NewVibrationAnalyzer(DefaultVibrationConfig())
	for i := 0; i < 7; i++ {
		f, err := a.Ingest(Sample{Timestamp: int64(i) * 10, Value: math.Sin(float64(i))})
		if err != nil {
			t.Fatalf("Ingest failed: %v", err)
		}
		if f != nil {
			t.Fatalf("features before 8 samples at i=%d", i)
		}
	}
	f, err := a.Ingest(Sample{Timestamp: 70, Value: 0.5})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if f == nil || f.SampleCount != 8 {
		t.Fatalf("expected features over 8 samples, got %+v", f)
	}
	if _, err := a.Ingest(Sample{Timestamp: 80, Value: math.Inf(1)}); err == nil {
		t.Error("Inf accepted")
	}
}

func TestSampleEntropy_RegularVsRandom(t *testing.T) {
	regular := make([]float64, 200)
	for i := range regular {
		regular[i] = math.Sin(2 * math.Pi * float64(i) / 10)
	}
	rng := rand.New(rand.NewSource(3))
	irregular := make([]float64, 200)
	for i := range irregular {
		irregular[i] = rng.NormFloat64()
	}

	se1 := SampleEntropy(regular, 2, 0)
	se2 := SampleEntropy(irregular, 2, 0)
	if se1 <= 0 {
		t.Fatalf("SampEn(sine) = %g, want positive", se1)
	}
	if se1 >= se2 {
		t.Errorf("SampEn(regular)=%g should be below SampEn(noise)=%g", se1, se2)
	}
}

func TestSampleEntropy_Degenerate(t *testing.T) {
	if se := SampleEntropy([]float64{1, 2}, 2, 0); se != 0 {
		t.Errorf("tiny signal SampEn = %g, want 0", se)
	}
	if se := SampleEntropy(make([]float64, 50), 2, 0); se != 0 {
		t.Errorf("constant signal SampEn = %g, want 0", se)
	}
}

func TestAutocorrelation_LagZeroIsOne(t *testing.T) {
	signal := []float64{1.2, -0.4, 3.3, 0.1, -2.2, 1.8, 0.9}
	acf := Autocorrelation(signal, 5)
	if math.Abs(acf[0]-1) > 1e-9 {
		t.Errorf("ACF(0) = %g, want 1", acf[0])
	}
	if len(acf) != 6 {
		t.Errorf("ACF length = %d, want 6", len(acf))
	}
}

func TestAutocorrelation_LagClamp(t *testing.T) {
	acf := Autocorrelation([]float64{1, 2, 3}, 100)
	if len(acf) != 3 {
		t.Errorf("ACF length = %d, want clamped to n", len(acf))
	}
}

func TestDetectPeriod_SineAndNoise(t *testing.T) {
	periodic := make([]float64, 120)
	for i := range periodic {
		periodic[i] = math.Sin(2 * math.Pi * float64(i) / 12)
	}
	lag, ok := DetectPeriod(periodic, 40)
	if !ok {
		t.Fatal("no period detected in a pure sine")
	}
	if lag < 10 || lag > 14 {
		t.Errorf("detected period %d, want ~12", lag)
	}

	ramp := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	if _, ok := DetectPeriod(ramp, 8); ok {
		t.Error("period detected in a monotone ramp")
	}
}

func TestISOClassifier_ClassIIZones(t *testing.T) {
	c := NewISOClassifier(DefaultISOConfig())

	tests := []struct {
		rms     float64
		zone    VibrationZone
		sev     Severity
		isAlarm bool
	}{
		{0.5, ZoneA, SeverityNormal, false},
		{2.0, ZoneB, SeverityNormal, false},
		{5.0, ZoneC, SeverityWarning, false},
		{10.0, ZoneD, SeverityCritical, true},
	}
	for _, tt := range tests {
		a, err := c.Classify(tt.rms)
		if err != nil {
			t.Fatalf("Classify(%g) failed: %v", tt.rms, err)
		}
		if a.Zone != tt.zone || a.Severity != tt.sev || a.IsAlarm != tt.isAlarm {
			t.Errorf("Classify(%g) = zone %s sev %v alarm %v, want %s %v %v",
				tt.rms, a.Zone, a.Severity, a.IsAlarm, tt.zone, tt.sev, tt.isAlarm)
		}
	}
}

func TestISOClassifier_ZoneProgress(t *testing.T) {
	c := NewISOClassifier(DefaultISOConfig())
	// Class II zone B spans 1.12..2.8; the midpoint is ~50%.
	a, err := c.Classify(1.96)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if a.Zone != ZoneB || math.Abs(a.ZoneProgress-50) > 1 {
		t.Errorf("zone %s progress %g, want B ~50%%", a.Zone, a.ZoneProgress)
	}
}

func TestISOClassifier_UnitConversion(t *testing.T) {
	// 1 g at 50 Hz: 9810/(2*pi*50) = 31.23 mm/s, zone D for class II.
	c := NewISOClassifier(ISOConfig{Class: ClassII, Unit: UnitG})
	a, err := c.Classify(1)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	want := 9810 / (2 * math.Pi * 50)
	if math.Abs(a.VelocityRMS-want) > 0.01 {
		t.Errorf("velocity = %g mm/s, want %g", a.VelocityRMS, want)
	}
	if a.Zone != ZoneD {
		t.Errorf("zone = %s, want D", a.Zone)
	}

	// m/s passes through scaled by 1000.
	c = NewISOClassifier(ISOConfig{Class: ClassII, Unit: UnitMPerSec})
	a, _ = c.Classify(0.002)
	if math.Abs(a.VelocityRMS-2.0) > 1e-9 || a.Zone != ZoneB {
		t.Errorf("m/s conversion: velocity %g zone %s, want 2.0 B", a.VelocityRMS, a.Zone)
	}

	// A higher fundamental lowers the converted velocity.
	c = NewISOClassifier(ISOConfig{Class: ClassII, Unit: UnitG, FundamentalHz: 100})
	a, _ = c.Classify(1)
	if math.Abs(a.VelocityRMS-want/2) > 0.01 {
		t.Errorf("velocity at 100 Hz = %g, want %g", a.VelocityRMS, want/2)
	}
}

func TestISOClassifier_RawNotApplicable(t *testing.T) {
	c := NewISOClassifier(ISOConfig{Class: ClassII, Unit: UnitRaw})
	a, err := c.Classify(123)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if a.Zone != ZoneNA || a.IsAlarm {
		t.Errorf("raw input classified as zone %s alarm %v", a.Zone, a.IsAlarm)
	}
}

func TestParseMachineClassAndUnit(t *testing.T) {
	if c, err := ParseMachineClass("class3"); err != nil || c != ClassIII {
		t.Errorf("ParseMachineClass(class3) = %v, %v", c, err)
	}
	if _, err := ParseMachineClass("class9"); err == nil {
		t.Error("unknown class accepted")
	}
	if u, err := ParseVibrationUnit("m_s2"); err != nil || u != UnitMPerSec2 {
		t.Errorf("ParseVibrationUnit(m_s2) = %v, %v", u, err)
	}
	if _, err := ParseVibrationUnit("furlongs"); err == nil {
		t.Error("unknown unit accepted")
	}
}
