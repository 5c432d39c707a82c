package reservation

import (
	"testing"
	"time"

	"github.com/modelrelay/modelrelay/internal/settings"
)

func testSettings() settings.Snapshot {
	return settings.Snapshot{
		ReservationProbeRatio: 0.10,
		ReservationMinSamples: 20,
	}
}

func TestProbePhaseRatio(t *testing.T) {
	calc := NewCalculator(testSettings)

	ratio := calc.Ratio(1, 10, 5)
	if ratio != 0.10 {
		t.Fatalf("probe ratio must be 0.10, got %f", ratio)
	}

	// Still probing after a few samples.
	for i := 0; i < 10; i++ {
		calc.RecordSample(1, true)
	}
	if ratio := calc.Ratio(1, 10, 10); ratio != 0.10 {
		t.Fatalf("probe ratio must hold below min samples, got %f", ratio)
	}
}

func TestStableRatioTracksAffinityAndLoad(t *testing.T) {
	calc := NewCalculator(testSettings)

	// All traffic affine, full load: ratio hits the ceiling.
	for i := 0; i < 20; i++ {
		calc.RecordSample(1, true)
	}
	if ratio := calc.Ratio(1, 10, 10); ratio != RatioCeiling {
		t.Fatalf("expected ceiling %f, got %f", RatioCeiling, ratio)
	}

	// No affine traffic: ratio sits on the floor regardless of load.
	for i := 0; i < 20; i++ {
		calc.RecordSample(2, false)
	}
	if ratio := calc.Ratio(2, 10, 10); ratio != RatioFloor {
		t.Fatalf("expected floor %f, got %f", RatioFloor, ratio)
	}

	// Half affine, half load: ratio lands between the bounds.
	for i := 0; i < 20; i++ {
		calc.RecordSample(3, i%2 == 0)
	}
	ratio := calc.Ratio(3, 10, 5)
	if ratio <= RatioFloor || ratio >= RatioCeiling {
		t.Fatalf("expected ratio strictly inside bounds, got %f", ratio)
	}
}

func TestRatioDeterministic(t *testing.T) {
	calc := NewCalculator(testSettings)
	for i := 0; i < 20; i++ {
		calc.RecordSample(1, i%3 == 0)
	}

	first := calc.Ratio(1, 10, 4)
	second := calc.Ratio(1, 10, 4)
	if first != second {
		t.Fatalf("ratio must be deterministic: %f vs %f", first, second)
	}
}

func TestCooldownSuppressesConfidence(t *testing.T) {
	calc := NewCalculator(testSettings)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	calc.SetNowFunc(func() time.Time { return now })

	for i := 0; i < 20; i++ {
		calc.RecordSample(1, true)
	}
	before := calc.Ratio(1, 10, 10)

	calc.RecordCooldown(1)
	suppressed := calc.Ratio(1, 10, 10)
	if suppressed >= before {
		t.Fatalf("cooldown must pull the ratio down: %f vs %f", suppressed, before)
	}

	now = now.Add(cooldownPenaltyWindow + time.Minute)
	recovered := calc.Ratio(1, 10, 10)
	if recovered != before {
		t.Fatalf("ratio must recover after the penalty window: %f vs %f", recovered, before)
	}
}

func TestUnlimitedKeyUsesFullLoad(t *testing.T) {
	calc := NewCalculator(testSettings)
	for i := 0; i < 20; i++ {
		calc.RecordSample(1, true)
	}
	// limit 0 means unlimited; load factor defaults to 1.
	if ratio := calc.Ratio(1, 0, 3); ratio != RatioCeiling {
		t.Fatalf("expected ceiling for unlimited fully affine key, got %f", ratio)
	}
}

func TestCalculateResult(t *testing.T) {
	calc := NewCalculator(testSettings)

	probe := calc.Calculate(1, 10, 5)
	if probe.Phase != PhaseProbe || probe.Ratio != 0.10 {
		t.Fatalf("unexpected probe result %+v", probe)
	}

	for i := 0; i < 20; i++ {
		calc.RecordSample(1, true)
	}
	stable := calc.Calculate(1, 10, 5)
	if stable.Phase != PhaseStable {
		t.Fatalf("expected stable phase, got %+v", stable)
	}
	if stable.Confidence != 1.0 || stable.LoadFactor != 0.5 {
		t.Fatalf("unexpected confidence/load %+v", stable)
	}
}

func TestMetrics(t *testing.T) {
	calc := NewCalculator(testSettings)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	calc.SetNowFunc(func() time.Time { return now })

	calc.RecordSample(1, true)
	calc.Ratio(1, 10, 5)
	for i := 0; i < 20; i++ {
		calc.RecordSample(2, false)
	}
	calc.Ratio(2, 10, 5)
	calc.RecordCooldown(2)

	metrics := calc.Metrics()
	byKey := map[uint64]KeyMetrics{}
	for _, m := range metrics {
		byKey[m.KeyID] = m
	}
	if byKey[1].Phase != PhaseProbe || byKey[1].Samples != 1 {
		t.Fatalf("unexpected key 1 metrics %+v", byKey[1])
	}
	if byKey[2].Phase != PhaseStable || !byKey[2].CoolingDown {
		t.Fatalf("unexpected key 2 metrics %+v", byKey[2])
	}
	if byKey[1].AvgRatio != 0.10 {
		t.Fatalf("expected probe ewma 0.10, got %f", byKey[1].AvgRatio)
	}
}
