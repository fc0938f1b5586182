package level

import (
	"math"
	"testing"
	"time"
)

func TestNormalize(t *testing.T) {
	cases := map[float64]float64{
		-160: 0,
		-200: 0,
		0:    1,
		12:   1,
		-80:  0.5,
		-40:  0.75,
	}
	for in, want := range cases {
		if got := Normalize(in); math.Abs(got-want) > 1e-9 {
			t.Errorf("Normalize(%v) = %v, want %v", in, got, want)
		}
	}
	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if got := Normalize(bad); got != 0 {
			t.Errorf("Normalize(%v) = %v, want 0", bad, got)
		}
	}
}

func TestNormalizeMonotonic(t *testing.T) {
	prev := Normalize(-160)
	for db := -160.0; db <= 0; db += 0.25 {
		cur := Normalize(db)
		if cur < prev {
			t.Fatalf("Normalize(%v) = %v < %v", db, cur, prev)
		}
		prev = cur
	}
}

func TestDetectorDebounce(t *testing.T) {
	d := NewDetector(0.7, 10*time.Second)
	start := time.Date(2026, 10, 18, 3, 0, 0, 0, time.UTC)

	var fired []int
	for sec := 0; sec < 30; sec++ {
		if d.Observe(0.9, start.Add(time.Duration(sec)*time.Second)) {
			fired = append(fired, sec)
		}
	}
	if len(fired) != 3 || fired[0] != 0 || fired[1] != 10 || fired[2] != 20 {
		t.Fatalf("alerts at %v, want [0 10 20]", fired)
	}
}

func TestDetectorIgnoresQuietSamples(t *testing.T) {
	d := NewDetector(0.65, time.Second)
	now := time.Now()
	if d.Observe(0.65, now) || d.Observe(0.1, now) {
		t.Fatal("levels at or below threshold must not fire")
	}
	if !d.Observe(0.66, now) {
		t.Fatal("first loud sample must fire")
	}
	d.Reset()
	if !d.Observe(0.66, now) {
		t.Fatal("Reset must re-arm the detector")
	}
}

func TestDetectorDefaults(t *testing.T) {
	d := NewDetector(0, 0)
	if d.Threshold() != DefaultThreshold || d.cooldown != DefaultCooldown {
		t.Fatalf("defaults = %v, %v", d.Threshold(), d.cooldown)
	}
}

func TestPCMLevel(t *testing.T) {
	if PCMLevel(nil) != FloorDBFS || PCMLevel(make([]int16, 160)) != FloorDBFS {
		t.Fatal("silence must be the floor")
	}
	full := make([]int16, 160)
	for i := range full {
		full[i] = 32767
		if i%2 == 1 {
			full[i] = -32768
		}
	}
	if got := PCMLevel(full); got < -0.01 || got > 0 {
		t.Fatalf("full scale = %v dBFS, want ~0", got)
	}
	half := make([]int16, 160)
	for i := range half {
		half[i] = 16384
	}
	if got := PCMLevel(half); math.Abs(got-(-6.02)) > 0.05 {
		t.Fatalf("half scale = %v dBFS, want ~-6", got)
	}
}

func TestFromVolume(t *testing.T) {
	if FromVolume(0) != 0 || FromVolume(255) != 1 {
		t.Fatal("FromVolume bounds")
	}
}
