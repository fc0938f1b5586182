// Package level turns metering samples into a 0..1 loudness and detects
// sustained loud noise.
package level

import (
	"math"
	"sync"
	"time"
)

const (
	FloorDBFS        = -160.0
	DefaultThreshold = 0.65
	DefaultCooldown  = 10 * time.Second
)

// Normalize maps dBFS in [-160, 0] onto [0, 1]. Non-finite input is silence.
func Normalize(dbfs float64) float64 {
	if math.IsNaN(dbfs) || math.IsInf(dbfs, 0) {
		return 0
	}
	return clamp((dbfs - FloorDBFS) / -FloorDBFS)
}

// FromVolume maps a transport volume indication (0..255) onto [0, 1].
func FromVolume(v uint8) float64 {
	return float64(v) / 255
}

// PCMLevel returns the RMS level of 16-bit samples in dBFS, FloorDBFS for silence.
func PCMLevel(samples []int16) float64 {
	if len(samples) == 0 {
		return FloorDBFS
	}
	var sum float64
	for _, s := range samples {
		f := float64(s) / 32768
		sum += f * f
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms == 0 {
		return FloorDBFS
	}
	return math.Max(FloorDBFS, 20*math.Log10(rms))
}

func IsLoud(level, threshold float64) bool {
	return level > threshold
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// Detector fires at most once per cooldown while levels stay above threshold.
type Detector struct {
	threshold float64
	cooldown  time.Duration

	mu        sync.Mutex
	lastAlert time.Time
	fired     bool
}

func NewDetector(threshold float64, cooldown time.Duration) *Detector {
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Detector{threshold: threshold, cooldown: cooldown}
}

func (d *Detector) Threshold() float64 { return d.threshold }

// Observe reports whether level at now raises a new loud-noise alert.
func (d *Detector) Observe(level float64, now time.Time) bool {
	if !IsLoud(level, d.threshold) {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fired && now.Sub(d.lastAlert) < d.cooldown {
		return false
	}
	d.fired = true
	d.lastAlert = now
	return true
}

func (d *Detector) Reset() {
	d.mu.Lock()
	d.fired = false
	d.lastAlert = time.Time{}
	d.mu.Unlock()
}
