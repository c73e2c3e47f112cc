package voice

import "time"

// DetectorState is the activation detector's position
type DetectorState int

const (
	BelowThreshold DetectorState = iota
	AboveThresholdPending
	Confirmed
)

// Signal is what a single amplitude sample means to the caller
type Signal int

const (
	SignalNone Signal = iota
	// SignalConfirmed is reported once when voice was sustained long enough
	SignalConfirmed
	// SignalFalseStart is reported when the level dropped before confirmation
	SignalFalseStart
)

// Detector decides whether sampled amplitude is sustained voice. After
// confirming it stays Confirmed until Reset.
type Detector struct {
	threshold     int
	minActivation time.Duration

	state        DetectorState
	pendingSince time.Time
}

// NewDetector creates a detector in BelowThreshold
func NewDetector(threshold int, minActivation time.Duration) *Detector {
	return &Detector{
		threshold:     threshold,
		minActivation: minActivation,
	}
}

// Observe feeds one amplitude sample taken at now
func (d *Detector) Observe(amplitude int, now time.Time) Signal {
	switch d.state {
	case BelowThreshold:
		if amplitude < d.threshold {
			return SignalNone
		}
		d.state = AboveThresholdPending
		d.pendingSince = now
		if d.minActivation <= 0 {
			d.state = Confirmed
			return SignalConfirmed
		}
		return SignalNone

	case AboveThresholdPending:
		if amplitude < d.threshold {
			d.state = BelowThreshold
			d.pendingSince = time.Time{}
			return SignalFalseStart
		}
		if now.Sub(d.pendingSince) >= d.minActivation {
			d.state = Confirmed
			return SignalConfirmed
		}
		return SignalNone
	}

	return SignalNone
}

// State returns the current detector state
func (d *Detector) State() DetectorState {
	return d.state
}

// Reset prepares the detector for a new listening attempt
func (d *Detector) Reset() {
	d.state = BelowThreshold
	d.pendingSince = time.Time{}
}
