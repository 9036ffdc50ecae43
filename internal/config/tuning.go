package config

import "time"

// Get* methods return the configured value or the documented default.
// Defaults are tuned for a 1080p roadside camera at roughly 10 FPS.

func (t Tuning) GetMinConfidence() float64 {
	if t.MinConfidence == nil {
		return 0.5
	}
	return *t.MinConfidence
}

func (t Tuning) GetIOUThreshold() float64 {
	if t.IOUThreshold == nil {
		return 0.3
	}
	return *t.IOUThreshold
}

func (t Tuning) GetCentroidGatePx() float64 {
	if t.CentroidGatePx == nil {
		return 120
	}
	return *t.CentroidGatePx
}

func (t Tuning) GetMinHits() int {
	if t.MinHits == nil {
		return 3
	}
	return *t.MinHits
}

func (t Tuning) GetMaxAge() int {
	if t.MaxAge == nil {
		return 30
	}
	return *t.MaxAge
}

func (t Tuning) GetVelocitySmoothing() float64 {
	if t.VelocitySmoothing == nil {
		return 0.5
	}
	return *t.VelocitySmoothing
}

func (t Tuning) GetMaxHistory() int {
	if t.MaxHistory == nil {
		return 30
	}
	return *t.MaxHistory
}

func (t Tuning) GetMaxSpeedHistory() int {
	if t.MaxSpeedHistory == nil {
		return 50
	}
	return *t.MaxSpeedHistory
}

func (t Tuning) GetWeightCenter() float64 {
	if t.WeightCenter == nil {
		return 0.4
	}
	return *t.WeightCenter
}

func (t Tuning) GetWeightSize() float64 {
	if t.WeightSize == nil {
		return 0.3
	}
	return *t.WeightSize
}

func (t Tuning) GetWeightApproach() float64 {
	if t.WeightApproach == nil {
		return 0.2
	}
	return *t.WeightApproach
}

func (t Tuning) GetWeightNovelty() float64 {
	if t.WeightNovelty == nil {
		return 0.1
	}
	return *t.WeightNovelty
}

func (t Tuning) GetSwitchMargin() float64 {
	if t.SwitchMargin == nil {
		return 0.15
	}
	return *t.SwitchMargin
}

func (t Tuning) GetSizeRefFraction() float64 {
	if t.SizeRefFraction == nil {
		return 0.1
	}
	return *t.SizeRefFraction
}

func (t Tuning) GetApproachRefPx() float64 {
	if t.ApproachRefPx == nil {
		return 200
	}
	return *t.ApproachRefPx
}

func (t Tuning) GetDeadZonePx() float64 {
	if t.DeadZonePx == nil {
		return 50
	}
	return *t.DeadZonePx
}

func (t Tuning) GetPanGain() float64 {
	if t.PanGain == nil {
		return 0.001
	}
	return *t.PanGain
}

func (t Tuning) GetTiltGain() float64 {
	if t.TiltGain == nil {
		return 0.001
	}
	return *t.TiltGain
}

func (t Tuning) GetMaxStep() float64 {
	if t.MaxStep == nil {
		return 0.5
	}
	return *t.MaxStep
}

func (t Tuning) GetZoomStep() float64 {
	if t.ZoomStep == nil {
		return 0.1
	}
	return *t.ZoomStep
}

func (t Tuning) GetTargetPlateHeightPx() float64 {
	if t.TargetPlateHeightPx == nil {
		return 200
	}
	return *t.TargetPlateHeightPx
}

func (t Tuning) GetZoomInRatio() float64 {
	if t.ZoomInRatio == nil {
		return 1.2
	}
	return *t.ZoomInRatio
}

func (t Tuning) GetZoomOutRatio() float64 {
	if t.ZoomOutRatio == nil {
		return 0.8
	}
	return *t.ZoomOutRatio
}

func (t Tuning) GetMinMoveInterval() time.Duration {
	return t.duration(t.MinMoveInterval, 2*time.Second)
}

func (t Tuning) GetGracePeriod() time.Duration {
	return t.duration(t.GracePeriod, 3*time.Second)
}

func (t Tuning) GetReturnTimeout() time.Duration {
	return t.duration(t.ReturnTimeout, 10*time.Second)
}

func (t Tuning) GetIdleTimeout() time.Duration {
	return t.duration(t.IdleTimeout, 30*time.Second)
}

func (t Tuning) GetSweepDwell() time.Duration {
	return t.duration(t.SweepDwell, 60*time.Second)
}

func (t Tuning) GetFaultCooldown() time.Duration {
	return t.duration(t.FaultCooldown, 10*time.Second)
}

func (t Tuning) GetMinPlateHeightPx() float64 {
	if t.MinPlateHeightPx == nil {
		return 150
	}
	return *t.MinPlateHeightPx
}

func (t Tuning) GetStabilityFrames() int {
	if t.StabilityFrames == nil {
		return 5
	}
	return *t.StabilityFrames
}

func (Tuning) duration(v *string, fallback time.Duration) time.Duration {
	if v == nil || *v == "" {
		return fallback
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		// Validate rejects bad strings at load; a zero value here means
		// the Tuning was built by hand, keep the fallback.
		return fallback
	}
	return d
}
