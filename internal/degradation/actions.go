package degradation

// Actions tells producers and consumers how to behave at a level.
type Actions struct {
	SkipDataQuality      bool
	SkipAnomalyInjection bool
	SkipOptionalFields   bool

	// BatchSizeFactor scales the configured batch size.
	BatchSizeFactor float64

	// AnomalyRateFactor scales the configured anomaly rate.
	AnomalyRateFactor float64

	UseCompactOutput bool
	ImmediateFlush   bool
	Terminate        bool
}

// ActionsFor returns the actions for level. Unknown levels are treated as
// Emergency.
func ActionsFor(level Level) Actions {
	switch level {
	case LevelNormal:
		return Actions{
			BatchSizeFactor:   1.0,
			AnomalyRateFactor: 1.0,
		}
	case LevelWarning:
		return Actions{
			SkipDataQuality:   true,
			BatchSizeFactor:   0.5,
			AnomalyRateFactor: 0.5,
			UseCompactOutput:  true,
		}
	case LevelCritical:
		return Actions{
			SkipDataQuality:      true,
			SkipAnomalyInjection: true,
			SkipOptionalFields:   true,
			BatchSizeFactor:      0.25,
			UseCompactOutput:     true,
			ImmediateFlush:       true,
		}
	default:
		return Actions{
			SkipDataQuality:      true,
			SkipAnomalyInjection: true,
			SkipOptionalFields:   true,
			UseCompactOutput:     true,
			ImmediateFlush:       true,
			Terminate:            true,
		}
	}
}

// ScaleBatch applies BatchSizeFactor to n, never returning less than one
// unless the factor is zero.
func (a Actions) ScaleBatch(n int) int {
	if a.BatchSizeFactor <= 0 {
		return 0
	}
	scaled := int(float64(n) * a.BatchSizeFactor)
	if scaled < 1 {
		return 1
	}
	return scaled
}
