package models

// PlanPolicy holds the plan-scoped preflight thresholds. All cutoffs are
// configuration, not law; defaults live in common/config.
type PlanPolicy struct {
	MinDPI         float64  // below this the resolution check warns
	HardFloorRatio float64  // below MinDPI*ratio the resolution check errors
	MaxFileSize    int64    // bytes; above this the size check errors
	WarnBandRatio  float64  // size within [ratio*max, max] warns
	AllowedFormats []string // format tags accepted for this plan
}

// FormatAllowed reports whether a detected format tag is in the plan's list
func (p PlanPolicy) FormatAllowed(tag string) bool {
	for _, f := range p.AllowedFormats {
		if f == tag {
			return true
		}
	}
	return false
}
