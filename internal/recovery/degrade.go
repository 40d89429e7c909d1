package recovery

import "github.com/vietddude/docforge/internal/core/domain"

// DegradationLevel selects one of the fixed reduced-functionality bundles
// applied under systemic pressure.
type DegradationLevel string

const (
	DegradationMinimal      DegradationLevel = "MINIMAL"
	DegradationReduced      DegradationLevel = "REDUCED"
	DegradationConservative DegradationLevel = "CONSERVATIVE"
	DegradationSafe         DegradationLevel = "SAFE"
)

// DegradationConfig is one bundle of reduced-functionality settings.
type DegradationConfig struct {
	MaxConcurrency       int     `json:"max_concurrency"`
	TimeoutMultiplier    float64 `json:"timeout_multiplier"`
	SkipValidation       bool    `json:"skip_validation"`
	SkipAnalysis         bool    `json:"skip_analysis"`
	LenientParsing       bool    `json:"lenient_parsing"`
	ReducedQualityChecks bool    `json:"reduced_quality_checks"`
}

var degradationConfigs = map[DegradationLevel]DegradationConfig{
	DegradationMinimal: {
		MaxConcurrency:       4,
		TimeoutMultiplier:    1.5,
		ReducedQualityChecks: true,
	},
	DegradationReduced: {
		MaxConcurrency:       2,
		TimeoutMultiplier:    2.0,
		SkipAnalysis:         true,
		ReducedQualityChecks: true,
	},
	DegradationConservative: {
		MaxConcurrency:       2,
		TimeoutMultiplier:    3.0,
		SkipValidation:       true,
		SkipAnalysis:         true,
		LenientParsing:       true,
		ReducedQualityChecks: true,
	},
	DegradationSafe: {
		MaxConcurrency:       1,
		TimeoutMultiplier:    4.0,
		SkipValidation:       true,
		SkipAnalysis:         true,
		LenientParsing:       true,
		ReducedQualityChecks: true,
	},
}

// DegradationFor returns the bundle for a level; unknown levels get SAFE.
func DegradationFor(level DegradationLevel) DegradationConfig {
	if cfg, ok := degradationConfigs[level]; ok {
		return cfg
	}
	return degradationConfigs[DegradationSafe]
}

// ApplyDegradation stamps the bundle's flags onto a job so its handler picks
// them up on the next run. The orchestrator separately lowers the
// concurrency ceiling to cfg.MaxConcurrency.
func ApplyDegradation(cfg DegradationConfig, j *domain.Job) {
	if j.Metadata == nil {
		j.Metadata = make(map[string]string)
	}
	if cfg.SkipValidation {
		j.Metadata["skip_validation"] = "true"
	}
	if cfg.SkipAnalysis {
		j.Metadata["skip_analysis"] = "true"
	}
	if cfg.LenientParsing {
		j.Metadata["lenient"] = "true"
	}
	if cfg.ReducedQualityChecks {
		j.Metadata["reduced_quality_checks"] = "true"
	}
}
