package models

// RiskProfile buckets a 0-10 churn risk score.
type RiskProfile string

const (
	RiskStable   RiskProfile = "stable"
	RiskModerate RiskProfile = "moderate"
	RiskElevated RiskProfile = "elevated"
	RiskHigh     RiskProfile = "high"
	RiskCritical RiskProfile = "critical"
)

// RiskThresholds are the non-decreasing score boundaries between profiles.
type RiskThresholds struct {
	Moderate float64 `json:"moderate" yaml:"moderate"`
	Elevated float64 `json:"elevated" yaml:"elevated"`
	High     float64 `json:"high" yaml:"high"`
	Critical float64 `json:"critical" yaml:"critical"`
}

// DefaultRiskThresholds returns the calibrated profile boundaries.
func DefaultRiskThresholds() RiskThresholds {
	return RiskThresholds{
		Moderate: 2,
		Elevated: 4,
		High:     6,
		Critical: 8,
	}
}

// RiskProfileForScore maps an aggregate risk score to its profile. The
// mapping is monotonic, mirroring HealthLabelForScore.
func RiskProfileForScore(score float64, t RiskThresholds) RiskProfile {
	switch {
	case score < t.Moderate:
		return RiskStable
	case score < t.Elevated:
		return RiskModerate
	case score < t.High:
		return RiskElevated
	case score < t.Critical:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// RiskFactor is one of the five weighted inputs to the churn risk score.
// Score is the factor's own 0-10 reading; Contribution is Score*Weight.
type RiskFactor struct {
	Name         string  `json:"name"`
	Weight       float64 `json:"weight"`
	Score        float64 `json:"score"`
	Contribution float64 `json:"contribution"`
}

// RiskScoreResult is the churn risk assessment for a single customer.
type RiskScoreResult struct {
	Customer           Customer     `json:"customer"`
	RiskScore          float64      `json:"risk_score"`
	RiskProfile        RiskProfile  `json:"risk_profile"`
	Factors            []RiskFactor `json:"factors"`
	Issues             []string     `json:"issues"`
	RecommendedActions []string     `json:"recommended_actions"`
}
