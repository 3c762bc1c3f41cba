package models

import "time"

// RiskTier buckets a suspicion probability.
type RiskTier string

const (
	RiskHigh   RiskTier = "High"
	RiskMedium RiskTier = "Medium"
	RiskLow    RiskTier = "Low"
)

// Tier thresholds, inclusive on the lower bound.
const (
	HighThreshold   = 0.9
	MediumThreshold = 0.7
)

// TierFor maps a probability to its tier.
func TierFor(p float64) RiskTier {
	switch {
	case p >= HighThreshold:
		return RiskHigh
	case p >= MediumThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Severity orders tiers: Low=0, Medium=1, High=2.
func (t RiskTier) Severity() int {
	switch t {
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}

// Tiers lists tiers from most to least severe.
var Tiers = []RiskTier{RiskHigh, RiskMedium, RiskLow}

// RankedIP aggregates the flagged rows of one IP.
type RankedIP struct {
	IP          string
	Probability float64
	// FirstSeen is zero when no flagged row carried a timestamp.
	FirstSeen  time.Time
	Domains    []string
	EventCount int
	Tier       RiskTier
}

// TierDistribution counts ranked IPs per tier.
type TierDistribution map[RiskTier]int
