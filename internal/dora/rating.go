package dora

type Rating string

const (
	Elite  Rating = "elite"
	High   Rating = "high"
	Medium Rating = "medium"
	Low    Rating = "low"
)

const (
	hoursPerDay   = 24.0
	hoursPerWeek  = 7 * hoursPerDay
	hoursPerMonth = 30 * hoursPerDay
)

// RateDeploymentFrequency rates deployments per day.
func RateDeploymentFrequency(perDay float64) Rating {
	switch {
	case perDay >= 1:
		return Elite
	case perDay >= 1.0/7:
		return High
	case perDay >= 1.0/30:
		return Medium
	default:
		return Low
	}
}

// RateLeadTime rates the average lead time in hours.
func RateLeadTime(hours float64) Rating {
	switch {
	case hours < 1:
		return Elite
	case hours < hoursPerWeek:
		return High
	case hours < hoursPerMonth:
		return Medium
	default:
		return Low
	}
}

// RateMTTR rates the mean time to recovery in hours.
func RateMTTR(hours float64) Rating {
	switch {
	case hours < 1:
		return Elite
	case hours < hoursPerDay:
		return High
	case hours < hoursPerWeek:
		return Medium
	default:
		return Low
	}
}

// RateChangeFailureRate rates the percentage of failed deployments.
func RateChangeFailureRate(percent float64) Rating {
	switch {
	case percent <= 15:
		return Elite
	case percent <= 30:
		return High
	case percent <= 45:
		return Medium
	default:
		return Low
	}
}
