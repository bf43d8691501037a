package analytics

import "time"

// Summary aggregates referral activity for the dashboard cards.
type Summary struct {
	TotalReferrals  int            `json:"total_referrals"`
	ByStatus        map[string]int `json:"by_status"`
	ByUrgency       map[string]int `json:"by_urgency"`
	AcceptanceRate  float64        `json:"acceptance_rate"`
	ActiveProviders int            `json:"active_providers"`
	GeneratedAt     time.Time      `json:"generated_at"`
}

// TrendPoint is one month of referral volume.
type TrendPoint struct {
	Month     string `json:"month"`
	Created   int    `json:"created"`
	Completed int    `json:"completed"`
}

// SpecialtyCount ranks specialties by referral volume.
type SpecialtyCount struct {
	Specialty string `json:"specialty"`
	Count     int    `json:"count"`
}

// Filter scopes analytics queries. A zero ScopeUserID means platform-wide.
type Filter struct {
	ScopeUserID string
	From        time.Time
	To          time.Time
}
