package referrals

// CreateReferralRequest is the payload for submitting a new referral.
type CreateReferralRequest struct {
	PatientName  string  `json:"patient_name" validate:"required,max=200"`
	PatientEmail *string `json:"patient_email,omitempty" validate:"omitempty,email"`
	ProviderID   string  `json:"provider_id" validate:"required"`
	Specialty    string  `json:"specialty" validate:"required,max=100"`
	ToothNumber  *int    `json:"tooth_number,omitempty" validate:"omitempty,gte=1,lte=32"`
	Urgency      string  `json:"urgency" validate:"required,oneof=routine urgent emergency"`
	Notes        *string `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// UpdateReferralRequest carries partial edits to a referral.
type UpdateReferralRequest struct {
	PatientName  *string `json:"patient_name,omitempty" validate:"omitempty,max=200"`
	PatientEmail *string `json:"patient_email,omitempty" validate:"omitempty,email"`
	Specialty    *string `json:"specialty,omitempty" validate:"omitempty,max=100"`
	ToothNumber  *int    `json:"tooth_number,omitempty" validate:"omitempty,gte=1,lte=32"`
	Urgency      *string `json:"urgency,omitempty" validate:"omitempty,oneof=routine urgent emergency"`
	Notes        *string `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// UpdateStatusRequest moves a referral along its lifecycle.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=draft sent accepted declined completed"`
}

// ListReferralsRequest filters and paginates referral listings. ScopeUserID
// is set by the service, never by callers: it restricts results to referrals
// the user created or receives.
type ListReferralsRequest struct {
	ScopeUserID     string  `json:"-"`
	ReferringUserID string  `json:"referring_user_id,omitempty"`
	ProviderID      *string `json:"provider_id,omitempty"`
	Status          *Status `json:"status,omitempty"`
	Search          *string `json:"search,omitempty"`
	Limit           int     `json:"limit" validate:"gte=0,lte=1000"`
	Offset          int     `json:"offset" validate:"gte=0"`
}
