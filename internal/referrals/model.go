package referrals

import "time"

// Status is the lifecycle state of a referral.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusAccepted  Status = "accepted"
	StatusDeclined  Status = "declined"
	StatusCompleted Status = "completed"
)

// Urgency classifies how quickly the receiving specialist should act.
type Urgency string

const (
	UrgencyRoutine   Urgency = "routine"
	UrgencyUrgent    Urgency = "urgent"
	UrgencyEmergency Urgency = "emergency"
)

// Referral is a patient hand-off from a referring dentist to a specialist.
type Referral struct {
	ID              string    `json:"id" db:"id"`
	PatientName     string    `json:"patient_name" db:"patient_name"`
	PatientEmail    *string   `json:"patient_email,omitempty" db:"patient_email"`
	ReferringUserID string    `json:"referring_user_id" db:"referring_user_id"`
	ProviderID      string    `json:"provider_id" db:"provider_id"`
	Specialty       string    `json:"specialty" db:"specialty"`
	ToothNumber     *int      `json:"tooth_number,omitempty" db:"tooth_number"`
	Urgency         Urgency   `json:"urgency" db:"urgency"`
	Status          Status    `json:"status" db:"status"`
	Notes           *string   `json:"notes,omitempty" db:"notes"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// allowedTransitions encodes the referral lifecycle. Terminal states have no
// outgoing edges.
var allowedTransitions = map[Status][]Status{
	StatusDraft:    {StatusSent},
	StatusSent:     {StatusAccepted, StatusDeclined},
	StatusAccepted: {StatusCompleted},
}

// CanTransition reports whether moving from one status to another is allowed.
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// KnownUrgency reports whether u is a recognised urgency class.
func KnownUrgency(u Urgency) bool {
	switch u {
	case UrgencyRoutine, UrgencyUrgent, UrgencyEmergency:
		return true
	}
	return false
}
