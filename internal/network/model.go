package network

import "time"

// Provider is a directory entry for a specialist or practice that can
// receive referrals.
type Provider struct {
	ID                 string    `json:"id" db:"id"`
	UserID             *string   `json:"user_id,omitempty" db:"user_id"`
	Name               string    `json:"name" db:"name"`
	PracticeName       string    `json:"practice_name" db:"practice_name"`
	Specialty          string    `json:"specialty" db:"specialty"`
	City               string    `json:"city" db:"city"`
	State              string    `json:"state" db:"state"`
	Phone              *string   `json:"phone,omitempty" db:"phone"`
	Email              *string   `json:"email,omitempty" db:"email"`
	AcceptingReferrals bool      `json:"accepting_referrals" db:"accepting_referrals"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// CreateProviderRequest is the payload for adding a directory entry.
type CreateProviderRequest struct {
	UserID             *string `json:"user_id,omitempty"`
	Name               string  `json:"name" validate:"required,max=200"`
	PracticeName       string  `json:"practice_name" validate:"required,max=200"`
	Specialty          string  `json:"specialty" validate:"required,max=100"`
	City               string  `json:"city" validate:"required,max=100"`
	State              string  `json:"state" validate:"required,max=50"`
	Phone              *string `json:"phone,omitempty" validate:"omitempty,max=30"`
	Email              *string `json:"email,omitempty" validate:"omitempty,email"`
	AcceptingReferrals *bool   `json:"accepting_referrals,omitempty"`
}

// UpdateProviderRequest carries partial edits to a directory entry.
type UpdateProviderRequest struct {
	Name               *string `json:"name,omitempty" validate:"omitempty,max=200"`
	PracticeName       *string `json:"practice_name,omitempty" validate:"omitempty,max=200"`
	Specialty          *string `json:"specialty,omitempty" validate:"omitempty,max=100"`
	City               *string `json:"city,omitempty" validate:"omitempty,max=100"`
	State              *string `json:"state,omitempty" validate:"omitempty,max=50"`
	Phone              *string `json:"phone,omitempty" validate:"omitempty,max=30"`
	Email              *string `json:"email,omitempty" validate:"omitempty,email"`
	AcceptingReferrals *bool   `json:"accepting_referrals,omitempty"`
}

// ListProvidersRequest filters and paginates directory listings.
type ListProvidersRequest struct {
	Specialty     *string `json:"specialty,omitempty"`
	City          *string `json:"city,omitempty"`
	Search        *string `json:"search,omitempty"`
	AcceptingOnly bool    `json:"accepting_only,omitempty"`
	Limit         int     `json:"limit" validate:"gte=0,lte=1000"`
	Offset        int     `json:"offset" validate:"gte=0"`
}
