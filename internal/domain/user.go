package domain

import "time"

type User struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Email           string           `json:"email"`
	PasswordHash    string           `json:"-"`
	StripeAccountID string           `json:"stripe_account_id,omitempty"`
	Seller          *SellerStatus    `json:"stripe_seller,omitempty"`
	PendingSession  *CheckoutSession `json:"stripe_session,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// SellerStatus is the connect account state last reported by the payment provider.
type SellerStatus struct {
	ChargesEnabled   bool     `json:"charges_enabled"`
	PayoutsEnabled   bool     `json:"payouts_enabled"`
	DetailsSubmitted bool     `json:"details_submitted"`
	CurrentlyDue     []string `json:"currently_due,omitempty"`
}

// UserRef is the populated owner of a hotel.
type UserRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (u User) Ref() *UserRef { return &UserRef{ID: u.ID, Name: u.Name} }
