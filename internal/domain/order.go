package domain

import "time"

type Order struct {
	ID        string          `json:"id"`
	HotelID   string          `json:"hotel_id"`
	UserID    string          `json:"user_id"`
	Session   CheckoutSession `json:"session"`
	CreatedAt time.Time       `json:"created_at"`
}

// BookingView is an order with its hotel (and the hotel owner) populated.
// Hotel is nil when the listing has since been deleted.
type BookingView struct {
	ID        string          `json:"id"`
	Hotel     *Hotel          `json:"hotel"`
	Session   CheckoutSession `json:"session"`
	CreatedAt time.Time       `json:"created_at"`
}

type CheckoutSession struct {
	ID            string `json:"id"`
	HotelID       string `json:"hotel_id,omitempty"`
	BuyerID       string `json:"buyer_id,omitempty"`
	AmountTotal   int64  `json:"amount_total"`
	Currency      string `json:"currency"`
	PaymentStatus string `json:"payment_status"`
	Status        string `json:"status,omitempty"`
	PaymentIntent string `json:"payment_intent,omitempty"`
	URL           string `json:"url,omitempty"`
}

const PaymentStatusPaid = "paid"

func (s CheckoutSession) Paid() bool { return s.PaymentStatus == PaymentStatusPaid }

type CheckoutRequest struct {
	HotelID        string
	BuyerID        string
	Title          string
	Description    string
	UnitAmount     int64 // minor units
	ApplicationFee int64 // minor units
	Currency       string
	Destination    string // seller connect account
	SuccessURL     string
	CancelURL      string
}

type Account struct {
	ID     string
	Status SellerStatus
}

type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type Balance struct {
	Available []Money `json:"available"`
	Pending   []Money `json:"pending"`
}

const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventAccountUpdated    = "account.updated"
)

// WebhookEvent is a verified provider event. Session or Account is set
// depending on Type.
type WebhookEvent struct {
	ID      string
	Type    string
	Session *CheckoutSession
	Account *Account
}
