package domain

import (
	"context"
	"time"
)

type UserRepository interface {
	CreateUser(ctx context.Context, u User) error // ErrConflict on duplicate email
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByStripeAccount(ctx context.Context, accountID string) (User, error)
	// UpdateUser persists name, connect account, seller status and pending session.
	UpdateUser(ctx context.Context, u User) error
}

type HotelRepository interface {
	CreateHotel(ctx context.Context, h Hotel) error
	GetHotel(ctx context.Context, id string) (Hotel, error)
	UpdateHotel(ctx context.Context, h Hotel) error
	// SetCoordinates writes lat/lon only while the hotel is still at location.
	// It returns ErrNotFound when the hotel is gone or has moved.
	SetCoordinates(ctx context.Context, id, location string, lat, lon float64, at time.Time) error
	DeleteHotel(ctx context.Context, id string) error
	// ListHotels returns newest first.
	ListHotels(ctx context.Context, q HotelsQuery) ([]Hotel, error)
}

type ImageStore interface {
	PutImage(ctx context.Context, hotelID string, img HotelImage) error
	GetImage(ctx context.Context, hotelID string) (HotelImage, error)
	DeleteImage(ctx context.Context, hotelID string) error
}

type OrderRepository interface {
	CreateOrder(ctx context.Context, o Order) error // ErrConflict on duplicate session id
	GetOrderBySession(ctx context.Context, sessionID string) (Order, error)
	// ListOrdersByUser returns newest first.
	ListOrdersByUser(ctx context.Context, userID string) ([]Order, error)
	HasOrder(ctx context.Context, userID, hotelID string) (bool, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

type PaymentProvider interface {
	CreateAccount(ctx context.Context, email string) (string, error)
	AccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error)
	GetAccount(ctx context.Context, accountID string) (Account, error)
	GetBalance(ctx context.Context, accountID string) (Balance, error)
	LoginLink(ctx context.Context, accountID string) (string, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string) (CheckoutSession, error)
	ParseWebhook(payload []byte, signature string) (WebhookEvent, error)
}

type Geocoder interface {
	Geocode(ctx context.Context, query string) (lat, lon float64, err error)
}

type TokenIssuer interface {
	Issue(userID string) (string, error)
	Verify(token string) (userID string, err error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}
