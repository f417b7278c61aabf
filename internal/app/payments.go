package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"staybook/internal/adapters/observability"
	"staybook/internal/domain"
)

type PaymentConfig struct {
	Currency   string
	FeePercent int
	ClientURL  string
}

type PaymentService struct {
	users  domain.UserRepository
	hotels domain.HotelRepository
	orders domain.OrderRepository
	pay    domain.PaymentProvider
	cfg    PaymentConfig
	now    func() time.Time
}

func NewPaymentService(u domain.UserRepository, h domain.HotelRepository, o domain.OrderRepository, p domain.PaymentProvider, cfg PaymentConfig) *PaymentService {
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	return &PaymentService{users: u, hotels: h, orders: o, pay: p, cfg: cfg, now: time.Now}
}

// ConnectAccount creates the seller's connect account on first use and
// returns an onboarding link for it.
func (s *PaymentService) ConnectAccount(ctx context.Context, userID string) (string, error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if u.StripeAccountID == "" {
		id, err := s.pay.CreateAccount(ctx, u.Email)
		if err != nil {
			return "", err
		}
		u.StripeAccountID = id
		u.UpdatedAt = s.now().UTC()
		if err := s.users.UpdateUser(ctx, u); err != nil {
			return "", err
		}
		log.Info().Str("user_id", u.ID).Str("account", id).Msg("connect account created")
	}
	callback := s.cfg.ClientURL + "/stripe/callback"
	return s.pay.AccountLink(ctx, u.StripeAccountID, callback, callback)
}

// AccountStatus refreshes the stored seller status from the provider.
func (s *PaymentService) AccountStatus(ctx context.Context, userID string) (domain.User, error) {
	u, err := s.seller(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	acct, err := s.pay.GetAccount(ctx, u.StripeAccountID)
	if err != nil {
		return domain.User{}, err
	}
	st := acct.Status
	u.Seller = &st
	u.UpdatedAt = s.now().UTC()
	if err := s.users.UpdateUser(ctx, u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (s *PaymentService) Balance(ctx context.Context, userID string) (domain.Balance, error) {
	u, err := s.seller(ctx, userID)
	if err != nil {
		return domain.Balance{}, err
	}
	return s.pay.GetBalance(ctx, u.StripeAccountID)
}

// PayoutSetting returns a one-time link to the seller's express dashboard.
func (s *PaymentService) PayoutSetting(ctx context.Context, userID string) (string, error) {
	u, err := s.seller(ctx, userID)
	if err != nil {
		return "", err
	}
	return s.pay.LoginLink(ctx, u.StripeAccountID)
}

// CheckoutSession opens a hosted checkout for one stay at hotelID. The
// platform keeps FeePercent of the amount; the rest goes to the owner.
func (s *PaymentService) CheckoutSession(ctx context.Context, buyerID, hotelID string) (domain.CheckoutSession, error) {
	if hotelID == "" {
		return domain.CheckoutSession{}, invalidf("hotelId is required")
	}
	h, err := s.hotels.GetHotel(ctx, hotelID)
	if err != nil {
		return domain.CheckoutSession{}, err
	}
	if h.OwnerID == buyerID {
		return domain.CheckoutSession{}, invalidf("you cannot book your own hotel")
	}
	owner, err := s.users.GetUser(ctx, h.OwnerID)
	if err != nil {
		return domain.CheckoutSession{}, fmt.Errorf("hotel owner: %w", err)
	}
	if owner.StripeAccountID == "" {
		return domain.CheckoutSession{}, invalidf("seller cannot accept payments yet")
	}
	buyer, err := s.users.GetUser(ctx, buyerID)
	if err != nil {
		return domain.CheckoutSession{}, err
	}

	amount := toMinorUnits(h.Price)
	sess, err := s.pay.CreateCheckoutSession(ctx, domain.CheckoutRequest{
		HotelID:        h.ID,
		BuyerID:        buyerID,
		Title:          h.Title,
		Description:    h.Content,
		UnitAmount:     amount,
		ApplicationFee: platformFee(amount, s.cfg.FeePercent),
		Currency:       s.cfg.Currency,
		Destination:    owner.StripeAccountID,
		SuccessURL:     fmt.Sprintf("%s/stripe/success/%s", s.cfg.ClientURL, h.ID),
		CancelURL:      s.cfg.ClientURL,
	})
	if err != nil {
		return domain.CheckoutSession{}, err
	}
	if sess.HotelID == "" {
		sess.HotelID = h.ID
	}
	if sess.BuyerID == "" {
		sess.BuyerID = buyerID
	}

	buyer.PendingSession = &sess
	buyer.UpdatedAt = s.now().UTC()
	if err := s.users.UpdateUser(ctx, buyer); err != nil {
		return domain.CheckoutSession{}, err
	}
	return sess, nil
}

// Success confirms the buyer's pending checkout. It reports false while the
// session is still unpaid.
func (s *PaymentService) Success(ctx context.Context, buyerID, hotelID string) (bool, error) {
	u, err := s.users.GetUser(ctx, buyerID)
	if err != nil {
		return false, err
	}
	if u.PendingSession == nil {
		// already confirmed, e.g. by the webhook
		if hotelID != "" {
			ok, err := s.orders.HasOrder(ctx, buyerID, hotelID)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, invalidf("no pending checkout")
	}
	if hotelID != "" && u.PendingSession.HotelID != "" && u.PendingSession.HotelID != hotelID {
		return false, invalidf("pending checkout is for another hotel")
	}

	sess, err := s.pay.GetCheckoutSession(ctx, u.PendingSession.ID)
	if err != nil {
		return false, err
	}
	if !sess.Paid() {
		return false, nil
	}
	if sess.HotelID == "" {
		sess.HotelID = u.PendingSession.HotelID
	}
	if err := s.fulfil(ctx, buyerID, sess.HotelID, sess, "success"); err != nil {
		return false, err
	}

	u.PendingSession = nil
	u.UpdatedAt = s.now().UTC()
	if err := s.users.UpdateUser(ctx, u); err != nil {
		return false, err
	}
	return true, nil
}

// HandleWebhook verifies and applies a provider event. Unknown types are acknowledged.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ev, err := s.pay.ParseWebhook(payload, signature)
	if err != nil {
		observability.ObserveWebhook("unknown", "rejected")
		return err
	}
	err = s.apply(ctx, ev)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	observability.ObserveWebhook(ev.Type, outcome)
	return err
}

func (s *PaymentService) apply(ctx context.Context, ev domain.WebhookEvent) error {
	switch ev.Type {
	case domain.EventCheckoutCompleted:
		sess := ev.Session
		if sess == nil || !sess.Paid() {
			return nil
		}
		if sess.HotelID == "" || sess.BuyerID == "" {
			log.Warn().Str("event", ev.ID).Str("session", sess.ID).Msg("checkout session without booking metadata")
			return nil
		}
		if err := s.fulfil(ctx, sess.BuyerID, sess.HotelID, *sess, "webhook"); err != nil {
			return err
		}
		u, err := s.users.GetUser(ctx, sess.BuyerID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			return err
		}
		if u.PendingSession != nil && u.PendingSession.ID == sess.ID {
			u.PendingSession = nil
			u.UpdatedAt = s.now().UTC()
			return s.users.UpdateUser(ctx, u)
		}
		return nil

	case domain.EventAccountUpdated:
		if ev.Account == nil {
			return nil
		}
		u, err := s.users.GetUserByStripeAccount(ctx, ev.Account.ID)
		if errors.Is(err, domain.ErrNotFound) {
			log.Debug().Str("account", ev.Account.ID).Msg("account update for unknown seller")
			return nil
		}
		if err != nil {
			return err
		}
		st := ev.Account.Status
		u.Seller = &st
		u.UpdatedAt = s.now().UTC()
		return s.users.UpdateUser(ctx, u)

	default:
		log.Debug().Str("type", ev.Type).Str("event", ev.ID).Msg("webhook event ignored")
		return nil
	}
}

// fulfil records the order for a paid session once; repeats are no-ops.
func (s *PaymentService) fulfil(ctx context.Context, buyerID, hotelID string, sess domain.CheckoutSession, source string) error {
	o := domain.Order{
		ID:        uuid.NewString(),
		HotelID:   hotelID,
		UserID:    buyerID,
		Session:   sess,
		CreatedAt: s.now().UTC(),
	}
	err := s.orders.CreateOrder(ctx, o)
	if errors.Is(err, domain.ErrConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	observability.ObserveBooking(source)
	log.Info().Str("order_id", o.ID).Str("hotel_id", hotelID).Str("user_id", buyerID).Str("source", source).Msg("booking confirmed")
	return nil
}

func (s *PaymentService) seller(ctx context.Context, userID string) (domain.User, error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	if u.StripeAccountID == "" {
		return domain.User{}, invalidf("no connect account; start seller onboarding first")
	}
	return u, nil
}
