package stripead

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"staybook/internal/adapters/observability"
	"staybook/internal/domain"
)

const (
	metaHotelID = "hotel_id"
	metaBuyerID = "buyer_id"

	maxDescription = 500
)

// Client implements domain.PaymentProvider on top of Stripe Connect.
type Client struct {
	api           *client.API
	webhookSecret string
}

// New builds a client. baseURL overrides the Stripe API host (tests, stripe-mock).
func New(key, webhookSecret, baseURL string) (*Client, error) {
	if key == "" {
		return nil, errors.New("stripe secret key is required")
	}
	var backends *stripe.Backends
	if baseURL != "" {
		b := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL:               stripe.String(baseURL),
			MaxNetworkRetries: stripe.Int64(0),
			LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
		})
		backends = &stripe.Backends{API: b, Connect: b, Uploads: b}
	}
	return &Client{api: client.New(key, backends), webhookSecret: webhookSecret}, nil
}

func (c *Client) CreateAccount(ctx context.Context, email string) (string, error) {
	params := &stripe.AccountParams{
		Type:  stripe.String(string(stripe.AccountTypeExpress)),
		Email: stripe.String(email),
	}
	params.Context = ctx

	var acct *stripe.Account
	err := observe("accounts.new", func() (err error) {
		acct, err = c.api.Accounts.New(params)
		return err
	})
	if err != nil {
		return "", wrap(err)
	}
	return acct.ID, nil
}

func (c *Client) AccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(refreshURL),
		ReturnURL:  stripe.String(returnURL),
		Type:       stripe.String("account_onboarding"),
	}
	params.Context = ctx

	var link *stripe.AccountLink
	err := observe("account_links.new", func() (err error) {
		link, err = c.api.AccountLinks.New(params)
		return err
	})
	if err != nil {
		return "", wrap(err)
	}
	return link.URL, nil
}

func (c *Client) GetAccount(ctx context.Context, accountID string) (domain.Account, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx

	var acct *stripe.Account
	err := observe("accounts.get", func() (err error) {
		acct, err = c.api.Accounts.GetByID(accountID, params)
		return err
	})
	if err != nil {
		return domain.Account{}, wrap(err)
	}
	return toAccount(acct), nil
}

func (c *Client) GetBalance(ctx context.Context, accountID string) (domain.Balance, error) {
	params := &stripe.BalanceParams{}
	params.SetStripeAccount(accountID)
	params.Context = ctx

	var bal *stripe.Balance
	err := observe("balance.get", func() (err error) {
		bal, err = c.api.Balance.Get(params)
		return err
	})
	if err != nil {
		return domain.Balance{}, wrap(err)
	}
	out := domain.Balance{Available: []domain.Money{}, Pending: []domain.Money{}}
	for _, a := range bal.Available {
		out.Available = append(out.Available, domain.Money{Amount: a.Amount, Currency: string(a.Currency)})
	}
	for _, p := range bal.Pending {
		out.Pending = append(out.Pending, domain.Money{Amount: p.Amount, Currency: string(p.Currency)})
	}
	return out, nil
}

func (c *Client) LoginLink(ctx context.Context, accountID string) (string, error) {
	params := &stripe.LoginLinkParams{Account: stripe.String(accountID)}
	params.Context = ctx

	var ll *stripe.LoginLink
	err := observe("login_links.new", func() (err error) {
		ll, err = c.api.LoginLinks.New(params)
		return err
	})
	if err != nil {
		return "", wrap(err)
	}
	return ll.URL, nil
}

func (c *Client) CreateCheckoutSession(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutSession, error) {
	product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{Name: stripe.String(req.Title)}
	if d := truncate(req.Description, maxDescription); d != "" {
		product.Description = stripe.String(d)
	}
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(req.Currency),
				UnitAmount:  stripe.Int64(req.UnitAmount),
				ProductData: product,
			},
			Quantity: stripe.Int64(1),
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			ApplicationFeeAmount: stripe.Int64(req.ApplicationFee),
			TransferData: &stripe.CheckoutSessionPaymentIntentDataTransferDataParams{
				Destination: stripe.String(req.Destination),
			},
		},
		ClientReferenceID: stripe.String(req.BuyerID),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
	}
	params.AddMetadata(metaHotelID, req.HotelID)
	params.AddMetadata(metaBuyerID, req.BuyerID)
	params.Context = ctx

	var s *stripe.CheckoutSession
	err := observe("checkout_sessions.new", func() (err error) {
		s, err = c.api.CheckoutSessions.New(params)
		return err
	})
	if err != nil {
		return domain.CheckoutSession{}, wrap(err)
	}
	return toSession(s), nil
}

func (c *Client) GetCheckoutSession(ctx context.Context, id string) (domain.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	var s *stripe.CheckoutSession
	err := observe("checkout_sessions.get", func() (err error) {
		s, err = c.api.CheckoutSessions.Get(id, params)
		return err
	})
	if err != nil {
		return domain.CheckoutSession{}, wrap(err)
	}
	return toSession(s), nil
}

// ParseWebhook verifies the Stripe-Signature header and decodes the events
// the booking flow reacts to. Other event types come back with only ID and Type.
func (c *Client) ParseWebhook(payload []byte, signature string) (domain.WebhookEvent, error) {
	if c.webhookSecret == "" {
		return domain.WebhookEvent{}, fmt.Errorf("%w: webhook secret not configured", domain.ErrInvalid)
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signature, c.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return domain.WebhookEvent{}, fmt.Errorf("%w: %v", domain.ErrInvalid, err)
	}

	out := domain.WebhookEvent{ID: ev.ID, Type: string(ev.Type)}
	switch out.Type {
	case domain.EventCheckoutCompleted:
		var s stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return domain.WebhookEvent{}, fmt.Errorf("%w: decode session: %v", domain.ErrInvalid, err)
		}
		sess := toSession(&s)
		out.Session = &sess
	case domain.EventAccountUpdated:
		var a stripe.Account
		if err := json.Unmarshal(ev.Data.Raw, &a); err != nil {
			return domain.WebhookEvent{}, fmt.Errorf("%w: decode account: %v", domain.ErrInvalid, err)
		}
		acct := toAccount(&a)
		out.Account = &acct
	}
	return out, nil
}

func toAccount(a *stripe.Account) domain.Account {
	st := domain.SellerStatus{
		ChargesEnabled:   a.ChargesEnabled,
		PayoutsEnabled:   a.PayoutsEnabled,
		DetailsSubmitted: a.DetailsSubmitted,
	}
	if a.Requirements != nil {
		st.CurrentlyDue = a.Requirements.CurrentlyDue
	}
	return domain.Account{ID: a.ID, Status: st}
}

func toSession(s *stripe.CheckoutSession) domain.CheckoutSession {
	out := domain.CheckoutSession{
		ID:            s.ID,
		AmountTotal:   s.AmountTotal,
		Currency:      string(s.Currency),
		PaymentStatus: string(s.PaymentStatus),
		Status:        string(s.Status),
		URL:           s.URL,
		HotelID:       s.Metadata[metaHotelID],
		BuyerID:       s.Metadata[metaBuyerID],
	}
	if out.BuyerID == "" {
		out.BuyerID = s.ClientReferenceID
	}
	if s.PaymentIntent != nil {
		out.PaymentIntent = s.PaymentIntent.ID
	}
	return out
}

func observe(endpoint string, call func() error) error {
	start := time.Now()
	err := call()
	status := http.StatusOK
	var se *stripe.Error
	switch {
	case errors.As(err, &se):
		status = se.HTTPStatusCode
	case err != nil:
		status = 0
	}
	observability.ObserveExternal("stripe", endpoint, status, time.Since(start))
	return err
}

func wrap(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && se.HTTPStatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, se.Msg)
	}
	return fmt.Errorf("%w: %v", domain.ErrPayment, err)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
