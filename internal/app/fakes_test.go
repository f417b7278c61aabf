package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"staybook/internal/domain"
)

// ---- fakes ----

// fakeCache round-trips through JSON like the redis adapter.
type fakeCache struct {
	mu    sync.Mutex
	store map[string][]byte
	dels  []string
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.store[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = map[string][]byte{}
	}
	b, err := json.Marshal(v)
	c.store[key] = b
	return err
}

func (c *fakeCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
	c.dels = append(c.dels, key)
	return nil
}

type fakeGeocoder struct {
	mu    sync.Mutex
	calls int
	fail  map[string]bool
}

func (g *fakeGeocoder) Geocode(ctx context.Context, q string) (float64, float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.fail[q] {
		return 0, 0, errors.New("no match")
	}
	return float64(len(q)), -float64(len(q)), nil
}

type failingImages struct{ domain.ImageStore }

func (failingImages) PutImage(ctx context.Context, id string, img domain.HotelImage) error {
	return errors.New("bucket unavailable")
}

// plainHasher keeps tests fast; bcrypt is covered in the auth adapter.
type plainHasher struct{}

func (plainHasher) Hash(pw string) (string, error) { return "h:" + pw, nil }
func (plainHasher) Compare(hash, pw string) error {
	if hash != "h:"+pw {
		return errors.New("mismatch")
	}
	return nil
}

type fakeTokens struct{}

func (fakeTokens) Issue(id string) (string, error) { return "tok-" + id, nil }
func (fakeTokens) Verify(tok string) (string, error) {
	if !strings.HasPrefix(tok, "tok-") {
		return "", domain.ErrUnauthorized
	}
	return strings.TrimPrefix(tok, "tok-"), nil
}

type fakePayments struct {
	mu       sync.Mutex
	accounts int
	sessions map[string]domain.CheckoutSession
	lastReq  domain.CheckoutRequest
	status   domain.SellerStatus
	event    domain.WebhookEvent
	eventErr error
}

func (p *fakePayments) CreateAccount(ctx context.Context, email string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accounts++
	return fmt.Sprintf("acct_%d", p.accounts), nil
}

func (p *fakePayments) AccountLink(ctx context.Context, id, refresh, ret string) (string, error) {
	return "https://connect.test/" + id + "?return=" + ret, nil
}

func (p *fakePayments) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	return domain.Account{ID: id, Status: p.status}, nil
}

func (p *fakePayments) GetBalance(ctx context.Context, id string) (domain.Balance, error) {
	return domain.Balance{Available: []domain.Money{{Amount: 900, Currency: "usd"}}}, nil
}

func (p *fakePayments) LoginLink(ctx context.Context, id string) (string, error) {
	return "https://connect.test/login/" + id, nil
}

func (p *fakePayments) CreateCheckoutSession(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastReq = req
	if p.sessions == nil {
		p.sessions = map[string]domain.CheckoutSession{}
	}
	s := domain.CheckoutSession{
		ID:            fmt.Sprintf("cs_%d", len(p.sessions)+1),
		HotelID:       req.HotelID,
		BuyerID:       req.BuyerID,
		AmountTotal:   req.UnitAmount,
		Currency:      req.Currency,
		PaymentStatus: "unpaid",
	}
	p.sessions[s.ID] = s
	return s, nil
}

func (p *fakePayments) GetCheckoutSession(ctx context.Context, id string) (domain.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[id]
	if !ok {
		return domain.CheckoutSession{}, domain.ErrNotFound
	}
	return s, nil
}

func (p *fakePayments) markPaid(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.sessions[id]
	s.PaymentStatus = domain.PaymentStatusPaid
	p.sessions[id] = s
}

func (p *fakePayments) ParseWebhook(payload []byte, sig string) (domain.WebhookEvent, error) {
	if p.eventErr != nil {
		return domain.WebhookEvent{}, p.eventErr
	}
	return p.event, nil
}

// ---- helpers ----

func ptr[T any](v T) *T { return &v }

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}
