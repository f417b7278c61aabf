package app_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"staybook/internal/app"
	"staybook/internal/domain"
	"staybook/internal/storage/memory"
)

type payFixture struct {
	svc   *app.PaymentService
	store *memory.Store
	pay   *fakePayments
	hotel domain.Hotel
	buyer domain.User
}

func newPayments(t *testing.T) payFixture {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	seller := domain.User{ID: "seller", Name: "Sam", Email: "sam@example.com", StripeAccountID: "acct_seller"}
	buyer := domain.User{ID: "buyer", Name: "Bea", Email: "bea@example.com"}
	for _, u := range []domain.User{seller, buyer} {
		if err := st.CreateUser(ctx, u); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
	h := domain.Hotel{ID: "h1", OwnerID: seller.ID, Title: "Loft", Content: "Top floor", Price: 123.45, Bed: 1,
		From: day("2030-01-01"), To: day("2030-02-01"), CreatedAt: time.Now()}
	if err := st.CreateHotel(ctx, h); err != nil {
		t.Fatalf("seed hotel: %v", err)
	}
	pay := &fakePayments{}
	svc := app.NewPaymentService(st, st, st, pay, app.PaymentConfig{Currency: "eur", FeePercent: 20, ClientURL: "http://client"})
	return payFixture{svc: svc, store: st, pay: pay, hotel: h, buyer: buyer}
}

func TestCheckoutSession_FeeAndDestination(t *testing.T) {
	f := newPayments(t)
	ctx := context.Background()

	sess, err := f.svc.CheckoutSession(ctx, f.buyer.ID, f.hotel.ID)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	req := f.pay.lastReq
	if req.UnitAmount != 12345 || req.ApplicationFee != 2469 || req.Currency != "eur" || req.Destination != "acct_seller" {
		t.Fatalf("unexpected request: %+v", req)
	}
	if req.SuccessURL != "http://client/stripe/success/h1" || req.CancelURL != "http://client" {
		t.Fatalf("unexpected redirect urls: %+v", req)
	}

	u, _ := f.store.GetUser(ctx, f.buyer.ID)
	if u.PendingSession == nil || u.PendingSession.ID != sess.ID {
		t.Fatalf("pending session not stored: %+v", u.PendingSession)
	}
}

func TestCheckoutSession_Rejects(t *testing.T) {
	f := newPayments(t)
	ctx := context.Background()

	if _, err := f.svc.CheckoutSession(ctx, "seller", f.hotel.ID); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("own hotel: expected ErrInvalid, got %v", err)
	}
	if _, err := f.svc.CheckoutSession(ctx, f.buyer.ID, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing hotel: expected ErrNotFound, got %v", err)
	}

	h := f.hotel
	h.ID, h.OwnerID = "h2", f.buyer.ID
	_ = f.store.CreateHotel(ctx, h)
	if _, err := f.svc.CheckoutSession(ctx, "seller", "h2"); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("unconnected seller: expected ErrInvalid, got %v", err)
	}
}

func TestSuccess_CreatesOrderOnce(t *testing.T) {
	f := newPayments(t)
	ctx := context.Background()
	sess, _ := f.svc.CheckoutSession(ctx, f.buyer.ID, f.hotel.ID)

	ok, err := f.svc.Success(ctx, f.buyer.ID, f.hotel.ID)
	if err != nil || ok {
		t.Fatalf("unpaid session should not succeed: ok=%v err=%v", ok, err)
	}

	f.pay.markPaid(sess.ID)
	ok, err = f.svc.Success(ctx, f.buyer.ID, f.hotel.ID)
	if err != nil || !ok {
		t.Fatalf("paid session: ok=%v err=%v", ok, err)
	}
	orders, _ := f.store.ListOrdersByUser(ctx, f.buyer.ID)
	if len(orders) != 1 || orders[0].HotelID != f.hotel.ID || orders[0].Session.ID != sess.ID {
		t.Fatalf("unexpected orders: %+v", orders)
	}

	// replayed confirmation is answered from the existing order
	ok, err = f.svc.Success(ctx, f.buyer.ID, f.hotel.ID)
	if err != nil || !ok {
		t.Fatalf("replay: ok=%v err=%v", ok, err)
	}
	orders, _ = f.store.ListOrdersByUser(ctx, f.buyer.ID)
	if len(orders) != 1 {
		t.Fatalf("expected a single order, got %d", len(orders))
	}
}

// unreachableOrders fails every order lookup.
type unreachableOrders struct{ *memory.Store }

func (unreachableOrders) HasOrder(ctx context.Context, userID, hotelID string) (bool, error) {
	return false, errors.New("connection refused")
}

func TestSuccess_OrderLookupErrorIsNotInvalid(t *testing.T) {
	f := newPayments(t)
	svc := app.NewPaymentService(f.store, f.store, unreachableOrders{f.store}, f.pay,
		app.PaymentConfig{Currency: "eur", FeePercent: 20, ClientURL: "http://client"})

	ok, err := svc.Success(context.Background(), f.buyer.ID, f.hotel.ID)
	if err == nil || ok {
		t.Fatalf("expected lookup error, got ok=%v err=%v", ok, err)
	}
	if errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("store failure reported as bad input: %v", err)
	}
}

func TestWebhook_CheckoutCompletedIsIdempotent(t *testing.T) {
	f := newPayments(t)
	ctx := context.Background()
	sess, _ := f.svc.CheckoutSession(ctx, f.buyer.ID, f.hotel.ID)
	sess.PaymentStatus = domain.PaymentStatusPaid
	f.pay.event = domain.WebhookEvent{ID: "evt_1", Type: domain.EventCheckoutCompleted, Session: &sess}

	for i := 0; i < 2; i++ {
		if err := f.svc.HandleWebhook(ctx, []byte("{}"), "sig"); err != nil {
			t.Fatalf("webhook #%d: %v", i, err)
		}
	}
	orders, _ := f.store.ListOrdersByUser(ctx, f.buyer.ID)
	if len(orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(orders))
	}
	u, _ := f.store.GetUser(ctx, f.buyer.ID)
	if u.PendingSession != nil {
		t.Fatalf("pending session should be cleared")
	}
}

func TestWebhook_AccountUpdated(t *testing.T) {
	f := newPayments(t)
	ctx := context.Background()
	f.pay.event = domain.WebhookEvent{ID: "evt_2", Type: domain.EventAccountUpdated, Account: &domain.Account{
		ID: "acct_seller", Status: domain.SellerStatus{ChargesEnabled: true, PayoutsEnabled: true},
	}}
	if err := f.svc.HandleWebhook(ctx, nil, "sig"); err != nil {
		t.Fatalf("webhook: %v", err)
	}
	u, _ := f.store.GetUser(ctx, "seller")
	if u.Seller == nil || !u.Seller.PayoutsEnabled {
		t.Fatalf("seller status not stored: %+v", u.Seller)
	}

	f.pay.event.Account.ID = "acct_unknown"
	if err := f.svc.HandleWebhook(ctx, nil, "sig"); err != nil {
		t.Fatalf("unknown account should be acknowledged: %v", err)
	}
}

func TestWebhook_BadSignature(t *testing.T) {
	f := newPayments(t)
	f.pay.eventErr = domain.ErrInvalid
	if err := f.svc.HandleWebhook(context.Background(), nil, "bad"); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestConnectAccountAndSellerViews(t *testing.T) {
	f := newPayments(t)
	ctx := context.Background()

	if _, err := f.svc.Balance(ctx, f.buyer.ID); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("balance without account: expected ErrInvalid, got %v", err)
	}

	link, err := f.svc.ConnectAccount(ctx, f.buyer.ID)
	if err != nil || !strings.HasPrefix(link, "https://connect.test/acct_1") || !strings.Contains(link, "http://client/stripe/callback") {
		t.Fatalf("link: %q err=%v", link, err)
	}
	// second call reuses the account
	if _, err := f.svc.ConnectAccount(ctx, f.buyer.ID); err != nil || f.pay.accounts != 1 {
		t.Fatalf("expected account reuse, created %d err=%v", f.pay.accounts, err)
	}

	f.pay.status = domain.SellerStatus{ChargesEnabled: true, DetailsSubmitted: true}
	u, err := f.svc.AccountStatus(ctx, f.buyer.ID)
	if err != nil || u.Seller == nil || !u.Seller.ChargesEnabled {
		t.Fatalf("status: %+v err=%v", u.Seller, err)
	}

	bal, err := f.svc.Balance(ctx, f.buyer.ID)
	if err != nil || len(bal.Available) != 1 || bal.Available[0].Amount != 900 {
		t.Fatalf("balance: %+v err=%v", bal, err)
	}

	ll, err := f.svc.PayoutSetting(ctx, f.buyer.ID)
	if err != nil || ll != "https://connect.test/login/acct_1" {
		t.Fatalf("login link: %q err=%v", ll, err)
	}
}
