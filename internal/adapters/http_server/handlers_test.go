package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"staybook/internal/adapters/auth"
	"staybook/internal/app"
	"staybook/internal/domain"
	"staybook/internal/storage/memory"
)

// ---------- fixtures ----------

type stubPayments struct{}

func (stubPayments) CreateAccount(ctx context.Context, email string) (string, error) {
	return "acct_1", nil
}
func (stubPayments) AccountLink(ctx context.Context, id, refresh, ret string) (string, error) {
	return "https://connect.test/" + id, nil
}
func (stubPayments) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	return domain.Account{ID: id, Status: domain.SellerStatus{ChargesEnabled: true}}, nil
}
func (stubPayments) GetBalance(ctx context.Context, id string) (domain.Balance, error) {
	return domain.Balance{Available: []domain.Money{{Amount: 500, Currency: "usd"}}}, nil
}
func (stubPayments) LoginLink(ctx context.Context, id string) (string, error) {
	return "https://connect.test/login/" + id, nil
}
func (stubPayments) CreateCheckoutSession(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutSession, error) {
	return domain.CheckoutSession{ID: "cs_1", HotelID: req.HotelID, BuyerID: req.BuyerID, URL: "https://checkout.test/cs_1"}, nil
}
func (stubPayments) GetCheckoutSession(ctx context.Context, id string) (domain.CheckoutSession, error) {
	return domain.CheckoutSession{ID: id}, nil
}
func (stubPayments) ParseWebhook(payload []byte, sig string) (domain.WebhookEvent, error) {
	if sig != "good" {
		return domain.WebhookEvent{}, fmt.Errorf("%w: signature mismatch", domain.ErrInvalid)
	}
	return domain.WebhookEvent{ID: "evt_1", Type: "ping"}, nil
}

type apiFixture struct {
	srv   *httptest.Server
	store *memory.Store
}

func newAPI(t *testing.T) apiFixture {
	t.Helper()
	st := memory.New()
	tokens, err := auth.NewJWT("test-secret", time.Hour)
	require.NoError(t, err)

	h := &Handlers{
		Auth: app.NewAuthService(st, auth.NewBcrypt(bcrypt.MinCost), tokens),
		Hotels: app.NewHotelService(app.HotelDeps{
			Hotels: st, Images: st, Users: st, Orders: st,
		}),
		Payments: app.NewPaymentService(st, st, st, stubPayments{}, app.PaymentConfig{
			Currency: "usd", FeePercent: 20, ClientURL: "http://client.test",
		}),
		MaxUploadBytes: 1 << 20,
	}
	s := New()
	s.MountHandlers(h)
	srv := httptest.NewServer(s.Mux())
	t.Cleanup(srv.Close)
	return apiFixture{srv: srv, store: st}
}

func (f apiFixture) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f apiFixture) signup(t *testing.T, name, email string) string {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/api/register", "", map[string]string{
		"name": name, "email": email, "password": "secret123",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/login", "", map[string]string{
		"email": email, "password": "secret123",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.Token)
	return out.Token
}

func multipartHotel(t *testing.T, fields map[string]string, image []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if image != nil {
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition", `form-data; name="image"; filename="room.png"`)
		hdr.Set("Content-Type", "image/png")
		part, err := mw.CreatePart(hdr)
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (f apiFixture) createHotel(t *testing.T, token string, fields map[string]string, image []byte) *http.Response {
	t.Helper()
	body, ct := multipartHotel(t, fields, image)
	req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/api/create-hotel", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func seaView() map[string]string {
	return map[string]string{
		"title":    "Sea View",
		"content":  "Two beds by the sea",
		"location": "Nice, France",
		"price":    "150",
		"bed":      "2",
		"from":     time.Now().AddDate(0, 0, 10).Format(time.DateOnly),
		"to":       time.Now().AddDate(0, 0, 20).Format(time.DateOnly),
	}
}

var pngBytes = []byte("\x89PNG\r\n\x1a\n fake image payload")

// ---------- tests ----------

func TestLogin(t *testing.T) {
	f := newAPI(t)
	f.signup(t, "Ann", "ann@example.com")

	resp := f.do(t, http.MethodPost, "/api/login", "", map[string]string{"email": "ann@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))

	resp = f.do(t, http.MethodPost, "/api/login", "", map[string]string{"email": "nobody@example.com", "password": "secret123"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRegister_Errors(t *testing.T) {
	f := newAPI(t)
	f.signup(t, "Ann", "ann@example.com")

	cases := map[string]struct {
		body   map[string]string
		status int
	}{
		"duplicate email": {map[string]string{"name": "Ann", "email": "ANN@example.com", "password": "secret123"}, http.StatusConflict},
		"short password":  {map[string]string{"name": "Bo", "email": "bo@example.com", "password": "123"}, http.StatusBadRequest},
		"missing name":    {map[string]string{"email": "cy@example.com", "password": "secret123"}, http.StatusBadRequest},
		"password over 72 bytes": {
			map[string]string{"name": "Di", "email": "di@example.com", "password": strings.Repeat("€", 30)},
			http.StatusBadRequest,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			resp := f.do(t, http.MethodPost, "/api/register", "", tc.body)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}

	resp := f.do(t, http.MethodPost, "/api/register", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateHotel_ThenRead(t *testing.T) {
	f := newAPI(t)
	token := f.signup(t, "Olga", "olga@example.com")
	fields := seaView()

	resp := f.createHotel(t, token, fields, pngBytes)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created domain.Hotel
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(t, created.ID)

	resp = f.do(t, http.MethodGet, "/api/hotel/"+created.ID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got domain.Hotel
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))

	assert.Equal(t, fields["title"], got.Title)
	assert.Equal(t, fields["content"], got.Content)
	assert.Equal(t, fields["location"], got.Location)
	assert.Equal(t, 150.0, got.Price)
	assert.Equal(t, 2, got.Bed)
	assert.Equal(t, fields["from"], got.From.Format(time.DateOnly))
	assert.Equal(t, fields["to"], got.To.Format(time.DateOnly))
	assert.True(t, got.HasImage)
	require.NotNil(t, got.Owner)
	assert.Equal(t, "Olga", got.Owner.Name)

	resp = f.do(t, http.MethodGet, "/api/hotel/image/"+created.ID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	img := new(bytes.Buffer)
	_, err := img.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, img.Bytes())
}

func TestCreateHotel_Rejects(t *testing.T) {
	f := newAPI(t)
	token := f.signup(t, "Olga", "olga@example.com")

	bad := seaView()
	bad["to"] = bad["from"]
	resp := f.createHotel(t, token, bad, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	bad = seaView()
	bad["price"] = "cheap"
	resp = f.createHotel(t, token, bad, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body, ct := multipartHotel(t, seaView(), nil)
	req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/api/create-hotel", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", ct)
	noAuth, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer noAuth.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, noAuth.StatusCode)
}

func TestListHotels_ExcludesImagePayload(t *testing.T) {
	f := newAPI(t)
	token := f.signup(t, "Olga", "olga@example.com")
	require.Equal(t, http.StatusCreated, f.createHotel(t, token, seaView(), pngBytes).StatusCode)

	resp := f.do(t, http.MethodGet, "/api/hotels", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var raw []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	require.Len(t, raw, 1)
	for k := range raw[0] {
		assert.NotContains(t, []string{"image", "data", "Data"}, k)
	}
	assert.Equal(t, true, raw[0]["has_image"])

	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)
	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/api/hotels", nil)
	require.NoError(t, err)
	req.Header.Set("If-None-Match", etag)
	again, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer again.Body.Close()
	assert.Equal(t, http.StatusNotModified, again.StatusCode)
}

func TestDeleteHotel_RemovesFromListing(t *testing.T) {
	f := newAPI(t)
	owner := f.signup(t, "Olga", "olga@example.com")
	other := f.signup(t, "Ivan", "ivan@example.com")

	resp := f.createHotel(t, owner, seaView(), pngBytes)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var h domain.Hotel
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))

	resp = f.do(t, http.MethodDelete, "/api/delete-hotel/"+h.ID, other, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = f.do(t, http.MethodDelete, "/api/delete-hotel/"+h.ID, owner, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/hotels", "", nil)
	var list []domain.Hotel
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Empty(t, list)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/hotel/"+h.ID, "", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/hotel/image/"+h.ID, "", nil).StatusCode)
}

func TestUpdateHotel_Partial(t *testing.T) {
	f := newAPI(t)
	owner := f.signup(t, "Olga", "olga@example.com")
	resp := f.createHotel(t, owner, seaView(), nil)
	var h domain.Hotel
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))

	body, ct := multipartHotel(t, map[string]string{"title": "Sea View Deluxe", "bed": "3"}, nil)
	req, err := http.NewRequest(http.MethodPut, f.srv.URL+"/api/update-hotel/"+h.ID, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Authorization", "Bearer "+owner)
	up, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer up.Body.Close()
	require.Equal(t, http.StatusOK, up.StatusCode)

	var got domain.Hotel
	require.NoError(t, json.NewDecoder(up.Body).Decode(&got))
	assert.Equal(t, "Sea View Deluxe", got.Title)
	assert.Equal(t, 3, got.Bed)
	assert.Equal(t, h.Location, got.Location)
	assert.Equal(t, h.Price, got.Price)
}

func TestSearchListings(t *testing.T) {
	f := newAPI(t)
	owner := f.signup(t, "Olga", "olga@example.com")
	require.Equal(t, http.StatusCreated, f.createHotel(t, owner, seaView(), nil).StatusCode)

	from := time.Now().AddDate(0, 0, 12).Format(time.DateOnly)
	to := time.Now().AddDate(0, 0, 15).Format(time.DateOnly)
	cases := map[string]struct {
		body map[string]any
		want int
	}{
		"matches":        {map[string]any{"location": "nice", "date": []string{from, to}, "bed": "2"}, 1},
		"too many beds":  {map[string]any{"location": "nice", "bed": "5"}, 0},
		"other location": {map[string]any{"location": "paris"}, 0},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			resp := f.do(t, http.MethodPost, "/api/search-listings", "", tc.body)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			var hs []domain.Hotel
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&hs))
			assert.Len(t, hs, tc.want)
		})
	}
}

func TestCheckoutAndWebhook(t *testing.T) {
	f := newAPI(t)
	owner := f.signup(t, "Olga", "olga@example.com")
	buyer := f.signup(t, "Ivan", "ivan@example.com")

	resp := f.createHotel(t, owner, seaView(), nil)
	var h domain.Hotel
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))

	resp = f.do(t, http.MethodPost, "/api/stripe-session-id", buyer, map[string]string{"hotelId": h.ID})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "seller has no connect account yet")

	resp = f.do(t, http.MethodPost, "/api/create-connect-account", owner, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var link map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&link))
	assert.Equal(t, "https://connect.test/acct_1", link["url"])

	resp = f.do(t, http.MethodPost, "/api/stripe-session-id", owner, map[string]string{"hotelId": h.ID})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "own hotel")

	resp = f.do(t, http.MethodPost, "/api/stripe-session-id", buyer, map[string]string{"hotelId": h.ID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sess map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sess))
	assert.Equal(t, "cs_1", sess["sessionId"])

	resp = f.do(t, http.MethodPost, "/api/get-account-balance", owner, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/api/stripe/webhook", strings.NewReader(`{"id":"evt_1"}`))
	require.NoError(t, err)
	req.Header.Set("Stripe-Signature", "forged")
	wh, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer wh.Body.Close()
	assert.Equal(t, http.StatusBadRequest, wh.StatusCode)

	req, err = http.NewRequest(http.MethodPost, f.srv.URL+"/api/stripe/webhook", strings.NewReader(`{"id":"evt_1"}`))
	require.NoError(t, err)
	req.Header.Set("Stripe-Signature", "good")
	ok, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer ok.Body.Close()
	assert.Equal(t, http.StatusOK, ok.StatusCode)
}
