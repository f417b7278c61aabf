package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"staybook/internal/app"
	"staybook/internal/domain"
)

const (
	maxJSONBody    = 1 << 20
	maxWebhookBody = 1 << 16
)

type Handlers struct {
	Auth           *app.AuthService
	Hotels         *app.HotelService
	Payments       *app.PaymentService
	MaxUploadBytes int64
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Route("/api", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)

		r.Get("/hotels", h.listHotels)
		r.Get("/hotel/{hotelId}", h.readHotel)
		r.Get("/hotel/image/{hotelId}", h.hotelImage)
		r.Post("/search-listings", h.searchListings)

		r.Post("/stripe/webhook", h.stripeWebhook)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)

			r.Post("/create-hotel", h.createHotel)
			r.Get("/seller-hotels", h.sellerHotels)
			r.Put("/update-hotel/{hotelId}", h.updateHotel)
			r.Delete("/delete-hotel/{hotelId}", h.deleteHotel)
			r.Get("/user-hotel-bookings", h.userBookings)
			r.Get("/is-already-booked/{hotelId}", h.isAlreadyBooked)

			r.Post("/create-connect-account", h.createConnectAccount)
			r.Post("/get-account-status", h.accountStatus)
			r.Post("/get-account-balance", h.accountBalance)
			r.Post("/payout-setting", h.payoutSetting)
			r.Post("/stripe-session-id", h.stripeSessionID)
			r.Post("/stripe-success", h.stripeSuccess)
		})
	})
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps domain errors onto problem responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		writeProblem(w, http.StatusRequestEntityTooLarge, "Payload Too Large", fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
	case errors.Is(err, domain.ErrInvalid):
		writeProblem(w, http.StatusBadRequest, "Bad Request", detailOf(err, domain.ErrInvalid))
	case errors.Is(err, domain.ErrUnauthorized):
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", detailOf(err, domain.ErrUnauthorized))
	case errors.Is(err, domain.ErrForbidden):
		writeProblem(w, http.StatusForbidden, "Forbidden", detailOf(err, domain.ErrForbidden))
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", detailOf(err, domain.ErrNotFound))
	case errors.Is(err, domain.ErrConflict):
		writeProblem(w, http.StatusConflict, "Conflict", detailOf(err, domain.ErrConflict))
	case errors.Is(err, domain.ErrPayment):
		log.Error().Err(err).Str("route", routeOf(r)).Msg("payment provider failed")
		writeProblem(w, http.StatusBadGateway, "Bad Gateway", "payment provider request failed")
	default:
		log.Error().Err(err).Str("route", routeOf(r)).Msg("request failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "")
	}
}

// detailOf strips the sentinel text so clients see only the message.
func detailOf(err, sentinel error) string {
	s := err.Error()
	s = strings.TrimSuffix(s, ": "+sentinel.Error())
	s = strings.TrimPrefix(s, sentinel.Error()+": ")
	return s
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	return `W/"` + hex.EncodeToString(sum[:]) + `"`, body
}

// writeJSON answers GETs with an ETag and honors If-None-Match.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	etag, body := calcETagAndBody(v)
	if body == nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "")
		return
	}
	if r.Method == http.MethodGet && etag != "" {
		if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
			w.Header().Set("ETag", etag)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Str("route", routeOf(r)).Msg("failed to write body")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", domain.ErrInvalid)
		}
		return fmt.Errorf("%w: malformed JSON: %v", domain.ErrInvalid, err)
	}
	return nil
}
