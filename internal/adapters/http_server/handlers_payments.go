package httpserver

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"staybook/internal/domain"
)

type hotelRequest struct {
	HotelID string `json:"hotelId"`
}

func (h *Handlers) createConnectAccount(w http.ResponseWriter, r *http.Request) {
	link, err := h.Payments.ConnectAccount(r.Context(), userID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"url": link})
}

func (h *Handlers) accountStatus(w http.ResponseWriter, r *http.Request) {
	u, err := h.Payments.AccountStatus(r.Context(), userID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, u)
}

func (h *Handlers) accountBalance(w http.ResponseWriter, r *http.Request) {
	b, err := h.Payments.Balance(r.Context(), userID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, b)
}

func (h *Handlers) payoutSetting(w http.ResponseWriter, r *http.Request) {
	link, err := h.Payments.PayoutSetting(r.Context(), userID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"url": link})
}

func (h *Handlers) stripeSessionID(w http.ResponseWriter, r *http.Request) {
	var req hotelRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := h.Payments.CheckoutSession(r.Context(), userID(r.Context()), req.HotelID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"sessionId": sess.ID, "url": sess.URL})
}

func (h *Handlers) stripeSuccess(w http.ResponseWriter, r *http.Request) {
	var req hotelRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ok, err := h.Payments.Success(r.Context(), userID(r.Context()), req.HotelID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"success": ok})
}

// stripeWebhook needs the raw body for signature verification.
func (h *Handlers) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if !errors.As(err, &tooLarge) {
			err = fmt.Errorf("%w: read body: %v", domain.ErrInvalid, err)
		}
		writeError(w, r, err)
		return
	}
	if err := h.Payments.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"received": true})
}
