package app

import (
	"math"
	"strings"
	"time"

	"staybook/internal/domain"
)

// toMinorUnits converts a display price to the provider's integer amount.
func toMinorUnits(price float64) int64 {
	return int64(math.Round(price * 100))
}

// platformFee is percent of amount, rounded down.
func platformFee(amount int64, percent int) int64 {
	if percent <= 0 {
		return 0
	}
	return amount * int64(percent) / 100
}

// ParseDate accepts YYYY-MM-DD or RFC3339 and returns a UTC day.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, invalidf("date %q must be YYYY-MM-DD", s)
	}
	return startOfDay(t), nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (in HotelInput) toHotel(id, ownerID string, now time.Time) domain.Hotel {
	return domain.Hotel{
		ID:        id,
		OwnerID:   ownerID,
		Title:     strings.TrimSpace(in.Title),
		Content:   strings.TrimSpace(in.Content),
		Location:  strings.TrimSpace(in.Location),
		Price:     in.Price,
		Bed:       in.Bed,
		From:      startOfDay(in.From),
		To:        startOfDay(in.To),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func inputOf(h domain.Hotel) HotelInput {
	return HotelInput{Title: h.Title, Content: h.Content, Location: h.Location, Price: h.Price, Bed: h.Bed, From: h.From, To: h.To}
}

// apply merges set fields of p into in.
func (p HotelPatch) apply(in HotelInput) HotelInput {
	if p.Title != nil {
		in.Title = *p.Title
	}
	if p.Content != nil {
		in.Content = *p.Content
	}
	if p.Location != nil {
		in.Location = *p.Location
	}
	if p.Price != nil {
		in.Price = *p.Price
	}
	if p.Bed != nil {
		in.Bed = *p.Bed
	}
	if p.From != nil {
		in.From = *p.From
	}
	if p.To != nil {
		in.To = *p.To
	}
	return in
}

func bookingView(o domain.Order, h *domain.Hotel) domain.BookingView {
	return domain.BookingView{ID: o.ID, Hotel: h, Session: o.Session, CreatedAt: o.CreatedAt}
}
