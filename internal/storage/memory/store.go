// Package memory keeps every repository in process memory. It backs
// STORE_DRIVER=memory and the HTTP tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"staybook/internal/domain"
)

type Store struct {
	mu      sync.RWMutex
	users   map[string]domain.User
	emails  map[string]string // lower(email) -> user id
	hotels  map[string]domain.Hotel
	images  map[string]domain.HotelImage
	orders  map[string]domain.Order
	session map[string]string // session id -> order id
}

func New() *Store {
	return &Store{
		users:   map[string]domain.User{},
		emails:  map[string]string{},
		hotels:  map[string]domain.Hotel{},
		images:  map[string]domain.HotelImage{},
		orders:  map[string]domain.Order{},
		session: map[string]string{},
	}
}

// ---- users ----

func (s *Store) CreateUser(ctx context.Context, u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(u.Email)
	if _, ok := s.emails[key]; ok {
		return fmt.Errorf("email %s: %w", u.Email, domain.ErrConflict)
	}
	s.users[u.ID] = u
	s.emails[key] = u.ID
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emails[strings.ToLower(email)]
	if !ok {
		return domain.User{}, fmt.Errorf("user %s: %w", email, domain.ErrNotFound)
	}
	return s.users[id], nil
}

func (s *Store) GetUserByStripeAccount(ctx context.Context, accountID string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if accountID != "" && u.StripeAccountID == accountID {
			return u, nil
		}
	}
	return domain.User{}, fmt.Errorf("account %s: %w", accountID, domain.ErrNotFound)
}

func (s *Store) UpdateUser(ctx context.Context, u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.users[u.ID]
	if !ok {
		return fmt.Errorf("user %s: %w", u.ID, domain.ErrNotFound)
	}
	cur.Name = u.Name
	cur.StripeAccountID = u.StripeAccountID
	cur.Seller = u.Seller
	cur.PendingSession = u.PendingSession
	cur.UpdatedAt = u.UpdatedAt
	s.users[u.ID] = cur
	return nil
}

// ---- hotels ----

func (s *Store) CreateHotel(ctx context.Context, h domain.Hotel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.hotels[h.ID]; ok {
		return fmt.Errorf("hotel %s: %w", h.ID, domain.ErrConflict)
	}
	h.Owner = nil
	s.hotels[h.ID] = h
	return nil
}

func (s *Store) GetHotel(ctx context.Context, id string) (domain.Hotel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hotels[id]
	if !ok {
		return domain.Hotel{}, fmt.Errorf("hotel %s: %w", id, domain.ErrNotFound)
	}
	return h, nil
}

func (s *Store) UpdateHotel(ctx context.Context, h domain.Hotel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.hotels[h.ID]
	if !ok {
		return fmt.Errorf("hotel %s: %w", h.ID, domain.ErrNotFound)
	}
	h.OwnerID = cur.OwnerID
	h.CreatedAt = cur.CreatedAt
	h.Owner = nil
	s.hotels[h.ID] = h
	return nil
}

func (s *Store) SetCoordinates(ctx context.Context, id, location string, lat, lon float64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hotels[id]
	if !ok || h.Location != location {
		return fmt.Errorf("hotel %s at %s: %w", id, location, domain.ErrNotFound)
	}
	h.Lat, h.Lon = &lat, &lon
	h.UpdatedAt = at
	s.hotels[id] = h
	return nil
}

func (s *Store) DeleteHotel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.hotels[id]; !ok {
		return fmt.Errorf("hotel %s: %w", id, domain.ErrNotFound)
	}
	delete(s.hotels, id)
	delete(s.images, id)
	return nil
}

func (s *Store) ListHotels(ctx context.Context, q domain.HotelsQuery) ([]domain.Hotel, error) {
	s.mu.RLock()
	out := make([]domain.Hotel, 0, len(s.hotels))
	for _, h := range s.hotels {
		if matches(h, q) {
			out = append(out, h)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func matches(h domain.Hotel, q domain.HotelsQuery) bool {
	switch {
	case q.OwnerID != "" && h.OwnerID != q.OwnerID:
		return false
	case q.Location != "" && !strings.Contains(strings.ToLower(h.Location), strings.ToLower(q.Location)):
		return false
	case q.From != nil && h.From.After(*q.From):
		return false
	case q.To != nil && h.To.Before(*q.To):
		return false
	case q.EndAfter != nil && h.To.Before(*q.EndAfter):
		return false
	case q.Bed > 0 && h.Bed < q.Bed:
		return false
	case q.Missing && h.Lat != nil && h.Lon != nil:
		return false
	}
	return true
}

// ---- images ----

func (s *Store) PutImage(ctx context.Context, hotelID string, img domain.HotelImage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := make([]byte, len(img.Data))
	copy(data, img.Data)
	s.images[hotelID] = domain.HotelImage{ContentType: img.ContentType, Data: data}
	return nil
}

func (s *Store) GetImage(ctx context.Context, hotelID string) (domain.HotelImage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	img, ok := s.images[hotelID]
	if !ok {
		return domain.HotelImage{}, fmt.Errorf("image %s: %w", hotelID, domain.ErrNotFound)
	}
	return img, nil
}

func (s *Store) DeleteImage(ctx context.Context, hotelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.images, hotelID)
	return nil
}

// ---- orders ----

func (s *Store) CreateOrder(ctx context.Context, o domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.session[o.Session.ID]; ok {
		return fmt.Errorf("order for session %s: %w", o.Session.ID, domain.ErrConflict)
	}
	s.orders[o.ID] = o
	s.session[o.Session.ID] = o.ID
	return nil
}

func (s *Store) GetOrderBySession(ctx context.Context, sessionID string) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.session[sessionID]
	if !ok {
		return domain.Order{}, fmt.Errorf("order for session %s: %w", sessionID, domain.ErrNotFound)
	}
	return s.orders[id], nil
}

func (s *Store) ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	s.mu.RLock()
	out := []domain.Order{}
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) HasOrder(ctx context.Context, userID, hotelID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.orders {
		if o.UserID == userID && o.HotelID == hotelID {
			return true, nil
		}
	}
	return false, nil
}
