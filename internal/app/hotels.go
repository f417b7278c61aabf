package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"staybook/internal/domain"
)

const (
	listLimit      = 24
	geocodeTimeout = 3 * time.Second
)

type HotelService struct {
	hotels   domain.HotelRepository
	images   domain.ImageStore
	users    domain.UserRepository
	orders   domain.OrderRepository
	cache    domain.Cache    // optional
	geo      domain.Geocoder // optional
	cacheTTL time.Duration
	now      func() time.Time
}

type HotelDeps struct {
	Hotels   domain.HotelRepository
	Images   domain.ImageStore
	Users    domain.UserRepository
	Orders   domain.OrderRepository
	Cache    domain.Cache
	Geocoder domain.Geocoder
	CacheTTL time.Duration
}

func NewHotelService(d HotelDeps) *HotelService {
	return &HotelService{
		hotels:   d.Hotels,
		images:   d.Images,
		users:    d.Users,
		orders:   d.Orders,
		cache:    d.Cache,
		geo:      d.Geocoder,
		cacheTTL: d.CacheTTL,
		now:      time.Now,
	}
}

type HotelInput struct {
	Title    string    `json:"title" validate:"required,max=200"`
	Content  string    `json:"content" validate:"required,max=10000"`
	Location string    `json:"location" validate:"required,max=300"`
	Price    float64   `json:"price" validate:"gt=0"`
	Bed      int       `json:"bed" validate:"gte=1,lte=50"`
	From     time.Time `json:"from" validate:"required"`
	To       time.Time `json:"to" validate:"required,gtfield=From"`
}

// HotelPatch carries the fields an owner sent on update; nil means unchanged.
type HotelPatch struct {
	Title    *string
	Content  *string
	Location *string
	Price    *float64
	Bed      *int
	From     *time.Time
	To       *time.Time
}

type SearchInput struct {
	Location string
	From     *time.Time
	To       *time.Time
	Bed      int
}

func keyHotelList() string             { return "hotels:list" }
func keySellerHotels(id string) string { return "hotels:seller:" + id }
func keyHotel(id string) string        { return "hotel:" + id }

func (s *HotelService) CreateHotel(ctx context.Context, ownerID string, in HotelInput, img *domain.HotelImage) (domain.Hotel, error) {
	if err := validate.Struct(in); err != nil {
		return domain.Hotel{}, invalid(err)
	}
	h := in.toHotel(uuid.NewString(), ownerID, s.now().UTC())
	h.HasImage = img != nil && len(img.Data) > 0
	s.locate(ctx, &h)

	if err := s.hotels.CreateHotel(ctx, h); err != nil {
		return domain.Hotel{}, fmt.Errorf("create hotel: %w", err)
	}
	if h.HasImage {
		if err := s.images.PutImage(ctx, h.ID, *img); err != nil {
			// roll back so no listing points at a missing image
			if derr := s.hotels.DeleteHotel(ctx, h.ID); derr != nil {
				log.Error().Err(derr).Str("hotel_id", h.ID).Msg("rollback after image failure failed")
			}
			return domain.Hotel{}, fmt.Errorf("store image: %w", err)
		}
	}
	s.invalidate(ctx, h)
	log.Info().Str("hotel_id", h.ID).Str("owner_id", ownerID).Msg("hotel created")
	return h, nil
}

// ListHotels returns the newest upcoming listings with owners populated.
func (s *HotelService) ListHotels(ctx context.Context) ([]domain.Hotel, error) {
	var out []domain.Hotel
	if s.cacheGet(ctx, keyHotelList(), &out) {
		return out, nil
	}
	today := startOfDay(s.now())
	hs, err := s.hotels.ListHotels(ctx, domain.HotelsQuery{EndAfter: &today, Limit: listLimit})
	if err != nil {
		return nil, err
	}
	if err := s.populateOwners(ctx, hs); err != nil {
		return nil, err
	}
	s.cacheSet(ctx, keyHotelList(), hs)
	return hs, nil
}

func (s *HotelService) GetHotel(ctx context.Context, id string) (domain.Hotel, error) {
	var h domain.Hotel
	if s.cacheGet(ctx, keyHotel(id), &h) {
		return h, nil
	}
	h, err := s.hotels.GetHotel(ctx, id)
	if err != nil {
		return domain.Hotel{}, err
	}
	hs := []domain.Hotel{h}
	if err := s.populateOwners(ctx, hs); err != nil {
		return domain.Hotel{}, err
	}
	s.cacheSet(ctx, keyHotel(id), hs[0])
	return hs[0], nil
}

func (s *HotelService) Image(ctx context.Context, hotelID string) (domain.HotelImage, error) {
	return s.images.GetImage(ctx, hotelID)
}

func (s *HotelService) SellerHotels(ctx context.Context, ownerID string) ([]domain.Hotel, error) {
	var out []domain.Hotel
	if s.cacheGet(ctx, keySellerHotels(ownerID), &out) {
		return out, nil
	}
	hs, err := s.hotels.ListHotels(ctx, domain.HotelsQuery{OwnerID: ownerID})
	if err != nil {
		return nil, err
	}
	if err := s.populateOwners(ctx, hs); err != nil {
		return nil, err
	}
	s.cacheSet(ctx, keySellerHotels(ownerID), hs)
	return hs, nil
}

func (s *HotelService) UpdateHotel(ctx context.Context, callerID, id string, p HotelPatch, img *domain.HotelImage) (domain.Hotel, error) {
	cur, err := s.ownedHotel(ctx, callerID, id)
	if err != nil {
		return domain.Hotel{}, err
	}
	in := p.apply(inputOf(cur))
	if err := validate.Struct(in); err != nil {
		return domain.Hotel{}, invalid(err)
	}

	h := in.toHotel(cur.ID, cur.OwnerID, cur.CreatedAt)
	h.UpdatedAt = s.now().UTC()
	h.HasImage = cur.HasImage
	h.Lat, h.Lon = cur.Lat, cur.Lon
	if h.Location != cur.Location {
		h.Lat, h.Lon = nil, nil
		s.locate(ctx, &h)
	}

	withImage := img != nil && len(img.Data) > 0
	if withImage {
		h.HasImage = true
	}
	if err := s.hotels.UpdateHotel(ctx, h); err != nil {
		return domain.Hotel{}, fmt.Errorf("update hotel: %w", err)
	}
	if withImage {
		if err := s.images.PutImage(ctx, h.ID, *img); err != nil {
			// the image is unchanged, so the row must be too
			if rerr := s.hotels.UpdateHotel(ctx, cur); rerr != nil {
				log.Error().Err(rerr).Str("hotel_id", h.ID).Msg("restore hotel after image failure")
			}
			return domain.Hotel{}, fmt.Errorf("store image: %w", err)
		}
	}
	s.invalidate(ctx, h)
	return h, nil
}

func (s *HotelService) DeleteHotel(ctx context.Context, callerID, id string) (domain.Hotel, error) {
	h, err := s.ownedHotel(ctx, callerID, id)
	if err != nil {
		return domain.Hotel{}, err
	}
	if err := s.hotels.DeleteHotel(ctx, id); err != nil {
		return domain.Hotel{}, fmt.Errorf("delete hotel: %w", err)
	}
	if h.HasImage {
		if err := s.images.DeleteImage(ctx, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
			log.Warn().Err(err).Str("hotel_id", id).Msg("orphaned hotel image")
		}
	}
	s.invalidate(ctx, h)
	log.Info().Str("hotel_id", id).Str("owner_id", callerID).Msg("hotel deleted")
	return h, nil
}

// Search matches a case-insensitive location substring, a stay window the
// listing fully covers, and a minimum bed count. Empty criteria are ignored.
func (s *HotelService) Search(ctx context.Context, in SearchInput) ([]domain.Hotel, error) {
	if in.From != nil && in.To != nil && !in.To.After(*in.From) {
		return nil, invalidf("end date must be after start date")
	}
	if in.Bed < 0 {
		return nil, invalidf("bed must not be negative")
	}
	q := domain.HotelsQuery{Location: in.Location, Bed: in.Bed}
	if in.From != nil {
		f := startOfDay(*in.From)
		q.From = &f
	}
	if in.To != nil {
		t := startOfDay(*in.To)
		q.To = &t
	}
	hs, err := s.hotels.ListHotels(ctx, q)
	if err != nil {
		return nil, err
	}
	if err := s.populateOwners(ctx, hs); err != nil {
		return nil, err
	}
	return hs, nil
}

func (s *HotelService) UserBookings(ctx context.Context, userID string) ([]domain.BookingView, error) {
	orders, err := s.orders.ListOrdersByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.BookingView, 0, len(orders))
	for _, o := range orders {
		h, err := s.hotels.GetHotel(ctx, o.HotelID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			out = append(out, bookingView(o, nil))
			continue
		case err != nil:
			return nil, err
		}
		hs := []domain.Hotel{h}
		if err := s.populateOwners(ctx, hs); err != nil {
			return nil, err
		}
		out = append(out, bookingView(o, &hs[0]))
	}
	return out, nil
}

func (s *HotelService) IsAlreadyBooked(ctx context.Context, userID, hotelID string) (bool, error) {
	return s.orders.HasOrder(ctx, userID, hotelID)
}

// BackfillCoordinates geocodes every hotel without lat/lon using up to
// workers concurrent lookups. It returns how many hotels were updated.
func (s *HotelService) BackfillCoordinates(ctx context.Context, workers int) (int, error) {
	if s.geo == nil {
		return 0, errors.New("no geocoder configured")
	}
	if workers <= 0 {
		workers = 1
	}
	hs, err := s.hotels.ListHotels(ctx, domain.HotelsQuery{Missing: true})
	if err != nil {
		return 0, err
	}

	sem := semaphore.NewWeighted(int64(workers))
	var wg sync.WaitGroup
	var updated atomic.Int64

	for _, h := range hs {
		// acquire before launching; release inside the goroutine
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return int(updated.Load()), err
		}
		wg.Add(1)
		go func(h domain.Hotel) {
			defer wg.Done()
			defer sem.Release(1)

			lat, lon, err := s.geo.Geocode(ctx, h.Location)
			if err != nil {
				log.Warn().Err(err).Str("hotel_id", h.ID).Str("location", h.Location).Msg("geocode failed")
				return
			}
			err = s.hotels.SetCoordinates(ctx, h.ID, h.Location, lat, lon, s.now().UTC())
			switch {
			case errors.Is(err, domain.ErrNotFound):
				log.Info().Str("hotel_id", h.ID).Msg("hotel moved or deleted during geocoding")
				return
			case err != nil:
				log.Warn().Err(err).Str("hotel_id", h.ID).Msg("save coordinates failed")
				return
			}
			s.invalidate(ctx, h)
			updated.Add(1)
		}(h)
	}
	wg.Wait()
	return int(updated.Load()), nil
}

func (s *HotelService) ownedHotel(ctx context.Context, callerID, id string) (domain.Hotel, error) {
	h, err := s.hotels.GetHotel(ctx, id)
	if err != nil {
		return domain.Hotel{}, err
	}
	if h.OwnerID != callerID {
		return domain.Hotel{}, fmt.Errorf("hotel %s is not yours: %w", id, domain.ErrForbidden)
	}
	return h, nil
}

// populateOwners fills Owner in place. Owners that no longer exist stay nil.
func (s *HotelService) populateOwners(ctx context.Context, hs []domain.Hotel) error {
	seen := map[string]*domain.UserRef{}
	for i := range hs {
		id := hs[i].OwnerID
		ref, ok := seen[id]
		if !ok {
			u, err := s.users.GetUser(ctx, id)
			switch {
			case err == nil:
				ref = u.Ref()
			case errors.Is(err, domain.ErrNotFound):
				ref = nil
			default:
				return err
			}
			seen[id] = ref
		}
		hs[i].Owner = ref
	}
	return nil
}

// locate sets coordinates from the geocoder; failures leave them empty.
func (s *HotelService) locate(ctx context.Context, h *domain.Hotel) {
	if s.geo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, geocodeTimeout)
	defer cancel()
	lat, lon, err := s.geo.Geocode(ctx, h.Location)
	if err != nil {
		log.Debug().Err(err).Str("location", h.Location).Msg("geocode skipped")
		return
	}
	h.Lat, h.Lon = &lat, &lon
}

func (s *HotelService) invalidate(ctx context.Context, h domain.Hotel) {
	if s.cache == nil {
		return
	}
	for _, k := range []string{keyHotelList(), keySellerHotels(h.OwnerID), keyHotel(h.ID)} {
		if err := s.cache.Del(ctx, k); err != nil {
			log.Warn().Err(err).Str("key", k).Msg("cache invalidation failed")
		}
	}
}

func (s *HotelService) cacheGet(ctx context.Context, key string, dst any) bool {
	if s.cache == nil {
		return false
	}
	ok, err := s.cache.Get(ctx, key, dst)
	if err != nil {
		log.Debug().Err(err).Str("key", key).Msg("cache get failed")
		return false
	}
	return ok
}

func (s *HotelService) cacheSet(ctx context.Context, key string, v any) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	if err := s.cache.Set(ctx, key, v, int(s.cacheTTL.Seconds())); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("cache set failed")
	}
}
