package domain

import "time"

// Hotel never carries its image bytes; those live behind ImageStore.
type Hotel struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Location  string    `json:"location"`
	Lat       *float64  `json:"lat,omitempty"`
	Lon       *float64  `json:"lon,omitempty"`
	Price     float64   `json:"price"`
	Bed       int       `json:"bed"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
	HasImage  bool      `json:"has_image"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Owner *UserRef `json:"owner,omitempty"`
}

type HotelImage struct {
	ContentType string
	Data        []byte
}

// HotelsQuery filters ListHotels. Zero values disable a filter.
type HotelsQuery struct {
	OwnerID  string
	Location string     // case-insensitive substring
	From     *time.Time // hotel.From <= From
	To       *time.Time // hotel.To >= To
	EndAfter *time.Time // hotel.To >= EndAfter
	Bed      int        // hotel.Bed >= Bed
	Missing  bool       // only hotels without coordinates
	Limit    int
}
