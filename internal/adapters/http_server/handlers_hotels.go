package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"staybook/internal/app"
	"staybook/internal/domain"
)

const defaultMaxUpload = 8 << 20

func (h *Handlers) listHotels(w http.ResponseWriter, r *http.Request) {
	hs, err := h.Hotels.ListHotels(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, nonNil(hs))
}

func (h *Handlers) readHotel(w http.ResponseWriter, r *http.Request) {
	hotel, err := h.Hotels.GetHotel(r.Context(), chi.URLParam(r, "hotelId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, hotel)
}

func (h *Handlers) hotelImage(w http.ResponseWriter, r *http.Request) {
	img, err := h.Hotels.Image(r.Context(), chi.URLParam(r, "hotelId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	ct := img.ContentType
	if ct == "" {
		ct = http.DetectContentType(img.Data)
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(img.Data); err != nil {
		log.Error().Err(err).Msg("failed to write image body")
	}
}

func (h *Handlers) sellerHotels(w http.ResponseWriter, r *http.Request) {
	hs, err := h.Hotels.SellerHotels(r.Context(), userID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, nonNil(hs))
}

func (h *Handlers) createHotel(w http.ResponseWriter, r *http.Request) {
	form, err := h.parseHotelForm(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	in, err := form.input()
	if err != nil {
		writeError(w, r, err)
		return
	}
	hotel, err := h.Hotels.CreateHotel(r.Context(), userID(r.Context()), in, form.image)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, hotel)
}

func (h *Handlers) updateHotel(w http.ResponseWriter, r *http.Request) {
	form, err := h.parseHotelForm(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	patch, err := form.patch()
	if err != nil {
		writeError(w, r, err)
		return
	}
	hotel, err := h.Hotels.UpdateHotel(r.Context(), userID(r.Context()), chi.URLParam(r, "hotelId"), patch, form.image)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, hotel)
}

func (h *Handlers) deleteHotel(w http.ResponseWriter, r *http.Request) {
	hotel, err := h.Hotels.DeleteHotel(r.Context(), userID(r.Context()), chi.URLParam(r, "hotelId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, hotel)
}

type searchRequest struct {
	Location string          `json:"location"`
	Date     []string        `json:"date"` // [from, to]
	Bed      json.RawMessage `json:"bed"`  // number or numeric string
}

func (h *Handlers) searchListings(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in := app.SearchInput{Location: strings.TrimSpace(req.Location)}
	if len(req.Date) > 0 && strings.TrimSpace(req.Date[0]) != "" {
		if len(req.Date) != 2 {
			writeError(w, r, fmt.Errorf("%w: date must be [from, to]", domain.ErrInvalid))
			return
		}
		from, err := app.ParseDate(req.Date[0])
		if err != nil {
			writeError(w, r, err)
			return
		}
		to, err := app.ParseDate(req.Date[1])
		if err != nil {
			writeError(w, r, err)
			return
		}
		in.From, in.To = &from, &to
	}
	if b := strings.Trim(strings.TrimSpace(string(req.Bed)), `"`); b != "" && b != "null" {
		n, err := strconv.Atoi(b)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: bed must be a number", domain.ErrInvalid))
			return
		}
		in.Bed = n
	}
	hs, err := h.Hotels.Search(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, nonNil(hs))
}

func (h *Handlers) userBookings(w http.ResponseWriter, r *http.Request) {
	out, err := h.Hotels.UserBookings(r.Context(), userID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (h *Handlers) isAlreadyBooked(w http.ResponseWriter, r *http.Request) {
	ok, err := h.Hotels.IsAlreadyBooked(r.Context(), userID(r.Context()), chi.URLParam(r, "hotelId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"ok": ok})
}

// ---- multipart hotel form ----

type hotelForm struct {
	values map[string][]string
	image  *domain.HotelImage
}

// parseHotelForm reads a multipart (or urlencoded) hotel form with an
// optional "image" file part.
func (h *Handlers) parseHotelForm(w http.ResponseWriter, r *http.Request) (hotelForm, error) {
	limit := h.MaxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUpload
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	err := r.ParseMultipartForm(limit)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return hotelForm{}, err
		}
		return hotelForm{}, fmt.Errorf("%w: unreadable form: %v", domain.ErrInvalid, err)
	}
	form := hotelForm{values: r.Form}

	if r.MultipartForm == nil {
		return form, nil
	}
	file, hdr, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return form, nil
	}
	if err != nil {
		return hotelForm{}, fmt.Errorf("%w: image: %v", domain.ErrInvalid, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return hotelForm{}, fmt.Errorf("read image: %w", err)
	}
	if len(data) == 0 {
		return form, nil
	}
	ct := hdr.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(data)
	}
	if !strings.HasPrefix(ct, "image/") {
		return hotelForm{}, fmt.Errorf("%w: image must be an image, got %s", domain.ErrInvalid, ct)
	}
	form.image = &domain.HotelImage{ContentType: ct, Data: data}
	return form, nil
}

func (f hotelForm) get(k string) (string, bool) {
	v, ok := f.values[k]
	if !ok || len(v) == 0 {
		return "", false
	}
	return strings.TrimSpace(v[0]), true
}

func (f hotelForm) input() (app.HotelInput, error) {
	in := app.HotelInput{}
	in.Title, _ = f.get("title")
	in.Content, _ = f.get("content")
	in.Location, _ = f.get("location")

	p, err := f.patch()
	if err != nil {
		return app.HotelInput{}, err
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
	return in, nil
}

// patch returns only the fields present in the form.
func (f hotelForm) patch() (app.HotelPatch, error) {
	var p app.HotelPatch
	if v, ok := f.get("title"); ok {
		p.Title = &v
	}
	if v, ok := f.get("content"); ok {
		p.Content = &v
	}
	if v, ok := f.get("location"); ok {
		p.Location = &v
	}
	if v, ok := f.get("price"); ok && v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, fmt.Errorf("%w: price must be a number", domain.ErrInvalid)
		}
		p.Price = &n
	}
	if v, ok := f.get("bed"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, fmt.Errorf("%w: bed must be a whole number", domain.ErrInvalid)
		}
		p.Bed = &n
	}
	for key, dst := range map[string]**time.Time{"from": &p.From, "to": &p.To} {
		if v, ok := f.get(key); ok && v != "" {
			t, err := app.ParseDate(v)
			if err != nil {
				return p, err
			}
			*dst = &t
		}
	}
	return p, nil
}

func nonNil(hs []domain.Hotel) []domain.Hotel {
	if hs == nil {
		return []domain.Hotel{}
	}
	return hs
}
