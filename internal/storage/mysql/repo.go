package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"

	"staybook/internal/domain"
)

const errDuplicateKey = 1062

func valStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
func valF64(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
func valJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func isDuplicate(err error) bool {
	var me *mysqldrv.MySQLError
	return errors.As(err, &me) && me.Number == errDuplicateKey
}

// Repo implements every repository plus ImageStore on MySQL.
type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// ---------- users ----------

func (r *Repo) CreateUser(ctx context.Context, u domain.User) error {
	seller, err := valJSON(sellerOrNil(u.Seller))
	if err != nil {
		return err
	}
	pending, err := valJSON(sessionOrNil(u.PendingSession))
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, insertUserSQL,
		u.ID, u.Name, u.Email, u.PasswordHash,
		valStr(u.StripeAccountID), seller, pending,
		u.CreatedAt, u.UpdatedAt,
	)
	if isDuplicate(err) {
		return fmt.Errorf("email %s: %w", u.Email, domain.ErrConflict)
	}
	return err
}

func (r *Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return r.oneUser(ctx, selectUserSQL, id)
}

func (r *Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.oneUser(ctx, selectUserByEmailSQL, email)
}

func (r *Repo) GetUserByStripeAccount(ctx context.Context, accountID string) (domain.User, error) {
	return r.oneUser(ctx, selectUserByAccountSQL, accountID)
}

func (r *Repo) UpdateUser(ctx context.Context, u domain.User) error {
	seller, err := valJSON(sellerOrNil(u.Seller))
	if err != nil {
		return err
	}
	pending, err := valJSON(sessionOrNil(u.PendingSession))
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, updateUserSQL,
		u.Name, valStr(u.StripeAccountID), seller, pending, u.UpdatedAt, u.ID)
	if err != nil {
		return err
	}
	return affected(res, "user "+u.ID)
}

func (r *Repo) oneUser(ctx context.Context, query, arg string) (domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, fmt.Errorf("user %s: %w", arg, domain.ErrNotFound)
	}
	return u, err
}

func scanUser(row scanner) (domain.User, error) {
	var u domain.User
	var account sql.NullString
	var seller, pending []byte
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &account, &seller, &pending, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return domain.User{}, err
	}
	u.StripeAccountID = account.String
	if len(seller) > 0 {
		u.Seller = &domain.SellerStatus{}
		if err := json.Unmarshal(seller, u.Seller); err != nil {
			return domain.User{}, fmt.Errorf("decode stripe_seller: %w", err)
		}
	}
	if len(pending) > 0 {
		u.PendingSession = &domain.CheckoutSession{}
		if err := json.Unmarshal(pending, u.PendingSession); err != nil {
			return domain.User{}, fmt.Errorf("decode stripe_session: %w", err)
		}
	}
	return u, nil
}

// keep typed nils out of valJSON
func sellerOrNil(s *domain.SellerStatus) any {
	if s == nil {
		return nil
	}
	return s
}
func sessionOrNil(s *domain.CheckoutSession) any {
	if s == nil {
		return nil
	}
	return s
}

// ---------- hotels ----------

func (r *Repo) CreateHotel(ctx context.Context, h domain.Hotel) error {
	_, err := r.db.ExecContext(ctx, insertHotelSQL,
		h.ID, h.OwnerID, h.Title, h.Content, h.Location,
		valF64(h.Lat), valF64(h.Lon),
		h.Price, h.Bed, h.From, h.To, h.HasImage,
		h.CreatedAt, h.UpdatedAt,
	)
	if isDuplicate(err) {
		return fmt.Errorf("hotel %s: %w", h.ID, domain.ErrConflict)
	}
	return err
}

func (r *Repo) GetHotel(ctx context.Context, id string) (domain.Hotel, error) {
	h, err := scanHotel(r.db.QueryRowContext(ctx, selectHotelSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Hotel{}, fmt.Errorf("hotel %s: %w", id, domain.ErrNotFound)
	}
	return h, err
}

func (r *Repo) UpdateHotel(ctx context.Context, h domain.Hotel) error {
	res, err := r.db.ExecContext(ctx, updateHotelSQL,
		h.Title, h.Content, h.Location,
		valF64(h.Lat), valF64(h.Lon),
		h.Price, h.Bed, h.From, h.To, h.HasImage,
		h.UpdatedAt, h.ID,
	)
	if err != nil {
		return err
	}
	return affected(res, "hotel "+h.ID)
}

func (r *Repo) SetCoordinates(ctx context.Context, id, location string, lat, lon float64, at time.Time) error {
	res, err := r.db.ExecContext(ctx, setCoordinatesSQL, lat, lon, at, id, location)
	if err != nil {
		return err
	}
	return affected(res, "hotel "+id+" at "+location)
}

func (r *Repo) DeleteHotel(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, deleteHotelSQL, id)
	if err != nil {
		return err
	}
	return affected(res, "hotel "+id)
}

func (r *Repo) ListHotels(ctx context.Context, q domain.HotelsQuery) ([]domain.Hotel, error) {
	query, args := buildListHotels(q)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Hotel
	for rows.Next() {
		h, err := scanHotel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func buildListHotels(q domain.HotelsQuery) (string, []any) {
	var where []string
	var args []any
	if q.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, q.OwnerID)
	}
	if q.Location != "" {
		where = append(where, "LOWER(location) LIKE ?")
		args = append(args, "%"+escapeLike(strings.ToLower(q.Location))+"%")
	}
	if q.From != nil {
		where = append(where, "date_from <= ?")
		args = append(args, *q.From)
	}
	if q.To != nil {
		where = append(where, "date_to >= ?")
		args = append(args, *q.To)
	}
	if q.EndAfter != nil {
		where = append(where, "date_to >= ?")
		args = append(args, *q.EndAfter)
	}
	if q.Bed > 0 {
		where = append(where, "bed >= ?")
		args = append(args, q.Bed)
	}
	if q.Missing {
		where = append(where, "(lat IS NULL OR lon IS NULL)")
	}

	var b strings.Builder
	b.WriteString(listHotelsPrefix)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC, id DESC")
	if q.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}
	return b.String(), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

func scanHotel(row scanner) (domain.Hotel, error) {
	var h domain.Hotel
	var lat, lon sql.NullFloat64
	if err := row.Scan(
		&h.ID, &h.OwnerID, &h.Title, &h.Content, &h.Location,
		&lat, &lon,
		&h.Price, &h.Bed, &h.From, &h.To, &h.HasImage,
		&h.CreatedAt, &h.UpdatedAt,
	); err != nil {
		return domain.Hotel{}, err
	}
	if lat.Valid && lon.Valid {
		la, lo := lat.Float64, lon.Float64
		h.Lat, h.Lon = &la, &lo
	}
	return h, nil
}

// ---------- images ----------

func (r *Repo) PutImage(ctx context.Context, hotelID string, img domain.HotelImage) error {
	_, err := r.db.ExecContext(ctx, upsertImageSQL, hotelID, img.ContentType, img.Data)
	return err
}

func (r *Repo) GetImage(ctx context.Context, hotelID string) (domain.HotelImage, error) {
	var img domain.HotelImage
	err := r.db.QueryRowContext(ctx, selectImageSQL, hotelID).Scan(&img.ContentType, &img.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.HotelImage{}, fmt.Errorf("image %s: %w", hotelID, domain.ErrNotFound)
	}
	return img, err
}

func (r *Repo) DeleteImage(ctx context.Context, hotelID string) error {
	res, err := r.db.ExecContext(ctx, deleteImageSQL, hotelID)
	if err != nil {
		return err
	}
	return affected(res, "image "+hotelID)
}

// ---------- orders ----------

func (r *Repo) CreateOrder(ctx context.Context, o domain.Order) error {
	sess, err := json.Marshal(o.Session)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, insertOrderSQL, o.ID, o.HotelID, o.UserID, o.Session.ID, string(sess), o.CreatedAt)
	if isDuplicate(err) {
		return fmt.Errorf("order for session %s: %w", o.Session.ID, domain.ErrConflict)
	}
	return err
}

func (r *Repo) GetOrderBySession(ctx context.Context, sessionID string) (domain.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, selectOrderBySessionSQL, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, fmt.Errorf("order for session %s: %w", sessionID, domain.ErrNotFound)
	}
	return o, err
}

func (r *Repo) ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *Repo) HasOrder(ctx context.Context, userID, hotelID string) (bool, error) {
	var ok bool
	if err := r.db.QueryRowContext(ctx, hasOrderSQL, userID, hotelID).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func scanOrder(row scanner) (domain.Order, error) {
	var o domain.Order
	var sess []byte
	if err := row.Scan(&o.ID, &o.HotelID, &o.UserID, &sess, &o.CreatedAt); err != nil {
		return domain.Order{}, err
	}
	if err := json.Unmarshal(sess, &o.Session); err != nil {
		return domain.Order{}, fmt.Errorf("decode session: %w", err)
	}
	return o, nil
}

func affected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return nil
}

// Open connects with the options the scans rely on: parsed DATETIME
// columns in UTC and found-rows semantics for UPDATE.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	cfg, err := mysqldrv.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.ClientFoundRows = true

	conn, err := mysqldrv.NewConnector(cfg)
	if err != nil {
		return nil, err
	}
	db := sql.OpenDB(conn)
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return db, nil
}
