package mongodb

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"staybook/internal/domain"
)

const (
	colUsers  = "users"
	colHotels = "hotels"
	colImages = "hotel_images"
	colOrders = "orders"
)

// Store implements every repository plus ImageStore on MongoDB.
type Store struct {
	db     *mongo.Database
	client *mongo.Client
}

func NewStore(db *mongo.Database) *Store { return &Store{db: db} }

// Connect dials uri and returns a store over database name.
func Connect(ctx context.Context, uri, name string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	clientOpts := options.Client().ApplyURI(uri).
		SetConnectTimeout(5 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(20)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}
	return &Store{db: client.Database(name), client: client}, nil
}

func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// EnsureIndexes creates the unique and lookup indexes the repositories rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	plan := map[string][]mongo.IndexModel{
		colUsers: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "stripe_account_id", Value: 1}}, Options: options.Index().SetSparse(true)},
		},
		colHotels: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "date_to", Value: 1}}},
		},
		colOrders: {
			{Keys: bson.D{{Key: "session_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "hotel_id", Value: 1}}},
		},
	}
	for col, models := range plan {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("indexes on %s: %w", col, err)
		}
	}
	return nil
}

// ---------- documents ----------

type sellerDoc struct {
	ChargesEnabled   bool     `bson:"charges_enabled"`
	PayoutsEnabled   bool     `bson:"payouts_enabled"`
	DetailsSubmitted bool     `bson:"details_submitted"`
	CurrentlyDue     []string `bson:"currently_due,omitempty"`
}

type sessionDoc struct {
	ID            string `bson:"id"`
	HotelID       string `bson:"hotel_id,omitempty"`
	BuyerID       string `bson:"buyer_id,omitempty"`
	AmountTotal   int64  `bson:"amount_total"`
	Currency      string `bson:"currency"`
	PaymentStatus string `bson:"payment_status"`
	Status        string `bson:"status,omitempty"`
	PaymentIntent string `bson:"payment_intent,omitempty"`
	URL           string `bson:"url,omitempty"`
}

type userDoc struct {
	ID              string      `bson:"_id"`
	Name            string      `bson:"name"`
	Email           string      `bson:"email"`
	PasswordHash    string      `bson:"password_hash"`
	StripeAccountID string      `bson:"stripe_account_id,omitempty"`
	Seller          *sellerDoc  `bson:"stripe_seller,omitempty"`
	PendingSession  *sessionDoc `bson:"stripe_session,omitempty"`
	CreatedAt       time.Time   `bson:"created_at"`
	UpdatedAt       time.Time   `bson:"updated_at"`
}

type hotelDoc struct {
	ID        string    `bson:"_id"`
	OwnerID   string    `bson:"owner_id"`
	Title     string    `bson:"title"`
	Content   string    `bson:"content"`
	Location  string    `bson:"location"`
	Lat       *float64  `bson:"lat"`
	Lon       *float64  `bson:"lon"`
	Price     float64   `bson:"price"`
	Bed       int       `bson:"bed"`
	From      time.Time `bson:"date_from"`
	To        time.Time `bson:"date_to"`
	HasImage  bool      `bson:"has_image"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type imageDoc struct {
	HotelID     string `bson:"_id"`
	ContentType string `bson:"content_type"`
	Data        []byte `bson:"data"`
}

type orderDoc struct {
	ID        string     `bson:"_id"`
	HotelID   string     `bson:"hotel_id"`
	UserID    string     `bson:"user_id"`
	SessionID string     `bson:"session_id"`
	Session   sessionDoc `bson:"session"`
	CreatedAt time.Time  `bson:"created_at"`
}

func toSessionDoc(s domain.CheckoutSession) sessionDoc { return sessionDoc(s) }

func (d sessionDoc) toDomain() domain.CheckoutSession { return domain.CheckoutSession(d) }

func toUserDoc(u domain.User) userDoc {
	d := userDoc{
		ID: u.ID, Name: u.Name, Email: u.Email, PasswordHash: u.PasswordHash,
		StripeAccountID: u.StripeAccountID, CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt,
	}
	if u.Seller != nil {
		sd := sellerDoc(*u.Seller)
		d.Seller = &sd
	}
	if u.PendingSession != nil {
		sd := toSessionDoc(*u.PendingSession)
		d.PendingSession = &sd
	}
	return d
}

func (d userDoc) toDomain() domain.User {
	u := domain.User{
		ID: d.ID, Name: d.Name, Email: d.Email, PasswordHash: d.PasswordHash,
		StripeAccountID: d.StripeAccountID, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
	if d.Seller != nil {
		s := domain.SellerStatus(*d.Seller)
		u.Seller = &s
	}
	if d.PendingSession != nil {
		s := d.PendingSession.toDomain()
		u.PendingSession = &s
	}
	return u
}

func toHotelDoc(h domain.Hotel) hotelDoc {
	return hotelDoc{
		ID: h.ID, OwnerID: h.OwnerID, Title: h.Title, Content: h.Content, Location: h.Location,
		Lat: h.Lat, Lon: h.Lon, Price: h.Price, Bed: h.Bed, From: h.From, To: h.To,
		HasImage: h.HasImage, CreatedAt: h.CreatedAt, UpdatedAt: h.UpdatedAt,
	}
}

func (d hotelDoc) toDomain() domain.Hotel {
	return domain.Hotel{
		ID: d.ID, OwnerID: d.OwnerID, Title: d.Title, Content: d.Content, Location: d.Location,
		Lat: d.Lat, Lon: d.Lon, Price: d.Price, Bed: d.Bed,
		From: d.From.UTC(), To: d.To.UTC(),
		HasImage: d.HasImage, CreatedAt: d.CreatedAt.UTC(), UpdatedAt: d.UpdatedAt.UTC(),
	}
}

// ---------- users ----------

func (s *Store) CreateUser(ctx context.Context, u domain.User) error {
	_, err := s.db.Collection(colUsers).InsertOne(ctx, toUserDoc(u))
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("email %s: %w", u.Email, domain.ErrConflict)
	}
	return err
}

func (s *Store) GetUser(ctx context.Context, id string) (domain.User, error) {
	return s.oneUser(ctx, bson.M{"_id": id}, id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return s.oneUser(ctx, bson.M{"email": email}, email)
}

func (s *Store) GetUserByStripeAccount(ctx context.Context, accountID string) (domain.User, error) {
	return s.oneUser(ctx, bson.M{"stripe_account_id": accountID}, accountID)
}

func (s *Store) oneUser(ctx context.Context, filter bson.M, label string) (domain.User, error) {
	var d userDoc
	err := s.db.Collection(colUsers).FindOne(ctx, filter).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.User{}, fmt.Errorf("user %s: %w", label, domain.ErrNotFound)
	}
	if err != nil {
		return domain.User{}, err
	}
	return d.toDomain(), nil
}

func (s *Store) UpdateUser(ctx context.Context, u domain.User) error {
	d := toUserDoc(u)
	set := bson.M{"name": d.Name, "updated_at": d.UpdatedAt}
	unset := bson.M{}
	if d.StripeAccountID != "" {
		set["stripe_account_id"] = d.StripeAccountID
	} else {
		unset["stripe_account_id"] = ""
	}
	if d.Seller != nil {
		set["stripe_seller"] = d.Seller
	} else {
		unset["stripe_seller"] = ""
	}
	if d.PendingSession != nil {
		set["stripe_session"] = d.PendingSession
	} else {
		unset["stripe_session"] = ""
	}
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	res, err := s.db.Collection(colUsers).UpdateOne(ctx, bson.M{"_id": u.ID}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("user %s: %w", u.ID, domain.ErrNotFound)
	}
	return nil
}

// ---------- hotels ----------

func (s *Store) CreateHotel(ctx context.Context, h domain.Hotel) error {
	_, err := s.db.Collection(colHotels).InsertOne(ctx, toHotelDoc(h))
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("hotel %s: %w", h.ID, domain.ErrConflict)
	}
	return err
}

func (s *Store) GetHotel(ctx context.Context, id string) (domain.Hotel, error) {
	var d hotelDoc
	err := s.db.Collection(colHotels).FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Hotel{}, fmt.Errorf("hotel %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Hotel{}, err
	}
	return d.toDomain(), nil
}

func (s *Store) UpdateHotel(ctx context.Context, h domain.Hotel) error {
	res, err := s.db.Collection(colHotels).ReplaceOne(ctx, bson.M{"_id": h.ID}, toHotelDoc(h))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("hotel %s: %w", h.ID, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) SetCoordinates(ctx context.Context, id, location string, lat, lon float64, at time.Time) error {
	res, err := s.db.Collection(colHotels).UpdateOne(ctx,
		bson.M{"_id": id, "location": location},
		bson.M{"$set": bson.M{"lat": lat, "lon": lon, "updated_at": at}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("hotel %s at %s: %w", id, location, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteHotel(ctx context.Context, id string) error {
	res, err := s.db.Collection(colHotels).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("hotel %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) ListHotels(ctx context.Context, q domain.HotelsQuery) ([]domain.Hotel, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	cur, err := s.db.Collection(colHotels).Find(ctx, hotelFilter(q), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []domain.Hotel
	for cur.Next(ctx) {
		var d hotelDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, d.toDomain())
	}
	return out, cur.Err()
}

func hotelFilter(q domain.HotelsQuery) bson.M {
	f := bson.M{}
	if q.OwnerID != "" {
		f["owner_id"] = q.OwnerID
	}
	if q.Location != "" {
		f["location"] = bson.M{"$regex": regexp.QuoteMeta(q.Location), "$options": "i"}
	}
	if q.From != nil {
		f["date_from"] = bson.M{"$lte": *q.From}
	}
	// To and EndAfter both bound date_to from below; the later one wins.
	var toMin *time.Time
	for _, t := range []*time.Time{q.To, q.EndAfter} {
		if t != nil && (toMin == nil || t.After(*toMin)) {
			toMin = t
		}
	}
	if toMin != nil {
		f["date_to"] = bson.M{"$gte": *toMin}
	}
	if q.Bed > 0 {
		f["bed"] = bson.M{"$gte": q.Bed}
	}
	if q.Missing {
		f["$or"] = bson.A{bson.M{"lat": nil}, bson.M{"lon": nil}}
	}
	return f
}

// ---------- images ----------

func (s *Store) PutImage(ctx context.Context, hotelID string, img domain.HotelImage) error {
	_, err := s.db.Collection(colImages).ReplaceOne(ctx,
		bson.M{"_id": hotelID},
		imageDoc{HotelID: hotelID, ContentType: img.ContentType, Data: img.Data},
		options.Replace().SetUpsert(true))
	return err
}

func (s *Store) GetImage(ctx context.Context, hotelID string) (domain.HotelImage, error) {
	var d imageDoc
	err := s.db.Collection(colImages).FindOne(ctx, bson.M{"_id": hotelID}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.HotelImage{}, fmt.Errorf("image %s: %w", hotelID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.HotelImage{}, err
	}
	return domain.HotelImage{ContentType: d.ContentType, Data: d.Data}, nil
}

func (s *Store) DeleteImage(ctx context.Context, hotelID string) error {
	res, err := s.db.Collection(colImages).DeleteOne(ctx, bson.M{"_id": hotelID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("image %s: %w", hotelID, domain.ErrNotFound)
	}
	return nil
}

// ---------- orders ----------

func (s *Store) CreateOrder(ctx context.Context, o domain.Order) error {
	_, err := s.db.Collection(colOrders).InsertOne(ctx, orderDoc{
		ID: o.ID, HotelID: o.HotelID, UserID: o.UserID,
		SessionID: o.Session.ID, Session: toSessionDoc(o.Session), CreatedAt: o.CreatedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("order for session %s: %w", o.Session.ID, domain.ErrConflict)
	}
	return err
}

func (s *Store) GetOrderBySession(ctx context.Context, sessionID string) (domain.Order, error) {
	var d orderDoc
	err := s.db.Collection(colOrders).FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Order{}, fmt.Errorf("order for session %s: %w", sessionID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Order{}, err
	}
	return d.toDomain(), nil
}

func (s *Store) ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := s.db.Collection(colOrders).Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []domain.Order
	for cur.Next(ctx) {
		var d orderDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, d.toDomain())
	}
	return out, cur.Err()
}

func (s *Store) HasOrder(ctx context.Context, userID, hotelID string) (bool, error) {
	err := s.db.Collection(colOrders).
		FindOne(ctx, bson.M{"user_id": userID, "hotel_id": hotelID}, options.FindOne().SetProjection(bson.M{"_id": 1})).
		Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	return err == nil, err
}

func (d orderDoc) toDomain() domain.Order {
	return domain.Order{
		ID: d.ID, HotelID: d.HotelID, UserID: d.UserID,
		Session: d.Session.toDomain(), CreatedAt: d.CreatedAt.UTC(),
	}
}
