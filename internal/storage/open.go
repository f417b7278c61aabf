// Package storage selects the repository backend from configuration.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"

	"staybook/internal/adapters/objectstore"
	"staybook/internal/domain"
	"staybook/internal/shared"
	"staybook/internal/storage/memory"
	"staybook/internal/storage/mongodb"
	mysqlrepo "staybook/internal/storage/mysql"
)

// Stores bundles the repositories of one backend. Close releases it.
type Stores struct {
	Users  domain.UserRepository
	Hotels domain.HotelRepository
	Orders domain.OrderRepository
	Images domain.ImageStore

	// Set for the matching driver only; used by migrations.
	MySQL *sql.DB
	Mongo *mongodb.Store

	Close func(context.Context) error
}

func Open(ctx context.Context, cfg shared.Config) (Stores, error) {
	var st Stores
	switch cfg.StoreDriver {
	case "memory":
		m := memory.New()
		st = Stores{Users: m, Hotels: m, Orders: m, Images: m, Close: func(context.Context) error { return nil }}
	case "mysql":
		db, err := mysqlrepo.Open(ctx, cfg.MySQLDSN)
		if err != nil {
			return Stores{}, err
		}
		r := mysqlrepo.New(db)
		st = Stores{Users: r, Hotels: r, Orders: r, Images: r, MySQL: db,
			Close: func(context.Context) error { return db.Close() }}
	case "mongo":
		m, err := mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return Stores{}, err
		}
		st = Stores{Users: m, Hotels: m, Orders: m, Images: m, Mongo: m, Close: m.Close}
	default:
		return Stores{}, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	switch cfg.ImageStore {
	case "", "db":
	case "minio":
		imgs, err := objectstore.New(ctx, cfg.MinIO)
		if err != nil {
			_ = st.Close(ctx)
			return Stores{}, err
		}
		st.Images = imgs
	default:
		_ = st.Close(ctx)
		return Stores{}, fmt.Errorf("unknown IMAGE_STORE %q", cfg.ImageStore)
	}

	log.Info().Str("driver", cfg.StoreDriver).Str("images", cfg.ImageStore).Msg("storage ready")
	return st, nil
}

// Migrate prepares the schema of the selected backend.
func (s Stores) Migrate(ctx context.Context) error {
	switch {
	case s.MySQL != nil:
		_, err := mysqlrepo.Migrate(ctx, s.MySQL)
		return err
	case s.Mongo != nil:
		return s.Mongo.EnsureIndexes(ctx)
	}
	return nil
}
