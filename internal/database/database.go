package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database is the owner directory: the off-chain table mapping a UserPosition
// address to the wallet that owns it. The on-chain account doesn't carry the
// owner, so auto-claims can't be built without this lookup.
type Database struct {
	db *gorm.DB
}

// Models

type PositionOwner struct {
	PositionAddress string `gorm:"primaryKey"`
	OwnerAddress    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ErrOwnerNotFound is returned when no directory row exists for a position.
var ErrOwnerNotFound = errors.New("no owner row for position")

func New(dsn string) (*Database, error) {
	var db *gorm.DB
	var err error

	// Check if this is a PostgreSQL connection string
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("Database connected (PostgreSQL)")
	} else {
		// SQLite fallback
		dir := filepath.Dir(dsn)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		db, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dsn).Msg("Database initialized (SQLite)")
	}

	if err := db.AutoMigrate(&PositionOwner{}); err != nil {
		return nil, err
	}

	return &Database{db: db}, nil
}

// LookupOwner resolves a position address to its owner wallet. Fails with
// ErrOwnerNotFound when the directory has no row for the address.
func (d *Database) LookupOwner(ctx context.Context, position solana.PublicKey) (solana.PublicKey, error) {
	var row PositionOwner
	err := d.db.WithContext(ctx).First(&row, "position_address = ?", position.String()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return solana.PublicKey{}, fmt.Errorf("%w: %s", ErrOwnerNotFound, position)
	}
	if err != nil {
		return solana.PublicKey{}, err
	}
	owner, err := solana.PublicKeyFromBase58(row.OwnerAddress)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("corrupt owner row for %s: %w", position, err)
	}
	return owner, nil
}

// SaveOwner upserts a directory row. Used by the backfill tooling and tests;
// the sentinel itself only reads.
func (d *Database) SaveOwner(ctx context.Context, position, owner solana.PublicKey) error {
	return d.db.WithContext(ctx).Save(&PositionOwner{
		PositionAddress: position.String(),
		OwnerAddress:    owner.String(),
	}).Error
}

// CountOwners returns the number of directory rows.
func (d *Database) CountOwners(ctx context.Context) (int64, error) {
	var count int64
	err := d.db.WithContext(ctx).Model(&PositionOwner{}).Count(&count).Error
	return count, err
}
