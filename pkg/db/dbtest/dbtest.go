// Package dbtest opens isolated sqlite databases carrying the fueldrop schema
// for repository and service tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/fueldrop-backend/pkg/db"
)

var schema = []string{
	`CREATE TABLE orders (
		id TEXT PRIMARY KEY,
		order_number TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL DEFAULT 'pending',
		customer_id TEXT NOT NULL,
		station_id TEXT NOT NULL,
		driver_id TEXT,
		fuel_type TEXT NOT NULL,
		quantity_litres NUMERIC NOT NULL,
		unit_price_cents INTEGER NOT NULL,
		pricing_fuel_subtotal_cents INTEGER NOT NULL,
		pricing_store_subtotal_cents INTEGER NOT NULL,
		pricing_subtotal_cents INTEGER NOT NULL,
		pricing_vat_rate NUMERIC NOT NULL,
		pricing_vat_cents INTEGER NOT NULL,
		pricing_load_shedding_stage INTEGER NOT NULL,
		pricing_load_shedding_surcharge_cents INTEGER NOT NULL,
		pricing_area_type TEXT NOT NULL,
		pricing_area_surcharge_cents INTEGER NOT NULL,
		pricing_distance_km NUMERIC NOT NULL,
		pricing_delivery_fee_cents INTEGER NOT NULL,
		pricing_total_cents INTEGER NOT NULL,
		pricing_minimum_order_applied BOOLEAN NOT NULL,
		delivery_street TEXT NOT NULL,
		delivery_suburb TEXT NOT NULL,
		delivery_city TEXT NOT NULL,
		delivery_lat REAL NOT NULL,
		delivery_lon REAL NOT NULL,
		payment_method TEXT NOT NULL,
		payment_provider TEXT,
		payment_status TEXT NOT NULL DEFAULT 'unpaid',
		payment_transaction_id TEXT,
		paid_amount_cents INTEGER NOT NULL DEFAULT 0,
		paid_at DATETIME,
		notes TEXT,
		confirmed_at DATETIME,
		delivered_at DATETIME,
		cancelled_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE order_store_items (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(id),
		name TEXT NOT NULL,
		unit_price_cents INTEGER NOT NULL,
		quantity INTEGER NOT NULL
	)`,
	`CREATE TABLE order_status_events (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(id),
		status TEXT NOT NULL,
		actor_role TEXT NOT NULL,
		actor_id TEXT,
		note TEXT,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE order_location_samples (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(id),
		driver_id TEXT NOT NULL,
		lat REAL NOT NULL,
		lon REAL NOT NULL,
		recorded_at DATETIME NOT NULL
	)`,
	`CREATE TABLE wallets (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL UNIQUE,
		owner_role TEXT NOT NULL,
		balance_cents INTEGER NOT NULL DEFAULT 0 CHECK (balance_cents >= 0),
		currency TEXT NOT NULL DEFAULT 'ZAR',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE wallet_transactions (
		id TEXT PRIMARY KEY,
		wallet_id TEXT NOT NULL REFERENCES wallets(id),
		type TEXT NOT NULL,
		amount_cents INTEGER NOT NULL,
		order_id TEXT,
		status TEXT NOT NULL,
		reason TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_wallet_transactions_once
		ON wallet_transactions (wallet_id, order_id, type)
		WHERE type IN ('driver_earning', 'station_earning', 'refund')`,
	`CREATE TABLE stations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		suburb TEXT NOT NULL,
		city TEXT NOT NULL,
		lat REAL NOT NULL,
		lon REAL NOT NULL,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE station_fuel_stock (
		station_id TEXT NOT NULL REFERENCES stations(id),
		fuel_type TEXT NOT NULL,
		price_cents INTEGER NOT NULL,
		available_litres NUMERIC NOT NULL CHECK (available_litres >= 0),
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (station_id, fuel_type)
	)`,
	`CREATE TABLE drivers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT NOT NULL,
		vehicle TEXT NOT NULL,
		rating REAL NOT NULL DEFAULT 5,
		service_areas TEXT,
		available BOOLEAN NOT NULL DEFAULT 0,
		lat REAL,
		lon REAL,
		last_seen_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
}

// Open returns a private in-memory database with the full schema applied.
// The pool is pinned to one connection so concurrent tests serialise on it
// instead of failing with table locks.
func Open(t *testing.T) *db.Client {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", name)
	conn, err := gorm.Open(sqlite.Open(dsn), db.GormConfig())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v\n%s", err, stmt)
		}
	}
	return db.Wrap(conn)
}
