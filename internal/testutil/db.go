package testutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// sqliteSchema mirrors migrations/000001_init.up.sql with sqlite column types.
var sqliteSchema = []string{
	`CREATE TABLE organizations (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		current_plan_id TEXT,
		extra_seats INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP,
		updated_at TIMESTAMP
	)`,
	`CREATE TABLE feature_flags (
		key TEXT PRIMARY KEY,
		enabled BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TIMESTAMP
	)`,
	`CREATE TABLE payment_events (
		id BIGINT PRIMARY KEY,
		provider TEXT NOT NULL,
		provider_event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		order_id TEXT,
		format TEXT NOT NULL,
		environment TEXT NOT NULL,
		raw_headers TEXT,
		raw_query TEXT,
		raw_payload TEXT,
		status TEXT NOT NULL,
		received_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE payments (
		id BIGINT PRIMARY KEY,
		provider TEXT NOT NULL,
		provider_payment_id TEXT NOT NULL,
		user_id TEXT,
		organization_id TEXT,
		product_type TEXT NOT NULL,
		amount REAL NOT NULL DEFAULT 0,
		currency_code TEXT NOT NULL,
		status TEXT NOT NULL,
		environment TEXT NOT NULL,
		metadata TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_payments_provider_payment ON payments (provider, provider_payment_id)`,
	`CREATE TABLE subscriptions (
		id BIGINT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		user_id TEXT,
		plan_id TEXT NOT NULL,
		payment_id TEXT,
		status TEXT NOT NULL,
		billing_period TEXT NOT NULL,
		current_period_start TIMESTAMP NOT NULL,
		current_period_end TIMESTAMP NOT NULL,
		expired_at TIMESTAMP,
		metadata TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE enrollments (
		id BIGINT PRIMARY KEY,
		user_id TEXT NOT NULL,
		course_id TEXT NOT NULL,
		payment_id TEXT,
		status TEXT NOT NULL,
		activated_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_enrollments_user_course ON enrollments (user_id, course_id)`,
	`CREATE TABLE coupons (
		code TEXT PRIMARY KEY,
		redeemed_count INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMP
	)`,
	`CREATE TABLE coupon_redemptions (
		id BIGINT PRIMARY KEY,
		coupon_code TEXT NOT NULL,
		user_id TEXT NOT NULL,
		payment_id TEXT NOT NULL,
		redeemed_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_coupon_redemptions_payment ON coupon_redemptions (coupon_code, payment_id)`,
	`CREATE TABLE seat_grants (
		id BIGINT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		payment_id TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		granted_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_seat_grants_payment ON seat_grants (payment_id)`,
	`CREATE TABLE founders_bonuses (
		id BIGINT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		subscription_id BIGINT NOT NULL,
		bonus_months INTEGER NOT NULL,
		granted_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_founders_bonuses_org ON founders_bonuses (organization_id)`,
	`CREATE TABLE currencies (
		id BIGINT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		code TEXT NOT NULL,
		symbol TEXT NOT NULL DEFAULT '',
		is_default BOOLEAN NOT NULL DEFAULT FALSE,
		is_secondary BOOLEAN NOT NULL DEFAULT FALSE,
		exchange_rate REAL NOT NULL DEFAULT 1,
		updated_at TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX ux_currencies_org_code ON currencies (organization_id, code)`,
	`CREATE TABLE financial_records (
		id BIGINT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		project_id TEXT,
		category TEXT NOT NULL DEFAULT '',
		description TEXT,
		amount REAL NOT NULL,
		currency_code TEXT NOT NULL,
		exchange_rate REAL,
		functional_amount REAL,
		occurred_at TIMESTAMP NOT NULL
	)`,
}

// NewDB opens a private in-memory sqlite database with the full schema applied.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range sqliteSchema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("schema exec failed: %v", err)
		}
	}
	return db
}

func AssertCount(t *testing.T, db *gorm.DB, query string, expected int64, args ...any) {
	t.Helper()

	var count int64
	if err := db.Raw(query, args...).Scan(&count).Error; err != nil {
		t.Fatalf("query count: %v", err)
	}
	if count != expected {
		t.Fatalf("expected %d, got %d for %q", expected, count, query)
	}
}
