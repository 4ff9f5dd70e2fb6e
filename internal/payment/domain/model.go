package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const ProviderMercadoPago = "mercadopago"

// Environment selects which provider credentials a delivery is resolved with.
type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentSandbox    Environment = "sandbox"
)

func (e Environment) IsSandbox() bool { return e == EnvironmentSandbox }

// EventFormat is the notification shape a provider delivered.
type EventFormat string

const (
	FormatIPN     EventFormat = "ipn"
	FormatV2      EventFormat = "v2"
	FormatUnknown EventFormat = "unknown"
)

const EventStatusReceived = "RECEIVED"

// EventRecord is an append-only audit row for every classified payment notification.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	OrderID         string         `json:"order_id" gorm:"type:text"`
	Format          EventFormat    `json:"format" gorm:"type:text;not null"`
	Environment     Environment    `json:"environment" gorm:"type:text;not null"`
	RawHeaders      datatypes.JSON `json:"raw_headers" gorm:"type:jsonb"`
	RawQuery        datatypes.JSON `json:"raw_query" gorm:"type:jsonb"`
	RawPayload      datatypes.JSON `json:"raw_payload" gorm:"type:jsonb"`
	Status          string         `json:"status" gorm:"type:text;not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
}

func (EventRecord) TableName() string { return "payment_events" }

// Payment is created once per provider payment; its unique key is the idempotency gate.
type Payment struct {
	ID                snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider          string         `json:"provider"`
	ProviderPaymentID string         `json:"provider_payment_id"`
	UserID            string         `json:"user_id"`
	OrganizationID    string         `json:"organization_id"`
	ProductType       string         `json:"product_type"`
	Amount            float64        `json:"amount"`
	CurrencyCode      string         `json:"currency_code"`
	Status            string         `json:"status"`
	Environment       Environment    `json:"environment"`
	Metadata          datatypes.JSON `json:"metadata" gorm:"type:jsonb"`
	CreatedAt         time.Time      `json:"created_at"`
}

func (Payment) TableName() string { return "payments" }

type FeatureFlag struct {
	Key     string `gorm:"primaryKey"`
	Enabled bool
}

func (FeatureFlag) TableName() string { return "feature_flags" }

const FlagPaymentsSandbox = "payments_sandbox"

const StatusApproved = "approved"

// Metadata keys carried on a provider payment.
const (
	MetaProductType     = "product_type"
	MetaUserID          = "user_id"
	MetaOrganizationID  = "organization_id"
	MetaPlanID          = "plan_id"
	MetaCourseID        = "course_id"
	MetaBillingPeriod   = "billing_period"
	MetaSeatsQuantity   = "seats_quantity"
	MetaCouponCode      = "coupon_code"
	MetaProrationCredit = "proration_credit"
	MetaProrationCharge = "proration_charge"
)

// PaymentStatus is the authoritative view of a payment fetched from the provider.
type PaymentStatus struct {
	ID           string
	Status       string
	Amount       float64
	CurrencyCode string
	Metadata     map[string]string
}

func (s PaymentStatus) IsApproved() bool {
	return strings.EqualFold(strings.TrimSpace(s.Status), StatusApproved)
}

func (s PaymentStatus) Meta(key string) string {
	if s.Metadata == nil {
		return ""
	}
	return strings.TrimSpace(s.Metadata[key])
}
