package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// ExpireActiveSubscriptions expires every ACTIVE subscription of the organization
	// and returns the most recent one, or nil when there was none.
	ExpireActiveSubscriptions(ctx context.Context, db *gorm.DB, orgID string, at time.Time) (*Subscription, error)
	InsertSubscription(ctx context.Context, db *gorm.DB, sub *Subscription) error
	ExtendSubscription(ctx context.Context, db *gorm.DB, id snowflake.ID, periodEnd, at time.Time) error
	SetOrganizationPlan(ctx context.Context, db *gorm.DB, orgID, planID string, at time.Time) error
	UpsertEnrollment(ctx context.Context, db *gorm.DB, enrollment *Enrollment) error
	RedeemCoupon(ctx context.Context, db *gorm.DB, redemption *CouponRedemption) (bool, error)
	GrantSeats(ctx context.Context, db *gorm.DB, grant *SeatGrant) (bool, error)
	InsertFoundersBonus(ctx context.Context, db *gorm.DB, bonus *FoundersBonus) (bool, error)
}

// Dispatcher applies the entitlement side effects of an approved payment.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) Report
}
