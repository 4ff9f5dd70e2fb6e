package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/obrapay/internal/settlement/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const subscriptionColumns = `id, organization_id, user_id, plan_id, payment_id, status, billing_period,
	current_period_start, current_period_end, expired_at, metadata, created_at, updated_at`

func (r *repo) ExpireActiveSubscriptions(ctx context.Context, db *gorm.DB, orgID string, at time.Time) (*domain.Subscription, error) {
	var latest domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE organization_id = ? AND status = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		orgID,
		domain.SubscriptionActive,
	).Scan(&latest).Error
	if err != nil {
		return nil, err
	}
	if latest.ID == 0 {
		return nil, nil
	}

	err = db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, expired_at = ?, updated_at = ?
		 WHERE organization_id = ? AND status = ?`,
		domain.SubscriptionExpired,
		at,
		at,
		orgID,
		domain.SubscriptionActive,
	).Error
	if err != nil {
		return nil, err
	}
	latest.Status = domain.SubscriptionExpired
	latest.ExpiredAt = &at
	return &latest, nil
}

func (r *repo) InsertSubscription(ctx context.Context, db *gorm.DB, sub *domain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (`+subscriptionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID,
		sub.OrganizationID,
		sub.UserID,
		sub.PlanID,
		sub.PaymentID,
		sub.Status,
		sub.BillingPeriod,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.ExpiredAt,
		sub.Metadata,
		sub.CreatedAt,
		sub.UpdatedAt,
	).Error
}

func (r *repo) ExtendSubscription(ctx context.Context, db *gorm.DB, id snowflake.ID, periodEnd, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET current_period_end = ?, updated_at = ? WHERE id = ?`,
		periodEnd,
		at,
		id,
	).Error
}

func (r *repo) SetOrganizationPlan(ctx context.Context, db *gorm.DB, orgID, planID string, at time.Time) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE organizations SET current_plan_id = ?, updated_at = ? WHERE id = ?`,
		planID,
		at,
		orgID,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrOrganizationNotFound
	}
	return nil
}

func (r *repo) UpsertEnrollment(ctx context.Context, db *gorm.DB, enrollment *domain.Enrollment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO enrollments (id, user_id, course_id, payment_id, status, activated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, course_id) DO UPDATE
		 SET status = excluded.status,
			payment_id = excluded.payment_id,
			activated_at = excluded.activated_at`,
		enrollment.ID,
		enrollment.UserID,
		enrollment.CourseID,
		enrollment.PaymentID,
		enrollment.Status,
		enrollment.ActivatedAt,
	).Error
}

func (r *repo) RedeemCoupon(ctx context.Context, db *gorm.DB, redemption *domain.CouponRedemption) (bool, error) {
	inserted := false
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Exec(
			`INSERT INTO coupon_redemptions (id, coupon_code, user_id, payment_id, redeemed_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (coupon_code, payment_id) DO NOTHING`,
			redemption.ID,
			redemption.CouponCode,
			redemption.UserID,
			redemption.PaymentID,
			redemption.RedeemedAt,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		res = tx.Exec(
			`UPDATE coupons SET redeemed_count = redeemed_count + 1, updated_at = ? WHERE code = ?`,
			redemption.RedeemedAt,
			redemption.CouponCode,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrCouponNotFound
		}
		inserted = true
		return nil
	})
	return inserted, err
}

func (r *repo) GrantSeats(ctx context.Context, db *gorm.DB, grant *domain.SeatGrant) (bool, error) {
	inserted := false
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Exec(
			`INSERT INTO seat_grants (id, organization_id, payment_id, quantity, granted_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (payment_id) DO NOTHING`,
			grant.ID,
			grant.OrganizationID,
			grant.PaymentID,
			grant.Quantity,
			grant.GrantedAt,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		res = tx.Exec(
			`UPDATE organizations SET extra_seats = extra_seats + ?, updated_at = ? WHERE id = ?`,
			grant.Quantity,
			grant.GrantedAt,
			grant.OrganizationID,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrOrganizationNotFound
		}
		inserted = true
		return nil
	})
	return inserted, err
}

func (r *repo) InsertFoundersBonus(ctx context.Context, db *gorm.DB, bonus *domain.FoundersBonus) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO founders_bonuses (id, organization_id, subscription_id, bonus_months, granted_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (organization_id) DO NOTHING`,
		bonus.ID,
		bonus.OrganizationID,
		bonus.SubscriptionID,
		bonus.BonusMonths,
		bonus.GrantedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
