package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/obrapay/internal/settlement/domain"
	"github.com/smallbiznis/obrapay/internal/settlement/repository"
	"github.com/smallbiznis/obrapay/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func seedOrg(t *testing.T, db *gorm.DB, id string) {
	t.Helper()
	require.NoError(t, db.Exec(
		`INSERT INTO organizations (id, name, extra_seats, created_at, updated_at) VALUES (?, ?, 0, ?, ?)`,
		id, "org "+id, time.Now().UTC(), time.Now().UTC(),
	).Error)
}

func TestExpireActiveSubscriptionsReturnsLatest(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.Provide()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, plan := range []string{"starter", "pro"} {
		created := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, repo.InsertSubscription(ctx, db, &domain.Subscription{
			ID:                 node.Generate(),
			OrganizationID:     "10",
			PlanID:             plan,
			Status:             domain.SubscriptionActive,
			BillingPeriod:      domain.BillingMonthly,
			CurrentPeriodStart: created,
			CurrentPeriodEnd:   created.AddDate(0, 1, 0),
			Metadata:           datatypes.JSON(`{}`),
			CreatedAt:          created,
			UpdatedAt:          created,
		}))
	}

	at := base.AddDate(0, 0, 10)
	latest, err := repo.ExpireActiveSubscriptions(ctx, db, "10", at)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "pro", latest.PlanID)
	assert.Equal(t, domain.SubscriptionExpired, latest.Status)

	testutil.AssertCount(t, db, "SELECT COUNT(1) FROM subscriptions WHERE status = 'ACTIVE'", 0)
	testutil.AssertCount(t, db, "SELECT COUNT(1) FROM subscriptions WHERE status = 'EXPIRED'", 2)

	none, err := repo.ExpireActiveSubscriptions(ctx, db, "10", at)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestUpsertEnrollmentReactivates(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.Provide()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	ctx := context.Background()

	for _, paymentID := range []string{"p1", "p2"} {
		require.NoError(t, repo.UpsertEnrollment(ctx, db, &domain.Enrollment{
			ID:          node.Generate(),
			UserID:      "u1",
			CourseID:    "c1",
			PaymentID:   paymentID,
			Status:      domain.EnrollmentActive,
			ActivatedAt: time.Now().UTC(),
		}))
	}

	testutil.AssertCount(t, db, "SELECT COUNT(1) FROM enrollments", 1)
	testutil.AssertCount(t, db, "SELECT COUNT(1) FROM enrollments WHERE payment_id = 'p2'", 1)
}

func TestRedeemCouponOncePerPayment(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.Provide()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, db.Exec(`INSERT INTO coupons (code, redeemed_count) VALUES ('LAUNCH', 0)`).Error)

	redeem := func() (bool, error) {
		return repo.RedeemCoupon(ctx, db, &domain.CouponRedemption{
			ID:         node.Generate(),
			CouponCode: "LAUNCH",
			UserID:     "u1",
			PaymentID:  "p1",
			RedeemedAt: time.Now().UTC(),
		})
	}

	ok, err := redeem()
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = redeem()
	require.NoError(t, err)
	assert.False(t, ok)

	testutil.AssertCount(t, db, "SELECT redeemed_count FROM coupons WHERE code = 'LAUNCH'", 1)

	_, err = repo.RedeemCoupon(ctx, db, &domain.CouponRedemption{
		ID:         node.Generate(),
		CouponCode: "MISSING",
		UserID:     "u1",
		PaymentID:  "p1",
		RedeemedAt: time.Now().UTC(),
	})
	assert.ErrorIs(t, err, domain.ErrCouponNotFound)
	testutil.AssertCount(t, db, "SELECT COUNT(1) FROM coupon_redemptions WHERE coupon_code = 'MISSING'", 0)
}

func TestGrantSeatsIncrementsOrganization(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.Provide()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	ctx := context.Background()
	seedOrg(t, db, "10")

	grant := func(paymentID string, qty int) (bool, error) {
		return repo.GrantSeats(ctx, db, &domain.SeatGrant{
			ID:             node.Generate(),
			OrganizationID: "10",
			PaymentID:      paymentID,
			Quantity:       qty,
			GrantedAt:      time.Now().UTC(),
		})
	}

	ok, err := grant("p1", 3)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = grant("p1", 3)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = grant("p2", 2)
	require.NoError(t, err)
	assert.True(t, ok)

	testutil.AssertCount(t, db, "SELECT extra_seats FROM organizations WHERE id = 10", 5)
}

func TestSetOrganizationPlanUnknownOrg(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.Provide()
	ctx := context.Background()

	err := repo.SetOrganizationPlan(ctx, db, "404", "pro", time.Now().UTC())
	assert.ErrorIs(t, err, domain.ErrOrganizationNotFound)

	seedOrg(t, db, "10")
	require.NoError(t, repo.SetOrganizationPlan(ctx, db, "10", "pro", time.Now().UTC()))
	testutil.AssertCount(t, db, "SELECT COUNT(1) FROM organizations WHERE current_plan_id = 'pro'", 1)
}

func TestInsertFoundersBonusOncePerOrganization(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.Provide()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	ctx := context.Background()

	for i, want := range []bool{true, false} {
		ok, err := repo.InsertFoundersBonus(ctx, db, &domain.FoundersBonus{
			ID:             node.Generate(),
			OrganizationID: "10",
			SubscriptionID: node.Generate(),
			BonusMonths:    3,
			GrantedAt:      time.Now().UTC(),
		})
		require.NoError(t, err)
		assert.Equal(t, want, ok, "attempt %d", i)
	}
}
