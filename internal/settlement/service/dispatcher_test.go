package service_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/obrapay/internal/clock"
	"github.com/smallbiznis/obrapay/internal/config"
	"github.com/smallbiznis/obrapay/internal/events"
	"github.com/smallbiznis/obrapay/internal/settlement/domain"
	"github.com/smallbiznis/obrapay/internal/settlement/repository"
	"github.com/smallbiznis/obrapay/internal/settlement/service"
	"github.com/smallbiznis/obrapay/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db         *gorm.DB
	repo       domain.Repository
	node       *snowflake.Node
	publisher  *events.RecordingPublisher
	dispatcher domain.Dispatcher
}

func newFixture(t *testing.T, cfg config.SettlementConfig) *fixture {
	t.Helper()

	db := testutil.NewDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	repo := repository.Provide()
	pub := &events.RecordingPublisher{}

	dispatcher := service.NewService(service.Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Repo:      repo,
		Clock:     clock.NewFakeClock(now),
		Config:    config.NewStaticSettlementConfigHolder(cfg),
		Publisher: pub,
	})

	require.NoError(t, db.Exec(
		`INSERT INTO organizations (id, name, extra_seats, created_at, updated_at) VALUES (10, 'acme', 0, ?, ?)`,
		now, now,
	).Error)

	return &fixture{db: db, repo: repo, node: node, publisher: pub, dispatcher: dispatcher}
}

func (f *fixture) seedActiveSubscription(t *testing.T, plan string, end time.Time) {
	t.Helper()
	start := end.AddDate(0, -1, 0)
	require.NoError(t, f.repo.InsertSubscription(context.Background(), f.db, &domain.Subscription{
		ID:                 f.node.Generate(),
		OrganizationID:     "10",
		PlanID:             plan,
		Status:             domain.SubscriptionActive,
		BillingPeriod:      domain.BillingMonthly,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   end,
		Metadata:           datatypes.JSON(`{}`),
		CreatedAt:          start,
		UpdatedAt:          start,
	}))
}

func (f *fixture) activeSubscription(t *testing.T) domain.Subscription {
	t.Helper()
	var active []domain.Subscription
	require.NoError(t, f.db.Raw(
		`SELECT * FROM subscriptions WHERE organization_id = ? AND status = ?`,
		"10", domain.SubscriptionActive,
	).Scan(&active).Error)
	require.Len(t, active, 1)
	return active[0]
}

func stepNames(report domain.Report) []string {
	out := make([]string, 0, len(report.Steps))
	for _, s := range report.Steps {
		out = append(out, s.Step)
	}
	return out
}

func TestDispatchCourseActivatesEnrollmentAndRedeemsCoupon(t *testing.T) {
	f := newFixture(t, config.DefaultSettlementConfig())
	require.NoError(t, f.db.Exec(`INSERT INTO coupons (code, redeemed_count) VALUES ('WELCOME', 0)`).Error)

	report := f.dispatcher.Dispatch(context.Background(), domain.Request{
		ProductType: domain.ProductCourse,
		PaymentID:   "pay_1",
		UserID:      "u1",
		CourseID:    "c1",
		CouponCode:  "WELCOME",
	})

	assert.False(t, report.Failed(), report.FailedSteps())
	assert.Equal(t, []string{domain.StepActivateEnrollment, domain.StepRedeemCoupon}, stepNames(report))
	testutil.AssertCount(t, f.db, "SELECT COUNT(1) FROM enrollments WHERE user_id = 'u1' AND course_id = 'c1' AND status = 'ACTIVE'", 1)
	testutil.AssertCount(t, f.db, "SELECT redeemed_count FROM coupons WHERE code = 'WELCOME'", 1)
}

func TestDispatchCourseWithoutCouponSkipsRedemption(t *testing.T) {
	f := newFixture(t, config.DefaultSettlementConfig())

	report := f.dispatcher.Dispatch(context.Background(), domain.Request{
		ProductType: domain.ProductCourse,
		PaymentID:   "pay_1",
		UserID:      "u1",
		CourseID:    "c1",
	})

	assert.Equal(t, []string{domain.StepActivateEnrollment}, stepNames(report))
	testutil.AssertCount(t, f.db, "SELECT COUNT(1) FROM coupon_redemptions", 0)
}

func TestDispatchAnnualSubscriptionGrantsFoundersBonusOnce(t *testing.T) {
	f := newFixture(t, config.DefaultSettlementConfig())
	f.seedActiveSubscription(t, "starter", now.AddDate(0, 0, 5))

	req := domain.Request{
		ProductType:    domain.ProductSubscription,
		PaymentID:      "pay_annual",
		UserID:         "u1",
		OrganizationID: "10",
		PlanID:         "pro",
		BillingPeriod:  domain.BillingAnnual,
	}
	report := f.dispatcher.Dispatch(context.Background(), req)

	require.False(t, report.Failed(), report.FailedSteps())
	assert.Equal(t, []string{
		domain.StepExpireSubscription,
		domain.StepCreateSubscription,
		domain.StepSetPlan,
		domain.StepFoundersBonus,
	}, stepNames(report))

	active := f.activeSubscription(t)
	assert.Equal(t, "pro", active.PlanID)
	assert.Equal(t, "pay_annual", active.PaymentID)
	assert.True(t, active.CurrentPeriodEnd.Equal(now.AddDate(0, 15, 0)), "period end %s", active.CurrentPeriodEnd)
	testutil.AssertCount(t, f.db, "SELECT COUNT(1) FROM organizations WHERE current_plan_id = 'pro'", 1)
	testutil.AssertCount(t, f.db, "SELECT COUNT(1) FROM founders_bonuses WHERE organization_id = '10'", 1)

	req.PaymentID = "pay_annual_2"
	report = f.dispatcher.Dispatch(context.Background(), req)
	require.False(t, report.Failed(), report.FailedSteps())

	active = f.activeSubscription(t)
	assert.True(t, active.CurrentPeriodEnd.Equal(now.AddDate(0, 12, 0)), "period end %s", active.CurrentPeriodEnd)
	testutil.AssertCount(t, f.db, "SELECT COUNT(1) FROM founders_bonuses", 1)
}

func TestDispatchMonthlySubscriptionHasNoFoundersBonus(t *testing.T) {
	f := newFixture(t, config.DefaultSettlementConfig())

	report := f.dispatcher.Dispatch(context.Background(), domain.Request{
		ProductType:    domain.ProductSubscription,
		PaymentID:      "pay_monthly",
		OrganizationID: "10",
		PlanID:         "starter",
	})

	require.False(t, report.Failed(), report.FailedSteps())
	assert.NotContains(t, stepNames(report), domain.StepFoundersBonus)
	active := f.activeSubscription(t)
	assert.Equal(t, domain.BillingMonthly, active.BillingPeriod)
	assert.True(t, active.CurrentPeriodEnd.Equal(now.AddDate(0, 1, 0)))
	testutil.AssertCount(t, f.db, "SELECT COUNT(1) FROM founders_bonuses", 0)
}

func TestDispatchAnnualSubscriptionWithFoundersProgramDisabled(t *testing.T) {
	cfg := config.DefaultSettlementConfig()
	cfg.FoundersProgram.Enabled = false
	f := newFixture(t, cfg)

	report := f.dispatcher.Dispatch(context.Background(), domain.Request{
		ProductType:    domain.ProductSubscription,
		PaymentID:      "pay_annual",
		OrganizationID: "10",
		PlanID:         "pro",
		BillingPeriod:  domain.BillingAnnual,
	})

	require.False(t, report.Failed())
	assert.NotContains(t, stepNames(report), domain.StepFoundersBonus)
	testutil.AssertCount(t, f.db, "SELECT COUNT(1) FROM founders_bonuses", 0)
}

func TestDispatchFailedStepDoesNotStopLaterSteps(t *testing.T) {
	f := newFixture(t, config.DefaultSettlementConfig())
	f.seedActiveSubscription(t, "starter", now.AddDate(0, 0, 5))

	report := f.dispatcher.Dispatch(context.Background(), domain.Request{
		ProductType:    domain.ProductSubscription,
		PaymentID:      "pay_no_plan",
		OrganizationID: "10",
		BillingPeriod:  domain.BillingAnnual,
	})

	require.Len(t, report.Steps, 4)
	assert.True(t, report.Steps[0].OK(), "expire should still run")
	assert.ErrorIs(t, report.Steps[1].Err, domain.ErrInvalidRequest)
	assert.ErrorIs(t, report.Steps[2].Err, domain.ErrInvalidRequest)
	assert.ErrorIs(t, report.Steps[3].Err, domain.ErrNoSubscriptionCreated)
	assert.Equal(t, []string{
		domain.StepCreateSubscription,
		domain.StepSetPlan,
		domain.StepFoundersBonus,
	}, report.FailedSteps())

	testutil.AssertCount(t, f.db, "SELECT COUNT(1) FROM subscriptions WHERE status = 'ACTIVE'", 0)
}

func TestDispatchUpgradeKeepsRemainingPeriod(t *testing.T) {
	f := newFixture(t, config.DefaultSettlementConfig())
	remainingEnd := now.AddDate(0, 0, 20)
	f.seedActiveSubscription(t, "starter", remainingEnd)

	credit, charge := 12.5, 30.0
	report := f.dispatcher.Dispatch(context.Background(), domain.Request{
		ProductType:     domain.ProductUpgrade,
		PaymentID:       "pay_upgrade",
		OrganizationID:  "10",
		PlanID:          "business",
		ProrationCredit: &credit,
		ProrationCharge: &charge,
	})

	require.False(t, report.Failed(), report.FailedSteps())
	assert.Equal(t, []string{
		domain.StepExpireSubscription,
		domain.StepCreateSubscription,
		domain.StepSetPlan,
	}, stepNames(report))

	active := f.activeSubscription(t)
	assert.Equal(t, "business", active.PlanID)
	assert.True(t, active.CurrentPeriodEnd.Equal(remainingEnd), "period end %s", active.CurrentPeriodEnd)

	var meta map[string]any
	require.NoError(t, json.Unmarshal(active.Metadata, &meta))
	assert.Equal(t, "starter", meta["upgraded_from_plan_id"])
	assert.Equal(t, 12.5, meta["proration_credit"])
	assert.Equal(t, 30.0, meta["proration_charge"])
}

func TestDispatchSeatsIsIdempotentPerPayment(t *testing.T) {
	f := newFixture(t, config.DefaultSettlementConfig())
	req := domain.Request{
		ProductType:    domain.ProductSeats,
		PaymentID:      "pay_seats",
		OrganizationID: "10",
		SeatsQuantity:  4,
	}

	for i := 0; i < 2; i++ {
		report := f.dispatcher.Dispatch(context.Background(), req)
		require.False(t, report.Failed(), report.FailedSteps())
	}

	testutil.AssertCount(t, f.db, "SELECT extra_seats FROM organizations WHERE id = 10", 4)
}

func TestDispatchSeatsRejectsZeroQuantity(t *testing.T) {
	f := newFixture(t, config.DefaultSettlementConfig())

	report := f.dispatcher.Dispatch(context.Background(), domain.Request{
		ProductType:    domain.ProductSeats,
		PaymentID:      "pay_seats",
		OrganizationID: "10",
	})

	require.Len(t, report.Steps, 1)
	assert.ErrorIs(t, report.Steps[0].Err, domain.ErrInvalidRequest)
	testutil.AssertCount(t, f.db, "SELECT COUNT(1) FROM seat_grants", 0)
}

func TestDispatchPublishesCompletedEvent(t *testing.T) {
	f := newFixture(t, config.DefaultSettlementConfig())

	f.dispatcher.Dispatch(context.Background(), domain.Request{
		ProductType: domain.ProductCourse,
		PaymentID:   "pay_1",
		UserID:      "u1",
		CourseID:    "c1",
	})

	published := f.publisher.Published()
	require.Len(t, published, 1)
	assert.Equal(t, events.TypeSettlementCompleted, published[0].Type)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(published[0].Payload, &payload))
	assert.Equal(t, "pay_1", payload["payment_id"])
	assert.Equal(t, "course", payload["product_type"])
}

func TestDispatchRejectsMissingPaymentID(t *testing.T) {
	f := newFixture(t, config.DefaultSettlementConfig())

	report := f.dispatcher.Dispatch(context.Background(), domain.Request{
		ProductType: domain.ProductCourse,
		UserID:      "u1",
		CourseID:    "c1",
	})

	require.True(t, report.Failed())
	assert.ErrorIs(t, report.Steps[0].Err, domain.ErrInvalidRequest)
	testutil.AssertCount(t, f.db, "SELECT COUNT(1) FROM enrollments", 0)
	assert.Empty(t, f.publisher.Published())
}
