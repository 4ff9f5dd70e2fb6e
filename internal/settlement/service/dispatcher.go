package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/obrapay/internal/clock"
	"github.com/smallbiznis/obrapay/internal/config"
	"github.com/smallbiznis/obrapay/internal/events"
	"github.com/smallbiznis/obrapay/internal/observability/logger"
	"github.com/smallbiznis/obrapay/internal/observability/metrics"
	"github.com/smallbiznis/obrapay/internal/settlement/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	outcomeOK      = "ok"
	outcomeFailed  = "failed"
	outcomeSkipped = "skipped"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      domain.Repository
	Clock     clock.Clock
	Config    *config.SettlementConfigHolder
	Publisher events.Publisher        `optional:"true"`
	Metrics   *metrics.Metrics        `optional:"true"`
	Webhook   *metrics.WebhookMetrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      domain.Repository
	clock     clock.Clock
	cfg       *config.SettlementConfigHolder
	publisher events.Publisher
	metrics   *metrics.Metrics
	webhook   *metrics.WebhookMetrics
	validate  *validator.Validate
	tracer    trace.Tracer
}

func NewService(p Params) domain.Dispatcher {
	publisher := p.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("settlement.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		clock:     p.Clock,
		cfg:       p.Config,
		publisher: publisher,
		metrics:   p.Metrics,
		webhook:   p.Webhook,
		validate:  validator.New(),
		tracer:    otel.Tracer("obrapay/settlement"),
	}
}

type enrollmentInput struct {
	UserID   string `validate:"required"`
	CourseID string `validate:"required"`
}

type couponInput struct {
	CouponCode string `validate:"required"`
	UserID     string `validate:"required"`
}

type organizationInput struct {
	OrganizationID string `validate:"required"`
}

type planInput struct {
	OrganizationID string `validate:"required"`
	PlanID         string `validate:"required"`
}

type seatsInput struct {
	OrganizationID string `validate:"required"`
	SeatsQuantity  int    `validate:"gt=0"`
}

type completedPayload struct {
	PaymentID      string              `json:"payment_id"`
	ProductType    string              `json:"product_type"`
	UserID         string              `json:"user_id,omitempty"`
	OrganizationID string              `json:"organization_id,omitempty"`
	Steps          []domain.StepResult `json:"steps"`
}

// Dispatch runs every step of the product branch in order. A failed step is
// logged and recorded; later steps still run and nothing is rolled back.
func (s *Service) Dispatch(ctx context.Context, req domain.Request) domain.Report {
	ctx, span := s.tracer.Start(ctx, "settlement.dispatch",
		trace.WithAttributes(attribute.String("product_type", req.ProductType.String())),
	)
	defer span.End()

	started := time.Now()
	log := logger.WithContext(ctx, s.log).With(
		zap.String("product_type", req.ProductType.String()),
		zap.String("payment_id", req.PaymentID),
	)

	report := domain.Report{ProductType: req.ProductType}
	if err := s.validate.Struct(req); err != nil {
		log.Warn("settlement request rejected", zap.Error(err))
		report.Record("validate_request", fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err))
		span.SetStatus(codes.Error, "invalid request")
		return report
	}

	switch req.ProductType {
	case domain.ProductCourse:
		s.settleCourse(ctx, log, req, &report)
	case domain.ProductSubscription:
		s.settleSubscription(ctx, log, req, &report)
	case domain.ProductUpgrade:
		s.settleUpgrade(ctx, log, req, &report)
	case domain.ProductSeats:
		s.settleSeats(ctx, log, req, &report)
	default:
		report.Record("dispatch", fmt.Errorf("%w: %d", domain.ErrUnknownProductType, req.ProductType))
	}

	for _, step := range report.Steps {
		outcome := outcomeOK
		switch {
		case step.Skipped:
			outcome = outcomeSkipped
		case step.Err != nil:
			outcome = outcomeFailed
		}
		s.metrics.RecordSettlementStep(ctx, req.ProductType.String(), step.Step, outcome)
	}
	s.webhook.ObserveSettlement(req.ProductType.String(), time.Since(started))

	if report.Failed() {
		span.SetStatus(codes.Error, "settlement steps failed")
		log.Warn("settlement finished with failures", zap.Strings("failed_steps", report.FailedSteps()))
	} else {
		log.Info("settlement finished", zap.Int("steps", len(report.Steps)))
	}

	s.publishCompleted(ctx, log, req, report)
	return report
}

func (s *Service) settleCourse(ctx context.Context, log *zap.Logger, req domain.Request, report *domain.Report) {
	s.run(log, report, domain.StepActivateEnrollment, func() error {
		if err := s.check(enrollmentInput{UserID: req.UserID, CourseID: req.CourseID}); err != nil {
			return err
		}
		return s.repo.UpsertEnrollment(ctx, s.db, &domain.Enrollment{
			ID:          s.genID.Generate(),
			UserID:      req.UserID,
			CourseID:    req.CourseID,
			PaymentID:   req.PaymentID,
			Status:      domain.EnrollmentActive,
			ActivatedAt: s.clock.Now(),
		})
	})

	if req.CouponCode == "" {
		return
	}
	s.run(log, report, domain.StepRedeemCoupon, func() error {
		if err := s.check(couponInput{CouponCode: req.CouponCode, UserID: req.UserID}); err != nil {
			return err
		}
		redeemed, err := s.repo.RedeemCoupon(ctx, s.db, &domain.CouponRedemption{
			ID:         s.genID.Generate(),
			CouponCode: req.CouponCode,
			UserID:     req.UserID,
			PaymentID:  req.PaymentID,
			RedeemedAt: s.clock.Now(),
		})
		if err == nil && !redeemed {
			log.Info("coupon already redeemed for payment", zap.String("coupon_code", req.CouponCode))
		}
		return err
	})
}

func (s *Service) settleSubscription(ctx context.Context, log *zap.Logger, req domain.Request, report *domain.Report) {
	s.expire(ctx, log, req, report)

	now := s.clock.Now()
	var created *domain.Subscription
	s.run(log, report, domain.StepCreateSubscription, func() error {
		sub, err := s.newSubscription(req, now, now.AddDate(0, s.periodMonths(req.BillingPeriod), 0), map[string]any{})
		if err != nil {
			return err
		}
		if err := s.repo.InsertSubscription(ctx, s.db, sub); err != nil {
			return err
		}
		created = sub
		return nil
	})

	s.setPlan(ctx, log, req, report)

	cfg := s.cfg.Get().FoundersProgram
	if period, _ := domain.ParseBillingPeriod(string(req.BillingPeriod)); period != domain.BillingAnnual || !cfg.Enabled || cfg.BonusMonths <= 0 {
		return
	}
	s.run(log, report, domain.StepFoundersBonus, func() error {
		if created == nil {
			return domain.ErrNoSubscriptionCreated
		}
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			granted, err := s.repo.InsertFoundersBonus(ctx, tx, &domain.FoundersBonus{
				ID:             s.genID.Generate(),
				OrganizationID: req.OrganizationID,
				SubscriptionID: created.ID,
				BonusMonths:    cfg.BonusMonths,
				GrantedAt:      now,
			})
			if err != nil {
				return err
			}
			if !granted {
				log.Info("founders bonus already granted", zap.String("organization_id", req.OrganizationID))
				return nil
			}
			return s.repo.ExtendSubscription(ctx, tx, created.ID, created.CurrentPeriodEnd.AddDate(0, cfg.BonusMonths, 0), now)
		})
	})
}

func (s *Service) settleUpgrade(ctx context.Context, log *zap.Logger, req domain.Request, report *domain.Report) {
	previous := s.expire(ctx, log, req, report)

	now := s.clock.Now()
	s.run(log, report, domain.StepCreateSubscription, func() error {
		periodEnd := now.AddDate(0, s.periodMonths(req.BillingPeriod), 0)
		meta := map[string]any{}
		if previous != nil {
			meta["upgraded_from_plan_id"] = previous.PlanID
			meta["upgraded_from_subscription_id"] = previous.ID.String()
			if previous.CurrentPeriodEnd.After(now) {
				periodEnd = previous.CurrentPeriodEnd
			}
		}
		if req.ProrationCredit != nil {
			meta["proration_credit"] = *req.ProrationCredit
		}
		if req.ProrationCharge != nil {
			meta["proration_charge"] = *req.ProrationCharge
		}
		sub, err := s.newSubscription(req, now, periodEnd, meta)
		if err != nil {
			return err
		}
		return s.repo.InsertSubscription(ctx, s.db, sub)
	})

	s.setPlan(ctx, log, req, report)
}

func (s *Service) settleSeats(ctx context.Context, log *zap.Logger, req domain.Request, report *domain.Report) {
	s.run(log, report, domain.StepGrantSeats, func() error {
		if err := s.check(seatsInput{OrganizationID: req.OrganizationID, SeatsQuantity: req.SeatsQuantity}); err != nil {
			return err
		}
		granted, err := s.repo.GrantSeats(ctx, s.db, &domain.SeatGrant{
			ID:             s.genID.Generate(),
			OrganizationID: req.OrganizationID,
			PaymentID:      req.PaymentID,
			Quantity:       req.SeatsQuantity,
			GrantedAt:      s.clock.Now(),
		})
		if err == nil && !granted {
			log.Info("seats already granted for payment")
		}
		return err
	})
}

func (s *Service) expire(ctx context.Context, log *zap.Logger, req domain.Request, report *domain.Report) *domain.Subscription {
	var previous *domain.Subscription
	s.run(log, report, domain.StepExpireSubscription, func() error {
		if err := s.check(organizationInput{OrganizationID: req.OrganizationID}); err != nil {
			return err
		}
		sub, err := s.repo.ExpireActiveSubscriptions(ctx, s.db, req.OrganizationID, s.clock.Now())
		if err != nil {
			return err
		}
		previous = sub
		return nil
	})
	return previous
}

func (s *Service) setPlan(ctx context.Context, log *zap.Logger, req domain.Request, report *domain.Report) {
	s.run(log, report, domain.StepSetPlan, func() error {
		if err := s.check(planInput{OrganizationID: req.OrganizationID, PlanID: req.PlanID}); err != nil {
			return err
		}
		return s.repo.SetOrganizationPlan(ctx, s.db, req.OrganizationID, req.PlanID, s.clock.Now())
	})
}

func (s *Service) newSubscription(req domain.Request, start, end time.Time, meta map[string]any) (*domain.Subscription, error) {
	if err := s.check(planInput{OrganizationID: req.OrganizationID, PlanID: req.PlanID}); err != nil {
		return nil, err
	}
	period, err := domain.ParseBillingPeriod(string(req.BillingPeriod))
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	return &domain.Subscription{
		ID:                 s.genID.Generate(),
		OrganizationID:     req.OrganizationID,
		UserID:             req.UserID,
		PlanID:             req.PlanID,
		PaymentID:          req.PaymentID,
		Status:             domain.SubscriptionActive,
		BillingPeriod:      period,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   end,
		Metadata:           datatypes.JSON(raw),
		CreatedAt:          start,
		UpdatedAt:          start,
	}, nil
}

func (s *Service) periodMonths(period domain.BillingPeriod) int {
	cfg := s.cfg.Get().BillingPeriods
	if parsed, _ := domain.ParseBillingPeriod(string(period)); parsed == domain.BillingAnnual {
		return cfg.AnnualMonths
	}
	return cfg.MonthlyMonths
}

func (s *Service) check(input any) error {
	if err := s.validate.Struct(input); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	return nil
}

func (s *Service) run(log *zap.Logger, report *domain.Report, step string, fn func() error) {
	err := fn()
	report.Record(step, err)
	if err != nil {
		log.Error("settlement step failed", zap.String("step", step), zap.Error(err))
		return
	}
	log.Debug("settlement step applied", zap.String("step", step))
}

func (s *Service) publishCompleted(ctx context.Context, log *zap.Logger, req domain.Request, report domain.Report) {
	env, err := events.NewEnvelope(ctx, events.TypeSettlementCompleted, completedPayload{
		PaymentID:      req.PaymentID,
		ProductType:    req.ProductType.String(),
		UserID:         req.UserID,
		OrganizationID: req.OrganizationID,
		Steps:          report.Steps,
	}, s.clock.Now())
	if err != nil {
		log.Warn("failed to build settlement event", zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, env); err != nil {
		log.Warn("failed to publish settlement event", zap.Error(err))
	}
}
