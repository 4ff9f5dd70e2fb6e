package service

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/obrapay/internal/clock"
	"github.com/smallbiznis/obrapay/internal/config"
	"github.com/smallbiznis/obrapay/internal/observability/logger"
	"github.com/smallbiznis/obrapay/internal/observability/metrics"
	"github.com/smallbiznis/obrapay/internal/observability/tracing"
	"github.com/smallbiznis/obrapay/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/obrapay/internal/payment/domain"
	"github.com/smallbiznis/obrapay/internal/payment/eventlog"
	settlementdomain "github.com/smallbiznis/obrapay/internal/settlement/domain"
	webhookdomain "github.com/smallbiznis/obrapay/internal/webhook/domain"
	"github.com/smallbiznis/obrapay/internal/webhook/ingress"
	"github.com/smallbiznis/obrapay/internal/webhook/signature"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       paymentdomain.Repository
	Adapters   *adapters.Registry
	Settings   adapters.ProviderSettings
	EventLog   *eventlog.Logger
	Dispatcher settlementdomain.Dispatcher
	Clock      clock.Clock
	Cfg        config.Config
	ObsMetrics *metrics.Metrics        `optional:"true"`
	Webhook    *metrics.WebhookMetrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       paymentdomain.Repository
	adapters   *adapters.Registry
	settings   adapters.ProviderSettings
	eventLog   *eventlog.Logger
	dispatcher settlementdomain.Dispatcher
	clock      clock.Clock
	secrets    map[string]string
	policy     signature.Policy
	obsMetrics *metrics.Metrics
	webhook    *metrics.WebhookMetrics
	tracer     trace.Tracer
}

func NewService(p Params) webhookdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("webhook.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		adapters:   p.Adapters,
		settings:   p.Settings,
		eventLog:   p.EventLog,
		dispatcher: p.Dispatcher,
		clock:      p.Clock,
		secrets: map[string]string{
			paymentdomain.ProviderMercadoPago: p.Cfg.MercadoPago.WebhookSecret,
		},
		obsMetrics: p.ObsMetrics,
		webhook:    p.Webhook,
		tracer:     otel.Tracer("obrapay/webhook"),
	}
}

// Ingest runs one delivery through classification, audit, signature check,
// provider lookup, the payment idempotency gate and settlement. It never fails:
// every problem is logged and reported as a diagnostic in the Result.
func (s *Service) Ingest(ctx context.Context, provider string, req ingress.Request) webhookdomain.Result {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if !s.adapters.ProviderExists(provider) {
		s.log.Warn("webhook for unknown provider", zap.String("provider", provider))
		return webhookdomain.Result{Skipped: true, Error: webhookdomain.ErrCodeProviderNotFound}
	}

	n := ingress.Normalize(req)
	s.webhook.IncReceived(provider, string(n.Format))

	if !n.IsPaymentEvent() {
		s.webhook.IncOutcome(provider, metrics.WebhookOutcomeSkipped)
		return webhookdomain.Result{Skipped: true}
	}

	ctx, span := s.tracer.Start(ctx, "webhook.ingest", trace.WithAttributes(tracing.SafeAttributes(
		attribute.String("provider", provider),
		attribute.String("format", string(n.Format)),
		attribute.String("event_type", n.EventType),
	)...))
	defer span.End()

	log := logger.WithWebhook(logger.WithContext(ctx, s.log), provider, n.EventType, n.PaymentID).
		With(zap.String("format", string(n.Format)))

	env := s.resolveEnvironment(ctx, log, n)
	log = log.With(zap.String("environment", string(env)))

	s.eventLog.Record(ctx, eventlog.Entry{
		Provider:    provider,
		RequestID:   n.RequestID,
		PaymentID:   n.PaymentID,
		EventType:   n.EventType,
		OrderID:     n.OrderID,
		Format:      n.Format,
		Environment: env,
		Header:      req.Header,
		Query:       req.Query,
		Payload:     req.Body,
	})

	if n.PaymentID == "" {
		log.Warn("payment event without payment id")
		s.webhook.IncOutcome(provider, metrics.WebhookOutcomeIgnored)
		return webhookdomain.Result{Skipped: true, Error: webhookdomain.ErrCodeMissingPaymentID}
	}

	switch s.policy.Requires(n.Format, n.Signature) {
	case signature.DecisionExempt:
		log.Info("signature_exempt")
	default:
		if !signature.Validate(n.Signature, n.RequestID, n.PaymentID, s.secrets[provider]) {
			log.Warn("invalid webhook signature")
			span.SetStatus(codes.Error, webhookdomain.ErrCodeInvalidSignature)
			s.webhook.IncOutcome(provider, metrics.WebhookOutcomeInvalidSignature)
			return webhookdomain.Result{Error: webhookdomain.ErrCodeInvalidSignature}
		}
	}

	resolver, err := s.adapters.NewResolver(provider, s.settings.For(provider))
	if err != nil {
		log.Error("provider resolver unavailable", zap.Error(err))
		s.webhook.IncOutcome(provider, metrics.WebhookOutcomeLookupFailed)
		return webhookdomain.Result{Error: webhookdomain.ErrCodeProviderNotConfigured}
	}

	status, err := s.lookup(ctx, provider, resolver, n.PaymentID, env)
	if err != nil {
		log.Error("provider payment lookup failed", zap.Error(err))
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, webhookdomain.ErrCodeProviderLookupFailed)
		s.webhook.IncOutcome(provider, metrics.WebhookOutcomeLookupFailed)
		return webhookdomain.Result{Error: webhookdomain.ErrCodeProviderLookupFailed}
	}
	if status.ID == "" {
		status.ID = n.PaymentID
	}

	if !status.IsApproved() {
		log.Info("payment not approved", zap.String("status", status.Status))
		s.webhook.IncOutcome(provider, metrics.WebhookOutcomeNotApproved)
		return webhookdomain.Result{Skipped: true}
	}

	settleReq, buildErr := buildRequest(status)

	inserted, err := s.recordPayment(ctx, provider, env, status)
	if err != nil {
		log.Error("payment insert failed", zap.Error(err))
		s.webhook.IncOutcome(provider, metrics.WebhookOutcomeIgnored)
		return webhookdomain.Result{Error: webhookdomain.ErrCodePaymentRecordFailed}
	}
	if !inserted {
		s.logDuplicate(ctx, log, provider, status.ID)
		s.webhook.IncOutcome(provider, metrics.WebhookOutcomeDuplicate)
		return webhookdomain.Result{Skipped: true}
	}

	if buildErr != nil {
		log.Warn("approved payment has no settleable product", zap.Error(buildErr))
		s.webhook.IncOutcome(provider, metrics.WebhookOutcomeIgnored)
		return webhookdomain.Result{Skipped: true}
	}

	report := s.dispatcher.Dispatch(ctx, settleReq)
	s.obsMetrics.RecordPaymentEvent(ctx, provider, n.EventType)
	s.webhook.IncOutcome(provider, metrics.WebhookOutcomeSettled)

	return webhookdomain.Result{Settled: true, FailedSteps: report.FailedSteps()}
}

func (s *Service) resolveEnvironment(ctx context.Context, log *zap.Logger, n ingress.Notification) paymentdomain.Environment {
	env, err := ingress.ResolveEnvironment(ctx, n.LiveMode, flagSource{db: s.db, repo: s.repo})
	if err != nil {
		log.Warn("sandbox flag lookup failed, assuming production", zap.Error(err))
	}
	return env
}

func (s *Service) lookup(
	ctx context.Context,
	provider string,
	resolver paymentdomain.StatusResolver,
	paymentID string,
	env paymentdomain.Environment,
) (paymentdomain.PaymentStatus, error) {
	ctx, span := s.tracer.Start(ctx, "webhook.provider_lookup", trace.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("environment", string(env)),
	))
	defer span.End()

	started := time.Now()
	status, err := resolver.Resolve(ctx, paymentID, env)
	s.webhook.ObserveLookup(provider, string(env), time.Since(started))
	if err != nil {
		span.SetStatus(codes.Error, "lookup failed")
	}
	return status, err
}

func (s *Service) recordPayment(
	ctx context.Context,
	provider string,
	env paymentdomain.Environment,
	status paymentdomain.PaymentStatus,
) (bool, error) {
	meta, err := json.Marshal(status.Metadata)
	if err != nil {
		meta = []byte("{}")
	}
	return s.repo.InsertPayment(ctx, s.db, &paymentdomain.Payment{
		ID:                s.genID.Generate(),
		Provider:          provider,
		ProviderPaymentID: status.ID,
		UserID:            status.Meta(paymentdomain.MetaUserID),
		OrganizationID:    status.Meta(paymentdomain.MetaOrganizationID),
		ProductType:       status.Meta(paymentdomain.MetaProductType),
		Amount:            status.Amount,
		CurrencyCode:      strings.ToUpper(status.CurrencyCode),
		Status:            status.Status,
		Environment:       env,
		Metadata:          datatypes.JSON(meta),
		CreatedAt:         s.clock.Now(),
	})
}

func (s *Service) logDuplicate(ctx context.Context, log *zap.Logger, provider, paymentID string) {
	existing, err := s.repo.FindPayment(ctx, s.db, provider, paymentID)
	if err != nil || existing == nil {
		log.Info("payment already processed")
		return
	}
	log.Info("payment already processed",
		zap.String("recorded_payment_id", existing.ID.String()),
		zap.Time("recorded_at", existing.CreatedAt),
	)
}

// buildRequest maps provider metadata onto a settlement request. Only an
// unknown product type is an error; the billing period is read for
// subscription and upgrade purchases and checked when the subscription is created.
func buildRequest(status paymentdomain.PaymentStatus) (settlementdomain.Request, error) {
	productType, err := settlementdomain.ParseProductType(status.Meta(paymentdomain.MetaProductType))
	if err != nil {
		return settlementdomain.Request{}, err
	}

	req := settlementdomain.Request{
		ProductType:     productType,
		PaymentID:       status.ID,
		UserID:          status.Meta(paymentdomain.MetaUserID),
		OrganizationID:  status.Meta(paymentdomain.MetaOrganizationID),
		PlanID:          status.Meta(paymentdomain.MetaPlanID),
		CourseID:        status.Meta(paymentdomain.MetaCourseID),
		CouponCode:      status.Meta(paymentdomain.MetaCouponCode),
		ProrationCredit: parseOptionalFloat(status.Meta(paymentdomain.MetaProrationCredit)),
		ProrationCharge: parseOptionalFloat(status.Meta(paymentdomain.MetaProrationCharge)),
	}
	if productType.HasBillingPeriod() {
		req.BillingPeriod = settlementdomain.BillingPeriod(strings.TrimSpace(status.Meta(paymentdomain.MetaBillingPeriod)))
	}
	if raw := status.Meta(paymentdomain.MetaSeatsQuantity); raw != "" {
		if qty, err := strconv.Atoi(raw); err == nil {
			req.SeatsQuantity = qty
		}
	}
	return req, nil
}

func parseOptionalFloat(raw string) *float64 {
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &v
}

type flagSource struct {
	db   *gorm.DB
	repo paymentdomain.Repository
}

func (f flagSource) SandboxEnabled(ctx context.Context) (bool, error) {
	flag, err := f.repo.FindFeatureFlag(ctx, f.db, paymentdomain.FlagPaymentsSandbox)
	if err != nil {
		return false, err
	}
	return flag != nil && flag.Enabled, nil
}
