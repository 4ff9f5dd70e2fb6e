package service_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/obrapay/internal/clock"
	"github.com/smallbiznis/obrapay/internal/config"
	"github.com/smallbiznis/obrapay/internal/events"
	"github.com/smallbiznis/obrapay/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/obrapay/internal/payment/domain"
	"github.com/smallbiznis/obrapay/internal/payment/eventlog"
	paymentrepo "github.com/smallbiznis/obrapay/internal/payment/repository"
	settlementdomain "github.com/smallbiznis/obrapay/internal/settlement/domain"
	settlementrepo "github.com/smallbiznis/obrapay/internal/settlement/repository"
	settlementservice "github.com/smallbiznis/obrapay/internal/settlement/service"
	"github.com/smallbiznis/obrapay/internal/testutil"
	webhookdomain "github.com/smallbiznis/obrapay/internal/webhook/domain"
	"github.com/smallbiznis/obrapay/internal/webhook/ingress"
	"github.com/smallbiznis/obrapay/internal/webhook/service"
	"github.com/smallbiznis/obrapay/internal/webhook/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	webhookSecret = "mp_secret"
	provider      = paymentdomain.ProviderMercadoPago
)

type fakeResolver struct {
	mu       sync.Mutex
	statuses map[string]paymentdomain.PaymentStatus
	err      error
	calls    []paymentdomain.Environment
}

func (r *fakeResolver) Resolve(_ context.Context, paymentID string, env paymentdomain.Environment) (paymentdomain.PaymentStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, env)
	if r.err != nil {
		return paymentdomain.PaymentStatus{}, r.err
	}
	status, ok := r.statuses[paymentID]
	if !ok {
		return paymentdomain.PaymentStatus{}, paymentdomain.ErrPaymentNotFound
	}
	return status, nil
}

func (r *fakeResolver) Calls() []paymentdomain.Environment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]paymentdomain.Environment(nil), r.calls...)
}

type fakeFactory struct {
	resolver *fakeResolver
}

func (f fakeFactory) Provider() string { return provider }

func (f fakeFactory) NewResolver(paymentdomain.ResolverConfig) (paymentdomain.StatusResolver, error) {
	return f.resolver, nil
}

type countingDispatcher struct {
	next     settlementdomain.Dispatcher
	mu       sync.Mutex
	requests []settlementdomain.Request
}

func (d *countingDispatcher) Dispatch(ctx context.Context, req settlementdomain.Request) settlementdomain.Report {
	d.mu.Lock()
	d.requests = append(d.requests, req)
	d.mu.Unlock()
	return d.next.Dispatch(ctx, req)
}

func (d *countingDispatcher) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.requests)
}

type fixture struct {
	db         *gorm.DB
	resolver   *fakeResolver
	dispatcher *countingDispatcher
	svc        webhookdomain.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewDB(t)
	node, err := snowflake.NewNode(7)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	repo := paymentrepo.Provide()

	dispatcher := &countingDispatcher{next: settlementservice.NewService(settlementservice.Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Repo:      settlementrepo.Provide(),
		Clock:     clk,
		Config:    config.NewStaticSettlementConfigHolder(config.DefaultSettlementConfig()),
		Publisher: events.NoopPublisher{},
	})}

	resolver := &fakeResolver{statuses: map[string]paymentdomain.PaymentStatus{}}
	cfg := config.Config{MercadoPago: config.MercadoPagoConfig{WebhookSecret: webhookSecret}}

	svc := service.NewService(service.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Repo:     repo,
		Adapters: adapters.NewRegistry(fakeFactory{resolver: resolver}),
		Settings: adapters.ProviderSettings{},
		EventLog: eventlog.New(eventlog.Params{
			DB:    db,
			Log:   zap.NewNop(),
			GenID: node,
			Repo:  repo,
			Clock: clk,
		}),
		Dispatcher: dispatcher,
		Clock:      clk,
		Cfg:        cfg,
	})

	return &fixture{db: db, resolver: resolver, dispatcher: dispatcher, svc: svc}
}

func (f *fixture) approve(paymentID string, meta map[string]string) {
	f.resolver.statuses[paymentID] = paymentdomain.PaymentStatus{
		ID:           paymentID,
		Status:       "approved",
		Amount:       99.9,
		CurrencyCode: "BRL",
		Metadata:     meta,
	}
}

func signedHeader(requestID, dataID string) http.Header {
	ts := "1767225600"
	header := http.Header{}
	header.Set("X-Request-Id", requestID)
	header.Set("X-Signature", "ts="+ts+",v1="+signature.Sign(webhookSecret, dataID, requestID, ts))
	return header
}

func ipnRequest(paymentID string, header http.Header) ingress.Request {
	return ingress.Request{
		Query:  url.Values{"id": {paymentID}, "topic": {"payment"}},
		Header: header,
	}
}

func v2Request(body string, header http.Header) ingress.Request {
	return ingress.Request{Query: url.Values{}, Body: []byte(body), Header: header}
}

var courseMeta = map[string]string{
	"product_type": "course",
	"user_id":      "u1",
	"course_id":    "c1",
}

func TestIngestIPNActivatesEnrollment(t *testing.T) {
	f := newFixture(t)
	f.approve("123", courseMeta)

	res := f.svc.Ingest(context.Background(), provider, ipnRequest("123", signedHeader("req-a", "123")))

	assert.True(t, res.Settled)
	assert.Empty(t, res.Error)
	assert.Equal(t, 1, f.dispatcher.Count())
	testutil.AssertCount(t, f.db, "SELECT COUNT(1) FROM enrollments WHERE user_id = 'u1' AND course_id = 'c1'", 1)
	testutil.AssertCount(t, f.db, "SELECT COUNT(1) FROM payment_events", 1)
	testutil.AssertCount(t, f.db, "SELECT COUNT(1) FROM payments WHERE provider_payment_id = '123'", 1)
}

func TestIngestDuplicateDeliverySettlesOnce(t *testing.T) {
	f := newFixture(t)
	f.approve("123", courseMeta)
	ctx := context.Background()

	first := f.svc.Ingest(ctx, provider, ipnRequest("123", signedHeader("req-ipn", "123")))
	second := f.svc.Ingest(ctx, provider, v2Request(
		`{"type":"payment","action":"payment.updated","data":{"id":"123"}}`,
		signedHeader("req-v2", "123"),
	))

	assert.True(t, first.Settled)
	assert.False(t, second.Settled)
	assert.True(t, second.Skipped)
	assert.Equal(t, 1, f.dispatcher.Count())
	testutil.AssertCount(t, f.db, "SELECT COUNT(1) FROM payment_events", 2)
	testutil.AssertCount(t, f.db, "SELECT COUNT(1) FROM payments", 1)
	testutil.AssertCount(t, f.db, "SELECT COUNT(1) FROM enrollments", 1)
}

func TestIngestRejectedPaymentIsNotDispatched(t *testing.T) {
	f := newFixture(t)
	f.resolver.statuses["123"] = paymentdomain.PaymentStatus{ID: "123", Status: "rejected", Metadata: courseMeta}

	res := f.svc.Ingest(context.Background(), provider, ipnRequest("123", signedHeader("req-c", "123")))

	assert.True(t, res.Skipped)
	assert.Zero(t, f.dispatcher.Count())
	testutil.AssertCount(t, f.db, "SELECT COUNT(1) FROM payment_events", 1)
	testutil.AssertCount(t, f.db, "SELECT COUNT(1) FROM payments", 0)
}

func TestIngestNonPaymentEventShortCircuits(t *testing.T) {
	f := newFixture(t)

	res := f.svc.Ingest(context.Background(), provider, v2Request(
		`{"type":"merchant_order","data":{"id":"9"}}`,
		http.Header{"X-Signature": {"ts=1,v1=bogus"}},
	))

	assert.True(t, res.Skipped)
	assert.Empty(t, res.Error)
	assert.Empty(t, f.resolver.Calls())
	assert.Zero(t, f.dispatcher.Count())
	testutil.AssertCount(t, f.db, "SELECT COUNT(1) FROM payment_events", 0)
}

func TestIngestMalformedBodyIsSkipped(t *testing.T) {
	f := newFixture(t)

	res := f.svc.Ingest(context.Background(), provider, v2Request(`{not json`, http.Header{}))

	assert.True(t, res.Skipped)
	assert.Empty(t, f.resolver.Calls())
	testutil.AssertCount(t, f.db, "SELECT COUNT(1) FROM payment_events", 0)
}

func TestIngestInvalidSignatureStopsBeforeLookup(t *testing.T) {
	f := newFixture(t)
	f.approve("123", courseMeta)

	header := signedHeader("req-x", "123")
	header.Set("X-Request-Id", "req-tampered")
	res := f.svc.Ingest(context.Background(), provider, v2Request(`{"type":"payment","data":{"id":123}}`, header))

	assert.Equal(t, webhookdomain.ErrCodeInvalidSignature, res.Error)
	assert.Empty(t, f.resolver.Calls())
	assert.Zero(t, f.dispatcher.Count())
	testutil.AssertCount(t, f.db, "SELECT COUNT(1) FROM payment_events", 1)
}

func TestIngestUnsignedIPNIsExempt(t *testing.T) {
	f := newFixture(t)
	f.approve("123", courseMeta)

	res := f.svc.Ingest(context.Background(), provider, ipnRequest("123", http.Header{}))

	assert.True(t, res.Settled)
	assert.Equal(t, 1, f.dispatcher.Count())
}

func TestIngestUnsignedV2IsRejected(t *testing.T) {
	f := newFixture(t)
	f.approve("123", courseMeta)

	res := f.svc.Ingest(context.Background(), provider, v2Request(`{"type":"payment","data":{"id":"123"}}`, http.Header{}))

	assert.Equal(t, webhookdomain.ErrCodeInvalidSignature, res.Error)
	assert.Zero(t, f.dispatcher.Count())
}

func TestIngestEnvironmentPrecedence(t *testing.T) {
	f := newFixture(t)
	f.approve("1", courseMeta)
	f.approve("2", courseMeta)
	f.approve("3", courseMeta)
	require.NoError(t, f.db.Exec(`INSERT INTO feature_flags (key, enabled) VALUES ('payments_sandbox', TRUE)`).Error)
	ctx := context.Background()

	f.svc.Ingest(ctx, provider, ipnRequest("1", signedHeader("r1", "1")))
	f.svc.Ingest(ctx, provider, v2Request(`{"type":"payment","live_mode":true,"data":{"id":"2"}}`, signedHeader("r2", "2")))
	f.svc.Ingest(ctx, provider, v2Request(`{"type":"payment","live_mode":false,"data":{"id":"3"}}`, signedHeader("r3", "3")))

	assert.Equal(t, []paymentdomain.Environment{
		paymentdomain.EnvironmentSandbox,
		paymentdomain.EnvironmentProduction,
		paymentdomain.EnvironmentSandbox,
	}, f.resolver.Calls())
	testutil.AssertCount(t, f.db, "SELECT COUNT(1) FROM payments WHERE environment = 'sandbox'", 2)
}

func TestIngestUnknownProductTypeRecordsPaymentWithoutDispatch(t *testing.T) {
	f := newFixture(t)
	f.approve("55", map[string]string{"product_type": "ebook", "user_id": "u1"})

	res := f.svc.Ingest(context.Background(), provider, ipnRequest("55", signedHeader("r", "55")))

	assert.True(t, res.Skipped)
	assert.Zero(t, f.dispatcher.Count())
	testutil.AssertCount(t, f.db, "SELECT COUNT(1) FROM payments WHERE product_type = 'ebook'", 1)
}

func TestIngestLookupFailure(t *testing.T) {
	f := newFixture(t)
	f.resolver.err = errors.New("connection reset")

	res := f.svc.Ingest(context.Background(), provider, ipnRequest("77", signedHeader("r", "77")))

	assert.Equal(t, webhookdomain.ErrCodeProviderLookupFailed, res.Error)
	assert.Zero(t, f.dispatcher.Count())
	testutil.AssertCount(t, f.db, "SELECT COUNT(1) FROM payments", 0)
}

func TestIngestUnknownProvider(t *testing.T) {
	f := newFixture(t)

	res := f.svc.Ingest(context.Background(), "paypal", ipnRequest("1", http.Header{}))

	assert.Equal(t, webhookdomain.ErrCodeProviderNotFound, res.Error)
	testutil.AssertCount(t, f.db, "SELECT COUNT(1) FROM payment_events", 0)
}

func TestIngestSeatsMetadata(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Exec(`INSERT INTO organizations (id, name, extra_seats) VALUES (42, 'acme', 0)`).Error)
	f.approve("900", map[string]string{
		"product_type":    "seats",
		"organization_id": "42",
		"seats_quantity":  "5",
	})

	res := f.svc.Ingest(context.Background(), provider, ipnRequest("900", signedHeader("r", "900")))

	assert.True(t, res.Settled)
	assert.Empty(t, res.FailedSteps)
	testutil.AssertCount(t, f.db, "SELECT extra_seats FROM organizations WHERE id = 42", 5)
}

func TestIngestCourseIgnoresBillingPeriod(t *testing.T) {
	f := newFixture(t)
	f.approve("321", map[string]string{
		"product_type":   "course",
		"user_id":        "u1",
		"course_id":      "c1",
		"billing_period": "one_time",
	})
	ctx := context.Background()

	first := f.svc.Ingest(ctx, provider, ipnRequest("321", signedHeader("r1", "321")))
	redelivery := f.svc.Ingest(ctx, provider, ipnRequest("321", signedHeader("r2", "321")))

	assert.True(t, first.Settled)
	assert.Empty(t, first.FailedSteps)
	assert.True(t, redelivery.Skipped)
	assert.Equal(t, 1, f.dispatcher.Count())
	testutil.AssertCount(t, f.db, "SELECT COUNT(1) FROM payments", 1)
	testutil.AssertCount(t, f.db, "SELECT COUNT(1) FROM enrollments WHERE user_id = 'u1' AND course_id = 'c1'", 1)
}

func TestIngestSubscriptionWithBadBillingPeriodFailsOnlyCreateStep(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Exec(`INSERT INTO organizations (id, name, extra_seats) VALUES (42, 'acme', 0)`).Error)
	f.approve("654", map[string]string{
		"product_type":    "subscription",
		"organization_id": "42",
		"user_id":         "u1",
		"plan_id":         "pro",
		"billing_period":  "one_time",
	})

	res := f.svc.Ingest(context.Background(), provider, ipnRequest("654", signedHeader("r", "654")))

	assert.True(t, res.Settled)
	assert.Equal(t, []string{settlementdomain.StepCreateSubscription}, res.FailedSteps)
	assert.Equal(t, 1, f.dispatcher.Count())
	testutil.AssertCount(t, f.db, "SELECT COUNT(1) FROM payments WHERE provider_payment_id = '654'", 1)
	testutil.AssertCount(t, f.db, "SELECT COUNT(1) FROM subscriptions", 0)
	testutil.AssertCount(t, f.db, "SELECT COUNT(1) FROM organizations WHERE current_plan_id = 'pro'", 1)
}
