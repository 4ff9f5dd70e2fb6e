package eventlog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/obrapay/internal/clock"
	"github.com/smallbiznis/obrapay/internal/observability/logger"
	"github.com/smallbiznis/obrapay/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Entry is one classified payment notification to be audited.
type Entry struct {
	Provider    string
	RequestID   string
	PaymentID   string
	EventType   string
	OrderID     string
	Format      domain.EventFormat
	Environment domain.Environment
	Header      http.Header
	Query       url.Values
	Payload     []byte
}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Clock clock.Clock
}

type Logger struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	clock clock.Clock
}

func New(p Params) *Logger {
	return &Logger{
		db:    p.DB,
		log:   p.Log.Named("payment.eventlog"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: p.Clock,
	}
}

// Record inserts a RECEIVED audit row. Failures are logged and never returned.
func (l *Logger) Record(ctx context.Context, entry Entry) {
	providerEventID := strings.TrimSpace(entry.RequestID)
	if providerEventID == "" {
		providerEventID = strings.TrimSpace(entry.PaymentID)
	}

	record := &domain.EventRecord{
		ID:              l.genID.Generate(),
		Provider:        entry.Provider,
		ProviderEventID: providerEventID,
		EventType:       entry.EventType,
		OrderID:         strings.TrimSpace(entry.OrderID),
		Format:          entry.Format,
		Environment:     entry.Environment,
		RawHeaders:      marshalJSON(flattenHeader(entry.Header)),
		RawQuery:        marshalJSON(flattenQuery(entry.Query)),
		RawPayload:      payloadJSON(entry.Payload),
		Status:          domain.EventStatusReceived,
		ReceivedAt:      l.clock.Now(),
	}

	if err := l.repo.InsertEvent(ctx, l.db, record); err != nil {
		logger.WithContext(ctx, l.log).Warn("payment event audit insert failed",
			zap.String("provider", entry.Provider),
			zap.String("provider_event_id", providerEventID),
			zap.String("event_type", entry.EventType),
			zap.Error(err),
		)
	}
}

// flattenHeader drops the signature header; it is re-derivable and must not be stored.
func flattenHeader(header http.Header) map[string]string {
	out := make(map[string]string, len(header))
	for key, values := range header {
		canonical := http.CanonicalHeaderKey(key)
		if canonical == "X-Signature" || canonical == "Authorization" {
			continue
		}
		out[strings.ToLower(canonical)] = strings.Join(values, ",")
	}
	return out
}

func flattenQuery(query url.Values) map[string]string {
	out := make(map[string]string, len(query))
	for key, values := range query {
		if len(values) > 0 {
			out[key] = values[0]
		}
	}
	return out
}

func marshalJSON(v any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(b)
}

// payloadJSON stores malformed bodies as a JSON string so the column stays valid JSON.
func payloadJSON(payload []byte) datatypes.JSON {
	if len(payload) == 0 {
		return datatypes.JSON("{}")
	}
	if json.Valid(payload) {
		return datatypes.JSON(payload)
	}
	return marshalJSON(string(payload))
}
