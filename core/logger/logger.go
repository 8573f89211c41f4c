/*
Package logger provides request scoped logrus loggers.

Every request gets its own logger carrying a request ID, and once the caller
is authenticated also their identity. Handlers retrieve it with

	rlog := logger.FromContext(r.Context())

The request ID is taken from the X-Request-ID header if the caller sends a valid
UUID, and it is always echoed in the response. Change notifications carry the
same ID, so a notification can be traced back to the request which caused it.
*/
package logger

import (
	"context"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// RequestIDHeader is the http header carrying the request ID
const RequestIDHeader = "X-Request-ID"

const (
	requestIDField = "requestID"
	identityField  = "identity"
)

type contextKeyLoggerType struct{}

var contextKeyLogger = contextKeyLoggerType{}

// requestValues are the logger fields which travel with notifications
type requestValues struct {
	RequestID string `json:"requestID"`
	Identity  string `json:"identity,omitempty"`
}

// InitLogger sets the log level and a text formatter with full timestamps
func InitLogger(level string) error {
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	logrus.SetLevel(logLevel)
	return nil
}

// AddRequestID installs a middleware which gives every request a logger with a request ID
func AddRequestID(router *mux.Router) {
	router.Use(func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if _, err := uuid.Parse(requestID); err != nil {
				requestID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, requestID)
			ctx := r.Context()
			if fromContext(ctx) == nil {
				ctx = withEntry(ctx, logrus.WithField(requestIDField, requestID))
			}
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	})
}

// Default returns a logger without a request ID
func Default() *logrus.Entry {
	return logrus.NewEntry(logrus.StandardLogger())
}

func withEntry(ctx context.Context, rlog *logrus.Entry) context.Context {
	return context.WithValue(ctx, contextKeyLogger, rlog)
}

func fromContext(ctx context.Context) *logrus.Entry {
	if ctx == nil {
		return nil
	}
	rlog, _ := ctx.Value(contextKeyLogger).(*logrus.Entry)
	return rlog
}

// ContextWithLogger returns ctx with a logger carrying a new request ID. If ctx already
// has a logger, ctx and that logger are returned.
func ContextWithLogger(ctx context.Context) (context.Context, *logrus.Entry) {
	if ctx == nil {
		ctx = context.Background()
	}
	if rlog := fromContext(ctx); rlog != nil {
		return ctx, rlog
	}
	rlog := logrus.WithField(requestIDField, uuid.NewString())
	return withEntry(ctx, rlog), rlog
}

// FromContext returns the logger of ctx, or the default logger if there is none
func FromContext(ctx context.Context) *logrus.Entry {
	if rlog := fromContext(ctx); rlog != nil {
		return rlog
	}
	return Default()
}

// ContextWithLoggerIdentity returns a context whose logger also logs the identity of the caller
func ContextWithLoggerIdentity(ctx context.Context, identity string) (context.Context, *logrus.Entry) {
	ctx, rlog := ContextWithLogger(ctx)
	rlog = rlog.WithField(identityField, identity)
	return withEntry(ctx, rlog), rlog
}

// RequestIDFromContext returns the request ID of ctx, or "" if there is none
func RequestIDFromContext(ctx context.Context) string {
	return valuesFromContext(ctx).RequestID
}

// SerializeLoggerContext returns the request ID and identity of ctx as JSON,
// or {} if ctx has no request logger.
func SerializeLoggerContext(ctx context.Context) []byte {
	values := valuesFromContext(ctx)
	if len(values.RequestID) == 0 {
		return []byte("{}")
	}
	data, err := json.Marshal(values)
	if err != nil {
		return []byte("{}")
	}
	return data
}

func valuesFromContext(ctx context.Context) requestValues {
	var values requestValues
	rlog := fromContext(ctx)
	if rlog == nil {
		return values
	}
	values.RequestID, _ = rlog.Data[requestIDField].(string)
	values.Identity, _ = rlog.Data[identityField].(string)
	return values
}
