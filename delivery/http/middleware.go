package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/isectech/hospital-threat-engine/pkg/logging"
	"github.com/isectech/hospital-threat-engine/pkg/metrics"
	"github.com/isectech/hospital-threat-engine/shared/common"
	"github.com/isectech/hospital-threat-engine/shared/types"
)

const (
	correlationHeader = "X-Correlation-ID"
	requestContextKey = "request_context"
)

// Middleware holds the shared dependencies of the gin middleware chain
type Middleware struct {
	serviceID    types.ServiceID
	maxBodyBytes int64
	logger       *logging.Logger
	metrics      *metrics.Collector
}

// NewMiddleware creates the middleware set. collector may be nil.
func NewMiddleware(serviceID types.ServiceID, maxBodyBytes int64, logger *logging.Logger, collector *metrics.Collector) *Middleware {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Middleware{
		serviceID:    serviceID,
		maxBodyBytes: maxBodyBytes,
		logger:       logger.WithComponent("http"),
		metrics:      collector,
	}
}

// Recovery turns panics into a 500 API error
func (m *Middleware) Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		m.logger.Error("Panic recovered in HTTP handler",
			logging.Any("panic", recovered),
			logging.String("path", c.FullPath()),
		)
		abortWithError(c, common.ErrInternal("internal server error"))
	})
}

// RequestContext attaches a RequestContext carrying the caller's correlation
// id, or a fresh one, and echoes it back in the response header
func (m *Middleware) RequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqCtx := types.NewRequestContext(m.serviceID, "http")
		if header := c.GetHeader(correlationHeader); header != "" {
			reqCtx.CorrelationID = types.ParseCorrelationID(header)
		}
		reqCtx.WithClient(c.ClientIP(), c.Request.UserAgent())

		c.Set(requestContextKey, reqCtx)
		c.Request = c.Request.WithContext(logging.ContextWithRequest(c.Request.Context(), reqCtx))
		c.Header(correlationHeader, reqCtx.CorrelationID.String())
		c.Next()
	}
}

// BodyLimit caps request bodies at maxBodyBytes
func (m *Middleware) BodyLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.maxBodyBytes > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, m.maxBodyBytes)
		}
		c.Next()
	}
}

// RequestLogger logs and measures every request
func (m *Middleware) RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		status := c.Writer.Status()

		if m.metrics != nil {
			m.metrics.RecordHTTPRequest(c.Request.Method, endpoint, status, duration)
		}

		fields := []logging.Field{
			logging.String("method", c.Request.Method),
			logging.String("endpoint", endpoint),
			logging.Int("status", status),
			logging.Duration("duration", duration),
		}
		logger := m.logger.WithRequestContext(requestContext(c))
		if status >= http.StatusInternalServerError {
			logger.Error("HTTP request failed", fields...)
			return
		}
		logger.Debug("HTTP request served", fields...)
	}
}

func requestContext(c *gin.Context) *types.RequestContext {
	if v, ok := c.Get(requestContextKey); ok {
		if reqCtx, ok := v.(*types.RequestContext); ok {
			return reqCtx
		}
	}
	return nil
}
