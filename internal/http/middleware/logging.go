// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides the request ID injector, the development access logger,
// panic recovery and the request-scoped logger plumbing shared with
// RedactingLogger.
//
// Recommended order:
//  1. RequestID()
//  2. Logger() in development, RedactingLogger() otherwise
//  3. Recovery()
//
// Both access loggers attach a request-scoped zerolog.Logger carrying the
// request ID and route; handlers and services reach it through LoggerFrom
// (e.g. LoggerFrom(c).Info().Str("message_id", id).Msg("...")).
package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// CtxKeyRequester is the Gin context key handlers use to record the
	// chat requester once the body is bound.
	CtxKeyRequester = "requester"

	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	loggerKey       = "logger"

	// maxRequestIDLen bounds client-supplied correlation IDs.
	maxRequestIDLen = 128
	// maxQueryLogLength caps the number of bytes of the raw query string logged.
	maxQueryLogLength = 2048
)

// RequestID attaches (or propagates) a correlation identifier per request.
// A client-supplied X-Request-ID is reused when it is short and made of
// [A-Za-z0-9._:-] only; anything else is replaced with a fresh UUID so it
// cannot forge log lines. The ID is echoed in the response header and stored
// in the Gin context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if !validRequestID(rid) {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

func validRequestID(s string) bool {
	if s == "" || len(s) > maxRequestIDLen {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == ':':
		default:
			return false
		}
	}
	return true
}

// attachLogger stores a request-scoped logger on c and returns it.
func attachLogger(c *gin.Context, route string) *zerolog.Logger {
	rid, _ := c.Get(requestIDKey)
	l := log.With().
		Str("request_id", asString(rid)).
		Str("route", route).
		Logger()
	c.Set(loggerKey, &l)
	return &l
}

// Logger is the development access logger. Unlike RedactingLogger it logs
// the requester address, remote IP and user agent in clear, so it must not
// be used where logs leave the developer's machine.
//
// Level: error for 5xx or when handlers recorded gin errors, warn for 4xx,
// info otherwise.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		l := attachLogger(c, route)

		c.Next()

		req, _ := c.Get(CtxKeyRequester)
		status := c.Writer.Status()
		ev := l.With().
			Str("method", c.Request.Method).
			Str("path", route).
			Str("query", truncate(c.Request.URL.RawQuery, maxQueryLogLength)).
			Str("remote_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Str("requester", asString(req)).
			Int64("bytes_in", c.Request.ContentLength). // -1 when unknown
			Int("bytes_out", c.Writer.Size()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Logger()

		switch {
		case len(c.Errors) > 0:
			ev.Error().Str("errors", c.Errors.String()).Msg("request")
		case status >= 500:
			ev.Error().Msg("request")
		case status >= 400:
			ev.Warn().Msg("request")
		default:
			ev.Info().Msg("request")
		}
	}
}

// Recovery turns a panic into a JSON 500 in the shape handlers use for
// errors, and logs the panic with its stack. When the handler already
// started writing, only the status is set.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid, _ := c.Get(requestIDKey)
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Header(requestIDHeader, asString(rid))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": asString(rid),
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger. Without an access logger in
// the chain it still tags lines with the request ID when one is known.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	ctx := log.With()
	if rid, ok := c.Get(requestIDKey); ok {
		ctx = ctx.Str("request_id", asString(rid))
	}
	l := ctx.Logger()
	return &l
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// truncate cuts s to max bytes plus an ellipsis; max <= 0 disables it.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
