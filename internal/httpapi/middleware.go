package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"imagegate/internal/ratelimit"
)

const subjectKey = "auth_subject"

func (s *Server) auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(s.jwtSecret) == 0 {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		scheme, raw, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorCodeResponse(CodeUnauthorized))
			return
		}

		claims := jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(strings.TrimSpace(raw), &claims, func(*jwt.Token) (any, error) {
			return s.jwtSecret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid || claims.Subject == "" {
			s.logger.Debug().Err(err).Msg("rejected bearer token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorCodeResponse(CodeUnauthorized))
			return
		}

		c.Set(subjectKey, claims.Subject)
		c.Next()
	}
}

func (s *Server) demoGate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.demoMode {
			c.AbortWithStatusJSON(http.StatusOK, errorCodeResponse(CodeDemoReadOnly))
			return
		}
		c.Next()
	}
}

// rateGate charges scope per authenticated subject, or per client IP when auth
// is off. Limiter errors let the request through.
func (s *Server) rateGate(scope ratelimit.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil {
			c.Next()
			return
		}
		subject := "ip:" + c.ClientIP()
		if sub := c.GetString(subjectKey); sub != "" {
			subject = "sub:" + sub
		}

		q, err := s.limiter.Allow(c.Request.Context(), scope, subject, s.now())
		if err != nil {
			s.logger.Error().Err(err).Str("scope", string(scope)).Msg("rate limiter failed")
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", strconv.FormatInt(q.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(q.Remaining(), 10))
		if !q.Allowed {
			s.metrics.RateLimited.Inc()
			retry := int(q.ResetAt.Sub(s.now()).Seconds())
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			s.logger.Info().Str("subject", subject).Str("scope", string(scope)).Int64("used", q.Used).Msg("rate limited")
			c.AbortWithStatusJSON(http.StatusOK, errorCodeResponse(CodeRateLimited))
			return
		}
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.logger.Info().
			Str("method", c.Request.Method).
			Str("route", route).
			Int("status", c.Writer.Status()).
			Int64("latency_ms", time.Since(start).Milliseconds()).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}

func (s *Server) recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, err any) {
		s.logger.Error().Interface("panic", err).Str("route", c.FullPath()).Msg("handler panic")
		c.AbortWithStatusJSON(http.StatusOK, errorCodeResponse(CodeInternal))
	})
}
