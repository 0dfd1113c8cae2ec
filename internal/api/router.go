package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"classroom/internal/attendance"
	"classroom/internal/auth"
	"classroom/internal/httpmiddleware"
	"classroom/internal/sessions"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Deps are the services the HTTP layer calls into.
type Deps struct {
	Sessions   *sessions.Service
	Issuer     *attendance.TokenIssuer
	Correlator *attendance.Correlator
	Log        *slog.Logger

	SigningKey   string
	JWTIssuer    string
	AllowOrigins []string
	Health       map[string]HealthCheck

	// KeyLimiter throttles customer key minting per client; nil disables it.
	KeyLimiter httpmiddleware.Limiter
}

type server struct {
	Deps
	clock func() time.Time
}

// NewRouter builds the gin engine with all routes.
func NewRouter(d Deps) *gin.Engine {
	registerValidators()
	if d.Log == nil {
		d.Log = slog.Default()
	}
	s := &server{Deps: d, clock: time.Now}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))

	corsCfg := cors.DefaultConfig()
	if len(d.AllowOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = d.AllowOrigins
	}
	corsCfg.AddAllowHeaders("Authorization")
	corsCfg.MaxAge = 24 * time.Hour
	r.Use(cors.New(corsCfg))
	r.Use(securityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", s.health)

	// The meeting provider authenticates at the edge.
	r.POST("/webhook", s.webhook)

	v1 := r.Group("/v1")
	v1.GET("/classes/:classID/schedule", s.getSchedule)
	v1.GET("/classes/:classID/sessions", s.listSessions)

	// A customer key lets its holder act as the student in the meeting, so
	// students only get their own.
	member := v1.Group("", auth.RequireRole(d.SigningKey, d.JWTIssuer, auth.RoleStudent, auth.RoleOrganizer))
	keyHandlers := []gin.HandlerFunc{s.issueKey}
	if d.KeyLimiter != nil {
		keyHandlers = append([]gin.HandlerFunc{httpmiddleware.PerClientIP(d.KeyLimiter, d.Log)}, keyHandlers...)
	}
	member.POST("/sessions/:sessionID/students/:studentID/key", keyHandlers...)

	organizer := v1.Group("", auth.RequireRole(d.SigningKey, d.JWTIssuer, auth.RoleOrganizer))
	organizer.PUT("/classes/:classID/schedule", s.updateSchedule)
	organizer.GET("/sessions/:sessionID/attendance", s.listAttendance)
	organizer.POST("/sessions/:sessionID/students/:studentID/attendance", s.markPresent)

	return r
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}

func (s *server) health(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range s.Health {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}
