package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Rob-Kly/Project-Zeiterfassung/internal/app"
	"github.com/Rob-Kly/Project-Zeiterfassung/internal/auth"
	"github.com/Rob-Kly/Project-Zeiterfassung/internal/config"
	"github.com/Rob-Kly/Project-Zeiterfassung/internal/correction"
	"github.com/Rob-Kly/Project-Zeiterfassung/internal/httpmiddleware"
	"github.com/Rob-Kly/Project-Zeiterfassung/internal/metrics"
	"github.com/Rob-Kly/Project-Zeiterfassung/internal/nfc"
	"github.com/Rob-Kly/Project-Zeiterfassung/internal/roster"
	"github.com/Rob-Kly/Project-Zeiterfassung/internal/timeclock"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx := context.Background()

	za, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer za.Close()

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		status := http.StatusOK
		redisHealthy := true
		if za.Redis != nil {
			redisHealthy = za.Redis.Healthy(c.Request.Context())
			if !redisHealthy {
				status = http.StatusServiceUnavailable
			}
		}
		c.JSON(status, gin.H{"status": "ok", "storage": cfg.Storage, "redis": redisHealthy})
	})

	r.POST("/api/login", func(c *gin.Context) {
		var req struct {
			Username string `json:"username" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		profile, err := za.Roster.Authenticate(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			if errors.Is(err, roster.ErrBadCredentials) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "wrong username or password"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
			return
		}

		role := profile.Role
		if role == "" {
			role = "user"
		}
		token, exp, err := auth.Issue(profile.ID, role, profile.FullName(), cfg.JWTIssuer, cfg.JWTSigningKey, cfg.SessionTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token":      token,
			"expires_at": exp.Unix(),
			"user_id":    profile.ID,
			"role":       role,
			"name":       profile.FullName(),
		})
	})

	api := r.Group("/api", auth.SessionAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	api.POST("/clock", func(c *gin.Context) {
		var req struct {
			UserID string `json:"user_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id missing"})
			return
		}
		if !auth.CanActFor(auth.FromContext(c), req.UserID) {
			c.JSON(http.StatusForbidden, gin.H{"error": "cannot clock for another user"})
			return
		}

		res, err := za.Clock.Clock(c.Request.Context(), req.UserID, time.Now())
		if err != nil {
			writeError(c, err)
			return
		}

		metrics.ClockEvents.WithLabelValues(string(res.Action)).Inc()
		if res.Anomaly {
			metrics.Anomalies.WithLabelValues(string(res.Action)).Inc()
		}
		c.JSON(http.StatusOK, gin.H{"message": res.Message, "action": res.Action})
	})

	api.GET("/users/:id/hours", func(c *gin.Context) {
		subjectID := c.Param("id")
		if !auth.CanActFor(auth.FromContext(c), subjectID) {
			c.JSON(http.StatusForbidden, gin.H{"error": "not your report"})
			return
		}
		start, err := time.ParseInLocation(timeclock.DateLayout, c.Query("start"), time.Local)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "start must be YYYY-MM-DD"})
			return
		}
		end, err := time.ParseInLocation(timeclock.DateLayout, c.Query("end"), time.Local)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "end must be YYYY-MM-DD"})
			return
		}

		summary, err := za.Sheets.WorkedHours(c.Request.Context(), subjectID, start, end)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	})

	api.GET("/users/:id/summary", func(c *gin.Context) {
		subjectID := c.Param("id")
		if !auth.CanActFor(auth.FromContext(c), subjectID) {
			c.JSON(http.StatusForbidden, gin.H{"error": "not your report"})
			return
		}
		dash, err := za.Sheets.DayWeekMonth(c.Request.Context(), subjectID, time.Now())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, dash)
	})

	api.GET("/users/:id/events", func(c *gin.Context) {
		subjectID := c.Param("id")
		if !auth.CanActFor(auth.FromContext(c), subjectID) {
			c.JSON(http.StatusForbidden, gin.H{"error": "not your log"})
			return
		}
		events, err := za.Clock.Log(c.Request.Context(), subjectID)
		if err != nil {
			writeError(c, err)
			return
		}
		if events == nil {
			events = []timeclock.Event{}
		}
		c.JSON(http.StatusOK, gin.H{"events": events})
	})

	admin := api.Group("", auth.RequireAdmin())

	admin.POST("/clock/card", func(c *gin.Context) {
		var req struct {
			CardCode string `json:"card_code" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "card_code missing"})
			return
		}

		res, err := za.Cards.Clock(c.Request.Context(), req.CardCode, time.Now())
		if err != nil {
			if errors.Is(err, nfc.ErrUnknownCard) {
				metrics.CardScans.WithLabelValues("unknown").Inc()
			}
			writeError(c, err)
			return
		}
		metrics.CardScans.WithLabelValues("resolved").Inc()
		metrics.ClockEvents.WithLabelValues(string(res.Action)).Inc()
		if res.Anomaly {
			metrics.Anomalies.WithLabelValues(string(res.Action)).Inc()
		}
		c.JSON(http.StatusOK, gin.H{"message": res.Message, "action": res.Action})
	})

	admin.GET("/reports/monthly", func(c *gin.Context) {
		year, err1 := strconv.Atoi(c.Query("year"))
		month, err2 := strconv.Atoi(c.Query("month"))
		if err1 != nil || err2 != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "year and month required"})
			return
		}
		report, err := za.Sheets.MonthlyReport(c.Request.Context(), year, month)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	})

	admin.POST("/reports/monthly/export", func(c *gin.Context) {
		year, err1 := strconv.Atoi(c.Query("year"))
		month, err2 := strconv.Atoi(c.Query("month"))
		if err1 != nil || err2 != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "year and month required"})
			return
		}
		path, err := za.Sheets.ExportMonthly(c.Request.Context(), cfg.ReportsDir, year, month)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"path": path})
	})

	adm := api.Group("/admin", auth.RequireAdmin())

	// Opening the review listing clears the warning flag; fixing
	// individual entries does not.
	adm.GET("/corrections", func(c *gin.Context) {
		pending, err := za.Corrections.PendingAll(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		if err := za.Corrections.ClearFlag(c.Request.Context()); err != nil {
			log.Printf("clear pending flag failed: %v", err)
		}
		if pending == nil {
			pending = []correction.SubjectPending{}
		}
		c.JSON(http.StatusOK, gin.H{
			"candidates":    pending,
			"default_start": za.Defaults.WorkStart.String(),
			"default_end":   za.Defaults.WorkEnd.String(),
		})
	})

	adm.GET("/corrections/flag", func(c *gin.Context) {
		pending, err := za.Corrections.Flag(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"new_pending_corrections": pending})
	})

	adm.POST("/corrections", func(c *gin.Context) {
		var req struct {
			UserID  string `json:"user_id" binding:"required"`
			Date    string `json:"date" binding:"required"`
			Type    string `json:"type" binding:"required"`
			NewTime string `json:"new_time" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := za.Corrections.Apply(c.Request.Context(), req.UserID, req.Date, timeclock.Kind(req.Type), req.NewTime); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "corrected"})
	})

	adm.GET("/anomalies", func(c *gin.Context) {
		records, err := za.Clock.Anomalies(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		if records == nil {
			records = []timeclock.Anomaly{}
		}
		c.JSON(http.StatusOK, gin.H{"anomalies": records})
	})

	adm.GET("/users", func(c *gin.Context) {
		profiles, err := za.Roster.List(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"users": sanitizeAll(profiles)})
	})

	adm.POST("/users", func(c *gin.Context) {
		var req struct {
			FirstName string `json:"first_name" binding:"required"`
			LastName  string `json:"last_name" binding:"required"`
			CardCode  string `json:"nfc_code"`
			Password  string `json:"password"`
			Role      string `json:"role"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		profile, err := za.Roster.Add(c.Request.Context(), req.FirstName, req.LastName, req.CardCode, req.Password, req.Role)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"user": sanitize(profile), "user_id": profile.ID})
	})

	adm.PUT("/users/:id", func(c *gin.Context) {
		var req struct {
			FirstName string `json:"first_name"`
			LastName  string `json:"last_name"`
			CardCode  string `json:"nfc_code"`
			Password  string `json:"password"`
			Role      string `json:"role"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		profile, err := za.Roster.Update(c.Request.Context(), c.Param("id"), req.FirstName, req.LastName, req.CardCode, req.Password, req.Role)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": sanitize(profile)})
	})

	adm.DELETE("/users/:id", func(c *gin.Context) {
		if err := za.Roster.Remove(c.Request.Context(), c.Param("id")); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "removed"})
	})

	adm.POST("/users/:id/card", func(c *gin.Context) {
		var req struct {
			CardCode string `json:"card_code" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "card_code missing"})
			return
		}
		profile, err := za.Roster.AssignCard(c.Request.Context(), c.Param("id"), req.CardCode)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": sanitize(profile)})
	})

	adm.GET("/cards/unknown", func(c *gin.Context) {
		cards, err := za.Cards.UnknownCards(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		if cards == nil {
			cards = []nfc.UnknownCard{}
		}
		c.JSON(http.StatusOK, gin.H{"cards": cards})
	})

	adm.GET("/cards/last", func(c *gin.Context) {
		scan, err := za.Cards.Last(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		if scan == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no card scanned yet"})
			return
		}
		c.JSON(http.StatusOK, scan)
	})

	// When the scan queue is in-memory the reader publishes into this
	// process, so drain it here.
	consumeCtx, cancelConsume := context.WithCancel(ctx)
	defer cancelConsume()
	if cfg.QueueBackend != "redis" {
		go consumeScans(consumeCtx, za)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

func consumeScans(ctx context.Context, za *app.App) {
	scans, err := za.Scans.Consume(ctx)
	if err != nil {
		log.Printf("scan consume init failed: %v", err)
		return
	}
	for scan := range scans {
		res, err := za.Cards.Clock(ctx, scan.Code, scan.At)
		if err != nil {
			metrics.CardScans.WithLabelValues("unknown").Inc()
			log.Printf("card %s: %v", scan.Code, err)
			continue
		}
		metrics.CardScans.WithLabelValues("resolved").Inc()
		metrics.ClockEvents.WithLabelValues(string(res.Action)).Inc()
		if res.Anomaly {
			metrics.Anomalies.WithLabelValues(string(res.Action)).Inc()
		}
		log.Println(res.Message)
	}
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, roster.ErrUnknownSubject):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, nfc.ErrUnknownCard):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, correction.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, correction.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, roster.ErrCardTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		log.Printf("internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func sanitize(p roster.Profile) roster.Profile {
	p.Password = ""
	return p
}

func sanitizeAll(profiles map[string]roster.Profile) map[string]roster.Profile {
	out := make(map[string]roster.Profile, len(profiles))
	for id, p := range profiles {
		out[id] = sanitize(p)
	}
	return out
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
