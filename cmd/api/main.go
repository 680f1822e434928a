package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"libactivities/internal/activity"
	"libactivities/internal/auth"
	"libactivities/internal/config"
	"libactivities/internal/enrollment"
	"libactivities/internal/httpmiddleware"
	"libactivities/internal/queue"
	"libactivities/internal/store"
	"libactivities/internal/users"
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

// enrollmentEvent is the queue payload consumed by the worker.
type enrollmentEvent struct {
	EnrollmentID string `json:"enrollment_id"`
	ActivityID   string `json:"activity_id"`
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer bootCancel()
	if err := store.EnsureSchema(bootCtx, db.Client); err != nil {
		return err
	}

	userRepo := users.NewRepository(db.Client)
	if err := userRepo.EnsureAdmin(bootCtx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		return err
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "library:enrollments")
	}

	activities := activity.NewService(activity.NewRepository(db.Client))
	enrollments := enrollment.NewService(enrollment.NewRepository(db.Client))

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.POST("/v1/auth/login", func(c *gin.Context) {
		var req struct {
			Username string `json:"username" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		u, err := userRepo.Authenticate(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			if errors.Is(err, users.ErrInvalidCredentials) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
			return
		}
		tokens, err := auth.Issue(u.ID, u.Role, u.Name, u.Email, u.Phone, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
			"role":          u.Role,
		})
	})

	public := r.Group("/v1", auth.OptionalAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	public.GET("/activities", func(c *gin.Context) {
		claims, _ := auth.FromContext(c)
		admin := claims.Role == auth.RoleAdmin

		var statusFilter *activity.Status
		if v := c.Query("status"); v != "" {
			st := activity.Status(v)
			statusFilter = &st
		}

		list, err := activities.List(c.Request.Context(), statusFilter, admin)
		if err != nil {
			respondErr(c, err)
			return
		}
		out := make([]gin.H, 0, len(list))
		for _, a := range list {
			slots, err := enrollments.AvailableSlots(c.Request.Context(), a)
			if err != nil {
				respondErr(c, err)
				return
			}
			out = append(out, activityJSON(a, slots))
		}
		c.JSON(http.StatusOK, gin.H{"activities": out})
	})

	public.GET("/activities/:id", func(c *gin.Context) {
		claims, _ := auth.FromContext(c)
		a, err := activities.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}
		if a.Status == activity.StatusDraft && claims.Role != auth.RoleAdmin {
			respondErr(c, activity.ErrNotFound)
			return
		}
		slots, err := enrollments.AvailableSlots(c.Request.Context(), a)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, activityJSON(a, slots))
	})

	public.POST("/activities/:id/enroll", func(c *gin.Context) {
		var req struct {
			Name  string `json:"name"`
			Email string `json:"email"`
			Phone string `json:"phone"`
		}
		// Body is optional for authenticated callers; missing name or
		// email is caught by the admission controller's validation.
		_ = c.ShouldBindJSON(&req)
		id := enrollment.Identity{Name: req.Name, Email: req.Email, Phone: req.Phone}
		if claims, ok := auth.FromContext(c); ok {
			id.AccountID = claims.Subject
			if claims.Name != "" {
				id.Name = claims.Name
			}
			if claims.Email != "" {
				id.Email = claims.Email
			}
			if claims.Phone != "" && id.Phone == "" {
				id.Phone = claims.Phone
			}
		}

		e, err := enrollments.Enroll(c.Request.Context(), c.Param("id"), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		publishEvent(c.Request.Context(), q, "enrolled", e.ID, e.ActivityID)
		c.JSON(http.StatusCreated, e)
	})

	public.DELETE("/activities/:id/enroll", func(c *gin.Context) {
		var req struct {
			Email string `json:"email"`
		}
		_ = c.ShouldBindJSON(&req)
		id := enrollment.Identity{Email: req.Email}
		if claims, ok := auth.FromContext(c); ok {
			id.AccountID = claims.Subject
		}
		if id.AccountID == "" && id.Email == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "email required"})
			return
		}
		removed, err := enrollments.Unenroll(c.Request.Context(), c.Param("id"), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		publishEvent(c.Request.Context(), q, "unenrolled", removed.ID, removed.ActivityID)
		c.Status(http.StatusNoContent)
	})

	admin := r.Group("/v1/admin", auth.UserAuth(cfg.JWTSigningKey, cfg.JWTIssuer), auth.RequireAdmin())

	admin.POST("/activities", func(c *gin.Context) {
		in, err := bindCreate(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		a, err := activities.Create(c.Request.Context(), in)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, activityJSON(a, a.MaxSlots))
	})

	admin.PUT("/activities/:id", func(c *gin.Context) {
		in, err := bindEdit(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		a, err := activities.Edit(c.Request.Context(), c.Param("id"), in)
		if err != nil {
			respondErr(c, err)
			return
		}
		slots, err := enrollments.AvailableSlots(c.Request.Context(), a)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, activityJSON(a, slots))
	})

	admin.POST("/activities/:id/status", func(c *gin.Context) {
		var req struct {
			Status string `json:"status" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		a, err := activities.SetStatus(c.Request.Context(), c.Param("id"), activity.Status(req.Status))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": a.ID, "status": a.Status})
	})

	admin.DELETE("/activities/:id", func(c *gin.Context) {
		if err := activities.Delete(c.Request.Context(), c.Param("id")); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	admin.GET("/activities/:id/enrollments", func(c *gin.Context) {
		a, err := activities.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}
		list, err := enrollments.ListByActivity(c.Request.Context(), a.ID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"activity_id": a.ID, "enrollments": list})
	})

	// Walk-in enrollments entered by staff: same admission contract, no
	// account reference, so the dedup key falls back to the email.
	admin.POST("/activities/:id/enrollments", func(c *gin.Context) {
		var req struct {
			Name  string `json:"name" binding:"required"`
			Email string `json:"email" binding:"required"`
			Phone string `json:"phone"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		e, err := enrollments.Enroll(c.Request.Context(), c.Param("id"), enrollment.Identity{
			Name:  req.Name,
			Email: req.Email,
			Phone: req.Phone,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		publishEvent(c.Request.Context(), q, "enrolled", e.ID, e.ActivityID)
		c.JSON(http.StatusCreated, e)
	})

	admin.POST("/enrollments/:id/attendance", func(c *gin.Context) {
		var req struct {
			Attendance string `json:"attendance" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := enrollments.MarkAttendance(c.Request.Context(), c.Param("id"), enrollment.Attendance(req.Attendance)); err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "attendance": req.Attendance})
	})

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

// respondErr maps domain errors onto HTTP statuses. Business-rule
// rejections are 409s, not faults.
func respondErr(c *gin.Context, err error) {
	switch {
	case activity.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, activity.ErrNotFound), errors.Is(err, enrollment.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, enrollment.ErrDuplicate), errors.Is(err, enrollment.ErrCapacity):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, enrollment.ErrConflict):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		log.Printf("internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func activityJSON(a activity.Activity, availableSlots int) gin.H {
	out := gin.H{
		"id":              a.ID,
		"title":           a.Title,
		"description":     a.Description,
		"category":        a.Category,
		"date":            a.Date.Format("2006-01-02"),
		"max_slots":       a.MaxSlots,
		"status":          a.Status,
		"available_slots": availableSlots,
		"created_at":      a.CreatedAt,
		"updated_at":      a.UpdatedAt,
	}
	if a.StartTime != "" {
		out["time"] = a.StartTime
	}
	if a.DurationMin != nil {
		out["duration_min"] = *a.DurationMin
	}
	return out
}

func bindCreate(c *gin.Context) (activity.CreateInput, error) {
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Category    string `json:"category"`
		Date        string `json:"date"`
		Time        string `json:"time"`
		DurationMin *int   `json:"duration_min"`
		MaxSlots    int    `json:"max_slots"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		return activity.CreateInput{}, err
	}
	in := activity.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		StartTime:   req.Time,
		DurationMin: req.DurationMin,
		MaxSlots:    req.MaxSlots,
	}
	if req.Date != "" {
		d, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			return activity.CreateInput{}, errors.New("date must be YYYY-MM-DD")
		}
		in.Date = d
	}
	return in, nil
}

func bindEdit(c *gin.Context) (activity.EditInput, error) {
	var req struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		Category    *string `json:"category"`
		Date        *string `json:"date"`
		Time        *string `json:"time"`
		DurationMin *int    `json:"duration_min"`
		MaxSlots    *int    `json:"max_slots"`
		Status      *string `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		return activity.EditInput{}, err
	}
	in := activity.EditInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		StartTime:   req.Time,
		DurationMin: req.DurationMin,
		MaxSlots:    req.MaxSlots,
	}
	if req.Date != nil {
		d, err := time.Parse("2006-01-02", *req.Date)
		if err != nil {
			return activity.EditInput{}, errors.New("date must be YYYY-MM-DD")
		}
		in.Date = &d
	}
	if req.Status != nil {
		st := activity.Status(*req.Status)
		in.Status = &st
	}
	return in, nil
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
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}

func publishEvent(ctx context.Context, q queue.Queue, kind, enrollmentID, activityID string) {
	body, _ := json.Marshal(enrollmentEvent{EnrollmentID: enrollmentID, ActivityID: activityID})
	if err := q.Publish(ctx, queue.Message{Type: kind, Body: body}); err != nil {
		log.Printf("queue publish failed: %v", err)
	}
}
