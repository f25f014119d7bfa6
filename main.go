package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"martin-blog/cache"
	"martin-blog/cdn"
	"martin-blog/config"
	"martin-blog/models"
	"martin-blog/services"
	"martin-blog/storage"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	articleViewsCounter prometheus.Counter
	viewsSyncedCounter  prometheus.Counter
)

func init() {
	articleViewsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "article_views_total",
			Help: "Total number of article detail views served.",
		},
	)
	viewsSyncedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "article_views_synced_total",
			Help: "Total number of articles whose view count was flushed to the database.",
		},
	)
	prometheus.MustRegister(articleViewsCounter, viewsSyncedCounter)
}

// respond schreibt den {code, msg, data}-Umschlag des Frontend-Vertrags.
// HTTP bleibt 200, der Zustand steckt im Envelope-Code.
func respond(c *gin.Context, code int, msg string, data any) {
	c.JSON(http.StatusOK, gin.H{"code": code, "msg": msg, "data": data})
}

// adminDetectMiddleware markiert Requests mit gültigem API-Key als Admin,
// ohne andere Requests abzubrechen.
func adminDetectMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey != "" && c.GetHeader("X-API-KEY") == cfg.APISecretKey {
			c.Set("isAdmin", true)
		}
		c.Next()
	}
}

// requireAdmin bricht Requests ohne Admin-Markierung ab.
func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool("isAdmin") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to blog database.")

	logging.Info("Running database auto-migration...")
	db.AutoMigrate(&models.Category{}, &models.Tag{}, &models.Article{}, &models.ArticleLike{}, &models.Resource{})

	// Cache-Client: explizit konstruiert und injiziert, kein Modul-Singleton
	cacheClient := cache.NewClient(cfg, logging)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := cacheClient.Ping(pingCtx); err != nil {
		logging.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	cancel()
	logging.Info("Successfully connected to Redis.")

	// Signer-Variante per Konfiguration wählen
	var signer cdn.Signer
	if cfg.TimestampSigningEnabled() {
		signer = &cdn.ProviderSigner{Domain: cfg.CDNDomain, Secret: cfg.CDNTimestampKey, ExpireSeconds: cfg.CDNTimestampExpire}
		logging.Info("Link signing active", zap.String("scheme", "provider-timestamp"))
	} else {
		signer = &cdn.ApplicationSigner{Domain: cfg.CDNDomain}
		logging.Info("Link signing active", zap.String("scheme", "application"))
	}

	articleService := services.NewArticleService(cfg, db, cacheClient, signer, logging)
	resourceService := services.NewResourceService(cfg, db, cacheClient, logging)
	viewSyncService := services.NewViewSyncService(db, cacheClient, logging)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(adminDetectMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	setupArticleRoutes(router, articleService, logging)
	setupResourceRoutes(router, cfg, resourceService, logging)
	setupUploadRoutes(router, cfg, logging)

	// View-Sync-Job: fester Takt, unabhängig vom Request-Handling
	cronScheduler := cron.New()
	cronScheduler.AddFunc(fmt.Sprintf("@every %dm", cfg.SyncViewsIntervalMinutes), func() {
		count, err := viewSyncService.Run(context.Background())
		if err != nil {
			logging.Error("View sync job failed", zap.Error(err))
		} else {
			viewsSyncedCounter.Add(float64(count))
		}
	})
	cronScheduler.Start()
	logging.Info("View sync job scheduled", zap.Int("interval_minutes", cfg.SyncViewsIntervalMinutes))

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal("Failed to run server", zap.Error(err))
		}
	}()

	// Shutdown: keine neuen Ticks mehr annehmen, laufenden Sync-Durchlauf
	// fertig laufen lassen, dann Verbindungen schließen
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info("Shutting down...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error("Server shutdown failed", zap.Error(err))
	}
	<-cronScheduler.Stop().Done()
	if err := cacheClient.Close(); err != nil {
		logging.Error("Redis close failed", zap.Error(err))
	}
	logging.Info("Shutdown complete.")
}

func setupArticleRoutes(router *gin.Engine, svc *services.ArticleService, log *zap.Logger) {
	rg := router.Group("/articles")

	// Öffentliche Liste (ohne Entwürfe und versteckte Artikel)
	rg.GET("", func(c *gin.Context) {
		params := services.ListParams{
			Current: queryInt(c, "current", 1),
			Size:    clamp(queryInt(c, "size", 10), 1, 100),
			Keyword: c.Query("keyword"),
			Sort:    c.DefaultQuery("sort", "new"),
		}
		params.CategoryID = uint(queryInt(c, "categoryId", 0))
		params.TagID = uint(queryInt(c, "tagId", 0))

		page, err := svc.List(c.Request.Context(), params)
		if err != nil {
			log.Error("Database query for articles failed", zap.Error(err))
			respond(c, 500, "internal error", nil)
			return
		}
		respond(c, 200, "", page)
	})

	// Admin-Liste inkl. Entwürfe
	rg.GET("/admin/list", requireAdmin(), func(c *gin.Context) {
		params := services.ListParams{
			Current: queryInt(c, "current", 1),
			Size:    clamp(queryInt(c, "size", 10), 1, 100),
			Keyword: c.Query("keyword"),
			Admin:   true,
		}
		page, err := svc.List(c.Request.Context(), params)
		if err != nil {
			log.Error("Database query for admin articles failed", zap.Error(err))
			respond(c, 500, "internal error", nil)
			return
		}
		respond(c, 200, "", page)
	})

	// Detail-Ansicht; "answer" ist die optionale Schutz-Antwort
	rg.GET("/:id", func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			respond(c, 400, "invalid article id", nil)
			return
		}

		detail, status, err := svc.GetDetail(c.Request.Context(), uint(id), c.GetBool("isAdmin"), c.Query("answer"))
		if err != nil {
			// Interne Fehlertexte gehen nie an den Client
			log.Error("Article detail assembly failed", zap.Uint64("article_id", id), zap.Error(err))
			respond(c, 500, "internal error", nil)
			return
		}
		switch status {
		case services.DetailNotFound:
			respond(c, 404, "article not found", nil)
		case services.DetailNeedsVerify:
			articleViewsCounter.Inc()
			respond(c, 403, "verification required", detail)
		default:
			articleViewsCounter.Inc()
			respond(c, 200, "", detail)
		}
	})

	rg.POST("", requireAdmin(), func(c *gin.Context) {
		var in services.ArticleInput
		if err := c.ShouldBindJSON(&in); err != nil {
			respond(c, 400, "invalid request body", nil)
			return
		}
		article, err := svc.Create(c.Request.Context(), in, 1)
		if err != nil {
			log.Error("Failed to create article", zap.Error(err))
			respond(c, 500, "internal error", nil)
			return
		}
		log.Info("Article created", zap.Uint("id", article.ID), zap.String("title", article.Title))
		respond(c, 200, "created", gin.H{"id": article.ID})
	})

	rg.PUT("/:id", requireAdmin(), func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			respond(c, 400, "invalid article id", nil)
			return
		}
		var in services.ArticleInput
		if err := c.ShouldBindJSON(&in); err != nil {
			respond(c, 400, "invalid request body", nil)
			return
		}
		if err := svc.Update(c.Request.Context(), uint(id), in); err != nil {
			if errors.Is(err, services.ErrNotFound) {
				respond(c, 404, "article not found", nil)
				return
			}
			log.Error("Failed to update article", zap.Uint64("id", id), zap.Error(err))
			respond(c, 500, "internal error", nil)
			return
		}
		respond(c, 200, "updated", nil)
	})

	rg.DELETE("/:id", requireAdmin(), func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			respond(c, 400, "invalid article id", nil)
			return
		}
		if err := svc.Delete(c.Request.Context(), uint(id)); err != nil {
			if errors.Is(err, services.ErrNotFound) {
				respond(c, 404, "article not found", nil)
				return
			}
			log.Error("Failed to delete article", zap.Uint64("id", id), zap.Error(err))
			respond(c, 500, "internal error", nil)
			return
		}
		respond(c, 200, "deleted", nil)
	})

	rg.POST("/:id/like", func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			respond(c, 400, "invalid article id", nil)
			return
		}
		count, err := svc.Like(c.Request.Context(), uint(id), nil, c.ClientIP())
		switch {
		case errors.Is(err, services.ErrNotFound):
			respond(c, 404, "article not found", nil)
		case errors.Is(err, services.ErrAlreadyLiked):
			respond(c, 400, "already liked", gin.H{"likeCount": count})
		case err != nil:
			log.Error("Failed to like article", zap.Uint64("id", id), zap.Error(err))
			respond(c, 500, "internal error", nil)
		default:
			respond(c, 200, "liked", gin.H{"likeCount": count})
		}
	})

	rg.DELETE("/:id/like", func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			respond(c, 400, "invalid article id", nil)
			return
		}
		count, err := svc.Unlike(c.Request.Context(), uint(id), nil, c.ClientIP())
		switch {
		case errors.Is(err, services.ErrNotFound):
			respond(c, 404, "article not found", nil)
		case errors.Is(err, services.ErrNotLiked):
			respond(c, 400, "not liked yet", gin.H{"likeCount": count})
		case err != nil:
			log.Error("Failed to unlike article", zap.Uint64("id", id), zap.Error(err))
			respond(c, 500, "internal error", nil)
		default:
			respond(c, 200, "unliked", gin.H{"likeCount": count})
		}
	})

	rg.GET("/:id/like/status", func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			respond(c, 400, "invalid article id", nil)
			return
		}
		liked, count, err := svc.LikeStatus(c.Request.Context(), uint(id), nil, c.ClientIP())
		if errors.Is(err, services.ErrNotFound) {
			respond(c, 404, "article not found", nil)
			return
		}
		if err != nil {
			log.Error("Failed to fetch like status", zap.Uint64("id", id), zap.Error(err))
			respond(c, 500, "internal error", nil)
			return
		}
		respond(c, 200, "", gin.H{"isLiked": liked, "likeCount": count})
	})
}

func setupResourceRoutes(router *gin.Engine, cfg *config.Config, svc *services.ResourceService, log *zap.Logger) {
	rg := router.Group("/resources")

	rg.POST("", requireAdmin(), func(c *gin.Context) {
		var in struct {
			Key       string `json:"key" binding:"required"`
			Name      string `json:"name"`
			MediaType string `json:"media_type"`
			Size      int64  `json:"size"`
		}
		if err := c.ShouldBindJSON(&in); err != nil {
			respond(c, 400, "invalid request body", nil)
			return
		}
		resource, created, err := svc.Create(c.Request.Context(), &models.Resource{
			Key: in.Key, Name: in.Name, MediaType: in.MediaType, Size: in.Size,
		})
		if err != nil {
			log.Error("Failed to create resource", zap.Error(err))
			respond(c, 500, "internal error", nil)
			return
		}
		msg := "resource recorded"
		if !created {
			msg = "resource already exists"
		}
		respond(c, 200, msg, resource)
	})

	rg.GET("", requireAdmin(), func(c *gin.Context) {
		page, err := svc.List(c.Request.Context(),
			queryInt(c, "current", 1),
			clamp(queryInt(c, "size", 20), 1, 100),
			c.Query("type"))
		if err != nil {
			log.Error("Database query for resources failed", zap.Error(err))
			respond(c, 500, "internal error", nil)
			return
		}
		respond(c, 200, "", page)
	})

	rg.DELETE("/:id", requireAdmin(), func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			respond(c, 400, "invalid resource id", nil)
			return
		}
		key, err := svc.Delete(c.Request.Context(), uint(id))
		if errors.Is(err, services.ErrNotFound) {
			respond(c, 404, "resource not found", nil)
			return
		}
		if err != nil {
			log.Error("Failed to delete resource", zap.Uint64("id", id), zap.Error(err))
			respond(c, 500, "internal error", nil)
			return
		}

		// Objekt im Bucket mitlöschen; Fehler dort blockieren die DB-Löschung nicht
		if cfg.MediaStorageEnabled() {
			s3Client, err := storage.NewS3Client(cfg)
			if err == nil {
				err = storage.DeleteFile(c.Request.Context(), s3Client, key, cfg)
			}
			if err != nil {
				log.Warn("Failed to delete object from bucket", zap.String("key", key), zap.Error(err))
			}
		}
		respond(c, 200, "deleted", nil)
	})
}

func setupUploadRoutes(router *gin.Engine, cfg *config.Config, log *zap.Logger) {
	rg := router.Group("/upload")

	// Datei in den Medien-Bucket hochladen (Admin)
	rg.POST("/file", requireAdmin(), func(c *gin.Context) {
		if !cfg.MediaStorageEnabled() {
			respond(c, 501, "media storage not configured", nil)
			return
		}
		fileHeader, err := c.FormFile("file")
		if err != nil {
			respond(c, 400, "file field is required", nil)
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			respond(c, 400, "unreadable file", nil)
			return
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			respond(c, 400, "unreadable file", nil)
			return
		}

		s3Client, err := storage.NewS3Client(cfg)
		if err != nil {
			log.Error("S3 client creation failed", zap.Error(err))
			respond(c, 500, "internal error", nil)
			return
		}
		key := fmt.Sprintf("uploads/%d-%s", time.Now().Unix(), fileHeader.Filename)
		link, err := storage.UploadFile(c.Request.Context(), s3Client, key, data, fileHeader.Header.Get("Content-Type"), cfg)
		if err != nil {
			log.Error("Upload to bucket failed", zap.String("key", key), zap.Error(err))
			respond(c, 500, "internal error", nil)
			return
		}
		log.Info("File uploaded", zap.String("key", key), zap.Int64("size", fileHeader.Size))
		respond(c, 200, "", gin.H{"key": key, "url": link})
	})

	// App-Level-Signatur für einen Objekt-Key erzeugen; die nach außen
	// sichtbaren Parameter wechseln mit jedem Zeitstempel
	rg.GET("/encrypt-key", func(c *gin.Context) {
		key := c.Query("key")
		if key == "" {
			respond(c, 400, "key is required", nil)
			return
		}
		timestamp := time.Now().Unix()
		sign := cdn.SignKey(key, timestamp, cfg.URLSignSecret)
		respond(c, 200, "", gin.H{
			"key":     key,
			"t":       timestamp,
			"sign":    sign,
			"expires": timestamp + 3600,
		})
	})

	// Signierten Key in eine echte, Anbieter-signierte URL auflösen.
	// Rohe Objekt-Keys sind über diesen Endpunkt nie direkt erreichbar.
	rg.GET("/signed-url", func(c *gin.Context) {
		key := c.Query("key")
		sign := c.Query("sign")
		timestamp, err := strconv.ParseInt(c.Query("t"), 10, 64)
		if key == "" || sign == "" || err != nil {
			respond(c, 400, "key, t and sign are required", nil)
			return
		}
		if !cdn.VerifyKey(key, timestamp, sign, cfg.URLSignSecret) {
			respond(c, 403, "signature invalid or expired", nil)
			return
		}
		if cfg.CDNDomain == "" {
			respond(c, 501, "cdn not configured", nil)
			return
		}

		baseURL := fmt.Sprintf("%s/%s", cfg.CDNDomain, key)
		url := baseURL
		if cfg.TimestampSigningEnabled() {
			url = cdn.TimestampSignedURL(baseURL, key, cfg.CDNTimestampKey, cfg.CDNTimestampExpire)
		}
		respond(c, 200, "", gin.H{"url": url})
	})

	// Mehrere Keys in einem Rutsch signieren
	rg.GET("/batch-urls", func(c *gin.Context) {
		keys := c.Query("keys")
		if keys == "" {
			respond(c, 400, "keys is required", nil)
			return
		}
		timestamp := time.Now().Unix()
		result := gin.H{}
		for _, key := range splitNonEmpty(keys, ",") {
			baseURL := fmt.Sprintf("%s/%s", cfg.CDNDomain, key)
			url := baseURL
			if cfg.TimestampSigningEnabled() {
				url = cdn.TimestampSignedURL(baseURL, key, cfg.CDNTimestampKey, cfg.CDNTimestampExpire)
			}
			result[key] = gin.H{
				"url":     url,
				"t":       timestamp,
				"sign":    cdn.SignKey(key, timestamp, cfg.URLSignSecret),
				"expires": timestamp + 3600,
			}
		}
		respond(c, 200, "", result)
	})
}

func queryInt(c *gin.Context, name string, fallback int) int {
	val, err := strconv.Atoi(c.Query(name))
	if err != nil || val <= 0 {
		return fallback
	}
	return val
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
