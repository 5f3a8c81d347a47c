package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/notelab/notelab/backend/idp-service/handlers"
	"github.com/notelab/notelab/backend/idp-service/internal/authcodes"
	"github.com/notelab/notelab/backend/idp-service/internal/cleanup"
	"github.com/notelab/notelab/backend/idp-service/internal/clients"
	"github.com/notelab/notelab/backend/idp-service/internal/config"
	"github.com/notelab/notelab/backend/idp-service/internal/database"
	"github.com/notelab/notelab/backend/idp-service/internal/federation"
	"github.com/notelab/notelab/backend/idp-service/internal/oidc"
	"github.com/notelab/notelab/backend/idp-service/internal/refreshtokens"
	"github.com/notelab/notelab/backend/idp-service/internal/sessions"
	"github.com/notelab/notelab/backend/idp-service/internal/tokens"
	"github.com/notelab/notelab/backend/idp-service/internal/users"
	"github.com/notelab/notelab/backend/idp-service/pkg/logger"
	"github.com/notelab/notelab/backend/idp-service/pkg/metrics"
	"github.com/notelab/notelab/backend/idp-service/pkg/middleware"
)

var startTime = time.Now()

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: issuer=%s clients=%d mongo=%v redis=%v upstream=%v",
		cfg.Issuer.URL, len(cfg.Clients), cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.Upstream.ClientID != "")

	r := gin.New()

	// Lightweight CORS middleware for dev/test: set common headers and
	// respond to OPTIONS. Production should use a stricter policy.
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	})
	r.Use(gin.Logger(), gin.Recovery())

	ctx := context.Background()

	// Connect to Redis early so the token blacklist and the rate limiter
	// can use it when configured
	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Host + ":" + cfg.Redis.Port, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
			redisClient = nil
		} else {
			sessions.SetBlacklistClient(redisClient)
			logger.Infof("connected to Redis at %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		}
	}
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && redisClient != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(redisClient, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	// Stores: Mongo when configured and reachable, with retry/backoff to
	// tolerate startup races; otherwise in-process memory stores.
	var (
		mongoClient *mongo.Client
		usersRepo   users.Repository
		sessionRepo sessions.Repository
		codesRepo   authcodes.Repository
		refreshRepo refreshtokens.Repository
		identities  federation.IdentityRepository
		uow         database.UnitOfWork
	)
	if cfg.MongoDB.URI != "" {
		const maxAttempts = 5
		backoff := time.Second
		var errConn error
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			mongoClient, errConn = database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
			if errConn == nil {
				break
			}
			logger.Warnf("attempt %d/%d: failed to connect to MongoDB: %v", attempt, maxAttempts, errConn)
			if attempt < maxAttempts {
				time.Sleep(backoff)
				backoff *= 2
			}
		}
		if errConn != nil {
			logger.Warnf("could not connect to MongoDB after %d attempts: %v", maxAttempts, errConn)
			mongoClient = nil
		}
	}
	if mongoClient != nil {
		defer func() { _ = mongoClient.Disconnect(ctx) }()
		db := mongoClient.Database(cfg.MongoDB.Database)

		ur := users.NewMongoRepository(db.Collection("users"))
		if err := ur.EnsureIndexes(ctx); err != nil {
			logger.Warnf("users indexes: %v", err)
		}
		usersRepo = ur

		ir := federation.NewMongoIdentityRepository(db.Collection("federated_identities"))
		if err := ir.EnsureIndexes(ctx); err != nil {
			logger.Warnf("federated identity indexes: %v", err)
		}
		identities = ir

		sessionRepo = sessions.NewMongoRepository(db.Collection("sessions"))
		codesRepo = authcodes.NewMongoRepository(db.Collection("authorization_codes"))
		refreshRepo = refreshtokens.NewMongoRepository(db.Collection("refresh_tokens"))
		uow = database.NewMongoUnitOfWork(mongoClient)
	} else {
		logger.Warnf("using in-memory stores; all state is lost on restart")
		usersRepo = users.NewMemoryRepository()
		identities = federation.NewMemoryIdentityRepository()
		if redisClient != nil {
			sessionRepo = sessions.NewRedisRepository(redisClient, "session:")
			logger.Infof("using Redis for session storage")
		} else {
			sessionRepo = sessions.NewMemoryRepository()
		}
		codesRepo = authcodes.NewMemoryRepository()
		refreshRepo = refreshtokens.NewMemoryRepository()
		uow = database.NewMemoryUnitOfWork()
	}

	registry := clients.NewRegistry(cfg.Clients)
	usersSvc := users.NewService(usersRepo)
	sessionsSvc := sessions.NewService(sessionRepo, cfg.Issuer.SessionTTL)
	codesSvc := authcodes.NewService(codesRepo, cfg.Issuer.AuthCodeTTL)
	refreshSvc := refreshtokens.NewService(refreshRepo, cfg.Issuer.RefreshTokenTTL)
	tokensSvc := tokens.NewService(cfg)

	verifier := oidc.NewMultiVerifier(tokensSvc, cfg.Upstream.Issuer)
	auth := middleware.AuthMiddleware(verifier, sessions.IsAccessTokenBlacklisted)

	// Federated upstream: discovery failure is logged and the routes answer
	// unsupported_provider, the rest of the service still comes up.
	var provider *federation.Provider
	if cfg.Upstream.ClientID != "" {
		provider, err = federation.NewProvider(ctx, cfg.Upstream)
		if err != nil {
			logger.Warnf("upstream provider unavailable: %v", err)
			provider = nil
		}
	}
	bridge := federation.NewBridge(provider, usersSvc, identities, sessionsSvc, codesSvc)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})
	r.GET("/ready", func(c *gin.Context) {
		ready := true
		deps := map[string]bool{
			"storage":  true,
			"upstream": provider != nil || cfg.Upstream.ClientID == "",
		}
		if cfg.Redis.Host != "" {
			deps["redis"] = redisClient != nil
			if cfg.RateLimit.UseRedis && redisClient == nil {
				ready = false
			}
		}
		if mongoClient != nil {
			deps["mongodb"] = mongoClient.Ping(c.Request.Context(), nil) == nil
			if !deps["mongodb"] {
				ready = false
			}
		}
		status := http.StatusOK
		label := "ready"
		if !ready {
			status = http.StatusServiceUnavailable
			label = "not_ready"
		}
		c.JSON(status, gin.H{"status": label, "deps": deps, "uptime": time.Since(startTime).String()})
	})

	root := r.Group("/")
	handlers.NewAuthHandler(cfg, registry, usersSvc, sessionsSvc, codesSvc, refreshSvc).Register(root)
	handlers.NewTokenHandler(registry, usersSvc, codesSvc, refreshSvc, tokensSvc, uow).Register(root)
	handlers.NewFederationHandler(cfg, registry, provider, bridge, sessionsSvc).Register(root)
	handlers.NewUserInfoHandler(usersSvc, identities, cfg.Upstream.Provider).Register(root, auth)
	handlers.NewAPIHandler(usersSvc, sessionsSvc, refreshSvc, identities, cfg.Upstream.Provider).Register(root, auth)
	handlers.NewDiscoveryHandler(cfg.Issuer.URL).Register(root)

	job := cleanup.New(sessionRepo, codesRepo, refreshRepo, time.Hour)
	job.Start(ctx)
	defer job.Stop()

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.Infof("starting identity service on %s", addr)
	if err := r.Run(addr); err != nil {
		logger.Fatalf("server failed: %v", err)
	}
}
