package main // Entry point package

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/accesshub/cloud-access-gateway/internal/access"
	"github.com/accesshub/cloud-access-gateway/internal/config"
	"github.com/accesshub/cloud-access-gateway/internal/database"
	"github.com/accesshub/cloud-access-gateway/internal/handler"
	"github.com/accesshub/cloud-access-gateway/internal/middleware"
	"github.com/accesshub/cloud-access-gateway/internal/queue"
	"github.com/accesshub/cloud-access-gateway/internal/repository"
	"github.com/accesshub/cloud-access-gateway/internal/router"
)

func main() {
	// .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := database.EnsureSchema(ctx, db); err != nil {
		cancel()
		log.Fatalf("schema: %v", err)
	}
	cancel()

	// Redis backs the edge limiter and the catalog response cache. A nil
	// client disables both; the gateway itself keeps working.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("redis unavailable; edge limiting and response caching disabled")
	}

	users := repository.NewUserRepo(db)
	services := repository.NewServiceRepo(db)
	perms := repository.NewPermissionRepo(db)
	plans := repository.NewPlanRepo(db)
	grants := repository.NewAccessRepo(db)
	usage := repository.NewUsageRepo(db)

	engine := access.NewEngine(services, grants, usage)

	authH := handler.NewAuthHandler(cfg, users)
	userH := handler.NewUserHandler(cfg, users, plans)
	serviceH := handler.NewServiceHandler(services, engine)
	accessH := handler.NewAccessHandler(users, services, grants)
	permH := handler.NewPermissionHandler(perms)
	planH := handler.NewPlanHandler(plans)
	usageH := handler.NewUsageHandler(usage)

	e := echo.New()
	e.Use(middleware.NewEdgeLimiter(config.LoadEdgeLimitConfig(), rdb))

	var cacheMW echo.MiddlewareFunc
	if rdb != nil {
		cacheMW = middleware.ResponseCache(config.LoadCacheConfig(), rdb)
	}

	router.RegisterRoutes(e)
	router.RegisterAuth(e, authH, cfg.JWTSecret)
	router.RegisterUsers(e, userH, cfg.JWTSecret)
	router.RegisterCatalog(e, serviceH, usageH, cfg.JWTSecret, cacheMW)
	router.RegisterAccessControl(e, accessH, cfg.JWTSecret)
	router.RegisterPermissions(e, permH, cfg.JWTSecret)
	router.RegisterPlans(e, planH, cfg.JWTSecret)

	// Audit consumer runs for the life of the process and reconnects on its
	// own; it never takes the API down with it.
	go func() {
		if err := queue.StartUsageConsumer(); err != nil {
			log.Printf("usage consumer stopped: %v", err)
		}
	}()

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
