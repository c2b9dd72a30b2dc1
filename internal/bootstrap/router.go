package bootstrap

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	httpapi "github.com/pixelforge/imagegen-backend/internal/api/http"
	"github.com/pixelforge/imagegen-backend/internal/api/http/middleware"
	imghttp "github.com/pixelforge/imagegen-backend/internal/image_generation/http"
	"github.com/pixelforge/imagegen-backend/internal/platform/logger"
)

type RouterDeps struct {
	ServiceName string
	Version     string
	CORSOrigins []string
	DB          *pgxpool.Pool
	Redis       *redis.Client
	Log         *logger.Logger
	Images      *imghttp.Handler
}

func BuildRouter(dep RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware(dep.Log))
	r.Use(middleware.CORS(dep.CORSOrigins))

	healthHandler := httpapi.NewHealthHandler(dep.ServiceName, dep.Version, dep.DB, dep.Redis)
	healthHandler.RegisterRoutes(r)

	api := r.Group("/api/v1")
	dep.Images.Register(api)

	return r
}
