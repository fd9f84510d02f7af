package server

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/modelpick/modelpick/internal/catalog"
	"github.com/modelpick/modelpick/internal/session"
)

//go:embed index.html
var indexPage []byte

// Dependencies carries everything the HTTP layer needs. Advisor, Hub and
// Kaggle may be nil when their credentials are absent; the affected routes
// then answer 503.
type Dependencies struct {
	Catalog  *catalog.Catalog
	Sessions *session.Store
	Advisor  TaskAdvisor
	Hub      HubSearcher
	Kaggle   KaggleSearcher
	Logger   *zap.Logger
}

type Server struct {
	echoInstance *echo.Echo
	logger       *zap.Logger
}

func New(dependencies Dependencies) *Server {
	echoInstance := echo.New()
	echoInstance.HideBanner = true
	echoInstance.HidePort = true
	echoInstance.Use(middleware.Recover())
	echoInstance.Use(requestLogging(dependencies.Logger))

	RegisterRoutes(echoInstance, dependencies)

	return &Server{echoInstance: echoInstance, logger: dependencies.Logger}
}

// RegisterRoutes mounts every route on the given echo instance.
func RegisterRoutes(echoInstance *echo.Echo, dependencies Dependencies) {
	echoInstance.GET("/", func(c echo.Context) error {
		return c.HTMLBlob(http.StatusOK, indexPage)
	})

	api := echoInstance.Group("/api")
	api.POST("/sessions", CreateSessionHandler(dependencies.Sessions))
	api.GET("/categories", ListCategoriesHandler(dependencies.Catalog))
	api.GET("/categories/:category/subtasks", ListSubtasksHandler(dependencies.Catalog, dependencies.Sessions))
	api.GET("/categories/:category/subtasks/:subtask", GetTaskInfoHandler(dependencies.Catalog, dependencies.Sessions))
	api.GET("/categories/:category/subtasks/:subtask/datasets", ListDatasetsHandler(dependencies.Catalog, dependencies.Sessions))
	api.GET("/categories/:category/subtasks/:subtask/models", ListModelsHandler(dependencies.Catalog))
	api.POST("/categories/:category/recommendations", RecommendationsHandler(dependencies.Catalog, dependencies.Sessions))
	api.POST("/tasks/analyze", AnalyzeTaskHandler(dependencies.Advisor, dependencies.Sessions))
	api.GET("/datasets/search", SearchDatasetsHandler(dependencies.Hub, dependencies.Kaggle))
}

func requestLogging(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			startedAt := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			logger.Info("request",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.Int("status", c.Response().Status),
				zap.Duration("elapsed", time.Since(startedAt)),
			)
			return nil
		}
	}
}

func (server *Server) Start(port int) error {
	address := fmt.Sprintf(":%d", port)
	server.logger.Info("listening", zap.String("address", address))
	if err := server.echoInstance.Start(address); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (server *Server) Shutdown(ctx context.Context) error {
	return server.echoInstance.Shutdown(ctx)
}
