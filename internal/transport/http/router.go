package http

import (
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/netly/taskctl/internal/config"
	"github.com/netly/taskctl/internal/core/ports"
	"github.com/netly/taskctl/internal/infrastructure/logger"
	"github.com/netly/taskctl/internal/transport/http/handlers"
	httpmw "github.com/netly/taskctl/internal/transport/http/middleware"
)

type RouterConfig struct {
	Service    ports.TaskService
	Logger     *logger.Logger
	Config     *config.Config
	CancelWait time.Duration
}

// NewApp builds the fiber application with middleware and every route.
func NewApp(cfg RouterConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:           cfg.Config.Server.ReadTimeout,
		WriteTimeout:          cfg.Config.Server.WriteTimeout,
		IdleTimeout:           cfg.Config.Server.IdleTimeout,
		ErrorHandler:          globalErrorHandler(cfg.Logger),
		DisableStartupMessage: true,
	})

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	allowedOrigins := "http://localhost:3000"
	if len(cfg.Config.Auth.AllowedOrigins) > 0 {
		allowedOrigins = strings.Join(cfg.Config.Auth.AllowedOrigins, ",")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Admin-Token, X-Request-ID",
		AllowMethods: "GET, POST, HEAD",
	}))

	app.Use(httpmw.RequestID(cfg.Config.Features.RequestIDHeader))
	if cfg.Config.Features.EnableRequestLogging {
		app.Use(httpmw.AccessLog(cfg.Logger))
	}

	SetupRoutes(app, cfg)
	return app
}

func SetupRoutes(app *fiber.App, cfg RouterConfig) {
	taskHandler := handlers.NewTaskHandler(cfg.Service, cfg.Logger, cfg.CancelWait)
	wsHandler := handlers.NewTaskWSHandler(taskHandler, cfg.Logger)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Websocket remote calls
	app.Use("/ws", httpmw.AdminAuth(cfg.Config), func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return c.SendStatus(fiber.StatusUpgradeRequired)
	})
	app.Get("/ws/tasks", websocket.New(wsHandler.Handle))

	// API v1 routes
	api := app.Group("/api/v1", httpmw.AdminAuth(cfg.Config))

	tasks := api.Group("/tasks")
	tasks.Get("/", taskHandler.GetTaskTypes)
	tasks.Post("/run", taskHandler.RunTask)
	tasks.Post("/cancel", taskHandler.CancelTask)
	tasks.Post("/detail", taskHandler.GetTaskDetail)
	tasks.Get("/:type/history", taskHandler.GetTaskHistory)
}

func globalErrorHandler(log *logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		if code < fiber.StatusInternalServerError {
			log.Warnw("request failed",
				"method", c.Method(),
				"path", c.Path(),
				"status", code,
				"error", err.Error(),
				"request_id", c.Locals(string(httpmw.RequestIDKey)),
			)
		} else {
			log.Errorw("request error",
				"method", c.Method(),
				"path", c.Path(),
				"status", code,
				"error", err.Error(),
				"request_id", c.Locals(string(httpmw.RequestIDKey)),
			)
		}

		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}
