package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/netly/taskctl/internal/config"
	"github.com/netly/taskctl/internal/core/ports"
	"github.com/netly/taskctl/internal/core/services"
	"github.com/netly/taskctl/internal/infrastructure/db"
	"github.com/netly/taskctl/internal/infrastructure/logger"
	transporthttp "github.com/netly/taskctl/internal/transport/http"
	"gorm.io/gorm"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	path := *configPath
	if path == "" {
		path = "config/config.yaml"
		if _, err := os.Stat(path); os.IsNotExist(err) {
			path = "../config/config.yaml"
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	var (
		database *gorm.DB
		repo     ports.TaskRunRepository
	)
	if cfg.Database.Enabled {
		database, err = db.NewPostgresConnection(cfg.Database)
		if err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		log.Info("database connection established")

		if err := db.RunMigrations(database); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
		log.Info("database migrations completed")
		repo = db.NewTaskRunRepository(database, log)
	} else {
		log.Warn("database disabled; task history is kept in memory only")
		repo = db.NewMemoryTaskRunRepository()
	}

	defs, err := cfg.TaskDefinitions()
	if err != nil {
		log.Fatalf("failed to resolve task definitions: %v", err)
	}

	taskService, err := services.NewTaskService(services.TaskServiceConfig{
		Definitions: defs,
		Repository:  repo,
		Logger:      log,
	})
	if err != nil {
		log.Fatalf("failed to initialize task service: %v", err)
	}
	if err := taskService.Recover(context.Background()); err != nil {
		log.Fatalf("failed to recover task runs: %v", err)
	}
	log.Infow("task types registered", "types", taskService.Types())

	app := transporthttp.NewApp(transporthttp.RouterConfig{
		Service: taskService,
		Logger:  log,
		Config:  cfg,
	})

	go func() {
		if err := app.Listen(cfg.Server.Address()); err != nil {
			log.Fatalf("server failed to start: %v", err)
		}
	}()
	log.Infof("server started on %s", cfg.Server.Address())

	gracefulShutdown(app, taskService, database, cfg.Server, log)
}

func gracefulShutdown(app *fiber.App, taskService ports.TaskService, database *gorm.DB, cfg config.ServerConfig, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Errorf("server forced to shutdown: %v", err)
	}

	if err := taskService.Shutdown(ctx); err != nil {
		log.Errorf("running tasks did not stop in time: %v", err)
	}

	if database != nil {
		if err := db.Close(database); err != nil {
			log.Errorf("failed to close database connection: %v", err)
		}
	}

	log.Info("server exited gracefully")
}
