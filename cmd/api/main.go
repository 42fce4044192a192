package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"statistics-workflow-api/config"
	"statistics-workflow-api/middleware"
	"statistics-workflow-api/routes"
	"statistics-workflow-api/services"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		config.Log.Info("No .env file found, using environment variables")
	}

	settings, err := config.LoadSettings()
	if err != nil {
		config.Log.WithError(err).Fatal("invalid configuration")
	}

	logFile, logWriter := config.InitLogging(settings.LogLevel, settings.Environment)
	if logFile != nil {
		defer logFile.Close()
	}
	if settings.JWT.Secret == "" {
		config.Log.Fatal("JWT_SECRET is required")
	}

	if err := config.InitDB(settings.Database); err != nil {
		config.Log.WithError(err).Fatal("failed to connect to database")
	}
	defer func() {
		if err := config.Close(config.DB); err != nil {
			config.Log.WithError(err).Error("failed to close database")
		}
	}()

	screens, err := config.LoadScreenCatalog(settings.ScreensFile)
	if err != nil {
		config.Log.WithError(err).Fatal("failed to load screen catalogue")
	}

	ctx := context.Background()
	statuses, err := services.LoadStatusRegistry(ctx, config.DB)
	if err != nil {
		config.Log.WithError(err).Fatal("failed to load workflow statuses")
	}

	directory := services.NewUserDirectory(config.DB)
	audit := services.NewAuditTrail(config.DB, statuses, directory)
	broadcaster := services.NewBroadcaster(16)
	notifiers := services.Notifiers{broadcaster}

	mailer := config.NewMailer(settings.Mail)
	var mailNotifier *services.MailNotifier
	if mailer.Enabled() {
		mailNotifier = services.NewMailNotifier(directory, mailer)
		notifiers = append(notifiers, mailNotifier)
	}

	workflow := services.NewWorkflowService(config.DB, statuses, audit,
		services.WithScreens(screens),
		services.WithNotifier(notifiers),
	)
	records := services.NewRecordService(workflow, screens)

	if settings.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}
	gin.DefaultWriter = logWriter
	gin.DefaultErrorWriter = logWriter

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORSMiddleware(settings.CORS))

	routes.SetupRoutes(router, routes.Dependencies{
		DB:          config.DB,
		Directory:   directory,
		JWTSecret:   settings.JWT.Secret,
		Screens:     screens,
		Workflow:    workflow,
		Records:     records,
		Broadcaster: broadcaster,
	})

	server := newServer(":"+settings.Server.Port, router, broadcaster)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		config.Log.WithField("port", settings.Server.Port).
			WithField("environment", settings.Environment).
			WithField("screens", screens.Len()).
			Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			config.Log.WithError(err).Error("failed to start server")
			quit <- syscall.SIGTERM
		}
	}()

	<-quit
	config.Log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		config.Log.WithError(err).Error("server forced to shutdown")
	}
	if mailNotifier != nil {
		mailNotifier.Wait()
	}
	config.Log.Info("server exited")
}

// newServer builds the HTTP server. Shutdown closes the event subscriptions so
// open /workflow/events streams end instead of holding it until the timeout.
func newServer(addr string, handler http.Handler, broadcaster *services.Broadcaster) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	server.RegisterOnShutdown(broadcaster.Close)
	return server
}
