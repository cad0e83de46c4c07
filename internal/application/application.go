package application

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/task-service/internal/config"
	"github.com/psds-microservice/task-service/internal/database"
	"github.com/psds-microservice/task-service/internal/handler"
	"github.com/psds-microservice/task-service/internal/kafka"
	"github.com/psds-microservice/task-service/internal/report"
	"github.com/psds-microservice/task-service/internal/router"
	"github.com/psds-microservice/task-service/internal/searchindex"
	"github.com/psds-microservice/task-service/internal/service"
	"github.com/psds-microservice/task-service/internal/ticket"
	"gorm.io/gorm"
)

// Deps are the outside collaborators of the HTTP handler. Nil Events or Search
// disable publishing and indexing.
type Deps struct {
	DB       *gorm.DB
	Events   kafka.TaskEventProducer
	Search   searchindex.Indexer
	Prefix   string
	Location *time.Location
	Quiet    bool
}

// NewHandler wires services, handlers and routes on top of deps.DB.
func NewHandler(deps Deps) (http.Handler, error) {
	sqlDB, err := deps.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("sql db: %w", err)
	}
	driver := deps.DB.Dialector.Name()
	if driver == "sqlite" {
		driver = "sqlite3"
	}

	users := service.NewUserService(deps.DB)
	tasks := service.NewTaskService(deps.DB, ticket.NewGenerator(deps.Prefix, deps.Location), deps.Events, deps.Search)

	return router.New(router.Handlers{
		Tasks:         handler.NewTaskHandler(tasks, report.New(sqlDB, driver, deps.Location)),
		Comments:      handler.NewCommentHandler(service.NewCommentService(deps.DB, deps.Events)),
		Categories:    handler.NewCategoryHandler(service.NewCategoryService(deps.DB)),
		Departments:   handler.NewDepartmentHandler(service.NewDepartmentService(deps.DB)),
		Users:         handler.NewUserHandler(users),
		Notifications: handler.NewNotificationHandler(service.NewNotificationService(deps.DB)),
		Auth:          handler.NewAuthHandler(users),
		Authenticate:  handler.Authenticate(users),
		Ready:         handler.Ready(sqlDB),
		Quiet:         deps.Quiet,
	}), nil
}

// API is the HTTP application (api mode).
type API struct {
	cfg      *config.Config
	httpSrv  *http.Server
	producer *kafka.Producer
}

// NewAPI migrates the database and builds the server.
func NewAPI(cfg *config.Config) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := database.MigrateUp(cfg.DatabaseURL()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.DSN(), cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopicTask)
	if producer.Enabled() {
		log.Printf("kafka: publishing task events to %q", cfg.KafkaTopicTask)
	}
	h, err := NewHandler(Deps{
		DB:       db,
		Events:   producer,
		Search:   searchindex.NewClient(cfg.SearchServiceURL),
		Prefix:   cfg.TicketPrefix,
		Location: loc,
	})
	if err != nil {
		return nil, err
	}

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return &API{cfg: cfg, httpSrv: httpSrv, producer: producer}, nil
}

// Run serves HTTP until ctx is cancelled.
func (a *API) Run(ctx context.Context) error {
	host := a.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + a.cfg.HTTPPort
	log.Printf("HTTP server listening on %s", a.httpSrv.Addr)
	log.Printf("  Swagger UI:    %s/swagger", base)
	log.Printf("  Swagger spec:  %s/swagger/openapi.json", base)
	log.Printf("  Health:        %s/health", base)
	log.Printf("  Ready:         %s/ready", base)
	log.Printf("  API v1:        %s/api/v1/", base)

	errCh := make(chan error, 1)
	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := a.producer.Close(); err != nil {
		log.Printf("kafka: close: %v", err)
	}
	return nil
}
