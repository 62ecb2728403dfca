package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/amterp/kanflow/internal/actor"
	"github.com/amterp/kanflow/internal/aggregate"
	"github.com/amterp/kanflow/internal/config"
	"github.com/amterp/kanflow/internal/discovery"
	kanerr "github.com/amterp/kanflow/internal/errors"
	"github.com/amterp/kanflow/internal/feed"
	"github.com/amterp/kanflow/internal/git"
	"github.com/amterp/kanflow/internal/model"
	"github.com/amterp/kanflow/internal/prompt"
	"github.com/amterp/kanflow/internal/resolver"
	"github.com/amterp/kanflow/internal/service"
	"github.com/amterp/kanflow/internal/store"
)

// App holds all the dependencies for the CLI.
type App struct {
	ProjectRoot string
	Paths       *config.Paths
	Settings    config.Settings
	Logger      *log.Logger
	GitClient   *git.Client
	Prompter    prompt.Prompter
	Interactive bool

	Backend   store.Backend
	FileStore *store.FileStore // Set for the file backend only
	Redis     *redis.Client    // nil without redis_url
	RedisFeed *feed.RedisFeed  // nil without redis_url
	Inbound   *feed.Bus        // Changes made elsewhere, fed to Reorder
	Notifier  *service.AsyncNotifier

	Reorder       *service.ReorderService
	BoardService  *service.BoardService
	DoctorService *service.DoctorService
	InitService   *service.InitService
	HookService   *service.HookService
	BoardResolver *resolver.BoardResolver
}

// NewApp creates a new App with all dependencies wired up.
// If interactive is false, uses NoopPrompter that fails on prompts.
// Outside a project only InitService is set; RequireKanflow reports it.
func NewApp(interactive bool) (*App, error) {
	gitClient := git.NewClient()
	logger := newLogger()

	var prompter prompt.Prompter
	if interactive {
		prompter = prompt.NewHuhPrompter()
	} else {
		prompter = &prompt.NoopPrompter{}
	}

	app := &App{
		Logger:      logger,
		GitClient:   gitClient,
		Prompter:    prompter,
		Interactive: interactive,
		InitService: service.NewInitService(gitClient),
	}

	projectRoot, err := discovery.FindProjectRoot()
	if err != nil {
		return nil, err
	}
	if projectRoot == "" {
		return app, nil
	}
	app.ProjectRoot = projectRoot
	app.Paths = config.NewPaths(projectRoot)

	cfg, err := config.LoadProject(app.Paths)
	if err != nil {
		return nil, err
	}
	app.Settings = config.Resolve(cfg)
	if err := app.Settings.Validate(); err != nil {
		return nil, err
	}
	if app.Settings.Debug {
		logger.SetLevel(log.DebugLevel)
	}

	if err := app.openBackend(context.Background()); err != nil {
		return nil, err
	}

	app.Inbound = feed.NewBus()
	var publisher feed.Publisher
	if app.Settings.RedisURL != "" {
		opts, err := redis.ParseURL(app.Settings.RedisURL)
		if err != nil {
			app.Backend.Close()
			return nil, fmt.Errorf("invalid redis_url: %w", err)
		}
		app.Redis = redis.NewClient(opts)
		app.RedisFeed = feed.NewRedisFeed(app.Redis, "", app.Inbound, logger)
		publisher = app.RedisFeed
	}

	var deduper service.Deduper
	if app.Redis != nil {
		deduper = service.NewRedisDeduper(app.Redis, app.Settings.DedupeTTL)
	} else {
		deduper = service.NewMemoryDeduper(app.Settings.DedupeTTL)
	}

	app.HookService = service.NewHookService(projectRoot, app.Settings.Hooks, logger)
	app.Notifier = service.NewAsyncNotifier(logger, service.LogNotifier{Logger: logger}, app.HookService)

	actors := actor.NewProvider(gitClient)
	app.Reorder = service.NewReorderService(service.ReorderOptions{
		Backend:     app.Backend,
		BackendName: app.Settings.Backend,
		Actors:      actors,
		Aggregates:  aggregate.NewService(app.Redis, app.Settings.AggregateTTL, logger),
		Feed:        publisher,
		Notifier:    app.Notifier,
		Deduper:     deduper,
		Celebrate:   app.Settings.Celebrate,
		Logger:      logger,
	})
	app.Inbound.Subscribe(app.Reorder)

	app.BoardService = service.NewBoardService(app.Backend, app.Reorder, actors)
	app.DoctorService = service.NewDoctorService(app.Backend, app.Reorder, app.Paths)
	app.BoardResolver = resolver.NewBoardResolver(app.Backend, prompter, app.Settings.DefaultBoard)

	return app, nil
}

func (a *App) openBackend(ctx context.Context) error {
	switch a.Settings.Backend {
	case model.BackendPostgres:
		db, err := store.OpenPostgres(ctx, a.Settings.DatabaseURL)
		if err != nil {
			return err
		}
		a.Backend = store.NewPostgresStore(db, a.Logger)
	case model.BackendMemory:
		a.Backend = store.NewMemoryStore()
	default:
		a.FileStore = store.NewFileStore(a.Paths, a.Logger)
		a.Backend = a.FileStore
	}
	return nil
}

// Close flushes pending notices and releases connections.
func (a *App) Close() {
	if a.Reorder != nil {
		a.Reorder.Close()
	}
	if a.Notifier != nil {
		a.Notifier.Close()
	}
	if a.Backend != nil {
		if err := a.Backend.Close(); err != nil {
			a.Logger.WithError(err).Warn("failed to close backend")
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
}

// RequireKanflow ensures kanflow is initialized in the current project.
func (a *App) RequireKanflow() error {
	if a.ProjectRoot == "" {
		return &kanerr.NotInitializedError{}
	}
	return nil
}

// ResolveBoard picks the board a command acts on.
func (a *App) ResolveBoard(ctx context.Context, explicit string) (string, error) {
	return a.BoardResolver.Resolve(ctx, explicit, a.Interactive)
}

func newLogger() *log.Logger {
	logger := log.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	logger.SetLevel(log.InfoLevel)
	return logger
}

// Fatal releases the app and exits with err. Deferred calls do not run
// on exit, so commands holding an App call this instead of Fatal.
func (a *App) Fatal(err error) {
	a.Close()
	Fatal(err)
}

// Fatal prints an error and exits.
func Fatal(err error) {
	PrintError("%v", err)
	os.Exit(1)
}
