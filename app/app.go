package oneday

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/cors"
	"github.com/putto11262002/oneday/core"
	"github.com/putto11262002/oneday/pkg/router"
)

type App struct {
	config      *Config
	db          *core.SQLiteDB
	context     context.Context
	server      *http.Server
	logger      *slog.Logger
	router      *router.Router
	eventRouter *core.EventRouter
	wsManager   *core.ConnManager
	chatService core.ChatService
	scheduler   *core.ResetScheduler
	metrics     *Metrics

	exit chan int

	cleanupFuncs []func(context.Context)

	wg sync.WaitGroup
}

func New(ctx context.Context, config *Config) *App {
	var err error
	app := &App{
		exit: make(chan int),
	}
	if ctx == nil {
		ctx, _ = signal.NotifyContext(
			context.Background(),
			syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	}
	app.context = ctx

	if config == nil {
		var err error
		config, err = LoadConfig()
		if err != nil {
			failed(1, "failed to load config: %v\n", err)
		}
	}
	if err := config.Validate(); err != nil {
		failed(1, FormatValidationErrors(err))
	}
	app.config = config

	app.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug,
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.SourceKey {
				source, _ := a.Value.Any().(*slog.Source)
				if source != nil {
					source.File = filepath.Base(source.File)
				}
			}
			return a
		},
	}))

	// the day archive is optional: without a database file the relay is
	// purely in-memory
	var archive core.RoomArchive
	if app.config.SQLite.File != "" {
		sqliteOptions := &core.SQLiteOptions{
			Mode:        "rwc",
			Cache:       "shared",
			JournalMode: "WAL",
		}
		app.db, err = core.NewSQLiteDB(app.config.SQLite.File, app.config.SQLite.Migrations, sqliteOptions)
		if err != nil {
			failed(1, "failed to open database: %v\n", err)
		}
		app.AddCleanupFunc(func(ctx context.Context) {
			app.db.Close()
		})
		if err := app.db.Migrate(); err != nil {
			failed(1, "failed to migrate database: %v\n", err)
		}
		archive = core.NewSQLiteRoomArchive(app.db.DB)
	}

	chatService := core.NewMemoryChatService(app.logger, archive,
		core.WithMaxRooms(app.config.Match.MaxRooms))
	if archive != nil {
		restored, err := chatService.Restore(app.context)
		if err != nil {
			failed(1, "failed to restore day archive: %v\n", err)
		}
		app.logger.Info("day archive restored", slog.Int("rooms", restored))
	}
	app.chatService = chatService

	app.metrics = NewMetrics(app.chatService)

	app.wsManager = core.NewConnManager(app.context, &app.wg, app.logger)
	app.wsManager.OnConnectionOpened(app.onConnectionOpened)
	app.wsManager.OnConnectionClosed(app.onConnectionClosed)

	app.eventRouter = core.NewEventRouter(app.logger, app.wsManager)
	app.eventRouter.On(RegisterUserEvent, app.RegisterUserHandler)
	app.eventRouter.On(RequestMatchEvent, app.RequestMatchHandler)
	app.eventRouter.On(CancelMatchEvent, app.CancelMatchHandler)
	app.eventRouter.On(JoinRoomEvent, app.JoinRoomHandler)
	app.eventRouter.On(LeaveRoomEvent, app.LeaveRoomHandler)
	app.eventRouter.On(SendMessageEvent, app.SendMessageHandler)
	app.eventRouter.On(TypingEvent, app.TypingHandler)

	loc := time.Local
	if app.config.Reset.Timezone != "" {
		loc, err = time.LoadLocation(app.config.Reset.Timezone)
		if err != nil {
			failed(1, "failed to load reset timezone: %v\n", err)
		}
	}
	app.scheduler = core.NewResetScheduler(loc, app.logger,
		core.WithWarningLead(app.config.Reset.WarningLead))
	app.scheduler.OnWarning(app.onMidnightWarning)
	app.scheduler.OnReset(app.onMidnightReset)

	app.router = router.New(router.WithLogger(app.logger))

	app.router.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   app.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
	}))

	app.router.Router.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		if err := app.wsManager.Connect(w, r); err != nil {
			app.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		}
	})

	app.router.Get("/", app.RootHandler)
	app.router.Get("/status", app.StatusHandler)
	app.router.Router.Handle("/metrics", app.metrics.Handler())

	app.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", app.config.Hostname, app.config.Port),
		Handler: app.router.Router,
		BaseContext: func(listener net.Listener) context.Context {
			return app.context
		},
	}

	return app
}

func (app *App) onMidnightWarning(midnight time.Time) {
	app.eventRouter.Emit(MidnightWarningEvent, MidnightWarningPayload{
		Message: "the day resets soon, conversations will be cleared",
		ResetAt: midnight,
	})
}

func (app *App) onMidnightReset(midnight time.Time) {
	result, err := app.chatService.Reset(app.context)
	if err != nil {
		app.logger.Error("midnight reset failed", slog.String("error", err.Error()))
		return
	}
	app.logger.Info("midnight reset",
		slog.Int("rooms", result.Rooms),
		slog.Int("messages", result.Messages),
		slog.Int("waiting", result.Waiting))
	app.eventRouter.Emit(MidnightResetEvent, MidnightResetPayload{
		Message:   "a new day has started",
		Timestamp: midnight,
	})
}

func (app *App) Start() {
	app.eventRouter.Listen(app.context, &app.wg)
	app.scheduler.Start(app.context, &app.wg)

	// listen for shutdown signal
	go func() {
		<-app.context.Done()
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer closeCancel()
		var wg sync.WaitGroup

		for _, f := range app.cleanupFuncs {
			wg.Add(1)
			func(wg *sync.WaitGroup) {
				defer wg.Done()
				f(closeCtx)
			}(&wg)
		}

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			app.logger.Info("app shutdown gracefully")
			app.exit <- 0
		case <-closeCtx.Done():
			app.logger.Info("app shutdown timed out")
			app.exit <- 1
		}
	}()

	app.AddCleanupFunc(func(ctx context.Context) {
		app.wsManager.Shutdown()
	})
	app.AddCleanupFunc(func(ctx context.Context) {
		app.server.Shutdown(ctx)
	})
	app.logger.Info(fmt.Sprintf("relay running on: %s:%d",
		app.config.Hostname, app.config.Port))

	err := app.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		failed(1, "server error: %v\n", err)
	}

	code := <-app.exit
	if code != 0 {
		failed(code, "app exit with code: %d\n", code)
	} else {
		os.Exit(code)
	}
}

func (app *App) AddCleanupFunc(f func(context.Context)) {
	app.cleanupFuncs = append(app.cleanupFuncs, f)
}

func failed(code int, s string, args ...interface{}) {
	fmt.Printf(s, args...)
	os.Exit(code)
}
