package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/client-core-go/internal/api"
	"github.com/ovaphlow/pitchfork/client-core-go/internal/config"
	"github.com/ovaphlow/pitchfork/client-core-go/internal/lifecycle"
	"github.com/ovaphlow/pitchfork/client-core-go/internal/notify"
	"github.com/ovaphlow/pitchfork/client-core-go/internal/session"
	"github.com/ovaphlow/pitchfork/client-core-go/internal/session/store"
	"github.com/ovaphlow/pitchfork/client-core-go/pkg/database"
	"github.com/ovaphlow/pitchfork/client-core-go/pkg/utilities"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// init logger
	lg, err := utilities.Init(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()
	sugar := lg.Sugar()

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, sugar)
	if err != nil {
		sugar.Errorw("open session store", "backend", cfg.SessionStore, "err", err)
		os.Exit(1)
	}
	defer closeStore()

	a := newApp(cfg, st, sugar)
	defer a.close()

	if err := a.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, userFacing(err))
		sugar.Debugw("command failed", "command", os.Args[1], "err", err)
		os.Exit(1)
	}
}

// app is one process worth of client state.
type app struct {
	cfg      config.Config
	logger   *zap.SugaredLogger
	client   *api.Client
	session  *session.Manager
	center   *notify.Center
	workflow *lifecycle.Workflow
}

func newApp(cfg config.Config, st store.Store, logger *zap.SugaredLogger) *app {
	client := api.NewClient(cfg.APIBaseURL, logger, api.WithTimeout(cfg.APITimeout))
	mgr := session.NewManager(client, st, client, logger)
	client.SetTokenSource(mgr.Token)

	center := notify.NewCenter(nil, nil)
	mgr.OnEnd(center.Clear)

	toEntry := lifecycle.NavigatorFunc(func() {
		fmt.Println("You have been signed out. Run `client login` to continue.")
	})
	wf := lifecycle.NewWorkflow(lifecycle.Deps{
		Session:   mgr,
		Requests:  client,
		Verifier:  client,
		Mailer:    client,
		Notifier:  center,
		Navigator: toEntry,
	}, cfg.Lifecycle(), logger)

	return &app{cfg: cfg, logger: logger, client: client, session: mgr, center: center, workflow: wf}
}

func (a *app) close() {
	a.session.Dispose()
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.SugaredLogger) (store.Store, func(), error) {
	noop := func() {}
	switch cfg.SessionStore {
	case config.StoreMemory:
		return store.NewMemoryStore(), noop, nil
	case config.StoreFile:
		return store.NewFileStore(cfg.SessionFile), noop, nil
	case config.StoreSQL:
		db, err := database.Connect(cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		s := store.NewSQLStore(db, cfg.SessionSlot)
		if err := s.EnsureTable(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return s, func() {
			if err := db.Close(); err != nil {
				logger.Warnw("close database", "err", err)
			}
		}, nil
	case config.StoreRedis:
		s := store.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.SessionSlot)
		return s, func() {
			if err := s.Close(); err != nil {
				logger.Warnw("close redis", "err", err)
			}
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown session store %q", cfg.SessionStore)
}
