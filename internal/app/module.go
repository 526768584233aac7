package app

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"homechat/internal/api"
	"homechat/internal/bus"
	"homechat/internal/chat"
	"homechat/internal/config"
	"homechat/internal/lock"
	"homechat/internal/logging"
	"homechat/internal/notify"
	"homechat/internal/outbox"
	"homechat/internal/session"
	"homechat/internal/status"
	"homechat/internal/store"
	"homechat/internal/transport"
	"homechat/internal/tui"
	"homechat/internal/tui/model"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
}

// Module composes the client: config, credentials, cache, REST client,
// transport, delivery pipeline, notification bridge, and the TUI.
func Module(p Params) fx.Option {
	return fx.Module("app",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideCredentials,
			provideCache,
			provideAPIClient,
			provideConversationStore,
			providePipeline,
			provideTransport,
			provideBridge,
			provideViewModel,
			provideUI,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig() (*config.Config, error) {
	return config.Load(session.ConfigPath())
}

func provideLogger(p Params) (*zap.Logger, error) {
	// File only: the TUI owns the terminal.
	return logging.NewFileOnly(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus, logger *zap.Logger) *status.Machine {
	return status.NewMachine(b, logger)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideCredentials(p Params) (*session.Store, error) {
	creds := session.NewStore(session.CredentialsPath(p.SessionName))
	if err := creds.Load(); err != nil {
		return nil, fmt.Errorf("load credentials (run 'homechat login' first): %w", err)
	}
	return creds, nil
}

func provideCache(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.CacheDBPath(p.SessionName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("cache initialized", zap.String("path", dbPath))
	return db, nil
}

func provideAPIClient(cfg *config.Config, creds *session.Store, logger *zap.Logger) *api.Client {
	return api.NewClient(cfg.APIOrigin, creds, logger)
}

func provideConversationStore(b *bus.Bus, logger *zap.Logger) *chat.ConversationStore {
	return chat.NewConversationStore(b, logger)
}

func providePipeline(client *api.Client, creds *session.Store, b *bus.Bus, logger *zap.Logger) *outbox.Pipeline {
	current, _ := creds.Current()
	return outbox.NewPipeline(client, current.UserID, current.Username, b, logger)
}

func provideTransport(cfg *config.Config, creds *session.Store, b *bus.Bus, machine *status.Machine, logger *zap.Logger) (*transport.Transport, error) {
	endpoint, err := cfg.WSEndpoint()
	if err != nil {
		return nil, err
	}
	return transport.New(endpoint, creds.UserID(), b, machine, logger), nil
}

func provideBridge(cfg *config.Config, b *bus.Bus, convs *chat.ConversationStore, logger *zap.Logger) *notify.Bridge {
	return notify.NewBridge(b, convs, notify.DesktopNotifier{}, cfg.NotificationsEnabled(), logger)
}

func provideViewModel(client *api.Client, db *store.DB, convs *chat.ConversationStore, pipeline *outbox.Pipeline, creds *session.Store, b *bus.Bus, logger *zap.Logger) *model.ViewModel {
	return model.NewViewModel(client, db, convs, pipeline, b, creds.UserID(), logger)
}

func provideUI(vm *model.ViewModel, p Params) *tui.App {
	return tui.NewApp(vm, p.SessionName)
}

func registerLifecycle(lc fx.Lifecycle, lk *lock.Lock, db *store.DB, tr *transport.Transport, bridge *notify.Bridge, vm *model.ViewModel, pipeline *outbox.Pipeline, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// The view model must be consuming before the transport
			// connects, so no early event is dropped.
			if err := vm.Start(context.Background()); err != nil {
				return err
			}
			if err := bridge.Start(context.Background()); err != nil {
				return err
			}
			if err := tr.Start(context.Background()); err != nil {
				return err
			}
			logger.Info("client started")
			return nil
		},
		OnStop: func(_ context.Context) error {
			tr.Stop()
			pipeline.Stop()
			bridge.Stop()
			vm.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing cache", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("client stopped")
			return nil
		},
	})
}
