package daemon

import (
	"context"
	"fmt"

	"github.com/vanotis720/vochat/internal/api"
	"github.com/vanotis720/vochat/internal/audio"
	"github.com/vanotis720/vochat/internal/auth"
	"github.com/vanotis720/vochat/internal/blob"
	"github.com/vanotis720/vochat/internal/bus"
	"github.com/vanotis720/vochat/internal/config"
	"github.com/vanotis720/vochat/internal/conversation"
	"github.com/vanotis720/vochat/internal/docstore"
	"github.com/vanotis720/vochat/internal/lock"
	"github.com/vanotis720/vochat/internal/logging"
	"github.com/vanotis720/vochat/internal/profile"
	"github.com/vanotis720/vochat/internal/session"
	"github.com/vanotis720/vochat/internal/status"
	"github.com/vanotis720/vochat/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
	SocketPath  string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideAuthClient,
			provideSessionManager,
			provideDocStore,
			provideBlobStore,
			provideDevice,
			provideSynchronizer,
			provideRecorder,
			providePlayback,
			provideHandler,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName)
}

func provideConfig(p Params) (*config.Profile, error) {
	return config.LoadProfile(profile.ConfigPath(p.ProfileName))
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.CacheDBPath(p.ProfileName)
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
	logger.Info("cache store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideAuthClient(cfg *config.Profile, logger *zap.Logger) *auth.Client {
	return auth.NewClient(cfg.Auth.Endpoint, cfg.Auth.APIKey, logger)
}

func provideSessionManager(client *auth.Client, b *bus.Bus, logger *zap.Logger) *session.Manager {
	return session.NewManager(client, b, logger)
}

func provideDocStore(cfg *config.Profile, client *auth.Client, logger *zap.Logger) *docstore.Client {
	return docstore.NewClient(cfg.DocStore.Endpoint, client.Token, logger)
}

func provideBlobStore(cfg *config.Profile, logger *zap.Logger) (blob.Store, error) {
	return blob.NewS3Store(context.Background(), cfg.Blob, logger)
}

func provideDevice(cfg *config.Profile, logger *zap.Logger) (audio.Device, error) {
	switch cfg.Audio.Device {
	case "", "file":
		return audio.NewFileDevice(logger), nil
	default:
		return nil, fmt.Errorf("unknown audio device backend %q", cfg.Audio.Device)
	}
}

func provideSynchronizer(docs *docstore.Client, db *store.DB, b *bus.Bus, logger *zap.Logger) *conversation.Synchronizer {
	return conversation.NewSynchronizer(docs, db, b, logger)
}

func provideRecorder(p Params, cfg *config.Profile, device audio.Device, blobs blob.Store, sync *conversation.Synchronizer, b *bus.Bus, logger *zap.Logger) *audio.Recorder {
	preset := audio.RecordingPreset{
		Format: cfg.Audio.Format,
		Dir:    profile.RecordingsDir(p.ProfileName),
	}
	return audio.NewRecorder(device, blobs, sync, preset, b, logger)
}

func providePlayback(device audio.Device, b *bus.Bus, logger *zap.Logger) *audio.Playback {
	return audio.NewPlayback(device, b, logger)
}

func provideHandler(p Params, machine *status.Machine, sessions *session.Manager, sync *conversation.Synchronizer, recorder *audio.Recorder, playback *audio.Playback, b *bus.Bus, logger *zap.Logger) *api.Handler {
	return api.New(p.ProfileName, machine, sessions, sync, recorder, playback, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, cfg *config.Profile, sessions *session.Manager, sync *conversation.Synchronizer, playback *audio.Playback, machine *status.Machine, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Follow the session: a signed-in user activates the configured
			// conversation, sign-out tears it down.
			sessions.OnChange(func(u *auth.User) {
				if u == nil {
					sync.Deactivate()
					_ = machine.Transition(status.AuthRequired)
					return
				}
				_ = machine.Transition(status.Activating)
				if cfg.ConversationID == "" {
					logger.Warn("no conversation configured, nothing to sync")
					_ = machine.Transition(status.Ready)
					return
				}
				if err := sync.Activate(cfg.ConversationID, u.ID); err != nil {
					logger.Error("conversation activation failed", zap.Error(err))
					_ = machine.Transition(status.Degraded)
					return
				}
				_ = machine.Transition(status.Ready)
			})

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("control server error", zap.Error(err))
				}
			}()

			logger.Info("daemon started", zap.String("status", string(machine.Current())))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			playback.Close()
			sync.Deactivate()
			sessions.Close()
			srv.Stop(ctx)
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
