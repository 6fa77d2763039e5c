// Command taskboard-inbox is a terminal inbox for board notifications with
// live updates and invitation responses.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/nhle/taskboard/internal/api"
	"github.com/nhle/taskboard/internal/app"
	"github.com/nhle/taskboard/internal/credential"
	"github.com/nhle/taskboard/internal/inbox"
	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/obs"
	"github.com/nhle/taskboard/internal/readstate"
	"github.com/nhle/taskboard/internal/realtime"
	"github.com/nhle/taskboard/internal/respond"
	"github.com/nhle/taskboard/internal/session"
	"github.com/nhle/taskboard/internal/store"
	appsync "github.com/nhle/taskboard/internal/sync"
	"github.com/nhle/taskboard/internal/ui/login"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "taskboard-inbox:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := pflag.StringP("config", "c", model.DefaultConfigPath(), "path to the YAML config file")
	relogin := pflag.Bool("login", false, "ask for a new session token")
	logout := pflag.Bool("logout", false, "forget the stored session token and exit")
	pflag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	created, err := model.EnsureConfig(*configPath)
	if err != nil {
		return err
	}
	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	// The TUI owns the terminal, so logs always go to a file.
	if cfg.Log.File == "" {
		cfg.Log.File = filepath.Join(filepath.Dir(*configPath), "taskboard.log")
	}
	log, err := obs.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	if created {
		log.Info("wrote default config", zap.String("path", *configPath))
	}

	vault, err := credential.Open()
	if err != nil {
		return err
	}
	if *logout {
		if err := vault.Delete(credential.TokenKey); err != nil {
			return err
		}
		fmt.Println("session token removed")
		return nil
	}

	sess, err := signIn(vault, cfg.API.BaseURL, *relogin)
	if err != nil {
		return err
	}
	log = log.With(zap.String("user_id", sess.UserID), zap.String("client_id", sess.ClientID))
	log.Info("starting", zap.String("api", cfg.API.BaseURL), zap.String("realtime", cfg.Realtime.URL))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := obs.NewMetrics(reg)

	cache, err := openCache(ctx, cfg.Cache)
	if err != nil {
		return err
	}
	defer cache.Close()

	client := api.NewClient(cfg.API.BaseURL, sess.Token, sess.ClientID, cfg.API.RequestTimeout())

	st := inbox.New(inbox.Config{
		PageSize:      cfg.Inbox.PageSize,
		CacheKey:      sess.CacheKey(),
		CacheDebounce: cfg.Inbox.CacheDebounce(),
	}, cache, log, metrics)
	defer st.Close()
	restored := st.Restore(ctx)
	log.Info("restored cached notifications", zap.Int("count", restored))

	reads := readstate.New(st, client, log, metrics)
	syncer := appsync.New(st, client, reads, appsync.Config{
		PageSize:           cfg.Inbox.PageSize,
		RefreshDelay:       cfg.Inbox.RefreshDelay(),
		PollInterval:       cfg.Inbox.PollInterval(),
		RefreshOnReconnect: cfg.Realtime.RefreshOnReconnect,
	}, log, metrics)
	defer syncer.Close()
	responder := respond.New(st, client, sess.UserID, syncer, log, metrics)

	channel := realtime.NewClient(realtime.Config{
		URL:            cfg.Realtime.URL,
		UserID:         sess.UserID,
		Token:          sess.Token,
		ConnectTimeout: cfg.Realtime.ConnectTimeout(),
		ReuseTimeout:   cfg.Realtime.ReuseTimeout(),
		MinBackoff:     cfg.Realtime.MinBackoff(),
		MaxBackoff:     cfg.Realtime.MaxBackoff(),
	}, log, metrics)
	syncer.Attach(channel)
	defer channel.Disconnect()

	syncer.Start()

	if cfg.Metrics.Addr != "" {
		ms := obs.ServeMetrics(cfg.Metrics.Addr, reg, func(context.Context) error {
			if channel.State() != realtime.StateConnected {
				return errors.New("realtime channel disconnected")
			}
			return nil
		}, log)
		defer func() {
			shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = ms.Shutdown(shCtx)
		}()
	}

	p := tea.NewProgram(app.New(app.Deps{
		Store:     st,
		Syncer:    syncer,
		Responder: responder,
		Reads:     reads,
		Channel:   channel,
		UserID:    sess.UserID,
		Log:       log,
	}), tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("running inbox: %w", err)
	}
	log.Info("bye")
	return nil
}

// signIn loads the stored session, prompting for a token when none is
// stored, the stored one has expired, or force is set.
func signIn(vault *credential.Vault, serverURL string, force bool) (*session.Session, error) {
	reason := ""
	if !force {
		sess, err := session.Load(vault)
		switch {
		case err == nil && !sess.Expired(time.Now()):
			return sess, nil
		case err == nil:
			reason = "The stored session has expired."
		case errors.Is(err, session.ErrNoToken):
		default:
			reason = fmt.Sprintf("The stored session is unusable: %v", err)
		}
	}

	token, err := login.Prompt(serverURL, reason)
	if err != nil {
		return nil, err
	}
	return session.Save(vault, token)
}

func openCache(ctx context.Context, cfg model.CacheConfig) (store.Cache, error) {
	switch cfg.Driver {
	case "redis":
		return store.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisDB)
	default:
		if dir := filepath.Dir(cfg.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating cache directory %s: %w", dir, err)
			}
		}
		return store.NewSQLiteCache(cfg.Path)
	}
}
