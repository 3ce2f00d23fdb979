package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nikbrunner/drive/internal/browser"
	"github.com/nikbrunner/drive/internal/config"
	"github.com/nikbrunner/drive/internal/handles"
	"github.com/nikbrunner/drive/internal/itemstore"
	"github.com/nikbrunner/drive/internal/logging"
	"github.com/nikbrunner/drive/internal/metrics"
	"github.com/nikbrunner/drive/internal/tui"
)

// session is the state shared by every command of one invocation: flags,
// loaded config, the item store and the optional metrics server.
type session struct {
	// Global flags
	configPath  string
	localPath   string
	metricsAddr string

	cfg      *config.Config
	store    itemstore.Store
	uploader itemstore.Uploader
	log      *zap.Logger

	closers       []func() error
	metricsServer *http.Server
}

// open loads config, sets up logging and connects the item store.
func (s *session) open(cmd *cobra.Command) error {
	path := s.configPath
	if path == "" {
		var err error
		path, err = config.DefaultConfigFilePath()
		if err != nil {
			return fmt.Errorf("get config path: %w", err)
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	s.cfg = cfg

	// The TUI owns the terminal, so logs go to a file unless told otherwise.
	if err := logging.Init(logging.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.Path,
	}); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	s.closers = append(s.closers, func() error {
		_ = logging.Sync()
		return nil
	})
	s.log = logging.Named("cli")

	if err := s.openStore(); err != nil {
		return err
	}

	addr := s.metricsAddr
	if addr == "" {
		addr = cfg.Metrics.Addr
	}
	if addr != "" {
		s.serveMetrics(addr)
	}

	s.log.Debug("session opened",
		zap.String("command", cmd.CommandPath()),
		zap.String("config", path))
	return nil
}

func (s *session) openStore() error {
	localPath := s.localPath
	if localPath == "" {
		localPath = s.cfg.Local.Path
	}

	if localPath == "" && s.cfg.API.BaseURL != "" {
		client, err := itemstore.NewClient(itemstore.ClientParams{
			BaseURL:  s.cfg.API.BaseURL,
			Tokens:   itemstore.EnvToken(s.cfg.API.TokenEnv),
			Timeout:  s.cfg.API.Timeout,
			RetryMax: s.cfg.API.RetryMax,
		})
		if err != nil {
			return err
		}
		s.store, s.uploader = client, client
		s.log.Info("using item store", zap.String("url", s.cfg.API.BaseURL))
		return nil
	}

	if localPath == "" {
		var err error
		localPath, err = itemstore.DefaultSQLitePath()
		if err != nil {
			return fmt.Errorf("get database path: %w", err)
		}
	}

	db, err := itemstore.NewSQLiteStore(localPath, s.cfg.Local.User)
	if err != nil {
		return fmt.Errorf("open local database: %w", err)
	}
	s.store, s.uploader = db, db
	s.closers = append(s.closers, db.Close)
	s.log.Info("using local database", zap.String("path", localPath))
	return nil
}

func (s *session) serveMetrics(addr string) {
	s.metricsServer = &http.Server{
		Addr:              addr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		s.log.Info("metrics server listening", zap.String("addr", addr))
		if err := s.metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("metrics server error", zap.Error(err))
		}
	}()
}

// close releases everything open acquired, newest first.
func (s *session) close() {
	if s.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = s.metricsServer.Shutdown(ctx)
		cancel()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && s.log != nil {
			s.log.Warn("close failed", zap.Error(err))
		}
	}
	s.closers = nil
}

// runTUI runs the full interactive browser.
func (s *session) runTUI(ctx context.Context) error {
	handleMgr, err := handles.NewTempFiles("")
	if err != nil {
		return fmt.Errorf("create thumbnail dir: %w", err)
	}
	defer handleMgr.Close()

	notifier := tui.NewNotifier()
	b := browser.New(browser.Params{
		Store:       s.store,
		Uploader:    s.uploader,
		Handles:     handleMgr,
		Workers:     s.cfg.Thumbnails.Workers,
		MaxBytes:    s.cfg.Thumbnails.MaxBytes,
		Debounce:    s.cfg.Search.Debounce,
		SearchLimit: s.cfg.Search.Limit,
		OnChange:    notifier.Notify,
	})
	// Revokes every live handle before the directory goes away.
	defer b.Close()

	app := tui.NewApp(tui.AppParams{Context: ctx, Browser: b})
	p := tea.NewProgram(app, tea.WithAltScreen())
	go notifier.Run(p)

	_, err = p.Run()
	notifier.Stop()
	if err != nil {
		return fmt.Errorf("run app: %w", err)
	}
	return nil
}
