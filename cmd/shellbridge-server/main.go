// Package main provides the entry point for the shell/file workspace
// execution server.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ajaxzhan/shellbridge/internal/api"
	"github.com/ajaxzhan/shellbridge/internal/config"
	"github.com/ajaxzhan/shellbridge/internal/fileeditor"
	"github.com/ajaxzhan/shellbridge/internal/logging"
	"github.com/ajaxzhan/shellbridge/internal/pathguard"
	"github.com/ajaxzhan/shellbridge/internal/sessionmgr"
	"github.com/ajaxzhan/shellbridge/internal/shellsession"
	dockerbackend "github.com/ajaxzhan/shellbridge/internal/shellsession/docker"
	"github.com/ajaxzhan/shellbridge/internal/workspace"
	"github.com/docker/docker/client"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (YAML)")
	httpAddr := flag.String("http-addr", "", "HTTP server address (overrides config)")
	workspaceRoot := flag.String("workspace", "", "Workspace root directory (overrides config)")
	backend := flag.String("backend", "", "Session backend: pty or docker (overrides config)")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		logging.Fatal("failed to load configuration", logging.Err(err))
	}
	if err := logging.Init(&logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format}); err != nil {
		logging.Fatal("failed to initialize logging", logging.Err(err))
	}

	if *httpAddr != "" {
		cfg.Server.HTTPAddr = *httpAddr
	}
	if *workspaceRoot != "" {
		cfg.Workspace.Root = *workspaceRoot
	}
	if *backend != "" {
		cfg.Runtime.Backend = *backend
	}

	root, err := cfg.Workspace.ResolvedWorkspaceRoot()
	if err != nil {
		logging.Fatal("failed to resolve workspace root", logging.Err(err))
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		logging.Fatal("failed to create workspace root", logging.Err(err))
	}

	guard := pathguard.New(root, cfg.Workspace.ExtraExcluded...)

	newBackend, err := backendFactory(&cfg.Runtime)
	if err != nil {
		logging.Fatal("failed to configure session backend", logging.Err(err))
	}

	sessionCfg := shellsession.Config{
		WorkspaceRoot:   root,
		DefaultTimeout:  cfg.Runtime.GetDefaultTimeout(),
		MaxTimeout:      cfg.Runtime.GetMaxTimeout(),
		StderrFilter:    cfg.Runtime.StderrFilter,
		RestartTriggers: cfg.Runtime.RestartTriggers,
	}
	mgr := sessionmgr.New(sessionCfg, newBackend)
	editor := fileeditor.New(guard)
	lister := workspace.New(guard)

	srv := api.New(mgr, editor, lister)
	httpServer := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: srv.Routes(),
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logging.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(ctx)
	}()

	logging.Info("shellbridge server listening",
		logging.String("addr", cfg.Server.HTTPAddr),
		logging.String("workspace", root),
		logging.String("backend", cfg.Runtime.Backend))

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logging.Fatal("server failed", logging.Err(err))
	}
}

// backendFactory builds the sessionmgr.BackendFactory matching the
// configured runtime backend.
func backendFactory(rt *config.RuntimeConfig) (sessionmgr.BackendFactory, error) {
	switch rt.Backend {
	case "docker":
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return nil, err
		}
		return func() shellsession.Backend {
			return dockerbackend.New(cli, rt.DockerContainer, rt.Shell)
		}, nil
	default:
		return func() shellsession.Backend {
			return shellsession.NewPTYBackend(rt.Shell)
		}, nil
	}
}
