package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/cowrite/cowrite/server"
	"github.com/cowrite/cowrite/storage"
)

// Flags represents the command-line flags passed to the server.
type Flags struct {
	Addr         string
	Config       string
	DataDir      string
	LogFile      string
	SaveInterval time.Duration
	Debug        bool
}

// parseFlags parses command-line flags.
func parseFlags() Flags {
	addr := flag.String("addr", ":8080", "Server's network address")
	config := flag.String("config", "", "Path to the YAML config declaring users and document ACLs")
	dataDir := flag.String("data", "", "Directory for the BadgerDB snapshot store (in-memory store when empty)")
	logFile := flag.String("log", "", "Path for the JSON log file (stderr only when empty)")
	saveInterval := flag.Duration("save-interval", 10*time.Second, "Periodic snapshot flush interval")
	debug := flag.Bool("debug", false, "Enable verbose logging")

	flag.Parse()

	return Flags{
		Addr:         *addr,
		Config:       *config,
		DataDir:      *dataDir,
		LogFile:      *logFile,
		SaveInterval: *saveInterval,
		Debug:        *debug,
	}
}

// setupLogger initializes the server's logger (logrus).
func setupLogger(flags Flags) (*logrus.Logger, *os.File, error) {
	logger := logrus.New()
	if flags.Debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	if flags.LogFile == "" {
		return logger, nil, nil
	}

	logFile, err := os.OpenFile(flags.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, err
	}
	logger.SetOutput(logFile)
	logger.SetFormatter(&logrus.JSONFormatter{})
	return logger, logFile, nil
}

// openStore selects the snapshot store: BadgerDB when a data directory is
// given, in-memory otherwise.
func openStore(flags Flags, logger *logrus.Logger) (storage.Store, error) {
	if flags.DataDir == "" {
		logger.Warn("no -data directory given, snapshots will not survive restarts")
		return storage.NewMemoryStore(), nil
	}

	cfg := storage.DefaultBadgerConfig(flags.DataDir)
	if flags.Debug {
		cfg.Logger = logger
	}
	return storage.OpenBadger(cfg)
}

// openAuthenticator accepts any non-empty token as an identity. Used for
// development runs without a config file.
type openAuthenticator struct{}

func (openAuthenticator) Authenticate(_ context.Context, token string) (server.Identity, error) {
	if token == "" {
		return server.Identity{}, server.ErrNoIdentity
	}
	return server.Identity{UserID: token, Username: token}, nil
}

func main() {
	flags := parseFlags()

	logger, logFile, err := setupLogger(flags)
	if err != nil {
		color.Red("Logger error, exiting: %s", err)
		os.Exit(1)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	store, err := openStore(flags, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to open snapshot store")
	}
	defer store.Close()

	var auth server.Authenticator = openAuthenticator{}
	var acl server.AccessController = server.StaticAccessController{AllowUnknown: true}
	if flags.Config != "" {
		cfg, err := loadConfig(flags.Config)
		if err != nil {
			logger.WithError(err).Fatal("failed to load config")
		}
		auth, acl = cfg.collaborators()
		logger.WithField("users", len(cfg.Users)).WithField("documents", len(cfg.Documents)).Info("loaded static collaborators")
	}

	hub := server.NewHub(store, server.Config{SaveInterval: flags.SaveInterval}, logger)

	if !flags.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "documents": hub.ActiveDocuments()})
	})
	server.NewTransport(hub, auth, acl, logger).Register(engine)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{Addr: flags.Addr, Handler: engine}

	color.Green("Starting cowrite server on %s", flags.Addr)
	logger.WithField("addr", flags.Addr).Info("starting server")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Stop accepting connections, then flush every loaded document.
		_ = httpServer.Shutdown(shutdownCtx)
		hub.Shutdown(shutdownCtx)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Fatal("server error, exiting")
	}
	color.Yellow("Server stopped.")
}
