package cmd

import (
	"log"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"termsync/core/config"
	"termsync/core/database"
	"termsync/core/docstore"
	"termsync/core/docstore/backend"
	"termsync/core/loader"
	"termsync/core/logger"
	"termsync/core/metrics"
	"termsync/core/middleware/auth"
	"termsync/core/middleware/rayid"
	"termsync/core/snapshot"
	"termsync/core/storage"
	"termsync/core/tracing"

	"termsync/feature/integrity"
	"termsync/feature/terminology"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the read-only HTTP API",
	Long:  `Starts the HTTP server and initializes all enabled features.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		cfg, err := config.LoadConfig(".")
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
		if projectFlag != "" {
			cfg.Store.Firestore.ProjectID = projectFlag
		}
		if databaseFlag != "" {
			cfg.Store.Firestore.Database = databaseFlag
		}

		logg, err := logger.New(&cfg.Log)
		if err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
		defer logg.Sync()
		zap.ReplaceGlobals(logg)

		shutdownTracing, err := tracing.Setup(cfg.Tracing, "termsync")
		if err != nil {
			logg.Fatal("Failed to set up tracing", zap.Error(err))
		}
		m := metrics.New()

		// Every backend is optional; features report what is missing.
		var db *gorm.DB
		if conn, err := database.Connect(cfg.Database); err != nil {
			logg.Warn("Optional database connection failed", zap.Error(err))
		} else {
			db = conn
			logg.Info("Connected to sink database", zap.String("driver", cfg.Database.Driver))
		}

		var client storage.Client
		if c, err := storage.NewClient(cfg.Storage); err != nil {
			logg.Warn("Optional storage client failed", zap.Error(err))
		} else {
			client = c
		}

		var store docstore.Store
		if h, err := backend.Open(ctx, cfg.Store, cfg.Storage, logg); err != nil {
			logg.Warn("Optional document store failed", zap.String("backend", cfg.Store.Backend), zap.Error(err))
		} else {
			defer h.Close()
			store = h
		}

		app := fiber.New(fiber.Config{
			DisableStartupMessage: true,
		})

		mgr := loader.NewManager(logg)
		ttl := time.Duration(cfg.Snapshot.CacheTTLSeconds) * time.Second
		mgr.Register(terminology.NewFeature(store, cfg.Store.Collection, ttl, logg, m))
		bucket, prefix := snapshotBucket(cfg)
		mgr.Register(integrity.NewFeature(store, client, bucket, prefix, db, logg))

		// RayID first so every log line can be traced.
		app.Use(rayid.New())

		app.Use(func(c *fiber.Ctx) error {
			l := logger.WithRayID(logg, c)
			l.Info("Request started",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("ip", c.IP()),
			)
			err := c.Next()
			if err != nil {
				l.Error("Request error", zap.Error(err))
			}
			return err
		})

		app.Use(auth.New(auth.Config{ApiKey: cfg.Server.ApiKey}))

		app.Get("/metrics", m.Handler())

		if err := mgr.LoadAll(app); err != nil {
			logg.Fatal("Failed to load features", zap.Error(err))
		}

		go func() {
			logg.Info("Starting server", zap.String("addr", cfg.Server.Addr()))
			if err := app.Listen(cfg.Server.Addr()); err != nil {
				logg.Fatal("Server failed to start", zap.Error(err))
			}
		}()

		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		logg.Info("Shutting down server...")
		_ = app.Shutdown()
		_ = shutdownTracing(ctx)
	},
}

// snapshotBucket returns where snapshot files live: the bucket and directory
// of an s3:// snapshot location, else "snapshots/" in the storage bucket.
func snapshotBucket(cfg *config.Config) (string, string) {
	loc, err := snapshot.ParseLocation(cfg.Snapshot.Location)
	if err != nil || loc.Scheme != "s3" {
		return cfg.Storage.Bucket, "snapshots"
	}
	dir := path.Dir(loc.Key)
	if dir == "." {
		dir = ""
	}
	return loc.Bucket, dir
}

func init() {
	RootCmd.AddCommand(startCmd)
}
