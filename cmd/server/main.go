package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/api"
	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/config"
	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/detect"
	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/events"
	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/live"
	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/logging"
	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/media"
	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/notify"
	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/pipeline"
	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/recording"
	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/storage"
)

const serviceName = "visionflow-monitoring"

func main() {
	cfgPath := flag.String("config", "config/default.yaml", "Config file path")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("Config load error: %v", err)
	}

	logger, err := logging.New(os.Getenv("DEBUG") == "true")
	if err != nil {
		log.Fatalf("Logger init error: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// DB
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close()

	var store recording.EventStore
	if err := db.Ping(); err != nil {
		logger.Warn("db unreachable, events will not be persisted", zap.Error(err))
	} else {
		model := storage.EventModel{DB: db}
		store = model
		retention := storage.NewRetention(model,
			time.Duration(cfg.Recording.RetentionDays)*24*time.Hour, 0, logger)
		retention.Start(ctx)
	}

	// Redis
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	defer rdb.Close()

	// NATS
	var publisher notify.Publisher = notify.NopPublisher{}
	nc, err := nats.Connect(cfg.NATS.URL, nats.Name(serviceName))
	if err != nil {
		logger.Warn("nats connect failed, event publishing disabled", zap.Error(err))
	} else {
		publisher = notify.NewNATSPublisher(nc, cfg.NATS.Subject, 3)
		defer nc.Close()
	}

	// Detector (degrades to pass-through when model files are missing)
	detector := detect.NewYOLODetector(
		cfg.Detection.ModelPath, cfg.Detection.ConfigPath, cfg.Detection.NamesPath, logger)
	defer detector.Close()

	// Recording
	clipEnc := recording.NewOpenCVEncoder(cfg.Recording.Codec)
	recorder, err := recording.NewRecorder(recording.Config{
		OutputDir:        cfg.Recording.OutputDir,
		PreEventSeconds:  cfg.Recording.PreEventSeconds,
		PostEventSeconds: cfg.Recording.PostEventSeconds,
		FPS:              cfg.Recording.FPS,
	}, clipEnc, store, logger)
	if err != nil {
		logger.Fatal("recorder init failed", zap.Error(err))
	}

	// Event pipeline
	policy := events.NewPolicy(
		time.Duration(cfg.Recording.MinEventInterval)*time.Second,
		cfg.Detection.Confidence)
	cache := live.NewDetectionCache(rdb)
	analyzer := pipeline.NewAnalyzer(pipeline.Config{
		Interval: cfg.Detection.Interval(),
		Params: detect.Params{
			Classes:       cfg.Detection.Classes,
			MinConfidence: cfg.Detection.Confidence,
		},
	}, detector, policy, recorder, publisher, cache, logger)

	// Cameras
	registry := media.NewRegistry(media.NewOpenCVSource, logger, recorder, analyzer)
	for _, cam := range cfg.Cameras {
		camCfg := media.ConnectionConfig{
			ID:                cam.ID,
			DisplayName:       cam.Name,
			SourceURI:         cam.SourceURI,
			TargetWidth:       cam.Width,
			TargetHeight:      cam.Height,
			TargetFPS:         cam.FPS,
			ReconnectInterval: time.Duration(cam.ReconnectInterval) * time.Second,
		}
		if err := registry.Add(camCfg); err != nil {
			logger.Error("camera provisioning failed", zap.String("camera_id", cam.ID), zap.Error(err))
			continue
		}
		if err := registry.Start(cam.ID); err != nil {
			logger.Error("camera start failed", zap.String("camera_id", cam.ID), zap.Error(err))
		}
	}

	// Live preview
	liveReg := live.NewRegistry(detector, live.JPEGEncoder{}, media.NewOpenCVSource, logger)

	// Detection section is hot-reloadable.
	watcher := config.NewWatcher(*cfgPath, logger, func(next config.Config) {
		analyzer.SetParams(detect.Params{
			Classes:       next.Detection.Classes,
			MinConfidence: next.Detection.Confidence,
		})
		logger.Info("detection parameters reloaded",
			zap.Strings("classes", next.Detection.Classes),
			zap.Float64("confidence", next.Detection.Confidence))
	})
	watcher.Start(ctx)

	// HTTP
	defaultParams := detect.Params{
		Classes:       cfg.Detection.Classes,
		MinConfidence: cfg.Detection.Confidence,
	}
	router := api.NewRouter(api.Handlers{
		Cameras: api.NewCameraHandler(registry, recorder, analyzer),
		Live:    api.NewLiveHandler(liveReg, cache, defaultParams),
		Events:  api.NewEventHandler(storage.EventModel{DB: db}),
		Stream:  api.NewStreamHandler(liveReg, logger),
	})

	server := &http.Server{
		Addr:    cfg.Server.Listen,
		Handler: router,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", cfg.Server.Listen))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", zap.Error(err))
	}
	liveReg.Shutdown()
	registry.Shutdown()
	analyzer.Shutdown()
	recorder.Shutdown()

	logger.Info("server stopped")
}
