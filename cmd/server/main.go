package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mrpeppo47/server-scacchi/internal"
	"github.com/mrpeppo47/server-scacchi/pkg/logger"
)

func main() {
	// 解析命令行參數
	var (
		configPath = flag.String("config", "config.yaml", "配置檔案路徑")
		port       = flag.Int("port", 0, "服務器端口（覆蓋配置與 PORT）")
		logLevel   = flag.String("log-level", "", "日誌級別 (debug, info, warn, error)")
	)
	flag.Parse()

	// .env 不存在不算錯誤
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}

	// 載入配置：檔案 → 環境變數 → 命令行
	config, err := internal.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := config.ApplyEnv(os.Getenv); err != nil {
		fmt.Fprintf(os.Stderr, "invalid environment: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		config.Server.Port = *port
	}
	if *logLevel != "" {
		config.Log.Level = *logLevel
	}
	if err := config.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	// 設定日誌
	log, err := logger.New(logger.Options{
		Level:  config.Log.Level,
		Format: config.Log.Format,
		Output: config.Log.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(log)

	// 生命週期紀錄：未設定 NATS 時不發布
	journal := openJournal(config, log)
	defer func() {
		if err := journal.Close(); err != nil {
			log.Error("關閉 NATS 連線失敗", "error", err)
		}
	}()

	// 組裝：Manager ← Router ← Hub
	manager := internal.NewManager(log, internal.WithMembershipCheck(config.Match.RequireMembership))
	hub := internal.NewHub(config.WebSocket, config.Server.AllowedOrigins, log)
	router := internal.NewRouter(manager, hub, journal, config.Match.QueueSize, log)
	hub.SetDispatcher(router)

	ctx, cancel := context.WithCancel(context.Background())
	routerDone := make(chan struct{})
	go func() {
		defer close(routerDone)
		router.Run(ctx)
	}()

	handler := internal.NewHandler(router, hub, log)

	// 設定 HTTP 伺服器
	srv := &http.Server{
		Addr:         config.Addr(),
		Handler:      handler.Routes(),
		ReadTimeout:  config.Server.ReadTimeout,
		WriteTimeout: config.Server.WriteTimeout,
		IdleTimeout:  config.Server.IdleTimeout,
	}

	// 啟動伺服器
	serverErrors := make(chan error, 1)
	go func() {
		log.Info("Server in ascolto",
			"port", config.Server.Port,
			"log_level", config.Log.Level,
			"nats", config.NATS.URL != "",
			"require_membership", config.Match.RequireMembership)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("服務器錯誤", "error", err)
		}

	case sig := <-shutdown:
		log.Info("收到關閉信號，開始優雅關閉", "signal", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		// 停止接受新連接
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("服務器關閉失敗", "error", err)
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("強制關閉服務器失敗", "error", closeErr)
			}
		}
	}

	// Hub 先停，斷線事件在 Router 停止後會被丟棄
	hub.Stop()
	cancel()
	<-routerDone

	log.Info("服務器已關閉")
}

// openJournal 連接 NATS；失敗時退回不發布，房間服務照常運作
func openJournal(config *internal.Config, log *slog.Logger) internal.Journal {
	if config.NATS.URL == "" {
		return internal.NopJournal{}
	}

	journal, err := internal.NewNATSJournal(config.NATS.URL, config.NATS.SubjectPrefix, log)
	if err != nil {
		log.Warn("無法連接 NATS，停用生命週期紀錄", "url", config.NATS.URL, "error", err)
		return internal.NopJournal{}
	}

	log.Info("已連接 NATS", "url", config.NATS.URL, "prefix", config.NATS.SubjectPrefix)
	return journal
}
