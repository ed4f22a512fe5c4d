package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/aiwuxian/tabletop/internal/api"
	"github.com/aiwuxian/tabletop/internal/config"
	"github.com/aiwuxian/tabletop/internal/services"
	"github.com/aiwuxian/tabletop/internal/storage"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 加载配置
	cfg, err := config.Load("config.yml")
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: config.ParseLevel(cfg.Log.Level)}))
	slog.SetDefault(logger)

	// 初始化数据库
	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("初始化数据库失败: %w", err)
	}
	defer store.Close()
	if keys, err := store.Keys(); err != nil {
		logger.Warn("list slices failed", "err", err)
	} else {
		logger.Info("storage opened", "path", cfg.Database.Path, "slices", keys)
	}

	// 初始化桌面状态
	table := services.NewTable(store, services.Options{
		DiceDisplay:     time.Duration(cfg.Game.DiceDisplaySeconds) * time.Second,
		MaxChatMessages: cfg.Game.MaxChatMessages,
		Logger:          logger,
	})
	defer table.Flush()

	// 设置Gin路由
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Static("/web", "./web")
	r.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/web/index.html")
	})
	api.NewHandler(table, logger).Routes(r)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("启动服务器失败: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		logger.Info("shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "err", err)
			return srv.Close()
		}
		return nil
	})

	err = eg.Wait()
	logger.Info("server shutdown complete")
	return err
}
