// canaryd 金丝雀部署守护进程
//
// 装配链路：配置加载 → 日志 → 调度器 → 指标/注入器/部署器组件 →
// gin 服务（业务路由 + 采集中间件 + 管理面）→ 信号驱动的优雅退出
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/KOMKZ/go-yogan-canary/api"
	"github.com/KOMKZ/go-yogan-canary/canary"
	"github.com/KOMKZ/go-yogan-canary/component"
	"github.com/KOMKZ/go-yogan-canary/config"
	"github.com/KOMKZ/go-yogan-canary/injector"
	"github.com/KOMKZ/go-yogan-canary/logger"
	"github.com/KOMKZ/go-yogan-canary/metrics"
	"github.com/KOMKZ/go-yogan-canary/rollback"
	"github.com/KOMKZ/go-yogan-canary/scheduler"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configFiles []string
		addr        string
	)

	cmd := &cobra.Command{
		Use:          "canaryd",
		Short:        "Canary deployment daemon with metrics-driven automatic rollback",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configFiles, addr)
		},
	}
	cmd.Flags().StringSliceVarP(&configFiles, "config", "c", nil, "config files, later files override earlier ones")
	cmd.Flags().StringVar(&addr, "addr", ":8080", "http listen address")
	return cmd
}

// redisConfig Redis 历史存储配置段
type redisConfig struct {
	Addr        string `mapstructure:"addr"`
	Password    string `mapstructure:"password"`
	DB          int    `mapstructure:"db"`
	KeyPrefix   string `mapstructure:"key_prefix"`
	HistorySize int    `mapstructure:"history_size"`
}

func run(configFiles []string, addr string) error {
	loader := config.NewLoader().WithEnvPrefix("CANARYD")
	for _, f := range configFiles {
		loader.AddFile(f)
	}
	if err := loader.Load(); err != nil {
		return err
	}

	logCfg := logger.DefaultManagerConfig()
	if loader.IsSet("logger") {
		if err := loader.UnmarshalKey("logger", &logCfg); err != nil {
			return fmt.Errorf("load logger config failed: %w", err)
		}
	}
	logger.InitManager(logCfg)
	log := logger.GetLogger("canaryd")

	sched, err := scheduler.New()
	if err != nil {
		return fmt.Errorf("create scheduler failed: %w", err)
	}
	defer sched.Close()

	history, err := buildHistory(loader)
	if err != nil {
		return err
	}
	defer history.Close()

	// 组件装配：路由器既是部署器的流量切分器，也是注入器的流量决策器
	router := canary.NewRouter(nil)
	metricsComp := metrics.NewComponent()
	injectorComp := injector.NewComponent(router)

	counter := &activeCounter{}
	canaryComp := canary.NewComponent(metricsComp, injectorComp, router, sched, history,
		canary.WithOTelMetrics(buildOTel(counter)))

	components := []component.Component{metricsComp, injectorComp, canaryComp}
	ctx := context.Background()
	for _, comp := range components {
		if err := comp.Init(ctx, loader); err != nil {
			return fmt.Errorf("init component %s failed: %w", comp.Name(), err)
		}
	}
	counter.dep = canaryComp.Deployer()
	for _, comp := range components {
		if err := comp.Start(ctx); err != nil {
			return fmt.Errorf("start component %s failed: %w", comp.Name(), err)
		}
	}

	if gin.Mode() == gin.DebugMode && !loader.GetBool("http.debug") {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(injector.IngestionMiddleware(metricsComp.Collector()))
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	api.NewHandler(canaryComp.Deployer(), injectorComp.Injector(),
		metricsComp.Collector(), history).Register(engine)

	srv := &http.Server{Addr: addr, Handler: engine}
	errCh := make(chan error, 1)
	go func() {
		log.Info("canaryd listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-sigCtx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", zap.Error(err))
	}
	for i := len(components) - 1; i >= 0; i-- {
		if err := components[i].Stop(shutdownCtx); err != nil {
			log.Error("component stop failed",
				zap.String("component", components[i].Name()), zap.Error(err))
		}
	}
	return nil
}

// buildHistory 回滚历史存储：配置了 redis 段用 Redis，否则用内存
func buildHistory(loader *config.Loader) (rollback.History, error) {
	if !loader.IsSet("redis") {
		return rollback.NewMemoryHistory(256), nil
	}

	var rc redisConfig
	if err := loader.UnmarshalKey("redis", &rc); err != nil {
		return nil, fmt.Errorf("load redis config failed: %w", err)
	}
	if rc.KeyPrefix == "" {
		rc.KeyPrefix = "canaryd"
	}
	if rc.HistorySize <= 0 {
		rc.HistorySize = 256
	}

	client := redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})
	return rollback.NewRedisHistory(client, rc.KeyPrefix, rc.HistorySize), nil
}

// activeCounter 活跃部署数回调（部署器创建后回填）
type activeCounter struct {
	dep *canary.Deployer
}

func (a *activeCounter) count() int64 {
	if a.dep == nil {
		return 0
	}
	return a.dep.ActiveCount()
}

// buildOTel 注册金丝雀 OTel 指标（注册失败不阻塞启动）
func buildOTel(counter *activeCounter) *canary.OTelCanaryMetrics {
	m := canary.NewOTelCanaryMetrics(counter.count)
	if err := m.RegisterMetrics(otel.Meter("canaryd")); err != nil {
		logger.GetLogger("canaryd").Warn("otel metrics registration failed", zap.Error(err))
	}
	return m
}
