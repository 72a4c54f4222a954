package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	_ "product-catalog-server-go/docs"
	"product-catalog-server-go/internal/core/providers/vlllm"
	"product-catalog-server-go/internal/domain/catalog"
	"product-catalog-server-go/internal/domain/eventbus"
	platformconfig "product-catalog-server-go/internal/platform/config"
	platformerrors "product-catalog-server-go/internal/platform/errors"
	platformlogging "product-catalog-server-go/internal/platform/logging"
	platformobservability "product-catalog-server-go/internal/platform/observability"
	httptransport "product-catalog-server-go/internal/transport/http"
	httpextract "product-catalog-server-go/internal/transport/http/extract"
	httpsystem "product-catalog-server-go/internal/transport/http/system"
)

// Version 服务版本
const Version = "1.0.0"

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	config                *platformconfig.Config
	configPath            string
	logger                *platformlogging.Logger
	slogger               *slog.Logger
	observabilityShutdown platformobservability.ShutdownFunc
	bus                   *eventbus.Bus
	provider              *vlllm.Provider
	extraction            *catalog.Service
	startedAt             time.Time
}

// Run 启动整个服务生命周期，负责加载配置、初始化依赖和优雅关停。
func Run(ctx context.Context) error {
	state := &appState{startedAt: time.Now()}

	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		if state.bus != nil {
			state.bus.Stop()
		}
		if state.logger != nil {
			state.logger.ErrorTag("引导", "初始化失败: %v", err)
			_ = state.logger.Close()
		}
		return err
	}

	logger := state.logger
	if state.config == nil || logger == nil || state.extraction == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"config/logger/extraction not initialised",
		)
	}

	logBootstrapGraph(steps, logger)

	defer func() {
		_ = logger.Close()
	}()

	if shutdown := state.observabilityShutdown; shutdown != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.WarnTag("引导", "可观测性未正常关闭: %v", err)
			}
		}()
	}

	defer func() {
		state.bus.Stop()
		logger.InfoTag("事件", "事件总线已停止")
	}()

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if _, err := startHTTPServer(state, group, groupCtx); err != nil {
		cancel()
		return fmt.Errorf("启动 Http 服务失败: %w", err)
	}

	if err := waitForShutdown(signalCtx, groupCtx, cancel, logger, group); err != nil {
		return err
	}

	logger.InfoTag("引导", "服务已退出")
	return nil
}

func logBootstrapGraph(steps []initStep, logger *platformlogging.Logger) {
	if logger == nil {
		return
	}
	logger.InfoTag("引导", "初始化依赖关系概览")

	stepNames := map[string]string{
		"config:load-runtime":       "加载运行配置",
		"logging:init-provider":     "初始化日志提供者",
		"observability:setup-hooks": "设置可观测性钩子",
		"eventbus:setup-handlers":   "初始化事件总线",
		"vlllm:init-provider":       "初始化视觉模型",
		"extraction:init-service":   "初始化提取服务",
	}

	for _, step := range steps {
		name, ok := stepNames[step.ID]
		if !ok {
			name = step.Title
		}
		if len(step.DependsOn) == 0 {
			logger.InfoTag("引导", "%s (%s)", name, step.ID)
			continue
		}
		logger.InfoTag("引导", "%s (%s) <- %s", name, step.ID, strings.Join(step.DependsOn, ", "))
	}
	logger.InfoTag("引导", "启动服务")
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"execute init steps",
			"nil bootstrap state",
		)
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

// InitGraph 返回按依赖顺序排列的初始化步骤
func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load-runtime",
			Title:   "Load runtime configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load-runtime"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "observability:setup-hooks",
			Title:     "Setup observability hooks",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   setupObservabilityStep,
		},
		{
			ID:        "eventbus:setup-handlers",
			Title:     "Start event bus",
			DependsOn: []string{"observability:setup-hooks"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   setupEventBusStep,
		},
		{
			ID:        "vlllm:init-provider",
			Title:     "Initialise vision model provider",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindConfig,
			Execute:   initVisionProviderStep,
		},
		{
			ID:        "extraction:init-service",
			Title:     "Initialise extraction service",
			DependsOn: []string{"vlllm:init-provider", "eventbus:setup-handlers"},
			Kind:      platformerrors.KindConfig,
			Execute:   initExtractionStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	result, err := platformconfig.NewLoader().Load()
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, "config:load-runtime", "failed to load config", err)
	}
	state.config = result.Config
	state.configPath = result.Path
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"logging:init-provider",
			"config not loaded",
		)
	}

	logger, err := platformlogging.New(platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init-provider", "failed to initialize logging provider", err)
	}

	state.logger = logger
	state.slogger = logger.Slog()

	logger.InfoTag(
		"引导",
		"日志模块就绪 [%s] %s",
		state.config.Log.Level,
		state.configPath,
	)
	return nil
}

func setupObservabilityStep(ctx context.Context, state *appState) error {
	if state == nil || state.logger == nil || state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"observability:setup-hooks",
			"config/logger not initialised",
		)
	}

	cfg := platformobservability.Config{
		Enabled: strings.EqualFold(state.config.Log.Level, "debug"),
		Service: "catalog-server",
	}

	shutdown, err := platformobservability.Setup(ctx, cfg, state.slogger)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "observability:setup-hooks", "failed to setup observability hooks", err)
	}
	state.observabilityShutdown = shutdown
	return nil
}

func setupEventBusStep(_ context.Context, state *appState) error {
	if state == nil || state.logger == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"eventbus:setup-handlers",
			"logger not initialised",
		)
	}

	bus := eventbus.New(0, state.logger)
	if err := eventbus.SetupEventHandlers(bus, state.logger); err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "eventbus:setup-handlers", "failed to subscribe event handlers", err)
	}
	bus.Start()
	state.bus = bus
	return nil
}

func initVisionProviderStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil || state.logger == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"vlllm:init-provider",
			"config/logger not initialised",
		)
	}

	name, providerCfg, ok := state.config.SelectedVLLLM()
	if !ok {
		return platformerrors.New(
			platformerrors.KindConfig,
			"vlllm:init-provider",
			fmt.Sprintf("selected VLLLM provider %q not configured", state.config.Selected.VLLLM),
		)
	}

	provider, err := vlllm.NewProvider(name, providerCfg, state.logger)
	if err != nil {
		return err
	}
	state.provider = provider

	state.logger.InfoTag("视觉", "视觉模型就绪 %s (%s)", name, provider.ModelName())
	return nil
}

func initExtractionStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil || state.provider == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"extraction:init-service",
			"config/provider not initialised",
		)
	}

	service, err := catalog.NewService(catalog.Options{
		Extraction: state.config.Extraction,
		Security:   state.config.Security,
		Model:      state.provider,
		Events:     state.bus,
		Logger:     state.logger,
	})
	if err != nil {
		return err
	}
	state.extraction = service

	state.logger.InfoTag("引导", "提取服务就绪 preset=%s", service.PresetName())
	return nil
}

func buildRouter(state *appState) (*httptransport.Router, error) {
	config := state.config
	logger := state.logger

	router, err := httptransport.Build(httptransport.Options{
		Config: config,
		Logger: logger,
	})
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "http:build-router", "failed to build router", err)
	}

	extractService, err := httpextract.NewService(state.extraction, state.provider.ModelName(), config.Server.MaxUploadBytes, logger)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "extract:new-service", "failed to create extract service", err)
	}

	systemService, err := httpsystem.NewService(httpsystem.Options{
		Version:   Version,
		Model:     state.provider.ModelName(),
		Preset:    state.extraction.PresetName(),
		Docs:      config.Web.Docs,
		StartedAt: state.startedAt,
		Logger:    logger,
	})
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "system:new-service", "failed to create system service", err)
	}

	ctx := context.Background()
	if err := extractService.Register(ctx, router.Root); err != nil {
		return nil, err
	}
	if err := systemService.Register(ctx, router.Root, router.API); err != nil {
		return nil, err
	}
	return router, nil
}

func startHTTPServer(state *appState, g *errgroup.Group, groupCtx context.Context) (*http.Server, error) {
	config := state.config
	logger := state.logger

	router, err := buildRouter(state)
	if err != nil {
		return nil, err
	}

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(config.Server.IP, strconv.Itoa(config.Server.Port)),
		Handler:      router.Engine,
		ReadTimeout:  config.Server.ReadTimeout,
		WriteTimeout: config.Server.WriteTimeout,
	}

	g.Go(func() error {
		logger.InfoTag("HTTP", "Gin 服务已启动，访问地址 http://localhost:%d", config.Server.Port)
		logger.InfoTag("HTTP", "提取接口: http://localhost:%d/extract", config.Server.Port)
		if config.Web.Docs {
			logger.InfoTag("HTTP", "在线文档入口: http://localhost:%d/docs", config.Server.Port)
		}

		go func() {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag("HTTP", "HTTP 服务关闭失败: %v", err)
			} else {
				logger.InfoTag("HTTP", "HTTP 服务已优雅关闭")
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "HTTP 服务启动失败: %v", err)
			return err
		}
		return nil
	})

	return httpServer, nil
}

// waitForShutdown 等待系统信号或服务异常退出，然后等待所有服务关闭
func waitForShutdown(
	signalCtx context.Context,
	groupCtx context.Context,
	cancel context.CancelFunc,
	logger *platformlogging.Logger,
	g *errgroup.Group,
) error {
	select {
	case <-signalCtx.Done():
		logger.InfoTag("引导", "收到系统信号 %v，正在进行资源清理", context.Cause(signalCtx))
	case <-groupCtx.Done():
		logger.WarnTag("引导", "服务异常退出，正在进行资源清理")
	}

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("引导", "服务关闭过程中出现错误: %v", err)
			return err
		}
		logger.InfoTag("引导", "所有服务已成功关闭")
	case <-time.After(15 * time.Second):
		logger.ErrorTag("引导", "服务关闭超时，已强制退出")
		return errors.New("服务关闭超时")
	}
	return nil
}
