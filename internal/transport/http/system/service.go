package system

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/swaggo/swag"

	"product-catalog-server-go/internal/platform/errors"
	"product-catalog-server-go/internal/platform/logging"
	httptransport "product-catalog-server-go/internal/transport/http"
)

const scalarHTML = `<!DOCTYPE html>
<html lang="tr">
	<head>
		<meta charset="utf-8" />
		<title>Catalog API Reference</title>
		<meta name="viewport" content="width=device-width, initial-scale=1" />
	</head>
	<body>
		<script
			id="api-reference"
			data-url="/openapi.json"
			data-layout="modern"
			src="https://cdn.jsdelivr.net/npm/@scalar/api-reference"
		></script>
	</body>
</html>`

// HealthInfo 健康检查返回的数据
type HealthInfo struct {
	Status        string  `json:"status" example:"ok"`
	Version       string  `json:"version" example:"1.0.0"`
	Model         string  `json:"model" example:"gpt-4o"`
	Preset        string  `json:"preset" example:"standard"`
	Uptime        string  `json:"uptime" example:"1h2m3s"`
	Goroutines    int     `json:"goroutines"`
	ProcessRSS    uint64  `json:"processRssBytes"`
	HostMemTotal  uint64  `json:"hostMemTotalBytes"`
	HostMemUsedPc float64 `json:"hostMemUsedPercent"`
}

// Options 系统服务的依赖
type Options struct {
	Version   string
	Model     string
	Preset    string
	Docs      bool
	StartedAt time.Time
	Logger    *logging.Logger
}

// Service 健康检查与在线文档
type Service struct {
	opts   Options
	logger *logging.Logger
}

// NewService 创建系统服务
func NewService(opts Options) (*Service, error) {
	if opts.Logger == nil {
		return nil, errors.New(errors.KindConfig, "system.new", "logger is required")
	}
	if opts.StartedAt.IsZero() {
		opts.StartedAt = time.Now()
	}
	return &Service{opts: opts, logger: opts.Logger}, nil
}

// Register 注册 /health 以及可选的文档路由。
// api 为 /api 分组，root 为根分组。
func (s *Service) Register(_ context.Context, root, api *gin.RouterGroup) error {
	api.GET("/health", s.handleHealth)

	if s.opts.Docs {
		root.GET("/openapi.json", s.handleOpenAPI)
		root.GET("/docs", func(c *gin.Context) {
			c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(scalarHTML))
		})
	}

	s.logger.InfoTag("HTTP", "系统服务路由注册完成 docs=%t", s.opts.Docs)
	return nil
}

// handleHealth 健康检查
// @Summary 健康检查
// @Description 返回服务状态、运行时长以及进程和主机内存信息
// @Tags System
// @Produce json
// @Success 200 {object} httptransport.APIResponse{data=HealthInfo}
// @Router /api/health [get]
func (s *Service) handleHealth(c *gin.Context) {
	info := HealthInfo{
		Status:     "ok",
		Version:    s.opts.Version,
		Model:      s.opts.Model,
		Preset:     s.opts.Preset,
		Uptime:     time.Since(s.opts.StartedAt).Truncate(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
	}

	ctx := c.Request.Context()
	if proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if memInfo, err := proc.MemoryInfoWithContext(ctx); err == nil && memInfo != nil {
			info.ProcessRSS = memInfo.RSS
		}
	} else {
		s.logger.DebugTag("HTTP", "读取进程信息失败: %v", err)
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil && vm != nil {
		info.HostMemTotal = vm.Total
		info.HostMemUsedPc = vm.UsedPercent
	} else if err != nil {
		s.logger.DebugTag("HTTP", "读取主机内存失败: %v", err)
	}

	httptransport.RespondSuccess(c, http.StatusOK, info, "healthy")
}

func (s *Service) handleOpenAPI(c *gin.Context) {
	doc, err := swag.ReadDoc()
	if err != nil {
		s.logger.ErrorTag("HTTP", "生成 OpenAPI 文档失败: %v", err)
		httptransport.RespondError(c, http.StatusInternalServerError, "failed to generate openapi spec",
			gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(doc))
}
