package bootstrap

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	platformlogging "product-catalog-server-go/internal/platform/logging"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `server:
  ip: 127.0.0.1
  port: 18081
log:
  log_level: INFO
  log_dir: ` + filepath.Join(dir, "logs") + `
  log_file: server.log
web:
  enabled: false
  docs: true
extraction:
  preset: compact
selected_module:
  VLLLM: OpenAIVLLM
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CATALOG_CONFIG", path)
	t.Setenv("OPENAI_API_KEY", "sk-smoke")
	t.Chdir(dir)
	return path
}

func TestInitGraphOrder(t *testing.T) {
	steps := InitGraph()
	want := []string{
		"config:load-runtime",
		"logging:init-provider",
		"observability:setup-hooks",
		"eventbus:setup-handlers",
		"vlllm:init-provider",
		"extraction:init-service",
	}
	if len(steps) != len(want) {
		t.Fatalf("unexpected step count: got %d want %d", len(steps), len(want))
	}
	for i, step := range steps {
		if step.ID != want[i] {
			t.Fatalf("step %d mismatch: got %s want %s", i, step.ID, want[i])
		}
	}
}

func TestExecuteInitGraph(t *testing.T) {
	path := writeTestConfig(t)

	state := &appState{}
	if err := executeInitSteps(context.Background(), InitGraph(), state); err != nil {
		t.Fatalf("executeInitSteps failed: %v", err)
	}
	defer state.logger.Close()
	defer state.bus.Stop()
	defer state.observabilityShutdown(context.Background())

	if state.configPath != path {
		t.Fatalf("config path: got %s want %s", state.configPath, path)
	}
	if state.provider == nil || state.provider.ModelName() != "gpt-4o" {
		t.Fatalf("unexpected provider: %+v", state.provider)
	}
	if state.extraction == nil || state.extraction.PresetName() != "compact" {
		t.Fatal("extraction service not initialised with compact preset")
	}

	gin.SetMode(gin.TestMode)
	router, err := buildRouter(state)
	if err != nil {
		t.Fatalf("buildRouter failed: %v", err)
	}

	for path, want := range map[string]int{
		"/extract":      http.StatusOK,
		"/api/health":   http.StatusOK,
		"/openapi.json": http.StatusOK,
		"/missing":      http.StatusNotFound,
	} {
		rec := httptest.NewRecorder()
		router.Engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != want {
			t.Fatalf("GET %s: got %d want %d", path, rec.Code, want)
		}
	}
}

func TestExecuteInitSteps_MissingDependency(t *testing.T) {
	steps := InitGraph()[1:]
	err := executeInitSteps(context.Background(), steps, &appState{})
	if err == nil || !strings.Contains(err.Error(), "config:load-runtime") {
		t.Fatalf("expected unsatisfied dependency error, got %v", err)
	}
}

func TestLogBootstrapGraphOutput(t *testing.T) {
	tmp := t.TempDir()
	logger, err := platformlogging.New(platformlogging.Config{
		Level:    "info",
		Dir:      tmp,
		Filename: "graph.log",
		Console:  io.Discard,
	})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logBootstrapGraph(InitGraph(), logger)
	logger.Close()

	data, err := os.ReadFile(filepath.Join(tmp, "graph.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "初始化依赖关系概览") {
		t.Fatalf("graph header missing in log output: %s", content)
	}
	for _, id := range []string{
		"config:load-runtime",
		"logging:init-provider",
		"observability:setup-hooks",
		"eventbus:setup-handlers",
		"vlllm:init-provider",
		"extraction:init-service",
	} {
		if !strings.Contains(content, id) {
			t.Fatalf("expected graph output to contain %q, got: %s", id, content)
		}
	}
}
