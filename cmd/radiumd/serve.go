package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Unicorn/Radium-sub010/internal/agentdef"
	ctxassembly "github.com/Unicorn/Radium-sub010/internal/context"
	"github.com/Unicorn/Radium-sub010/internal/event"
	"github.com/Unicorn/Radium-sub010/internal/hooks"
	"github.com/Unicorn/Radium-sub010/internal/mcp"
	"github.com/Unicorn/Radium-sub010/internal/memory"
	"github.com/Unicorn/Radium-sub010/internal/metrics"
	"github.com/Unicorn/Radium-sub010/internal/model"
	"github.com/Unicorn/Radium-sub010/internal/orchestrator"
	"github.com/Unicorn/Radium-sub010/internal/policy"
	"github.com/Unicorn/Radium-sub010/internal/rpc"
	"github.com/Unicorn/Radium-sub010/internal/sandbox"
	"github.com/Unicorn/Radium-sub010/internal/session"
	"github.com/Unicorn/Radium-sub010/internal/source"
	"github.com/Unicorn/Radium-sub010/internal/storage"
	"github.com/Unicorn/Radium-sub010/internal/token"
	"github.com/Unicorn/Radium-sub010/internal/tools"
	"github.com/Unicorn/Radium-sub010/internal/tracing"
	"github.com/Unicorn/Radium-sub010/internal/workflow"
	"github.com/Unicorn/Radium-sub010/internal/workspace"
)

func buildServeCmd() *cobra.Command {
	var (
		root    string
		addr    string
		rules   string
		debug   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the orchestration daemon and its RPC surface",
		Long: `Start radiumd against a workspace root: load agent definitions and
policy rules, wire the tool-calling loop and workflow engine to storage,
and serve the RPC surface over websocket.

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if debug {
				slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
			}
			return runServe(cmd.Context(), serveConfig{WorkspaceRoot: root, Addr: addr, RulesFile: rules})
		},
	}

	cmd.Flags().StringVarP(&root, "workspace", "w", workspace.Discover("."), "Workspace root directory")
	cmd.Flags().StringVarP(&addr, "addr", "a", ":7171", "Address the RPC surface listens on")
	cmd.Flags().StringVar(&rules, "rules", "", "Policy rule TOML file (defaults to <workspace>/.radium/policy.toml if present)")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

type serveConfig struct {
	WorkspaceRoot string
	Addr          string
	RulesFile     string
}

func runServe(ctx context.Context, cfg serveConfig) error {
	logger := slog.Default()

	layout, err := workspace.Locate(cfg.WorkspaceRoot)
	if err != nil {
		return fmt.Errorf("locate workspace: %w", err)
	}
	if _, err := workspace.EnsureWorkspaceFiles(layout.Root, workspace.DefaultBootstrapFiles(), false); err != nil {
		return fmt.Errorf("bootstrap workspace: %w", err)
	}

	db, err := storage.Open(layout.Database)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()
	workflowStore := storage.NewWorkflowStore(db)

	tokenStore, err := token.Open(layout.Tokens)
	if err != nil {
		return fmt.Errorf("open token store: %w", err)
	}

	sessions := session.NewStore(layout)

	rulesFile := cfg.RulesFile
	if rulesFile == "" {
		candidate := filepath.Join(layout.Meta, "policy.toml")
		if _, err := os.Stat(candidate); err == nil {
			rulesFile = candidate
		}
	}
	pol := policy.NewResolver(policy.ModeAsk)
	if rulesFile != "" {
		rules, err := policy.LoadRulesFile(rulesFile)
		if err != nil {
			return fmt.Errorf("load policy rules: %w", err)
		}
		pol.LoadRules(rules)
		stopWatch, err := policy.WatchRulesFile(pol, rulesFile, logger)
		if err != nil {
			logger.Warn("policy: rule file hot-reload disabled", "error", err)
		} else {
			defer stopWatch()
		}
	}
	approvals := policy.NewApprovalManager()

	hookReg := hooks.NewRegistry()
	telemetry := metrics.NewMetrics(prometheus.DefaultRegisterer)
	hookReg.Register(hooks.Telemetry, telemetry.Handler())

	agentDirs := []string{filepath.Join(layout.Root, "agents"), filepath.Join(layout.ExtensionsDir, "agents")}
	if global := os.Getenv("RADIUM_GLOBAL_AGENTS_DIR"); global != "" {
		agentDirs = append(agentDirs, global)
	}
	agents, err := agentdef.Discover(agentDirs)
	if err != nil {
		return fmt.Errorf("discover agents: %w", err)
	}
	for _, def := range agents {
		if err := agentdef.Validate(def, agentDirs); err != nil {
			return fmt.Errorf("validate agent %q: %w", def.ID, err)
		}
	}
	logger.Info("agents discovered", "count", len(agents))

	sources := source.NewRegistry()
	sources.Register("file", source.FileReader{MaxBytes: 1 << 20})
	sources.Register("http", source.HTTPReader{})
	sources.Register("https", source.HTTPReader{})

	mem, err := memory.NewStore(layout.MemoryDir)
	if err != nil {
		return fmt.Errorf("open memory store: %w", err)
	}
	playbooks := ctxassembly.NewPlaybookStore()
	if err := ctxassembly.LoadPlaybooksDir(playbooks, layout.PlaybooksDir); err != nil {
		logger.Warn("playbooks: load failed", "error", err)
	}
	ctxMgr := ctxassembly.NewManager(sources, sessions, memory.CtxReader{Store: mem}, playbooks)

	events := event.NewBus()

	sandboxMgr := sandbox.NewManager(func(c sandbox.Config) (sandbox.Sandbox, error) {
		if c.Variant == sandbox.VariantContainer {
			return sandbox.NewContainer(c)
		}
		return sandbox.NewPassThrough(c)
	})

	toolReg := tools.NewRegistry()
	if err := (tools.FileOps{Root: layout.Root}).Register(toolReg); err != nil {
		return fmt.Errorf("register file ops tool: %w", err)
	}
	if err := (tools.Git{Root: layout.Root}).Register(toolReg); err != nil {
		return fmt.Errorf("register git tool: %w", err)
	}
	if err := (tools.Search{Root: layout.Root}).Register(toolReg); err != nil {
		return fmt.Errorf("register search tool: %w", err)
	}
	if err := (tools.SymbolIndex{Root: layout.Root}).Register(toolReg); err != nil {
		return fmt.Errorf("register symbol index tool: %w", err)
	}
	if err := (tools.Terminal{Manager: sandboxMgr, Config: sandbox.Config{Variant: sandbox.VariantPassThrough}}).Register(toolReg); err != nil {
		return fmt.Errorf("register terminal tool: %w", err)
	}

	mcpProxy := mcp.NewProxy(mcp.ConflictNamespacePrefix)
	if err := registerMCPServers(ctx, mcpProxy, os.Getenv("RADIUM_MCP_SERVERS")); err != nil {
		logger.Warn("mcp: server registration failed", "error", err)
	}
	if err := (tools.MCPBridge{Proxy: mcpProxy}).Register(toolReg); err != nil {
		return fmt.Errorf("bridge mcp tools: %w", err)
	}

	tpm, burst := modelRateLimitFromEnv()
	models := model.NewRegistry()
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		models.Register("anthropic", model.NewRateLimited(model.NewAnthropic(model.AnthropicConfig{APIKey: key}), tpm, burst))
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		models.Register("openai", model.NewRateLimited(model.NewOpenAI(model.OpenAIConfig{APIKey: key}), tpm, burst))
	}

	agentResolver := agentRegistry(agents)

	tracerProvider := tracing.NewProvider(tracingSampleRatioFromEnv())

	orc := orchestrator.New(sessions, pol, approvals, hookReg, ctxMgr, mem, events, toolReg, models, agentResolver, nil, orchestrator.DefaultConfig())
	orc.Tracer = tracing.Tracer(tracerProvider, "radiumd/orchestrator")

	if err := (tools.NestedAgent{Spawner: orc}).Register(toolReg); err != nil {
		return fmt.Errorf("register spawn_agent tool: %w", err)
	}

	engine := workflow.NewEngine(orc, sessions, events, workflowStore, workflow.NewCheckpointStore(filepath.Join(layout.Meta, "checkpoints")), layout.Root, 0)
	engine.Hooks = hookReg

	_ = tokenStore // available to provider/channel wiring once configured; credential lookups thread through here

	server := rpc.NewServer(sessions, events, orc, engine, workflowStore, agents, sources, logger)
	upgrader := rpc.NewUpgrader(server)

	mux := http.NewServeMux()
	mux.Handle("/rpc", upgrader)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{Addr: cfg.Addr, Handler: mux}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("radiumd listening", "addr", cfg.Addr, "workspace", layout.Root)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		logger.Warn("tracer provider shutdown failed", "error", err)
	}
	return httpServer.Shutdown(shutdownCtx)
}

// tracingSampleRatioFromEnv reads the turn-span sampling ratio from the
// environment, defaulting to recording every turn.
func tracingSampleRatioFromEnv() float64 {
	ratio := 1.0
	if v := os.Getenv("RADIUM_TRACE_SAMPLE_RATIO"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil && n >= 0 && n <= 1 {
			ratio = n
		}
	}
	return ratio
}

// registerMCPServers launches and registers every stdio MCP server
// named in spec, a ';'-separated list of "name=command arg1 arg2"
// entries (e.g. RADIUM_MCP_SERVERS="fs=mcp-server-filesystem /workspace").
// A server that fails to start or list its tools is logged and
// skipped; the rest still register.
func registerMCPServers(ctx context.Context, proxy *mcp.Proxy, spec string) error {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil
	}
	var errs []string
	for _, entry := range strings.Split(spec, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, cmdline, ok := strings.Cut(entry, "=")
		if !ok {
			errs = append(errs, fmt.Sprintf("%q: expected name=command", entry))
			continue
		}
		fields := strings.Fields(cmdline)
		if len(fields) == 0 {
			errs = append(errs, fmt.Sprintf("%q: missing command", entry))
			continue
		}
		transport, err := mcp.NewStdioTransport(ctx, fields[0], fields[1:]...)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: start: %v", name, err))
			continue
		}
		if err := proxy.Register(ctx, name, transport); err != nil {
			errs = append(errs, fmt.Sprintf("%s: register: %v", name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("mcp servers: %s", strings.Join(errs, "; "))
	}
	return nil
}

// modelRateLimitFromEnv reads the per-engine tokens-per-minute budget
// and burst size from the environment, defaulting to a generous
// ceiling so an unconfigured daemon isn't throttled in practice.
func modelRateLimitFromEnv() (tpm float64, burst int) {
	tpm, burst = 200000, 20000
	if v := os.Getenv("RADIUM_MODEL_TPM"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil && n > 0 {
			tpm = n
		}
	}
	if v := os.Getenv("RADIUM_MODEL_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			burst = n
		}
	}
	return tpm, burst
}

// agentRegistry adapts a discovered definition map to
// orchestrator.AgentResolver.
type agentRegistry map[string]agentdef.Definition

func (a agentRegistry) Resolve(agentID string) (agentdef.Definition, error) {
	def, ok := a[agentID]
	if !ok {
		return agentdef.Definition{}, fmt.Errorf("agent %q not found", agentID)
	}
	return def, nil
}
