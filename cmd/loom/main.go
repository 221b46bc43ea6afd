// Command loom validates, runs, and serves graph-driven agent workflows
// defined in YAML files.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"loom/internal/agent"
	"loom/internal/capability"
	"loom/internal/capability/builtin"
	"loom/internal/checkpoint"
	"loom/internal/config"
	"loom/internal/engine"
	"loom/internal/event"
	"loom/internal/graph"
	"loom/internal/llm"
	"loom/internal/logging"
	"loom/internal/memory"
	"loom/internal/server"
	"loom/internal/state"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, red("error: ")+err.Error())
		os.Exit(1)
	}
}

type cliOptions struct {
	configPath string
	debug      bool
}

func newRootCommand() *cobra.Command {
	opts := &cliOptions{}
	root := &cobra.Command{
		Use:           "loom",
		Short:         "Graph-driven multi-agent workflow runner",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Runtime config file")
	root.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false, "Debug logging")

	root.AddCommand(newValidateCommand(opts))
	root.AddCommand(newRunCommand(opts))
	root.AddCommand(newServeCommand(opts))
	return root
}

func (o *cliOptions) load() (*config.Config, logging.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	level := cfg.LogLevel
	if o.debug {
		level = "debug"
	}
	logging.SetDefaultLevel(logging.ParseLevel(level))
	return cfg, logging.NewComponentLogger("cli"), nil
}

// buildCapabilities assembles the built-in capability set behind a cached
// registry.
func buildCapabilities(logger logging.Logger) (*capability.CachedRegistry, error) {
	registry := capability.NewRegistry(logger)
	files := builtin.FileConfig{Root: "."}
	for _, c := range []capability.Capability{
		builtin.NewWebFetch(builtin.WebFetchConfig{}),
		builtin.NewFileRead(files),
		builtin.NewFileWrite(files),
		builtin.NewThink(),
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return capability.NewCachedRegistry(registry, capability.DefaultCacheConfig(), logger)
}

func buildClient(cfg *config.Config, logger logging.Logger) (llm.Client, error) {
	client, err := llm.NewOpenAIClient(llm.OpenAIConfig{
		Model:   cfg.Model.Name,
		APIKey:  cfg.Model.APIKey,
		BaseURL: cfg.Model.BaseURL,
	}, logger)
	if err != nil {
		return nil, err
	}
	return llm.NewRetryClient(client, cfg.Retry.ToRetryConfig(), logger), nil
}

// conversationMemory gives each agent its own token-budgeted conversation
// buffer.
func conversationMemory(string) memory.Memory {
	return memory.NewConversation(memory.WithTokenBudget(8192))
}

// loadGraph parses a workflow file and compiles it against a client-backed
// agent registry.
func loadGraph(path string, client llm.Client, logger logging.Logger) (*graph.CompiledGraph, error) {
	wf, err := config.LoadWorkflow(path)
	if err != nil {
		return nil, err
	}
	agents, err := wf.BuildAgents(client, conversationMemory, logger)
	if err != nil {
		return nil, err
	}
	return wf.Compile(agents)
}

func newValidateCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <workflow.yaml>",
		Short: "Compile a workflow file and report defects",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			_, logger, err := opts.load()
			if err != nil {
				return err
			}
			// Validation needs no live provider behind the agents.
			g, err := loadGraph(args[0], llm.NewScriptedClient("validate"), logger)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s: %d node(s), entry %q\n", green("valid"), args[0], len(g.Nodes()), g.Entry())
			return nil
		},
	}
}

func newRunCommand(opts *cliOptions) *cobra.Command {
	var inputs []string
	var resumeID string
	var noCache bool

	cmd := &cobra.Command{
		Use:   "run <workflow.yaml>",
		Short: "Execute a workflow and print the final state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			client, err := buildClient(cfg, logger)
			if err != nil {
				return err
			}
			g, err := loadGraph(args[0], client, logger)
			if err != nil {
				return err
			}
			payload, err := parseInputs(inputs)
			if err != nil {
				return err
			}

			capabilities, err := buildCapabilities(logger)
			if err != nil {
				return err
			}
			var invoker agent.Invoker = capabilities
			if noCache {
				invoker = capabilities.Registry
			}

			store, err := checkpoint.NewFileStore(cfg.CheckpointDir, logger)
			if err != nil {
				return err
			}

			bus := event.NewBus(logger)
			bus.SubscribeAll(printEvent)

			eng := engine.New(invoker, bus,
				engine.WithCheckpoints(store),
				engine.WithLogger(logger),
				engine.WithRetryConfig(cfg.Retry.ToRetryConfig()),
				engine.WithRunTimeout(cfg.RunTimeout),
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var final *state.State
			if resumeID != "" {
				final, err = eng.Resume(ctx, g, resumeID)
			} else {
				final, err = eng.Run(ctx, g, payload)
			}
			bus.Close()
			if err != nil {
				return err
			}

			printState(final)
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&inputs, "input", "i", nil, "Initial state field as key=value (repeatable)")
	cmd.Flags().StringVarP(&resumeID, "resume", "r", "", "Resume an interrupted run by ID")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Disable capability result caching")
	return cmd
}

func newServeCommand(opts *cliOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve <workflow.yaml>...",
		Short: "Serve workflows over HTTP",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			client, err := buildClient(cfg, logger)
			if err != nil {
				return err
			}

			workflows := make(map[string]*graph.CompiledGraph, len(args))
			for _, path := range args {
				g, err := loadGraph(path, client, logger)
				if err != nil {
					return fmt.Errorf("workflow %s: %w", path, err)
				}
				workflows[g.Name()] = g
			}

			capabilities, err := buildCapabilities(logger)
			if err != nil {
				return err
			}
			store, err := checkpoint.NewFileStore(cfg.CheckpointDir, logger)
			if err != nil {
				return err
			}

			bus := event.NewBus(logger)
			defer bus.Close()

			promReg := prometheus.NewRegistry()
			eng := engine.New(capabilities, bus,
				engine.WithCheckpoints(store),
				engine.WithLogger(logger),
				engine.WithMetrics(engine.NewMetrics(promReg)),
				engine.WithRetryConfig(cfg.Retry.ToRetryConfig()),
				engine.WithRunTimeout(cfg.RunTimeout),
			)

			srv := server.New(server.Config{
				Engine:      eng,
				Workflows:   workflows,
				Checkpoints: store,
				Hub:         server.NewHub(bus, logger),
				Gatherer:    promReg,
				Logger:      logger,
				Debug:       opts.debug,
			})

			if addr == "" {
				addr = cfg.Server.Addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return srv.Start(ctx, addr)
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (overrides config)")
	return cmd
}

// parseInputs converts repeated key=value flags into the initial payload.
func parseInputs(inputs []string) (map[string]any, error) {
	payload := make(map[string]any, len(inputs))
	for _, input := range inputs {
		key, value, found := strings.Cut(input, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid input %q: expected key=value", input)
		}
		payload[key] = value
	}
	return payload, nil
}

// printEvent renders one lifecycle event as a colored trace line.
func printEvent(ev event.Event) {
	switch ev.Kind {
	case event.WorkflowStart:
		fmt.Printf("%s run %s workflow=%v\n", cyan("▶ start"), ev.RunID, ev.Fields["workflow"])
	case event.WorkflowFinish:
		fmt.Printf("%s run %s state v%v\n", green("■ done"), ev.RunID, ev.Fields["state_version"])
	case event.TaskStart:
		fmt.Printf("%s %s (attempt %v)\n", yellow("→ task"), ev.Task, ev.Fields["attempt"])
	case event.TaskFinish:
		fmt.Printf("%s %s merged %v\n", green("✓ task"), ev.Task, ev.Fields["mapped_fields"])
	case event.AgentStart:
		fmt.Printf("%s %s on %s\n", cyan("  agent"), ev.Agent, ev.Task)
	case event.AgentCapabilityCall:
		fmt.Printf("%s %s(%v)\n", gray("  · call"), ev.Fields["capability"], ev.Fields["arguments"])
	case event.AgentCapabilityResult:
		status := green("ok")
		if ok, _ := ev.Fields["ok"].(bool); !ok {
			status = red("failed")
		}
		fmt.Printf("%s %s %s\n", gray("  · result"), ev.Fields["capability"], status)
	case event.AgentEnd:
		note := ""
		if truncated, _ := ev.Fields["truncated"].(bool); truncated {
			note = yellow(" (truncated)")
		}
		fmt.Printf("%s %s after %v iteration(s)%s\n", cyan("  agent end"), ev.Agent, ev.Fields["iterations"], note)
	}
}

// printState renders the final state sorted by field name.
func printState(st *state.State) {
	values := st.Values()
	fields := make([]string, 0, len(values))
	for field := range values {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	fmt.Printf("\nfinal state (version %d):\n", st.Version())
	for _, field := range fields {
		fmt.Printf("  %s: %v\n", field, values[field])
	}
}
