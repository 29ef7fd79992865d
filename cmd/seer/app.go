package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/nevindra/seer"
	"github.com/nevindra/seer/internal/config"
	"github.com/nevindra/seer/mcp"
	"github.com/nevindra/seer/memory/zep"
	"github.com/nevindra/seer/observer"
	"github.com/nevindra/seer/provider/openaicompat"
	"github.com/nevindra/seer/store/postgres"
	"github.com/nevindra/seer/store/sqlite"
	"github.com/nevindra/seer/tarot"
)

// app is the wired workflow plus everything that must be closed with it.
type app struct {
	runner  seer.TurnRunner
	closers []func() error
	logger  *slog.Logger
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// buildApp wires providers, memory, tool servers and the workflow from cfg.
// On error everything opened so far is closed.
func buildApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *app, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &app{logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	var inst *observer.Instruments
	var tracer seer.Tracer
	if cfg.Observer.Enabled {
		pricing := make(map[string]observer.ModelPricing, len(cfg.Observer.Pricing))
		for model, p := range cfg.Observer.Pricing {
			pricing[model] = observer.ModelPricing{InputPerMillion: p.Input, OutputPerMillion: p.Output}
		}
		var shutdown func(context.Context) error
		inst, shutdown, err = observer.Init(ctx, "seer", pricing)
		if err != nil {
			return nil, fmt.Errorf("observer: %w", err)
		}
		a.closers = append(a.closers, func() error { return shutdown(context.Background()) })
		tracer = observer.NewTracer()
	}

	llm := func(m config.ModelConfig, name string) seer.Provider {
		var p seer.Provider = openaicompat.New(cfg.LLM.APIKey, m.Model,
			openaicompat.WithBaseURL(cfg.LLM.BaseURL),
			openaicompat.WithName(name),
			openaicompat.WithHeader("X-Title", "seer"),
			openaicompat.WithOptions(openaicompat.WithTemperature(m.Temperature)),
			openaicompat.WithLogger(logger),
		)
		p = seer.WithRetry(p, seer.RetryLogger(logger))
		if cfg.LLM.RPM > 0 || cfg.LLM.TPM > 0 {
			p = seer.WithRateLimit(p, seer.RPM(cfg.LLM.RPM), seer.TPM(cfg.LLM.TPM))
		}
		if inst != nil {
			p = observer.WrapProvider(p, m.Model, inst)
		}
		return p
	}

	store, err := openMemory(ctx, cfg.Memory, logger, a)
	if err != nil {
		return nil, err
	}

	x, err := seer.NewExtractor(llm(cfg.LLM.Extractor, "extractor"),
		seer.WithRouteProvider(llm(cfg.LLM.Router, "router")),
		seer.WithSummaryBudgets(cfg.Workflow.UserSummaryTokens, cfg.Workflow.AssistantSummaryTokens),
		seer.WithExtractorLogger(logger),
		seer.WithExtractorTracer(tracer),
	)
	if err != nil {
		return nil, err
	}
	router, err := seer.NewRouter(x, seer.WithLogger(logger), seer.WithTracer(tracer))
	if err != nil {
		return nil, err
	}

	var search seer.Tool = seer.NewMemorySearchTool(store)
	tarotTools, err := connectTools(ctx, "tarot", cfg.Tools.Tarot, logger, a)
	if err != nil {
		return nil, err
	}
	astroTools, err := connectTools(ctx, "astro", cfg.Tools.Astro, logger, a)
	if err != nil {
		return nil, err
	}
	if inst != nil {
		search = observer.WrapTool(search, inst)
		tarotTools = observer.WrapTool(tarotTools, inst)
		astroTools = observer.WrapTool(astroTools, inst)
	}

	tarotAgent, err := seer.NewTarotAgent(llm(cfg.LLM.Tarot, "tarot"),
		seer.WithTools(tarotTools, search), seer.WithLogger(logger), seer.WithTracer(tracer))
	if err != nil {
		return nil, err
	}
	astroAgent, err := seer.NewAstroAgent(llm(cfg.LLM.Astro, "astro"),
		seer.WithTools(astroTools, search), seer.WithLogger(logger), seer.WithTracer(tracer))
	if err != nil {
		return nil, err
	}

	gateway := seer.NewMemoryGateway(store, x, seer.WithGatewayLogger(logger), seer.WithGatewayTracer(tracer))
	wf, err := seer.NewWorkflow(router, tarotAgent, astroAgent, x, gateway,
		seer.WithMaxToolIterations(cfg.Workflow.MaxToolIterations),
		seer.WithParallelTools(cfg.Workflow.ParallelTools),
		seer.WithTurnTimeout(cfg.Workflow.TurnTimeout.Duration),
		seer.WithWorkflowLogger(logger),
		seer.WithWorkflowTracer(tracer),
	)
	if err != nil {
		return nil, err
	}
	a.runner = wf
	if inst != nil {
		a.runner = observer.WrapRunner(wf, inst)
	}
	return a, nil
}

func openMemory(ctx context.Context, cfg config.MemoryConfig, logger *slog.Logger, a *app) (seer.MemoryStore, error) {
	switch cfg.Backend {
	case "zep":
		return zep.New(cfg.ZepAPIKey, zep.WithBaseURL(cfg.ZepBaseURL), zep.WithLogger(logger)), nil
	case "postgres":
		pool, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		s := postgres.New(pool, postgres.WithLogger(logger))
		return s, s.Init(ctx)
	default:
		s := sqlite.New(cfg.SQLitePath, sqlite.WithLogger(logger))
		a.closers = append(a.closers, s.Close)
		return s, s.Init(ctx)
	}
}

// connectTools starts an MCP tool server and lists its tools. An empty tarot
// command serves the built-in tarot tools in-process.
func connectTools(ctx context.Context, name string, sc config.ServerCommand, logger *slog.Logger, a *app) (seer.Tool, error) {
	opt := mcp.WithClientLogger(logger)
	var c *mcp.Client
	if sc.Command == "" && name == "tarot" {
		c = inProcessTarot(logger, opt)
	} else {
		// The server outlives ctx cancellation until Close, so it is not
		// bound to the startup context.
		var err error
		c, err = mcp.Spawn(context.WithoutCancel(ctx), sc.Command, sc.Args, sc.Env, opt)
		if err != nil {
			return nil, fmt.Errorf("%s tools: %w", name, err)
		}
	}
	a.closers = append(a.closers, c.Close)

	info, err := c.Initialize(ctx, "seer", "1.0.0")
	if err != nil {
		return nil, fmt.Errorf("%s tools: initialize: %w", name, err)
	}
	tools, err := seer.NewMCPTools(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("%s tools: list: %w", name, err)
	}
	logger.Info("tool server ready", "tools", name, "server", info.Name, "count", len(tools.Definitions()))
	return tools, nil
}

// inProcessTarot runs the tarot MCP server on a goroutine connected by
// pipes. Closing the client ends the server.
func inProcessTarot(logger *slog.Logger, opts ...mcp.ClientOption) *mcp.Client {
	toServerR, toServerW := io.Pipe()
	toClientR, toClientW := io.Pipe()

	srv := mcp.New(tarot.ServerName, tarot.ServerVersion,
		mcp.WithIO(toServerR, toClientW), mcp.WithServerLogger(logger))
	tarot.Register(srv, tarot.NewReader(tarot.NewDeck()))
	go func() {
		if err := srv.Serve(context.Background()); err != nil {
			logger.Error("tarot server stopped", "error", err)
		}
		toClientW.Close()
	}()
	return mcp.NewClient(toClientR, toServerW, opts...)
}
