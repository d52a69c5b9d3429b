package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"journalagent/agent"
	"journalagent/agent/prompt"
	"journalagent/config"
	"journalagent/llm"
	loggerv2 "journalagent/logger/v2"
	"journalagent/mcpcache"
	"journalagent/mcpclient"
	"journalagent/refs"
	"journalagent/server"
	"journalagent/store"
	"journalagent/tools"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type app struct {
	server   *server.Server
	agents   *server.Agents
	registry *mcpcache.Registry
	closers  []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// build wires every component from cfg.
func build(ctx context.Context, cfg *config.Config, logger loggerv2.Logger) (*app, error) {
	a := &app{}
	fail := func(err error) (*app, error) {
		a.close()
		return nil, err
	}

	var st store.Store
	if cfg.Database.URL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.Database.URL, logger)
		if err != nil {
			return fail(fmt.Errorf("open database: %w", err))
		}
		st = pg
	} else {
		logger.Warn("no database configured, using the in-memory store")
		st = store.NewMemStore()
	}
	a.closers = append(a.closers, st.Close)

	client := &http.Client{Timeout: cfg.Tools.HTTPTimeout}
	local, err := tools.Builtin(tools.Config{
		Search:       tools.SearchConfig{Endpoint: cfg.Tools.SearchEndpoint, APIKey: cfg.Tools.SearchAPIKey, MaxResults: cfg.Tools.SearchMaxResults},
		Quotes:       tools.QuoteConfig{Endpoint: cfg.Tools.QuoteEndpoint, APIKey: cfg.Tools.QuoteAPIKey},
		ChartBaseURL: cfg.Tools.ChartBaseURL,
	}, client, st)
	if err != nil {
		return fail(fmt.Errorf("build local tools: %w", err))
	}

	var (
		lister mcpcache.RemoteLister
		remote agent.RemoteCaller
	)
	if cfg.Gateway.URL != "" {
		sessions := mcpclient.NewSessionManager(&mcpclient.HTTPDialer{
			URL:       cfg.Gateway.URL,
			Headers:   cfg.Gateway.Headers,
			Transport: cfg.Gateway.Transport,
			Timeout:   cfg.Gateway.Timeout,
			Logger:    logger,
		}, cfg.Gateway.SessionTTL, logger)
		a.closers = append(a.closers, sessions.Close)
		lister, remote = sessions, sessions
	} else {
		logger.Warn("no tool gateway configured, journal tools are unavailable")
	}

	registry, err := mcpcache.NewRegistry(lister, local, cfg.Gateway.AllowedTools, cfg.Cache.ToolsTTL, logger)
	if err != nil {
		return fail(err)
	}
	a.registry = registry

	provider, err := llm.ValidateProvider(cfg.LLM.Provider)
	if err != nil {
		return fail(err)
	}
	newModel := func(ctx context.Context, apiKey string) (llm.Model, error) {
		return llm.InitializeLLM(ctx, llm.Config{
			Provider: llm.ProviderGemini,
			ModelID:  cfg.LLM.Model,
			APIKey:   apiKey,
			Logger:   logger,
		})
	}

	opts := []agent.AgentOption{
		agent.WithLogger(logger),
		agent.WithRemote(remote),
		agent.WithMaxTurns(cfg.Agent.MaxTurns),
		agent.WithPerToolCallCap(cfg.Agent.PerToolCallCap),
		agent.WithCorrectionAttempts(cfg.Agent.CorrectionAttempts),
		agent.WithCorrectionTurns(cfg.Agent.CorrectionTurns),
		agent.WithSafeTools(cfg.Tools.SafeTools),
		agent.WithRecoveryDelay(cfg.Agent.RecoveryDelay, cfg.Agent.RecoveryMaxDelay),
		agent.WithTemperature(cfg.LLM.Temperature),
		agent.WithMaxTokens(cfg.LLM.MaxTokens),
		agent.WithToolOutputLimit(cfg.Agent.ToolOutputLimit),
		agent.WithContextEditing(cfg.Agent.CompactAfterTurns, cfg.Agent.CompactThreshold),
		agent.WithImageFetcher(agent.NewImageFetcher(agent.NewPublicHTTPClient(cfg.Tools.HTTPTimeout), cfg.Tools.ImageMaxBytes)),
		agent.WithPromptBuilder(prompt.NewDefaultBuilder(st, logger)),
		agent.WithReferences(refs.NewValidator(st, logger, cfg.Agent.RefConcurrency), refs.NewResolver(st, logger)),
	}

	var base *agent.Agent
	model, err := llm.InitializeLLM(ctx, llm.Config{
		Provider: provider,
		ModelID:  cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
		Project:  cfg.LLM.Project,
		Location: cfg.LLM.Location,
		Logger:   logger,
	})
	switch {
	case err == nil:
		if base, err = agent.NewAgent(model, registry, opts...); err != nil {
			return fail(err)
		}
	case errors.Is(err, llm.ErrMissingCredential):
		logger.Warn("no server llm credential, only requests carrying their own key are served")
	default:
		return fail(fmt.Errorf("init llm: %w", err))
	}

	a.agents = server.NewAgents(base, newModel, registry, opts...)
	a.server = server.New(a.agents, registry, server.Options{
		CORSOrigins:  cfg.Server.CORSOrigins,
		StreamBuffer: cfg.Server.StreamBuffer,
		RunTimeout:   cfg.Agent.RunTimeout,
	}, logger)
	return a, nil
}

func firstLine(s string) string {
	s, _, _ = strings.Cut(strings.TrimSpace(s), "\n")
	return s
}
