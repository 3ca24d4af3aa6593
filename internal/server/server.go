// Package server wires the engine together and creates the MCP server
// instance.
//
// This is the composition root: it builds the stores, the stages, the
// registry flows, and the orchestrator, and injects them into the tool
// handlers. No business logic lives here — only wiring.
package server

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"

	"github.com/ebarroso/promptforge/internal/config"
	"github.com/ebarroso/promptforge/internal/docs"
	"github.com/ebarroso/promptforge/internal/lessons"
	"github.com/ebarroso/promptforge/internal/pipeline"
	"github.com/ebarroso/promptforge/internal/policy"
	"github.com/ebarroso/promptforge/internal/stages"
	"github.com/ebarroso/promptforge/internal/tokens"
	"github.com/ebarroso/promptforge/internal/tools"
	"github.com/ebarroso/promptforge/internal/vector"
	"github.com/ebarroso/promptforge/internal/workspace"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates and configures the MCP server with all tools registered.
//
// The returned cleanup function closes the lesson store, the doc cache,
// and the vector index; it must be called on shutdown (typically via
// defer) and is always non-nil.
func New(cfg *config.Config, log *slog.Logger) (*server.MCPServer, func(), error) {
	// --- Stores and collaborators ---

	ws, err := workspace.New(cfg.Workspace)
	if err != nil {
		return nil, noop, fmt.Errorf("opening workspace: %w", err)
	}

	store, err := lessons.Open(resolvePath(cfg.Workspace, cfg.Storage.LessonsPath))
	if err != nil {
		return nil, noop, fmt.Errorf("opening lesson store: %w", err)
	}

	index, err := openIndex(cfg)
	if err != nil {
		store.Close()
		return nil, noop, fmt.Errorf("opening vector index: %w", err)
	}

	// Documentation caching is best-effort: if the cache can't open, the
	// static client still works uncached.
	var docClient docs.Client = docs.NewStaticClient()
	cache, cacheErr := docs.OpenCache(resolvePath(cfg.Workspace, cfg.Storage.CachePath), cfg.Storage.CacheTTL)
	if cacheErr != nil {
		log.Warn("doc cache disabled", slog.String("error", cacheErr.Error()))
		cache = nil
	}
	docClient = docs.NewCachedClient(docClient, cache)

	cleanup := func() {
		if err := store.Close(); err != nil {
			log.Warn("closing lesson store", slog.String("error", err.Error()))
		}
		if cache != nil {
			if err := cache.Close(); err != nil {
				log.Warn("closing doc cache", slog.String("error", err.Error()))
			}
		}
		if err := index.Close(); err != nil {
			log.Warn("closing vector index", slog.String("error", err.Error()))
		}
	}

	est := tokens.NewEstimator()

	// --- Stages ---

	repoFacts := stages.NewRepoFactsStage(ws)
	docsStage := stages.NewDocsStage(docClient, est)
	search := stages.NewVectorSearchStage(index, cfg.Vector.Threshold)
	snippets := stages.NewSnippetsStage(ws)
	plan := stages.NewPlanStage(est)
	edit := stages.NewEditStage(ws)
	validate := stages.NewValidateStage()
	gate := stages.NewGateStage(policy.NewEngine())
	document := stages.NewDocumentStage(est)
	learn := stages.NewLearnStage(store, index)

	// --- Flows ---
	//
	// Gathering stages are optional: when they fail or the budget can't
	// afford them, the run continues with less context. Plan, edit, and
	// validate are required; the gate is required and fatal on failure.

	opt := func(s pipeline.Stage) pipeline.Entry { return pipeline.Entry{Stage: s, Optional: true} }
	req := func(s pipeline.Stage) pipeline.Entry { return pipeline.Entry{Stage: s} }
	fatal := func(s pipeline.Stage) pipeline.Entry { return pipeline.Entry{Stage: s, FatalOnFailure: true} }

	registry := pipeline.NewRegistry()
	registry.Register(pipeline.ToolCreate,
		opt(repoFacts), opt(docsStage), opt(search), opt(snippets),
		req(plan), req(edit), req(validate), fatal(gate),
		opt(document), opt(learn),
	)
	registry.Register(pipeline.ToolFix,
		opt(repoFacts), opt(search), opt(snippets),
		req(plan), req(edit), req(validate), fatal(gate),
		opt(document), opt(learn),
	)
	registry.Register(pipeline.ToolAnalyze,
		opt(repoFacts), opt(docsStage), opt(search), opt(snippets),
		req(plan), fatal(gate), opt(document),
	)
	registry.Register(pipeline.ToolLearn,
		req(learn),
	)

	orch := pipeline.New(registry, pipeline.Options{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		NarrowFactor: cfg.Retry.NarrowFactor,
		Logger:       log,
	})

	// --- MCP server ---

	s := server.NewMCPServer(
		"promptforge",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	budget := cfg.PipelineBudget()
	scope := cfg.PipelineScope()

	for _, tool := range []string{pipeline.ToolCreate, pipeline.ToolFix, pipeline.ToolAnalyze} {
		et := tools.NewEnhanceTool(tool, orch, budget, scope)
		s.AddTool(et.Definition(), et.Handle)
	}

	learnTool := tools.NewLearnTool(orch, budget, scope)
	s.AddTool(learnTool.Definition(), learnTool.Handle)

	statusTool := tools.NewStatusTool(store, index, budget)
	s.AddTool(statusTool.Definition(), statusTool.Handle)

	return s, cleanup, nil
}

// noop is the default cleanup when initialization fails early.
func noop() {}

// openIndex opens the configured vector index; an empty path means an
// in-memory index that lives for the process.
func openIndex(cfg *config.Config) (*vector.Index, error) {
	if cfg.Storage.IndexPath == "" {
		return vector.NewMemory()
	}
	return vector.Open(resolvePath(cfg.Workspace, cfg.Storage.IndexPath))
}

// resolvePath anchors relative storage paths at the workspace root.
func resolvePath(workspace, path string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(workspace, path)
}

// serverInstructions returns the system instructions that tell the AI
// how to use PromptForge effectively.
func serverInstructions() string {
	return `You have access to PromptForge, a prompt-enhancement MCP server.

## WHEN TO USE PromptForge

Before acting on a non-trivial coding request, enhance it first:
- enhance_create: building something new (features, services, modules)
- enhance_fix: fixing a bug, failing test, or error
- enhance_analyze: understanding or explaining existing code (read-only)

You do NOT need PromptForge for one-liners, config tweaks, or questions
you can answer directly.

## How It Works

Each tool runs a staged pipeline over the current workspace: it gathers
repository facts, documentation guidance, indexed lessons from past
runs, and matching code snippets; plans the work; writes an enhancement
brief under .promptforge/; checks the request against safety policy;
and returns an enriched prompt.

The pipeline runs under a finite budget (time, tokens, chunks, files).
When the budget runs short, optional stages are skipped and the tool
still returns the best prompt it assembled — read the Warnings section
of the response to see what was skipped.

A policy block (destructive commands, credential exfiltration) fails
the run with the violated rules listed. Rephrase the request without
the dangerous operation.

## Learning

Call enhance_learn whenever you discover something future runs should
know — a gotcha, a convention, a fix that worked. Lessons are stored,
indexed, and surfaced automatically by later enhancement runs. Failed
and retried stages also record lessons on their own.

Use forge_status to see what has been learned so far.`
}
