// PromptForge: prompt-enhancement MCP server.
//
// A universal MCP server that integrates with any AI coding tool to
// turn terse prompts into context-rich ones: it scans the workspace,
// pulls in documentation and past lessons, plans and gates the work,
// and hands back an enriched prompt.
//
// Usage:
//
//	promptforge serve [config.yaml]    # Start MCP server (stdio transport)
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ebarroso/promptforge/internal/config"
	"github.com/ebarroso/promptforge/internal/logging"
	forge "github.com/ebarroso/promptforge/internal/server"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cfgPath := ""
		if len(os.Args) > 2 {
			cfgPath = os.Args[2]
		}
		if err := run(cfgPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "--help", "-h", "help":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("promptforge v%s\n", forge.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	// Optional .env in the working directory; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Logs go to stderr — stdout belongs to the MCP stdio transport.
	log := logging.New(cfg.Log.Level)

	s, cleanup, err := forge.New(cfg, log)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	// Cleanup on interrupt as well; the stdio server ends when stdin
	// closes, so signals are the other shutdown path.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cleanup()
		os.Exit(0)
	}()

	log.Info("promptforge serving", "version", forge.Version, "workspace", cfg.Workspace)
	return server.ServeStdio(s)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `PromptForge v%s — prompt-enhancement MCP server

Usage:
  promptforge serve [config.yaml]   Start the MCP server (stdio transport)
  promptforge version               Print the version

Configuration:
  Settings come from promptforge.yaml (or the given file) and
  PROMPTFORGE_* environment variables.

  Add to your AI tool's MCP config:

  {
    "mcpServers": {
      "promptforge": {
        "command": "promptforge",
        "args": ["serve"]
      }
    }
  }
`, forge.Version)
}
