package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rgabriel/jmap-react/config"
	"github.com/rgabriel/jmap-react/jmap"
	"github.com/rgabriel/jmap-react/react"
	"github.com/rgabriel/jmap-react/tools"
	"gopkg.in/alecthomas/kingpin.v2"
)

// version is set at build time via ldflags
var version = "dev"

const usageExample = "JMAP_USERNAME=username JMAP_TOKEN=token jmap-react [flags] (message id or thread id) (reaction) (...optional text to send)"

func main() {
	// Set up signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr, nil)
	cancel()
	os.Exit(code)
}

// run executes one invocation and returns the process exit code.
// A nil httpClient uses the default client.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer, httpClient *http.Client) int {
	terminated, exitCode := false, 0
	app := kingpin.New("jmap-react", "React to an email thread over JMAP with a short reply.")
	app.Version(version)
	app.UsageWriter(stderr)
	app.ErrorWriter(stderr)
	app.Terminate(func(code int) { terminated, exitCode = true, code })
	// Flags go before the target; everything after it is positional, so
	// reactions like -1 and dashed message words pass through untouched.
	app.Interspersed(false)

	hostname := app.Flag("hostname", "JMAP server hostname (overrides JMAP_HOSTNAME).").Short('H').String()
	strategy := app.Flag("strategy", "How to pick the message to reply to within the thread.").Short('s').Default(jmap.DefaultSelector).Enum(jmap.SelectorNames()...)
	dryRun := app.Flag("dry-run", "Compose the reply and print it without sending.").Short('n').Bool()
	timeout := app.Flag("timeout", "Overall deadline for the run (0 disables).").Default("60s").Duration()
	verbose := app.Flag("verbose", "Enables debug logging").Short('v').Bool()
	mcpMode := app.Flag("mcp", "Serve the react_to_thread tool over MCP stdio instead of reacting once.").Bool()

	targetID := app.Arg("target", "Thread id or email id to reply to.").String()
	reaction := app.Arg("reaction", "Reaction to send, e.g. +1 or -1.").String()
	message := app.Arg("message", "Optional text to send along with the reaction.").Strings()

	_, err := app.Parse(args)
	if terminated {
		return exitCode
	}
	if err != nil {
		fmt.Fprintf(stderr, "%v\n%s\n", err, usageExample)
		return 1
	}

	logger := newLogger(stderr, *verbose)
	slog.SetDefault(logger)

	if *mcpMode {
		creds, err := config.LoadCredentials(*hostname)
		if err != nil {
			fmt.Fprintf(stderr, "Please set your JMAP_USERNAME and JMAP_TOKEN\n%s\n", usageExample)
			return 1
		}
		if err := serve(ctx, creds, *timeout, stdin, stdout, httpClient, logger); err != nil {
			logger.Error("server error", "error", err)
			return 1
		}
		logger.Info("server stopped")
		return 0
	}

	// Load configuration
	cfg, err := config.Load(config.Invocation{
		TargetID: *targetID,
		Reaction: *reaction,
		Message:  *message,
		Hostname: *hostname,
		Strategy: *strategy,
		DryRun:   *dryRun,
		Timeout:  *timeout,
	})
	switch {
	case errors.Is(err, config.ErrMissingReaction):
		fmt.Fprintf(stderr, "Invoke with a message ID to react to and a reaction to send.\n%s\n", usageExample)
		return 1
	case errors.Is(err, config.ErrMissingCredentials):
		fmt.Fprintf(stderr, "Please set your JMAP_USERNAME and JMAP_TOKEN\n%s\n", usageExample)
		return 1
	case err != nil:
		logger.Error("configuration error", "error", err)
		return 1
	}

	selector, err := jmap.LookupSelector(cfg.Strategy)
	if err != nil {
		logger.Error("configuration error", "error", err)
		return 1
	}

	logger = logger.With("run_id", uuid.New().String())

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	svc := react.NewService(newJMAPClient(&cfg.Credentials, httpClient, logger), cfg.Username, logger)
	result, err := svc.React(ctx, react.Request{
		TargetID: cfg.TargetID,
		Reaction: cfg.Reaction,
		Message:  cfg.Message,
		Selector: selector,
		DryRun:   cfg.DryRun,
	})
	if err != nil {
		logger.Error("reaction failed", "target_id", cfg.TargetID, "error", err)
		return 1
	}

	if cfg.DryRun {
		if err := printJSON(stdout, result.Draft); err != nil {
			logger.Error("failed to print draft", "error", err)
			return 1
		}
		fmt.Fprintf(stdout, "%s\n", result.Preview)
	} else if err := printJSON(stdout, result.Response); err != nil {
		logger.Error("failed to print response", "error", err)
		return 1
	}

	fmt.Fprintln(stdout, "done.")
	return 0
}

// newLogger builds the JSON logger; LOG_LEVEL sets the level unless verbose.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	logLevel := new(slog.LevelVar)
	logLevel.Set(slog.LevelInfo)
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		switch strings.ToUpper(lvl) {
		case "DEBUG":
			logLevel.Set(slog.LevelDebug)
		case "WARN":
			logLevel.Set(slog.LevelWarn)
		case "ERROR":
			logLevel.Set(slog.LevelError)
		}
	}
	if verbose {
		logLevel.Set(slog.LevelDebug)
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: logLevel}))
}

func newJMAPClient(creds *config.Credentials, httpClient *http.Client, logger *slog.Logger) *jmap.Client {
	return jmap.NewClient(creds.Hostname, creds.Token,
		jmap.WithHTTPClient(httpClient),
		jmap.WithUserAgent("jmap-react/"+version),
		jmap.WithLogger(logger),
	)
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

// serve runs the MCP stdio server until ctx is canceled or stdin closes.
func serve(ctx context.Context, creds *config.Credentials, timeout time.Duration, stdin io.Reader, stdout io.Writer, httpClient *http.Client, logger *slog.Logger) error {
	svc := react.NewService(newJMAPClient(creds, httpClient, logger), creds.Username, logger)

	// Create MCP server with middleware (applied in reverse: logging wraps timeout wraps handler)
	opts := []server.ServerOption{
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	}
	if timeout > 0 {
		opts = append(opts, server.WithToolHandlerMiddleware(timeoutMiddleware(timeout)))
	}
	opts = append(opts, server.WithToolHandlerMiddleware(loggingMiddleware()))
	s := server.NewMCPServer("JMAP React Server", version, opts...)

	// Register react_to_thread tool
	reactTool := mcp.NewTool("react_to_thread",
		mcp.WithDescription("Reply to an email thread with a short reaction (e.g. '+1'), optionally followed by a longer message. The reply is created as a draft and submitted immediately; it threads under the chosen message. Calling twice sends two replies."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithString("target_id",
			mcp.Required(),
			mcp.MinLength(1),
			mcp.Description("JMAP thread id, or the id of any email in the thread."),
		),
		mcp.WithString("reaction",
			mcp.Required(),
			mcp.MinLength(1),
			mcp.Description("Short reaction text sent as the first body part, e.g. '+1'."),
		),
		mcp.WithString("message",
			mcp.Description("Optional longer text sent as a second body part."),
		),
		mcp.WithString("strategy",
			mcp.Enum(jmap.SelectorNames()...),
			mcp.Description("How to pick the message to reply to: 'last' in server order or 'newest' by received date."),
			mcp.DefaultString(jmap.DefaultSelector),
		),
		mcp.WithBoolean("dry_run",
			mcp.Description("Compose the reply and return it with an RFC 5322 preview without sending."),
			mcp.DefaultBool(false),
		),
	)
	s.AddTool(reactTool, tools.ReactToThreadHandler(svc))

	// Log startup
	logger.Info("server starting",
		"version", version,
		"username", creds.Username,
		"jmap_server", creds.Hostname,
	)

	// Start the stdio server with cancellable context
	stdioServer := server.NewStdioServer(s)
	return stdioServer.Listen(ctx, stdin, stdout)
}

// timeoutMiddleware wraps each tool handler with a context deadline.
func timeoutMiddleware(timeout time.Duration) server.ToolHandlerMiddleware {
	return func(next server.ToolHandlerFunc) server.ToolHandlerFunc {
		return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, req)
		}
	}
}

// loggingMiddleware logs each tool call with a unique request ID, tool name, duration, and outcome.
func loggingMiddleware() server.ToolHandlerMiddleware {
	return func(next server.ToolHandlerFunc) server.ToolHandlerFunc {
		return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			requestID := uuid.New().String()
			tool := req.Params.Name
			logger := slog.With("request_id", requestID, "tool", tool)

			logger.Debug("tool call started")
			start := time.Now()

			result, err := next(ctx, req)
			duration := time.Since(start)

			if err != nil {
				logger.Error("tool call failed", "duration_ms", duration.Milliseconds(), "error", err)
			} else if result != nil && result.IsError {
				logger.Warn("tool call returned error", "duration_ms", duration.Milliseconds())
			} else {
				logger.Info("tool call completed", "duration_ms", duration.Milliseconds())
			}

			return result, err
		}
	}
}
