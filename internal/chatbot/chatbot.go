package chatbot

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"LlamaChat/internal/backend"
	"LlamaChat/internal/config"
	"LlamaChat/internal/registry"
	"LlamaChat/internal/session"
	"LlamaChat/internal/store"
	"LlamaChat/internal/telemetry"
)

// DefaultLabel names the session the REPL opens with
const DefaultLabel = "default"

// ChatBot is an interactive front end over a session registry
type ChatBot struct {
	registry *registry.Registry
	store    *store.Store // nil when no archive is configured
	logger   *slog.Logger
	in       io.Reader
	out      io.Writer
	current  string
	cleanup  []func()
}

// NewChatBot wires logging, telemetry, the endpoint client, the registry and
// the optional transcript archive from cfg.
func NewChatBot(cfg config.Config) (*ChatBot, error) {
	logger, closeLog, err := telemetry.InitLogger(cfg.LogDir, cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx := context.Background()
	tracer, meter, shutdown, err := telemetry.InitTelemetry(ctx, cfg.LogDir)
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	icpt, err := telemetry.NewInterceptor(tracer, meter, logger)
	if err != nil {
		shutdown()
		closeLog()
		return nil, fmt.Errorf("failed to initialize interceptor: %w", err)
	}

	if cfg.Debug {
		logger.Info("Debug mode enabled")
	}

	client := backend.NewClient(
		backend.WithTimeout(cfg.Timeout),
		backend.WithLogger(logger),
		backend.WithTracer(tracer),
		backend.WithMeter(meter),
	)

	reg := registry.New(cfg, client,
		registry.WithLogger(logger),
		registry.WithInterceptor(icpt),
	)

	var st *store.Store
	if cfg.DBPath != "" {
		if dir := filepath.Dir(cfg.DBPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				shutdown()
				closeLog()
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		st, err = store.Open(cfg.DBPath, logger)
		if err != nil {
			shutdown()
			closeLog()
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
	}

	cb := New(reg, st, logger, os.Stdin, os.Stdout)
	cb.cleanup = append(cb.cleanup, shutdown, func() { closeLog() })
	return cb, nil
}

// New creates a ChatBot over an existing registry. st may be nil.
func New(reg *registry.Registry, st *store.Store, logger *slog.Logger, in io.Reader, out io.Writer) *ChatBot {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatBot{
		registry: reg,
		store:    st,
		logger:   logger,
		in:       in,
		out:      out,
		current:  DefaultLabel,
	}
}

// Close releases the archive and flushes telemetry
func (cb *ChatBot) Close() error {
	var err error
	if cb.store != nil {
		err = cb.store.Close()
	}
	for i := len(cb.cleanup) - 1; i >= 0; i-- {
		cb.cleanup[i]()
	}
	return err
}

func (cb *ChatBot) printf(format string, args ...any) {
	fmt.Fprintf(cb.out, format, args...)
}

func (cb *ChatBot) currentSession() (*session.ChatSession, error) {
	s, ok := cb.registry.Get(cb.current)
	if !ok {
		return nil, fmt.Errorf("no session %q, create one with /new", cb.current)
	}
	return s, nil
}

// handleCommand handles special commands
func (cb *ChatBot) handleCommand(ctx context.Context, cmd string) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false, nil
	}
	rest := strings.TrimSpace(strings.TrimPrefix(cmd, parts[0]))

	switch parts[0] {
	case "/quit", "/exit":
		return true, nil

	case "/new":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /new <label> [system prompt]")
		}
		label := parts[1]
		systemPrompt := strings.TrimSpace(strings.TrimPrefix(rest, label))
		cb.registry.Create(ctx, systemPrompt, label)
		cb.current = label
		cb.printf("Started session %s\n", label)
		return false, nil

	case "/use":
		if len(parts) != 2 {
			return false, fmt.Errorf("usage: /use <label>")
		}
		if _, ok := cb.registry.Get(parts[1]); !ok {
			return false, fmt.Errorf("no session %q", parts[1])
		}
		cb.current = parts[1]
		cb.printf("Switched to session %s\n", parts[1])
		return false, nil

	case "/bg":
		if rest == "" {
			return false, fmt.Errorf("usage: /bg <text>")
		}
		s, err := cb.currentSession()
		if err != nil {
			return false, err
		}
		s.AddBackgroundMessage(rest)
		cb.printf("Added background message\n")
		return false, nil

	case "/remove":
		if len(parts) != 2 {
			return false, fmt.Errorf("usage: /remove <label>")
		}
		cb.registry.Remove(parts[1])
		cb.printf("Removed session %s\n", parts[1])
		return false, nil

	case "/list":
		for _, label := range cb.registry.Labels() {
			marker := " "
			if label == cb.current {
				marker = "*"
			}
			cb.printf("%s %s\n", marker, label)
		}
		return false, nil

	case "/history":
		s, err := cb.currentSession()
		if err != nil {
			return false, err
		}
		for _, msg := range s.History() {
			cb.printf("[%s] %s\n", msg.Role, msg.Content)
		}
		return false, nil

	case "/save":
		if cb.store == nil {
			return false, fmt.Errorf("no transcript archive configured, start with -db")
		}
		s, err := cb.currentSession()
		if err != nil {
			return false, err
		}
		id, err := cb.store.Save(ctx, cb.current, s)
		if err != nil {
			return false, err
		}
		cb.printf("Saved transcript %s\n", id)
		return false, nil

	case "/load":
		if cb.store == nil {
			return false, fmt.Errorf("no transcript archive configured, start with -db")
		}
		if len(parts) != 3 {
			return false, fmt.Errorf("usage: /load <transcript id> <label>")
		}
		tr, err := cb.store.Load(ctx, parts[1])
		if err != nil {
			return false, err
		}
		cb.registry.Create(ctx, tr.SystemPrompt, parts[2],
			session.WithTemperature(tr.Temperature),
			session.WithHistory(tr.Messages),
		)
		cb.current = parts[2]
		cb.printf("Loaded transcript %s into session %s\n", tr.ID, parts[2])
		return false, nil

	case "/transcripts":
		if cb.store == nil {
			return false, fmt.Errorf("no transcript archive configured, start with -db")
		}
		infos, err := cb.store.List(ctx)
		if err != nil {
			return false, err
		}
		for _, info := range infos {
			cb.printf("%s  %-12s %3d messages  %s\n", info.ID, info.Label, info.MessageCount, info.SavedAt.Format("2006-01-02 15:04"))
		}
		return false, nil

	case "/help":
		cb.printf("Available commands:\n")
		cb.printf("  /new <label> [prompt]  - Start a session with an optional system prompt\n")
		cb.printf("  /use <label>           - Switch to another session\n")
		cb.printf("  /bg <text>             - Add background context without calling the model\n")
		cb.printf("  /remove <label>        - Drop a session\n")
		cb.printf("  /list                  - List sessions\n")
		cb.printf("  /history               - Show the current session's messages\n")
		cb.printf("  /save                  - Archive the current session\n")
		cb.printf("  /load <id> <label>     - Restore an archived transcript\n")
		cb.printf("  /transcripts           - List archived transcripts\n")
		cb.printf("  /quit, /exit           - Exit\n")
		return false, nil

	default:
		return false, fmt.Errorf("unknown command: %s", parts[0])
	}
}

// Run starts the chat loop. systemPrompt seeds the default session.
func (cb *ChatBot) Run(ctx context.Context, systemPrompt string) error {
	if _, ok := cb.registry.Get(cb.current); !ok {
		cb.registry.Create(ctx, systemPrompt, cb.current)
	}

	cb.printf("=== LlamaChat ===\n")
	cb.printf("Session: %s\n", cb.current)
	cb.printf("Type /help for commands, /quit to exit\n\n")

	scanner := bufio.NewScanner(cb.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for ctx.Err() == nil {
		cb.printf("You: ")
		if !scanner.Scan() {
			break
		}
		// interrupted while waiting for input
		if ctx.Err() != nil {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			shouldQuit, err := cb.handleCommand(ctx, input)
			if err != nil {
				cb.printf("Error: %v\n", err)
				cb.logger.Error("command error", "error", err)
			}
			if shouldQuit {
				break
			}
			continue
		}

		s, err := cb.currentSession()
		if err != nil {
			cb.printf("Error: %v\n", err)
			continue
		}

		response, err := s.SendMessage(ctx, input)
		if err != nil {
			if errors.Is(err, backend.ErrConfigurationMissing) {
				cb.printf("Error: %v (set %s and %s)\n", err, config.KeyEndpointURL, config.KeyAPIKey)
			} else {
				cb.printf("Error: %v\n", err)
			}
			cb.logger.Error("failed to send message", "error", err, "session", cb.current)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		if !s.Verbose() {
			cb.printf("Bot: %s\n\n", response)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	if err := ctx.Err(); err != nil {
		cb.logger.Info("chat loop interrupted", "error", err)
	}

	cb.printf("Goodbye!\n")
	return nil
}
