// Package session holds one conversation with a hosted completion endpoint.
package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"LlamaChat/internal/backend"
	"LlamaChat/internal/config"
	"LlamaChat/internal/prompt"
)

// Message represents a single chat message
type Message = prompt.Message

// Completer turns a formatted prompt into generated text
type Completer interface {
	Generate(ctx context.Context, r backend.Request) (string, error)
}

// GenerationError is returned by SendMessage when the endpoint call fails
type GenerationError struct {
	Cause error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Cause)
}

func (e *GenerationError) Unwrap() error {
	return e.Cause
}

// ChatSession is one conversation's history plus what is needed to continue it.
// The history only grows.
type ChatSession struct {
	label        string
	systemPrompt string
	endpointURL  string
	apiKey       string
	temperature  float64
	maxNewTokens int
	verbose      bool
	echo         io.Writer
	template     prompt.Template
	completer    Completer
	intercept    Interceptor
	logger       *slog.Logger

	mu        sync.Mutex
	history   []Message
	lastReply string
	hasReply  bool
}

// Option configures a ChatSession
type Option func(*ChatSession)

// WithLabel records the registry label of the session
func WithLabel(label string) Option {
	return func(s *ChatSession) { s.label = label }
}

// WithEndpoint sets the endpoint URL and credential passed to the Completer
func WithEndpoint(url, apiKey string) Option {
	return func(s *ChatSession) {
		s.endpointURL = url
		s.apiKey = apiKey
	}
}

// WithTemperature sets the sampling temperature
func WithTemperature(t float64) Option {
	return func(s *ChatSession) { s.temperature = t }
}

// WithMaxNewTokens bounds the generated tokens per reply
func WithMaxNewTokens(n int) Option {
	return func(s *ChatSession) { s.maxNewTokens = n }
}

// WithVerbose echoes every reply to the echo writer
func WithVerbose(v bool) Option {
	return func(s *ChatSession) { s.verbose = v }
}

// WithEcho sets where verbose replies are written (stdout by default)
func WithEcho(w io.Writer) Option {
	return func(s *ChatSession) { s.echo = w }
}

// WithTemplate selects the chat template
func WithTemplate(t prompt.Template) Option {
	return func(s *ChatSession) { s.template = t }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *ChatSession) { s.logger = logger }
}

// WithInterceptor wraps every public operation of the session
func WithInterceptor(i Interceptor) Option {
	return func(s *ChatSession) { s.intercept = i }
}

// WithHistory appends previously recorded messages after the system prompt.
// System messages in msgs are skipped.
func WithHistory(msgs []Message) Option {
	return func(s *ChatSession) {
		for _, m := range msgs {
			if m.Role == prompt.RoleSystem {
				continue
			}
			s.history = append(s.history, m)
		}
	}
}

// New creates a new ChatSession. An empty system prompt adds no system message.
func New(systemPrompt string, completer Completer, opts ...Option) *ChatSession {
	s := &ChatSession{
		systemPrompt: systemPrompt,
		temperature:  DefaultTemperature,
		maxNewTokens: config.DefaultMaxNewTokens,
		echo:         os.Stdout,
		template:     prompt.Llama2,
		completer:    completer,
	}
	if systemPrompt != "" {
		s.history = append(s.history, Message{
			Role:      prompt.RoleSystem,
			Content:   systemPrompt,
			Timestamp: time.Now(),
		})
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("session", s.label)
	if s.intercept == nil {
		s.intercept = passThrough
	}
	return s
}

// DefaultTemperature is used when no temperature is given
const DefaultTemperature = 1.0

// SendMessage appends the user message, asks the endpoint to complete the
// formatted history and appends the reply. On failure the history and last
// reply are left as they were.
func (s *ChatSession) SendMessage(ctx context.Context, userMessage string) (string, error) {
	var reply string
	err := s.intercept(ctx, Call{Op: OpSendMessage, Label: s.label}, func(ctx context.Context) error {
		var err error
		reply, err = s.sendMessage(ctx, userMessage)
		return err
	})
	return reply, err
}

func (s *ChatSession) sendMessage(ctx context.Context, userMessage string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidate := make([]Message, len(s.history), len(s.history)+2)
	copy(candidate, s.history)
	candidate = append(candidate, Message{
		Role:      prompt.RoleUser,
		Content:   userMessage,
		Timestamp: time.Now(),
	})

	text := s.template.Format(candidate)
	s.logger.Debug("sending message", "prompt_digest", prompt.Digest(text), "history_length", len(candidate))

	reply, err := s.completer.Generate(ctx, backend.Request{
		EndpointURL:  s.endpointURL,
		APIKey:       s.apiKey,
		Prompt:       text,
		Temperature:  s.temperature,
		MaxNewTokens: s.maxNewTokens,
	})
	if err != nil {
		return "", &GenerationError{Cause: err}
	}

	if s.verbose {
		fmt.Fprintf(s.echo, "%s: %s\n", s.template.Name, reply)
	}

	s.history = append(candidate, Message{
		Role:      prompt.RoleAssistant,
		Content:   reply,
		Timestamp: time.Now(),
	})
	s.lastReply = reply
	s.hasReply = true

	return reply, nil
}

// AddBackgroundMessage appends an assistant message without contacting the
// endpoint.
func (s *ChatSession) AddBackgroundMessage(content string) {
	_ = s.intercept(context.Background(), Call{Op: OpAddBackground, Label: s.label}, func(context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.history = append(s.history, Message{
			Role:      prompt.RoleAssistant,
			Content:   content,
			Timestamp: time.Now(),
		})
		return nil
	})
}

// History returns a copy of the conversation so far
func (s *ChatSession) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.history))
	copy(out, s.history)
	return out
}

// LastReply returns the most recent reply, if any
func (s *ChatSession) LastReply() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReply, s.hasReply
}

// Prompt renders the current history with the session's template
func (s *ChatSession) Prompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.template.Format(s.history)
}

func (s *ChatSession) Label() string        { return s.label }
func (s *ChatSession) SystemPrompt() string { return s.systemPrompt }
func (s *ChatSession) Temperature() float64 { return s.temperature }
func (s *ChatSession) EndpointURL() string  { return s.endpointURL }
func (s *ChatSession) Verbose() bool        { return s.verbose }
