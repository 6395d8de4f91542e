// Package registry keeps labelled chat sessions that share one endpoint
// configuration.
package registry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"

	"LlamaChat/internal/config"
	"LlamaChat/internal/session"
)

// DefaultSendTemperature is the temperature CreateAndSend uses unless overridden
const DefaultSendTemperature = 0.1

// Registry owns the sessions created through it, at most one per label.
type Registry struct {
	cfg       config.Config
	completer session.Completer
	verbose   bool
	echo      io.Writer
	logger    *slog.Logger
	intercept session.Interceptor

	sessions map[string]*session.ChatSession
	mu       sync.RWMutex
}

// Option configures a Registry
type Option func(*Registry)

// WithVerbose sets the echo default for new sessions
func WithVerbose(v bool) Option {
	return func(r *Registry) { r.verbose = v }
}

// WithEcho sets the writer verbose sessions echo to
func WithEcho(w io.Writer) Option {
	return func(r *Registry) { r.echo = w }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithInterceptor wraps every registry and session operation
func WithInterceptor(i session.Interceptor) Option {
	return func(r *Registry) { r.intercept = i }
}

// New creates a new Registry. The endpoint settings in cfg are not validated;
// a missing value surfaces on the first generate call.
func New(cfg config.Config, completer session.Completer, opts ...Option) *Registry {
	r := &Registry{
		cfg:       cfg,
		completer: completer,
		verbose:   cfg.Verbose,
		echo:      os.Stdout,
		sessions:  make(map[string]*session.ChatSession),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.intercept == nil {
		r.intercept = session.Chain()
	}
	return r
}

// Create builds a session with the registry's endpoint settings and stores it
// under label, replacing any session already there. opts are applied after the
// registry defaults.
func (r *Registry) Create(ctx context.Context, systemPrompt, label string, opts ...session.Option) *session.ChatSession {
	return r.interceptedCreate(ctx, systemPrompt, label, session.DefaultTemperature, opts)
}

func (r *Registry) interceptedCreate(ctx context.Context, systemPrompt, label string, temperature float64, opts []session.Option) *session.ChatSession {
	var s *session.ChatSession
	_ = r.intercept(ctx, session.Call{Op: session.OpCreate, Label: label}, func(context.Context) error {
		s = r.create(systemPrompt, label, temperature, opts)
		return nil
	})
	return s
}

func (r *Registry) create(systemPrompt, label string, temperature float64, opts []session.Option) *session.ChatSession {
	base := []session.Option{
		session.WithLabel(label),
		session.WithEndpoint(r.cfg.EndpointURL, r.cfg.APIKey),
		session.WithTemperature(temperature),
		session.WithVerbose(r.verbose),
		session.WithEcho(r.echo),
		session.WithLogger(r.logger),
		session.WithInterceptor(r.intercept),
	}
	if r.cfg.MaxNewTokens > 0 {
		base = append(base, session.WithMaxNewTokens(r.cfg.MaxNewTokens))
	}
	s := session.New(systemPrompt, r.completer, append(base, opts...)...)

	r.mu.Lock()
	_, replaced := r.sessions[label]
	r.sessions[label] = s
	r.mu.Unlock()

	if replaced {
		r.logger.Debug("replaced session", "label", label)
	} else {
		r.logger.Info("created session", "label", label, "temperature", s.Temperature())
	}
	return s
}

// CreateAndSend creates a session under label and sends it userMessage,
// returning the reply. The session stays registered even if the send fails.
func (r *Registry) CreateAndSend(ctx context.Context, systemPrompt, label, userMessage string, opts ...session.Option) (string, error) {
	var reply string
	err := r.intercept(ctx, session.Call{Op: session.OpCreateAndSend, Label: label}, func(ctx context.Context) error {
		s := r.interceptedCreate(ctx, systemPrompt, label, DefaultSendTemperature, opts)
		var err error
		reply, err = s.SendMessage(ctx, userMessage)
		return err
	})
	return reply, err
}

// Get looks up the session stored under label
func (r *Registry) Get(label string) (*session.ChatSession, bool) {
	var s *session.ChatSession
	var ok bool
	_ = r.intercept(context.Background(), session.Call{Op: session.OpGet, Label: label}, func(context.Context) error {
		r.mu.RLock()
		defer r.mu.RUnlock()
		s, ok = r.sessions[label]
		return nil
	})
	return s, ok
}

// Remove drops the session stored under label. Unknown labels are ignored.
func (r *Registry) Remove(label string) {
	_ = r.intercept(context.Background(), session.Call{Op: session.OpRemove, Label: label}, func(context.Context) error {
		r.mu.Lock()
		_, ok := r.sessions[label]
		delete(r.sessions, label)
		r.mu.Unlock()
		if ok {
			r.logger.Info("removed session", "label", label)
		}
		return nil
	})
}

// Labels returns the registered labels in sorted order
func (r *Registry) Labels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	labels := make([]string, 0, len(r.sessions))
	for label := range r.sessions {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// Len returns the number of registered sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
