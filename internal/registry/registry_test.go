package registry

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"LlamaChat/internal/backend"
	"LlamaChat/internal/config"
	"LlamaChat/internal/prompt"
	"LlamaChat/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCompleter struct {
	mu       sync.Mutex
	requests []backend.Request
	reply    string
	err      error
}

func (c *stubCompleter) Generate(_ context.Context, r backend.Request) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, r)
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

func testConfig() config.Config {
	return config.Config{
		EndpointURL:  "https://example.test/llama",
		APIKey:       "hf_key",
		MaxNewTokens: config.DefaultMaxNewTokens,
	}
}

func TestCreate(t *testing.T) {
	stub := &stubCompleter{reply: "ok"}
	r := New(testConfig(), stub)

	s := r.Create(context.Background(), "sys", "A")

	require.NotNil(t, s)
	assert.Equal(t, "A", s.Label())
	assert.Equal(t, 1.0, s.Temperature())
	assert.Equal(t, "https://example.test/llama", s.EndpointURL())
	assert.False(t, s.Verbose())

	got, ok := r.Get("A")
	require.True(t, ok)
	assert.Same(t, s, got)

	_, err := s.SendMessage(context.Background(), "hi")
	require.NoError(t, err)
	require.Len(t, stub.requests, 1)
	assert.Equal(t, "hf_key", stub.requests[0].APIKey)
	assert.Equal(t, config.DefaultMaxNewTokens, stub.requests[0].MaxNewTokens)
}

func TestCreateWithOptions(t *testing.T) {
	r := New(testConfig(), &stubCompleter{})

	s := r.Create(context.Background(), "sys", "A", session.WithTemperature(0.7))

	assert.Equal(t, 0.7, s.Temperature())
}

func TestCreateReplacesExistingLabel(t *testing.T) {
	r := New(testConfig(), &stubCompleter{})

	first := r.Create(context.Background(), "sys", "A")
	first.AddBackgroundMessage("old context")
	second := r.Create(context.Background(), "sys2", "A")

	got, ok := r.Get("A")
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.NotSame(t, first, got)

	history := got.History()
	require.Len(t, history, 1)
	assert.Equal(t, prompt.RoleSystem, history[0].Role)
	assert.Equal(t, "sys2", history[0].Content)
	assert.Equal(t, 1, r.Len())
}

func TestCreateAndSend(t *testing.T) {
	stub := &stubCompleter{reply: "42"}
	r := New(testConfig(), stub)

	reply, err := r.CreateAndSend(context.Background(), "sys", "calc", "what is six times seven?")

	require.NoError(t, err)
	assert.Equal(t, "42", reply)

	s, ok := r.Get("calc")
	require.True(t, ok)
	assert.Equal(t, DefaultSendTemperature, s.Temperature())
	assert.Len(t, s.History(), 3)

	require.Len(t, stub.requests, 1)
	assert.Equal(t, DefaultSendTemperature, stub.requests[0].Temperature)
	assert.Equal(t, "hf_key", stub.requests[0].APIKey)
}

func TestCreateAndSendFailure(t *testing.T) {
	cause := errors.New("service unavailable")
	r := New(testConfig(), &stubCompleter{err: cause})

	_, err := r.CreateAndSend(context.Background(), "sys", "A", "hi")

	var genErr *session.GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.ErrorIs(t, err, cause)

	s, ok := r.Get("A")
	require.True(t, ok)
	assert.Len(t, s.History(), 1)
}

func TestMissingConfigurationSurfacesOnSend(t *testing.T) {
	r := New(config.Config{}, backend.NewClient())

	s := r.Create(context.Background(), "sys", "A")
	require.NotNil(t, s)

	_, err := s.SendMessage(context.Background(), "hi")
	assert.ErrorIs(t, err, backend.ErrConfigurationMissing)
}

func TestGetUnknown(t *testing.T) {
	r := New(testConfig(), &stubCompleter{})

	s, ok := r.Get("missing")

	assert.False(t, ok)
	assert.Nil(t, s)
}

func TestRemove(t *testing.T) {
	r := New(testConfig(), &stubCompleter{})
	r.Create(context.Background(), "sys", "A")
	r.Create(context.Background(), "sys", "B")

	r.Remove("missing-label")
	assert.Equal(t, []string{"A", "B"}, r.Labels())

	r.Remove("A")
	_, ok := r.Get("A")
	assert.False(t, ok)
	assert.Equal(t, []string{"B"}, r.Labels())

	r.Remove("A")
	assert.Equal(t, 1, r.Len())
}

func TestVerboseDefault(t *testing.T) {
	var buf bytes.Buffer
	r := New(testConfig(), &stubCompleter{reply: "hello"}, WithVerbose(true), WithEcho(&buf))

	quiet := r.Create(context.Background(), "sys", "quiet", session.WithVerbose(false))
	loud := r.Create(context.Background(), "sys", "loud")
	assert.True(t, loud.Verbose())

	_, err := quiet.SendMessage(context.Background(), "hi")
	require.NoError(t, err)
	assert.Empty(t, buf.String())

	_, err = loud.SendMessage(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "LLAMA2: hello\n", buf.String())
}

func TestIndependentRegistries(t *testing.T) {
	a := New(testConfig(), &stubCompleter{})
	b := New(testConfig(), &stubCompleter{})

	a.Create(context.Background(), "sys", "A")

	_, ok := b.Get("A")
	assert.False(t, ok)
}

func TestInterceptorSeesEveryOperation(t *testing.T) {
	var mu sync.Mutex
	var ops []string
	record := func(ctx context.Context, call session.Call, next func(context.Context) error) error {
		mu.Lock()
		ops = append(ops, call.Op+":"+call.Label)
		mu.Unlock()
		return next(ctx)
	}

	r := New(testConfig(), &stubCompleter{reply: "ok"}, WithInterceptor(record))
	s := r.Create(context.Background(), "sys", "A")
	s.AddBackgroundMessage("bg")
	_, err := r.CreateAndSend(context.Background(), "sys", "B", "hi")
	require.NoError(t, err)
	r.Get("A")
	r.Remove("A")

	assert.Equal(t, []string{
		"create:A",
		"add_background:A",
		"create_and_send:B",
		"create:B",
		"send_message:B",
		"get:A",
		"remove:A",
	}, ops)
}

func TestConcurrentAccess(t *testing.T) {
	r := New(testConfig(), &stubCompleter{reply: "ok"})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			label := []string{"A", "B", "C"}[i%3]
			s := r.Create(context.Background(), "sys", label)
			_, _ = s.SendMessage(context.Background(), "hi")
			r.Get(label)
			if i%5 == 0 {
				r.Remove(label)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, r.Len(), 3)
}
