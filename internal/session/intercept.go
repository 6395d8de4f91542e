package session

import "context"

// Operation names passed to an Interceptor
const (
	OpCreate        = "create"
	OpCreateAndSend = "create_and_send"
	OpGet           = "get"
	OpRemove        = "remove"
	OpSendMessage   = "send_message"
	OpAddBackground = "add_background"
)

// Call describes an intercepted operation
type Call struct {
	Op    string
	Label string
}

// Interceptor wraps a public operation. It must call next exactly once and
// return its error unchanged.
type Interceptor func(ctx context.Context, call Call, next func(context.Context) error) error

func passThrough(ctx context.Context, _ Call, next func(context.Context) error) error {
	return next(ctx)
}

// Chain combines interceptors; the first one is outermost. Nil entries are skipped.
func Chain(interceptors ...Interceptor) Interceptor {
	var active []Interceptor
	for _, i := range interceptors {
		if i != nil {
			active = append(active, i)
		}
	}
	if len(active) == 0 {
		return passThrough
	}
	return func(ctx context.Context, call Call, next func(context.Context) error) error {
		wrapped := next
		for i := len(active) - 1; i >= 0; i-- {
			inner, icpt := wrapped, active[i]
			wrapped = func(ctx context.Context) error {
				return icpt(ctx, call, inner)
			}
		}
		return wrapped(ctx)
	}
}
