package mcpgate

import (
	"context"
	"errors"
	"math"
	"time"
)

// ErrTransportClosed is returned once a Transport has been closed and can no
// longer send or receive.
var ErrTransportClosed = errors.New("mcpgate: transport closed")

// Transport is the minimal surface GatedMcpClient needs from an MCP
// connection: send a framed message and receive the next one. Concrete
// transports (stdio child process, websocket, SSE) implement this; none is
// supplied here since the retrieval pack carries no reference transport.
type Transport interface {
	Send(ctx context.Context, v any) error
	Recv(ctx context.Context) (JsonRpcResponse, error)
	RecvNotification(ctx context.Context) (JsonRpcNotification, error)
	Close() error
}

// ReconnectConfig bounds AutoReconnectTransport's backoff between reconnect
// attempts.
type ReconnectConfig struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	MaxAttempts    int // 0 means unbounded
}

func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		MaxAttempts:    0,
	}
}

// Dialer opens a fresh Transport to the same peer an existing one was lost
// against. Supplied by the caller since dialing is connection-kind specific
// (stdio relaunch, websocket redial, ...).
type Dialer func(ctx context.Context) (Transport, error)

// AutoReconnectTransport wraps a Transport and transparently redials with
// bounded exponential backoff when Send/Recv report the connection lost,
// rather than surfacing a dead connection to every in-flight caller.
type AutoReconnectTransport struct {
	dial   Dialer
	config ReconnectConfig

	current Transport
}

func NewAutoReconnectTransport(initial Transport, dial Dialer, config ReconnectConfig) *AutoReconnectTransport {
	return &AutoReconnectTransport{dial: dial, config: config, current: initial}
}

func (t *AutoReconnectTransport) backoffFor(attempt int) time.Duration {
	d := float64(t.config.InitialBackoff) * math.Pow(t.config.Multiplier, float64(attempt))
	if d > float64(t.config.MaxBackoff) {
		d = float64(t.config.MaxBackoff)
	}
	return time.Duration(d)
}

func (t *AutoReconnectTransport) reconnect(ctx context.Context) error {
	var lastErr error
	for attempt := 0; t.config.MaxAttempts == 0 || attempt < t.config.MaxAttempts; attempt++ {
		conn, err := t.dial(ctx)
		if err == nil {
			if t.current != nil {
				_ = t.current.Close()
			}
			t.current = conn
			return nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.backoffFor(attempt)):
		}
	}
	return lastErr
}

func (t *AutoReconnectTransport) Send(ctx context.Context, v any) error {
	if err := t.current.Send(ctx, v); err != nil {
		if rerr := t.reconnect(ctx); rerr != nil {
			return rerr
		}
		return t.current.Send(ctx, v)
	}
	return nil
}

func (t *AutoReconnectTransport) Recv(ctx context.Context) (JsonRpcResponse, error) {
	resp, err := t.current.Recv(ctx)
	if err != nil {
		if rerr := t.reconnect(ctx); rerr != nil {
			return JsonRpcResponse{}, rerr
		}
		return t.current.Recv(ctx)
	}
	return resp, nil
}

func (t *AutoReconnectTransport) RecvNotification(ctx context.Context) (JsonRpcNotification, error) {
	n, err := t.current.RecvNotification(ctx)
	if err != nil {
		if rerr := t.reconnect(ctx); rerr != nil {
			return JsonRpcNotification{}, rerr
		}
		return t.current.RecvNotification(ctx)
	}
	return n, nil
}

func (t *AutoReconnectTransport) Close() error {
	if t.current == nil {
		return nil
	}
	return t.current.Close()
}
