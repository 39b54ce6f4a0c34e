// Package visualizer streams explored execution graphs to a socket.io graph
// viewer.
//
// A Client connects once and emits one message per finished iteration. The
// viewer is optional: a failed Publish is logged by the checker and never
// stops the search.
package visualizer

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/vk/trustgo/internal/checker"
	"github.com/vk/trustgo/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// DefaultEvent is the event name iterations are emitted under.
const DefaultEvent = "graph"

// ErrNotConnected is returned by Publish once the connection is lost.
var ErrNotConnected = errors.New("visualizer is not connected")

// Config describes the viewer endpoint.
type Config struct {
	URL                string
	Namespace          string
	Event              string
	InsecureSkipVerify bool
	// ConnectTimeout bounds Dial; zero means 15s.
	ConnectTimeout time.Duration
}

// Client publishes iterations to a viewer. It implements checker.Sink.
type Client struct {
	io    *socket.Socket
	event string
}

var _ checker.Sink = (*Client)(nil)

// Message is the payload of one emitted iteration.
type Message struct {
	Index    int             `json:"index"`
	Status   string          `json:"status"`
	Events   int             `json:"events"`
	Hash     string          `json:"hash,omitempty"`
	NewGraph bool            `json:"new_graph"`
	Graph    json.RawMessage `json:"graph,omitempty"`
}

// NewMessage converts an iteration to its payload.
func NewMessage(it checker.Iteration) Message {
	return Message{
		Index:    it.Index,
		Status:   it.Status.String(),
		Events:   it.Events,
		Hash:     it.Hash,
		NewGraph: it.NewGraph,
		Graph:    json.RawMessage(it.Graph),
	}
}

// Dial connects to the viewer and waits for the handshake.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	logger := ctxlog.FromContext(ctx).With("component", "visualizer", "url", cfg.URL)
	logger.Info("Connecting to graph viewer...")

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("visualizer URL %q needs a scheme and a host", cfg.URL)
	}
	if cfg.Event == "" {
		cfg.Event = DefaultEvent
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 15 * time.Second
	}

	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	if cfg.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	connectChan := make(chan error, 1)

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(cfg.Namespace, opts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Connected to graph viewer", "sid", io.Id())
		select {
		case connectChan <- nil:
		default:
		}
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := errors.New("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		logger.Debug("Connection attempt failed", "error", err)
		select {
		case connectChan <- err:
		default:
		}
	})

	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return &Client{io: io, event: cfg.Event}, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(cfg.ConnectTimeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", cfg.ConnectTimeout)
	}
}

// Publish emits one iteration.
func (c *Client) Publish(ctx context.Context, it checker.Iteration) error {
	if !c.io.Connected() {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := NewMessage(it)
	// Emitted as a plain map so the viewer receives an object.
	var payload map[string]any
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode iteration %d: %w", it.Index, err)
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("failed to encode iteration %d: %w", it.Index, err)
	}
	ctxlog.FromContext(ctx).Debug("Emitting iteration", "event", c.event, "iteration", it.Index)
	c.io.Emit(c.event, payload)
	return nil
}

// Close disconnects from the viewer.
func (c *Client) Close() error {
	c.io.Disconnect()
	return nil
}
