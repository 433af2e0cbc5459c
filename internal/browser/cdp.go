package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"

	"github.com/Daw588/lavender/internal/errors"
	"github.com/Daw588/lavender/internal/logging"
)

// Conn is a DevTools protocol connection to the browser endpoint.
//
// Commands are matched to responses by id. Events are fanned out to the
// handlers registered with OnEvent. Flattened target sessions share the same
// socket and are addressed by sessionId.
//
// Invariants:
//   - pending is only touched under mutex
//   - closed is closed exactly once, when the read loop exits
type Conn struct {
	ws     *websocket.Conn
	logger logging.Logger
	nextID atomic.Int64

	mutex    sync.Mutex
	pending  map[int64]chan response
	handlers []EventHandler

	closeOnce sync.Once
	closed    chan struct{}
	readErr   error
}

// EventHandler receives protocol events.
type EventHandler func(method, sessionID string, params json.RawMessage)

type request struct {
	ID        int64       `json:"id"`
	Method    string      `json:"method"`
	Params    interface{} `json:"params,omitempty"`
	SessionID string      `json:"sessionId,omitempty"`
}

type response struct {
	ID        int64           `json:"id"`
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params"`
	SessionID string          `json:"sessionId"`
	Result    json.RawMessage `json:"result"`
	Error     *ProtocolError  `json:"error"`
}

// ProtocolError is an error reply to a command.
type ProtocolError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("devtools error %d: %s", e.Code, e.Message)
}

// maxMessageSize bounds a single protocol message.
const maxMessageSize = 64 << 20

// Dial connects to a browser websocket endpoint and starts the read loop.
func Dial(ctx context.Context, wsURL string, logger logging.Logger) (*Conn, error) {
	ws, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, errors.NewSessionError(errors.ErrCodeBrowserProtocol, "connecting to browser endpoint", err).
			WithContext("url", wsURL)
	}
	ws.SetReadLimit(maxMessageSize)

	c := &Conn{
		ws:      ws,
		logger:  logger,
		pending: make(map[int64]chan response),
		closed:  make(chan struct{}),
	}
	go c.readLoop()

	return c, nil
}

// OnEvent registers h for every event received after the call.
func (c *Conn) OnEvent(h EventHandler) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.handlers = append(c.handlers, h)
}

// Closed is closed when the connection drops.
func (c *Conn) Closed() <-chan struct{} {
	return c.closed
}

// Call sends a command and decodes its result into result, which may be nil.
// An empty sessionID addresses the browser target.
func (c *Conn) Call(ctx context.Context, sessionID, method string, params, result interface{}) error {
	id := c.nextID.Add(1)
	reply := make(chan response, 1)

	c.mutex.Lock()
	select {
	case <-c.closed:
		c.mutex.Unlock()
		return c.closedError(method)
	default:
	}
	c.pending[id] = reply
	c.mutex.Unlock()

	defer func() {
		c.mutex.Lock()
		delete(c.pending, id)
		c.mutex.Unlock()
	}()

	payload, err := json.Marshal(request{ID: id, Method: method, Params: params, SessionID: sessionID})
	if err != nil {
		return errors.NewInternalError(errors.ErrCodeInternalError, "encoding "+method, err)
	}
	if err := c.ws.Write(ctx, websocket.MessageText, payload); err != nil {
		return errors.NewSessionError(errors.ErrCodeBrowserProtocol, "sending "+method, err)
	}

	select {
	case <-ctx.Done():
		return errors.NewSessionError(errors.ErrCodeBrowserProtocol, method+" timed out", ctx.Err())
	case <-c.closed:
		return c.closedError(method)
	case resp := <-reply:
		if resp.Error != nil {
			return errors.NewSessionError(errors.ErrCodeBrowserProtocol, method+" failed", resp.Error)
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return errors.NewSessionError(errors.ErrCodeBrowserProtocol, "decoding "+method+" result", err)
			}
		}
		return nil
	}
}

func (c *Conn) closedError(method string) error {
	return errors.NewSessionError(errors.ErrCodeBrowserProtocol, "connection closed before "+method+" completed", c.readErr)
}

// Close closes the socket and waits for the read loop to exit. Safe to call
// more than once.
func (c *Conn) Close() error {
	if err := c.ws.Close(websocket.StatusNormalClosure, ""); err != nil {
		c.logger.Debug(context.Background(), "Devtools socket close", "error", err.Error())
	}
	<-c.closed
	return nil
}

func (c *Conn) readLoop() {
	defer c.closeOnce.Do(func() { close(c.closed) })

	for {
		_, data, err := c.ws.Read(context.Background())
		if err != nil {
			c.readErr = err
			return
		}

		var msg response
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Debug(context.Background(), "Ignoring malformed devtools message", "error", err.Error())
			continue
		}

		if msg.ID != 0 {
			c.mutex.Lock()
			reply, ok := c.pending[msg.ID]
			c.mutex.Unlock()
			if ok {
				reply <- msg
			}
			continue
		}

		if msg.Method != "" {
			c.mutex.Lock()
			handlers := c.handlers
			c.mutex.Unlock()
			for _, h := range handlers {
				h(msg.Method, msg.SessionID, msg.Params)
			}
		}
	}
}
