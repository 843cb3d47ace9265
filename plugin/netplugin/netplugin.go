// Package netplugin is a worked example of spec.md §4.10's plugin hook
// contract: an action whose work happens over a WebSocket connection to
// an external worker process rather than inside the node's own pool,
// grounded on the dial/request/response idiom of
// jontk-slurm-client's streaming package.
package netplugin

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mtcore/mtcore"
)

// Request is sent to the remote worker for every dispatched task.
type Request struct {
	RequestID string `json:"request_id"`
	Args      []byte `json:"args"`
}

// Response is the remote worker's reply to one Request.
type Response struct {
	RequestID string `json:"request_id"`
	Result    []byte `json:"result"`
	Error     string `json:"error,omitempty"`
}

// inflightRequest pairs the completion handle with the result buffer
// StartTask's caller supplied, so the read loop can copy the remote
// worker's payload back into it before calling Complete.
type inflightRequest struct {
	handle *mtcore.PluginTaskHandle
	result []byte
}

// Dispatcher holds one persistent WebSocket connection to a remote
// worker and multiplexes mtcore plugin tasks over it by request id.
type Dispatcher struct {
	conn *websocket.Conn

	mu      sync.Mutex
	pending map[string]inflightRequest
}

// Dial connects to a netplugin-speaking remote worker at url (e.g.
// "ws://127.0.0.1:9000/mtcore") and starts reading its responses.
func Dial(url string, dialTimeout time.Duration) (*Dispatcher, error) {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("netplugin: dial %s: %w", url, err)
	}
	d := &Dispatcher{
		conn:    conn,
		pending: make(map[string]inflightRequest),
	}
	go d.readLoop()
	return d, nil
}

// Close closes the underlying connection.
func (d *Dispatcher) Close() error { return d.conn.Close() }

func (d *Dispatcher) readLoop() {
	for {
		var resp Response
		if err := d.conn.ReadJSON(&resp); err != nil {
			d.mu.Lock()
			stranded := d.pending
			d.pending = make(map[string]inflightRequest)
			d.mu.Unlock()
			for _, req := range stranded {
				req.handle.Complete(mtcore.ErrActionFailed)
			}
			return
		}

		d.mu.Lock()
		req, ok := d.pending[resp.RequestID]
		if ok {
			delete(d.pending, resp.RequestID)
		}
		d.mu.Unlock()
		if !ok {
			continue
		}

		if resp.Error != "" {
			req.handle.Complete(fmt.Errorf("%w: %s", mtcore.ErrActionFailed, resp.Error))
			continue
		}
		copy(req.result, resp.Result)
		req.handle.Complete(nil)
	}
}

// Start implements mtcore.PluginStartFunc: it ships args to the remote
// worker and registers h to be completed once the matching Response
// arrives on the read loop.
func (d *Dispatcher) Start(h *mtcore.PluginTaskHandle, pluginData any, args, result []byte) {
	reqID := newRequestID()
	d.mu.Lock()
	d.pending[reqID] = inflightRequest{handle: h, result: result}
	d.mu.Unlock()

	if err := d.conn.WriteJSON(Request{RequestID: reqID, Args: args}); err != nil {
		d.mu.Lock()
		delete(d.pending, reqID)
		d.mu.Unlock()
		h.Complete(fmt.Errorf("%w: %v", mtcore.ErrActionFailed, err))
	}
}

// Cancel implements mtcore.PluginCancelFunc. The demo protocol has no
// server-side cancel message, so this is advisory only: the local
// handle still completes when the (now-moot) response arrives.
func (d *Dispatcher) Cancel(h *mtcore.PluginTaskHandle, pluginData any) {}

// Upgrader builds the server half of the demo protocol for tests and
// local runs: an http.Handler that reads Requests and echoes Responses,
// used to exercise Dispatcher without a real remote worker.
func Upgrader() http.Handler {
	up := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var req Request
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			resp := Response{RequestID: req.RequestID, Result: req.Args}
			if err := conn.WriteJSON(resp); err != nil {
				return
			}
		}
	})
}
