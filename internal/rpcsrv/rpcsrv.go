// Package rpcsrv implements the JSON-RPC 2.0 control plane of spec
// §4.11: a method table of request/notification/response handlers, a
// two-thread (receiver/sender) server loop per connection, and
// pending-call correlation by random id.
//
// encoding/json is used directly (no pack example imports a JSON-RPC
// library; original_source/'s cmds_json.c hand-rolls its own framing
// too, so this follows "build it the way the corpus does it" rather
// than reaching for an unneeded dependency). The pending-call table is
// generalized from the teacher's sessionTokens map[string]time.Time
// pattern (internal/server/server.go) from session tokens keyed by a
// random hex string to (method, random id) keyed by a uint32.
package rpcsrv

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"
)

// Request is a JSON-RPC 2.0 request or notification (ID is nil for
// notifications).
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      *uint32         `json:"id,omitempty"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      *uint32         `json:"id,omitempty"`
}

// Error is a JSON-RPC 2.0 error object. Codes follow the standard
// reserved range (-32700..-32600) plus the method-defined range.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

// Standard JSON-RPC 2.0 error codes.
const (
	ErrParse          = -32700
	ErrInvalidRequest = -32600
	ErrMethodNotFound = -32601
	ErrInvalidParams  = -32602
	ErrInternal       = -32603
)

// RequestHandler synchronously handles a request method and returns its
// result or an error (spec's "r" kind).
type RequestHandler func(conn *Conn, params json.RawMessage) (any, error)

// NotificationHandler fire-and-forgets a notification method (spec's
// "n" kind).
type NotificationHandler func(conn *Conn, params json.RawMessage)

// ResponseHandler correlates an incoming response with the pending call
// that sent it (spec's "a" kind).
type ResponseHandler func(conn *Conn, result json.RawMessage, rpcErr *Error)

// Table is the method dispatch table the server consults per message.
type Table struct {
	requests      map[string]RequestHandler
	notifications map[string]NotificationHandler
}

// NewTable builds an empty method table.
func NewTable() *Table {
	return &Table{
		requests:      make(map[string]RequestHandler),
		notifications: make(map[string]NotificationHandler),
	}
}

// HandleRequest registers a synchronous request handler.
func (t *Table) HandleRequest(method string, h RequestHandler) { t.requests[method] = h }

// HandleNotification registers a fire-and-forget notification handler.
func (t *Table) HandleNotification(method string, h NotificationHandler) {
	t.notifications[method] = h
}

// Server accepts connections and runs the two-thread (receiver/sender)
// design of spec §4.11 on each one.
type Server struct {
	table  *Table
	logger *slog.Logger

	mu    sync.Mutex
	conns map[*Conn]struct{}
}

// NewServer builds a Server dispatching through table.
func NewServer(table *Table, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{table: table, logger: logger, conns: make(map[*Conn]struct{})}
}

// Serve accepts connections on ln until ctx is cancelled, spawning a
// Conn per accepted connection.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		conn := newConn(nc, s.table, s.logger)
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		conn.start(ctx)
		go func() {
			conn.wait()
			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
		}()
	}
}

// SetTable replaces the dispatch table, letting BuildTable wire a table
// that itself needs a reference back to this server (for Broadcast).
func (s *Server) SetTable(table *Table) {
	s.mu.Lock()
	s.table = table
	s.mu.Unlock()
}

// Broadcast sends a notification to every currently connected client,
// used to fan out `onchange` per the player's event listener (spec
// §4.11: "emits onchange notifications whenever a bitmask... is set").
func (s *Server) Broadcast(method string, params any) {
	s.mu.Lock()
	conns := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Notify(method, params)
	}
}

// pendingCall is one outstanding server-to-client request awaiting a
// response-kind correlation.
type pendingCall struct {
	method string
	done   chan struct {
		result json.RawMessage
		err    *Error
	}
}

// Conn is one client connection: a receiver goroutine parsing
// NUL-delimited JSON messages, and a sender goroutine draining a queue
// of outgoing frames, per spec §4.11.
type Conn struct {
	nc     net.Conn
	table  *Table
	logger *slog.Logger

	writeMu sync.Mutex
	w       *bufio.Writer

	pendingMu sync.Mutex
	pending   map[uint32]*pendingCall

	outbox chan []byte
	wg     sync.WaitGroup

	// UserData lets RPC handlers stash per-connection state (e.g. an
	// authenticated session flag) without the package needing to know
	// its shape.
	UserData any
}

func newConn(nc net.Conn, table *Table, logger *slog.Logger) *Conn {
	return &Conn{
		nc:      nc,
		table:   table,
		logger:  logger,
		w:       bufio.NewWriter(nc),
		pending: make(map[uint32]*pendingCall),
		outbox:  make(chan []byte, 64),
	}
}

func (c *Conn) start(ctx context.Context) {
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.receiveLoop(ctx)
	}()
	go func() {
		defer c.wg.Done()
		c.senderLoop(ctx)
	}()
}

func (c *Conn) wait() { c.wg.Wait() }

// RemoteAddr identifies the connection for auth lockout bookkeeping.
func (c *Conn) RemoteAddr() string { return c.nc.RemoteAddr().String() }

// receiveLoop is the receiver thread: parses NUL-delimited JSON messages
// and dispatches them inline (request handlers run synchronously on this
// goroutine, per spec: "pops requests, dispatches via the method table").
func (c *Conn) receiveLoop(ctx context.Context) {
	defer c.nc.Close()
	reader := bufio.NewReader(c.nc)
	for {
		line, err := reader.ReadBytes(0)
		if err != nil {
			close(c.outbox)
			return
		}
		msg := line
		if len(msg) > 0 && msg[len(msg)-1] == 0 {
			msg = msg[:len(msg)-1]
		}
		if len(msg) == 0 {
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Conn) handleMessage(msg []byte) {
	var probe struct {
		Method *string         `json:"method"`
		ID     *uint32         `json:"id"`
		Result json.RawMessage `json:"result"`
		Error  *Error          `json:"error"`
	}
	if err := json.Unmarshal(msg, &probe); err != nil {
		c.sendError(nil, ErrParse, "parse error")
		return
	}

	if probe.Method == nil {
		// Response kind: correlate to a pending call.
		if probe.ID != nil {
			c.resolvePending(*probe.ID, probe.Result, probe.Error)
		}
		return
	}

	var req Request
	if err := json.Unmarshal(msg, &req); err != nil {
		c.sendError(nil, ErrInvalidRequest, "invalid request")
		return
	}

	if req.ID == nil {
		if h, ok := c.table.notifications[req.Method]; ok {
			h(c, req.Params)
		}
		return
	}

	h, ok := c.table.requests[req.Method]
	if !ok {
		c.sendError(req.ID, ErrMethodNotFound, "method not found: "+req.Method)
		return
	}

	result, err := h(c, req.Params)
	if err != nil {
		if rpcErr, ok := err.(*Error); ok {
			c.sendError(req.ID, rpcErr.Code, rpcErr.Message)
		} else {
			c.sendError(req.ID, ErrInternal, err.Error())
		}
		return
	}
	c.sendResult(req.ID, result)
}

// senderLoop is the sender thread: drains the outbox and writes each
// frame, NUL-terminated, per spec §4.11's two-thread design.
func (c *Conn) senderLoop(ctx context.Context) {
	defer func() {
		c.writeMu.Lock()
		c.w.Flush()
		c.writeMu.Unlock()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-c.outbox:
			if !ok {
				return
			}
			c.writeMu.Lock()
			c.w.Write(frame)
			c.w.WriteByte(0)
			c.w.Flush()
			c.writeMu.Unlock()
		}
	}
}

func (c *Conn) enqueue(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("rpcsrv: marshal failed", "err", err)
		return
	}
	select {
	case c.outbox <- b:
	default:
		c.logger.Warn("rpcsrv: outbox full, dropping frame")
	}
}

func (c *Conn) sendResult(id *uint32, result any) {
	raw, _ := json.Marshal(result)
	c.enqueue(Response{JSONRPC: "2.0", Result: raw, ID: id})
}

func (c *Conn) sendError(id *uint32, code int, msg string) {
	c.enqueue(Response{JSONRPC: "2.0", Error: &Error{Code: code, Message: msg}, ID: id})
}

// Notify sends a fire-and-forget notification to the client (spec's
// `onchange`/`onclose`).
func (c *Conn) Notify(method string, params any) {
	raw, _ := json.Marshal(params)
	c.enqueue(Request{JSONRPC: "2.0", Method: method, Params: raw})
}

// Call sends a request to the client and blocks until the matching
// response arrives or ctx is cancelled — the server-initiated half of
// spec's "a" (response handler) kind, id generated the way the teacher
// generates session tokens (crypto-random, here via google/uuid's
// random-number source rather than hex of 32 raw bytes since the wire
// id must fit in the 32-bit `id` field).
func (c *Conn) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := randID()
	pc := &pendingCall{method: method, done: make(chan struct {
		result json.RawMessage
		err    *Error
	}, 1)}

	c.pendingMu.Lock()
	c.pending[id] = pc
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	raw, _ := json.Marshal(params)
	c.enqueue(Request{JSONRPC: "2.0", Method: method, Params: raw, ID: &id})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-pc.done:
		if res.err != nil {
			return nil, res.err
		}
		return res.result, nil
	}
}

func (c *Conn) resolvePending(id uint32, result json.RawMessage, rpcErr *Error) {
	c.pendingMu.Lock()
	pc, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
	if !ok {
		return
	}
	pc.done <- struct {
		result json.RawMessage
		err    *Error
	}{result, rpcErr}
}

func randID() uint32 {
	u := uuid.New()
	return uint32(u[0])<<24 | uint32(u[1])<<16 | uint32(u[2])<<8 | uint32(u[3])
}
