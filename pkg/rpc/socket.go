package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/maxsync/max/pkg/errdefs"
	"github.com/maxsync/max/pkg/log"
)

// Stream framing: one JSON object per line. Scanner buffers are sized for
// large entity batches; lines are delimiter-complete before decoding so
// chunked reads are safe.
const maxFrameSize = 16 * 1024 * 1024

// SocketServer serves a dispatcher over a unix domain socket. Each accepted
// connection is a bidirectional channel; requests on one connection are
// multiplexed by request id and answered concurrently.
type SocketServer struct {
	path     string
	dispatch Dispatch

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
	closed   bool
}

// NewSocketServer creates a server for the given socket path
func NewSocketServer(path string, dispatch Dispatch) *SocketServer {
	return &SocketServer{
		path:     path,
		dispatch: dispatch,
		conns:    make(map[net.Conn]struct{}),
	}
}

// Start binds the socket and begins accepting connections
func (s *SocketServer) Start() error {
	// A stale socket file from a dead process would block the bind
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove stale socket %s: %w", s.path, err)
	}

	listener, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.closed = false
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(listener)

	log.WithComponent("rpc-socket").Info().Str("path", s.path).Msg("socket server listening")
	return nil
}

// Stop closes the listener and every open connection
func (s *SocketServer) Stop() error {
	s.mu.Lock()
	s.closed = true
	listener := s.listener
	s.listener = nil
	conns := make([]net.Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	if listener != nil {
		listener.Close()
	}
	for _, conn := range conns {
		conn.Close()
	}
	s.wg.Wait()
	os.Remove(s.path)
	return nil
}

func (s *SocketServer) acceptLoop(listener net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				log.WithComponent("rpc-socket").Error().Err(err).Msg("accept failed")
			}
			return
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

func (s *SocketServer) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	// Writes from concurrent request handlers are serialised through one
	// buffered writer per connection.
	var writeMu sync.Mutex
	writer := bufio.NewWriter(conn)
	respond := func(resp Response) {
		data, err := json.Marshal(resp)
		if err != nil {
			log.WithComponent("rpc-socket").Error().Err(err).Msg("failed to marshal response")
			return
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		writer.Write(data)
		writer.WriteByte('\n')
		writer.Flush()
	}

	var pending sync.WaitGroup
	defer pending.Wait()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)
	for scanner.Scan() {
		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			respond(Failure("", errdefs.ErrTransportFailed.New(errdefs.Props{
				"detail": fmt.Sprintf("malformed frame: %v", err),
			})))
			continue
		}

		pending.Add(1)
		go func(req Request) {
			defer pending.Done()
			respond(s.dispatch(context.Background(), req))
		}(req)
	}
}

// SocketClient is the caller side of a socket transport. Concurrent
// in-flight requests are matched to responses by id; responses may arrive
// out of order.
type SocketClient struct {
	conn net.Conn

	writeMu sync.Mutex
	writer  *bufio.Writer

	mu      sync.Mutex
	pending map[string]chan Response
	closed  bool

	// PromptHandler answers daemon prompt frames. Nil means prompts are
	// answered with an empty input.
	PromptHandler func(text string) string
}

// DialSocket connects to a socket server
func DialSocket(path string) (*SocketClient, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, errdefs.ErrTransportFailed.New(errdefs.Props{
			"detail": fmt.Sprintf("dial %s: %v", path, err),
		})
	}

	c := &SocketClient{
		conn:    conn,
		writer:  bufio.NewWriter(conn),
		pending: make(map[string]chan Response),
	}
	go c.readLoop()
	return c, nil
}

// Send delivers one request and waits for its response
func (c *SocketClient) Send(ctx context.Context, req Request) (json.RawMessage, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	ch := make(chan Response, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errdefs.ErrTransportClosed.New(nil)
	}
	c.pending[req.ID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}()

	if err := c.write(req); err != nil {
		return nil, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, errdefs.ErrTransportClosed.New(nil)
		}
		if !resp.OK {
			return nil, resp.Err()
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, errdefs.ErrTransportTimeout.New(errdefs.Props{"requestId": req.ID})
	}
}

// Close shuts the connection down; outstanding sends fail with a transport
// error.
func (c *SocketClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
	return c.conn.Close()
}

func (c *SocketClient) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errdefs.ErrTransportFailed.New(errdefs.Props{"detail": err.Error()})
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.writer.Write(data); err != nil {
		return errdefs.ErrTransportFailed.New(errdefs.Props{"detail": err.Error()})
	}
	if err := c.writer.WriteByte('\n'); err != nil {
		return errdefs.ErrTransportFailed.New(errdefs.Props{"detail": err.Error()})
	}
	if err := c.writer.Flush(); err != nil {
		return errdefs.ErrTransportFailed.New(errdefs.Props{"detail": err.Error()})
	}
	return nil
}

func (c *SocketClient) readLoop() {
	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		// Prompt frames carry a "kind" discriminant; everything else on
		// the client side is a response.
		var probe struct {
			Kind string `json:"kind"`
		}
		if err := json.Unmarshal(line, &probe); err == nil && probe.Kind == "prompt" {
			var prompt Prompt
			if err := json.Unmarshal(line, &prompt); err == nil {
				c.answerPrompt(prompt)
			}
			continue
		}

		var resp Response
		if err := json.Unmarshal(line, &resp); err != nil {
			log.WithComponent("rpc-socket").Warn().Err(err).Msg("dropping malformed frame")
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		c.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
	c.Close()
}

func (c *SocketClient) answerPrompt(prompt Prompt) {
	value := ""
	if c.PromptHandler != nil {
		value = c.PromptHandler(prompt.Text)
	}
	c.write(Prompt{Kind: "input", Value: value})
}
