package external

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var (
	// ErrRequestTimeout is returned when a player request gets no reply in time.
	ErrRequestTimeout = errors.New("player request timed out")
	// ErrCommandRejected is returned when the player answers with an error.
	ErrCommandRejected = errors.New("player rejected command")
	// ErrClosed is returned for requests on a closed connection.
	ErrClosed = errors.New("player connection closed")
)

// Event is an unsolicited message from the player.
type Event struct {
	Event     string          `json:"event"`
	ID        int             `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	FileError string          `json:"file_error,omitempty"`
}

type request struct {
	Command   []any `json:"command"`
	RequestID int64 `json:"request_id"`
}

type incoming struct {
	Event
	RequestID int64  `json:"request_id"`
	Error     string `json:"error"`
}

// Client speaks the player's line-delimited JSON IPC protocol. Replies are
// matched to requests by request_id; events are delivered on Events.
type Client struct {
	conn    net.Conn
	timeout time.Duration
	log     *log.Logger

	wmu     sync.Mutex
	enc     *json.Encoder
	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan incoming

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient starts reading from conn. Each request waits at most timeout.
func NewClient(conn net.Conn, timeout time.Duration, logger *log.Logger) *Client {
	c := &Client{
		conn:    conn,
		timeout: timeout,
		log:     logger,
		enc:     json.NewEncoder(conn),
		pending: make(map[int64]chan incoming),
		events:  make(chan Event, 16),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Events delivers player events until the connection closes.
func (c *Client) Events() <-chan Event { return c.events }

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

// Command sends args as one request and waits for its reply data.
func (c *Client) Command(ctx context.Context, args ...any) (json.RawMessage, error) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	ch := make(chan incoming, 1)
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	c.wmu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	err := c.enc.Encode(request{Command: args, RequestID: id})
	c.wmu.Unlock()
	if err != nil {
		select {
		case <-c.done:
			return nil, ErrClosed
		default:
		}
		return nil, fmt.Errorf("send %v: %w", args[0], err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case reply := <-ch:
		if reply.Error != "" && reply.Error != "success" {
			return nil, fmt.Errorf("%w: %v: %s", ErrCommandRejected, args[0], reply.Error)
		}
		return reply.Data, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: %v", ErrRequestTimeout, args[0])
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close shuts the connection. Pending requests fail with ErrClosed.
func (c *Client) Close() error {
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) readLoop() {
	defer c.closeOnce.Do(func() {
		close(c.done)
		close(c.events)
	})
	sc := bufio.NewScanner(c.conn)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var msg incoming
		if err := json.Unmarshal(sc.Bytes(), &msg); err != nil {
			c.debug("skip malformed player message", "err", err)
			continue
		}
		if msg.Event.Event != "" {
			select {
			case c.events <- msg.Event:
			default:
				c.debug("dropping player event", "event", msg.Event.Event)
			}
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[msg.RequestID]
		c.mu.Unlock()
		if ok {
			select {
			case ch <- msg:
			default:
			}
		}
	}
}

func (c *Client) debug(msg string, kv ...any) {
	if c.log != nil {
		c.log.Debug(msg, kv...)
	}
}
