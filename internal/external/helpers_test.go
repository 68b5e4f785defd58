package external

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"context"
)

func eventually(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// fakePeer plays the player side of the IPC socket.
type fakePeer struct {
	conn net.Conn
	wmu  sync.Mutex
	seen chan []any

	mu     sync.Mutex
	reject map[string]string // command name → error reply
	silent map[string]bool   // command name → never reply
}

func newFakePeer(conn net.Conn) *fakePeer {
	p := &fakePeer{conn: conn, seen: make(chan []any, 64), reject: map[string]string{}, silent: map[string]bool{}}
	go p.serve()
	return p
}

func (p *fakePeer) serve() {
	sc := bufio.NewScanner(p.conn)
	for sc.Scan() {
		var req struct {
			Command   []any `json:"command"`
			RequestID int64 `json:"request_id"`
		}
		if err := json.Unmarshal(sc.Bytes(), &req); err != nil || len(req.Command) == 0 {
			continue
		}
		name := fmt.Sprint(req.Command[0])
		select {
		case p.seen <- req.Command:
		default:
		}
		p.mu.Lock()
		errText, rejected := p.reject[name]
		silent := p.silent[name]
		p.mu.Unlock()
		if silent {
			continue
		}
		if !rejected {
			errText = "success"
		}
		p.write(map[string]any{"request_id": req.RequestID, "error": errText, "data": nil})
	}
}

func (p *fakePeer) write(v any) {
	data, _ := json.Marshal(v)
	p.wmu.Lock()
	defer p.wmu.Unlock()
	p.conn.Write(append(data, '\n'))
}

func (p *fakePeer) duration(secs float64) {
	p.write(map[string]any{"event": "property-change", "id": durationObserver, "name": "duration", "data": secs})
}

// expect waits for a command named name and returns its arguments.
func (p *fakePeer) expect(t *testing.T, name string) []any {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case cmd := <-p.seen:
			if fmt.Sprint(cmd[0]) == name {
				return cmd
			}
		case <-timeout:
			t.Fatalf("player never received %q", name)
			return nil
		}
	}
}

type fakeProcess struct {
	conn   net.Conn
	killed chan struct{}
	once   sync.Once
}

func (p *fakeProcess) Conn() net.Conn { return p.conn }

func (p *fakeProcess) Kill() error {
	p.once.Do(func() {
		p.conn.Close()
		close(p.killed)
	})
	return nil
}

type fakeLauncher struct {
	proc   *fakeProcess
	peer   *fakePeer
	err    error
	source string
	volume float64
}

func newFakeLauncher() *fakeLauncher {
	client, server := net.Pipe()
	return &fakeLauncher{
		proc: &fakeProcess{conn: client, killed: make(chan struct{})},
		peer: newFakePeer(server),
	}
}

func (l *fakeLauncher) Launch(_ context.Context, source string, volume float64) (Process, error) {
	if l.err != nil {
		return nil, l.err
	}
	l.source, l.volume = source, volume
	return l.proc, nil
}

var errNoPlayer = errors.New("mpv: executable file not found")

func (p *fakePeer) rejectCommand(name, errText string) {
	p.mu.Lock()
	p.reject[name] = errText
	p.mu.Unlock()
}

func (p *fakePeer) ignoreCommand(name string) {
	p.mu.Lock()
	p.silent[name] = true
	p.mu.Unlock()
}
