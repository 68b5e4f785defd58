package external

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"
)

func TestClientCorrelatesOutOfOrderReplies(t *testing.T) {
	client, server := net.Pipe()
	c := NewClient(client, time.Second, nil)
	defer c.Close()

	go func() {
		sc := bufio.NewScanner(server)
		var reqs []request
		for len(reqs) < 2 && sc.Scan() {
			var r request
			json.Unmarshal(sc.Bytes(), &r)
			reqs = append(reqs, r)
		}
		enc := json.NewEncoder(server)
		for i := len(reqs) - 1; i >= 0; i-- {
			enc.Encode(map[string]any{"request_id": reqs[i].RequestID, "error": "success", "data": reqs[i].Command[1]})
		}
	}()

	type result struct {
		want string
		got  string
		err  error
	}
	results := make(chan result, 2)
	for _, prop := range []string{"duration", "time-pos"} {
		go func() {
			data, err := c.Command(context.Background(), "get_property", prop)
			var got string
			json.Unmarshal(data, &got)
			results <- result{want: prop, got: got, err: err}
		}()
	}
	for range 2 {
		r := <-results
		if r.err != nil {
			t.Fatalf("%s: %v", r.want, r.err)
		}
		if r.got != r.want {
			t.Fatalf("reply mismatched: asked %s got %s", r.want, r.got)
		}
	}
}

func TestClientRequestTimeout(t *testing.T) {
	client, server := net.Pipe()
	peer := newFakePeer(server)
	peer.ignoreCommand("get_property")
	c := NewClient(client, 50*time.Millisecond, nil)
	defer c.Close()

	_, err := c.Command(context.Background(), "get_property", "duration")
	if !errors.Is(err, ErrRequestTimeout) {
		t.Fatalf("expected ErrRequestTimeout, got %v", err)
	}
}

func TestClientRejectedCommand(t *testing.T) {
	client, server := net.Pipe()
	peer := newFakePeer(server)
	peer.rejectCommand("loadfile", "invalid parameter")
	c := NewClient(client, time.Second, nil)
	defer c.Close()

	_, err := c.Command(context.Background(), "loadfile", "nope")
	if !errors.Is(err, ErrCommandRejected) {
		t.Fatalf("expected ErrCommandRejected, got %v", err)
	}
}

func TestClientEventsAndClose(t *testing.T) {
	client, server := net.Pipe()
	peer := newFakePeer(server)
	c := NewClient(client, time.Second, nil)

	peer.duration(42.5)
	select {
	case ev := <-c.Events():
		if ev.Event != "property-change" || ev.Name != "duration" {
			t.Fatalf("event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
	}

	server.Close()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client did not notice closed connection")
	}
	if _, err := c.Command(context.Background(), "quit"); err == nil {
		t.Fatal("expected error on closed connection")
	}
	if _, ok := <-c.Events(); ok {
		t.Fatal("events should be closed")
	}
}
