package hub

import (
	"testing"
	"time"
)

// testClient registers a pump-less client so tests can inspect the send
// channel directly.
func testClient(h *Hub, buffer int) *Client {
	c := &Client{hub: h, conn: nil, send: make(chan []byte, buffer)}
	h.register <- c
	return c
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestBroadcastReachesAllClients(t *testing.T) {
	h := New("test")
	go h.Run()

	a := testClient(h, 4)
	b := testClient(h, 4)
	waitFor(t, func() bool { return h.ClientCount() == 2 }, "clients never registered")

	h.Broadcast([]byte("howdy"))

	for _, c := range []*Client{a, b} {
		select {
		case msg := <-c.send:
			if string(msg) != "howdy" {
				t.Errorf("got %q, want howdy", msg)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("client never received the broadcast")
		}
	}
}

func TestBroadcastJSON(t *testing.T) {
	h := New("test")
	go h.Run()

	c := testClient(h, 4)
	waitFor(t, func() bool { return h.ClientCount() == 1 }, "client never registered")

	if err := h.BroadcastJSON(map[string]string{"state": "thinking"}); err != nil {
		t.Fatalf("BroadcastJSON: %v", err)
	}
	select {
	case msg := <-c.send:
		if string(msg) != `{"state":"thinking"}` {
			t.Errorf("got %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client never received the broadcast")
	}

	if err := h.BroadcastJSON(func() {}); err == nil {
		t.Error("expected an encode error for an unmarshalable value")
	}
}

func TestSlowClientEvicted(t *testing.T) {
	h := New("test")
	go h.Run()

	slow := testClient(h, 1)
	waitFor(t, func() bool { return h.ClientCount() == 1 }, "client never registered")

	// First fills the buffer; the client never drains, so the second
	// broadcast evicts it and closes its channel.
	h.Broadcast([]byte("one"))
	h.Broadcast([]byte("two"))

	waitFor(t, func() bool { return h.ClientCount() == 0 }, "slow client never evicted")

	if msg := <-slow.send; string(msg) != "one" {
		t.Errorf("buffered message = %q, want one", msg)
	}
	if _, ok := <-slow.send; ok {
		t.Error("send channel still open after eviction")
	}
}

func TestUnregisterClosesSendChannel(t *testing.T) {
	h := New("test")
	go h.Run()

	c := testClient(h, 4)
	waitFor(t, func() bool { return h.ClientCount() == 1 }, "client never registered")

	h.unregister <- c
	waitFor(t, func() bool { return h.ClientCount() == 0 }, "client never unregistered")

	if _, ok := <-c.send; ok {
		t.Error("send channel still open after unregister")
	}
}
