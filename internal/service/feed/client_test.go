package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestClientReadsUpdates(t *testing.T) {
	upgrader := websocket.Upgrader{}
	gotToken := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken <- r.URL.Query().Get("token")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var sub map[string]string
		if err := conn.ReadJSON(&sub); err != nil || sub["type"] != "subscribe" {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"iph","data":[{"date":"2024-03-04","value":1.25},{"date":"bad","value":9}]}`))
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := New("ws"+strings.TrimPrefix(srv.URL, "http"), WithToken("secret"), WithPingInterval(0))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if tok := <-gotToken; tok != "secret" {
		t.Fatalf("token = %q", tok)
	}
	if err := c.Subscribe(ctx); err != nil {
		t.Fatal(err)
	}

	updates, _ := c.Read(ctx)
	select {
	case u := <-updates:
		if u == nil || u.Value != 1.25 || u.Date.Format("2006-01-02") != "2024-03-04" || u.Source != "feed" {
			t.Fatalf("update = %+v", u)
		}
	case <-ctx.Done():
		t.Fatal("no update received")
	}
}

func TestSubscribeRequiresConnection(t *testing.T) {
	c := New("ws://127.0.0.1:1")
	if err := c.Subscribe(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if c.IsConnected() {
		t.Fatal("should not be connected")
	}
}
