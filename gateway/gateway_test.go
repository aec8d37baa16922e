package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// echoHelloServer spins up a websocket server that sends HELLO, then
// forwards the next client frame it receives onto got.
func echoHelloServer(t *testing.T, got chan<- map[string]interface{}) *httptest.Server {
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Error("failed to upgrade:", err)
			return
		}
		defer conn.Close()

		hello := map[string]interface{}{
			"op": int(HelloOP),
			"d":  map[string]interface{}{"heartbeat_interval": 45000},
		}
		if err := conn.WriteJSON(hello); err != nil {
			t.Error("failed to write hello:", err)
			return
		}

		_, b, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var m map[string]interface{}
		if err := json.Unmarshal(b, &m); err != nil {
			t.Error("failed to decode client frame:", err)
			return
		}
		got <- m

		// Keep the connection open briefly so the client's PacemakerLoop
		// doesn't race Close against an already-dead socket.
		time.Sleep(100 * time.Millisecond)
	}))

	return srv
}

func TestGatewayOpenIdentifies(t *testing.T) {
	got := make(chan map[string]interface{}, 1)
	srv := echoHelloServer(t, got)
	defer srv.Close()

	addr := "ws" + strings.TrimPrefix(srv.URL, "http")

	g := NewGateway(addr, "token")
	defer g.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := g.Open(ctx); err != nil {
		t.Fatal("failed to open gateway:", err)
	}

	select {
	case frame := <-got:
		if frame["op"] != float64(IdentifyOP) {
			t.Fatalf("expected IDENTIFY op %d, got %#v", IdentifyOP, frame["op"])
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for IDENTIFY")
	}
}

func TestAddGatewayParams(t *testing.T) {
	u := AddGatewayParams("wss://gateway.discord.gg/")

	if !strings.Contains(u, "v="+Version) {
		t.Fatalf("missing version in %s", u)
	}
	if !strings.Contains(u, "encoding="+Encoding) {
		t.Fatalf("missing encoding in %s", u)
	}
}
