package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	api "github.com/insurelens/insurelens-ai/pkg/types"
)

// dialWS stands up the upgrade handler on a test listener and dials it.
func dialWS(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(srv.handleWSQuery))
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readFrame reads the next non-heartbeat frame.
func readFrame(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()

	for {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		if msg.Type == MessageTypeHeartbeat {
			continue
		}
		return msg
	}
}

// waitForTurns polls the session history until the expected turns land.
// Turn recording runs after the final frame is sent, so a client can observe
// the answer first.
func waitForTurns(t *testing.T, srv *Server, conversationID string, want int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for {
		rec := doJSON(t, srv.handleSessionItem, http.MethodGet, "/api/v1/sessions/"+conversationID, "")
		if rec.Code == http.StatusOK {
			if got := len(decodeAs[api.SessionHistory](t, rec).Turns); got == want {
				return
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("conversation %s never reached %d turns", conversationID, want)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestWebSocketRouteQuery(t *testing.T) {
	srv := newTestServer(t)
	conn := dialWS(t, srv)

	err := conn.WriteJSON(WSRequest{
		ConversationID: "ws-route-conv",
		Query:          "Premium for a 35 year old on ActivAssure with 10 lakh cover",
		Mode:           "route",
	})
	if err != nil {
		t.Fatalf("write query: %v", err)
	}

	msg := readFrame(t, conn)
	if msg.Type != MessageTypeFinal {
		t.Fatalf("Expected final frame, got %q (%s)", msg.Type, msg.Error)
	}
	if msg.ConversationID != "ws-route-conv" {
		t.Errorf("Expected conversation ws-route-conv, got %q", msg.ConversationID)
	}
	if !strings.Contains(msg.Answer, "8260.59") {
		t.Errorf("Expected the total in the answer, got %q", msg.Answer)
	}

	data, ok := msg.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("Expected quote data, got %T", msg.Data)
	}
	if data["total_premium"] != "8260.59" {
		t.Errorf("Expected total 8260.59, got %v", data["total_premium"])
	}

	waitForTurns(t, srv, "ws-route-conv", 2)
}

func TestWebSocketReactStreamsTrace(t *testing.T) {
	srv := newTestServer(t)
	installScriptedLLM(srv, []string{
		"Thought: The rate table answers this directly.\n" +
			"Action: premium_calculator\n" +
			`Action Input: {"product": "ActivAssure", "policy_type": "individual", "ages": [35], "sum_insured": 1000000}`,
		"Thought: The quote came back.\n" +
			"Final Answer: The total yearly premium is 8260.59 including GST.",
	})
	conn := dialWS(t, srv)

	err := conn.WriteJSON(WSRequest{
		ConversationID: "ws-react-conv",
		Query:          "How much would a 35 year old pay for 10 lakh on ActivAssure?",
		Mode:           "react",
	})
	if err != nil {
		t.Fatalf("write query: %v", err)
	}

	var sawAccepted, sawStep, sawTool bool
	var final WSMessage
	for final.Type == "" {
		msg := readFrame(t, conn)
		switch msg.Type {
		case MessageTypeAccepted:
			sawAccepted = true
			if msg.ExecutionID == "" {
				t.Error("accepted frame is missing the execution id")
			}
		case MessageTypeStep:
			sawStep = true
			if msg.Step == nil {
				t.Error("step frame is missing the step")
			}
		case MessageTypeTool:
			sawTool = true
			if msg.Tool != "premium_calculator" {
				t.Errorf("Expected premium_calculator tool frame, got %q", msg.Tool)
			}
		case MessageTypeFinal:
			final = msg
		case MessageTypeError:
			t.Fatalf("unexpected error frame: %s", msg.Error)
		}
	}

	if !sawAccepted {
		t.Error("Expected an accepted frame before the stream")
	}
	if !sawStep {
		t.Error("Expected at least one step frame")
	}
	if !sawTool {
		t.Error("Expected a tool frame")
	}
	if final.Answer != "The total yearly premium is 8260.59 including GST." {
		t.Errorf("Unexpected final answer %q", final.Answer)
	}
	if final.Incomplete {
		t.Error("Execution should not be incomplete")
	}

	waitForTurns(t, srv, "ws-react-conv", 2)
}

func TestWebSocketEmptyQuery(t *testing.T) {
	srv := newTestServer(t)
	conn := dialWS(t, srv)

	if err := conn.WriteJSON(WSRequest{Query: ""}); err != nil {
		t.Fatalf("write query: %v", err)
	}

	msg := readFrame(t, conn)
	if msg.Type != MessageTypeError {
		t.Fatalf("Expected error frame, got %q", msg.Type)
	}
	if !strings.Contains(msg.Error, "query is required") {
		t.Errorf("Unexpected error %q", msg.Error)
	}
}

func TestWebSocketUnknownMode(t *testing.T) {
	srv := newTestServer(t)
	conn := dialWS(t, srv)

	if err := conn.WriteJSON(WSRequest{Query: "hello", Mode: "zen"}); err != nil {
		t.Fatalf("write query: %v", err)
	}

	msg := readFrame(t, conn)
	if msg.Type != MessageTypeError {
		t.Fatalf("Expected error frame, got %q", msg.Type)
	}
}

func TestWebSocketReactUnconfigured(t *testing.T) {
	srv := newTestServer(t)
	conn := dialWS(t, srv)

	if err := conn.WriteJSON(WSRequest{Query: "Why is my premium so high?", Mode: "react"}); err != nil {
		t.Fatalf("write query: %v", err)
	}

	msg := readFrame(t, conn)
	if msg.Type != MessageTypeError {
		t.Fatalf("Expected error frame, got %q", msg.Type)
	}
	if !strings.Contains(msg.Error, "not configured") {
		t.Errorf("Unexpected error %q", msg.Error)
	}
}

func TestWebSocketRejectsBadOrigin(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(http.HandlerFunc(srv.handleWSQuery))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	header := http.Header{"Origin": []string{"http://evil.example.com"}}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		conn.Close()
		t.Fatal("Expected the handshake to be refused")
	}
	if resp != nil {
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("Expected status 403, got %d", resp.StatusCode)
		}
	}
}
