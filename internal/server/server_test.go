package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/dyike/tsladash/config"
	"github.com/dyike/tsladash/internal/llm"
	"github.com/dyike/tsladash/internal/logger"
	"github.com/dyike/tsladash/internal/service"
	"github.com/dyike/tsladash/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testCSV = `timestamp,open,high,low,close,volume
2024-01-02,248.5,251.3,244.4,248.42,120
2024-01-03,244.0,245.6,236.3,238.45,100
2024-01-04,239.0,242.7,237.7,237.93,90
`

type stubAsker struct {
	err error
}

func (s stubAsker) Reply(_ context.Context, question, _ string) (*schema.Message, error) {
	if strings.TrimSpace(question) == "" {
		return nil, llm.ErrEmptyQuestion
	}
	if s.err != nil {
		return nil, s.err
	}
	return schema.AssistantMessage("The highest close was $248.42.", nil), nil
}

func (stubAsker) Provider() string { return "stub" }

func newTestServer(t *testing.T, asker service.Asker, load bool) (*Server, *service.Dashboard) {
	t.Helper()
	cfg := config.DefaultConfigWithRoot(t.TempDir())
	if err := os.WriteFile(cfg.DataFile, []byte(testCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := storage.Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	dash := service.New(cfg,
		service.WithLogger(logger.Discard()),
		service.WithAssistant(asker),
		service.WithRecorder(storage.NewRecorder(store, logger.Discard())),
	)
	if load {
		if _, err := dash.Reload(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	s := New(dash, logger.Discard())
	t.Cleanup(s.Close)
	return s, dash
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestIndexPage(t *testing.T) {
	s, _ := newTestServer(t, stubAsker{}, true)
	w := do(t, s, http.MethodGet, "/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		"TSLA Trading Dashboard",
		"Records: 3, Range: 2024-01-02 to 2024-01-04",
		"How many LONG vs SHORT signals?",
		"echarts.init",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestIndexPageWithoutData(t *testing.T) {
	s, _ := newTestServer(t, stubAsker{}, false)
	w := do(t, s, http.MethodGet, "/", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Could not load or process") {
		t.Fatalf("unexpected page %d %s", w.Code, w.Body.String())
	}
	if w := do(t, s, http.MethodGet, "/api/summary", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("summary without data: %d", w.Code)
	}
}

func TestChartPage(t *testing.T) {
	s, _ := newTestServer(t, stubAsker{}, true)
	w := do(t, s, http.MethodGet, "/chart", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "TSLA Chart (Last 100 Rows)") {
		t.Fatalf("unexpected chart %d", w.Code)
	}
}

func TestBarsAndSummary(t *testing.T) {
	s, _ := newTestServer(t, stubAsker{}, true)

	w := do(t, s, http.MethodGet, "/api/bars?limit=2", "")
	var bars struct {
		Data []struct {
			Close     float64 `json:"close"`
			Direction string  `json:"direction"`
			Support   []float64
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &bars); err != nil {
		t.Fatal(err)
	}
	if len(bars.Data) != 2 || bars.Data[1].Close != 237.93 || len(bars.Data[1].Support) != 2 {
		t.Fatalf("unexpected bars %s", w.Body.String())
	}

	if w := do(t, s, http.MethodGet, "/api/bars?limit=x", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: %d", w.Code)
	}

	w = do(t, s, http.MethodGet, "/api/summary", "")
	var sum struct {
		Data struct {
			Text    string `json:"text"`
			Version uint64 `json:"version"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &sum); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(sum.Data.Text, "Records: 3") || sum.Data.Version != 1 {
		t.Fatalf("unexpected summary %s", w.Body.String())
	}
}

func TestAskAndHistory(t *testing.T) {
	s, _ := newTestServer(t, stubAsker{}, true)

	w := do(t, s, http.MethodPost, "/api/ask", `{"question":"What’s the highest TSLA price?"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("ask status %d: %s", w.Code, w.Body.String())
	}
	var ans service.Answer
	if err := json.Unmarshal(w.Body.Bytes(), &ans); err != nil {
		t.Fatal(err)
	}
	if ans.Text != "The highest close was $248.42." || ans.SessionID == "" {
		t.Fatalf("unexpected answer %+v", ans)
	}

	if w := do(t, s, http.MethodPost, "/api/ask", `{"question":"  "}`); w.Code != http.StatusBadRequest {
		t.Fatalf("empty question: %d", w.Code)
	}

	w = do(t, s, http.MethodGet, "/api/history?limit=10", "")
	var hist struct {
		Data []struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &hist); err != nil {
		t.Fatal(err)
	}
	if len(hist.Data) != 1 || len(hist.Data[0].Messages) != 2 || hist.Data[0].Messages[1].Content != ans.Text {
		t.Fatalf("unexpected history %s", w.Body.String())
	}
}

func TestAskErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"quota", &llm.APIError{StatusCode: 429, Status: "RESOURCE_EXHAUSTED", Message: "quota"}, http.StatusTooManyRequests},
		{"missing key", llm.ErrMissingAPIKey, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, stubAsker{err: tt.err}, true)
			w := do(t, s, http.MethodPost, "/api/ask", `{"question":"hi"}`)
			if w.Code != tt.code {
				t.Fatalf("status %d, want %d", w.Code, tt.code)
			}
			var body map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body["error"] == "" || !strings.HasPrefix(body["answer"], "❌") {
				t.Fatalf("unexpected body %v", body)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, stubAsker{}, true)
	w := do(t, s, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"UP"`) {
		t.Fatalf("unexpected health %s", w.Body.String())
	}
}

func TestWebSocketWithoutRun(t *testing.T) {
	s, _ := newTestServer(t, stubAsker{}, true)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.hub.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	s.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected connection closed after Close")
	}
	resp, err := http.Get(srv.URL + "/ws")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status %d, want 503", resp.StatusCode)
	}
}

func TestWebSocketReload(t *testing.T) {
	s, dash := newTestServer(t, stubAsker{}, true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, unsubscribe := dash.Subscribe()
	defer unsubscribe()
	go s.hub.Relay(ctx, events)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := dash.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev service.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != "reload" || ev.Version != 2 {
		t.Fatalf("unexpected event %+v", ev)
	}
}
