package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BTreeMap/SalesPipe/internal/analyst"
	"github.com/BTreeMap/SalesPipe/internal/catalog"
	"github.com/BTreeMap/SalesPipe/internal/decision"
	"github.com/BTreeMap/SalesPipe/internal/flow"
	"github.com/BTreeMap/SalesPipe/internal/models"
	"github.com/BTreeMap/SalesPipe/internal/speaker"
	"github.com/BTreeMap/SalesPipe/internal/store"
	"github.com/BTreeMap/SalesPipe/internal/testutil"
)

type stubAnalyst struct{}

func (stubAnalyst) Analyze(ctx context.Context, req analyst.Request) (models.Analysis, error) {
	return models.ConservativeAnalysis(), nil
}

type stubSpeaker struct{}

func (stubSpeaker) Respond(ctx context.Context, req speaker.Request) (string, error) {
	return "What does a normal week look like for you?", nil
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	f := flow.NewSalesFlow(st, stubAnalyst{}, stubSpeaker{}, decision.New(catalog.Default()))
	return NewServer(f, st, opts...), st
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

type createResult struct {
	SessionID    string `json:"session_id"`
	CurrentPhase string `json:"current_phase"`
	Greeting     struct {
		Content string `json:"content"`
	} `json:"greeting"`
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rr := do(s, httptest.NewRequest(http.MethodGet, "/", nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "health")
	testutil.DecodeEnvelope(t, rr, models.APIStatusOK, nil)

	rr = do(s, httptest.NewRequest(http.MethodGet, "/nope", nil))
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "unknown path")
}

func TestCreateSession(t *testing.T) {
	s, st := newTestServer(t)
	tests := []struct {
		name string
		body interface{}
		want int
	}{
		{"valid", models.CreateSessionRequest{PreConviction: 6}, http.StatusCreated},
		{"too low", models.CreateSessionRequest{PreConviction: 0}, http.StatusBadRequest},
		{"too high", models.CreateSessionRequest{PreConviction: 11}, http.StatusBadRequest},
		{"not json", "seven", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(s, testutil.NewJSONRequest(t, http.MethodPost, "/api/sessions", tt.body))
			testutil.AssertHTTPStatus(t, tt.want, rr.Code, tt.name)
		})
	}

	rr := do(s, testutil.NewJSONRequest(t, http.MethodPost, "/api/sessions", models.CreateSessionRequest{PreConviction: 3}))
	var res createResult
	testutil.DecodeEnvelope(t, rr, models.APIStatusOK, &res)
	if res.CurrentPhase != "CONNECTION" {
		t.Errorf("expected CONNECTION, got %q", res.CurrentPhase)
	}
	if res.Greeting.Content != speaker.Greeting {
		t.Errorf("expected the greeting, got %q", res.Greeting.Content)
	}
	if sess, _ := st.GetSession(res.SessionID); sess == nil {
		t.Error("expected the session to be stored")
	}
}

func TestConversationLifecycle(t *testing.T) {
	s, _ := newTestServer(t)
	rr := do(s, testutil.NewJSONRequest(t, http.MethodPost, "/api/sessions", models.CreateSessionRequest{PreConviction: 5}))
	var created createResult
	testutil.DecodeEnvelope(t, rr, models.APIStatusOK, &created)
	base := "/api/sessions/" + created.SessionID

	rr = do(s, testutil.NewJSONRequest(t, http.MethodPost, base+"/messages", models.SendMessageRequest{Content: "I run ops at a logistics company"}))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "send message")
	var turn struct {
		CurrentPhase     string `json:"current_phase"`
		SessionEnded     bool   `json:"session_ended"`
		AssistantMessage struct {
			Content string `json:"content"`
		} `json:"assistant_message"`
	}
	testutil.DecodeEnvelope(t, rr, models.APIStatusOK, &turn)
	if turn.CurrentPhase != "CONNECTION" || turn.SessionEnded {
		t.Errorf("expected to stay in CONNECTION, got %+v", turn)
	}
	if turn.AssistantMessage.Content == "" {
		t.Error("expected an assistant reply")
	}

	rr = do(s, testutil.NewJSONRequest(t, http.MethodPost, base+"/messages", models.SendMessageRequest{Content: "   "}))
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "empty content")

	rr = do(s, httptest.NewRequest(http.MethodGet, base, nil))
	var detail struct {
		ID       string           `json:"id"`
		Messages []map[string]any `json:"messages"`
	}
	testutil.DecodeEnvelope(t, rr, models.APIStatusOK, &detail)
	if len(detail.Messages) != 3 {
		t.Errorf("expected greeting plus one exchange, got %d messages", len(detail.Messages))
	}

	rr = do(s, httptest.NewRequest(http.MethodGet, base+"/thoughts", nil))
	var logs []map[string]any
	testutil.DecodeEnvelope(t, rr, models.APIStatusOK, &logs)
	if len(logs) != 1 {
		t.Errorf("expected one thought log, got %d", len(logs))
	}

	post := 8
	rr = do(s, testutil.NewJSONRequest(t, http.MethodPost, base+"/end", models.EndSessionRequest{PostConviction: &post}))
	var ended struct {
		Status         string `json:"status"`
		PostConviction *int   `json:"post_conviction"`
	}
	testutil.DecodeEnvelope(t, rr, models.APIStatusOK, &ended)
	if ended.Status != string(models.SessionAbandoned) {
		t.Errorf("expected abandoned, got %q", ended.Status)
	}
	if ended.PostConviction == nil || *ended.PostConviction != 8 {
		t.Errorf("expected post conviction 8, got %v", ended.PostConviction)
	}

	rr = do(s, testutil.NewJSONRequest(t, http.MethodPost, base+"/messages", models.SendMessageRequest{Content: "hello?"}))
	testutil.AssertHTTPStatus(t, http.StatusConflict, rr.Code, "message after end")

	req := httptest.NewRequest(http.MethodPost, base+"/end", nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, do(s, req).Code, "ending twice without a body")
}

func TestEndSession_InvalidRating(t *testing.T) {
	s, st := newTestServer(t)
	testutil.SeedSession(t, st, "END00001", models.PhaseSituation, time.Minute)
	bad := 0
	rr := do(s, testutil.NewJSONRequest(t, http.MethodPost, "/api/sessions/END00001/end", models.EndSessionRequest{PostConviction: &bad}))
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "post conviction 0")
	if sess, _ := st.GetSession("END00001"); !sess.IsActive() {
		t.Error("expected the session to stay active")
	}
}

func TestUnknownSession(t *testing.T) {
	s, _ := newTestServer(t)
	reqs := []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/sessions/MISSING1", nil),
		httptest.NewRequest(http.MethodGet, "/api/sessions/MISSING1/thoughts", nil),
		testutil.NewJSONRequest(t, http.MethodPost, "/api/sessions/MISSING1/messages", models.SendMessageRequest{Content: "hi"}),
		httptest.NewRequest(http.MethodPost, "/api/sessions/MISSING1/end", nil),
	}
	for _, req := range reqs {
		rr := do(s, req)
		testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, req.Method+" "+req.URL.Path)
		testutil.DecodeEnvelope(t, rr, models.APIStatusError, nil)
	}
}

func TestListSessionsAndMetrics(t *testing.T) {
	s, st := newTestServer(t)

	rr := do(s, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
	var empty []models.Session
	env := testutil.DecodeEnvelope(t, rr, models.APIStatusOK, &empty)
	if string(env.Result) != "[]" {
		t.Errorf("expected an empty list, got %s", env.Result)
	}

	testutil.SeedSession(t, st, "MET00001", models.PhaseSituation, 3*time.Minute)
	done := testutil.SeedSession(t, st, "MET00002", models.PhaseTerminated, 2*time.Minute)
	done.Status = models.SessionCompleted
	if err := st.UpdateSession(done); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	rr = do(s, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
	var listed []map[string]any
	testutil.DecodeEnvelope(t, rr, models.APIStatusOK, &listed)
	if len(listed) != 2 {
		t.Errorf("expected 2 sessions, got %d", len(listed))
	}

	rr = do(s, httptest.NewRequest(http.MethodGet, "/api/metrics", nil))
	var m models.Metrics
	testutil.DecodeEnvelope(t, rr, models.APIStatusOK, &m)
	if m.TotalSessions != 2 || m.ActiveSessions != 1 || m.CompletedSessions != 1 {
		t.Errorf("unexpected metrics %+v", m)
	}
	if m.ConversionRate != 50 {
		t.Errorf("expected conversion rate 50, got %v", m.ConversionRate)
	}
}

func TestConfig(t *testing.T) {
	s, _ := newTestServer(t, WithPaymentLink("https://pay.example.com/x"), WithBookingURL("https://book.example.com/free"))
	rr := do(s, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	var cfg ConfigView
	testutil.DecodeEnvelope(t, rr, models.APIStatusOK, &cfg)
	if cfg.PaymentLink != "https://pay.example.com/x" || cfg.BookingURL != "https://book.example.com/free" {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	s, _ := newTestServer(t, WithAddr("127.0.0.1:0"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
