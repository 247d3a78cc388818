package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/skincare-picker/internal/domain"
)

type recordingCompleter struct {
	mu    sync.Mutex
	calls [][]Message
	reply string
	err   error
}

func (r *recordingCompleter) Complete(_ context.Context, messages []Message) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, messages)
	return r.reply, r.err
}

func (r *recordingCompleter) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func newProxy(t *testing.T, status int, body string) (*httptest.Server, func() []proxyRequest) {
	t.Helper()
	var mu sync.Mutex
	var received []proxyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		var req proxyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("proxy received invalid body: %v", err)
		}
		mu.Lock()
		received = append(received, req)
		mu.Unlock()
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []proxyRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]proxyRequest(nil), received...)
	}
}

func selection() []domain.Product {
	return []domain.Product{
		{Name: "A", Brand: "CeraVe", Category: "cleanser", Image: "https://img/a.png", Description: "Gentle"},
		{Name: "B", Brand: "L'Oreal", Category: "serum", Image: "https://img/b.png", Description: "Bright"},
	}
}

func TestRoutine_WellFormedReplyLandsVerbatim(t *testing.T) {
	t.Parallel()
	srv, received := newProxy(t, http.StatusOK, `{"choices":[{"message":{"content":"Use A then B."}}]}`)
	c := NewController(ControllerConfig{
		UserID:    "anon_1",
		Completer: &ProxyCompleter{URL: srv.URL, Client: srv.Client()},
		Timeout:   5 * time.Second,
	})

	got := c.GenerateRoutine(context.Background(), selection())
	if got.Text != "Use A then B." || got.Role != domain.RoleRoutine {
		t.Fatalf("unexpected bubble: %+v", got)
	}
	last, ok := c.Log().Last()
	if !ok || last.Text != "Use A then B." {
		t.Fatalf("expected last bubble to hold the reply, got %+v", last)
	}
	if n := len(c.Log().Bubbles()); n != 1 {
		t.Fatalf("expected routine flow to replace the log, got %d bubbles", n)
	}

	calls := received()
	if len(calls) != 1 {
		t.Fatalf("expected one proxy call, got %d", len(calls))
	}
	msgs := calls[0].Messages
	if len(msgs) != 2 || msgs[0].Role != "system" || msgs[1].Role != "user" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
	if !strings.HasPrefix(msgs[1].Content, "Here are the selected products:\n") {
		t.Errorf("unexpected user message: %q", msgs[1].Content)
	}
	if strings.Contains(msgs[1].Content, "img/a.png") || strings.Contains(msgs[1].Content, `"image"`) {
		t.Errorf("image must not be sent: %q", msgs[1].Content)
	}
	if !strings.Contains(msgs[1].Content, `"brand": "L'Oreal"`) {
		t.Errorf("expected indented product JSON: %q", msgs[1].Content)
	}
}

func TestRoutine_EmptySelectionMakesNoCall(t *testing.T) {
	t.Parallel()
	completer := &recordingCompleter{reply: "unused"}
	c := NewController(ControllerConfig{Completer: completer})

	got := c.GenerateRoutine(context.Background(), nil)
	if got.Text != EmptySelectionText {
		t.Fatalf("expected guidance, got %q", got.Text)
	}
	if completer.callCount() != 0 {
		t.Fatalf("expected no network call, got %d", completer.callCount())
	}
}

func TestReplyShapes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"missing choices", http.StatusOK, `{"id":"x"}`, FallbackText},
		{"empty choices", http.StatusOK, `{"choices":[]}`, FallbackText},
		{"missing message", http.StatusOK, `{"choices":[{"index":0}]}`, FallbackText},
		{"empty content", http.StatusOK, `{"choices":[{"message":{"content":""}}]}`, FallbackText},
		{"choices wrong type", http.StatusOK, `{"choices":"nope"}`, FallbackText},
		{"not json", http.StatusOK, `<html>bad gateway</html>`, AskErrorText},
		{"server error", http.StatusBadGateway, `{"error":"upstream"}`, AskErrorText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv, _ := newProxy(t, tt.status, tt.body)
			c := NewController(ControllerConfig{Completer: &ProxyCompleter{URL: srv.URL}})

			got := c.Ask(context.Background(), "Which cleanser?")
			if got.Text != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got.Text)
			}
			last, _ := c.Log().Last()
			if last.Text != tt.want || last.Pending() {
				t.Fatalf("unexpected last bubble %+v", last)
			}
		})
	}
}

func TestAsk_NetworkFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewController(ControllerConfig{Completer: &ProxyCompleter{URL: url}})
	if got := c.Ask(context.Background(), "hello"); got.Text != AskErrorText {
		t.Fatalf("expected ask error text, got %q", got.Text)
	}

	got := c.GenerateRoutine(context.Background(), selection())
	if got.Text != RoutineErrorText {
		t.Fatalf("expected routine error text, got %q", got.Text)
	}
}

func TestAsk_BlankQuestion(t *testing.T) {
	t.Parallel()
	completer := &recordingCompleter{}
	c := NewController(ControllerConfig{Completer: completer})

	got := c.Ask(context.Background(), "   \t ")
	if got.Text != EmptyQuestionText {
		t.Fatalf("expected guidance, got %q", got.Text)
	}
	if completer.callCount() != 0 {
		t.Fatal("expected no network call")
	}
}

func TestAsk_AppendsUserThenAnswer(t *testing.T) {
	t.Parallel()
	completer := &recordingCompleter{reply: "Use a gentle cleanser."}
	c := NewController(ControllerConfig{Completer: completer})

	var pendingSeen bool
	c.Log().Subscribe(func(bubbles []domain.Bubble) {
		if n := len(bubbles); n > 0 && bubbles[n-1].Pending() && bubbles[n-1].Text == ThinkingText {
			pendingSeen = true
		}
	})

	c.Ask(context.Background(), "  What for oily skin?  ")

	bubbles := c.Log().Bubbles()
	if len(bubbles) != 2 {
		t.Fatalf("expected 2 bubbles, got %d", len(bubbles))
	}
	if bubbles[0].Role != domain.RoleUser || bubbles[0].Text != "What for oily skin?" {
		t.Errorf("unexpected user bubble %+v", bubbles[0])
	}
	if bubbles[1].Role != domain.RoleAssistant || bubbles[1].Text != "Use a gentle cleanser." {
		t.Errorf("unexpected answer bubble %+v", bubbles[1])
	}
	if !pendingSeen {
		t.Error("expected a Thinking... placeholder before the answer")
	}
	if got := completer.calls[0][1].Content; got != "What for oily skin?" {
		t.Errorf("expected trimmed question sent, got %q", got)
	}
}

// gatedCompleter blocks its first call until release is closed.
type gatedCompleter struct {
	mu      sync.Mutex
	calls   int
	entered chan struct{}
	release chan struct{}
}

func (g *gatedCompleter) Complete(ctx context.Context, _ []Message) (string, error) {
	g.mu.Lock()
	g.calls++
	call := g.calls
	g.mu.Unlock()

	if call == 1 {
		close(g.entered)
		select {
		case <-g.release:
			return "late answer", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "Morning: A. Evening: B.", nil
}

func TestStaleReplyDroppedAfterRoutineRestart(t *testing.T) {
	t.Parallel()
	completer := &gatedCompleter{entered: make(chan struct{}), release: make(chan struct{})}
	c := NewController(ControllerConfig{Completer: completer, Timeout: 5 * time.Second})

	done := make(chan domain.Bubble)
	go func() { done <- c.Ask(context.Background(), "first question") }()
	<-completer.entered

	routine := c.GenerateRoutine(context.Background(), selection())
	if routine.Text != "Morning: A. Evening: B." {
		t.Fatalf("unexpected routine bubble %+v", routine)
	}

	close(completer.release)
	stale := <-done
	if !stale.Pending() || stale.Text != ThinkingText {
		t.Fatalf("dropped reply must come back as the unsettled placeholder, got %+v", stale)
	}

	bubbles := c.Log().Bubbles()
	if len(bubbles) != 1 {
		t.Fatalf("expected only the routine bubble, got %+v", bubbles)
	}
	if bubbles[0].Text != "Morning: A. Evening: B." || bubbles[0].Role != domain.RoleRoutine {
		t.Fatalf("stale reply overwrote the log: %+v", bubbles[0])
	}
}

func TestLog_ResolveRequiresMatchingToken(t *testing.T) {
	t.Parallel()
	l := NewLog()
	p := l.AppendPending(ThinkingText)
	if p.Token == "" || !p.Pending() {
		t.Fatalf("expected pending bubble with token, got %+v", p)
	}

	if l.Resolve(p.ID, "wrong", domain.RoleAssistant, "x") {
		t.Fatal("resolve with a wrong token must fail")
	}
	if !l.Resolve(p.ID, p.Token, domain.RoleAssistant, "answer") {
		t.Fatal("resolve with the right token must succeed")
	}
	if l.Resolve(p.ID, p.Token, domain.RoleAssistant, "again") {
		t.Fatal("a bubble resolves once")
	}
	last, _ := l.Last()
	if last.Text != "answer" {
		t.Fatalf("unexpected text %q", last.Text)
	}
}

func TestDisabledCompleter(t *testing.T) {
	t.Parallel()
	_, err := Disabled().Complete(context.Background(), nil)
	if !errors.Is(err, ErrAssistantDisabled) {
		t.Fatalf("expected ErrAssistantDisabled, got %v", err)
	}

	c := NewController(ControllerConfig{})
	if got := c.Ask(context.Background(), "hi"); got.Text != AskErrorText {
		t.Fatalf("expected ask error text, got %q", got.Text)
	}
}
