package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/copilotlabs/campaign-copilot/internal/domain"
	"github.com/copilotlabs/campaign-copilot/internal/learning"
	"github.com/go-chi/chi/v5"
)

// stubPipeline returns scripted results per method.
type stubPipeline struct {
	session *domain.Session
	err     error
}

func (s *stubPipeline) CreateSession(context.Context, domain.CampaignBrief) (*domain.Session, error) {
	return s.session, s.err
}
func (s *stubPipeline) GetSession(context.Context, string) (*domain.Session, error) {
	return s.session, s.err
}
func (s *stubPipeline) ListSessions(context.Context) ([]*domain.Session, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []*domain.Session{s.session}, nil
}
func (s *stubPipeline) RunStage(context.Context, string, domain.StageType) (*domain.Session, error) {
	return s.session, s.err
}
func (s *stubPipeline) RunAll(context.Context, string) (*domain.Session, error) {
	return s.session, s.err
}

func newRouter(p Pipeline) chi.Router {
	r := chi.NewRouter()
	NewCampaignHandler(p).RegisterRoutes(r)
	return r
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestCreateSessionReturns201(t *testing.T) {
	t.Parallel()

	p := &stubPipeline{session: &domain.Session{ID: "sess-1", Status: domain.StatusDraft}}
	r := newRouter(p)

	body := `{"industry":"saas","target_audience":"ops","goals":["growth"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/campaigns", strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var got domain.Session
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ID != "sess-1" {
		t.Errorf("unexpected session id %q", got.ID)
	}
}

func TestCreateSessionRejectsMalformedBody(t *testing.T) {
	t.Parallel()

	r := newRouter(&stubPipeline{})
	req := httptest.NewRequest(http.MethodPost, "/api/campaigns", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestRunStageRejectsUnknownStage(t *testing.T) {
	t.Parallel()

	r := newRouter(&stubPipeline{})
	req := httptest.NewRequest(http.MethodPost, "/api/campaigns/sess-1/stages/billing", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown stage, got %d", w.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	t.Parallel()

	reset := time.Now().Add(30 * time.Second)
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"rate limit", &domain.RateLimitError{Category: "generation-api", ResetTime: reset}, http.StatusTooManyRequests},
		{"precondition", &domain.PreconditionError{Stage: domain.StageContentCalendar, Missing: []domain.StageType{domain.StageChannel}}, http.StatusUnprocessableEntity},
		{"not found", domain.ErrSessionNotFound, http.StatusNotFound},
		{"busy", domain.ErrSessionBusy, http.StatusConflict},
		{"parse", &domain.ParseError{Stage: domain.StageAudience, Msg: "bad shape"}, http.StatusBadGateway},
		{"service", &domain.ServiceError{Stage: domain.StageAudience, Attempts: 3}, http.StatusBadGateway},
		{"persistence", &domain.PersistenceError{Op: "append"}, http.StatusInternalServerError},
		{"validation", &domain.ValidationError{Msg: "bad brief"}, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newRouter(&stubPipeline{err: tc.err})
			req := httptest.NewRequest(http.MethodPost, "/api/campaigns/sess-1/stages/audience", nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, w.Code, w.Body.String())
			}
			var body map[string]interface{}
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if msg, _ := body["error"].(string); msg == "" {
				t.Error("every error response must carry an explicit reason")
			}
		})
	}
}

func TestRateLimitResponseCarriesResetTime(t *testing.T) {
	t.Parallel()

	reset := time.Now().Add(time.Minute).UTC().Truncate(time.Second)
	r := newRouter(&stubPipeline{err: &domain.RateLimitError{Category: "generation-api", ResetTime: reset}})
	req := httptest.NewRequest(http.MethodPost, "/api/campaigns/sess-1/run", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	var body struct {
		ResetTime time.Time `json:"reset_time"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !body.ResetTime.Equal(reset) {
		t.Errorf("expected reset_time %v, got %v", reset, body.ResetTime)
	}
}

// stubSink records feedback calls.
type stubSink struct {
	lastReq learning.RecordRequest
	err     error
}

func (s *stubSink) Record(_ context.Context, req learning.RecordRequest) (*domain.FeedbackEvent, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &domain.FeedbackEvent{ID: "fb-1", Type: req.Type}, nil
}

func TestFeedbackEndpoint(t *testing.T) {
	t.Parallel()

	sink := &stubSink{}
	r := chi.NewRouter()
	NewFeedbackHandler(sink).RegisterRoutes(r)

	body := `{"interaction_type":"approve","original_suggestion":"{}","context_data":{"agent_type":"channel"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/feedback", strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if sink.lastReq.Context.AgentType != domain.StageChannel {
		t.Errorf("context did not reach the recorder: %+v", sink.lastReq)
	}
}

func TestFeedbackValidationMapsTo400(t *testing.T) {
	t.Parallel()

	sink := &stubSink{err: &domain.ValidationError{Msg: "user_modification is required for edit feedback"}}
	r := chi.NewRouter()
	NewFeedbackHandler(sink).RegisterRoutes(r)

	body := `{"interaction_type":"edit","original_suggestion":"{}","context_data":{"agent_type":"channel"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/feedback", strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
