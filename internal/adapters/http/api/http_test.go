package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/critic/internal/adapters/http/api"
	"github.com/okian/critic/internal/domain/model"
	"github.com/okian/critic/internal/domain/types"
	"github.com/okian/critic/internal/domain/validate"
	. "github.com/smartystreets/goconvey/convey"
)

// Mock implementations for testing
type mockService struct {
	sessions map[string]types.SessionView
	states   map[string]types.StateView
	diags    []model.Diagnostic

	reward     model.ScalarReward
	duplicate  bool
	computeErr error

	lastBatchID string
	lastRecords []model.EventRecord
	lastLimit   int
}

func newMockService() *mockService {
	return &mockService{
		sessions: make(map[string]types.SessionView),
		states:   make(map[string]types.StateView),
	}
}

func (m *mockService) CreateSession(ctx context.Context, id string) (types.SessionView, error) {
	if id == "" {
		id = "generated-id"
	}
	if _, ok := m.sessions[id]; ok {
		return types.SessionView{}, fmt.Errorf("session already exists: %s", id)
	}
	view := types.SessionView{ID: id, CreatedAt: "2026-01-01T00:00:00Z"}
	m.sessions[id] = view
	return view, nil
}

func (m *mockService) ListSessions(ctx context.Context) []types.SessionView {
	views := make([]types.SessionView, 0, len(m.sessions))
	for _, v := range m.sessions {
		views = append(views, v)
	}
	return views
}

func (m *mockService) DeleteSession(ctx context.Context, sessionID string) error {
	if _, ok := m.sessions[sessionID]; !ok {
		return fmt.Errorf("session not found: %s", sessionID)
	}
	delete(m.sessions, sessionID)
	return nil
}

func (m *mockService) ResetSession(ctx context.Context, sessionID string) error {
	if _, ok := m.sessions[sessionID]; !ok {
		return fmt.Errorf("session not found: %s", sessionID)
	}
	return nil
}

func (m *mockService) ComputeReward(ctx context.Context, sessionID, batchID string, records []model.EventRecord) (model.ScalarReward, bool, error) {
	if _, ok := m.sessions[sessionID]; !ok {
		return model.ScalarReward{}, false, fmt.Errorf("session not found: %s", sessionID)
	}
	if m.computeErr != nil {
		return model.ScalarReward{}, false, m.computeErr
	}
	m.lastBatchID = batchID
	m.lastRecords = records
	if m.duplicate {
		return model.ScalarReward{}, true, nil
	}
	return m.reward, false, nil
}

func (m *mockService) SessionState(ctx context.Context, sessionID string) (types.StateView, error) {
	state, ok := m.states[sessionID]
	if !ok {
		return types.StateView{}, fmt.Errorf("session not found: %s", sessionID)
	}
	return state, nil
}

func (m *mockService) Diagnostics(ctx context.Context, sessionID string, limit int) ([]model.Diagnostic, error) {
	m.lastLimit = limit
	if limit < len(m.diags) {
		return m.diags[:limit], nil
	}
	return m.diags, nil
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

func newTestMux(svc *mockService) *http.ServeMux {
	server := api.NewServer(svc, &mockStatsProvider{stats: map[string]interface{}{"started": true}}, 100)
	mux := http.NewServeMux()
	server.Register(context.Background(), mux)
	return mux
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response body: %v", err)
	}
	return body
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		svc := newMockService()
		mux := newTestMux(svc)

		Convey("Then the health endpoint should be accessible", func() {
			req := httptest.NewRequest("GET", "/healthz", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("And the stats endpoint should return the provider payload", func() {
			req := httptest.NewRequest("GET", "/stats", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusOK)
			body := decodeBody(t, w)
			So(body["started"], ShouldEqual, true)
		})

		Convey("And the sessions collection should be accessible", func() {
			req := httptest.NewRequest("GET", "/sessions", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("And unknown paths should 404", func() {
			req := httptest.NewRequest("GET", "/unknown", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("And unknown session actions should 404", func() {
			req := httptest.NewRequest("GET", "/sessions/abc/unknown", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestSessionsHandler(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		svc := newMockService()
		mux := newTestMux(svc)

		Convey("When creating a session with an explicit id", func() {
			req := httptest.NewRequest("POST", "/sessions", strings.NewReader(`{"id":"episode-1"}`))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			Convey("Then it should answer 201 with the view", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				body := decodeBody(t, w)
				So(body["id"], ShouldEqual, "episode-1")
			})
		})

		Convey("When creating a session with an empty body", func() {
			req := httptest.NewRequest("POST", "/sessions", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			Convey("Then the id should be generated", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				body := decodeBody(t, w)
				So(body["id"], ShouldEqual, "generated-id")
			})
		})

		Convey("When creating a session that already exists", func() {
			_, err := svc.CreateSession(context.Background(), "episode-dup")
			So(err, ShouldBeNil)

			req := httptest.NewRequest("POST", "/sessions", strings.NewReader(`{"id":"episode-dup"}`))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			Convey("Then it should answer 409", func() {
				So(w.Code, ShouldEqual, http.StatusConflict)
				body := decodeBody(t, w)
				So(body["code"], ShouldEqual, "conflict")
			})
		})

		Convey("When posting malformed JSON", func() {
			req := httptest.NewRequest("POST", "/sessions", strings.NewReader(`{"id":`))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			Convey("Then it should answer 400", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When listing sessions", func() {
			_, err := svc.CreateSession(context.Background(), "episode-a")
			So(err, ShouldBeNil)
			_, err = svc.CreateSession(context.Background(), "episode-b")
			So(err, ShouldBeNil)

			req := httptest.NewRequest("GET", "/sessions", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			Convey("Then every session should be returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var views []types.SessionView
				So(json.Unmarshal(w.Body.Bytes(), &views), ShouldBeNil)
				So(len(views), ShouldEqual, 2)
			})
		})

		Convey("When deleting a session", func() {
			_, err := svc.CreateSession(context.Background(), "episode-del")
			So(err, ShouldBeNil)

			req := httptest.NewRequest("DELETE", "/sessions/episode-del", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			Convey("Then it should acknowledge the teardown", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decodeBody(t, w)
				So(body["status"], ShouldEqual, "deleted")
			})
		})

		Convey("When deleting an unknown session", func() {
			req := httptest.NewRequest("DELETE", "/sessions/ghost", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			Convey("Then it should answer 404", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
				body := decodeBody(t, w)
				So(body["code"], ShouldEqual, "not_found")
			})
		})

		Convey("When resetting a session", func() {
			_, err := svc.CreateSession(context.Background(), "episode-reset")
			So(err, ShouldBeNil)

			req := httptest.NewRequest("POST", "/sessions/episode-reset/reset", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			Convey("Then it should acknowledge the reset", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decodeBody(t, w)
				So(body["status"], ShouldEqual, "reset")
			})
		})
	})
}

func TestRewardsHandler(t *testing.T) {
	Convey("Given a server with one session", t, func() {
		svc := newMockService()
		svc.reward = model.ScalarReward{Value: 0.46, Raw: 0.5, Normalized: false}
		_, err := svc.CreateSession(context.Background(), "episode-1")
		So(err, ShouldBeNil)
		mux := newTestMux(svc)

		Convey("When posting a valid batch", func() {
			payload := `{"batch_id":"batch-1","records":[{"timestamp":0,"value":0.1},{"timestamp":1,"value":0.2}]}`
			req := httptest.NewRequest("POST", "/sessions/episode-1/rewards", strings.NewReader(payload))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			Convey("Then the reward should come back", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decodeBody(t, w)
				So(body["status"], ShouldEqual, "computed")
				So(body["duplicate"], ShouldEqual, false)

				reward, ok := body["reward"].(map[string]interface{})
				So(ok, ShouldBeTrue)
				So(reward["value"], ShouldAlmostEqual, 0.46, 1e-9)
				So(reward["raw"], ShouldAlmostEqual, 0.5, 1e-9)
			})

			Convey("And the batch should have reached the service", func() {
				So(svc.lastBatchID, ShouldEqual, "batch-1")
				So(len(svc.lastRecords), ShouldEqual, 2)
			})
		})

		Convey("When replaying a batch", func() {
			svc.duplicate = true
			payload := `{"batch_id":"batch-1","records":[]}`
			req := httptest.NewRequest("POST", "/sessions/episode-1/rewards", strings.NewReader(payload))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			Convey("Then the replay should be acknowledged without a reward", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decodeBody(t, w)
				So(body["status"], ShouldEqual, "duplicate")
				So(body["duplicate"], ShouldEqual, true)
				_, hasReward := body["reward"]
				So(hasReward, ShouldBeFalse)
			})
		})

		Convey("When the batch fails validation", func() {
			svc.computeErr = fmt.Errorf("validating batch: %w", validate.ErrSchemaViolation)
			payload := `{"records":[{"timestamp":0,"value":0.1}]}`
			req := httptest.NewRequest("POST", "/sessions/episode-1/rewards", strings.NewReader(payload))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			Convey("Then it should answer 400 with the violation code", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				body := decodeBody(t, w)
				So(body["code"], ShouldEqual, "schema_violation")
			})
		})

		Convey("When targeting an unknown session", func() {
			payload := `{"records":[]}`
			req := httptest.NewRequest("POST", "/sessions/ghost/rewards", strings.NewReader(payload))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			Convey("Then it should answer 404", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When posting malformed JSON", func() {
			req := httptest.NewRequest("POST", "/sessions/episode-1/rewards", strings.NewReader(`{"records":`))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			Convey("Then it should answer 400", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				body := decodeBody(t, w)
				So(body["code"], ShouldEqual, "bad_request")
			})
		})

		Convey("When using the wrong method", func() {
			req := httptest.NewRequest("GET", "/sessions/episode-1/rewards", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			Convey("Then it should answer 404", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestStateHandler(t *testing.T) {
	Convey("Given a server with session state", t, func() {
		svc := newMockService()
		_, err := svc.CreateSession(context.Background(), "episode-1")
		So(err, ShouldBeNil)
		svc.states["episode-1"] = types.StateView{
			Mean:        0.25,
			Variance:    0.01,
			Count:       42,
			Fingerprint: "a1b2c3d4e5f60718",
		}
		mux := newTestMux(svc)

		Convey("When fetching the state", func() {
			req := httptest.NewRequest("GET", "/sessions/episode-1/state", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			Convey("Then the snapshot should come back", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decodeBody(t, w)
				So(body["running_mean"], ShouldAlmostEqual, 0.25, 1e-9)
				So(body["observation_count"], ShouldEqual, 42)
				So(body["config_fingerprint"], ShouldEqual, "a1b2c3d4e5f60718")
			})
		})

		Convey("When fetching state for an unknown session", func() {
			req := httptest.NewRequest("GET", "/sessions/ghost/state", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			Convey("Then it should answer 404", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestDiagnosticsHandler(t *testing.T) {
	Convey("Given a server with diagnostic history", t, func() {
		svc := newMockService()
		for i := 0; i < 30; i++ {
			svc.diags = append(svc.diags, model.Diagnostic{
				SessionID: "episode-1",
				Tick:      uint64(30 - i),
				Raw:       0.1,
				Value:     0.09,
			})
		}
		mux := newTestMux(svc)

		Convey("When fetching without a limit", func() {
			req := httptest.NewRequest("GET", "/sessions/episode-1/diagnostics", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			Convey("Then the default page size should apply", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(svc.lastLimit, ShouldEqual, 20)
			})
		})

		Convey("When fetching with an explicit limit", func() {
			req := httptest.NewRequest("GET", "/sessions/episode-1/diagnostics?limit=5", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			Convey("Then that many records should come back", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var diags []model.Diagnostic
				So(json.Unmarshal(w.Body.Bytes(), &diags), ShouldBeNil)
				So(len(diags), ShouldEqual, 5)
			})
		})

		Convey("When the limit is not a number", func() {
			req := httptest.NewRequest("GET", "/sessions/episode-1/diagnostics?limit=abc", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			Convey("Then it should answer 400", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the limit exceeds the maximum", func() {
			req := httptest.NewRequest("GET", "/sessions/episode-1/diagnostics?limit=5000", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			Convey("Then it should answer 400 with the limit code", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				body := decodeBody(t, w)
				So(body["code"], ShouldEqual, "limit_exceeded")
			})
		})

		Convey("When no diagnostics exist", func() {
			svc.diags = nil
			req := httptest.NewRequest("GET", "/sessions/episode-1/diagnostics", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			Convey("Then an empty array should come back", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(strings.TrimSpace(w.Body.String()), ShouldEqual, "[]")
			})
		})
	})
}
