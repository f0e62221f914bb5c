package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"habittracker/internal/handler"
	"habittracker/internal/model"
	"habittracker/internal/repository"
	"habittracker/internal/service"
	"habittracker/pkg/trace"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type unavailableStore struct {
	repository.HabitStore
}

func (unavailableStore) ListHabits(context.Context, string) ([]model.Habit, error) {
	return nil, repository.ErrUnavailable
}

type downPinger struct{}

func (downPinger) Name() string               { return "postgres" }
func (downPinger) Ping(context.Context) error { return errors.New("connection refused") }

func newTestRouter(t *testing.T, store repository.HabitStore, sessions repository.SessionStore, health Health) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	now := func() time.Time { return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC) }

	habits := service.NewHabitService(store, zap.NewNop()).WithClock(now)
	sess := service.NewSessionService(sessions, zap.NewNop()).WithClock(now)
	return NewRouter(
		handler.NewHabitHandler(habits, zap.NewNop()),
		handler.NewSessionHandler(sess, zap.NewNop()),
		zap.NewNop(),
		health,
	)
}

func do(r http.Handler, method, path, session string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		_ = json.NewEncoder(&buf).Encode(b)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if session != "" {
		req.Header.Set(handler.SessionHeader, session)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHabitEndpoints(t *testing.T) {
	mem := repository.NewMemoryStore(nil, zap.NewNop())
	r := newTestRouter(t, mem, mem, Health{Store: mem})

	w := do(r, http.MethodPost, "/api/habits", "alice", map[string]string{"name": "Meditate", "category": "Mindfulness"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "alice", created["userId"])
	assert.NotNil(t, created["progress"])
	assert.NotContains(t, created, "Version", "version must not be serialized")

	w = do(r, http.MethodPost, "/api/habits/"+id+"/complete", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var completed map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &completed))
	assert.Equal(t, true, completed["trackedToday"])
	assert.Equal(t, float64(1), completed["x1"])

	w = do(r, http.MethodGet, "/api/habits", "alice", nil)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	assert.Equal(t, "[]", do(r, http.MethodGet, "/api/habits", "bob", nil).Body.String())
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/habits/"+id, "bob", nil).Code)

	w = do(r, http.MethodPatch, "/api/habits/"+id, "alice", map[string]string{"name": "Meditate daily"})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	for _, path := range []string{"/api/habits/" + id + "/curve", "/api/habits/" + id + "/calendar?month=2024-03", "/api/stats"} {
		assert.Equal(t, http.StatusOK, do(r, http.MethodGet, path, "alice", nil).Code, path)
	}

	assert.Equal(t, http.StatusNoContent, do(r, http.MethodDelete, "/api/habits/"+id, "alice", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodDelete, "/api/habits/"+id, "alice", nil).Code)
}

func TestHabitValidationErrors(t *testing.T) {
	mem := repository.NewMemoryStore(nil, zap.NewNop())
	r := newTestRouter(t, mem, mem, Health{Store: mem})

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/habits", "", nil).Code)

	w := do(r, http.MethodPost, "/api/habits", "alice", map[string]string{"name": "", "category": "Gardening"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	var body struct {
		Error   string             `json:"error"`
		Details []model.FieldError `json:"details"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "invalid habit data", body.Error)
	assert.Len(t, body.Details, 2)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/habits", "alice", "{not json").Code)
}

func TestUnavailableStoreMapsTo503(t *testing.T) {
	mem := repository.NewMemoryStore(nil, zap.NewNop())
	r := newTestRouter(t, unavailableStore{HabitStore: mem}, mem, Health{Store: mem})

	assert.Equal(t, http.StatusServiceUnavailable, do(r, http.MethodGet, "/api/habits", "alice", nil).Code)
}

func TestSessionEndpoints(t *testing.T) {
	mem := repository.NewMemoryStore(nil, zap.NewNop())
	r := newTestRouter(t, mem, mem, Health{Store: mem})

	w := do(r, http.MethodPost, "/api/sessions", "", map[string]string{"name": "Laptop"})
	require.Equal(t, http.StatusCreated, w.Code)
	var sess model.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	require.NotEmpty(t, sess.ID)
	assert.Equal(t, "Laptop", sess.Name)

	assert.Equal(t, http.StatusOK, do(r, http.MethodPut, "/api/sessions/"+sess.ID, "", map[string]string{"name": "Phone"}).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/sessions/"+sess.ID, "", nil).Code)

	w = do(r, http.MethodGet, "/api/sessions", "", nil)
	var list []model.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Phone", list[0].Name)

	assert.Equal(t, http.StatusNoContent, do(r, http.MethodDelete, "/api/sessions/"+sess.ID, "", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/sessions/"+sess.ID, "", nil).Code)
}

func TestHealthEndpoints(t *testing.T) {
	mem := repository.NewMemoryStore(nil, zap.NewNop())
	r := newTestRouter(t, mem, mem, Health{Store: mem})

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/healthz", "", nil).Code)

	w := do(r, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ready map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ready))
	assert.Equal(t, "memory", ready["storage"], "readyz should report the active backend")

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/metrics", "", nil).Code)

	down := newTestRouter(t, mem, mem, Health{Store: downPinger{}})
	assert.Equal(t, http.StatusServiceUnavailable, do(down, http.MethodGet, "/readyz", "", nil).Code)
}

func TestTraceHeaderEchoed(t *testing.T) {
	mem := repository.NewMemoryStore(nil, zap.NewNop())
	r := newTestRouter(t, mem, mem, Health{Store: mem})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(trace.HeaderName, "abc123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "abc123", w.Header().Get(trace.HeaderName))
}
