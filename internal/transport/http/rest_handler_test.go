package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/infra/memory"
)

type restEnv struct {
	mux    *http.ServeMux
	engine *app.Engine
	hub    *Hub
}

func newRESTEnv(t *testing.T, verifier *auth.Verifier) *restEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)
	lib := memory.NewLibrary()
	cache := memory.NewQuizRepository(lib, time.Minute)
	hub := NewHub(logger)
	engine := app.NewEngine(memory.NewRoomStore(), hub, &stepScheduler{timers: make(map[string]func())}, logger, app.DefaultEngineConfig(),
		app.WithQuizRepository(cache))
	service := app.NewQuizService(lib, lib, lib, cache, logger)

	mux := http.NewServeMux()
	NewRESTHandler(service, engine, verifier, logger).Register(mux)
	return &restEnv{mux: mux, engine: engine, hub: hub}
}

func (env *restEnv) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+signToken(t, user))
	}
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestRESTRequiresToken(t *testing.T) {
	env := newRESTEnv(t, auth.NewVerifier(testSecret, ""))

	rec := env.do(t, http.MethodGet, "/api/quiz", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/quiz", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec = httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, auth.ErrInvalidToken.Error(), decodeBody(t, rec)["error"])

	disabled := newRESTEnv(t, nil)
	rec = disabled.do(t, http.MethodGet, "/api/credits", "user-1", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRESTQuizLifecycle(t *testing.T) {
	env := newRESTEnv(t, auth.NewVerifier(testSecret, ""))

	rec := env.do(t, http.MethodPost, "/api/quiz", "user-1", map[string]any{
		"title":     "Geography",
		"questions": createQuestions(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	quiz := decodeBody(t, rec)["data"].(map[string]any)
	id := quiz["id"].(string)
	assert.Equal(t, "Geography", quiz["title"])

	rec = env.do(t, http.MethodGet, "/api/quiz", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["data"], 1)

	rec = env.do(t, http.MethodGet, "/api/quiz/"+id, "user-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/quiz/"+id, "user-2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/dashboard-stats", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dash := decodeBody(t, rec)
	assert.EqualValues(t, 1, dash["totalQuizzes"])
	assert.Len(t, dash["recentQuizzes"], 1)

	rec = env.do(t, http.MethodDelete, "/api/quiz/"+id, "user-2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.do(t, http.MethodDelete, "/api/quiz/"+id, "user-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/quiz/"+id, "user-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRESTRejectsInvalidQuiz(t *testing.T) {
	env := newRESTEnv(t, auth.NewVerifier(testSecret, ""))

	rec := env.do(t, http.MethodPost, "/api/quiz", "user-1", map[string]any{"questions": []any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/quiz", "user-1", map[string]any{
		"questions": []map[string]any{{"question": "Pick", "type": "short-answer", "correctAnswer": "x"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "unsupported type")
}

func TestRESTImportAndCredits(t *testing.T) {
	env := newRESTEnv(t, auth.NewVerifier(testSecret, ""))

	rec := env.do(t, http.MethodGet, "/api/credits", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 10, decodeBody(t, rec)["normal_quiz_credits"])

	rec = env.do(t, http.MethodPost, "/api/quiz/import", "user-1", map[string]any{
		"title":   "Imported",
		"content": "```json\n[{\"question\":\"Go is fun\",\"correctAnswer\":true}]\n```",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/credits", "user-1", nil)
	assert.EqualValues(t, 9, decodeBody(t, rec)["normal_quiz_credits"])

	rec = env.do(t, http.MethodPost, "/api/credits", "user-1", map[string]any{"type": "file", "amount": 3})
	require.Equal(t, http.StatusOK, rec.Code)
	credits := decodeBody(t, rec)
	assert.EqualValues(t, 8, credits["file_quiz_credits"])
	assert.EqualValues(t, 3, credits["total_purchased_credits"])

	rec = env.do(t, http.MethodPost, "/api/credits", "user-1", map[string]any{"type": "file", "amount": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRESTImportWithoutCredits(t *testing.T) {
	env := newRESTEnv(t, auth.NewVerifier(testSecret, ""))
	body := map[string]any{"type": "file", "content": `[{"question":"Go is fun","correctAnswer":true}]`}

	for i := 0; i < 5; i++ {
		rec := env.do(t, http.MethodPost, "/api/quiz/import", "user-1", body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	rec := env.do(t, http.MethodPost, "/api/quiz/import", "user-1", body)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestRESTRoomSnapshotHidesAnswers(t *testing.T) {
	env := newRESTEnv(t, auth.NewVerifier(testSecret, ""))

	rec := env.do(t, http.MethodPost, "/api/quiz", "user-1", map[string]any{"questions": createQuestions()})
	require.Equal(t, http.StatusOK, rec.Code)
	quizID := decodeBody(t, rec)["data"].(map[string]any)["id"].(string)

	env.hub.Register("host")
	code, err := env.engine.CreateGame(context.Background(), app.CreateGame{ConnID: "host", HostUserID: "user-1", QuizID: quizID})
	require.NoError(t, err)

	rec = env.do(t, http.MethodGet, "/api/rooms/"+code, "user-2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "correctAnswer")
	assert.NotContains(t, rec.Body.String(), "hostToken")
	room := decodeBody(t, rec)
	assert.Equal(t, "waiting", room["gameState"])
	assert.EqualValues(t, 2, room["questionCount"])

	rec = env.do(t, http.MethodGet, "/api/rooms/ZZZZZZ", "user-2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
