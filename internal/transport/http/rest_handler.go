package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/domain"
)

// RESTHandler serves the quiz library, credits, dashboard and room diagnostics.
type RESTHandler struct {
	quizzes  *app.QuizService
	engine   *app.Engine
	verifier *auth.Verifier
	logger   *zap.Logger
}

func NewRESTHandler(quizzes *app.QuizService, engine *app.Engine, verifier *auth.Verifier, logger *zap.Logger) *RESTHandler {
	return &RESTHandler{quizzes: quizzes, engine: engine, verifier: verifier, logger: logger}
}

// Register mounts the authenticated API routes.
func (h *RESTHandler) Register(mux *http.ServeMux) {
	mux.Handle("POST /api/quiz", h.authed(h.createQuiz))
	mux.Handle("POST /api/quiz/import", h.authed(h.importQuiz))
	mux.Handle("GET /api/quiz", h.authed(h.listQuizzes))
	mux.Handle("GET /api/quiz/{id}", h.authed(h.getQuiz))
	mux.Handle("DELETE /api/quiz/{id}", h.authed(h.deleteQuiz))
	mux.Handle("GET /api/credits", h.authed(h.getCredits))
	mux.Handle("POST /api/credits", h.authed(h.addCredits))
	mux.Handle("GET /api/dashboard-stats", h.authed(h.dashboard))
	mux.Handle("GET /api/rooms/{code}", h.authed(h.room))
}

type createQuizRequest struct {
	Title     string            `json:"title"`
	Questions []domain.Question `json:"questions"`
}

type importQuizRequest struct {
	Title   string            `json:"title"`
	Type    domain.CreditKind `json:"type"`
	Content string            `json:"content"`
}

type addCreditsRequest struct {
	Type   domain.CreditKind `json:"type"`
	Amount int               `json:"amount"`
}

type dataResponse struct {
	Message string `json:"message,omitempty"`
	Data    any    `json:"data"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type roomResponse struct {
	RoomCode    string `json:"roomCode"`
	PlayerCount int    `json:"playerCount"`
	domain.GameStatePayload
}

func (h *RESTHandler) createQuiz(w http.ResponseWriter, r *http.Request, user auth.User) {
	var req createQuizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, validationError(err))
		return
	}
	quiz, err := h.quizzes.CreateQuiz(r.Context(), user.ID, req.Title, req.Questions)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Message: "Quiz saved successfully", Data: quiz})
}

func (h *RESTHandler) importQuiz(w http.ResponseWriter, r *http.Request, user auth.User) {
	var req importQuizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, validationError(err))
		return
	}
	if req.Type == "" {
		req.Type = domain.CreditsNormal
	}
	quiz, err := h.quizzes.ImportQuiz(r.Context(), user.ID, req.Title, req.Type, []byte(req.Content))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Message: "Quiz imported successfully", Data: quiz})
}

func (h *RESTHandler) listQuizzes(w http.ResponseWriter, r *http.Request, user auth.User) {
	quizzes, err := h.quizzes.ListQuizzes(r.Context(), user.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Message: "Quizzes fetched successfully", Data: quizzes})
}

func (h *RESTHandler) getQuiz(w http.ResponseWriter, r *http.Request, user auth.User) {
	quiz, err := h.quizzes.GetQuiz(r.Context(), user.ID, r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Message: "Quiz fetched successfully", Data: quiz})
}

func (h *RESTHandler) deleteQuiz(w http.ResponseWriter, r *http.Request, user auth.User) {
	if err := h.quizzes.DeleteQuiz(r.Context(), user.ID, r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Message: "Quiz deleted successfully"})
}

func (h *RESTHandler) getCredits(w http.ResponseWriter, r *http.Request, user auth.User) {
	credits, err := h.quizzes.Credits(r.Context(), user.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, credits)
}

func (h *RESTHandler) addCredits(w http.ResponseWriter, r *http.Request, user auth.User) {
	var req addCreditsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, validationError(err))
		return
	}
	credits, err := h.quizzes.AddCredits(r.Context(), user.ID, req.Type, req.Amount)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, credits)
}

func (h *RESTHandler) dashboard(w http.ResponseWriter, r *http.Request, user auth.User) {
	dash, err := h.quizzes.Dashboard(r.Context(), user.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

// room returns the public view of a live room; correct answers and host
// credentials are never included.
func (h *RESTHandler) room(w http.ResponseWriter, r *http.Request, _ auth.User) {
	room, err := h.engine.Room(r.PathValue("code"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roomResponse{
		RoomCode:         room.Code,
		PlayerCount:      len(room.Players),
		GameStatePayload: room.StateView(),
	})
}

// authed verifies the bearer token and passes the caller to next.
func (h *RESTHandler) authed(next func(http.ResponseWriter, *http.Request, auth.User)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.verifier == nil {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication is not configured"})
			return
		}
		token, err := auth.BearerToken(r.Header.Get("Authorization"))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
			return
		}
		user, err := h.verifier.Verify(token)
		if err != nil {
			h.logger.Debug("rejected bearer token", zap.Error(err))
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: auth.ErrInvalidToken.Error()})
			return
		}
		next(w, r, user)
	})
}

func (h *RESTHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrQuizNotFound), errors.Is(err, domain.ErrRoomNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNoCredits):
		status = http.StatusPaymentRequired
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
		writeJSON(w, status, errorResponse{Error: "Internal server error"})
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func validationError(err error) error {
	if errors.Is(err, domain.ErrValidation) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrValidation, err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
