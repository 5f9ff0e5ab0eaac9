package domain

import "errors"

var (
	// ErrRoomNotFound is returned when a room code does not match a live room.
	ErrRoomNotFound = errors.New("game room not found")
	// ErrRoomExists is returned when a generated room code collides with a live room.
	ErrRoomExists = errors.New("game room already exists")
	// ErrParticipantNotFound is returned when a connection acts before joining.
	ErrParticipantNotFound = errors.New("participant not found in room")
	// ErrUnauthorized marks host-only commands issued by another connection, and host answers.
	ErrUnauthorized = errors.New("action not allowed for this connection")
	// ErrInvalidTransition is returned when a command does not apply to the current game state.
	ErrInvalidTransition = errors.New("command not allowed in current game state")
	// ErrStaleSubmission is returned for answers that reference a question other than the current one.
	ErrStaleSubmission = errors.New("answer does not match the current question")
	// ErrDuplicateSubmission is returned when a player already answered the current question.
	ErrDuplicateSubmission = errors.New("answer already submitted for this question")
	// ErrQuestionClosed is returned when the question clock has already expired.
	ErrQuestionClosed = errors.New("question is closed for answers")
	// ErrGameFinished is returned when joining a room whose game has ended.
	ErrGameFinished = errors.New("game already finished")
	// ErrValidation wraps malformed input rejected at the boundary.
	ErrValidation = errors.New("validation failed")
	// ErrCorruptRoom reports a room whose invariants no longer hold.
	ErrCorruptRoom = errors.New("room state corrupted")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrNoCredits is returned when a user has no credits left of the requested kind.
	ErrNoCredits = errors.New("no credits left")
)
