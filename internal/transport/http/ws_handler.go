package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"smong-quiz-service/internal/app"
	"smong-quiz-service/internal/domain"
)

// WSHandler streams live leaderboards and accepts quiz actions over one socket.
type WSHandler struct {
	service  *app.QuizService
	upgrader websocket.Upgrader
	validate *validator.Validate
	logger   *slog.Logger
}

func NewWSHandler(service *app.QuizService, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		validate: validator.New(),
		logger:   logger,
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type wsStartPayload struct {
	UserID string `json:"userId" validate:"omitempty,max=128"`
}

type wsAnswerPayload struct {
	SessionID  string `json:"sessionId" validate:"required,max=128"`
	ChoiceID   string `json:"choiceId" validate:"required,max=128"`
	QuestionID string `json:"questionId" validate:"omitempty,max=128"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// ServeWS upgrades the request and pushes leaderboard snapshots for quizType
// until the client disconnects.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizType := r.URL.Query().Get("quizType")

	// Resolve the subscription before upgrading so bad input is a plain 400.
	updates, cancel, err := h.service.Subscribe(r.Context(), quizType)
	if err != nil {
		status, code := classify(err)
		writeMessage(w, status, code, err.Error())
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// Only the writer goroutine touches conn for writes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write error", "error", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "leaderboard", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if !enqueue(send, writerDone, h.dispatch(r, quizType, inbound)) {
			break
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func (h *WSHandler) dispatch(r *http.Request, quizType string, inbound inboundMessage) outboundMessage[any] {
	switch inbound.Type {
	case "start":
		var payload wsStartPayload
		if err := h.decodePayload(inbound.Payload, &payload, true); err != nil {
			return wsError(err)
		}
		started, err := h.service.Start(r.Context(), payload.UserID, quizType)
		if err != nil {
			return wsError(err)
		}
		return outboundMessage[any]{Type: "started", Payload: started}
	case "answer":
		var payload wsAnswerPayload
		if err := h.decodePayload(inbound.Payload, &payload, false); err != nil {
			return wsError(err)
		}
		result, err := h.service.SubmitAnswer(r.Context(), payload.SessionID, domain.AnswerSubmission{
			ChoiceID:   payload.ChoiceID,
			QuestionID: payload.QuestionID,
		})
		if err != nil {
			return wsError(err)
		}
		return outboundMessage[any]{Type: "answerResult", Payload: result}
	}
	return wsMessage(http.StatusBadRequest, "invalid_input", "unsupported message type")
}

// enqueue hands msg to the writer, reporting false once the writer has stopped.
func enqueue(send chan<- outboundMessage[any], writerDone <-chan struct{}, msg outboundMessage[any]) bool {
	select {
	case send <- msg:
		return true
	case <-writerDone:
		return false
	}
}

func (h *WSHandler) decodePayload(raw json.RawMessage, dst any, allowEmpty bool) error {
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, dst); err != nil {
			return domain.ErrInvalidInput
		}
	} else if !allowEmpty {
		return domain.ErrInvalidInput
	}
	if err := h.validate.Struct(dst); err != nil {
		return domain.ErrInvalidInput
	}
	return nil
}

func wsError(err error) outboundMessage[any] {
	status, code := classify(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		message = http.StatusText(status)
	}
	return wsMessage(status, code, message)
}

func wsMessage(status int, code, message string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: HTTPMessage{
		Type:    "error",
		Status:  strconv.Itoa(status),
		Code:    code,
		Message: message,
	}}
}
