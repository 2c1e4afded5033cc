package http

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"github.com/gorilla/websocket"

	"skill-assessment-service/internal/app"
	"skill-assessment-service/internal/domain"
	"skill-assessment-service/internal/logger"
)

// WSHandler runs one quiz attempt over a websocket: questions out, answers in, result out.
type WSHandler struct {
	service  *app.AssessmentService
	log      *logger.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.AssessmentService, log *logger.Logger) *WSHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &WSHandler{
		service: service,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID     string `json:"questionId"`
	SelectedOption string `json:"selectedOption"`
}

type submitPayload struct {
	Answers []domain.AnswerSubmission `json:"answers"`
}

type answerRecorded struct {
	QuestionID string `json:"questionId"`
	Answered   int    `json:"answered"`
	Total      int    `json:"total"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// ServeWS upgrades the request and drives the attempt named by the path.
// A completed attempt gets its result and the connection is closed.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	attemptID := r.PathValue("attemptID")
	attempt, err := h.service.GetAttempt(r.Context(), attemptID)
	if err != nil {
		writeJSON(w, statusFor(err), errorPayload{Message: err.Error()})
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "attempt_id", attemptID, "error", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	writerDone := make(chan struct{})
	out := outbox{send: send, done: writerDone}

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write error", "attempt_id", attemptID, "error", err)
				return
			}
		}
	}()
	defer func() {
		close(send)
		<-writerDone
	}()

	if attempt.Status == domain.AttemptCompleted {
		out.push(outboundMessage[any]{Type: "result", Payload: newAttemptView(attempt)})
		return
	}
	if !out.push(outboundMessage[any]{Type: "questions", Payload: newAttemptView(attempt)}) {
		return
	}

	inAttempt := make(map[string]struct{}, len(attempt.Questions))
	for _, q := range attempt.Questions {
		inAttempt[q.ID] = struct{}{}
	}
	answers := make(map[string]string, len(attempt.Questions))

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				if !out.push(errorMessage("invalid answer payload")) {
					return
				}
				continue
			}
			if _, ok := inAttempt[payload.QuestionID]; !ok {
				if !out.push(errorMessage(domain.ErrUnknownQuestion.Error() + ": " + payload.QuestionID)) {
					return
				}
				continue
			}
			opt := strings.ToUpper(strings.TrimSpace(payload.SelectedOption))
			if !domain.IsOptionKey(opt) {
				if !out.push(errorMessage(domain.ErrInvalidOption.Error() + ": " + payload.SelectedOption)) {
					return
				}
				continue
			}
			answers[payload.QuestionID] = opt
			recorded := outboundMessage[any]{Type: "answerRecorded", Payload: answerRecorded{
				QuestionID: payload.QuestionID,
				Answered:   len(answers),
				Total:      len(attempt.Questions),
			}}
			if !out.push(recorded) {
				return
			}
		case "submit":
			var payload submitPayload
			if len(inbound.Payload) > 0 {
				if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
					if !out.push(errorMessage("invalid submit payload")) {
						return
					}
					continue
				}
			}
			for _, a := range payload.Answers {
				answers[a.QuestionID] = a.SelectedOption
			}
			completed, err := h.service.SubmitAttempt(r.Context(), attemptID, collectAnswers(answers))
			if err != nil {
				if !out.push(errorMessage(err.Error())) {
					return
				}
				continue
			}
			out.push(outboundMessage[any]{Type: "result", Payload: newAttemptView(completed)})
			return
		default:
			if !out.push(errorMessage("unsupported message type")) {
				return
			}
		}
	}
}

// outbox hands messages to the connection's writer goroutine.
type outbox struct {
	send chan<- outboundMessage[any]
	done <-chan struct{}
}

// push queues msg, or reports false once the writer has stopped.
func (o outbox) push(msg outboundMessage[any]) bool {
	select {
	case o.send <- msg:
		return true
	case <-o.done:
		return false
	}
}

func errorMessage(msg string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg}}
}

func collectAnswers(answers map[string]string) []domain.AnswerSubmission {
	out := make([]domain.AnswerSubmission, 0, len(answers))
	for id, opt := range answers {
		out = append(out, domain.AnswerSubmission{QuestionID: id, SelectedOption: opt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out
}
