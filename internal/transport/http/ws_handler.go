package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
	"live-survey-service/internal/domain"
)

// Subscription topics accepted by /ws.
const (
	TopicEntity        = "entity"
	TopicActive        = "active"
	TopicVotes         = "votes"
	TopicScores        = "scores"
	TopicRankings      = "rankings"
	TopicWinner        = "winner"
	TopicContestWinner = "contestWinner"
)

var errUnknownTopic = errors.New("unknown topic")

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type choicePayload struct {
	QuestionID  string `json:"questionId"`
	OptionIndex int    `json:"optionIndex"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// stream adapts a typed subscription into an untyped one. The returned cancel
// stops the source and releases the forwarding goroutine.
func stream[T any](ch <-chan T, cancel func(), err error) (<-chan any, func(), error) {
	if err != nil {
		return nil, nil, err
	}
	out := make(chan any)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for v := range ch {
			select {
			case out <- v:
			case <-done:
				return
			}
		}
	}()
	stop := func() {
		select {
		case <-done:
		default:
			close(done)
		}
		cancel()
	}
	return out, stop, nil
}

func (h *Handler) subscribe(ctx context.Context, topic, id, qid, uid string) (<-chan any, func(), error) {
	switch topic {
	case TopicEntity:
		return stream(h.services.Surveys.Listen(ctx, id))
	case TopicActive:
		return stream(h.services.Surveys.ListenActiveQuestion(ctx, id))
	case TopicVotes:
		return stream(h.services.Votes.ListenToVotes(ctx, id, qid))
	case TopicScores:
		return stream(h.services.Contests.ListenScores(ctx, id))
	case TopicRankings:
		return stream(h.services.Contests.ListenRankings(ctx, id))
	case TopicWinner:
		if uid == "" {
			return nil, nil, domain.ErrInvalidUser
		}
		return stream(h.services.Notifications.ListenWinner(ctx, uid))
	case TopicContestWinner:
		if uid == "" {
			return nil, nil, domain.ErrInvalidUser
		}
		return stream(h.services.Notifications.ListenContestWinner(ctx, uid))
	}
	return nil, nil, errUnknownTopic
}

// ServeWS upgrades to a websocket, streams snapshots of the requested topic
// and accepts vote and response submissions from the client.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	topic := q.Get("topic")
	id := q.Get("id")
	qid := q.Get("questionId")
	uid, _ := userID(r, q.Get("userId"))
	if topic == "" {
		http.Error(w, "missing topic", http.StatusBadRequest)
		return
	}
	if id == "" && topic != TopicWinner && topic != TopicContestWinner {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	updates, cancel, err := h.subscribe(ctx, topic, id, qid, uid)
	if err != nil {
		status := statusFor(err)
		if errors.Is(err, errUnknownTopic) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write failed", zap.Error(err))
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
				case send <- outboundMessage{Type: topic, Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	reply := func(msg outboundMessage) {
		select {
		case send <- msg:
		case <-writerDone:
		}
	}
	fail := func(err error) {
		reply(outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error()}})
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		var payload choicePayload
		if inbound.Type == "vote" || inbound.Type == "response" {
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				fail(errors.New("invalid payload"))
				continue
			}
			if payload.QuestionID == "" {
				payload.QuestionID = qid
			}
			if uid == "" {
				fail(domain.ErrInvalidUser)
				continue
			}
		}
		switch inbound.Type {
		case "vote":
			if err := h.services.Votes.SubmitVote(ctx, id, payload.QuestionID, uid, payload.OptionIndex); err != nil {
				fail(err)
				continue
			}
			reply(outboundMessage{Type: "voteAccepted", Payload: payload})
		case "response":
			res, err := h.services.Contests.SubmitResponse(ctx, id, payload.QuestionID, uid, payload.OptionIndex)
			if err != nil {
				fail(err)
				continue
			}
			reply(outboundMessage{Type: "responseResult", Payload: res})
		default:
			fail(errors.New("unsupported message type"))
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
