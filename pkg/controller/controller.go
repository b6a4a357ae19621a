package controller

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-go-golems/palaver/pkg/backend"
	"github.com/go-go-golems/palaver/pkg/conversation"
	"github.com/go-go-golems/palaver/pkg/helpers"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultFallbackReply is appended as the assistant's answer when a send fails.
const DefaultFallbackReply = "Sorry, I couldn't process that. Please try again."

var (
	ErrBackendNil          = errors.New("backend is nil")
	ErrConversationIDEmpty = errors.New("conversation id is empty")
	ErrEmptyMessage        = errors.New("message is empty")
	ErrSendInProgress      = errors.New("a message is already being sent")
	ErrClosed              = errors.New("controller is closed")
	ErrHealthUnsupported   = errors.New("backend has no health probe")
)

// Controller owns one conversation: it keeps the store in sync with the
// remote backend.
//
// It enforces:
//   - history is loaded at most once, and its failure leaves the thread empty
//   - only one send round trip is outstanding at a time; extra submits are dropped
//   - the user's message is in the thread before the reply, and the sending
//     flag always drops when the round trip settles
//   - the thread is only emptied once the backend confirmed the clear
type Controller struct {
	conversationID string
	backend        backend.Backend
	store          *conversation.Store

	fallbackReply string
	now           func() time.Time

	historyLoaded atomic.Bool
}

type Option func(*Controller)

func WithFallbackReply(reply string) Option {
	return func(c *Controller) {
		c.fallbackReply = reply
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

func New(b backend.Backend, conversationID string, options ...Option) (*Controller, error) {
	if b == nil {
		return nil, ErrBackendNil
	}
	if conversationID == "" {
		return nil, ErrConversationIDEmpty
	}

	ret := &Controller{
		conversationID: conversationID,
		backend:        b,
		store:          conversation.NewStore(conversationID),
		fallbackReply:  DefaultFallbackReply,
		now:            time.Now,
	}
	for _, o := range options {
		o(ret)
	}
	return ret, nil
}

func (c *Controller) ConversationID() string {
	return c.conversationID
}

// Store exposes the store for rendering. Adapters read snapshots and
// subscribe; they mutate only through the controller.
func (c *Controller) Store() *conversation.Store {
	return c.store
}

func (c *Controller) Snapshot() conversation.Snapshot {
	return c.store.Snapshot()
}

func (c *Controller) Subscribe(l conversation.Listener) func() {
	return c.store.Subscribe(l)
}

// LoadHistory fills the store from the backend. Only the first call does
// anything; it reports whether this call was that one. Failures are logged
// and leave the store empty.
func (c *Controller) LoadHistory(ctx context.Context) bool {
	if !c.historyLoaded.CompareAndSwap(false, true) {
		return false
	}

	logger := c.operationLogger("history")
	res := call(func() ([]conversation.Message, error) {
		return c.backend.History(ctx, c.conversationID)
	})

	msgs, err := res.Value()
	if err != nil {
		logger.Warn().Err(err).Str("kind", string(backend.Kind(err))).
			Msg("could not load history, starting with an empty conversation")
		return true
	}
	if msgs == nil {
		logger.Debug().Msg("history response has no message list")
		return true
	}

	msgs, dropped := conversation.KeepValid(msgs)
	if dropped > 0 {
		logger.Warn().Int("dropped", dropped).Msg("skipping history entries with an unknown role")
	}

	c.store.ReplaceAll(msgs)
	logger.Debug().Int("messages", len(msgs)).Msg("history loaded")
	return true
}

// SendMessage runs one send round trip. Local rejections return
// ErrEmptyMessage, ErrSendInProgress or ErrClosed without touching the store.
// Remote failures are not returned: they become the fallback reply.
func (c *Controller) SendMessage(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	if !c.store.BeginTurn(conversation.NewUserMessage(text, c.now())) {
		if c.store.Closed() {
			return ErrClosed
		}
		return ErrSendInProgress
	}
	defer c.store.SetSending(false)

	logger := c.operationLogger("send")
	res := call(func() (string, error) {
		return c.backend.Send(ctx, c.conversationID, text)
	})

	reply := helpers.Fold(res,
		func(reply string) string {
			logger.Debug().Int("reply_length", len(reply)).Msg("reply received")
			return reply
		},
		func(err error) string {
			logger.Warn().Err(err).Str("kind", string(backend.Kind(err))).Msg("send failed, answering with fallback")
			return c.fallbackReply
		},
	)

	// after Close this is discarded by the store
	c.store.Append(conversation.NewAssistantMessage(reply, c.now()))
	return nil
}

// ClearConversation asks the backend to drop the conversation and empties the
// store only if it agreed. On failure the store keeps its messages and the
// error is returned.
func (c *Controller) ClearConversation(ctx context.Context) error {
	if c.store.Closed() {
		return ErrClosed
	}

	logger := c.operationLogger("clear")
	res := call(func() (helpers.Nothing, error) {
		return helpers.Nothing{}, c.backend.Clear(ctx, c.conversationID)
	})
	if err := res.Error(); err != nil {
		logger.Warn().Err(err).Str("kind", string(backend.Kind(err))).Msg("clear failed, keeping conversation")
		return errors.Wrap(err, "clear conversation")
	}

	c.store.Clear()
	logger.Debug().Msg("conversation cleared")
	return nil
}

func (c *Controller) SetDraft(text string) {
	c.store.SetDraft(text)
}

func (c *Controller) Health(ctx context.Context) (*backend.HealthStatus, error) {
	hc, ok := c.backend.(backend.HealthChecker)
	if !ok {
		return nil, ErrHealthUnsupported
	}
	return hc.Health(ctx)
}

// Close detaches the controller from its store. Round trips still in flight
// settle into nothing.
func (c *Controller) Close() {
	c.store.Close()
}

func (c *Controller) operationLogger(op string) zerolog.Logger {
	return log.With().
		Str("conversation_id", c.conversationID).
		Str("operation", op).
		Str("operation_id", uuid.NewString()).
		Logger()
}

// call runs a remote operation. A panic settles as an error result.
func call[T any](f func() (T, error)) (res helpers.Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			res = helpers.NewErrorResult[T](errors.Errorf("backend panicked: %v", r))
		}
	}()
	v, err := f()
	return helpers.NewResult(v, err)
}
