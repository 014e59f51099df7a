package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/ragmesh/agent"
	"github.com/hupe1980/ragmesh/core"
	"github.com/hupe1980/ragmesh/logging"
)

// EmptyResponseError is returned by Post when the completion service ended
// the turn without any text.
type EmptyResponseError struct {
	SessionID string
}

func (e *EmptyResponseError) Error() string {
	return fmt.Sprintf("session %s: completion service returned an empty answer", e.SessionID)
}

// Options configure a Session.
type Options struct {
	// SystemPrompt seeds the history as its system turn when non-empty.
	SystemPrompt string
	// Greeting seeds an assistant turn after the system prompt when non-empty.
	Greeting string
	// OnPartial receives streamed answer text when the loop streams.
	OnPartial func(string)
	Logger    logging.Logger
}

// Session is one conversation. Post calls are serialized.
type Session struct {
	id     string
	loop   *agent.Loop
	opts   Options
	logger logging.Logger

	mu      sync.Mutex
	history *core.History
}

// New creates a session driven by loop. An empty id is replaced by a
// generated one.
func New(id string, loop *agent.Loop, optFns ...func(o *Options)) (*Session, error) {
	if loop == nil {
		return nil, fmt.Errorf("session: loop is required")
	}
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if id == "" {
		id = core.NewID()
	}

	var seed []core.Turn
	if opts.SystemPrompt != "" {
		seed = append(seed, core.NewSystemTurn(opts.SystemPrompt))
	}
	if opts.Greeting != "" {
		seed = append(seed, core.NewAssistantTurn(opts.Greeting))
	}
	history, err := core.NewHistory(seed...)
	if err != nil {
		return nil, err
	}

	return &Session{id: id, loop: loop, opts: opts, logger: opts.Logger, history: history}, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// History returns a copy of the committed turns.
func (s *Session) History() []core.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Turns()
}

// Len returns the number of committed turns.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Len()
}

// Post sends text as the next user turn and returns the final answer.
//
// All turns produced while answering are committed together. On any error
// the committed history is left unchanged and the session stays usable.
func (s *Session) Post(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.history.Clone()
	if err := working.Append(core.NewUserTurn(text)); err != nil {
		return "", err
	}

	res, err := s.loop.Run(ctx, working, func(o *agent.RunOptions) {
		o.SessionID = s.id
		o.OnPartial = s.opts.OnPartial
	})
	if err != nil {
		s.logger.Warn("session.post.failed", "session_id", s.id, "error", err.Error())
		return "", err
	}

	answer := res.Final.Text()
	if strings.TrimSpace(answer) == "" {
		s.logger.Warn("session.post.empty", "session_id", s.id)
		return "", &EmptyResponseError{SessionID: s.id}
	}

	committed := working.Len() - s.history.Len()
	s.history = working
	s.logger.Info("session.post.completed",
		"session_id", s.id,
		"turns", committed,
		"tool_calls", res.ToolCalls,
		"total_tokens", res.Usage.TotalTokens,
	)

	return answer, nil
}
