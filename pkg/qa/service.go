package qa

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/fmulab/graphqa/internal/util"
	"github.com/fmulab/graphqa/pkg/ai"
	"github.com/fmulab/graphqa/pkg/chat"
	"github.com/fmulab/graphqa/pkg/common"
	"github.com/fmulab/graphqa/pkg/logger"
	"github.com/fmulab/graphqa/pkg/query"
	"github.com/fmulab/graphqa/pkg/store"
)

// DocumentGraph serves document listings and graph views.
type DocumentGraph interface {
	GetCompletedDocuments(ctx context.Context) []string
	GetGraphForDocuments(ctx context.Context, documentNames any, chunkLimit int) common.Graph
}

// Retriever assembles context blocks for a question.
type Retriever interface {
	Retrieve(ctx context.Context, req query.Request) (query.Result, error)
}

// Generator answers an assembled prompt. Failures are *ai.GenerationError.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ChatRequest is one question in a conversation.
type ChatRequest struct {
	Message   string
	Documents []string
	Mode      string
	SessionID string
}

// ChatResponse is always populated, also when the request failed.
type ChatResponse struct {
	Message   string   `json:"message"`
	Sources   []string `json:"sources"`
	SessionID string   `json:"session_id"`
}

// ModeInfo describes a retrieval mode for clients.
type ModeInfo struct {
	Mode        query.Mode `json:"mode"`
	Description string     `json:"description"`
	Default     bool       `json:"default"`
}

// Service is the question answering pipeline. It is built once at startup
// and shared by all requests.
type Service struct {
	graph       DocumentGraph
	retriever   Retriever
	generator   Generator
	tracker     chat.Tracker
	transcripts store.TranscriptStorage
	selector    *query.Selector
	defaultMode query.Mode

	newSessionID func() string
	now          func() time.Time
}

type ServiceOption func(*Service)

// WithTranscripts mirrors every recorded turn into durable storage.
func WithTranscripts(t store.TranscriptStorage) ServiceOption {
	return func(s *Service) {
		s.transcripts = t
	}
}

func WithSelector(sel *query.Selector) ServiceOption {
	return func(s *Service) {
		s.selector = sel
	}
}

// WithDefaultMode sets the mode used when a request names none.
func WithDefaultMode(m query.Mode) ServiceOption {
	return func(s *Service) {
		if m != "" {
			s.defaultMode = m
		}
	}
}

func NewService(
	graph DocumentGraph,
	retriever Retriever,
	generator Generator,
	tracker chat.Tracker,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		graph:        graph,
		retriever:    retriever,
		generator:    generator,
		tracker:      tracker,
		selector:     query.NewSelector(query.DefaultTopK),
		defaultMode:  query.DefaultMode,
		newSessionID: util.NewSessionID,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s
}

// ResolveMode returns the plan for mode, substituting the default mode for
// an empty key.
func (s *Service) ResolveMode(mode string) (query.Plan, error) {
	mode = strings.TrimSpace(mode)
	if mode == "" {
		mode = string(s.defaultMode)
	}
	return s.selector.Resolve(mode)
}

// GetChatResponse answers a question within a session. It never returns an
// error: failures become the answer text, with no sources. The user turn
// and the answer are recorded together.
func (s *Service) GetChatResponse(ctx context.Context, req ChatRequest) ChatResponse {
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = s.newSessionID()
	}
	userTurn := common.ChatMessage{Role: common.RoleUser, Content: req.Message, CreatedAt: s.now()}

	answer, sources, err := s.safeAnswer(ctx, sessionID, req)
	if err != nil {
		logger.Error("Error in QA pipeline", "session_id", sessionID, "err", err)
		return s.fail(ctx, sessionID, userTurn, err)
	}

	s.record(ctx, sessionID, userTurn, common.ChatMessage{
		Role:      common.RoleAssistant,
		Content:   answer,
		Sources:   sources,
		CreatedAt: s.now(),
	})
	return ChatResponse{Message: answer, Sources: sources, SessionID: sessionID}
}

// safeAnswer runs answer and turns a panic into an error. Nothing has been
// recorded at that point, so the caller records exactly one pair.
func (s *Service) safeAnswer(ctx context.Context, sessionID string, req ChatRequest) (answer string, sources []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("QA pipeline panicked", "session_id", sessionID, "panic", r, "stack", string(debug.Stack()))
			answer, sources, err = "", nil, fmt.Errorf("%v", r)
		}
	}()
	return s.answer(ctx, sessionID, req)
}

func (s *Service) answer(ctx context.Context, sessionID string, req ChatRequest) (string, []string, error) {
	plan, err := s.ResolveMode(req.Mode)
	if err != nil {
		return "", nil, err
	}

	trace := query.NewQueryTrace()
	res, err := s.retriever.Retrieve(ctx, query.Request{
		Question:      req.Message,
		DocumentNames: req.Documents,
		Plan:          plan,
		Tracer:        trace,
	})
	if err != nil {
		return "", nil, err
	}
	logger.Debug("Retrieval finished",
		"session_id", sessionID,
		"mode", plan.Mode,
		"blocks", len(res.Blocks),
		"degraded", res.Degraded,
		"trace", trace.Snapshot(),
	)

	if len(res.Blocks) == 0 {
		return ai.NoInformationAnswer, []string{}, nil
	}

	prompt := query.BuildPrompt(query.FormatContext(res.Blocks), req.Message)
	sources := query.Sources(res.Blocks)

	text, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", nil, ctxErr
		}
		var gerr *ai.GenerationError
		if !errors.As(err, &gerr) {
			gerr = &ai.GenerationError{Err: err}
		}
		return gerr.UserMessage(), sources, nil
	}
	return text, sources, nil
}

func (s *Service) fail(ctx context.Context, sessionID string, userTurn common.ChatMessage, err error) ChatResponse {
	msg := fmt.Sprintf(ai.ErrorAnswerFormat, err)
	s.record(ctx, sessionID, userTurn, common.ChatMessage{
		Role:      common.RoleAssistant,
		Content:   msg,
		CreatedAt: s.now(),
	})
	return ChatResponse{Message: msg, Sources: []string{}, SessionID: sessionID}
}

// record stores a user turn and its answer. It runs detached from ctx so a
// cancelled request still leaves a complete pair behind.
//
// Recording is best effort: a panicking tracker or store is logged and the
// response stands, so turns are never recorded twice.
func (s *Service) record(ctx context.Context, sessionID string, turns ...common.ChatMessage) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Recording chat turns panicked", "session_id", sessionID, "panic", r)
		}
	}()

	ctx = context.WithoutCancel(ctx)
	if err := s.tracker.Append(ctx, sessionID, turns...); err != nil {
		logger.Error("Failed to record chat turns", "session_id", sessionID, "err", err)
	}
	if s.transcripts == nil {
		return
	}
	if err := s.transcripts.SaveMessages(ctx, sessionID, turns...); err != nil {
		logger.Warn("Failed to persist chat transcript", "session_id", sessionID, "err", err)
	}
}

// History returns the turns of a session. Sessions no longer held by the
// tracker are read from transcript storage when configured.
func (s *Service) History(ctx context.Context, sessionID string) ([]common.ChatMessage, error) {
	turns, err := s.tracker.History(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(turns) > 0 || s.transcripts == nil {
		return turns, nil
	}
	return s.transcripts.GetMessages(ctx, sessionID)
}

// ClearSession deletes the messages of a session and keeps the session.
func (s *Service) ClearSession(ctx context.Context, sessionID string) error {
	if err := s.tracker.Clear(ctx, sessionID); err != nil {
		return err
	}
	if s.transcripts == nil {
		return nil
	}
	return s.transcripts.ClearMessages(ctx, sessionID)
}

// Documents lists the documents available for questions.
func (s *Service) Documents(ctx context.Context) []string {
	return s.graph.GetCompletedDocuments(ctx)
}

// Graph returns the visualisation graph for documentNames.
func (s *Service) Graph(ctx context.Context, documentNames any, chunkLimit int) common.Graph {
	return s.graph.GetGraphForDocuments(ctx, documentNames, chunkLimit)
}

// Modes lists the supported retrieval modes.
func (s *Service) Modes() []ModeInfo {
	modes := query.Modes()
	out := make([]ModeInfo, 0, len(modes))
	for _, m := range modes {
		plan, err := s.selector.Resolve(string(m))
		if err != nil {
			continue
		}
		out = append(out, ModeInfo{Mode: m, Description: plan.Description, Default: m == s.defaultMode})
	}
	return out
}

// DefaultMode is the mode used when a request names none.
func (s *Service) DefaultMode() query.Mode {
	return s.defaultMode
}
