package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/riata-onboarding/internal/clock"
	"github.com/ashureev/riata-onboarding/internal/milestone"
	"github.com/ashureev/riata-onboarding/internal/profile"
	"github.com/ashureev/riata-onboarding/internal/toollog"
	"github.com/ashureev/riata-onboarding/internal/transcript"
	"github.com/ashureev/riata-onboarding/internal/voice"
)

// Event types published for the browser.
const (
	EventState       = "state"
	EventTranscript  = "transcript"
	EventProfile     = "profile"
	EventMilestone   = "milestone"
	EventDuration    = "duration"
	EventStatus      = "status"
	EventCelebration = "celebration"
	EventReset       = "reset"
)

const (
	defaultEchoWindow  = 15 * time.Second
	defaultOpenTimeout = 30 * time.Second
	tickInterval       = time.Second
)

// Publisher receives session changes for delivery to connected clients.
// Publish must not block and must not call back into the session.
type Publisher interface {
	Publish(sessionKey, eventType string, payload any)
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, string, any) {}

// Options configures a Session. Zero values fall back to defaults.
type Options struct {
	Voice           voice.Options
	Persona         Persona
	Clock           clock.Clock
	Publisher       Publisher
	Logger          *slog.Logger
	EchoWindow      time.Duration
	OpenTimeout     time.Duration
	ToolLogCapacity int

	// OnConnected is called, with the session lock held, when the
	// platform confirms a call.
	OnConnected func(sessionKey, conversationID string)

	// OnEnded is called, with the session lock held, after a call ends.
	// It must not block.
	OnEnded func(Snapshot)
}

// Session is the single owner of one call's state.
type Session struct {
	mu sync.Mutex

	key     string
	collab  voice.Collaborator
	opts    Options
	persona Persona
	clock   clock.Clock
	pub     Publisher
	logger  *slog.Logger

	state          State
	attempt        uint64
	cancelStart    context.CancelFunc
	cancelled      bool
	closing        bool
	startedAt      time.Time
	conversationID string
	speaking       bool
	celebrating    bool
	lastActivity   time.Time

	profile    *profile.Store
	transcript *transcript.Transcript
	tools      *toollog.Log
	notifier   *milestone.Notifier
	echo       *transcript.EchoGuard

	ticker      *clock.Job
	celebration *clock.Job
}

// New returns an idle session talking to the platform through collab.
func New(key string, collab voice.Collaborator, opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Publisher == nil {
		opts.Publisher = nopPublisher{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.EchoWindow == 0 {
		opts.EchoWindow = defaultEchoWindow
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = defaultOpenTimeout
	}
	if opts.Voice.ConnectionType == "" {
		opts.Voice.ConnectionType = voice.ConnectionWebRTC
	}
	persona := opts.Persona.withDefaults()

	return &Session{
		key:          key,
		collab:       collab,
		opts:         opts,
		persona:      persona,
		clock:        opts.Clock,
		pub:          opts.Publisher,
		logger:       opts.Logger.With("session_key", key),
		state:        StateIdle,
		lastActivity: opts.Clock.Now(),
		profile:      profile.NewStore(),
		transcript:   transcript.New(opts.Clock),
		tools:        toollog.New(opts.Clock, opts.ToolLogCapacity),
		notifier:     milestone.NewNotifier(persona.MilestoneMessages),
		echo:         transcript.NewEchoGuard(opts.Clock, opts.EchoWindow),
	}
}

// Key returns the identifier the session is registered under.
func (s *Session) Key() string { return s.key }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastActivity returns when the session last changed.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Start requests the microphone, then asks the platform to open a call.
// It returns once the call is connected or the attempt has failed. A
// failure leaves the session idle with one system transcript entry
// describing it.
func (s *Session) Start(ctx context.Context, mic voice.Microphone) error {
	s.mu.Lock()
	switch s.state {
	case StateConnecting:
		s.mu.Unlock()
		return ErrStartInProgress
	case StateConnected:
		s.mu.Unlock()
		return ErrAlreadyActive
	}
	s.attempt++
	attempt := s.attempt
	startCtx, cancel := context.WithTimeout(ctx, s.opts.OpenTimeout)
	s.cancelStart = cancel
	s.cancelled = false
	s.conversationID = ""
	s.setStateLocked(StateConnecting)
	s.mu.Unlock()

	s.logger.Info("Starting voice session", "agent_id", s.opts.Voice.AgentID, "connection_type", s.opts.Voice.ConnectionType)
	err := s.open(startCtx, mic)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if attempt != s.attempt {
		return ErrStartCancelled
	}
	s.cancelStart = nil

	opened := err == nil
	if s.cancelled {
		err = ErrStartCancelled
	}
	if err != nil {
		confirmed := s.state == StateConnected
		if opened || confirmed {
			go s.closeAbandoned()
		}
		s.failStartLocked(err)
		if confirmed {
			// The confirmation already bound the conversation id.
			s.notifyEndedLocked()
		}
		s.conversationID = ""
		return err
	}
	s.markConnectedLocked(s.conversationID)
	return nil
}

func (s *Session) open(ctx context.Context, mic voice.Microphone) error {
	if mic != nil {
		if err := mic.Request(ctx); err != nil {
			return err
		}
	}
	if s.collab == nil {
		return errors.New("voice platform not configured")
	}
	return s.collab.Open(ctx, s.opts.Voice, s.Callbacks())
}

// closeAbandoned closes a call that connected after End cancelled it.
func (s *Session) closeAbandoned() {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.OpenTimeout)
	defer cancel()
	if err := s.collab.Close(ctx); err != nil && !errors.Is(err, voice.ErrNotConnected) {
		s.logger.Warn("Failed to close abandoned voice session", "error", err)
	}
}

func (s *Session) failStartLocked(err error) {
	s.logger.Error("Failed to start voice session", "error", err)
	s.stopTimersLocked()
	s.echo.Disarm()
	s.speaking = false
	reason := err.Error()
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		reason = "Timed out connecting to the voice agent"
	case reason == "":
		reason = "Failed to start conversation"
	}
	s.appendLocked(transcript.RoleSystem, s.persona.ErrorText(reason))
	s.setStateLocked(StateIdle)
}

// markConnectedLocked moves a connecting session to connected. It is
// idempotent: both the platform's confirmation callback and a successful
// Open return lead here.
func (s *Session) markConnectedLocked(conversationID string) {
	if conversationID != "" {
		s.conversationID = conversationID
	}
	if s.state != StateConnecting {
		return
	}
	s.startedAt = s.clock.Now()
	s.setStateLocked(StateConnected)
	s.appendLocked(transcript.RoleAssistant, s.persona.Greeting)
	s.echo.Arm(s.persona.Greeting)
	s.ticker = clock.Every(s.clock, tickInterval, s.tick)
	if s.opts.OnConnected != nil {
		s.opts.OnConnected(s.key, s.conversationID)
	}
	s.logger.Info("Voice session connected", "conversation_id", s.conversationID)
}

// End closes the call and appends a summary of what was learned. Ending a
// session that is still connecting cancels the attempt instead.
func (s *Session) End(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateConnecting:
		s.cancelled = true
		cancel := s.cancelStart
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		s.logger.Info("Voice session start cancelled")
		return nil
	case StateConnected:
	default:
		s.mu.Unlock()
		return ErrNotActive
	}
	if s.closing {
		s.mu.Unlock()
		return ErrEndInProgress
	}
	s.closing = true
	s.mu.Unlock()

	err := s.collab.Close(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closing = false
	if err != nil && !errors.Is(err, voice.ErrNotConnected) {
		s.logger.Error("Failed to end voice session", "error", err)
		s.appendLocked(transcript.RoleSystem, s.persona.ErrorText("Failed to end conversation: "+err.Error()))
		return err
	}

	s.stopTimersLocked()
	s.echo.Disarm()
	s.speaking = false
	s.appendLocked(transcript.RoleSystem, s.persona.Summary(s.profile.Record()))
	s.setStateLocked(StateEnded)
	s.notifyEndedLocked()
	s.logger.Info("Voice session ended", "score", s.profile.Score())
	return nil
}

// Shutdown releases timers and closes any open call without writing a
// summary. Used when the session is evicted.
func (s *Session) Shutdown(ctx context.Context) {
	s.mu.Lock()
	active := s.state.Active()
	if cancel := s.cancelStart; cancel != nil {
		s.cancelled = true
		cancel()
	}
	s.stopTimersLocked()
	s.mu.Unlock()

	if active && s.collab != nil {
		if err := s.collab.Close(ctx); err != nil && !errors.Is(err, voice.ErrNotConnected) {
			s.logger.Warn("Failed to close voice session on shutdown", "error", err)
		}
	}
}

// Reset discards the profile, transcript and update history. Only
// allowed while no call is open.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Active() {
		return ErrAlreadyActive
	}
	s.stopTimersLocked()
	s.celebration.Stop()
	s.celebration = nil
	s.profile.Reset()
	s.transcript.Reset()
	s.tools.Reset()
	s.echo.Disarm()
	s.startedAt = time.Time{}
	s.conversationID = ""
	s.celebrating = false
	s.speaking = false
	s.setStateLocked(StateIdle)
	s.pub.Publish(s.key, EventReset, s.snapshotLocked())
	return nil
}

// SendText forwards typed learner input to the agent and records it as a
// user turn.
func (s *Session) SendText(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	sender, ok := s.collab.(voice.TextSender)
	if !ok {
		return voice.ErrTextUnsupported
	}
	if s.State() != StateConnected {
		return ErrNotActive
	}
	if err := sender.SendText(ctx, text); err != nil {
		return fmt.Errorf("send text: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(transcript.RoleUser, text)
	return nil
}

// UpdateResult describes the effect of one profile update.
type UpdateResult struct {
	PreviousScore int                   `json:"previous_score"`
	Score         int                   `json:"score"`
	Milestones    []milestone.Milestone `json:"milestones,omitempty"`
	Event         toollog.Event         `json:"event"`
}

// ApplyUpdate records a structured update from the agent, merges it into
// the profile and emits any milestone it crosses.
func (s *Session) ApplyUpdate(fields map[string]any) UpdateResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyUpdateLocked(fields)
}

func (s *Session) applyUpdateLocked(fields map[string]any) UpdateResult {
	ev := s.tools.Record(fields)
	prev, next := s.profile.ApplyUpdate(fields)
	res := UpdateResult{PreviousScore: prev, Score: next, Event: ev}
	s.logger.Info("Profile updated", "keys", ev.Keys(), "previous_score", prev, "score", next)

	celebrate := milestone.DefaultCelebration
	for _, m := range s.notifier.Check(prev, next) {
		res.Milestones = append(res.Milestones, m)
		s.appendLocked(transcript.RoleSystem, m.Message)
		s.pub.Publish(s.key, EventMilestone, m)
		if m.Celebration > celebrate {
			celebrate = m.Celebration
		}
	}
	s.celebrateLocked(celebrate)
	s.touchLocked()
	s.pub.Publish(s.key, EventProfile, s.profileViewLocked())
	return res
}

// HandleToolCall dispatches a client tool invocation from the agent.
// Calls arriving when no call is open are refused.
func (s *Session) HandleToolCall(call voice.ToolCall) (string, error) {
	if !strings.EqualFold(call.Name, voice.ToolUpdateProfile) {
		s.logger.Warn("Unknown tool call", "tool", call.Name)
		return "", voice.ErrUnknownTool
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.Active() {
		s.logger.Warn("Dropping tool call outside an open call", "tool", call.Name, "state", s.state)
		return "", ErrNotActive
	}
	s.applyUpdateLocked(call.Parameters)
	return voice.ToolAck, nil
}

// Callbacks returns the platform callbacks bound to this session.
func (s *Session) Callbacks() voice.Callbacks {
	return voice.Callbacks{
		OnConnect:    s.handleConnect,
		OnDisconnect: s.handleDisconnect,
		OnMessage:    s.handleMessage,
		OnError:      s.handleError,
		OnStatus:     s.handleStatus,
		OnToolCall:   s.HandleToolCall,
	}
}

func (s *Session) handleConnect(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateConnecting:
		s.markConnectedLocked(conversationID)
	case StateConnected:
		// Open returned before the confirmation carried the id.
		if s.conversationID == "" && conversationID != "" {
			s.conversationID = conversationID
			if s.opts.OnConnected != nil {
				s.opts.OnConnected(s.key, conversationID)
			}
		}
	default:
		// A call cancelled by End was confirmed late. Hang it up.
		s.logger.Warn("Closing call confirmed after the session stopped", "state", s.state, "conversation_id", conversationID)
		go s.closeAbandoned()
	}
}

func (s *Session) handleDisconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected {
		return
	}
	s.logger.Info("Voice session disconnected by platform")
	s.stopTimersLocked()
	s.echo.Disarm()
	s.speaking = false
	s.setStateLocked(StateEnded)
	s.notifyEndedLocked()
}

func (s *Session) notifyEndedLocked() {
	if s.opts.OnEnded != nil {
		s.opts.OnEnded(s.snapshotLocked())
	}
}

func (s *Session) handleMessage(ev voice.TranscriptEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.Active() {
		s.logger.Warn("Dropping transcript event outside an open call", "source", ev.Source, "state", s.state)
		return
	}
	entry, ok := s.transcript.Ingest(s.echo, ev.Message, ev.Source)
	if !ok {
		return
	}
	s.touchLocked()
	s.pub.Publish(s.key, EventTranscript, entry)
}

func (s *Session) handleError(ev voice.ErrorEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Error("Voice session error", "error", ev.Text())
	s.appendLocked(transcript.RoleSystem, s.persona.ErrorText(ev.Text()))
}

func (s *Session) handleStatus(st voice.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.speaking == st.Speaking {
		return
	}
	s.speaking = st.Speaking
	s.pub.Publish(s.key, EventStatus, map[string]any{"speaking": s.speaking, "connected": st.Connected})
}

func (s *Session) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected {
		return
	}
	s.pub.Publish(s.key, EventDuration, map[string]string{"duration": s.durationLocked()})
}

func (s *Session) celebrateLocked(d time.Duration) {
	s.celebration.Stop()
	if !s.celebrating {
		s.celebrating = true
		s.pub.Publish(s.key, EventCelebration, map[string]bool{"celebrating": true})
	}
	var job *clock.Job
	job = clock.Once(s.clock, d, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.celebration != job {
			return
		}
		s.celebration = nil
		s.celebrating = false
		s.pub.Publish(s.key, EventCelebration, map[string]bool{"celebrating": false})
	})
	s.celebration = job
}

func (s *Session) stopTimersLocked() {
	s.ticker.Stop()
	s.ticker = nil
}

func (s *Session) appendLocked(role transcript.Role, content string) transcript.Entry {
	e := s.transcript.Append(role, content)
	s.touchLocked()
	s.pub.Publish(s.key, EventTranscript, e)
	return e
}

func (s *Session) setStateLocked(st State) {
	if s.state == st {
		return
	}
	s.logger.Debug("Session state change", "from", s.state, "to", st)
	s.state = st
	s.touchLocked()
	s.pub.Publish(s.key, EventState, map[string]any{
		"state":    st,
		"duration": s.durationLocked(),
	})
}

func (s *Session) touchLocked() {
	s.lastActivity = s.clock.Now()
}

func (s *Session) durationLocked() string {
	if s.state != StateConnected || s.startedAt.IsZero() {
		return FormatElapsed(0)
	}
	return FormatElapsed(s.clock.Now().Sub(s.startedAt))
}
