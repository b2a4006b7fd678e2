// Package gateway exposes interview sessions over a WebSocket. The browser
// opens one socket per interview: text frames carry JSON control messages
// and server events, binary frames carry audio. Candidate microphone audio
// arrives as Opus packets and is decoded server-side; coach speech goes back
// as raw 16-bit PCM.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/voxprep/voxprep/internal/feedback"
	"github.com/voxprep/voxprep/internal/interview"
	"github.com/voxprep/voxprep/internal/observe"
	"github.com/voxprep/voxprep/pkg/audio"
)

// Session is one live interview as the gateway sees it. The session manager
// provides the implementation.
type Session interface {
	// Start begins the interview. It returns once the machine is running.
	Start(ctx context.Context) error
	Pause() error
	Resume() error
	Skip() error
	Abort() error

	// PushAudio feeds one decoded candidate PCM frame to the recognizer.
	PushAudio(frame audio.Frame) error

	// Events streams machine events until the session ends.
	Events() <-chan interview.Event

	// Report delivers the feedback report after the interview reaches a
	// terminal state. The channel closes without a value when no report is
	// produced.
	Report() <-chan *feedback.Report

	// Close releases the session. Closing a running session aborts it.
	Close()
}

// Factory builds a session for one connection. audioSink receives coach PCM
// and must not block.
type Factory interface {
	NewSession(ctx context.Context, req StartRequest, audioSink func(pcm []byte)) (Session, error)
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the handler logger.
func WithLogger(log *slog.Logger) Option {
	return func(h *Handler) { h.log = log }
}

// WithMetrics sets the metrics instance. Defaults to the package-level
// instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithOpusChannels sets the channel count of incoming Opus audio. Browser
// microphone capture is mono, the default.
func WithOpusChannels(n int) Option {
	return func(h *Handler) { h.opusChannels = n }
}

// Handler upgrades HTTP requests to interview WebSocket connections.
type Handler struct {
	factory      Factory
	metrics      *observe.Metrics
	log          *slog.Logger
	opusChannels int
}

// NewHandler creates a gateway handler backed by factory.
func NewHandler(factory Factory, opts ...Option) (*Handler, error) {
	if factory == nil {
		return nil, fmt.Errorf("gateway: session factory must not be nil")
	}
	h := &Handler{
		factory:      factory,
		log:          slog.Default(),
		opusChannels: 1,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.metrics == nil {
		h.metrics = observe.DefaultMetrics()
	}
	return h, nil
}

// ServeHTTP accepts the WebSocket and runs the connection until the client
// disconnects or the interview reaches a terminal state.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Warn("websocket accept failed", "error", err)
		return
	}

	ctx := r.Context()
	h.metrics.ConnectedClients.Add(ctx, 1)
	defer h.metrics.ConnectedClients.Add(context.WithoutCancel(ctx), -1)

	c := &connection{
		conn:    conn,
		handler: h,
		log:     h.log.With("remote", r.RemoteAddr),
	}
	c.run(ctx)
}

// connection owns one socket and at most one session.
type connection struct {
	conn    *websocket.Conn
	handler *Handler
	log     *slog.Logger

	// writeMu serializes frame writes; the coach audio sink and the event
	// pump run on different goroutines.
	writeMu sync.Mutex

	session Session
	decoder *audio.OpusDecoder
	pumpWG  sync.WaitGroup
}

func (c *connection) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer func() {
		if c.session != nil {
			c.session.Close()
		}
		cancel()
		c.pumpWG.Wait()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			// Normal closure and client disconnects both land here.
			c.log.Debug("connection closed", "error", err)
			return
		}

		switch typ {
		case websocket.MessageBinary:
			c.handleAudio(data)
		case websocket.MessageText:
			if done := c.handleControl(ctx, data); done {
				return
			}
		}
	}
}

// handleAudio decodes one Opus packet and forwards it to the session.
// Audio before start (or after close) is dropped.
func (c *connection) handleAudio(packet []byte) {
	if c.session == nil || c.decoder == nil {
		return
	}
	frame, err := c.decoder.Decode(packet)
	if err != nil {
		c.log.Debug("dropping undecodable audio packet", "error", err)
		return
	}
	if err := c.session.PushAudio(frame); err != nil {
		c.log.Debug("push audio", "error", err)
	}
}

// handleControl dispatches one JSON control message. It returns true when
// the connection should close.
func (c *connection) handleControl(ctx context.Context, data []byte) bool {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.writeJSON(ctx, errorMessage("malformed control message"))
		return false
	}

	switch msg.Type {
	case MsgStart:
		c.startSession(ctx, msg.StartRequest)
	case MsgPause:
		c.reportErr(ctx, c.requireSession(func(s Session) error { return s.Pause() }))
	case MsgResume:
		c.reportErr(ctx, c.requireSession(func(s Session) error { return s.Resume() }))
	case MsgSkip:
		c.reportErr(ctx, c.requireSession(func(s Session) error { return s.Skip() }))
	case MsgAbort:
		c.reportErr(ctx, c.requireSession(func(s Session) error { return s.Abort() }))
	default:
		c.writeJSON(ctx, errorMessage(fmt.Sprintf("unknown message type %q", msg.Type)))
	}
	return false
}

func (c *connection) startSession(ctx context.Context, req StartRequest) {
	if c.session != nil {
		c.writeJSON(ctx, errorMessage("session already started"))
		return
	}

	decoder, err := audio.NewOpusDecoder(c.handler.opusChannels)
	if err != nil {
		c.writeJSON(ctx, errorMessage("audio decoder unavailable"))
		return
	}

	sink := func(pcm []byte) {
		c.writeBinary(ctx, pcm)
	}
	session, err := c.handler.factory.NewSession(ctx, req, sink)
	if err != nil {
		c.log.Error("create session", "error", err)
		c.writeJSON(ctx, errorMessage("could not create session"))
		return
	}
	c.session = session
	c.decoder = decoder

	c.pumpWG.Add(1)
	go c.pumpEvents(ctx, session)

	if err := session.Start(ctx); err != nil {
		c.log.Error("start session", "error", err)
		c.writeJSON(ctx, errorMessage("could not start session"))
	}
}

// pumpEvents forwards machine events to the client until the event channel
// closes, then waits for the feedback report. The event channel closing
// means the interview reached a terminal state; the report arrives later
// because it involves an LLM round trip.
func (c *connection) pumpEvents(ctx context.Context, session Session) {
	defer c.pumpWG.Done()
	events := session.Events()
	for events != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			c.writeJSON(ctx, eventMessage(ev))
		case <-ctx.Done():
			return
		}
	}

	select {
	case report, ok := <-session.Report():
		if ok && report != nil {
			c.writeJSON(ctx, serverMessage{Type: MsgReport, Report: report})
		}
	case <-ctx.Done():
	}
}

func (c *connection) requireSession(fn func(Session) error) error {
	if c.session == nil {
		return fmt.Errorf("gateway: no session started")
	}
	return fn(c.session)
}

func (c *connection) reportErr(ctx context.Context, err error) {
	if err == nil {
		return
	}
	c.writeJSON(ctx, errorMessage(err.Error()))
}

func (c *connection) writeJSON(ctx context.Context, msg serverMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		c.log.Debug("write text frame", "error", err)
	}
}

func (c *connection) writeBinary(ctx context.Context, data []byte) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.Write(ctx, websocket.MessageBinary, data); err != nil {
		c.log.Debug("write binary frame", "error", err)
	}
}
