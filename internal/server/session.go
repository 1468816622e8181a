package server

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/marginalia/pkg/annotate"
	"github.com/matzehuels/marginalia/pkg/dom"
	"github.com/matzehuels/marginalia/pkg/engine"
	"github.com/matzehuels/marginalia/pkg/errors"
	"github.com/matzehuels/marginalia/pkg/schedule"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client message types.
const (
	MsgResize  = "resize"
	MsgImage   = "image"
	MsgDiagram = "diagram"
)

// Server message types.
const (
	MsgLayout = "layout"
	MsgError  = "error"
)

// ClientMessage is a browser event. Which fields are set depends on Type.
type ClientMessage struct {
	Type   string  `json:"type"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
	Src    string  `json:"src,omitempty"`
	OK     bool    `json:"ok,omitempty"`
	ID     string  `json:"id,omitempty"`
}

// LayoutMessage is sent after every pass. Annotations holds the rail
// placements; Inline holds the notes folded into the text.
type LayoutMessage struct {
	Type        string        `json:"type"`
	Session     string        `json:"session"`
	Seq         int           `json:"seq"`
	Mode        annotate.Mode `json:"mode"`
	Width       float64       `json:"width"`
	Skipped     bool          `json:"skipped,omitempty"`
	Annotations []engine.Note `json:"annotations"`
	Inline      []engine.Note `json:"inline"`
}

// ErrorMessage reports a rejected client message.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// session is one browser tab with its own engine.
type session struct {
	id     uuid.UUID
	slug   string
	conn   *websocket.Conn
	engine *engine.Engine
	send   chan []byte
	cancel context.CancelFunc
	once   sync.Once
}

func newLayoutMessage(id uuid.UUID, res engine.Result) LayoutMessage {
	msg := LayoutMessage{
		Type:        MsgLayout,
		Session:     id.String(),
		Seq:         res.Seq,
		Mode:        res.Mode,
		Width:       res.Width,
		Skipped:     res.Skipped,
		Annotations: []engine.Note{},
		Inline:      []engine.Note{},
	}
	if res.Mode == annotate.ModeInline {
		msg.Inline = append(msg.Inline, res.Notes...)
	} else {
		msg.Annotations = append(msg.Annotations, res.Notes...)
	}
	return msg
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if err := errors.ValidateSlug(slug); err != nil {
		writeError(w, err)
		return
	}
	doc, err := dom.ReadFile(s.postPath(slug), s.cfg.Selectors)
	if err != nil {
		writeError(w, err)
		return
	}
	eng, err := engine.New(doc, engine.Options{
		Layout: s.cfg.Layout,
		Font:   s.cfg.Font,
		Width:  s.cfg.Width,
		Frames: schedule.NewTickerFrames(s.cfg.FrameInterval),
		Logger: s.logger,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	defer eng.Close()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		s.logger.Debug("websocket upgrade failed", "err", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	sess := &session{
		id:     uuid.New(),
		slug:   slug,
		conn:   conn,
		engine: eng,
		send:   make(chan []byte, 4),
		cancel: cancel,
	}
	s.addSession(sess)
	defer s.removeSession(sess)
	defer sess.close()

	eng.OnPass(func(res engine.Result, _ *dom.Document) {
		data, err := json.Marshal(newLayoutMessage(sess.id, res))
		if err != nil {
			s.logger.Error("encode layout", "err", err)
			return
		}
		sess.push(data)
	})

	g, gctx := errgroup.WithContext(ctx)
	errc := eng.Start(gctx)
	g.Go(func() error {
		<-errc
		return nil
	})
	g.Go(func() error { return sess.writeLoop(gctx) })
	g.Go(func() error {
		err := sess.readLoop(s)
		cancel()
		return err
	})
	if s.cfg.Images != nil {
		g.Go(func() error {
			srcs, err := eng.PendingImages(gctx)
			if err != nil || len(srcs) == 0 {
				return nil
			}
			loader := *s.cfg.Images
			loader.BaseDir = s.cfg.Dir
			if err := loader.Feed(gctx, srcs, eng); err != nil {
				s.logger.Debug("server side images", "session", sess.id, "err", err)
			}
			return nil
		})
	}
	// Close the connection on cancellation so the read loop returns.
	g.Go(func() error {
		<-gctx.Done()
		sess.close()
		return nil
	})

	if err := g.Wait(); err != nil {
		s.logger.Debug("session ended", "session", sess.id, "err", err)
	}
}

// push queues a layout for the writer. Only the newest undelivered layout
// is kept.
func (ss *session) push(data []byte) {
	for {
		select {
		case ss.send <- data:
			return
		default:
		}
		select {
		case <-ss.send:
		default:
		}
	}
}

func (ss *session) close() {
	ss.once.Do(func() {
		ss.cancel()
		_ = ss.conn.Close()
	})
}

func (ss *session) readLoop(s *Server) error {
	ss.conn.SetReadLimit(maxMessageSize)
	_ = ss.conn.SetReadDeadline(time.Now().Add(pongWait))
	ss.conn.SetPongHandler(func(string) error {
		return ss.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ss.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket closed", "session", ss.id, "err", err)
			}
			return nil
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			err = errors.Wrap(errors.ErrCodeInvalidInput, err, "malformed message")
			s.logger.Debug("rejected message", "session", ss.id, "err", err)
			ss.reject(err)
			continue
		}
		if err := ss.handle(msg); err != nil {
			s.logger.Debug("rejected message", "session", ss.id, "type", msg.Type, "err", err)
			ss.reject(err)
		}
	}
}

func (ss *session) reject(err error) {
	data, _ := json.Marshal(ErrorMessage{Type: MsgError, Message: errors.UserMessage(err)})
	ss.push(data)
}

func (ss *session) handle(msg ClientMessage) error {
	switch msg.Type {
	case MsgResize:
		if msg.Width <= 0 || math.IsInf(msg.Width, 0) || math.IsNaN(msg.Width) {
			return errors.New(errors.ErrCodeInvalidInput, "invalid width %v", msg.Width)
		}
		ss.engine.Resize(msg.Width)
	case MsgImage:
		if msg.Src == "" {
			return errors.New(errors.ErrCodeInvalidInput, "image message without src")
		}
		ss.engine.ImageResolved(msg.Src, int(math.Round(msg.Width)), int(math.Round(msg.Height)), msg.OK)
	case MsgDiagram:
		ss.engine.DiagramRendered(msg.ID, msg.Height)
	default:
		return errors.New(errors.ErrCodeInvalidInput, "unknown message type %q", msg.Type)
	}
	return nil
}

func (ss *session) writeLoop(ctx context.Context) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = ss.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = ss.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		case data := <-ss.send:
			_ = ss.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ss.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return err
			}
		case <-ticker.C:
			_ = ss.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ss.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}
