package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Clark-Hu/kvartali/internal/auth"
	"github.com/Clark-Hu/kvartali/internal/domain"
	"github.com/Clark-Hu/kvartali/internal/fault"
	"github.com/Clark-Hu/kvartali/internal/metrics"
	"github.com/Clark-Hu/kvartali/internal/pipeline"
	"github.com/Clark-Hu/kvartali/internal/urlstate"
	"github.com/Clark-Hu/kvartali/internal/validation"
	"github.com/Clark-Hu/kvartali/internal/viewstate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

// Live message types sent by the server.
const (
	msgRender  = "render"
	msgOptions = "options"
	msgSubmit  = "submit"
	msgNotice  = "notice"
	msgSession = "session"
	msgError   = "error"
)

// liveCommand is one client instruction. Only the fields of its Type are read.
type liveCommand struct {
	Type      string          `json:"type"`
	City      string          `json:"city,omitempty"`
	Category  string          `json:"category,omitempty"`
	Selection string          `json:"selection,omitempty"`
	Sort      string          `json:"sort,omitempty"`
	MinVotes  int             `json:"minVotes,omitempty"`
	MinRating float64         `json:"minRating,omitempty"`
	Form      *viewstate.Form `json:"form,omitempty"`
}

type liveMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

type submitMessage struct {
	State    string         `json:"state"`
	Accepted bool           `json:"accepted"`
	Message  string         `json:"message"`
	VoteKey  string         `json:"voteKey,omitempty"`
	Form     viewstate.Form `json:"form"`
}

// liveSession is one websocket connection driving its own Coordinator.
type liveSession struct {
	conn   *websocket.Conn
	coord  *viewstate.Coordinator
	logger zerolog.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      s.checkOrigin,
	}
}

// checkOrigin admits clients without an Origin header and browsers from an allowed origin.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins() {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	s.logger.Warn().Str("origin", origin).Msg("websocket origin rejected")
	return false
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	category, err := resolveCategory(r, q.Get("category"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	token := q.Get("token")
	if token == "" {
		token = auth.BearerToken(r.Header.Get("Authorization"))
	}

	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	ls := &liveSession{
		conn:   conn,
		logger: s.logger.With().Str("session", "live").Logger(),
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
	session := auth.NewSession(s.issuer, token)
	ls.coord = viewstate.New(viewstate.Config{
		Store:   s.ratings,
		Auth:    session,
		Catalog: s.catalog,
		Logger:  s.logger,
		Now:     s.now,
		Initial: urlstate.Scope{City: q.Get("city"), Category: category, Selection: q.Get("neighborhood")},
		Callbacks: viewstate.Callbacks{
			Render:  func(rd viewstate.Render) { ls.enqueue(msgRender, rd) },
			Options: func(o viewstate.OptionsView) { ls.enqueue(msgOptions, o) },
			Notice:  func(n string) { ls.enqueue(msgNotice, n) },
		},
	})

	metrics.LiveSessions.Inc()
	defer metrics.LiveSessions.Dec()

	fault.Go(s.logger, "live-writer", ls.writePump)
	defer ls.shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := ls.coord.Start(ctx); err != nil {
		ls.logger.Error().Err(err).Msg("live session start failed")
		ls.enqueue(msgError, errorResponse{Code: "UNAVAILABLE", Message: domain.GenericRetryMessage})
		return
	}
	if id := session.Identity(); id.UserID != "" {
		ls.enqueue(msgSession, sessionResponse{UserID: id.UserID, Token: id.Token})
	}
	ls.readPump(ctx)
}

// enqueue encodes and queues a message. A client that cannot keep up is disconnected.
func (ls *liveSession) enqueue(kind string, data interface{}) {
	payload, err := json.Marshal(liveMessage{Type: kind, Data: data})
	if err != nil {
		ls.logger.Error().Err(err).Str("type", kind).Msg("encode live message")
		return
	}
	select {
	case <-ls.done:
	case ls.send <- payload:
	default:
		ls.logger.Warn().Str("type", kind).Msg("live client too slow, disconnecting")
		ls.shutdown()
	}
}

func (ls *liveSession) shutdown() {
	ls.closeOnce.Do(func() {
		close(ls.done)
		_ = ls.conn.Close()
	})
}

func (ls *liveSession) readPump(ctx context.Context) {
	defer ls.coord.Close()

	ls.conn.SetReadLimit(maxMessageSize)
	if err := ls.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	ls.conn.SetPongHandler(func(string) error {
		return ls.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ls.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ls.logger.Debug().Err(err).Msg("live connection closed")
			}
			return
		}
		var cmd liveCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			ls.enqueue(msgError, errorResponse{Code: "BAD_COMMAND", Message: "Malformed command"})
			continue
		}
		if err := ls.dispatch(ctx, cmd); err != nil {
			ls.enqueue(msgError, errorResponse{Code: "BAD_COMMAND", Message: err.Error()})
		}
	}
}

func (ls *liveSession) dispatch(ctx context.Context, cmd liveCommand) error {
	switch cmd.Type {
	case "setCity":
		return ls.coord.SetCity(cmd.City)
	case "setCategory":
		category, err := domain.ParseCategory(cmd.Category)
		if err != nil {
			return err
		}
		return ls.coord.SetCategory(category)
	case "setSelection":
		return ls.coord.SetSelection(cmd.Selection)
	case "setSort":
		key, err := pipeline.ParseSort(cmd.Sort)
		if err != nil {
			return err
		}
		return ls.coord.SetSort(key)
	case "setThresholds":
		return ls.coord.SetThresholds(cmd.MinVotes, cmd.MinRating)
	case "loadMore":
		return ls.coord.LoadMore()
	case "submit":
		if cmd.Form == nil {
			return errors.New("submit requires a form")
		}
		if err := validation.Struct(cmd.Form); err != nil {
			return err
		}
		res := ls.coord.Submit(ctx, *cmd.Form)
		ls.enqueue(msgSubmit, submitMessage{
			State:    res.State.String(),
			Accepted: res.Accepted(),
			Message:  res.Message,
			VoteKey:  res.VoteKey,
			Form:     res.Form,
		})
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd.Type)
	}
}

func (ls *liveSession) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ls.shutdown()
	}()

	for {
		select {
		case <-ls.done:
			return
		case payload := <-ls.send:
			if err := ls.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := ls.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				ls.logger.Debug().Err(err).Msg("live write failed")
				return
			}
		case <-ticker.C:
			if err := ls.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := ls.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
