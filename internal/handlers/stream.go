package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"

	"safetywatch/internal/authz"
	"safetywatch/internal/middleware"
	"safetywatch/internal/realtime"
)

const streamWriteTimeout = 5 * time.Second

// StreamWorker upgrades to a websocket and relays the worker's live readings
// and alerts until either side goes away.
func (h HandlerSet) StreamWorker(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	worker, err := h.workers.Authorize(c.Request.Context(), caller, authz.ActionViewWorker, c.Param("id"))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	sub, err := h.hub.Subscribe(ctx, worker.ID)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	defer sub.Close()

	// The server write timeout is meant for ordinary requests, not streams.
	_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(c.Writer, c.Request, acceptOptions(h.cfg.AllowCORSOrigins))
	if err != nil {
		h.log.Debug().Err(err).Str("worker_id", worker.ID).Msg("websocket upgrade failed")
		return
	}
	defer conn.CloseNow()

	log := h.log.With().Str("worker_id", worker.ID).Str("principal_id", caller.PrincipalID).Logger()
	log.Debug().Msg("stream opened")

	ready := realtime.Event{Type: realtime.EventReady, WorkerID: worker.ID, At: time.Now().UTC()}
	if err := sendEvent(ctx, conn, ready); err != nil {
		log.Debug().Err(err).Msg("stream ready write failed")
		_ = conn.Close(websocket.StatusInternalError, "write failed")
		return
	}

	// Clients never send anything useful; reading only notices when they leave.
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case <-readErr:
			log.Debug().Msg("stream closed by client")
			return
		case ev, ok := <-sub.Events():
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "stream ended")
				return
			}
			if err := sendEvent(ctx, conn, ev); err != nil {
				log.Debug().Err(err).Str("event", string(ev.Type)).Msg("stream write failed")
				_ = conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

func sendEvent(ctx context.Context, conn *websocket.Conn, ev realtime.Event) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, ev)
}

// acceptOptions mirrors the CORS setting: no configured origins means any
// origin is accepted.
func acceptOptions(origins []string) *websocket.AcceptOptions {
	opts := &websocket.AcceptOptions{}
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if o == "*" {
			opts.InsecureSkipVerify = true
			return opts
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			o = u.Host
		}
		patterns = append(patterns, o)
	}
	if len(patterns) == 0 {
		opts.InsecureSkipVerify = true
		return opts
	}
	opts.OriginPatterns = patterns
	return opts
}
