package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/kozaktomas/mouthtrack/internal/coach"
	"github.com/kozaktomas/mouthtrack/internal/constants"
)

type wsUpgrader = websocket.Upgrader

func newUpgrader(checkOrigin func(*http.Request) bool) wsUpgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     checkOrigin,
	}
}

// wsMessage is the frame sent over the WebSocket: the SSE event name plus its
// payload.
type wsMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Stream streams run events over a WebSocket. It sends the same events as
// Events and closes the connection once the run finishes.
func (h *RunsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	job := h.runs.GetJob(chi.URLParam(r, "runId"))
	if job == nil {
		respondError(w, http.StatusNotFound, "run not found")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer conn.Close()

	eventCh := job.AddListener()
	defer job.RemoveListener(eventCh)

	// The reader only handles control frames and notices a closed peer.
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(constants.WSPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(constants.WSPongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	write := func(msg wsMessage) bool {
		conn.SetWriteDeadline(time.Now().Add(constants.WSWriteWait))
		return conn.WriteJSON(msg) == nil
	}
	closeNormal := func() {
		conn.SetWriteDeadline(time.Now().Add(constants.WSWriteWait))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"))
	}

	if !write(wsMessage{Event: "status", Data: job.View()}) {
		return
	}
	if isJobTerminal(job.GetStatus()) {
		closeNormal()
		return
	}

	ping := time.NewTicker(constants.WSPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(constants.WSWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			if !write(wsMessage{Event: string(event.Type), Data: event}) {
				return
			}
			if event.Type == coach.EventCompleted || isJobTerminal(job.GetStatus()) {
				closeNormal()
				return
			}
		}
	}
}
