// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package plant

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"watches/pkg/eventbus"
	"watches/pkg/logger"
)

const wsWriteTimeout = 5 * time.Second

// WebRequest is what a browser may send over the websocket.
type WebRequest struct {
	Command string `json:"command"` // "poll" or "broadcast"
}

type clientSync struct {
	clients map[*websocket.Conn]bool
	mutex   sync.Mutex
}

func (c *clientSync) broadcast(pm *websocket.PreparedMessage, log *logger.Logger) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for ws := range c.clients {
		_ = ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := ws.WritePreparedMessage(pm); err != nil {
			log.Error("failed to write message: %v", err)
			ws.Close()
			delete(c.clients, ws)
		}
	}
}

func (c *clientSync) add(ws *websocket.Conn) {
	c.mutex.Lock()
	c.clients[ws] = true
	c.mutex.Unlock()
}

func (c *clientSync) remove(ws *websocket.Conn) {
	c.mutex.Lock()
	delete(c.clients, ws)
	c.mutex.Unlock()
}

func (c *clientSync) closeAll() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for ws := range c.clients {
		ws.Close()
		delete(c.clients, ws)
	}
}

func (c *clientSync) count() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.clients)
}

// Web serves the controller's status, history and a live websocket feed.
// Mount it under /plant.
type Web struct {
	log     *logger.Logger
	ctrl    *Controller
	status  *eventbus.Bus
	clients clientSync
	mux     *http.ServeMux
}

func NewWeb(ctrl *Controller, status *eventbus.Bus) *Web {
	w := &Web{
		log:     logger.New("PlantWeb"),
		ctrl:    ctrl,
		status:  status,
		clients: clientSync{clients: make(map[*websocket.Conn]bool)},
		mux:     http.NewServeMux(),
	}
	w.mux.HandleFunc("/history", w.serveHistory)
	w.mux.HandleFunc("/ws", w.serveWebSockets)
	w.mux.HandleFunc("/", w.serveStatus)
	return w
}

func (w *Web) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	w.mux.ServeHTTP(rw, r)
}

// Run forwards every status change to connected browsers.
func (w *Web) Run(ctx context.Context) {
	ch, unsub := w.status.Subscribe(ctx, TopicStatus, true)
	defer unsub()
	defer w.clients.closeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if st, ok := ev.(Status); ok {
				w.broadcast(st)
			}
		}
	}
}

func (w *Web) broadcast(st Status) {
	data, err := json.Marshal(st)
	if err != nil {
		w.log.Error("failed to marshal broadcast: %v", err)
		return
	}
	pm, err := websocket.NewPreparedMessage(websocket.TextMessage, data)
	if err != nil {
		w.log.Error("failed to prepare message: %v", err)
		return
	}
	w.clients.broadcast(pm, w.log)
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(v); err != nil {
		http.Error(rw, err.Error(), http.StatusInternalServerError)
	}
}

func (w *Web) serveStatus(rw http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "" {
		http.NotFound(rw, r)
		return
	}
	st, err := w.ctrl.Status(r.Context())
	if err != nil {
		http.Error(rw, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(rw, st)
}

func (w *Web) serveHistory(rw http.ResponseWriter, r *http.Request) {
	window := 0
	if s := r.URL.Query().Get("window"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			http.Error(rw, "window must be a positive number of seconds", http.StatusBadRequest)
			return
		}
		window = n
	}
	samples, err := w.ctrl.History(r.Context(), window)
	if err != nil {
		http.Error(rw, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(rw, samples)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || strings.Contains(origin, "localhost") {
			return true
		}
		return strings.Contains(origin, r.Host)
	},
}

func (w *Web) serveWebSockets(rw http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.log.Error("failed to upgrade websocket: %v", err)
		return
	}
	defer ws.Close()

	// new clients get the current state right away; this write happens
	// before broadcasts can reach the connection
	if st, err := w.ctrl.Status(r.Context()); err == nil {
		_ = ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := ws.WriteJSON(st); err != nil {
			return
		}
	}
	w.clients.add(ws)
	defer w.clients.remove(ws)

	var req WebRequest
	for {
		if err := ws.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				w.log.Debug("ws read: %v", err)
			}
			return
		}
		switch req.Command {
		case "poll":
			if err := w.ctrl.PollNow(r.Context()); err != nil {
				w.log.Warn("poll request failed: %v", err)
			}
		case "broadcast":
			if st, err := w.ctrl.Status(r.Context()); err == nil {
				w.broadcast(st)
			}
		default:
			w.log.Debug("ignoring ws command %q", req.Command)
		}
	}
}
