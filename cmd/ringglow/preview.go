package main

import (
	"context"
	"encoding/json"
	"fmt"
	"image/color"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/lmittmann/tint"
)

const writeWait = time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// frameMessage is the JSON sent to preview clients for every frame.
type frameMessage struct {
	Seq    uint64   `json:"seq"`
	Pixels []string `json:"pixels"`
}

// hub is a ring.Sender that broadcasts each frame to websocket clients.
type hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	seq     uint64
	last    []color.RGBA
	log     *slog.Logger
}

func newHub(logger *slog.Logger) *hub {
	return &hub{
		clients: make(map[*websocket.Conn]struct{}),
		log:     logger,
	}
}

func hexPixels(pixels []color.RGBA) []string {
	out := make([]string, len(pixels))
	for i, c := range pixels {
		out[i] = fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	}
	return out
}

// Send broadcasts the frame. Clients that fail to keep up are dropped.
func (h *hub) Send(ctx context.Context, pixels []color.RGBA) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	h.last = append(h.last[:0], pixels...)
	msg, err := json.Marshal(frameMessage{Seq: h.seq, Pixels: hexPixels(pixels)})
	if err != nil {
		return err
	}
	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.log.Debug("dropping preview client", slog.String("remote", conn.RemoteAddr().String()), tint.Err(err))
			conn.Close()
			delete(h.clients, conn)
		}
	}
	return nil
}

// lastFrame returns a copy of the most recent frame and its sequence number.
func (h *hub) lastFrame() (uint64, []color.RGBA) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seq, append([]color.RGBA(nil), h.last...)
}

func (h *hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", tint.Err(err))
		return
	}
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()
	h.log.Info("preview client connected", slog.String("remote", conn.RemoteAddr().String()))

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
		h.log.Info("preview client disconnected", slog.String("remote", conn.RemoteAddr().String()))
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *hub) serveFrame(w http.ResponseWriter, r *http.Request) {
	seq, pixels := h.lastFrame()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(frameMessage{Seq: seq, Pixels: hexPixels(pixels)})
}

func (h *hub) serveSwatch(w http.ResponseWriter, r *http.Request) {
	_, pixels := h.lastFrame()
	if len(pixels) == 0 {
		http.Error(w, "no frame sent yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/bmp")
	if err := writeSwatch(w, pixels); err != nil {
		h.log.Warn("swatch write failed", tint.Err(err))
	}
}

const indexHTML = `<!doctype html>
<title>ringglow</title>
<style>body{background:#111}#ring{position:relative;width:320px;height:320px;margin:40px auto}
.led{position:absolute;width:28px;height:28px;border-radius:50%%}</style>
<div id="ring"></div>
<script>
const n = %d, ring = document.getElementById("ring"), leds = [];
for (let i = 0; i < n; i++) {
  const a = 2 * Math.PI * i / n, d = document.createElement("div");
  d.className = "led";
  d.style.left = (146 + 130 * Math.sin(a)) + "px";
  d.style.top = (146 - 130 * Math.cos(a)) + "px";
  ring.appendChild(d); leds.push(d);
}
const ws = new WebSocket("ws://" + location.host + "/ws");
ws.onmessage = e => JSON.parse(e.data).pixels.forEach((c, i) => {
  if (leds[i]) { leds[i].style.background = c; leds[i].style.boxShadow = "0 0 16px " + c; }
});
</script>
`

// newRouter serves the ring preview page, the websocket feed, the last
// frame as JSON and as a BMP swatch.
func newRouter(h *hub, n int) http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, indexHTML, n)
	})
	r.Get("/ws", h.serveWS)
	r.Get("/frame", h.serveFrame)
	r.Get("/swatch.bmp", h.serveSwatch)
	return r
}
