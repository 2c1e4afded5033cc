package http

import "net/http"

// NewRouter mounts the JSON API and the websocket quiz session on one mux.
func NewRouter(h *Handler, ws *WSHandler) *http.ServeMux {
	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /ws/attempts/{attemptID}", ws.ServeWS)
	return mux
}
