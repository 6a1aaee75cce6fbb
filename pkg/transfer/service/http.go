package service

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/bridge-tracker/pkg/app/errors"
	apphttp "github.com/chainsafe/bridge-tracker/pkg/app/http"
)

const (
	maxBodySize  = 1 << 20
	writeTimeout = 10 * time.Second
	pingInterval = 50 * time.Second
	pongTimeout  = 60 * time.Second
)

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

// HTTP wraps the Service to provide HTTP endpoints
type HTTP struct {
	service  Service
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// RegisterRoutes registers the tracker endpoints on r. requireAuth guards the actions;
// optionalAuth only identifies the caller when credentials are present.
func RegisterRoutes(r chi.Router, service Service, requireAuth, optionalAuth Middleware, logger *zap.Logger) {
	h := &HTTP{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
	}

	r.Get("/networks", apphttp.HandleError(h.networks))
	r.Get("/estimate", apphttp.HandleError(h.estimate))
	r.With(requireAuth).Post("/assets/refresh", apphttp.HandleError(h.refreshAssets))

	r.Route("/transfers", func(r chi.Router) {
		r.Get("/", apphttp.HandleError(h.history))
		r.Post("/", apphttp.HandleError(h.submit))
		r.Route("/{source}/{destination}/{id}", func(r chi.Router) {
			r.With(optionalAuth).Get("/", apphttp.HandleError(h.transfer))
			r.Delete("/", apphttp.HandleError(h.dispose))
			r.With(requireAuth).Post("/{action}", apphttp.HandleError(h.act))
		})
	})

	r.Get("/ws/transfers/{source}/{destination}/{id}", h.watch)
}

func refFrom(r *http.Request) Ref {
	return Ref{
		Source:      chi.URLParam(r, "source"),
		Destination: chi.URLParam(r, "destination"),
		ID:          chi.URLParam(r, "id"),
	}
}

func (h *HTTP) networks(w http.ResponseWriter, r *http.Request) error {
	h.writeJSON(w, http.StatusOK, map[string]any{"networks": h.service.Networks(r.Context())})
	return nil
}

func (h *HTTP) estimate(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	est, err := h.service.Estimate(r.Context(), EstimateRequest{
		Token:       q.Get("token"),
		Source:      q.Get("source"),
		Destination: q.Get("destination"),
	})
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, est)
	return nil
}

func (h *HTTP) refreshAssets(w http.ResponseWriter, r *http.Request) error {
	if err := h.service.RefreshAssets(r.Context()); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *HTTP) history(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	offset, err := intParam(q.Get("offset"))
	if err != nil {
		return apperrors.BadRequestError(err, "invalid offset")
	}
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		return apperrors.BadRequestError(err, "invalid limit")
	}
	resp, err := h.service.History(r.Context(), HistoryRequest{Offset: offset, Limit: limit, Route: q.Get("route")})
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, resp)
	return nil
}

func (h *HTTP) submit(w http.ResponseWriter, r *http.Request) error {
	var req SubmitRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	snap, err := h.service.Submit(r.Context(), &req)
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusCreated, snap)
	return nil
}

func (h *HTTP) transfer(w http.ResponseWriter, r *http.Request) error {
	snap, err := h.service.Transfer(r.Context(), refFrom(r))
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, snap)
	return nil
}

func (h *HTTP) dispose(w http.ResponseWriter, r *http.Request) error {
	if err := h.service.Dispose(r.Context(), refFrom(r)); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *HTTP) act(w http.ResponseWriter, r *http.Request) error {
	req := ActionRequest{Ref: refFrom(r), Action: Action(chi.URLParam(r, "action"))}
	var body struct {
		Amount string `json:"amount"`
	}
	if err := decodeOptionalBody(r, &body); err != nil {
		return err
	}
	req.Amount = body.Amount
	resp, err := h.service.Act(r.Context(), &req)
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, resp)
	return nil
}

// watch streams transfer snapshots over a websocket until the client leaves or the
// transfer is disposed.
func (h *HTTP) watch(w http.ResponseWriter, r *http.Request) {
	updates, stop, err := h.service.Watch(r.Context(), refFrom(r))
	if err != nil {
		apphttp.DefaultErrorHandler(w, err)
		return
	}
	defer stop()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	logger := h.logger.With(zap.String("conn", uuid.NewString()), zap.String("path", r.URL.Path))
	logger.Debug("Watcher connected")

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongTimeout))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case snap := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(snap); err != nil {
				logger.Debug("Watcher write failed", zap.Error(err))
				return
			}
			if snap.Disposed {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "transfer disposed"),
					time.Now().Add(writeTimeout))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case <-readDone:
			logger.Debug("Watcher disconnected")
			return
		}
	}
}

func decodeBody(r *http.Request, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return apperrors.BadRequestError(err, "failed to read request")
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperrors.BadRequestError(err, "invalid JSON")
	}
	return nil
}

// decodeOptionalBody leaves out untouched when the body is empty.
func decodeOptionalBody(r *http.Request, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return apperrors.BadRequestError(err, "failed to read request")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperrors.BadRequestError(err, "invalid JSON")
	}
	return nil
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func (h *HTTP) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
