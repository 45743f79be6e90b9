package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/tunnelcore/tunnelcore/formatter"
	"github.com/tunnelcore/tunnelcore/server/http/util"
	"github.com/tunnelcore/tunnelcore/server/peer"
	"github.com/tunnelcore/tunnelcore/shared/status"
	"github.com/tunnelcore/tunnelcore/version"
)

// VersionHeader carries the server version on every response
const VersionHeader = "X-Tunnelcore-Version"

// PeerService is the part of the server exposed over HTTP
type PeerService interface {
	Peers() []peer.Peer
	Peer(publicKey string) (peer.Peer, error)
	UpdatePeerStatus(publicKey string, s peer.ConnStatus) error
	Stats() peer.Stats
}

// handler is a handler that serves peer state
type handler struct {
	peers PeerService
}

// NewHandler builds the management router. Peer keys in paths must be path escaped.
func NewHandler(peers PeerService) http.Handler {
	router := mux.NewRouter().UseEncodedPath()
	router.Use(requestMiddleware)
	AddEndpoints(peers, router)
	return router
}

// AddEndpoints registers the peer endpoints on router
func AddEndpoints(peers PeerService, router *mux.Router) {
	h := &handler{peers: peers}
	router.HandleFunc("/peers", h.getAllPeers).Methods(http.MethodGet)
	router.HandleFunc("/peers/{key}", h.getPeer).Methods(http.MethodGet)
	router.HandleFunc("/peers/{key}/status", h.updatePeerStatus).Methods(http.MethodPut)
	router.HandleFunc("/stats", h.getStats).Methods(http.MethodGet)
}

// requestMiddleware tags every request with an id picked up by the log hook
func requestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.New().String()
		//nolint
		ctx := context.WithValue(r.Context(), formatter.RequestIDKey, reqID)
		w.Header().Set("X-Request-Id", reqID)
		w.Header().Set(VersionHeader, version.TunnelcoreVersion())

		log.WithContext(ctx).Tracef("%s %s", r.Method, r.URL.EscapedPath())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *handler) getAllPeers(w http.ResponseWriter, r *http.Request) {
	peers := h.peers.Peers()

	resp := make([]PeerResponse, 0, len(peers))
	for _, p := range peers {
		resp = append(resp, toPeerResponse(p))
	}

	util.WriteJSONObject(r.Context(), w, resp)
}

func (h *handler) getPeer(w http.ResponseWriter, r *http.Request) {
	key, err := peerKey(r)
	if err != nil {
		util.WriteError(r.Context(), err, w)
		return
	}

	p, err := h.peers.Peer(key)
	if err != nil {
		util.WriteError(r.Context(), err, w)
		return
	}

	util.WriteJSONObject(r.Context(), w, toPeerResponse(p))
}

func (h *handler) updatePeerStatus(w http.ResponseWriter, r *http.Request) {
	key, err := peerKey(r)
	if err != nil {
		util.WriteError(r.Context(), err, w)
		return
	}

	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		util.WriteError(r.Context(), status.Wrap(status.InvalidArgument, err, "couldn't parse JSON request"), w)
		return
	}

	s, err := peer.ParseConnStatus(req.Status)
	if err != nil {
		util.WriteError(r.Context(), err, w)
		return
	}

	if err := h.peers.UpdatePeerStatus(key, s); err != nil {
		util.WriteError(r.Context(), err, w)
		return
	}

	p, err := h.peers.Peer(key)
	if err != nil {
		util.WriteError(r.Context(), err, w)
		return
	}

	util.WriteJSONObject(r.Context(), w, toPeerResponse(p))
}

func (h *handler) getStats(w http.ResponseWriter, r *http.Request) {
	util.WriteJSONObject(r.Context(), w, h.peers.Stats())
}

func peerKey(r *http.Request) (string, error) {
	raw := mux.Vars(r)["key"]
	key, err := url.PathUnescape(raw)
	if err != nil {
		return "", status.Wrap(status.InvalidArgument, err, "invalid peer key in path")
	}
	if key == "" {
		return "", status.Errorf(status.InvalidArgument, "peer key is required")
	}
	return key, nil
}
