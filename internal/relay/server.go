package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"cipherchat/internal/directory"
	"cipherchat/internal/utils/log"
)

type (
	// Server exposes the relay websocket endpoint and the public-key
	// directory endpoints.
	Server struct {
		addr     string
		registry *Registry
		dir      directory.Directory
		upgrader websocket.Upgrader
	}

	keyResponse struct {
		ID        string `json:"id"`
		PublicKey []byte `json:"publicKey"`
	}
)

func NewServer(addr string, dir directory.Directory, registry *Registry) *Server {
	return &Server{
		addr:     addr,
		registry: registry,
		dir:      dir,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
	}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/ws", s.HandleWS()).Methods(http.MethodGet)
	r.HandleFunc("/keys/{id}", s.HandleGetPublicKey()).Methods(http.MethodGet)
	r.HandleFunc("/users", s.HandleListUsers()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	return r
}

// Run serves until ctx is cancelled. The registry loop runs alongside the
// HTTP listener and is torn down with it.
func (s *Server) Run(ctx context.Context) error {
	go s.registry.Run(ctx)

	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("relay listening", zap.String("addr", s.addr))
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) HandleWS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("userId")
		if userID == "" {
			http.Error(w, "userId cannot be empty", http.StatusBadRequest)
			return
		}

		// Upgrade replies to the client itself on failure.
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error("web socket upgrade failed", zap.String("userID", userID), zap.Error(err))
			return
		}

		c := newClient(s.registry, conn, userID)
		select {
		case s.registry.register <- c:
		case <-s.registry.done:
			conn.Close()
			return
		}

		log.Info("client connected", zap.String("userID", userID))
		go c.writePump()
		go c.readPump()
	}
}

func (s *Server) HandleGetPublicKey() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		id := vars["id"]

		publicKey, err := s.dir.PublicKey(r.Context(), id)
		if err != nil {
			if errors.Is(err, directory.ErrUnknownUser) {
				http.Error(w, "user does not exist", http.StatusNotFound)
				return
			}
			log.Error("public key lookup failed", zap.String("id", id), zap.Error(err))
			http.Error(w, "public key lookup failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(keyResponse{ID: id, PublicKey: publicKey})
	}
}

func (s *Server) HandleListUsers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		exclude := r.URL.Query().Get("exclude")

		users, err := s.dir.Contacts(r.Context(), exclude)
		if err != nil {
			log.Error("listing users failed", zap.Error(err))
			http.Error(w, "listing users failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(users)
	}
}
