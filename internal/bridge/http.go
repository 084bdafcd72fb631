package bridge

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// maxPushBody caps a push request body.
const maxPushBody = 64 << 10

// Router serves the push webhook and a health probe.
func (s *Service) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/v1/push", s.servePush).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.serveHealth).Methods(http.MethodGet)
	return r
}

func (s *Service) servePush(w http.ResponseWriter, r *http.Request) {
	var p Push
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPushBody)).Decode(&p); err != nil {
		http.Error(w, "invalid push: "+err.Error(), http.StatusBadRequest)
		return
	}
	if !s.HandlePush(r.Context(), p) {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) serveHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.status())
}
