// Package rc exposes REST monitoring endpoints over the mounted
// filesystems and the Paxos replica, per SPEC_FULL.md §11/§12:
// /fs/fsstat, /replica/status, /replica/peers. Grounded on rclone's
// fs/rc control-plane convention (JSON request/response registry routed
// with go-chi/chi) and original_source's keyval/fac.cpp
// Database::get(RestRequest) hook, the origin of the replica endpoints.
package rc

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/objfsd/objfsd/internal/kv/replica"
	"github.com/objfsd/objfsd/internal/posix"
	"github.com/objfsd/objfsd/internal/vfsapi"
)

// Server is the REST monitoring HTTP server.
type Server struct {
	log      *logrus.Entry
	mounts   map[string]vfsapi.Filesystem
	replicas map[string]*replica.Replica
	router   chi.Router
}

// New builds a Server with no mounts or replicas registered yet; call
// AddMount/AddReplica before Handler.
func New(log *logrus.Entry) *Server {
	s := &Server{
		log:      log,
		mounts:   map[string]vfsapi.Filesystem{},
		replicas: map[string]*replica.Replica{},
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/fs/fsstat", s.handleFsstat)
	r.Get("/replica/status", s.handleReplicaStatus)
	r.Get("/replica/peers", s.handleReplicaPeers)
	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// AddMount registers a mounted Filesystem under name for /fs/fsstat.
func (s *Server) AddMount(name string, fs vfsapi.Filesystem) {
	s.mounts[name] = fs
}

// AddReplica registers a Replica under name for the /replica endpoints.
func (s *Server) AddReplica(name string, r *replica.Replica) {
	s.replicas[name] = r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if k := posix.KindOf(err); k == posix.NotFound {
		status = http.StatusNotFound
	} else if k == posix.Invalid {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleFsstat(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("mount")
	if name == "" {
		writeJSON(w, http.StatusOK, s.allFsstat(r.Context()))
		return
	}
	fs, ok := s.mounts[name]
	if !ok {
		writeError(w, posix.New(posix.NotFound, "no such mount: "+name))
		return
	}
	stat, err := fsstatOne(r.Context(), fs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stat)
}

func (s *Server) allFsstat(ctx context.Context) map[string]vfsapi.Fsattr {
	out := make(map[string]vfsapi.Fsattr, len(s.mounts))
	for name, fs := range s.mounts {
		stat, err := fsstatOne(ctx, fs)
		if err != nil {
			s.log.WithError(err).WithField("mount", name).Warn("fsstat failed")
			continue
		}
		out[name] = stat
	}
	return out
}

func fsstatOne(ctx context.Context, fs vfsapi.Filesystem) (vfsapi.Fsattr, error) {
	root, err := fs.Root(ctx)
	if err != nil {
		return vfsapi.Fsattr{}, err
	}
	return root.Fsstat(ctx, posix.Cred{Privileged: true})
}

func (s *Server) handleReplicaStatus(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("replica")
	if name == "" && len(s.replicas) == 1 {
		for only := range s.replicas {
			name = only
		}
	}
	rep, ok := s.replicas[name]
	if !ok {
		writeError(w, posix.New(posix.NotFound, "no such replica: "+name))
		return
	}
	writeJSON(w, http.StatusOK, rep.GetStatus())
}

func (s *Server) handleReplicaPeers(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("replica")
	if name == "" && len(s.replicas) == 1 {
		for only := range s.replicas {
			name = only
		}
	}
	rep, ok := s.replicas[name]
	if !ok {
		writeError(w, posix.New(posix.NotFound, "no such replica: "+name))
		return
	}
	writeJSON(w, http.StatusOK, rep.GetReplicas())
}
