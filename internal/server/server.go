// Package server exposes the published generation as a read-only JSON
// API. Every handler resolves the current generation exactly once and
// answers entirely from it, so a refresh landing mid-request can never
// mix two generations into one response.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/repopulse/repopulse/pkg/errors"
	"github.com/repopulse/repopulse/pkg/snapshot"
)

// Server serves the JSON API over one publisher.
type Server struct {
	pub    *snapshot.Publisher
	logger *log.Logger
}

// New creates a Server reading from pub.
func New(pub *snapshot.Publisher, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{pub: pub, logger: logger}
}

// Router builds the HTTP routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/refresh", s.handleRefresh)

		r.Get("/packages", s.withGeneration(s.handlePackages))
		r.Get("/packages/{name}", s.withGeneration(s.handlePackageDetail))
		r.Get("/search", s.withGeneration(s.handleSearch))
		r.Get("/updates", s.withGeneration(s.handleUpdates))
		r.Get("/removals", s.withGeneration(s.handleRemovals))
		r.Get("/cycles", s.withGeneration(s.handleCycles))
		r.Get("/outofdate", s.withGeneration(s.handleOutOfDate))
		r.Get("/vulnerabilities", s.withGeneration(s.handleVulnerabilities))
	})
	return r
}

// generationHandler answers one request from one resolved generation.
type generationHandler func(w http.ResponseWriter, r *http.Request, gen *snapshot.Generation)

// withGeneration resolves the generation once, handles conditional
// requests, and rejects queries while no data exists yet. "Not ready"
// is deliberately distinct from an empty package set.
func (s *Server) withGeneration(h generationHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gen, ok := s.pub.Current()
		if !ok {
			s.writeError(w, http.StatusServiceUnavailable, errors.New(errors.ErrCodeNotReady, "data not yet available"))
			return
		}
		w.Header().Set("ETag", `"`+gen.Etag+`"`)
		if match := r.Header.Get("If-None-Match"); match == `"`+gen.Etag+`"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		h(w, r, gen)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := statusResponse{State: s.pub.State().String()}
	if err := s.pub.LastError(); err != nil {
		st.LastError = err.Error()
	}
	if gen, ok := s.pub.Current(); ok {
		st.Etag = gen.Etag
		st.LastUpdated = gen.Timestamp.Format(timeFormat)
		st.Sources = len(gen.Universe.Sources)
		st.Packages = len(gen.Universe.Packages)
		st.Updates = len(gen.Updates)
		st.Removals = len(gen.Removals)
		st.StaleInputs = gen.Stale
		st.Diagnostics = len(gen.Diagnostics)
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	started := s.pub.Trigger()
	s.writeJSON(w, http.StatusAccepted, refreshResponse{Started: started, Coalesced: !started})
}

func (s *Server) handlePackages(w http.ResponseWriter, r *http.Request, gen *snapshot.Generation) {
	u := gen.Universe
	out := make([]packageSummary, 0, len(u.Packages))
	for _, name := range u.SourceNames() {
		for _, p := range u.Sources[name].Packages {
			out = append(out, summarize(p))
		}
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePackageDetail(w http.ResponseWriter, r *http.Request, gen *snapshot.Generation) {
	name := chi.URLParam(r, "name")
	if err := errors.ValidatePackageName(name); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	u := gen.Universe
	pkgs := u.PackagesByName(name)
	src, hasSource := u.Sources[name]
	if len(pkgs) == 0 && !hasSource {
		s.writeError(w, http.StatusNotFound, errors.New(errors.ErrCodeNotFound, "no package or source named %q", name))
		return
	}

	detail := detailResponse{Name: name}
	for _, p := range pkgs {
		detail.Packages = append(detail.Packages, describePackage(u, p))
	}
	if hasSource {
		detail.Source = describeSource(gen, src)
	} else if len(pkgs) > 0 {
		if base, ok := u.Sources[pkgs[0].Base]; ok {
			detail.Source = describeSource(gen, base)
		}
	}
	s.writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, gen *snapshot.Generation) {
	q := r.URL.Query().Get("q")
	if q == "" {
		s.writeError(w, http.StatusBadRequest, errors.New(errors.ErrCodeInvalidInput, "missing query parameter q"))
		return
	}
	s.writeJSON(w, http.StatusOK, search(gen.Universe, q))
}

func (s *Server) handleUpdates(w http.ResponseWriter, r *http.Request, gen *snapshot.Generation) {
	out := make([]updateResponse, 0, len(gen.Updates))
	for _, up := range gen.Updates {
		out = append(out, updateResponse{
			Name:          up.Source.Name,
			Binaries:      up.Source.Binaries(),
			BuiltVersion:  up.BuiltVersion,
			RecipeVersion: up.RecipeVersion,
			New:           up.New(),
			Statuses:      up.Statuses,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRemovals(w http.ResponseWriter, r *http.Request, gen *snapshot.Generation) {
	out := make([]removalResponse, 0, len(gen.Removals))
	for _, rm := range gen.Removals {
		resp := removalResponse{
			Name:    rm.Pkg.Name,
			Repo:    rm.Pkg.Repo,
			Arch:    rm.Pkg.Arch,
			Version: rm.Pkg.Version,
			Ready:   rm.Ready,
		}
		for _, b := range rm.Blockers {
			resp.Blockers = append(resp.Blockers, blockerResponse{
				Name:  b.Pkg.Name,
				Repo:  b.Pkg.Repo,
				Arch:  b.Pkg.Arch,
				Kinds: b.Kinds.String(),
			})
		}
		out = append(out, resp)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCycles(w http.ResponseWriter, r *http.Request, gen *snapshot.Generation) {
	out := gen.Cycles
	if out == nil {
		out = [][]string{}
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleOutOfDate(w http.ResponseWriter, r *http.Request, gen *snapshot.Generation) {
	resp := outOfDateResponse{
		Outdated: make([]outOfDateEntry, 0, len(gen.OutOfDate.Outdated)),
		Missing:  make([]string, 0, len(gen.OutOfDate.Missing)),
	}
	for _, e := range gen.OutOfDate.Outdated {
		resp.Outdated = append(resp.Outdated, outOfDateEntry{
			Name:     e.Source.Name,
			Local:    e.Version,
			External: e.External,
		})
	}
	for _, src := range gen.OutOfDate.Missing {
		resp.Missing = append(resp.Missing, src.Name)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVulnerabilities(w http.ResponseWriter, r *http.Request, gen *snapshot.Generation) {
	rep := gen.Vulnerabilities
	resp := vulnResponse{
		Vulnerable:   make([]vulnSource, 0, len(rep.Vulnerable)),
		Insufficient: make([]string, 0, len(rep.Insufficient)),
	}
	for _, sr := range rep.Vulnerable {
		vs := vulnSource{Name: sr.Source.Name, Records: sr.Records, Active: sr.ActiveCount()}
		if worst, ok := sr.WorstActive(); ok {
			vs.Worst = worst.Severity.String()
		}
		resp.Vulnerable = append(resp.Vulnerable, vs)
	}
	for _, src := range rep.Insufficient {
		resp.Insufficient = append(resp.Insufficient, src.Name)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("encode response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{
		Error: errors.UserMessage(err),
		Code:  string(errors.GetCode(err)),
	})
}
