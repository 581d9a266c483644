// Package httpserver exposes the registry over a JSON HTTP API.
package httpserver

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/and161185/efiling/internal/metrics"
	"github.com/and161185/efiling/internal/policy"
	"github.com/and161185/efiling/internal/service"
)

// Deps groups the services behind the API.
type Deps struct {
	Auth      service.AuthService
	Movements service.MovementService
	Files     service.FileService
	Mails     service.MailService
	Users     service.UserService
	Org       service.OrgService
	Personnel service.PersonnelService
	Policy    *policy.Policy
	Metrics   *metrics.Metrics
	Log       *zap.Logger
	// Ready reports whether the backing store is reachable. Nil means always ready.
	Ready func(ctx context.Context) error
}

// Server holds handlers and middleware.
type Server struct {
	auth      service.AuthService
	movements service.MovementService
	files     service.FileService
	mails     service.MailService
	users     service.UserService
	org       service.OrgService
	personnel service.PersonnelService
	policy    *policy.Policy
	metrics   *metrics.Metrics
	log       *zap.Logger
	ready     func(ctx context.Context) error
}

// New constructs Server.
func New(d Deps) *Server {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &Server{
		auth:      d.Auth,
		movements: d.Movements,
		files:     d.Files,
		mails:     d.Mails,
		users:     d.Users,
		org:       d.Org,
		personnel: d.Personnel,
		policy:    d.Policy,
		metrics:   d.Metrics,
		log:       d.Log.Named("http"),
		ready:     d.Ready,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.observe, s.recoverer)

	r.Get("/healthz", s.healthz)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.login)
		r.Post("/auth/refresh", s.refresh)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Post("/auth/logout", s.logout)
			r.Get("/auth/me", s.me)
			r.Patch("/auth/me", s.updateMe)

			r.Route("/filemovement", func(r chi.Router) {
				r.Put("/{userID}/request/{fileID}", s.requestFile)
				r.Put("/{userID}/charge/{fileID}", s.chargeFile)
				r.Put("/{userID}/return/{fileID}", s.returnFile)
				r.Delete("/{fileID}/logs/{log}", s.clearLog)
			})

			r.Route("/files", func(r chi.Router) {
				r.Get("/", s.listFiles)
				r.Post("/", s.createFile)
				r.Get("/counts", s.fileCounts)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.getFile)
					r.Patch("/", s.updateFile)
					r.Delete("/", s.deleteFile)
					r.Post("/trash", s.trashFile)
					r.Post("/restore", s.restoreFile)
					r.Put("/documents", s.attachMail)
					r.Delete("/documents/{mailID}", s.detachMail)
					r.Get("/movements", s.fileMovements)
				})
			})

			r.Route("/mails", func(r chi.Router) {
				r.Get("/", s.listMails)
				r.Post("/", s.createMail)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.getMail)
					r.Patch("/", s.updateMail)
					r.Delete("/", s.deleteMail)
					r.Post("/trash", s.trashMail)
					r.Post("/restore", s.restoreMail)
				})
			})

			r.Route("/users", func(r chi.Router) {
				r.Get("/", s.listUsers)
				r.Post("/", s.createUser)
				r.Get("/report/counts", s.userCounts)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.getUser)
					r.Patch("/", s.updateUser)
					r.Delete("/", s.deleteUser)
					r.Put("/role", s.setUserRole)
					r.Put("/password", s.setUserPassword)
					r.Post("/deactivate", s.deactivateUser)
					r.Post("/activate", s.activateUser)
					r.Get("/files", s.userHeldFiles)
				})
			})

			r.Route("/departments", func(r chi.Router) {
				r.Get("/", s.listDepartments)
				r.Post("/", s.createDepartment)
				r.Get("/{id}", s.getDepartment)
				r.Put("/{id}", s.updateDepartment)
				r.Delete("/{id}", s.deleteDepartment)
			})

			r.Route("/mdas", func(r chi.Router) {
				r.Get("/", s.listMDAs)
				r.Post("/", s.createMDA)
				r.Get("/{id}", s.getMDA)
				r.Put("/{id}", s.updateMDA)
				r.Delete("/{id}", s.deleteMDA)
				r.Post("/{id}/departments", s.addMDADepartment)
				r.Delete("/{id}/departments/{short}", s.removeMDADepartment)
			})

			r.Route("/personnel", func(r chi.Router) {
				r.Get("/", s.listPersonnel)
				r.Post("/", s.createPersonnel)
				r.Get("/{id}", s.getPersonnel)
				r.Put("/{id}", s.updatePersonnel)
				r.Delete("/{id}", s.deletePersonnel)
				r.Post("/{id}/{history}", s.appendPersonnelHistory)
			})

			r.Post("/admin/reconcile", s.reconcile)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, http.StatusNotFound, CodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, CodeValidation, "method not allowed")
	})
	return r
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.log.Warn("not ready", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
