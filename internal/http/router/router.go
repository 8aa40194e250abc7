package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/straye-as/pipeline-api/internal/auth"
	"github.com/straye-as/pipeline-api/internal/config"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/http/handler"
	"github.com/straye-as/pipeline-api/internal/http/middleware"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"

	_ "github.com/straye-as/pipeline-api/docs" // registers the swagger spec
)

// Handlers groups the HTTP handlers mounted by the router
type Handlers struct {
	Health       *handler.HealthHandler
	Auth         *handler.AuthHandler
	Team         *handler.TeamHandler
	Customer     *handler.CustomerHandler
	Project      *handler.ProjectHandler
	Stage        *handler.StageHandler
	Approval     *handler.ApprovalHandler
	Quote        *handler.QuoteHandler
	Conversion   *handler.ConversionHandler
	Notification *handler.NotificationHandler
	Event        *handler.EventHandler
}

type Router struct {
	cfg            *config.Config
	logger         *zap.Logger
	authMiddleware *auth.Middleware
	rateLimiter    *middleware.RateLimiter
	h              Handlers
}

func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	authMiddleware *auth.Middleware,
	rateLimiter *middleware.RateLimiter,
	handlers Handlers,
) *Router {
	return &Router{
		cfg:            cfg,
		logger:         logger,
		authMiddleware: authMiddleware,
		rateLimiter:    rateLimiter,
		h:              handlers,
	}
}

func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(rt.logger))
	r.Use(middleware.Logging(rt.logger))
	r.Use(middleware.SecurityHeaders(&rt.cfg.Security))
	r.Use(middleware.CORS(&rt.cfg.CORS, rt.cfg.App.Environment, rt.logger))
	r.Use(rt.rateLimiter.LimitByIP)

	r.Get("/health", rt.h.Health.Live)
	r.Get("/health/db", rt.h.Health.Database)

	if rt.cfg.Server.EnableSwagger {
		r.Get("/swagger/*", httpSwagger.Handler(
			httpSwagger.URL("/swagger/doc.json"),
		))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.authMiddleware.Authenticate)
		r.Use(rt.rateLimiter.Limit)

		// the event stream stays open, so it is mounted outside the request timeout
		r.Get("/events", rt.h.Event.Stream)

		r.Group(func(r chi.Router) {
			if timeout := rt.cfg.Server.RequestTimeoutDuration(); timeout > 0 {
				r.Use(chimw.Timeout(timeout))
			}

			r.Get("/users/me", rt.h.Auth.Me)
			r.Get("/stage-templates", rt.h.Stage.ListTemplates)

			r.Route("/team", func(r chi.Router) {
				r.Get("/members", rt.h.Team.ListMembers)
				r.Get("/members/projects/{projectId}", rt.h.Team.ListMembersForProject)
				r.Post("/members/rebuild", rt.h.Team.RebuildIndex)
				r.Get("/invitations", rt.h.Team.ListInvitations)
				r.Post("/invitations", rt.h.Team.Invite)
				r.Post("/invitations/{id}/accept", rt.h.Team.Accept)
			})

			r.Route("/customers", func(r chi.Router) {
				r.Get("/", rt.h.Customer.List)
				r.Post("/", rt.h.Customer.Create)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", rt.h.Customer.GetByID)
					r.Post("/activities", rt.h.Customer.AddActivity)
					r.Post("/reminders", rt.h.Customer.AddReminder)
					r.Patch("/lead-score", rt.h.Customer.UpdateLeadScore)
					r.Post("/files", rt.h.Customer.UploadFile)
					r.Get("/transcripts", rt.h.Customer.ListTranscripts)
					r.Post("/transcripts", rt.h.Customer.AddTranscript)
					r.Get("/projects", rt.h.Customer.ListProjects)
					r.Post("/convert", rt.h.Customer.Convert)
					r.Get("/quotes", rt.h.Customer.ListQuotes)
					r.Post("/quotes", rt.h.Customer.CreateQuote)
					rt.h.Stage.Mount(r, domain.EntityTypeCustomer)
				})
			})

			r.Route("/projects/{id}", func(r chi.Router) {
				r.Get("/", rt.h.Project.GetByID)
				r.Post("/files", rt.h.Project.UploadFile)
				r.Get("/transcripts", rt.h.Project.ListTranscripts)
				r.Post("/transcripts", rt.h.Project.AddTranscript)
				r.Get("/quotes", rt.h.Project.ListQuotes)
				r.Post("/quotes", rt.h.Project.CreateQuote)
				rt.h.Stage.Mount(r, domain.EntityTypeProject)
			})

			r.Route("/approvals", func(r chi.Router) {
				r.Get("/", rt.h.Approval.List)
				r.Post("/", rt.h.Approval.Create)
				r.Get("/{id}", rt.h.Approval.GetByID)
				r.Post("/{id}/decision", rt.h.Approval.Decide)
			})

			r.Route("/quotes/{id}", func(r chi.Router) {
				r.Get("/", rt.h.Quote.GetByID)
				r.Patch("/", rt.h.Quote.SetPricing)
				r.Post("/items", rt.h.Quote.AddItem)
				r.Put("/items/{itemId}", rt.h.Quote.UpdateItem)
				r.Delete("/items/{itemId}", rt.h.Quote.RemoveItem)
				r.Post("/associations", rt.h.Quote.Associate)
				r.Delete("/associations/{projectId}", rt.h.Quote.Dissociate)
				r.Post("/status", rt.h.Quote.UpdateStatus)
			})

			r.Route("/conversions/{runId}", func(r chi.Router) {
				r.Get("/", rt.h.Conversion.GetRun)
				r.Post("/resume", rt.h.Conversion.Resume)
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", rt.h.Notification.List)
				r.Get("/count", rt.h.Notification.GetUnreadCount)
				r.Put("/read-all", rt.h.Notification.MarkAllAsRead)
				r.Put("/{id}/read", rt.h.Notification.MarkAsRead)
			})
		})
	})

	return r
}
