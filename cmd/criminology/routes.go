// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/olegiv/criminology-go/internal/cache"
	"github.com/olegiv/criminology-go/internal/config"
	"github.com/olegiv/criminology-go/internal/handler"
	"github.com/olegiv/criminology-go/internal/ingest"
	"github.com/olegiv/criminology-go/internal/metrics"
	"github.com/olegiv/criminology-go/internal/middleware"
	"github.com/olegiv/criminology-go/internal/offense"
	"github.com/olegiv/criminology-go/internal/render"
	"github.com/olegiv/criminology-go/internal/service"
	"github.com/olegiv/criminology-go/internal/store"
	"github.com/olegiv/criminology-go/internal/version"
	"github.com/olegiv/criminology-go/web"
)

// app holds the long-lived services shared by the handlers.
type app struct {
	cfg      *config.Config
	db       *store.DB
	cache    cache.Cache
	sm       *scs.SessionManager
	metrics  *metrics.Metrics
	lp       *middleware.LoginProtection
	renderer *render.Renderer
	resolver *offense.Table

	events    *service.EventService
	users     *service.UserService
	finder    *service.Finder
	records   *service.RecordService
	criminals *ingest.CriminalPipeline
	userRows  *ingest.UserPipeline

	jobs handler.JobRegistry
}

func newApp(cfg *config.Config, db *store.DB, c cache.Cache, sm *scs.SessionManager, m *metrics.Metrics, lp *middleware.LoginProtection, logger *slog.Logger) (*app, error) {
	templatesFS, err := fs.Sub(web.Templates, "templates")
	if err != nil {
		return nil, fmt.Errorf("getting templates fs: %w", err)
	}
	renderer, err := render.New(render.Config{TemplatesFS: templatesFS, SessionManager: sm})
	if err != nil {
		return nil, fmt.Errorf("initializing renderer: %w", err)
	}

	resolver := offense.NewTable()
	events := service.NewEventService(db)
	finder := service.NewFinder(db, resolver, c, cfg.CacheTTLDuration(), cfg.PageSize)
	users := service.NewUserService(db, events)
	records := service.NewRecordService(db, resolver, events, finder)

	opts := ingest.Options{
		MaxBytes: cfg.MaxUploadBytes,
		Events:   events,
		Metrics:  m,
		Logger:   logger,
	}

	return &app{
		cfg:       cfg,
		db:        db,
		cache:     c,
		sm:        sm,
		metrics:   m,
		lp:        lp,
		renderer:  renderer,
		resolver:  resolver,
		events:    events,
		users:     users,
		finder:    finder,
		records:   records,
		criminals: ingest.NewCriminalPipeline(db, records, opts),
		userRows:  ingest.NewUserPipeline(db, users, opts),
	}, nil
}

// routes builds the router with the full middleware stack.
func (a *app) routes(reg *prometheus.Registry, info version.Info) (http.Handler, error) {
	authHandler := handler.NewAuthHandler(a.users, a.renderer, a.sm, a.events, a.lp, a.metrics)
	accountHandler := handler.NewAccountHandler(a.users, a.renderer, a.sm, a.events, a.lp)
	recordsHandler := handler.NewRecordsHandler(a.records, a.finder, a.resolver, a.renderer, a.cfg.PageSize)
	apiHandler := handler.NewAPIHandler(a.finder, a.resolver)
	importHandler := handler.NewImportHandler(a.db, a.criminals, a.userRows, a.renderer, a.cfg.MaxUploadBytes)
	usersHandler := handler.NewUsersHandler(a.users, a.renderer)
	eventsHandler := handler.NewEventsHandler(a.events, a.renderer)
	schedulerHandler := handler.NewSchedulerHandler(a.renderer, a.jobs, a.events)
	healthHandler := handler.NewHealthHandler(a.db, a.cache, info)

	requireStaff := middleware.RequireStaff(a.events)
	requireSuperuser := middleware.RequireSuperuser(a.events)

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.AllowedHosts(a.cfg.AllowedHosts))
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(chimw.GetHead)
	r.Use(middleware.Timeout(30*time.Second,
		handler.RouteCriminals+handler.RouteSuffixImport,
		handler.RouteAdmin+handler.RouteUsers+handler.RouteSuffixImport))
	r.Use(middleware.StripTrailingSlash)
	r.Use(middleware.SecurityHeaders(middleware.DefaultSecurityHeadersConfig(a.cfg.IsDevelopment())))
	r.Use(middleware.RequestInfo)
	r.Use(a.sm.LoadAndSave)
	r.Use(middleware.SkipCSRF(handler.RouteMetrics))
	r.Use(middleware.CSRF(middleware.DefaultCSRFConfig([]byte(a.cfg.SecretKey), a.cfg.CSRFTrustedOrigins, a.cfg.IsDevelopment())))
	r.Use(middleware.LoadUser(a.sm, a.db))

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		return nil, fmt.Errorf("getting static fs: %w", err)
	}
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

	r.Get(handler.RouteHealth, healthHandler.Health)
	r.Get(handler.RouteHealth+"/live", healthHandler.Liveness)
	r.Get(handler.RouteHealth+"/ready", healthHandler.Readiness)
	r.Handle(handler.RouteMetrics, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	// Public
	r.Get(handler.RouteRoot, recordsHandler.Landing)
	r.With(a.lp.Middleware()).Group(func(r chi.Router) {
		r.Get(handler.RouteLogin, authHandler.LoginForm)
		r.Post(handler.RouteLogin, authHandler.Login)
		r.Get(handler.RouteRecover, accountHandler.RecoverForm)
		r.Post(handler.RouteRecover, accountHandler.Recover)
		r.Get(handler.RouteRecoverAnswer, accountHandler.AnswerForm)
		r.Post(handler.RouteRecoverAnswer, accountHandler.Answer)
		r.Get(handler.RouteRecoverReset, accountHandler.ResetForm)
		r.Post(handler.RouteRecoverReset, accountHandler.Reset)
	})

	// Logged in, setup may be incomplete
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(a.sm))
		r.Use(middleware.NoStore)

		r.Post(handler.RouteLogout, authHandler.Logout)
		r.Get(handler.RouteAccountPassword, accountHandler.PasswordForm)
		r.Post(handler.RouteAccountPassword, accountHandler.SetPassword)
		r.Get(handler.RouteAccountQuestion, accountHandler.QuestionForm)
		r.Post(handler.RouteAccountQuestion, accountHandler.SetQuestion)
	})

	// Logged in with setup complete
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(a.sm))
		r.Use(middleware.RequireSetupComplete)
		r.Use(middleware.NoStore)

		r.Get(handler.RouteHome, recordsHandler.Home)

		r.Route(handler.RouteCriminals, func(r chi.Router) {
			r.Get("/", recordsHandler.List)
			r.Get(handler.RouteSuffixSearch, recordsHandler.Search)
			r.Get(handler.RouteSuffixNew, recordsHandler.New)
			r.Post(handler.RouteSuffixNew, recordsHandler.Create)
			r.Get(handler.RouteCriminalsLabel, recordsHandler.Classes)
			r.Get(handler.RouteParamID, recordsHandler.Detail)

			r.Group(func(r chi.Router) {
				r.Use(requireStaff)
				r.Get(handler.RouteSuffixImport, importHandler.CriminalsForm)
				r.Post(handler.RouteSuffixImport, importHandler.ImportCriminals)
				r.Post(handler.RouteParamID, recordsHandler.Update)
				r.Post(handler.RouteParamID+handler.RouteSuffixDelete, recordsHandler.Delete)
				r.Post(handler.RouteCriminalOffenses, recordsHandler.AddOffense)
				r.Post(handler.RouteCriminalOffenseDrop, recordsHandler.RemoveOffense)
			})
		})

		r.Get(handler.RouteAPICriminals, apiHandler.Criminals)
		r.Get(handler.RouteAPIOffenseClasses, apiHandler.OffenseClasses)

		r.Route(handler.RouteAdmin, func(r chi.Router) {
			r.Use(requireStaff)

			r.Get(handler.RouteEvents, eventsHandler.List)
			r.Get(handler.RouteImports, importHandler.Batches)

			r.Route(handler.RouteUsers, func(r chi.Router) {
				r.Get("/", usersHandler.List)
				r.Get(handler.RouteSuffixNew, usersHandler.NewForm)
				r.Post(handler.RouteSuffixNew, usersHandler.Create)
				r.Get(handler.RouteSuffixImport, importHandler.UsersForm)
				r.Post(handler.RouteSuffixImport, importHandler.ImportUsers)

				r.Group(func(r chi.Router) {
					r.Use(requireSuperuser)
					r.Get(handler.RouteParamID, usersHandler.EditForm)
					r.Post(handler.RouteParamID, usersHandler.Update)
					r.Post(handler.RouteParamID+handler.RouteSuffixDelete, usersHandler.Delete)
				})
			})

			r.Route(handler.RouteScheduler, func(r chi.Router) {
				r.Use(requireSuperuser)
				r.Get("/", schedulerHandler.List)
				r.Post("/{source}/{name}", schedulerHandler.UpdateSchedule)
				r.Post("/{source}/{name}/reset", schedulerHandler.ResetSchedule)
				r.Post("/{source}/{name}/run", schedulerHandler.TriggerNow)
			})
		})
	})

	return r, nil
}
