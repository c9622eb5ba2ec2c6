// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

// Route pattern constants for chi router registration.
const (
	// RouteRoot is the public landing page.
	RouteRoot = "/"
	// RouteHome is the dashboard of logged-in users.
	RouteHome = "/home"
	// RouteLogin is the login route.
	RouteLogin = "/login"
	// RouteLogout is the logout route.
	RouteLogout = "/logout"
	// RouteHealth is the health check route.
	RouteHealth = "/health"
	// RouteMetrics exposes Prometheus metrics.
	RouteMetrics = "/metrics"

	RouteAccountPassword = "/account/password"
	RouteAccountQuestion = "/account/security-question"

	RouteRecover       = "/recover"
	RouteRecoverAnswer = "/recover/answer"
	RouteRecoverReset  = "/recover/reset"

	// RouteCriminals lists all label sections.
	RouteCriminals = "/criminals"

	RouteSuffixNew    = "/new"
	RouteSuffixSearch = "/search"
	RouteSuffixImport = "/import"
	RouteSuffixDelete = "/delete"
	RouteParamID      = "/{id}"

	RouteCriminalsLabel      = "/{source}/{type}"
	RouteCriminalOffenses    = RouteParamID + "/offenses"
	RouteCriminalOffenseDrop = RouteCriminalOffenses + "/{linkID}" + RouteSuffixDelete

	RouteAPICriminals      = "/api/criminals"
	RouteAPIOffenseClasses = "/api/offense-classes"

	RouteAdmin          = "/admin"
	RouteUsers          = "/users"
	RouteEvents         = "/events"
	RouteImports        = "/imports"
	RouteScheduler      = "/scheduler"
	RouteSchedulerJob   = RouteScheduler + "/{source}/{name}"
	RouteSchedulerReset = RouteSchedulerJob + "/reset"
	RouteSchedulerRun   = RouteSchedulerJob + "/run"
)

// Redirect targets.
const (
	redirectLogin            = RouteLogin
	redirectHome             = RouteHome
	redirectRecover          = RouteRecover
	redirectRecoverAnswer    = RouteRecoverAnswer
	redirectAccountQuestion  = RouteAccountQuestion
	redirectCriminals        = RouteCriminals
	redirectCriminalsNew     = RouteCriminals + RouteSuffixNew
	redirectCriminalsImport  = RouteCriminals + RouteSuffixImport
	redirectAdminUsers       = RouteAdmin + RouteUsers
	redirectAdminUsersNew    = redirectAdminUsers + RouteSuffixNew
	redirectAdminUsersImport = redirectAdminUsers + RouteSuffixImport
	redirectAdminScheduler   = RouteAdmin + RouteScheduler
	redirectAdminEvents      = RouteAdmin + RouteEvents
	redirectAdminImports     = RouteAdmin + RouteImports
)

// Formatted redirect patterns.
const (
	redirectCriminalsID  = RouteCriminals + "/%d"
	redirectAdminUsersID = redirectAdminUsers + "/%d"
)

// Session keys.
const (
	sessionKeyRecoverUserID = "recover_user_id"
	sessionKeyRecoverStage  = "recover_stage"
	sessionKeyRecoverUntil  = "recover_until"
)

// Page sizes of the admin lists.
const (
	UsersPerPage   = 25
	EventsPerPage  = 25
	ImportsPerPage = 25
)
