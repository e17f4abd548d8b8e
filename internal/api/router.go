package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-access/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check and metrics (no auth required)
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		// Websocket (auth via ticket, validated in handler)
		r.Get("/events/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/events/ticket", s.handleWSTicket)

			r.Route("/adapter", func(r chi.Router) {
				r.Get("/health", s.handleAdapterHealth)
				r.With(s.require(auth.PermAdapterCheck)).Post("/health/check", s.handleAdapterHealthCheck)
				r.Get("/recommendation", s.handleAdapterRecommendation)
			})

			r.With(s.require(auth.PermUserManage)).Post("/users/sync", s.handleBulkSyncUsers)

			r.Route("/devices", func(r chi.Router) {
				r.With(s.require(auth.PermDeviceRead)).Get("/", s.handleListDevices)
				r.With(s.require(auth.PermDeviceConfigure)).Post("/", s.handleCreateDevice)
				r.With(s.require(auth.PermDeviceRead)).Get("/discover", s.handleDiscoverDevices)

				r.Route("/{id}", func(r chi.Router) {
					// Reads
					r.Group(func(r chi.Router) {
						r.Use(s.require(auth.PermDeviceRead))
						r.Get("/", s.handleGetDevice)
						r.Get("/info", s.handleDeviceInfo)
						r.Get("/configuration", s.handleDeviceConfiguration)
						r.Get("/health", s.handleDeviceHealth)
						r.Get("/test", s.handleTestConnection)
						r.Get("/logs", s.handleDeviceLogs)
						r.Get("/users/{employeeNo}", s.handleGetUser)
						r.Get("/firmware/{job}", s.handleFirmwareJob)
					})

					// Operations
					r.Group(func(r chi.Router) {
						r.Use(s.require(auth.PermDeviceOperate))
						r.Post("/commands", s.handleSendCommand)
						r.Post("/firmware", s.handleUpdateFirmware)
						r.Delete("/logs", s.handleClearLogs)
						r.Post("/events/subscribe", s.handleSubscribeEvents)
						r.Delete("/events/subscribe", s.handleUnsubscribeEvents)
					})

					// Configuration
					r.Group(func(r chi.Router) {
						r.Use(s.require(auth.PermDeviceConfigure))
						r.Delete("/", s.handleDeleteDevice)
						r.Put("/configuration/network", s.handleUpdateNetwork)
						r.Get("/backup", s.handleBackup)
						r.Post("/restore", s.handleRestore)
						r.Get("/faces", s.handleFaceData)
					})

					// Users
					r.Group(func(r chi.Router) {
						r.Use(s.require(auth.PermUserManage))
						r.Post("/users/sync", s.handleSyncUsers)
						r.Delete("/users/{employeeNo}", s.handleRemoveUser)
					})
				})
			})

			r.Route("/maintenance", func(r chi.Router) {
				r.With(s.require(auth.PermDeviceRead)).Get("/tasks", s.handleListTasks)
				r.With(s.require(auth.PermMaintenanceRun)).Post("/tasks/{task}/run", s.handleRunTask)
			})

			r.With(s.require(auth.PermAuditRead)).Get("/audit", s.handleListAudit)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"adapter": s.adapter.Type(),
	})
}
