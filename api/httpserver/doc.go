// Package httpserver provides the HTTP server shell used by the tracking
// daemon: standard health endpoints, graceful shutdown, optional metrics and
// pprof, and flexible routing for the components mounted on it.
//
// # Key Components
//
//   - BaseServer: core HTTP server with health checks, metrics, and lifecycle management
//   - RouteRegistrar: interface for components to register their routes with the server
//
// # Health and Diagnostics
//
// Every server built with BaseServer automatically includes:
//
//   - Liveness check (/livez)
//   - Readiness check (/readyz)
//   - Drain control for load balancers (/drain, /undrain)
//   - Optional Prometheus metrics endpoint on its own listener
//   - Optional pprof debugging endpoints under /debug
//
// # Usage Example
//
//	// Implement the RouteRegistrar interface for your component
//	func (s *APIService) RegisterRoutes(r chi.Router) {
//	    r.Get("/api/v1/locations", s.handleLocations)
//	}
//
//	srv, err := httpserver.New(cfg, apiService)
//	if err != nil {
//	    return err
//	}
//	srv.RunInBackground()
//	defer srv.Shutdown()
package httpserver
