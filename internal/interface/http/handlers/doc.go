// Package handlers contains framework-level pieces of the HTTP interface:
// health checks and fiber middleware.
//
// # Health Checks
//
// CompositeHealthChecker runs named checks in parallel. Required checks
// decide readiness; optional ones only mark the service degraded:
//
//	checker := handlers.NewCompositeHealthChecker("v1.0.0", 5*time.Second)
//	checker.AddCheck("database", handlers.NewDatabaseCheck(conn.Health))
//	checker.AddOptionalCheck("redis", handlers.NewCacheCheck(cache, breaker))
//
//	status := checker.Check(ctx)
//	if !status.Healthy {
//	    logger.Warn("health check failed", "message", status.Message)
//	}
//
// # Middleware
//
//	app.Use(handlers.CorrelationID())
//	app.Use(handlers.RequestLogger(logger))
//	app.Use(handlers.RequestMetrics(m))
//	api.Use(auth.Middleware())
package handlers
