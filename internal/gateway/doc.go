// Package gateway orchestrates the pagetap server components.
//
// # Overview
//
// The gateway package is the central coordinator of the pagetap broker.
// It owns the session registry, the WebSocket relay, and the HTTP server
// that exposes the relay endpoint, the injectable agent scripts, and the
// health and introspection endpoints.
//
// # Gateway Struct
//
// The Gateway struct is the main entry point:
//
//	type Gateway struct {
//	    config      *config.Config
//	    registry    *session.Registry
//	    router      *relay.Router
//	    httpServer  *http.Server
//	    tsnetServer *tsnet.Server
//	    logger      *slog.Logger
//	}
//
// # HTTP Routes
//
//   - /ws             WebSocket relay for agents and viewers
//   - /agent.js       loader script that injects the full agent
//   - /agent-full.js  full agent runtime script
//   - /health         liveness probe
//   - /health/ready   readiness probe (requires at least one session)
//   - /api/sessions   JSON summary of active sessions
//
// # Lifecycle
//
// Create and run a gateway:
//
//	gw, err := gateway.New(cfg, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := gw.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Run blocks until the context is canceled, then performs graceful shutdown
// with a 5 second timeout. When Tailscale is enabled the gateway joins the
// tailnet via tsnet instead of binding a local TCP address, optionally with
// HTTPS certificates or public Funnel exposure.
package gateway
