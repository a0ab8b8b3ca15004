// Package server runs the client-facing HTTP server.
//
// # Routes
//
//	POST /v1/chat/completions   chat completions, streamed or buffered
//	GET  /v1/models             cached model catalog
//	     /api/tokens/...        account administration
//	GET  /files/{name}          localized images (public)
//	GET  /health /ready /version
//	GET  /metrics               Prometheus scrape endpoint (public)
//
// The API routes require the admin password as a bearer token. Every
// request passes through recovery, logging, request ID and CORS
// middleware, outermost first.
//
// # Usage
//
//	srv := server.NewServer(cfg.Server, cfg.Auth, server.Deps{
//	    Completer: handlers.FromOrchestrator(orchestrator),
//	    Models:    catalog,
//	    Admin:     handlers.NewAdminHandler(store),
//	    FilesDir:  cfg.Files.Dir,
//	    Health:    checker,
//	})
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer stop()
//	if err := srv.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
