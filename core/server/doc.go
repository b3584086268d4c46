// Package server wraps http.Server with graceful shutdown, environment
// configuration, and errgroup-compatible lifecycle management.
//
// Basic usage:
//
//	srv := server.New(":8080", server.WithLogger(log))
//	if err := srv.Start(ctx, mux); err != nil {
//		log.Error("server failed", "error", err)
//	}
//
// For coordinated shutdown alongside background workers, use Run with an
// errgroup:
//
//	g, ctx := errgroup.WithContext(ctx)
//	g.Go(srv.Run(ctx, mux))
//	g.Go(guard.Run(ctx))
package server
