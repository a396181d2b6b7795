// Command ingestserver runs a local clickstream ingestion endpoint.
//
// Usage:
//
//	ingestserver [flags]
//
// Flags:
//
//	-port          Port to listen on (default: 3000)
//	-host          Host to bind to (default: localhost)
//	-reject-first  Answer 503 to the first n batches
//	-fail-rate     Answer 500 to this fraction of batches (0..1)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"clicksim/internal/logging"
	"clicksim/testserver"
)

func main() {
	port := flag.Int("port", 3000, "port to listen on")
	host := flag.String("host", "localhost", "host to bind to")
	rejectFirst := flag.Int("reject-first", 0, "reject the first n batches with 503")
	failRate := flag.Float64("fail-rate", 0, "fraction of batches answered with 500")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger, err := logging.New(*logLevel, os.Getenv("CLICKSIM_ENV"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: building logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	server := testserver.NewServer(
		testserver.WithRejectFirst(*rejectFirst),
		testserver.WithFailRate(*failRate, time.Now().UnixNano()),
		testserver.WithLogger(logger),
	)
	addr := fmt.Sprintf("%s:%d", *host, *port)

	fmt.Println("Clicksim Ingest Server")
	fmt.Println("======================")
	fmt.Printf("Listening on http://%s\n\n", addr)
	fmt.Println("Endpoints:")
	fmt.Println("  POST /events              - Accept {\"records\": [...]} batches")
	fmt.Println("  GET  /stats               - Totals, counts by type, recent events")
	fmt.Println("  GET  /health              - Health check")
	fmt.Println()

	srv := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info("shutting down", zap.Int("events", server.TotalEvents()))
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("http server starting", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server error", zap.Error(err))
		os.Exit(1)
	}
}
