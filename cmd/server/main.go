/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the Quest Ledger server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Wire the quest service, account registry, session manager, gateway
  4. Optionally bootstrap the first parent account
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port             HTTP server port (default: 8080)
  -db               SQLite database path (default: quests.db)
                    Use ":memory:" for in-memory database
  -parent-email     Bootstrap a parent account with this email
  -parent-password  Password for the bootstrap parent

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/family.db"

  # Fresh in-memory server with a ready-to-use parent login
  ./server -db=":memory:" -parent-email=parent@family.local -parent-password=secret1

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/quest-ledger/api"
	"github.com/warp/quest-ledger/gateway"
	"github.com/warp/quest-ledger/quest"
	"github.com/warp/quest-ledger/session"
	"github.com/warp/quest-ledger/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "quests.db", "SQLite database path")
	parentEmail := flag.String("parent-email", "", "bootstrap a parent account with this email")
	parentPassword := flag.String("parent-password", "", "password for the bootstrap parent")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Wire dependencies
	service := quest.NewService(store)
	accounts := session.NewRegistry(store)
	sessions := session.NewManager()
	gw := gateway.New(service, accounts, sessions, gateway.DefaultTimeouts())
	handler := api.NewHandler(gw, accounts)

	// Bootstrap parent account if requested
	if *parentEmail != "" {
		_, err := accounts.Register(context.Background(), "parent", *parentEmail, *parentPassword, "")
		switch {
		case errors.Is(err, session.ErrAccountExists):
			log.Printf("Parent account %s already exists", *parentEmail)
		case err != nil:
			log.Fatalf("Failed to bootstrap parent account: %v", err)
		default:
			log.Printf("Bootstrapped parent account %s", *parentEmail)
		}
	}

	// Create router
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Quest ledger starting on http://localhost:%d", *port)
		log.Printf("📊 API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
