package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hellai.org/internal/access"
	"hellai.org/internal/auth"
	"hellai.org/internal/httpapi"
	"hellai.org/internal/obs"
	"hellai.org/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	secret := os.Getenv("HELLAI_AUTH_SECRET")
	if secret == "" {
		log.Fatal("HELLAI_AUTH_SECRET is required")
	}

	var (
		accessStore access.Store
		users       auth.UserStore
		credentials auth.CredentialStore
		sessions    auth.SessionStore
		readyProbe  httpapi.ReadyProbe
		closeStore  func() error
	)
	if dsn := os.Getenv("HELLAI_PG_DSN"); dsn != "" {
		store, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		accessStore = store
		users, credentials, sessions = store, store, store
		readyProbe = httpapi.ReadyProbe{DB: store.DB()}
		closeStore = store.Close
	} else {
		// In-memory stores keep local development and tests database-free.
		log.Println("HELLAI_PG_DSN not set; using in-memory stores")
		accessStore = access.NewInMemory()
		mem := auth.NewInMemory()
		users, credentials, sessions = mem, mem, mem
	}

	accessSvc, err := access.NewService(accessStore)
	if err != nil {
		log.Fatalf("access service: %v", err)
	}
	var authOpts []auth.Option
	if raw := os.Getenv("HELLAI_ACCESS_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			log.Fatalf("invalid HELLAI_ACCESS_TTL: %v", err)
		}
		authOpts = append(authOpts, auth.WithAccessTTL(ttl))
	}
	if raw := os.Getenv("HELLAI_REFRESH_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			log.Fatalf("invalid HELLAI_REFRESH_TTL: %v", err)
		}
		authOpts = append(authOpts, auth.WithRefreshTTL(ttl))
	}
	authSvc, err := auth.NewService(users, credentials, sessions, secret, authOpts...)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	api := httpapi.New(accessSvc, authSvc, readyProbe, version)

	addr := os.Getenv("HELLAI_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting hellai-core %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()
	obs.SetReady(true)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	obs.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if closeStore != nil {
		_ = closeStore()
	}
	log.Println("Stopped")
}
