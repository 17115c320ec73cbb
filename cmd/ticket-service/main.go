package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ticket-marketplace/internal/config"
	"ticket-marketplace/internal/database/migrations"
	"ticket-marketplace/internal/fabric"
	"ticket-marketplace/internal/logger"
	ticketconsumer "ticket-marketplace/internal/tickets/consumer"
	ticket_db "ticket-marketplace/internal/tickets/db"
	"ticket-marketplace/internal/tickets/qr"
	tickets "ticket-marketplace/internal/tickets/service"
	"ticket-marketplace/internal/tickets/ticket_api"
)

func connectDatabase(dsn string, log *logger.Logger) *bun.DB {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Connecting to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", dsn)
		if err == nil {
			err = sqldb.Ping()
			if err == nil {
				break
			}
		}
		log.Error("DATABASE", fmt.Sprintf("PostgreSQL connection failed: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Could not connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	log.Info("DATABASE", "PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New())
}

func main() {
	log := logger.NewLogger("ticket-service")
	defer log.Close()

	log.Info("APP", "Starting Ticket Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}

	cfg := config.Load()

	bunDB := connectDatabase(cfg.Database.DSN, log)
	defer bunDB.Close()

	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(bunDB, cfg.Database.MigrationsDir, log)
		if err := runner.Up(); err != nil {
			log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
		}
		runner.Close()
	}

	bus, err := fabric.New(cfg.Fabric, log)
	if err != nil {
		log.Fatal("FABRIC", fmt.Sprintf("Fabric startup failed: %v", err))
	}
	defer bus.Close()
	log.Info("FABRIC", fmt.Sprintf("Fabric backend %q ready", cfg.Fabric.Mode))

	ticketService := tickets.NewTicketService(&ticket_db.DB{Bun: bunDB}, log)

	reservations := ticketconsumer.NewReservationConsumer(ticketService, bus, log)
	if err := reservations.Subscribe(bus); err != nil {
		log.Fatal("FABRIC", fmt.Sprintf("Reservation subscription failed: %v", err))
	}

	ticketHandler := &ticket_api.Handler{
		TicketService: ticketService,
		QR:            qr.NewQRGenerator(cfg.Tickets.QRSecret),
	}

	r := chi.NewRouter()
	r.Route("/api/v1/tickets", ticketHandler.Routes)
	log.Info("ROUTER", "Ticket routes registered under /api/v1/tickets")

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Ticket Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server shutdown failed: %v", err))
	} else {
		log.Info("HTTP", "Ticket Service shutdown complete")
	}
}
