package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"votingapp/internal/app/bootstrap"
)

// API process entrypoint.
// Data flow:
// 1) Load config.
// 2) Build app wiring (store + dispatch backend + HTTP handlers).
// 3) Serve HTTP until SIGINT/SIGTERM.
//
// @title Ballot Engine API
// @version 1.0
// @description Vote casting, role switching, and tallies for an election.
// @BasePath /
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Println("votingapp api starting")
	app, err := bootstrap.BuildAPI(ctx)
	if err != nil {
		log.Fatalf("bootstrap api failed: %v", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Printf("api shutdown close failed: %v", err)
		}
	}()

	if err := app.Run(ctx); err != nil {
		log.Printf("votingapp api stopped with error: %v", err)
	}
}
