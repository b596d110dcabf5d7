package main

import (
	"log"

	"github.com/cairnhealth/cairn/internal/auth/app"
)

func main() {
	application, err := app.New(app.LoadConfig())
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	if err := application.Run(); err != nil {
		log.Fatalf("auth service exited: %v", err)
	}
}
