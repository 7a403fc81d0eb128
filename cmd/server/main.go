package main

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/ticketwell/helpdesk-api/internal/config"
	"github.com/ticketwell/helpdesk-api/internal/database"
	"github.com/ticketwell/helpdesk-api/internal/routes"
	"github.com/ticketwell/helpdesk-api/internal/services"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()

	if err := database.Connect(cfg); err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	if err := database.Migrate(); err != nil {
		log.WithError(err).Fatal("database migration failed")
	}

	if err := services.InitPush(cfg.FCMServiceAccount); err != nil {
		log.WithError(err).Fatal("push service init failed")
	}

	app := fiber.New(fiber.Config{
		AppName: "helpdesk-api",
	})
	app.Use(recover.New())
	app.Use(cors.New())

	routes.Setup(app)

	log.WithField("port", cfg.Port).Info("helpdesk-api listening")
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}
