package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/rs/zerolog/log"

	"condopilot/config"
	"condopilot/internal/adapters/resend"
	"condopilot/internal/adapters/twilio"
	"condopilot/internal/classifier"
	"condopilot/internal/db"
	"condopilot/internal/events"
	"condopilot/internal/handlers"
	"condopilot/internal/media"
	"condopilot/internal/services"
	"condopilot/pkg/logger"
)

func main() {
	logger.InitLogger()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	if err := db.Migrate(conn); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	twilioClient, err := twilio.NewClient(twilio.Config{
		AccountSID: cfg.TwilioAccountSID,
		AuthToken:  cfg.TwilioAuthToken,
		Timeout:    cfg.DispatchTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Twilio client")
	}

	// Email is a soft dependency: without credentials admins simply get no
	// email notifications.
	var emailSender services.EmailSender
	if cfg.ResendAPIKey != "" {
		resendClient, err := resend.NewClient(resend.Config{
			APIKey: cfg.ResendAPIKey,
			From:   cfg.NotifyFromEmail,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Resend client")
		}
		emailSender = resendClient
	} else {
		log.Info().Msg("RESEND_API_KEY not set, email notifications disabled")
	}

	var cls classifier.Classifier
	if cfg.GeminiAPIKey != "" {
		gemini, err := classifier.NewGeminiClassifier(context.Background(), classifier.GeminiConfig{
			APIKey:    cfg.GeminiAPIKey,
			ModelName: cfg.GeminiModel,
			Timeout:   cfg.ClassifyTimeout,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Gemini classifier")
		}
		defer gemini.Close()
		cls = gemini
	} else {
		log.Warn().Msg("GEMINI_API_KEY not set, every message will use the fallback classification")
		cls = classifier.FallbackClassifier{}
	}

	publisher := events.NewPublisher(cfg.RabbitMQURL, cfg.RabbitMQQueue)
	defer publisher.Close()

	var archiver services.MediaArchiver
	if a := media.NewArchiver(media.Config{
		Bucket:    cfg.S3Bucket,
		Region:    cfg.S3Region,
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
	}, twilioClient); a != nil {
		archiver = a
	}

	resolver := services.NewResolver(conn)
	conversations := services.NewConversationStore(conn)
	tickets := services.NewTicketService(conn)
	notify := services.NewNotifyService(conn, twilioClient, emailSender)

	intake, err := services.NewIntakeService(
		conn, resolver, conversations, cls, twilioClient, tickets, notify,
		publisher, archiver, cfg.DashboardBaseURL,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize intake service")
	}

	webhookHandler := handlers.NewTwilioWebhookHandler(intake)

	router := mux.NewRouter()
	router.HandleFunc("/health", handlers.Health(conn)).Methods(http.MethodGet)
	router.HandleFunc(cfg.WebhookPath, webhookHandler.Handle).Methods(http.MethodPost)
	log.Info().Str("path", cfg.WebhookPath).Msg("Registered Twilio webhook handler")

	chain := alice.New(requestLogger).Then(router)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      chain,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.Info().Str("port", cfg.Port).Msg("Server starting")
	if err := server.ListenAndServe(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}
