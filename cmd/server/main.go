package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/pulsefest/registration/dynamo"
	"github.com/pulsefest/registration/events"
	"github.com/pulsefest/registration/gateway"
	"github.com/pulsefest/registration/httpapi"
	"github.com/pulsefest/registration/memstore"
)

func main() {
	// Missing .env is fine, the defaults below cover local runs
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	ctx := context.Background()

	settings := getServerSettingsFromEnv()

	env := httpapi.LOCAL
	if settings.Env == "PROD" {
		env = httpapi.PROD
	}

	db, err := makeDB(ctx, settings)
	if err != nil {
		logger.Error("Failed to set up store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	fake := gateway.NewFake()
	api := httpapi.NewAPI(db, fake, settings.GatewayPublicKey, logger, env)

	sender, err := createEmailSender(ctx, logger, env)
	if err != nil {
		logger.Error("Failed to set up email sender", slog.String("error", err.Error()))
		os.Exit(1)
	}
	api.WithEmailSender(sender, settings.EmailFrom)

	if settings.SeedDemoEvent {
		seedDemoEvent(ctx, logger, db)
	}

	s := &http.Server{
		Handler: api.Handler(),
		Addr:    net.JoinHostPort(settings.Host, settings.Port),
	}

	logger.Info("Server listening", slog.String("addr", s.Addr))
	if err := s.ListenAndServe(); err != nil {
		logger.Error("Server stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

type ServerSettings struct {
	Host             string
	Port             string
	Env              string
	Store            string
	DynamoTableName  string
	DynamoEndpoint   string
	GatewayPublicKey string
	EmailFrom        string
	SeedDemoEvent    bool
}

func getServerSettingsFromEnv() ServerSettings {
	return ServerSettings{
		Host:             getEnvOrDefault("HOST", "0.0.0.0"),
		Port:             getEnvOrDefault("PORT", "8080"),
		Env:              getEnvOrDefault("ENV", "LOCAL"),
		Store:            getEnvOrDefault("STORE", "memory"),
		DynamoTableName:  getEnvOrDefault("DYNAMO_TABLE_NAME", "PulsefestRegistration"),
		DynamoEndpoint:   getEnvOrDefault("DYNAMO_ENDPOINT", ""),
		GatewayPublicKey: getEnvOrDefault("GATEWAY_PUBLIC_KEY", "pk_test_local"),
		EmailFrom:        getEnvOrDefault("EMAIL_FROM", "registrations@pulsefest.in"),
		SeedDemoEvent:    getEnvOrDefault("SEED_DEMO_EVENT", "true") == "true",
	}
}

func getEnvOrDefault(key string, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}

	return defaultVal
}

func makeDB(ctx context.Context, settings ServerSettings) (httpapi.DB, error) {
	switch settings.Store {
	case "memory":
		return memstore.New(), nil
	case "dynamo":
		return makeDynamoDB(ctx, settings)
	default:
		return nil, fmt.Errorf("unknown store %q", settings.Store)
	}
}

func makeDynamoDB(ctx context.Context, settings ServerSettings) (*dynamo.DB, error) {
	var opts []func(*config.LoadOptions) error
	if settings.DynamoEndpoint != "" {
		opts = append(opts,
			config.WithRegion("localhost"),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("dummy", "dummy", "dummy")),
		)
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to get aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if settings.DynamoEndpoint != "" {
			o.BaseEndpoint = aws.String(settings.DynamoEndpoint)
		}
	})

	return dynamo.NewDB(client, settings.DynamoTableName), nil
}

// seedDemoEvent creates a paid event with a well-known id so the register CLI
// has something to point at out of the box.
func seedDemoEvent(ctx context.Context, logger *slog.Logger, db httpapi.DB) {
	event := events.Event{
		ID:                   uuid.MustParse("6b4b1c9e-0000-4000-8000-000000000001"),
		Version:              1,
		Name:                 "Pulsefest Battle of Bands",
		Fee:                  money.New(150000, money.INR),
		AllowedTeamSizeRange: events.Range{Min: 2, Max: 8},
		Capacity:             64,
		RegistrationCloseTime: time.Now().
			Add(30 * 24 * time.Hour),
	}

	err := db.CreateEvent(ctx, event)
	if err != nil {
		logger.Warn("Demo event not seeded", slog.String("error", err.Error()))
		return
	}

	logger.Info("Seeded demo event", slog.String("eventId", event.ID.String()))
}
