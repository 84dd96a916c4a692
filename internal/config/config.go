package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	CRDBDSN              string
	MongoURI             string
	RedisAddr            string
	RabbitURL            string
	OTLPEndpoint         string
	PaymentDeadline      time.Duration
	WaitlistTTL          time.Duration
	MaxChildrenPerParent int
	ListenAddr           string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	paymentDeadline, _ := time.ParseDuration(os.Getenv("PAYMENT_DEADLINE"))
	if paymentDeadline == 0 {
		paymentDeadline = 120 * time.Hour
	}

	waitlistTTL, _ := time.ParseDuration(os.Getenv("WAITLIST_TTL"))
	if waitlistTTL == 0 {
		waitlistTTL = 72 * time.Hour
	}

	maxChildren, _ := strconv.Atoi(os.Getenv("MAX_CHILDREN_PER_PARENT"))
	if maxChildren == 0 {
		maxChildren = 5
	}

	listenAddr := os.Getenv("LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = ":8080"
	}

	return &Config{
		CRDBDSN:              os.Getenv("CRDB_DSN"),
		MongoURI:             os.Getenv("MONGO_URI"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		RabbitURL:            os.Getenv("RABBIT_URL"),
		OTLPEndpoint:         os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		PaymentDeadline:      paymentDeadline,
		WaitlistTTL:          waitlistTTL,
		MaxChildrenPerParent: maxChildren,
		ListenAddr:           listenAddr,
	}, nil
}
