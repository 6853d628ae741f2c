// Package config builds runtime configuration from environment variables so
// main stays lean. Every backend is optional: with no postgres, redis, or
// kafka configured the service runs fully in memory, which is the mode the
// test suites use.
package config

import (
	"os"
	"strconv"
	"strings"

	pstrings "tranchebook/pkg/platform/strings"
)

// Config captures service-level configuration.
type Config struct {
	Addr string

	// PostgresDSN enables the postgres ledger and document stores.
	PostgresDSN string
	// RedisURL enables the redis document store and deny list.
	RedisURL string

	// KafkaBrokers and KafkaTopic enable the event publisher.
	KafkaBrokers []string
	KafkaTopic   string

	// Controller is the only address allowed to issue and finalize.
	Controller string
	// GlobalOperators are seeded as irrevocable default operators.
	GlobalOperators []string
	// TrancheOperators seeds tranche-level default operators, keyed by
	// tranche name.
	TrancheOperators map[string][]string
	// Granularity is the minimum transferable unit; 0 disables it.
	Granularity uint64
	// ApprovalSecret keys the reference off-chain approval verifier.
	ApprovalSecret string
	// AdminToken, when set, additionally gates issuance endpoints behind an
	// X-Admin-Token header check.
	AdminToken string
}

// FromEnv reads configuration with development defaults.
func FromEnv() Config {
	cfg := Config{
		Addr:           envOr("TRANCHEBOOK_ADDR", ":8080"),
		PostgresDSN:    os.Getenv("TRANCHEBOOK_POSTGRES_DSN"),
		RedisURL:       os.Getenv("TRANCHEBOOK_REDIS_URL"),
		KafkaTopic:     envOr("TRANCHEBOOK_KAFKA_TOPIC", "tranchebook.events"),
		Controller:     envOr("TRANCHEBOOK_CONTROLLER", "controller"),
		ApprovalSecret: os.Getenv("TRANCHEBOOK_APPROVAL_SECRET"),
		AdminToken:     os.Getenv("TRANCHEBOOK_ADMIN_TOKEN"),
	}
	if brokers := os.Getenv("TRANCHEBOOK_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = pstrings.DedupeAndTrim(strings.Split(brokers, ","))
	}
	if ops := os.Getenv("TRANCHEBOOK_GLOBAL_OPERATORS"); ops != "" {
		cfg.GlobalOperators = pstrings.DedupeAndTrim(strings.Split(ops, ","))
	}
	// Format: "tranche:operator,tranche:operator"; repeat the tranche to
	// seed several operators.
	if pairs := os.Getenv("TRANCHEBOOK_TRANCHE_OPERATORS"); pairs != "" {
		cfg.TrancheOperators = make(map[string][]string)
		for _, pair := range pstrings.DedupeAndTrim(strings.Split(pairs, ",")) {
			tranche, op, ok := strings.Cut(pair, ":")
			if !ok {
				continue
			}
			cfg.TrancheOperators[tranche] = append(cfg.TrancheOperators[tranche], op)
		}
	}
	if g := os.Getenv("TRANCHEBOOK_GRANULARITY"); g != "" {
		if parsed, err := strconv.ParseUint(g, 10, 64); err == nil {
			cfg.Granularity = parsed
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
