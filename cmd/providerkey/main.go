// Command providerkey stores an image provider API key in the database so the
// API can pick it up without the key living in its environment.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"promptbatch/internal/infra"
	"promptbatch/internal/infra/credentials"
)

var envKeys = map[string]string{
	credentials.ProviderQwen:   "QWEN_API_KEY",
	credentials.ProviderGemini: "GEMINI_API_KEY",
}

func main() {
	_ = godotenv.Load()

	provider := flag.String("provider", credentials.ProviderQwen, "provider to configure: qwen or gemini")
	key := flag.String("key", "", "API key; defaults to QWEN_API_KEY or GEMINI_API_KEY")
	flag.Parse()

	if err := run(*provider, *key); err != nil {
		fmt.Fprintln(os.Stderr, "providerkey:", err)
		os.Exit(1)
	}
}

func run(provider, key string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if !credentials.IsSupported(provider) {
		return fmt.Errorf("unsupported provider %q", provider)
	}
	if key = strings.TrimSpace(key); key == "" {
		key = strings.TrimSpace(os.Getenv(envKeys[provider]))
	}
	if key == "" {
		return fmt.Errorf("no key given: pass -key or set %s", envKeys[provider])
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := infra.NewDBPool(ctx, &infra.Config{DatabaseURL: os.Getenv("DATABASE_URL")})
	if errors.Is(err, infra.ErrDatabaseDisabled) {
		return errors.New("DATABASE_URL is required")
	}
	if err != nil {
		return err
	}
	defer pool.Close()

	logger := infra.NewLogger("cli", os.Getenv("LOG_LEVEL")).With().Str("cmd", "providerkey").Str("provider", provider).Logger()
	store := credentials.NewStore(infra.NewSQLRunner(pool, logger))
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := store.SetToken(ctx, provider, key); err != nil {
		return fmt.Errorf("store %s key: %w", provider, err)
	}
	logger.Info().Msg("api key stored")
	return nil
}
