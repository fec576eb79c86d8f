package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/ariefcatur/go-shop-checkout/internal/checkout"
	"github.com/ariefcatur/go-shop-checkout/internal/config"
	kafkax "github.com/ariefcatur/go-shop-checkout/internal/kafka"
	"github.com/ariefcatur/go-shop-checkout/internal/redisx"
	"github.com/ariefcatur/go-shop-checkout/internal/restock"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.ServiceName+"-restock").Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	watcher := &restock.Watcher{
		Redis:       rdb,
		Log:         log,
		ServiceName: "restock",
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.RestockGroup, checkout.TopicCheckoutSettled, cfg.RestockWorkers, log)

	go func() {
		log.Info().
			Str("group", cfg.RestockGroup).
			Str("topic", checkout.TopicCheckoutSettled).
			Int("workers", cfg.RestockWorkers).
			Msg("restock watcher started")
		if err := cons.Start(ctx, watcher.HandleSettled); err != nil {
			log.Error().Err(err).Msg("consumer exit")
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down consumer...")
	cancel()
}
