package di

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/clients/paper"
	"github.com/aristath/rebalancer/internal/config"
	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/modules/allocation"
	"github.com/aristath/rebalancer/internal/modules/market_hours"
	"github.com/aristath/rebalancer/internal/notify"
	"github.com/aristath/rebalancer/internal/queue"
)

const notifyBuffer = 256

// InitializeServices connects to Redis and builds the repositories, broker,
// market-hours policy and notifier
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.AllocRepo = allocation.NewRepository(container.AllocationDB.Conn(), log)

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	container.Redis = client

	container.Queue = queue.New(client, queue.Options{
		Prefix:     cfg.QueuePrefix,
		RetryDelay: cfg.RetryDelay,
		Defaults:   container.AllocRepo,
	}, log)

	container.Broker = paper.New(cfg.PaperCash, cfg.PaperPrices, log)

	container.MarketHours = market_hours.NewPolicy(nil, market_hours.PolicyConfig{
		Exchange:  cfg.MarketExchange,
		MOCWindow: cfg.MOCWindow,
		OpenDelay: cfg.MarketOpenDelay,
	})

	sinks := []domain.Notifier{notify.NewLogNotifier(log)}
	telegram := notify.NewTelegramNotifier("", cfg.TelegramBotToken, cfg.TelegramChatID, log)
	if telegram.Enabled() {
		sinks = append(sinks, telegram)
		log.Info().Msg("Telegram notifications enabled")
	}
	container.Notifier = notify.NewAsync(notifyBuffer, log, sinks...)

	log.Info().
		Str("redis", cfg.RedisAddr).
		Str("prefix", cfg.QueuePrefix).
		Str("exchange", container.MarketHours.Exchange()).
		Msg("Services initialized")
	return nil
}
