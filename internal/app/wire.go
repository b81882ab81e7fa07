package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/oraclebot/internal/blob/s3"
	"github.com/alanyoungcy/oraclebot/internal/cache/redis"
	"github.com/alanyoungcy/oraclebot/internal/config"
	"github.com/alanyoungcy/oraclebot/internal/crypto"
	"github.com/alanyoungcy/oraclebot/internal/domain"
	"github.com/alanyoungcy/oraclebot/internal/notify"
	"github.com/alanyoungcy/oraclebot/internal/oracle"
	"github.com/alanyoungcy/oraclebot/internal/provider/binance"
	"github.com/alanyoungcy/oraclebot/internal/provider/coingecko"
	"github.com/alanyoungcy/oraclebot/internal/provider/gamma"
	"github.com/alanyoungcy/oraclebot/internal/provider/sportmonks"
	"github.com/alanyoungcy/oraclebot/internal/provider/sportsdb"
	"github.com/alanyoungcy/oraclebot/internal/service"
	"github.com/alanyoungcy/oraclebot/internal/store/postgres"
)

// Dependencies bundles everything the run loops need. It is constructed by
// Wire and torn down by the returned cleanup function.
type Dependencies struct {
	SnapshotStore domain.SnapshotStore
	MarketService *service.MarketService

	CryptoOracle *oracle.CryptoOracle
	SportsOracle *oracle.SportsOracle

	VolumeFeed  *gamma.Client
	VolumeCache domain.VolumeCache

	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader

	Notifier *notify.Notifier
	Events   *notify.Events
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function to be
// called on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.SnapshotStore = postgres.NewSnapshotStore(pool)
	deps.MarketService = service.NewMarketService(postgres.NewMarketStore(pool), logger)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })
	deps.VolumeCache = redis.NewVolumeCache(redisClient)

	// --- Signing + oracles ---
	signer, err := crypto.NewSigner(cfg.Oracle.SigningSecret)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: signer: %w", err)
	}

	priceProviders := []oracle.PriceProvider{
		coingecko.New(coingecko.Config{
			Enabled: cfg.Providers.CoinGecko.Enabled,
			BaseURL: cfg.Providers.CoinGecko.BaseURL,
			Timeout: cfg.Providers.CoinGecko.Timeout.Duration,
		}),
		binance.New(binance.Config{
			Enabled: cfg.Providers.Binance.Enabled,
			BaseURL: cfg.Providers.Binance.BaseURL,
			Timeout: cfg.Providers.Binance.Timeout.Duration,
		}),
	}
	deps.CryptoOracle = oracle.NewCryptoOracle(
		priceProviders, deps.SnapshotStore, signer, cfg.Oracle.Publisher, logger)

	sportsDB := sportsdb.New(sportsdb.Config{
		APIKey:  cfg.Providers.SportsDB.APIKey,
		BaseURL: cfg.Providers.SportsDB.BaseURL,
		Timeout: cfg.Providers.SportsDB.Timeout.Duration,
	})
	eventProviders := []oracle.EventProvider{
		sportsDB,
		sportmonks.New(sportmonks.Config{
			APIToken: cfg.Providers.Sportmonks.APIToken,
			BaseURL:  cfg.Providers.Sportmonks.BaseURL,
			Timeout:  cfg.Providers.Sportmonks.Timeout.Duration,
		}),
	}
	deps.SportsOracle = oracle.NewSportsOracle(
		eventProviders, sportsDB, deps.SnapshotStore, signer, cfg.Oracle.Publisher, logger)

	deps.VolumeFeed = gamma.New(gamma.Config{
		BaseURL: cfg.Providers.Gamma.BaseURL,
		Timeout: cfg.Providers.Gamma.Timeout.Duration,
	})

	// --- S3 blob storage (only when the archiver is on) ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	deps.Events = notify.NewEvents(deps.Notifier)

	return deps, cleanup, nil
}
