// Package app is the core application service: catalog, users, comments,
// purchases, entitlements, and statistics, wired over the durable store,
// the Redis snapshot, object storage, and the wallet bridge.
package app

import (
	"fmt"
	"strings"
	"time"

	"spacebooks/internal/entitlement"
	"spacebooks/internal/events"
	"spacebooks/internal/purchase"
	"spacebooks/internal/snapshot"
	"spacebooks/internal/wallet"
	"spacebooks/pkg/storage"
	"spacebooks/pkg/store"
)

// Config holds runtime configuration for the core application. Store,
// Snapshot, Objects, Connector, and Publisher may be injected directly
// (tests do); otherwise they are built from the connection settings.
type Config struct {
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	WalletBridgeURL  string
	RecipientAddress string
	AMQPURL          string

	Store     store.Store
	Snapshot  snapshot.Store
	Objects   storage.ObjectStore
	Connector wallet.Connector
	Publisher events.Publisher
}

// App wires storage and domain logic together.
type App struct {
	store         store.Store
	snapshot      snapshot.Store
	objects       storage.ObjectStore
	entitlements  *entitlement.Repository
	purchases     *purchase.Orchestrator
	presignExpiry time.Duration
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	snap := cfg.Snapshot
	if snap == nil && strings.TrimSpace(cfg.RedisAddr) != "" {
		var err error
		snap, err = snapshot.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, "")
		if err != nil {
			return nil, fmt.Errorf("init snapshot store: %w", err)
		}
	}

	objects := cfg.Objects
	if objects == nil {
		var err error
		objects, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			return nil, fmt.Errorf("init object store: %w", err)
		}
	}

	connector := cfg.Connector
	if connector == nil {
		if cfg.WalletBridgeURL == "" {
			return nil, fmt.Errorf("wallet bridge URL required")
		}
		connector = wallet.NewBridgeClient(cfg.WalletBridgeURL, purchase.DefaultValidityWindow)
	}

	publisher := cfg.Publisher
	if publisher == nil {
		if strings.TrimSpace(cfg.AMQPURL) != "" {
			var err error
			publisher, err = events.NewAMQPPublisher(cfg.AMQPURL)
			if err != nil {
				return nil, fmt.Errorf("init event publisher: %w", err)
			}
		} else {
			publisher = events.NopPublisher{}
		}
	}

	orchestrator, err := purchase.New(purchase.Config{
		Connector: connector,
		Store:     dataStore,
		Snapshot:  snap,
		Publisher: publisher,
		Recipient: cfg.RecipientAddress,
	})
	if err != nil {
		return nil, fmt.Errorf("init purchase orchestrator: %w", err)
	}

	return &App{
		store:         dataStore,
		snapshot:      snap,
		objects:       objects,
		entitlements:  entitlement.NewRepository(dataStore, snap),
		purchases:     orchestrator,
		presignExpiry: 15 * time.Minute,
	}, nil
}
