package database

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoDB wraps the client used for the analytics archive
type MongoDB struct {
	client   *mongo.Client
	database *mongo.Database
}

// Collection names
const (
	CollectionAnalyticsSnapshots = "analytics_snapshots"
)

const defaultMongoDBName = "inkwell"

// NewMongoDB creates a new MongoDB connection with connection pooling
func NewMongoDB(uri string) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(10).
		SetMinPoolSize(1).
		SetMaxConnIdleTime(30 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	dbName := extractDBName(uri)

	log.Printf("✅ [MONGODB] Connected to database: %s", dbName)

	return &MongoDB{
		client:   client,
		database: client.Database(dbName),
	}, nil
}

// extractDBName pulls the database name out of the URI path
// mongodb://localhost:27017/inkwell?authSource=admin -> inkwell
func extractDBName(uri string) string {
	rest := uri
	if idx := strings.Index(rest, "://"); idx >= 0 {
		rest = rest[idx+3:]
	}
	if idx := strings.Index(rest, "?"); idx >= 0 {
		rest = rest[:idx]
	}

	slash := strings.Index(rest, "/")
	if slash < 0 || slash == len(rest)-1 {
		return defaultMongoDBName
	}
	return rest[slash+1:]
}

// Initialize creates indexes for the snapshot collection
func (m *MongoDB) Initialize(ctx context.Context) error {
	log.Println("📦 [MONGODB] Initializing indexes...")

	_, err := m.Collection(CollectionAnalyticsSnapshots).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "entityKind", Value: 1},
				{Key: "entityId", Value: 1},
				{Key: "day", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "day", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create %s indexes: %w", CollectionAnalyticsSnapshots, err)
	}

	log.Println("✅ [MONGODB] Indexes initialized")
	return nil
}

// Collection returns a collection handle
func (m *MongoDB) Collection(name string) *mongo.Collection {
	return m.database.Collection(name)
}

// Close closes the MongoDB connection
func (m *MongoDB) Close(ctx context.Context) error {
	log.Println("🔌 [MONGODB] Closing connection...")
	return m.client.Disconnect(ctx)
}

// Ping checks if the database connection is alive
func (m *MongoDB) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}
