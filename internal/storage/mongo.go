package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storyloom/pkg/types"
)

const storiesCollection = "stories"

// storyDocument is the remote row shape: the full aggregate as an opaque
// document plus denormalized columns for listing, keyed by story id and
// owning user id.
type storyDocument struct {
	ID        string      `bson:"_id"`
	OwnerID   string      `bson:"owner_id"`
	Title     string      `bson:"title"`
	CreatedAt time.Time   `bson:"created_at"`
	UpdatedAt time.Time   `bson:"updated_at"`
	Document  types.Story `bson:"document"`
}

// MongoStore is the remote persistence backend. Upserts are
// last-write-wins by story id; there is no version vector or conflict
// detection, so concurrent sessions on the same id overwrite each other.
type MongoStore struct {
	client  *mongo.Client
	stories *mongo.Collection
	ownerID string
	logger  *slog.Logger
}

// NewMongoStore connects to the remote database and verifies the
// connection.
func NewMongoStore(ctx context.Context, uri, database, ownerID string, logger *slog.Logger) (*MongoStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if database == "" {
		database = "storyloom"
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to remote store: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to reach remote store: %w", err)
	}

	return &MongoStore{
		client:  client,
		stories: client.Database(database).Collection(storiesCollection),
		ownerID: ownerID,
		logger:  logger,
	}, nil
}

// Load reads one story document by id, scoped to the owning user.
func (m *MongoStore) Load(ctx context.Context, id string) (*types.Story, error) {
	var doc storyDocument
	err := m.stories.FindOne(ctx, m.filter(id)).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load story: %w", err)
	}
	return &doc.Document, nil
}

// Save upserts the story by id. Last write wins.
func (m *MongoStore) Save(ctx context.Context, s *types.Story) error {
	doc := storyDocument{
		ID:        s.ID,
		OwnerID:   m.ownerID,
		Title:     s.Title,
		CreatedAt: s.CreatedAt,
		UpdatedAt: time.Now(),
		Document:  *s,
	}

	_, err := m.stories.ReplaceOne(ctx, m.filter(s.ID), doc, options.Replace().SetUpsert(true))
	if err != nil {
		m.logger.Error("story upsert failed", "id", s.ID, "error", err)
		return fmt.Errorf("failed to save story: %w", err)
	}
	return nil
}

// List enumerates the user's stories from the denormalized columns only.
func (m *MongoStore) List(ctx context.Context) ([]Listing, error) {
	opts := options.Find().
		SetProjection(bson.M{"title": 1, "updated_at": 1}).
		SetSort(bson.M{"updated_at": -1})

	cursor, err := m.stories.Find(ctx, bson.M{"owner_id": m.ownerID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}
	defer cursor.Close(ctx)

	var listings []Listing
	for cursor.Next(ctx) {
		var doc storyDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		listings = append(listings, Listing{ID: doc.ID, Title: doc.Title, UpdatedAt: doc.UpdatedAt})
	}
	return listings, cursor.Err()
}

// Delete removes one story by id.
func (m *MongoStore) Delete(ctx context.Context, id string) error {
	if _, err := m.stories.DeleteOne(ctx, m.filter(id)); err != nil {
		return fmt.Errorf("failed to delete story: %w", err)
	}
	return nil
}

// Close disconnects from the remote database.
func (m *MongoStore) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *MongoStore) filter(id string) bson.M {
	f := bson.M{"_id": id}
	if m.ownerID != "" {
		f["owner_id"] = m.ownerID
	}
	return f
}
