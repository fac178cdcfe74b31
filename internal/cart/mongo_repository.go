package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrCartNotFound  = errors.New("cart not found")
	ErrItemNotFound  = errors.New("item not found in cart")
	ErrQuantityLimit = errors.New("line quantity limit reached")
)

// attempts at the increment-or-push sequence before giving up on a contended cart
const maxAddAttempts = 3

type mongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) Repository {
	return &mongoRepository{
		collection: db.Collection("carts"),
	}
}

func (m *mongoRepository) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	var cart domain.Cart

	filter := bson.M{"user_id": userID}
	err := m.collection.FindOne(ctx, filter).Decode(&cart)

	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	return &cart, nil
}

// AddOrIncrement increments the line's quantity in place when the (product, size)
// line exists and pushes a new line otherwise. Both steps are single-document
// atomic updates, so concurrent adds never produce two lines for one key. An
// increment that would take the line past domain.MaxQuantity is not applied and
// returns ErrQuantityLimit.
func (m *mongoRepository) AddOrIncrement(ctx context.Context, userID string, line domain.CartLine) error {
	if line.Quantity > domain.MaxQuantity {
		return ErrQuantityLimit
	}

	for attempt := 0; attempt < maxAddAttempts; attempt++ {
		now := time.Now()

		// Increment an existing line that has room for the added quantity
		room := lineMatch(line.Key())
		room["quantity"] = bson.M{"$lte": domain.MaxQuantity - line.Quantity}
		filter := bson.M{
			"user_id": userID,
			"items":   bson.M{"$elemMatch": room},
		}
		update := bson.M{
			"$inc": bson.M{"items.$.quantity": line.Quantity},
			"$set": bson.M{"updated_at": now},
		}
		result, err := m.collection.UpdateOne(ctx, filter, update)
		if err != nil {
			return fmt.Errorf("failed to increment item: %w", err)
		}
		if result.MatchedCount > 0 {
			return nil
		}

		// Push a new line, creating the cart if needed
		line.AddedAt = now
		filter = bson.M{
			"user_id": userID,
			"items":   bson.M{"$not": bson.M{"$elemMatch": lineMatch(line.Key())}},
		}
		update = bson.M{
			"$push":        bson.M{"items": line},
			"$set":         bson.M{"updated_at": now},
			"$setOnInsert": bson.M{"created_at": now},
		}
		_, err = m.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
		if err == nil {
			return nil
		}
		// the line exists but has no room, or it appeared between the two updates;
		// either way the upsert collided with the existing cart
		if !mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("failed to add new item: %w", err)
		}
		full := lineMatch(line.Key())
		full["quantity"] = bson.M{"$gt": domain.MaxQuantity - line.Quantity}
		n, err := m.collection.CountDocuments(ctx, bson.M{
			"user_id": userID,
			"items":   bson.M{"$elemMatch": full},
		})
		if err != nil {
			return fmt.Errorf("failed to check item quantity: %w", err)
		}
		if n > 0 {
			return ErrQuantityLimit
		}
	}

	return fmt.Errorf("failed to add item: cart %s is contended", userID)
}

func (m *mongoRepository) SetQuantity(ctx context.Context, userID string, key domain.LineKey, quantity int) error {
	filter := bson.M{
		"user_id": userID,
		"items":   bson.M{"$elemMatch": lineMatch(key)},
	}

	update := bson.M{
		"$set": bson.M{
			"items.$.quantity": quantity,
			"updated_at":       time.Now(),
		},
	}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update item quantity: %w", err)
	}

	if result.MatchedCount == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (m *mongoRepository) RemoveLine(ctx context.Context, userID string, key domain.LineKey) error {
	filter := bson.M{"user_id": userID}
	update := bson.M{
		"$pull": bson.M{
			"items": lineMatch(key),
		},
		"$set": bson.M{"updated_at": time.Now()},
	}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to remove item: %w", err)
	}

	if result.MatchedCount == 0 {
		return ErrCartNotFound
	}

	return nil
}

func (m *mongoRepository) DeleteCart(ctx context.Context, userID string) error {
	filter := bson.M{"user_id": userID}

	result, err := m.collection.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}

	if result.DeletedCount == 0 {
		return ErrCartNotFound
	}

	return nil
}

func (m *mongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60), // 90 days TTL
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

func lineMatch(key domain.LineKey) bson.M {
	return bson.M{"product_id": key.ProductID, "size": key.Size}
}

// EnsureIndexes creates the carts indexes when repo is backed by MongoDB.
func EnsureIndexes(ctx context.Context, repo Repository) error {
	if m, ok := repo.(*mongoRepository); ok {
		return m.CreateIndexes(ctx)
	}
	return nil
}
