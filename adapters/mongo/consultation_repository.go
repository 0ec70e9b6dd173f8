package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/satriahrh/aidoctor/domain/entities"
	"github.com/satriahrh/aidoctor/domain/repositories"
)

const consultationsCollection = "consultations"

// ConsultationRepository stores finished consultations in MongoDB
type ConsultationRepository struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

var _ repositories.ConsultationRepository = (*ConsultationRepository)(nil)

// NewConsultationRepository creates the repository and ensures its indexes.
// retention of zero keeps history forever.
func NewConsultationRepository(ctx context.Context, db *mongo.Database, retention time.Duration, logger *zap.Logger) (*ConsultationRepository, error) {
	collection := db.Collection(consultationsCollection)

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "created_at", Value: -1}}},
	}
	if retention > 0 {
		indexes = append(indexes, mongo.IndexModel{
			Keys:    bson.D{{Key: "created_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(retention.Seconds())),
		})
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("failed to create consultation indexes: %w", err)
	}
	logger.Info("Consultation indexes created successfully")

	return &ConsultationRepository{
		collection: collection,
		logger:     logger,
	}, nil
}

// Save implements repositories.ConsultationRepository
func (r *ConsultationRepository) Save(ctx context.Context, result *entities.ConsultationResult) error {
	if result == nil {
		return errors.New("result cannot be nil")
	}
	if result.ID == "" {
		return errors.New("result ID cannot be empty")
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now()
	}

	if _, err := r.collection.InsertOne(ctx, result); err != nil {
		r.logger.Error("Failed to save consultation", zap.Error(err), zap.String("sessionID", result.SessionID))
		return fmt.Errorf("failed to save consultation: %w", err)
	}

	r.logger.Info("Consultation saved",
		zap.String("consultationID", result.ID),
		zap.String("sessionID", result.SessionID))
	return nil
}

// ListBySession implements repositories.ConsultationRepository, newest first
func (r *ConsultationRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]*entities.ConsultationResult, error) {
	if sessionID == "" {
		return nil, errors.New("session ID cannot be empty")
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list consultations for session %s: %w", sessionID, err)
	}
	defer cursor.Close(ctx)

	var results []*entities.ConsultationResult
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("failed to decode consultations: %w", err)
	}
	return results, nil
}
