package cron_feature

import (
	"context"
	"time"

	"kod-admin/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ReconcileRepository interface {
	CreateRun(ctx context.Context, run *ReconcileRun) error
	UpdateRun(ctx context.Context, run *ReconcileRun) error
	ListRuns(ctx context.Context, limit int) ([]ReconcileRun, error)
}

type ReconcileRepositoryImpl struct {
	collection *mongo.Collection
}

func NewReconcileRepository(db *database.MongodbDB) ReconcileRepository {
	return &ReconcileRepositoryImpl{
		collection: db.DB.Collection("reconcile_runs"),
	}
}

func (r *ReconcileRepositoryImpl) CreateRun(ctx context.Context, run *ReconcileRun) error {
	run.ID = primitive.NewObjectID()
	run.CreatedAt = time.Now()

	_, err := r.collection.InsertOne(ctx, run)
	return err
}

func (r *ReconcileRepositoryImpl) UpdateRun(ctx context.Context, run *ReconcileRun) error {
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": run.ID}, run)
	return err
}

func (r *ReconcileRepositoryImpl) ListRuns(ctx context.Context, limit int) ([]ReconcileRun, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "start_time", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	runs := []ReconcileRun{}
	if err := cursor.All(ctx, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}
