package role

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kod-admin/internal/database"
	"kod-admin/internal/features/permission"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type RoleRepository interface {
	Create(ctx context.Context, role *Role) error
	FindByName(ctx context.Context, name string) (*Role, error)
	List(ctx context.Context) ([]Role, error)
	FindAllExceptSuperAdmin(ctx context.Context) ([]Role, error)
	// ReplacePermissions overwrites the permission set and returns the role as
	// it was before the update.
	ReplacePermissions(ctx context.Context, name string, permissions []string, at time.Time) (*Role, error)
	AddPermission(ctx context.Context, name, token string, at time.Time) (*Role, error)
	RemovePermission(ctx context.Context, name, token string, at time.Time) (*Role, error)
	Delete(ctx context.Context, name string) error
	EnsureIndexes(ctx context.Context) error
}

type RoleRepositoryImpl struct {
	Collection *mongo.Collection
}

func NewRoleRepository(mongodb *database.MongodbDB) RoleRepository {
	return &RoleRepositoryImpl{
		Collection: mongodb.DB.Collection("roles"),
	}
}

func (r *RoleRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.Collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "role", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("role_unique"),
	})
	return err
}

func (r *RoleRepositoryImpl) Create(ctx context.Context, role *Role) error {
	_, err := r.Collection.InsertOne(ctx, role)
	if mongo.IsDuplicateKeyError(err) {
		return ErrRoleExists
	}
	return err
}

func (r *RoleRepositoryImpl) FindByName(ctx context.Context, name string) (*Role, error) {
	var role Role
	err := r.Collection.FindOne(ctx, bson.M{"role": name}).Decode(&role)
	if err != nil {
		return nil, notFound(err)
	}
	return &role, nil
}

func (r *RoleRepositoryImpl) List(ctx context.Context) ([]Role, error) {
	return r.find(ctx, bson.M{})
}

func (r *RoleRepositoryImpl) FindAllExceptSuperAdmin(ctx context.Context) ([]Role, error) {
	return r.find(ctx, bson.M{"role": bson.M{"$ne": permission.SuperAdminRole}})
}

func (r *RoleRepositoryImpl) ReplacePermissions(ctx context.Context, name string, permissions []string, at time.Time) (*Role, error) {
	update := bson.M{
		"$set": bson.M{
			"permissions": permissions,
			"updated_at":  at,
		},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)

	var before Role
	if err := r.Collection.FindOneAndUpdate(ctx, bson.M{"role": name}, update, opts).Decode(&before); err != nil {
		return nil, notFound(err)
	}
	return &before, nil
}

func (r *RoleRepositoryImpl) AddPermission(ctx context.Context, name, token string, at time.Time) (*Role, error) {
	return r.updateAfter(ctx, name, bson.M{
		"$addToSet": bson.M{"permissions": token},
		"$set":      bson.M{"updated_at": at},
	})
}

func (r *RoleRepositoryImpl) RemovePermission(ctx context.Context, name, token string, at time.Time) (*Role, error) {
	return r.updateAfter(ctx, name, bson.M{
		"$pull": bson.M{"permissions": token},
		"$set":  bson.M{"updated_at": at},
	})
}

func (r *RoleRepositoryImpl) Delete(ctx context.Context, name string) error {
	result, err := r.Collection.DeleteOne(ctx, bson.M{"role": name, "is_removable": true})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrRoleNotRemovable
	}
	return nil
}

func (r *RoleRepositoryImpl) updateAfter(ctx context.Context, name string, update bson.M) (*Role, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var role Role
	if err := r.Collection.FindOneAndUpdate(ctx, bson.M{"role": name}, update, opts).Decode(&role); err != nil {
		return nil, notFound(err)
	}
	return &role, nil
}

func (r *RoleRepositoryImpl) find(ctx context.Context, filter bson.M) ([]Role, error) {
	opts := options.Find().SetSort(bson.D{{Key: "role", Value: 1}})
	cursor, err := r.Collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	roles := []Role{}
	if err = cursor.All(ctx, &roles); err != nil {
		return nil, err
	}
	return roles, nil
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrRoleNotFound
	}
	return fmt.Errorf("roles: %w", err)
}
