// internal/database/user_repository.go
package database

import (
	"context"
	"strings"
	"time"

	"twiller/internal/models"
	"twiller/internal/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UserDocument represents the MongoDB schema for a user profile. The email is the key.
type UserDocument struct {
	Email        string    `bson:"_id"`
	Name         string    `bson:"name"`
	Username     string    `bson:"username"`
	Bio          string    `bson:"bio"`
	Location     string    `bson:"location"`
	Website      string    `bson:"website"`
	DOB          string    `bson:"dob"`
	ProfileImage string    `bson:"profileimage"`
	CoverImage   string    `bson:"coverimage"`
	CreatedAt    time.Time `bson:"createdat"`
	UpdatedAt    time.Time `bson:"updatedat"`
}

func userToDocument(u *models.User) UserDocument {
	return UserDocument{
		Email:        u.Email,
		Name:         u.Name,
		Username:     u.Username,
		Bio:          u.Bio,
		Location:     u.Location,
		Website:      u.Website,
		DOB:          u.DOB,
		ProfileImage: u.ProfileImage,
		CoverImage:   u.CoverImage,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (doc *UserDocument) toModel() *models.User {
	return &models.User{
		Email:        doc.Email,
		Name:         doc.Name,
		Username:     doc.Username,
		Bio:          doc.Bio,
		Location:     doc.Location,
		Website:      doc.Website,
		DOB:          doc.DOB,
		ProfileImage: doc.ProfileImage,
		CoverImage:   doc.CoverImage,
		CreatedAt:    doc.CreatedAt.UTC(),
		UpdatedAt:    doc.UpdatedAt.UTC(),
	}
}

// SaveUser creates or replaces a profile. createdat is only written on insert.
func (m *MongoDB) SaveUser(ctx context.Context, user *models.User) error {
	doc := userToDocument(user)
	set := bson.M{
		"name":         doc.Name,
		"username":     doc.Username,
		"bio":          doc.Bio,
		"location":     doc.Location,
		"website":      doc.Website,
		"dob":          doc.DOB,
		"profileimage": doc.ProfileImage,
		"coverimage":   doc.CoverImage,
		"updatedat":    doc.UpdatedAt,
	}

	opts := options.Update().SetUpsert(true)
	filter := bson.M{"_id": user.Email}
	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"createdat": doc.CreatedAt},
	}

	_, err := m.Users.UpdateOne(ctx, filter, update, opts)
	return utils.NewDatabaseError("save user", err)
}

// GetUserByEmail retrieves a profile by email.
func (m *MongoDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var doc UserDocument

	err := m.Users.FindOne(ctx, bson.M{"_id": email}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, utils.NewUserNotFoundError(email)
	}
	if err != nil {
		return nil, utils.NewDatabaseError("get user", err)
	}
	return doc.toModel(), nil
}

// ListUsers returns every profile, oldest first.
func (m *MongoDB) ListUsers(ctx context.Context) ([]*models.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdat", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := m.Users.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, utils.NewDatabaseError("list users", err)
	}
	defer cursor.Close(ctx)

	users := make([]*models.User, 0)
	for cursor.Next(ctx) {
		var doc UserDocument
		if err := cursor.Decode(&doc); err != nil {
			m.logger.Error().Err(err).Msg("Error decoding user document")
			continue
		}
		users = append(users, doc.toModel())
	}
	if err := cursor.Err(); err != nil {
		return nil, utils.NewDatabaseError("list users", err)
	}
	return users, nil
}

// UpdateUser applies the set fields of upd, creating the profile when missing.
func (m *MongoDB) UpdateUser(ctx context.Context, email string, upd *models.UserUpdate, at time.Time) (bool, error) {
	set := bson.M{"updatedat": at}
	for field, value := range upd.Fields() {
		set[strings.ToLower(field)] = value
	}

	opts := options.Update().SetUpsert(true)
	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"createdat": at},
	}

	result, err := m.Users.UpdateOne(ctx, bson.M{"_id": email}, update, opts)
	if err != nil {
		return false, utils.NewDatabaseError("update user", err)
	}
	return result.UpsertedCount > 0, nil
}
