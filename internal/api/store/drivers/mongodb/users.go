package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coinpulse/coinpulse/internal/api/domain"
	"github.com/coinpulse/coinpulse/internal/api/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type userDocument struct {
	ID               string    `bson:"_id"`
	FullName         string    `bson:"full_name"`
	Email            string    `bson:"email"`
	Username         string    `bson:"username"`
	PasswordHash     string    `bson:"password_hash,omitempty"`
	Provider         string    `bson:"provider,omitempty"`
	ProviderSubject  string    `bson:"provider_subject,omitempty"`
	RefreshTokenHash string    `bson:"refresh_token_hash"`
	CreatedAt        time.Time `bson:"created_at"`
	UpdatedAt        time.Time `bson:"updated_at"`
}

type usersRepo struct {
	coll *mongo.Collection
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id}})
}

func (r *usersRepo) GetUserByIdentifier(ctx context.Context, username, email string) (domain.User, error) {
	var or bson.A
	if username != "" {
		or = append(or, bson.D{{Key: "username", Value: username}})
	}
	if email != "" {
		or = append(or, bson.D{{Key: "email", Value: email}})
	}
	if len(or) == 0 {
		return domain.User{}, store.ErrNotFound
	}
	return r.findOne(ctx, bson.D{{Key: "$or", Value: or}})
}

func (r *usersRepo) GetUserByProvider(ctx context.Context, provider, subject string) (domain.User, error) {
	return r.findOne(ctx, bson.D{
		{Key: "provider", Value: provider},
		{Key: "provider_subject", Value: subject},
	})
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = u.CreatedAt
	}

	_, err := r.coll.InsertOne(ctx, userDocument{
		ID:               u.ID,
		FullName:         u.FullName,
		Email:            u.Email,
		Username:         u.Username,
		PasswordHash:     u.PasswordHash,
		Provider:         u.Provider,
		ProviderSubject:  u.ProviderSubject,
		RefreshTokenHash: u.RefreshTokenHash,
		CreatedAt:        u.CreatedAt.UTC(),
		UpdatedAt:        u.UpdatedAt.UTC(),
	})
	return mapWriteError(err)
}

func (r *usersRepo) LinkProvider(ctx context.Context, userID, provider, subject string) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.D{
			{Key: "_id", Value: userID},
			{Key: "provider", Value: bson.D{{Key: "$in", Value: bson.A{nil, ""}}}},
		},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "provider", Value: provider},
			{Key: "provider_subject", Value: subject},
			{Key: "updated_at", Value: time.Now().UTC()},
		}}},
	)
	if err != nil {
		return mapWriteError(err)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	n, err := r.coll.CountDocuments(ctx, bson.D{{Key: "_id", Value: userID}})
	if err != nil {
		return err
	}
	if n > 0 {
		return store.ErrConflict
	}
	return store.ErrNotFound
	return nil
}

func (r *usersRepo) SetRefreshToken(ctx context.Context, userID, hash string) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: userID}},
		setRefresh(hash),
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// SwapRefreshToken filters on the current slot value so the update is a
// single-document compare-and-swap.
func (r *usersRepo) SwapRefreshToken(ctx context.Context, userID, expected, next string) error {
	if expected != "" {
		res, err := r.coll.UpdateOne(ctx,
			bson.D{
				{Key: "_id", Value: userID},
				{Key: "refresh_token_hash", Value: expected},
			},
			setRefresh(next),
		)
		if err != nil {
			return err
		}
		if res.MatchedCount == 1 {
			return nil
		}
	}

	n, err := r.coll.CountDocuments(ctx, bson.D{{Key: "_id", Value: userID}})
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return store.ErrConflict
}

func setRefresh(hash string) bson.D {
	return bson.D{{Key: "$set", Value: bson.D{
		{Key: "refresh_token_hash", Value: hash},
		{Key: "updated_at", Value: time.Now().UTC()},
	}}}
}

func (r *usersRepo) findOne(ctx context.Context, filter bson.D) (domain.User, error) {
	var doc userDocument
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.User{}, store.ErrNotFound
		}
		return domain.User{}, err
	}
	return mapUser(doc), nil
}

func mapWriteError(err error) error {
	if err != nil && mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", store.ErrAlreadyExists, err)
	}
	return err
}

func mapUser(doc userDocument) domain.User {
	return domain.User{
		ID:               doc.ID,
		FullName:         doc.FullName,
		Email:            doc.Email,
		Username:         doc.Username,
		PasswordHash:     doc.PasswordHash,
		Provider:         doc.Provider,
		ProviderSubject:  doc.ProviderSubject,
		RefreshTokenHash: doc.RefreshTokenHash,
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
	}
}
