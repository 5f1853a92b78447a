package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/goliatone/go-session"
	"github.com/uptrace/bun"
)

// UserProfileModel is the Bun model for profile documents. The primary key
// is the provider identity id, so rows are keyed by an opaque string rather
// than a locally minted uuid.
type UserProfileModel struct {
	bun.BaseModel `bun:"table:user_profiles,alias:prf"`

	ID            string          `bun:"id,pk"`
	Email         string          `bun:"email,notnull"`
	DisplayName   string          `bun:"display_name"`
	EmailVerified bool            `bun:"is_email_verified"`
	Role          string          `bun:"user_role,notnull"`
	ProfileData   json.RawMessage `bun:"profile_data,type:jsonb"`
	Subscription  json.RawMessage `bun:"subscription,type:jsonb"`
	LastLogin     *time.Time      `bun:"last_login,nullzero"`
	CreatedAt     *time.Time      `bun:"created_at,nullzero,default:current_timestamp"`
	UpdatedAt     *time.Time      `bun:"updated_at,nullzero"`
}

// ProfileRepository implements session.ProfileStore using Bun.
type ProfileRepository struct {
	db *bun.DB
}

var _ session.ProfileStore = (*ProfileRepository)(nil)

// NewProfileRepository creates a new repository.
func NewProfileRepository(db *bun.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Get implements session.ProfileStore.
func (r *ProfileRepository) Get(ctx context.Context, id string) (*session.UserProfile, error) {
	var model UserProfileModel
	err := r.db.NewSelect().
		Model(&model).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		// sql.ErrNoRows maps to the not-found flow upstream
		return nil, err
	}
	return r.toProfile(&model)
}

// Create implements session.ProfileStore.
func (r *ProfileRepository) Create(ctx context.Context, profile *session.UserProfile) error {
	model, err := r.fromProfile(profile)
	if err != nil {
		return err
	}
	if model.CreatedAt == nil {
		now := time.Now()
		model.CreatedAt = &now
	}
	_, err = r.db.NewInsert().
		Model(model).
		Exec(ctx)
	return err
}

// Update implements session.ProfileStore.
func (r *ProfileRepository) Update(ctx context.Context, profile *session.UserProfile) error {
	model, err := r.fromProfile(profile)
	if err != nil {
		return err
	}
	result, err := r.db.NewUpdate().
		Model(model).
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *ProfileRepository) toProfile(model *UserProfileModel) (*session.UserProfile, error) {
	profile := &session.UserProfile{
		ID:            model.ID,
		Email:         model.Email,
		DisplayName:   model.DisplayName,
		EmailVerified: model.EmailVerified,
		Role:          model.Role,
		LastLogin:     model.LastLogin,
		CreatedAt:     model.CreatedAt,
		UpdatedAt:     model.UpdatedAt,
	}
	if len(model.ProfileData) > 0 {
		if err := json.Unmarshal(model.ProfileData, &profile.Profile); err != nil {
			return nil, err
		}
	}
	if len(model.Subscription) > 0 {
		if err := json.Unmarshal(model.Subscription, &profile.Subscription); err != nil {
			return nil, err
		}
	}
	return profile, nil
}

func (r *ProfileRepository) fromProfile(profile *session.UserProfile) (*UserProfileModel, error) {
	profileData, err := json.Marshal(profile.Profile)
	if err != nil {
		return nil, err
	}
	subscription, err := json.Marshal(profile.Subscription)
	if err != nil {
		return nil, err
	}
	return &UserProfileModel{
		ID:            profile.ID,
		Email:         profile.Email,
		DisplayName:   profile.DisplayName,
		EmailVerified: profile.EmailVerified,
		Role:          profile.Role,
		ProfileData:   profileData,
		Subscription:  subscription,
		LastLogin:     profile.LastLogin,
		CreatedAt:     profile.CreatedAt,
		UpdatedAt:     profile.UpdatedAt,
	}, nil
}
