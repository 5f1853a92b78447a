package session

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/nyaruka/phonenumbers"
)

// DefaultPhoneRegion is the region used to parse phone numbers that are not
// in international format.
var DefaultPhoneRegion = "US"

// PreferencesUpdate carries optional preference changes; nil fields are left
// untouched.
type PreferencesUpdate struct {
	Notifications *bool   `json:"notifications,omitempty"`
	Language      *string `json:"language,omitempty"`
	Timezone      *string `json:"timezone,omitempty"`
}

// SubscriptionUpdate carries optional subscription changes; nil fields are
// left untouched.
type SubscriptionUpdate struct {
	Plan      *string    `json:"plan,omitempty"`
	Status    *string    `json:"status,omitempty"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
}

// ProfileUpdate is a user-initiated partial update. It can only reach the
// profile and subscription sub-records; role and id are never touched by it.
type ProfileUpdate struct {
	FirstName      *string             `json:"first_name,omitempty"`
	LastName       *string             `json:"last_name,omitempty"`
	Phone          *string             `json:"phone,omitempty"`
	ProfilePicture *string             `json:"profile_picture,omitempty"`
	Preferences    *PreferencesUpdate  `json:"preferences,omitempty"`
	Subscription   *SubscriptionUpdate `json:"subscription,omitempty"`
}

// Validate checks field shapes before anything is written.
func (u ProfileUpdate) Validate() error {
	return validation.ValidateStruct(&u,
		validation.Field(&u.FirstName, validation.Length(1, 200)),
		validation.Field(&u.LastName, validation.Length(1, 200)),
		validation.Field(&u.Phone, validation.By(validatePhone)),
		validation.Field(&u.ProfilePicture, validation.Length(0, 2048)),
		validation.Field(&u.Preferences),
		validation.Field(&u.Subscription),
	)
}

// Validate checks preference values.
func (u PreferencesUpdate) Validate() error {
	return validation.ValidateStruct(&u,
		validation.Field(&u.Language, validation.Length(2, 35)),
		validation.Field(&u.Timezone, validation.By(validateTimezone)),
	)
}

// Validate checks subscription values.
func (u SubscriptionUpdate) Validate() error {
	return validation.ValidateStruct(&u,
		validation.Field(&u.Plan, validation.Length(1, 50)),
		validation.Field(&u.Status, validation.Length(1, 50)),
	)
}

func validatePhone(value interface{}) error {
	phone, ok := value.(*string)
	if !ok || phone == nil || *phone == "" {
		return nil
	}
	parsed, err := phonenumbers.Parse(*phone, DefaultPhoneRegion)
	if err != nil {
		return err
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return validation.NewError("validation_phone_invalid", "must be a valid phone number")
	}
	return nil
}

func validateTimezone(value interface{}) error {
	tz, ok := value.(*string)
	if !ok || tz == nil || *tz == "" {
		return nil
	}
	if _, err := time.LoadLocation(*tz); err != nil {
		return validation.NewError("validation_timezone_invalid", "must be a valid IANA timezone")
	}
	return nil
}

func (u ProfileUpdate) applyTo(profile *UserProfile, now time.Time) {
	if u.FirstName != nil {
		profile.Profile.FirstName = *u.FirstName
	}
	if u.LastName != nil {
		profile.Profile.LastName = *u.LastName
	}
	if u.Phone != nil {
		profile.Profile.Phone = *u.Phone
	}
	if u.ProfilePicture != nil {
		profile.Profile.ProfilePicture = *u.ProfilePicture
	}
	if u.Preferences != nil {
		if u.Preferences.Notifications != nil {
			profile.Profile.Preferences.Notifications = *u.Preferences.Notifications
		}
		if u.Preferences.Language != nil {
			profile.Profile.Preferences.Language = *u.Preferences.Language
		}
		if u.Preferences.Timezone != nil {
			profile.Profile.Preferences.Timezone = *u.Preferences.Timezone
		}
	}
	if u.Subscription != nil {
		if u.Subscription.Plan != nil {
			profile.Subscription.Plan = *u.Subscription.Plan
		}
		if u.Subscription.Status != nil {
			profile.Subscription.Status = *u.Subscription.Status
		}
		if u.Subscription.StartDate != nil {
			profile.Subscription.StartDate = cloneTime(u.Subscription.StartDate)
		}
		if u.Subscription.EndDate != nil {
			profile.Subscription.EndDate = cloneTime(u.Subscription.EndDate)
		}
	}
	profile.UpdatedAt = &now
}

// UpdateUserProfile merges update into the current identity's stored profile
// and refreshes the committed session state. Requires a signed-in identity
// and a configured profile store.
func (s *Store) UpdateUserProfile(ctx context.Context, update ProfileUpdate) (*UserProfile, error) {
	s.mu.Lock()
	if s.state == StateTornDown {
		s.mu.Unlock()
		return nil, ErrStoreTornDown
	}
	identity := s.snapshot.Identity
	s.mu.Unlock()

	if identity == nil {
		return nil, ErrNoIdentity
	}
	if s.profiles == nil {
		return nil, goerrors.New("profile store is not configured", goerrors.CategoryInternal)
	}

	if err := update.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid profile update")
	}

	profile, err := s.profiles.Get(ctx, identity.ID)
	if err != nil {
		if IsProfileNotFound(err) {
			return nil, goerrors.New("profile document not found", goerrors.CategoryNotFound).
				WithCode(goerrors.CodeNotFound).
				WithMetadata(map[string]any{"identity_id": identity.ID})
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to read profile document")
	}

	update.applyTo(profile, s.now())
	if err := s.profiles.Update(ctx, profile); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to persist profile update")
	}

	s.mu.Lock()
	sameIdentity := s.snapshot.Identity != nil && s.snapshot.Identity.ID == profile.ID
	var committed SessionState
	var listeners []Listener
	if sameIdentity && s.state != StateTornDown {
		s.snapshot.Profile = profile.Clone()
		committed = s.snapshotLocked()
		listeners = make([]Listener, 0, len(s.listeners))
		for _, listener := range s.listeners {
			listeners = append(listeners, listener)
		}
	}
	s.mu.Unlock()

	s.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventProfileUpdated,
		IdentityID: profile.ID,
	})

	for _, listener := range listeners {
		listener(committed)
	}

	return profile, nil
}
