package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lborres/portal/core"
)

// ProfileResolver maps an authenticated user to exactly one UserProfile,
// provisioning one on first sign-in.
type ProfileResolver struct {
	store               core.ProfileStore
	bootstrapAdminEmail string
	logger              *slog.Logger
}

func NewProfileResolver(store core.ProfileStore, bootstrapAdminEmail string, logger *slog.Logger) *ProfileResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileResolver{
		store:               store,
		bootstrapAdminEmail: bootstrapAdminEmail,
		logger:              logger.With("component", "profile_resolver"),
	}
}

// IsBootstrapAdmin reports whether email is the reserved bootstrap identity.
// The comparison is exact and case-sensitive.
func (r *ProfileResolver) IsBootstrapAdmin(email string) bool {
	return r.bootstrapAdminEmail != "" && email == r.bootstrapAdminEmail
}

// Resolve returns the profile for userID, trying in order:
//  1. lookup by user_id
//  2. lookup by email, backfilling user_id on the found row
//  3. creation with the default role
//
// Without an email nothing can be provisioned and ErrProfileNotFound is
// returned.
func (r *ProfileResolver) Resolve(ctx context.Context, userID, email string) (*core.UserProfile, error) {
	if userID == "" {
		return nil, core.ErrProfileNotFound
	}

	profile, err := r.store.GetProfileByUserID(ctx, userID)
	if err == nil {
		profileResolutionsTotal.WithLabelValues(profileByUserID).Inc()
		return profile, nil
	}
	if !errors.Is(err, core.ErrProfileNotFound) {
		profileResolutionsTotal.WithLabelValues(profileFailed).Inc()
		return nil, fmt.Errorf("failed to get profile by user id: %w", err)
	}

	if email == "" {
		return nil, core.ErrProfileNotFound
	}

	profile, err = r.store.GetProfileByEmail(ctx, email)
	switch {
	case err == nil:
		return r.claim(ctx, profile, userID)
	case !errors.Is(err, core.ErrProfileNotFound):
		profileResolutionsTotal.WithLabelValues(profileFailed).Inc()
		return nil, fmt.Errorf("failed to get profile by email: %w", err)
	}

	return r.Provision(ctx, &core.User{ID: userID, Email: email}, "", "")
}

// claim attaches a pre-provisioned profile to userID.
func (r *ProfileResolver) claim(ctx context.Context, profile *core.UserProfile, userID string) (*core.UserProfile, error) {
	if profile.UserID == userID {
		profileResolutionsTotal.WithLabelValues(profileByEmail).Inc()
		return profile, nil
	}

	updated, err := r.store.UpdateProfile(ctx,
		core.ProfileFilter{ID: profile.ID},
		core.ProfilePatch{UserID: &userID},
	)
	if err != nil {
		profileResolutionsTotal.WithLabelValues(profileFailed).Inc()
		return nil, fmt.Errorf("failed to backfill profile user id: %w", err)
	}

	r.logger.Info("claimed pre-provisioned profile",
		"profile_id", updated.ID,
		"user_id", userID,
		"previous_user_id", profile.UserID,
	)
	profileResolutionsTotal.WithLabelValues(profileByEmail).Inc()
	return updated, nil
}

// Provision creates the profile for user. Blank names fall back to the
// placeholders for the assigned role. A concurrent creation for the same
// user is resolved by re-reading the winner's row.
func (r *ProfileResolver) Provision(ctx context.Context, user *core.User, firstName, lastName string) (*core.UserProfile, error) {
	role := core.RoleClient
	defaultFirst, defaultLast := "User", "Account"
	if r.IsBootstrapAdmin(user.Email) {
		role = core.RoleAdmin
		defaultFirst, defaultLast = "System", "Administrator"
	}
	if firstName == "" {
		firstName = defaultFirst
	}
	if lastName == "" {
		lastName = defaultLast
	}

	profile := &core.UserProfile{
		UserID:    user.ID,
		Role:      role,
		FirstName: firstName,
		LastName:  lastName,
		Email:     user.Email,
		IsActive:  true,
	}

	err := r.store.CreateProfile(ctx, profile)
	if errors.Is(err, core.ErrProfileExists) {
		existing, getErr := r.store.GetProfileByUserID(ctx, user.ID)
		if getErr != nil {
			profileResolutionsTotal.WithLabelValues(profileFailed).Inc()
			return nil, fmt.Errorf("failed to re-read raced profile: %w", getErr)
		}
		profileResolutionsTotal.WithLabelValues(profileRaced).Inc()
		return existing, nil
	}
	if err != nil {
		profileResolutionsTotal.WithLabelValues(profileFailed).Inc()
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	if role == core.RoleAdmin {
		r.logger.Warn("provisioned bootstrap admin profile", "user_id", user.ID)
	} else {
		r.logger.Info("provisioned profile", "user_id", user.ID, "role", role.String())
	}
	profileResolutionsTotal.WithLabelValues(profileCreated).Inc()
	return profile, nil
}
