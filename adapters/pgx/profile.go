package pgx

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/lborres/portal/core"
)

const profileColumns = `id::text, user_id, role, first_name, last_name, email, phone, address,
	profile_image_url, bio, department, bar_number, specializations, hourly_rate,
	is_active, firm_id::text, created_at, updated_at`

func scanProfile(row pgx.Row) (*core.UserProfile, error) {
	p := &core.UserProfile{}
	var (
		userID *string
		role   string
	)
	err := row.Scan(
		&p.ID, &userID, &role, &p.FirstName, &p.LastName, &p.Email, &p.Phone, &p.Address,
		&p.ProfileImageURL, &p.Bio, &p.Department, &p.BarNumber, &p.Specializations, &p.HourlyRate,
		&p.IsActive, &p.FirmID, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrProfileNotFound
		}
		return nil, err
	}
	if userID != nil {
		p.UserID = *userID
	}
	// unknown role names are left for the caller to default
	p.Role, _ = core.ParseRole(role)
	return p, nil
}

func (a *Adapter) GetProfileByUserID(ctx context.Context, userID string) (*core.UserProfile, error) {
	q := `SELECT ` + profileColumns + ` FROM public.user_profiles WHERE user_id = $1`
	p, err := scanProfile(a.db.QueryRow(ctx, q, userID))
	if err != nil && !errors.Is(err, core.ErrProfileNotFound) {
		return nil, fmt.Errorf("failed to get profile by user id: %w", err)
	}
	return p, err
}

// GetProfileByEmail returns the oldest profile with this exact email.
func (a *Adapter) GetProfileByEmail(ctx context.Context, email string) (*core.UserProfile, error) {
	q := `SELECT ` + profileColumns + ` FROM public.user_profiles WHERE email = $1
	      ORDER BY created_at LIMIT 1`
	p, err := scanProfile(a.db.QueryRow(ctx, q, email))
	if err != nil && !errors.Is(err, core.ErrProfileNotFound) {
		return nil, fmt.Errorf("failed to get profile by email: %w", err)
	}
	return p, err
}

func (a *Adapter) GetRoleByUserID(ctx context.Context, userID string) (core.Role, error) {
	var name string
	err := a.db.QueryRow(ctx, `SELECT role FROM public.user_profiles WHERE user_id = $1`, userID).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return core.RoleUnknown, core.ErrProfileNotFound
		}
		return core.RoleUnknown, fmt.Errorf("failed to get role: %w", err)
	}
	return core.ParseRole(name)
}

func (a *Adapter) CreateProfile(ctx context.Context, p *core.UserProfile) error {
	query := `INSERT INTO public.user_profiles
	              (user_id, role, first_name, last_name, email, phone, is_active)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          RETURNING id::text, created_at, updated_at`

	var userID *string
	if p.UserID != "" {
		userID = &p.UserID
	}
	err := a.db.QueryRow(ctx, query,
		userID, p.Role.String(), p.FirstName, p.LastName, p.Email, p.Phone, p.IsActive,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrProfileExists
		}
		return fmt.Errorf("failed to insert profile: %w", err)
	}
	return nil
}

// UpdateProfile applies the non-nil fields of patch to the row selected by
// filter and returns the updated row.
func (a *Adapter) UpdateProfile(ctx context.Context, filter core.ProfileFilter, patch core.ProfilePatch) (*core.UserProfile, error) {
	if patch.Empty() {
		return nil, core.ErrEmptyProfilePatch
	}

	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}
	if patch.UserID != nil {
		set("user_id", *patch.UserID)
	}
	if patch.Role != nil {
		set("role", patch.Role.String())
	}
	if patch.FirstName != nil {
		set("first_name", *patch.FirstName)
	}
	if patch.LastName != nil {
		set("last_name", *patch.LastName)
	}
	if patch.Phone != nil {
		set("phone", *patch.Phone)
	}
	if patch.IsActive != nil {
		set("is_active", *patch.IsActive)
	}

	var where string
	switch {
	case filter.ID != "":
		args = append(args, filter.ID)
		where = "id = $" + strconv.Itoa(len(args)) + "::uuid"
	case filter.UserID != "":
		args = append(args, filter.UserID)
		where = "user_id = $" + strconv.Itoa(len(args))
	default:
		args = append(args, filter.Email)
		where = `id = (SELECT id FROM public.user_profiles WHERE email = $` + strconv.Itoa(len(args)) +
			` ORDER BY created_at LIMIT 1)`
	}

	query := `UPDATE public.user_profiles SET ` + strings.Join(sets, ", ") + `, updated_at = now()
	          WHERE ` + where + ` RETURNING ` + profileColumns

	p, err := scanProfile(a.db.QueryRow(ctx, query, args...))
	switch {
	case err == nil:
		return p, nil
	case errors.Is(err, core.ErrProfileNotFound):
		return nil, err
	case isUniqueViolation(err):
		return nil, core.ErrProfileExists
	}
	return nil, fmt.Errorf("failed to update profile: %w", err)
}
