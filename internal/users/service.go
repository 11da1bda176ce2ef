// Package users manages identity records and handle reservations.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/curlos/twitter-2.0-sub000/internal/models"
	"github.com/curlos/twitter-2.0-sub000/internal/store"
)

var (
	// ErrHandleTaken is returned when the chosen handle is already
	// claimed. Uniqueness is enforced by a pre-write existence check plus
	// a batch precondition on the handles collection, not by a database
	// constraint.
	ErrHandleTaken = errors.New("users: handle already taken")

	// ErrInvalidCredentials is returned on a failed login.
	ErrInvalidCredentials = errors.New("users: invalid handle or password")
)

type Service struct {
	store store.Store
	log   zerolog.Logger
	now   func() time.Time
	newID func() string
}

func NewService(st store.Store, logger zerolog.Logger) *Service {
	return &Service{store: st, log: logger, now: time.Now, newID: uuid.NewString}
}

// Register creates a local-credential account: user document plus handle
// claim in one batch.
func (s *Service) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("users: hashing password: %w", err)
	}
	u := &models.User{
		ID:           s.newID(),
		DisplayName:  req.DisplayName,
		Handle:       strings.ToLower(req.Handle),
		Email:        req.Email,
		DateJoined:   s.now(),
		PasswordHash: string(hash),
	}
	if err := s.create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// EnsureFederated upserts the user record for a federated-identity
// account keyed by the provider's stable uid. No password hash is stored.
func (s *Service) EnsureFederated(ctx context.Context, uid, displayName, email, avatarURL string) (*models.User, error) {
	existing, err := s.Get(ctx, uid)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	u := &models.User{
		ID:          uid,
		DisplayName: displayName,
		Handle:      deriveHandle(displayName, email, uid),
		Email:       email,
		AvatarURL:   avatarURL,
		DateJoined:  s.now(),
	}
	if err := s.create(ctx, u); err != nil {
		if errors.Is(err, ErrHandleTaken) {
			// Derived handle collided; retry with a uid-based one.
			u.Handle = uidHandle(uid, 12)
			err = s.create(ctx, u)
		}
		if err != nil {
			return nil, err
		}
	}
	return u, nil
}

func (s *Service) create(ctx context.Context, u *models.User) error {
	taken, err := s.handleExists(ctx, u.Handle)
	if err != nil {
		return err
	}
	if taken {
		return ErrHandleTaken
	}

	userDoc, err := store.Encode(u)
	if err != nil {
		return err
	}
	claim, err := store.Encode(models.HandleClaim{UserID: u.ID, ClaimedAt: s.now()})
	if err != nil {
		return err
	}
	batch := store.NewBatch().
		ExpectAbsent(store.DocPath(store.Handles, u.Handle)).
		ExpectAbsent(store.DocPath(store.Users, u.ID)).
		Set(store.DocPath(store.Users, u.ID), userDoc).
		Set(store.DocPath(store.Handles, u.Handle), claim)
	if err := s.store.Apply(ctx, batch); err != nil {
		if errors.Is(err, store.ErrPreconditionFailed) {
			return ErrHandleTaken
		}
		return fmt.Errorf("users: creating user: %w", err)
	}
	return nil
}

// Authenticate verifies local credentials by handle.
func (s *Service) Authenticate(ctx context.Context, handle, password string) (*models.User, error) {
	u, err := s.GetByHandle(ctx, strings.ToLower(handle))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if u.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.User, error) {
	doc, err := s.store.Get(ctx, store.DocPath(store.Users, id))
	if err != nil {
		return nil, err
	}
	var u models.User
	if err := doc.Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Service) GetByHandle(ctx context.Context, handle string) (*models.User, error) {
	doc, err := s.store.Get(ctx, store.DocPath(store.Handles, strings.ToLower(handle)))
	if err != nil {
		return nil, err
	}
	var claim models.HandleClaim
	if err := doc.Decode(&claim); err != nil {
		return nil, err
	}
	return s.Get(ctx, claim.UserID)
}

// UpdateProfile applies a validated profile edit. A handle change swaps
// the handle claim in the same batch that updates the user document.
func (s *Service) UpdateProfile(ctx context.Context, id string, req models.UpdateProfileRequest) (*models.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]any)
	if req.DisplayName != "" {
		fields["displayName"] = req.DisplayName
	}
	// nil leaves the field untouched; a pointer to "" clears it.
	setIf := func(field string, value *string) {
		if value != nil {
			fields[field] = *value
		}
	}
	setIf("bio", req.Bio)
	setIf("location", req.Location)
	setIf("website", req.Website)
	setIf("avatarURL", req.AvatarURL)
	setIf("bannerURL", req.BannerURL)

	newHandle := strings.ToLower(req.Handle)
	changingHandle := newHandle != "" && newHandle != u.Handle

	batch := store.NewBatch()
	if changingHandle {
		taken, err := s.handleExists(ctx, newHandle)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrHandleTaken
		}
		claim, err := store.Encode(models.HandleClaim{UserID: id, ClaimedAt: s.now()})
		if err != nil {
			return nil, err
		}
		fields["handle"] = newHandle
		batch.ExpectAbsent(store.DocPath(store.Handles, newHandle)).
			Set(store.DocPath(store.Handles, newHandle), claim).
			Delete(store.DocPath(store.Handles, u.Handle))
	}
	if len(fields) == 0 {
		return u, nil
	}
	batch.ExpectExists(store.DocPath(store.Users, id)).
		Update(store.DocPath(store.Users, id), fields)

	if err := s.store.Apply(ctx, batch); err != nil {
		if errors.Is(err, store.ErrPreconditionFailed) && changingHandle {
			return nil, ErrHandleTaken
		}
		return nil, fmt.Errorf("users: updating profile: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *Service) handleExists(ctx context.Context, handle string) (bool, error) {
	_, err := s.store.Get(ctx, store.DocPath(store.Handles, handle))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return false, err
}

func deriveHandle(displayName, email, uid string) string {
	base := ""
	if i := strings.Index(email, "@"); i > 0 {
		base = email[:i]
	} else {
		base = displayName
	}
	var b strings.Builder
	for _, r := range strings.ToLower(base) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	handle := b.String()
	if len(handle) < 2 {
		handle = uidHandle(uid, 8)
	}
	return handle
}

func uidHandle(uid string, n int) string {
	flat := strings.ToLower(strings.ReplaceAll(uid, "-", ""))
	if len(flat) > n {
		flat = flat[:n]
	}
	return "user" + flat
}
