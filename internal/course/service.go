// Package course implements learner accounts, course progress and lesson
// discussions on top of the row store.
package course

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"academy/internal/domain"
	"academy/internal/rowstore"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const (
	tableUsers    = "users"
	tableEmails   = "user_emails"
	tableProgress = "progress"
	tablePosts    = "posts"
	tablePostRefs = "post_refs"
	tableComments = "comments"

	userPartition = "user"
	refRowKey     = "ref"

	minPasswordLength = 8
	// MaxBodyRunes bounds post and comment bodies.
	MaxBodyRunes = 2000
)

// Options configures a Service.
type Options struct {
	Catalog    []domain.Course
	Clock      func() time.Time
	BcryptCost int
	Logger     *zerolog.Logger
}

// Service owns accounts, progress and discussions.
type Service struct {
	store   rowstore.Store
	catalog []domain.Course
	now     func() time.Time
	cost    int
	logger  zerolog.Logger

	signupMu sync.Mutex
}

// New builds a Service over store. An empty catalog falls back to
// DefaultCatalog.
func New(store rowstore.Store, opts Options) *Service {
	svc := &Service{
		store:   store,
		catalog: opts.Catalog,
		now:     opts.Clock,
		cost:    opts.BcryptCost,
		logger:  zerolog.Nop(),
	}
	if len(svc.catalog) == 0 {
		svc.catalog = DefaultCatalog()
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	if svc.cost == 0 {
		svc.cost = bcrypt.DefaultCost
	}
	if opts.Logger != nil {
		svc.logger = *opts.Logger
	}
	return svc
}

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Signup registers a new account. Duplicate emails yield ErrConflict.
func (s *Service) Signup(ctx context.Context, email, password, name string) (domain.User, error) {
	email = NormalizeEmail(email)
	name = strings.TrimSpace(name)
	if !strings.Contains(email, "@") || strings.HasPrefix(email, "@") || strings.HasSuffix(email, "@") {
		return domain.User{}, fmt.Errorf("course: signup: invalid email: %w", domain.ErrInvalidInput)
	}
	if len(password) < minPasswordLength {
		return domain.User{}, fmt.Errorf("course: signup: password must be at least %d characters: %w", minPasswordLength, domain.ErrInvalidInput)
	}
	if name == "" {
		name = email[:strings.Index(email, "@")]
	}

	s.signupMu.Lock()
	defer s.signupMu.Unlock()

	if _, err := s.store.Get(ctx, tableEmails, email, refRowKey); err == nil {
		return domain.User{}, fmt.Errorf("course: signup %s: %w", email, domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, fmt.Errorf("course: signup lookup: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return domain.User{}, fmt.Errorf("course: hash password: %w", err)
	}
	user := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		Role:         domain.UserRoleStudent,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if _, err := s.store.Upsert(ctx, tableUsers, userEntity(user)); err != nil {
		return domain.User{}, fmt.Errorf("course: save user: %w", err)
	}
	if _, err := s.store.Upsert(ctx, tableEmails, rowstore.Entity{
		PartitionKey: email,
		RowKey:       refRowKey,
		Properties:   map[string]any{"user_id": user.ID},
	}); err != nil {
		// without its index the row is unreachable; drop it so a retry starts clean
		if delErr := s.store.Delete(ctx, tableUsers, userPartition, user.ID); delErr != nil {
			s.logger.Error().Err(delErr).Str("user_id", user.ID).Msg("signup: orphan user row left behind")
		}
		return domain.User{}, fmt.Errorf("course: save email index: %w", err)
	}
	s.logger.Info().Str("user_id", user.ID).Msg("account created")
	return user, nil
}

// Login verifies credentials. Any mismatch yields ErrUnauthorized.
func (s *Service) Login(ctx context.Context, email, password string) (domain.User, error) {
	email = NormalizeEmail(email)
	ref, err := s.store.Get(ctx, tableEmails, email, refRowKey)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, fmt.Errorf("course: login: %w", domain.ErrUnauthorized)
		}
		return domain.User{}, fmt.Errorf("course: login lookup: %w", err)
	}
	user, err := s.Profile(ctx, ref.String("user_id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, fmt.Errorf("course: login: %w", domain.ErrUnauthorized)
		}
		return domain.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return domain.User{}, fmt.Errorf("course: login: %w", domain.ErrUnauthorized)
	}
	return user, nil
}

// Profile loads an account by id.
func (s *Service) Profile(ctx context.Context, userID string) (domain.User, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.User{}, fmt.Errorf("course: profile: %w", domain.ErrNotFound)
	}
	e, err := s.store.Get(ctx, tableUsers, userPartition, userID)
	if err != nil {
		return domain.User{}, err
	}
	return domain.User{
		ID:           e.RowKey,
		Email:        e.String("email"),
		Name:         e.String("name"),
		Role:         domain.UserRole(e.String("role")),
		PasswordHash: e.String("password_hash"),
		CreatedAt:    e.Time("created_at"),
	}, nil
}

func userEntity(u domain.User) rowstore.Entity {
	return rowstore.Entity{
		PartitionKey: userPartition,
		RowKey:       u.ID,
		Properties: map[string]any{
			"email":         u.Email,
			"name":          u.Name,
			"role":          string(u.Role),
			"password_hash": u.PasswordHash,
			"created_at":    u.CreatedAt.Format(time.RFC3339Nano),
		},
	}
}
