package services

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"starbase/server/models"
	"starbase/server/persistence"
)

var (
	// ErrBadCredentials is returned when a password does not match
	ErrBadCredentials = errors.New("invalid username or password")

	// ErrUnknownBuilder is returned for an id with no logged in builder
	ErrUnknownBuilder = errors.New("builder not found")

	// ErrInvalidMode is returned for a mode other than administrator or character
	ErrInvalidMode = errors.New("invalid builder mode")
)

// BuilderService manages connected builders
type BuilderService struct {
	builders   map[string]*models.Builder
	db         persistence.Storage
	bcryptCost int
	mutex      sync.RWMutex
}

// NewBuilderService creates a new builder service
func NewBuilderService(db persistence.Storage) *BuilderService {
	return &BuilderService{
		builders:   make(map[string]*models.Builder),
		db:         db,
		bcryptCost: bcrypt.DefaultCost,
	}
}

// SetBcryptCost changes the hashing cost for new passwords
func (bs *BuilderService) SetBcryptCost(cost int) {
	bs.bcryptCost = cost
}

// Login authenticates an existing builder or registers a new one
func (bs *BuilderService) Login(username, password string, mode models.BuilderMode) (*models.Builder, error) {
	if username == "" {
		return nil, ErrBadCredentials
	}
	if mode == "" {
		mode = models.ModeAdministrator
	}
	if !validMode(mode) {
		return nil, ErrInvalidMode
	}

	bs.mutex.Lock()
	defer bs.mutex.Unlock()

	builder, err := bs.db.LoadBuilderByUsername(username)
	switch {
	case err == nil:
		if bcrypt.CompareHashAndPassword([]byte(builder.PasswordHash), []byte(password)) != nil {
			return nil, ErrBadCredentials
		}
		builder.Mode = mode
		builder.UpdatedAt = time.Now()
	case errors.Is(err, persistence.ErrNotFound):
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bs.bcryptCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		now := time.Now()
		builder = &models.Builder{
			ID:           uuid.NewString(),
			Username:     username,
			PasswordHash: string(hash),
			Mode:         mode,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	default:
		return nil, fmt.Errorf("failed to load builder: %w", err)
	}

	if err := bs.db.SaveBuilder(builder); err != nil {
		return nil, fmt.Errorf("failed to save builder: %w", err)
	}

	bs.builders[builder.ID] = builder
	return builder, nil
}

// Logout forgets a connected builder
func (bs *BuilderService) Logout(builderID string) {
	bs.mutex.Lock()
	defer bs.mutex.Unlock()
	delete(bs.builders, builderID)
}

// GetBuilder retrieves a connected builder by ID
func (bs *BuilderService) GetBuilder(builderID string) (*models.Builder, error) {
	bs.mutex.RLock()
	defer bs.mutex.RUnlock()

	builder, exists := bs.builders[builderID]
	if !exists {
		return nil, ErrUnknownBuilder
	}
	return builder, nil
}

// SwitchMode moves a builder between administrator and character mode
func (bs *BuilderService) SwitchMode(builderID string, mode models.BuilderMode) error {
	if !validMode(mode) {
		return ErrInvalidMode
	}

	bs.mutex.Lock()
	defer bs.mutex.Unlock()

	builder, exists := bs.builders[builderID]
	if !exists {
		return ErrUnknownBuilder
	}
	if builder.Mode == mode {
		return nil
	}

	builder.Mode = mode
	builder.UpdatedAt = time.Now()
	if err := bs.db.SaveBuilder(builder); err != nil {
		return fmt.Errorf("failed to save builder: %w", err)
	}
	return nil
}

// IsAdministrator reports whether a connected builder may build
func (bs *BuilderService) IsAdministrator(builderID string) bool {
	bs.mutex.RLock()
	defer bs.mutex.RUnlock()

	builder, exists := bs.builders[builderID]
	return exists && builder.Mode == models.ModeAdministrator
}

func validMode(mode models.BuilderMode) bool {
	return mode == models.ModeAdministrator || mode == models.ModeCharacter
}
