package services

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"starbase/server/models"
	"starbase/server/persistence"
)

func newTestBuilderService(t *testing.T) (*BuilderService, persistence.Storage) {
	t.Helper()
	store, err := persistence.NewJSONStore(filepath.Join(t.TempDir(), "station.json"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	builders := NewBuilderService(store)
	builders.SetBcryptCost(bcrypt.MinCost)
	return builders, store
}

func TestBuilderLoginRegistersThenVerifies(t *testing.T) {
	builders, store := newTestBuilderService(t)

	created, err := builders.Login("ripley", "nostromo", "")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.ModeAdministrator, created.Mode)
	assert.NotEqual(t, "nostromo", created.PasswordHash)

	stored, err := store.LoadBuilder(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "ripley", stored.Username)

	again, err := builders.Login("ripley", "nostromo", models.ModeCharacter)
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)
	assert.Equal(t, models.ModeCharacter, again.Mode)

	_, err = builders.Login("ripley", "sulaco", "")
	assert.ErrorIs(t, err, ErrBadCredentials)
}

func TestBuilderLoginValidation(t *testing.T) {
	builders, _ := newTestBuilderService(t)

	_, err := builders.Login("", "pw", "")
	assert.ErrorIs(t, err, ErrBadCredentials)

	_, err = builders.Login("hicks", "pw", "pilot")
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestBuilderSwitchMode(t *testing.T) {
	builders, _ := newTestBuilderService(t)
	builder, err := builders.Login("bishop", "pw", models.ModeAdministrator)
	require.NoError(t, err)
	require.True(t, builders.IsAdministrator(builder.ID))

	require.NoError(t, builders.SwitchMode(builder.ID, models.ModeCharacter))
	assert.False(t, builders.IsAdministrator(builder.ID))

	assert.ErrorIs(t, builders.SwitchMode(builder.ID, "ghost"), ErrInvalidMode)
	assert.ErrorIs(t, builders.SwitchMode("missing", models.ModeCharacter), ErrUnknownBuilder)

	builders.Logout(builder.ID)
	_, err = builders.GetBuilder(builder.ID)
	assert.ErrorIs(t, err, ErrUnknownBuilder)
	assert.False(t, builders.IsAdministrator(builder.ID))
}
