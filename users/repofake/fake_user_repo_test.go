package fakeuserrepo_test

import (
	"context"
	"testing"

	"github.com/jrsteele09/mindcraft-auth/users"
	fakeuserrepo "github.com/jrsteele09/mindcraft-auth/users/repofake"
	"github.com/stretchr/testify/require"
)

func TestFakeUserRepo(t *testing.T) {
	ctx := context.Background()
	repo := fakeuserrepo.NewFakeUserRepo()

	ada := &users.User{Name: "Ada", Email: "Ada@Example.com", PasswordHash: "x"}
	require.NoError(t, repo.Create(ctx, ada))
	require.Equal(t, int64(1), ada.ID)
	require.False(t, ada.CreatedAt.IsZero())

	require.ErrorIs(t, repo.Create(ctx, &users.User{Email: "ada@example.com"}), users.ErrDuplicateEmail)

	found, err := repo.FindByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	require.Equal(t, ada.ID, found.ID)

	_, err = repo.FindByID(ctx, 99)
	require.ErrorIs(t, err, users.ErrNotFound)

	require.NoError(t, repo.UpdateTwoFactor(ctx, ada.ID, "SECRET", false))
	found, err = repo.FindByID(ctx, ada.ID)
	require.NoError(t, err)
	require.True(t, found.TwoFactorPending())

	require.NoError(t, repo.UpdateTwoFactor(ctx, ada.ID, "SECRET", true))
	found, err = repo.FindByID(ctx, ada.ID)
	require.NoError(t, err)
	require.True(t, found.TwoFactorEnabled)
	require.False(t, found.TwoFactorPending())

	require.ErrorIs(t, repo.UpdateTwoFactor(ctx, 99, "", false), users.ErrNotFound)
}
