package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthService_CreateUser(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	user, err := env.auth.CreateUser(ctx, " alice ", "pw1")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.NotEqual(t, "pw1", user.PasswordHash)

	_, err = env.auth.CreateUser(ctx, "alice", "other")
	assert.ErrorIs(t, err, ErrUsernameExists)

	for _, name := range []string{"", "public", "admin", "a/b"} {
		_, err = env.auth.CreateUser(ctx, name, "pw")
		assert.ErrorIs(t, err, ErrInvalidInput, name)
	}

	users, err := env.auth.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestAuthService_ResetPasswordTakesEffectImmediately(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.auth.CreateUser(ctx, "alice", "old-password")
	require.NoError(t, err)
	_, err = env.auth.AuthenticateUser(ctx, "alice", "old-password")
	require.NoError(t, err)

	require.NoError(t, env.auth.ResetPassword(ctx, "alice", "new-password"))

	_, err = env.auth.AuthenticateUser(ctx, "alice", "old-password")
	assert.ErrorIs(t, err, ErrInvalidCredential)
	user, err := env.auth.AuthenticateUser(ctx, "alice", "new-password")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	assert.ErrorIs(t, env.auth.ResetPassword(ctx, "ghost", "x"), ErrUserNotFound)
	assert.ErrorIs(t, env.auth.ResetPassword(ctx, "alice", ""), ErrInvalidInput)
}

func TestAuthService_AuthenticateAdmin(t *testing.T) {
	env := newTestEnv(t)

	assert.True(t, env.auth.AuthenticateAdmin("admin", "123123"))
	assert.False(t, env.auth.AuthenticateAdmin("admin", "wrong"))
	assert.False(t, env.auth.AuthenticateAdmin("root", "123123"))
}

func TestAuthService_LoginTokenRoundTrip(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.auth.CreateUser(ctx, "alice", "pw")
	require.NoError(t, err)

	_, err = env.auth.Login(ctx, LoginInput{Username: "alice", Password: "nope"})
	assert.ErrorIs(t, err, ErrInvalidCredential)
	_, err = env.auth.Login(ctx, LoginInput{Username: "", Password: "pw"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	res, err := env.auth.Login(ctx, LoginInput{Username: "alice", Password: "pw"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)

	user, err := env.auth.UserFromToken(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, user.ID)

	require.NoError(t, env.auth.DeleteUser(ctx, "alice"))
	_, err = env.auth.UserFromToken(ctx, res.Token)
	assert.ErrorIs(t, err, ErrInvalidCredential, "tokens die with the account")

	_, err = env.auth.UserFromToken(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestAuthService_DeleteUserCascades(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	alice, err := env.auth.CreateUser(ctx, "alice", "pw")
	require.NoError(t, err)
	env.upload(t, "alice", false, "report.pdf", "alice quarterly revenue grew")
	_, err = env.ingest.IngestOwn(ctx, "alice", "report.pdf")
	require.NoError(t, err)
	_, err = env.chat.Chat(ctx, ChatInput{UserID: alice.ID, Username: "alice", Message: "how did revenue do"})
	require.NoError(t, err)

	require.NoError(t, env.auth.DeleteUser(ctx, "alice"))

	docs, err := env.docs.ListByOwner(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, docs)

	sources, err := env.vectors.ListSources(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, sources)

	turns, err := env.vectors.ListTurns(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, turns)

	records, err := env.records.ListByTenant(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, records)

	sessions, err := env.sessions.ListByUserID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	assert.ErrorIs(t, env.auth.DeleteUser(ctx, "alice"), ErrUserNotFound)
}
