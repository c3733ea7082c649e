package accounts

import (
	"context"
	"net/url"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestService(store Store) *Service {
	svc := NewService(store)
	svc.cost = bcrypt.MinCost
	return svc
}

func validRegistration() RegisterRequest {
	return RegisterRequest{
		Email:     "asha@example.com",
		Password:  "s3cret-pass",
		Password2: "s3cret-pass",
		FirstName: "Asha",
		LastName:  "Rao",
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(NewInMemoryStore())
	ctx := context.Background()

	cases := map[string]struct {
		mutate func(*RegisterRequest)
		field  string
		msg    string
	}{
		"missing email":     {func(r *RegisterRequest) { r.Email = "" }, "email", "This field is required."},
		"bad email":         {func(r *RegisterRequest) { r.Email = "not-an-email" }, "email", "Enter a valid email address."},
		"missing password":  {func(r *RegisterRequest) { r.Password = "" }, "password", "This field is required."},
		"password mismatch": {func(r *RegisterRequest) { r.Password2 = "other" }, "password", "Password fields didn't match."},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := validRegistration()
			tc.mutate(&req)
			_, err := svc.Register(ctx, req)
			var fe FieldErrors
			require.ErrorAs(t, err, &fe)
			assert.Contains(t, fe[tc.field], tc.msg)
		})
	}
}

func runAccountsContract(t *testing.T, store Store) {
	t.Helper()
	svc := newTestService(store)
	ctx := context.Background()

	req := validRegistration()
	u, err := svc.Register(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, req.Email, u.Username)
	assert.NotEqual(t, []byte(req.Password), u.PasswordHash)

	_, err = svc.Register(ctx, req)
	var fe FieldErrors
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe["email"], "A user with that email already exists.")

	_, err = svc.Login(ctx, LoginRequest{Email: req.Email, Password: "wrong"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, LoginRequest{Email: "nobody@example.com", Password: "x"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	first, err := svc.Login(ctx, LoginRequest{Email: req.Email, Password: req.Password})
	require.NoError(t, err)
	assert.Len(t, first.Token, 40)
	assert.Equal(t, u.ID, first.UserInfo.ID)
	assert.Equal(t, "Asha", first.UserInfo.FirstName)

	second, err := svc.Login(ctx, LoginRequest{Email: req.Email, Password: req.Password})
	require.NoError(t, err)
	assert.Equal(t, first.Token, second.Token)

	who, err := svc.Authenticate(ctx, first.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, who.ID)

	require.NoError(t, svc.Logout(ctx, first.Token))
	require.NoError(t, svc.Logout(ctx, first.Token))
	_, err = svc.Authenticate(ctx, first.Token)
	require.ErrorIs(t, err, ErrInvalidCredentials)

	third, err := svc.Login(ctx, LoginRequest{Email: req.Email, Password: req.Password})
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, third.Token)
}

func TestInMemoryAccounts(t *testing.T) {
	runAccountsContract(t, NewInMemoryStore())
}

func TestPostgresAccounts(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	store, err := NewPostgresStore(context.Background(), dsn)
	require.NoError(t, err)
	defer store.Close()
	_, _ = store.pool.Exec(context.Background(), `DELETE FROM accounts_user WHERE lower(email)=lower($1)`, validRegistration().Email)
	runAccountsContract(t, store)
}

func TestGoogleLoginURL(t *testing.T) {
	g := NewGoogleLogin("client-123", "secret", "http://localhost:8000/auth/google/callback/")
	state := g.NewState()
	raw := g.AuthCodeURL(state)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "accounts.google.com", u.Host)
	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client-123", q.Get("client_id"))
	assert.Equal(t, "openid email profile", q.Get("scope"))
	assert.Equal(t, state, q.Get("state"))
	assert.Equal(t, "http://localhost:8000/auth/google/callback/", q.Get("redirect_uri"))
}

func TestGoogleVerifyCallback(t *testing.T) {
	g := NewGoogleLogin("id", "secret", "http://localhost/cb")
	assert.NoError(t, g.VerifyCallback("abc", "abc", "code-1"))
	assert.ErrorIs(t, g.VerifyCallback("abc", "abd", "code-1"), ErrOAuthState)
	assert.ErrorIs(t, g.VerifyCallback("", "", "code-1"), ErrOAuthState)
	assert.ErrorIs(t, g.VerifyCallback("abc", "abc", " "), ErrOAuthCode)
}
