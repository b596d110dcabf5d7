package service

import (
	"context"
	"testing"
	"time"

	"github.com/cairnhealth/cairn/internal/auth/notify"
	"github.com/cairnhealth/cairn/internal/auth/store"
	"github.com/cairnhealth/cairn/pkg/jwtx"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

func newTestAuthService(t *testing.T, st store.Store) (*AuthService, <-chan notify.Message) {
	t.Helper()

	dispatcher, delivered := newTestDispatcher(t)
	svc := &AuthService{
		Store:    st,
		Sessions: newTestSessionService(st, newTestSigner(t)),
		Captcha:  &CaptchaService{Store: st},
		Lockout:  &LockoutService{},
		OTP:      &OTPService{Store: st, Cooldown: time.Nanosecond},
		Notify:   dispatcher,
	}
	return svc, delivered
}

func loginInput(t *testing.T, svc *AuthService, identifier, password string) LoginInput {
	t.Helper()

	c, err := svc.Captcha.NewChallenge(context.Background())
	require.NoError(t, err)

	return LoginInput{
		Identifier:       identifier,
		Password:         password,
		CaptchaSessionID: c.SessionID,
		CaptchaInput:     c.Code,
	}
}

func TestLoginSucceedsWithValidCredentials(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc, _ := newTestAuthService(t, st)
	u := newTestUser(t, st, "alice", "correct-horse-battery")

	result, err := svc.Login(ctx, loginInput(t, svc, "alice", "correct-horse-battery"))
	require.NoError(t, err)
	require.NotNil(t, result.Pair)
	require.Nil(t, result.Challenge)

	// Last login is stamped.
	reloaded, err := st.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.LastLoginAt)
}

func TestLoginAcceptsEmailIdentifier(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc, _ := newTestAuthService(t, st)
	newTestUser(t, st, "alice", "correct-horse-battery")

	result, err := svc.Login(ctx, loginInput(t, svc, "ALICE@example.test", "correct-horse-battery"))
	require.NoError(t, err)
	require.NotNil(t, result.Pair)
}

func TestLoginRejectsBadCaptcha(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc, _ := newTestAuthService(t, st)
	newTestUser(t, st, "alice", "correct-horse-battery")

	in := loginInput(t, svc, "alice", "correct-horse-battery")
	in.CaptchaInput = "WRONG1"

	_, err := svc.Login(ctx, in)
	require.ErrorIs(t, err, ErrCaptchaInvalid)

	// Captcha failures never touch the lockout counter.
	_, err = st.LoginAttempts().GetLoginAttempt(ctx, "alice")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc, _ := newTestAuthService(t, st)
	newTestUser(t, st, "alice", "correct-horse-battery")

	_, err := svc.Login(ctx, loginInput(t, svc, "alice", "wrong-password"))
	require.ErrorIs(t, err, ErrInvalidCredentials)

	a, err := st.LoginAttempts().GetLoginAttempt(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 1, a.FailureCount)
}

func TestLoginUnknownIdentifierBurnsLockoutBudget(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc, _ := newTestAuthService(t, st)

	_, err := svc.Login(ctx, loginInput(t, svc, "nobody", "whatever-password"))
	require.ErrorIs(t, err, ErrInvalidCredentials)

	a, err := st.LoginAttempts().GetLoginAttempt(ctx, "nobody")
	require.NoError(t, err)
	require.Equal(t, 1, a.FailureCount)
}

func TestLoginLocksAfterRepeatedFailures(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc, _ := newTestAuthService(t, st)
	newTestUser(t, st, "alice", "correct-horse-battery")

	for i := 0; i < DefaultLockoutThreshold; i++ {
		_, err := svc.Login(ctx, loginInput(t, svc, "alice", "wrong-password"))
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	// Even the right password bounces while locked.
	_, err := svc.Login(ctx, loginInput(t, svc, "alice", "correct-horse-battery"))
	var rl *RateLimitedError
	require.ErrorAs(t, err, &rl)
	require.GreaterOrEqual(t, rl.WaitSeconds(), 1)
}

func TestLoginSuccessResetsLockout(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc, _ := newTestAuthService(t, st)
	newTestUser(t, st, "alice", "correct-horse-battery")

	for i := 0; i < DefaultLockoutThreshold-1; i++ {
		_, err := svc.Login(ctx, loginInput(t, svc, "alice", "wrong-password"))
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	_, err := svc.Login(ctx, loginInput(t, svc, "alice", "correct-horse-battery"))
	require.NoError(t, err)

	_, err = st.LoginAttempts().GetLoginAttempt(ctx, "alice")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestLoginWarnsOnMultipleActiveSessions(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc, _ := newTestAuthService(t, st)
	newTestUser(t, st, "alice", "correct-horse-battery")

	first, err := svc.Login(ctx, loginInput(t, svc, "alice", "correct-horse-battery"))
	require.NoError(t, err)
	require.Empty(t, first.Warnings)

	second, err := svc.Login(ctx, loginInput(t, svc, "alice", "correct-horse-battery"))
	require.NoError(t, err)
	require.Contains(t, second.Warnings, WarningMultipleSessions)
}

func TestLoginWithTwoFactorChallengesAndCompletes(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc, delivered := newTestAuthService(t, st)
	u := newTestUser(t, st, "alice", "correct-horse-battery")
	require.NoError(t, st.Users().EnableTwoFactor(ctx, u.ID))

	result, err := svc.Login(ctx, loginInput(t, svc, "alice", "correct-horse-battery"))
	require.NoError(t, err)
	require.Nil(t, result.Pair)
	require.NotNil(t, result.Challenge)
	require.Equal(t, []string{MethodEmail}, result.Challenge.Methods)
	require.NotEmpty(t, result.Challenge.PreAuthToken)

	code := receiveCode(t, delivered)

	final, err := svc.CompleteTwoFactor(ctx, result.Challenge.PreAuthToken, MethodEmail, code)
	require.NoError(t, err)
	require.NotNil(t, final.Pair)

	claims, err := svc.Sessions.Signer.(*jwtx.HS256).Verify(final.Pair.AccessToken)
	require.NoError(t, err)
	require.Contains(t, claims.AMR, jwtx.AMRMFA)
}

func TestTwoFactorPreAuthTokenIsSingleUse(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc, delivered := newTestAuthService(t, st)
	u := newTestUser(t, st, "alice", "correct-horse-battery")
	require.NoError(t, st.Users().EnableTwoFactor(ctx, u.ID))

	result, err := svc.Login(ctx, loginInput(t, svc, "alice", "correct-horse-battery"))
	require.NoError(t, err)
	code := receiveCode(t, delivered)

	_, err = svc.CompleteTwoFactor(ctx, result.Challenge.PreAuthToken, MethodEmail, code)
	require.NoError(t, err)

	_, err = svc.CompleteTwoFactor(ctx, result.Challenge.PreAuthToken, MethodEmail, code)
	require.ErrorIs(t, err, ErrInvalidPreAuth)
}

func TestTwoFactorAttemptBudget(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc, delivered := newTestAuthService(t, st)
	u := newTestUser(t, st, "alice", "correct-horse-battery")
	require.NoError(t, st.Users().EnableTwoFactor(ctx, u.ID))

	result, err := svc.Login(ctx, loginInput(t, svc, "alice", "correct-horse-battery"))
	require.NoError(t, err)
	code := receiveCode(t, delivered)

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	for i := 0; i < MaxPreAuthAttempts; i++ {
		_, err := svc.CompleteTwoFactor(ctx, result.Challenge.PreAuthToken, MethodEmail, wrong)
		require.ErrorIs(t, err, ErrInvalidOTP)
	}

	// Budget exhausted: even the right code is refused and the token dies.
	_, err = svc.CompleteTwoFactor(ctx, result.Challenge.PreAuthToken, MethodEmail, code)
	require.ErrorIs(t, err, ErrTooManyAttempts)

	_, err = svc.CompleteTwoFactor(ctx, result.Challenge.PreAuthToken, MethodEmail, code)
	require.ErrorIs(t, err, ErrInvalidPreAuth)
}

func TestTwoFactorWithTOTP(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc, _ := newTestAuthService(t, st)
	u := newTestUser(t, st, "alice", "correct-horse-battery")

	setup := &SetupService{Store: st, OTP: svc.OTP, Notify: svc.Notify, Issuer: "test-issuer"}
	enrollment, err := setup.EnrollTOTP(ctx, u.ID)
	require.NoError(t, err)

	confirm, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, setup.ConfirmTOTP(ctx, u.ID, confirm))

	result, err := svc.Login(ctx, loginInput(t, svc, "alice", "correct-horse-battery"))
	require.NoError(t, err)
	require.NotNil(t, result.Challenge)
	require.Contains(t, result.Challenge.Methods, MethodTOTP)

	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)

	final, err := svc.CompleteTwoFactor(ctx, result.Challenge.PreAuthToken, MethodTOTP, code)
	require.NoError(t, err)
	require.NotNil(t, final.Pair)
}

func TestTwoFactorResend(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc, delivered := newTestAuthService(t, st)
	u := newTestUser(t, st, "alice", "correct-horse-battery")
	require.NoError(t, st.Users().EnableTwoFactor(ctx, u.ID))

	result, err := svc.Login(ctx, loginInput(t, svc, "alice", "correct-horse-battery"))
	require.NoError(t, err)
	receiveCode(t, delivered)

	time.Sleep(time.Millisecond)

	queued, err := svc.ResendTwoFactor(ctx, result.Challenge.PreAuthToken)
	require.NoError(t, err)
	require.True(t, queued)

	code := receiveCode(t, delivered)
	final, err := svc.CompleteTwoFactor(ctx, result.Challenge.PreAuthToken, MethodEmail, code)
	require.NoError(t, err)
	require.NotNil(t, final.Pair)
}

func TestTwoFactorExpiredPreAuthToken(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc, _ := newTestAuthService(t, st)

	_, err := svc.CompleteTwoFactor(ctx, "never-issued", MethodEmail, "123456")
	require.ErrorIs(t, err, ErrInvalidPreAuth)

	_, err = svc.ResendTwoFactor(ctx, "never-issued")
	require.ErrorIs(t, err, ErrInvalidPreAuth)
}
