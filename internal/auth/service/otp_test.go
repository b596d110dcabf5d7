package service

import (
	"context"
	"testing"
	"time"

	"github.com/cairnhealth/cairn/internal/auth/domain"
	"github.com/stretchr/testify/require"
)

func TestOTPIssueAndRedeem(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := &OTPService{Store: st}

	code, err := svc.Issue(ctx, "alice", domain.PurposeLogin2FA)
	require.NoError(t, err)
	require.Len(t, code, otpDigits)

	now := time.Now().UTC()
	require.NoError(t, svc.Redeem(ctx, st, "alice", domain.PurposeLogin2FA, code, now))

	// Consumed on success; a second redemption finds nothing.
	err = svc.Redeem(ctx, st, "alice", domain.PurposeLogin2FA, code, now)
	require.ErrorIs(t, err, ErrNoActiveCode)
}

func TestOTPWrongCodeDoesNotConsume(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := &OTPService{Store: st}

	code, err := svc.Issue(ctx, "alice", domain.PurposeLogin2FA)
	require.NoError(t, err)

	now := time.Now().UTC()
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	require.ErrorIs(t, svc.Redeem(ctx, st, "alice", domain.PurposeLogin2FA, wrong, now), ErrInvalidOTP)

	// The real code still works afterwards.
	require.NoError(t, svc.Redeem(ctx, st, "alice", domain.PurposeLogin2FA, code, now))
}

func TestOTPCooldownBetweenIssues(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := &OTPService{Store: st}

	_, err := svc.Issue(ctx, "alice", domain.PurposeLogin2FA)
	require.NoError(t, err)

	_, err = svc.Issue(ctx, "alice", domain.PurposeLogin2FA)
	var rl *RateLimitedError
	require.ErrorAs(t, err, &rl)
	require.Greater(t, rl.Wait, time.Duration(0))
	require.GreaterOrEqual(t, rl.WaitSeconds(), 1)
}

func TestOTPCooldownSurvivesRedemption(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := &OTPService{Store: st}

	code, err := svc.Issue(ctx, "alice", domain.PurposeLogin2FA)
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, svc.Redeem(ctx, st, "alice", domain.PurposeLogin2FA, code, now))

	// Redeeming the code does not reset the issue cooldown; the clock runs
	// from the last generated code even once it is consumed.
	_, err = svc.Issue(ctx, "alice", domain.PurposeLogin2FA)
	var rl *RateLimitedError
	require.ErrorAs(t, err, &rl)
	require.Greater(t, rl.Wait, time.Duration(0))
}

func TestOTPCooldownRemaining(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := &OTPService{Store: st}

	now := time.Now().UTC()

	// No code yet, nothing to wait for.
	wait, err := svc.CooldownRemaining(ctx, "alice", domain.PurposeLogin2FA, now)
	require.NoError(t, err)
	require.Zero(t, wait)

	code, err := svc.Issue(ctx, "alice", domain.PurposeLogin2FA)
	require.NoError(t, err)

	now = time.Now().UTC()
	first, err := svc.CooldownRemaining(ctx, "alice", domain.PurposeLogin2FA, now)
	require.NoError(t, err)
	require.Greater(t, first, time.Duration(0))
	require.LessOrEqual(t, first, DefaultOTPCooldown)

	// Never increases as time passes.
	later, err := svc.CooldownRemaining(ctx, "alice", domain.PurposeLogin2FA, now.Add(10*time.Second))
	require.NoError(t, err)
	require.Less(t, later, first)

	// Redemption does not shorten the wait.
	require.NoError(t, svc.Redeem(ctx, st, "alice", domain.PurposeLogin2FA, code, now))
	afterRedeem, err := svc.CooldownRemaining(ctx, "alice", domain.PurposeLogin2FA, now)
	require.NoError(t, err)
	require.Equal(t, first, afterRedeem)

	// Clamped at zero once the cooldown has lapsed, never negative.
	wait, err = svc.CooldownRemaining(ctx, "alice", domain.PurposeLogin2FA, now.Add(DefaultOTPCooldown+time.Minute))
	require.NoError(t, err)
	require.Zero(t, wait)
}

func TestOTPReissueRetiresPreviousCode(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := &OTPService{Store: st, Cooldown: time.Nanosecond}

	first, err := svc.Issue(ctx, "alice", domain.PurposeLogin2FA)
	require.NoError(t, err)

	time.Sleep(time.Millisecond)

	second, err := svc.Issue(ctx, "alice", domain.PurposeLogin2FA)
	require.NoError(t, err)

	now := time.Now().UTC()
	if first != second {
		err = svc.Redeem(ctx, st, "alice", domain.PurposeLogin2FA, first, now)
		require.Error(t, err)
	}
	require.NoError(t, svc.Redeem(ctx, st, "alice", domain.PurposeLogin2FA, second, now))
}

func TestOTPPurposesAreIsolated(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := &OTPService{Store: st}

	code, err := svc.Issue(ctx, "alice", domain.PurposeLogin2FA)
	require.NoError(t, err)

	now := time.Now().UTC()
	err = svc.Redeem(ctx, st, "alice", domain.PurposePasswordReset, code, now)
	require.ErrorIs(t, err, ErrNoActiveCode)
}

func TestOTPExpiredCodeIsInvisible(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := &OTPService{Store: st}

	code, err := svc.Issue(ctx, "alice", domain.PurposeLogin2FA)
	require.NoError(t, err)

	later := time.Now().UTC().Add(DefaultOTPTTL + time.Minute)
	err = svc.Redeem(ctx, st, "alice", domain.PurposeLogin2FA, code, later)
	require.ErrorIs(t, err, ErrNoActiveCode)
}
