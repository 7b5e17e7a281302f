package flows

import (
	"context"
	"errors"
	"testing"
)

func TestSignInWithoutTwoFactorIssuesTokens(t *testing.T) {
	h := newHarness(t, testUser())
	res := h.signIn(t, false)

	if res.State != SignInTokensIssued || res.Issued == nil {
		t.Fatalf("expected tokens, got %+v", res)
	}
	if res.Issued.AccessToken == "" || res.Issued.RefreshToken == "" || res.PendingID != "" {
		t.Fatalf("unexpected issued payload %+v", res)
	}

	sess, err := h.sessions.Get(context.Background(), res.Issued.SessionID, h.now)
	if err != nil {
		t.Fatalf("session not stored: %v", err)
	}
	if sess.UserID != testUser().ID || sess.TwoFactorUsed {
		t.Fatalf("unexpected session %+v", sess)
	}

	signedIn := h.events.named(EventUserSignedIn)
	if len(signedIn) != 1 || signedIn[0].Fields["twoFactorUsed"] != "false" || signedIn[0].IP != "203.0.113.7" {
		t.Fatalf("expected one UserSignedIn event, got %+v", signedIn)
	}
}

func TestSignInRememberMeExtendsRefreshLifetime(t *testing.T) {
	h := newHarness(t, testUser())
	short := h.signIn(t, false)
	long := h.signIn(t, true)

	if long.Issued.ExpiresAt <= short.Issued.ExpiresAt {
		t.Fatalf("remember-me must outlive a normal session: %d <= %d", long.Issued.ExpiresAt, short.Issued.ExpiresAt)
	}
}

func TestSignInWithTwoFactorOpensPendingSession(t *testing.T) {
	u := testUser()
	u.TwoFactorEnabled = true
	u.TwoFactorSecret = []byte("secret")
	h := newHarness(t, u)

	res := h.signIn(t, false)
	if res.State != SignInPendingTwoFactor || res.PendingID == "" || res.Issued != nil {
		t.Fatalf("expected pending two-factor, got %+v", res)
	}
	if _, err := h.pending.Get(context.Background(), res.PendingID, h.now); err != nil {
		t.Fatalf("pending session not stored: %v", err)
	}
	if n := len(h.events.named(EventUserSignedIn)); n != 0 {
		t.Fatalf("no sign-in event before the second factor, got %d", n)
	}
}

func TestSignInFailuresLookIdentical(t *testing.T) {
	h := newHarness(t, testUser())
	deps := h.signInDeps()

	_, wrongPassword := RunSignIn(context.Background(), SignInInput{Email: "user@example.com", Password: "nope"}, deps)
	_, unknownUser := RunSignIn(context.Background(), SignInInput{Email: "ghost@example.com", Password: "nope"}, deps)

	if wrongPassword != testErrors.InvalidCredentials || unknownUser != testErrors.InvalidCredentials {
		t.Fatalf("expected identical errors, got %v / %v", wrongPassword, unknownUser)
	}
	failed := h.events.named(EventSignInFailed)
	if len(failed) != 2 || failed[0].Fields["reason"] != ReasonInvalidCredentials {
		t.Fatalf("expected two SignInFailed events, got %+v", failed)
	}
}

func TestSignInLockout(t *testing.T) {
	h := newHarness(t, testUser())
	deps := h.signInDeps()
	in := SignInInput{Email: "user@example.com", Password: "wrong", IP: "198.51.100.1"}

	for i := 0; i < 3; i++ {
		if _, err := RunSignIn(context.Background(), in, deps); err != testErrors.InvalidCredentials {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i+1, err)
		}
	}
	locked := h.events.named(EventAccountLockedOut)
	if len(locked) != 1 || locked[0].Fields["failedAttempts"] != "3" || locked[0].Fields["lockoutDurationSeconds"] != "900" {
		t.Fatalf("expected AccountLockedOut after 3 failures, got %+v", locked)
	}

	in.Password = "Password1!"
	res, err := RunSignIn(context.Background(), in, deps)
	if !errors.Is(err, testErrors.AccountLocked) || res.State != SignInRejected {
		t.Fatalf("correct password during lockout must be rejected, got %v", err)
	}
}

func TestSignInUpgradesLegacyHash(t *testing.T) {
	h := newHarness(t, testUser())
	deps := h.signInDeps()
	deps.NeedsUpgrade = func(hash string) (bool, error) { return hash == "plain:Password1!", nil }
	deps.HashPassword = func(plain string) (string, error) { return "new:" + plain, nil }

	if _, err := RunSignIn(context.Background(), SignInInput{Email: "user@example.com", Password: "Password1!"}, deps); err != nil {
		t.Fatalf("sign-in: %v", err)
	}
	if got := h.users.password(testUser().ID); got != "new:Password1!" {
		t.Fatalf("expected upgraded hash, got %q", got)
	}
}

func TestSignInBackendFailure(t *testing.T) {
	h := newHarness(t, testUser())
	h.users.failWith = errors.New("db down")

	_, err := RunSignIn(context.Background(), SignInInput{Email: "user@example.com", Password: "Password1!"}, h.signInDeps())
	if err != testErrors.BackendUnavailable {
		t.Fatalf("expected backend error, got %v", err)
	}
}
