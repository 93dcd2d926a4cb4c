package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/gatehouseid/gatehouse/internal/apperror"
	"github.com/gatehouseid/gatehouse/internal/plugins/account"
)

func newTestIssuer(t *testing.T) (*Issuer, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewIssuer(rdb, testConfig), mr
}

func testAccount() *account.Account {
	return &account.Account{ID: 7, UID: "ID001", Email: testEmail}
}

func TestIssuer_IssueAndVerify(t *testing.T) {
	issuer, _ := newTestIssuer(t)

	token, err := issuer.Issue(context.Background(), testAccount(), "webapp", 0)
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}
	if len(token.Token) != tokenBytes*2 {
		t.Errorf("expected %d-char token, got %d", tokenBytes*2, len(token.Token))
	}

	claims, err := issuer.Verify(context.Background(), token.Token)
	if err != nil {
		t.Fatalf("verifying token: %v", err)
	}
	if claims.AccountID != 7 || claims.AccountUID != "ID001" {
		t.Errorf("claims carry wrong account: %+v", claims)
	}
	if claims.ApplicationID != "webapp" {
		t.Errorf("claims bound to wrong application: %q", claims.ApplicationID)
	}
}

func TestIssuer_UnknownToken(t *testing.T) {
	issuer, _ := newTestIssuer(t)

	_, err := issuer.Verify(context.Background(), "deadbeef")
	if !apperror.IsType(err, apperror.TypeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestIssuer_ExpiredToken(t *testing.T) {
	issuer, mr := newTestIssuer(t)

	token, err := issuer.Issue(context.Background(), testAccount(), "webapp", 10*time.Minute)
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}

	mr.FastForward(11 * time.Minute)

	_, err = issuer.Verify(context.Background(), token.Token)
	if !apperror.IsType(err, apperror.TypeUnauthorized) {
		t.Fatalf("expected unauthorized after expiry, got %v", err)
	}
}

func TestIssuer_TTLClamping(t *testing.T) {
	issuer, _ := newTestIssuer(t)

	cases := []struct {
		name      string
		requested time.Duration
		want      time.Duration
	}{
		{"zero selects default", 0, testConfig.TokenTTL},
		{"below minimum clamps up", time.Second, testConfig.TokenTTLMin},
		{"above maximum clamps down", 100 * time.Hour, testConfig.TokenTTLMax},
		{"in range passes through", 2 * time.Hour, 2 * time.Hour},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before := time.Now()
			token, err := issuer.Issue(context.Background(), testAccount(), "webapp", tc.requested)
			if err != nil {
				t.Fatalf("issuing token: %v", err)
			}
			got := token.ExpiresAt.Sub(before)
			if diff := got - tc.want; diff < -time.Minute || diff > time.Minute {
				t.Errorf("expiry %v from now, want roughly %v", got, tc.want)
			}
		})
	}
}
