package auth

import (
	"context"
	"testing"

	"github.com/avidalv/mortgage-tracker/internal/config"
)

func testUsers() []config.UserConfig {
	return []config.UserConfig{
		{Email: "lender@example.com", Password: "s3cret", Role: "lender"},
		{Email: "borrower@example.com", Password: "hunter2", Role: "borrower"},
	}
}

func TestLoginAndValidate(t *testing.T) {
	ctx := context.Background()
	store := NewStore(testUsers())

	token, user, err := store.Login(ctx, "lender@example.com", "s3cret")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	if user.Role != "lender" {
		t.Errorf("got role %q, want lender", user.Role)
	}

	resolved := store.Validate(ctx, token)
	if resolved == nil {
		t.Fatal("expected token to validate")
	}
	if resolved.Email != "lender@example.com" {
		t.Errorf("got email %q", resolved.Email)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	ctx := context.Background()
	store := NewStore(testUsers())

	cases := []struct {
		name     string
		email    string
		password string
	}{
		{"wrong password", "lender@example.com", "nope"},
		{"unknown user", "nobody@example.com", "s3cret"},
		{"empty credentials", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := store.Login(ctx, tc.email, tc.password); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	ctx := context.Background()
	store := NewStore(testUsers())

	token, _, err := store.Login(ctx, "borrower@example.com", "hunter2")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	store.Logout(ctx, token)
	if store.Validate(ctx, token) != nil {
		t.Error("expected token to be revoked")
	}

	// Unknown tokens are a no-op.
	store.Logout(ctx, "bogus")
}

func TestStreamPublishesAuthState(t *testing.T) {
	ctx := context.Background()
	store := NewStore(testUsers())

	var events []*User
	dispose := store.Stream().Subscribe(func(u *User) {
		events = append(events, u)
	})
	defer dispose()

	token, _, err := store.Login(ctx, "lender@example.com", "s3cret")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	store.Logout(ctx, token)

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0] == nil || events[0].Email != "lender@example.com" {
		t.Errorf("first event = %+v, want lender user", events[0])
	}
	if events[1] != nil {
		t.Errorf("second event = %+v, want nil", events[1])
	}
}

func TestStreamDisposerIsIdempotent(t *testing.T) {
	stream := NewStream()

	count := 0
	dispose := stream.Subscribe(func(*User) { count++ })

	stream.publish(nil)
	dispose()
	dispose()
	stream.publish(nil)

	if count != 1 {
		t.Errorf("got %d callbacks, want 1", count)
	}
}

func TestStreamIndependentSubscribers(t *testing.T) {
	stream := NewStream()

	var a, b int
	disposeA := stream.Subscribe(func(*User) { a++ })
	defer stream.Subscribe(func(*User) { b++ })()

	stream.publish(nil)
	disposeA()
	stream.publish(nil)

	if a != 1 || b != 2 {
		t.Errorf("got a=%d b=%d, want a=1 b=2", a, b)
	}
}
