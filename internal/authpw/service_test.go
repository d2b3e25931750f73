package authpw

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"quadrant/api/internal/store"
)

type fakeUserStore struct {
	byEmail map[string]store.User
	byID    map[string]store.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		byEmail: make(map[string]store.User),
		byID:    make(map[string]store.User),
	}
}

func (f *fakeUserStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	if user, ok := f.byEmail[email]; ok {
		return user, nil
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeUserStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	if user, ok := f.byID[id]; ok {
		return user, nil
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeUserStore) CreateUser(_ context.Context, user store.User) error {
	f.byEmail[user.Email] = user
	f.byID[user.ID] = user
	return nil
}

func (f *fakeUserStore) UpdateUserPassword(_ context.Context, userID, passwordHash string) error {
	user := f.byID[userID]
	user.PasswordHash = passwordHash
	f.byID[userID] = user
	f.byEmail[user.Email] = user
	return nil
}

func TestSignUpAndSignIn(t *testing.T) {
	service := NewService(newFakeUserStore())
	ctx := context.Background()

	user, err := service.SignUp(ctx, SignUpRequest{
		Email:       "Avery@Example.com",
		Password:    "correct-horse",
		DisplayName: "Avery",
	})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if user.Email != "avery@example.com" {
		t.Errorf("email not normalized: %q", user.Email)
	}
	if user.PasswordHash == "correct-horse" || user.PasswordHash == "" {
		t.Error("password stored unhashed")
	}

	signedIn, err := service.SignIn(ctx, SignInRequest{Email: "avery@example.com", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if signedIn.ID != user.ID {
		t.Errorf("signed in as wrong user: %s", signedIn.ID)
	}
}

func TestSignInWrongPassword(t *testing.T) {
	service := NewService(newFakeUserStore())
	ctx := context.Background()

	if _, err := service.SignUp(ctx, SignUpRequest{
		Email: "avery@example.com", Password: "correct-horse", DisplayName: "Avery",
	}); err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	if _, err := service.SignIn(ctx, SignInRequest{Email: "avery@example.com", Password: "wrong"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := service.SignIn(ctx, SignInRequest{Email: "nobody@example.com", Password: "whatever"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestSignUpValidation(t *testing.T) {
	service := NewService(newFakeUserStore())
	ctx := context.Background()

	if _, err := service.SignUp(ctx, SignUpRequest{Email: "a@b.c", Password: "short", DisplayName: "A"}); err == nil {
		t.Error("expected error for short password")
	}
	if _, err := service.SignUp(ctx, SignUpRequest{Password: "long-enough", DisplayName: "A"}); err == nil {
		t.Error("expected error for missing email")
	}

	if _, err := service.SignUp(ctx, SignUpRequest{Email: "a@b.c", Password: "long-enough", DisplayName: "A"}); err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if _, err := service.SignUp(ctx, SignUpRequest{Email: "a@b.c", Password: "long-enough", DisplayName: "B"}); err == nil {
		t.Error("expected error for duplicate email")
	}
}

func TestChangePassword(t *testing.T) {
	service := NewService(newFakeUserStore())
	ctx := context.Background()

	user, err := service.SignUp(ctx, SignUpRequest{
		Email: "avery@example.com", Password: "correct-horse", DisplayName: "Avery",
	})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	if err := service.ChangePassword(ctx, user.ID, "wrong", "battery-staple"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := service.ChangePassword(ctx, user.ID, "correct-horse", "battery-staple"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}
	if _, err := service.SignIn(ctx, SignInRequest{Email: "avery@example.com", Password: "battery-staple"}); err != nil {
		t.Errorf("SignIn with new password failed: %v", err)
	}
}
