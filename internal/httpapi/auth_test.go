package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"rgsons/backend/internal/domain"
	"rgsons/backend/internal/store"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func seededStub() *userStoreStub {
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      roleAdmin,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	stub := seededStub()
	manager := NewAuthManager("test-secret", time.Hour, stub)

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"}); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	users, err := stub.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", users[0].Password)
	}
	if stub.updates != 1 {
		t.Fatalf("expected a single password upgrade, got %d", stub.updates)
	}
}

func TestCreateClerkStoresPasswordHash(t *testing.T) {
	stub := seededStub()
	manager := NewAuthManager("test-secret", time.Hour, stub)
	ctx := context.Background()

	clerk, err := manager.CreateClerk(ctx, domain.ClerkCreateRequest{Username: "Counter1", Password: "pass1234"})
	if err != nil {
		t.Fatalf("create clerk failed: %v", err)
	}
	if clerk.Username != "counter1" || clerk.Role != roleClerk {
		t.Fatalf("unexpected clerk %+v", clerk)
	}

	stored := stub.users["counter1"]
	if stored.Password == "pass1234" || !strings.HasPrefix(stored.Password, "$2") {
		t.Fatalf("expected clerk password to be hashed, got %s", stored.Password)
	}

	resp, err := manager.Login(ctx, domain.LoginRequest{Username: "counter1", Password: "pass1234"})
	if err != nil {
		t.Fatalf("login with hashed clerk failed: %v", err)
	}
	if resp.Role != roleClerk {
		t.Fatalf("expected clerk role, got %s", resp.Role)
	}

	clerks := manager.ListClerks(ctx)
	if len(clerks) != 1 || clerks[0].Username != "counter1" {
		t.Fatalf("expected admin to be excluded from clerk list, got %+v", clerks)
	}
}

func TestCreateClerkValidation(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, seededStub())
	ctx := context.Background()

	cases := []struct {
		name string
		req  domain.ClerkCreateRequest
		want error
	}{
		{"short username", domain.ClerkCreateRequest{Username: "abc", Password: "pass1234"}, store.ErrInvalidTransaction},
		{"space in username", domain.ClerkCreateRequest{Username: "two words", Password: "pass1234"}, store.ErrInvalidTransaction},
		{"short password", domain.ClerkCreateRequest{Username: "counter9", Password: "12345"}, store.ErrInvalidTransaction},
		{"existing user", domain.ClerkCreateRequest{Username: "ADMIN", Password: "pass1234"}, store.ErrConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := manager.CreateClerk(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	stub := seededStub()
	hashed, err := hashPassword("clerk123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	stub.users["retired"] = domain.UserAccount{Username: "retired", Password: hashed, Role: roleClerk, Active: false}
	manager := NewAuthManager("test-secret", time.Hour, stub)

	_, err = manager.Login(context.Background(), domain.LoginRequest{Username: "retired", Password: "clerk123"})
	if !errors.Is(err, errAccountInactive) {
		t.Fatalf("expected inactive account error, got %v", err)
	}
}

func TestParseTokenRoundTrip(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, seededStub())

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "admin" || actor.Role != roleAdmin {
		t.Fatalf("unexpected actor %+v", actor)
	}

	other := NewAuthManager("another-secret", time.Hour, nil)
	if _, err := other.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestParseTokenRejectsExpiredAndForeignIssuer(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, nil)

	expired, err := manager.sign("admin", roleAdmin, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := manager.ParseToken(expired); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}

	foreign := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, rgsonsClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "admin",
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
			Issuer:    "someone-else",
		},
		Role: roleAdmin,
	})
	signed, err := foreign.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign foreign: %v", err)
	}
	if _, err := manager.ParseToken(signed); err == nil {
		t.Fatalf("expected token from another issuer to be rejected")
	}
}
