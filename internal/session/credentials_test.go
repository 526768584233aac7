package session

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestStoreLoadMissing(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "credentials.toml"))
	if err := s.Load(); !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("Load() = %v, want ErrNotLoggedIn", err)
	}
	if _, ok := s.Current(); ok {
		t.Error("Current() reports loaded credentials after failed Load")
	}
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.toml")
	s := NewStore(path)
	creds := Credentials{
		UserID:       42,
		Username:     "ada",
		Email:        "ada@example.com",
		Role:         "buyer",
		AccessToken:  "acc-1",
		RefreshToken: "ref-1",
	}
	if err := s.Save(creds); err != nil {
		t.Fatal(err)
	}

	// A fresh store reading the same file sees the same identity.
	s2 := NewStore(path)
	if err := s2.Load(); err != nil {
		t.Fatal(err)
	}
	got, ok := s2.Current()
	if !ok {
		t.Fatal("Current() not loaded after Load")
	}
	if got != creds {
		t.Errorf("credentials = %+v, want %+v", got, creds)
	}
}

func TestSetTokensKeepsRefreshWhenEmpty(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "credentials.toml"))
	if err := s.Save(Credentials{UserID: 1, AccessToken: "a1", RefreshToken: "r1"}); err != nil {
		t.Fatal(err)
	}

	if err := s.SetTokens("a2", ""); err != nil {
		t.Fatal(err)
	}
	if s.AccessToken() != "a2" {
		t.Errorf("access token = %q, want a2", s.AccessToken())
	}
	if s.RefreshToken() != "r1" {
		t.Errorf("refresh token = %q, want r1 (kept)", s.RefreshToken())
	}

	if err := s.SetTokens("a3", "r2"); err != nil {
		t.Fatal(err)
	}
	if s.RefreshToken() != "r2" {
		t.Errorf("refresh token = %q, want r2 (rotated)", s.RefreshToken())
	}
}

func TestStoreClear(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "credentials.toml"))
	if err := s.Save(Credentials{UserID: 7, AccessToken: "x"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}
	if err := s.Load(); !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("Load() after Clear = %v, want ErrNotLoggedIn", err)
	}
}
