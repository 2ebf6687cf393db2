package directory

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const rosterYAML = `alice:
  address: alice_irc
  name: Alice
bob:
  address: bob_irc
`

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.yaml")
	if err := os.WriteFile(path, []byte(rosterYAML), 0644); err != nil {
		t.Fatal(err)
	}

	d, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if d.Len() != 2 {
		t.Fatalf("expected 2 users, got %d", d.Len())
	}

	alice, ok := d.Resolve("alice")
	if !ok {
		t.Fatal("alice should resolve")
	}
	if alice.Address != "alice_irc" || alice.Name != "Alice" {
		t.Errorf("unexpected alice entry: %+v", alice)
	}

	// Missing name falls back to the key.
	bob, ok := d.Resolve("bob")
	if !ok || bob.Name != "bob" {
		t.Errorf("expected bob name fallback, got %+v", bob)
	}

	if _, ok := d.Resolve("mallory"); ok {
		t.Error("unknown key should not resolve")
	}
}

func TestLoad_Empty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.yaml")
	if err := os.WriteFile(path, []byte("{}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for empty roster")
	}
}

func TestResolveAddress(t *testing.T) {
	d := New(map[string]User{
		"alice": {Address: "alice_irc", Name: "Alice"},
	})
	u, ok := d.ResolveAddress("alice_irc")
	if !ok || u.Key != "alice" {
		t.Errorf("expected alice by address, got %+v ok=%v", u, ok)
	}
	if _, ok := d.ResolveAddress("nobody"); ok {
		t.Error("unknown address should not resolve")
	}
}

func TestKeysSorted(t *testing.T) {
	d := New(map[string]User{
		"carol": {Address: "c"},
		"alice": {Address: "a"},
		"bob":   {Address: "b"},
	})
	if got := d.Keys(); !reflect.DeepEqual(got, []string{"alice", "bob", "carol"}) {
		t.Errorf("unexpected key order: %v", got)
	}
}
