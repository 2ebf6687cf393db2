package directory

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// User is one entry of the static team roster. Address is the chat
// delivery identifier (IRC nick, WhatsApp JID, ...).
type User struct {
	Key     string `yaml:"-"`
	Address string `yaml:"address"`
	Name    string `yaml:"name"`
}

// Directory is a read-only lookup table from user key to delivery
// address and display name. It is loaded once at startup and injected
// into everything that needs to resolve a teammate.
type Directory struct {
	users map[string]User
}

func New(users map[string]User) *Directory {
	m := make(map[string]User, len(users))
	for key, u := range users {
		u.Key = key
		if u.Name == "" {
			u.Name = key
		}
		m[key] = u
	}
	return &Directory{users: m}
}

// Load reads a users.yaml roster file:
//
//	alice:
//	  address: alice_irc
//	  name: Alice
func Load(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read user directory: %w", err)
	}
	var users map[string]User
	if err := yaml.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("parse user directory %s: %w", path, err)
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("user directory %s has no entries", path)
	}
	return New(users), nil
}

// Resolve looks up a user by key.
func (d *Directory) Resolve(key string) (User, bool) {
	u, ok := d.users[key]
	return u, ok
}

// ResolveAddress finds the user whose delivery address matches, used to
// identify the initiator of an inbound chat event.
func (d *Directory) ResolveAddress(addr string) (User, bool) {
	for _, u := range d.users {
		if u.Address == addr {
			return u, true
		}
	}
	return User{}, false
}

// Keys returns all user keys sorted, for stable selection prompts.
func (d *Directory) Keys() []string {
	keys := make([]string, 0, len(d.users))
	for k := range d.users {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (d *Directory) Len() int {
	return len(d.users)
}
