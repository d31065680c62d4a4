package devapi

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/geocoder89/incidentdesk/internal/security"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidCredentials = errors.New("devapi: invalid credentials")
	ErrUserExists         = errors.New("devapi: username already taken")
)

type User struct {
	ID           int64
	Username     string
	Email        string
	Role         string
	PasswordHash string
}

// UserSeed is one entry of the users file:
//
//	users:
//	  - username: admin
//	    password: admin123
//	    role: admin
type UserSeed struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
	Email    string `yaml:"email"`
}

type usersFile struct {
	Users []UserSeed `yaml:"users"`
}

func DefaultSeeds() []UserSeed {
	return []UserSeed{
		{Username: "admin", Password: "admin123", Role: "admin", Email: "admin@example.com"},
		{Username: "analyst", Password: "analyst123", Role: "analyst", Email: "analyst@example.com"},
		{Username: "employee", Password: "employee123", Role: "employee", Email: "employee@example.com"},
	}
}

// LoadSeeds reads the users file at path, or returns the defaults when
// path is empty.
func LoadSeeds(path string) ([]UserSeed, error) {
	if path == "" {
		return DefaultSeeds(), nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("devapi: read users file: %w", err)
	}
	return ParseSeeds(b)
}

func ParseSeeds(b []byte) ([]UserSeed, error) {
	var f usersFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("devapi: parse users file: %w", err)
	}

	for i, s := range f.Users {
		if strings.TrimSpace(s.Username) == "" || s.Password == "" {
			return nil, fmt.Errorf("devapi: users[%d]: username and password are required", i)
		}
	}
	return f.Users, nil
}

// Users is the in-memory account table. Roles are stored as given, so an
// account can carry a role the portal does not know.
type Users struct {
	cost int

	mu     sync.RWMutex
	byName map[string]User
	nextID int64
}

func NewUsers(seeds []UserSeed, cost int) (*Users, error) {
	u := &Users{cost: cost, byName: make(map[string]User)}
	for _, s := range seeds {
		if _, err := u.Add(s); err != nil {
			return nil, err
		}
	}
	return u, nil
}

func (u *Users) Add(s UserSeed) (User, error) {
	hash, err := security.HashPasswordCost(s.Password, u.cost)
	if err != nil {
		return User{}, err
	}

	name := strings.ToLower(strings.TrimSpace(s.Username))

	u.mu.Lock()
	defer u.mu.Unlock()

	if _, ok := u.byName[name]; ok {
		return User{}, ErrUserExists
	}

	u.nextID++
	usr := User{
		ID:           u.nextID,
		Username:     name,
		Email:        s.Email,
		Role:         strings.TrimSpace(s.Role),
		PasswordHash: hash,
	}
	u.byName[name] = usr
	return usr, nil
}

func (u *Users) Authenticate(username, password string) (User, error) {
	usr, ok := u.Lookup(username)
	if !ok {
		return User{}, ErrInvalidCredentials
	}
	if err := security.CheckPassword(usr.PasswordHash, password); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return usr, nil
}

func (u *Users) Lookup(username string) (User, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	usr, ok := u.byName[strings.ToLower(strings.TrimSpace(username))]
	return usr, ok
}

func (u *Users) Get(id int64) (User, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	for _, usr := range u.byName {
		if usr.ID == id {
			return usr, true
		}
	}
	return User{}, false
}

// CountByRole returns how many accounts hold each role.
func (u *Users) CountByRole() map[string]int {
	u.mu.RLock()
	defer u.mu.RUnlock()

	out := make(map[string]int)
	for _, usr := range u.byName {
		out[usr.Role]++
	}
	return out
}

func (u *Users) Usernames() []string {
	u.mu.RLock()
	defer u.mu.RUnlock()

	out := make([]string, 0, len(u.byName))
	for name := range u.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
