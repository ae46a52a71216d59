package roster

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// ErrBadCredentials is returned by Authenticate on any mismatch.
var ErrBadCredentials = errors.New("wrong username or password")

// ErrCardTaken is returned when a card code is already assigned to
// another subject. A code must resolve to exactly one subject.
var ErrCardTaken = errors.New("card code already assigned")

// Service owns roster CRUD and authentication. Profile ids are
// assigned as the next free integer; removing a profile keeps its
// event log on disk.
type Service struct {
	mu    sync.Mutex
	store Store
}

// NewService creates a roster service over a store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// List returns all profiles keyed by id.
func (s *Service) List(ctx context.Context) (map[string]Profile, error) {
	return s.store.Load(ctx)
}

// Get returns one profile, or nil when the id is unknown.
func (s *Service) Get(ctx context.Context, id string) (*Profile, error) {
	profiles, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	p, ok := profiles[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// Add creates a profile under the next free integer id and returns it.
// The password is stored as a bcrypt hash.
func (s *Service) Add(ctx context.Context, firstName, lastName, cardCode, password, role string) (Profile, error) {
	if firstName == "" || lastName == "" {
		return Profile{}, errors.New("first and last name required")
	}
	if role == "" {
		role = "user"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	profiles, err := s.store.Load(ctx)
	if err != nil {
		return Profile{}, err
	}

	if owner := cardOwner(profiles, cardCode, ""); owner != "" {
		return Profile{}, fmt.Errorf("%w: %s held by subject %s", ErrCardTaken, cardCode, owner)
	}

	id := nextID(profiles)
	p := Profile{
		ID:        id,
		FirstName: firstName,
		LastName:  lastName,
		CardCode:  cardCode,
		Role:      role,
		Folder:    "user_" + id,
	}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return Profile{}, err
		}
		p.Password = string(hash)
	}

	profiles[id] = p
	if err := s.store.Save(ctx, profiles); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Update applies the non-empty fields to an existing profile.
// An empty password leaves the stored credential untouched.
func (s *Service) Update(ctx context.Context, id, firstName, lastName, cardCode, password, role string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profiles, err := s.store.Load(ctx)
	if err != nil {
		return Profile{}, err
	}
	p, ok := profiles[id]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrUnknownSubject, id)
	}

	if firstName != "" {
		p.FirstName = firstName
	}
	if lastName != "" {
		p.LastName = lastName
	}
	if cardCode != "" {
		if owner := cardOwner(profiles, cardCode, id); owner != "" {
			return Profile{}, fmt.Errorf("%w: %s held by subject %s", ErrCardTaken, cardCode, owner)
		}
		p.CardCode = cardCode
	}
	if role != "" {
		p.Role = role
	}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return Profile{}, err
		}
		p.Password = string(hash)
	}

	profiles[id] = p
	if err := s.store.Save(ctx, profiles); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Remove drops the profile from the roster. The subject's event log
// is retained for reporting over past periods.
func (s *Service) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profiles, err := s.store.Load(ctx)
	if err != nil {
		return err
	}
	if _, ok := profiles[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSubject, id)
	}
	delete(profiles, id)
	return s.store.Save(ctx, profiles)
}

// AssignCard binds a card code to the subject, used when an
// administrator claims the last scanned unknown card.
func (s *Service) AssignCard(ctx context.Context, id, cardCode string) (Profile, error) {
	if cardCode == "" {
		return Profile{}, errors.New("card code required")
	}
	return s.Update(ctx, id, "", "", cardCode, "", "")
}

// Authenticate matches "First Last" plus password against the roster
// and returns the profile on success.
func (s *Service) Authenticate(ctx context.Context, fullName, password string) (Profile, error) {
	profiles, err := s.store.Load(ctx)
	if err != nil {
		return Profile{}, err
	}
	for _, p := range profiles {
		if p.FullName() != fullName {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(p.Password), []byte(password)) == nil {
			return p, nil
		}
		return Profile{}, ErrBadCredentials
	}
	return Profile{}, ErrBadCredentials
}

// cardOwner returns the id of the subject holding the code, excluding
// exceptID. An empty code is never owned.
func cardOwner(profiles map[string]Profile, code, exceptID string) string {
	if code == "" {
		return ""
	}
	for id, p := range profiles {
		if id != exceptID && p.CardCode == code {
			return id
		}
	}
	return ""
}

func nextID(profiles map[string]Profile) string {
	max := 0
	for id := range profiles {
		if n, err := strconv.Atoi(id); err == nil && n > max {
			max = n
		}
	}
	return strconv.Itoa(max + 1)
}
