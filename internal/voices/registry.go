// Package voices persists reusable voice profiles for cloning.
//
// The catalog is one JSON document mapping profile id to profile record,
// read fully at construction and rewritten fully on every mutation. Low
// write volume makes whole-document rewrite acceptable; a writer mutex and
// rename-on-write protect it from lost updates and partial writes.
package voices

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	profilesFileName = "profiles.json"
	dirPermissions   = 0o750
	filePermissions  = 0o600
)

// ErrProfileNotFound is returned by Update for an absent id.
var ErrProfileNotFound = errors.New("voice profile not found")

// Profile is one persisted voice record. Field names match the catalog
// documents written by earlier deployments.
type Profile struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	Name           string         `json:"name"`
	VoiceSampleURL string         `json:"voice_sample_url"`
	Transcript     string         `json:"transcript"`
	Language       string         `json:"language"`
	Metadata       map[string]any `json:"metadata"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ProfileUpdate carries the fields of a shallow merge; nil fields are left
// untouched.
type ProfileUpdate struct {
	Name           *string        `json:"name,omitempty"`
	VoiceSampleURL *string        `json:"voice_sample_url,omitempty"`
	Transcript     *string        `json:"transcript,omitempty"`
	Language       *string        `json:"language,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Registry is a catalog of voice profiles backed by one JSON document.
// All mutations serialize on the registry mutex, so concurrent use from one
// process is safe; sharing the storage path across processes is not.
type Registry struct {
	mu           sync.Mutex
	profilesPath string
	profiles     map[string]Profile
}

// New opens (or creates) the catalog under storageDir and loads the whole
// document.
func New(storageDir string) (*Registry, error) {
	err := os.MkdirAll(storageDir, dirPermissions)
	if err != nil {
		return nil, fmt.Errorf("failed to create voices storage dir '%s': %w", storageDir, err)
	}

	registry := &Registry{
		profilesPath: filepath.Join(storageDir, profilesFileName),
		profiles:     make(map[string]Profile),
	}

	loadErr := registry.load()
	if loadErr != nil {
		return nil, loadErr
	}

	return registry, nil
}

func (r *Registry) load() error {
	data, err := os.ReadFile(r.profilesPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("failed to read profiles catalog: %w", err)
	}

	err = json.Unmarshal(data, &r.profiles)
	if err != nil {
		return fmt.Errorf("failed to parse profiles catalog '%s': %w", r.profilesPath, err)
	}

	return nil
}

// save rewrites the whole document. Callers hold the registry mutex. The
// write goes to a temporary file first and is renamed into place so a crash
// mid-write cannot corrupt the catalog.
func (r *Registry) save() error {
	data, err := json.MarshalIndent(r.profiles, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal profiles catalog: %w", err)
	}

	tempPath := r.profilesPath + ".tmp"

	err = os.WriteFile(tempPath, data, filePermissions)
	if err != nil {
		return fmt.Errorf("failed to write profiles catalog: %w", err)
	}

	err = os.Rename(tempPath, r.profilesPath)
	if err != nil {
		return fmt.Errorf("failed to commit profiles catalog: %w", err)
	}

	return nil
}

// Create adds a profile and persists the catalog before returning. Ids are
// collision-resistant: a readable owner/name prefix plus a UUID, never a
// catalog count, so concurrent creations cannot collide.
func (r *Registry) Create(
	userID, name, sampleURL, transcript, language string,
	metadata map[string]any,
) (Profile, error) {
	if metadata == nil {
		metadata = make(map[string]any)
	}

	profile := Profile{
		ID:             buildProfileID(userID, name),
		UserID:         userID,
		Name:           name,
		VoiceSampleURL: sampleURL,
		Transcript:     transcript,
		Language:       language,
		Metadata:       metadata,
		CreatedAt:      time.Now().UTC(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.profiles[profile.ID] = profile

	err := r.save()
	if err != nil {
		delete(r.profiles, profile.ID)

		return Profile{}, err
	}

	return profile, nil
}

// Get returns the profile for id, and whether it exists.
func (r *Registry) Get(id string) (Profile, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile, ok := r.profiles[id]

	return profile, ok
}

// List returns all profiles owned by userID, ordered by creation time.
func (r *Registry) List(userID string) []Profile {
	r.mu.Lock()
	defer r.mu.Unlock()

	var owned []Profile

	for _, profile := range r.profiles {
		if profile.UserID == userID {
			owned = append(owned, profile)
		}
	}

	sort.Slice(owned, func(i, j int) bool {
		if owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].ID < owned[j].ID
		}

		return owned[i].CreatedAt.Before(owned[j].CreatedAt)
	})

	return owned
}

// Update shallow-merges the provided fields into the profile and persists
// the catalog. Returns ErrProfileNotFound for an absent id.
func (r *Registry) Update(id string, update ProfileUpdate) (Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile, ok := r.profiles[id]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}

	previous := profile

	if update.Name != nil {
		profile.Name = *update.Name
	}

	if update.VoiceSampleURL != nil {
		profile.VoiceSampleURL = *update.VoiceSampleURL
	}

	if update.Transcript != nil {
		profile.Transcript = *update.Transcript
	}

	if update.Language != nil {
		profile.Language = *update.Language
	}

	if len(update.Metadata) > 0 {
		merged := make(map[string]any, len(profile.Metadata)+len(update.Metadata))
		for key, value := range profile.Metadata {
			merged[key] = value
		}

		for key, value := range update.Metadata {
			merged[key] = value
		}

		profile.Metadata = merged
	}

	r.profiles[id] = profile

	err := r.save()
	if err != nil {
		r.profiles[id] = previous

		return Profile{}, err
	}

	return profile, nil
}

// Delete removes a profile. Deleting an absent id is a no-op returning
// false, leaving the catalog untouched.
func (r *Registry) Delete(id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile, ok := r.profiles[id]
	if !ok {
		return false, nil
	}

	delete(r.profiles, id)

	err := r.save()
	if err != nil {
		r.profiles[id] = profile

		return false, err
	}

	return true, nil
}

func buildProfileID(userID, name string) string {
	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, name)

	return fmt.Sprintf("%s_%s_%s", userID, sanitized, uuid.NewString())
}
