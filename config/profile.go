package config

import (
	"encoding/json"
	"fmt"

	"github.com/automoto/doomerang-netsync/shared/messages"
	"github.com/quasilyte/gdata"
)

const profileKey = "profile"

// Profile is the locally saved identity sent in JoinRequest.
type Profile struct {
	CharacterName string `json:"characterName"`
	AccountName   string `json:"accountName,omitempty"`
	AccountID     int32  `json:"accountId,omitempty"`
	SessionToken  string `json:"sessionToken,omitempty"`
	ClassName     string `json:"className,omitempty"`
	SpecName      string `json:"specName,omitempty"`
	LastServer    string `json:"lastServer,omitempty"`
}

// DefaultProfile is used when nothing has been saved yet.
func DefaultProfile() Profile {
	return Profile{CharacterName: "Wanderer"}
}

// JoinRequest builds the join message for this profile.
func (p Profile) JoinRequest() messages.JoinRequest {
	return messages.JoinRequest{
		CharacterName: p.CharacterName,
		AccountName:   p.AccountName,
		AccountID:     p.AccountID,
		SessionToken:  p.SessionToken,
		ClassName:     p.ClassName,
		SpecName:      p.SpecName,
	}
}

type itemStore interface {
	LoadItem(key string) ([]byte, error)
	SaveItem(key string, data []byte) error
}

// ProfileStore persists the profile in the per-user data directory.
type ProfileStore struct {
	items itemStore
}

// OpenProfileStore opens the gdata storage for appName.
func OpenProfileStore(appName string) (*ProfileStore, error) {
	m, err := gdata.Open(gdata.Config{AppName: appName})
	if err != nil {
		return nil, fmt.Errorf("open profile storage: %w", err)
	}
	return &ProfileStore{items: m}, nil
}

// Load returns the saved profile, or DefaultProfile when none exists.
func (s *ProfileStore) Load() (Profile, error) {
	data, err := s.items.LoadItem(profileKey)
	if err != nil {
		return DefaultProfile(), fmt.Errorf("load profile: %w", err)
	}
	if data == nil {
		return DefaultProfile(), nil
	}
	p := DefaultProfile()
	if err := json.Unmarshal(data, &p); err != nil {
		return DefaultProfile(), fmt.Errorf("parse profile: %w", err)
	}
	if p.CharacterName == "" {
		p.CharacterName = DefaultProfile().CharacterName
	}
	return p, nil
}

// Save writes p.
func (s *ProfileStore) Save(p Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if err := s.items.SaveItem(profileKey, data); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}
