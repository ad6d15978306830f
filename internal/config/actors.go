package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/support-core/internal/domain"
)

// ActorSeed is one entry of an actor seed file.
type ActorSeed struct {
	ID             string `yaml:"id"`
	Role           string `yaml:"role"`
	OrganizationID string `yaml:"organization_id"`
	DisplayName    string `yaml:"display_name"`
	Email          string `yaml:"email"`
}

type actorsFile struct {
	Actors []ActorSeed `yaml:"actors"`
}

// LoadActors parses a YAML actor seed file.
func LoadActors(path string) ([]domain.Actor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read actors file: %w", err)
	}
	return ParseActors(data)
}

// ParseActors decodes actor seeds and validates roles.
func ParseActors(data []byte) ([]domain.Actor, error) {
	var file actorsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse actors file: %w", err)
	}

	actors := make([]domain.Actor, 0, len(file.Actors))
	for i, seed := range file.Actors {
		if seed.ID == "" {
			return nil, fmt.Errorf("actor %d: id required", i)
		}
		role := domain.Role(seed.Role)
		if !role.Valid() {
			return nil, fmt.Errorf("actor %s: unknown role %q", seed.ID, seed.Role)
		}
		actor := domain.Actor{
			ID:          seed.ID,
			Role:        role,
			DisplayName: seed.DisplayName,
			Email:       seed.Email,
		}
		if seed.OrganizationID != "" {
			org := seed.OrganizationID
			actor.OrganizationID = &org
		}
		if role == domain.RoleOrgAdmin && actor.OrganizationID == nil {
			return nil, fmt.Errorf("actor %s: org admin requires organization_id", seed.ID)
		}
		actors = append(actors, actor)
	}
	return actors, nil
}
