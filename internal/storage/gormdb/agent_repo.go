package gormdb

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/jkaninda/busara/internal/agent"
)

// AgentRepository implements agent configuration persistence with GORM.
type AgentRepository struct {
	db *gorm.DB
}

// NewAgentRepository creates an AgentRepository.
func NewAgentRepository(db *gorm.DB) *AgentRepository {
	return &AgentRepository{db: db}
}

// LoadAll returns every stored agent definition, ordered by name.
func (r *AgentRepository) LoadAll(ctx context.Context) ([]agent.Definition, error) {
	var models []AgentModel
	if err := r.db.WithContext(ctx).
		Order("name ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("loading agents: %w", err)
	}
	defs := make([]agent.Definition, 0, len(models))
	for i := range models {
		d, err := toAgentDomain(&models[i])
		if err != nil {
			return nil, fmt.Errorf("decoding agent %q: %w", models[i].Name, err)
		}
		defs = append(defs, d)
	}
	return defs, nil
}

// Save replaces the stored agent set with defs in one transaction.
func (r *AgentRepository) Save(ctx context.Context, defs []agent.Definition) error {
	models := make([]AgentModel, 0, len(defs))
	for i := range defs {
		m, err := toAgentModel(&defs[i])
		if err != nil {
			return fmt.Errorf("encoding agent %q: %w", defs[i].Name, err)
		}
		models = append(models, m)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&AgentModel{}).Error; err != nil {
			return fmt.Errorf("clearing agents: %w", err)
		}
		if len(models) == 0 {
			return nil
		}
		if err := tx.Create(&models).Error; err != nil {
			return fmt.Errorf("saving agents: %w", err)
		}
		return nil
	})
}

// compile-time interface check
var _ agent.Store = (*AgentRepository)(nil)
