package gormdb

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/jkaninda/busara/internal/workflow"
)

// activeRowID pins the active-workflow marker to a single row.
const activeRowID = 1

// WorkflowRepository implements workflow configuration persistence with GORM.
type WorkflowRepository struct {
	db *gorm.DB
}

// NewWorkflowRepository creates a WorkflowRepository.
func NewWorkflowRepository(db *gorm.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// LoadAll returns every stored workflow definition, the active one flagged.
func (r *WorkflowRepository) LoadAll(ctx context.Context) ([]workflow.Definition, error) {
	var models []WorkflowModel
	if err := r.db.WithContext(ctx).
		Order("name ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("loading workflows: %w", err)
	}
	activeID, err := r.activeID(ctx)
	if err != nil {
		return nil, err
	}
	defs := make([]workflow.Definition, 0, len(models))
	for i := range models {
		d, err := toWorkflowDomain(&models[i], activeID)
		if err != nil {
			return nil, fmt.Errorf("decoding workflow %q: %w", models[i].ID, err)
		}
		defs = append(defs, d)
	}
	return defs, nil
}

// Save replaces the stored workflow set with defs in one transaction. The
// active marker is cleared when its workflow is no longer present.
func (r *WorkflowRepository) Save(ctx context.Context, defs []workflow.Definition) error {
	models := make([]WorkflowModel, 0, len(defs))
	ids := make(map[string]bool, len(defs))
	for i := range defs {
		m, err := toWorkflowModel(&defs[i])
		if err != nil {
			return fmt.Errorf("encoding workflow %q: %w", defs[i].ID, err)
		}
		models = append(models, m)
		ids[defs[i].ID] = true
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&WorkflowModel{}).Error; err != nil {
			return fmt.Errorf("clearing workflows: %w", err)
		}
		if len(models) > 0 {
			if err := tx.Create(&models).Error; err != nil {
				return fmt.Errorf("saving workflows: %w", err)
			}
		}

		var marker ActiveWorkflowModel
		err := tx.First(&marker, "id = ?", activeRowID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return nil
		case err != nil:
			return fmt.Errorf("reading active marker: %w", err)
		}
		if !ids[marker.WorkflowID] {
			if err := tx.Delete(&ActiveWorkflowModel{}, "id = ?", activeRowID).Error; err != nil {
				return fmt.Errorf("clearing active marker: %w", err)
			}
		}
		return nil
	})
}

// SetActive marks a workflow as active; an empty id clears the marker.
func (r *WorkflowRepository) SetActive(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if id == "" {
			if err := tx.Delete(&ActiveWorkflowModel{}, "id = ?", activeRowID).Error; err != nil {
				return fmt.Errorf("clearing active marker: %w", err)
			}
			return nil
		}

		var count int64
		if err := tx.Model(&WorkflowModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return fmt.Errorf("checking workflow %q: %w", id, err)
		}
		if count == 0 {
			return fmt.Errorf("%w: %q", workflow.ErrNotFound, id)
		}

		marker := ActiveWorkflowModel{ID: activeRowID, WorkflowID: id}
		if err := tx.Save(&marker).Error; err != nil {
			return fmt.Errorf("setting active workflow: %w", err)
		}
		return nil
	})
}

// GetActive returns the active workflow, or ErrWorkflowNotActive.
func (r *WorkflowRepository) GetActive(ctx context.Context) (*workflow.Definition, error) {
	activeID, err := r.activeID(ctx)
	if err != nil {
		return nil, err
	}
	if activeID == "" {
		return nil, workflow.ErrWorkflowNotActive
	}

	var model WorkflowModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", activeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, workflow.ErrWorkflowNotActive
		}
		return nil, fmt.Errorf("getting active workflow: %w", err)
	}
	d, err := toWorkflowDomain(&model, activeID)
	if err != nil {
		return nil, fmt.Errorf("decoding workflow %q: %w", model.ID, err)
	}
	return &d, nil
}

func (r *WorkflowRepository) activeID(ctx context.Context) (string, error) {
	var marker ActiveWorkflowModel
	err := r.db.WithContext(ctx).First(&marker, "id = ?", activeRowID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return "", nil
	case err != nil:
		return "", fmt.Errorf("reading active marker: %w", err)
	}
	return marker.WorkflowID, nil
}

// compile-time interface check
var _ workflow.Store = (*WorkflowRepository)(nil)
