package service

import (
	"context"
	"fmt"

	"github.com/Xzayogn-ECS/trueport-backend/internal/model"
	appErr "github.com/Xzayogn-ECS/trueport-backend/internal/pkg/errors"
)

// VerifiableItem is a claim kind that a decided verification can be written back to.
type VerifiableItem interface {
	Summary(ctx context.Context, id string) (*model.ItemSummary, error)
	ApplyOutcome(ctx context.Context, id string, outcome model.ItemOutcome) error
}

// ItemRegistry is the closed set of verifiable claim kinds. GITHUB_PROJECT is a
// known type with no entry, so every lookup for it fails.
type ItemRegistry struct {
	kinds map[model.ItemType]VerifiableItem
}

func NewItemRegistry(educations EducationStore, experiences ExperienceStore) *ItemRegistry {
	return &ItemRegistry{kinds: map[model.ItemType]VerifiableItem{
		model.ItemTypeEducation:  &educationItems{store: educations},
		model.ItemTypeExperience: &experienceItems{store: experiences},
	}}
}

func (r *ItemRegistry) Lookup(itemType model.ItemType) (VerifiableItem, error) {
	item, ok := r.kinds[itemType]
	if !ok {
		return nil, fmt.Errorf("%w: item type %q cannot be verified", appErr.ErrInvalid, itemType)
	}
	return item, nil
}

func (r *ItemRegistry) Summary(ctx context.Context, itemType model.ItemType, id string) (*model.ItemSummary, error) {
	item, err := r.Lookup(itemType)
	if err != nil {
		return nil, err
	}
	return item.Summary(ctx, id)
}

type educationItems struct {
	store EducationStore
}

func (e *educationItems) Summary(ctx context.Context, id string) (*model.ItemSummary, error) {
	edu, err := e.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &model.ItemSummary{
		ID:          edu.ID,
		Type:        model.ItemTypeEducation,
		OwnerID:     edu.UserID,
		Title:       edu.CourseName,
		Description: edu.Description,
		Attachments: edu.Attachments,
		Detail:      edu,
	}, nil
}

func (e *educationItems) ApplyOutcome(ctx context.Context, id string, outcome model.ItemOutcome) error {
	return e.store.ApplyOutcome(ctx, id, outcome)
}

type experienceItems struct {
	store ExperienceStore
}

func (e *experienceItems) Summary(ctx context.Context, id string) (*model.ItemSummary, error) {
	exp, err := e.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &model.ItemSummary{
		ID:          exp.ID,
		Type:        model.ItemTypeExperience,
		OwnerID:     exp.UserID,
		Title:       exp.Title,
		Description: exp.Description,
		Attachments: exp.Attachments,
		Detail:      exp,
	}, nil
}

func (e *experienceItems) ApplyOutcome(ctx context.Context, id string, outcome model.ItemOutcome) error {
	return e.store.ApplyOutcome(ctx, id, outcome)
}
