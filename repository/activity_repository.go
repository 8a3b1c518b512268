package repository

import (
	"context"
	"fmt"

	"noddymix/model"

	"gorm.io/gorm"
)

// ActivityRepository defines the interface for activity stream data
// operations.
type ActivityRepository interface {
	Create(ctx context.Context, activity *model.Activity) error
	RecentByActors(ctx context.Context, actorIDs []int64, limit int) ([]*model.Activity, error)
	RecentByActor(ctx context.Context, actorID int64, limit int) ([]*model.Activity, error)
	DeleteByActor(ctx context.Context, actorID int64) error
}

// gormActivityRepository implements ActivityRepository using GORM.
type gormActivityRepository struct {
	db *gorm.DB
}

// NewGormActivityRepository creates a new gormActivityRepository.
func NewGormActivityRepository(db *gorm.DB) ActivityRepository {
	return &gormActivityRepository{db: db}
}

// Create appends one activity to the stream.
func (r *gormActivityRepository) Create(ctx context.Context, activity *model.Activity) error {
	if err := r.db.WithContext(ctx).Create(activity).Error; err != nil {
		return fmt.Errorf("failed to create activity: %w", err)
	}
	return nil
}

// RecentByActors retrieves the newest activities of the given actors,
// newest first. An empty actor set yields an empty result, not an
// unfiltered scan.
func (r *gormActivityRepository) RecentByActors(ctx context.Context, actorIDs []int64, limit int) ([]*model.Activity, error) {
	if len(actorIDs) == 0 {
		return []*model.Activity{}, nil
	}
	var activities []*model.Activity
	err := r.db.WithContext(ctx).
		Where("actor_id IN ?", actorIDs).
		Order("date_added DESC").
		Limit(limit).
		Find(&activities).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query activities by actors: %w", err)
	}
	return activities, nil
}

// RecentByActor retrieves one actor's newest activities, newest first.
func (r *gormActivityRepository) RecentByActor(ctx context.Context, actorID int64, limit int) ([]*model.Activity, error) {
	var activities []*model.Activity
	err := r.db.WithContext(ctx).
		Where("actor_id = ?", actorID).
		Order("date_added DESC").
		Limit(limit).
		Find(&activities).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query activities for actor ID %d: %w", actorID, err)
	}
	return activities, nil
}

// DeleteByActor removes every activity of one actor. Used by the account
// deletion cascade; the activity stream sits outside the relational
// foreign keys.
func (r *gormActivityRepository) DeleteByActor(ctx context.Context, actorID int64) error {
	if err := r.db.WithContext(ctx).Where("actor_id = ?", actorID).Delete(&model.Activity{}).Error; err != nil {
		return fmt.Errorf("failed to delete activities for actor ID %d: %w", actorID, err)
	}
	return nil
}
