package services

import (
	"context"
	"time"

	"github.com/Nk110820004/freddie-backend-sub000/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SchedulerLockService is a row lease in scheduler_locks. A live lease is
// never re-entered, not even by its owner; an expired one can be taken over
// by anyone.
type SchedulerLockService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewSchedulerLockService(db *gorm.DB) *SchedulerLockService {
	return &SchedulerLockService{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *SchedulerLockService) Acquire(ctx context.Context, name, key, owner string, ttl time.Duration) (bool, error) {
	now := s.now()
	lock := &models.SchedulerLock{
		LockName:  name,
		LockKey:   key,
		LockedBy:  owner,
		LockedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "lock_name"}, {Name: "lock_key"}},
		DoNothing: true,
	}).Create(lock)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	res = s.db.WithContext(ctx).Model(&models.SchedulerLock{}).
		Where("lock_name = ? AND lock_key = ?", name, key).
		Where("expires_at < ?", now).
		Updates(map[string]interface{}{
			"locked_by":  owner,
			"locked_at":  now,
			"expires_at": now.Add(ttl),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Release drops the lease if owner still holds it.
func (s *SchedulerLockService) Release(ctx context.Context, name, key, owner string) error {
	return s.db.WithContext(ctx).
		Where("lock_name = ? AND lock_key = ? AND locked_by = ?", name, key, owner).
		Delete(&models.SchedulerLock{}).Error
}

func (s *SchedulerLockService) Holder(ctx context.Context, name, key string) (*models.SchedulerLock, error) {
	var lock models.SchedulerLock
	err := s.db.WithContext(ctx).Where("lock_name = ? AND lock_key = ? AND expires_at >= ?", name, key, s.now()).First(&lock).Error
	if err != nil {
		return nil, err
	}
	return &lock, nil
}
