package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/crewbell/internal/models"
)

// DatabaseStore persists notifications with GORM.
type DatabaseStore struct {
	db   *gorm.DB
	opts storeOptions
	seq  sequencer
}

// NewDatabaseStore constructs a DatabaseStore.
func NewDatabaseStore(db *gorm.DB, opts ...StoreOption) (*DatabaseStore, error) {
	if db == nil {
		return nil, errors.New("notification store: db is required")
	}
	return &DatabaseStore{db: db, opts: buildStoreOptions(opts)}, nil
}

func (s *DatabaseStore) Record(ctx context.Context, input RecordInput) (Record, error) {
	input, err := input.normalize()
	if err != nil {
		return Record{}, err
	}

	now := s.opts.now().UTC()
	row := models.Notification{
		Recipient: input.Recipient,
		Seq:       s.seq.next(now),
		Category:  string(input.Category),
		Title:     input.Title,
		Body:      input.Body,
	}
	row.CreatedAt = now
	row.UpdatedAt = now
	if input.Payload != nil {
		data, err := json.Marshal(input.Payload)
		if err != nil {
			return Record{}, fmt.Errorf("notification store: marshal payload: %w", err)
		}
		row.Payload = datatypes.JSON(data)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		if limit := s.opts.maxPerRecipient; limit > 0 {
			_, err := trimRecipient(tx, row.Recipient, limit)
			return err
		}
		return nil
	})
	if err != nil {
		return Record{}, fmt.Errorf("notification store: record: %w", err)
	}

	return mapNotification(row), nil
}

func (s *DatabaseStore) Get(ctx context.Context, id string) (*Record, error) {
	var row models.Notification
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("notification store: get: %w", err)
	}
	rec := mapNotification(row)
	return &rec, nil
}

func (s *DatabaseStore) ListFor(ctx context.Context, recipient int64) ([]Record, error) {
	var rows []models.Notification
	if err := s.db.WithContext(ctx).
		Where("recipient = ?", recipient).
		Order("created_at ASC").
		Order("seq ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("notification store: list: %w", err)
	}

	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, mapNotification(row))
	}
	return out, nil
}

func (s *DatabaseStore) MarkRead(ctx context.Context, id string) (bool, error) {
	now := s.opts.now().UTC()
	result := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND is_read = ?", id, false).
		Updates(map[string]any{"is_read": true, "read_at": now})
	if result.Error != nil {
		return false, fmt.Errorf("notification store: mark read: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (s *DatabaseStore) MarkAllRead(ctx context.Context, recipient int64) (int64, error) {
	now := s.opts.now().UTC()
	result := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("recipient = ? AND is_read = ?", recipient, false).
		Updates(map[string]any{"is_read": true, "read_at": now})
	if result.Error != nil {
		return 0, fmt.Errorf("notification store: mark all read: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *DatabaseStore) CountUnread(ctx context.Context, recipient int64) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("recipient = ? AND is_read = ?", recipient, false).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("notification store: count unread: %w", err)
	}
	return count, nil
}

func (s *DatabaseStore) Prune(ctx context.Context, policy RetentionPolicy) (int64, error) {
	var removed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if cutoff, ok := policy.cutoff(s.opts.now().UTC()); ok {
			result := tx.Where("created_at < ?", cutoff).Delete(&models.Notification{})
			if result.Error != nil {
				return result.Error
			}
			removed += result.RowsAffected
		}

		if policy.MaxPerRecipient <= 0 {
			return nil
		}

		var recipients []int64
		if err := tx.Model(&models.Notification{}).
			Group("recipient").
			Having("COUNT(*) > ?", policy.MaxPerRecipient).
			Pluck("recipient", &recipients).Error; err != nil {
			return err
		}
		for _, recipient := range recipients {
			n, err := trimRecipient(tx, recipient, policy.MaxPerRecipient)
			if err != nil {
				return err
			}
			removed += n
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("notification store: prune: %w", err)
	}
	return removed, nil
}

// trimRecipient keeps only the newest limit rows for recipient.
func trimRecipient(tx *gorm.DB, recipient int64, limit int) (int64, error) {
	var boundary []int64
	if err := tx.Model(&models.Notification{}).
		Where("recipient = ?", recipient).
		Order("seq DESC").
		Offset(limit-1).
		Limit(1).
		Pluck("seq", &boundary).Error; err != nil {
		return 0, err
	}
	if len(boundary) == 0 {
		return 0, nil
	}

	result := tx.Where("recipient = ? AND seq < ?", recipient, boundary[0]).Delete(&models.Notification{})
	return result.RowsAffected, result.Error
}

func mapNotification(row models.Notification) Record {
	rec := Record{
		ID:        row.ID,
		Recipient: row.Recipient,
		Category:  Category(row.Category),
		Title:     row.Title,
		Body:      row.Body,
		CreatedAt: row.CreatedAt.UTC(),
		Read:      row.IsRead,
		seq:       row.Seq,
	}
	if row.ReadAt != nil {
		at := row.ReadAt.UTC()
		rec.ReadAt = &at
	}
	if len(row.Payload) > 0 {
		var payload Payload
		if err := json.Unmarshal(row.Payload, &payload); err == nil && !payload.empty() {
			rec.Payload = &payload
		}
	}
	return rec
}
