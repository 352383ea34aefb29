package orders

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// NumberGenerator issues human readable order numbers.
type NumberGenerator interface {
	Next(ctx context.Context, tx *gorm.DB, now time.Time) (string, error)
}

// SequenceNumbers draws from the order_number_seq Postgres sequence, so a
// number is never reused even when the creating transaction rolls back.
type SequenceNumbers struct{}

func (SequenceNumbers) Next(ctx context.Context, tx *gorm.DB, now time.Time) (string, error) {
	var seq int64
	if err := tx.WithContext(ctx).Raw("SELECT nextval('order_number_seq')").Scan(&seq).Error; err != nil {
		return "", fmt.Errorf("next order number: %w", err)
	}
	return FormatOrderNumber(now, seq), nil
}

// FormatOrderNumber renders FD-YYYYMMDD-NNNNNN.
func FormatOrderNumber(now time.Time, seq int64) string {
	return fmt.Sprintf("FD-%s-%06d", now.UTC().Format("20060102"), seq)
}
