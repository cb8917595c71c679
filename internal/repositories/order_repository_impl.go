package repositories

import (
	"context"
	"time"

	"upilink/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new instance of OrderRepository
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, order *models.Order) error {
	return translate(conn(ctx, r.db).Create(order).Error)
}

func (r *orderRepository) GetByOrderID(ctx context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	if err := conn(ctx, r.db).Where("order_id = ?", orderID).First(&order).Error; err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

func (r *orderRepository) List(ctx context.Context, filter models.OrderFilter) ([]models.Order, int64, error) {
	var orders []models.Order
	var total int64

	query := conn(ctx, r.db).Model(&models.Order{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.CreatedBy != "" {
		query = query.Where("created_by = ?", filter.CreatedBy)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("created_at DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&orders).Error
	return orders, total, err
}

func (r *orderRepository) TransitionStatus(ctx context.Context, orderID string, from, to models.OrderStatus, metadata datatypes.JSONMap) (bool, error) {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now(),
	}
	if metadata != nil {
		updates["metadata"] = metadata
	}

	result := conn(ctx, r.db).Model(&models.Order{}).
		Where("order_id = ? AND status = ?", orderID, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *orderRepository) SubmitUTR(ctx context.Context, orderID, utr string, now time.Time, metadata datatypes.JSONMap) (bool, error) {
	result := conn(ctx, r.db).Model(&models.Order{}).
		Where("order_id = ? AND status = ? AND utr IS NULL AND expires_at > ?",
			orderID, models.OrderStatusPending, now).
		Updates(map[string]interface{}{
			"utr":        utr,
			"status":     models.OrderStatusPendingVerification,
			"metadata":   metadata,
			"updated_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *orderRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	var ids []string
	err := conn(ctx, r.db).Model(&models.Order{}).
		Where("status = ? AND expires_at <= ?", models.OrderStatusPending, now).
		Order("expires_at ASC").
		Limit(limit).
		Pluck("order_id", &ids).Error
	return ids, err
}

func (r *orderRepository) CountByStatus(ctx context.Context, since, until time.Time) (map[models.OrderStatus]int64, error) {
	var rows []struct {
		Status models.OrderStatus
		Count  int64
	}
	err := conn(ctx, r.db).Model(&models.Order{}).
		Select("status, COUNT(*) AS count").
		Where("created_at BETWEEN ? AND ?", since, until).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[models.OrderStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (r *orderRepository) TopCreators(ctx context.Context, since, until time.Time, limit int) ([]CreatorStat, error) {
	var stats []CreatorStat
	err := conn(ctx, r.db).Model(&models.Order{}).
		Select("created_by, COUNT(*) AS completed_orders, COALESCE(SUM(amount), 0) AS completed_amount").
		Where("status = ? AND created_at BETWEEN ? AND ?", models.OrderStatusCompleted, since, until).
		Group("created_by").
		Order("completed_orders DESC").
		Limit(limit).
		Scan(&stats).Error
	return stats, err
}
