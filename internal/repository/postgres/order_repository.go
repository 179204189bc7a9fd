package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/felixhub/workshop/internal/domain/errors"
	"github.com/felixhub/workshop/internal/domain/order"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const orderColumns = `id, mechanic_name, telegram_id, category, vin, car_number, selected_parts,
		        status, work_status, assigned_mechanic_id, language, created_at, updated_at`

// OrderRepository implements order.Repository using PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// Create inserts o and sets its generated ID.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	parts, err := json.Marshal(o.SelectedParts)
	if err != nil {
		return fmt.Errorf("marshal selected parts: %w", err)
	}
	err = r.db(ctx).QueryRow(ctx,
		`INSERT INTO orders
		 (mechanic_name, telegram_id, category, vin, car_number, selected_parts,
		  status, work_status, assigned_mechanic_id, language, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		 RETURNING id`,
		o.MechanicName, o.TelegramID, o.Category, o.VIN, o.CarNumber, parts,
		string(o.Status), string(o.WorkStatus), o.AssignedMechanicID, o.Language, o.CreatedAt, o.UpdatedAt,
	).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	return scanOrder(r.db(ctx).QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

func (r *OrderRepository) GetByIDForUpdate(ctx context.Context, id int64) (*order.Order, error) {
	return scanOrder(r.db(ctx).QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, o *order.Order) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE orders SET status = $1, work_status = $2, assigned_mechanic_id = $3, updated_at = $4
		 WHERE id = $5`,
		string(o.Status), string(o.WorkStatus), o.AssignedMechanicID, o.UpdatedAt, o.ID,
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrOrderNotFound
	}
	return nil
}

func (r *OrderRepository) ListByTelegramID(ctx context.Context, telegramID string, limit int) ([]*order.Order, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE telegram_id = $1 ORDER BY created_at DESC LIMIT $2`,
		telegramID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []*order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (r *OrderRepository) CountStuck(ctx context.Context, status order.Status, before time.Time) (int, error) {
	var n int
	err := r.db(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM orders WHERE status = $1 AND created_at < $2`, string(status), before,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count stuck orders: %w", err)
	}
	return n, nil
}

func (r *OrderRepository) CountCreatedSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := r.db(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM orders WHERE created_at >= $1`, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return n, nil
}

func scanOrder(s scanner) (*order.Order, error) {
	o := &order.Order{}
	var (
		parts      []byte
		status     string
		workStatus string
	)
	err := s.Scan(
		&o.ID, &o.MechanicName, &o.TelegramID, &o.Category, &o.VIN, &o.CarNumber, &parts,
		&status, &workStatus, &o.AssignedMechanicID, &o.Language, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrOrderNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	o.Status = order.Status(status)
	o.WorkStatus = order.WorkStatus(workStatus)
	if len(parts) > 0 {
		if err := json.Unmarshal(parts, &o.SelectedParts); err != nil {
			return nil, fmt.Errorf("unmarshal selected parts: %w", err)
		}
	}
	return o, nil
}
