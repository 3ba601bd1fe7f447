package customers

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a duplicate phone number.
	ErrAlreadyExists = errors.New("record already exists")
)

type Repository interface {
	Get(ctx context.Context, id int64) (*Customer, error)
	List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error)
	Create(ctx context.Context, c Customer) (*Customer, error)
	Update(ctx context.Context, id int64, c Customer) error
	Delete(ctx context.Context, id int64) error
	AddLoyaltyPoints(ctx context.Context, id int64, points int) error
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Get(ctx context.Context, id int64) (*Customer, error) {
	var c Customer
	err := r.pool.QueryRow(ctx, `SELECT id, name, phone, email, loyalty_points, created_at FROM customers WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.LoyaltyPoints, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repository) List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error) {
	query := `SELECT id, name, phone, email, loyalty_points, created_at FROM customers WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM customers WHERE 1=1`
	var conditions string
	args := []interface{}{}
	argCount := 0

	if req.Search != "" {
		argCount++
		conditions += ` AND name ILIKE $` + strconv.Itoa(argCount)
		args = append(args, "%"+req.Search+"%")
	}
	if req.Phone != "" {
		argCount++
		conditions += ` AND phone = $` + strconv.Itoa(argCount)
		args = append(args, req.Phone)
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery+conditions, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += conditions + ` ORDER BY name`
	if req.Limit > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, req.Limit)
		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		args = append(args, req.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	customers := []Customer{}
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.LoyaltyPoints, &c.CreatedAt); err != nil {
			return nil, 0, err
		}
		customers = append(customers, c)
	}
	return customers, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, c Customer) (*Customer, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO customers (name, phone, email, loyalty_points, created_at) VALUES ($1, $2, $3, 0, NOW()) RETURNING id, created_at`,
		c.Name, c.Phone, c.Email).Scan(&c.ID, &c.CreatedAt)
	if isUniqueViolation(err) {
		return nil, ErrAlreadyExists
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repository) Update(ctx context.Context, id int64, c Customer) error {
	tag, err := r.pool.Exec(ctx, `UPDATE customers SET name = $1, phone = $2, email = $3 WHERE id = $4`, c.Name, c.Phone, c.Email, id)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	// orders.customer_id is ON DELETE SET NULL; history is preserved.
	tag, err := r.pool.Exec(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) AddLoyaltyPoints(ctx context.Context, id int64, points int) error {
	tag, err := r.pool.Exec(ctx, `UPDATE customers SET loyalty_points = GREATEST(loyalty_points + $1, 0) WHERE id = $2`, points, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
