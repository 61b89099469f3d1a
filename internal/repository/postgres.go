// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/mmeshcher/bloodbank-system/internal/model"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с уже занятым логином или почтой.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrInsufficientInventory возвращается при попытке списать больше единиц крови, чем есть в наличии.
	ErrInsufficientInventory = errors.New("insufficient inventory")
	// ErrRequestNotFound возвращается, если заявка на кровь не найдена.
	ErrRequestNotFound = errors.New("blood request not found")
	// ErrInvalidRequestState возвращается при попытке перевести заявку из неподходящего статуса.
	ErrInvalidRequestState = errors.New("blood request is not pending")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет транзакцию при конфликте сериализации или дедлоке.
// Прочие ошибки доходят до вызывающего кода без повторов.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, u *model.User) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (username, email, password_hash, role, full_name, phone, address, blood_group, date_of_birth, gender)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10)
		 RETURNING id`,
		u.Username, u.Email, u.PasswordHash, string(u.Role),
		u.FullName, u.Phone, u.Address, u.BloodGroup, u.DateOfBirth, u.Gender,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, u.Username)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

const userColumns = `id, username, email, password_hash, role, full_name, phone, address,
	COALESCE(blood_group, ''), date_of_birth, gender, is_active, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	var role string
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role,
		&u.FullName, &u.Phone, &u.Address, &u.BloodGroup, &u.DateOfBirth,
		&u.Gender, &u.IsActive, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Role = model.Role(role)
	return &u, nil
}

// GetUserByUsername возвращает пользователя по логину.
func (r *PostgresRepository) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`,
		username,
	)
	return scanUser(row)
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	)
	return scanUser(row)
}

// UpdateUserProfile обновляет изменяемые поля профиля. Роль пользователя не меняется никогда.
func (r *PostgresRepository) UpdateUserProfile(ctx context.Context, id int64, fullName, email, phone, address, bloodGroup string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE users
		 SET full_name = $2, email = $3, phone = $4, address = $5, blood_group = NULLIF($6, '')
		 WHERE id = $1`,
		id, fullName, email, phone, address, bloodGroup,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrUserExists, email)
		}
		return fmt.Errorf("update profile: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ListUsersByRole возвращает пользователей указанной роли, отсортированных по имени.
func (r *PostgresRepository) ListUsersByRole(ctx context.Context, role model.Role) ([]model.User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE role = $1 ORDER BY full_name, id`,
		string(role),
	)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()

	var res []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CountActiveUsersByRole возвращает число активных пользователей указанной роли.
func (r *PostgresRepository) CountActiveUsersByRole(ctx context.Context, role model.Role) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM users WHERE role = $1 AND is_active`,
		string(role),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// CountRequestsByStatus возвращает число заявок на кровь в указанном статусе.
func (r *PostgresRepository) CountRequestsByStatus(ctx context.Context, status model.RequestStatus) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM blood_requests WHERE status = $1`,
		string(status),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count requests: %w", err)
	}
	return n, nil
}

// ListInventory возвращает текущие остатки по всем группам крови.
func (r *PostgresRepository) ListInventory(ctx context.Context) ([]model.InventoryItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT blood_group, units_available, last_updated
		 FROM blood_inventory
		 ORDER BY blood_group`,
	)
	if err != nil {
		return nil, fmt.Errorf("select inventory: %w", err)
	}
	defer rows.Close()

	var items []model.InventoryItem
	for rows.Next() {
		var it model.InventoryItem
		if err := rows.Scan(&it.BloodGroup, &it.UnitsAvailable, &it.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan inventory: %w", err)
		}
		items = append(items, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// GetUnits возвращает количество доступных единиц крови указанной группы.
// Для группы без строки в реестре возвращается ноль.
func (r *PostgresRepository) GetUnits(ctx context.Context, bloodGroup string) (int, error) {
	var units int
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(
			(SELECT units_available FROM blood_inventory WHERE blood_group = $1), 0)`,
		bloodGroup,
	).Scan(&units)
	if err != nil {
		return 0, fmt.Errorf("select units: %w", err)
	}
	return units, nil
}

// creditTx увеличивает остаток группы крови и пишет движение в журнал в рамках переданной транзакции.
// Строка реестра создаётся при первом пополнении.
func creditTx(ctx context.Context, tx pgx.Tx, bloodGroup string, units int, actorID *int64, note string) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO blood_inventory (blood_group, units_available, last_updated)
		 VALUES ($1, $2, now())
		 ON CONFLICT (blood_group)
		 DO UPDATE SET units_available = blood_inventory.units_available + EXCLUDED.units_available,
		               last_updated = now()`,
		bloodGroup, units,
	)
	if err != nil {
		return fmt.Errorf("credit inventory: %w", err)
	}

	return addMovementTx(ctx, tx, bloodGroup, units, model.MovementCredit, actorID, note)
}

// debitTx списывает единицы крови под блокировкой строки реестра.
// При нехватке остатка ничего не меняет и возвращает ErrInsufficientInventory.
func debitTx(ctx context.Context, tx pgx.Tx, bloodGroup string, units int, actorID *int64, note string) error {
	var available int
	err := tx.QueryRow(ctx,
		`SELECT units_available FROM blood_inventory WHERE blood_group = $1 FOR UPDATE`,
		bloodGroup,
	).Scan(&available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrInsufficientInventory
		}
		return fmt.Errorf("lock inventory row: %w", err)
	}

	if available < units {
		return ErrInsufficientInventory
	}

	_, err = tx.Exec(ctx,
		`UPDATE blood_inventory
		 SET units_available = units_available - $2, last_updated = now()
		 WHERE blood_group = $1`,
		bloodGroup, units,
	)
	if err != nil {
		return fmt.Errorf("debit inventory: %w", err)
	}

	return addMovementTx(ctx, tx, bloodGroup, -units, model.MovementDebit, actorID, note)
}

func addMovementTx(ctx context.Context, tx pgx.Tx, bloodGroup string, delta int, kind model.MovementKind, actorID *int64, note string) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO inventory_movements (blood_group, delta, kind, actor_id, note)
		 VALUES ($1, $2, $3, $4, $5)`,
		bloodGroup, delta, string(kind), actorID, note,
	)
	if err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}

// CreditInventory увеличивает остаток группы крови на указанное число единиц.
func (r *PostgresRepository) CreditInventory(ctx context.Context, bloodGroup string, units int, actorID int64, note string) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := creditTx(ctx, tx, bloodGroup, units, &actorID, note); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// DebitInventory списывает единицы крови указанной группы.
func (r *PostgresRepository) DebitInventory(ctx context.Context, bloodGroup string, units int, actorID int64, note string) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := debitTx(ctx, tx, bloodGroup, units, &actorID, note); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// AdjustInventory выставляет остаток группы крови в заданное значение.
// Коррекция записывается в журнал движений отдельным типом, чтобы ручные правки оставляли след.
func (r *PostgresRepository) AdjustInventory(ctx context.Context, bloodGroup string, newUnits int, actorID int64, note string) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var current int
		err = tx.QueryRow(ctx,
			`SELECT units_available FROM blood_inventory WHERE blood_group = $1 FOR UPDATE`,
			bloodGroup,
		).Scan(&current)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("lock inventory row: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO blood_inventory (blood_group, units_available, last_updated)
			 VALUES ($1, $2, now())
			 ON CONFLICT (blood_group)
			 DO UPDATE SET units_available = EXCLUDED.units_available, last_updated = now()`,
			bloodGroup, newUnits,
		)
		if err != nil {
			return fmt.Errorf("adjust inventory: %w", err)
		}

		if err := addMovementTx(ctx, tx, bloodGroup, newUnits-current, model.MovementAdjust, &actorID, note); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// LastDonationDate возвращает дату последней донации донора или nil, если донаций ещё не было.
func (r *PostgresRepository) LastDonationDate(ctx context.Context, donorID int64) (*time.Time, error) {
	var last time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT donation_date FROM donations
		 WHERE donor_id = $1 AND status = 'completed'
		 ORDER BY donation_date DESC
		 LIMIT 1`,
		donorID,
	).Scan(&last)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select last donation: %w", err)
	}
	return &last, nil
}

// CreateDonation сохраняет донацию и пополняет реестр крови в одной транзакции.
// Либо появляются и запись, и пополнение, либо ни то ни другое.
func (r *PostgresRepository) CreateDonation(ctx context.Context, d *model.Donation) (int64, error) {
	var id int64
	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		err = tx.QueryRow(ctx,
			`INSERT INTO donations (donor_id, donation_date, units_donated, blood_group, hemoglobin_level, notes)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING id`,
			d.DonorID, d.DonationDate, d.Units, d.BloodGroup, d.Hemoglobin, d.Notes,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert donation: %w", err)
		}

		if err := creditTx(ctx, tx, d.BloodGroup, d.Units, &d.DonorID, "donation"); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// ListDonationsByDonor возвращает историю донаций донора, новые первыми.
func (r *PostgresRepository) ListDonationsByDonor(ctx context.Context, donorID int64) ([]model.Donation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, donor_id, donation_date, units_donated, blood_group, status, hemoglobin_level, notes, created_at
		 FROM donations
		 WHERE donor_id = $1
		 ORDER BY donation_date DESC, id DESC`,
		donorID,
	)
	if err != nil {
		return nil, fmt.Errorf("select donations: %w", err)
	}
	defer rows.Close()

	var res []model.Donation
	for rows.Next() {
		var d model.Donation
		if err := rows.Scan(&d.ID, &d.DonorID, &d.DonationDate, &d.Units, &d.BloodGroup,
			&d.Status, &d.Hemoglobin, &d.Notes, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan donation: %w", err)
		}
		res = append(res, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ListRecentDonations возвращает последние донации по всем донорам, новые первыми.
func (r *PostgresRepository) ListRecentDonations(ctx context.Context, limit int) ([]model.Donation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, donor_id, donation_date, units_donated, blood_group, status, hemoglobin_level, notes, created_at
		 FROM donations
		 ORDER BY created_at DESC, id DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select recent donations: %w", err)
	}
	defer rows.Close()

	var res []model.Donation
	for rows.Next() {
		var d model.Donation
		if err := rows.Scan(&d.ID, &d.DonorID, &d.DonationDate, &d.Units, &d.BloodGroup,
			&d.Status, &d.Hemoglobin, &d.Notes, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan donation: %w", err)
		}
		res = append(res, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateRequest сохраняет новую заявку на кровь в статусе pending.
func (r *PostgresRepository) CreateRequest(ctx context.Context, req *model.BloodRequest) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO blood_requests (patient_id, blood_group, units_required, urgency, reason, request_date, required_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		req.PatientID, req.BloodGroup, req.UnitsRequired, string(req.Urgency),
		req.Reason, req.RequestDate, req.RequiredBy,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert request: %w", err)
	}
	return id, nil
}

const requestColumns = `id, patient_id, blood_group, units_required, urgency, reason, status,
	request_date, required_by, resolved_by, resolved_at, notes, created_at`

func scanRequests(rows pgx.Rows) ([]model.BloodRequest, error) {
	var res []model.BloodRequest
	for rows.Next() {
		var req model.BloodRequest
		var urgency, status string
		if err := rows.Scan(&req.ID, &req.PatientID, &req.BloodGroup, &req.UnitsRequired,
			&urgency, &req.Reason, &status, &req.RequestDate, &req.RequiredBy,
			&req.ResolvedBy, &req.ResolvedAt, &req.Notes, &req.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		req.Urgency = model.Urgency(urgency)
		req.Status = model.RequestStatus(status)
		res = append(res, req)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ListRequestsByPatient возвращает заявки пациента, новые первыми.
func (r *PostgresRepository) ListRequestsByPatient(ctx context.Context, patientID int64) ([]model.BloodRequest, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+requestColumns+`
		 FROM blood_requests
		 WHERE patient_id = $1
		 ORDER BY created_at DESC`,
		patientID,
	)
	if err != nil {
		return nil, fmt.Errorf("select requests: %w", err)
	}
	defer rows.Close()

	return scanRequests(rows)
}

// ListRequests возвращает все заявки на кровь, новые первыми.
func (r *PostgresRepository) ListRequests(ctx context.Context) ([]model.BloodRequest, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+requestColumns+`
		 FROM blood_requests
		 ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("select requests: %w", err)
	}
	defer rows.Close()

	return scanRequests(rows)
}

// ApproveRequest одобряет заявку, списывая единицы крови из реестра.
// Списание и смена статуса выполняются в одной транзакции: либо оба изменения, либо ни одного.
// При нехватке остатка заявка остаётся в статусе pending.
func (r *PostgresRepository) ApproveRequest(ctx context.Context, requestID, adminID int64) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var status, bloodGroup string
		var units int
		err = tx.QueryRow(ctx,
			`SELECT status, blood_group, units_required FROM blood_requests WHERE id = $1 FOR UPDATE`,
			requestID,
		).Scan(&status, &bloodGroup, &units)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrRequestNotFound
			}
			return fmt.Errorf("lock request row: %w", err)
		}

		if status != string(model.RequestStatusPending) {
			return ErrInvalidRequestState
		}

		note := fmt.Sprintf("request %d approved", requestID)
		if err := debitTx(ctx, tx, bloodGroup, units, &adminID, note); err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE blood_requests
			 SET status = $2, resolved_by = $3, resolved_at = now()
			 WHERE id = $1`,
			requestID, string(model.RequestStatusApproved), adminID,
		)
		if err != nil {
			return fmt.Errorf("update request: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// RejectRequest отклоняет заявку в статусе pending. Реестр крови не затрагивается.
func (r *PostgresRepository) RejectRequest(ctx context.Context, requestID, adminID int64, notes string) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var status string
		err = tx.QueryRow(ctx,
			`SELECT status FROM blood_requests WHERE id = $1 FOR UPDATE`,
			requestID,
		).Scan(&status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrRequestNotFound
			}
			return fmt.Errorf("lock request row: %w", err)
		}

		if status != string(model.RequestStatusPending) {
			return ErrInvalidRequestState
		}

		_, err = tx.Exec(ctx,
			`UPDATE blood_requests
			 SET status = $2, resolved_by = $3, resolved_at = now(), notes = $4
			 WHERE id = $1`,
			requestID, string(model.RequestStatusRejected), adminID, notes,
		)
		if err != nil {
			return fmt.Errorf("update request: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// GroupTotal содержит агрегат по одной группе крови за период.
type GroupTotal struct {
	BloodGroup string
	Units      int
	Count      int
}

// DonationTotals возвращает суммы единиц и число донаций по группам крови за период [from, to].
func (r *PostgresRepository) DonationTotals(ctx context.Context, from, to time.Time) ([]GroupTotal, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT blood_group, COALESCE(SUM(units_donated), 0), COUNT(*)
		 FROM donations
		 WHERE donation_date >= $1 AND donation_date <= $2 AND status = 'completed'
		 GROUP BY blood_group
		 ORDER BY blood_group`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("select donation totals: %w", err)
	}
	defer rows.Close()

	return scanTotals(rows)
}

// RequestTotals возвращает суммы запрошенных единиц и число заявок по группам крови за период [from, to].
func (r *PostgresRepository) RequestTotals(ctx context.Context, from, to time.Time) ([]GroupTotal, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT blood_group, COALESCE(SUM(units_required), 0), COUNT(*)
		 FROM blood_requests
		 WHERE request_date >= $1 AND request_date <= $2
		 GROUP BY blood_group
		 ORDER BY blood_group`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("select request totals: %w", err)
	}
	defer rows.Close()

	return scanTotals(rows)
}

func scanTotals(rows pgx.Rows) ([]GroupTotal, error) {
	var res []GroupTotal
	for rows.Next() {
		var t GroupTotal
		if err := rows.Scan(&t.BloodGroup, &t.Units, &t.Count); err != nil {
			return nil, fmt.Errorf("scan total: %w", err)
		}
		res = append(res, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ListUpcomingCamps возвращает активные акции с датой не раньше указанной.
func (r *PostgresRepository) ListUpcomingCamps(ctx context.Context, from time.Time) ([]model.DonationCamp, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, location, camp_date, start_time, end_time, organizer, contact_phone, description, is_active, created_at
		 FROM donation_camps
		 WHERE camp_date >= $1 AND is_active
		 ORDER BY camp_date`,
		from,
	)
	if err != nil {
		return nil, fmt.Errorf("select camps: %w", err)
	}
	defer rows.Close()

	var res []model.DonationCamp
	for rows.Next() {
		var c model.DonationCamp
		if err := rows.Scan(&c.ID, &c.Name, &c.Location, &c.CampDate, &c.StartTime, &c.EndTime,
			&c.Organizer, &c.ContactPhone, &c.Description, &c.IsActive, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan camp: %w", err)
		}
		res = append(res, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateCamp сохраняет новую акцию по сдаче крови.
func (r *PostgresRepository) CreateCamp(ctx context.Context, c *model.DonationCamp) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO donation_camps (name, location, camp_date, start_time, end_time, organizer, contact_phone, description)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		c.Name, c.Location, c.CampDate, c.StartTime, c.EndTime, c.Organizer, c.ContactPhone, c.Description,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert camp: %w", err)
	}
	return id, nil
}
