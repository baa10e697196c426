package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"refroute/internal/reference/models"
	"refroute/internal/reference/query"
	id "refroute/pkg/domain"
	"refroute/pkg/platform/sentinel"
	"refroute/pkg/platform/tx"
)

const uniqueViolation = "23505"

const referenceColumns = `id, ref_id, subject, remarks, external_number, delivery_mode, delivery_detail,
	delivery_sent_at, status, priority, created_by, created_by_details, marked_to, marked_to_details,
	participants, pending_divisions, pending_labs, reopen_request, created_at, updated_at, closed_at`

const movementColumns = `id, reference_id, performed_by, performed_by_details, marked_to, marked_to_details,
	pending_divisions, status_on_movement, action, remarks, idempotency_key, movement_date`

// PostgresStore persists both partitions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed reference store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func referencesTable(scope id.Scope) (string, error) {
	switch scope {
	case id.ScopeLocal:
		return "local_references", nil
	case id.ScopeGlobal:
		return "global_references", nil
	}
	return "", fmt.Errorf("unknown scope %q: %w", scope, sentinel.ErrInvalidState)
}

func movementsTable(scope id.Scope) (string, error) {
	switch scope {
	case id.ScopeLocal:
		return "local_movements", nil
	case id.ScopeGlobal:
		return "global_movements", nil
	}
	return "", fmt.Errorf("unknown scope %q: %w", scope, sentinel.ErrInvalidState)
}

// executor is satisfied by *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) exec(ctx context.Context) executor {
	if t, ok := tx.From(ctx); ok {
		return t
	}
	return s.db
}

func (s *PostgresStore) CreateReference(ctx context.Context, ref *models.Reference, seed *models.Movement) error {
	refTable, err := referencesTable(ref.Scope)
	if err != nil {
		return err
	}
	mvTable, _ := movementsTable(ref.Scope)

	return tx.Run(ctx, s.db, 0, func(ctx context.Context, sqlTx *sql.Tx) error {
		args, err := referenceArgs(ref)
		if err != nil {
			return err
		}
		insert := fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
			refTable, referenceColumns)
		if _, err := sqlTx.ExecContext(ctx, insert, args...); err != nil {
			return translateWriteError("insert reference", err)
		}
		return insertMovement(ctx, sqlTx, mvTable, seed)
	})
}

func (s *PostgresStore) GetReference(ctx context.Context, scope id.Scope, refID id.ReferenceID) (*models.Reference, error) {
	table, err := referencesTable(scope)
	if err != nil {
		return nil, err
	}
	row := s.exec(ctx).QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, referenceColumns, table),
		uuid.UUID(refID))
	ref, err := scanReference(row, scope)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get reference: %w", err)
	}
	return ref, nil
}

func (s *PostgresStore) ListReferences(ctx context.Context, spec query.Spec) ([]*models.Reference, int, error) {
	table, err := referencesTable(spec.Scope)
	if err != nil {
		return nil, 0, err
	}
	where, args := spec.Where(1)
	argNum := len(args) + 1

	dataQuery := fmt.Sprintf(`SELECT %s FROM %s %s %s LIMIT $%d OFFSET $%d`,
		referenceColumns, table, where, spec.OrderBy(), argNum, argNum+1)
	limit := any(spec.Limit)
	if spec.Limit <= 0 {
		limit = nil
	}
	dataArgs := append(append([]any{}, args...), limit, spec.Offset())

	rows, err := s.exec(ctx).QueryContext(ctx, dataQuery, dataArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list references: %w", err)
	}
	defer rows.Close()

	items := make([]*models.Reference, 0)
	for rows.Next() {
		ref, err := scanReference(rows, spec.Scope)
		if err != nil {
			return nil, 0, fmt.Errorf("scan reference: %w", err)
		}
		items = append(items, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate references: %w", err)
	}

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s %s`, table, where)
	if err := s.exec(ctx).QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count references: %w", err)
	}
	return items, total, nil
}

// CommitMovement updates the reference under its token and appends the
// movement in one transaction. The row lock taken by the UPDATE serializes
// concurrent writers; the loser re-evaluates the token and matches no row.
func (s *PostgresStore) CommitMovement(ctx context.Context, expectedUpdatedAt time.Time, ref *models.Reference, mv *models.Movement) error {
	refTable, err := referencesTable(ref.Scope)
	if err != nil {
		return err
	}
	mvTable, _ := movementsTable(ref.Scope)

	return tx.Run(ctx, s.db, 0, func(ctx context.Context, sqlTx *sql.Tx) error {
		if err := updateReference(ctx, sqlTx, refTable, expectedUpdatedAt, ref); err != nil {
			return err
		}
		return insertMovement(ctx, sqlTx, mvTable, mv)
	})
}

func (s *PostgresStore) UpdateReference(ctx context.Context, expectedUpdatedAt time.Time, ref *models.Reference) error {
	table, err := referencesTable(ref.Scope)
	if err != nil {
		return err
	}
	return updateReference(ctx, s.exec(ctx), table, expectedUpdatedAt, ref)
}

func updateReference(ctx context.Context, ex executor, table string, expectedUpdatedAt time.Time, ref *models.Reference) error {
	markedToDetails, err := json.Marshal(ref.MarkedToDetails)
	if err != nil {
		return fmt.Errorf("marshal holder details: %w", err)
	}
	reopen, err := marshalReopen(ref.ReopenRequest)
	if err != nil {
		return err
	}

	res, err := ex.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET
		status = $3, priority = $4, remarks = $5, marked_to = $6, marked_to_details = $7,
		participants = $8, pending_divisions = $9, pending_labs = $10, reopen_request = $11,
		updated_at = $12, closed_at = $13
		WHERE id = $1 AND updated_at = $2`, table),
		uuid.UUID(ref.ID), expectedUpdatedAt,
		string(ref.Status), string(ref.Priority), ref.Remarks,
		pq.Array(id.UserIDStrings(ref.MarkedTo)), markedToDetails,
		pq.Array(id.UserIDStrings(ref.Participants)),
		pq.Array(nonNil(ref.PendingDivisions)), pq.Array(nonNil(ref.PendingLabs)),
		reopen, ref.UpdatedAt, ref.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("update reference: %w", err)
	}
	affected, err := rowsAffected(res, "update reference")
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	var exists bool
	if err := ex.QueryRowContext(ctx, fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, table),
		uuid.UUID(ref.ID)).Scan(&exists); err != nil {
		return fmt.Errorf("check reference exists: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrConflict
}

func insertMovement(ctx context.Context, ex executor, table string, mv *models.Movement) error {
	performedBy, err := json.Marshal(mv.PerformedByDetails)
	if err != nil {
		return fmt.Errorf("marshal performer details: %w", err)
	}
	markedToDetails, err := json.Marshal(mv.MarkedToDetails)
	if err != nil {
		return fmt.Errorf("marshal movement holder details: %w", err)
	}
	var key sql.NullString
	if mv.IdempotencyKey != "" {
		key = sql.NullString{String: mv.IdempotencyKey, Valid: true}
	}
	_, err = ex.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`, table, movementColumns),
		uuid.UUID(mv.ID), uuid.UUID(mv.ReferenceID), uuid.UUID(mv.PerformedBy), performedBy,
		pq.Array(id.UserIDStrings(mv.MarkedTo)), markedToDetails, pq.Array(nonNil(mv.PendingDivisions)),
		string(mv.StatusOnMovement), string(mv.Action), mv.Remarks, key, mv.MovementDate,
	)
	if err != nil {
		return translateWriteError("insert movement", err)
	}
	return nil
}

func (s *PostgresStore) FindMovementByKey(ctx context.Context, scope id.Scope, refID id.ReferenceID, key string) (*models.Movement, error) {
	table, err := movementsTable(scope)
	if err != nil {
		return nil, err
	}
	row := s.exec(ctx).QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE reference_id = $1 AND idempotency_key = $2`, movementColumns, table),
		uuid.UUID(refID), key)
	mv, err := scanMovement(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find movement by key: %w", err)
	}
	return mv, nil
}

func (s *PostgresStore) ListMovements(ctx context.Context, scope id.Scope, refID id.ReferenceID, after *MovementCursor, limit int) ([]*models.Movement, error) {
	table, err := movementsTable(scope)
	if err != nil {
		return nil, err
	}
	var afterDate any
	var afterID any
	if after != nil {
		afterDate = after.Date
		afterID = uuid.UUID(after.ID)
	}
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.exec(ctx).QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM %s
		WHERE reference_id = $1
		  AND ($2::timestamptz IS NULL OR (movement_date, id) > ($2::timestamptz, $3::uuid))
		ORDER BY movement_date ASC, id ASC
		LIMIT $4`, movementColumns, table),
		uuid.UUID(refID), afterDate, afterID, lim)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Movement, 0)
	for rows.Next() {
		mv, err := scanMovement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		out = append(out, mv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate movements: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) LatestMovement(ctx context.Context, scope id.Scope, refID id.ReferenceID) (*models.Movement, error) {
	table, err := movementsTable(scope)
	if err != nil {
		return nil, err
	}
	row := s.exec(ctx).QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM %s
		WHERE reference_id = $1 ORDER BY movement_date DESC, id DESC LIMIT 1`, movementColumns, table),
		uuid.UUID(refID))
	mv, err := scanMovement(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("latest movement: %w", err)
	}
	return mv, nil
}

func (s *PostgresStore) Dashboard(ctx context.Context, spec query.DashboardSpec) (models.Dashboard, error) {
	table, err := referencesTable(spec.Scope)
	if err != nil {
		return models.Dashboard{}, err
	}
	q, args := spec.SQL(table)
	d := models.Dashboard{Scope: spec.Scope, PendingDays: spec.PendingDays}
	err = s.exec(ctx).QueryRowContext(ctx, q, args...).Scan(
		&d.OpenCount, &d.HighPriorityOpen, &d.PendingOverN, &d.ClosedThisMonth,
		&d.HeldByMe, &d.PendingInMyDivision, &d.ClosedCount, &d.TotalCount,
	)
	if err != nil {
		return models.Dashboard{}, fmt.Errorf("dashboard aggregation: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) ListHeldBy(ctx context.Context, scope id.Scope, user id.UserID, cursor HeldByCursor, limit int) ([]*models.Reference, error) {
	table, err := referencesTable(scope)
	if err != nil {
		return nil, err
	}
	var after any
	if cursor.AfterID != nil {
		after = uuid.UUID(*cursor.AfterID)
	}
	rows, err := s.exec(ctx).QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM %s
		WHERE marked_to @> ARRAY[$1::uuid] AND ($2::uuid IS NULL OR id > $2::uuid)
		ORDER BY id ASC LIMIT $3`, referenceColumns, table),
		uuid.UUID(user), after, limit)
	if err != nil {
		return nil, fmt.Errorf("list held references: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Reference, 0)
	for rows.Next() {
		ref, err := scanReference(rows, scope)
		if err != nil {
			return nil, fmt.Errorf("scan held reference: %w", err)
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

// RefreshHolders writes a batch of refreshed snapshots in one transaction.
// References whose token moved on are skipped and returned for a retry.
func (s *PostgresStore) RefreshHolders(ctx context.Context, scope id.Scope, batch []HolderRefresh) ([]id.ReferenceID, error) {
	refTable, err := referencesTable(scope)
	if err != nil {
		return nil, err
	}
	mvTable, _ := movementsTable(scope)

	var conflicts []id.ReferenceID
	err = tx.Run(ctx, s.db, 0, func(ctx context.Context, sqlTx *sql.Tx) error {
		conflicts = conflicts[:0]
		for _, item := range batch {
			details, err := json.Marshal(item.Reference.MarkedToDetails)
			if err != nil {
				return fmt.Errorf("marshal holder details: %w", err)
			}
			res, err := sqlTx.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET
				marked_to_details = $3, pending_divisions = $4, pending_labs = $5, updated_at = $6
				WHERE id = $1 AND updated_at = $2`, refTable),
				uuid.UUID(item.Reference.ID), item.ExpectedUpdatedAt, details,
				pq.Array(nonNil(item.Reference.PendingDivisions)), pq.Array(nonNil(item.Reference.PendingLabs)),
				item.Reference.UpdatedAt)
			if err != nil {
				return fmt.Errorf("refresh reference holders: %w", err)
			}
			affected, err := rowsAffected(res, "refresh reference holders")
			if err != nil {
				return err
			}
			if affected == 0 {
				conflicts = append(conflicts, item.Reference.ID)
				continue
			}
			if item.LatestMovementID == nil {
				continue
			}
			if _, err := sqlTx.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET marked_to_details = $2, pending_divisions = $3 WHERE id = $1`, mvTable),
				uuid.UUID(*item.LatestMovementID), details, pq.Array(nonNil(item.Reference.PendingDivisions))); err != nil {
				return fmt.Errorf("refresh movement holders: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conflicts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func referenceArgs(ref *models.Reference) ([]any, error) {
	createdBy, err := json.Marshal(ref.CreatedByDetails)
	if err != nil {
		return nil, fmt.Errorf("marshal creator details: %w", err)
	}
	markedTo, err := json.Marshal(ref.MarkedToDetails)
	if err != nil {
		return nil, fmt.Errorf("marshal holder details: %w", err)
	}
	reopen, err := marshalReopen(ref.ReopenRequest)
	if err != nil {
		return nil, err
	}
	return []any{
		uuid.UUID(ref.ID), ref.RefID, ref.Subject, ref.Remarks, ref.ExternalNumber,
		ref.Delivery.Mode, ref.Delivery.Detail, ref.Delivery.SentAt,
		string(ref.Status), string(ref.Priority), uuid.UUID(ref.CreatedBy), createdBy,
		pq.Array(id.UserIDStrings(ref.MarkedTo)), markedTo,
		pq.Array(id.UserIDStrings(ref.Participants)),
		pq.Array(nonNil(ref.PendingDivisions)), pq.Array(nonNil(ref.PendingLabs)),
		reopen, ref.CreatedAt, ref.UpdatedAt, ref.ClosedAt,
	}, nil
}

func scanReference(row rowScanner, scope id.Scope) (*models.Reference, error) {
	var (
		ref                          models.Reference
		refID, createdBy             uuid.UUID
		sentAt, closedAt             sql.NullTime
		status, priority             string
		createdByRaw, markedToRaw    []byte
		reopenRaw                    []byte
		markedTo, participants       pq.StringArray
		pendingDivisions, pendingLab pq.StringArray
	)
	if err := row.Scan(
		&refID, &ref.RefID, &ref.Subject, &ref.Remarks, &ref.ExternalNumber, &ref.Delivery.Mode, &ref.Delivery.Detail,
		&sentAt, &status, &priority, &createdBy, &createdByRaw, &markedTo, &markedToRaw,
		&participants, &pendingDivisions, &pendingLab, &reopenRaw, &ref.CreatedAt, &ref.UpdatedAt, &closedAt,
	); err != nil {
		return nil, err
	}

	ref.ID = id.ReferenceID(refID)
	ref.Scope = scope
	ref.Status = models.Status(status)
	ref.Priority = models.Priority(priority)
	ref.CreatedBy = id.UserID(createdBy)
	ref.CreatedAt = ref.CreatedAt.UTC()
	ref.UpdatedAt = ref.UpdatedAt.UTC()
	if sentAt.Valid {
		t := sentAt.Time.UTC()
		ref.Delivery.SentAt = &t
	}
	if closedAt.Valid {
		t := closedAt.Time.UTC()
		ref.ClosedAt = &t
	}
	if err := json.Unmarshal(createdByRaw, &ref.CreatedByDetails); err != nil {
		return nil, fmt.Errorf("decode creator details: %w", sentinel.ErrInvalidState)
	}
	if err := json.Unmarshal(markedToRaw, &ref.MarkedToDetails); err != nil {
		return nil, fmt.Errorf("decode holder details: %w", sentinel.ErrInvalidState)
	}
	if len(reopenRaw) > 0 {
		var rr models.ReopenRequest
		if err := json.Unmarshal(reopenRaw, &rr); err != nil {
			return nil, fmt.Errorf("decode reopen request: %w", sentinel.ErrInvalidState)
		}
		ref.ReopenRequest = &rr
	}
	var err error
	if ref.MarkedTo, err = id.ParseUserIDs(markedTo); err != nil {
		return nil, fmt.Errorf("decode holders: %w", sentinel.ErrInvalidState)
	}
	if ref.Participants, err = id.ParseUserIDs(participants); err != nil {
		return nil, fmt.Errorf("decode participants: %w", sentinel.ErrInvalidState)
	}
	ref.PendingDivisions = []string(pendingDivisions)
	ref.PendingLabs = []string(pendingLab)
	return &ref, nil
}

func scanMovement(row rowScanner) (*models.Movement, error) {
	var (
		mv                         models.Movement
		mvID, refID, performedBy   uuid.UUID
		performedRaw, markedToRaw  []byte
		markedTo, pendingDivisions pq.StringArray
		status, action             string
		key                        sql.NullString
	)
	if err := row.Scan(&mvID, &refID, &performedBy, &performedRaw, &markedTo, &markedToRaw,
		&pendingDivisions, &status, &action, &mv.Remarks, &key, &mv.MovementDate); err != nil {
		return nil, err
	}
	mv.ID = id.MovementID(mvID)
	mv.ReferenceID = id.ReferenceID(refID)
	mv.PerformedBy = id.UserID(performedBy)
	mv.StatusOnMovement = models.Status(status)
	mv.Action = models.MovementAction(action)
	mv.IdempotencyKey = key.String
	mv.MovementDate = mv.MovementDate.UTC()
	mv.PendingDivisions = []string(pendingDivisions)
	if err := json.Unmarshal(performedRaw, &mv.PerformedByDetails); err != nil {
		return nil, fmt.Errorf("decode performer details: %w", sentinel.ErrInvalidState)
	}
	if err := json.Unmarshal(markedToRaw, &mv.MarkedToDetails); err != nil {
		return nil, fmt.Errorf("decode movement holder details: %w", sentinel.ErrInvalidState)
	}
	var err error
	if mv.MarkedTo, err = id.ParseUserIDs(markedTo); err != nil {
		return nil, fmt.Errorf("decode movement holders: %w", sentinel.ErrInvalidState)
	}
	return &mv, nil
}

func marshalReopen(rr *models.ReopenRequest) (any, error) {
	if rr == nil {
		return nil, nil
	}
	raw, err := json.Marshal(rr)
	if err != nil {
		return nil, fmt.Errorf("marshal reopen request: %w", err)
	}
	return raw, nil
}

func translateWriteError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return fmt.Errorf("%s: %s: %w", op, pqErr.Constraint, sentinel.ErrAlreadyUsed)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

// rowsAffected surfaces driver failures instead of reading them as zero rows.
func rowsAffected(res sql.Result, what string) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s rows affected: %w", what, err)
	}
	return n, nil
}
