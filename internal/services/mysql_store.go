package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"adearn-backend/internal/models"
)

const (
	accountColumns     = "id, username, email, balance, total_earnings, ads_watched, last_watch_time, last_reset_date, last_active_at, version, created_at, updated_at"
	transactionColumns = "id, account_id, type, amount, status, network, wallet_address, tx_hash, description, reference, created_at, updated_at"
	withdrawalColumns  = "id, account_id, method, network, amount, original_amount, currency, recipient, status, transaction_id, created_at, updated_at, resolved_at"
	linkColumns        = "id, title, url, icon, category, position, is_active, reward_per_click, total_clicks, created_at, updated_at"
	clickColumns       = "id, user_id, link_id, client_timestamp, reward, status, error_message, ip_address, user_agent, created_at"

	mysqlDuplicateEntry = 1062
)

// MySQLStore keeps the ledger in MySQL. Account updates lock the account row
// with SELECT ... FOR UPDATE and write everything in the same transaction.
type MySQLStore struct {
	db *sql.DB
}

func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func isDuplicateEntry(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var a models.Account
	var lastWatch, lastReset, lastActive sql.NullTime
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.Balance, &a.TotalEarnings, &a.AdsWatched,
		&lastWatch, &lastReset, &lastActive, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.LastWatchTime = timePtr(lastWatch)
	a.LastResetDate = timePtr(lastReset)
	a.LastActiveAt = timePtr(lastActive)
	return &a, nil
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(&t.ID, &t.AccountID, &t.Type, &t.Amount, &t.Status, &t.Network, &t.WalletAddress,
		&t.TxHash, &t.Description, &t.Reference, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func scanWithdrawal(row rowScanner) (*models.Withdrawal, error) {
	var w models.Withdrawal
	var resolved sql.NullTime
	err := row.Scan(&w.ID, &w.AccountID, &w.Method, &w.Network, &w.Amount, &w.OriginalAmount, &w.Currency,
		&w.Recipient, &w.Status, &w.TransactionID, &w.CreatedAt, &w.UpdatedAt, &resolved)
	if err != nil {
		return nil, err
	}
	w.ResolvedAt = timePtr(resolved)
	return &w, nil
}

func scanLink(row rowScanner) (*models.DirectLink, error) {
	var l models.DirectLink
	err := row.Scan(&l.ID, &l.Title, &l.URL, &l.Icon, &l.Category, &l.Position, &l.IsActive,
		&l.RewardPerClick, &l.TotalClicks, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func scanClick(row rowScanner) (*models.ClickRecord, error) {
	var c models.ClickRecord
	err := row.Scan(&c.ID, &c.UserID, &c.LinkID, &c.ClientTimestamp, &c.Reward, &c.Status,
		&c.ErrorMessage, &c.IPAddress, &c.UserAgent, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *MySQLStore) CreateAccount(ctx context.Context, a *models.Account) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO accounts ("+accountColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		a.ID, a.Username, a.Email, a.Balance, a.TotalEarnings, a.AdsWatched,
		nullTime(a.LastWatchTime), nullTime(a.LastResetDate), nullTime(a.LastActiveAt),
		a.Version, a.CreatedAt, a.UpdatedAt)
	if isDuplicateEntry(err) {
		return ErrAccountExists
	}
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (s *MySQLStore) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

func (s *MySQLStore) UpdateAccount(ctx context.Context, id string, fn func(tx AccountTx) error) (*models.Account, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := scanAccount(tx.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id = ? FOR UPDATE", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}

	view := &mysqlTx{tx: tx, account: current.Clone()}
	if err := fn(view); err != nil {
		return nil, err
	}

	next := view.account
	if err := checkCommit(current, next); err != nil {
		return nil, err
	}
	next.Version = current.Version + 1

	_, err = tx.ExecContext(ctx, `UPDATE accounts SET username = ?, email = ?, balance = ?, total_earnings = ?,
		ads_watched = ?, last_watch_time = ?, last_reset_date = ?, last_active_at = ?, version = ?,
		updated_at = ? WHERE id = ?`,
		next.Username, next.Email, next.Balance, next.TotalEarnings, next.AdsWatched,
		nullTime(next.LastWatchTime), nullTime(next.LastResetDate), nullTime(next.LastActiveAt),
		next.Version, next.UpdatedAt, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update account: %w", err)
	}

	for _, t := range view.transactions {
		if err := upsertTransaction(ctx, tx, t); err != nil {
			return nil, err
		}
	}
	for _, w := range view.finalWithdrawals() {
		if err := upsertWithdrawal(ctx, tx, w); err != nil {
			return nil, err
		}
	}
	for _, wid := range view.deleted {
		if _, err := tx.ExecContext(ctx, "DELETE FROM withdrawals WHERE id = ? AND account_id = ?", wid, id); err != nil {
			return nil, fmt.Errorf("failed to delete withdrawal: %w", err)
		}
	}
	for _, c := range view.clicks {
		if err := insertClick(ctx, tx, c); err != nil {
			return nil, err
		}
	}
	for _, lid := range view.linkClicks {
		if _, err := tx.ExecContext(ctx, "UPDATE direct_links SET total_clicks = total_clicks + 1 WHERE id = ?", lid); err != nil {
			return nil, fmt.Errorf("failed to count link click: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return next, nil
}

func upsertTransaction(ctx context.Context, db execer, t *models.Transaction) error {
	_, err := db.ExecContext(ctx, "INSERT INTO transactions ("+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE status = VALUES(status), network = VALUES(network),
		wallet_address = VALUES(wallet_address), tx_hash = VALUES(tx_hash),
		description = VALUES(description), updated_at = VALUES(updated_at)`,
		t.ID, t.AccountID, t.Type, t.Amount, t.Status, t.Network, t.WalletAddress, t.TxHash,
		t.Description, t.Reference, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}
	return nil
}

func upsertWithdrawal(ctx context.Context, db execer, w *models.Withdrawal) error {
	_, err := db.ExecContext(ctx, "INSERT INTO withdrawals ("+withdrawalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE status = VALUES(status), updated_at = VALUES(updated_at),
		resolved_at = VALUES(resolved_at)`,
		w.ID, w.AccountID, w.Method, w.Network, w.Amount, w.OriginalAmount, w.Currency, w.Recipient,
		w.Status, w.TransactionID, w.CreatedAt, w.UpdatedAt, nullTime(w.ResolvedAt))
	if err != nil {
		return fmt.Errorf("failed to save withdrawal: %w", err)
	}
	return nil
}

func insertClick(ctx context.Context, db execer, c *models.ClickRecord) error {
	_, err := db.ExecContext(ctx, "INSERT INTO click_history ("+clickColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		c.ID, c.UserID, c.LinkID, c.ClientTimestamp, c.Reward, c.Status, c.ErrorMessage,
		c.IPAddress, c.UserAgent, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save click: %w", err)
	}
	return nil
}

// where joins the non-empty conditions of a list query.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, arg any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, arg)
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func (s *MySQLStore) ListAccounts(ctx context.Context, filter models.AccountFilter) ([]*models.Account, error) {
	var w where
	if filter.ActiveSince != nil {
		w.add("last_active_at >= ?", *filter.ActiveSince)
	}

	order := " ORDER BY created_at DESC, id ASC"
	if filter.OrderBy == models.AccountOrderEarnings {
		order = " ORDER BY total_earnings DESC, created_at DESC, id ASC"
	}

	query := "SELECT " + accountColumns + " FROM accounts" + w.String() + order + " LIMIT ?"
	rows, err := s.db.QueryContext(ctx, query, append(w.args, normalizeLimit(filter.Limit))...)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *MySQLStore) LedgerStats(ctx context.Context, asOf time.Time) (*models.LedgerStats, error) {
	var stats models.LedgerStats
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(balance), 0), COALESCE(SUM(total_earnings), 0),
		COALESCE(SUM(CASE WHEN last_reset_date >= ? THEN ads_watched ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END), 0)
		FROM accounts`,
		models.ResetBoundary(asOf), asOf.Add(-NewUserWindow)).
		Scan(&stats.TotalUsers, &stats.TotalBalance, &stats.TotalEarnings, &stats.TotalAdsWatched, &stats.NewUsersLast24h)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate accounts: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(CASE WHEN status = ? THEN amount ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM transactions WHERE type = ?`,
		models.TransactionStatusCompleted, models.TransactionStatusPending, models.TransactionTypeWithdrawal).
		Scan(&stats.TotalWithdrawals, &stats.PendingWithdrawals)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate withdrawals: %w", err)
	}
	return &stats, nil
}

func (s *MySQLStore) ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]*models.Transaction, error) {
	var w where
	if filter.AccountID != "" {
		w.add("account_id = ?", filter.AccountID)
	}
	if filter.Type != "" {
		w.add("type = ?", filter.Type)
	}

	query := "SELECT " + transactionColumns + " FROM transactions" + w.String() + " ORDER BY created_at DESC LIMIT ?"
	rows, err := s.db.QueryContext(ctx, query, append(w.args, normalizeLimit(filter.Limit))...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *MySQLStore) CreateLink(ctx context.Context, l *models.DirectLink) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO direct_links ("+linkColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		l.ID, l.Title, l.URL, l.Icon, l.Category, l.Position, l.IsActive, l.RewardPerClick,
		l.TotalClicks, l.CreatedAt, l.UpdatedAt)
	if isDuplicateEntry(err) {
		return ErrInvalidLink.Detail("link already exists")
	}
	if err != nil {
		return fmt.Errorf("failed to create link: %w", err)
	}
	return nil
}

func (s *MySQLStore) UpdateLink(ctx context.Context, l *models.DirectLink) error {
	res, err := s.db.ExecContext(ctx, `UPDATE direct_links SET title = ?, url = ?, icon = ?, category = ?,
		position = ?, is_active = ?, reward_per_click = ?, updated_at = ? WHERE id = ?`,
		l.Title, l.URL, l.Icon, l.Category, l.Position, l.IsActive, l.RewardPerClick, l.UpdatedAt, l.ID)
	if err != nil {
		return fmt.Errorf("failed to update link: %w", err)
	}
	return requireRow(res, ErrLinkNotFound)
}

func (s *MySQLStore) DeleteLink(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM direct_links WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}
	return requireRow(res, ErrLinkNotFound)
}

// requireRow maps zero affected rows to notFound. The DSN sets
// clientFoundRows so unchanged updates still count.
func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func (s *MySQLStore) GetLink(ctx context.Context, id string) (*models.DirectLink, error) {
	l, err := scanLink(s.db.QueryRowContext(ctx, "SELECT "+linkColumns+" FROM direct_links WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLinkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get link: %w", err)
	}
	return l, nil
}

func (s *MySQLStore) ListLinks(ctx context.Context, activeOnly bool) ([]*models.DirectLink, error) {
	query := "SELECT " + linkColumns + " FROM direct_links"
	if activeOnly {
		query += " WHERE is_active = 1"
	}
	query += " ORDER BY position ASC, created_at ASC"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	defer rows.Close()

	out := make([]*models.DirectLink, 0)
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *MySQLStore) NextLinkPosition(ctx context.Context) (int, error) {
	var pos int
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(position), 0) + 1 FROM direct_links").Scan(&pos)
	if err != nil {
		return 0, fmt.Errorf("failed to get next link position: %w", err)
	}
	return pos, nil
}

func (s *MySQLStore) SaveClick(ctx context.Context, c *models.ClickRecord) error {
	return insertClick(ctx, s.db, c)
}

func (s *MySQLStore) ClickExists(ctx context.Context, userID, linkID string, clientTimestamp int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM click_history WHERE user_id = ? AND link_id = ? AND client_timestamp = ?)",
		userID, linkID, clientTimestamp).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check click history: %w", err)
	}
	return exists, nil
}

func (s *MySQLStore) ListClicks(ctx context.Context, filter models.ClickFilter) ([]*models.ClickRecord, error) {
	var w where
	if filter.UserID != "" {
		w.add("user_id = ?", filter.UserID)
	}
	if filter.LinkID != "" {
		w.add("link_id = ?", filter.LinkID)
	}

	query := "SELECT " + clickColumns + " FROM click_history" + w.String() + " ORDER BY created_at DESC LIMIT ?"
	rows, err := s.db.QueryContext(ctx, query, append(w.args, normalizeLimit(filter.Limit))...)
	if err != nil {
		return nil, fmt.Errorf("failed to list clicks: %w", err)
	}
	defer rows.Close()

	out := make([]*models.ClickRecord, 0)
	for rows.Next() {
		c, err := scanClick(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan click: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *MySQLStore) GetWithdrawal(ctx context.Context, id string) (*models.Withdrawal, error) {
	w, err := scanWithdrawal(s.db.QueryRowContext(ctx, "SELECT "+withdrawalColumns+" FROM withdrawals WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWithdrawalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get withdrawal: %w", err)
	}
	return w, nil
}

func (s *MySQLStore) ListWithdrawals(ctx context.Context, filter models.WithdrawalFilter) ([]*models.Withdrawal, error) {
	var w where
	if filter.AccountID != "" {
		w.add("account_id = ?", filter.AccountID)
	}
	if filter.Status != "" {
		w.add("status = ?", filter.Status)
	}

	query := "SELECT " + withdrawalColumns + " FROM withdrawals" + w.String() + " ORDER BY created_at DESC LIMIT ?"
	rows, err := s.db.QueryContext(ctx, query, append(w.args, normalizeLimit(filter.Limit))...)
	if err != nil {
		return nil, fmt.Errorf("failed to list withdrawals: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Withdrawal, 0)
	for rows.Next() {
		wd, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan withdrawal: %w", err)
		}
		out = append(out, wd)
	}
	return out, rows.Err()
}

func (s *MySQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *MySQLStore) Close() error {
	return s.db.Close()
}

type mysqlTx struct {
	pendingWrites
	tx      *sql.Tx
	account *models.Account
}

func (t *mysqlTx) Account() *models.Account {
	return t.account
}

func (t *mysqlTx) Withdrawal(ctx context.Context, id string) (*models.Withdrawal, error) {
	if w, found := t.bufferedWithdrawal(id); found {
		if w == nil {
			return nil, ErrWithdrawalNotFound
		}
		cp := *w
		return &cp, nil
	}

	w, err := scanWithdrawal(t.tx.QueryRowContext(ctx,
		"SELECT "+withdrawalColumns+" FROM withdrawals WHERE id = ? AND account_id = ?", id, t.account.ID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWithdrawalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get withdrawal: %w", err)
	}
	return w, nil
}

func (t *mysqlTx) Transaction(ctx context.Context, id string) (*models.Transaction, error) {
	if tx := t.bufferedTransaction(id); tx != nil {
		cp := *tx
		return &cp, nil
	}

	tx, err := scanTransaction(t.tx.QueryRowContext(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE id = ? AND account_id = ?", id, t.account.ID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tx, nil
}

func (t *mysqlTx) HasRecentClickReward(ctx context.Context, linkID string, since time.Time) (bool, error) {
	for _, c := range t.clicks {
		if c.LinkID == linkID && c.Status == models.ClickStatusSuccess && !c.CreatedAt.Before(since) {
			return true, nil
		}
	}

	var n int
	err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM click_history
		WHERE user_id = ? AND link_id = ? AND status = ? AND created_at >= ?`,
		t.account.ID, linkID, models.ClickStatusSuccess, since).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check recent rewards: %w", err)
	}
	return n > 0, nil
}
