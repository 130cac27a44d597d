package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"adearn-backend/internal/config"
	"adearn-backend/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

func NewRedisClient(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// RedisStore keeps records as JSON strings with sorted-set indexes.
// Account updates use WATCH/MULTI on the account key; every commit rewrites
// that key, so concurrent units for the same account retry.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func (s *RedisStore) getJSON(ctx context.Context, key string, v any) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *RedisStore) CreateAccount(ctx context.Context, a *models.Account) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}

	ok, err := s.client.SetNX(ctx, fmt.Sprintf(KeyAccount, a.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	if !ok {
		return ErrAccountExists
	}

	pipe := s.client.Pipeline()
	queueAccountIndexes(ctx, pipe, a)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to index account: %w", err)
	}
	return nil
}

func queueAccountIndexes(ctx context.Context, pipe redis.Pipeliner, a *models.Account) {
	pipe.ZAdd(ctx, KeyAccounts, redis.Z{Score: score(a.CreatedAt), Member: a.ID})
	pipe.ZAdd(ctx, KeyAccountsByEarnings, redis.Z{Score: a.TotalEarnings.InexactFloat64(), Member: a.ID})
}

func (s *RedisStore) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	var account models.Account
	err := s.getJSON(ctx, fmt.Sprintf(KeyAccount, id), &account)
	if err == redis.Nil {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

func (s *RedisStore) UpdateAccount(ctx context.Context, id string, fn func(tx AccountTx) error) (*models.Account, error) {
	key := fmt.Sprintf(KeyAccount, id)
	var result *models.Account

	txf := func(rtx *redis.Tx) error {
		data, err := rtx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return ErrAccountNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get account: %w", err)
		}

		var current models.Account
		if err := json.Unmarshal(data, &current); err != nil {
			return fmt.Errorf("failed to unmarshal account: %w", err)
		}

		view := &redisTx{store: s, rtx: rtx, account: current.Clone()}
		if err := fn(view); err != nil {
			return err
		}

		next := view.account
		if err := checkCommit(&current, next); err != nil {
			return err
		}
		next.Version = current.Version + 1

		accountData, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to marshal account: %w", err)
		}

		_, err = rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, accountData, 0)
			queueAccountIndexes(ctx, pipe, next)

			for _, t := range view.transactions {
				if err := s.queueTransaction(ctx, pipe, t); err != nil {
					return err
				}
			}
			for _, w := range view.finalWithdrawals() {
				if err := s.queueWithdrawal(ctx, pipe, w); err != nil {
					return err
				}
			}
			for _, wid := range view.deleted {
				s.queueWithdrawalDelete(ctx, pipe, id, wid)
			}
			for _, c := range view.clicks {
				if err := s.queueClick(ctx, pipe, c); err != nil {
					return err
				}
			}
			for _, lid := range view.linkClicks {
				pipe.Incr(ctx, fmt.Sprintf(KeyLinkClicks, lid))
			}
			return nil
		})
		if err != nil {
			return err
		}

		result = next
		return nil
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}

	return nil, fmt.Errorf("account %s: too many concurrent updates", id)
}

func (s *RedisStore) queueTransaction(ctx context.Context, pipe redis.Pipeliner, t *models.Transaction) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction: %w", err)
	}

	z := redis.Z{Score: score(t.CreatedAt), Member: t.ID}
	pipe.Set(ctx, fmt.Sprintf(KeyTransaction, t.ID), data, 0)
	pipe.ZAdd(ctx, fmt.Sprintf(KeyAccountTransactions, t.AccountID), z)
	pipe.ZAdd(ctx, KeyTransactions, z)

	// A withdrawal entry is written as completed exactly once: either on
	// creation or when a pending one settles.
	if t.Type == models.TransactionTypeWithdrawal && t.Status == models.TransactionStatusCompleted {
		pipe.IncrBy(ctx, KeyStatsWithdrawn, t.Amount.Shift(models.AmountScale).IntPart())
	}
	return nil
}

func (s *RedisStore) queueWithdrawal(ctx context.Context, pipe redis.Pipeliner, w *models.Withdrawal) error {
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("failed to marshal withdrawal: %w", err)
	}

	z := redis.Z{Score: score(w.CreatedAt), Member: w.ID}
	pipe.Set(ctx, fmt.Sprintf(KeyWithdrawal, w.ID), data, 0)
	pipe.ZAdd(ctx, fmt.Sprintf(KeyAccountWithdrawals, w.AccountID), z)
	pipe.ZAdd(ctx, KeyWithdrawals, z)
	for _, status := range []models.WithdrawalStatus{
		models.WithdrawalStatusPending,
		models.WithdrawalStatusApproved,
		models.WithdrawalStatusRejected,
	} {
		if status != w.Status {
			pipe.ZRem(ctx, fmt.Sprintf(KeyWithdrawalsByStatus, status), w.ID)
		}
	}
	pipe.ZAdd(ctx, fmt.Sprintf(KeyWithdrawalsByStatus, w.Status), z)
	return nil
}

func (s *RedisStore) queueWithdrawalDelete(ctx context.Context, pipe redis.Pipeliner, accountID, id string) {
	pipe.Del(ctx, fmt.Sprintf(KeyWithdrawal, id))
	pipe.ZRem(ctx, fmt.Sprintf(KeyAccountWithdrawals, accountID), id)
	pipe.ZRem(ctx, KeyWithdrawals, id)
	for _, status := range []models.WithdrawalStatus{
		models.WithdrawalStatusPending,
		models.WithdrawalStatusApproved,
		models.WithdrawalStatusRejected,
	} {
		pipe.ZRem(ctx, fmt.Sprintf(KeyWithdrawalsByStatus, status), id)
	}
}

func (s *RedisStore) queueClick(ctx context.Context, pipe redis.Pipeliner, c *models.ClickRecord) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal click: %w", err)
	}

	z := redis.Z{Score: score(c.CreatedAt), Member: c.ID}
	pipe.Set(ctx, fmt.Sprintf(KeyClick, c.ID), data, 0)
	pipe.ZAdd(ctx, KeyClicks, z)
	pipe.ZAdd(ctx, fmt.Sprintf(KeyUserClicks, c.UserID), z)
	pipe.Set(ctx, fmt.Sprintf(KeyClickSeen, c.UserID, c.LinkID, c.ClientTimestamp), c.ID, 0)

	if c.Status == models.ClickStatusSuccess {
		rewards := fmt.Sprintf(KeyUserLinkRewards, c.UserID, c.LinkID)
		pipe.ZAdd(ctx, rewards, z)
		pipe.ZRemRangeByScore(ctx, rewards, "-inf", strconv.FormatFloat(score(c.CreatedAt.Add(-TTLRewardIndex)), 'f', 0, 64))
		pipe.Expire(ctx, rewards, TTLRewardIndex)
	}
	return nil
}

func (s *RedisStore) ListAccounts(ctx context.Context, filter models.AccountFilter) ([]*models.Account, error) {
	index := KeyAccounts
	if filter.OrderBy == models.AccountOrderEarnings {
		index = KeyAccountsByEarnings
	}

	out := make([]*models.Account, 0)
	err := s.scanIndex(ctx, index, normalizeLimit(filter.Limit), func(id string) (bool, error) {
		a, err := s.GetAccount(ctx, id)
		if errors.Is(err, ErrAccountNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if !activeSince(a, filter.ActiveSince) {
			return false, nil
		}
		out = append(out, a)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LedgerStats walks every account. The withdrawal totals come from a
// counter kept in AmountScale units and the pending status index.
func (s *RedisStore) LedgerStats(ctx context.Context, asOf time.Time) (*models.LedgerStats, error) {
	var stats models.LedgerStats

	for start := int64(0); ; start += scanPageSize {
		ids, err := s.client.ZRange(ctx, KeyAccounts, start, start+scanPageSize-1).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read account index: %w", err)
		}
		if len(ids) == 0 {
			break
		}

		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = fmt.Sprintf(KeyAccount, id)
		}
		values, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to load accounts: %w", err)
		}
		for _, v := range values {
			data, ok := v.(string)
			if !ok {
				continue
			}
			var a models.Account
			if err := json.Unmarshal([]byte(data), &a); err != nil {
				return nil, fmt.Errorf("failed to unmarshal account: %w", err)
			}
			addAccountStats(&stats, &a, asOf)
		}

		if len(ids) < scanPageSize {
			break
		}
	}

	pipe := s.client.Pipeline()
	withdrawnCmd := pipe.Get(ctx, KeyStatsWithdrawn)
	pendingCmd := pipe.ZCard(ctx, fmt.Sprintf(KeyWithdrawalsByStatus, models.WithdrawalStatusPending))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to read withdrawal stats: %w", err)
	}

	withdrawn, err := withdrawnCmd.Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to read withdrawn total: %w", err)
	}
	stats.TotalWithdrawals = decimal.New(withdrawn, -models.AmountScale)
	stats.PendingWithdrawals = pendingCmd.Val()

	return &stats, nil
}

func (s *RedisStore) ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]*models.Transaction, error) {
	index := KeyTransactions
	if filter.AccountID != "" {
		index = fmt.Sprintf(KeyAccountTransactions, filter.AccountID)
	}

	var out []*models.Transaction
	err := s.scanIndex(ctx, index, normalizeLimit(filter.Limit), func(id string) (bool, error) {
		var t models.Transaction
		err := s.getJSON(ctx, fmt.Sprintf(KeyTransaction, id), &t)
		if err == redis.Nil {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to get transaction: %w", err)
		}
		if filter.Type != "" && t.Type != filter.Type {
			return false, nil
		}
		out = append(out, &t)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// scanIndex walks a sorted set newest first and feeds ids to visit until
// limit ids were accepted or the set is exhausted.
func (s *RedisStore) scanIndex(ctx context.Context, key string, limit int, visit func(id string) (bool, error)) error {
	accepted := 0
	for start := int64(0); accepted < limit; start += scanPageSize {
		ids, err := s.client.ZRevRange(ctx, key, start, start+scanPageSize-1).Result()
		if err != nil {
			return fmt.Errorf("failed to read index %s: %w", key, err)
		}

		for _, id := range ids {
			ok, err := visit(id)
			if err != nil {
				return err
			}
			if ok {
				accepted++
				if accepted == limit {
					return nil
				}
			}
		}

		if len(ids) < scanPageSize {
			return nil
		}
	}
	return nil
}

func (s *RedisStore) CreateLink(ctx context.Context, l *models.DirectLink) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("failed to marshal link: %w", err)
	}

	ok, err := s.client.SetNX(ctx, fmt.Sprintf(KeyLink, l.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to create link: %w", err)
	}
	if !ok {
		return ErrInvalidLink.Detail("link already exists")
	}
	return s.client.SAdd(ctx, KeyLinks, l.ID).Err()
}

func (s *RedisStore) UpdateLink(ctx context.Context, l *models.DirectLink) error {
	existing, err := s.GetLink(ctx, l.ID)
	if err != nil {
		return err
	}

	cp := *l
	cp.CreatedAt = existing.CreatedAt
	data, err := json.Marshal(&cp)
	if err != nil {
		return fmt.Errorf("failed to marshal link: %w", err)
	}

	// XX keeps a concurrent delete from resurrecting the link.
	ok, err := s.client.SetXX(ctx, fmt.Sprintf(KeyLink, l.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to update link: %w", err)
	}
	if !ok {
		return ErrLinkNotFound
	}
	return nil
}

func (s *RedisStore) DeleteLink(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, fmt.Sprintf(KeyLink, id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}
	if n == 0 {
		return ErrLinkNotFound
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, fmt.Sprintf(KeyLinkClicks, id))
	pipe.SRem(ctx, KeyLinks, id)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) GetLink(ctx context.Context, id string) (*models.DirectLink, error) {
	pipe := s.client.Pipeline()
	linkCmd := pipe.Get(ctx, fmt.Sprintf(KeyLink, id))
	clicksCmd := pipe.Get(ctx, fmt.Sprintf(KeyLinkClicks, id))

	_, err := pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to get link: %w", err)
	}

	data, err := linkCmd.Bytes()
	if err == redis.Nil {
		return nil, ErrLinkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get link: %w", err)
	}

	var link models.DirectLink
	if err := json.Unmarshal(data, &link); err != nil {
		return nil, fmt.Errorf("failed to unmarshal link: %w", err)
	}

	clicks, err := clicksCmd.Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to get link clicks: %w", err)
	}
	link.TotalClicks = clicks

	return &link, nil
}

func (s *RedisStore) ListLinks(ctx context.Context, activeOnly bool) ([]*models.DirectLink, error) {
	ids, err := s.client.SMembers(ctx, KeyLinks).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}

	links := make([]*models.DirectLink, 0, len(ids))
	for _, id := range ids {
		link, err := s.GetLink(ctx, id)
		if errors.Is(err, ErrLinkNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if activeOnly && !link.IsActive {
			continue
		}
		links = append(links, link)
	}

	sortLinks(links)
	return links, nil
}

func (s *RedisStore) NextLinkPosition(ctx context.Context) (int, error) {
	links, err := s.ListLinks(ctx, false)
	if err != nil {
		return 0, err
	}

	highest := 0
	for _, l := range links {
		if l.Position > highest {
			highest = l.Position
		}
	}
	return highest + 1, nil
}

func (s *RedisStore) SaveClick(ctx context.Context, c *models.ClickRecord) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return s.queueClick(ctx, pipe, c)
	})
	if err != nil {
		return fmt.Errorf("failed to save click: %w", err)
	}
	return nil
}

func (s *RedisStore) ClickExists(ctx context.Context, userID, linkID string, clientTimestamp int64) (bool, error) {
	n, err := s.client.Exists(ctx, fmt.Sprintf(KeyClickSeen, userID, linkID, clientTimestamp)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check click history: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) ListClicks(ctx context.Context, filter models.ClickFilter) ([]*models.ClickRecord, error) {
	index := KeyClicks
	if filter.UserID != "" {
		index = fmt.Sprintf(KeyUserClicks, filter.UserID)
	}

	var out []*models.ClickRecord
	err := s.scanIndex(ctx, index, normalizeLimit(filter.Limit), func(id string) (bool, error) {
		var c models.ClickRecord
		err := s.getJSON(ctx, fmt.Sprintf(KeyClick, id), &c)
		if err == redis.Nil {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to get click: %w", err)
		}
		if filter.LinkID != "" && c.LinkID != filter.LinkID {
			return false, nil
		}
		out = append(out, &c)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *RedisStore) GetWithdrawal(ctx context.Context, id string) (*models.Withdrawal, error) {
	var w models.Withdrawal
	err := s.getJSON(ctx, fmt.Sprintf(KeyWithdrawal, id), &w)
	if err == redis.Nil {
		return nil, ErrWithdrawalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get withdrawal: %w", err)
	}
	return &w, nil
}

func (s *RedisStore) ListWithdrawals(ctx context.Context, filter models.WithdrawalFilter) ([]*models.Withdrawal, error) {
	index := KeyWithdrawals
	switch {
	case filter.AccountID != "":
		index = fmt.Sprintf(KeyAccountWithdrawals, filter.AccountID)
	case filter.Status != "":
		index = fmt.Sprintf(KeyWithdrawalsByStatus, filter.Status)
	}

	var out []*models.Withdrawal
	err := s.scanIndex(ctx, index, normalizeLimit(filter.Limit), func(id string) (bool, error) {
		w, err := s.GetWithdrawal(ctx, id)
		if errors.Is(err, ErrWithdrawalNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if filter.Status != "" && w.Status != filter.Status {
			return false, nil
		}
		out = append(out, w)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

type redisTx struct {
	pendingWrites
	store   *RedisStore
	rtx     *redis.Tx
	account *models.Account
}

func (t *redisTx) Account() *models.Account {
	return t.account
}

func (t *redisTx) Withdrawal(ctx context.Context, id string) (*models.Withdrawal, error) {
	if w, found := t.bufferedWithdrawal(id); found {
		if w == nil {
			return nil, ErrWithdrawalNotFound
		}
		cp := *w
		return &cp, nil
	}

	data, err := t.rtx.Get(ctx, fmt.Sprintf(KeyWithdrawal, id)).Bytes()
	if err == redis.Nil {
		return nil, ErrWithdrawalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get withdrawal: %w", err)
	}

	var w models.Withdrawal
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to unmarshal withdrawal: %w", err)
	}
	if w.AccountID != t.account.ID {
		return nil, ErrWithdrawalNotFound
	}
	return &w, nil
}

func (t *redisTx) Transaction(ctx context.Context, id string) (*models.Transaction, error) {
	if tx := t.bufferedTransaction(id); tx != nil {
		cp := *tx
		return &cp, nil
	}

	data, err := t.rtx.Get(ctx, fmt.Sprintf(KeyTransaction, id)).Bytes()
	if err == redis.Nil {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	var tx models.Transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transaction: %w", err)
	}
	if tx.AccountID != t.account.ID {
		return nil, ErrTransactionNotFound
	}
	return &tx, nil
}

func (t *redisTx) HasRecentClickReward(ctx context.Context, linkID string, since time.Time) (bool, error) {
	for _, c := range t.clicks {
		if c.LinkID == linkID && c.Status == models.ClickStatusSuccess && !c.CreatedAt.Before(since) {
			return true, nil
		}
	}

	key := fmt.Sprintf(KeyUserLinkRewards, t.account.ID, linkID)
	n, err := t.rtx.ZCount(ctx, key, strconv.FormatFloat(score(since), 'f', 0, 64), "+inf").Result()
	if err != nil {
		return false, fmt.Errorf("failed to check recent rewards: %w", err)
	}
	return n > 0, nil
}
