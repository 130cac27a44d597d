package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"adearn-backend/internal/models"
)

// MemoryStore keeps everything in process memory. It backs tests and
// single-node development setups.
type MemoryStore struct {
	mu           sync.RWMutex
	accounts     map[string]*models.Account
	transactions map[string]*models.Transaction
	txOrder      []string
	withdrawals  map[string]*models.Withdrawal
	wdOrder      []string
	clicks       []*models.ClickRecord
	clickSeen    map[string]struct{}
	links        map[string]*models.DirectLink

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:     make(map[string]*models.Account),
		transactions: make(map[string]*models.Transaction),
		withdrawals:  make(map[string]*models.Withdrawal),
		clickSeen:    make(map[string]struct{}),
		links:        make(map[string]*models.DirectLink),
		locks:        make(map[string]*sync.Mutex),
	}
}

func (s *MemoryStore) accountLock(id string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func clickSeenKey(userID, linkID string, ts int64) string {
	return fmt.Sprintf("%s_%s_%d", linkID, userID, ts)
}

func (s *MemoryStore) CreateAccount(ctx context.Context, a *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[a.ID]; ok {
		return ErrAccountExists
	}
	s.accounts[a.ID] = a.Clone()
	return nil
}

func (s *MemoryStore) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return a.Clone(), nil
}

func (s *MemoryStore) UpdateAccount(ctx context.Context, id string, fn func(tx AccountTx) error) (*models.Account, error) {
	lock := s.accountLock(id)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	current, ok := s.accounts[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrAccountNotFound
	}

	view := &memoryTx{store: s, account: current.Clone()}
	if err := fn(view); err != nil {
		return nil, err
	}

	next := view.account
	if err := checkCommit(current, next); err != nil {
		return nil, err
	}
	next.Version = current.Version + 1

	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[id] = next.Clone()
	for _, t := range view.transactions {
		if _, exists := s.transactions[t.ID]; !exists {
			s.txOrder = append(s.txOrder, t.ID)
		}
		cp := *t
		s.transactions[t.ID] = &cp
	}
	for _, w := range view.finalWithdrawals() {
		if _, exists := s.withdrawals[w.ID]; !exists {
			s.wdOrder = append(s.wdOrder, w.ID)
		}
		cp := *w
		s.withdrawals[w.ID] = &cp
	}
	for _, wid := range view.deleted {
		delete(s.withdrawals, wid)
	}
	for _, c := range view.clicks {
		s.saveClickLocked(c)
	}
	for _, lid := range view.linkClicks {
		if l, ok := s.links[lid]; ok {
			cp := *l
			cp.TotalClicks++
			s.links[lid] = &cp
		}
	}

	return next.Clone(), nil
}

func (s *MemoryStore) ListAccounts(ctx context.Context, filter models.AccountFilter) ([]*models.Account, error) {
	s.mu.RLock()
	out := make([]*models.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		if !activeSince(a, filter.ActiveSince) {
			continue
		}
		out = append(out, a.Clone())
	}
	s.mu.RUnlock()

	sortAccounts(out, filter.OrderBy)
	if limit := normalizeLimit(filter.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) LedgerStats(ctx context.Context, asOf time.Time) (*models.LedgerStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats models.LedgerStats
	for _, a := range s.accounts {
		addAccountStats(&stats, a, asOf)
	}
	for _, t := range s.transactions {
		if t.Type != models.TransactionTypeWithdrawal {
			continue
		}
		switch t.Status {
		case models.TransactionStatusCompleted:
			stats.TotalWithdrawals = stats.TotalWithdrawals.Add(t.Amount)
		case models.TransactionStatusPending:
			stats.PendingWithdrawals++
		}
	}
	return &stats, nil
}

func (s *MemoryStore) ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := normalizeLimit(filter.Limit)
	out := make([]*models.Transaction, 0)
	for i := len(s.txOrder) - 1; i >= 0 && len(out) < limit; i-- {
		t := s.transactions[s.txOrder[i]]
		if filter.AccountID != "" && t.AccountID != filter.AccountID {
			continue
		}
		if filter.Type != "" && t.Type != filter.Type {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) CreateLink(ctx context.Context, l *models.DirectLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.links[l.ID]; ok {
		return ErrInvalidLink.Detail("link already exists")
	}
	cp := *l
	s.links[l.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateLink(ctx context.Context, l *models.DirectLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.links[l.ID]
	if !ok {
		return ErrLinkNotFound
	}
	cp := *l
	cp.TotalClicks = existing.TotalClicks
	cp.CreatedAt = existing.CreatedAt
	s.links[l.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteLink(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.links[id]; !ok {
		return ErrLinkNotFound
	}
	delete(s.links, id)
	return nil
}

func (s *MemoryStore) GetLink(ctx context.Context, id string) (*models.DirectLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.links[id]
	if !ok {
		return nil, ErrLinkNotFound
	}
	cp := *l
	return &cp, nil
}

func (s *MemoryStore) ListLinks(ctx context.Context, activeOnly bool) ([]*models.DirectLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.DirectLink, 0, len(s.links))
	for _, l := range s.links {
		if activeOnly && !l.IsActive {
			continue
		}
		cp := *l
		out = append(out, &cp)
	}
	sortLinks(out)
	return out, nil
}

func (s *MemoryStore) NextLinkPosition(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	highest := 0
	for _, l := range s.links {
		if l.Position > highest {
			highest = l.Position
		}
	}
	return highest + 1, nil
}

func (s *MemoryStore) SaveClick(ctx context.Context, c *models.ClickRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.saveClickLocked(c)
	return nil
}

func (s *MemoryStore) saveClickLocked(c *models.ClickRecord) {
	cp := *c
	s.clicks = append(s.clicks, &cp)
	s.clickSeen[clickSeenKey(c.UserID, c.LinkID, c.ClientTimestamp)] = struct{}{}
}

func (s *MemoryStore) ClickExists(ctx context.Context, userID, linkID string, clientTimestamp int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.clickSeen[clickSeenKey(userID, linkID, clientTimestamp)]
	return ok, nil
}

func (s *MemoryStore) ListClicks(ctx context.Context, filter models.ClickFilter) ([]*models.ClickRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := normalizeLimit(filter.Limit)
	out := make([]*models.ClickRecord, 0)
	for i := len(s.clicks) - 1; i >= 0 && len(out) < limit; i-- {
		c := s.clicks[i]
		if filter.UserID != "" && c.UserID != filter.UserID {
			continue
		}
		if filter.LinkID != "" && c.LinkID != filter.LinkID {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) GetWithdrawal(ctx context.Context, id string) (*models.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.withdrawals[id]
	if !ok {
		return nil, ErrWithdrawalNotFound
	}
	cp := *w
	return &cp, nil
}

func (s *MemoryStore) ListWithdrawals(ctx context.Context, filter models.WithdrawalFilter) ([]*models.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := normalizeLimit(filter.Limit)
	out := make([]*models.Withdrawal, 0)
	for i := len(s.wdOrder) - 1; i >= 0 && len(out) < limit; i-- {
		w, ok := s.withdrawals[s.wdOrder[i]]
		if !ok {
			continue
		}
		if filter.AccountID != "" && w.AccountID != filter.AccountID {
			continue
		}
		if filter.Status != "" && w.Status != filter.Status {
			continue
		}
		cp := *w
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

type memoryTx struct {
	pendingWrites
	store   *MemoryStore
	account *models.Account
}

func (t *memoryTx) Account() *models.Account {
	return t.account
}

func (t *memoryTx) Withdrawal(ctx context.Context, id string) (*models.Withdrawal, error) {
	if w, found := t.bufferedWithdrawal(id); found {
		if w == nil {
			return nil, ErrWithdrawalNotFound
		}
		cp := *w
		return &cp, nil
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	w, ok := t.store.withdrawals[id]
	if !ok || w.AccountID != t.account.ID {
		return nil, ErrWithdrawalNotFound
	}
	cp := *w
	return &cp, nil
}

func (t *memoryTx) Transaction(ctx context.Context, id string) (*models.Transaction, error) {
	if tx := t.bufferedTransaction(id); tx != nil {
		cp := *tx
		return &cp, nil
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	tx, ok := t.store.transactions[id]
	if !ok || tx.AccountID != t.account.ID {
		return nil, ErrTransactionNotFound
	}
	cp := *tx
	return &cp, nil
}

func (t *memoryTx) HasRecentClickReward(ctx context.Context, linkID string, since time.Time) (bool, error) {
	match := func(c *models.ClickRecord) bool {
		return c.UserID == t.account.ID &&
			c.LinkID == linkID &&
			c.Status == models.ClickStatusSuccess &&
			!c.CreatedAt.Before(since)
	}

	for _, c := range t.clicks {
		if match(c) {
			return true, nil
		}
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	for i := len(t.store.clicks) - 1; i >= 0; i-- {
		if match(t.store.clicks[i]) {
			return true, nil
		}
	}
	return false, nil
}

func activeSince(a *models.Account, since *time.Time) bool {
	if since == nil {
		return true
	}
	return a.LastActiveAt != nil && !a.LastActiveAt.Before(*since)
}

// sortAccounts orders by earnings (highest first) or by creation (newest
// first). Ties fall back to the id so pages are stable.
func sortAccounts(accounts []*models.Account, order models.AccountOrder) {
	sort.SliceStable(accounts, func(i, j int) bool {
		a, b := accounts[i], accounts[j]
		if order == models.AccountOrderEarnings && !a.TotalEarnings.Equal(b.TotalEarnings) {
			return a.TotalEarnings.GreaterThan(b.TotalEarnings)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// addAccountStats folds one account into the account side of stats.
func addAccountStats(stats *models.LedgerStats, a *models.Account, asOf time.Time) {
	stats.TotalUsers++
	stats.TotalBalance = stats.TotalBalance.Add(a.Balance)
	stats.TotalEarnings = stats.TotalEarnings.Add(a.TotalEarnings)
	if !a.NeedsDailyReset(asOf) {
		stats.TotalAdsWatched += int64(a.AdsWatched)
	}
	if !a.CreatedAt.Before(asOf.Add(-NewUserWindow)) {
		stats.NewUsersLast24h++
	}
}

func sortLinks(links []*models.DirectLink) {
	sort.SliceStable(links, func(i, j int) bool {
		if links[i].Position != links[j].Position {
			return links[i].Position < links[j].Position
		}
		return links[i].CreatedAt.Before(links[j].CreatedAt)
	})
}
