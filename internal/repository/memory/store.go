// Package memory is a process-local account store. It serializes every
// mutation behind one mutex, which gives the same per-wallet linearizability
// the Postgres store gets from its conditional updates. It backs local runs
// (STORAGE_DRIVER=memory) and the concurrency tests of the services.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tenana/wallet-service/internal/models"
	pkgerrors "github.com/tenana/wallet-service/pkg/errors"
)

type Store struct {
	mu          sync.Mutex
	now         func() time.Time
	lastCreated time.Time
	wallets     map[uuid.UUID]*models.Wallet
	deposits    map[uuid.UUID]*models.Deposit
	orders      map[uuid.UUID]*models.Order
	products    map[uuid.UUID]*models.Product
	users       map[uuid.UUID]*models.User
	roles       map[uuid.UUID]map[models.Role]bool
}

func NewStore() *Store {
	return &Store{
		now:      time.Now,
		wallets:  map[uuid.UUID]*models.Wallet{},
		deposits: map[uuid.UUID]*models.Deposit{},
		orders:   map[uuid.UUID]*models.Order{},
		products: map[uuid.UUID]*models.Product{},
		users:    map[uuid.UUID]*models.User{},
		roles:    map[uuid.UUID]map[models.Role]bool{},
	}
}

func (s *Store) Ledger() *LedgerRepository { return &LedgerRepository{s: s} }
func (s *Store) Deposits() *DepositRepository { return &DepositRepository{s: s} }
func (s *Store) Orders() *OrderRepository { return &OrderRepository{s: s} }
func (s *Store) Products() *ProductRepository { return &ProductRepository{s: s} }
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }
func (s *Store) Stats() *StatsRepository { return &StatsRepository{s: s} }

// PutProduct adds or replaces a catalog entry.
func (s *Store) PutProduct(p models.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	s.products[p.ID] = &p
}

// tick returns strictly increasing creation timestamps so newest-first
// ordering is stable even when calls land within the clock resolution.
// Callers hold s.mu.
func (s *Store) tick() time.Time {
	t := s.now().UTC()
	if !t.After(s.lastCreated) {
		t = s.lastCreated.Add(time.Microsecond)
	}
	s.lastCreated = t
	return t
}

type LedgerRepository struct{ s *Store }

func (r *LedgerRepository) GetWallet(_ context.Context, userID uuid.UUID) (*models.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.wallets[userID]
	if !ok {
		return nil, pkgerrors.ErrWalletNotFound
	}
	cp := *w
	return &cp, nil
}

func (r *LedgerRepository) Debit(_ context.Context, order *models.Order) (decimal.Decimal, error) {
	if err := validateOrder(order); err != nil {
		return decimal.Zero, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	balance, err := r.s.debit(order.UserID, order.Amount)
	if err != nil {
		return decimal.Zero, err
	}
	r.s.insertOrder(order)
	return balance, nil
}

func (r *LedgerRepository) Checkout(_ context.Context, userID uuid.UUID, orders []*models.Order) (decimal.Decimal, error) {
	if len(orders) == 0 {
		return decimal.Zero, fmt.Errorf("%w: checkout has no lines", pkgerrors.ErrInvalidInput)
	}
	total := decimal.Zero
	for _, o := range orders {
		if err := validateOrder(o); err != nil {
			return decimal.Zero, err
		}
		if o.UserID != userID {
			return decimal.Zero, fmt.Errorf("%w: order belongs to another user", pkgerrors.ErrInvalidInput)
		}
		total = total.Add(o.Amount)
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	balance, err := r.s.debit(userID, total)
	if err != nil {
		return decimal.Zero, err
	}
	for _, o := range orders {
		r.s.insertOrder(o)
	}
	return balance, nil
}

// Credit funds a wallet directly. Used for seeding; services credit only via
// ApproveDeposit and CancelOrder.
func (r *LedgerRepository) Credit(_ context.Context, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: amount must be positive", pkgerrors.ErrInvalidInput)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.credit(userID, amount), nil
}

func (r *LedgerRepository) ApproveDeposit(_ context.Context, depositID uuid.UUID) (*models.Deposit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d, ok := r.s.deposits[depositID]
	if !ok {
		return nil, pkgerrors.ErrDepositNotFound
	}
	if d.Status != models.DepositPending {
		return nil, fmt.Errorf("deposit is %s: %w", d.Status, pkgerrors.ErrAlreadyProcessed)
	}
	d.Status = models.DepositApproved
	d.UpdatedAt = r.s.now().UTC()
	r.s.credit(d.UserID, d.Amount)
	cp := *d
	return &cp, nil
}

func (r *LedgerRepository) CancelOrder(_ context.Context, orderID uuid.UUID) (*models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	o, ok := r.s.orders[orderID]
	if !ok {
		return nil, pkgerrors.ErrOrderNotFound
	}
	switch o.Status {
	case models.OrderCancelled:
		return nil, fmt.Errorf("order is %s: %w", o.Status, pkgerrors.ErrAlreadyProcessed)
	case models.OrderCompleted:
		return nil, fmt.Errorf("order is %s, cannot become %s: %w", o.Status, models.OrderCancelled, pkgerrors.ErrInvalidTransition)
	}
	o.Status = models.OrderCancelled
	r.s.credit(o.UserID, o.Amount)
	cp := *o
	return &cp, nil
}

// debit and credit expect s.mu to be held.
func (s *Store) debit(userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	w, ok := s.wallets[userID]
	if !ok || w.Balance.LessThan(amount) {
		return decimal.Zero, pkgerrors.ErrInsufficientFunds
	}
	w.Balance = w.Balance.Sub(amount)
	w.UpdatedAt = s.now().UTC()
	return w.Balance, nil
}

func (s *Store) credit(userID uuid.UUID, amount decimal.Decimal) decimal.Decimal {
	w, ok := s.wallets[userID]
	if !ok {
		w = &models.Wallet{UserID: userID, Balance: decimal.Zero}
		s.wallets[userID] = w
	}
	w.Balance = w.Balance.Add(amount)
	w.UpdatedAt = s.now().UTC()
	return w.Balance
}

func (s *Store) insertOrder(o *models.Order) {
	o.ID = uuid.New()
	o.CreatedAt = s.tick()
	cp := *o
	s.orders[o.ID] = &cp
}

func validateOrder(o *models.Order) error {
	if o == nil {
		return pkgerrors.ErrNilOrder
	}
	if !o.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", pkgerrors.ErrInvalidInput)
	}
	if o.ProductTitle == "" {
		return fmt.Errorf("%w: product title is required", pkgerrors.ErrInvalidInput)
	}
	if o.Status != models.OrderPending && o.Status != models.OrderCompleted {
		return fmt.Errorf("%w: new order must be pending or completed", pkgerrors.ErrInvalidInput)
	}
	return nil
}

type DepositRepository struct{ s *Store }

func (r *DepositRepository) Create(_ context.Context, d *models.Deposit) error {
	if d == nil {
		return pkgerrors.ErrNilDeposit
	}
	if !d.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", pkgerrors.ErrInvalidInput)
	}
	if !d.PaymentMethod.Valid() {
		return fmt.Errorf("%w: unknown payment method %q", pkgerrors.ErrInvalidInput, d.PaymentMethod)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d.ID = uuid.New()
	d.Status = models.DepositPending
	d.CreatedAt = r.s.tick()
	d.UpdatedAt = d.CreatedAt
	cp := *d
	r.s.deposits[d.ID] = &cp
	return nil
}

func (r *DepositRepository) GetByID(_ context.Context, id uuid.UUID) (*models.Deposit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.deposits[id]
	if !ok {
		return nil, pkgerrors.ErrDepositNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *DepositRepository) Reject(_ context.Context, id uuid.UUID, notes string) (*models.Deposit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.deposits[id]
	if !ok {
		return nil, pkgerrors.ErrDepositNotFound
	}
	if d.Status != models.DepositPending {
		return nil, fmt.Errorf("deposit is %s: %w", d.Status, pkgerrors.ErrAlreadyProcessed)
	}
	d.Status = models.DepositRejected
	d.AdminNotes = notes
	d.UpdatedAt = r.s.now().UTC()
	cp := *d
	return &cp, nil
}

func (r *DepositRepository) ListByUser(_ context.Context, userID uuid.UUID) ([]models.Deposit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.listDeposits(func(d *models.Deposit) bool { return d.UserID == userID }), nil
}

func (r *DepositRepository) ListAll(_ context.Context, status models.DepositStatus) ([]models.Deposit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.listDeposits(func(d *models.Deposit) bool { return status == 0 || d.Status == status }), nil
}

func (s *Store) listDeposits(keep func(*models.Deposit) bool) []models.Deposit {
	out := []models.Deposit{}
	for _, d := range s.deposits {
		if keep(d) {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

type OrderRepository struct{ s *Store }

func (r *OrderRepository) GetByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, pkgerrors.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *OrderRepository) Approve(_ context.Context, id uuid.UUID) (*models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, pkgerrors.ErrOrderNotFound
	}
	switch o.Status {
	case models.OrderCompleted:
		return nil, fmt.Errorf("order is %s: %w", o.Status, pkgerrors.ErrAlreadyProcessed)
	case models.OrderCancelled:
		return nil, fmt.Errorf("order is %s, cannot become %s: %w", o.Status, models.OrderCompleted, pkgerrors.ErrInvalidTransition)
	}
	o.Status = models.OrderCompleted
	cp := *o
	return &cp, nil
}

func (r *OrderRepository) ListByUser(_ context.Context, userID uuid.UUID) ([]models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.listOrders(func(o *models.Order) bool { return o.UserID == userID }), nil
}

func (r *OrderRepository) ListAll(_ context.Context, status models.OrderStatus) ([]models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.listOrders(func(o *models.Order) bool { return status == 0 || o.Status == status }), nil
}

func (s *Store) listOrders(keep func(*models.Order) bool) []models.Order {
	out := []models.Order{}
	for _, o := range s.orders {
		if keep(o) {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

type ProductRepository struct{ s *Store }

func (r *ProductRepository) GetByID(_ context.Context, id uuid.UUID) (*models.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return nil, pkgerrors.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

type UserRepository struct{ s *Store }

func (r *UserRepository) Create(_ context.Context, user *models.User) error {
	if user == nil {
		return pkgerrors.ErrNilUser
	}
	if user.Email == "" || user.Username == "" || user.PasswordHash == "" {
		return fmt.Errorf("%w: email, username and password_hash are required", pkgerrors.ErrInvalidInput)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, user.Email) || u.Username == user.Username {
			return pkgerrors.ErrUsernameExists
		}
	}
	user.ID = uuid.New()
	user.CreatedAt = r.s.now().UTC()
	cp := *user
	r.s.users[user.ID] = &cp
	return nil
}

func (r *UserRepository) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, pkgerrors.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, pkgerrors.ErrUserNotFound
}

func (r *UserRepository) HasRole(_ context.Context, userID uuid.UUID, role models.Role) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.roles[userID][role], nil
}

func (r *UserRepository) AssignRole(_ context.Context, userID uuid.UUID, role models.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.roles[userID] == nil {
		r.s.roles[userID] = map[models.Role]bool{}
	}
	r.s.roles[userID][role] = true
	return nil
}

type StatsRepository struct{ s *Store }

func (r *StatsRepository) Overview(_ context.Context) (*models.Overview, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	weekAgo := r.s.now().Add(-7 * 24 * time.Hour)
	o := &models.Overview{
		Users:              int64(len(r.s.users)),
		Products:           int64(len(r.s.products)),
		Orders:             int64(len(r.s.orders)),
		TotalWalletBalance: decimal.Zero,
	}
	for _, ord := range r.s.orders {
		if ord.Status == models.OrderPending {
			o.PendingOrders++
		}
	}
	for _, d := range r.s.deposits {
		switch {
		case d.Status == models.DepositPending:
			o.PendingDeposits++
		case d.Status == models.DepositApproved && d.CreatedAt.After(weekAgo):
			o.ApprovedDepositsWeek++
		}
	}
	for _, w := range r.s.wallets {
		o.TotalWalletBalance = o.TotalWalletBalance.Add(w.Balance)
	}
	return o, nil
}
