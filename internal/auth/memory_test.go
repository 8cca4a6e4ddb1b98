package auth

import (
	"context"
	"maps"
	"time"

	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

type memoryRepo struct {
	accounts       map[string]Account // by username
	defaultTenants map[string]string
	memberships    map[string]map[string]bool
	tokens         map[string]RecoveryToken // by token
	ops            []string
	// afterLock and afterInvalidate let tests interleave a competing request.
	afterLock       func()
	afterInvalidate func()
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		accounts:       map[string]Account{},
		defaultTenants: map[string]string{},
		memberships:    map[string]map[string]bool{},
		tokens:         map[string]RecoveryToken{},
	}
}

func (r *memoryRepo) addUser(acc Account, defaultTenant string, tenants ...string) {
	r.accounts[acc.Username] = acc
	if defaultTenant != "" {
		r.defaultTenants[acc.ID] = defaultTenant
		tenants = append(tenants, defaultTenant)
	}
	set := map[string]bool{}
	for _, t := range tenants {
		set[t] = true
	}
	r.memberships[acc.ID] = set
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	accounts := maps.Clone(r.accounts)
	tokens := maps.Clone(r.tokens)
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.accounts, r.tokens = accounts, tokens
		return err
	}
	return nil
}

func (r *memoryRepo) FindAccountByUsername(ctx context.Context, username string) (Account, error) {
	acc, ok := r.accounts[username]
	if !ok {
		return Account{}, shared.ErrNotFound
	}
	return acc, nil
}

func (r *memoryRepo) FindDefaultTenant(ctx context.Context, userID string) (string, error) {
	tenantID, ok := r.defaultTenants[userID]
	if !ok {
		return "", shared.ErrNotFound
	}
	return tenantID, nil
}

func (r *memoryRepo) HasTenant(ctx context.Context, userID, tenantID string) (bool, error) {
	return r.memberships[userID][tenantID], nil
}

func (t *memoryTx) LockAccount(ctx context.Context, userID string) error {
	t.repo.ops = append(t.repo.ops, "lock")
	found := false
	for _, acc := range t.repo.accounts {
		if acc.ID == userID {
			found = true
		}
	}
	if !found {
		return shared.ErrNotFound
	}
	if t.repo.afterLock != nil {
		t.repo.afterLock()
	}
	return nil
}

func (t *memoryTx) InvalidateUserTokens(ctx context.Context, userID string) error {
	t.repo.ops = append(t.repo.ops, "invalidate")
	defer func() {
		if t.repo.afterInvalidate != nil {
			t.repo.afterInvalidate()
		}
	}()
	for key, tok := range t.repo.tokens {
		if tok.UserID == userID && !tok.IsUsed {
			tok.IsUsed = true
			tok.UpdatedAt = time.Now()
			t.repo.tokens[key] = tok
		}
	}
	return nil
}

func (t *memoryTx) CreateRecoveryToken(ctx context.Context, token RecoveryToken) error {
	t.repo.ops = append(t.repo.ops, "create")
	for _, tok := range t.repo.tokens {
		if tok.UserID == token.UserID && !tok.IsUsed {
			return shared.Conflict(msgRecoveryInProgress)
		}
	}
	t.repo.tokens[token.Token] = token
	return nil
}

func (t *memoryTx) FindRecoveryTokenForUpdate(ctx context.Context, token string) (RecoveryToken, error) {
	tok, ok := t.repo.tokens[token]
	if !ok {
		return RecoveryToken{}, shared.ErrNotFound
	}
	return tok, nil
}

func (t *memoryTx) MarkTokenUsed(ctx context.Context, id string) error {
	for key, tok := range t.repo.tokens {
		if tok.ID == id {
			tok.IsUsed = true
			t.repo.tokens[key] = tok
		}
	}
	return nil
}

func (t *memoryTx) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	for key, acc := range t.repo.accounts {
		if acc.ID == userID {
			acc.PasswordHash = passwordHash
			t.repo.accounts[key] = acc
			return nil
		}
	}
	return shared.ErrNotFound
}

// plainHasher keeps tests fast; bcrypt has its own test.
type plainHasher struct{}

func (plainHasher) Hash(p string) (string, error) { return "hashed:" + p, nil }
func (plainHasher) Compare(p, hashed string) bool { return hashed == "hashed:"+p }

type capturePublisher struct {
	events []PasswordRecoveryRequested
	err    error
}

func (p *capturePublisher) PublishPasswordRecovery(ctx context.Context, event PasswordRecoveryRequested) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

type countingRecorder struct {
	counts map[string]int
}

func (r *countingRecorder) AuthEvent(event, outcome string) {
	if r.counts == nil {
		r.counts = map[string]int{}
	}
	r.counts[event+":"+outcome]++
}
