package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentoven/agentmarket/internal/store"
)

var tracer = otel.Tracer("agentmarket/ledger")

// Deployment is a program known to the ledger.
type Deployment struct {
	Address  Address `json:"address"`
	Name     string  `json:"name"`
	Shard    uint32  `json:"shard"`
	Deployer Address `json:"deployer"`
}

// Event is a record emitted by a committed call.
type Event struct {
	Program   Address   `json:"program"`
	Name      string    `json:"name"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Receipt statuses.
const (
	StatusSuccess  = "success"
	StatusReverted = "reverted"
)

// Receipt is the outcome of one Execute.
type Receipt struct {
	ID        string    `json:"id"`
	Program   Address   `json:"program"`
	Entry     string    `json:"entry"`
	Caller    Address   `json:"caller"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	ErrorKind string    `json:"error_kind,omitempty"`
	Events    []Event   `json:"events"`
	Timestamp time.Time `json:"timestamp"`
}

// EventSink receives the events of every committed call, in order.
type EventSink interface {
	Publish(ctx context.Context, events []Event)
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the system clock.
func WithClock(c Clock) Option {
	return func(l *Ledger) { l.clock = c }
}

// WithSink adds an event sink.
func WithSink(s EventSink) Option {
	return func(l *Ledger) { l.sinks = append(l.sinks, s) }
}

// Ledger executes calls one at a time against a Store.
type Ledger struct {
	mu          sync.RWMutex
	store       store.Store
	clock       Clock
	deployments map[Address]Deployment
	receivers   map[Address]ReceiverHook
	sinks       []EventSink
	publishMu   sync.Mutex
}

// New creates a ledger over st.
func New(st store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:       st,
		clock:       SystemClock{},
		deployments: make(map[Address]Deployment),
		receivers:   make(map[Address]ReceiverHook),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Clock returns the ledger's time source.
func (l *Ledger) Clock() Clock { return l.clock }

// AddSink registers an event sink after construction.
func (l *Ledger) AddSink(s EventSink) {
	l.mu.Lock()
	l.sinks = append(l.sinks, s)
	l.mu.Unlock()
}

// Deploy records a program named name owned by deployer on shard and returns
// its derived address. Deploying the same name twice from the same
// deployer fails.
func (l *Ledger) Deploy(deployer Address, name string, shard uint32) (Address, error) {
	addr := DeriveAddress(deployer, name)
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.deployments[addr]; exists {
		return Address{}, fmt.Errorf("%w: %s", ErrProgramExists, name)
	}
	l.deployments[addr] = Deployment{Address: addr, Name: name, Shard: shard, Deployer: deployer}
	log.Info().
		Str("program", name).
		Str("address", addr.Hex()).
		Uint32("shard", shard).
		Msg("📦 Program deployed")
	return addr, nil
}

// Deployment looks up a deployed program.
func (l *Ledger) Deployment(addr Address) (Deployment, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	d, ok := l.deployments[addr]
	return d, ok
}

// Deployments lists every deployed program ordered by name.
func (l *Ledger) Deployments() []Deployment {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Deployment, 0, len(l.deployments))
	for _, d := range l.deployments {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RegisterReceiver installs hook for transfers into addr. A nil hook
// removes it.
func (l *Ledger) RegisterReceiver(addr Address, hook ReceiverHook) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if hook == nil {
		delete(l.receivers, addr)
		return
	}
	l.receivers[addr] = hook
}

// receiver must be called with l.mu held.
func (l *Ledger) receiver(addr Address) ReceiverHook {
	return l.receivers[addr]
}

// Execute runs fn as call atomically. The returned receipt is always
// non-nil; err is the reason the call reverted.
func (l *Ledger) Execute(ctx context.Context, call Call, fn Entry) (*Receipt, error) {
	ctx, span := tracer.Start(ctx, "ledger.execute", trace.WithAttributes(
		attribute.String("ledger.program", call.To.Hex()),
		attribute.String("ledger.entry", call.Entry),
		attribute.String("ledger.caller", call.Caller.Hex()),
	))
	defer span.End()

	l.mu.Lock()
	now := l.clock.Now()
	receipt := &Receipt{
		ID:        uuid.New().String(),
		Program:   call.To,
		Entry:     call.Entry,
		Caller:    call.Caller,
		Timestamp: now,
	}

	var events []Event
	tx := newTx(l.store)
	err := l.run(ctx, tx, call, fn, now, 0, &events)
	if err == nil {
		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("commit: %w", cerr)
		}
	}
	sinks := l.sinks
	// Taken before the execution lock is released so sinks see commit order.
	l.publishMu.Lock()
	defer l.publishMu.Unlock()
	l.mu.Unlock()

	if err != nil {
		receipt.Status = StatusReverted
		receipt.Error = err.Error()
		receipt.ErrorKind = KindOf(err).String()
		receipt.Events = []Event{}
		span.SetStatus(codes.Error, err.Error())
		log.Warn().
			Str("program", call.To.Short()).
			Str("entry", call.Entry).
			Str("caller", call.Caller.Short()).
			Str("receipt", receipt.ID).
			Err(err).
			Msg("Call reverted")
		return receipt, err
	}

	receipt.Status = StatusSuccess
	receipt.Events = events
	log.Debug().
		Str("program", call.To.Short()).
		Str("entry", call.Entry).
		Str("caller", call.Caller.Short()).
		Str("receipt", receipt.ID).
		Int("events", len(events)).
		Msg("Call committed")

	if len(events) > 0 {
		for _, s := range sinks {
			s.Publish(ctx, events)
		}
	}
	return receipt, nil
}

// View runs fn against committed state without persisting anything.
func (l *Ledger) View(ctx context.Context, program Address, fn Entry) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	dep, ok := l.deployments[program]
	if !ok {
		return ErrUnknownProgram
	}
	tx := newTx(l.store)
	tx.readOnly = true
	var events []Event
	cc := &CallContext{
		ctx:     ctx,
		l:       l,
		tx:      tx,
		call:    Call{To: program, Entry: "view"},
		dep:     dep,
		now:     l.clock.Now(),
		events:  &events,
		storage: newStorage(tx, program),
	}
	return fn(cc)
}

// run executes one call frame inside tx. On failure every write and event
// made by the frame is undone.
func (l *Ledger) run(ctx context.Context, tx *Tx, call Call, fn Entry, now time.Time, depth int, events *[]Event) error {
	if depth > MaxCallDepth {
		return ErrCallDepth
	}
	dep, ok := l.deployments[call.To]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProgram, call.To.Hex())
	}

	snap := tx.Snapshot()
	mark := len(*events)

	err := func() error {
		if call.Payment != nil {
			if err := move(tx, call.Caller, call.To, *call.Payment); err != nil {
				return err
			}
		}
		cc := &CallContext{
			ctx:     ctx,
			l:       l,
			tx:      tx,
			call:    call,
			dep:     dep,
			now:     now,
			depth:   depth,
			events:  events,
			storage: newStorage(tx, call.To),
		}
		return fn(cc)
	}()
	if err != nil {
		tx.RevertToSnapshot(snap)
		*events = (*events)[:mark]
		return err
	}
	return nil
}

// Mint credits p to owner outside of any program. It backs genesis
// allocations and the dev faucet.
func (l *Ledger) Mint(ctx context.Context, owner Address, p Payment) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	tx := newTx(l.store)
	if err := credit(tx, owner, p); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mint: %w", err)
	}
	log.Debug().Str("owner", owner.Short()).Str("amount", p.String()).Msg("Minted")
	return nil
}

// Balance reads a committed balance.
func (l *Ledger) Balance(owner Address, token TokenID, nonce uint64) (Payment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	amt, err := balanceOf(newTx(l.store), owner, token, nonce)
	if err != nil {
		return Payment{}, err
	}
	return Payment{Token: token, Nonce: nonce, Amount: amt}, nil
}

// Holdings lists every non-zero committed balance of owner.
func (l *Ledger) Holdings(owner Address) ([]Holding, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return holdingsOf(newTx(l.store), owner)
}
