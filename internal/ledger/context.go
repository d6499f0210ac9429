package ledger

import (
	"context"
	"time"
)

// MaxCallDepth bounds nesting through receiver hooks.
const MaxCallDepth = 8

// Call describes one invocation of a program entry point.
type Call struct {
	To      Address  `json:"to"`
	Caller  Address  `json:"caller"`
	Entry   string   `json:"entry"`
	Payment *Payment `json:"payment,omitempty"`
}

// Entry is the body of a program entry point or view.
type Entry func(*CallContext) error

// StateReader resolves read-only views of other programs' storage.
type StateReader interface {
	// At returns program's key space, or ErrUnknownProgram, or
	// ErrNotCoLocated when program lives on a different shard.
	At(program Address) (Reader, error)
}

// ReceiverHook runs when value is transferred to the address it was
// registered for. It may re-enter programs through inv.
type ReceiverHook func(inv Invoker, from Address, p Payment) error

// Invoker lets a receiver hook make nested calls as its own address.
type Invoker interface {
	Self() Address
	Invoke(to Address, entry string, payment *Payment, fn Entry) error
}

// CallContext is everything an entry point may observe or do.
type CallContext struct {
	ctx     context.Context
	l       *Ledger
	tx      *Tx
	call    Call
	dep     Deployment
	now     time.Time
	depth   int
	events  *[]Event
	storage *Storage
}

func (c *CallContext) Context() context.Context { return c.ctx }
func (c *CallContext) Caller() Address          { return c.call.Caller }
func (c *CallContext) Self() Address            { return c.call.To }
func (c *CallContext) Deployer() Address        { return c.dep.Deployer }
func (c *CallContext) Now() time.Time           { return c.now }
func (c *CallContext) Depth() int               { return c.depth }
func (c *CallContext) Storage() *Storage        { return c.storage }

// Payment returns the value attached to the call, if any.
func (c *CallContext) Payment() (Payment, bool) {
	if c.call.Payment == nil || c.call.Payment.IsZero() {
		return Payment{}, false
	}
	return *c.call.Payment, true
}

// Reader returns the cross-program state reader for this call.
func (c *CallContext) Reader() StateReader {
	return shardReader{l: c.l, tx: c.tx, shard: c.dep.Shard}
}

// Balance reads any account's balance inside the current transaction.
func (c *CallContext) Balance(owner Address, token TokenID, nonce uint64) (Payment, error) {
	amt, err := balanceOf(c.tx, owner, token, nonce)
	if err != nil {
		return Payment{}, err
	}
	return Payment{Token: token, Nonce: nonce, Amount: amt}, nil
}

// Transfer moves p from this program to to, running to's receiver hook if
// one is registered.
func (c *CallContext) Transfer(to Address, p Payment) error {
	if c.tx.readOnly {
		return ErrReadOnly
	}
	if err := move(c.tx, c.Self(), to, p); err != nil {
		return err
	}
	hook := c.l.receiver(to)
	if hook == nil {
		return nil
	}
	return hook(&invoker{parent: c, self: to}, c.Self(), p)
}

// Emit records an event. Events of a reverted frame are dropped.
func (c *CallContext) Emit(name string, data any) {
	*c.events = append(*c.events, Event{
		Program:   c.Self(),
		Name:      name,
		Data:      data,
		Timestamp: c.now,
	})
}

type invoker struct {
	parent *CallContext
	self   Address
}

func (i *invoker) Self() Address { return i.self }

func (i *invoker) Invoke(to Address, entry string, payment *Payment, fn Entry) error {
	p := i.parent
	call := Call{To: to, Caller: i.self, Entry: entry, Payment: payment}
	return p.l.run(p.ctx, p.tx, call, fn, p.now, p.depth+1, p.events)
}

type shardReader struct {
	l     *Ledger
	tx    *Tx
	shard uint32
}

func (r shardReader) At(program Address) (Reader, error) {
	dep, ok := r.l.deployments[program]
	if !ok {
		return nil, ErrUnknownProgram
	}
	if dep.Shard != r.shard {
		return nil, ErrNotCoLocated
	}
	return view{r: r.tx, prefix: programPrefix(program)}, nil
}

// RequireDeployer fails unless the caller deployed the running program.
func (c *CallContext) RequireDeployer() error {
	if c.Caller() != c.dep.Deployer {
		return ErrNotDeployer
	}
	return nil
}
