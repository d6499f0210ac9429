package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentoven/agentmarket/internal/ledger"
	"github.com/agentoven/agentmarket/internal/store"
)

var counter = ledger.NewMapper[uint64]("counter")

var errBoom = ledger.NewError(ledger.KindPrecondition, "boom")

func newTestLedger(t *testing.T) (*ledger.Ledger, *ledger.ManualClock) {
	t.Helper()
	clock := ledger.NewManualClock(time.Unix(1_700_000_000, 0).UTC())
	st := store.NewMemoryStore("")
	t.Cleanup(func() { st.Close() })
	return ledger.New(st, ledger.WithClock(clock)), clock
}

func increment(c *ledger.CallContext) error {
	n, _, err := counter.Get(c.Storage())
	if err != nil {
		return err
	}
	c.Emit("incremented", n+1)
	return counter.Set(c.Storage(), n+1)
}

func readCounter(t *testing.T, l *ledger.Ledger, program ledger.Address) uint64 {
	t.Helper()
	var n uint64
	err := l.View(context.Background(), program, func(c *ledger.CallContext) error {
		var err error
		n, _, err = counter.Get(c.Storage())
		return err
	})
	require.NoError(t, err)
	return n
}

func TestExecuteCommitsAndPublishesEvents(t *testing.T) {
	l, _ := newTestLedger(t)
	deployer := ledger.AddressFromSeed("deployer")
	prog, err := l.Deploy(deployer, "counter", 0)
	require.NoError(t, err)

	rec, err := l.Execute(context.Background(), ledger.Call{To: prog, Caller: deployer, Entry: "inc"}, increment)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusSuccess, rec.Status)
	require.Len(t, rec.Events, 1)
	require.Equal(t, "incremented", rec.Events[0].Name)
	require.NotEmpty(t, rec.ID)
	require.Equal(t, uint64(1), readCounter(t, l, prog))
}

func TestExecuteRevertsOnError(t *testing.T) {
	l, _ := newTestLedger(t)
	deployer := ledger.AddressFromSeed("deployer")
	prog, err := l.Deploy(deployer, "counter", 0)
	require.NoError(t, err)

	failing := func(c *ledger.CallContext) error {
		if err := increment(c); err != nil {
			return err
		}
		return errBoom
	}
	rec, err := l.Execute(context.Background(), ledger.Call{To: prog, Caller: deployer, Entry: "inc"}, failing)
	require.ErrorIs(t, err, errBoom)
	require.Equal(t, ledger.StatusReverted, rec.Status)
	require.Equal(t, "precondition", rec.ErrorKind)
	require.Empty(t, rec.Events)
	require.Equal(t, uint64(0), readCounter(t, l, prog))
}

func TestSetIfAbsentKeepsExistingValue(t *testing.T) {
	l, _ := newTestLedger(t)
	deployer := ledger.AddressFromSeed("deployer")
	prog, err := l.Deploy(deployer, "counter", 0)
	require.NoError(t, err)

	var wrote []bool
	setDefault := func(c *ledger.CallContext) error {
		ok, err := counter.SetIfAbsent(c.Storage(), 7)
		wrote = append(wrote, ok)
		return err
	}
	ctx := context.Background()
	_, err = l.Execute(ctx, ledger.Call{To: prog, Caller: deployer, Entry: "init"}, setDefault)
	require.NoError(t, err)
	_, err = l.Execute(ctx, ledger.Call{To: prog, Caller: deployer, Entry: "inc"}, increment)
	require.NoError(t, err)
	_, err = l.Execute(ctx, ledger.Call{To: prog, Caller: deployer, Entry: "init"}, setDefault)
	require.NoError(t, err)

	require.Equal(t, []bool{true, false}, wrote)
	require.Equal(t, uint64(8), readCounter(t, l, prog))
}

func TestDeployTwiceFails(t *testing.T) {
	l, _ := newTestLedger(t)
	deployer := ledger.AddressFromSeed("deployer")
	_, err := l.Deploy(deployer, "counter", 0)
	require.NoError(t, err)
	_, err = l.Deploy(deployer, "counter", 0)
	require.ErrorIs(t, err, ledger.ErrProgramExists)
}

func TestPaymentMovesToProgram(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	alice := ledger.AddressFromSeed("alice")
	prog, err := l.Deploy(alice, "sink", 0)
	require.NoError(t, err)
	require.NoError(t, l.Mint(ctx, alice, ledger.Native(100)))

	pay := ledger.Native(40)
	_, err = l.Execute(ctx, ledger.Call{To: prog, Caller: alice, Entry: "pay", Payment: &pay}, func(c *ledger.CallContext) error {
		p, ok := c.Payment()
		require.True(t, ok)
		require.Equal(t, uint64(40), p.Amount.Uint64())
		return nil
	})
	require.NoError(t, err)

	bal, err := l.Balance(alice, ledger.NativeToken, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(60), bal.Amount.Uint64())
	bal, err = l.Balance(prog, ledger.NativeToken, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(40), bal.Amount.Uint64())
}

func TestPaymentWithoutFundsReverts(t *testing.T) {
	l, _ := newTestLedger(t)
	alice := ledger.AddressFromSeed("alice")
	prog, err := l.Deploy(alice, "sink", 0)
	require.NoError(t, err)

	pay := ledger.Native(1)
	_, err = l.Execute(context.Background(), ledger.Call{To: prog, Caller: alice, Entry: "pay", Payment: &pay}, func(*ledger.CallContext) error {
		t.Fatal("entry must not run")
		return nil
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	require.Equal(t, ledger.KindPayment, ledger.KindOf(err))
}

func TestCrossProgramReadRequiresSameShard(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	d := ledger.AddressFromSeed("deployer")
	a, err := l.Deploy(d, "a", 0)
	require.NoError(t, err)
	b, err := l.Deploy(d, "b", 0)
	require.NoError(t, err)
	far, err := l.Deploy(d, "far", 1)
	require.NoError(t, err)

	_, err = l.Execute(ctx, ledger.Call{To: a, Caller: d, Entry: "inc"}, increment)
	require.NoError(t, err)

	err = l.View(ctx, b, func(c *ledger.CallContext) error {
		r, err := c.Reader().At(a)
		if err != nil {
			return err
		}
		n, ok, err := counter.Get(r)
		require.True(t, ok)
		require.Equal(t, uint64(1), n)
		return err
	})
	require.NoError(t, err)

	err = l.View(ctx, far, func(c *ledger.CallContext) error {
		_, err := c.Reader().At(a)
		return err
	})
	require.ErrorIs(t, err, ledger.ErrNotCoLocated)

	err = l.View(ctx, b, func(c *ledger.CallContext) error {
		_, err := c.Reader().At(ledger.AddressFromSeed("nobody"))
		return err
	})
	require.ErrorIs(t, err, ledger.ErrUnknownProgram)
}

func TestReceiverHookReentersAndFailedInnerFrameReverts(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	d := ledger.AddressFromSeed("deployer")
	vault, err := l.Deploy(d, "vault", 0)
	require.NoError(t, err)
	bob := ledger.AddressFromSeed("bob")
	require.NoError(t, l.Mint(ctx, vault, ledger.Native(10)))

	var innerErr error
	l.RegisterReceiver(bob, func(inv ledger.Invoker, from ledger.Address, p ledger.Payment) error {
		require.Equal(t, vault, from)
		require.NoError(t, inv.Invoke(vault, "inc", nil, increment))
		innerErr = inv.Invoke(vault, "inc", nil, func(c *ledger.CallContext) error {
			if err := increment(c); err != nil {
				return err
			}
			return errBoom
		})
		return nil
	})

	rec, err := l.Execute(ctx, ledger.Call{To: vault, Caller: d, Entry: "payout"}, func(c *ledger.CallContext) error {
		return c.Transfer(bob, ledger.Native(10))
	})
	require.NoError(t, err)
	require.ErrorIs(t, innerErr, errBoom)
	require.Len(t, rec.Events, 1)
	require.Equal(t, uint64(1), readCounter(t, l, vault))

	bal, err := l.Balance(bob, ledger.NativeToken, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(10), bal.Amount.Uint64())
}

func TestCallDepthIsBounded(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	d := ledger.AddressFromSeed("deployer")
	ping, err := l.Deploy(d, "ping", 0)
	require.NoError(t, err)
	echo := ledger.AddressFromSeed("echo")
	require.NoError(t, l.Mint(ctx, ping, ledger.Native(1)))
	require.NoError(t, l.Mint(ctx, echo, ledger.Native(1)))

	var bounce ledger.Entry
	bounce = func(c *ledger.CallContext) error {
		return c.Transfer(echo, ledger.Native(1))
	}
	l.RegisterReceiver(echo, func(inv ledger.Invoker, _ ledger.Address, _ ledger.Payment) error {
		back := ledger.Native(1)
		return inv.Invoke(ping, "bounce", &back, bounce)
	})

	_, err = l.Execute(ctx, ledger.Call{To: ping, Caller: d, Entry: "bounce"}, bounce)
	require.True(t, errors.Is(err, ledger.ErrCallDepth))
}

func TestSinkReceivesCommittedEventsOnly(t *testing.T) {
	sink := &recordingSink{}
	st := store.NewMemoryStore("")
	t.Cleanup(func() { st.Close() })
	l := ledger.New(st, ledger.WithSink(sink))
	d := ledger.AddressFromSeed("deployer")
	prog, err := l.Deploy(d, "counter", 0)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = l.Execute(ctx, ledger.Call{To: prog, Caller: d, Entry: "inc"}, increment)
	require.NoError(t, err)
	_, err = l.Execute(ctx, ledger.Call{To: prog, Caller: d, Entry: "inc"}, func(c *ledger.CallContext) error {
		c.Emit("never", nil)
		return errBoom
	})
	require.Error(t, err)
	require.Len(t, sink.events, 1)
	require.Equal(t, "incremented", sink.events[0].Name)
}

type recordingSink struct {
	events []ledger.Event
}

func (s *recordingSink) Publish(_ context.Context, events []ledger.Event) {
	s.events = append(s.events, events...)
}
