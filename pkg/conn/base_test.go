package conn_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/farsight-games/gamewire/pkg/conn"
	"github.com/farsight-games/gamewire/pkg/message"
)

type nopDispatcher struct{}

func (nopDispatcher) DispatchFirst(message.Message, conn.Conn) {}
func (nopDispatcher) Dispatch(message.Message, conn.Conn)      {}

func TestBase_LifecycleHappyPath(t *testing.T) {
	var b conn.Base

	if got := b.State(); got != conn.StateNew {
		t.Fatalf("initial State() = %v, want NEW", got)
	}
	if err := b.MarkConnected(); err != nil {
		t.Fatalf("MarkConnected() error = %v", err)
	}
	if b.ConnectedAt().IsZero() {
		t.Error("ConnectedAt() is zero after MarkConnected")
	}
	if err := b.BeginProcessing(nopDispatcher{}); err != nil {
		t.Fatalf("BeginProcessing() error = %v", err)
	}
	if got := b.State(); got != conn.StateProcessing {
		t.Errorf("State() = %v, want PROCESSING", got)
	}
	if !b.BeginDisconnect() {
		t.Fatal("BeginDisconnect() = false, want true for first caller")
	}
	b.FinishDisconnect()
	if got := b.State(); got != conn.StateClosed {
		t.Errorf("State() = %v, want CLOSED", got)
	}
	if !b.InboundEOF() || !b.OutboundEOF() {
		t.Error("EOF flags not both set after FinishDisconnect")
	}
}

func TestBase_TransitionErrors(t *testing.T) {
	t.Run("processing before connect", func(t *testing.T) {
		var b conn.Base
		if err := b.BeginProcessing(nopDispatcher{}); !errors.Is(err, conn.ErrNotConnected) {
			t.Errorf("BeginProcessing() error = %v, want ErrNotConnected", err)
		}
	})

	t.Run("double connect", func(t *testing.T) {
		var b conn.Base
		if err := b.MarkConnected(); err != nil {
			t.Fatalf("MarkConnected() error = %v", err)
		}
		if err := b.MarkConnected(); !errors.Is(err, conn.ErrAlreadyConnected) {
			t.Errorf("second MarkConnected() error = %v, want ErrAlreadyConnected", err)
		}
	})

	t.Run("double processing", func(t *testing.T) {
		var b conn.Base
		b.MarkConnected()
		if err := b.BeginProcessing(nopDispatcher{}); err != nil {
			t.Fatalf("BeginProcessing() error = %v", err)
		}
		if err := b.BeginProcessing(nopDispatcher{}); !errors.Is(err, conn.ErrAlreadyProcessing) {
			t.Errorf("second BeginProcessing() error = %v, want ErrAlreadyProcessing", err)
		}
	})

	t.Run("connect after close", func(t *testing.T) {
		var b conn.Base
		b.BeginDisconnect()
		b.FinishDisconnect()
		if err := b.MarkConnected(); !errors.Is(err, conn.ErrClosed) {
			t.Errorf("MarkConnected() after close error = %v, want ErrClosed", err)
		}
	})
}

func TestBase_BeginDisconnectSingleWinner(t *testing.T) {
	var b conn.Base
	b.MarkConnected()

	const callers = 16
	var wg sync.WaitGroup
	wins := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wins <- b.BeginDisconnect()
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for w := range wins {
		if w {
			won++
		}
	}
	if won != 1 {
		t.Errorf("BeginDisconnect() won by %d callers, want exactly 1", won)
	}
}

func TestBase_OnCloseRunsOnce(t *testing.T) {
	var b conn.Base
	calls := 0
	b.SetOnClose(func() { calls++ })

	b.BeginDisconnect()
	b.FinishDisconnect()
	b.FinishDisconnect()

	if calls != 1 {
		t.Errorf("onClose ran %d times, want 1", calls)
	}
}

func TestBase_RecordErrorKeepsFirst(t *testing.T) {
	var b conn.Base
	first := errors.New("first failure")
	b.RecordError(nil)
	b.RecordError(first)
	b.RecordError(errors.New("second failure"))

	if got := b.Err(); got != first {
		t.Errorf("Err() = %v, want first recorded error", got)
	}
}

func TestBase_CheckSendable(t *testing.T) {
	var b conn.Base
	if err := b.CheckSendable(); !errors.Is(err, conn.ErrNotConnected) {
		t.Errorf("CheckSendable() on NEW error = %v, want ErrNotConnected", err)
	}

	b.MarkConnected()
	if err := b.CheckSendable(); err != nil {
		t.Errorf("CheckSendable() on CONNECTED error = %v, want nil", err)
	}

	b.MarkOutboundEOF()
	if err := b.CheckSendable(); !errors.Is(err, conn.ErrClosed) {
		t.Errorf("CheckSendable() at outbound EOF error = %v, want ErrClosed", err)
	}
}

func TestBase_HandshakeAttributes(t *testing.T) {
	var b conn.Base
	b.SetVersion(7)
	b.SetLocale("fr_FR")
	b.SetAppData("session-42")

	if got := b.Version(); got != 7 {
		t.Errorf("Version() = %d, want 7", got)
	}
	if got := b.Locale(); got != "fr_FR" {
		t.Errorf("Locale() = %q, want %q", got, "fr_FR")
	}
	if got := b.AppData(); got != "session-42" {
		t.Errorf("AppData() = %v, want session-42", got)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state conn.State
		want  string
	}{
		{conn.StateNew, "NEW"},
		{conn.StateConnected, "CONNECTED"},
		{conn.StateProcessing, "PROCESSING"},
		{conn.StateDisconnecting, "DISCONNECTING"},
		{conn.StateClosed, "CLOSED"},
		{conn.State(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.state), got, tt.want)
		}
	}
}
