package chat_test

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/farsight-games/gamewire/internal/chat"
	"github.com/farsight-games/gamewire/pkg/conn"
	"github.com/farsight-games/gamewire/pkg/conn/mem"
	"github.com/farsight-games/gamewire/pkg/message"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.DebugLevel)
	log.SetOutput(io.Discard)
	return log
}

type chanDispatcher struct {
	first chan message.Message
	rest  chan message.Message
}

func newChanDispatcher() *chanDispatcher {
	return &chanDispatcher{
		first: make(chan message.Message, 16),
		rest:  make(chan message.Message, 64),
	}
}

func (d *chanDispatcher) DispatchFirst(m message.Message, _ conn.Conn) { d.first <- m }
func (d *chanDispatcher) Dispatch(m message.Message, _ conn.Conn)     { d.rest <- m }

func waitMsg(t *testing.T, ch <-chan message.Message) message.Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a dispatched message")
		return nil
	}
}

// roomHarness runs a room behind a mem listener and keeps accepting.
func roomHarness(t *testing.T) (*mem.Registry, *chat.Room) {
	t.Helper()
	reg := mem.NewRegistry(testLogger())
	room := chat.NewRoom(testLogger())
	l, err := reg.Listen("lobby", mem.ListenerOpts{Dispatcher: room})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for {
			if _, err := l.Accept(ctx); err != nil {
				return
			}
		}
	}()
	t.Cleanup(func() {
		cancel()
		l.ForceClose()
	})
	return reg, room
}

func joinRoom(t *testing.T, reg *mem.Registry, name string) (*mem.Conn, *chanDispatcher) {
	t.Helper()
	c, err := reg.Dial(context.Background(), "lobby")
	require.NoError(t, err)
	_, err = c.Connect()
	require.NoError(t, err)
	d := newChanDispatcher()
	require.NoError(t, c.StartMessageProcessing(d))
	require.NoError(t, c.Send(&chat.Hello{Name: name}))
	return c, d
}

func TestRoomRelaysLines(t *testing.T) {
	reg, room := roomHarness(t)

	_, aliceDisp := joinRoom(t, reg, "alice")
	require.Eventually(t, func() bool { return room.MemberCount() == 1 },
		2*time.Second, 5*time.Millisecond)

	// Bob joining is announced to Alice, and it is her first inbound
	// message.
	bob, bobDisp := joinRoom(t, reg, "bob")
	joined := waitMsg(t, aliceDisp.first)
	require.Equal(t, &chat.Chat{Name: "room", Text: "bob joined"}, joined)
	require.Eventually(t, func() bool { return room.MemberCount() == 2 },
		2*time.Second, 5*time.Millisecond)

	// Bob's line reaches Alice attributed to him, and not Bob himself.
	require.NoError(t, bob.Send(&chat.Say{Text: "good evening"}))
	line := waitMsg(t, aliceDisp.rest)
	require.Equal(t, &chat.Chat{Name: "bob", Text: "good evening"}, line)
	require.Empty(t, bobDisp.first)
}

func TestRoomDropsClientsWithoutHello(t *testing.T) {
	reg, room := roomHarness(t)

	rude, err := reg.Dial(context.Background(), "lobby")
	require.NoError(t, err)
	_, err = rude.Connect()
	require.NoError(t, err)
	require.NoError(t, rude.StartMessageProcessing(newChanDispatcher()))

	require.NoError(t, rude.Send(&chat.Say{Text: "no introduction"}))
	require.Eventually(t, func() bool {
		return rude.State() == conn.StateClosed
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, 0, room.MemberCount())
}

func TestRoomAnnouncesLeave(t *testing.T) {
	reg, room := roomHarness(t)

	alice, aliceDisp := joinRoom(t, reg, "alice")
	bob, _ := joinRoom(t, reg, "bob")
	require.Eventually(t, func() bool { return room.MemberCount() == 2 },
		2*time.Second, 5*time.Millisecond)

	// Drain the join announcement first.
	require.Equal(t, &chat.Chat{Name: "room", Text: "bob joined"}, waitMsg(t, aliceDisp.first))

	require.NoError(t, bob.Send(&chat.Leave{}))
	require.Equal(t, &chat.Chat{Name: "room", Text: "bob left"}, waitMsg(t, aliceDisp.rest))
	require.Eventually(t, func() bool { return room.MemberCount() == 1 },
		2*time.Second, 5*time.Millisecond)

	// The room also hangs up on the departed member.
	require.Eventually(t, func() bool { return bob.State() == conn.StateClosed },
		2*time.Second, 5*time.Millisecond)
	require.NoError(t, alice.Send(&chat.Say{Text: "quiet now"}))
	require.Equal(t, 1, room.MemberCount())
}

func TestRoomForgetsUnreachableMembers(t *testing.T) {
	reg, room := roomHarness(t)

	alice, _ := joinRoom(t, reg, "alice")
	bob, _ := joinRoom(t, reg, "bob")
	require.Eventually(t, func() bool { return room.MemberCount() == 2 },
		2*time.Second, 5*time.Millisecond)

	// Alice leaves; the next relay prunes her from the room.
	alice.Disconnect()
	require.NoError(t, bob.Send(&chat.Say{Text: fmt.Sprintf("bye %s", "alice")}))
	require.Eventually(t, func() bool { return room.MemberCount() == 1 },
		2*time.Second, 5*time.Millisecond)
}
