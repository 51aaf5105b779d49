package client_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/farsight-games/gamewire/internal/chat"
	"github.com/farsight-games/gamewire/internal/client"
	"github.com/farsight-games/gamewire/pkg/conn"
	"github.com/farsight-games/gamewire/pkg/conn/stream"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.DebugLevel)
	log.SetOutput(io.Discard)
	return log
}

// startRoomServer runs a room behind a websocket-enabled stream server and
// returns its address.
func startRoomServer(t *testing.T) (string, *chat.Room) {
	t.Helper()
	log := testLogger()
	room := chat.NewRoom(log)
	srv, err := stream.NewServer("127.0.0.1:0", stream.ServerOpts{
		Dispatcher:      room,
		EnableWebSocket: true,
		Log:             log,
	})
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)
	return srv.Addr(), room
}

func join(t *testing.T, addr, name string, opts client.Opts) *client.Session {
	t.Helper()
	if opts.Log == nil {
		opts.Log = testLogger()
	}
	s := client.New(addr, name, opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Connect(ctx))
	t.Cleanup(s.Disconnect)
	return s
}

func waitLine(t *testing.T, s *client.Session) *chat.Chat {
	t.Helper()
	select {
	case line := <-s.Lines():
		return line
	case <-s.Done():
		t.Fatal("session closed while waiting for a line")
		return nil
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a line")
		return nil
	}
}

func TestSessionJoinAndChat(t *testing.T) {
	addr, room := startRoomServer(t)

	ann := join(t, addr, "ann", client.Opts{})
	require.Eventually(t, func() bool { return room.MemberCount() == 1 },
		2*time.Second, 5*time.Millisecond)
	require.True(t, ann.IsConnected())

	ben := join(t, addr, "ben", client.Opts{})
	require.Equal(t, &chat.Chat{Name: "room", Text: "ben joined"}, waitLine(t, ann))

	require.NoError(t, ben.Say("good evening"))
	require.Equal(t, &chat.Chat{Name: "ben", Text: "good evening"}, waitLine(t, ann))

	require.NoError(t, ann.Say("evening to you"))
	require.Equal(t, &chat.Chat{Name: "ann", Text: "evening to you"}, waitLine(t, ben))
}

func TestSessionOverWebSocket(t *testing.T) {
	addr, room := startRoomServer(t)

	ann := join(t, addr, "ann", client.Opts{})
	wes := join(t, addr, "wes", client.Opts{WebSocket: true})
	require.Eventually(t, func() bool { return room.MemberCount() == 2 },
		2*time.Second, 5*time.Millisecond)
	require.Equal(t, &chat.Chat{Name: "room", Text: "wes joined"}, waitLine(t, ann))

	// Lines cross the transport boundary in both directions.
	require.NoError(t, wes.Say("hello from websocket"))
	require.Equal(t, &chat.Chat{Name: "wes", Text: "hello from websocket"}, waitLine(t, ann))
	require.NoError(t, ann.Say("hello from tcp"))
	require.Equal(t, &chat.Chat{Name: "ann", Text: "hello from tcp"}, waitLine(t, wes))
}

func TestSessionLeaveIsAnnounced(t *testing.T) {
	addr, room := startRoomServer(t)

	ann := join(t, addr, "ann", client.Opts{})
	ben := join(t, addr, "ben", client.Opts{})
	require.Equal(t, &chat.Chat{Name: "room", Text: "ben joined"}, waitLine(t, ann))

	require.NoError(t, ben.Leave())
	require.Equal(t, &chat.Chat{Name: "room", Text: "ben left"}, waitLine(t, ann))
	require.Eventually(t, func() bool { return room.MemberCount() == 1 },
		2*time.Second, 5*time.Millisecond)

	// The room hangs up on the departed member in response.
	select {
	case <-ben.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done() not closed after the goodbye")
	}
	require.False(t, ben.IsConnected())
}

func TestSessionDoneClosesWhenServerStops(t *testing.T) {
	log := testLogger()
	room := chat.NewRoom(log)
	srv, err := stream.NewServer("127.0.0.1:0", stream.ServerOpts{Dispatcher: room, Log: log})
	require.NoError(t, err)
	require.NoError(t, srv.Start())

	ann := join(t, srv.Addr(), "ann", client.Opts{})
	require.Eventually(t, func() bool { return room.MemberCount() == 1 },
		2*time.Second, 5*time.Millisecond)

	srv.Stop()
	select {
	case <-ann.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done() not closed after the server stopped")
	}
	require.False(t, ann.IsConnected())
	require.Error(t, ann.Say("anyone there"))
}

func TestSessionConnectErrors(t *testing.T) {
	t.Run("refused", func(t *testing.T) {
		s := client.New("127.0.0.1:9", "ann", client.Opts{Log: testLogger()})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err := s.Connect(ctx)
		require.ErrorIs(t, err, conn.ErrConnectRefused)
		require.False(t, s.IsConnected())
	})

	t.Run("second connect", func(t *testing.T) {
		addr, _ := startRoomServer(t)
		s := join(t, addr, "ann", client.Opts{})
		err := s.Connect(context.Background())
		require.ErrorIs(t, err, conn.ErrAlreadyConnected)
	})

	t.Run("say before connect", func(t *testing.T) {
		s := client.New("127.0.0.1:9", "ann", client.Opts{Log: testLogger()})
		require.ErrorIs(t, s.Say("too soon"), conn.ErrNotConnected)
		require.ErrorIs(t, s.Leave(), conn.ErrNotConnected)
	})
}
