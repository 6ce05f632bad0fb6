package events

import (
	"context"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/require"
)

func TestWSBridgeSendsSnapshotThenEvents(t *testing.T) {
	bus := NewBus(nil)
	bridge := NewWSBridge(bus, func() any {
		return map[string]string{"state": "running"}
	}, nil)

	addr, err := bridge.Start(0)
	require.NoError(t, err)

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		bridge.Stop(ctx)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+addr+"/events", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	var snapshot map[string]string
	require.NoError(t, wsjson.Read(ctx, conn, &snapshot))
	require.Equal(t, "running", snapshot["state"])

	require.Eventually(t, func() bool { return bus.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)

	bus.Publish(Event{Type: TypeFileSynced, FileSynced: &FileSyncedPayload{File: "home.html", Action: ActionUpload}})

	var received Event
	require.NoError(t, wsjson.Read(ctx, conn, &received))
	require.Equal(t, TypeFileSynced, received.Type)
	require.Equal(t, "home.html", received.FileSynced.File)
}
