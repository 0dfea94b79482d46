package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"starbase/server/handlers"
	"starbase/server/messages"
	"starbase/server/models"
	"starbase/server/persistence"
	"starbase/server/services"
)

func stationOptions() services.StationOptions {
	return services.StationOptions{
		Width:        12,
		Height:       12,
		Rotations:    services.DefaultRotationRules(),
		PoolCapacity: 32,
	}
}

func startAuthority(t *testing.T, opts services.StationOptions) (string, *services.WorldService) {
	t.Helper()

	store, err := persistence.NewSQLiteStore(filepath.Join(t.TempDir(), "station.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	builders := services.NewBuilderService(store)
	builders.SetBcryptCost(bcrypt.MinCost)
	world, err := services.NewWorldService("replica-test", opts, builders, store)
	require.NoError(t, err)
	clients := handlers.NewClientManager()
	world.SetBroadcaster(clients.BroadcastRecord)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handlers.HandleClientConnection(conn, 0, builders, world, clients)
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http"), world
}

func dialReplica(t *testing.T, url, username string, mode models.BuilderMode) *Replica {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	replica, err := Dial(ctx, url, messages.LoginMessage{Username: username, Password: "pw", Mode: mode},
		Options{PoolCapacity: 32})
	require.NoError(t, err)
	t.Cleanup(func() { replica.Close() })
	return replica
}

func waitApplied(t *testing.T, replica *Replica, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, replica.WaitApplied(ctx, n))
}

func withoutHandles(pieces []models.Piece) []models.Piece {
	out := make([]models.Piece, len(pieces))
	for i, piece := range pieces {
		piece.Handle = ""
		out[i] = piece
	}
	return out
}

func blockTiles(x0, y0, x1, y1 int) []int {
	grid := services.NewGridStore(12, 12)
	var tiles []int
	for x := x0; x <= x1; x++ {
		for y := y0; y <= y1; y++ {
			tiles = append(tiles, grid.IndexOf(x, y))
		}
	}
	return tiles
}

func assertAgrees(t *testing.T, world *services.WorldService, replica *Replica) {
	t.Helper()
	assert.Equal(t, world.Snapshot(), replica.Snapshot())
	assert.Equal(t, withoutHandles(world.Pieces()), withoutHandles(replica.Pieces()))
}

func TestReplicaAgreesWithAuthority(t *testing.T) {
	url, world := startAuthority(t, stationOptions())
	admin := dialReplica(t, url, "ripley", models.ModeAdministrator)
	watcher := dialReplica(t, url, "jones", models.ModeCharacter)

	require.NoError(t, admin.SubmitRoom(blockTiles(1, 1, 4, 4)))
	require.NoError(t, admin.SubmitRoom(blockTiles(5, 2, 9, 2)))
	waitApplied(t, admin, 2)
	waitApplied(t, watcher, 2)

	require.NoError(t, admin.Assemble(blockTiles(1, 1, 1, 1)[0]))
	waitApplied(t, admin, 3)
	waitApplied(t, watcher, 3)

	assertAgrees(t, world, admin)
	assertAgrees(t, world, watcher)

	pieces := admin.Pieces()
	require.NotEmpty(t, pieces)
	assert.True(t, pieces[0].Assembled)
}

func TestReplicaUsesAuthorityRotations(t *testing.T) {
	opts := stationOptions()
	opts.Rotations.DefaultOrientation = 90
	url, world := startAuthority(t, opts)
	admin := dialReplica(t, url, "bishop", models.ModeAdministrator)

	require.NoError(t, admin.SubmitRoom(blockTiles(1, 1, 3, 3)))
	waitApplied(t, admin, 1)
	assertAgrees(t, world, admin)

	// Corner at (1,1) has right and down neighbors: 90 plus the offset
	corner := blockTiles(1, 1, 1, 1)[0]
	found := false
	for _, piece := range admin.Pieces() {
		if piece.Index == corner && piece.Category == models.TileWall {
			found = true
			assert.Equal(t, 180, piece.Rotation)
		}
	}
	assert.True(t, found, "corner wall placed")
}

func TestLateReplicaReplaysHistory(t *testing.T) {
	url, world := startAuthority(t, stationOptions())
	admin := dialReplica(t, url, "dallas", models.ModeAdministrator)

	require.NoError(t, admin.SubmitRoom(blockTiles(2, 2, 6, 5)))
	require.NoError(t, admin.SubmitRoom(blockTiles(6, 6, 6, 10)))
	waitApplied(t, admin, 2)

	late := dialReplica(t, url, "kane", models.ModeCharacter)
	assert.Equal(t, 2, late.Applied())
	assert.Equal(t, "replica-test", late.StationName())
	assertAgrees(t, world, late)
}

func TestReplicaReceivesRejections(t *testing.T) {
	url, _ := startAuthority(t, stationOptions())
	visitor := dialReplica(t, url, "newt", models.ModeCharacter)

	require.NoError(t, visitor.SubmitRoom(blockTiles(1, 1, 2, 2)))

	select {
	case failure := <-visitor.Errors():
		assert.Equal(t, messages.CodeNotAdministrator, failure.Code)
	case <-time.After(5 * time.Second):
		t.Fatal("no rejection received")
	}
	assert.Equal(t, 0, visitor.Applied())
}

func TestReplicaLoginRejected(t *testing.T) {
	url, _ := startAuthority(t, stationOptions())
	dialReplica(t, url, "hicks", models.ModeAdministrator)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := Dial(ctx, url, messages.LoginMessage{Username: "hicks", Password: "nope"}, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), messages.CodeLoginFailed)
}
