package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zyedidia/generic/mapset"

	"starbase/server/logger"
	"starbase/server/messages"
	"starbase/server/models"
	"starbase/server/services"
)

// ErrClosed is returned once the connection to the authority is gone
var ErrClosed = errors.New("replica connection closed")

// Options configures the replica's local station. Dimensions and rotation
// rules come from the authority at login.
type Options struct {
	PoolCapacity int
}

// Replica holds a client's predicted station. It replays the authority's
// log on login, then applies every approved record it is sent.
type Replica struct {
	conn      *websocket.Conn
	station   *services.Station
	builderID string
	name      string
	mode      models.BuilderMode

	applied mapset.Set[string]
	count   int
	changed chan struct{}
	mutex   sync.Mutex

	errs       chan messages.ErrorMessage
	done       chan struct{}
	readErr    error
	writeMutex sync.Mutex
}

// Dial connects to the authority at url, logs in and rebuilds the station
// from the returned history
func Dial(ctx context.Context, url string, login messages.LoginMessage, opts Options) (*Replica, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}

	r := &Replica{
		conn:    conn,
		applied: mapset.New[string](),
		changed: make(chan struct{}),
		errs:    make(chan messages.ErrorMessage, 16),
		done:    make(chan struct{}),
	}

	if err := r.login(ctx, login, opts); err != nil {
		conn.Close()
		return nil, err
	}

	go r.readLoop()
	return r, nil
}

func (r *Replica) login(ctx context.Context, login messages.LoginMessage, opts Options) error {
	if deadline, ok := ctx.Deadline(); ok {
		r.conn.SetReadDeadline(deadline)
		defer r.conn.SetReadDeadline(time.Time{})
	}

	if err := r.write(messages.MessageTypeLogin, login); err != nil {
		return err
	}

	for {
		envelope, err := r.read()
		if err != nil {
			return fmt.Errorf("waiting for login reply: %w", err)
		}

		switch envelope.Type {
		case messages.MessageTypeLoginSuccess:
			var success messages.LoginSuccessMessage
			if err := envelope.Decode(&success); err != nil {
				return fmt.Errorf("decoding login reply: %w", err)
			}
			r.builderID = success.BuilderID
			r.name = success.Station
			r.mode = success.Mode
			r.station = services.NewStation(services.StationOptions{
				Width:        success.Width,
				Height:       success.Height,
				Rotations:    success.Rotations,
				PoolCapacity: opts.PoolCapacity,
			})
			for _, record := range success.History {
				r.apply(record)
			}
			return nil
		case messages.MessageTypeError:
			var failure messages.ErrorMessage
			envelope.Decode(&failure)
			return fmt.Errorf("login rejected: %s: %s", failure.Code, failure.Message)
		default:
			logger.Debug("Ignoring message before login", "type", envelope.Type)
		}
	}
}

func (r *Replica) readLoop() {
	defer close(r.done)

	for {
		envelope, err := r.read()
		if err != nil {
			r.mutex.Lock()
			r.readErr = err
			r.mutex.Unlock()
			return
		}

		switch envelope.Type {
		case messages.MessageTypeRoomApproved:
			var approved messages.RoomApprovedMessage
			if err := envelope.Decode(&approved); err != nil {
				logger.Warning("Bad room_approved payload", "error", err)
				continue
			}
			r.apply(models.BuildRecord{
				ID:        approved.BatchID,
				Kind:      models.BuildRoom,
				Tiles:     approved.Tiles,
				BuilderID: approved.BuilderID,
			})
		case messages.MessageTypeTileAssembled:
			var assembled messages.TileAssembledMessage
			if err := envelope.Decode(&assembled); err != nil {
				logger.Warning("Bad tile_assembled payload", "error", err)
				continue
			}
			r.apply(models.BuildRecord{
				ID:        assembled.BatchID,
				Kind:      models.BuildAssemble,
				Tiles:     []int{assembled.Tile},
				BuilderID: assembled.BuilderID,
			})
		case messages.MessageTypeModeChanged:
			var changed messages.ModeChangedMessage
			if err := envelope.Decode(&changed); err == nil {
				r.mutex.Lock()
				r.mode = changed.Mode
				r.mutex.Unlock()
			}
		case messages.MessageTypeError:
			var failure messages.ErrorMessage
			if err := envelope.Decode(&failure); err != nil {
				continue
			}
			select {
			case r.errs <- failure:
			default:
				logger.Warning("Dropping authority error, nobody is reading", "code", failure.Code)
			}
		default:
			logger.Debug("Ignoring message", "type", envelope.Type)
		}
	}
}

// apply replays one record once. A record can arrive both in the login
// history and as a broadcast; the batch id dedupes it.
func (r *Replica) apply(record models.BuildRecord) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.applied.Has(record.ID) {
		return
	}
	if err := r.station.Apply(record); err != nil {
		logger.Warning("Replica failed to apply record", "batch_id", record.ID, "error", err)
	}
	r.applied.Put(record.ID)
	r.count++

	close(r.changed)
	r.changed = make(chan struct{})
}

func (r *Replica) read() (messages.Envelope, error) {
	var envelope messages.Envelope
	_, data, err := r.conn.ReadMessage()
	if err != nil {
		return envelope, err
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return envelope, fmt.Errorf("decoding message: %w", err)
	}
	return envelope, nil
}

func (r *Replica) write(t messages.MessageType, payload interface{}) error {
	r.writeMutex.Lock()
	defer r.writeMutex.Unlock()

	select {
	case <-r.done:
		return ErrClosed
	default:
	}
	return r.conn.WriteJSON(messages.BaseMessage{Type: t, Payload: payload})
}

// SubmitRoom asks the authority to build a room. The local station changes
// only once the approved batch comes back.
func (r *Replica) SubmitRoom(tiles []int) error {
	return r.write(messages.MessageTypeBuildRoom, messages.BuildRoomMessage{Tiles: tiles})
}

// Assemble asks the authority to build the piece on tile
func (r *Replica) Assemble(tile int) error {
	return r.write(messages.MessageTypeAssembleTile, messages.AssembleTileMessage{Tile: tile})
}

// SwitchMode asks the authority to change this builder's mode
func (r *Replica) SwitchMode(mode models.BuilderMode) error {
	return r.write(messages.MessageTypeSwitchMode, messages.SwitchModeMessage{Mode: mode})
}

// WaitApplied blocks until at least n records have been applied
func (r *Replica) WaitApplied(ctx context.Context, n int) error {
	for {
		r.mutex.Lock()
		count, changed, readErr := r.count, r.changed, r.readErr
		r.mutex.Unlock()

		if count >= n {
			return nil
		}

		select {
		case <-changed:
		case <-r.done:
			if readErr == nil {
				r.mutex.Lock()
				readErr = r.readErr
				r.mutex.Unlock()
			}
			return fmt.Errorf("%w: %v", ErrClosed, readErr)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Errors delivers error replies from the authority
func (r *Replica) Errors() <-chan messages.ErrorMessage {
	return r.errs
}

// BuilderID returns the id the authority assigned at login
func (r *Replica) BuilderID() string { return r.builderID }

// StationName returns the authority's station name
func (r *Replica) StationName() string { return r.name }

// Mode returns the builder's current mode
func (r *Replica) Mode() models.BuilderMode {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.mode
}

// Applied returns the number of records applied so far
func (r *Replica) Applied() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.count
}

// Snapshot copies the predicted grid
func (r *Replica) Snapshot() *models.GameMap {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.station.Snapshot()
}

// Pieces lists the predicted placed pieces
func (r *Replica) Pieces() []models.Piece {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.station.Ledger().Pieces()
}

// Close disconnects from the authority
func (r *Replica) Close() error {
	r.writeMutex.Lock()
	r.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	r.writeMutex.Unlock()

	err := r.conn.Close()
	<-r.done
	return err
}
