package server

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/paperhub/course-chat/internal/database"
	"github.com/paperhub/course-chat/internal/stats"
	"github.com/paperhub/course-chat/internal/types"
)

type roomMessage struct {
	roomId string
	msg    types.Message
}

// event is a server-initiated notification queued by the session
// controller for fan-out.
type event struct {
	roomCreated *types.Room
	message     *roomMessage
	roomClosed  string
}

// ChatServer is the push-channel hub. All connection and subscription
// state is owned by the Run loop, which serializes joins, leaves,
// disconnects and room closures: a join racing a closure lands on one
// side of the closure's cleanup and either subscribes to a still-open
// room or is refused.
type ChatServer struct {
	log            *log.Logger
	db             database.CourseChatRepository
	stats          stats.StatsProvider
	clients        map[*Client]struct{}
	subs           map[string]map[*Client]struct{}
	clientRoom     map[*Client]string
	registerChan   chan *Client
	deRegisterChan chan *Client
	joinChan       chan *ClientMessage
	leaveChan      chan *ClientMessage
	eventChan      chan event
	stop           chan struct{}
	done           chan struct{}
}

func NewChatServer(logger *log.Logger, db database.CourseChatRepository, sts stats.StatsProvider) (*ChatServer, error) {
	cs := &ChatServer{
		log:            logger,
		db:             db,
		stats:          sts,
		clients:        make(map[*Client]struct{}),
		subs:           make(map[string]map[*Client]struct{}),
		clientRoom:     make(map[*Client]string),
		registerChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		joinChan:       make(chan *ClientMessage, 256),
		leaveChan:      make(chan *ClientMessage, 256),
		eventChan:      make(chan event, 256),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}

	cs.stats.RegisterMetric(stats.ActiveConnections)
	cs.stats.RegisterMetric(stats.ActiveRooms)

	return cs, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case client := <-cs.registerChan:
			cs.log.Printf("adding connection from %q", client.user.Username)
			cs.clients[client] = struct{}{}
			cs.stats.Incr(stats.ActiveConnections)
		case client := <-cs.deRegisterChan:
			cs.log.Printf("removing connection from %q", client.user.Username)
			if _, ok := cs.clients[client]; ok {
				delete(cs.clients, client)
				cs.unsubscribe(client)
				cs.stats.Decr(stats.ActiveConnections)
			}
		case msg := <-cs.joinChan:
			cs.handleJoin(msg)
		case msg := <-cs.leaveChan:
			cs.handleLeave(msg)
		case ev := <-cs.eventChan:
			cs.handleEvent(ev)
		case <-cs.stop:
			for c := range cs.clients {
				c.stopClient()
			}
			close(cs.done)
			return
		}
	}
}

// RegisterClient hands a freshly upgraded connection to the run loop.
func (cs *ChatServer) RegisterClient(c *Client) {
	cs.registerChan <- c
}

// BroadcastRoomCreated fans a room-created event to every connection so
// client room lists stay current without polling. Never blocks.
func (cs *ChatServer) BroadcastRoomCreated(room types.Room) {
	cs.queueEvent(event{roomCreated: &room})
}

// BroadcastMessage fans a stored message to the room's subscribers.
// Never blocks; delivery is best-effort and independent of durability.
func (cs *ChatServer) BroadcastMessage(roomId string, msg types.Message) {
	cs.queueEvent(event{message: &roomMessage{roomId: roomId, msg: msg}})
}

// CloseRoom notifies a closed room's subscribers and tears down its
// subscriber set.
func (cs *ChatServer) CloseRoom(roomId string) {
	cs.queueEvent(event{roomClosed: roomId})
}

func (cs *ChatServer) queueEvent(ev event) {
	select {
	case cs.eventChan <- ev:
	default:
		cs.log.Println("event channel full, dropping event")
	}
}

func (cs *ChatServer) handleJoin(msg *ClientMessage) {
	c := msg.client
	if _, ok := cs.clients[c]; !ok {
		// connection already gone
		return
	}

	roomId := msg.Join.RoomId
	room, err := cs.db.GetRoomByExternalId(roomId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.queueMessage(ErrRoomNotFound(msg.Id))
		} else {
			cs.log.Println("GetRoomByExternalId:", err)
			c.queueMessage(ErrServiceUnavailable(msg.Id))
		}
		return
	}

	if types.RoomState(room.State) != types.RoomOpen {
		c.queueMessage(ErrRoomClosed(msg.Id))
		return
	}

	// swap the subscription: a client holds at most one, and there is
	// no window where it is double-subscribed or dropped entirely
	cs.unsubscribe(c)
	if cs.subs[roomId] == nil {
		cs.subs[roomId] = make(map[*Client]struct{})
		cs.stats.Incr(stats.ActiveRooms)
	}
	cs.subs[roomId][c] = struct{}{}
	cs.clientRoom[c] = roomId

	c.queueMessage(NoErrOK(msg.Id, map[string]any{"room_id": roomId}))
}

func (cs *ChatServer) handleLeave(msg *ClientMessage) {
	c := msg.client
	if cs.clientRoom[c] != msg.Leave.RoomId {
		c.queueMessage(ErrRoomNotFound(msg.Id))
		return
	}

	cs.unsubscribe(c)
	c.queueMessage(NoErrOK(msg.Id, nil))
}

func (cs *ChatServer) handleEvent(ev event) {
	switch {
	case ev.roomCreated != nil:
		out := &ServerMessage{
			BaseMessage: BaseMessage{Timestamp: Now()},
			Event:       &Event{RoomCreated: ev.roomCreated},
		}
		for c := range cs.clients {
			c.queueMessage(out)
		}
	case ev.message != nil:
		out := &ServerMessage{
			BaseMessage: BaseMessage{Timestamp: Now()},
			Event:       &Event{Message: &ev.message.msg},
		}
		for c := range cs.subs[ev.message.roomId] {
			c.queueMessage(out)
		}
	case ev.roomClosed != "":
		out := &ServerMessage{
			BaseMessage: BaseMessage{Timestamp: Now()},
			Event:       &Event{RoomClosed: &RoomClosed{RoomId: ev.roomClosed}},
		}
		for c := range cs.subs[ev.roomClosed] {
			c.queueMessage(out)
			delete(cs.clientRoom, c)
		}
		if _, ok := cs.subs[ev.roomClosed]; ok {
			delete(cs.subs, ev.roomClosed)
			cs.stats.Decr(stats.ActiveRooms)
		}
	}
}

// unsubscribe removes a client from its current room, if any. Only
// called from the run loop.
func (cs *ChatServer) unsubscribe(c *Client) {
	roomId, ok := cs.clientRoom[c]
	if !ok {
		return
	}

	delete(cs.clientRoom, c)
	if set, ok := cs.subs[roomId]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(cs.subs, roomId)
			cs.stats.Decr(stats.ActiveRooms)
		}
	}
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("shutting down chat server")
	close(cs.stop)

	select {
	case <-cs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
