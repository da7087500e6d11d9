package gateway

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Devansh1501S/Chat-Sphere/internal/chat"
	"github.com/Devansh1501S/Chat-Sphere/internal/metrics"
	"github.com/Devansh1501S/Chat-Sphere/internal/model"
	"github.com/Devansh1501S/Chat-Sphere/internal/store"
)

// Delivery scopes.
const (
	scopeRoom = "room" // connections joined to a conversation
	scopeUser = "user" // all of one user's connections
	scopeAll  = "all"  // every connection
)

// delivery is one outbound event heading for a set of connections.
type delivery struct {
	scope          string
	conversationID int64
	userID         int64
	excludeUserID  int64 // skip this user's connections (typing origin)
	eventType      string
	payload        []byte
	remote         bool // arrived via the bridge; never republished
}

type joinRequest struct {
	client         *Client
	conversationID int64
}

type typingSignal struct {
	client         *Client
	conversationID int64
	isTyping       bool
}

type typingKey struct {
	userID         int64
	conversationID int64
}

type typingState struct {
	timer       *time.Timer
	refreshedAt time.Time
	username    string
	displayName string
}

// Hub is the realtime gateway. It exclusively owns the user->connections
// map, the rooms and the typing timers; all mutation happens on the Run
// loop, so none of that state needs locking. Persisted state stays in the
// store — everything here is reconstructible and never authoritative.
type Hub struct {
	log          zerolog.Logger
	store        store.Store
	chats        *chat.Service
	typingWindow time.Duration
	bridge       *Bridge // nil without Redis

	register      chan *Client
	unregister    chan *Client
	joins         chan joinRequest
	typingC       chan typingSignal
	typingExpired chan typingKey
	deliveries    chan delivery
	done          chan struct{} // closed when Run returns

	clients map[*Client]bool
	byUser  map[int64]map[*Client]bool
	rooms   map[int64]map[*Client]bool
	typing  map[typingKey]*typingState
}

// NewHub builds the gateway. redisClient may be nil, which disables the
// cross-instance bridge.
func NewHub(st store.Store, chats *chat.Service, redisClient *redis.Client, typingWindow time.Duration, log zerolog.Logger) *Hub {
	h := &Hub{
		log:           log.With().Str("component", "gateway").Logger(),
		store:         st,
		chats:         chats,
		typingWindow:  typingWindow,
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		joins:         make(chan joinRequest),
		typingC:       make(chan typingSignal),
		typingExpired: make(chan typingKey),
		deliveries:    make(chan delivery, 64),
		done:          make(chan struct{}),
		clients:       make(map[*Client]bool),
		byUser:        make(map[int64]map[*Client]bool),
		rooms:         make(map[int64]map[*Client]bool),
		typing:        make(map[typingKey]*typingState),
	}
	if redisClient != nil {
		h.bridge = newBridge(h, redisClient, log)
	}
	return h
}

// Run owns all hub state. It returns when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	if h.bridge != nil {
		go h.bridge.run(ctx)
	}
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case join := <-h.joins:
			h.joinRoom(join.client, join.conversationID)
		case sig := <-h.typingC:
			h.handleTyping(sig)
		case key := <-h.typingExpired:
			h.handleTypingExpired(key)
		case d := <-h.deliveries:
			h.dispatch(d)
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) addClient(c *Client) {
	h.clients[c] = true
	metrics.ActiveConnections.Inc()

	set := h.byUser[c.UserID]
	first := len(set) == 0
	if set == nil {
		set = make(map[*Client]bool)
		h.byUser[c.UserID] = set
	}
	set[c] = true

	if first {
		metrics.OnlineUsers.Inc()
		h.setOnline(c.UserID, true, time.Time{})
		h.emitPresence(PresenceEvent{UserID: c.UserID, IsOnline: true})
	}
	h.log.Debug().Int64("user_id", c.UserID).Msg("connection registered")
}

func (h *Hub) removeClient(c *Client) {
	if !h.clients[c] {
		return
	}
	delete(h.clients, c)
	close(c.send)
	metrics.ActiveConnections.Dec()

	for convID := range c.rooms {
		if room := h.rooms[convID]; room != nil {
			delete(room, c)
			if len(room) == 0 {
				delete(h.rooms, convID)
			}
		}
	}

	set := h.byUser[c.UserID]
	delete(set, c)
	if len(set) == 0 {
		delete(h.byUser, c.UserID)
		metrics.OnlineUsers.Dec()

		lastSeen := time.Now().UTC()
		h.setOnline(c.UserID, false, lastSeen)
		h.emitPresence(PresenceEvent{UserID: c.UserID, IsOnline: false, LastSeen: &lastSeen})
	}
	h.log.Debug().Int64("user_id", c.UserID).Msg("connection unregistered")
}

func (h *Hub) setOnline(userID int64, online bool, lastSeen time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.store.SetUserOnline(ctx, userID, online, lastSeen); err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("persist presence")
	}
}

// joinRoom subscribes an authorized connection to a conversation's live
// fan-out. Authorization against membership happened on the read pump.
func (h *Hub) joinRoom(c *Client, conversationID int64) {
	if !h.clients[c] {
		return
	}
	room := h.rooms[conversationID]
	if room == nil {
		room = make(map[*Client]bool)
		h.rooms[conversationID] = room
	}
	room[c] = true
	c.rooms[conversationID] = true
}

func (h *Hub) handleTyping(sig typingSignal) {
	c := sig.client
	if !c.rooms[sig.conversationID] {
		return
	}
	key := typingKey{userID: c.UserID, conversationID: sig.conversationID}

	if !sig.isTyping {
		if st := h.typing[key]; st != nil {
			st.timer.Stop()
			delete(h.typing, key)
		}
		h.emitTyping(key, c.Username, c.DisplayName, false)
		return
	}

	if st := h.typing[key]; st != nil {
		st.refreshedAt = time.Now()
		st.timer.Reset(h.typingWindow)
	} else {
		h.typing[key] = &typingState{
			refreshedAt: time.Now(),
			username:    c.Username,
			displayName: c.DisplayName,
			timer: time.AfterFunc(h.typingWindow, func() {
				// The loop may already be gone when the timer fires at
				// shutdown; never block past it.
				select {
				case h.typingExpired <- key:
				case <-h.done:
				}
			}),
		}
	}
	h.emitTyping(key, c.Username, c.DisplayName, true)
}

// handleTypingExpired fires the synthetic stop for a stalled or
// disconnected typist. A refresh that raced the timer shows up as a young
// refreshedAt; the reset timer will deliver a later expiry, so the stale
// one is dropped.
func (h *Hub) handleTypingExpired(key typingKey) {
	st := h.typing[key]
	if st == nil {
		return
	}
	if time.Since(st.refreshedAt) < h.typingWindow {
		return
	}
	delete(h.typing, key)
	h.emitTyping(key, st.username, st.displayName, false)
}

func (h *Hub) emitTyping(key typingKey, username, displayName string, isTyping bool) {
	payload, err := encodeEvent(EventTyping, TypingEvent{
		ConversationID: key.conversationID,
		UserID:         key.userID,
		Username:       username,
		DisplayName:    displayName,
		IsTyping:       isTyping,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("encode typing event")
		return
	}
	h.dispatch(delivery{
		scope:          scopeRoom,
		conversationID: key.conversationID,
		excludeUserID:  key.userID,
		eventType:      EventTyping,
		payload:        payload,
	})
}

func (h *Hub) emitPresence(ev PresenceEvent) {
	payload, err := encodeEvent(EventPresence, ev)
	if err != nil {
		h.log.Error().Err(err).Msg("encode presence event")
		return
	}
	h.dispatch(delivery{scope: scopeAll, eventType: EventPresence, payload: payload})
}

// dispatch delivers to local connections and mirrors locally produced
// events to the bridge. A connection whose send buffer is full is dropped;
// its pumps will clean up through unregister.
func (h *Hub) dispatch(d delivery) {
	if !d.remote && h.bridge != nil {
		go h.bridge.publish(d)
	}

	switch d.scope {
	case scopeRoom:
		for c := range h.rooms[d.conversationID] {
			if d.excludeUserID != 0 && c.UserID == d.excludeUserID {
				continue
			}
			h.send(c, d)
		}
	case scopeUser:
		for c := range h.byUser[d.userID] {
			h.send(c, d)
		}
	case scopeAll:
		for c := range h.clients {
			h.send(c, d)
		}
	}
}

func (h *Hub) send(c *Client, d delivery) {
	select {
	case c.send <- d.payload:
		metrics.EventsDelivered.WithLabelValues(d.eventType).Inc()
	default:
		h.log.Warn().Int64("user_id", c.UserID).Msg("send buffer full, dropping connection")
		h.removeClient(c)
	}
}

// Notifier implementations. These run on service goroutines and hand the
// event to the Run loop.

// MessageCreated fans the message out to the room and nudges every
// participant's addressed channel with a refetch hint.
func (h *Hub) MessageCreated(msg *model.MessageWithSender, participantIDs []int64) {
	payload, err := encodeEvent(EventMessage, msg)
	if err != nil {
		h.log.Error().Err(err).Msg("encode message event")
		return
	}
	h.deliveries <- delivery{
		scope:          scopeRoom,
		conversationID: msg.ConversationID,
		eventType:      EventMessage,
		payload:        payload,
	}

	hint, err := encodeEvent(EventConversationUpdate, ConversationUpdateEvent{ConversationID: msg.ConversationID})
	if err != nil {
		h.log.Error().Err(err).Msg("encode conversation update event")
		return
	}
	for _, userID := range participantIDs {
		h.deliveries <- delivery{scope: scopeUser, userID: userID, eventType: EventConversationUpdate, payload: hint}
	}
}

// ConversationCreated tells each participant a new conversation exists.
func (h *Hub) ConversationCreated(conv *model.Conversation, participantIDs []int64) {
	payload, err := encodeEvent(EventConversation, conv)
	if err != nil {
		h.log.Error().Err(err).Msg("encode conversation event")
		return
	}
	for _, userID := range participantIDs {
		h.deliveries <- delivery{scope: scopeUser, userID: userID, eventType: EventConversation, payload: payload}
	}
}

// FriendRequestCreated reaches the receiver's connections.
func (h *Hub) FriendRequestCreated(req *model.FriendRequestWithUsers) {
	payload, err := encodeEvent(EventFriendRequest, req)
	if err != nil {
		h.log.Error().Err(err).Msg("encode friend request event")
		return
	}
	h.deliveries <- delivery{scope: scopeUser, userID: req.ReceiverID, eventType: EventFriendRequest, payload: payload}
}

// FriendRequestUpdated reaches both parties.
func (h *Hub) FriendRequestUpdated(requestID int64, status model.FriendStatus, senderID, receiverID int64) {
	payload, err := encodeEvent(EventFriendRequestUpdate, FriendRequestUpdateEvent{
		RequestID:  requestID,
		Status:     string(status),
		SenderID:   senderID,
		ReceiverID: receiverID,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("encode friend request update event")
		return
	}
	for _, userID := range []int64{senderID, receiverID} {
		h.deliveries <- delivery{scope: scopeUser, userID: userID, eventType: EventFriendRequestUpdate, payload: payload}
	}
}
