package orch

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/dkeye/consult/internal/app"
	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var ErrNotInRoom = errors.New("connection is not in that room")

type Orchestrator struct {
	Registry *app.Registry
	Relay    *app.Relay
	Policy   app.Policy

	mu      sync.RWMutex
	onEnded []func(domain.RoomID)
}

func New(reg *app.Registry, policy app.Policy) *Orchestrator {
	return &Orchestrator{
		Registry: reg,
		Relay:    app.NewRelay(reg),
		Policy:   policy,
	}
}

// OnRoomEnded registers fn to run once for every room that becomes empty.
func (o *Orchestrator) OnRoomEnded(fn func(domain.RoomID)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onEnded = append(o.onEnded, fn)
}

func (o *Orchestrator) roomEnded(room domain.RoomID) {
	o.mu.RLock()
	listeners := append([]func(domain.RoomID){}, o.onEnded...)
	o.mu.RUnlock()
	log.Info().Str("module", "app.orch").Str("room", string(room)).Msg("call ended, room empty")
	for _, fn := range listeners {
		fn(room)
	}
}

// Connect binds a new transport endpoint and tells it its id.
func (o *Orchestrator) Connect(conn core.Conn) domain.ConnID {
	id := domain.ConnID(uuid.NewString())
	o.Registry.Bind(id, conn)
	if err := conn.TrySend(encode(domain.EventConnected(id))); err != nil {
		log.Warn().Err(err).Str("module", "app.orch").Str("sid", string(id)).Msg("connected event not delivered")
	}
	return id
}

func (o *Orchestrator) KickByID(id domain.ConnID) {
	if conn, ok := o.Registry.Conn(id); ok {
		log.Warn().Str("module", "app.orch").Str("sid", string(id)).Msg("kicking slow connection")
		conn.Close()
	}
}

func (o *Orchestrator) applyPolicy(room domain.RoomID, res core.PublishResult) {
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(room, slow) {
		case app.KickMember:
			o.KickByID(slow)
		case app.DropFrame, app.NoAction:
			log.Warn().Str("module", "app.orch").Str("room", string(room)).Str("sid", string(slow)).Msg("frame dropped")
		}
	}
}

func encode(ev domain.ServerEvent) core.Frame {
	b, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "app.orch").Str("type", string(ev.Type)).Msg("encode event")
		return nil
	}
	return b
}
