package server

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/OCAP2/replication/internal/world"
	"github.com/OCAP2/replication/pkg/core"
)

const instrumentationName = "github.com/OCAP2/replication/internal/server"

// Status is a point-in-time summary of the engine, safe to read from any
// goroutine.
type Status struct {
	Tick        uint64        `json:"tick"`
	Connections int           `json:"connections"`
	Players     int           `json:"players"`
	Bots        int           `json:"bots"`
	Projectiles int           `json:"projectiles"`
	Items       int           `json:"items"`
	Snapshots   uint64        `json:"snapshots"`
	LastTick    time.Duration `json:"lastTickNs"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// Sample converts the status to a journal performance sample.
func (s Status) Sample() core.PerformanceSample {
	return core.PerformanceSample{
		Time:         s.UpdatedAt,
		Tick:         s.Tick,
		Connections:  s.Connections,
		Bots:         s.Bots,
		Players:      s.Players,
		Projectiles:  s.Projectiles,
		Items:        s.Items,
		TickDuration: s.LastTick,
	}
}

// Status returns the summary published at the end of the last tick.
func (e *Engine) Status() Status {
	if s := e.status.Load(); s != nil {
		return *s
	}
	return Status{}
}

func (e *Engine) publishStatus(took time.Duration) {
	s := &Status{
		Tick:        e.tick,
		Players:     e.lobby.Len(),
		Projectiles: e.world.Count(world.KindProjectile),
		Items:       e.world.Count(world.KindItem),
		Snapshots:   e.snapshots,
		LastTick:    took,
		UpdatedAt:   e.now(),
	}
	for p, st := range e.conns {
		if st != StateConnected {
			continue
		}
		if IsBot(p) {
			s.Bots++
		} else {
			s.Connections++
		}
	}
	e.status.Store(s)
}

// registerMetrics exposes the published status as OTel gauges. Uses the
// global meter provider, a no-op until one is installed.
func (e *Engine) registerMetrics() error {
	m := otel.Meter(instrumentationName)

	conns, err := m.Int64ObservableGauge("replication.connections",
		metric.WithDescription("Connected players"))
	if err != nil {
		return fmt.Errorf("creating connections gauge: %w", err)
	}
	entities, err := m.Int64ObservableGauge("replication.entities",
		metric.WithDescription("Live entities by kind"))
	if err != nil {
		return fmt.Errorf("creating entities gauge: %w", err)
	}
	tickTime, err := m.Float64ObservableGauge("replication.tick.duration",
		metric.WithDescription("Duration of the last tick"),
		metric.WithUnit("ms"))
	if err != nil {
		return fmt.Errorf("creating tick gauge: %w", err)
	}

	_, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := e.Status()
		o.ObserveInt64(conns, int64(s.Connections), metric.WithAttributes(attribute.Bool("bot", false)))
		o.ObserveInt64(conns, int64(s.Bots), metric.WithAttributes(attribute.Bool("bot", true)))
		o.ObserveInt64(entities, int64(s.Players), metric.WithAttributes(attribute.String("kind", world.KindPlayer.String())))
		o.ObserveInt64(entities, int64(s.Projectiles), metric.WithAttributes(attribute.String("kind", world.KindProjectile.String())))
		o.ObserveInt64(entities, int64(s.Items), metric.WithAttributes(attribute.String("kind", world.KindItem.String())))
		o.ObserveFloat64(tickTime, float64(s.LastTick)/float64(time.Millisecond))
		return nil
	}, conns, entities, tickTime)
	if err != nil {
		return fmt.Errorf("registering status callback: %w", err)
	}
	return nil
}
