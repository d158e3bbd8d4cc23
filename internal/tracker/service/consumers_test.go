package service

import (
	"context"
	"testing"
	"time"

	"dispatch/internal/contracts"
	"dispatch/internal/domain/contractor"
	"dispatch/internal/domain/geo"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleJobStatusDelivery(t *testing.T) {
	ctx := context.Background()

	t.Run("should relay a new job announcement", func(t *testing.T) {
		env := newTestEnv(time.Second)
		d := amqp.Delivery{
			RoutingKey: contracts.RouteJobNew,
			Body:       []byte(`{"job_id":"job-1","pickup":{"lat":52.52,"lng":13.40},"total_price":106.92}`),
		}
		require.NoError(t, env.svc.handleJobStatusDelivery(ctx, d))
	})

	t.Run("should relay a status transition", func(t *testing.T) {
		env := newTestEnv(time.Second)
		d := amqp.Delivery{
			RoutingKey: contracts.RouteJobStatusPrefix + "accepted",
			Body:       []byte(`{"job_id":"job-1","status":"ACCEPTED","driver_id":"drv-1"}`),
		}
		require.NoError(t, env.svc.handleJobStatusDelivery(ctx, d))
	})

	t.Run("should fan a new job out to eligible driver sessions without failing", func(t *testing.T) {
		env := newTestEnv(time.Second)
		s := env.svc.sessions.GetOrCreate("drv-1", nil)
		s.SetOnline(true)
		s.ApplyLocation(geo.StampedPoint{
			Point:      geo.Point{Lat: 52.52, Lng: 13.40},
			RecordedAt: time.Now().UTC(),
		})
		s.AddConn("conn-1")

		d := amqp.Delivery{
			RoutingKey: contracts.RouteJobNew,
			Body:       []byte(`{"job_id":"job-2","pickup":{"lat":52.53,"lng":13.41},"total_price":99}`),
		}
		require.NoError(t, env.svc.handleJobStatusDelivery(ctx, d))
	})

	t.Run("should skip an unknown routing key without failing the delivery", func(t *testing.T) {
		env := newTestEnv(time.Second)
		d := amqp.Delivery{RoutingKey: "job.something.else", Body: []byte(`{}`)}
		assert.NoError(t, env.svc.handleJobStatusDelivery(ctx, d))
	})

	t.Run("should reject a malformed body so the delivery is dropped", func(t *testing.T) {
		env := newTestEnv(time.Second)
		d := amqp.Delivery{RoutingKey: contracts.RouteJobNew, Body: []byte(`not json`)}
		assert.Error(t, env.svc.handleJobStatusDelivery(ctx, d))
	})

	t.Run("should reject a status message without a job id", func(t *testing.T) {
		env := newTestEnv(time.Second)
		d := amqp.Delivery{
			RoutingKey: contracts.RouteJobStatusPrefix + "completed",
			Body:       []byte(`{"status":"COMPLETED"}`),
		}
		assert.Error(t, env.svc.handleJobStatusDelivery(ctx, d))
	})
}

func TestSessionJobDistance(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	fix := geo.StampedPoint{Point: geo.Point{Lat: 52.52, Lng: 13.40}, RecordedAt: base}
	openJob := &contracts.NewJobMessage{JobID: "job-1", Pickup: contracts.GeoPoint{Lat: 52.53, Lng: 13.41}}

	t.Run("should reach an online driver inside the radius", func(t *testing.T) {
		s := contractor.NewSession("drv-1", nil)
		s.SetOnline(true)
		s.ApplyLocation(fix)

		distance, ok := sessionJobDistance(s, openJob, 30)
		require.True(t, ok)
		assert.Less(t, distance, 2.0)
	})

	t.Run("should skip an offline driver", func(t *testing.T) {
		s := contractor.NewSession("drv-1", nil)
		s.ApplyLocation(fix)

		_, ok := sessionJobDistance(s, openJob, 30)
		assert.False(t, ok)
	})

	t.Run("should skip a driver without a known position", func(t *testing.T) {
		s := contractor.NewSession("drv-1", nil)
		s.SetOnline(true)

		_, ok := sessionJobDistance(s, openJob, 30)
		assert.False(t, ok)
	})

	t.Run("should skip a driver beyond the radius", func(t *testing.T) {
		s := contractor.NewSession("drv-1", nil)
		s.SetOnline(true)
		s.ApplyLocation(geo.StampedPoint{Point: geo.Point{Lat: 48.14, Lng: 11.58}, RecordedAt: base})

		_, ok := sessionJobDistance(s, openJob, 30)
		assert.False(t, ok)
	})

	t.Run("should keep a fleet job inside its own fleet", func(t *testing.T) {
		op, other := "op-1", "op-2"
		fleetJob := &contracts.NewJobMessage{
			JobID:      "job-2",
			Pickup:     contracts.GeoPoint{Lat: 52.53, Lng: 13.41},
			OperatorID: op,
		}

		fleetDriver := contractor.NewSession("drv-1", &op)
		fleetDriver.SetOnline(true)
		fleetDriver.ApplyLocation(fix)
		_, ok := sessionJobDistance(fleetDriver, fleetJob, 30)
		assert.True(t, ok)

		outsider := contractor.NewSession("drv-2", &other)
		outsider.SetOnline(true)
		outsider.ApplyLocation(fix)
		_, ok = sessionJobDistance(outsider, fleetJob, 30)
		assert.False(t, ok)

		openMarket := contractor.NewSession("drv-3", nil)
		openMarket.SetOnline(true)
		openMarket.ApplyLocation(fix)
		_, ok = sessionJobDistance(openMarket, fleetJob, 30)
		assert.False(t, ok)
	})
}

func TestHandleEscalationDelivery(t *testing.T) {
	ctx := context.Background()

	t.Run("should relay a lapsed delegation", func(t *testing.T) {
		env := newTestEnv(time.Second)
		d := amqp.Delivery{
			RoutingKey: contracts.RouteEscalationPrefix + "op-1",
			Body:       []byte(`{"job_id":"job-1","operator_id":"op-1","lapsed_driver_id":"drv-1"}`),
		}
		require.NoError(t, env.svc.handleEscalationDelivery(ctx, d))
	})

	t.Run("should reject an escalation without a job id", func(t *testing.T) {
		env := newTestEnv(time.Second)
		d := amqp.Delivery{
			RoutingKey: contracts.RouteEscalationPrefix + "op-1",
			Body:       []byte(`{"operator_id":"op-1"}`),
		}
		assert.Error(t, env.svc.handleEscalationDelivery(ctx, d))
	})
}
