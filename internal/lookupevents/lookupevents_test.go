package lookupevents

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/coverage-cache/internal/core/model"
	mylog "github.com/mohammed-shakir/coverage-cache/internal/logger"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestObserveLookup_PublishesPointEvent(t *testing.T) {
	prod := mocks.NewAsyncProducer(t, mocks.NewTestConfig())

	var got Event
	prod.ExpectInputWithCheckerFunctionAndSucceed(func(val []byte) error {
		return json.Unmarshal(val, &got)
	})

	p := NewWithProducer(prod, Options{
		Topic:   "coverage-lookups",
		CellFor: func(model.Point) (string, error) { return "881f1d4887fffff", nil },
		Logger:  discard(),
	})
	p.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	ctx := mylog.WithRequestID(context.Background(), "req-1")
	p.ObserveLookup(ctx, model.Lookup{
		Point:   &model.Point{Lat: 59.3293, Lon: 18.0686},
		Mediums: []string{"fiber"},
	}, false, "MISS")

	require.NoError(t, p.Close())

	require.Equal(t, "req-1", got.RequestID)
	require.Equal(t, "881f1d4887fffff", got.Cell)
	require.NotNil(t, got.Lat)
	require.InDelta(t, 59.3293, *got.Lat, 1e-9)
	require.False(t, got.Covered)
	require.Equal(t, "MISS", got.Cache)
	require.Equal(t, []string{"fiber"}, got.Mediums)
	require.True(t, got.TS.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
}

func TestObserveLookup_AddressEventHasNoCell(t *testing.T) {
	prod := mocks.NewAsyncProducer(t, mocks.NewTestConfig())

	var got Event
	prod.ExpectInputWithCheckerFunctionAndSucceed(func(val []byte) error {
		return json.Unmarshal(val, &got)
	})

	called := false
	p := NewWithProducer(prod, Options{
		Topic:   "coverage-lookups",
		CellFor: func(model.Point) (string, error) { called = true; return "", errors.New("unused") },
		Logger:  discard(),
	})
	p.ObserveLookup(context.Background(), model.Lookup{Address: "Main St 1"}, true, "HIT")
	require.NoError(t, p.Close())

	require.False(t, called)
	require.Empty(t, got.Cell)
	require.Nil(t, got.Lat)
	require.Equal(t, "Main St 1", got.Address)
	require.True(t, got.Covered)
}

func TestPublish_DropsWhenQueueFull(t *testing.T) {
	// no drain goroutine, so the queue fills
	p := &Publisher{events: make(chan Event, 1), logger: discard(), now: time.Now}

	require.True(t, p.Publish(Event{Address: "a"}))
	require.False(t, p.Publish(Event{Address: "b"}))
}

func TestPublish_AfterCloseIsDropped(t *testing.T) {
	prod := mocks.NewAsyncProducer(t, mocks.NewTestConfig())
	p := NewWithProducer(prod, Options{Topic: "t", Logger: discard()})

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	require.False(t, p.Publish(Event{Address: "late"}))
}

func TestEventKey(t *testing.T) {
	require.Equal(t, "cell", Event{Cell: "cell", Address: "addr"}.key())
	require.Equal(t, "addr", Event{Address: "addr"}.key())
}
