package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/ontogate/events"
	"github.com/c360studio/ontogate/loader"
	"github.com/c360studio/ontogate/validation"
)

type fakeConn struct {
	mu   sync.Mutex
	msgs map[string][][]byte
	err  error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.msgs == nil {
		f.msgs = make(map[string][][]byte)
	}
	f.msgs[subject] = append(f.msgs[subject], data)
	return nil
}

func decode(t *testing.T, data []byte) events.Event {
	t.Helper()
	var ev events.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestEmitter_FilesLoaded(t *testing.T) {
	conn := &fakeConn{}
	e := events.New(conn, "", nil)

	e.FilesLoaded(context.Background(), loader.Outcome{
		Successful: []loader.FileResult{{Path: "core.ttl", Triples: 4}},
		Failed:     []loader.Failure{{Path: "bad.ttl", Err: errors.New("syntax")}},
	})

	msgs := conn.msgs["ontogate.events.files.loaded"]
	require.Len(t, msgs, 1)
	ev := decode(t, msgs[0])
	assert.Equal(t, events.TypeFilesLoaded, ev.Type)
	assert.NotEmpty(t, ev.ID)

	data := ev.Data.(map[string]any)
	assert.Equal(t, float64(4), data["triples"])
	assert.Equal(t, []any{"core.ttl"}, data["successful_files"])
}

func TestEmitter_ValidationAndClear(t *testing.T) {
	conn := &fakeConn{}
	e := events.New(conn, "test", nil)
	ctx := context.Background()

	e.ValidationCompleted(ctx, validation.NewReport(nil))
	e.StoreCleared(ctx, 3)
	e.TriplesChanged(ctx, events.TypeTriplesAdded, 2)

	require.Len(t, conn.msgs["test.validation.completed"], 1)
	ev := decode(t, conn.msgs["test.validation.completed"][0])
	assert.Equal(t, true, ev.Data.(map[string]any)["conforms"])

	require.Len(t, conn.msgs["test.store.cleared"], 1)
	require.Len(t, conn.msgs["test.triples.added"], 1)
}

func TestEmitter_PublishError(t *testing.T) {
	e := events.New(&fakeConn{err: errors.New("down")}, "", nil)
	err := e.Emit(context.Background(), "x", nil)
	assert.ErrorContains(t, err, "down")
}

func TestEmitter_NilIsNoop(t *testing.T) {
	var e *events.Emitter
	ctx := context.Background()

	assert.NoError(t, e.Emit(ctx, "x", nil))
	e.FilesLoaded(ctx, loader.Outcome{})
	e.StoreCleared(ctx, 1)
	assert.NoError(t, e.Close())
}

func TestEmitter_CancelledContext(t *testing.T) {
	conn := &fakeConn{}
	e := events.New(conn, "", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, e.Emit(ctx, "x", nil))
	assert.Empty(t, conn.msgs)
}
