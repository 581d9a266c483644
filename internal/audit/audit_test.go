package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeProducer struct {
	got []*kgo.Record
	err error
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	f.got = append(f.got, rs...)
	out := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		out = append(out, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return out
}

func TestKafka_Emit(t *testing.T) {
	fp := &fakeProducer{}
	k := NewKafka(fp, "file-movements")
	to := uuid.Must(uuid.NewV4())
	e := Event{
		Action: ActionCharge,
		FileID: uuid.Must(uuid.NewV4()),
		UserID: uuid.Must(uuid.NewV4()),
		ToUser: &to,
		At:     time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, k.Emit(context.Background(), e))
	require.Len(t, fp.got, 1)

	rec := fp.got[0]
	require.Equal(t, "file-movements", rec.Topic)
	require.Equal(t, e.FileID.String(), string(rec.Key))

	var back Event
	require.NoError(t, json.Unmarshal(rec.Value, &back))
	require.Equal(t, e, back)
}

func TestKafka_EmitError(t *testing.T) {
	fp := &fakeProducer{err: errors.New("broker down")}
	err := NewKafka(fp, "t").Emit(context.Background(), Event{Action: ActionRequest})
	require.ErrorContains(t, err, "broker down")
}

func TestLog_Emit(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := NewLog(zap.New(core))
	require.NoError(t, p.Emit(context.Background(), Event{Action: ActionReturn, FileID: uuid.Must(uuid.NewV4())}))

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "movement", entries[0].Message)
	require.Equal(t, ActionReturn, entries[0].ContextMap()["action"])
}

func TestMulti_ReturnsFirstError(t *testing.T) {
	bad := &fakeProducer{err: errors.New("x")}
	good := &fakeProducer{}
	m := Multi{NewKafka(bad, "a"), NewKafka(good, "b")}
	require.Error(t, m.Emit(context.Background(), Event{}))
	require.Len(t, good.got, 1)
}
