package snapshot

import (
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "zester/pkg/errors"
	"zester/pkg/soundcloud"
)

type item struct {
	record soundcloud.Record
	err    error
}

func sequence(items ...item) iter.Seq2[soundcloud.Record, error] {
	return func(yield func(soundcloud.Record, error) bool) {
		for _, it := range items {
			if !yield(it.record, it.err) {
				return
			}
		}
	}
}

func like(id int64) item {
	return item{record: &soundcloud.Like{ID: id, Track: soundcloud.Track{ID: id}}}
}

func fixedClock() time.Time {
	return time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*60*60))
}

func TestAssemble(t *testing.T) {
	a := &Assembler{RunID: "run-1", Now: fixedClock}

	snap, err := a.Assemble(sequence(like(3), like(1), like(2)), soundcloud.KindLikes)
	require.NoError(t, err)

	assert.Equal(t, "run-1", snap.RunID)
	assert.Equal(t, soundcloud.KindLikes, snap.Kind)
	assert.Equal(t, 3, snap.Count)
	assert.Equal(t, []int64{3, 1, 2}, snap.IDs(), "emitted order is kept")
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), snap.FetchedAt)
}

func TestAssembleEmpty(t *testing.T) {
	snap, err := NewAssembler().Assemble(sequence(), soundcloud.KindComments)
	require.NoError(t, err)

	assert.Equal(t, 0, snap.Count)
	assert.NotNil(t, snap.Records)
	_, err = uuid.Parse(snap.RunID)
	assert.NoError(t, err)
}

func TestAssembleGeneratesRunID(t *testing.T) {
	snap, err := (&Assembler{}).Assemble(sequence(like(1)), soundcloud.KindLikes)
	require.NoError(t, err)
	assert.NotEmpty(t, snap.RunID)
}

func TestAssemblePropagatesErrors(t *testing.T) {
	decodeErr := errs.NewDecodeError("likes item 0", errors.New("missing required field"))

	snap, err := NewAssembler().Assemble(
		sequence(like(1), like(2), item{err: decodeErr}),
		soundcloud.KindLikes)

	assert.Nil(t, snap, "no snapshot after a failure")
	assert.Same(t, decodeErr, err)
}

func TestAssembleRejectsInvalidSequences(t *testing.T) {
	tests := []struct {
		name  string
		items []item
		want  string
	}{
		{"foreign kind", []item{like(1), {record: &soundcloud.Comment{ID: 2}}}, "comments record in likes snapshot"},
		{"repeated id", []item{like(1), like(2), like(1)}, "record id 1 repeats"},
		{"nil record", []item{like(1), {}}, "nil record"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := NewAssembler().Assemble(sequence(tt.items...), soundcloud.KindLikes)
			require.Error(t, err)
			assert.Nil(t, snap)
			assert.True(t, errs.Is(err, errs.ErrorTypeDecode))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestAssembleStopsConsumingOnError(t *testing.T) {
	consumed := 0
	seq := func(yield func(soundcloud.Record, error) bool) {
		for _, it := range []item{like(1), like(1), like(2)} {
			consumed++
			if !yield(it.record, it.err) {
				return
			}
		}
	}

	_, err := NewAssembler().Assemble(seq, soundcloud.KindLikes)
	require.Error(t, err)
	assert.Equal(t, 2, consumed)
}
