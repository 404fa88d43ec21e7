package usecases_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/samirrijal/fieldsync/internal/core/usecases"
)

func TestDispatcher_RunsInOrder(t *testing.T) {
	d := startDispatcher(t)

	var got []int
	for i := 0; i < 10; i++ {
		i := i
		require.True(t, d.Post(func() { got = append(got, i) }))
	}
	drain(t, d)

	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestDispatcher_PostAfterStop(t *testing.T) {
	d := usecases.NewDispatcher(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Run(ctx)

	<-d.Done()
	require.False(t, d.Post(func() {}))
}
