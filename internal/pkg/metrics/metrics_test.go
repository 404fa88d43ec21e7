package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type fakeStat struct{ acquired, idle int32 }

func (f fakeStat) AcquiredConns() int32 { return f.acquired }
func (f fakeStat) IdleConns() int32     { return f.idle }
func (f fakeStat) TotalConns() int32    { return f.acquired + f.idle }

func TestObservePool(t *testing.T) {
	ObservePool(fakeStat{acquired: 2, idle: 3})

	require.Equal(t, 2.0, testutil.ToFloat64(BlobPoolConns.WithLabelValues("acquired")))
	require.Equal(t, 3.0, testutil.ToFloat64(BlobPoolConns.WithLabelValues("idle")))
	require.Equal(t, 5.0, testutil.ToFloat64(BlobPoolConns.WithLabelValues("total")))
}
