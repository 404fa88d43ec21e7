package natsadapter_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	natsadapter "github.com/samirrijal/fieldsync/internal/adapters/nats"
)

func TestSubjectAttached(t *testing.T) {
	tests := map[string]string{
		"UT":          "fieldsync.sites.attached.UT",
		"a.b":         "fieldsync.sites.attached.a_b",
		"proj *>":     "fieldsync.sites.attached.proj___",
		"":            "fieldsync.sites.attached._",
		"6b0e-uuid-1": "fieldsync.sites.attached.6b0e-uuid-1",
	}
	for in, want := range tests {
		require.Equal(t, want, natsadapter.SubjectAttached(in), in)
	}
}
