package identifiers

import (
	"testing"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	for _, valid := range []string{"init", "worker-1", "vfs.service", "a_b_c", "PID7"} {
		require.NoError(t, Validate(valid), "expected %q to be valid", valid)
	}
}

func TestValidateRejects(t *testing.T) {
	for _, invalid := range []string{"", "-leading-dash", "has space", "trailing.", string(make([]byte, 65))} {
		err := Validate(invalid)
		require.Error(t, err, "expected %q to be rejected", invalid)
		require.True(t, errdefs.IsInvalidArgument(err))
	}
}
