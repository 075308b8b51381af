package sandbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPassThroughExec(t *testing.T) {
	sb := PassThrough{}
	require.NoError(t, sb.Init(context.Background()))

	res, err := sb.Exec(context.Background(), ExecRequest{Command: "echo", Args: []string{"hi"}})
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)
	require.Contains(t, res.Stdout, "hi")
}

func TestManagerCachesByKey(t *testing.T) {
	calls := 0
	m := NewManager(func(cfg Config) (Sandbox, error) {
		calls++
		return PassThrough{}, nil
	})

	key := Key("agent-1", "", false)
	_, err := m.Get(context.Background(), key, Config{Variant: VariantPassThrough})
	require.NoError(t, err)
	_, err = m.Get(context.Background(), key, Config{Variant: VariantPassThrough})
	require.NoError(t, err)

	require.Equal(t, 1, calls)
}

func TestSandboxKeyScoping(t *testing.T) {
	require.Equal(t, "shared", Key("a", "s", true))
	require.Equal(t, "session:s", Key("a", "s", false))
	require.Equal(t, "agent:a", Key("a", "", false))
}
