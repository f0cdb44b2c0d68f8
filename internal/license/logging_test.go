package license

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vcengine/internal/security"
	"vcengine/internal/shared/testutil"
)

// Keys must never reach the logs in full, on any code path.
func TestActivationLogsMaskKey(t *testing.T) {
	logger, captured := testutil.NewCapture()

	codec, err := NewCodec([]byte("masking-test-secret"), "VC01")
	require.NoError(t, err)
	hw := security.NewGenerator()
	store := NewStore(filepath.Join(t.TempDir(), "license.json"), hw, logger)
	client := NewClient("http://127.0.0.1:1", logger)

	manager := NewManager(codec, store, client, hw, DefaultPolicy(PostBinding), logger)

	valid, err := codec.Generate(PostBinding, time.Time{}, "")
	require.NoError(t, err)

	// Corrupt the checksum so the codec-rejection path fires; that path
	// logs the offered key.
	key := valid[:len(valid)-1]
	if strings.HasSuffix(valid, "A") {
		key += "B"
	} else {
		key += "A"
	}

	result, err := manager.Activate(context.Background(), key)
	require.NoError(t, err)
	require.False(t, result.Success)

	values := captured.AttrValues("license_key")
	require.NotEmpty(t, values)

	rawSegments := strings.Split(key, "-")
	for _, value := range values {
		logged := fmt.Sprintf("%v", value)
		require.NotEqual(t, key, logged)
		require.Contains(t, logged, "****")
		// Middle segments must not survive masking.
		for _, segment := range rawSegments[1 : len(rawSegments)-1] {
			require.NotContains(t, logged, "-"+segment+"-")
		}
	}
}

func TestMalformedKeyRejectionIsLogged(t *testing.T) {
	logger, captured := testutil.NewCapture()

	codec, err := NewCodec([]byte("masking-test-secret"), "VC01")
	require.NoError(t, err)
	hw := security.NewGenerator()
	store := NewStore(filepath.Join(t.TempDir(), "license.json"), hw, logger)
	client := NewClient("http://127.0.0.1:1", logger)

	manager := NewManager(codec, store, client, hw, DefaultPolicy(PostBinding), logger)

	result, err := manager.Activate(context.Background(), "NOT-A-KEY")
	require.NoError(t, err)
	require.False(t, result.Success)
	require.True(t, captured.ContainsMessage("activation rejected by codec"))
}
