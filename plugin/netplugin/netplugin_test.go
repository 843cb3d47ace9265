package netplugin_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mtcore/mtcore"
	"github.com/mtcore/mtcore/plugin/netplugin"
)

// TestDispatcher_RoundTrip exercises the full plugin contract: an
// action registered with RegisterPluginAction hands its work to a
// Dispatcher talking over a real WebSocket to the package's demo echo
// server, and the task completes once the response arrives.
func TestDispatcher_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(netplugin.Upgrader())
	defer srv.Close()

	attrs := mtcore.DefaultNodeAttributes().WithWorkers(1)
	require.NoError(t, mtcore.Initialize(1, 1, attrs))
	defer mtcore.Finalize()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	d, err := netplugin.Dial(url, time.Second)
	require.NoError(t, err)
	defer d.Close()

	job, err := mtcore.GetJob(1, 1)
	require.NoError(t, err)

	_, err = mtcore.RegisterPluginAction(job, d.Start, d.Cancel, nil, nil, mtcore.DefaultActionAttributes())
	require.NoError(t, err)

	result := make([]byte, 4)
	th, err := mtcore.StartTask(job, []byte("ping"), result, mtcore.DefaultTaskAttributes(), mtcore.GroupHandle{})
	require.NoError(t, err)
	require.NoError(t, mtcore.WaitTask(th, 2*time.Second))
	require.Equal(t, "ping", string(result))
}

func TestDispatcher_DialFailureReturnsError(t *testing.T) {
	_, err := netplugin.Dial("ws://127.0.0.1:1/nope", 100*time.Millisecond)
	require.Error(t, err)
}
