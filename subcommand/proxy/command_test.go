package proxy

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/mitchellh/cli"
	"github.com/stretchr/testify/require"
)

func TestRun_FlagValidation(t *testing.T) {
	ui := cli.NewMockUi()
	cmd := &Command{UI: ui}

	code := cmd.Run([]string{"-transport-error-status=418"})
	require.Equal(t, 1, code)
	require.Contains(t, ui.ErrorWriter.String(), "invalid -transport-error-status")
}

func TestRun_ExitsCleanlyOnSignal(t *testing.T) {
	testSignalHandling(t, syscall.SIGINT)
}

func TestRun_ExitsCleanlyOnSIGTERM(t *testing.T) {
	testSignalHandling(t, syscall.SIGTERM)
}

func testSignalHandling(t *testing.T, sig os.Signal) {
	t.Helper()
	require := require.New(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "apis.json")
	require.NoError(os.WriteFile(path, []byte(`{"sources":[]}`), 0o644))

	ui := cli.NewMockUi()
	cmd := &Command{UI: ui}

	exitChan := make(chan int, 1)
	go func() {
		exitChan <- cmd.Run([]string{
			"-config=" + path,
			"-listen=127.0.0.1:0",
			"-disable-hot-reload",
		})
	}()

	// Wait for init to run and sigCh to be ready before sending.
	require.Eventually(func() bool {
		cmd.once.Do(cmd.init)
		return cmd.sigCh != nil
	}, time.Second, time.Millisecond)
	cmd.sendSignal(sig)

	select {
	case code := <-exitChan:
		require.Equal(0, code, ui.ErrorWriter.String())
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for command to exit")
	}
}

func TestRun_ForwardsToUpstream(t *testing.T) {
	require := require.New(t)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "apis.json")
	cfg := `{"sources":[{"identifier":{"url":"` + upstream.URL + `/a","method":"GET"},"rate_limit":{"interval":0.001}}]}`
	require.NoError(os.WriteFile(path, []byte(cfg), 0o644))

	listener := httptest.NewUnstartedServer(http.NotFoundHandler())
	addr := listener.Listener.Addr().String()
	listener.Close()

	ui := cli.NewMockUi()
	cmd := &Command{UI: ui}
	go cmd.Run([]string{
		"-config=" + path,
		"-listen=" + addr,
		"-disable-hot-reload",
	})
	defer cmd.interrupt()

	var resp *http.Response
	var err error
	require.Eventually(func() bool {
		resp, err = http.Get("http://" + addr + "/" + upstream.URL + "/a")
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(err)
	defer resp.Body.Close()
	require.Equal(http.StatusOK, resp.StatusCode)
}
