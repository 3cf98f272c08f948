package cmd

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/smazurov/webcluster/internal/cluster"
	"github.com/smazurov/webcluster/internal/ipc"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

// runAsync runs the worker loop in a goroutine and returns its exit code channel.
func runAsync(ctx context.Context, opts *workerOptions) <-chan int {
	code := make(chan int, 1)
	go func() { code <- runWorker(ctx, opts, testLogger()) }()
	return code
}

func expectExit(t *testing.T, code <-chan int, want int) {
	t.Helper()
	select {
	case got := <-code:
		if got != want {
			t.Errorf("expected exit code %d, got %d", want, got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not exit")
	}
}

func healthStatus(t *testing.T, port int) int {
	t.Helper()
	resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(port) + "/health")
	if err != nil {
		return 0
	}
	resp.Body.Close()
	return resp.StatusCode
}

func waitHealth(t *testing.T, port, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for healthStatus(t, port) != want {
		if time.Now().After(deadline) {
			t.Fatalf("health never returned %d", want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRunWorker_StandaloneShutdown(t *testing.T) {
	port := freePort(t)
	ctx, cancel := context.WithCancel(context.Background())
	code := runAsync(ctx, &workerOptions{WorkerID: 3, Port: port, Host: "127.0.0.1"})

	// without a primary the worker reports healthy on its own
	waitHealth(t, port, http.StatusOK)

	cancel()
	expectExit(t, code, 0)
}

func TestRunWorker_CrashAfter(t *testing.T) {
	code := runAsync(context.Background(), &workerOptions{
		Port:       freePort(t),
		Host:       "127.0.0.1",
		CrashAfter: 50 * time.Millisecond,
	})
	expectExit(t, code, 1)
}

func TestRunWorker_ListenFailure(t *testing.T) {
	code := runAsync(context.Background(), &workerOptions{Port: 8080, Host: "256.0.0.1"})
	expectExit(t, code, 1)
}

func TestRunWorker_HealthyAfterClusterSignal(t *testing.T) {
	server, err := ipc.NewServer(ipc.ServerOptions{Ephemeral: true, Logger: testLogger()})
	if err != nil {
		t.Fatalf("failed to create message server: %v", err)
	}
	if err := server.Start(); err != nil {
		t.Fatalf("failed to start message server: %v", err)
	}
	t.Cleanup(server.Stop)

	started := make(chan int, 1)
	bridge := ipc.NewBridge(server.ClientURL(), testLogger())
	bridge.OnSignal(func(pid int, sig cluster.Signal) {
		if sig == cluster.SignalAppStarted {
			started <- pid
		}
	})
	if err := bridge.Start(); err != nil {
		t.Fatalf("failed to start bridge: %v", err)
	}
	t.Cleanup(bridge.Stop)

	port := freePort(t)
	ctx, cancel := context.WithCancel(context.Background())
	code := runAsync(ctx, &workerOptions{
		WorkerID: 1,
		Port:     port,
		Host:     "127.0.0.1",
		IPCURL:   server.ClientURL(),
	})

	var pid int
	select {
	case pid = <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("app_started not received")
	}
	if pid != os.Getpid() {
		t.Errorf("expected pid %d, got %d", os.Getpid(), pid)
	}

	if got := healthStatus(t, port); got != http.StatusNotFound {
		t.Errorf("expected 404 before cluster_healthy, got %d", got)
	}

	bridge.Send(pid, cluster.SignalClusterHealthy)
	waitHealth(t, port, http.StatusOK)

	cancel()
	expectExit(t, code, 0)
}
