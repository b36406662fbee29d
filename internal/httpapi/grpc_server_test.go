package httpapi

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1024 * 1024

func startBufGRPC(t *testing.T, srv *GRPCServer) (*grpc.ClientConn, func()) {
	t.Helper()

	listener := bufconn.Listen(bufSize)
	server := grpc.NewServer()
	srv.Register(server)

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			t.Logf("grpc serve error: %v", err)
		}
	}()

	dialer := func(ctx context.Context, _ string) (net.Conn, error) {
		return listener.DialContext(ctx)
	}
	conn, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufnet: %v", err)
	}

	cleanup := func() {
		server.GracefulStop()
		_ = conn.Close()
		_ = listener.Close()
	}
	return conn, cleanup
}

func checkHealth(t *testing.T, conn *grpc.ClientConn, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Check(%q): %v", service, err)
	}
	return resp.GetStatus()
}

func TestGRPCHealthFollowsProbe(t *testing.T) {
	var probeErr error
	srv := NewGRPCServer(readyFunc(func(context.Context) error { return probeErr }))
	conn, cleanup := startBufGRPC(t, srv)
	defer cleanup()

	if got := checkHealth(t, conn, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("before refresh: %v", got)
	}

	if err := srv.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got := checkHealth(t, conn, serviceName); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("after healthy refresh: %v", got)
	}

	probeErr = errors.New("store down")
	if err := srv.Refresh(context.Background()); err == nil {
		t.Fatal("expected probe error")
	}
	if got := checkHealth(t, conn, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("after failing refresh: %v", got)
	}
}
