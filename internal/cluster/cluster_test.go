package cluster

import (
	"net"
	"testing"

	"github.com/swarmstep/swarmstep/internal/catalog"
	"google.golang.org/grpc"
)

func listenLocal(t *testing.T) (net.Listener, string) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	return lis, lis.Addr().String()
}

func TestNew_NoTLS(t *testing.T) {
	lisA, addrA := listenLocal(t)
	defer lisA.Close()
	srv := grpc.NewServer()
	go srv.Serve(lisA)
	defer srv.Stop()

	addrs := map[catalog.MasterID]string{
		0: "self-unused:0",
		1: addrA,
	}
	c, err := New(0, addrs, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if _, err := c.Peer(1); err != nil {
		t.Errorf("Peer(1) = %v, want nil error", err)
	}
	if _, err := c.Peer(2); err == nil {
		t.Error("Peer(2) = nil error, want ErrUnknownMaster")
	}
}

func TestNew_SkipsSelf(t *testing.T) {
	addrs := map[catalog.MasterID]string{
		0: "127.0.0.1:0",
	}
	c, err := New(0, addrs, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if len(c.Masters()) != 0 {
		t.Errorf("Masters() = %v, want empty (self excluded)", c.Masters())
	}
}

func TestBuildDialOptions_InsecureSkipVerifyBlockedInProduction(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")

	c := &Cluster{tls: &TLSConfig{Enabled: true, InsecureSkipVerify: true}}
	if _, err := c.buildDialOptions(); err == nil {
		t.Error("buildDialOptions() = nil error, want production safety error")
	}
}

func TestBuildDialOptions_InsecureSkipVerifyAllowedInDev(t *testing.T) {
	t.Setenv("ENVIRONMENT", "dev")

	c := &Cluster{tls: &TLSConfig{Enabled: true, InsecureSkipVerify: true}}
	if _, err := c.buildDialOptions(); err != nil {
		t.Errorf("buildDialOptions() = %v, want nil", err)
	}
}

func TestBuildDialOptions_ExternalTLSUsesPlaintext(t *testing.T) {
	c := &Cluster{tls: &TLSConfig{ExternalTLS: true}}
	opts, err := c.buildDialOptions()
	if err != nil {
		t.Fatalf("buildDialOptions: %v", err)
	}
	if len(opts) != 1 {
		t.Errorf("len(opts) = %d, want 1", len(opts))
	}
}

func TestBuildServerOptions_NoTLS(t *testing.T) {
	c := &Cluster{}
	opts, err := c.BuildServerOptions()
	if err != nil {
		t.Fatalf("BuildServerOptions: %v", err)
	}
	if len(opts) != 0 {
		t.Errorf("len(opts) = %d, want 0", len(opts))
	}
}

func TestBuildServerOptions_EnabledWithoutCertFails(t *testing.T) {
	c := &Cluster{tls: &TLSConfig{Enabled: true}}
	if _, err := c.BuildServerOptions(); err == nil {
		t.Error("BuildServerOptions() = nil error, want missing cert error")
	}
}

func TestPeer_UnknownMaster(t *testing.T) {
	c, err := New(0, map[catalog.MasterID]string{0: "x:0"}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if _, err := c.Peer(99); err == nil {
		t.Error("Peer(99) = nil error, want ErrUnknownMaster")
	}
}
