// Package cluster manages the gRPC connections a master keeps open to every
// other master in the run, and the dial/listen option plumbing (TLS,
// interceptors) shared by those connections.
package cluster

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/swarmstep/swarmstep/internal/catalog"
	"github.com/swarmstep/swarmstep/internal/wire"
)

// ErrUnknownMaster is returned when a peer call targets a master id that
// was never added to the cluster's address table.
var ErrUnknownMaster = errors.New("cluster: unknown master")

// TLSConfig mirrors the cluster's transport security configuration between
// masters. It is identical in shape to a single-process runtime's TLS
// configuration, since both dial the same kind of gRPC peer.
type TLSConfig struct {
	Enabled            bool
	CertFile           string
	KeyFile            string
	CAFile             string
	ServerName         string
	InsecureSkipVerify bool
	ExternalTLS        bool
}

type peer struct {
	addr   string
	conn   *grpc.ClientConn
	client wire.PeerServiceClient
}

// Cluster holds one lazily-dialed gRPC connection per peer master.
type Cluster struct {
	mu    sync.RWMutex
	self  catalog.MasterID
	peers map[catalog.MasterID]*peer
	tls   *TLSConfig
}

// New creates a Cluster for the given local master id, with TLS
// configuration applied to every outgoing connection it dials. addrs maps
// every master in the run (including self) to its listen address.
func New(self catalog.MasterID, addrs map[catalog.MasterID]string, tlsCfg *TLSConfig) (*Cluster, error) {
	c := &Cluster{
		self:  self,
		peers: make(map[catalog.MasterID]*peer, len(addrs)),
		tls:   tlsCfg,
	}

	dialOpts, err := c.buildDialOptions()
	if err != nil {
		return nil, fmt.Errorf("cluster: %w", err)
	}

	for id, addr := range addrs {
		if id == self {
			continue
		}
		conn, err := grpc.NewClient(addr, dialOpts...)
		if err != nil {
			return nil, fmt.Errorf("cluster: dial master %d at %s: %w", id, addr, err)
		}
		c.peers[id] = &peer{
			addr:   addr,
			conn:   conn,
			client: wire.NewPeerServiceClient(conn),
		}
	}

	return c, nil
}

// Peer returns the client stub for the given master.
func (c *Cluster) Peer(id catalog.MasterID) (wire.PeerServiceClient, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.peers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMaster, id)
	}
	return p.client, nil
}

// Masters returns every peer master id known to this cluster, excluding
// self.
func (c *Cluster) Masters() []catalog.MasterID {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]catalog.MasterID, 0, len(c.peers))
	for id := range c.peers {
		out = append(out, id)
	}
	return out
}

// Close tears down every outgoing peer connection.
func (c *Cluster) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for _, p := range c.peers {
		if err := p.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// buildDialOptions creates gRPC dial options based on TLS configuration,
// applying the same production safety gate as a single-process runtime:
// InsecureSkipVerify is refused unless ENVIRONMENT names a non-production
// deployment.
func (c *Cluster) buildDialOptions() ([]grpc.DialOption, error) {
	var opts []grpc.DialOption

	if c.tls != nil && c.tls.ExternalTLS {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		return opts, nil
	}

	if c.tls != nil && c.tls.Enabled {
		if c.tls.InsecureSkipVerify {
			env := strings.ToLower(os.Getenv("ENVIRONMENT"))
			allowedNonProdEnvs := map[string]bool{
				"development": true,
				"dev":         true,
				"staging":     true,
				"local":       true,
				"test":        true,
			}
			if !allowedNonProdEnvs[env] {
				return nil, fmt.Errorf("SECURITY: InsecureSkipVerify cannot be enabled in production environment (ENVIRONMENT=%q). "+
					"Set ENVIRONMENT to 'development', 'dev', 'staging', 'local', or 'test' to allow insecure TLS", env)
			}
			log.Printf("[cluster] WARNING: TLS certificate verification is disabled (InsecureSkipVerify=true). "+
				"Connections are vulnerable to man-in-the-middle attacks. Current ENVIRONMENT=%s", env)
		}

		tlsCfg := &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: c.tls.InsecureSkipVerify, // #nosec G402 -- gated by ENVIRONMENT check above
		}
		if c.tls.ServerName != "" {
			tlsCfg.ServerName = c.tls.ServerName
		}
		if c.tls.CAFile != "" {
			caData, err := os.ReadFile(c.tls.CAFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read CA file: %w", err)
			}
			caPool := x509.NewCertPool()
			if !caPool.AppendCertsFromPEM(caData) {
				return nil, fmt.Errorf("failed to parse CA certificate")
			}
			tlsCfg.RootCAs = caPool
		}
		if c.tls.CertFile != "" && c.tls.KeyFile != "" {
			cert, err := tls.LoadX509KeyPair(c.tls.CertFile, c.tls.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load client certificate: %w", err)
			}
			tlsCfg.Certificates = []tls.Certificate{cert}
		}
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(tlsCfg)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	return opts, nil
}

// BuildServerOptions returns the gRPC server options a master should use
// when constructing its listener, mirroring the dial side's TLS handling.
func (c *Cluster) BuildServerOptions() ([]grpc.ServerOption, error) {
	var opts []grpc.ServerOption

	if c.tls == nil || !c.tls.Enabled || c.tls.ExternalTLS {
		return opts, nil
	}

	if c.tls.CertFile == "" || c.tls.KeyFile == "" {
		return nil, fmt.Errorf("cluster: TLS enabled but CertFile/KeyFile not set")
	}
	cert, err := tls.LoadX509KeyPair(c.tls.CertFile, c.tls.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load server certificate: %w", err)
	}
	tlsCfg := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}
	if c.tls.CAFile != "" {
		caData, err := os.ReadFile(c.tls.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}
		caPool := x509.NewCertPool()
		if !caPool.AppendCertsFromPEM(caData) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsCfg.ClientCAs = caPool
		tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	opts = append(opts, grpc.Creds(credentials.NewTLS(tlsCfg)))
	return opts, nil
}
