// Command swarmstep-cli is the interactive front-end of §7: a REPL that
// turns typed commands into OrderService RPCs against the coordinator
// master (master 0), the process cmd/swarmstep-node starts with --self 0.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/swarmstep/swarmstep/internal/control"
	"github.com/swarmstep/swarmstep/internal/wire"
	"github.com/swarmstep/swarmstep/pkg/snapshot"
)

func main() {
	var addr string
	var exportDir string

	root := &cobra.Command{
		Use:   "swarmstep-cli",
		Short: "Interactive control-plane session for a swarmstep cluster",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := snapshot.NewFileBackend(exportDir)
			if err != nil {
				return fmt.Errorf("open export store: %w", err)
			}
			defer store.Close()

			sess, err := newSession(addr, store)
			if err != nil {
				return err
			}
			defer sess.close()

			return sess.repl()
		},
	}
	root.Flags().StringVar(&addr, "addr", "127.0.0.1:50051", "Coordinator master's OrderService address")
	root.Flags().StringVar(&exportDir, "export-dir", "", "Directory export_json also saves exports under (default ~/.swarmstep/exports)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// session holds one REPL's connection state: the OrderService client,
// whether `init` has run yet (every other command but `init`/`quit`
// requires it), and the export store `export_json` also records to.
type session struct {
	conn        *grpc.ClientConn
	client      wire.OrderServiceClient
	store       snapshot.Store
	initialized bool
	paused      bool
}

func newSession(addr string, store snapshot.Store) (*session, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &session{
		conn:   conn,
		client: wire.NewOrderServiceClient(conn),
		store:  store,
	}, nil
}

func (s *session) close() {
	_ = s.conn.Close()
}

func (s *session) repl() error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		input, err := line.Prompt("swarmstep> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				return nil
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if input == "quit" {
			return nil
		}

		if err := s.dispatch(input); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			if err == control.ErrInvalidCommand {
				continue
			}
		}
	}
}

func (s *session) dispatch(input string) error {
	fields := strings.Fields(input)
	cmd, args := fields[0], fields[1:]

	if cmd != "init" && !s.initialized {
		return control.ErrNotInitialized
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cmd {
	case "init":
		return s.cmdInit(ctx, args)
	case "run":
		return s.cmdRun(ctx, args)
	case "pause":
		return s.cmdPause()
	case "kill":
		return s.cmdKill(ctx)
	case "set_period":
		return s.cmdSetPeriod(ctx, args)
	case "set_nb_threads":
		return s.cmdSetThreads(ctx, args)
	case "export_json":
		return s.cmdExportJSON(ctx, args)
	case "convert":
		return s.cmdConvert(args)
	default:
		return control.ErrInvalidCommand
	}
}

func (s *session) cmdInit(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return control.ErrInvalidCommand
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	if _, err := s.client.Submit(ctx, &wire.OrderRequest{Op: wire.OrderInit, Value: data}); err != nil {
		return err
	}
	s.initialized = true
	fmt.Println("initialized")
	return nil
}

func (s *session) cmdRun(ctx context.Context, args []string) error {
	n := 1
	if len(args) == 1 {
		parsed, err := strconv.Atoi(args[0])
		if err != nil {
			return control.ErrInvalidCommand
		}
		n = parsed
	} else if len(args) > 1 {
		return control.ErrInvalidCommand
	}
	s.paused = false
	if _, err := s.client.Submit(ctx, &wire.OrderRequest{Op: wire.OrderRun, Steps: int32(n)}); err != nil {
		return err
	}
	fmt.Printf("ran %d step(s)\n", n)
	return nil
}

// cmdPause never talks to the coordinator: pausing a lock-step run is
// simply the CLI not issuing any more `run` commands (§6) — there is no
// PAUSE opcode to broadcast, so this only updates local REPL state.
func (s *session) cmdPause() error {
	s.paused = true
	fmt.Println("paused (no further run commands will be issued)")
	return nil
}

func (s *session) cmdKill(ctx context.Context) error {
	if _, err := s.client.Submit(ctx, &wire.OrderRequest{Op: wire.OrderKill}); err != nil {
		return err
	}
	fmt.Println("cluster killed")
	return nil
}

func (s *session) cmdSetPeriod(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return control.ErrInvalidCommand
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return control.ErrInvalidCommand
	}
	if _, err := s.client.Submit(ctx, &wire.OrderRequest{Op: wire.OrderChangePeriod, Period: int32(n)}); err != nil {
		return err
	}
	fmt.Printf("period set to %d\n", n)
	return nil
}

func (s *session) cmdSetThreads(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return control.ErrInvalidCommand
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return control.ErrInvalidCommand
	}
	if _, err := s.client.Submit(ctx, &wire.OrderRequest{Op: wire.OrderSetThreads, Threads: int32(n)}); err != nil {
		return err
	}
	fmt.Printf("thread groups set to %d\n", n)
	return nil
}

func (s *session) cmdExportJSON(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return control.ErrInvalidCommand
	}
	resp, err := s.client.Submit(ctx, &wire.OrderRequest{Op: wire.OrderExportSimulation})
	if err != nil {
		return err
	}
	if err := os.WriteFile(args[0], resp.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", args[0], err)
	}

	var doc snapshot.Document
	if err := json.Unmarshal(resp.Data, &doc); err == nil {
		meta := snapshot.ExportMetadata{ID: uuid.NewString(), CreatedAt: time.Now()}
		if err := s.store.SaveExport(ctx, meta, &doc); err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not save export to store: %v\n", err)
		}
	}

	fmt.Printf("exported to %s\n", args[0])
	return nil
}

// cmdConvert is purely local (R1): it turns a previously exported
// Document back into an InitDocument a later `init` can load, without
// talking to the cluster at all.
func (s *session) cmdConvert(args []string) error {
	if len(args) != 2 {
		return control.ErrInvalidCommand
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	var doc snapshot.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", snapshot.ErrMalformedInstance, err)
	}

	init := snapshot.Convert(&doc)
	out, err := json.MarshalIndent(init, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal init document: %w", err)
	}
	if err := os.WriteFile(args[1], out, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", args[1], err)
	}
	fmt.Printf("converted %s -> %s\n", args[0], args[1])
	return nil
}
