package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sysprogs-oss/hldp/breakpoint"
	"github.com/sysprogs-oss/hldp/debugger"
	"github.com/sysprogs-oss/hldp/interp"
	"github.com/sysprogs-oss/hldp/telemetry"
)

var (
	servePort       int
	serveSourceRoot string
	serveTelemetry  string
)

var serveCmd = &cobra.Command{
	Use:   "serve script.txt",
	Short: "Listen for one HLDP client and debug a script",
	Long: `serve parses a list-file script, listens on a TCP port, and runs the
script to completion once a client connects, serving breakpoints, stepping,
and expression requests over HLDP until the client disconnects or the
script finishes.

The debugger always stops on the first statement, reporting InitialBreakIn
(spec.md §8 scenario 1) unless a breakpoint there supplies the reason; there
is no flag to suppress it, matching the original HLDPServer constructor's
break_in_pending=true default.

Examples:
  hldpd serve script.txt                 Listen on :4711
  hldpd serve --port 9229 script.txt     Listen on a different port
  hldpd serve --telemetry otel script.txt  Wrap pauses/requests in otel spans`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger()
		file := args[0]

		root := serveSourceRoot
		if root == "" {
			wd, err := os.Getwd()
			if err != nil {
				fmt.Fprintf(os.Stderr, "hldpd: cannot determine working directory: %v\n", err)
				os.Exit(1)
			}
			root = wd
		}
		root, err := filepath.Abs(root)
		if err != nil {
			fmt.Fprintf(os.Stderr, "hldpd: cannot resolve --source-root: %v\n", err)
			os.Exit(1)
		}
		if !filepath.IsAbs(file) {
			file = filepath.Join(root, file)
		}

		source, err := os.ReadFile(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "hldpd: cannot read %s: %v\n", file, err)
			os.Exit(1)
		}
		stmts, err := interp.Parse(file, source)
		if err != nil {
			fmt.Fprintf(os.Stderr, "hldpd: parse error: %v\n", err)
			os.Exit(1)
		}

		annotator, err := buildAnnotator(cmd.Context(), serveTelemetry)
		if err != nil {
			fmt.Fprintf(os.Stderr, "hldpd: %v\n", err)
			os.Exit(1)
		}

		bp := breakpoint.NewManager(log)
		defer bp.Close() //nolint:errcheck

		rt := interp.NewRuntime()

		addr := fmt.Sprintf("localhost:%d", servePort)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "hldpd: cannot listen on %s: %v\n", addr, err)
			os.Exit(1)
		}
		defer ln.Close() //nolint:errcheck

		log.WithField("addr", addr).Info("hldpd: waiting for a client to connect")
		nc, err := ln.Accept()
		if err != nil {
			fmt.Fprintf(os.Stderr, "hldpd: accept error: %v\n", err)
			os.Exit(1)
		}
		defer nc.Close() //nolint:errcheck

		sessionLog := log.WithField("session_id", uuid.NewString())

		var opts []debugger.ServeOption
		if annotator != nil {
			opts = append(opts, debugger.WithAnnotator(annotator))
		}
		if err := debugger.Serve(nc, stmts, rt, bp, sessionLog, opts...); err != nil {
			sessionLog.WithError(err).Error("hldpd: session ended with an error")
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVar(&servePort, "port", 4711, "TCP port to listen on")
	serveCmd.Flags().StringVar(&serveSourceRoot, "source-root", "",
		"Root directory the script path is resolved against (default: working directory)")
	serveCmd.Flags().StringVar(&serveTelemetry, "telemetry", "none",
		`Span backend wrapping the stop-and-serve loop: "none", "otel", or "opencensus".`)
}

// buildAnnotator constructs the telemetry backend named by --telemetry, or
// nil for "none". cmd/hldpd does not configure an exporter itself; Enable
// only checks that ctx is non-nil, and spans go to whatever global tracer
// provider or exporter the operator set up before starting hldpd.
func buildAnnotator(ctx context.Context, name string) (telemetry.Annotator, error) {
	switch name {
	case "", "none":
		return nil, nil
	case "otel":
		a := telemetry.NewOpenTelemetryAnnotator(ctx)
		if err := a.Enable(); err != nil {
			return nil, err
		}
		return a, nil
	case "opencensus":
		a := telemetry.NewOpenCensusAnnotator(ctx)
		if err := a.Enable(); err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown --telemetry backend %q", name)
	}
}
