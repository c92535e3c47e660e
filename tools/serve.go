package tools

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/named-data/ndnd/std/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ndn-dise/ndnc-go/ft"
)

type ServeTool struct {
	config      string
	gqlserver   string
	mtu         int
	namePrefix  string
	root        string
	segmentSize uint64
	freshnessMs int64
	workers     int
	metricsAddr string
}

func CmdServe() *cobra.Command {
	s := ServeTool{}

	cmd := &cobra.Command{
		GroupID: "tools",
		Use:     "serve",
		Short:   "Serve a directory of files over NDN",
		Long: `Serve a directory of files over NDN.
The name prefix is registered on the forwarder; file paths below the root
directory are answered with RDR metadata and segment Data packets.`,
		Args:    cobra.NoArgs,
		Example: `  ndnc serve --name-prefix /ndnc/ft --root /srv/files`,
		Run:     s.run,
	}

	cmd.Flags().StringVar(&s.config, "config", "", "YAML config file with server options")
	cmd.Flags().StringVar(&s.gqlserver, "gqlserver", "http://localhost:3030/", "GraphQL server address")
	cmd.Flags().IntVar(&s.mtu, "mtu", 9000, "Dataroom size, between 64 and 9000")
	cmd.Flags().StringVar(&s.namePrefix, "name-prefix", "/ndnc/ft", "NDN name prefix to register")
	cmd.Flags().StringVar(&s.root, "root", ".", "Directory to serve")
	cmd.Flags().Uint64Var(&s.segmentSize, "segment-size", 4096, "Payload size of segment Data packets")
	cmd.Flags().Int64Var(&s.freshnessMs, "freshness", 1000, "Freshness of segment Data packets in milliseconds")
	cmd.Flags().IntVar(&s.workers, "workers", 4, "Interest handler goroutines")
	cmd.Flags().StringVar(&s.metricsAddr, "metrics", "", "Expose prometheus metrics on this address")
	return cmd
}

// log identifier
func (s *ServeTool) String() string {
	return "serve"
}

func (s *ServeTool) run(_ *cobra.Command, args []string) {
	opts := ft.ServerOptions{
		NamePrefix:  s.namePrefix,
		Root:        s.root,
		SegmentSize: s.segmentSize,
		Freshness:   time.Duration(s.freshnessMs) * time.Millisecond,
		Workers:     s.workers,
	}
	if err := loadYaml(s.config, &opts); err != nil {
		usageError("cannot read config file: %v", err)
	}
	if s.segmentSize == 0 || s.segmentSize > uint64(s.mtu) {
		usageError("segment size must fit the dataroom")
	}
	fo := faceOptions{gqlserver: s.gqlserver, mtu: s.mtu}
	if err := fo.validate(); err != nil {
		usageError("%v", err)
	}

	f, m, err := openFace(fo)
	if err != nil {
		log.Fatal(s, "Unable to create face", "err", err)
		return
	}
	defer m.DeleteFace()

	server, err := ft.NewServer(f, opts)
	if err != nil {
		usageError("%v", err)
	}
	if err := server.Start(); err != nil {
		log.Fatal(s, "Unable to start server", "err", err)
		return
	}
	defer server.Stop()

	if err := m.InsertFibEntry(opts.NamePrefix); err != nil {
		log.Fatal(s, "Unable to advertise prefix", "err", err)
		return
	}

	if s.metricsAddr != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(s.metricsAddr, nil); err != nil {
				log.Error(s, "Metrics endpoint failed", "err", err)
			}
		}()
	}

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, os.Interrupt, syscall.SIGTERM)
	receivedSig := <-sigchan
	log.Info(s, "Received signal - exiting", "signal", receivedSig)
}
