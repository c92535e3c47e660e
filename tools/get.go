package tools

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/named-data/ndnd/std/log"
	"github.com/spf13/cobra"

	"github.com/ndn-dise/ndnc-go/ft"
	"github.com/ndn-dise/ndnc-go/pipeline"
)

type GetTool struct {
	config       string
	gqlserver    string
	mtu          int
	namePrefix   string
	lifetimeMs   int64
	pipelineType string
	pipelineSize int
	streams      int
	outputDir    string
}

func CmdGet() *cobra.Command {
	g := GetTool{}

	cmd := &cobra.Command{
		GroupID: "tools",
		Use:     "get PATH...",
		Short:   "Copy files over NDN",
		Long: `Copy one or more files over NDN.
Each path is resolved against the producer's name prefix; the received
bytes are written under the output directory. A directory path is not
walked: its serialized listing is written in place of its content.`,
		Args:    cobra.MinimumNArgs(1),
		Example: `  ndnc get --name-prefix /ndnc/ft /data/file.bin`,
		Run:     g.run,
	}

	cmd.Flags().StringVar(&g.config, "config", "", "YAML config file with client options")
	cmd.Flags().StringVar(&g.gqlserver, "gqlserver", "http://localhost:3030/", "GraphQL server address")
	cmd.Flags().IntVar(&g.mtu, "mtu", 9000, "Dataroom size, between 64 and 9000")
	cmd.Flags().StringVar(&g.namePrefix, "name-prefix", "/ndnc/ft", "NDN name prefix the producer serves under")
	cmd.Flags().Int64Var(&g.lifetimeMs, "lifetime", 4000, "Interest lifetime in milliseconds")
	cmd.Flags().StringVar(&g.pipelineType, "pipeline-type", "aimd", "Pipeline type: fixed, aimd")
	cmd.Flags().IntVar(&g.pipelineSize, "pipeline-size", 256, "Fixed window size or initial ssthresh")
	cmd.Flags().IntVarP(&g.streams, "streams", "s", 4, "Parallel stream count, between 1 and 16")
	cmd.Flags().StringVarP(&g.outputDir, "output", "o", ".", "Output directory")
	return cmd
}

// log identifier
func (g *GetTool) String() string {
	return "get"
}

func (g *GetTool) clientOptions() ft.ClientOptions {
	opts := ft.ClientOptions{
		NamePrefix: g.namePrefix,
		Lifetime:   time.Duration(g.lifetimeMs) * time.Millisecond,
		Streams:    g.streams,
	}
	if err := loadYaml(g.config, &opts); err != nil {
		usageError("cannot read config file: %v", err)
	}
	return opts
}

func (g *GetTool) run(_ *cobra.Command, args []string) {
	if g.lifetimeMs < 0 {
		usageError("negative lifetime argument value")
	}
	if g.streams < 1 || g.streams > 16 {
		usageError("invalid streams argument value")
	}
	fo := faceOptions{gqlserver: g.gqlserver, mtu: g.mtu}
	if err := fo.validate(); err != nil {
		usageError("%v", err)
	}

	window, err := newWindow(g.pipelineType, g.pipelineSize)
	if err != nil {
		usageError("%v", err)
	}

	f, m, err := openFace(fo)
	if err != nil {
		log.Fatal(g, "Unable to create face", "err", err)
		return
	}
	defer m.DeleteFace()

	p := pipeline.New(f, window)
	if err := p.Start(); err != nil {
		log.Fatal(g, "Unable to start pipeline", "err", err)
		return
	}
	defer p.Stop()

	client, err := ft.NewClient(p, g.clientOptions())
	if err != nil {
		usageError("%v", err)
	}

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigchan
		log.Info(g, "Received signal - stopping")
		p.Stop()
	}()

	failed := false
	for _, path := range args {
		if !g.fetchOne(client, path) {
			failed = true
			break
		}
	}

	counters := client.Counters()
	fmt.Fprintf(os.Stderr, "%d Interests, %d Data, %d timeouts\n",
		counters.NInterest.Load(), counters.NData.Load(), counters.NTimeout.Load())

	if failed {
		os.Exit(1)
	}
}

func (g *GetTool) fetchOne(client *ft.Client, path string) bool {
	out, err := os.Create(filepath.Join(g.outputDir, filepath.Base(path)))
	if err != nil {
		log.Error(g, "Unable to create output file", "err", err)
		return false
	}
	defer out.Close()

	var total atomic.Uint64
	start := time.Now()
	tr := client.Transfer(path, out, func(bytes uint64) {
		total.Add(bytes)
	})
	elapsed := time.Since(start)

	if tr.Err != nil {
		log.Error(g, "Transfer failed", "path", path, "state", tr.State, "err", tr.Err)
		return false
	}

	goodput := float64(total.Load()*8) / elapsed.Seconds() / 1e6
	fmt.Fprintf(os.Stderr, "%s: %d bytes in %s (%.2f Mbit/s)\n",
		path, total.Load(), elapsed, goodput)
	return true
}
