package tools

import (
	"fmt"
	"os"
	"time"

	"github.com/named-data/ndnd/std/log"
	"github.com/spf13/cobra"

	"github.com/ndn-dise/ndnc-go/congestion"
	"github.com/ndn-dise/ndnc-go/ft"
	"github.com/ndn-dise/ndnc-go/pipeline"
)

type ListTool struct {
	gqlserver  string
	mtu        int
	namePrefix string
	lifetimeMs int64
	recursive  bool
}

func CmdList() *cobra.Command {
	l := ListTool{}

	cmd := &cobra.Command{
		GroupID: "tools",
		Use:     "list PATH...",
		Short:   "List files or directories over NDN",
		Args:    cobra.MinimumNArgs(1),
		Example: `  ndnc list -r --name-prefix /ndnc/ft /data`,
		Run:     l.run,
	}

	cmd.Flags().StringVar(&l.gqlserver, "gqlserver", "http://localhost:3030/", "GraphQL server address")
	cmd.Flags().IntVar(&l.mtu, "mtu", 9000, "Dataroom size, between 64 and 9000")
	cmd.Flags().StringVar(&l.namePrefix, "name-prefix", "/ndnc/ft", "NDN name prefix the producer serves under")
	cmd.Flags().Int64Var(&l.lifetimeMs, "lifetime", 4000, "Interest lifetime in milliseconds")
	cmd.Flags().BoolVarP(&l.recursive, "recursive", "r", false, "Recurse into directories")
	return cmd
}

// log identifier
func (l *ListTool) String() string {
	return "list"
}

func (l *ListTool) run(_ *cobra.Command, args []string) {
	if l.lifetimeMs < 0 {
		usageError("negative lifetime argument value")
	}
	fo := faceOptions{gqlserver: l.gqlserver, mtu: l.mtu}
	if err := fo.validate(); err != nil {
		usageError("%v", err)
	}

	f, m, err := openFace(fo)
	if err != nil {
		log.Fatal(l, "Unable to create face", "err", err)
		return
	}
	defer m.DeleteFace()

	p := pipeline.New(f, congestion.NewFixedWindow(16))
	if err := p.Start(); err != nil {
		log.Fatal(l, "Unable to start pipeline", "err", err)
		return
	}
	defer p.Stop()

	client, err := ft.NewClient(p, ft.ClientOptions{
		NamePrefix: l.namePrefix,
		Lifetime:   time.Duration(l.lifetimeMs) * time.Millisecond,
		Streams:    1,
	})
	if err != nil {
		usageError("%v", err)
	}

	failed := false
	for _, path := range args {
		entries, err := client.List(path, l.recursive)
		if err != nil {
			log.Error(l, "List failed", "path", path, "err", err)
			failed = true
			continue
		}
		for _, e := range entries {
			if e.IsDir {
				fmt.Printf("%s/\n", e.Path)
			} else {
				fmt.Println(e.Path)
			}
		}
	}

	if failed {
		os.Exit(1)
	}
}
