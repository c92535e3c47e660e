package tools

import (
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	enc "github.com/named-data/ndnd/std/encoding"
	"github.com/named-data/ndnd/std/log"
	"github.com/named-data/ndnd/std/ndn"
	spec "github.com/named-data/ndnd/std/ndn/spec_2022"
	"github.com/named-data/ndnd/std/types/optional"
	"github.com/spf13/cobra"

	"github.com/ndn-dise/ndnc-go/congestion"
	"github.com/ndn-dise/ndnc-go/pipeline"
)

type PingTool struct {
	gqlserver  string
	mtu        int
	intervalMs int
	lifetimeMs int64
	count      int

	nSent, nRecv, nTimeout int
	rttMin, rttMax, rttSum time.Duration
}

func CmdPing() *cobra.Command {
	pt := PingTool{rttMin: math.MaxInt64}

	cmd := &cobra.Command{
		GroupID: "tools",
		Use:     "ping PREFIX",
		Short:   "Send Interests to an NDN ping server",
		Args:    cobra.ExactArgs(1),
		Example: `  ndnc ping /ndnc/ping -c 5`,
		Run:     pt.run,
	}

	cmd.Flags().StringVar(&pt.gqlserver, "gqlserver", "http://localhost:3030/", "GraphQL server address")
	cmd.Flags().IntVar(&pt.mtu, "mtu", 9000, "Dataroom size, between 64 and 9000")
	cmd.Flags().IntVarP(&pt.intervalMs, "interval", "i", 1000, "Ping interval in milliseconds")
	cmd.Flags().Int64Var(&pt.lifetimeMs, "lifetime", 4000, "Interest lifetime in milliseconds")
	cmd.Flags().IntVarP(&pt.count, "count", "c", 0, "Number of pings to send, 0 for unlimited")
	return cmd
}

// log identifier
func (pt *PingTool) String() string {
	return "ping"
}

func (pt *PingTool) run(_ *cobra.Command, args []string) {
	prefix, err := enc.NameFromStr(args[0])
	if err != nil {
		usageError("invalid prefix %q", args[0])
	}
	fo := faceOptions{gqlserver: pt.gqlserver, mtu: pt.mtu}
	if err := fo.validate(); err != nil {
		usageError("%v", err)
	}

	f, m, err := openFace(fo)
	if err != nil {
		log.Fatal(pt, "Unable to create face", "err", err)
		return
	}
	defer m.DeleteFace()

	p := pipeline.New(f, congestion.NewFixedWindow(4))
	if err := p.Start(); err != nil {
		log.Fatal(pt, "Unable to start pipeline", "err", err)
		return
	}
	defer p.Stop()

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, os.Interrupt, syscall.SIGTERM)

	lifetime := time.Duration(pt.lifetimeMs) * time.Millisecond
	name := prefix.Append(enc.NewGenericComponent("ping"))
	rx := pipeline.NewRxQueue()
	ticker := time.NewTicker(time.Duration(pt.intervalMs) * time.Millisecond)
	defer ticker.Stop()

	fmt.Printf("PING %s\n", name)
	defer pt.stats()

	for seq := uint64(0); pt.count == 0 || pt.nSent < pt.count; seq++ {
		pt.pingOne(p, name.Append(enc.NewSequenceNumComponent(seq)), lifetime, rx)

		select {
		case <-sigchan:
			return
		case <-ticker.C:
		}
	}
}

func (pt *PingTool) pingOne(p *pipeline.Pipeline, name enc.Name, lifetime time.Duration, rx *pipeline.RxQueue) {
	interest, err := spec.Spec{}.MakeInterest(name, &ndn.InterestConfig{
		MustBeFresh: true,
		Lifetime:    optional.Some(lifetime),
	}, nil, nil)
	if err != nil {
		log.Fatal(pt, "Unable to encode interest", "err", err)
		return
	}

	start := time.Now()
	if !p.Enqueue(interest, lifetime, rx) {
		log.Fatal(pt, "Unable to enqueue interest", "name", name)
		return
	}
	pt.nSent++

	res, ok := rx.Dequeue(2*lifetime + time.Second)
	if !ok || res.Err() != nil {
		pt.nTimeout++
		fmt.Printf("timeout from %s\n", name)
		return
	}

	rtt := time.Since(start)
	pt.nRecv++
	pt.rttSum += rtt
	pt.rttMin = min(pt.rttMin, rtt)
	pt.rttMax = max(pt.rttMax, rtt)
	fmt.Printf("data from %s: time=%s\n", res.Data().Name(), rtt)
}

func (pt *PingTool) stats() {
	fmt.Printf("\n--- ping statistics ---\n")
	fmt.Printf("%d sent, %d received, %d timeouts\n", pt.nSent, pt.nRecv, pt.nTimeout)
	if pt.nRecv > 0 {
		fmt.Printf("rtt min/avg/max = %s/%s/%s\n",
			pt.rttMin, pt.rttSum/time.Duration(pt.nRecv), pt.rttMax)
	}
}
