package tools

import (
	"bytes"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	enc "github.com/named-data/ndnd/std/encoding"
	"github.com/named-data/ndnd/std/log"
	"github.com/named-data/ndnd/std/ndn"
	spec "github.com/named-data/ndnd/std/ndn/spec_2022"
	sig "github.com/named-data/ndnd/std/security/signer"
	"github.com/named-data/ndnd/std/types/optional"
	"github.com/spf13/cobra"

	"github.com/ndn-dise/ndnc-go/face"
)

// PingServerTool answers every Interest under its prefix with a fixed
// payload; the smallest possible user of the packet handler.
type PingServerTool struct {
	gqlserver   string
	mtu         int
	payloadSize int
	freshnessMs int64

	handler *face.Handler
	signer  ndn.Signer
	payload enc.Wire
	nRecv   atomic.Uint64
}

func CmdPingServer() *cobra.Command {
	ps := PingServerTool{}

	cmd := &cobra.Command{
		GroupID: "tools",
		Use:     "pingserver PREFIX",
		Short:   "Start an NDN ping server under a prefix",
		Args:    cobra.ExactArgs(1),
		Example: `  ndnc pingserver /ndnc/ping`,
		Run:     ps.run,
	}

	cmd.Flags().StringVar(&ps.gqlserver, "gqlserver", "http://localhost:3030/", "GraphQL server address")
	cmd.Flags().IntVar(&ps.mtu, "mtu", 9000, "Dataroom size, between 64 and 9000")
	cmd.Flags().IntVar(&ps.payloadSize, "payload-size", 1024, "Data payload size in bytes")
	cmd.Flags().Int64Var(&ps.freshnessMs, "freshness", 1000, "Data freshness in milliseconds")
	return cmd
}

// log identifier
func (ps *PingServerTool) String() string {
	return "pingserver"
}

func (ps *PingServerTool) run(_ *cobra.Command, args []string) {
	prefix, err := enc.NameFromStr(args[0])
	if err != nil {
		usageError("invalid prefix %q", args[0])
	}
	fo := faceOptions{gqlserver: ps.gqlserver, mtu: ps.mtu}
	if err := fo.validate(); err != nil {
		usageError("%v", err)
	}

	f, m, err := openFace(fo)
	if err != nil {
		log.Fatal(ps, "Unable to create face", "err", err)
		return
	}
	defer m.DeleteFace()

	ps.signer = sig.NewSha256Signer()
	ps.payload = enc.Wire{bytes.Repeat([]byte{'a'}, ps.payloadSize)}
	ps.handler = face.NewHandler(f, ps)

	frames := make(chan []byte, 1024)
	f.OnPacket(func(frame []byte) {
		b := make([]byte, len(frame))
		copy(b, frame)
		frames <- b
	})
	f.OnError(func(err error) {
		log.Fatal(ps, "Fatal transport error", "err", err)
	})
	if err := f.Open(); err != nil {
		log.Fatal(ps, "Unable to open face", "err", err)
		return
	}
	defer f.Close()

	if err := m.InsertFibEntry(args[0]); err != nil {
		log.Fatal(ps, "Unable to advertise prefix", "err", err)
		return
	}

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, os.Interrupt, syscall.SIGTERM)

	fmt.Printf("PING SERVER %s\n", prefix)
	defer ps.stats()

	for {
		select {
		case frame := <-frames:
			ps.handler.Dispatch(frame)
		case <-sigchan:
			return
		}
	}
}

func (ps *PingServerTool) stats() {
	fmt.Printf("\n--- ping server statistics ---\n")
	fmt.Printf("%d Interests processed\n", ps.nRecv.Load())
}

// OnInterest implements face.Sink.
func (ps *PingServerTool) OnInterest(interest ndn.Interest, pitToken []byte) {
	ps.nRecv.Add(1)

	data, err := spec.Spec{}.MakeData(interest.Name(), &ndn.DataConfig{
		ContentType: optional.Some(ndn.ContentTypeBlob),
		Freshness:   optional.Some(time.Duration(ps.freshnessMs) * time.Millisecond),
	}, ps.payload, ps.signer)
	if err != nil {
		log.Error(ps, "Unable to encode data", "err", err)
		return
	}

	if err := ps.handler.PutData(data.Wire, pitToken); err != nil {
		log.Warn(ps, "Unable to reply with data", "err", err)
	}
}

// Unused face.Sink hooks: the ping server expresses no Interests.
func (ps *PingServerTool) OnData(token uint64, data ndn.Data) {}
func (ps *PingServerTool) OnNack(token uint64, reason uint64) {}
func (ps *PingServerTool) OnTimeout(token uint64)             {}
