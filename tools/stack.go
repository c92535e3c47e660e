// Package tools implements the ndnc command-line tools.
package tools

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/ndn-dise/ndnc-go/congestion"
	"github.com/ndn-dise/ndnc-go/face"
	"github.com/ndn-dise/ndnc-go/mgmt"
)

const (
	minMtu = 64
	maxMtu = 9000
)

// faceOptions are shared by every tool that opens a data-plane face.
type faceOptions struct {
	gqlserver string
	mtu       int
}

func (o *faceOptions) validate() error {
	if o.gqlserver == "" {
		return fmt.Errorf("empty gqlserver argument value")
	}
	if o.mtu < minMtu || o.mtu > maxMtu {
		return fmt.Errorf("invalid MTU size %d", o.mtu)
	}
	return nil
}

// openFace creates the forwarder-side face over the management endpoint and
// returns a stream face for its socket; the socket is dialed when the face is
// opened. The returned mgmt client tears the face down.
func openFace(opts faceOptions) (face.Face, *mgmt.Client, error) {
	m := mgmt.NewClient(opts.gqlserver)
	if err := m.CreateFace(os.Getpid(), opts.mtu); err != nil {
		return nil, nil, err
	}

	f := face.NewStreamFace("unix", m.SocketPath(), opts.mtu)
	return f, m, nil
}

// newWindow maps the pipeline-type option to a congestion window.
func newWindow(pipelineType string, pipelineSize int) (congestion.Window, error) {
	switch pipelineType {
	case "fixed":
		return congestion.NewFixedWindow(pipelineSize), nil
	case "aimd":
		return congestion.NewAIMDWindow(pipelineSize), nil
	default:
		return nil, fmt.Errorf("unknown pipeline type %q", pipelineType)
	}
}

// loadYaml merges an optional YAML config file into out.
func loadYaml(path string, out any) error {
	if path == "" {
		return nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, out)
}

// usageError prints the message and exits with the argument-error code.
func usageError(format string, v ...any) {
	fmt.Fprintf(os.Stderr, "ERROR: "+format+"\n", v...)
	os.Exit(2)
}
