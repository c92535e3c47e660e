package pipeline

import (
	"errors"
	"fmt"

	enc "github.com/named-data/ndnd/std/encoding"
	"github.com/named-data/ndnd/std/ndn"
	spec "github.com/named-data/ndnd/std/ndn/spec_2022"
)

// Core-visible error kinds. ErrProtocol and ErrNotFound are produced above
// the pipeline by the RDR layer; they live here so consumers match every
// failure of a transfer against one taxonomy.
var (
	// ErrNetwork: the transport is unusable (send failed, face closed, or
	// the pipeline stopped while the Interest was pending).
	ErrNetwork = errors.New("transport unusable")
	// ErrTimeout: the Interest lifetime elapsed with no reply.
	ErrTimeout = errors.New("interest lifetime expired")
	// ErrProtocol: malformed packet or missing required field.
	ErrProtocol = errors.New("protocol error")
	// ErrNotFound: the producer answered that the object does not exist.
	ErrNotFound = errors.New("no such file or directory")
)

// NackError reports a Nack from the forwarder or producer.
type NackError struct {
	Reason uint64
}

func (e *NackError) Error() string {
	return fmt.Sprintf("nack received: %s", NackReasonString(e.Reason))
}

func NackReasonString(reason uint64) string {
	switch reason {
	case spec.NackReasonNone:
		return "None"
	case spec.NackReasonCongestion:
		return "Congestion"
	case spec.NackReasonDuplicate:
		return "Duplicate"
	case spec.NackReasonNoRoute:
		return "NoRoute"
	default:
		return fmt.Sprintf("Other(%d)", reason)
	}
}

// Result is the outcome of one pending Interest: either a Data packet or a
// terminal error. Name identifies the Interest the result belongs to, so
// workers sharing a queue can attribute errors.
type Result struct {
	name enc.Name
	data ndn.Data
	err  error
}

func newDataResult(data ndn.Data) Result {
	return Result{name: data.Name(), data: data}
}

func newErrorResult(name enc.Name, err error) Result {
	return Result{name: name, err: err}
}

// Name returns the name of the received Data for a Data result, and the
// (final) name of the terminated Interest for an error result.
func (r Result) Name() enc.Name {
	return r.name
}

// Data returns the received packet, or nil for an error result.
func (r Result) Data() ndn.Data {
	return r.data
}

// Err returns nil for a Data result and the terminal error otherwise.
func (r Result) Err() error {
	return r.err
}
