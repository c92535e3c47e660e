package face

import (
	"fmt"
	"io"
	"net"

	enc "github.com/named-data/ndnd/std/encoding"
	ndn_io "github.com/named-data/ndnd/std/utils/io"
	"golang.org/x/sys/unix"
)

// StreamFace exchanges TLV frames with the forwarder over a stream socket.
// For the user-space data plane the address is the socket path obtained
// from the management client when the face was created on the forwarder.
type StreamFace struct {
	baseFace
	network  string
	addr     string
	dataroom int
	conn     net.Conn
}

func NewStreamFace(network string, addr string, dataroom int) *StreamFace {
	return &StreamFace{
		network:  network,
		addr:     addr,
		dataroom: dataroom,
	}
}

func (f *StreamFace) String() string {
	return fmt.Sprintf("stream-face (%s://%s)", f.network, f.addr)
}

func (f *StreamFace) Open() error {
	if f.IsRunning() {
		return fmt.Errorf("face is already running")
	}

	if f.onError == nil || f.onPkt == nil {
		return fmt.Errorf("face callbacks are not set")
	}

	c, err := net.Dial(f.network, f.addr)
	if err != nil {
		return err
	}

	if uc, ok := c.(*net.UnixConn); ok && f.dataroom > 0 {
		f.sizeSocketBuffers(uc)
	}

	f.conn = c
	f.setStateUp()
	go f.receive()

	return nil
}

// sizeSocketBuffers widens the kernel buffers to hold a full window of
// dataroom-sized frames so the receive goroutine is the only backpressure.
func (f *StreamFace) sizeSocketBuffers(uc *net.UnixConn) {
	raw, err := uc.SyscallConn()
	if err != nil {
		return
	}
	raw.Control(func(fd uintptr) {
		unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, f.dataroom*256)
		unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, f.dataroom*256)
	})
}

func (f *StreamFace) Close() error {
	if f.setStateClosed() {
		if f.conn != nil {
			return f.conn.Close()
		}
	}

	return nil
}

func (f *StreamFace) Send(pkt enc.Wire) error {
	if !f.IsRunning() {
		return fmt.Errorf("face is not running")
	}

	f.sendMut.Lock()
	defer f.sendMut.Unlock()

	_, err := f.conn.Write(pkt.Join())
	if err != nil {
		return err
	}

	return nil
}

func (f *StreamFace) receive() {
	defer f.setStateDown()

	err := ndn_io.ReadTlvStream(f.conn, func(b []byte) bool {
		f.onPkt(b)
		return f.IsRunning()
	}, nil)

	if f.IsRunning() {
		if err != nil {
			f.onError(err)
		} else {
			f.onError(io.EOF)
		}
	}
}
