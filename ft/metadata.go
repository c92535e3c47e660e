package ft

import (
	"fmt"
	"io/fs"
	"time"

	enc "github.com/named-data/ndnd/std/encoding"
	"github.com/named-data/ndnd/std/ndn"
	rdr "github.com/named-data/ndnd/std/ndn/rdr_2024"
	"github.com/named-data/ndnd/std/types/optional"

	"github.com/ndn-dise/ndnc-go/pipeline"
)

// Metadata describes one file or directory as carried by the RDR metadata
// record: the versioned name under which segments are fetched, the transfer
// geometry and the stat bits. Immutable once discovered.
type Metadata struct {
	VersionedName enc.Name
	Version       uint64
	FinalBlockID  uint64
	SegmentSize   uint64
	Size          uint64
	Mode          uint64
	Mtime         time.Time
}

// IsDir reports whether the record describes a directory, whose content is
// the serialized child listing.
func (m *Metadata) IsDir() bool {
	return fs.FileMode(m.Mode).IsDir()
}

// Encode returns the RDR record carried in the metadata Data content.
func (m *Metadata) Encode() enc.Wire {
	record := &rdr.MetaData{
		Name:         m.VersionedName,
		FinalBlockID: enc.NewSegmentComponent(m.FinalBlockID).Bytes(),
		SegmentSize:  optional.Some(m.SegmentSize),
		Size:         optional.Some(m.Size),
		Mode:         optional.Some(m.Mode),
		Mtime:        optional.Some(uint64(m.Mtime.UnixNano())),
	}
	return record.Encode()
}

// ParseMetadata extracts the transfer parameters from a metadata reply. The
// reply must carry a segment-typed FinalBlockId, a versioned name and the
// segment size; anything less is a protocol error.
func ParseMetadata(data ndn.Data) (*Metadata, error) {
	fbid, ok := data.FinalBlockID().Get()
	if !ok || fbid.Typ != enc.TypeSegmentNameComponent {
		return nil, fmt.Errorf("%w: metadata reply without FinalBlockId", pipeline.ErrProtocol)
	}

	content := data.Content()
	if content == nil || content.Length() == 0 {
		return nil, fmt.Errorf("%w: empty metadata content", pipeline.ErrProtocol)
	}
	record, err := rdr.ParseMetaData(enc.NewWireView(content), true)
	if err != nil {
		return nil, fmt.Errorf("%w: bad metadata record: %v", pipeline.ErrProtocol, err)
	}

	if len(record.Name) == 0 || record.Name.At(-1).Typ != enc.TypeVersionNameComponent {
		return nil, fmt.Errorf("%w: metadata name is not versioned", pipeline.ErrProtocol)
	}
	segSize, ok := record.SegmentSize.Get()
	if !ok || segSize == 0 {
		return nil, fmt.Errorf("%w: metadata record without segment size", pipeline.ErrProtocol)
	}

	return &Metadata{
		VersionedName: record.Name,
		Version:       record.Name.At(-1).NumberVal(),
		FinalBlockID:  fbid.NumberVal(),
		SegmentSize:   segSize,
		Size:          record.Size.GetOr(0),
		Mode:          record.Mode.GetOr(0),
		Mtime:         time.Unix(0, int64(record.Mtime.GetOr(0))),
	}, nil
}

// finalBlock returns the last segment index for a payload of size bytes.
func finalBlock(size uint64, segmentSize uint64) uint64 {
	if size == 0 {
		return 0
	}
	return (size - 1) / segmentSize
}
