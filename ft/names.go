// Package ft implements the RDR file-transfer client and producer on top
// of the Interest pipeline.
package ft

import (
	"fmt"
	"strings"

	enc "github.com/named-data/ndnd/std/encoding"
	rdr "github.com/named-data/ndnd/std/ndn/rdr_2024"
)

// metadataComponent returns the reserved 32=metadata discovery component.
func metadataComponent() enc.Component {
	return enc.NewStringComponent(enc.TypeKeywordNameComponent, rdr.MetadataKeyword)
}

func isMetadataComponent(c enc.Component) bool {
	return c.Typ == enc.TypeKeywordNameComponent && string(c.Val) == rdr.MetadataKeyword
}

// pathComponents encodes a filesystem path as consecutive generic name
// components under the transfer prefix.
func pathComponents(path string) []enc.Component {
	parts := strings.Split(path, "/")
	comps := make([]enc.Component, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		comps = append(comps, enc.NewGenericComponent(part))
	}
	return comps
}

// componentsToPath is the inverse of pathComponents. Components that would
// escape the served root are rejected.
func componentsToPath(comps enc.Name) (string, error) {
	parts := make([]string, 0, len(comps))
	for _, c := range comps {
		if c.Typ != enc.TypeGenericNameComponent {
			return "", fmt.Errorf("unexpected component type %d in path", c.Typ)
		}
		part := string(c.Val)
		if part == "" || part == "." || part == ".." || strings.ContainsRune(part, '/') {
			return "", fmt.Errorf("invalid path component %q", part)
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, "/"), nil
}

// segmentOf extracts the segment number from the final name component.
func segmentOf(name enc.Name) (uint64, error) {
	if len(name) == 0 || name.At(-1).Typ != enc.TypeSegmentNameComponent {
		return 0, fmt.Errorf("name %s has no segment component", name)
	}
	return name.At(-1).NumberVal(), nil
}
