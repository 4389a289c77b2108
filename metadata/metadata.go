// Package metadata implements the small JSON framing object sent as the
// first data segment of every transfer: the original filename and
// extension, so the receiver can reconstruct an output path. Framing and
// on-disk I/O are deliberately outside the transport core (spec.md S1);
// this package is the narrow interface the core talks to.
package metadata

import "encoding/json"

// Metadata describes the file a transfer carries.
type Metadata struct {
	Filename  string `json:"filename"`
	Extension string `json:"extension"`
}

// Encode returns meta as a UTF-8 JSON object, ready to wrap in a data
// segment via segment.Data.
func (m Metadata) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses the first payload of a transfer into a Metadata value.
func Decode(b []byte) (Metadata, error) {
	var m Metadata
	err := json.Unmarshal(b, &m)
	return m, err
}

// OutputPath reconstructs the destination file path per spec.md S6:
// "<filename>.<extension>".
func (m Metadata) OutputPath() string {
	if m.Extension == "" {
		return m.Filename
	}
	return m.Filename + "." + m.Extension
}
