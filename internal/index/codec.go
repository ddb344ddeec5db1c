package index

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
)

// FormatError reports a blob that exists but is not a valid index file.
type FormatError struct {
	// Source names the offending blob (store path or URL).
	Source string

	// Reason is a human-readable description.
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid index file %s: %s", e.Source, e.Reason)
}

// IsFormatError returns true if err is or wraps a *FormatError.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

// DecodeMaster parses a master index read from source.
// A nil blob means the file does not exist and yields (nil, nil).
func DecodeMaster(data []byte, source string) (*MasterIndex, error) {
	if data == nil {
		return nil, nil
	}
	var m MasterIndex
	if err := decode(data, DataTypeMaster, source, &m); err != nil {
		return nil, err
	}
	if m.Clients == nil {
		m.Clients = map[string]Ref{}
	}
	if m.Peers == nil {
		m.Peers = map[string]Ref{}
	}
	return &m, nil
}

// DecodeClient parses a client index read from source.
// A nil blob means the file does not exist and yields (nil, nil).
func DecodeClient(data []byte, source string) (*ClientIndex, error) {
	if data == nil {
		return nil, nil
	}
	var c ClientIndex
	if err := decode(data, DataTypeClient, source, &c); err != nil {
		return nil, err
	}
	if c.Parts == nil {
		c.Parts = []Part{}
	}
	return &c, nil
}

func decode(data []byte, want DataType, source string, v any) error {
	var envelope struct {
		Header *Header `json:"_minisync"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return &FormatError{Source: source, Reason: fmt.Sprintf("unparsable content: %v", err)}
	}
	if envelope.Header == nil {
		return &FormatError{Source: source, Reason: "missing _minisync discriminator"}
	}
	if envelope.Header.DataType != want {
		return &FormatError{
			Source: source,
			Reason: fmt.Sprintf("expected dataType %q, found %q", want, envelope.Header.DataType),
		}
	}
	if envelope.Header.Version != FormatVersion {
		return &FormatError{
			Source: source,
			Reason: fmt.Sprintf("unsupported discriminator version %d", envelope.Header.Version),
		}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &FormatError{Source: source, Reason: fmt.Sprintf("unparsable %s: %v", want, err)}
	}
	return nil
}

// Encode returns the canonical JSON form of the master index.
// The discriminator is always (re)stamped.
func (m *MasterIndex) Encode() ([]byte, error) {
	out := *m
	out.Header = Header{DataType: DataTypeMaster, Version: FormatVersion}
	if out.Clients == nil {
		out.Clients = map[string]Ref{}
	}
	if out.Peers == nil {
		out.Peers = map[string]Ref{}
	}
	data, err := MarshalCanonical(&out)
	if err != nil {
		return nil, errors.Wrap(err, "encode master index")
	}
	return data, nil
}

// Encode returns the canonical JSON form of the client index.
func (c *ClientIndex) Encode() ([]byte, error) {
	out := *c
	out.Header = Header{DataType: DataTypeClient, Version: FormatVersion}
	if out.Parts == nil {
		out.Parts = []Part{}
	}
	data, err := MarshalCanonical(&out)
	if err != nil {
		return nil, errors.Wrap(err, "encode client index")
	}
	return data, nil
}

// CheckChain verifies the part chain: ids strictly ascending, each
// fromVersion equal to the previous toVersion, and Latest equal to the
// last toVersion.
func (c *ClientIndex) CheckChain() error {
	for i, p := range c.Parts {
		if i == 0 {
			continue
		}
		prev := c.Parts[i-1]
		if p.ID <= prev.ID {
			return errors.Newf("part %d follows part %d: ids not ascending", p.ID, prev.ID)
		}
		if p.FromVersion == nil || *p.FromVersion != prev.ToVersion {
			return errors.Newf("part %d does not continue part %d (toVersion %d)", p.ID, prev.ID, prev.ToVersion)
		}
	}
	if last, ok := c.LastPart(); ok && last.ToVersion != c.Latest {
		return errors.Newf("latest %d does not match last part toVersion %d", c.Latest, last.ToVersion)
	}
	return nil
}
