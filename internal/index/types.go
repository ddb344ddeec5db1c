package index

// DataType discriminates index documents.
type DataType string

const (
	DataTypeMaster DataType = "MASTER-INDEX"
	DataTypeClient DataType = "CLIENT-INDEX"
)

// FormatVersion is the only discriminator version this package reads and writes.
const FormatVersion = 1

// Header is the "_minisync" discriminator block.
type Header struct {
	DataType DataType `json:"dataType"`
	Version  int      `json:"version"`
}

// Version is a document's monotonic change counter.
type Version uint64

// VersionPtr returns a pointer to v, for optional fields.
func VersionPtr(v Version) *Version {
	return &v
}

// Part describes one contiguous slice of a client's change history.
//
// FromVersion is nil only for a client's very first part. Parts are
// immutable once a later part exists; only the last part is rewritten.
type Part struct {
	ID          int      `json:"id"`
	FromVersion *Version `json:"fromVersion"`
	ToVersion   Version  `json:"toVersion"`
	URL         string   `json:"url"`
	Size        int64    `json:"size"`
}

// Ref points at a client's index or at a peer's master index.
type Ref struct {
	URL          string  `json:"url"`
	LastReceived Version `json:"lastReceived"`
	Label        string  `json:"label"`
}

// LatestUpdate identifies the most recent writer of a master index.
type LatestUpdate struct {
	ClientID string  `json:"clientID"`
	Updated  int64   `json:"updated"`
	Version  Version `json:"version"`
}

// MasterIndex is the per-document record of clients and peers.
type MasterIndex struct {
	Header       Header         `json:"_minisync"`
	Label        string         `json:"label"`
	Clients      map[string]Ref `json:"clients"`
	Peers        map[string]Ref `json:"peers"`
	LatestUpdate LatestUpdate   `json:"latestUpdate"`
	URL          string         `json:"url"`
}

// NewMasterIndex returns an empty master index.
func NewMasterIndex() *MasterIndex {
	return &MasterIndex{
		Header:  Header{DataType: DataTypeMaster, Version: FormatVersion},
		Clients: map[string]Ref{},
		Peers:   map[string]Ref{},
	}
}

// ClientIndex is the per-(document, client) record of parts.
type ClientIndex struct {
	Header     Header  `json:"_minisync"`
	ClientID   string  `json:"clientID"`
	ClientName string  `json:"clientName"`
	Latest     Version `json:"latest"`
	Updated    int64   `json:"updated"`
	Parts      []Part  `json:"parts"`
}

// NewClientIndex returns an empty client index for clientID.
func NewClientIndex(clientID string) *ClientIndex {
	return &ClientIndex{
		Header:   Header{DataType: DataTypeClient, Version: FormatVersion},
		ClientID: clientID,
		Parts:    []Part{},
	}
}

// LastPart returns the newest part, or false if there are none.
func (c *ClientIndex) LastPart() (Part, bool) {
	if len(c.Parts) == 0 {
		return Part{}, false
	}
	return c.Parts[len(c.Parts)-1], true
}

// PutPart replaces the part with the same id or appends a new one.
func (c *ClientIndex) PutPart(p Part) {
	for i := range c.Parts {
		if c.Parts[i].ID == p.ID {
			c.Parts[i] = p
			return
		}
	}
	c.Parts = append(c.Parts, p)
}

// PartsAfter returns the parts whose ToVersion is newer than v, in order.
func (c *ClientIndex) PartsAfter(v Version) []Part {
	var out []Part
	for _, p := range c.Parts {
		if p.ToVersion > v {
			out = append(out, p)
		}
	}
	return out
}
