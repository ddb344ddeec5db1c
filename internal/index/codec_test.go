package index

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMaster() *MasterIndex {
	m := NewMasterIndex()
	m.Label = "Shopping list"
	m.Clients["C1"] = Ref{
		URL:          "mem://s1/documents/document-d1/client-C1/client-index.json",
		LastReceived: 2,
		Label:        "laptop",
	}
	m.LatestUpdate = LatestUpdate{ClientID: "C1", Updated: 1700000000000, Version: 2}
	m.URL = "mem://s1/documents/document-d1/master-index.json"
	return m
}

func testClient() *ClientIndex {
	c := NewClientIndex("C1")
	c.ClientName = "laptop"
	c.Latest = 2
	c.Updated = 1700000000000
	c.Parts = []Part{
		{ID: 0, ToVersion: 1, URL: "mem://s1/documents/document-d1/client-C1/part-00000000.json", Size: 120},
		{ID: 1, FromVersion: VersionPtr(1), ToVersion: 2, URL: "mem://s1/documents/document-d1/client-C1/part-00000001.json", Size: 64},
	}
	return c
}

func TestEncode_Golden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	master, err := testMaster().Encode()
	require.NoError(t, err)
	g.Assert(t, "master_index", master)

	client, err := testClient().Encode()
	require.NoError(t, err)
	g.Assert(t, "client_index", client)
}

func TestDecodeMaster_RoundTrip(t *testing.T) {
	data, err := testMaster().Encode()
	require.NoError(t, err)

	m, err := DecodeMaster(data, "master-index.json")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, testMaster(), m)
}

func TestDecodeClient_RoundTrip(t *testing.T) {
	data, err := testClient().Encode()
	require.NoError(t, err)

	c, err := DecodeClient(data, "client-index.json")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, testClient(), c)
	assert.Nil(t, c.Parts[0].FromVersion)
}

func TestDecode_AbsentBlobIsNotAnError(t *testing.T) {
	m, err := DecodeMaster(nil, "x")
	assert.NoError(t, err)
	assert.Nil(t, m)

	c, err := DecodeClient(nil, "x")
	assert.NoError(t, err)
	assert.Nil(t, c)
}

func TestDecode_DiscriminatorEnforced(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		reason string
	}{
		{"missing discriminator", `{"clients":{},"peers":{}}`, "missing _minisync discriminator"},
		{"wrong data type", `{"_minisync":{"dataType":"CLIENT-INDEX","version":1}}`, `expected dataType "MASTER-INDEX"`},
		{"unknown version", `{"_minisync":{"dataType":"MASTER-INDEX","version":7}}`, "unsupported discriminator version 7"},
		{"not json", `<html>`, "unparsable content"},
		{"empty blob", ``, "unparsable content"},
		{"null", `null`, "missing _minisync discriminator"},
		{"array", `[]`, "unparsable content"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := DecodeMaster([]byte(tt.data), "documents/document-d1/master-index.json")
			require.Error(t, err)
			assert.Nil(t, m)
			assert.True(t, IsFormatError(err))
			assert.Contains(t, err.Error(), tt.reason)
			assert.Contains(t, err.Error(), "documents/document-d1/master-index.json")
		})
	}
}

func TestDecodeClient_RejectsMasterIndex(t *testing.T) {
	data, err := testMaster().Encode()
	require.NoError(t, err)

	_, err = DecodeClient(data, "client-index.json")
	require.Error(t, err)
	assert.True(t, IsFormatError(err))
}

func TestDecodeMaster_FillsEmptyMaps(t *testing.T) {
	m, err := DecodeMaster([]byte(`{"_minisync":{"dataType":"MASTER-INDEX","version":1}}`), "x")
	require.NoError(t, err)
	assert.NotNil(t, m.Clients)
	assert.NotNil(t, m.Peers)
}

func TestIsFormatError_Wrapped(t *testing.T) {
	_, err := DecodeClient([]byte(`{}`), "x")
	require.Error(t, err)
	assert.True(t, IsFormatError(errors.Wrap(err, "restore")))
	assert.False(t, IsFormatError(errors.New("store unavailable")))
	assert.False(t, IsFormatError(nil))
}
