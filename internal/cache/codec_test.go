package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"wildfire-analytics/internal/domain"
)

func TestCodec_RoundTrip(t *testing.T) {
	size := 120.5
	page := domain.FirePage{
		Fires:       []domain.FireIncident{{ID: "f1", FireYear: 2015, FireSizeAcres: &size, State: "CA"}},
		Total:       1,
		Pages:       1,
		CurrentPage: 1,
	}

	data, err := Encode(page)
	require.NoError(t, err)

	var got domain.FirePage
	require.NoError(t, Decode(data, &got))
	require.Len(t, got.Fires, 1)
	assert.Equal(t, "f1", got.Fires[0].ID)
	assert.Equal(t, 120.5, *got.Fires[0].FireSizeAcres)
	assert.Nil(t, got.Fires[0].Latitude)
	assert.Equal(t, 1, got.Total)
}

func TestCodec_UsesJSONFieldNames(t *testing.T) {
	data, err := Encode(domain.YearCount{Year: 2001, Count: 3})
	require.NoError(t, err)

	var env envelope
	require.NoError(t, msgpack.Unmarshal(data, &env))
	assert.Equal(t, envelopeVersion, env.Version)
	assert.Equal(t, "domain.YearCount", env.Kind)

	var fields map[string]any
	require.NoError(t, msgpack.Unmarshal(env.Payload, &fields))
	assert.Contains(t, fields, "year")
	assert.Contains(t, fields, "count")
}

func TestCodec_FailsClosed(t *testing.T) {
	valid, err := Encode(domain.YearCount{Year: 2001, Count: 3})
	require.NoError(t, err)

	foreignVersion, err := msgpack.Marshal(envelope{Version: 2, Kind: "domain.YearCount", Payload: msgpack.RawMessage{0x80}})
	require.NoError(t, err)

	unknownField, err := Encode(map[string]any{"year": 2001, "count": 3, "script": "rm -rf /"})
	require.NoError(t, err)
	var env envelope
	require.NoError(t, msgpack.Unmarshal(unknownField, &env))
	env.Kind = "domain.YearCount"
	unknownField, err = msgpack.Marshal(env)
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{"python literal", []byte("{'total_fires': 10}")},
		{"truncated", valid[:len(valid)-2]},
		{"trailing bytes", append(append([]byte{}, valid...), 0x01)},
		{"foreign version", foreignVersion},
		{"unknown field", unknownField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dst domain.YearCount
			assert.ErrorIs(t, Decode(tt.data, &dst), ErrMalformedEntry)
		})
	}
}

func TestCodec_RejectsOtherKind(t *testing.T) {
	data, err := Encode(domain.SummaryStats{TotalFires: 4})
	require.NoError(t, err)

	var dst domain.FirePage
	err = Decode(data, &dst)
	assert.ErrorIs(t, err, ErrMalformedEntry)
	assert.ErrorContains(t, err, "domain.SummaryStats")
}
