package publisher

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjectPrefix(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"streetcar.positions", "streetcar.positions"},
		{" streetcar.positions. ", "streetcar.positions"},
		{"tempe streetcar.pos*", "tempe_streetcar.pos_"},
		{"a..b", "a.b"},
		{"", "streetcar"},
		{"...", "streetcar"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, subjectPrefix(tt.in), "prefix for %q", tt.in)
	}
}

func TestSubjectFor(t *testing.T) {
	p := &NATSPublisher{subject: subjectPrefix("streetcar.positions")}
	assert.Equal(t, "streetcar.positions.184", p.subjectFor(184))
}

func TestSubjectToken(t *testing.T) {
	assert.Equal(t, "a_b_c", subjectToken(" a b>c "))
	assert.Equal(t, "_", subjectToken("  "))
}

func TestPositionMessageJSON(t *testing.T) {
	b, err := json.Marshal(PositionMessage{
		VehicleID: 184,
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Lat:       33.42,
		Lng:       -111.94,
		Movement:  "Northbound",
	})
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, 184.0, m["vehicleId"])
	assert.Equal(t, "Northbound", m["movement"])
	assert.Equal(t, "2026-01-02T03:04:05Z", m["timestamp"])
	assert.NotContains(t, m, "nearestStop")
}
