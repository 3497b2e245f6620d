package reading

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SummaryBeforeData(t *testing.T) {
	s := NewStore(Temperature, Humidity, RSSI)

	assert.False(t, s.HasData())
	assert.Equal(t, "temperature: -- | humidity: -- | rssi: --", s.Summary())
	assert.Empty(t, s.Snapshot())
}

func TestStore_SetKeepsOnlyLastValue(t *testing.T) {
	s := NewStore(Temperature, RSSI)

	s.Set(Reading{Domain: Temperature, Value: 20.37, Text: "20.37 °C", Unit: "°C"})
	s.Set(Reading{Domain: Temperature, Value: 21.5, Text: "21.50 °C", Unit: "°C"})
	s.Set(Reading{Domain: RSSI, Value: -60, Text: "-60 dBm", Unit: "dBm"})

	got, ok := s.Get(Temperature)
	require.True(t, ok)
	assert.Equal(t, 21.5, got.Value)
	assert.False(t, got.At.IsZero(), "MUST stamp readings without a timestamp")

	snap := s.Snapshot()
	require.Len(t, snap, 2, "MUST keep one value per domain")
	assert.Equal(t, Temperature, snap[0].Domain)
	assert.Equal(t, RSSI, snap[1].Domain)
	assert.Equal(t, "temperature: 21.50 °C | rssi: -60 dBm", s.Summary())
}

func TestStore_UndeclaredDomainIsAppended(t *testing.T) {
	s := NewStore(Temperature)
	s.Set(Reading{Domain: Battery, Value: 90, Text: "90 %"})

	assert.Equal(t, "temperature: -- | battery: 90 %", s.Summary())
}

func TestStore_Reset(t *testing.T) {
	s := NewStore(Temperature, Humidity)
	s.Set(Reading{Domain: Humidity, Value: 45.1, Text: "45.10 %"})

	s.Reset()

	assert.False(t, s.HasData())
	_, ok := s.Get(Humidity)
	assert.False(t, ok)
	assert.Equal(t, "temperature: -- | humidity: --", s.Summary(), "MUST keep declared domains after reset")
}

func TestStore_Subscribe(t *testing.T) {
	s := NewStore()
	var (
		mu  sync.Mutex
		got []Reading
	)
	cancel := s.Subscribe(func(r Reading) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, r)
	})

	s.Set(Reading{Domain: HeartRate, Value: 72, Text: "72 bpm"})
	cancel()
	s.Set(Reading{Domain: HeartRate, Value: 80, Text: "80 bpm"})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1, "MUST stop delivering after unsubscribe")
	assert.Equal(t, 72.0, got[0].Value)
}

func TestStore_MarshalJSON(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(Temperature, Humidity)
	s.Set(Reading{Domain: Humidity, Value: 45.1, Text: "45.10 %", Unit: "%", At: at})
	s.Set(Reading{Domain: Temperature, Value: 20.37, Text: "20.37 °C", Unit: "°C", At: at})

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"temperature": {"domain": "temperature", "value": 20.37, "text": "20.37 °C", "unit": "°C", "at": "2024-05-01T12:00:00Z"},
		"humidity": {"domain": "humidity", "value": 45.1, "text": "45.10 %", "unit": "%", "at": "2024-05-01T12:00:00Z"}
	}`, string(data))
	assert.Less(t, strings.Index(string(data), "temperature"), strings.Index(string(data), "humidity"), "MUST encode in declared order")
}

func TestReading_String(t *testing.T) {
	assert.Equal(t, NoData, Reading{Domain: RSSI}.String())
	assert.Equal(t, "-60 dBm", Reading{Domain: RSSI, Text: "-60 dBm"}.String())
}
