package snapshot

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/Lantsov/middleman/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func weight(v float64) *float64 { return &v }

func TestNewStore_AllSlotsNotConnected(t *testing.T) {
	for _, n := range []int{1, 2, 5, 12} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			store := NewStore(n)
			require.Equal(t, n, store.Len())

			for slot := 1; slot <= n; slot++ {
				r, err := store.Get(domain.Slot(slot))
				require.NoError(t, err)
				assert.Equal(t, domain.DisconnectedReading(), r)
			}

			var decoded map[string]domain.Reading
			data, err := store.Encode()
			require.NoError(t, err)
			require.NoError(t, json.Unmarshal(data, &decoded))
			assert.Len(t, decoded, n)
			for slot := 1; slot <= n; slot++ {
				assert.Contains(t, decoded, fmt.Sprint(slot))
			}
		})
	}
}

func TestStore_OutOfRangeSlot(t *testing.T) {
	store := NewStore(2)

	for _, slot := range []domain.Slot{0, -1, 3} {
		_, err := store.Get(slot)
		assert.ErrorIs(t, err, domain.ErrSlotNotFound)
		assert.ErrorIs(t, store.Set(slot, domain.Reading{}), domain.ErrSlotNotFound)
		assert.ErrorIs(t, store.SetStatus(slot, domain.StatusOk), domain.ErrSlotNotFound)
	}
}

func TestStore_SetReplacesWholesale(t *testing.T) {
	store := NewStore(1)
	msg := "overload"
	require.NoError(t, store.Set(1, domain.Reading{WeightNet: weight(10), WeightGross: weight(12), Status: "OK", DeviceMessage: &msg}))

	require.NoError(t, store.Set(1, domain.Reading{WeightNet: weight(3), Status: "OK"}))

	r, err := store.Get(1)
	require.NoError(t, err)
	assert.Equal(t, 3.0, *r.WeightNet)
	assert.Nil(t, r.WeightGross)
	assert.Nil(t, r.DeviceMessage)
}

func TestStore_SetStatusKeepsOtherFields(t *testing.T) {
	store := NewStore(1)
	require.NoError(t, store.Set(1, domain.Reading{WeightNet: weight(7), WeightGross: weight(9), Status: "OK"}))

	require.NoError(t, store.SetStatus(1, domain.StatusNotConnected))

	r, err := store.Get(1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNotConnected, r.Status)
	assert.Equal(t, 7.0, *r.WeightNet)
	assert.Equal(t, 9.0, *r.WeightGross)
}

func TestEncode_NumericSlotOrder(t *testing.T) {
	store := NewStore(11)

	data, err := store.Encode()
	require.NoError(t, err)

	s := string(data)
	assert.Less(t, strings.Index(s, `"2":`), strings.Index(s, `"10":`))
	assert.Less(t, strings.Index(s, `"9":`), strings.Index(s, `"11":`))
	assert.True(t, json.Valid(data))
}

func TestEncode_Payload(t *testing.T) {
	store := NewStore(2)
	require.NoError(t, store.Set(1, domain.Reading{WeightNet: weight(100), WeightGross: weight(100), Status: "OK"}))

	data, err := store.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"1": {"WeightNet":100,"WeightGross":100,"Status":"OK","DeviceMessage":null},
		"2": {"WeightNet":null,"WeightGross":null,"Status":"Not connected","DeviceMessage":null}
	}`, string(data))
}

func TestStore_ConcurrentWritersAndReaders(t *testing.T) {
	const slots = 4
	store := NewStore(slots)

	var wg sync.WaitGroup
	for slot := 1; slot <= slots; slot++ {
		wg.Add(1)
		go func(slot domain.Slot) {
			defer wg.Done()
			for i := range 500 {
				v := float64(i)
				// net and gross always written together; readers must never see them differ
				_ = store.Set(slot, domain.Reading{WeightNet: &v, WeightGross: &v, Status: "OK"})
			}
		}(domain.Slot(slot))
	}

	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 500 {
				for _, r := range store.Readings() {
					if r.WeightNet != nil {
						assert.Equal(t, *r.WeightNet, *r.WeightGross)
					}
				}
				_, err := store.Encode()
				assert.NoError(t, err)
			}
		}()
	}

	wg.Wait()
}
