package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTopicsAreDistinct(t *testing.T) {
	topics := map[string]bool{
		ComputeMetaInfo{}.Topic():    true,
		MetaInfoRequested{}.Topic():  true,
		MetaInfoFinished{}.Topic():   true,
		StartArchivingPV{}.Topic():   true,
		StartedArchivingPV{}.Topic(): true,
	}
	assert.Len(t, topics, 5)
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	original := NewStartArchivingPV("TEST:PV1", "DBR_DOUBLE", []string{"badger:///tmp/data"})

	data, err := Marshal(original)
	require.NoError(t, err)

	decoded, err := unmarshalByTopic(original.Topic(), data)
	require.NoError(t, err)

	got, ok := decoded.(StartArchivingPV)
	require.True(t, ok)
	assert.Equal(t, original.PVName, got.PVName)
	assert.Equal(t, original.DBRType, got.DBRType)
	assert.Equal(t, original.StorageURLs, got.StorageURLs)
	assert.Equal(t, original.EventID, got.EventID)
}

func TestMetaInfoFinishedSucceededReflectsError(t *testing.T) {
	ok := NewMetaInfoFinished("TEST:PV1", "DBR_DOUBLE", nil)
	assert.True(t, ok.Succeeded())

	failed := NewMetaInfoFinished("TEST:PV1", "", assert.AnError)
	assert.False(t, failed.Succeeded())
	assert.Equal(t, assert.AnError.Error(), failed.Err)
}

func TestUnmarshalByTopicRejectsUnknownTopic(t *testing.T) {
	_, err := unmarshalByTopic("not-a-real-topic", []byte(`{}`))
	require.Error(t, err)
	var unknown *ErrUnknownEventType
	assert.ErrorAs(t, err, &unknown)
}
