package telemetry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shini4i/ambient-brightness-daemon/internal/controller"
	"github.com/shini4i/ambient-brightness-daemon/internal/profile"
)

type fakeToken struct {
	err      error
	complete bool
}

func (t *fakeToken) Wait() bool                     { return t.complete }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.complete }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	messages []published
	token    *fakeToken
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.messages = append(c.messages, published{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return c.token
}

func TestPublisher_CycleCompleted(t *testing.T) {
	client := &fakeClient{token: &fakeToken{complete: true}}
	p := NewPublisher(client, "ambient-brightness", 1, true)

	p.CycleCompleted(controller.Result{
		Time:     time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC),
		Ambient:  105.5,
		Previous: 30,
		Target:   55,
		Source:   profile.SourceDisk,
		DeviceOK: true,
	})

	require.Len(t, client.messages, 1)
	msg := client.messages[0]
	assert.Equal(t, "ambient-brightness/cycle", msg.topic)
	assert.Equal(t, byte(1), msg.qos)
	assert.True(t, msg.retained)

	var decoded CycleMessage
	require.NoError(t, json.Unmarshal(msg.payload, &decoded))
	assert.Equal(t, CycleMessage{
		Timestamp: "2024-03-01T08:30:00Z",
		Ambient:   105.5,
		Previous:  30,
		Target:    55,
		Source:    "disk",
		DeviceOK:  true,
	}, decoded)
}

func TestPublisher_CalibrationChanged(t *testing.T) {
	client := &fakeClient{token: &fakeToken{complete: true}}
	p := NewPublisher(client, "home/office", 0, false)

	p.CalibrationChanged(profile.Profile{AmbientMin: 12, AmbientMax: 190})

	require.Len(t, client.messages, 1)
	assert.Equal(t, "home/office/calibration", client.messages[0].topic)
	assert.JSONEq(t, `{"ambient_min":12,"ambient_max":190}`, string(client.messages[0].payload))
}

func TestPublisher_PublishFailuresAreSwallowed(t *testing.T) {
	for _, token := range []*fakeToken{
		{complete: false},
		{complete: true, err: errors.New("not connected")},
	} {
		client := &fakeClient{token: token}
		p := NewPublisher(client, "x", 0, false)
		p.CycleCompleted(controller.Result{Target: 10})
		assert.Len(t, client.messages, 1)
	}
}

func TestPublisher_CloseWithoutConnection(t *testing.T) {
	NewPublisher(&fakeClient{}, "x", 0, false).Close()
}
