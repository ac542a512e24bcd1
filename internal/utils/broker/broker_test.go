package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishSubscribe(t *testing.T) {
	b := NewBroker()
	topic := UsageAlertTopic("u-1")
	ch := b.Subscribe(topic)

	assert.Equal(t, 1, b.Publish(topic, "hello"))
	assert.Equal(t, "hello", <-ch)

	assert.Equal(t, 0, b.Publish(UsageAlertTopic("u-2"), "nobody listens"))

	b.Unsubscribe(topic, ch)
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, b.Publish(topic, "gone"))
}

func TestPublishDoesNotBlockOnFullSubscriber(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("t")

	delivered := 0
	for i := 0; i < 20; i++ {
		delivered += b.Publish("t", i)
	}
	assert.Equal(t, cap(ch), delivered)
}
