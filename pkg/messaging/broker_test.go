package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChannelFor(t *testing.T) {
	assert.Equal(t, "appointments.created", ChannelFor("appointment.created"))
	assert.Equal(t, "appointments.cancelled", ChannelFor("appointment.cancelled"))
	assert.Equal(t, "appointments.custom", ChannelFor("custom"))
}
