package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryDelayGrowsExponentially(t *testing.T) {
	first := retryDelay(2*time.Second, 1)
	second := retryDelay(2*time.Second, 2)
	third := retryDelay(2*time.Second, 3)

	assert.Equal(t, 2*time.Second, first)
	assert.Greater(t, second, first)
	assert.Greater(t, third, second)
}

func TestRetryDelayRespectsInitial(t *testing.T) {
	assert.Equal(t, 500*time.Millisecond, retryDelay(500*time.Millisecond, 1))
}

func TestProgressKey(t *testing.T) {
	assert.Equal(t, "progress:preflight:abc", progressKey("preflight", "abc"))
}

func TestMustJSON(t *testing.T) {
	data := mustJSON(map[string]string{"a": "b"})
	assert.JSONEq(t, `{"a":"b"}`, string(data))

	assert.Panics(t, func() {
		mustJSON(make(chan int))
	})
}
