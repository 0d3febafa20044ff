package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueueFiresInDeadlineOrder(t *testing.T) {
	q := NewQueue()
	var order []int

	q.ScheduleAt(300, func() { order = append(order, 3) })
	q.ScheduleAt(100, func() { order = append(order, 1) })
	q.ScheduleAt(200, func() { order = append(order, 2) })

	fired := q.FireDue(250)
	assert.Equal(t, 2, fired)
	assert.Equal(t, []int{1, 2}, order)

	fired = q.FireDue(300)
	assert.Equal(t, 1, fired)
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestCancelPreventsFiring(t *testing.T) {
	q := NewQueue()
	fired := false
	h := q.ScheduleAt(100, func() { fired = true })
	q.Cancel(h)

	assert.Equal(t, 0, q.FireDue(1000))
	assert.False(t, fired, "cancelled timer fired")
}

func TestNextDeadlineSkipsCancelled(t *testing.T) {
	q := NewQueue()
	h1 := q.ScheduleAt(100, func() {})
	q.ScheduleAt(200, func() {})
	q.Cancel(h1)

	d, ok := q.NextDeadline()
	assert.True(t, ok)
	assert.Equal(t, int64(200), d)
}

func TestNextDeadlineEmptyQueue(t *testing.T) {
	q := NewQueue()
	_, ok := q.NextDeadline()
	assert.False(t, ok, "expected NextDeadline to report no live timer on empty queue")
}

func TestAlignedIntervalDoesNotDrift(t *testing.T) {
	ai := NewAlignedInterval(0, 100)
	first := ai.Next()
	second := ai.Next()
	third := ai.Next()
	assert.Equal(t, []int64{100, 200, 300}, []int64{first, second, third})
}
