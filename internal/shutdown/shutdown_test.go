package shutdown

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFireIsIdempotent(t *testing.T) {
	s := New()
	s.Fire()
	s.Fire()
	require.True(t, s.Fired())
}

func TestWaitTimeoutReturnsFalseOnTimeout(t *testing.T) {
	s := New()
	fired := s.WaitTimeout(10 * time.Millisecond)
	require.False(t, fired)
}

func TestWaitTimeoutReturnsTrueOnFire(t *testing.T) {
	s := New()
	go func() {
		time.Sleep(5 * time.Millisecond)
		s.Fire()
	}()
	fired := s.WaitTimeout(time.Second)
	require.True(t, fired)
}

func TestDoneChannelClosesOnFire(t *testing.T) {
	s := New()
	s.Fire()
	select {
	case <-s.Done():
	default:
		t.Fatal("Done channel should be closed after Fire")
	}
}

func TestFiredFalseBeforeFire(t *testing.T) {
	s := New()
	require.False(t, s.Fired())
}
