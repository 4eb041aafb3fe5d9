package pru

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContextInitialState(t *testing.T) {
	c := NewContext()
	require.Equal(t, 0, c.Index())
	require.False(t, c.InProgress())
	require.EqualValues(t, 0, c.Length())
	require.Len(t, c.WriteBuffer(), BufferSize)
	require.Len(t, c.ReadBuffer(), BufferSize)
}

func TestContextSwap(t *testing.T) {
	c := NewContext()
	c.WriteBuffer()[0] = 0xaa
	require.Equal(t, 1, c.Swap())
	require.EqualValues(t, 0xaa, c.ReadBuffer()[0])
	require.EqualValues(t, 0, c.WriteBuffer()[0])
	require.Equal(t, 0, c.Swap())
	require.EqualValues(t, 0xaa, c.WriteBuffer()[0])
}

func TestContextBeginComplete(t *testing.T) {
	c := NewContext()
	require.True(t, c.TryBegin(512, 600))
	require.True(t, c.InProgress())
	require.True(t, c.Armed())
	require.EqualValues(t, 512, c.Length())
	require.EqualValues(t, 600, c.MaxLength())
	require.False(t, c.TryBegin(16, 0))
	require.EqualValues(t, 512, c.Length())

	c.Complete(500)
	require.False(t, c.InProgress())
	require.Equal(t, 1, c.Index())
	require.EqualValues(t, 500, c.Length())
}

func TestContextAbort(t *testing.T) {
	c := NewContext()
	require.True(t, c.TryBegin(8, 0))
	c.Abort()
	require.False(t, c.InProgress())
	require.Equal(t, 0, c.Index())
	require.True(t, c.TryBegin(8, 0))
}

func TestContextTryBeginRace(t *testing.T) {
	c := NewContext()
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n uint32) {
			defer wg.Done()
			if c.TryBegin(n, 0) {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(uint32(i + 1))
	}
	wg.Wait()
	require.Equal(t, 1, winners)
}

func TestContextReset(t *testing.T) {
	c := NewContext()
	c.WriteBuffer()[3] = 1
	require.True(t, c.TryBegin(4, 0))
	c.Complete(4)
	c.Reset()
	require.Equal(t, 0, c.Index())
	require.False(t, c.InProgress())
	require.EqualValues(t, 0, c.Length())
	require.EqualValues(t, 0, c.ReadBuffer()[3])
}

func TestContextAt(t *testing.T) {
	_, err := ContextAt(make([]byte, ContextSize-1))
	require.Error(t, err)

	mem := make([]byte, DataRAMSize)
	c, err := ContextAt(mem)
	require.NoError(t, err)
	c.WriteBuffer()[0] = 0x5a
	require.EqualValues(t, 0x5a, mem[0])
	c.Swap()
	require.EqualValues(t, 1, mem[2*BufferSize])
}
