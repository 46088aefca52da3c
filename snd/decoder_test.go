package snd

import (
	"bytes"
	"errors"
	"sync"
	"testing"
)

type MockFrameDecoder struct {
	samples []int16
	err     error
}

func (m *MockFrameDecoder) Decode(data []byte, pcm []int16) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	return copy(pcm, m.samples) / Channels, nil
}

type MockSink struct {
	bytes.Buffer
	closes int
}

func (m *MockSink) Close() error {
	m.closes++
	return nil
}

func TestDecoderWritesLittleEndianPCM(t *testing.T) {
	sink := &MockSink{}
	d := NewDecoder(&MockFrameDecoder{samples: []int16{1, -1, 0x1234}}, sink)

	if err := d.Write([]byte{0xfc}); err != nil {
		t.Fatal(err)
	}

	want := []byte{0x01, 0x00, 0xff, 0xff, 0x34, 0x12}
	if !bytes.Equal(sink.Bytes(), want) {
		t.Errorf("pcm = %x, want %x", sink.Bytes(), want)
	}
}

func TestDecoderForwardsDecodeErrors(t *testing.T) {
	sink := &MockSink{}
	d := NewDecoder(&MockFrameDecoder{err: errors.New("corrupted stream")}, sink)

	if err := d.Write([]byte{0x00}); err == nil {
		t.Fatal("expected decode error")
	}
	if sink.Len() != 0 {
		t.Error("wrote pcm for a failed frame")
	}
	if sink.closes != 0 {
		t.Error("decode error closed the sink")
	}
}

func TestDecoderClosesSinkOnce(t *testing.T) {
	sink := &MockSink{}
	d := NewDecoder(&MockFrameDecoder{samples: []int16{1}}, sink)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Close()
		}()
	}
	wg.Wait()

	if sink.closes != 1 {
		t.Errorf("sink closed %d times, want 1", sink.closes)
	}
	if err := d.Write([]byte{0xfc}); !errors.Is(err, ErrClosed) {
		t.Errorf("Write after Close = %v, want ErrClosed", err)
	}
}
