package com

import (
	"io"
	"strings"
	"sync"
	"time"
)

const inMemoryPollInterval = 10 * time.Millisecond

// InMemory is a device that lives only in memory. It can answer requests with scripted responses, which makes
// it usable as a modem double in tests.
type InMemory struct {
	lock           sync.Mutex
	readBuffer     []byte
	writeBuffer    []byte
	responses      map[string]string
	closeWhenEmpty bool

	writeSignal chan struct{}
	closed      chan struct{}
	closeOnce   sync.Once
}

func NewInMemory() *InMemory {
	return &InMemory{
		responses:   make(map[string]string),
		writeSignal: make(chan struct{}),
		closed:      make(chan struct{}),
	}
}

func (rw *InMemory) Close() error {
	rw.closeOnce.Do(func() {
		close(rw.closed)
	})
	return nil
}

func (rw *InMemory) WaitUntilClosed() {
	<-rw.closed
}

func (rw *InMemory) Read(p []byte) (int, error) {
	for {
		select {
		case <-rw.closed:
			return 0, io.EOF
		default:
		}

		rw.lock.Lock()
		if len(rw.readBuffer) > 0 {
			n := copy(p, rw.readBuffer)
			rw.readBuffer = rw.readBuffer[n:]
			if rw.closeWhenEmpty && len(rw.readBuffer) == 0 {
				rw.Close()
			}
			rw.lock.Unlock()
			return n, nil
		}
		rw.lock.Unlock()

		select {
		case <-rw.closed:
			return 0, io.EOF
		case <-time.After(inMemoryPollInterval):
		}
	}
}

// PrepareRead appends the given data to the data that is returned by Read.
func (rw *InMemory) PrepareRead(p []byte) {
	rw.lock.Lock()
	defer rw.lock.Unlock()
	rw.readBuffer = append(rw.readBuffer, p...)
}

// Respond scripts the response lines to the given request. The final result code must be part of the response.
func (rw *InMemory) Respond(request string, response ...string) {
	rw.lock.Lock()
	defer rw.lock.Unlock()
	rw.responses[strings.ToUpper(request)] = strings.Join(response, "\r\n") + "\r\n"
}

func (rw *InMemory) IsReadEmpty() bool {
	rw.lock.Lock()
	defer rw.lock.Unlock()
	return len(rw.readBuffer) == 0
}

// CloseWhenEmpty closes the device as soon as all prepared data was read.
func (rw *InMemory) CloseWhenEmpty(value bool) {
	rw.lock.Lock()
	defer rw.lock.Unlock()
	rw.closeWhenEmpty = value
}

func (rw *InMemory) Write(p []byte) (int, error) {
	rw.lock.Lock()
	rw.writeBuffer = append(rw.writeBuffer, p...)
	request := strings.ToUpper(strings.TrimSpace(string(p)))
	if response, ok := rw.responses[request]; ok {
		rw.readBuffer = append(rw.readBuffer, response...)
	}
	rw.lock.Unlock()

	select {
	case rw.writeSignal <- struct{}{}:
	default:
	}
	return len(p), nil
}

// Written returns all data that was written to the device.
func (rw *InMemory) Written() []byte {
	rw.lock.Lock()
	defer rw.lock.Unlock()
	return append([]byte{}, rw.writeBuffer...)
}

// WrittenRequests returns all written requests without line terminators.
func (rw *InMemory) WrittenRequests() []string {
	written := strings.TrimSpace(string(rw.Written()))
	if written == "" {
		return nil
	}
	return strings.Split(written, "\r\n")
}

func (rw *InMemory) ClearWrite() {
	rw.lock.Lock()
	defer rw.lock.Unlock()
	rw.writeBuffer = nil
}

// WaitUntilWritten blocks until the next Write.
func (rw *InMemory) WaitUntilWritten() {
	<-rw.writeSignal
}
