package modem

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftl/cellbroadcast/cb"
	"github.com/ftl/cellbroadcast/com"
	"github.com/ftl/cellbroadcast/gsm"
	"github.com/ftl/cellbroadcast/handler"
)

type recordingSink struct {
	lock  sync.Mutex
	slots []int
	pdus  [][]byte
}

func (s *recordingSink) SubmitFragment(_ context.Context, slot int, pdu []byte) (handler.Decision, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.slots = append(s.slots, slot)
	s.pdus = append(s.pdus, pdu)
	return handler.Decision{Outcome: handler.BroadcastNow, Reason: handler.ReasonDelivered}, nil
}

func (s *recordingSink) received() [][]byte {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([][]byte{}, s.pdus...)
}

func scriptedModem() *com.InMemory {
	device := com.NewInMemory()
	device.Respond("AT", "OK")
	device.Respond("AT+CMGF=0", "OK")
	device.Respond(`AT+CSCB=0,"4352-4359,4370-4400,50",""`, "OK")
	device.Respond(`AT+CSCB=0,"4352-4359,4370-4400,50,221",""`, "OK")
	device.Respond("AT+CNMI=2,0,2,0,0", "OK")
	device.Respond("AT+CREG=2", "OK")
	device.Respond("AT+COPS=3,2", "OK")
	device.Respond("AT+CREG?", `+CREG: 2,1,"03E8","07D0"`, "OK")
	device.Respond("AT+COPS?", `+COPS: 0,2,"26201",7`, "OK")
	return device
}

func TestModem_Start(t *testing.T) {
	device := scriptedModem()
	defer device.Close()
	sink := &recordingSink{}
	modem := New(1, com.New(device), Options{AreaInfoChannels: []cb.MessageIdentifier{50}, CellTTL: time.Hour}, zerolog.Nop())

	err := modem.Start(context.Background(), sink)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"AT",
		"AT+CMGF=0",
		`AT+CSCB=0,"4352-4359,4370-4400,50",""`,
		"AT+CNMI=2,0,2,0,0",
		"AT+CREG=2",
		"AT+COPS=3,2",
		"AT+CREG?",
		"AT+COPS?",
	}, device.WrittenRequests())

	location, err := modem.CellLocator().CellLocation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, gsm.NewCellLocation("26201", 1000, 2000), location)
}

func TestModem_ForwardsMessages(t *testing.T) {
	device := scriptedModem()
	defer device.Close()
	sink := &recordingSink{}
	modem := New(0, com.New(device), Options{AreaInfoChannels: []cb.MessageIdentifier{50}}, zerolog.Nop())
	require.NoError(t, modem.Start(context.Background(), sink))

	device.PrepareRead([]byte("+CBM: 6\r\nC0001112 4411\r\n+CBM: 2\r\nC0\r\n"))

	assert.Eventually(t, func() bool {
		return len(sink.received()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []byte{0xC0, 0x00, 0x11, 0x12, 0x44, 0x11}, sink.received()[0])
	assert.Equal(t, []int{0}, sink.slots)
}

func TestModem_RegistrationIndication(t *testing.T) {
	device := scriptedModem()
	defer device.Close()
	modem := New(0, com.New(device), Options{CellTTL: time.Hour}, zerolog.Nop())
	device.Respond(`AT+CSCB=0,"4352-4359,4370-4400",""`, "OK")
	require.NoError(t, modem.Start(context.Background(), &recordingSink{}))

	device.PrepareRead([]byte("+CREG: 1,\"03E9\",\"0BB8\"\r\n"))

	assert.Eventually(t, func() bool {
		location, err := modem.CellLocator().CellLocation(context.Background())
		return err == nil && location == gsm.NewCellLocation("26201", 1001, 3000)
	}, time.Second, 10*time.Millisecond)
}

func TestModem_SelectChannels(t *testing.T) {
	device := scriptedModem()
	defer device.Close()
	modem := New(0, com.New(device), Options{}, zerolog.Nop())

	err := modem.SelectChannels(context.Background(), []cb.MessageIdentifier{50, 221})

	assert.NoError(t, err)
	assert.Equal(t, []string{`AT+CSCB=0,"4352-4359,4370-4400,50,221",""`}, device.WrittenRequests())
	assert.Equal(t, []cb.MessageIdentifier{50, 221}, modem.opts.AreaInfoChannels)
}

func TestModem_StartFailed(t *testing.T) {
	device := com.NewInMemory()
	defer device.Close()
	device.Respond("AT", "OK")
	device.Respond("AT+CMGF=0", "ERROR")
	modem := New(0, com.New(device), Options{}, zerolog.Nop())

	err := modem.Start(context.Background(), &recordingSink{})

	assert.Error(t, err)
}
