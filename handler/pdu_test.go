package handler

import (
	"math"

	"github.com/ftl/cellbroadcast/cb"
	"github.com/ftl/cellbroadcast/geo"
)

// 8-bit data, general data coding
const testDCS = 0x44

// Serial numbers with the geographical scope in the upper two bits.
const (
	cellWideSerial cb.SerialNumber = 0xC000
	areaWideSerial cb.SerialNumber = 0x8000
	plmnWideSerial cb.SerialNumber = 0x4000
)

func paddedPage(text string) []byte {
	result := []byte(text)
	for len(result) < cb.PageLength {
		result = append(result, '\r')
	}
	return result
}

func gsmPDU(serial cb.SerialNumber, id cb.MessageIdentifier, page, total int, text string) []byte {
	result := []byte{
		byte(serial >> 8), byte(serial),
		byte(id >> 8), byte(id),
		testDCS,
		byte(page<<4) | byte(total&0x0F),
	}
	return append(result, paddedPage(text)...)
}

func triggerPDU(triggerType cb.TriggerType, identities ...cb.Identity) []byte {
	w := &bitWriter{}
	w.write(0, 16)
	w.write(int(cb.CMASGeoFencingTrigger), 16)
	w.write(testDCS, 8)
	w.write(0x11, 8)
	w.write(int(triggerType), 4)
	w.write(2+4*len(identities), 7)
	w.align()
	for _, identity := range identities {
		w.write(int(identity.MessageIdentifier), 16)
		w.write(int(identity.SerialNumber), 16)
	}
	return w.data
}

// umtsCirclePDU builds a single page UMTS PDU with a circle as warning area and the given maximum wait time in seconds.
func umtsCirclePDU(serial cb.SerialNumber, id cb.MessageIdentifier, text string, center geo.LatLng, radiusKm float64, maxWaitSeconds int) []byte {
	result := []byte{
		cb.UMTSMessageType,
		byte(id >> 8), byte(id),
		byte(serial >> 8), byte(serial),
		testDCS,
		1,
	}
	page := make([]byte, cb.PageLength)
	copy(page, text)
	result = append(result, page...)
	result = append(result, byte(len(text)))

	w := &bitWriter{}
	w.write(1, 4) // maximum wait time
	w.write(3, 10)
	w.align()
	w.write(maxWaitSeconds, 8)
	w.write(3, 4) // circle
	w.write(10, 10)
	w.align()
	w.write(int(math.Floor((center.Lat+90)/180*(1<<22))), 22)
	w.write(int(math.Floor((center.Lng+180)/360*(1<<22))), 22)
	w.write(int(radiusKm*64), 20)

	wac := w.data
	result = append(result, byte(len(wac)), byte(len(wac)>>8))
	return append(result, wac...)
}

type bitWriter struct {
	data []byte
	bits int
}

func (w *bitWriter) write(value int, n int) {
	for i := n - 1; i >= 0; i-- {
		if w.bits%8 == 0 {
			w.data = append(w.data, 0)
		}
		if (value>>uint(i))&0x01 != 0 {
			w.data[len(w.data)-1] |= 0x80 >> uint(w.bits%8)
		}
		w.bits++
	}
}

func (w *bitWriter) align() {
	if w.bits%8 != 0 {
		w.bits += 8 - w.bits%8
	}
}
