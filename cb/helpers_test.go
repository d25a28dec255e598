package cb

// packGSM7 packs the given text into GSM 7-bit septets. Only characters that have the same
// code in the GSM default alphabet and in ASCII (letters, digits, space, CR, LF, '.', ',') are supported.
func packGSM7(text string) []byte {
	septets := []byte(text)
	result := make([]byte, (len(septets)*7+7)/8)
	for i, c := range septets {
		bitOffset := i * 7
		byteOffset := bitOffset / 8
		shift := uint(bitOffset % 8)
		result[byteOffset] |= c << shift
		if shift > 1 {
			result[byteOffset+1] |= c >> (8 - shift)
		}
	}
	return result
}

// gsm7Page returns a full GSM page with the given text, padded with CR characters.
func gsm7Page(text string) []byte {
	septets := PageLength * 8 / 7
	for len(text) < septets {
		text += "\r"
	}
	return packGSM7(text)
}

// gsmPDU builds a GSM format PDU: serial number, message identifier, data coding scheme, page parameter, and page body.
func gsmPDU(serial SerialNumber, id MessageIdentifier, dcs byte, page, total int, body []byte) []byte {
	result := []byte{
		byte(serial >> 8), byte(serial),
		byte(id >> 8), byte(id),
		dcs,
		byte(page<<4) | byte(total&0x0F),
	}
	return append(result, body...)
}

// umtsPDU builds a UMTS format PDU with the given pages and optional warning area coordinates.
func umtsPDU(serial SerialNumber, id MessageIdentifier, dcs byte, pages [][]byte, wac []byte) []byte {
	result := []byte{
		UMTSMessageType,
		byte(id >> 8), byte(id),
		byte(serial >> 8), byte(serial),
		dcs,
		byte(len(pages)),
	}
	for _, page := range pages {
		padded := make([]byte, PageLength)
		copy(padded, page)
		result = append(result, padded...)
		result = append(result, byte(len(page)))
	}
	if len(wac) > 0 {
		result = append(result, byte(len(wac)), byte(len(wac)>>8))
		result = append(result, wac...)
	}
	return result
}

// bitWriter is the counterpart of bitReader, used to build test data.
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

func (w *bitWriter) bytes() []byte {
	return w.data
}
