package watcher

import (
	"encoding/binary"
	"unicode/utf16"
)

// Records use the FILE_NOTIFY_INFORMATION layout on every platform:
//
//	uint32 NextEntryOffset  // 0 on the last record
//	uint32 Action
//	uint32 FileNameLength   // in bytes
//	uint16 FileName[]       // UTF-16LE, not terminated
//
// Entries start on 4 byte boundaries.
const (
	recordHeaderSize = 12
	recordAlignment  = 4
)

// DecodeRecords decodes the change records in buf, which must hold exactly
// the bytes reported by one completion.
//
// Decoding stops at the first record whose NextEntryOffset is zero and never
// reads past buf: a header, name or offset that would run past the end ends
// the batch and nothing beyond that point is returned.
func DecodeRecords(buf []byte) []Record {
	var records []Record

	offset := 0
	for len(buf)-offset >= recordHeaderSize {
		entry := buf[offset:]
		next := binary.LittleEndian.Uint32(entry[0:4])
		action := binary.LittleEndian.Uint32(entry[4:8])
		nameLen := uint64(binary.LittleEndian.Uint32(entry[8:12]))

		if nameLen > uint64(len(entry)-recordHeaderSize) {
			break
		}

		// FileNameLength counts bytes; the name is made of 2 byte code units.
		units := make([]uint16, nameLen/2)
		for i := range units {
			units[i] = binary.LittleEndian.Uint16(entry[recordHeaderSize+2*i:])
		}

		records = append(records, Record{
			Action: Action(action),
			Name:   string(utf16.Decode(units)),
		})

		if next == 0 {
			break
		}
		if next < recordHeaderSize || uint64(next) >= uint64(len(entry)) {
			break
		}
		offset += int(next)
	}

	return records
}

// encodedSize returns the number of bytes r occupies in a buffer, padding
// included.
func encodedSize(r Record) int {
	return align(recordHeaderSize + 2*len(utf16.Encode([]rune(r.Name))))
}

// EncodeRecords writes as many whole records from records into dst as fit
// and links them through NextEntryOffset. It returns the number of bytes
// written and the number of records consumed.
func EncodeRecords(dst []byte, records []Record) (n int, consumed int) {
	last := -1
	for _, r := range records {
		units := utf16.Encode([]rune(r.Name))
		size := align(recordHeaderSize + 2*len(units))
		if n+size > len(dst) {
			break
		}

		entry := dst[n : n+size]
		binary.LittleEndian.PutUint32(entry[0:4], 0)
		binary.LittleEndian.PutUint32(entry[4:8], uint32(r.Action))
		binary.LittleEndian.PutUint32(entry[8:12], uint32(2*len(units)))
		for i, u := range units {
			binary.LittleEndian.PutUint16(entry[recordHeaderSize+2*i:], u)
		}
		for i := recordHeaderSize + 2*len(units); i < size; i++ {
			entry[i] = 0
		}

		if last >= 0 {
			binary.LittleEndian.PutUint32(dst[last:last+4], uint32(n-last))
		}
		last = n
		n += size
		consumed++
	}

	return n, consumed
}

func align(n int) int {
	return (n + recordAlignment - 1) &^ (recordAlignment - 1)
}
