package watcher

import (
	"encoding/binary"
	"reflect"
	"testing"
)

func TestEncodeDecodeRecords(t *testing.T) {
	tests := []struct {
		name    string
		records []Record
	}{
		{
			name:    "single",
			records: []Record{{Action: ActionAdded, Name: "a.txt"}},
		},
		{
			name: "batch",
			records: []Record{
				{Action: ActionAdded, Name: "a.txt"},
				{Action: ActionRenamedOldName, Name: "a.txt"},
				{Action: ActionRenamedNewName, Name: "b.txt"},
				{Action: ActionModified, Name: "dir/b.txt"},
				{Action: ActionRemoved, Name: "b.txt"},
			},
		},
		{
			name: "odd length names are padded",
			records: []Record{
				{Action: ActionAdded, Name: "x"},
				{Action: ActionAdded, Name: "xyz"},
			},
		},
		{
			name: "unicode",
			records: []Record{
				{Action: ActionAdded, Name: "résumé.txt"},
				{Action: ActionAdded, Name: "日本語"},
				{Action: ActionAdded, Name: "emoji-😀.png"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, 4096)
			n, consumed := EncodeRecords(buf, tt.records)
			if consumed != len(tt.records) {
				t.Fatalf("EncodeRecords() consumed = %d, want %d", consumed, len(tt.records))
			}
			if n%recordAlignment != 0 {
				t.Errorf("EncodeRecords() wrote %d bytes, not aligned", n)
			}

			got := DecodeRecords(buf[:n])
			if !reflect.DeepEqual(got, tt.records) {
				t.Errorf("DecodeRecords() = %v, want %v", got, tt.records)
			}
		})
	}
}

func TestEncodedSize(t *testing.T) {
	tests := []struct {
		name string
		want int
	}{
		{"", 12},
		{"a", 16},
		{"ab", 16},
		{"abc", 20},
		{"😀", 16},
	}

	for _, tt := range tests {
		if got := encodedSize(Record{Name: tt.name}); got != tt.want {
			t.Errorf("encodedSize(%q) = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestEncodeRecordsPartialFit(t *testing.T) {
	records := []Record{
		{Action: ActionAdded, Name: "aa"},   // 16 bytes
		{Action: ActionAdded, Name: "bb"},   // 16 bytes
		{Action: ActionAdded, Name: "cccc"}, // 20 bytes
	}

	buf := make([]byte, 40)
	n, consumed := EncodeRecords(buf, records)
	if consumed != 2 {
		t.Fatalf("consumed = %d, want 2", consumed)
	}
	if n != 32 {
		t.Fatalf("n = %d, want 32", n)
	}
	if next := binary.LittleEndian.Uint32(buf[16:20]); next != 0 {
		t.Errorf("last NextEntryOffset = %d, want 0", next)
	}

	got := DecodeRecords(buf[:n])
	if !reflect.DeepEqual(got, records[:2]) {
		t.Errorf("DecodeRecords() = %v, want %v", got, records[:2])
	}

	n, consumed = EncodeRecords(make([]byte, 8), records)
	if n != 0 || consumed != 0 {
		t.Errorf("EncodeRecords() into tiny buffer = (%d, %d), want (0, 0)", n, consumed)
	}
}

// rawRecord builds one record by hand.
func rawRecord(next, action, nameLen uint32, name []uint16, size int) []byte {
	b := make([]byte, size)
	binary.LittleEndian.PutUint32(b[0:4], next)
	binary.LittleEndian.PutUint32(b[4:8], action)
	binary.LittleEndian.PutUint32(b[8:12], nameLen)
	for i, u := range name {
		if recordHeaderSize+2*i+2 > size {
			break
		}
		binary.LittleEndian.PutUint16(b[recordHeaderSize+2*i:], u)
	}
	return b
}

func TestDecodeRecordsMalformed(t *testing.T) {
	ab := []uint16{'a', 'b'}

	tests := []struct {
		name string
		buf  []byte
		want []Record
	}{
		{
			name: "empty",
			buf:  nil,
			want: nil,
		},
		{
			name: "truncated header",
			buf:  make([]byte, recordHeaderSize-1),
			want: nil,
		},
		{
			name: "name runs past the end",
			buf:  rawRecord(0, uint32(ActionAdded), 100, ab, 16),
			want: nil,
		},
		{
			name: "next points past the end",
			buf:  rawRecord(64, uint32(ActionAdded), 4, ab, 16),
			want: []Record{{Action: ActionAdded, Name: "ab"}},
		},
		{
			name: "next equal to the remaining length",
			buf:  rawRecord(16, uint32(ActionAdded), 4, ab, 16),
			want: []Record{{Action: ActionAdded, Name: "ab"}},
		},
		{
			name: "next shorter than a header",
			buf: append(
				rawRecord(4, uint32(ActionAdded), 4, ab, 16),
				rawRecord(0, uint32(ActionRemoved), 4, ab, 16)...,
			),
			want: []Record{{Action: ActionAdded, Name: "ab"}},
		},
		{
			name: "odd name length drops the trailing byte",
			buf:  rawRecord(0, uint32(ActionModified), 5, []uint16{'a', 'b', 'c'}, 20),
			want: []Record{{Action: ActionModified, Name: "ab"}},
		},
		{
			name: "second record truncated",
			buf: append(
				rawRecord(16, uint32(ActionAdded), 4, ab, 16),
				make([]byte, 6)...,
			),
			want: []Record{{Action: ActionAdded, Name: "ab"}},
		},
		{
			name: "unknown action is passed through",
			buf:  rawRecord(0, 42, 4, ab, 16),
			want: []Record{{Action: Action(42), Name: "ab"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeRecords(tt.buf)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DecodeRecords() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeRecordsStopsAtLastEntry(t *testing.T) {
	buf := make([]byte, 256)
	n, _ := EncodeRecords(buf, []Record{{Action: ActionAdded, Name: "only"}})

	// Bytes after the terminating record must be ignored.
	copy(buf[n:], rawRecord(0, uint32(ActionRemoved), 4, []uint16{'z', 'z'}, 16))

	got := DecodeRecords(buf[:n+16])
	want := []Record{{Action: ActionAdded, Name: "only"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DecodeRecords() = %v, want %v", got, want)
	}
}

func TestDecodeRecordsUnpairedSurrogate(t *testing.T) {
	buf := rawRecord(0, uint32(ActionAdded), 2, []uint16{0xD800}, 16)

	got := DecodeRecords(buf)
	if len(got) != 1 {
		t.Fatalf("DecodeRecords() returned %d records, want 1", len(got))
	}
	if got[0].Name != "�" {
		t.Errorf("Name = %q, want replacement character", got[0].Name)
	}
}
