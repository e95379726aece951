package activity

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"unicode/utf8"

	"github.com/google/uuid"
)

// CodecVersion версия формата записи. Декодер отвергает любую другую.
const CodecVersion uint32 = 1

// Минимальные размеры элементов, используются для проверки счётчиков до аллокации
const (
	timeEntrySize     = 16 + 8
	blockEntrySize    = 16 + 4
	heightmapWordSize = 8
	minRecordSize     = 4 + 4 + 4 + 1
	minTableEntrySize = 8 + minRecordSize
)

// Table содержимое файла одного измерения
type Table struct {
	Dimension string
	Records   map[int64]*Record
}

// encoder пишет big-endian поля в io.Writer, запоминая первую ошибку
type encoder struct {
	w   io.Writer
	buf [8]byte
	err error
}

func (e *encoder) write(p []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(p)
}

func (e *encoder) u8(v uint8) {
	e.buf[0] = v
	e.write(e.buf[:1])
}

func (e *encoder) u32(v uint32) {
	binary.BigEndian.PutUint32(e.buf[:4], v)
	e.write(e.buf[:4])
}

func (e *encoder) u64(v uint64) {
	binary.BigEndian.PutUint64(e.buf[:8], v)
	e.write(e.buf[:8])
}

func (e *encoder) uuid(id uuid.UUID) {
	e.write(id[:])
}

func (e *encoder) count(n int) {
	if e.err == nil && uint64(n) > math.MaxUint32 {
		e.err = fmt.Errorf("too many entries: %d", n)
		return
	}
	e.u32(uint32(n))
}

func (e *encoder) record(r *Record) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e.u32(CodecVersion)

	e.count(len(r.visitTime))
	for id, t := range r.visitTime {
		e.uuid(id)
		e.u64(t)
	}

	e.count(len(r.blocksPlaced))
	for id, n := range r.blocksPlaced {
		e.uuid(id)
		e.u32(n)
	}

	if r.heightmap == nil {
		e.u8(0)
		return
	}
	e.u8(1)
	e.count(len(r.heightmap))
	for _, w := range r.heightmap {
		e.u64(uint64(w))
	}
}

// decoder читает поля из буфера с проверкой границ
type decoder struct {
	data []byte
	off  int
}

func (d *decoder) remaining() int {
	return len(d.data) - d.off
}

func (d *decoder) need(n int, what string) error {
	if n < 0 || d.remaining() < n {
		return fmt.Errorf("%w: %s needs %d bytes at offset %d, %d left",
			ErrMalformedRecord, what, n, d.off, d.remaining())
	}
	return nil
}

// needCount проверяет, что count элементов размера size помещаются в остаток буфера
func (d *decoder) needCount(count uint32, size int, what string) error {
	if uint64(count)*uint64(size) > uint64(d.remaining()) {
		return fmt.Errorf("%w: %s count %d overruns buffer (%d bytes left)",
			ErrMalformedRecord, what, count, d.remaining())
	}
	return nil
}

func (d *decoder) u8(what string) (uint8, error) {
	if err := d.need(1, what); err != nil {
		return 0, err
	}
	v := d.data[d.off]
	d.off++
	return v, nil
}

func (d *decoder) u32(what string) (uint32, error) {
	if err := d.need(4, what); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(d.data[d.off:])
	d.off += 4
	return v, nil
}

func (d *decoder) u64(what string) (uint64, error) {
	if err := d.need(8, what); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(d.data[d.off:])
	d.off += 8
	return v, nil
}

func (d *decoder) uuid(what string) (uuid.UUID, error) {
	var id uuid.UUID
	if err := d.need(16, what); err != nil {
		return id, err
	}
	copy(id[:], d.data[d.off:d.off+16])
	d.off += 16
	return id, nil
}

func (d *decoder) record() (*Record, error) {
	version, err := d.u32("version")
	if err != nil {
		return nil, err
	}
	if version != CodecVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformedRecord, version)
	}

	n, err := d.u32("visit time count")
	if err != nil {
		return nil, err
	}
	if err := d.needCount(n, timeEntrySize, "visit time"); err != nil {
		return nil, err
	}
	visitTime := make(map[uuid.UUID]uint64, n)
	for i := uint32(0); i < n; i++ {
		id, err := d.uuid("visitor")
		if err != nil {
			return nil, err
		}
		t, err := d.u64("visit time")
		if err != nil {
			return nil, err
		}
		visitTime[id] = t
	}

	n, err = d.u32("blocks placed count")
	if err != nil {
		return nil, err
	}
	if err := d.needCount(n, blockEntrySize, "blocks placed"); err != nil {
		return nil, err
	}
	blocks := make(map[uuid.UUID]uint32, n)
	for i := uint32(0); i < n; i++ {
		id, err := d.uuid("visitor")
		if err != nil {
			return nil, err
		}
		c, err := d.u32("blocks placed")
		if err != nil {
			return nil, err
		}
		blocks[id] = c
	}

	flag, err := d.u8("heightmap flag")
	if err != nil {
		return nil, err
	}
	var heightmap []int64
	switch flag {
	case 0:
	case 1:
		n, err = d.u32("heightmap length")
		if err != nil {
			return nil, err
		}
		if err := d.needCount(n, heightmapWordSize, "heightmap"); err != nil {
			return nil, err
		}
		heightmap = make([]int64, n)
		for i := range heightmap {
			w, err := d.u64("heightmap word")
			if err != nil {
				return nil, err
			}
			heightmap[i] = int64(w)
		}
	default:
		return nil, fmt.Errorf("%w: invalid heightmap flag %d", ErrMalformedRecord, flag)
	}

	return newRecordFromMaps(visitTime, blocks, heightmap), nil
}

func (d *decoder) string(what string) (string, error) {
	n, err := d.u32(what + " length")
	if err != nil {
		return "", err
	}
	if err := d.needCount(n, 1, what); err != nil {
		return "", err
	}
	raw := d.data[d.off : d.off+int(n)]
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%w: %s is not valid UTF-8", ErrMalformedRecord, what)
	}
	d.off += int(n)
	return string(raw), nil
}

// EncodeRecord пишет одну запись в формате версии CodecVersion
func EncodeRecord(w io.Writer, r *Record) error {
	e := &encoder{w: w}
	e.record(r)
	return e.err
}

// DecodeRecord читает одну запись из начала data
func DecodeRecord(data []byte) (*Record, error) {
	d := &decoder{data: data}
	return d.record()
}

// EncodeTable пишет все записи измерения: число записей, затем пары
// (упакованный ключ чанка, запись), в конце идентификатор измерения
func EncodeTable(w io.Writer, dimension string, records map[int64]*Record) error {
	e := &encoder{w: w}

	e.count(len(records))
	for key, r := range records {
		e.u64(uint64(key))
		e.record(r)
	}

	e.count(len(dimension))
	e.write([]byte(dimension))
	return e.err
}

// DecodeTable восстанавливает таблицу, записанную EncodeTable
func DecodeTable(data []byte) (*Table, error) {
	d := &decoder{data: data}

	n, err := d.u32("table size")
	if err != nil {
		return nil, err
	}
	if err := d.needCount(n, minTableEntrySize, "table"); err != nil {
		return nil, err
	}

	records := make(map[int64]*Record, n)
	for i := uint32(0); i < n; i++ {
		key, err := d.u64("chunk key")
		if err != nil {
			return nil, err
		}
		r, err := d.record()
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", UnpackChunkPos(int64(key)), err)
		}
		records[int64(key)] = r
	}

	dimension, err := d.string("dimension")
	if err != nil {
		return nil, err
	}

	return &Table{Dimension: dimension, Records: records}, nil
}
