package terrain

import (
	"fmt"
	"math/bits"

	"github.com/Tnze/go-mc/level"
)

const (
	// ChunkArea число колонок в чанке 16x16
	ChunkArea = 16 * 16

	// MinY и WorldHeight границы мира по вертикали
	MinY        = -64
	WorldHeight = 384
)

// HeightBits разрядность одной высоты: 0..WorldHeight включительно
var HeightBits = bits.Len(uint(WorldHeight))

// PackedLen число 64-битных слов в упакованной карте высот
func PackedLen() int {
	perWord := 64 / HeightBits
	return (ChunkArea + perWord - 1) / perWord
}

// PackHeights упаковывает 256 абсолютных высот (индекс x + z*16) в слова BitStorage
func PackHeights(heights []int) ([]int64, error) {
	if len(heights) != ChunkArea {
		return nil, fmt.Errorf("ожидалось %d высот, получено %d", ChunkArea, len(heights))
	}

	storage := level.NewBitStorage(HeightBits, ChunkArea, nil)
	for i, h := range heights {
		rel := h - MinY
		if rel < 0 || rel > WorldHeight {
			return nil, fmt.Errorf("высота %d вне диапазона [%d, %d]", h, MinY, MinY+WorldHeight)
		}
		storage.Set(i, rel)
	}

	raw := storage.Raw()
	words := make([]int64, len(raw))
	for i, w := range raw {
		words[i] = int64(w)
	}
	return words, nil
}

// UnpackHeights обратная операция к PackHeights
func UnpackHeights(words []int64) ([]int, error) {
	if len(words) != PackedLen() {
		return nil, fmt.Errorf("ожидалось %d слов, получено %d", PackedLen(), len(words))
	}

	raw := make([]uint64, len(words))
	for i, w := range words {
		raw[i] = uint64(w)
	}

	storage := level.NewBitStorage(HeightBits, ChunkArea, raw)
	heights := make([]int, ChunkArea)
	for i := range heights {
		heights[i] = storage.Get(i) + MinY
	}
	return heights, nil
}
