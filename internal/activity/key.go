package activity

import "fmt"

// ChunkPos координаты чанка в сетке (X, Z)
type ChunkPos struct {
	X, Z int32
}

// Pack упаковывает координаты в одно 64-битное число: младшие 32 бита X, старшие Z
func (p ChunkPos) Pack() int64 {
	return int64(uint64(uint32(p.X)) | uint64(uint32(p.Z))<<32)
}

// UnpackChunkPos обратная операция к Pack
func UnpackChunkPos(packed int64) ChunkPos {
	return ChunkPos{
		X: int32(uint32(packed)),
		Z: int32(uint32(uint64(packed) >> 32)),
	}
}

// ChunkPosFromBlock возвращает чанк, содержащий блок с мировыми координатами (x, z)
func ChunkPosFromBlock(x, z int) ChunkPos {
	return ChunkPos{X: int32(x >> 4), Z: int32(z >> 4)} // Деление на 16
}

func (p ChunkPos) String() string {
	return fmt.Sprintf("[%d, %d]", p.X, p.Z)
}

// ChunkKey полный ключ записи: измерение + чанк
type ChunkKey struct {
	Dimension string
	Pos       ChunkPos
}

func (k ChunkKey) String() string {
	return fmt.Sprintf("%s%s", k.Dimension, k.Pos)
}
