package terrain

import (
	"math"

	"github.com/aquilax/go-perlin"

	"github.com/annel0/chunk-activity-tracker/internal/activity"
)

// NoiseProvider генерирует поверхность мира шумом Перлина.
// Используется, когда сервис работает без доступа к настоящим чанкам.
type NoiseProvider struct {
	noise *perlin.Perlin

	seaLevel  float64
	amplitude float64
	scale     float64
}

// NewNoiseProvider создаёт генератор с указанным сидом
func NewNoiseProvider(seed int64) *NoiseProvider {
	alpha := 2.0  // Сглаживание шума
	beta := 2.0   // Частота шума
	n := int32(3) // Количество октав

	return &NoiseProvider{
		noise:     perlin.NewPerlin(alpha, beta, n, seed),
		seaLevel:  63,
		amplitude: 48,
		scale:     1.0 / 96,
	}
}

// SurfaceHeight высота поверхности в колонке блоков (x, z)
func (np *NoiseProvider) SurfaceHeight(x, z int) int {
	// Шум от -1 до 1
	v := np.noise.Noise2D(float64(x)*np.scale, float64(z)*np.scale)
	h := int(math.Round(np.seaLevel + v*np.amplitude))

	if h < MinY {
		return MinY
	}
	if h > MinY+WorldHeight {
		return MinY + WorldHeight
	}
	return h
}

// Heightmap реализует activity.HeightmapProvider
func (np *NoiseProvider) Heightmap(dimension string, pos activity.ChunkPos) ([]int64, bool) {
	baseX, baseZ := int(pos.X)*16, int(pos.Z)*16

	heights := make([]int, ChunkArea)
	for z := 0; z < 16; z++ {
		for x := 0; x < 16; x++ {
			heights[x+z*16] = np.SurfaceHeight(baseX+x, baseZ+z)
		}
	}

	words, err := PackHeights(heights)
	if err != nil {
		return nil, false
	}
	return words, true
}
