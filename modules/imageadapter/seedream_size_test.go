package imageadapter

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestCalculateSeedreamSize(t *testing.T) {
	tests := []struct {
		w, h int
		want string
	}{
		{1920, 1080, "2560x1440"},
		{1000, 1000, "2048x2048"},
		{1000, 1800, "1520x2432"},
		{100, 1, "3240x1144"},
		{0, 500, "2048x2048"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%dx%d", tt.w, tt.h), func(t *testing.T) {
			assert.Equal(t, tt.want, CalculateSeedreamSize(tt.w, tt.h))
		})
	}
}

func TestSeedreamDimensions_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		w := rapid.IntRange(1, 20000).Draw(t, "w")
		h := rapid.IntRange(1, 20000).Draw(t, "h")

		tw, th := SeedreamDimensions(w, h)
		if tw%8 != 0 || th%8 != 0 {
			t.Fatalf("%dx%d is not a multiple of 8", tw, th)
		}
		if tw > seedreamMaxWidth || th > seedreamMaxHeight {
			t.Fatalf("%dx%d exceeds max bounds", tw, th)
		}
		if tw*th < seedreamMinPixels {
			t.Fatalf("%dx%d is below the pixel floor", tw, th)
		}
	})
}
