package preprocess

import (
	"image"
	"os"

	// Registered decoders for image.DecodeConfig.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/fulmenhq/folio/pkg/logger"
)

// ImageWidth returns the pixel width of the image at path. Unreadable or
// unknown images report 0.
func ImageWidth(path string) int {
	f, err := os.Open(path)
	if err != nil {
		logger.Debug("image not readable", logger.String("path", path), logger.Err(err))
		return 0
	}
	defer func() { _ = f.Close() }()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		logger.Debug("image dimensions unknown", logger.String("path", path), logger.Err(err))
		return 0
	}
	return cfg.Width
}
