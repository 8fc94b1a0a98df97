package thumbnail

import (
	"archive/zip"
	"context"
	"fmt"
	"image"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/dmitrijs2005/invkeeper/internal/common"
)

// Limits on a packaged image before it is decoded. Asset files are
// untrusted and a header may claim any dimensions.
var (
	maxEntryBytes uint64 = 64 << 20
	maxPixels            = 64 << 20
)

// EmbeddedDeriver renders a preview from the textures packaged inside a USDZ
// archive. Entries whose name mentions a thumbnail or preview win; otherwise
// the largest image in the package is used.
type EmbeddedDeriver struct{}

func (EmbeddedDeriver) Derive(ctx context.Context, assetPath string, size int) (image.Image, error) {
	zr, err := zip.OpenReader(assetPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrUnsupportedAsset, err)
	}
	defer zr.Close()

	candidates := imageEntries(zr.File)
	if len(candidates) == 0 {
		return nil, common.ErrNoPreview
	}

	for _, f := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := decodeEntry(f)
		if err != nil {
			continue
		}
		return Fit(img, size), nil
	}
	return nil, fmt.Errorf("%w: no decodable image in package", common.ErrNoPreview)
}

func imageEntries(files []*zip.File) []*zip.File {
	var out []*zip.File
	for _, f := range files {
		if f.FileInfo().IsDir() {
			continue
		}
		switch strings.ToLower(path.Ext(f.Name)) {
		case ".png", ".jpg", ".jpeg":
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := isPreviewName(out[i].Name), isPreviewName(out[j].Name)
		if pi != pj {
			return pi
		}
		return out[i].UncompressedSize64 > out[j].UncompressedSize64
	})
	return out
}

func isPreviewName(name string) bool {
	base := strings.ToLower(path.Base(name))
	return strings.Contains(base, "thumb") || strings.Contains(base, "preview")
}

func decodeEntry(f *zip.File) (image.Image, error) {
	if f.UncompressedSize64 > maxEntryBytes {
		return nil, fmt.Errorf("%s: %d bytes exceeds limit", f.Name, f.UncompressedSize64)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	cfg, _, err := image.DecodeConfig(rc)
	rc.Close()
	if err != nil {
		return nil, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > maxPixels/cfg.Height {
		return nil, fmt.Errorf("%s: %dx%d exceeds pixel limit", f.Name, cfg.Width, cfg.Height)
	}

	rc, err = f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return imaging.Decode(io.LimitReader(rc, int64(maxEntryBytes)), imaging.AutoOrientation(true))
}
