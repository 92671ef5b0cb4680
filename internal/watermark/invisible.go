package watermark

// Invisible watermarking uses the DWT-DCT-SVD scheme: a single-level Haar
// DWT of the image's U channel, then for each 4x4 block of the LL subband
// a 2D DCT followed by an SVD, quantizing the largest singular value to
// carry one payload bit. Payload bits cycle across all blocks, so
// detection averages many votes per bit. The parameters match the widely
// deployed imwatermark dwtDctSvd mode (scale 36 on the U channel), which
// keeps stamped copies traceable with off-the-shelf tooling.

import (
	"context"
	"encoding/hex"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/ypk/contentguard/internal/watermark/dct"
	"github.com/ypk/contentguard/internal/watermark/dwt"
)

const (
	// embedScale is the quantization step for the largest singular value.
	embedScale = 36.0
	// blockSize is the SVD block edge in the LL subband.
	blockSize = 4
)

// EmbedImageFile stamps the invisible trace payload into an image file.
// Deterministic: identical inputs produce byte-identical output.
func EmbedImageFile(ctx context.Context, inputPath, outputPath, payloadHex string, jpegQuality int) error {
	bits, err := hexToBits(payloadHex)
	if err != nil {
		return fmt.Errorf("invisible embed: invalid payload hex: %w", err)
	}

	img, err := loadNRGBA(inputPath)
	if err != nil {
		return fmt.Errorf("invisible embed: load image: %w", err)
	}

	stamped, err := EmbedNRGBA(img, bits)
	if err != nil {
		return fmt.Errorf("invisible embed: %w", err)
	}

	return saveImage(stamped, outputPath, jpegQuality)
}

// EmbedNRGBA embeds the payload bits into a decoded image and returns a
// new image. The input is not modified.
func EmbedNRGBA(img *image.NRGBA, bits []int) (*image.NRGBA, error) {
	bounds := img.Bounds()
	fullH := bounds.Dy()
	fullW := bounds.Dx()

	// Trim working area to dimensions divisible by 4 so the LL subband
	// tiles cleanly into 4x4 blocks.
	h := (fullH / 4) * 4
	w := (fullW / 4) * 4
	if h < 8 || w < 8 {
		return nil, fmt.Errorf("image too small (%dx%d), need at least 8x8", fullH, fullW)
	}
	numBlocks := (h / 2 / blockSize) * (w / 2 / blockSize)
	if numBlocks < len(bits) {
		return nil, fmt.Errorf("image too small: %d blocks for %d bits", numBlocks, len(bits))
	}

	yPlane, uPlane, vPlane := extractYUV(img, h, w)
	modifiedU := embedPlane(uPlane, bits)

	out := image.NewNRGBA(bounds)
	draw.Draw(out, bounds, img, bounds.Min, draw.Src)
	putYUV(out, yPlane, modifiedU, vPlane, h, w)
	return out, nil
}

// DetectImageFile extracts an embedded payload from an image file and
// returns it hex-encoded. payloadBytes is the expected payload length.
func DetectImageFile(ctx context.Context, inputPath string, payloadBytes int) (string, error) {
	img, err := loadNRGBA(inputPath)
	if err != nil {
		return "", fmt.Errorf("invisible detect: load image: %w", err)
	}
	return DetectNRGBA(img, payloadBytes)
}

// DetectNRGBA extracts an embedded payload from a decoded image.
func DetectNRGBA(img *image.NRGBA, payloadBytes int) (string, error) {
	wmLen := payloadBytes * 8

	bounds := img.Bounds()
	h := (bounds.Dy() / 4) * 4
	w := (bounds.Dx() / 4) * 4
	if h < 8 || w < 8 {
		return "", fmt.Errorf("invisible detect: image too small")
	}

	_, uPlane, _ := extractYUV(img, h, w)
	bits := detectPlane(uPlane, wmLen)
	return hex.EncodeToString(bitsToBytes(bits)), nil
}

// embedPlane runs the DWT, embeds bits into each 4x4 LL block, and
// inverts the DWT. Bits cycle when there are more blocks than bits.
func embedPlane(plane [][]float64, bits []int) [][]float64 {
	ll, lh, hl, hh := dwt.Forward2D(plane)

	llH := len(ll)
	llW := len(ll[0])
	num := 0
	for i := 0; i < llH/blockSize; i++ {
		for j := 0; j < llW/blockSize; j++ {
			block := extractBlock(ll, i*blockSize, j*blockSize)
			embedded := embedBlock(block, bits[num%len(bits)])
			putBlock(ll, embedded, i*blockSize, j*blockSize)
			num++
		}
	}

	return dwt.Inverse2D(ll, lh, hl, hh)
}

// detectPlane accumulates per-bit votes across all blocks and thresholds
// the averages.
func detectPlane(plane [][]float64, wmLen int) []int {
	ll, _, _, _ := dwt.Forward2D(plane)

	llH := len(ll)
	llW := len(ll[0])
	sums := make([]float64, wmLen)
	counts := make([]int, wmLen)

	num := 0
	for i := 0; i < llH/blockSize; i++ {
		for j := 0; j < llW/blockSize; j++ {
			block := extractBlock(ll, i*blockSize, j*blockSize)
			k := num % wmLen
			sums[k] += inferBlock(block)
			counts[k]++
			num++
		}
	}

	bits := make([]int, wmLen)
	for k := 0; k < wmLen; k++ {
		if counts[k] == 0 {
			continue
		}
		if (sums[k]/float64(counts[k]))*255 > 127 {
			bits[k] = 1
		}
	}
	return bits
}

// embedBlock quantizes the block's largest singular value in the DCT
// domain to carry one bit: s0 = (floor(s0/scale) + 0.25 + 0.5*bit) * scale.
func embedBlock(block [][]float64, bit int) [][]float64 {
	n := blockSize
	dctBlock := dct.Forward2D(block)

	data := make([]float64, n*n)
	for i, row := range dctBlock {
		copy(data[i*n:], row)
	}
	m := mat.NewDense(n, n, data)

	var svd mat.SVD
	svd.Factorize(m, mat.SVDThin)
	s := svd.Values(nil)
	s[0] = (math.Floor(s[0]/embedScale) + 0.25 + 0.5*float64(bit)) * embedScale

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var tmp, result mat.Dense
	tmp.Mul(&u, mat.NewDiagDense(n, s))
	result.Mul(&tmp, v.T())

	modified := make([][]float64, n)
	for i := range modified {
		modified[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			modified[i][j] = result.At(i, j)
		}
	}
	return dct.Inverse2D(modified)
}

// inferBlock reads one bit vote from a block: 1 when the largest singular
// value sits in the upper half of its quantization step.
func inferBlock(block [][]float64) float64 {
	n := blockSize
	dctBlock := dct.Forward2D(block)

	data := make([]float64, n*n)
	for i, row := range dctBlock {
		copy(data[i*n:], row)
	}
	m := mat.NewDense(n, n, data)

	var svd mat.SVD
	svd.Factorize(m, mat.SVDThin)
	s := svd.Values(nil)

	mod := math.Mod(s[0], embedScale)
	if mod < 0 {
		mod += embedScale
	}
	if mod > embedScale*0.5 {
		return 1.0
	}
	return 0.0
}

func extractBlock(plane [][]float64, row, col int) [][]float64 {
	block := make([][]float64, blockSize)
	for i := 0; i < blockSize; i++ {
		block[i] = make([]float64, blockSize)
		copy(block[i], plane[row+i][col:col+blockSize])
	}
	return block
}

func putBlock(plane, block [][]float64, row, col int) {
	for i := 0; i < blockSize; i++ {
		copy(plane[row+i][col:col+blockSize], block[i])
	}
}

// extractYUV converts the first h rows and w columns to float64 YUV
// planes, using the OpenCV BGR2YUV coefficients applied to RGB.
func extractYUV(img *image.NRGBA, h, w int) (yPlane, uPlane, vPlane [][]float64) {
	minX := img.Rect.Min.X
	minY := img.Rect.Min.Y
	yPlane = make([][]float64, h)
	uPlane = make([][]float64, h)
	vPlane = make([][]float64, h)
	for y := 0; y < h; y++ {
		yPlane[y] = make([]float64, w)
		uPlane[y] = make([]float64, w)
		vPlane[y] = make([]float64, w)
		for x := 0; x < w; x++ {
			off := img.PixOffset(minX+x, minY+y)
			r := float64(img.Pix[off])
			g := float64(img.Pix[off+1])
			b := float64(img.Pix[off+2])

			yPlane[y][x] = 0.299*r + 0.587*g + 0.114*b
			uPlane[y][x] = -0.14713*r - 0.28886*g + 0.436*b + 128.0
			vPlane[y][x] = 0.615*r - 0.51499*g - 0.10001*b + 128.0
		}
	}
	return
}

// putYUV writes modified YUV planes back; pixels outside the trimmed
// region keep their copied values. Alpha is untouched.
func putYUV(img *image.NRGBA, yPlane, uPlane, vPlane [][]float64, h, w int) {
	minX := img.Rect.Min.X
	minY := img.Rect.Min.Y
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			yv := yPlane[y][x]
			uv := uPlane[y][x]
			vv := vPlane[y][x]

			r := yv + 1.13983*(vv-128.0)
			g := yv - 0.39465*(uv-128.0) - 0.58060*(vv-128.0)
			b := yv + 2.03211*(uv-128.0)

			off := img.PixOffset(minX+x, minY+y)
			img.Pix[off] = clampU8(r)
			img.Pix[off+1] = clampU8(g)
			img.Pix[off+2] = clampU8(b)
		}
	}
}

func clampU8(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(math.Round(v))
}

func loadNRGBA(path string) (*image.NRGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ext := strings.ToLower(filepath.Ext(path))
	var decoded image.Image
	switch ext {
	case ".jpg", ".jpeg":
		decoded, err = jpeg.Decode(f)
	case ".png":
		decoded, err = png.Decode(f)
	default:
		decoded, _, err = image.Decode(f)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	bounds := decoded.Bounds()
	nrgba := image.NewNRGBA(bounds)
	draw.Draw(nrgba, bounds, decoded, bounds.Min, draw.Src)
	return nrgba, nil
}

func saveImage(img *image.NRGBA, outputPath string, jpegQuality int) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(outputPath)) {
	case ".png":
		return png.Encode(f, img)
	default:
		return jpeg.Encode(f, img, &jpeg.Options{Quality: jpegQuality})
	}
}

// hexToBits expands a hex string to a bit slice, MSB first in each byte.
func hexToBits(hexStr string) ([]int, error) {
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return nil, err
	}
	bits := make([]int, len(b)*8)
	for i, byt := range b {
		for bit := 0; bit < 8; bit++ {
			if byt&(1<<uint(7-bit)) != 0 {
				bits[i*8+bit] = 1
			}
		}
	}
	return bits, nil
}

// bitsToBytes packs a bit slice (MSB first) into bytes.
func bitsToBytes(bits []int) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, b := range bits {
		if b != 0 {
			out[i/8] |= 1 << uint(7-(i%8))
		}
	}
	return out
}
