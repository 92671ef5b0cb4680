package watermark_test

import (
	"bytes"
	"encoding/hex"
	"image"
	"math/rand"
	"testing"

	"github.com/ypk/contentguard/internal/watermark"
)

func makeTestImage(w, h int, seed int64) *image.NRGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := img.PixOffset(x, y)
			// mid-range values keep the U channel away from clamping
			img.Pix[i+0] = uint8(60 + rng.Intn(136))
			img.Pix[i+1] = uint8(60 + rng.Intn(136))
			img.Pix[i+2] = uint8(60 + rng.Intn(136))
			img.Pix[i+3] = 255
		}
	}
	return img
}

func payloadBits(t *testing.T, payloadHex string) []int {
	t.Helper()
	raw, err := hex.DecodeString(payloadHex)
	if err != nil {
		t.Fatalf("decode payload hex: %v", err)
	}
	bits := make([]int, 0, len(raw)*8)
	for _, b := range raw {
		for i := 7; i >= 0; i-- {
			bits = append(bits, int(b>>i)&1)
		}
	}
	return bits
}

func TestEmbedDetectRoundTrip(t *testing.T) {
	img := makeTestImage(256, 256, 42)
	payloadHex := watermark.PayloadHex("grant-1", "asset-1")

	stamped, err := watermark.EmbedNRGBA(img, payloadBits(t, payloadHex))
	if err != nil {
		t.Fatalf("EmbedNRGBA() error = %v", err)
	}

	got, err := watermark.DetectNRGBA(stamped, watermark.PayloadLength)
	if err != nil {
		t.Fatalf("DetectNRGBA() error = %v", err)
	}
	if got != payloadHex {
		t.Errorf("detected payload = %s, want %s", got, payloadHex)
	}
}

func TestEmbedDetectRoundTripNonSquare(t *testing.T) {
	img := makeTestImage(320, 192, 7)
	payloadHex := watermark.PayloadHex("grant-2", "asset-2")

	stamped, err := watermark.EmbedNRGBA(img, payloadBits(t, payloadHex))
	if err != nil {
		t.Fatalf("EmbedNRGBA() error = %v", err)
	}
	got, err := watermark.DetectNRGBA(stamped, watermark.PayloadLength)
	if err != nil {
		t.Fatalf("DetectNRGBA() error = %v", err)
	}
	if got != payloadHex {
		t.Errorf("detected payload = %s, want %s", got, payloadHex)
	}
}

func TestEmbedDeterministic(t *testing.T) {
	bits := payloadBits(t, watermark.PayloadHex("grant-1", "asset-1"))

	a, err := watermark.EmbedNRGBA(makeTestImage(128, 128, 99), bits)
	if err != nil {
		t.Fatalf("first embed: %v", err)
	}
	b, err := watermark.EmbedNRGBA(makeTestImage(128, 128, 99), bits)
	if err != nil {
		t.Fatalf("second embed: %v", err)
	}
	if !bytes.Equal(a.Pix, b.Pix) {
		t.Error("two embeds of identical input differ")
	}
}

func TestEmbedDoesNotModifyInput(t *testing.T) {
	img := makeTestImage(128, 128, 5)
	before := make([]uint8, len(img.Pix))
	copy(before, img.Pix)

	if _, err := watermark.EmbedNRGBA(img, payloadBits(t, watermark.PayloadHex("g", "a"))); err != nil {
		t.Fatalf("EmbedNRGBA() error = %v", err)
	}
	if !bytes.Equal(before, img.Pix) {
		t.Error("EmbedNRGBA modified its input image")
	}
}

func TestEmbedRejectsTinyImage(t *testing.T) {
	img := makeTestImage(6, 6, 1)
	if _, err := watermark.EmbedNRGBA(img, []int{1, 0, 1}); err == nil {
		t.Error("EmbedNRGBA accepted a 6x6 image")
	}
}

func TestEmbedRejectsPayloadLargerThanCapacity(t *testing.T) {
	// 16x16 trims to an 8x8 LL subband: exactly four 4x4 blocks.
	img := makeTestImage(16, 16, 1)
	bits := make([]int, 5)
	if _, err := watermark.EmbedNRGBA(img, bits); err == nil {
		t.Error("EmbedNRGBA accepted a payload exceeding block capacity")
	}
}

func TestDetectSurvivesSingleBlockDamage(t *testing.T) {
	img := makeTestImage(256, 256, 42)
	payloadHex := watermark.PayloadHex("grant-1", "asset-1")

	stamped, err := watermark.EmbedNRGBA(img, payloadBits(t, payloadHex))
	if err != nil {
		t.Fatalf("EmbedNRGBA() error = %v", err)
	}

	// Scribble over a small corner region. Detection votes across many
	// blocks per bit, so localized damage must not flip the result.
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			i := stamped.PixOffset(x, y)
			stamped.Pix[i+0] = 0
			stamped.Pix[i+1] = 0
			stamped.Pix[i+2] = 0
		}
	}

	got, err := watermark.DetectNRGBA(stamped, watermark.PayloadLength)
	if err != nil {
		t.Fatalf("DetectNRGBA() error = %v", err)
	}
	if got != payloadHex {
		t.Errorf("detected payload after damage = %s, want %s", got, payloadHex)
	}
}
