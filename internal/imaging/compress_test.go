package imaging

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressFitsLongestEdge(t *testing.T) {
	src := encodePNG(t, noisyImage(2400, 1200))

	res, err := Compress(bytes.NewReader(src), Options{MaxEdge: 1000, TargetBytes: 200_000})
	require.NoError(t, err)

	assert.Equal(t, 1000, res.Width)
	assert.Equal(t, 500, res.Height)
	assert.Equal(t, "png", res.SourceFormat)

	decoded, err := jpeg.Decode(bytes.NewReader(res.Data))
	require.NoError(t, err)
	assert.Equal(t, 1000, decoded.Bounds().Dx())
}

func TestCompressPortraitOrientation(t *testing.T) {
	src := encodePNG(t, noisyImage(300, 1500))

	res, err := Compress(bytes.NewReader(src), Options{MaxEdge: 1000})
	require.NoError(t, err)
	assert.Equal(t, 200, res.Width)
	assert.Equal(t, 1000, res.Height)
}

func TestCompressKeepsSmallImageDimensions(t *testing.T) {
	src := encodePNG(t, noisyImage(320, 240))

	res, err := Compress(bytes.NewReader(src), Options{MaxEdge: 1000, TargetBytes: 200_000})
	require.NoError(t, err)
	assert.Equal(t, 320, res.Width)
	assert.Equal(t, 240, res.Height)
}

func TestCompressLowersQualityTowardTarget(t *testing.T) {
	src := encodePNG(t, noisyImage(800, 800))

	loose, err := Compress(bytes.NewReader(src), Options{MaxEdge: 1000})
	require.NoError(t, err)
	tight, err := Compress(bytes.NewReader(src), Options{MaxEdge: 1000, TargetBytes: loose.Size() / 2})
	require.NoError(t, err)

	assert.Equal(t, maxQuality, loose.Quality)
	assert.Less(t, tight.Quality, loose.Quality)
	assert.Less(t, tight.Size(), loose.Size())
}

func TestCompressRejectsNonImage(t *testing.T) {
	_, err := Compress(bytes.NewReader([]byte("definitely not an image")), Options{MaxEdge: 1000})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestCompressRejectsTruncatedImage(t *testing.T) {
	src := encodePNG(t, noisyImage(200, 200))

	_, err := Compress(bytes.NewReader(src[:len(src)/2]), Options{MaxEdge: 1000})
	assert.ErrorIs(t, err, ErrCorruptImage)
}

func TestPoolHonoursCancelledContext(t *testing.T) {
	pool := NewPool(1, Options{MaxEdge: 1000})
	pool.slots <- struct{}{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pool.Compress(ctx, bytes.NewReader(nil))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPoolCompresses(t *testing.T) {
	pool := NewPool(2, Options{MaxEdge: 100})
	src := encodePNG(t, noisyImage(400, 200))

	res, err := pool.Compress(context.Background(), bytes.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, 100, res.Width)
	assert.Equal(t, 50, res.Height)
}

func TestPoolDoesNotReadSourceAfterReturning(t *testing.T) {
	pool := NewPool(1, Options{MaxEdge: 100})
	release := make(chan struct{})
	encoded := make(chan []byte, 1)
	pool.encode = func(r io.Reader, _ Options) (Result, error) {
		<-release
		data, err := io.ReadAll(r)
		encoded <- data
		return Result{Data: data}, err
	}

	src := &closingReader{r: bytes.NewReader([]byte("raw photo bytes"))}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := pool.Compress(ctx, src)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NoError(t, src.Close())

	close(release)
	assert.Equal(t, "raw photo bytes", string(<-encoded))
	assert.Zero(t, src.readsAfterClose.Load())
}

type closingReader struct {
	r               io.Reader
	closed          atomic.Bool
	readsAfterClose atomic.Int32
}

func (c *closingReader) Read(p []byte) (int, error) {
	if c.closed.Load() {
		c.readsAfterClose.Add(1)
		return 0, errors.New("read after close")
	}
	return c.r.Read(p)
}

func (c *closingReader) Close() error {
	c.closed.Store(true)
	return nil
}

func noisyImage(w, h int) image.Image {
	rng := rand.New(rand.NewSource(int64(w*h + 7)))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(rng.Intn(256)), uint8(x), uint8(y), 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
