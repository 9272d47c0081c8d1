package verify

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

// encodePNG renders a solid-color image of the given size.
func encodePNG(t *testing.T, w, h int, c color.RGBA) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func TestVerifyIdenticalImageScoresOne(t *testing.T) {
	t.Parallel()

	v := NewVerifier(DefaultThreshold)
	ref := encodePNG(t, 16, 16, color.RGBA{R: 200, G: 120, B: 40, A: 255})

	if err := v.StoreReference("child-1", ref); err != nil {
		t.Fatalf("StoreReference: %v", err)
	}

	res, err := v.VerifyArrival("child-1", ref)
	if err != nil {
		t.Fatalf("VerifyArrival: %v", err)
	}
	if !res.Verified {
		t.Fatalf("identical image must verify, score=%f", res.Score)
	}
	if res.Score < 0.999 {
		t.Fatalf("identical image must score ~1.0, got %f", res.Score)
	}
}

func TestVerifyOppositeImageFails(t *testing.T) {
	t.Parallel()

	v := NewVerifier(DefaultThreshold)
	white := encodePNG(t, 16, 16, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	black := encodePNG(t, 16, 16, color.RGBA{A: 255})

	if err := v.StoreReference("child-1", white); err != nil {
		t.Fatalf("StoreReference: %v", err)
	}

	res, err := v.VerifyArrival("child-1", black)
	if err != nil {
		t.Fatalf("VerifyArrival: %v", err)
	}
	if res.Verified {
		t.Fatalf("opposite image must not verify, score=%f", res.Score)
	}
	if res.Score > 0.05 {
		t.Fatalf("opposite image must score ~0, got %f", res.Score)
	}
}

func TestVerifyHandlesDimensionMismatch(t *testing.T) {
	t.Parallel()

	v := NewVerifier(DefaultThreshold)
	c := color.RGBA{R: 10, G: 200, B: 90, A: 255}

	if err := v.StoreReference("child-1", encodePNG(t, 16, 16, c)); err != nil {
		t.Fatalf("StoreReference: %v", err)
	}

	// Same content at a different resolution still matches.
	res, err := v.VerifyArrival("child-1", encodePNG(t, 64, 32, c))
	if err != nil {
		t.Fatalf("VerifyArrival: %v", err)
	}
	if !res.Verified {
		t.Fatalf("same content at different size must verify, score=%f", res.Score)
	}
}

func TestVerifyWithoutReference(t *testing.T) {
	t.Parallel()

	v := NewVerifier(DefaultThreshold)
	img := encodePNG(t, 8, 8, color.RGBA{A: 255})

	if _, err := v.VerifyArrival("nobody", img); !errors.Is(err, ErrNoReference) {
		t.Fatalf("expected ErrNoReference, got %v", err)
	}
}

func TestStoreReferenceRejectsGarbage(t *testing.T) {
	t.Parallel()

	v := NewVerifier(DefaultThreshold)

	if err := v.StoreReference("child-1", []byte("not an image")); !errors.Is(err, ErrBadImage) {
		t.Fatalf("expected ErrBadImage, got %v", err)
	}
	if err := v.StoreReference("", encodePNG(t, 8, 8, color.RGBA{A: 255})); !errors.Is(err, ErrBadImage) {
		t.Fatalf("empty subject: expected ErrBadImage, got %v", err)
	}
}

func TestVerifyRejectsGarbageCandidate(t *testing.T) {
	t.Parallel()

	v := NewVerifier(DefaultThreshold)
	if err := v.StoreReference("child-1", encodePNG(t, 8, 8, color.RGBA{A: 255})); err != nil {
		t.Fatalf("StoreReference: %v", err)
	}

	if _, err := v.VerifyArrival("child-1", []byte("JPEG?")); !errors.Is(err, ErrBadImage) {
		t.Fatalf("expected ErrBadImage, got %v", err)
	}
}

func TestDeleteReferenceRemovesSubject(t *testing.T) {
	t.Parallel()

	v := NewVerifier(DefaultThreshold)
	img := encodePNG(t, 8, 8, color.RGBA{R: 50, G: 50, B: 50, A: 255})

	if err := v.StoreReference("child-1", img); err != nil {
		t.Fatalf("StoreReference: %v", err)
	}
	v.DeleteReference("child-1")

	if _, err := v.VerifyArrival("child-1", img); !errors.Is(err, ErrNoReference) {
		t.Fatalf("expected ErrNoReference after delete, got %v", err)
	}
}

func TestStoreReferenceOverwrites(t *testing.T) {
	t.Parallel()

	v := NewVerifier(DefaultThreshold)
	white := encodePNG(t, 8, 8, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	black := encodePNG(t, 8, 8, color.RGBA{A: 255})

	if err := v.StoreReference("child-1", white); err != nil {
		t.Fatalf("StoreReference white: %v", err)
	}
	if err := v.StoreReference("child-1", black); err != nil {
		t.Fatalf("StoreReference black: %v", err)
	}

	res, err := v.VerifyArrival("child-1", black)
	if err != nil {
		t.Fatalf("VerifyArrival: %v", err)
	}
	if !res.Verified {
		t.Fatalf("candidate must match the newest reference, score=%f", res.Score)
	}
}
