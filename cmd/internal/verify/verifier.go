// Package verify implements arrival verification by image similarity.
//
// The check is probabilistic and assistive only: it compares a freshly
// captured image against a short-lived stored reference and reports a score
// in [0,1]. It is never an identity proof. References are overwritten on
// every store and can be deleted explicitly; nothing here persists.
package verify

import (
	"bytes"
	"fmt"
	"image"
	"sync"

	// Decoders for the formats arrival cameras upload.
	_ "image/jpeg"
	_ "image/png"
)

// DefaultThreshold is the similarity score at or above which an arrival is
// considered verified.
const DefaultThreshold = 0.75

// Result is a verification decision.
type Result struct {
	Verified bool
	Score    float64
}

// Verifier stores one reference image per subject and scores candidates
// against it.
type Verifier struct {
	threshold float64

	mu   sync.Mutex
	refs map[string]image.Image
}

// NewVerifier constructs a Verifier. Thresholds outside (0,1] fall back to
// DefaultThreshold.
func NewVerifier(threshold float64) *Verifier {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Verifier{
		threshold: threshold,
		refs:      make(map[string]image.Image),
	}
}

// StoreReference decodes and stores the reference image for a subject,
// overwriting any previous one.
func (v *Verifier) StoreReference(subjectID string, data []byte) error {
	if subjectID == "" {
		return fmt.Errorf("%w: empty subject id", ErrBadImage)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadImage, err)
	}

	v.mu.Lock()
	v.refs[subjectID] = img
	v.mu.Unlock()
	return nil
}

// DeleteReference removes the stored reference for a subject, if any.
// References are short-lived by design; callers should delete them promptly
// after verification.
func (v *Verifier) DeleteReference(subjectID string) {
	v.mu.Lock()
	delete(v.refs, subjectID)
	v.mu.Unlock()
}

// VerifyArrival scores a candidate image against the subject's reference.
// The candidate is normalized to the reference's dimensions before comparison;
// an identical image scores 1.0.
func (v *Verifier) VerifyArrival(subjectID string, data []byte) (Result, error) {
	v.mu.Lock()
	ref := v.refs[subjectID]
	v.mu.Unlock()

	if ref == nil {
		return Result{}, ErrNoReference
	}

	candidate, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrBadImage, err)
	}

	score := similarity(ref, candidate)
	return Result{Verified: score >= v.threshold, Score: score}, nil
}

// similarity computes 1 minus the mean absolute per-channel difference over
// the reference's pixel grid, sampling the candidate at the reference's
// dimensions (nearest neighbor). Result is in [0,1]; 1 means identical.
func similarity(ref, candidate image.Image) float64 {
	rb := ref.Bounds()
	cb := candidate.Bounds()

	w, h := rb.Dx(), rb.Dy()
	if w == 0 || h == 0 || cb.Dx() == 0 || cb.Dy() == 0 {
		return 0
	}

	var total, count float64
	for y := 0; y < h; y++ {
		cy := cb.Min.Y + y*cb.Dy()/h
		for x := 0; x < w; x++ {
			cx := cb.Min.X + x*cb.Dx()/w

			r1, g1, b1, _ := ref.At(rb.Min.X+x, rb.Min.Y+y).RGBA()
			r2, g2, b2, _ := candidate.At(cx, cy).RGBA()

			// RGBA returns 16-bit channels; scale diffs to [0,1].
			total += absDiff(r1, r2) + absDiff(g1, g2) + absDiff(b1, b2)
			count += 3
		}
	}

	score := 1 - total/(count*0xffff)
	if score < 0 {
		return 0
	}
	return score
}

func absDiff(a, b uint32) float64 {
	if a > b {
		return float64(a - b)
	}
	return float64(b - a)
}
