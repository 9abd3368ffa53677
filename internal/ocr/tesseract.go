// Package ocr reads painted markings (runway numbers, hangar codes, roof
// lettering) inside detected regions using Tesseract.
package ocr

import (
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"gocv.io/x/gocv"
)

// MarkingChars is the character set expected in ground markings.
const MarkingChars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ-/"

// Engine provides OCR using Tesseract. The underlying client is not safe for
// concurrent use, so calls are serialised.
type Engine struct {
	mu          sync.Mutex
	client      *gosseract.Client
	markingMode bool
	minHeight   int
}

// NewEngine creates a new OCR engine.
func NewEngine() (*Engine, error) {
	client := gosseract.NewClient()

	if err := client.SetLanguage("eng"); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR language: %w", err)
	}

	// Markings are codes, not dictionary words
	_ = client.SetVariable("load_system_dawg", "false")
	_ = client.SetVariable("load_freq_dawg", "false")

	return &Engine{
		client:      client,
		markingMode: true,
		minHeight:   150,
	}, nil
}

// Close releases OCR resources.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client != nil {
		err := e.client.Close()
		e.client = nil
		return err
	}
	return nil
}

// SetMarkingMode restricts recognition to MarkingChars when enabled.
func (e *Engine) SetMarkingMode(enabled bool) {
	e.mu.Lock()
	e.markingMode = enabled
	e.mu.Unlock()
}

// RecognizeImage returns the text found in img, or "" when there is none.
func (e *Engine) RecognizeImage(img image.Image) (string, error) {
	if img == nil || img.Bounds().Empty() {
		return "", fmt.Errorf("empty image")
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return "", fmt.Errorf("failed to convert image: %w", err)
	}
	defer mat.Close()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return "", fmt.Errorf("OCR engine closed")
	}

	processed := preprocess(mat, e.markingMode, e.minHeight)
	defer processed.Close()

	buf, err := gocv.IMEncode(gocv.PNGFileExt, processed)
	if err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()

	// PSM 6 = Assume a single uniform block of text
	if err := e.client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		return "", fmt.Errorf("failed to set PSM: %w", err)
	}
	whitelist := ""
	if e.markingMode {
		whitelist = MarkingChars
	}
	// Some Tesseract versions reject an empty whitelist; that is harmless
	_ = e.client.SetWhitelist(whitelist)

	if err := e.client.SetImageFromBytes(buf.GetBytes()); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}
	text, err := e.client.Text()
	if err != nil {
		return "", fmt.Errorf("OCR failed: %w", err)
	}
	return CleanText(text, e.markingMode), nil
}

// CleanText collapses whitespace and, in marking mode, upper-cases the
// result and drops characters outside MarkingChars.
func CleanText(text string, markingMode bool) string {
	text = strings.Join(strings.Fields(text), " ")
	if !markingMode {
		return text
	}
	text = strings.ToUpper(text)
	return strings.Map(func(r rune) rune {
		if r == ' ' || strings.ContainsRune(MarkingChars, r) {
			return r
		}
		return -1
	}, text)
}

// preprocess upscales small crops and binarises them so the text is dark on
// a light background.
func preprocess(src gocv.Mat, markingMode bool, minHeight int) gocv.Mat {
	h, w := src.Rows(), src.Cols()

	var scaled gocv.Mat
	if minDim := min(h, w); minDim < minHeight {
		scale := float64(minHeight) / float64(minDim)
		scaled = gocv.NewMat()
		gocv.Resize(src, &scaled, image.Point{}, scale, scale, gocv.InterpolationCubic)
	} else {
		scaled = src.Clone()
	}

	if !markingMode {
		return scaled
	}

	gray := gocv.NewMat()
	gocv.CvtColor(scaled, &gray, gocv.ColorRGBToGray)
	scaled.Close()

	clahe := gocv.NewCLAHEWithParams(2.0, image.Point{X: 8, Y: 8})
	defer clahe.Close()
	enhanced := gocv.NewMat()
	clahe.Apply(gray, &enhanced)
	gray.Close()

	binary := gocv.NewMat()
	gocv.Threshold(enhanced, &binary, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)
	enhanced.Close()

	// Paint on tarmac is usually light on dark; Tesseract wants the reverse
	white := gocv.CountNonZero(binary)
	if float64(white)/float64(binary.Rows()*binary.Cols()) < 0.5 {
		gocv.BitwiseNot(binary, &binary)
	}

	result := gocv.NewMat()
	gocv.CvtColor(binary, &result, gocv.ColorGrayToBGR)
	binary.Close()
	return result
}
