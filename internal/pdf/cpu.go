package pdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/loandoc/pipeline/internal/geometry"
)

// CPUEngine implements Engine with pdfcpu for page surgery and mupdf
// (go-fitz) for rasterization.
type CPUEngine struct {
	dpi int
}

// NewCPUEngine returns an engine that rasterizes redacted pages at the
// given DPI.
func NewCPUEngine(dpi int) *CPUEngine {
	if dpi <= 0 {
		dpi = 150
	}
	return &CPUEngine{dpi: dpi}
}

func relaxedConf() *model.Configuration {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return cfg
}

// withTemp writes doc to a scratch file and hands control to fn, which
// returns the path of the produced output file.
func withTemp(doc []byte, fn func(dir, in string) (string, error)) ([]byte, error) {
	tempDir, err := os.MkdirTemp("", "docmanip-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	in := filepath.Join(tempDir, "source.pdf")
	if err := os.WriteFile(in, doc, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write temp source: %w", err)
	}

	out, err := fn(tempDir, in)
	if err != nil {
		return nil, err
	}
	result, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("failed to read result file: %w", err)
	}
	return result, nil
}

func (e *CPUEngine) PageCount(ctx context.Context, doc []byte) (int, error) {
	var count int
	_, err := withTemp(doc, func(dir, in string) (string, error) {
		n, err := api.PageCountFile(in)
		if err != nil {
			return "", fmt.Errorf("failed to get page count: %w", err)
		}
		count = n
		return in, nil
	})
	return count, err
}

func (e *CPUEngine) PageSizes(ctx context.Context, doc []byte) ([]geometry.Size, error) {
	var sizes []geometry.Size
	_, err := withTemp(doc, func(dir, in string) (string, error) {
		dims, err := api.PageDimsFile(in)
		if err != nil {
			return "", fmt.Errorf("failed to get page dimensions: %w", err)
		}
		sizes = make([]geometry.Size, len(dims))
		for i, d := range dims {
			sizes[i] = geometry.Size{Width: d.Width, Height: d.Height}
		}
		return in, nil
	})
	return sizes, err
}

func (e *CPUEngine) Rotate(ctx context.Context, doc []byte, angles map[int]int) ([]byte, error) {
	if len(angles) == 0 {
		return doc, nil
	}
	return withTemp(doc, func(dir, in string) (string, error) {
		// Group pages by angle; pdfcpu applies one rotation per call.
		byAngle := map[int][]string{}
		for page, angle := range angles {
			byAngle[angle] = append(byAngle[angle], fmt.Sprintf("%d", page+1))
		}
		angleOrder := make([]int, 0, len(byAngle))
		for a := range byAngle {
			angleOrder = append(angleOrder, a)
		}
		sort.Ints(angleOrder)

		cur := in
		for i, angle := range angleOrder {
			pages := byAngle[angle]
			sort.Strings(pages)
			out := filepath.Join(dir, fmt.Sprintf("rotated_%d.pdf", i))
			if err := api.RotateFile(cur, out, angle, pages, relaxedConf()); err != nil {
				return "", fmt.Errorf("failed to rotate pages %v by %d: %w", pages, angle, err)
			}
			cur = out
		}
		return cur, nil
	})
}

func (e *CPUEngine) RemovePages(ctx context.Context, doc []byte, pages []int) ([]byte, error) {
	if len(pages) == 0 {
		return doc, nil
	}
	return withTemp(doc, func(dir, in string) (string, error) {
		selected := make([]string, len(pages))
		for i, p := range pages {
			selected[i] = fmt.Sprintf("%d", p+1)
		}
		out := filepath.Join(dir, "removed.pdf")
		if err := api.RemovePagesFile(in, out, selected, relaxedConf()); err != nil {
			return "", fmt.Errorf("failed to remove pages %v: %w", pages, err)
		}
		return out, nil
	})
}

func (e *CPUEngine) ExtractRange(ctx context.Context, doc []byte, start, end int) ([]byte, error) {
	if start < 0 || end <= start {
		return nil, fmt.Errorf("invalid page range [%d, %d)", start, end)
	}
	return withTemp(doc, func(dir, in string) (string, error) {
		out := filepath.Join(dir, "range.pdf")
		selected := []string{fmt.Sprintf("%d-%d", start+1, end)}
		if err := api.TrimFile(in, out, selected, relaxedConf()); err != nil {
			return "", fmt.Errorf("failed to extract pages [%d, %d): %w", start, end, err)
		}
		return out, nil
	})
}

// Redact rebuilds the document page by page: untouched runs are trimmed out
// of the original, affected pages are replaced by their painted raster, and
// the segments are merged back in order. The original content of an
// affected page never reaches the output file.
func (e *CPUEngine) Redact(ctx context.Context, doc []byte, boxes map[int][]Box) ([]byte, error) {
	if len(boxes) == 0 {
		return doc, nil
	}
	pageCount, err := e.PageCount(ctx, doc)
	if err != nil {
		return nil, err
	}
	for p := range boxes {
		if p < 0 || p >= pageCount {
			return nil, fmt.Errorf("redaction page %d out of range [0, %d)", p, pageCount)
		}
	}

	return withTemp(doc, func(dir, in string) (string, error) {
		rasters, err := rasterizePages(doc, boxes, e.dpi, dir)
		if err != nil {
			return "", err
		}

		var segments []string
		runStart := -1
		flushRun := func(end int) error {
			if runStart < 0 {
				return nil
			}
			seg := filepath.Join(dir, fmt.Sprintf("seg_%d_%d.pdf", runStart, end))
			sel := []string{fmt.Sprintf("%d-%d", runStart+1, end)}
			if err := api.TrimFile(in, seg, sel, relaxedConf()); err != nil {
				return fmt.Errorf("failed to carry over pages [%d, %d): %w", runStart, end, err)
			}
			segments = append(segments, seg)
			runStart = -1
			return nil
		}

		for p := 0; p < pageCount; p++ {
			raster, affected := rasters[p]
			if !affected {
				if runStart < 0 {
					runStart = p
				}
				continue
			}
			if err := flushRun(p); err != nil {
				return "", err
			}
			pagePDF := filepath.Join(dir, fmt.Sprintf("raster_%d.pdf", p))
			imp, err := api.Import(fmt.Sprintf("dpi:%d", e.dpi), types.POINTS)
			if err != nil {
				return "", fmt.Errorf("failed to build import config: %w", err)
			}
			if err := api.ImportImagesFile([]string{raster}, pagePDF, imp, relaxedConf()); err != nil {
				return "", fmt.Errorf("failed to import raster for page %d: %w", p, err)
			}
			segments = append(segments, pagePDF)
		}
		if err := flushRun(pageCount); err != nil {
			return "", err
		}

		merged := filepath.Join(dir, "merged.pdf")
		if len(segments) == 1 {
			merged = segments[0]
		} else if err := api.MergeCreateFile(segments, merged, false, relaxedConf()); err != nil {
			return "", fmt.Errorf("failed to merge redacted segments: %w", err)
		}

		out := filepath.Join(dir, "redacted.pdf")
		if err := api.OptimizeFile(merged, out, relaxedConf()); err != nil {
			return "", fmt.Errorf("failed to optimize redacted document: %w", err)
		}
		return out, nil
	})
}

var _ Engine = (*CPUEngine)(nil)
