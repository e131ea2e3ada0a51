package raster

import (
	"errors"
	"fmt"
	"sync"

	"pdf-ocr-batch/internal/domain"
)

// ErrResolutionLocked is returned when the DPI is changed during a run.
var ErrResolutionLocked = errors.New("rasterizer resolution is locked for the active run")

// The rasterizer resolution is process-wide. It is set once before any job
// starts and locked until the run ends; per-document DPI would need it to
// become a parameter of Open instead.
var resolution = struct {
	mu     sync.Mutex
	dpi    int
	locked bool
}{dpi: domain.DefaultDPI}

// SetResolution changes the process-wide rasterization DPI.
func SetResolution(dpi int) error {
	if dpi < domain.MinDPI || dpi > domain.MaxDPI {
		return fmt.Errorf("dpi %d outside [%d, %d]", dpi, domain.MinDPI, domain.MaxDPI)
	}
	resolution.mu.Lock()
	defer resolution.mu.Unlock()
	if resolution.locked {
		return ErrResolutionLocked
	}
	resolution.dpi = dpi
	return nil
}

// Resolution returns the current process-wide DPI.
func Resolution() int {
	resolution.mu.Lock()
	defer resolution.mu.Unlock()
	return resolution.dpi
}

// LockResolution freezes the DPI and returns the function that releases it.
func LockResolution() (unlock func()) {
	resolution.mu.Lock()
	resolution.locked = true
	resolution.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			resolution.mu.Lock()
			resolution.locked = false
			resolution.mu.Unlock()
		})
	}
}
