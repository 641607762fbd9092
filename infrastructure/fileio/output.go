package fileio

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/ahrav/go-soilcast/internal/domain"
)

// CompressedSuffix marks forecast files written with zstd.
const CompressedSuffix = ".zst"

// WriteForecast writes f to path as indented JSON, zstd-compressed when path
// ends in CompressedSuffix. The file is written to a temporary sibling and
// renamed into place, so readers never observe a partial forecast.
func WriteForecast(path string, f *domain.Forecast) (err error) {
	if f == nil {
		return fmt.Errorf("%w: nil forecast", domain.ErrInvalidInput)
	}
	path = filepath.Clean(path)

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create forecast file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("failed to set forecast file mode: %w", err)
	}
	if err = EncodeForecast(tmp, f, isCompressed(path)); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close forecast file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move forecast into place: %w", err)
	}
	return nil
}

// EncodeForecast writes f to w as indented JSON, optionally zstd-compressed.
func EncodeForecast(w io.Writer, f *domain.Forecast, compress bool) error {
	if !compress {
		return encodeJSON(w, f)
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	if err := encodeJSON(enc, f); err != nil {
		_ = enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to flush zstd stream: %w", err)
	}
	return nil
}

// ReadForecast reads a forecast written by WriteForecast.
func ReadForecast(path string) (*domain.Forecast, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open forecast: %w", err)
	}
	defer file.Close()

	var r io.Reader = file
	if isCompressed(path) {
		dec, err := zstd.NewReader(file, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		defer dec.Close()
		r = dec
	}

	var f domain.Forecast
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode forecast %s: %w", path, err)
	}
	return &f, nil
}

func encodeJSON(w io.Writer, f *domain.Forecast) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("failed to encode forecast: %w", err)
	}
	return nil
}

func isCompressed(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), CompressedSuffix)
}
