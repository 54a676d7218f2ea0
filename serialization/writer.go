package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"math"
	"os"
	"sort"
	"time"

	"github.com/cortex-ml/cortex/tensor"
)

// Writer writes state dictionaries in .cortex format.
type Writer struct {
	file   *os.File
	closed bool
}

// NewWriter creates a .cortex file writer, truncating any existing file.
func NewWriter(path string) (*Writer, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	return &Writer{file: file}, nil
}

// WriteStateDict writes a state dictionary to the file.
//
// Tensors are written in sorted name order so identical state produces
// byte-identical files.
func (w *Writer) WriteStateDict(stateDict map[string]*tensor.RawTensor, modelType string, metadata map[string]string) error {
	if w.closed {
		return fmt.Errorf("writer is closed")
	}
	if metadata == nil {
		metadata = make(map[string]string)
	}

	names := make([]string, 0, len(stateDict))
	for name := range stateDict {
		names = append(names, name)
	}
	sort.Strings(names)

	header := Header{
		FormatVersion: FormatVersion,
		ModelType:     modelType,
		CreatedAt:     time.Now().UTC(),
		Tensors:       make([]TensorMeta, 0, len(stateDict)),
		Metadata:      metadata,
	}

	var currentOffset int64
	payloads := make([][]byte, 0, len(stateDict))
	for _, name := range names {
		raw := stateDict[name]
		data := encodeFloat32(raw.Data())
		header.Tensors = append(header.Tensors, TensorMeta{
			Name:     name,
			Shape:    []int(raw.Shape()),
			Offset:   currentOffset,
			Size:     int64(len(data)),
			Checksum: crc32.ChecksumIEEE(data),
		})
		payloads = append(payloads, data)
		currentOffset += int64(len(data))
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	if _, err := w.file.WriteString(MagicBytes); err != nil {
		return fmt.Errorf("failed to write magic bytes: %w", err)
	}
	if err := binary.Write(w.file, binary.LittleEndian, uint32(FormatVersion)); err != nil {
		return fmt.Errorf("failed to write version: %w", err)
	}
	if err := binary.Write(w.file, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := w.file.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	// Pad so the payload starts on an aligned boundary.
	currentPos := int64(4+4+8) + int64(len(headerJSON))
	padding := (HeaderAlignment - (currentPos % HeaderAlignment)) % HeaderAlignment
	if padding > 0 {
		if _, err := w.file.Write(make([]byte, padding)); err != nil {
			return fmt.Errorf("failed to write padding: %w", err)
		}
	}

	for i, data := range payloads {
		if _, err := w.file.Write(data); err != nil {
			return fmt.Errorf("failed to write tensor %s: %w", names[i], err)
		}
	}

	return nil
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}

// SaveStateDict writes a state dictionary to path in one call.
func SaveStateDict(path string, stateDict map[string]*tensor.RawTensor, modelType string, metadata map[string]string) (err error) {
	writer, err := NewWriter(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := writer.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return writer.WriteStateDict(stateDict, modelType, metadata)
}

// encodeFloat32 converts float32 values to little-endian bytes.
func encodeFloat32(values []float32) []byte {
	data := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}
	return data
}
