// Package serialization implements the .cortex model file format.
//
// A .cortex file stores a flat state dictionary (parameter and buffer
// names mapped to tensors) as:
//
//	[magic "CRTX"][version uint32][header size uint64][JSON header]
//	[padding to 64-byte boundary][tensor payload]
//
// The JSON header lists every tensor's name, shape, byte offset into the
// payload and CRC-32 checksum. Tensor data is raw little-endian float32.
package serialization

import (
	"time"
)

// Format constants.
const (
	MagicBytes      = "CRTX"
	FormatVersion   = 1
	HeaderAlignment = 64 // payload starts on a 64-byte boundary
)

// Header is the JSON header of a .cortex file.
type Header struct {
	FormatVersion int               `json:"format_version"`
	ModelType     string            `json:"model_type"`
	CreatedAt     time.Time         `json:"created_at"`
	Tensors       []TensorMeta      `json:"tensors"`
	Metadata      map[string]string `json:"metadata"`
}

// TensorMeta describes one tensor in the payload.
type TensorMeta struct {
	Name     string `json:"name"`
	Shape    []int  `json:"shape"`
	Offset   int64  `json:"offset"` // bytes from the start of the payload
	Size     int64  `json:"size"`   // bytes
	Checksum uint32 `json:"crc32"`  // CRC-32 (IEEE) of the tensor bytes
}
