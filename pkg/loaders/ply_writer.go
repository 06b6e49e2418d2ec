package loaders

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
)

// SavePLY writes data to filename in the given format
func SavePLY(filename string, data *PLYData, format string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create PLY file: %w", err)
	}
	if err := WritePLY(file, data, format); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// WritePLY encodes data as PLY. Positions, normals and texture coordinates
// are stored as float; faces as "list uchar int vertex_indices".
func WritePLY(w io.Writer, data *PLYData, format string) error {
	var order binary.ByteOrder
	switch format {
	case FormatASCII:
	case FormatBinaryLittleEndian:
		order = binary.LittleEndian
	case FormatBinaryBigEndian:
		order = binary.BigEndian
	default:
		return fmt.Errorf("unsupported PLY format %q: %w", format, ErrMalformedPLY)
	}
	if len(data.Faces)%3 != 0 {
		return fmt.Errorf("face indices must be a multiple of 3, got %d: %w", len(data.Faces), ErrMalformedPLY)
	}
	hasNormals := len(data.Normals) > 0
	hasTexCoords := len(data.TexCoords) > 0
	if hasNormals && len(data.Normals) != len(data.Vertices) {
		return fmt.Errorf("got %d normals for %d vertices: %w", len(data.Normals), len(data.Vertices), ErrMalformedPLY)
	}
	if hasTexCoords && len(data.TexCoords) != len(data.Vertices) {
		return fmt.Errorf("got %d texture coordinates for %d vertices: %w", len(data.TexCoords), len(data.Vertices), ErrMalformedPLY)
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "ply\nformat %s 1.0\n", format)
	fmt.Fprintf(bw, "element vertex %d\n", len(data.Vertices))
	bw.WriteString("property float x\nproperty float y\nproperty float z\n")
	if hasNormals {
		bw.WriteString("property float nx\nproperty float ny\nproperty float nz\n")
	}
	if hasTexCoords {
		bw.WriteString("property float u\nproperty float v\n")
	}
	fmt.Fprintf(bw, "element face %d\n", len(data.Faces)/3)
	bw.WriteString("property list uchar int vertex_indices\nend_header\n")

	enc := &plyEncoder{w: bw, order: order}
	for i, v := range data.Vertices {
		enc.floats(v.X, v.Y, v.Z)
		if hasNormals {
			n := data.Normals[i]
			enc.floats(n.X, n.Y, n.Z)
		}
		if hasTexCoords {
			uv := data.TexCoords[i]
			enc.floats(uv.X, uv.Y)
		}
		enc.endLine()
	}
	for i := 0; i < len(data.Faces); i += 3 {
		enc.face(data.Faces[i], data.Faces[i+1], data.Faces[i+2])
		enc.endLine()
	}

	if enc.err != nil {
		return fmt.Errorf("failed to write PLY data: %w", enc.err)
	}
	return bw.Flush()
}

// plyEncoder writes values in ASCII when order is nil, binary otherwise.
// The first error is kept and later writes are dropped.
type plyEncoder struct {
	w     *bufio.Writer
	order binary.ByteOrder
	sep   bool
	err   error
}

func (e *plyEncoder) floats(values ...float64) {
	for _, value := range values {
		if e.err != nil {
			return
		}
		if e.order == nil {
			e.token(strconv.FormatFloat(float64(float32(value)), 'g', -1, 32))
			continue
		}
		var buf [4]byte
		e.order.PutUint32(buf[:], math.Float32bits(float32(value)))
		_, e.err = e.w.Write(buf[:])
	}
}

func (e *plyEncoder) face(a, b, c int) {
	if e.err != nil {
		return
	}
	if e.order == nil {
		e.token("3")
		for _, index := range []int{a, b, c} {
			e.token(strconv.Itoa(index))
		}
		return
	}
	var buf [13]byte
	buf[0] = 3
	e.order.PutUint32(buf[1:], uint32(int32(a)))
	e.order.PutUint32(buf[5:], uint32(int32(b)))
	e.order.PutUint32(buf[9:], uint32(int32(c)))
	_, e.err = e.w.Write(buf[:])
}

func (e *plyEncoder) token(s string) {
	if e.err != nil {
		return
	}
	if e.sep {
		e.err = e.w.WriteByte(' ')
	}
	if e.err == nil {
		_, e.err = e.w.WriteString(s)
	}
	e.sep = true
}

func (e *plyEncoder) endLine() {
	if e.order != nil || e.err != nil {
		return
	}
	e.err = e.w.WriteByte('\n')
	e.sep = false
}
