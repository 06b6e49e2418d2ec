package loaders

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/df07/go-instancing/pkg/core"
	"github.com/df07/go-instancing/pkg/geometry"
	"github.com/golang/glog"
)

// PLY storage formats
const (
	FormatASCII              = "ascii"
	FormatBinaryLittleEndian = "binary_little_endian"
	FormatBinaryBigEndian    = "binary_big_endian"
)

// ErrMalformedPLY is returned for PLY input that cannot be parsed
var ErrMalformedPLY = errors.New("malformed PLY")

// PLYHeader represents the parsed header information from a PLY file
type PLYHeader struct {
	Format      string // "binary_little_endian", "binary_big_endian", or "ascii"
	Version     string // Usually "1.0"
	Elements    []PLYElement
	VertexCount int
	FaceCount   int

	// Property detection flags
	HasNormals   bool
	HasTexCoords bool
}

// PLYElement is one element block ("vertex", "face", or anything else) in
// file order
type PLYElement struct {
	Name       string
	Count      int
	Properties []PLYProperty
}

// PLYProperty represents a property definition in the PLY header
type PLYProperty struct {
	Name     string
	Type     string
	IsList   bool
	ListType string // For list properties, the type of the count
	DataType string // For list properties, the type of the data
}

// PLYData contains the mesh data loaded from a PLY file
type PLYData struct {
	Vertices  []core.Vec3 // Vertex positions (x, y, z)
	Faces     []int       // Triangle indices (3 per triangle); polygons are fan-triangulated
	Normals   []core.Vec3 // Per-vertex normals (nx, ny, nz) - empty if not present
	TexCoords []core.Vec2 // Per-vertex texture coordinates (u, v) - empty if not present
}

// TriangleCount returns the number of triangles
func (d *PLYData) TriangleCount() int {
	return len(d.Faces) / 3
}

// Mesh builds a triangle mesh from the loaded data
func (d *PLYData) Mesh(options *geometry.TriangleMeshOptions) (*geometry.TriangleMesh, error) {
	return geometry.NewTriangleMesh(d.Vertices, d.Faces, options)
}

// LoadPLY loads a PLY file and returns the raw vertex and face data
func LoadPLY(filename string) (*PLYData, error) {
	startTime := time.Now()

	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open PLY file: %w", err)
	}
	defer file.Close()

	data, err := ReadPLY(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	glog.Infof("Loaded PLY %s: %d vertices, %d triangles in %v",
		filename, len(data.Vertices), data.TriangleCount(), time.Since(startTime))
	return data, nil
}

// ReadPLY parses PLY data in any of the three storage formats
func ReadPLY(r io.Reader) (*PLYData, error) {
	reader := bufio.NewReaderSize(r, 1024*1024) // 1MB buffer

	header, err := parsePLYHeader(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PLY header: %w", err)
	}
	glog.V(1).Infof("PLY header: format=%s vertices=%d faces=%d normals=%t texcoords=%t",
		header.Format, header.VertexCount, header.FaceCount, header.HasNormals, header.HasTexCoords)

	var values valueReader
	switch header.Format {
	case FormatBinaryLittleEndian:
		values = &binaryValues{r: reader, order: binary.LittleEndian}
	case FormatBinaryBigEndian:
		values = &binaryValues{r: reader, order: binary.BigEndian}
	case FormatASCII:
		scanner := bufio.NewScanner(reader)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		scanner.Split(bufio.ScanWords)
		values = &asciiValues{s: scanner}
	default:
		return nil, fmt.Errorf("unsupported PLY format %q: %w", header.Format, ErrMalformedPLY)
	}

	data, err := readElements(values, header)
	if err != nil {
		return nil, fmt.Errorf("failed to read PLY data: %w", err)
	}
	return data, nil
}

// parsePLYHeader parses the header up to and including end_header, leaving
// reader positioned at the first data byte
func parsePLYHeader(reader *bufio.Reader) (*PLYHeader, error) {
	header := &PLYHeader{}
	var current *PLYElement
	first := true

	for {
		raw, err := reader.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("header ended before end_header: %w", ErrMalformedPLY)
		}
		line := strings.TrimSpace(raw)

		if first {
			if line != "ply" {
				return nil, fmt.Errorf("missing ply magic: %w", ErrMalformedPLY)
			}
			first = false
			continue
		}
		if line == "end_header" {
			break
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		switch parts[0] {
		case "format":
			if len(parts) < 3 {
				return nil, fmt.Errorf("invalid format line %q: %w", line, ErrMalformedPLY)
			}
			header.Format = parts[1]
			header.Version = parts[2]
		case "comment", "obj_info":
			// Ignore comments
		case "element":
			if len(parts) < 3 {
				return nil, fmt.Errorf("invalid element line %q: %w", line, ErrMalformedPLY)
			}
			count, err := strconv.Atoi(parts[2])
			if err != nil || count < 0 {
				return nil, fmt.Errorf("invalid element count %q: %w", parts[2], ErrMalformedPLY)
			}
			header.Elements = append(header.Elements, PLYElement{Name: parts[1], Count: count})
			current = &header.Elements[len(header.Elements)-1]

			switch current.Name {
			case "vertex":
				header.VertexCount = count
			case "face":
				header.FaceCount = count
			}
		case "property":
			if current == nil {
				return nil, fmt.Errorf("property before any element: %w", ErrMalformedPLY)
			}
			prop, err := parsePLYProperty(parts[1:])
			if err != nil {
				return nil, err
			}
			current.Properties = append(current.Properties, prop)

			if current.Name == "vertex" {
				switch prop.Name {
				case "nx", "ny", "nz":
					header.HasNormals = true
				case "u", "s", "texture_u", "v", "t", "texture_v":
					header.HasTexCoords = true
				}
			}
		default:
			return nil, fmt.Errorf("unknown header keyword %q: %w", parts[0], ErrMalformedPLY)
		}
	}

	if header.Format == "" {
		return nil, fmt.Errorf("missing format line: %w", ErrMalformedPLY)
	}
	return header, nil
}

// parsePLYProperty parses a property line from the PLY header
func parsePLYProperty(parts []string) (PLYProperty, error) {
	if len(parts) < 2 {
		return PLYProperty{}, fmt.Errorf("invalid property definition: %w", ErrMalformedPLY)
	}

	prop := PLYProperty{}

	if parts[0] == "list" {
		if len(parts) < 4 {
			return PLYProperty{}, fmt.Errorf("invalid list property definition: %w", ErrMalformedPLY)
		}
		prop.IsList = true
		prop.ListType = parts[1]
		prop.DataType = parts[2]
		prop.Name = parts[3]
		if getTypeSize(prop.ListType) == 0 || getTypeSize(prop.DataType) == 0 {
			return PLYProperty{}, fmt.Errorf("unsupported list types %s/%s: %w", prop.ListType, prop.DataType, ErrMalformedPLY)
		}
	} else {
		prop.Type = parts[0]
		prop.Name = parts[1]
		if getTypeSize(prop.Type) == 0 {
			return PLYProperty{}, fmt.Errorf("unsupported data type %s: %w", prop.Type, ErrMalformedPLY)
		}
	}

	return prop, nil
}

// readElements reads every element block in header order
func readElements(values valueReader, header *PLYHeader) (*PLYData, error) {
	data := &PLYData{
		Vertices: make([]core.Vec3, 0, header.VertexCount),
		Faces:    make([]int, 0, header.FaceCount*3), // Assuming triangular faces
	}
	if header.HasNormals {
		data.Normals = make([]core.Vec3, 0, header.VertexCount)
	}
	if header.HasTexCoords {
		data.TexCoords = make([]core.Vec2, 0, header.VertexCount)
	}

	for _, element := range header.Elements {
		var err error
		switch element.Name {
		case "vertex":
			err = readVertices(values, element, header, data)
		case "face":
			err = readFaces(values, element, data)
		default:
			glog.V(1).Infof("Skipping PLY element %q (%d entries)", element.Name, element.Count)
			err = skipElement(values, element)
		}
		if err != nil {
			return nil, err
		}
	}

	for i, index := range data.Faces {
		if index < 0 || index >= len(data.Vertices) {
			return nil, fmt.Errorf("face %d references vertex %d of %d: %w", i/3, index, len(data.Vertices), ErrMalformedPLY)
		}
	}
	return data, nil
}

func readVertices(values valueReader, element PLYElement, header *PLYHeader, data *PLYData) error {
	for i := 0; i < element.Count; i++ {
		var position, normal core.Vec3
		var uv core.Vec2

		for _, prop := range element.Properties {
			if prop.IsList {
				if err := skipList(values, prop); err != nil {
					return fmt.Errorf("vertex %d: %w", i, err)
				}
				continue
			}

			value, err := values.read(prop.Type)
			if err != nil {
				return fmt.Errorf("vertex %d property %s: %w", i, prop.Name, err)
			}

			switch prop.Name {
			case "x":
				position.X = value
			case "y":
				position.Y = value
			case "z":
				position.Z = value
			case "nx":
				normal.X = value
			case "ny":
				normal.Y = value
			case "nz":
				normal.Z = value
			case "u", "s", "texture_u":
				uv.X = value
			case "v", "t", "texture_v":
				uv.Y = value
			}
		}

		data.Vertices = append(data.Vertices, position)
		if header.HasNormals {
			data.Normals = append(data.Normals, normal)
		}
		if header.HasTexCoords {
			data.TexCoords = append(data.TexCoords, uv)
		}
	}
	return nil
}

func readFaces(values valueReader, element PLYElement, data *PLYData) error {
	for i := 0; i < element.Count; i++ {
		for _, prop := range element.Properties {
			if !prop.IsList || (prop.Name != "vertex_indices" && prop.Name != "vertex_index") {
				if err := skipProperty(values, prop); err != nil {
					return fmt.Errorf("face %d property %s: %w", i, prop.Name, err)
				}
				continue
			}

			count, err := values.read(prop.ListType)
			if err != nil {
				return fmt.Errorf("face %d vertex count: %w", i, err)
			}
			if count < 3 {
				return fmt.Errorf("face %d has %v vertices: %w", i, count, ErrMalformedPLY)
			}

			indices := make([]int, int(count))
			for j := range indices {
				index, err := values.read(prop.DataType)
				if err != nil {
					return fmt.Errorf("face %d index %d: %w", i, j, err)
				}
				indices[j] = int(index)
			}

			// Fan-triangulate polygons
			for j := 1; j+1 < len(indices); j++ {
				data.Faces = append(data.Faces, indices[0], indices[j], indices[j+1])
			}
		}
	}
	return nil
}

func skipElement(values valueReader, element PLYElement) error {
	for i := 0; i < element.Count; i++ {
		for _, prop := range element.Properties {
			if err := skipProperty(values, prop); err != nil {
				return fmt.Errorf("%s %d property %s: %w", element.Name, i, prop.Name, err)
			}
		}
	}
	return nil
}

// skipProperty skips a scalar or list property
func skipProperty(values valueReader, prop PLYProperty) error {
	if prop.IsList {
		return skipList(values, prop)
	}
	_, err := values.read(prop.Type)
	return err
}

func skipList(values valueReader, prop PLYProperty) error {
	count, err := values.read(prop.ListType)
	if err != nil {
		return err
	}
	for i := 0; i < int(count); i++ {
		if _, err := values.read(prop.DataType); err != nil {
			return err
		}
	}
	return nil
}

// getTypeSize returns the size in bytes of a PLY data type, 0 if unknown
func getTypeSize(dataType string) int {
	switch dataType {
	case "float", "float32", "int", "int32", "uint", "uint32":
		return 4
	case "double", "float64":
		return 8
	case "short", "int16", "ushort", "uint16":
		return 2
	case "char", "int8", "uchar", "uint8":
		return 1
	default:
		return 0
	}
}

// valueReader reads one scalar of the given PLY type as float64
type valueReader interface {
	read(dataType string) (float64, error)
}

type binaryValues struct {
	r     io.Reader
	order binary.ByteOrder
	buf   [8]byte
}

func (b *binaryValues) read(dataType string) (float64, error) {
	size := getTypeSize(dataType)
	if size == 0 {
		return 0, fmt.Errorf("unsupported data type %s: %w", dataType, ErrMalformedPLY)
	}
	buf := b.buf[:size]
	if _, err := io.ReadFull(b.r, buf); err != nil {
		return 0, fmt.Errorf("truncated data: %w: %w", err, ErrMalformedPLY)
	}

	switch dataType {
	case "float", "float32":
		return float64(math.Float32frombits(b.order.Uint32(buf))), nil
	case "double", "float64":
		return math.Float64frombits(b.order.Uint64(buf)), nil
	case "int", "int32":
		return float64(int32(b.order.Uint32(buf))), nil
	case "uint", "uint32":
		return float64(b.order.Uint32(buf)), nil
	case "short", "int16":
		return float64(int16(b.order.Uint16(buf))), nil
	case "ushort", "uint16":
		return float64(b.order.Uint16(buf)), nil
	case "char", "int8":
		return float64(int8(buf[0])), nil
	default: // uchar, uint8
		return float64(buf[0]), nil
	}
}

type asciiValues struct {
	s *bufio.Scanner
}

func (a *asciiValues) read(dataType string) (float64, error) {
	if !a.s.Scan() {
		if err := a.s.Err(); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("unexpected end of data: %w", ErrMalformedPLY)
	}
	value, err := strconv.ParseFloat(a.s.Text(), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", dataType, a.s.Text(), ErrMalformedPLY)
	}
	return value, nil
}
