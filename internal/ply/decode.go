// Package ply reads and writes PLY point clouds and triangle meshes, plus an
// OBJ mesh writer. Both ascii and binary_little_endian PLY 1.0 are accepted;
// unknown vertex properties are skipped.
package ply

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/meshcleanup/internal/geom"
)

type plyFormat int

const (
	formatASCII plyFormat = iota
	formatBinaryLE
)

type property struct {
	name      string
	typ       string
	isList    bool
	countType string
	elemType  string
}

type element struct {
	name  string
	count int
	props []property
}

type header struct {
	format   plyFormat
	elements []element
}

var typeSizes = map[string]int{
	"char": 1, "int8": 1,
	"uchar": 1, "uint8": 1,
	"short": 2, "int16": 2,
	"ushort": 2, "uint16": 2,
	"int": 4, "int32": 4,
	"uint": 4, "uint32": 4,
	"float": 4, "float32": 4,
	"double": 8, "float64": 8,
}

func parseHeader(r *bufio.Reader) (*header, error) {
	magic, err := readHeaderLine(r)
	if err != nil {
		return nil, err
	}
	if magic != "ply" {
		return nil, fmt.Errorf("ply: not a PLY file (got %q)", magic)
	}

	h := &header{}
	sawFormat := false
	for {
		line, err := readHeaderLine(r)
		if err != nil {
			return nil, err
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "format":
			if len(fields) != 3 || fields[2] != "1.0" {
				return nil, fmt.Errorf("ply: unsupported format line %q", line)
			}
			switch fields[1] {
			case "ascii":
				h.format = formatASCII
			case "binary_little_endian":
				h.format = formatBinaryLE
			default:
				return nil, fmt.Errorf("ply: unsupported format %q", fields[1])
			}
			sawFormat = true
		case "comment", "obj_info":
			// ignored
		case "element":
			if len(fields) != 3 {
				return nil, fmt.Errorf("ply: malformed element line %q", line)
			}
			count, err := strconv.Atoi(fields[2])
			if err != nil || count < 0 {
				return nil, fmt.Errorf("ply: bad element count in %q", line)
			}
			h.elements = append(h.elements, element{name: fields[1], count: count})
		case "property":
			if len(h.elements) == 0 {
				return nil, fmt.Errorf("ply: property before element: %q", line)
			}
			el := &h.elements[len(h.elements)-1]
			if len(fields) >= 5 && fields[1] == "list" {
				el.props = append(el.props, property{
					name: fields[4], isList: true, countType: fields[2], elemType: fields[3],
				})
			} else if len(fields) == 3 {
				if _, ok := typeSizes[fields[1]]; !ok {
					return nil, fmt.Errorf("ply: unknown property type %q", fields[1])
				}
				el.props = append(el.props, property{name: fields[2], typ: fields[1]})
			} else {
				return nil, fmt.Errorf("ply: malformed property line %q", line)
			}
		case "end_header":
			if !sawFormat {
				return nil, fmt.Errorf("ply: missing format line")
			}
			return h, nil
		default:
			return nil, fmt.Errorf("ply: unknown header keyword %q", fields[0])
		}
	}
}

func readHeaderLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return "", fmt.Errorf("ply: truncated header")
		}
		return "", fmt.Errorf("ply: reading header: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// contents holds the decoded vertex and face data of one PLY body.
type contents struct {
	points  []geom.Vec3
	normals []geom.Vec3
	colors  []geom.Vec3
	faces   [][3]int
}

// ReadPointCloud decodes the vertex element of a PLY stream. Face data, if
// present, is ignored.
func ReadPointCloud(r io.Reader) (*geom.PointCloud, error) {
	c, err := decode(r)
	if err != nil {
		return nil, err
	}
	return &geom.PointCloud{Points: c.points, Normals: c.normals, Colors: c.colors}, nil
}

// ReadMesh decodes both vertex and face elements of a PLY stream.
func ReadMesh(r io.Reader) (*geom.TriangleMesh, error) {
	c, err := decode(r)
	if err != nil {
		return nil, err
	}
	return &geom.TriangleMesh{Vertices: c.points, Normals: c.normals, Triangles: c.faces}, nil
}

func decode(r io.Reader) (*contents, error) {
	br := bufio.NewReader(r)
	h, err := parseHeader(br)
	if err != nil {
		return nil, err
	}

	c := &contents{}
	for _, el := range h.elements {
		switch {
		case el.name == "vertex":
			if err := decodeVertices(br, h.format, el, c); err != nil {
				return nil, err
			}
		case el.name == "face":
			if err := decodeFaces(br, h.format, el, c); err != nil {
				return nil, err
			}
		default:
			if err := skipElement(br, h.format, el); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

func decodeVertices(br *bufio.Reader, format plyFormat, el element, c *contents) error {
	// Column positions of the properties we understand.
	col := map[string]int{}
	for i, p := range el.props {
		if p.isList {
			return fmt.Errorf("ply: list property %q on vertex element", p.name)
		}
		col[p.name] = i
	}
	xi, xok := col["x"]
	yi, yok := col["y"]
	zi, zok := col["z"]
	if !xok || !yok || !zok {
		return fmt.Errorf("ply: vertex element missing x/y/z properties")
	}
	nxi, hasNX := col["nx"]
	nyi, hasNY := col["ny"]
	nzi, hasNZ := col["nz"]
	hasNormals := hasNX && hasNY && hasNZ
	ri, hasR := col["red"]
	gi, hasG := col["green"]
	bi, hasB := col["blue"]
	hasColors := hasR && hasG && hasB

	c.points = make([]geom.Vec3, 0, el.count)
	if hasNormals {
		c.normals = make([]geom.Vec3, 0, el.count)
	}
	if hasColors {
		c.colors = make([]geom.Vec3, 0, el.count)
	}

	row := make([]float64, len(el.props))
	for i := 0; i < el.count; i++ {
		if err := readRow(br, format, el.props, row); err != nil {
			return fmt.Errorf("ply: vertex %d: %w", i, err)
		}
		c.points = append(c.points, geom.Vec3{X: row[xi], Y: row[yi], Z: row[zi]})
		if hasNormals {
			c.normals = append(c.normals, geom.Vec3{X: row[nxi], Y: row[nyi], Z: row[nzi]})
		}
		if hasColors {
			// Color properties are conventionally uchar 0..255.
			scale := 1.0
			if el.props[ri].typ == "uchar" || el.props[ri].typ == "uint8" {
				scale = 1.0 / 255.0
			}
			c.colors = append(c.colors, geom.Vec3{X: row[ri] * scale, Y: row[gi] * scale, Z: row[bi] * scale})
		}
	}
	return nil
}

// readRow reads one non-list element row into row, one value per property.
func readRow(br *bufio.Reader, format plyFormat, props []property, row []float64) error {
	if format == formatASCII {
		fields, err := readDataLine(br)
		if err != nil {
			return err
		}
		if len(fields) < len(props) {
			return fmt.Errorf("expected %d values, got %d", len(props), len(fields))
		}
		for i := range props {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return fmt.Errorf("parsing value %q: %w", fields[i], err)
			}
			row[i] = v
		}
		return nil
	}
	for i, p := range props {
		v, err := readBinaryScalar(br, p.typ)
		if err != nil {
			return err
		}
		row[i] = v
	}
	return nil
}

func decodeFaces(br *bufio.Reader, format plyFormat, el element, c *contents) error {
	if len(el.props) != 1 || !el.props[0].isList {
		return fmt.Errorf("ply: unsupported face element layout")
	}
	name := el.props[0].name
	if name != "vertex_indices" && name != "vertex_index" {
		return fmt.Errorf("ply: unsupported face property %q", name)
	}

	c.faces = make([][3]int, 0, el.count)
	for i := 0; i < el.count; i++ {
		idx, err := readList(br, format, el.props[0])
		if err != nil {
			return fmt.Errorf("ply: face %d: %w", i, err)
		}
		// Fan-triangulate polygons with more than three corners.
		if len(idx) < 3 {
			return fmt.Errorf("ply: face %d has %d indices", i, len(idx))
		}
		for j := 1; j+1 < len(idx); j++ {
			c.faces = append(c.faces, [3]int{idx[0], idx[j], idx[j+1]})
		}
	}
	return nil
}

func readList(br *bufio.Reader, format plyFormat, p property) ([]int, error) {
	if format == formatASCII {
		fields, err := readDataLine(br)
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			return nil, fmt.Errorf("empty face row")
		}
		count, err := strconv.Atoi(fields[0])
		if err != nil || count < 0 || len(fields) < 1+count {
			return nil, fmt.Errorf("malformed face row %v", fields)
		}
		idx := make([]int, count)
		for i := 0; i < count; i++ {
			v, err := strconv.Atoi(fields[1+i])
			if err != nil {
				return nil, err
			}
			idx[i] = v
		}
		return idx, nil
	}

	countF, err := readBinaryScalar(br, p.countType)
	if err != nil {
		return nil, err
	}
	count := int(countF)
	if count < 0 || count > 1<<20 {
		return nil, fmt.Errorf("implausible face vertex count %d", count)
	}
	idx := make([]int, count)
	for i := 0; i < count; i++ {
		v, err := readBinaryScalar(br, p.elemType)
		if err != nil {
			return nil, err
		}
		idx[i] = int(v)
	}
	return idx, nil
}

func skipElement(br *bufio.Reader, format plyFormat, el element) error {
	for i := 0; i < el.count; i++ {
		if format == formatASCII {
			if _, err := readDataLine(br); err != nil {
				return err
			}
			continue
		}
		for _, p := range el.props {
			if p.isList {
				if _, err := readList(br, format, p); err != nil {
					return err
				}
				continue
			}
			if _, err := readBinaryScalar(br, p.typ); err != nil {
				return err
			}
		}
	}
	return nil
}

func readDataLine(br *bufio.Reader) ([]string, error) {
	for {
		line, err := br.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return nil, fmt.Errorf("unexpected end of data: %w", err)
		}
		fields := strings.Fields(line)
		if len(fields) > 0 {
			return fields, nil
		}
		if err == io.EOF {
			return nil, fmt.Errorf("unexpected end of data")
		}
	}
}

func readBinaryScalar(br *bufio.Reader, typ string) (float64, error) {
	size, ok := typeSizes[typ]
	if !ok {
		return 0, fmt.Errorf("unknown type %q", typ)
	}
	var buf [8]byte
	if _, err := io.ReadFull(br, buf[:size]); err != nil {
		return 0, fmt.Errorf("unexpected end of data: %w", err)
	}
	switch typ {
	case "char", "int8":
		return float64(int8(buf[0])), nil
	case "uchar", "uint8":
		return float64(buf[0]), nil
	case "short", "int16":
		return float64(int16(binary.LittleEndian.Uint16(buf[:2]))), nil
	case "ushort", "uint16":
		return float64(binary.LittleEndian.Uint16(buf[:2])), nil
	case "int", "int32":
		return float64(int32(binary.LittleEndian.Uint32(buf[:4]))), nil
	case "uint", "uint32":
		return float64(binary.LittleEndian.Uint32(buf[:4])), nil
	case "float", "float32":
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[:4]))), nil
	case "double", "float64":
		return math.Float64frombits(binary.LittleEndian.Uint64(buf[:8])), nil
	}
	return 0, fmt.Errorf("unknown type %q", typ)
}
