package graph

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"unsafe"
)

const (
	magicBytes   = "RDSTRICT"
	version      = uint32(1)
	maxNodes     = 1_000_000
	maxEdges     = 50_000_000
	maxRegions   = 65_536
	maxStringLen = 4096

	flagCoordinates = uint32(1) << 0
)

// fileHeader is the binary header.
type fileHeader struct {
	Magic      [8]byte
	Version    uint32
	NumNodes   uint32
	NumEdges   uint32
	NumRegions uint32
	Flags      uint32
}

// WriteBinary serializes a Graph with its node attributes to a binary file.
// The file is written to a temporary path and renamed into place.
func WriteBinary(path string, g *Graph) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		f.Close()
		os.Remove(tmpPath) // no-op after a successful rename
	}()

	crcWriter := crc32Writer{w: f, hash: crc32.NewIEEE()}
	w := &crcWriter

	hdr := fileHeader{
		Version:    version,
		NumNodes:   g.NumNodes,
		NumEdges:   g.NumEdges,
		NumRegions: uint32(len(g.RegionLabel)),
	}
	if g.HasCoordinates() {
		hdr.Flags |= flagCoordinates
	}
	copy(hdr.Magic[:], magicBytes)
	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	if err := writeUint32Slice(w, g.FirstOut); err != nil {
		return fmt.Errorf("write FirstOut: %w", err)
	}
	if err := writeUint32Slice(w, g.Head); err != nil {
		return fmt.Errorf("write Head: %w", err)
	}
	if err := writeInt64Slice(w, g.Population); err != nil {
		return fmt.Errorf("write Population: %w", err)
	}
	if err := writeFloat64Slice(w, g.Lean); err != nil {
		return fmt.Errorf("write Lean: %w", err)
	}
	if hdr.Flags&flagCoordinates != 0 {
		if err := writeFloat64Slice(w, g.NodeLat); err != nil {
			return fmt.Errorf("write NodeLat: %w", err)
		}
		if err := writeFloat64Slice(w, g.NodeLon); err != nil {
			return fmt.Errorf("write NodeLon: %w", err)
		}
	}
	if err := writeUint32Slice(w, g.HomeRegion); err != nil {
		return fmt.Errorf("write HomeRegion: %w", err)
	}
	if err := writeStrings(w, g.NodeID); err != nil {
		return fmt.Errorf("write NodeID: %w", err)
	}
	if err := writeStrings(w, g.RegionLabel); err != nil {
		return fmt.Errorf("write RegionLabel: %w", err)
	}

	checksum := crcWriter.hash.Sum32()
	if err := binary.Write(f, binary.LittleEndian, checksum); err != nil {
		return fmt.Errorf("write CRC32: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// ReadBinary deserializes a Graph from a binary file and validates it.
func ReadBinary(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	crcReader := crc32Reader{r: f, hash: crc32.NewIEEE()}
	r := &crcReader

	var hdr fileHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if string(hdr.Magic[:]) != magicBytes {
		return nil, fmt.Errorf("invalid magic bytes: %q", hdr.Magic)
	}
	if hdr.Version != version {
		return nil, fmt.Errorf("unsupported version: %d", hdr.Version)
	}
	if hdr.NumNodes > maxNodes {
		return nil, fmt.Errorf("NumNodes %d exceeds limit %d", hdr.NumNodes, maxNodes)
	}
	if hdr.NumEdges > maxEdges {
		return nil, fmt.Errorf("NumEdges %d exceeds limit %d", hdr.NumEdges, maxEdges)
	}
	if hdr.NumRegions > maxRegions {
		return nil, fmt.Errorf("NumRegions %d exceeds limit %d", hdr.NumRegions, maxRegions)
	}

	g := &Graph{NumNodes: hdr.NumNodes, NumEdges: hdr.NumEdges}
	n := int(hdr.NumNodes)

	if g.FirstOut, err = readUint32Slice(r, n+1); err != nil {
		return nil, fmt.Errorf("read FirstOut: %w", err)
	}
	if g.Head, err = readUint32Slice(r, int(hdr.NumEdges)); err != nil {
		return nil, fmt.Errorf("read Head: %w", err)
	}
	if g.Population, err = readInt64Slice(r, n); err != nil {
		return nil, fmt.Errorf("read Population: %w", err)
	}
	if g.Lean, err = readFloat64Slice(r, n); err != nil {
		return nil, fmt.Errorf("read Lean: %w", err)
	}
	if hdr.Flags&flagCoordinates != 0 {
		if g.NodeLat, err = readFloat64Slice(r, n); err != nil {
			return nil, fmt.Errorf("read NodeLat: %w", err)
		}
		if g.NodeLon, err = readFloat64Slice(r, n); err != nil {
			return nil, fmt.Errorf("read NodeLon: %w", err)
		}
	}
	if g.HomeRegion, err = readUint32Slice(r, n); err != nil {
		return nil, fmt.Errorf("read HomeRegion: %w", err)
	}
	if g.NodeID, err = readStrings(r, n); err != nil {
		return nil, fmt.Errorf("read NodeID: %w", err)
	}
	if g.RegionLabel, err = readStrings(r, int(hdr.NumRegions)); err != nil {
		return nil, fmt.Errorf("read RegionLabel: %w", err)
	}

	expectedCRC := crcReader.hash.Sum32()
	var storedCRC uint32
	if err := binary.Read(f, binary.LittleEndian, &storedCRC); err != nil {
		return nil, fmt.Errorf("read CRC32: %w", err)
	}
	if storedCRC != expectedCRC {
		return nil, fmt.Errorf("CRC32 mismatch: stored=%08x computed=%08x", storedCRC, expectedCRC)
	}

	if err := Validate(g); err != nil {
		return nil, err
	}
	return g, nil
}

// Validate checks CSR invariants, symmetry, and attribute lengths.
func Validate(g *Graph) error {
	if err := validateCSR(g.FirstOut, g.Head, g.NumNodes); err != nil {
		return fmt.Errorf("CSR invalid: %v: %w", err, ErrInvalidGraph)
	}
	n := int(g.NumNodes)
	if len(g.NodeID) != n || len(g.Population) != n || len(g.Lean) != n || len(g.HomeRegion) != n {
		return fmt.Errorf("attribute arrays do not match %d nodes: %w", n, ErrInvalidGraph)
	}
	for u := uint32(0); u < g.NumNodes; u++ {
		nbrs := g.Neighbors(u)
		for i, v := range nbrs {
			if v == u {
				return fmt.Errorf("self loop at node %d: %w", u, ErrInvalidGraph)
			}
			if i > 0 && nbrs[i-1] >= v {
				return fmt.Errorf("neighbors of node %d not strictly ascending: %w", u, ErrInvalidGraph)
			}
			if !hasNeighbor(g, v, u) {
				return fmt.Errorf("edge %d->%d has no reverse: %w", u, v, ErrInvalidGraph)
			}
		}
		if g.Population[u] < 0 {
			return fmt.Errorf("node %d has negative population: %w", u, ErrInvalidGraph)
		}
		if r := g.HomeRegion[u]; r != NoRegion && int(r) >= len(g.RegionLabel) {
			return fmt.Errorf("node %d home region %d out of range: %w", u, r, ErrInvalidGraph)
		}
	}
	return nil
}

func hasNeighbor(g *Graph, u, v uint32) bool {
	nbrs := g.Neighbors(u)
	lo, hi := 0, len(nbrs)
	for lo < hi {
		mid := (lo + hi) / 2
		if nbrs[mid] < v {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo < len(nbrs) && nbrs[lo] == v
}

// validateCSR checks CSR invariants.
func validateCSR(firstOut, head []uint32, numNodes uint32) error {
	if uint32(len(firstOut)) != numNodes+1 {
		return fmt.Errorf("FirstOut length %d != NumNodes+1 %d", len(firstOut), numNodes+1)
	}
	if firstOut[0] != 0 {
		return fmt.Errorf("FirstOut[0]=%d, want 0", firstOut[0])
	}
	numEdges := firstOut[numNodes]
	if uint32(len(head)) != numEdges {
		return fmt.Errorf("Head length %d != FirstOut[NumNodes] %d", len(head), numEdges)
	}
	for i := uint32(1); i <= numNodes; i++ {
		if firstOut[i] < firstOut[i-1] {
			return fmt.Errorf("FirstOut not monotonic at %d: %d < %d", i, firstOut[i], firstOut[i-1])
		}
	}
	for i, h := range head {
		if h >= numNodes {
			return fmt.Errorf("Head[%d]=%d >= NumNodes=%d", i, h, numNodes)
		}
	}
	return nil
}

// Zero-copy I/O helpers using unsafe.Slice.

func writeUint32Slice(w io.Writer, s []uint32) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*4)
	_, err := w.Write(b)
	return err
}

func writeInt64Slice(w io.Writer, s []int64) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*8)
	_, err := w.Write(b)
	return err
}

func writeFloat64Slice(w io.Writer, s []float64) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*8)
	_, err := w.Write(b)
	return err
}

func readUint32Slice(r io.Reader, n int) ([]uint32, error) {
	s := make([]uint32, n)
	if n == 0 {
		return s, nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*4)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return s, nil
}

func readInt64Slice(r io.Reader, n int) ([]int64, error) {
	s := make([]int64, n)
	if n == 0 {
		return s, nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*8)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return s, nil
}

func readFloat64Slice(r io.Reader, n int) ([]float64, error) {
	s := make([]float64, n)
	if n == 0 {
		return s, nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*8)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return s, nil
}

// writeStrings writes each string as a uint32 length followed by its bytes.
func writeStrings(w io.Writer, ss []string) error {
	for _, s := range ss {
		if len(s) > maxStringLen {
			return fmt.Errorf("string of %d bytes exceeds limit %d", len(s), maxStringLen)
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
			return err
		}
		if _, err := io.WriteString(w, s); err != nil {
			return err
		}
	}
	return nil
}

func readStrings(r io.Reader, n int) ([]string, error) {
	out := make([]string, n)
	var buf []byte
	for i := range out {
		var l uint32
		if err := binary.Read(r, binary.LittleEndian, &l); err != nil {
			return nil, err
		}
		if l > maxStringLen {
			return nil, fmt.Errorf("string %d length %d exceeds limit %d", i, l, maxStringLen)
		}
		if cap(buf) < int(l) {
			buf = make([]byte, l)
		}
		buf = buf[:l]
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		out[i] = string(buf)
	}
	return out, nil
}

// CRC32 wrapping writers/readers.

type crc32Writer struct {
	w    io.Writer
	hash crc32Hash
}

type crc32Hash interface {
	Write([]byte) (int, error)
	Sum32() uint32
}

func (cw *crc32Writer) Write(p []byte) (int, error) {
	cw.hash.Write(p)
	return cw.w.Write(p)
}

type crc32Reader struct {
	r    io.Reader
	hash crc32Hash
}

func (cr *crc32Reader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.hash.Write(p[:n])
	}
	return n, err
}
