package partition

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Snapshot is a deep copy of the node→region and region→nodes mappings.
// Everything else is derived and recomputed on Restore.
type Snapshot struct {
	Assignment []uint32
	Members    [][]uint32
}

// Snapshot captures the current partition.
func (s *State) Snapshot() Snapshot {
	members := make([][]uint32, s.numRegions)
	for r := range members {
		members[r] = append([]uint32(nil), s.members[r]...)
	}
	return Snapshot{
		Assignment: append([]uint32(nil), s.region...),
		Members:    members,
	}
}

// Restore replaces the partition with snap and recomputes the border index
// and aggregates from scratch. On error the state is unchanged.
func (s *State) Restore(snap Snapshot) error {
	if err := s.validateSnapshot(snap); err != nil {
		return err
	}
	s.rebuild(snap.Assignment, snap.Members)
	return nil
}

func (s *State) validateSnapshot(snap Snapshot) error {
	n := len(s.region)
	if len(snap.Assignment) != n {
		return fmt.Errorf("snapshot has %d nodes, graph has %d: %w", len(snap.Assignment), n, ErrInvalidSnapshot)
	}
	if len(snap.Members) != s.numRegions {
		return fmt.Errorf("snapshot has %d regions, want %d: %w", len(snap.Members), s.numRegions, ErrInvalidSnapshot)
	}
	seen := make([]bool, n)
	total := 0
	for r, list := range snap.Members {
		if len(list) == 0 {
			return fmt.Errorf("snapshot region %d is empty: %w", r, ErrInvalidSnapshot)
		}
		for _, node := range list {
			if int(node) >= n {
				return fmt.Errorf("snapshot node %d out of range: %w", node, ErrInvalidSnapshot)
			}
			if seen[node] {
				return fmt.Errorf("snapshot node %d listed twice: %w", node, ErrInvalidSnapshot)
			}
			if snap.Assignment[node] != uint32(r) {
				return fmt.Errorf("snapshot node %d in region %d but assigned %d: %w",
					node, r, snap.Assignment[node], ErrInvalidSnapshot)
			}
			seen[node] = true
			total++
		}
	}
	if total != n {
		return fmt.Errorf("snapshot lists %d of %d nodes: %w", total, n, ErrInvalidSnapshot)
	}
	return nil
}

const (
	snapshotMagic   = "RDSNAPSH"
	snapshotVersion = uint32(1)
)

type snapshotHeader struct {
	Magic      [8]byte
	Version    uint32
	NumNodes   uint32
	NumRegions uint32
}

// MarshalBinary encodes the snapshot with a CRC32 trailer.
func (snap Snapshot) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	hdr := snapshotHeader{
		Version:    snapshotVersion,
		NumNodes:   uint32(len(snap.Assignment)),
		NumRegions: uint32(len(snap.Members)),
	}
	copy(hdr.Magic[:], snapshotMagic)
	if err := binary.Write(&buf, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("write snapshot header: %w", err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, snap.Assignment); err != nil {
		return nil, fmt.Errorf("write assignment: %w", err)
	}
	for r, list := range snap.Members {
		if err := binary.Write(&buf, binary.LittleEndian, uint32(len(list))); err != nil {
			return nil, fmt.Errorf("write region %d size: %w", r, err)
		}
		if err := binary.Write(&buf, binary.LittleEndian, list); err != nil {
			return nil, fmt.Errorf("write region %d members: %w", r, err)
		}
	}
	sum := crc32.ChecksumIEEE(buf.Bytes())
	if err := binary.Write(&buf, binary.LittleEndian, sum); err != nil {
		return nil, fmt.Errorf("write CRC32: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a snapshot written by MarshalBinary. Consistency
// with a particular graph is checked later by State.Restore.
func (snap *Snapshot) UnmarshalBinary(data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("snapshot too short: %w", ErrInvalidSnapshot)
	}
	body, trailer := data[:len(data)-4], data[len(data)-4:]
	if stored, computed := binary.LittleEndian.Uint32(trailer), crc32.ChecksumIEEE(body); stored != computed {
		return fmt.Errorf("CRC32 mismatch: stored=%08x computed=%08x: %w", stored, computed, ErrInvalidSnapshot)
	}

	r := bytes.NewReader(body)
	var hdr snapshotHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("read snapshot header: %v: %w", err, ErrInvalidSnapshot)
	}
	if string(hdr.Magic[:]) != snapshotMagic {
		return fmt.Errorf("invalid magic bytes %q: %w", hdr.Magic, ErrInvalidSnapshot)
	}
	if hdr.Version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d: %w", hdr.Version, ErrInvalidSnapshot)
	}
	// Every field is at least 4 bytes; reject counts the body cannot hold.
	if uint64(hdr.NumNodes)+uint64(hdr.NumRegions) > uint64(r.Len())/4 {
		return fmt.Errorf("snapshot counts exceed payload: %w", ErrInvalidSnapshot)
	}

	assignment := make([]uint32, hdr.NumNodes)
	if err := binary.Read(r, binary.LittleEndian, assignment); err != nil {
		return fmt.Errorf("read assignment: %v: %w", err, ErrInvalidSnapshot)
	}
	members := make([][]uint32, hdr.NumRegions)
	for i := range members {
		var size uint32
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return fmt.Errorf("read region %d size: %v: %w", i, err, ErrInvalidSnapshot)
		}
		if size > hdr.NumNodes || int(size)*4 > r.Len() {
			return fmt.Errorf("region %d size %d out of range: %w", i, size, ErrInvalidSnapshot)
		}
		members[i] = make([]uint32, size)
		if err := binary.Read(r, binary.LittleEndian, members[i]); err != nil {
			return fmt.Errorf("read region %d members: %v: %w", i, err, ErrInvalidSnapshot)
		}
	}
	if r.Len() != 0 {
		return fmt.Errorf("%d trailing bytes: %w", r.Len(), ErrInvalidSnapshot)
	}

	snap.Assignment = assignment
	snap.Members = members
	return nil
}
