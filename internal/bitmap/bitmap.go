// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of vast.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package bitmap implements the append-only, position-addressed bitmap
// primitive the indexers are built on: appending a bit returns the
// position it was written to, positions are never reused, and bitwise
// and/or/not compose bitmaps produced by different indexers over the same
// ID space.
//
// It is backed by github.com/RoaringBitmap/roaring/v2, a compressed bitmap
// library; the "append" discipline is layered on top since Roaring itself
// has no notion of a write cursor.
package bitmap

import (
	"fmt"
	"io"

	"github.com/RoaringBitmap/roaring/v2"
)

// Bitmap is an append-only sequence of bits. Position i is set or cleared
// exactly once, by the i-th call to Append or AppendN; nothing before the
// write cursor ever changes again.
type Bitmap struct {
	rb   *roaring.Bitmap
	next uint32
}

// New returns an empty Bitmap.
func New() *Bitmap {
	return &Bitmap{rb: roaring.New()}
}

// Len reports the number of positions written so far (the write cursor),
// not the number of set bits.
func (b *Bitmap) Len() uint32 { return b.next }

// Append writes bit at the next position and returns that position.
func (b *Bitmap) Append(bit bool) uint32 {
	pos := b.next
	if bit {
		b.rb.Add(pos)
	}
	b.next++
	return pos
}

// AppendN writes n copies of bit starting at the current cursor and
// returns the position of the first one written. It is the bulk form used
// when an indexer skips over events it does not apply to.
func (b *Bitmap) AppendN(bit bool, n uint32) uint32 {
	start := b.next
	if bit && n > 0 {
		b.rb.AddRange(uint64(start), uint64(start)+uint64(n))
	}
	b.next += n
	return start
}

// CountOnes returns the number of set bits.
func (b *Bitmap) CountOnes() uint64 { return b.rb.GetCardinality() }

// SizeInBytes estimates the in-memory footprint of the compressed
// containers.
func (b *Bitmap) SizeInBytes() uint64 { return b.rb.GetSizeInBytes() }

// Get reports whether the bit at pos is set. pos must be < Len.
func (b *Bitmap) Get(pos uint32) bool { return b.rb.Contains(pos) }

// And returns a new Bitmap holding the bitwise AND of a and b. The result's
// cursor is the shorter of the two operands': an AND can only be as "long"
// as its shortest input.
func And(a, b *Bitmap) *Bitmap {
	return &Bitmap{rb: roaring.And(a.rb, b.rb), next: minU32(a.next, b.next)}
}

// Or returns a new Bitmap holding the bitwise OR of a and b.
func Or(a, b *Bitmap) *Bitmap {
	return &Bitmap{rb: roaring.Or(a.rb, b.rb), next: maxU32(a.next, b.next)}
}

// Not returns the bitwise complement of b over its own written range
// [0, b.Len()). Positions beyond the cursor are not defined and are not
// part of the result.
func Not(b *Bitmap) *Bitmap {
	flipped := b.rb.Clone()
	if b.next > 0 {
		flipped.Flip(0, uint64(b.next))
	}
	return &Bitmap{rb: flipped, next: b.next}
}

func minU32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

func maxU32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

// ToSlice materializes every set position. Intended for small result sets
// and tests; callers that need to stream positions should use Iterator.
func (b *Bitmap) ToSlice() []uint32 { return b.rb.ToArray() }

// Iterator yields set positions in ascending order.
func (b *Bitmap) Iterator() roaring.IntPeekable { return b.rb.Iterator() }

const magic uint32 = 0x76617362 // "vasb": vast bitmap

// Serialize writes a self-describing encoding of b: a magic number, the
// write cursor, and the Roaring container's own portable format.
func (b *Bitmap) Serialize(w io.Writer) error {
	if err := writeU32(w, magic); err != nil {
		return err
	}
	if err := writeU32(w, b.next); err != nil {
		return err
	}
	_, err := b.rb.WriteTo(w)
	return err
}

// Deserialize reads back a Bitmap written by Serialize.
func Deserialize(r io.Reader) (*Bitmap, error) {
	got, err := readU32(r)
	if err != nil {
		return nil, err
	}
	if got != magic {
		return nil, fmt.Errorf("bitmap: bad magic %08x", got)
	}
	next, err := readU32(r)
	if err != nil {
		return nil, err
	}
	rb := roaring.New()
	if _, err := rb.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("bitmap: decode roaring container: %w", err)
	}
	return &Bitmap{rb: rb, next: next}, nil
}

func writeU32(w io.Writer, v uint32) error {
	buf := []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	_, err := w.Write(buf)
	return err
}

func readU32(r io.Reader) (uint32, error) {
	buf := make([]byte, 4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	return uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3]), nil
}
