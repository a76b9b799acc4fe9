// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package cfgfixture // import "go.opentelemetry.io/propeller/cfgfixture"

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// WriteMsgpack encodes snap in msgpack, optionally compressed with zstd.
func WriteMsgpack(w io.Writer, snap *Snapshot, compress bool) error {
	if !compress {
		return msgpack.NewEncoder(w).Encode(snap)
	}
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return err
	}
	if err := msgpack.NewEncoder(zw).Encode(snap); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// ReadMsgpack decodes a snapshot written by WriteMsgpack. Compression is
// detected automatically.
func ReadMsgpack(r io.Reader) (*Snapshot, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(len(zstdMagic))
	if err != nil && err != io.EOF {
		return nil, err
	}

	var src io.Reader = br
	if bytes.Equal(magic, zstdMagic) {
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		src = zr
	}

	snap := &Snapshot{}
	if err := msgpack.NewDecoder(src).Decode(snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return snap, nil
}

// WriteYAML writes snap in its readable text form.
func WriteYAML(w io.Writer, snap *Snapshot) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(snap); err != nil {
		return err
	}
	return enc.Close()
}

// ReadYAML reads a snapshot written by WriteYAML.
func ReadYAML(r io.Reader) (*Snapshot, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	snap := &Snapshot{}
	if err := dec.Decode(snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return snap, nil
}
