package proto

import "github.com/IAL32/clickhouse-async/pkg/binary"

// Progress reports how far the server has advanced through the query.
// Counters are cumulative deltas; callers sum them across packets.
type Progress struct {
	Rows      uint64
	Bytes     uint64
	TotalRows uint64
}

// Read decodes a progress payload, packet code already consumed.
func (p *Progress) Read(r *binary.Reader) error {
	var err error
	if p.Rows, err = r.UVarInt(); err != nil {
		return err
	}
	if p.Bytes, err = r.UVarInt(); err != nil {
		return err
	}
	p.TotalRows, err = r.UVarInt()
	return err
}

// Write encodes a progress payload without its packet code.
func (p *Progress) Write(w *binary.Writer) error {
	if err := w.UVarInt(p.Rows); err != nil {
		return err
	}
	if err := w.UVarInt(p.Bytes); err != nil {
		return err
	}
	return w.UVarInt(p.TotalRows)
}

// ProfileInfo summarizes execution statistics sent near end of stream.
type ProfileInfo struct {
	Rows          uint64
	Bytes         uint64
	ElapsedMillis uint64
}

// Read decodes a profile-info payload, packet code already consumed.
func (p *ProfileInfo) Read(r *binary.Reader) error {
	var err error
	if p.Rows, err = r.UVarInt(); err != nil {
		return err
	}
	if p.Bytes, err = r.UVarInt(); err != nil {
		return err
	}
	p.ElapsedMillis, err = r.UVarInt()
	return err
}

// Write encodes a profile-info payload without its packet code.
func (p *ProfileInfo) Write(w *binary.Writer) error {
	if err := w.UVarInt(p.Rows); err != nil {
		return err
	}
	if err := w.UVarInt(p.Bytes); err != nil {
		return err
	}
	return w.UVarInt(p.ElapsedMillis)
}
