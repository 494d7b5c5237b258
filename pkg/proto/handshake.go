package proto

import (
	"fmt"

	"github.com/IAL32/clickhouse-async/pkg/binary"
)

// ClientHello is the first packet on a fresh connection: identity,
// supported revision, and credentials, in fixed wire order.
type ClientHello struct {
	Name     string
	Revision uint64
	Database string
	User     string
	Password string
}

// Encode writes the hello packet including its packet code.
func (h *ClientHello) Encode(w *binary.Writer) error {
	if err := w.UVarInt(ClientHelloPacket); err != nil {
		return err
	}
	if err := w.String(h.Name); err != nil {
		return err
	}
	if err := w.UVarInt(ClientVersionMajor); err != nil {
		return err
	}
	if err := w.UVarInt(ClientVersionMinor); err != nil {
		return err
	}
	if err := w.UVarInt(h.Revision); err != nil {
		return err
	}
	if err := w.String(h.Database); err != nil {
		return err
	}
	if err := w.String(h.User); err != nil {
		return err
	}
	return w.String(h.Password)
}

// ServerInfo is the server's half of the handshake. Immutable once produced;
// owned by the Connection for its lifetime.
type ServerInfo struct {
	Name         string
	VersionMajor uint64
	VersionMinor uint64
	VersionPatch uint64
	Revision     uint64
	Timezone     string
	DisplayName  string
}

// String renders the server identity for logs, e.g. "ClickHouse 23.3.1 (54452)".
func (s *ServerInfo) String() string {
	return fmt.Sprintf("%s %d.%d.%d (%d)", s.Name, s.VersionMajor, s.VersionMinor, s.VersionPatch, s.Revision)
}

// ReadServerInfo decodes a server hello payload. The packet code has already
// been consumed by the caller. Optional trailing fields are gated on the
// revision the server itself reports.
func ReadServerInfo(r *binary.Reader) (*ServerInfo, error) {
	info := &ServerInfo{}
	var err error

	if info.Name, err = r.String(); err != nil {
		return nil, err
	}
	if info.VersionMajor, err = r.UVarInt(); err != nil {
		return nil, err
	}
	if info.VersionMinor, err = r.UVarInt(); err != nil {
		return nil, err
	}
	if info.Revision, err = r.UVarInt(); err != nil {
		return nil, err
	}
	if info.Revision >= MinRevisionWithServerTimezone {
		if info.Timezone, err = r.String(); err != nil {
			return nil, err
		}
	}
	if info.Revision >= MinRevisionWithServerDisplayName {
		if info.DisplayName, err = r.String(); err != nil {
			return nil, err
		}
	}
	if info.Revision >= MinRevisionWithVersionPatch {
		if info.VersionPatch, err = r.UVarInt(); err != nil {
			return nil, err
		}
	}
	return info, nil
}

// WriteServerHello encodes a server hello packet, code included. The client
// never sends one; test fixtures standing in for a server do.
func WriteServerHello(w *binary.Writer, info *ServerInfo) error {
	if err := w.UVarInt(ServerHelloPacket); err != nil {
		return err
	}
	if err := w.String(info.Name); err != nil {
		return err
	}
	if err := w.UVarInt(info.VersionMajor); err != nil {
		return err
	}
	if err := w.UVarInt(info.VersionMinor); err != nil {
		return err
	}
	if err := w.UVarInt(info.Revision); err != nil {
		return err
	}
	if info.Revision >= MinRevisionWithServerTimezone {
		if err := w.String(info.Timezone); err != nil {
			return err
		}
	}
	if info.Revision >= MinRevisionWithServerDisplayName {
		if err := w.String(info.DisplayName); err != nil {
			return err
		}
	}
	if info.Revision >= MinRevisionWithVersionPatch {
		if err := w.UVarInt(info.VersionPatch); err != nil {
			return err
		}
	}
	return nil
}
