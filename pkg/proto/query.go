package proto

import (
	"github.com/IAL32/clickhouse-async/pkg/binary"
)

// Query is a client query packet. Settings travel as string pairs with an
// empty-name terminator; newer optional sections are gated on the negotiated
// revision.
type Query struct {
	ID          string
	Body        string
	Settings    map[string]string
	Compression uint64
	InitialUser string
	QuotaKey    string
}

// Encode writes the query packet, code included, for the given negotiated
// revision. The caller follows it with a data block (empty when the query
// carries no external data).
func (q *Query) Encode(w *binary.Writer, revision uint64) error {
	if err := w.UVarInt(ClientQueryPacket); err != nil {
		return err
	}
	if err := w.String(q.ID); err != nil {
		return err
	}
	if revision >= MinRevisionWithClientInfo {
		if err := q.encodeClientInfo(w, revision); err != nil {
			return err
		}
	}
	if err := q.encodeSettings(w, revision); err != nil {
		return err
	}
	if revision >= MinRevisionWithInterserverSecret {
		if err := w.String(""); err != nil {
			return err
		}
	}
	if err := w.UVarInt(StageComplete); err != nil {
		return err
	}
	if err := w.UVarInt(q.Compression); err != nil {
		return err
	}
	if err := w.String(q.Body); err != nil {
		return err
	}
	if revision >= MinRevisionWithParameters {
		// Empty parameter list terminator.
		if err := w.String(""); err != nil {
			return err
		}
	}
	return nil
}

func (q *Query) encodeClientInfo(w *binary.Writer, revision uint64) error {
	if err := w.UInt8(QueryKindInitial); err != nil {
		return err
	}
	if err := w.String(q.InitialUser); err != nil {
		return err
	}
	if err := w.String(q.ID); err != nil {
		return err
	}
	if err := w.String("127.0.0.1:0"); err != nil {
		return err
	}
	// Interface: TCP.
	if err := w.UInt8(1); err != nil {
		return err
	}
	if err := w.String(""); err != nil { // os_user
		return err
	}
	if err := w.String(""); err != nil { // client_hostname
		return err
	}
	if err := w.String(ClientName); err != nil {
		return err
	}
	if err := w.UVarInt(ClientVersionMajor); err != nil {
		return err
	}
	if err := w.UVarInt(ClientVersionMinor); err != nil {
		return err
	}
	if err := w.UVarInt(ClientRevision); err != nil {
		return err
	}
	if revision >= MinRevisionWithQuotaKeyInClientInfo {
		if err := w.String(q.QuotaKey); err != nil {
			return err
		}
	}
	if revision >= MinRevisionWithVersionPatch {
		if err := w.UVarInt(ClientVersionPatch); err != nil {
			return err
		}
	}
	return nil
}

func (q *Query) encodeSettings(w *binary.Writer, revision uint64) error {
	if revision >= MinRevisionWithSettingsSerializedAsStrings {
		for name, value := range q.Settings {
			if err := w.String(name); err != nil {
				return err
			}
			// important flag
			if err := w.UVarInt(0); err != nil {
				return err
			}
			if err := w.String(value); err != nil {
				return err
			}
		}
	}
	// Terminator.
	return w.String("")
}
