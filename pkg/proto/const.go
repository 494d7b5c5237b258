// Package proto implements the native protocol packet layer: packet codes,
// revision gates, and the handshake, query, exception and progress payloads
// exchanged after connection establishment.
package proto

// Client packet codes.
const (
	ClientHelloPacket  = 0
	ClientQueryPacket  = 1
	ClientDataPacket   = 2
	ClientCancelPacket = 3
	ClientPingPacket   = 4
)

// Server packet codes.
const (
	ServerHelloPacket         = 0
	ServerDataPacket          = 1
	ServerExceptionPacket     = 2
	ServerProgressPacket      = 3
	ServerPongPacket          = 4
	ServerEndOfStreamPacket   = 5
	ServerProfileInfoPacket   = 6
	ServerTotalsPacket        = 7
	ServerExtremesPacket      = 8
	ServerTablesStatusPacket  = 9
	ServerLogPacket           = 10
	ServerTableColumnsPacket  = 11
	ServerProfileEventsPacket = 12
)

// Minimum server revisions gating optional wire fields.
const (
	MinRevisionWithClientInfo                  = 54032
	MinRevisionWithServerTimezone              = 54058
	MinRevisionWithQuotaKeyInClientInfo        = 54060
	MinRevisionWithServerDisplayName           = 54372
	MinRevisionWithVersionPatch                = 54401
	MinRevisionWithServerLogs                  = 54406
	MinRevisionWithSettingsSerializedAsStrings = 54429
	MinRevisionWithInterserverSecret           = 54441
	MinRevisionWithParameters                  = 54459
)

// Client identity sent during the handshake.
const (
	ClientName         = "clickhouse-async"
	ClientVersionMajor = 1
	ClientVersionMinor = 0
	ClientVersionPatch = 0
	ClientRevision     = 54429
)

// Query processing stages.
const (
	StageComplete = 2
)

// Compression negotiation states carried in the query packet.
const (
	CompressDisable uint64 = 0
	CompressEnable  uint64 = 1
)

// Query kinds carried in the client info section.
const (
	QueryKindInitial   = 1
	QueryKindSecondary = 2
)
