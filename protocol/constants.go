package protocol

// ProtocolVersion is the SMP framing revision implemented by this library.
const ProtocolVersion = 1

// Frame structure constants.
const (
	// HeaderSize is the size of the binary envelope header:
	// OP(1) + FLAGS(1) + LEN(2) + GROUP(2) + SEQ(2) + ID(1)
	HeaderSize = 9

	// MaxPayloadSize is the largest payload the 16-bit length field can describe.
	MaxPayloadSize = 0xFFFF
)

// Op is the operation kind carried in the first header byte.
type Op uint8

// Operation kinds.
const (
	// OpRead requests data from the peripheral
	OpRead Op = 0

	// OpReadRsp is the peripheral's answer to OpRead
	OpReadRsp Op = 1

	// OpWrite sends data to the peripheral
	OpWrite Op = 2

	// OpWriteRsp is the peripheral's answer to OpWrite
	OpWriteRsp Op = 3
)

// IsResponse reports whether op is a response kind.
func (op Op) IsResponse() bool {
	return op == OpReadRsp || op == OpWriteRsp
}

// Response returns the response kind that answers op.
func (op Op) Response() Op {
	switch op {
	case OpRead:
		return OpReadRsp
	case OpWrite:
		return OpWriteRsp
	default:
		return op
	}
}

func (op Op) String() string {
	switch op {
	case OpRead:
		return "read"
	case OpReadRsp:
		return "read-rsp"
	case OpWrite:
		return "write"
	case OpWriteRsp:
		return "write-rsp"
	default:
		return "invalid"
	}
}

// Group is a management group identifier.
type Group uint16

// Management groups.
const (
	GroupOS     Group = 0
	GroupImage  Group = 1
	GroupStat   Group = 2
	GroupConfig Group = 3
	GroupLog    Group = 4
	GroupCrash  Group = 5
	GroupSplit  Group = 6
	GroupRun    Group = 7
	GroupFS     Group = 8
	GroupShell  Group = 9
)

func (g Group) String() string {
	switch g {
	case GroupOS:
		return "os"
	case GroupImage:
		return "image"
	case GroupStat:
		return "stat"
	case GroupConfig:
		return "config"
	case GroupLog:
		return "log"
	case GroupCrash:
		return "crash"
	case GroupSplit:
		return "split"
	case GroupRun:
		return "run"
	case GroupFS:
		return "fs"
	case GroupShell:
		return "shell"
	default:
		return "group"
	}
}

// Command identifiers per group.
const (
	// OSCmdEcho echoes a string back to the host
	OSCmdEcho uint8 = 0

	// OSCmdReset reboots the peripheral
	OSCmdReset uint8 = 5

	// ImageCmdState reads (OpRead) or sets (OpWrite) image slot state
	ImageCmdState uint8 = 0

	// ImageCmdUpload uploads one chunk of a firmware image
	ImageCmdUpload uint8 = 1

	// ImageCmdErase erases the secondary image slot
	ImageCmdErase uint8 = 5

	// FSCmdFile uploads (OpWrite) or downloads (OpRead) one chunk of a file
	FSCmdFile uint8 = 0

	// FSCmdStatus queries the size of a file
	FSCmdStatus uint8 = 1

	// FSCmdHash queries a digest of a file
	FSCmdHash uint8 = 2
)

// Hash constants.
const (
	// HashTypeSHA256 is the only digest algorithm requested by hash queries
	HashTypeSHA256 = "sha256"

	// SHA256Size is the length in bytes of a SHA-256 digest
	SHA256Size = 32
)
