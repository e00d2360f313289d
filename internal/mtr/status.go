package mtr

import "github.com/hyqhyq3/wmtr/internal/i18n"

// Status is the outcome of a single echo probe.
type Status int

const (
	StatusNoReply Status = iota
	StatusSuccess
	StatusTransitExpired
	StatusBufferTooSmall
	StatusNetUnreachable
	StatusHostUnreachable
	StatusProtoUnreachable
	StatusPortUnreachable
	StatusNoResources
	StatusBadOption
	StatusHardwareError
	StatusPacketTooBig
	StatusTimedOut
	StatusBadRequest
	StatusBadRoute
	StatusReassemblyExpired
	StatusParamProblem
	StatusSourceQuench
	StatusOptionTooBig
	StatusBadDestination
	StatusGeneralFailure
)

var statusMessageIDs = map[Status]string{
	StatusBufferTooSmall:    "status.bufferTooSmall",
	StatusNetUnreachable:    "status.netUnreachable",
	StatusHostUnreachable:   "status.hostUnreachable",
	StatusProtoUnreachable:  "status.protoUnreachable",
	StatusPortUnreachable:   "status.portUnreachable",
	StatusNoResources:       "status.noResources",
	StatusBadOption:         "status.badOption",
	StatusHardwareError:     "status.hardwareError",
	StatusPacketTooBig:      "status.packetTooBig",
	StatusTimedOut:          "status.timedOut",
	StatusBadRequest:        "status.badRequest",
	StatusBadRoute:          "status.badRoute",
	StatusReassemblyExpired: "status.reassemblyExpired",
	StatusParamProblem:      "status.paramProblem",
	StatusSourceQuench:      "status.sourceQuench",
	StatusOptionTooBig:      "status.optionTooBig",
	StatusBadDestination:    "status.badDestination",
	StatusGeneralFailure:    "status.generalFailure",
}

// Replied reports whether the probe got any answer at all.
func (s Status) Replied() bool { return s != StatusNoReply }

// Reached reports whether the reply carries a usable round-trip sample:
// an echo reply from the target or a time-exceeded from a router on the way.
func (s Status) Reached() bool {
	return s == StatusSuccess || s == StatusTransitExpired
}

// Description returns the fixed hop label used for ICMP error replies.
// Unknown values describe themselves as a general failure.
func (s Status) Description() string {
	id, ok := statusMessageIDs[s]
	if !ok {
		id = statusMessageIDs[StatusGeneralFailure]
	}
	return i18n.T(id)
}

func (s Status) String() string {
	switch s {
	case StatusNoReply:
		return "no-reply"
	case StatusSuccess:
		return "success"
	case StatusTransitExpired:
		return "transit-expired"
	}
	if id, ok := statusMessageIDs[s]; ok {
		return id[len("status."):]
	}
	return "unknown"
}
