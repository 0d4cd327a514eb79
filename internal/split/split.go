// Package split implements the SMS-split engine: segmentation of an
// oversized message into parts bearing an optional concatenation UDH,
// reproducing the exact 7-bit/8-bit octet-budget arithmetic of the
// routing core's reference implementation, integer truncation included.
package split

import (
	"bytes"

	"github.com/kannel-go/smsbox/internal/msg"
)

// DefaultMaxOctets is the physical per-SMS octet budget used when Options
// does not specify one.
const DefaultMaxOctets = 140

// Options configures a single Split call; fields correspond directly to
// the per-translation split_* configuration (header, footer, split_suffix,
// split_chars, concatenation, max_messages).
type Options struct {
	Header, Footer []byte
	NonLastSuffix  []byte
	SplitChars     []byte
	Catenate       bool
	MaxMessages    int // 0 disables splitting: send_message returns no parts
	MaxOctets      int // 0 means DefaultMaxOctets
	Seq            byte
}

// Split segments m into one or more parts per opts, returning the parts
// in order. The concatenation of all returned parts' MsgData (header,
// footer and suffix stripped) is a prefix of the original payload, equal
// iff no truncation occurred.
func Split(m *msg.Message, opts Options) []*msg.Message {
	if opts.MaxMessages <= 0 {
		return nil
	}
	maxOctets := opts.MaxOctets
	if maxOctets == 0 {
		maxOctets = DefaultMaxOctets
	}

	hf := len(opts.Header) + len(opts.Footer)
	suffixLen := len(opts.NonLastSuffix)

	udhLen := 0
	if m.FlagUDH {
		udhLen = len(m.UDHData)
	}

	catenate := opts.Catenate
	// An existing, foreign UDH on a 7-bit message makes the recomputed
	// octet accounting ambiguous (the original's note on catenation vs.
	// pre-existing UDH); disable catenation rather than guess.
	if m.FlagUDH && !m.Flag8Bit {
		catenate = false
	}

	budget := partBudget(maxOctets, udhLen, hf, m.Flag8Bit)
	if catenate && len(m.MsgData) > budget {
		udhPrime := udhLen
		if udhPrime == 0 {
			udhPrime = 1
		}
		udhPrime += 5
		budget = partBudget(maxOctets, udhPrime, hf, m.Flag8Bit)
	}

	hasDLR := m.DLRMask != 0 || m.DLRID != "" || m.DLRKeyword != ""

	var parts []*msg.Message
	cursor := m.MsgData
	for partNum := 1; partNum <= opts.MaxMessages; partNum++ {
		last := len(cursor) <= budget || partNum == opts.MaxMessages

		var chunk []byte
		if last {
			n := len(cursor)
			if n > budget {
				n = budget
			}
			if n < 0 {
				n = 0
			}
			chunk = cursor[:n]
			cursor = cursor[n:]
		} else {
			limit := budget - suffixLen
			if limit < 0 {
				limit = 0
			}
			n := len(cursor)
			if n > limit {
				n = limit
			}
			if len(opts.SplitChars) > 0 {
				if idx := lastIndexAny(cursor[:n], opts.SplitChars); idx >= 0 {
					n = idx + 1
				}
			}
			chunk = append(append([]byte(nil), cursor[:n]...), opts.NonLastSuffix...)
			cursor = cursor[n:]
		}

		part := m.Clone()
		part.MsgData = append(append(append([]byte(nil), opts.Header...), chunk...), opts.Footer...)
		if partNum > 1 && hasDLR {
			part.StripDLR()
		}
		parts = append(parts, part)

		if last {
			break
		}
	}

	if catenate && len(parts) > 1 {
		total := byte(len(parts))
		for i, part := range parts {
			prependCatenationUDH(part, opts.Seq, total, byte(i+1))
		}
	}

	return parts
}

// partBudget computes the per-part payload octet budget. For 8-bit
// messages this is a plain subtraction; for 7-bit messages the UDH
// octet count is converted to septets with the same integer-truncating
// ceil/floor arithmetic the wire format requires for interoperability.
func partBudget(maxOctets, udhLen, headerFooter int, eightBit bool) int {
	if eightBit {
		return maxOctets - udhLen - headerFooter
	}
	septetBudget := (maxOctets * 8) / 7
	udhSeptets := (udhLen*8 + 12) / 7 // ceil((udhLen*8+6)/7)
	return septetBudget - udhSeptets - headerFooter
}

// lastIndexAny returns the index of the last byte in b that also appears
// in chars, or -1 if none does.
func lastIndexAny(b, chars []byte) int {
	for i := len(b) - 1; i >= 0; i-- {
		if bytes.IndexByte(chars, b[i]) >= 0 {
			return i
		}
	}
	return -1
}

// prependCatenationUDH prepends a concatenation information element
// (IEI 0x00, IE-length 0x03, payload (seq, total, partNo)) to part's UDH,
// inserting a leading UDHL octet if none existed, and rewrites UDHL to
// len(udhdata)-1.
func prependCatenationUDH(part *msg.Message, seq, total, partNo byte) {
	ie := []byte{0x00, 0x03, seq, total, partNo}

	var body []byte
	if part.FlagUDH && len(part.UDHData) > 0 {
		body = append(append([]byte(nil), ie...), part.UDHData[1:]...)
	} else {
		body = ie
	}
	part.UDHData = append([]byte{byte(len(body))}, body...)
	part.FlagUDH = true
}
