// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stradus

import (
	"fmt"
	"strconv"
	"strings"
)

// EncodeSet renders a command as "TOKEN=VALUE". It never fails; value
// rendering follows FormatValue.
func EncodeSet(cmd Command, value any) []byte {
	return []byte(cmd.Token() + "=" + FormatValue(value))
}

// EncodeGet renders a query as its bare token (which already carries '?')
func EncodeGet(q Query) []byte {
	return []byte(q.Token())
}

// FormatValue renders a command value as wire text.
// Booleans become "0"/"1", numbers plain decimal text.
func FormatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case BoolValue:
		return v.Wire()
	case bool:
		return BoolOf(v).Wire()
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int8, int16, int32, int64:
		return fmt.Sprintf("%d", v)
	case uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// DecodeReply strips the echoed "TOKEN=" or "TOKEN= " prefix and any
// leading query marker from a reply payload. A reply without the prefix is
// returned unchanged.
func DecodeReply(token, raw string) string {
	bare := strings.TrimPrefix(token, QueryMarker)
	if bare == "" {
		return raw
	}
	payload := strings.TrimPrefix(raw, QueryMarker)
	value, ok := strings.CutPrefix(payload, bare+"=")
	if !ok {
		return raw
	}
	return strings.TrimPrefix(value, " ")
}
